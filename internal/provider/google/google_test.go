package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"

	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/provider/emulator"
	"github.com/valpere/gameloc/internal/provider/google"
)

type mockTranslator struct {
	translateFunc func(inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
}

func (m *mockTranslator) Translate(_ context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
	return m.translateFunc(inputs, target, opts)
}

func upperTranslator() *mockTranslator {
	return &mockTranslator{translateFunc: func(inputs []string, _ language.Tag, _ *translate.Options) ([]translate.Translation, error) {
		out := make([]translate.Translation, len(inputs))
		for i, in := range inputs {
			out[i] = translate.Translation{Text: strings.ToUpper(in)}
		}
		return out, nil
	}}
}

func manifest(t *testing.T, contents ...string) []byte {
	t.Helper()
	reqs := make([]provider.Request, len(contents))
	for i, c := range contents {
		reqs[i] = provider.Request{
			CustomID: "request-" + string(rune('1'+i)),
			Body:     provider.ChatBody{Messages: []provider.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: c}}},
		}
	}
	data, err := provider.EncodeLines(reqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func waitTerminal(t *testing.T, e *emulator.Emulator, id string) *provider.BatchStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.GetBatchStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if st.Status == provider.StatusCompleted || st.Status == provider.StatusFailed {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch did not finish")
	return nil
}

func decodeResults(t *testing.T, data []byte) map[string]provider.Result {
	t.Helper()
	out := make(map[string]provider.Result)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var r provider.Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("bad result line %q: %v", line, err)
		}
		out[r.CustomID] = r
	}
	return out
}

func TestEmulator_TranslatesEveryLine(t *testing.T) {
	var gotTarget language.Tag
	tr := upperTranslator()
	inner := tr.translateFunc
	tr.translateFunc = func(inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
		gotTarget = target
		if opts.Format != translate.Text {
			t.Errorf("expected text format, got %q", opts.Format)
		}
		return inner(inputs, target, opts)
	}
	e := google.NewWithTranslator(tr)
	defer e.Close()
	ctx := context.Background()

	fileID, _ := e.UploadArtifact(ctx, manifest(t, "one\ntwo", "three"))
	id, err := e.CreateBatch(ctx, fileID, map[string]string{provider.MetaTargetLang: "de", provider.MetaSourceLang: "auto"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := waitTerminal(t, e, id)
	if st.Status != provider.StatusCompleted || st.Total != 2 || st.Completed != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
	if gotTarget != language.German {
		t.Errorf("expected German target, got %s", gotTarget)
	}

	data, err := e.DownloadArtifact(ctx, st.OutputFileID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	results := decodeResults(t, data)
	var body provider.CompletionBody
	json.Unmarshal(results["request-1"].Response.Body, &body)
	if got := body.Choices[0].Message.Content; got != "ONE\nTWO" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestEmulator_TranslatorErrorBecomesErrorRecord(t *testing.T) {
	tr := &mockTranslator{translateFunc: func([]string, language.Tag, *translate.Options) ([]translate.Translation, error) {
		return nil, errors.New("quota exhausted")
	}}
	e := google.NewWithTranslator(tr)
	defer e.Close()
	ctx := context.Background()

	fileID, _ := e.UploadArtifact(ctx, manifest(t, "a"))
	id, _ := e.CreateBatch(ctx, fileID, map[string]string{provider.MetaTargetLang: "fr"})
	st := waitTerminal(t, e, id)
	if st.Failed != 1 {
		t.Errorf("expected 1 failed request, got %+v", st)
	}

	data, _ := e.DownloadArtifact(ctx, st.OutputFileID)
	res := decodeResults(t, data)["request-1"]
	if res.Response.StatusCode != 500 || !strings.Contains(string(res.Response.Body), "quota exhausted") {
		t.Errorf("unexpected error record %+v", res.Response)
	}
}

func TestEmulator_CreateBatchErrors(t *testing.T) {
	e := google.NewWithTranslator(upperTranslator())
	defer e.Close()
	ctx := context.Background()

	if _, err := e.CreateBatch(ctx, "missing", map[string]string{provider.MetaTargetLang: "de"}); provider.IsTransient(err) || err == nil {
		t.Errorf("expected terminal error for unknown file, got %v", err)
	}

	fileID, _ := e.UploadArtifact(ctx, manifest(t, "a"))
	if _, err := e.CreateBatch(ctx, fileID, map[string]string{provider.MetaTargetLang: "not a tag!"}); err == nil {
		t.Error("expected error for invalid target language")
	}

	if _, err := e.GetBatchStatus(ctx, "nope"); err == nil {
		t.Error("expected error for unknown batch")
	}
}
