package batch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/batch"
	"github.com/valpere/gameloc/internal/chunker"
	"github.com/valpere/gameloc/internal/provider"
)

type mockProvider struct {
	uploadFunc func(data []byte) (string, error)
	createFunc func(artifactID string, metadata map[string]string) (string, error)
	uploads    int
	creates    int
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) UploadArtifact(_ context.Context, data []byte) (string, error) {
	m.uploads++
	return m.uploadFunc(data)
}

func (m *mockProvider) CreateBatch(_ context.Context, artifactID string, metadata map[string]string) (string, error) {
	m.creates++
	return m.createFunc(artifactID, metadata)
}

func (m *mockProvider) GetBatchStatus(context.Context, string) (*provider.BatchStatus, error) {
	return nil, errors.New("not used")
}

func (m *mockProvider) DownloadArtifact(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used")
}

func testChunks(t *testing.T, lines []string, size int) []internal.Chunk {
	t.Helper()
	chunks, err := chunker.Split(lines, lines, size)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chunks
}

func TestBuildManifest(t *testing.T) {
	chunks := testChunks(t, []string{"a", "multi\nline", "c"}, 2)
	reqs := batch.BuildManifest(chunks, batch.Options{Model: "glm-4-plus", Temperature: 0.1, SourceLang: "en", TargetLang: "de"})

	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].CustomID != "request-1" || reqs[1].CustomID != "request-2" {
		t.Errorf("unexpected ids %q, %q", reqs[0].CustomID, reqs[1].CustomID)
	}
	if reqs[0].URL != provider.ChatCompletionsEndpoint || reqs[0].Method != "POST" {
		t.Errorf("unexpected target %s %s", reqs[0].Method, reqs[0].URL)
	}
	if got := reqs[0].UserContent(); got != "a\nmulti"+chunker.NewlineSentinel+"line" {
		t.Errorf("unexpected payload %q", got)
	}
	sys := reqs[0].Body.Messages[0].Content
	for _, want := range []string{"English", "German", "exactly 2 lines", "__TAG0__", chunker.NewlineSentinel} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(reqs[1].Body.Messages[0].Content, "exactly 1 lines") {
		t.Error("second chunk prompt should ask for its own line count")
	}
}

func TestSystemPrompt_AutoSource(t *testing.T) {
	if !strings.Contains(batch.SystemPrompt("auto", "uk", 3), "the detected source language") {
		t.Error("expected auto source wording")
	}
}

func TestSubmit_OneUploadOneCreate(t *testing.T) {
	var uploaded []byte
	p := &mockProvider{
		uploadFunc: func(data []byte) (string, error) {
			uploaded = data
			return "file-1", nil
		},
		createFunc: func(artifactID string, metadata map[string]string) (string, error) {
			if artifactID != "file-1" {
				t.Errorf("expected file-1, got %q", artifactID)
			}
			if metadata[provider.MetaJobID] != "job-1" || metadata[provider.MetaTargetLang] != "de" {
				t.Errorf("unexpected metadata %v", metadata)
			}
			return "batch-1", nil
		},
	}

	s := batch.New(p, zerolog.Nop())
	sub, err := s.Submit(context.Background(), "job-1", testChunks(t, []string{"a", "b", "c", "d", "e"}, 2), batch.Options{TargetLang: "de"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.uploads != 1 || p.creates != 1 {
		t.Errorf("expected exactly one upload and one create, got %d and %d", p.uploads, p.creates)
	}
	if sub.ExternalID != "batch-1" || sub.Requests != 3 {
		t.Errorf("unexpected submission %+v", sub)
	}
	reqs, err := provider.DecodeManifest(uploaded)
	if err != nil || len(reqs) != 3 {
		t.Fatalf("uploaded manifest: %d requests, %v", len(reqs), err)
	}
}

func TestSubmit_UploadFailureStops(t *testing.T) {
	p := &mockProvider{
		uploadFunc: func([]byte) (string, error) { return "", errors.New("boom") },
		createFunc: func(string, map[string]string) (string, error) { return "x", nil },
	}
	_, err := batch.New(p, zerolog.Nop()).Submit(context.Background(), "j", testChunks(t, []string{"a"}, 1), batch.Options{})
	if err == nil || !strings.Contains(err.Error(), "upload manifest") {
		t.Errorf("expected upload error, got %v", err)
	}
	if p.uploads != 1 || p.creates != 0 {
		t.Errorf("expected no retry and no create, got %d uploads, %d creates", p.uploads, p.creates)
	}
}

func TestSubmit_CreateFailure(t *testing.T) {
	p := &mockProvider{
		uploadFunc: func([]byte) (string, error) { return "f", nil },
		createFunc: func(string, map[string]string) (string, error) {
			return "", &provider.StatusError{Op: "create batch", StatusCode: 400}
		},
	}
	_, err := batch.New(p, zerolog.Nop()).Submit(context.Background(), "j", testChunks(t, []string{"a"}, 1), batch.Options{})
	var se *provider.StatusError
	if !errors.As(err, &se) {
		t.Errorf("expected wrapped StatusError, got %v", err)
	}
	if p.creates != 1 {
		t.Errorf("expected a single create attempt, got %d", p.creates)
	}
}

func TestSubmit_Empty(t *testing.T) {
	p := &mockProvider{}
	_, err := batch.New(p, zerolog.Nop()).Submit(context.Background(), "j", nil, batch.Options{})
	if !errors.Is(err, internal.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if p.uploads != 0 {
		t.Error("nothing should be uploaded")
	}
}
