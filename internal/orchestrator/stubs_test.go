package orchestrator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/provider"
)

// stubProvider answers every manifest request by running translate over the
// user payload. Status queries walk through statuses; the last one repeats.
type stubProvider struct {
	mu        sync.Mutex
	manifest  []byte
	statuses  []string
	polls     int
	translate func(string) string

	uploadErr   error
	createErr   error
	downloadErr error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) UploadArtifact(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.manifest = append([]byte(nil), data...)
	return "file-in", nil
}

func (s *stubProvider) CreateBatch(_ context.Context, artifactID string, _ map[string]string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	if artifactID != "file-in" {
		return "", fmt.Errorf("unexpected artifact %s", artifactID)
	}
	return "batch-1", nil
}

func (s *stubProvider) GetBatchStatus(_ context.Context, externalID string) (*provider.BatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return nil, errors.New("no statuses scripted")
	}
	i := s.polls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.polls++

	st := &provider.BatchStatus{ID: externalID, Status: s.statuses[i], Total: 2, Completed: 1}
	if st.Status == provider.StatusCompleted {
		st.Completed = 2
		st.OutputFileID = "file-out"
	}
	return st, nil
}

func (s *stubProvider) DownloadArtifact(_ context.Context, artifactID string) ([]byte, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	if artifactID != "file-out" {
		return nil, &provider.StatusError{Op: "download", StatusCode: 404}
	}

	s.mu.Lock()
	manifest := s.manifest
	s.mu.Unlock()

	reqs, err := provider.DecodeManifest(manifest)
	if err != nil {
		return nil, err
	}
	results := make([]provider.Result, len(reqs))
	for i, r := range reqs {
		body, _ := json.Marshal(provider.CompletionBody{Choices: []provider.Choice{{
			Message: &provider.Message{Role: "assistant", Content: s.translate(r.UserContent())},
		}}})
		results[i] = provider.Result{
			CustomID: r.CustomID,
			Response: &provider.Response{StatusCode: 200, Body: body},
		}
	}
	return provider.EncodeLines(results)
}

// requests decodes the uploaded manifest.
func (s *stubProvider) requests(t *testing.T) []provider.Request {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs, err := provider.DecodeManifest(s.manifest)
	if err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return reqs
}

// stubWriter records what the orchestrator asked it to write.
type stubWriter struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (w *stubWriter) WriteOutput(_ context.Context, job internal.BatchJob, lines []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.lines = append([]string(nil), lines...)
	return job.ID + ".csv", nil
}

// eventLog collects observer events.
type eventLog struct {
	mu     sync.Mutex
	events []internal.JobEvent
}

func (l *eventLog) observe(ev internal.JobEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) statuses() []internal.JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]internal.JobStatus, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Status
	}
	return out
}

// syncBuffer collects log output written from job goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
