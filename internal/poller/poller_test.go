package poller_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/poller"
	"github.com/valpere/gameloc/internal/provider"
)

// scriptedProvider answers status queries from a fixed script; the last step
// repeats once the script is exhausted.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	status *provider.BatchStatus
	err    error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) UploadArtifact(context.Context, []byte) (string, error) {
	return "", errors.New("not used")
}

func (s *scriptedProvider) CreateBatch(context.Context, string, map[string]string) (string, error) {
	return "", errors.New("not used")
}

func (s *scriptedProvider) DownloadArtifact(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (s *scriptedProvider) GetBatchStatus(context.Context, string) (*provider.BatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].status, s.steps[i].err
}

func running(completed, total int) step {
	return step{status: &provider.BatchStatus{Status: provider.StatusInProgress, Completed: completed, Total: total}}
}

func collect(t *testing.T, p *poller.Poller) []poller.Update {
	t.Helper()
	ch := make(chan poller.Update)
	go p.Run(context.Background(), "job-1", "batch-1", ch)

	var out []poller.Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("poller did not finish")
		}
	}
}

func newPoller(sp *scriptedProvider, attempts int) *poller.Poller {
	return poller.New(sp, poller.WithInterval(time.Millisecond), poller.WithMaxAttempts(attempts))
}

func requireSingleTerminal(t *testing.T, updates []poller.Update) poller.Update {
	t.Helper()
	if len(updates) == 0 {
		t.Fatal("no updates")
	}
	for i, u := range updates[:len(updates)-1] {
		if u.Terminal() {
			t.Fatalf("update %d is terminal but not last: %+v", i, u)
		}
	}
	last := updates[len(updates)-1]
	if !last.Terminal() {
		t.Fatalf("last update is not terminal: %+v", last)
	}
	return last
}

func TestRun_ProgressThenCompleted(t *testing.T) {
	sp := &scriptedProvider{steps: []step{
		{status: &provider.BatchStatus{Status: provider.StatusValidating}},
		running(1, 4),
		running(3, 4),
		{status: &provider.BatchStatus{Status: provider.StatusCompleted, Completed: 4, Total: 4, OutputFileID: "out-1"}},
	}}
	updates := collect(t, newPoller(sp, 10))

	if len(updates) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(updates))
	}
	if updates[0].Status != internal.StatusPending {
		t.Errorf("validating should map to pending, got %s", updates[0].Status)
	}
	if updates[1].Progress != 25 || updates[2].Progress != 75 {
		t.Errorf("unexpected progress %d, %d", updates[1].Progress, updates[2].Progress)
	}
	last := requireSingleTerminal(t, updates)
	if last.Status != internal.StatusCompleted || last.OutputRef != "out-1" || last.Progress != 100 {
		t.Errorf("unexpected terminal update %+v", last)
	}
}

func TestRun_CompletedWithoutOutputFails(t *testing.T) {
	sp := &scriptedProvider{steps: []step{
		{status: &provider.BatchStatus{Status: provider.StatusCompleted}},
	}}
	last := requireSingleTerminal(t, collect(t, newPoller(sp, 5)))
	if last.Status != internal.StatusFailed || !strings.Contains(last.Error, "no output file") {
		t.Errorf("unexpected terminal update %+v", last)
	}
	if sp.calls != 1 {
		t.Errorf("expected no retry, got %d calls", sp.calls)
	}
}

func TestRun_ProviderFailureKeepsDiagnostics(t *testing.T) {
	sp := &scriptedProvider{steps: []step{
		running(0, 2),
		{status: &provider.BatchStatus{Status: provider.StatusCancelled, Errors: `{"message":"cancelled by operator"}`}},
	}}
	last := requireSingleTerminal(t, collect(t, newPoller(sp, 5)))
	if last.Status != internal.StatusFailed {
		t.Fatalf("expected failed, got %s", last.Status)
	}
	if !strings.Contains(last.Error, "cancelled by operator") || !strings.Contains(last.Error, "cancelled") {
		t.Errorf("expected provider diagnostics verbatim, got %q", last.Error)
	}
}

func TestRun_TransientErrorsContinue(t *testing.T) {
	sp := &scriptedProvider{steps: []step{
		{err: &provider.StatusError{Op: "batch status", StatusCode: 503}},
		{err: &provider.StatusError{Op: "batch status", StatusCode: 429}},
		running(1, 2),
		{status: &provider.BatchStatus{Status: provider.StatusCompleted, OutputFileID: "out"}},
	}}
	updates := collect(t, newPoller(sp, 10))

	if len(updates) != 4 {
		t.Fatalf("expected an update on every tick, got %d", len(updates))
	}
	for _, u := range updates[:2] {
		if u.Status != internal.StatusProcessing {
			t.Errorf("transient tick should report processing, got %s", u.Status)
		}
	}
	if last := requireSingleTerminal(t, updates); last.Status != internal.StatusCompleted {
		t.Errorf("expected completed, got %+v", last)
	}
}

func TestRun_ClientErrorAborts(t *testing.T) {
	sp := &scriptedProvider{steps: []step{
		running(0, 1),
		{err: &provider.StatusError{Op: "batch status", StatusCode: 404, Body: "no such batch"}},
		running(1, 1),
	}}
	updates := collect(t, newPoller(sp, 10))
	last := requireSingleTerminal(t, updates)
	if last.Status != internal.StatusFailed || !strings.Contains(last.Error, "no such batch") {
		t.Errorf("unexpected terminal update %+v", last)
	}
	if len(updates) != 2 {
		t.Errorf("expected polling to stop after the 404, got %d updates", len(updates))
	}
}

func TestRun_AttemptBudget(t *testing.T) {
	sp := &scriptedProvider{steps: []step{running(0, 5)}}
	updates := collect(t, newPoller(sp, 3))

	if sp.calls != 3 {
		t.Errorf("expected 3 status calls, got %d", sp.calls)
	}
	if len(updates) != 4 {
		t.Fatalf("expected 3 progress updates and 1 terminal, got %d", len(updates))
	}
	last := requireSingleTerminal(t, updates)
	if last.Status != internal.StatusFailed || !strings.Contains(last.Error, "polling timeout") {
		t.Errorf("unexpected terminal update %+v", last)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	sp := &scriptedProvider{steps: []step{running(0, 5)}}
	p := poller.New(sp, poller.WithInterval(time.Hour), poller.WithMaxAttempts(10))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan poller.Update)
	go p.Run(ctx, "job-1", "batch-1", ch)

	first := <-ch
	if first.Terminal() {
		t.Fatalf("first update should not be terminal: %+v", first)
	}
	cancel()

	last, ok := <-ch
	if !ok || last.Status != internal.StatusFailed {
		t.Fatalf("expected a terminal failure after cancel, got %+v (open=%v)", last, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after the terminal update")
	}
}
