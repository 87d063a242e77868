// Package poller watches one remote batch job until it reaches a terminal
// state, reporting every observation over a channel.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/metrics"
	"github.com/valpere/gameloc/internal/provider"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxAttempts = 540
)

// Update is one status report for a job.
type Update struct {
	JobID          string
	Status         internal.JobStatus
	Progress       int
	Error          string
	OutputRef      string
	ProviderStatus string
	Attempt        int
}

// Terminal reports whether this is the final update for the job.
func (u Update) Terminal() bool {
	return u.Status.Terminal()
}

// Poller polls a provider for batch status.
type Poller struct {
	provider    provider.Provider
	interval    time.Duration
	maxAttempts int
	log         zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// New returns a Poller for prov.
func New(prov provider.Provider, opts ...Option) *Poller {
	p := &Poller{
		provider:    prov,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls externalID until it completes, fails or the attempt budget runs
// out. It sends one update per tick and exactly one terminal update, then
// closes updates. The caller must drain updates until it is closed.
//
// Server errors, rate limiting and network failures are waited out; any other
// provider error ends polling as a failure.
func (p *Poller) Run(ctx context.Context, jobID, externalID string, updates chan<- Update) {
	defer close(updates)

	log := p.log.With().Str("job_id", jobID).Str("external_job_id", externalID).Logger()
	progress := 0

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		u, done := p.tick(ctx, log, jobID, externalID, attempt, progress)
		progress = u.Progress
		updates <- u
		if done {
			return
		}

		if attempt == p.maxAttempts {
			break
		}
		if !sleep(ctx, p.interval) {
			metrics.PollTick(metrics.PollTerminal)
			updates <- Update{
				JobID:    jobID,
				Status:   internal.StatusFailed,
				Progress: progress,
				Error:    fmt.Sprintf("polling stopped: %v", ctx.Err()),
				Attempt:  attempt,
			}
			return
		}
	}

	log.Warn().Int("attempts", p.maxAttempts).Msg("polling budget exhausted")
	updates <- Update{
		JobID:    jobID,
		Status:   internal.StatusFailed,
		Progress: progress,
		Error:    fmt.Sprintf("polling timeout for batch %s after %d attempts", externalID, p.maxAttempts),
		Attempt:  p.maxAttempts,
	}
}

// tick performs one status query and maps it to an update. done is true when
// the update is terminal.
func (p *Poller) tick(ctx context.Context, log zerolog.Logger, jobID, externalID string, attempt, progress int) (Update, bool) {
	u := Update{JobID: jobID, Attempt: attempt, Progress: progress}

	st, err := p.provider.GetBatchStatus(ctx, externalID)
	if err != nil {
		if provider.IsTransient(err) {
			metrics.PollTick(metrics.PollTransient)
			log.Warn().Err(err).Int("attempt", attempt).Msg("transient status error, retrying next tick")
			u.Status = internal.StatusProcessing
			return u, false
		}
		metrics.PollTick(metrics.PollTerminal)
		log.Error().Err(err).Int("attempt", attempt).Msg("status query failed")
		u.Status = internal.StatusFailed
		u.Error = err.Error()
		return u, true
	}

	u.ProviderStatus = st.Status
	log.Debug().Int("attempt", attempt).Str("provider_status", st.Status).
		Int("completed", st.Completed).Int("total", st.Total).Msg("batch status")

	switch status := provider.MapStatus(st.Status); status {
	case internal.StatusCompleted:
		metrics.PollTick(metrics.PollOK)
		if st.OutputFileID == "" {
			u.Status = internal.StatusFailed
			u.Error = fmt.Sprintf("batch %s completed but no output file was returned", externalID)
			return u, true
		}
		u.Status = internal.StatusCompleted
		u.Progress = 100
		u.OutputRef = st.OutputFileID
		return u, true

	case internal.StatusFailed:
		metrics.PollTick(metrics.PollOK)
		u.Status = internal.StatusFailed
		u.Error = fmt.Sprintf("batch %s %s", externalID, st.Status)
		if st.Errors != "" {
			u.Error += ": " + st.Errors
		}
		return u, true

	default:
		metrics.PollTick(metrics.PollOK)
		u.Status = status
		if st.Total > 0 {
			u.Progress = provider.Progress(st.Total, st.Completed)
		}
		return u, false
	}
}

// sleep waits d or until ctx is done; it reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
