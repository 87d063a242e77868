// Package orchestrator owns the lifecycle of batch translation jobs: it
// protects tags, chunks and submits the lines, then hands the job to a single
// owner goroutine that follows the poller, reconciles the result and writes
// the output.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/batch"
	"github.com/valpere/gameloc/internal/chunker"
	"github.com/valpere/gameloc/internal/detector"
	"github.com/valpere/gameloc/internal/metrics"
	"github.com/valpere/gameloc/internal/poller"
	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/reconciler"
	"github.com/valpere/gameloc/internal/store"
	"github.com/valpere/gameloc/internal/tagprotect"
	"github.com/valpere/gameloc/internal/validator"
)

// OutputWriter persists the restored lines of a completed job and returns
// where they went.
type OutputWriter interface {
	WriteOutput(ctx context.Context, job internal.BatchJob, lines []string) (string, error)
}

// Observer receives every status change applied to a job record. Observers
// run on the owner goroutine and must not block.
type Observer func(internal.JobEvent)

// Request is one translation job.
type Request struct {
	Lines          []string
	SourceLang     string
	TargetLang     string
	Model          string
	ChunkSize      int
	Temperature    *float64 // nil uses the manager default
	CustomPatterns []tagprotect.Pattern
	Output         OutputWriter
}

// Manager runs jobs against one provider.
type Manager struct {
	provider   provider.Provider
	store      *store.Store
	tags       *tagprotect.Engine
	detector   *detector.Detector
	submitter  *batch.Submitter
	reconciler *reconciler.Reconciler
	validator  *validator.Validator

	model       string
	temperature float64
	chunkSize   int
	pollOpts    []poller.Option
	observers   []Observer
	log         zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*Handle
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithDetector enables detection for jobs submitted with source "auto".
// Without it such jobs are sent with the source left as "auto".
func WithDetector(d *detector.Detector) Option {
	return func(m *Manager) { m.detector = d }
}

func WithTagEngine(e *tagprotect.Engine) Option {
	return func(m *Manager) { m.tags = e }
}

func WithPollerOptions(opts ...poller.Option) Option {
	return func(m *Manager) { m.pollOpts = append(m.pollOpts, opts...) }
}

// WithValidator runs the post-translation checks on every completed job.
// Issues are logged and counted; they never change the job status.
func WithValidator(v *validator.Validator) Option {
	return func(m *Manager) { m.validator = v }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithDefaults sets the model, temperature and chunk size used when a
// request leaves them unset. A negative temperature keeps the built-in one.
func WithDefaults(model string, temperature float64, chunkSize int) Option {
	return func(m *Manager) {
		if model != "" {
			m.model = model
		}
		if temperature >= 0 {
			m.temperature = temperature
		}
		if chunkSize > 0 {
			m.chunkSize = chunkSize
		}
	}
}

// New returns a Manager. Close must be called to stop running jobs.
func New(p provider.Provider, st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		provider:    p,
		store:       st,
		temperature: batch.DefaultTemperature,
		chunkSize:   chunker.DefaultChunkSize,
		log:         zerolog.Nop(),
		handles:     make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tags == nil {
		m.tags = tagprotect.New(tagprotect.WithLogger(m.log))
	}
	m.submitter = batch.New(p, m.log)
	m.reconciler = reconciler.New(m.tags, m.log)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Handle follows one running job.
type Handle struct {
	id   string
	done chan struct{}
}

func (h *Handle) ID() string {
	return h.id
}

// Done is closed once the job record is terminal.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle returns the handle of a running job. Handles are dropped once the
// job is terminal; the record stays available through Get.
func (m *Manager) Handle(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	return h, ok
}

// Submit validates req, creates the job record and submits the batch. The
// job then continues in the background. Validation failures return an error
// and create no record; a failed submission leaves a FAILED record and
// returns its handle together with the error.
func (m *Manager) Submit(ctx context.Context, req Request) (*Handle, error) {
	if err := m.normalize(&req); err != nil {
		return nil, err
	}

	protected := make([]string, len(req.Lines))
	tagMaps := make([]map[string]internal.TagMatch, len(req.Lines))
	tagCount := 0
	for i, line := range req.Lines {
		protected[i], tagMaps[i] = m.tags.Protect(line, req.CustomPatterns...)
		tagCount += len(tagMaps[i])
	}
	metrics.TagsProtected(tagCount)

	chunks, err := chunker.Split(req.Lines, protected, req.ChunkSize)
	if err != nil {
		return nil, err
	}

	w, err := m.store.Create(ctx, internal.BatchJob{
		ID:            uuid.NewString(),
		SourceLang:    req.SourceLang,
		TargetLang:    req.TargetLang,
		Model:         req.Model,
		ChunkSize:     req.ChunkSize,
		ChunkCount:    len(chunks),
		OriginalCount: len(req.Lines),
	})
	if err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}
	h := &Handle{id: w.ID(), done: make(chan struct{})}
	m.mu.Lock()
	m.handles[h.id] = h
	m.mu.Unlock()

	log := m.log.With().Str("job_id", h.id).Logger()
	log.Info().Int("lines", len(req.Lines)).Int("chunks", len(chunks)).Int("tags", tagCount).
		Str("source_lang", req.SourceLang).Str("target_lang", req.TargetLang).Msg("job created")
	metrics.JobStarted()
	start := time.Now()

	sub, err := m.submitter.Submit(ctx, h.id, chunks, batch.Options{
		Model:       req.Model,
		Temperature: *req.Temperature,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
	})
	if err != nil {
		log.Error().Err(err).Msg("batch submission failed")
		m.apply(ctx, w, func(j *internal.BatchJob) {
			j.Status = internal.StatusFailed
			j.Error = err.Error()
		})
		m.finish(w, h, start)
		return h, err
	}
	metrics.JobSubmitted(m.provider.Name())

	m.apply(ctx, w, func(j *internal.BatchJob) {
		j.Status = internal.StatusProcessing
		j.ExternalJobID = sub.ExternalID
	})

	m.wg.Add(1)
	go m.run(w, h, start, lifecycle{chunks: chunks, tagMaps: tagMaps, output: req.Output})
	return h, nil
}

// normalize fills defaults and validates req in place.
func (m *Manager) normalize(req *Request) error {
	if len(req.Lines) == 0 {
		return internal.Invalid("lines", "at least one line is required")
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = m.chunkSize
	}
	if err := chunker.ValidateSize(req.ChunkSize); err != nil {
		return err
	}
	if req.Model == "" {
		req.Model = m.model
	}
	if req.Temperature == nil {
		t := m.temperature
		req.Temperature = &t
	}
	if *req.Temperature < 0 || *req.Temperature > 1 {
		return internal.Invalid("temperature", "must be between 0 and 1")
	}
	req.CustomPatterns = m.usablePatterns(req.CustomPatterns)

	target, err := parseLanguage("target_lang", req.TargetLang)
	if err != nil {
		return err
	}
	req.TargetLang = target

	src := strings.TrimSpace(strings.ToLower(req.SourceLang))
	if src == "" || src == detector.AutoLanguage {
		req.SourceLang = m.detectSource(req.Lines)
		return nil
	}
	if req.SourceLang, err = parseLanguage("source_lang", src); err != nil {
		return err
	}
	return nil
}

// usablePatterns drops custom patterns that do not compile. The rest of the
// registry still applies.
func (m *Manager) usablePatterns(patterns []tagprotect.Pattern) []tagprotect.Pattern {
	bad := tagprotect.ValidatePatterns(patterns)
	if len(bad) == 0 {
		return patterns
	}
	m.log.Warn().Strs("patterns", bad).Msg("skipping custom patterns with invalid regular expressions")
	out := make([]tagprotect.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if len(tagprotect.ValidatePatterns([]tagprotect.Pattern{p})) == 0 {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) detectSource(lines []string) string {
	if m.detector == nil {
		return detector.AutoLanguage
	}
	plain := make([]string, len(lines))
	for i, l := range lines {
		plain[i] = m.tags.Strip(l)
	}
	code, ok := m.detector.DetectLines(plain)
	if !ok {
		m.log.Warn().Msg("source language not detected, leaving it to the model")
		return detector.AutoLanguage
	}
	m.log.Debug().Str("source_lang", code).Msg("source language detected")
	return code
}

func parseLanguage(field, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", internal.Invalid(field, "must not be empty")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", internal.Invalid(field, "unknown language tag %q", code)
	}
	return tag.String(), nil
}

// lifecycle is what the owner goroutine needs after submission.
type lifecycle struct {
	chunks  []internal.Chunk
	tagMaps []map[string]internal.TagMatch
	output  OutputWriter
}

// run is the owner goroutine of one job. It is the only code that writes the
// job record after submission.
func (m *Manager) run(w *store.Writer, h *Handle, start time.Time, lc lifecycle) {
	defer m.wg.Done()
	defer m.finish(w, h, start)

	job := w.Job()
	log := m.log.With().Str("job_id", job.ID).Str("external_job_id", job.ExternalJobID).Logger()

	updates := make(chan poller.Update)
	p := poller.New(m.provider, append([]poller.Option{poller.WithLogger(m.log)}, m.pollOpts...)...)
	go p.Run(m.ctx, job.ID, job.ExternalJobID, updates)

	var final poller.Update
	for u := range updates {
		if u.Terminal() {
			final = u
			continue
		}
		// A queued remote batch is still PROCESSING locally.
		status := u.Status
		if status == internal.StatusPending {
			status = internal.StatusProcessing
		}
		m.apply(m.ctx, w, func(j *internal.BatchJob) {
			j.Status = status
			j.Progress = u.Progress
		})
	}

	if final.Status != internal.StatusCompleted {
		log.Warn().Str("error", final.Error).Msg("job failed")
		m.apply(m.ctx, w, func(j *internal.BatchJob) {
			j.Status = internal.StatusFailed
			j.Progress = final.Progress
			j.Error = final.Error
		})
		return
	}

	m.complete(log, w, final.OutputRef, lc)
}

// complete downloads, reconciles and restores the result, records it and
// runs the output writer.
func (m *Manager) complete(log zerolog.Logger, w *store.Writer, outputRef string, lc lifecycle) {
	ctx := m.ctx

	artifact, err := m.provider.DownloadArtifact(ctx, outputRef)
	if err != nil {
		log.Error().Err(err).Str("output_ref", outputRef).Msg("result download failed")
		m.apply(ctx, w, func(j *internal.BatchJob) {
			j.Status = internal.StatusFailed
			j.OutputRef = outputRef
			j.Error = fmt.Sprintf("download results: %v", err)
		})
		return
	}

	res := m.reconciler.Reconcile(artifact, lc.chunks)
	lines := m.reconciler.Restore(res, lc.tagMaps)
	log.Info().Int("lines", len(lines)).Int("anomalies", res.Anomalies).Msg("results reconciled")
	m.check(log, lc.chunks, lines, res.Marker, w.Job().TargetLang)

	m.apply(ctx, w, func(j *internal.BatchJob) {
		j.Status = internal.StatusCompleted
		j.Progress = 100
		j.OutputRef = outputRef
		j.Translations = lines
	})
	if lc.output == nil {
		return
	}

	path, err := lc.output.WriteOutput(ctx, w.Job(), lines)
	if err != nil {
		log.Error().Err(err).Msg("output write failed")
		m.apply(ctx, w, func(j *internal.BatchJob) {
			j.Status = internal.StatusCompletedWithErrors
			j.Error = joinError(j.Error, fmt.Sprintf("Results obtained, but failed to write output: %v", err))
		})
		return
	}
	m.apply(ctx, w, func(j *internal.BatchJob) { j.OutputPath = path })
}

func (m *Manager) check(log zerolog.Logger, chunks []internal.Chunk, lines []string, marker []bool, target string) {
	if m.validator == nil {
		return
	}
	var source []string
	for _, c := range chunks {
		source = append(source, c.OriginalLines...)
	}
	issues := m.validator.Check(source, lines, marker, target)
	for _, is := range issues {
		metrics.QualityIssue(is.Kind)
		log.Warn().Int("line", is.Line).Str("kind", is.Kind).Msg(is.Detail)
	}
	if len(issues) > 0 {
		log.Warn().Int("issues", len(issues)).Msg("translation checks flagged lines")
	}
}

// apply persists one change and notifies observers.
func (m *Manager) apply(ctx context.Context, w *store.Writer, fn func(*internal.BatchJob)) {
	if ctx.Err() != nil {
		// The record must still reach a terminal state during shutdown.
		ctx = context.Background()
	}
	if err := w.Update(ctx, fn); err != nil {
		m.log.Error().Err(err).Str("job_id", w.ID()).Msg("job update rejected")
		return
	}
	job := w.Job()
	ev := internal.JobEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
		OutputRef: job.OutputRef,
		At:        job.UpdatedAt,
	}
	for _, o := range m.observers {
		o(ev)
	}
}

func (m *Manager) finish(w *store.Writer, h *Handle, start time.Time) {
	job := w.Job()
	metrics.JobFinished(string(job.Status), start)
	m.log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Dur("elapsed", time.Since(start)).Msg("job finished")
	w.Release()
	m.mu.Lock()
	delete(m.handles, h.id)
	m.mu.Unlock()
	close(h.done)
}

// Get returns a snapshot of a job record.
func (m *Manager) Get(ctx context.Context, id string) (*internal.BatchJob, error) {
	return m.store.Get(ctx, id)
}

// List returns recent jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]internal.BatchJob, error) {
	return m.store.List(ctx, limit)
}

// Close stops polling for every running job and waits for their owners to
// record a terminal status.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func joinError(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
