// Package emulator serves the batch provider contract on top of a
// synchronous backend. Uploaded manifests are kept in memory, each created
// batch is worked off by a background goroutine and the result artifact uses
// the same record shape a remote batch service returns.
package emulator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal/provider"
)

// CompleteFunc answers one manifest request.
type CompleteFunc func(ctx context.Context, r provider.Request) provider.Result

// Backend turns the metadata of a new batch into a CompleteFunc. An error
// from Start rejects the batch.
type Backend interface {
	Name() string
	Start(metadata map[string]string) (CompleteFunc, error)
}

type batchState struct {
	status    string
	total     int
	completed int
	failed    int
	outputID  string
	errors    string
}

// Emulator implements provider.Provider.
type Emulator struct {
	backend Backend
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	files   map[string][]byte
	batches map[string]*batchState
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithLogger sets the emulator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Emulator) { e.log = l }
}

func New(b Backend, opts ...Option) *Emulator {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Emulator{
		backend: b,
		log:     zerolog.Nop(),
		ctx:     ctx,
		cancel:  cancel,
		files:   make(map[string][]byte),
		batches: make(map[string]*batchState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emulator) Name() string {
	return e.backend.Name()
}

// Close stops background work and closes the backend when it is an io.Closer.
func (e *Emulator) Close() error {
	e.cancel()
	e.wg.Wait()
	if c, ok := e.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Emulator) UploadArtifact(ctx context.Context, data []byte) (string, error) {
	id := "file-" + uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)

	e.mu.Lock()
	e.files[id] = buf
	e.mu.Unlock()
	return id, nil
}

func (e *Emulator) CreateBatch(ctx context.Context, artifactID string, metadata map[string]string) (string, error) {
	e.mu.Lock()
	data, ok := e.files[artifactID]
	e.mu.Unlock()
	if !ok {
		return "", &provider.StatusError{Op: "create batch", StatusCode: http.StatusNotFound, Body: "unknown input file " + artifactID}
	}

	reqs, err := provider.DecodeManifest(data)
	if err != nil {
		return "", &provider.StatusError{Op: "create batch", StatusCode: http.StatusBadRequest, Body: err.Error()}
	}

	complete, err := e.backend.Start(metadata)
	if err != nil {
		return "", &provider.StatusError{Op: "create batch", StatusCode: http.StatusBadRequest, Body: err.Error()}
	}

	id := "batch-" + uuid.NewString()
	e.mu.Lock()
	e.batches[id] = &batchState{status: provider.StatusValidating, total: len(reqs)}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.process(id, reqs, complete)
	}()
	return id, nil
}

func (e *Emulator) GetBatchStatus(ctx context.Context, externalID string) (*provider.BatchStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.batches[externalID]
	if !ok {
		return nil, &provider.StatusError{Op: "batch status", StatusCode: http.StatusNotFound, Body: "unknown batch " + externalID}
	}
	return &provider.BatchStatus{
		ID:           externalID,
		Status:       b.status,
		Total:        b.total,
		Completed:    b.completed,
		Failed:       b.failed,
		OutputFileID: b.outputID,
		Errors:       b.errors,
	}, nil
}

func (e *Emulator) DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.files[artifactID]
	if !ok {
		return nil, &provider.StatusError{Op: "download", StatusCode: http.StatusNotFound, Body: "unknown file " + artifactID}
	}
	return data, nil
}

func (e *Emulator) process(id string, reqs []provider.Request, complete CompleteFunc) {
	e.update(id, func(b *batchState) { b.status = provider.StatusInProgress })

	results := make([]provider.Result, 0, len(reqs))
	for _, r := range reqs {
		if e.ctx.Err() != nil {
			e.update(id, func(b *batchState) {
				b.status = provider.StatusCancelled
				b.errors = "emulator shut down"
			})
			return
		}

		res := complete(e.ctx, r)
		results = append(results, res)
		ok := res.Error == nil && res.Response != nil && res.Response.StatusCode == http.StatusOK
		if !ok {
			e.log.Warn().Str("correlation_id", r.CustomID).Msg("emulated request failed")
		}
		e.update(id, func(b *batchState) {
			if ok {
				b.completed++
			} else {
				b.failed++
			}
		})
	}

	e.update(id, func(b *batchState) { b.status = provider.StatusFinalizing })

	data, err := provider.EncodeLines(results)
	if err != nil {
		e.update(id, func(b *batchState) {
			b.status = provider.StatusFailed
			b.errors = err.Error()
		})
		return
	}
	outID := "file-" + uuid.NewString()

	e.mu.Lock()
	e.files[outID] = data
	b := e.batches[id]
	b.outputID = outID
	b.status = provider.StatusCompleted
	e.mu.Unlock()

	e.log.Debug().Str("backend", e.backend.Name()).Str("external_job_id", id).Int("requests", len(reqs)).Msg("emulated batch completed")
}

func (e *Emulator) update(id string, fn func(*batchState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.batches[id]; ok {
		fn(b)
	}
}

// Success builds a result record holding one assistant message.
func Success(customID, content string) provider.Result {
	body, _ := json.Marshal(provider.CompletionBody{
		Choices: []provider.Choice{{Message: &provider.Message{Role: "assistant", Content: content}}},
	})
	return provider.Result{
		CustomID: customID,
		Response: &provider.Response{StatusCode: http.StatusOK, Body: body},
	}
}

// Failure builds a result record whose body carries err.
func Failure(customID string, statusCode int, err error) provider.Result {
	body, _ := json.Marshal(provider.CompletionBody{Error: &provider.ErrorBody{Message: err.Error()}})
	return provider.Result{
		CustomID: customID,
		Response: &provider.Response{StatusCode: statusCode, Body: body},
	}
}
