// Package store keeps batch job records in sqlite. Every job has exactly one
// Writer, handed out by Create; all other access is read-only.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valpere/gameloc/internal"
)

// DefaultDSN is a process-lifetime in-memory database.
const DefaultDSN = "file:gameloc?mode=memory&cache=shared"

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrReleased          = errors.New("writer released")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Store struct {
	db *sql.DB

	mu    sync.Mutex
	owned map[string]bool
}

func New(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the shared in-memory database alive and
	// serializes sqlite writes across job owners.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, owned: make(map[string]bool)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_jobs (
		id TEXT PRIMARY KEY,
		external_job_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		chunk_size INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		original_count INTEGER NOT NULL DEFAULT 0,
		output_ref TEXT NOT NULL DEFAULT '',
		output_path TEXT NOT NULL DEFAULT '',
		translations TEXT NOT NULL DEFAULT '[]',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batch_jobs_created ON batch_jobs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Create inserts job in the pending state and returns the only Writer for it.
func (s *Store) Create(ctx context.Context, job internal.BatchJob) (*Writer, error) {
	if job.ID == "" {
		return nil, internal.Invalid("job_id", "must not be empty")
	}
	now := time.Now().UTC()
	job.Status = internal.StatusPending
	job.CreatedAt, job.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned[job.ID] {
		return nil, fmt.Errorf("%w: %s", ErrExists, job.ID)
	}

	translations, err := json.Marshal(nonNil(job.Translations))
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, external_job_id, status, progress, source_lang, target_lang, model,
			chunk_size, chunk_count, original_count, output_ref, output_path, translations, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ExternalJobID, string(job.Status), job.Progress, job.SourceLang, job.TargetLang, job.Model,
		job.ChunkSize, job.ChunkCount, job.OriginalCount, job.OutputRef, job.OutputPath, string(translations), job.Error,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job %s: %w", job.ID, err)
	}

	s.owned[job.ID] = true
	return &Writer{store: s, job: job}, nil
}

const selectJob = `SELECT id, external_job_id, status, progress, source_lang, target_lang, model,
	chunk_size, chunk_count, original_count, output_ref, output_path, translations, error, created_at, updated_at
	FROM batch_jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*internal.BatchJob, error) {
	var (
		job          internal.BatchJob
		status       string
		translations string
	)
	err := row.Scan(&job.ID, &job.ExternalJobID, &status, &job.Progress, &job.SourceLang, &job.TargetLang, &job.Model,
		&job.ChunkSize, &job.ChunkCount, &job.OriginalCount, &job.OutputRef, &job.OutputPath, &translations, &job.Error,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = internal.JobStatus(status)
	if err := json.Unmarshal([]byte(translations), &job.Translations); err != nil {
		return nil, fmt.Errorf("decode translations of %s: %w", job.ID, err)
	}
	if len(job.Translations) == 0 {
		job.Translations = nil
	}
	return &job, nil
}

// Get returns a snapshot of a job.
func (s *Store) Get(ctx context.Context, id string) (*internal.BatchJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, err
}

// List returns up to limit jobs, newest first, without their translations.
// A non-positive limit returns every job.
func (s *Store) List(ctx context.Context, limit int) ([]internal.BatchJob, error) {
	query := selectJob + ` ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []internal.BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		job.Translations = nil
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Writer is the single mutation handle of one job. It is not safe for
// concurrent use; it belongs to the goroutine that owns the job.
type Writer struct {
	store    *Store
	job      internal.BatchJob
	released bool
}

// ID returns the job id.
func (w *Writer) ID() string {
	return w.job.ID
}

// Job returns the writer's current view of the record.
func (w *Writer) Job() internal.BatchJob {
	return w.job
}

// Update applies fn to a copy of the record, checks the status transition and
// persists the result.
func (w *Writer) Update(ctx context.Context, fn func(job *internal.BatchJob)) error {
	if w.released {
		return ErrReleased
	}

	next := w.job
	next.Translations = append([]string(nil), w.job.Translations...)
	fn(&next)
	next.ID, next.CreatedAt = w.job.ID, w.job.CreatedAt

	if !w.job.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.job.Status, next.Status)
	}
	next.UpdatedAt = time.Now().UTC()

	translations, err := json.Marshal(nonNil(next.Translations))
	if err != nil {
		return err
	}
	_, err = w.store.db.ExecContext(ctx, `
		UPDATE batch_jobs SET external_job_id = ?, status = ?, progress = ?, model = ?, chunk_size = ?,
			chunk_count = ?, original_count = ?, output_ref = ?, output_path = ?, translations = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		next.ExternalJobID, string(next.Status), next.Progress, next.Model, next.ChunkSize,
		next.ChunkCount, next.OriginalCount, next.OutputRef, next.OutputPath, string(translations), next.Error, next.UpdatedAt,
		next.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", next.ID, err)
	}

	w.job = next
	return nil
}

// Release gives up the writer. The record stays readable.
func (w *Writer) Release() {
	if w.released {
		return
	}
	w.released = true
	w.store.mu.Lock()
	delete(w.store.owned, w.job.ID)
	w.store.mu.Unlock()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
