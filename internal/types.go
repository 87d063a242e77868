package internal

import "time"

// JobStatus is the coarse lifecycle state of a BatchJob exposed to callers.
type JobStatus string

const (
	StatusPending             JobStatus = "pending"
	StatusProcessing          JobStatus = "processing"
	StatusCompleted           JobStatus = "completed"
	StatusCompletedWithErrors JobStatus = "completed_with_errors"
	StatusFailed              JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected from s.
// COMPLETED is terminal for the poller even though the write step may still
// downgrade it to COMPLETED_WITH_ERRORS.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job in s may be updated to next. Pending and
// processing may repeat for progress updates but never move back to pending.
// A completed job may still record its output or be downgraded; failed and
// completed_with_errors are final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next != ""
	case StatusProcessing:
		return next != "" && next != StatusPending
	case StatusCompleted:
		return next == StatusCompleted || next == StatusCompletedWithErrors
	}
	return false
}

// TagMatch is one recognized markup span in a source line.
type TagMatch struct {
	OriginalTag string `json:"original_tag"`
	Placeholder string `json:"placeholder"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	PatternName string `json:"pattern_name"`
	Priority    int    `json:"priority"`
}

// ProtectedText is a source line with its tags replaced by placeholders.
type ProtectedText struct {
	Text   string              `json:"protected_string"`
	TagMap map[string]TagMatch `json:"tag_map"`
}

// Chunk is a contiguous group of lines submitted as one provider request.
type Chunk struct {
	CorrelationID  string   `json:"correlation_id"`
	OriginalLines  []string `json:"original_lines"`
	ProtectedLines []string `json:"protected_lines"`
}

// ExpectedCount is the authoritative line count used to repair responses.
func (c Chunk) ExpectedCount() int {
	return len(c.OriginalLines)
}

// BatchJob is the per-job lifecycle record held by the job store.
type BatchJob struct {
	ID            string    `json:"job_id"`
	ExternalJobID string    `json:"external_job_id,omitempty"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress_percentage"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	Model         string    `json:"model,omitempty"`
	ChunkSize     int       `json:"chunk_size"`
	ChunkCount    int       `json:"chunk_count"`
	OriginalCount int       `json:"original_texts_count"`
	OutputRef     string    `json:"output_ref,omitempty"`
	OutputPath    string    `json:"output_path,omitempty"`
	Translations  []string  `json:"translations,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobEvent is delivered to observers every time the owner of a job applies
// a status update to its record.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	OutputRef string    `json:"output_ref,omitempty"`
	At        time.Time `json:"at"`
}
