// Package provider defines the contract of a remote batch translation
// provider and the line-delimited wire records exchanged with it.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/valpere/gameloc/internal"
)

// Fine-grained provider statuses.
const (
	StatusValidating = "validating"
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelling = "cancelling"
	StatusCancelled  = "cancelled"
	StatusExpired    = "expired"
)

// ChatCompletionsEndpoint is the endpoint every manifest request targets.
const ChatCompletionsEndpoint = "/v4/chat/completions"

// Metadata keys attached to a created batch.
const (
	MetaJobID      = "job_id"
	MetaSourceLang = "source_lang"
	MetaTargetLang = "target_lang"
)

// Provider is a remote batch translation service.
type Provider interface {
	Name() string
	// UploadArtifact stores a manifest and returns its artifact id.
	UploadArtifact(ctx context.Context, data []byte) (string, error)
	// CreateBatch starts one remote job over an uploaded artifact. metadata
	// is attached to the remote job as-is.
	CreateBatch(ctx context.Context, artifactID string, metadata map[string]string) (string, error)
	GetBatchStatus(ctx context.Context, externalID string) (*BatchStatus, error)
	DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error)
}

// BatchStatus is one status observation of a remote job.
type BatchStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Total        int    `json:"total"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	OutputFileID string `json:"output_file_id,omitempty"`
	ErrorFileID  string `json:"error_file_id,omitempty"`
	Errors       string `json:"errors,omitempty"`
}

// MapStatus folds a provider status onto the coarse job states. Unknown
// values are treated as still running.
func MapStatus(status string) internal.JobStatus {
	switch status {
	case StatusValidating, StatusQueued:
		return internal.StatusPending
	case StatusCompleted:
		return internal.StatusCompleted
	case StatusFailed, StatusCancelled, StatusExpired:
		return internal.StatusFailed
	default:
		return internal.StatusProcessing
	}
}

// Progress derives a completion percentage from request counts.
func Progress(total, completed int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}

// StatusError is a non-2xx response from the provider.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: provider returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth waiting out: server errors, rate
// limiting and network failures. Other provider errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatBody is the body of a chat-completion request.
type ChatBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Request is one manifest line.
type Request struct {
	CustomID string   `json:"custom_id"`
	Method   string   `json:"method"`
	URL      string   `json:"url"`
	Body     ChatBody `json:"body"`
}

// UserContent returns the content of the first user message.
func (r Request) UserContent() string {
	for _, m := range r.Body.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

// ErrorBody carries a provider diagnostic.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the per-request response embedded in a result record. Body is
// kept raw so malformed bodies can be told apart from failed requests.
type Response struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id,omitempty"`
	Body       json.RawMessage `json:"body"`
}

// Result is one line of a result artifact.
type Result struct {
	ID       string     `json:"id,omitempty"`
	CustomID string     `json:"custom_id"`
	Response *Response  `json:"response,omitempty"`
	Error    *ErrorBody `json:"error,omitempty"`
}

// CompletionBody is the expected shape of Response.Body.
type CompletionBody struct {
	Choices []Choice   `json:"choices"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// Choice is one completion choice.
type Choice struct {
	Index   int      `json:"index"`
	Message *Message `json:"message"`
}

// EncodeLines renders values as newline-delimited JSON.
func EncodeLines[T any](values []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encode line %d: %w", i+1, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses a newline-delimited manifest. Blank lines are skipped.
func DecodeManifest(data []byte) ([]Request, error) {
	var out []Request
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r Request
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return out, nil
}
