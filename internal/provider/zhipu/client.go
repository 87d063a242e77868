// Package zhipu implements the provider contract against the Zhipu AI batch
// API: multipart file upload, batch creation, status polling and result
// download, each authenticated with a short-lived signed token.
package zhipu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal/provider"
)

const (
	DefaultBaseURL = "https://open.bigmodel.cn/api/paas"
	DefaultModel   = "glm-4-plus"

	manifestFilename   = "batch_requests.jsonl"
	completionWindow   = "24h"
	maxErrorBodyLength = 2048
)

// Client talks to the Zhipu batch API.
type Client struct {
	baseURL string
	tokens  *TokenSource
	client  *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for baseURL using tokens for authentication.
func New(baseURL string, tokens *TokenSource, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return "zhipu"
}

type fileObject struct {
	ID string `json:"id"`
}

// UploadArtifact uploads a manifest with purpose=batch.
func (c *Client) UploadArtifact(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, manifestFilename))
	hdr.Set("Content-Type", "application/jsonl")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	var out fileObject
	if err := c.do(ctx, "upload", http.MethodPost, "/v4/files", mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload: response carried no file id")
	}
	c.log.Debug().Str("file_id", out.ID).Int("bytes", len(data)).Msg("manifest uploaded")
	return out.ID, nil
}

type createBatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type batchObject struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	OutputFileID  string          `json:"output_file_id"`
	ErrorFileID   string          `json:"error_file_id"`
	Errors        json.RawMessage `json:"errors"`
	RequestCounts *struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
}

// CreateBatch creates a chat-completion batch over an uploaded manifest.
func (c *Client) CreateBatch(ctx context.Context, artifactID string, metadata map[string]string) (string, error) {
	payload, err := json.Marshal(createBatchRequest{
		InputFileID:      artifactID,
		Endpoint:         provider.ChatCompletionsEndpoint,
		CompletionWindow: completionWindow,
		Metadata:         metadata,
	})
	if err != nil {
		return "", fmt.Errorf("create batch: %w", err)
	}

	var out batchObject
	if err := c.do(ctx, "create batch", http.MethodPost, "/v4/batches", "application/json", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create batch: response carried no batch id")
	}
	return out.ID, nil
}

// GetBatchStatus fetches the current state of a batch.
func (c *Client) GetBatchStatus(ctx context.Context, externalID string) (*provider.BatchStatus, error) {
	var out batchObject
	if err := c.do(ctx, "batch status", http.MethodGet, "/v4/batches/"+externalID, "", nil, &out); err != nil {
		return nil, err
	}
	st := &provider.BatchStatus{
		ID:           out.ID,
		Status:       out.Status,
		OutputFileID: out.OutputFileID,
		ErrorFileID:  out.ErrorFileID,
		Errors:       rawErrors(out.Errors),
	}
	if out.RequestCounts != nil {
		st.Total = out.RequestCounts.Total
		st.Completed = out.RequestCounts.Completed
		st.Failed = out.RequestCounts.Failed
	}
	return st, nil
}

// DownloadArtifact returns the raw content of a file.
func (c *Client) DownloadArtifact(ctx context.Context, artifactID string) ([]byte, error) {
	resp, err := c.send(ctx, "download", http.MethodGet, "/v4/files/"+artifactID+"/content", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return data, nil
}

// do sends a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, op, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// send performs an authenticated request and turns non-2xx responses into
// *provider.StatusError.
func (c *Client) send(ctx context.Context, op, method, path, contentType string, body io.Reader) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: sign token: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return nil, &provider.StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func rawErrors(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return s
}
