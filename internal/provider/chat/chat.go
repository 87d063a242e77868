// Package chat sends batch manifests to an OpenAI-compatible chat completions
// endpoint one request at a time. It covers local Ollama servers and hosted
// routers such as OpenRouter.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/provider/emulator"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultTimeout = 120 * time.Second

	maxResponseBytes = 16 << 20
)

// Backend implements emulator.Backend.
type Backend struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// Option configures a Backend.
type Option func(*Backend)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithModel overrides the model named in every manifest request.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// New returns a backend for emulator.New. apiKey may be empty for servers
// without authentication.
func New(baseURL, apiKey string, opts ...Option) *Backend {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	b := &Backend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return "chat"
}

// Start needs nothing from the metadata: the prompt already names both
// languages.
func (b *Backend) Start(map[string]string) (emulator.CompleteFunc, error) {
	return b.complete, nil
}

type chatRequest struct {
	provider.ChatBody
	Stream bool `json:"stream"`
}

func (b *Backend) complete(ctx context.Context, r provider.Request) provider.Result {
	body := r.Body
	if b.model != "" {
		body.Model = b.model
	}

	jsonData, err := json.Marshal(chatRequest{ChatBody: body})
	if err != nil {
		return emulator.Failure(r.CustomID, http.StatusBadRequest, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return emulator.Failure(r.CustomID, http.StatusBadRequest, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return emulator.Failure(r.CustomID, http.StatusBadGateway, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return emulator.Failure(r.CustomID, http.StatusBadGateway, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return emulator.Failure(r.CustomID, resp.StatusCode, errorFrom(resp.StatusCode, raw))
	}
	if !json.Valid(raw) {
		return emulator.Failure(r.CustomID, http.StatusBadGateway, errors.New("response is not JSON"))
	}
	return provider.Result{
		CustomID: r.CustomID,
		Response: &provider.Response{StatusCode: resp.StatusCode, Body: raw},
	}
}

// errorFrom extracts the message of an error body. Servers disagree on
// whether "error" is an object or a plain string.
func errorFrom(status int, raw []byte) error {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Error) > 0 {
		var eb provider.ErrorBody
		if json.Unmarshal(body.Error, &eb) == nil && eb.Message != "" {
			return fmt.Errorf("API returned status %d: %s", status, eb.Message)
		}
		var msg string
		if json.Unmarshal(body.Error, &msg) == nil && msg != "" {
			return fmt.Errorf("API returned status %d: %s", status, msg)
		}
	}
	return fmt.Errorf("API returned status %d", status)
}
