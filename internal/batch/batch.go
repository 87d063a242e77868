// Package batch serializes chunks into a single manifest and submits it to a
// provider as one remote job.
package batch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/chunker"
	"github.com/valpere/gameloc/internal/provider"
)

// DefaultTemperature keeps the model close to literal translation.
const DefaultTemperature = 0.1

// Options describes one submission.
type Options struct {
	Model       string
	Temperature float64
	SourceLang  string
	TargetLang  string
}

// Submission identifies a created remote job.
type Submission struct {
	ArtifactID string
	ExternalID string
	Requests   int
}

// Submitter performs the upload and create round trips.
type Submitter struct {
	provider provider.Provider
	log      zerolog.Logger
}

// New returns a Submitter for p.
func New(p provider.Provider, log zerolog.Logger) *Submitter {
	return &Submitter{provider: p, log: log}
}

// BuildManifest renders one chat-completion request per chunk, keyed by the
// chunk's correlation id.
func BuildManifest(chunks []internal.Chunk, o Options) []provider.Request {
	reqs := make([]provider.Request, len(chunks))
	for i, c := range chunks {
		reqs[i] = provider.Request{
			CustomID: c.CorrelationID,
			Method:   http.MethodPost,
			URL:      provider.ChatCompletionsEndpoint,
			Body: provider.ChatBody{
				Model: o.Model,
				Messages: []provider.Message{
					{Role: "system", Content: SystemPrompt(o.SourceLang, o.TargetLang, c.ExpectedCount())},
					{Role: "user", Content: chunker.JoinPayload(c.ProtectedLines)},
				},
				Temperature: o.Temperature,
			},
		}
	}
	return reqs
}

// Submit uploads the manifest for chunks and creates one remote job over it.
// Either step failing fails the whole submission; nothing is retried.
func (s *Submitter) Submit(ctx context.Context, jobID string, chunks []internal.Chunk, o Options) (*Submission, error) {
	if len(chunks) == 0 {
		return nil, internal.Invalid("lines", "nothing to translate")
	}

	data, err := provider.EncodeLines(BuildManifest(chunks, o))
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}

	artifactID, err := s.provider.UploadArtifact(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}

	externalID, err := s.provider.CreateBatch(ctx, artifactID, map[string]string{
		provider.MetaJobID:      jobID,
		provider.MetaSourceLang: o.SourceLang,
		provider.MetaTargetLang: o.TargetLang,
	})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	s.log.Info().
		Str("job_id", jobID).
		Str("external_job_id", externalID).
		Str("provider", s.provider.Name()).
		Int("chunks", len(chunks)).
		Int("bytes", len(data)).
		Msg("batch submitted")

	return &Submission{ArtifactID: artifactID, ExternalID: externalID, Requests: len(chunks)}, nil
}
