// Package google translates batch manifests with the synchronous Google Cloud
// Translation API behind the emulated batch contract.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/gameloc/internal/chunker"
	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/provider/emulator"
)

// Translator is the subset of *translate.Client the backend needs.
type Translator interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
}

// Backend implements emulator.Backend.
type Backend struct {
	tr     Translator
	closer func() error
}

// New dials Google Cloud Translation. An empty credentials path uses
// application default credentials.
func New(ctx context.Context, credentials, project string, opts ...emulator.Option) (*emulator.Emulator, error) {
	var copts []option.ClientOption
	if credentials != "" {
		copts = append(copts, option.WithCredentialsFile(credentials))
	}
	if project != "" {
		copts = append(copts, option.WithQuotaProject(project))
	}
	client, err := translate.NewClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate client: %w", err)
	}
	return emulator.New(&Backend{tr: client, closer: client.Close}, opts...), nil
}

// NewWithTranslator builds an emulator around any Translator.
func NewWithTranslator(tr Translator, opts ...emulator.Option) *emulator.Emulator {
	return emulator.New(&Backend{tr: tr}, opts...)
}

func (b *Backend) Name() string {
	return "google"
}

func (b *Backend) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// Start reads the languages of the batch from its metadata.
func (b *Backend) Start(metadata map[string]string) (emulator.CompleteFunc, error) {
	target, err := language.Parse(metadata[provider.MetaTargetLang])
	if err != nil {
		return nil, fmt.Errorf("invalid target_lang: %w", err)
	}
	opts := &translate.Options{Format: translate.Text}
	if src := metadata[provider.MetaSourceLang]; src != "" && src != "auto" {
		if tag, err := language.Parse(src); err == nil {
			opts.Source = tag
		}
	}

	return func(ctx context.Context, r provider.Request) provider.Result {
		lines := chunker.SplitPayload(r.UserContent())

		translations, err := b.tr.Translate(ctx, lines, target, opts)
		if err == nil && len(translations) != len(lines) {
			err = fmt.Errorf("expected %d translations, got %d", len(lines), len(translations))
		}
		if err != nil {
			return emulator.Failure(r.CustomID, http.StatusInternalServerError, err)
		}

		out := make([]string, len(translations))
		for i, t := range translations {
			out[i] = t.Text
		}
		return emulator.Success(r.CustomID, strings.Join(out, chunker.LineSeparator))
	}, nil
}
