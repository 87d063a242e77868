/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal/config"
	"github.com/valpere/gameloc/internal/detector"
	"github.com/valpere/gameloc/internal/logging"
	"github.com/valpere/gameloc/internal/orchestrator"
	"github.com/valpere/gameloc/internal/poller"
	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/provider/chat"
	"github.com/valpere/gameloc/internal/provider/emulator"
	"github.com/valpere/gameloc/internal/provider/google"
	"github.com/valpere/gameloc/internal/provider/zhipu"
	"github.com/valpere/gameloc/internal/store"
	"github.com/valpere/gameloc/internal/tagprotect"
	"github.com/valpere/gameloc/internal/validator"
)

// buildProvider constructs the configured batch provider. The returned
// closer releases provider resources.
func buildProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (provider.Provider, func() error, error) {
	switch cfg.Provider {
	case config.ProviderZhipu:
		tokens, err := zhipu.NewTokenSource(cfg.Zhipu.APIKey, cfg.Zhipu.TokenTTL, cfg.Zhipu.RefreshBefore)
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("api_key", logging.Redact(cfg.Zhipu.APIKey)).Str("base_url", cfg.Zhipu.BaseURL).Msg("using zhipu batch API")
		c := zhipu.New(cfg.Zhipu.BaseURL, tokens, zhipu.WithLogger(log))
		return c, func() error { return nil }, nil

	case config.ProviderGoogle:
		e, err := google.New(ctx, cfg.Google.Credentials, cfg.Google.Project, emulator.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil

	case config.ProviderChat:
		log.Debug().Str("base_url", cfg.Chat.BaseURL).Str("model", cfg.Chat.Model).Msg("using chat completions server")
		b := chat.New(cfg.Chat.BaseURL, cfg.Chat.APIKey,
			chat.WithModel(cfg.Chat.Model),
			chat.WithHTTPClient(&http.Client{Timeout: cfg.Chat.Timeout}),
		)
		e := emulator.New(b, emulator.WithLogger(log))
		return e, e.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
}

// app is everything a command needs to run jobs.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	manager *orchestrator.Manager
	close   func()
}

func newApp(ctx context.Context, observers ...orchestrator.Observer) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	prov, closeProvider, err := buildProvider(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Store.DSN)
	if err != nil {
		closeProvider()
		return nil, err
	}

	tags := tagprotect.New(tagprotect.WithLogger(log))
	det := detector.New()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithTagEngine(tags),
		orchestrator.WithDetector(det),
		orchestrator.WithDefaults(cfg.Model(), cfg.Batch.Temperature, cfg.Batch.ChunkSize),
		orchestrator.WithPollerOptions(
			poller.WithInterval(cfg.Poll.Interval),
			poller.WithMaxAttempts(cfg.Poll.MaxAttempts),
		),
	}
	if cfg.Batch.Validate {
		opts = append(opts, orchestrator.WithValidator(validator.New(tags, det)))
	}
	for _, o := range observers {
		opts = append(opts, orchestrator.WithObserver(o))
	}
	m := orchestrator.New(prov, st, opts...)

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		manager: m,
		close: func() {
			m.Close()
			if err := closeProvider(); err != nil {
				log.Warn().Err(err).Msg("failed to close provider")
			}
			st.Close()
		},
	}, nil
}

// parsePatterns reads custom tag patterns given as "name:priority:regexp".
// The regexp may itself contain colons.
func parsePatterns(specs []string) ([]tagprotect.Pattern, error) {
	var out []tagprotect.Pattern
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("invalid pattern %q, want name:priority:regexp", s)
		}
		prio, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid priority in pattern %q: %w", s, err)
		}
		out = append(out, tagprotect.Pattern{Name: parts[0], Priority: prio, Expr: parts[2]})
	}
	return out, nil
}
