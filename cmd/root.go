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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/gameloc/internal/config"
	"github.com/valpere/gameloc/internal/logging"
	"github.com/valpere/gameloc/internal/metrics"
)

var version = "0.1.0"

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "gameloc",
	Short: "Batch translation for game localization",
	Long: `A CLI application that translates game text through a provider batch API.

Markup such as {$playerName}, <color=red> or [item:sword_01] is hidden behind
placeholders before translation and restored afterwards. Lines are grouped into
chunks, submitted as a single remote batch, polled until done and reassembled
in their original order.

Supported providers: Zhipu AI batch API, Google Cloud Translation, and any
OpenAI-compatible chat completions server (Ollama, OpenRouter)

Use "gameloc translate --help" for translation options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Init(v, cfgFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./gameloc.yaml or $HOME/.config/gameloc/gameloc.yaml)")
	pf.String("provider", config.ProviderZhipu, "Batch provider: zhipu, google or chat")
	pf.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.String("store-dsn", "", "sqlite DSN for job records (default in-memory)")

	_ = v.BindPFlag("provider", pf.Lookup("provider"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("store.dsn", pf.Lookup("store-dsn"))

	metrics.MustRegister()
}

// loadConfig validates the merged configuration and builds the logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.Format), nil
}
