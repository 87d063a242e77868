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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/orchestrator"
	"github.com/valpere/gameloc/internal/tabular"
)

var (
	inputFile    string
	outputFile   string
	sourceColumn string
	outputColumn string
	sourceLang   string
	targetLang   string
	patternSpecs []string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a column of a CSV sheet as one batch job",
	Long: `Translate one column of a CSV sheet through the configured batch provider.

Every row becomes one line. Lines are protected, chunked and submitted as a
single remote batch; the command then polls until the batch is done and writes
a copy of the sheet with the translations in --output-column.

Columns may be given by header name, letter (A, B, ...) or 0-based index.
Custom tag patterns use the form name:priority:regexp and may be repeated.

Example:
  gameloc translate -i dialogue.csv -c source_text -t de
  gameloc translate -i ui.csv -c B -t uk -o ui_uk.csv --pattern 'hotkey:95:\[\[[A-Z]+\]\]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		lines, err := tabular.ReadColumn(inputFile, sourceColumn)
		if err != nil {
			return err
		}
		patterns, err := parsePatterns(patternSpecs)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, func(ev internal.JobEvent) {
			fmt.Fprintf(os.Stderr, "Job %s: %s (%d%%)\n", ev.JobID, ev.Status, ev.Progress)
		})
		if err != nil {
			return err
		}
		defer a.close()

		h, err := a.manager.Submit(ctx, orchestrator.Request{
			Lines:          lines,
			SourceLang:     sourceLang,
			TargetLang:     targetLang,
			CustomPatterns: patterns,
			Output: &tabular.Writer{
				Source:       inputFile,
				OutputColumn: outputColumn,
				Output:       outputFile,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to submit job: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Submitted job %s with %d lines\n", h.ID(), len(lines))

		if err := h.Wait(ctx); err != nil {
			return fmt.Errorf("interrupted while waiting for job %s", h.ID())
		}

		job, err := a.manager.Get(context.Background(), h.ID())
		if err != nil {
			return err
		}
		switch job.Status {
		case internal.StatusCompleted:
			fmt.Printf("Successfully translated %d lines %s to %s\n", job.OriginalCount, job.SourceLang, job.TargetLang)
			fmt.Printf("Output written to %s\n", job.OutputPath)
			return nil
		case internal.StatusCompletedWithErrors:
			fmt.Printf("Translated %d lines %s to %s with errors: %s\n", job.OriginalCount, job.SourceLang, job.TargetLang, job.Error)
			return nil
		default:
			return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Error)
		}
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input CSV sheet (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output CSV (default <input>_translated.csv)")
	translateCmd.Flags().StringVarP(&sourceColumn, "column", "c", "source_text", "Column holding the source text")
	translateCmd.Flags().StringVar(&outputColumn, "output-column", tabular.DefaultOutputColumn, "Column to write translations into")
	translateCmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	translateCmd.Flags().StringVarP(&targetLang, "target", "t", "", "Target language code (required)")
	translateCmd.Flags().StringArrayVar(&patternSpecs, "pattern", nil, "Custom tag pattern name:priority:regexp (repeatable)")

	translateCmd.Flags().Int("chunk-size", 10, "Lines per batch request (1-200)")
	translateCmd.Flags().String("model", "glm-4-plus", "Zhipu model name")
	translateCmd.Flags().Duration("poll-interval", 0, "Status poll interval (default from config, 10s)")
	_ = v.BindPFlag("batch.chunk_size", translateCmd.Flags().Lookup("chunk-size"))
	_ = v.BindPFlag("zhipu.model", translateCmd.Flags().Lookup("model"))
	_ = v.BindPFlag("poll.interval", translateCmd.Flags().Lookup("poll-interval"))

	translateCmd.MarkFlagRequired("input")
	translateCmd.MarkFlagRequired("target")
}
