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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/gameloc/internal/tagprotect"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect tag protection patterns",
	Long: `List the built-in tag patterns and validate custom ones.

Patterns are applied by descending priority; a span claimed by a higher
priority pattern is never touched by a lower one.`,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in tag patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPRIORITY\tDESCRIPTION")
		for _, p := range tagprotect.DefaultPatterns() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Priority, tagprotect.Describe(p.Name))
		}
		return w.Flush()
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate name:priority:regexp...",
	Short: "Check custom tag patterns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns, err := parsePatterns(args)
		if err != nil {
			return err
		}
		if invalid := tagprotect.ValidatePatterns(patterns); len(invalid) > 0 {
			return fmt.Errorf("invalid patterns: %v", invalid)
		}
		fmt.Printf("All %d patterns are valid\n", len(patterns))
		return nil
	},
}

var patternsTestCmd = &cobra.Command{
	Use:   "test TEXT",
	Short: "Show how a line is protected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns, err := parsePatterns(patternSpecs)
		if err != nil {
			return err
		}
		protected, tags := tagprotect.New().Protect(args[0], patterns...)
		fmt.Println(protected)
		for i := range len(tags) {
			ph := tagprotect.Placeholder(i)
			fmt.Printf("  %s = %q (%s)\n", ph, tags[ph].OriginalTag, tags[ph].PatternName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd, patternsValidateCmd, patternsTestCmd)

	patternsTestCmd.Flags().StringArrayVar(&patternSpecs, "pattern", nil, "Custom tag pattern name:priority:regexp (repeatable)")
}
