// Package tagprotect hides game markup (variables, rich-text tags, object
// links, format specifiers and similar spans) behind numbered placeholders
// (__TAG0__, __TAG1__, …) before text is sent to a translator, and puts the
// original markup back afterwards.
//
// Candidate spans from every pattern are collected first and then selected
// greedily by descending priority, so a specific pattern such as {$name}
// always wins over the generic punctuation classes that overlap it.
package tagprotect

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
)

const (
	placeholderPrefix = "__TAG"
	placeholderSuffix = "__"
)

// Pattern is one named, prioritized regular expression. Higher priority
// claims a span before lower priority patterns are considered.
type Pattern struct {
	Name     string `json:"name" mapstructure:"name"`
	Expr     string `json:"pattern" mapstructure:"pattern"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

type compiled struct {
	name     string
	re       *regexp.Regexp
	priority int
}

// Engine applies the pattern registry. It is safe for concurrent use.
type Engine struct {
	registry []compiled
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for warnings about invalid custom patterns
// and placeholders lost during translation.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an Engine over DefaultPatterns.
func New(opts ...Option) *Engine {
	e := &Engine{log: zerolog.Nop()}
	for _, p := range DefaultPatterns() {
		e.registry = append(e.registry, compiled{
			name:     p.Name,
			re:       regexp.MustCompile(withDotAll(p.Expr)),
			priority: p.Priority,
		})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placeholder returns the token used for the i-th tag of a line.
func Placeholder(i int) string {
	return placeholderPrefix + strconv.Itoa(i) + placeholderSuffix
}

// placeholderIndex parses the numeric suffix of a placeholder token.
func placeholderIndex(ph string) (int, bool) {
	if !strings.HasPrefix(ph, placeholderPrefix) || !strings.HasSuffix(ph, placeholderSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(ph[len(placeholderPrefix) : len(ph)-len(placeholderSuffix)])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Protect replaces every selected tag span in text with a placeholder and
// returns the substituted text plus a placeholder → TagMatch map. Custom
// patterns are applied on top of the registry; a custom pattern with the same
// name as a registry entry replaces it. Invalid custom expressions are logged
// and skipped.
//
// Protect never fails: empty input, or any unexpected internal failure,
// yields the original text and an empty map.
func (e *Engine) Protect(text string, custom ...Pattern) (protected string, tagMap map[string]internal.TagMatch) {
	if text == "" {
		return text, map[string]internal.TagMatch{}
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("tag protection failed, returning text unchanged")
			protected, tagMap = text, map[string]internal.TagMatch{}
		}
	}()

	tags := e.selectTags(text, e.patternsWith(custom))

	tagMap = make(map[string]internal.TagMatch, len(tags))
	for i := range tags {
		tags[i].Placeholder = Placeholder(i)
		tagMap[tags[i].Placeholder] = tags[i]
	}

	// Right to left so earlier offsets stay valid.
	out := text
	for i := len(tags) - 1; i >= 0; i-- {
		t := tags[i]
		out = out[:t.Start] + t.Placeholder + out[t.End:]
	}

	if len(tags) > 0 {
		e.log.Debug().Int("tags", len(tags)).Strs("patterns", patternNames(tags)).Msg("protected tags")
	}
	return out, tagMap
}

// Restore substitutes placeholders in text back with the original tags.
// Placeholders missing from text are logged and skipped; Restore always
// returns a best-effort string.
func (e *Engine) Restore(text string, tagMap map[string]internal.TagMatch) string {
	if text == "" || len(tagMap) == 0 {
		return text
	}

	keys := make([]string, 0, len(tagMap))
	for ph := range tagMap {
		keys = append(keys, ph)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := placeholderIndex(keys[i])
		b, _ := placeholderIndex(keys[j])
		return a < b
	})

	var (
		pairs   []string
		missing []string
	)
	for _, ph := range keys {
		if !strings.Contains(text, ph) {
			missing = append(missing, ph)
			continue
		}
		pairs = append(pairs, ph, tagMap[ph].OriginalTag)
	}

	if len(missing) > 0 {
		e.log.Warn().Strs("placeholders", missing).Int("restored", len(pairs)/2).Msg("placeholders missing from translated text")
	}
	if len(pairs) == 0 {
		return text
	}

	// A single pass keeps a restored tag from being rewritten by a later pair.
	return strings.NewReplacer(pairs...).Replace(text)
}

// Extract returns the tag substrings found in text, left to right, using the
// same non-overlap selection as Protect. It has no side effects.
func (e *Engine) Extract(text string) []string {
	if text == "" {
		return nil
	}
	tags := e.selectTags(text, e.registry)
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.OriginalTag
	}
	return out
}

// Strip removes every tag span from text, leaving the free text around it.
// Adjacent text is separated by a single space.
func (e *Engine) Strip(text string, custom ...Pattern) string {
	tags := e.selectTags(text, e.patternsWith(custom))
	if len(tags) == 0 {
		return text
	}
	var sb strings.Builder
	last := 0
	for _, t := range tags {
		sb.WriteString(text[last:t.Start])
		sb.WriteByte(' ')
		last = t.End
	}
	sb.WriteString(text[last:])
	return strings.Join(strings.Fields(sb.String()), " ")
}

// patternsWith merges custom patterns into a copy of the registry.
func (e *Engine) patternsWith(custom []Pattern) []compiled {
	if len(custom) == 0 {
		return e.registry
	}

	merged := make([]compiled, len(e.registry))
	copy(merged, e.registry)

	for _, p := range custom {
		re, err := regexp.Compile(withDotAll(p.Expr))
		if err != nil {
			e.log.Warn().Err(err).Str("pattern", p.Name).Str("expr", p.Expr).Msg("skipping invalid custom tag pattern")
			continue
		}
		c := compiled{name: p.Name, re: re, priority: p.Priority}

		replaced := false
		for i := range merged {
			if merged[i].name == p.Name {
				merged[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, c)
		}
	}
	return merged
}

// selectTags collects every candidate match, keeps the highest-priority
// non-overlapping subset and returns it ordered by start offset.
func (e *Engine) selectTags(text string, patterns []compiled) []internal.TagMatch {
	var candidates []internal.TagMatch
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if loc[1] <= loc[0] {
				continue // zero-width matches protect nothing
			}
			candidates = append(candidates, internal.TagMatch{
				OriginalTag: text[loc[0]:loc[1]],
				Start:       loc[0],
				End:         loc[1],
				PatternName: p.name,
				Priority:    p.priority,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Start < candidates[j].Start
	})

	var selected []internal.TagMatch
	for _, c := range candidates {
		if overlapsAny(c, selected) {
			continue
		}
		selected = append(selected, c)
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Start < selected[j].Start
	})
	return selected
}

func overlapsAny(c internal.TagMatch, selected []internal.TagMatch) bool {
	for _, s := range selected {
		if c.Start < s.End && c.End > s.Start {
			return true
		}
	}
	return false
}

func patternNames(tags []internal.TagMatch) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range tags {
		if !seen[t.PatternName] {
			seen[t.PatternName] = true
			names = append(names, t.PatternName)
		}
	}
	return names
}

// ValidatePatterns returns the names of patterns whose expressions do not
// compile, in input order.
func ValidatePatterns(patterns []Pattern) []string {
	var invalid []string
	for _, p := range patterns {
		if _, err := regexp.Compile(withDotAll(p.Expr)); err != nil {
			invalid = append(invalid, p.Name)
		}
	}
	return invalid
}

func withDotAll(expr string) string {
	return "(?s)" + expr
}

// String implements fmt.Stringer for log output.
func (p Pattern) String() string {
	return fmt.Sprintf("%s(%d): %s", p.Name, p.Priority, p.Expr)
}
