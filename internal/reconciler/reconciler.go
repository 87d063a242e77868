// Package reconciler turns a downloaded result artifact back into one
// translated line per original line, in original order.
//
// Every data-quality problem (failed requests, malformed bodies, short or
// long chunks, chunks missing from the artifact) is repaired with marker
// lines so the output always has exactly the expected length.
package reconciler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/chunker"
	"github.com/valpere/gameloc/internal/metrics"
	"github.com/valpere/gameloc/internal/postprocess"
	"github.com/valpere/gameloc/internal/provider"
	"github.com/valpere/gameloc/internal/tagprotect"
)

// Marker lines.
const (
	MarkerMissingLine    = "[Missing Line Translation]"
	MarkerEmpty          = "[Empty Translation From Model]"
	MarkerInvalidBody    = "[Invalid Response Body Format]"
	MarkerMalformed      = "[Malformed choice/message structure]"
	MarkerNoChoices      = "[No choices in response body]"
	MarkerInvalidChoices = "[Empty or invalid choices list]"
)

// Anomaly kinds reported to metrics.
const (
	anomalyShort        = "short_chunk"
	anomalyLong         = "long_chunk"
	anomalyMissing      = "missing_chunk"
	anomalyError        = "error_record"
	anomalyMalformed    = "malformed_record"
	anomalyEmpty        = "empty_content"
	anomalyUndecodable  = "undecodable_line"
	anomalyUnknownChunk = "unknown_chunk"
	anomalyDuplicate    = "duplicate_chunk"
)

const maxLoggedRaw = 200

// ErrorMarker renders a provider error for one line.
func ErrorMarker(msg string) string {
	return fmt.Sprintf("[Error: %s]", msg)
}

// MissingChunkMarker fills every line of a chunk absent from the artifact.
func MissingChunkMarker(correlationID string) string {
	return fmt.Sprintf("[Missing Translation for entire chunk %s]", correlationID)
}

// Result is the flattened reconciliation output. Marker[i] is true when
// Lines[i] is a synthesized marker rather than model output.
type Result struct {
	Lines     []string
	Marker    []bool
	Anomalies int
}

// Reconciler reassembles result artifacts.
type Reconciler struct {
	tags *tagprotect.Engine
	log  zerolog.Logger
}

// New returns a Reconciler that restores placeholders with tags.
func New(tags *tagprotect.Engine, log zerolog.Logger) *Reconciler {
	return &Reconciler{tags: tags, log: log}
}

type chunkLines struct {
	lines  []string
	marker []bool
}

func markers(n int, text string) chunkLines {
	out := chunkLines{lines: make([]string, n), marker: make([]bool, n)}
	for i := range out.lines {
		out.lines[i] = text
		out.marker[i] = true
	}
	return out
}

// Reconcile parses artifact against chunks. It never fails: the returned
// result always holds exactly the sum of the chunks' expected line counts.
func (r *Reconciler) Reconcile(artifact []byte, chunks []internal.Chunk) *Result {
	byID := make(map[string]internal.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.CorrelationID] = c
	}

	res := &Result{}
	found := make(map[string]chunkLines, len(chunks))

	sc := bufio.NewScanner(bytes.NewReader(artifact))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec provider.Result
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.anomaly(res, anomalyUndecodable)
			r.log.Warn().Err(err).Int("line", lineNo).Str("raw", clip(string(raw))).Msg("skipping undecodable result line")
			continue
		}

		c, ok := byID[rec.CustomID]
		if !ok {
			r.anomaly(res, anomalyUnknownChunk)
			r.log.Warn().Str("correlation_id", rec.CustomID).Msg("result for unknown chunk ignored")
			continue
		}
		if _, dup := found[rec.CustomID]; dup {
			r.anomaly(res, anomalyDuplicate)
			r.log.Warn().Str("correlation_id", rec.CustomID).Msg("duplicate result ignored, keeping the first")
			continue
		}
		found[rec.CustomID] = r.chunkResult(res, rec, c)
	}
	if err := sc.Err(); err != nil {
		r.log.Error().Err(err).Msg("result artifact truncated while reading")
	}

	ordered := make([]internal.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, _ := chunker.CorrelationOrdinal(ordered[i].CorrelationID)
		b, _ := chunker.CorrelationOrdinal(ordered[j].CorrelationID)
		return a < b
	})

	for _, c := range ordered {
		cl, ok := found[c.CorrelationID]
		if !ok {
			r.anomaly(res, anomalyMissing)
			r.log.Warn().Str("correlation_id", c.CorrelationID).Int("expected", c.ExpectedCount()).Msg("chunk missing from result artifact")
			cl = markers(c.ExpectedCount(), MissingChunkMarker(c.CorrelationID))
		}
		res.Lines = append(res.Lines, cl.lines...)
		res.Marker = append(res.Marker, cl.marker...)
	}

	metrics.LinesReconciled(len(res.Lines))
	return res
}

// completionBody is decoded loosely so each malformed shape can be told apart.
type completionBody struct {
	Error   json.RawMessage `json:"error"`
	Choices json.RawMessage `json:"choices"`
}

func (r *Reconciler) chunkResult(res *Result, rec provider.Result, c internal.Chunk) chunkLines {
	expected := c.ExpectedCount()
	log := r.log.With().Str("correlation_id", c.CorrelationID).Logger()

	if rec.Error != nil {
		r.anomaly(res, anomalyError)
		log.Warn().Str("error", rec.Error.Message).Msg("request failed at provider")
		return markers(expected, ErrorMarker(errorMessage(rec.Error.Message)))
	}

	var body completionBody
	if rec.Response != nil && !isNull(rec.Response.Body) {
		if err := json.Unmarshal(rec.Response.Body, &body); err != nil {
			r.anomaly(res, anomalyMalformed)
			log.Warn().Err(err).Msg("response body is not an object")
			return markers(expected, MarkerInvalidBody)
		}
	}

	if !isNull(body.Error) {
		var eb provider.ErrorBody
		_ = json.Unmarshal(body.Error, &eb)
		r.anomaly(res, anomalyError)
		log.Warn().Str("error", eb.Message).Msg("request failed at model")
		return markers(expected, ErrorMarker(errorMessage(eb.Message)))
	}

	if rec.Response != nil && rec.Response.StatusCode >= http.StatusBadRequest && isNull(body.Choices) {
		r.anomaly(res, anomalyError)
		return markers(expected, ErrorMarker(fmt.Sprintf("status %d", rec.Response.StatusCode)))
	}

	var choices []json.RawMessage
	if !isNull(body.Choices) {
		if err := json.Unmarshal(body.Choices, &choices); err != nil {
			r.anomaly(res, anomalyMalformed)
			return markers(expected, MarkerInvalidChoices)
		}
	}
	if len(choices) == 0 {
		r.anomaly(res, anomalyMalformed)
		return markers(expected, MarkerNoChoices)
	}

	var choice struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(choices[0], &choice); err != nil || choice.Message == nil {
		r.anomaly(res, anomalyMalformed)
		return markers(expected, MarkerMalformed)
	}

	content := ""
	if choice.Message.Content != nil {
		content = postprocess.Clean(*choice.Message.Content)
	}
	if strings.TrimSpace(content) == "" && allBlank(c.OriginalLines) {
		return chunkLines{lines: make([]string, expected), marker: make([]bool, expected)}
	}
	if content == "" {
		r.anomaly(res, anomalyEmpty)
		return markers(expected, MarkerEmpty)
	}

	return r.repair(res, log, c, content)
}

// repair fits a successful blob to the chunk's expected line count.
func (r *Reconciler) repair(res *Result, log zerolog.Logger, c internal.Chunk, content string) chunkLines {
	expected := c.ExpectedCount()
	parts := chunker.SplitPayload(content)
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	// Blank edge lines beyond the expected count are padding, not content.
	for len(parts) > expected && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for len(parts) > expected && strings.TrimSpace(parts[0]) == "" && strings.TrimSpace(c.OriginalLines[0]) != "" {
		parts = parts[1:]
	}

	switch {
	case len(parts) < expected:
		r.anomaly(res, anomalyShort)
		log.Warn().
			Int("expected", expected).
			Int("actual", len(parts)).
			Strs("original_lines", clipAll(c.OriginalLines)).
			Str("raw", clip(content)).
			Strs("split", clipAll(parts)).
			Msg("model returned fewer lines than sent, padding with markers")
	case len(parts) > expected:
		r.anomaly(res, anomalyLong)
		log.Debug().Int("expected", expected).Int("actual", len(parts)).Msg("truncating surplus lines")
		parts = parts[:expected]
	}

	out := chunkLines{lines: make([]string, expected), marker: make([]bool, expected)}
	for i := range out.lines {
		if i < len(parts) {
			out.lines[i] = chunker.Unescape(parts[i])
			continue
		}
		out.lines[i] = MarkerMissingLine
		out.marker[i] = true
	}
	return out
}

// Restore puts the original markup back into every non-marker line.
// tagMaps[i] belongs to the i-th original line.
func (r *Reconciler) Restore(res *Result, tagMaps []map[string]internal.TagMatch) []string {
	out := make([]string, len(res.Lines))
	for i, line := range res.Lines {
		if res.Marker[i] || i >= len(tagMaps) {
			out[i] = line
			continue
		}
		out[i] = r.tags.Restore(line, tagMaps[i])
	}
	return out
}

func (r *Reconciler) anomaly(res *Result, kind string) {
	res.Anomalies++
	metrics.ReconcileAnomaly(kind)
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

func errorMessage(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || string(s) == "null"
}

func clip(s string) string {
	if len(s) <= 2*maxLoggedRaw+20 {
		return s
	}
	return s[:maxLoggedRaw] + " ... " + s[len(s)-maxLoggedRaw:]
}

func clipAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = clip(l)
	}
	return out
}
