// Package chunker groups an ordered list of lines into bounded, ordered
// chunks, each submitted as a single translation request. Lines inside a
// chunk travel as one payload joined by LineSeparator; newlines that belong
// to a source line are swapped for NewlineSentinel first so the payload can
// be split back into exactly the same line boundaries.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valpere/gameloc/internal"
)

const (
	// DefaultChunkSize is the number of lines per chunk when none is given.
	DefaultChunkSize = 10
	// MinChunkSize and MaxChunkSize bound a configurable chunk size.
	MinChunkSize = 1
	MaxChunkSize = 200

	// LineSeparator joins the lines of a chunk into one payload.
	LineSeparator = "\n"
	// NewlineSentinel stands in for literal newlines within a single line.
	NewlineSentinel = "___ORIGINAL_NL___"

	correlationPrefix = "request-"
)

// CorrelationID renders the 1-based chunk ordinal as a stable token.
func CorrelationID(ordinal int) string {
	return correlationPrefix + strconv.Itoa(ordinal)
}

// CorrelationOrdinal parses a token produced by CorrelationID.
func CorrelationOrdinal(id string) (int, bool) {
	if !strings.HasPrefix(id, correlationPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(correlationPrefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ValidateSize rejects chunk sizes outside [MinChunkSize, MaxChunkSize].
func ValidateSize(size int) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return internal.Invalid("chunk_size", "must be between %d and %d, got %d", MinChunkSize, MaxChunkSize, size)
	}
	return nil
}

// Split partitions lines into contiguous chunks of at most size lines,
// preserving order. original and protected must be parallel slices: the
// original lines are kept for diagnostics, the protected ones are sent.
// Correlation ids are assigned here, once, as request-1, request-2, …
func Split(original, protected []string, size int) ([]internal.Chunk, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	if len(original) != len(protected) {
		return nil, fmt.Errorf("chunker: %d original lines but %d protected lines", len(original), len(protected))
	}

	chunks := make([]internal.Chunk, 0, (len(original)+size-1)/size)
	for start := 0; start < len(original); start += size {
		end := start + size
		if end > len(original) {
			end = len(original)
		}
		chunks = append(chunks, internal.Chunk{
			CorrelationID:  CorrelationID(len(chunks) + 1),
			OriginalLines:  original[start:end:end],
			ProtectedLines: protected[start:end:end],
		})
	}
	return chunks, nil
}

// TotalExpected is the sum of every chunk's expected line count.
func TotalExpected(chunks []internal.Chunk) int {
	n := 0
	for _, c := range chunks {
		n += c.ExpectedCount()
	}
	return n
}

// Escape hides literal newlines inside a single line.
func Escape(line string) string {
	return strings.ReplaceAll(line, "\n", NewlineSentinel)
}

// Unescape reverses Escape.
func Unescape(line string) string {
	return strings.ReplaceAll(line, NewlineSentinel, "\n")
}

// JoinPayload escapes each line and joins them with LineSeparator.
func JoinPayload(lines []string) string {
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = Escape(l)
	}
	return strings.Join(escaped, LineSeparator)
}

// SplitPayload splits a returned payload back into lines. Sentinels are left
// in place; callers unescape after repairing the line count.
func SplitPayload(blob string) []string {
	return strings.Split(blob, LineSeparator)
}
