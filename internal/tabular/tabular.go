// Package tabular reads the source text column of a CSV sheet and writes
// translations back next to it.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/valpere/gameloc/internal"
)

// DefaultOutputColumn is the header used for translations when none is given.
const DefaultOutputColumn = "translated_text"

var ErrColumnNotFound = errors.New("column not found")

// ErrOutsideDir is returned for paths that leave the data directory.
var ErrOutsideDir = errors.New("path is outside the data directory")

// Table is a CSV sheet whose first record is the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile loads a CSV sheet.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty: %s", path)
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// ColumnIndex resolves ident as a header name, a column letter (A, B, … AA)
// or a 0-based index, in that order.
func (t *Table) ColumnIndex(ident string) (int, error) {
	for i, h := range t.Header {
		if h == ident {
			return i, nil
		}
	}
	if idx, ok := letterIndex(ident); ok && idx < len(t.Header) {
		return idx, nil
	}
	if idx, err := strconv.Atoi(ident); err == nil && idx >= 0 && idx < len(t.Header) {
		return idx, nil
	}
	return 0, fmt.Errorf("%w: %q (available: %s)", ErrColumnNotFound, ident, strings.Join(t.Header, ", "))
}

func letterIndex(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n := 0
	for _, r := range strings.ToUpper(s) {
		if r < 'A' || r > 'Z' {
			return 0, false
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, true
}

// Column returns one value per data row. Rows shorter than the column
// yield an empty value so indexes stay aligned with rows.
func (t *Table) Column(ident string) ([]string, error) {
	idx, err := t.ColumnIndex(ident)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, nil
}

// SetColumn stores values under header name, appending the column when it
// does not exist yet.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(t.Rows))
	}
	idx := -1
	for i, h := range t.Header {
		if h == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(t.Header)
		t.Header = append(t.Header, name)
	}
	for i := range t.Rows {
		for len(t.Rows[i]) <= idx {
			t.Rows[i] = append(t.Rows[i], "")
		}
		t.Rows[i][idx] = values[i]
	}
	return nil
}

// WriteFile writes the table as CSV.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output CSV: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return f.Close()
}

// ReadColumn loads one column of a CSV sheet.
func ReadColumn(path, column string) ([]string, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return t.Column(column)
}

// OutputPath derives "<name>_translated<ext>" next to the source file.
func OutputPath(source string) string {
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + "_translated" + ext
}

// Resolve maps a relative name into dir. Absolute names and names that
// climb out of dir, directly or through a symlink, are rejected.
func Resolve(dir, name string) (string, error) {
	if name == "" {
		return "", internal.Invalid("path", "must not be empty")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, name)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	p := filepath.Join(root, name)
	if !within(root, p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, name)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	// A missing file is checked through its parent so new outputs resolve too.
	target := p
	if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
		target = filepath.Dir(p)
	}
	if real, err := filepath.EvalSymlinks(target); err == nil {
		if real != realRoot && !within(realRoot, real) {
			return "", fmt.Errorf("%w: %s", ErrOutsideDir, name)
		}
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Writer writes job results into a copy of the source sheet.
type Writer struct {
	Source       string
	OutputColumn string
	// Output defaults to OutputPath(Source).
	Output string
}

// WriteOutput re-reads the source sheet, sets the translation column and
// saves the copy.
func (w *Writer) WriteOutput(_ context.Context, job internal.BatchJob, lines []string) (string, error) {
	if w.Source == "" {
		return "", internal.Invalid("source", "no source sheet recorded for job %s", job.ID)
	}
	t, err := ReadFile(w.Source)
	if err != nil {
		return "", err
	}

	col := w.OutputColumn
	if col == "" {
		col = DefaultOutputColumn
	}
	if err := t.SetColumn(col, lines); err != nil {
		return "", err
	}

	out := w.Output
	if out == "" {
		out = OutputPath(w.Source)
	}
	if filepath.Clean(out) == filepath.Clean(w.Source) {
		return "", internal.Invalid("output", "input file and output file cannot be the same")
	}
	if err := t.WriteFile(out); err != nil {
		return "", err
	}
	return out, nil
}
