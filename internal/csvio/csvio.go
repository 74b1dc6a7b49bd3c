// Package csvio holds the header handling, date parsing and error type shared
// by the timeline and catalog readers.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used by every file format.
const DateLayout = "2006-01-02"

// ErrMissingColumn is wrapped by ParseError when a required column is absent.
var ErrMissingColumn = errors.New("missing column")

// ParseError reports a malformed field in a tabular input.
type ParseError struct {
	Source string // file name or "<reader>"
	Line   int    // 1-based, header is line 1
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	fmt.Fprintf(&b, ": field %q", e.Field)
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseDate parses an ISO date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// Table is a parsed CSV body with a case-insensitive header index.
type Table struct {
	Source string
	cols   map[string]int
	Rows   [][]string
}

// ReadTable reads a whole CSV document. The first record is the header.
// An empty document yields a Table with no columns and no rows.
func ReadTable(r io.Reader, source string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &ParseError{Source: source, Line: pe.Line, Err: pe.Err}
		}
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	t := &Table{Source: source, cols: make(map[string]int)}
	if len(records) == 0 {
		return t, nil
	}
	for i, name := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := t.cols[key]; !dup {
			t.cols[key] = i
		}
	}
	t.Rows = records[1:]
	return t, nil
}

// ReadFile opens path and reads it as a Table. A missing file is reported
// with an error wrapping fs.ErrNotExist.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f, path)
}

// Column returns the index of the first header matching one of names.
func (t *Table) Column(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := t.cols[strings.ToLower(n)]; ok {
			return i, true
		}
	}
	return -1, false
}

// Require is Column but fails with a ParseError naming names[0].
func (t *Table) Require(names ...string) (int, error) {
	if i, ok := t.Column(names...); ok {
		return i, nil
	}
	return -1, &ParseError{Source: t.Source, Line: 1, Field: names[0], Err: ErrMissingColumn}
}

// Line returns the 1-based file line of row i.
func (t *Table) Line(i int) int { return i + 2 }

// Field returns the trimmed cell at col of row i, or "" when the row is short.
func (t *Table) Field(i, col int) string {
	if col < 0 || col >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][col])
}

// Date parses the cell at col of row i.
func (t *Table) Date(i, col int, field string) (time.Time, error) {
	v := t.Field(i, col)
	d, err := ParseDate(v)
	if err != nil {
		return time.Time{}, &ParseError{Source: t.Source, Line: t.Line(i), Field: field, Value: v, Err: err}
	}
	return d, nil
}

// Float parses the cell at col of row i.
func (t *Table) Float(i, col int, field string) (float64, error) {
	v := t.Field(i, col)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &ParseError{Source: t.Source, Line: t.Line(i), Field: field, Value: v, Err: err}
	}
	return f, nil
}

// OptionalFloat parses the cell when present and non-empty.
func (t *Table) OptionalFloat(i, col int, field string) (float64, bool, error) {
	if col < 0 || t.Field(i, col) == "" {
		return 0, false, nil
	}
	f, err := t.Float(i, col, field)
	return f, err == nil, err
}

// FormatFloat renders v with prec decimals, or the shortest exact form when
// prec is negative.
func FormatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
