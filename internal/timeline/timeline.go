// Package timeline reads, writes and builds daily scored timelines: one row
// per day with the five normalized channel values, the fused index and its
// band.
package timeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/signal"
)

var (
	ErrUnordered = errors.New("dates must be ascending")
	ErrDuplicate = errors.New("duplicate date")
)

// Point is one scored day.
type Point struct {
	Date     time.Time                   `json:"date"`
	Channels [signal.NumChannels]float64 `json:"channels"`
	Score    float64                     `json:"index"`
	Band     string                      `json:"band,omitempty"`
}

// Header is the column layout written by Write.
var Header = []string{"date", "A", "R", "D", "M", "S", "index", "band"}

// Dates returns the dates of points in order.
func Dates(points []Point) []time.Time {
	out := make([]time.Time, len(points))
	for i, p := range points {
		out[i] = p.Date
	}
	return out
}

// Scores returns the index scores of points in order.
func Scores(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Score
	}
	return out
}

// Validate checks that dates are strictly ascending.
func Validate(points []Point) error {
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1].Date, points[i].Date
		switch {
		case cur.Equal(prev):
			return &csvio.ParseError{Source: "timeline", Line: i + 2, Field: "date", Value: csvio.FormatDate(cur), Err: ErrDuplicate}
		case cur.Before(prev):
			return &csvio.ParseError{Source: "timeline", Line: i + 2, Field: "date", Value: csvio.FormatDate(cur), Err: ErrUnordered}
		}
	}
	return nil
}

// Read parses a timeline CSV. Only date and index (alias IASi) are required;
// channel columns and band (alias estado) are read when present.
func Read(r io.Reader, source string) ([]Point, error) {
	tbl, err := csvio.ReadTable(r, source)
	if err != nil {
		return nil, err
	}
	if len(tbl.Rows) == 0 {
		return nil, nil
	}
	dateCol, err := tbl.Require("date")
	if err != nil {
		return nil, err
	}
	scoreCol, err := tbl.Require("index", "IASi")
	if err != nil {
		return nil, err
	}
	bandCol, _ := tbl.Column("band", "estado")
	var chanCols [signal.NumChannels]int
	for _, c := range signal.Channels {
		chanCols[c], _ = tbl.Column(c.Code())
	}

	points := make([]Point, 0, len(tbl.Rows))
	for i := range tbl.Rows {
		var p Point
		if p.Date, err = tbl.Date(i, dateCol, "date"); err != nil {
			return nil, err
		}
		if p.Score, err = tbl.Float(i, scoreCol, "index"); err != nil {
			return nil, err
		}
		for _, c := range signal.Channels {
			if p.Channels[c], _, err = tbl.OptionalFloat(i, chanCols[c], c.Code()); err != nil {
				return nil, err
			}
		}
		p.Band = tbl.Field(i, bandCol)
		if n := len(points); n > 0 {
			prev := points[n-1].Date
			if !p.Date.After(prev) {
				cause := ErrUnordered
				if p.Date.Equal(prev) {
					cause = ErrDuplicate
				}
				return nil, &csvio.ParseError{Source: source, Line: tbl.Line(i), Field: "date", Value: tbl.Field(i, dateCol), Err: cause}
			}
		}
		points = append(points, p)
	}
	return points, nil
}

// ReadFile reads a timeline from path.
func ReadFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timeline: %w", err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// Write renders points as CSV with four-decimal values.
func Write(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for _, p := range points {
		row[0] = csvio.FormatDate(p.Date)
		for _, c := range signal.Channels {
			row[1+int(c)] = csvio.FormatFloat(p.Channels[c], 4)
		}
		row[6] = csvio.FormatFloat(p.Score, 4)
		row[7] = p.Band
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes points to path, creating parent directories.
func WriteFile(path string, points []Point) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create timeline dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create timeline: %w", err)
	}
	if err := Write(f, points); err != nil {
		f.Close()
		return fmt.Errorf("write timeline: %w", err)
	}
	return f.Close()
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
