// Package catalog reads and fetches reference earthquake catalogs.
//
// A catalog is a date-ordered list of events. The evaluator only uses the
// date and magnitude; location fields are kept for export and display.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/abelbrown/iasi/internal/csvio"
)

// Event is one catalog entry.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Date      time.Time `json:"date"`
	Magnitude float64   `json:"mw"`
	Latitude  float64   `json:"lat,omitempty"`
	Longitude float64   `json:"lon,omitempty"`
	DepthKM   float64   `json:"depth,omitempty"`
	Place     string    `json:"place,omitempty"`
}

// Header is the column layout written by Write.
var Header = []string{"date", "mw", "lat", "lon", "depth", "place"}

// Read parses a date,mw[,lat,lon,depth,place] CSV (magnitude is accepted for
// mw). Events are returned sorted by date.
func Read(r io.Reader, source string) ([]Event, error) {
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
	magCol, err := tbl.Require("mw", "magnitude", "mag")
	if err != nil {
		return nil, err
	}
	latCol, _ := tbl.Column("lat", "latitude")
	lonCol, _ := tbl.Column("lon", "longitude")
	depthCol, _ := tbl.Column("depth")
	placeCol, _ := tbl.Column("place")

	events := make([]Event, 0, len(tbl.Rows))
	for i := range tbl.Rows {
		var ev Event
		if ev.Date, err = tbl.Date(i, dateCol, "date"); err != nil {
			return nil, err
		}
		if ev.Magnitude, err = tbl.Float(i, magCol, "mw"); err != nil {
			return nil, err
		}
		if ev.Latitude, _, err = tbl.OptionalFloat(i, latCol, "lat"); err != nil {
			return nil, err
		}
		if ev.Longitude, _, err = tbl.OptionalFloat(i, lonCol, "lon"); err != nil {
			return nil, err
		}
		if ev.DepthKM, _, err = tbl.OptionalFloat(i, depthCol, "depth"); err != nil {
			return nil, err
		}
		ev.Place = tbl.Field(i, placeCol)
		events = append(events, ev)
	}
	Sort(events)
	return events, nil
}

// ReadFile reads a catalog from path. A missing file is an empty catalog.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path))
}

// Write renders events as CSV.
func Write(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			csvio.FormatDate(ev.Date),
			csvio.FormatFloat(ev.Magnitude, -1),
			csvio.FormatFloat(ev.Latitude, -1),
			csvio.FormatFloat(ev.Longitude, -1),
			csvio.FormatFloat(ev.DepthKM, -1),
			ev.Place,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes events to path, creating parent directories.
func WriteFile(path string, events []Event) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, events); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Sort orders events by date, keeping the input order of same-day events.
func Sort(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int { return a.Date.Compare(b.Date) })
}

// FilterMinMagnitude returns the events with magnitude >= minMag.
func FilterMinMagnitude(events []Event, minMag float64) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Magnitude >= minMag {
			out = append(out, ev)
		}
	}
	return out
}

// Dates returns the event dates truncated to the calendar day in UTC.
func Dates(events []Event) []time.Time {
	out := make([]time.Time, len(events))
	for i, ev := range events {
		y, m, d := ev.Date.UTC().Date()
		out[i] = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return out
}
