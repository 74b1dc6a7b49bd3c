package timeline

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/signal"
)

// MinCoherence is the InSAR coherence below which deformation is ignored.
const MinCoherence = 0.3

// DeformationScale is the p95 deformation (mm) that saturates channel D.
const DeformationScale = 20.0

// Source file names inside a signals directory.
const (
	AnimalsFile = "animals.csv"
	RadonFile   = "radon.csv"
	MarineFile  = "marine.csv"
	SensorsFile = "sensors.csv"
)

// Feature is one day of InSAR-derived deformation features.
type Feature struct {
	P95DefoMM float64
	MeanCoh   float64
}

// Sources holds raw daily observations keyed by ISO date. Any map may be
// empty; a channel with no observation yet scores 0.
type Sources struct {
	Animals  map[string]float64 // a_score
	Radon    map[string]float64 // r_zscore
	Marine   map[string]float64 // m_verified_ratio
	Sensors  map[string]float64 // s_activity_z
	Features map[string]Feature
}

// LoadSignals reads the four shared channel files from dir. Missing files
// are treated as empty series.
func LoadSignals(dir string) (Sources, error) {
	var s Sources
	var err error
	if s.Animals, err = readSeries(filepath.Join(dir, AnimalsFile), "a_score"); err != nil {
		return s, err
	}
	if s.Radon, err = readSeries(filepath.Join(dir, RadonFile), "r_zscore"); err != nil {
		return s, err
	}
	if s.Marine, err = readSeries(filepath.Join(dir, MarineFile), "m_verified_ratio"); err != nil {
		return s, err
	}
	if s.Sensors, err = readSeries(filepath.Join(dir, SensorsFile), "s_activity_z"); err != nil {
		return s, err
	}
	return s, nil
}

// WithFeatures returns a copy of s using the given deformation features.
func (s Sources) WithFeatures(f map[string]Feature) Sources {
	s.Features = f
	return s
}

func readSeries(path, column string) (map[string]float64, error) {
	tbl, err := csvio.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	out := make(map[string]float64, len(tbl.Rows))
	if len(tbl.Rows) == 0 {
		return out, nil
	}
	dateCol, err := tbl.Require("date")
	if err != nil {
		return nil, err
	}
	valCol, err := tbl.Require(column)
	if err != nil {
		return nil, err
	}
	for i := range tbl.Rows {
		d, err := tbl.Date(i, dateCol, "date")
		if err != nil {
			return nil, err
		}
		v, err := tbl.Float(i, valCol, column)
		if err != nil {
			return nil, err
		}
		out[csvio.FormatDate(d)] = v
	}
	return out, nil
}

// ReadFeatures reads a date,p95_defo_mm,mean_coh file. A missing file yields
// an empty map.
func ReadFeatures(path string) (map[string]Feature, error) {
	tbl, err := csvio.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return map[string]Feature{}, nil
		}
		return nil, err
	}
	out := make(map[string]Feature, len(tbl.Rows))
	if len(tbl.Rows) == 0 {
		return out, nil
	}
	dateCol, err := tbl.Require("date")
	if err != nil {
		return nil, err
	}
	p95Col, err := tbl.Require("p95_defo_mm")
	if err != nil {
		return nil, err
	}
	cohCol, err := tbl.Require("mean_coh")
	if err != nil {
		return nil, err
	}
	for i := range tbl.Rows {
		d, err := tbl.Date(i, dateCol, "date")
		if err != nil {
			return nil, err
		}
		var f Feature
		if f.P95DefoMM, err = tbl.Float(i, p95Col, "p95_defo_mm"); err != nil {
			return nil, err
		}
		if f.MeanCoh, err = tbl.Float(i, cohCol, "mean_coh"); err != nil {
			return nil, err
		}
		out[csvio.FormatDate(d)] = f
	}
	return out, nil
}

// WriteFeatures writes features sorted by date.
func WriteFeatures(path string, features map[string]Feature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	cw.Write([]string{"date", "mean_coh", "p95_defo_mm"})
	dates := make([]string, 0, len(features))
	for d := range features {
		dates = append(dates, d)
	}
	slices.Sort(dates)
	for _, d := range dates {
		ft := features[d]
		cw.Write([]string{d, csvio.FormatFloat(ft.MeanCoh, 4), csvio.FormatFloat(ft.P95DefoMM, 4)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MergeFeatures merges the rows of src into dst by date, src winning, and
// returns the number of rows in the result.
func MergeFeatures(dst, src string) (int, error) {
	incoming, err := ReadFeatures(src)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(src), err)
	}
	existing, err := ReadFeatures(dst)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filepath.Base(dst), err)
	}
	for d, f := range incoming {
		existing[d] = f
	}
	return len(existing), WriteFeatures(dst, existing)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clip(x float64) float64 { return min(max(x, 0), 1) }

// normalizeDay maps one day's carried-forward observations to channel values.
// A nil pointer means the channel has not been observed yet.
func normalizeDay(a, r, m, s *float64, f *Feature) [signal.NumChannels]float64 {
	var v [signal.NumChannels]float64
	if a != nil {
		v[signal.Animals] = clip(*a)
	}
	if r != nil {
		v[signal.Radon] = sigmoid(*r)
	}
	if f != nil && f.MeanCoh >= MinCoherence {
		v[signal.Deformation] = clip(f.P95DefoMM / DeformationScale)
	}
	if m != nil {
		v[signal.Marine] = clip(*m)
	}
	if s != nil {
		v[signal.Sensors] = sigmoid(*s)
	}
	return v
}

// Build joins the sources on the union of their dates, carrying each
// channel's last observation forward, and scores every day with engine.
func Build(engine *index.Engine, src Sources) ([]Point, error) {
	seen := make(map[string]bool)
	for _, m := range []map[string]float64{src.Animals, src.Radon, src.Marine, src.Sensors} {
		for d := range m {
			seen[d] = true
		}
	}
	for d := range src.Features {
		seen[d] = true
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	slices.Sort(dates)

	var a, r, m, s *float64
	var f *Feature
	carry := func(series map[string]float64, d string, last **float64) {
		if v, ok := series[d]; ok {
			*last = &v
		}
	}

	points := make([]Point, 0, len(dates))
	for _, d := range dates {
		carry(src.Animals, d, &a)
		carry(src.Radon, d, &r)
		carry(src.Marine, d, &m)
		carry(src.Sensors, d, &s)
		if ft, ok := src.Features[d]; ok {
			f = &ft
		}

		day, err := csvio.ParseDate(d)
		if err != nil {
			return nil, &csvio.ParseError{Source: "sources", Field: "date", Value: d, Err: err}
		}
		values := normalizeDay(a, r, m, s, f)
		rec, err := engine.CalculateIndexAt(day, toSignals(values, day))
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", d, err)
		}
		points = append(points, Point{Date: day, Channels: values, Score: rec.Value, Band: rec.Label})
	}
	return points, nil
}

func toSignals(values [signal.NumChannels]float64, at time.Time) map[signal.Channel]signal.Signal {
	out := make(map[signal.Channel]signal.Signal, signal.NumChannels)
	for _, c := range signal.Channels {
		out[c] = signal.Signal{Channel: c, Raw: values[c], Max: 1, Normalized: values[c], Timestamp: at}
	}
	return out
}
