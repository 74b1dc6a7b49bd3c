package timeline

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/signal"
)

func TestReadLegacyHeader(t *testing.T) {
	in := "date,A,R,D,M,S,IASi,estado\n" +
		"2010-02-20,0.1000,0.5000,0.0000,0.2000,0.5000,0.2750,LOW\n" +
		"2010-02-21,0.2000,0.6000,0.1000,0.2000,0.5000,0.3200,MEDIUM\n"
	points, err := Read(strings.NewReader(in), "maule.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points", len(points))
	}
	if points[1].Score != 0.32 || points[1].Band != "MEDIUM" {
		t.Errorf("unexpected point %+v", points[1])
	}
	if points[0].Channels[signal.Radon] != 0.5 {
		t.Errorf("radon = %v", points[0].Channels[signal.Radon])
	}
}

func TestReadMinimalColumns(t *testing.T) {
	points, err := Read(strings.NewReader("date,index\n2024-01-01,0.4\n"), "min.csv")
	if err != nil {
		t.Fatal(err)
	}
	if points[0].Score != 0.4 || points[0].Channels != [signal.NumChannels]float64{} {
		t.Errorf("unexpected point %+v", points[0])
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		cause error
		line  int
	}{
		{"bad date", "date,index\n2024/01/01,0.4\n", nil, 2},
		{"bad score", "date,index\n2024-01-01,high\n", nil, 2},
		{"duplicate", "date,index\n2024-01-01,0.1\n2024-01-01,0.2\n", ErrDuplicate, 3},
		{"unordered", "date,index\n2024-01-02,0.1\n2024-01-01,0.2\n", ErrUnordered, 3},
		{"no score column", "date,value\n2024-01-01,0.1\n", csvio.ErrMissingColumn, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), "t.csv")
			var pe *csvio.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("expected cause %v, got %v", tt.cause, err)
			}
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ev_iasi.csv")
	d1, _ := csvio.ParseDate("2015-09-10")
	d2, _ := csvio.ParseDate("2015-09-11")
	points := []Point{
		{Date: d1, Channels: [signal.NumChannels]float64{0.1, 0.2, 0.3, 0.4, 0.5}, Score: 0.31234, Band: "MEDIUM"},
		{Date: d2, Score: 0.9, Band: "CRITICAL"},
	}
	if err := WriteFile(path, points); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !bytes.HasPrefix(raw, []byte("date,A,R,D,M,S,index,band\n2015-09-10,0.1000,")) {
		t.Errorf("unexpected file contents:\n%s", raw)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back[0].Score != 0.3123 {
		t.Errorf("score should be written with 4 decimals, got %v", back[0].Score)
	}
	if !back[1].Date.Equal(d2) || back[1].Band != "CRITICAL" {
		t.Errorf("unexpected second point %+v", back[1])
	}
}

func TestValidate(t *testing.T) {
	d1, _ := csvio.ParseDate("2020-01-01")
	d2, _ := csvio.ParseDate("2020-01-02")
	if err := Validate([]Point{{Date: d1}, {Date: d2}}); err != nil {
		t.Errorf("ascending points rejected: %v", err)
	}
	if err := Validate([]Point{{Date: d2}, {Date: d1}}); !errors.Is(err, ErrUnordered) {
		t.Errorf("expected ErrUnordered, got %v", err)
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, AnimalsFile, "date,a_score\n2024-01-01,0.5\n2024-01-03,1.7\n")
	writeFile(t, dir, RadonFile, "date,r_zscore\n2024-01-02,0\n")
	// marine and sensors missing: those channels stay at 0
	feat := writeFile(t, dir, "features_ev.csv",
		"date,mean_coh,p95_defo_mm\n2024-01-01,0.2,10\n2024-01-02,0.5,10\n")

	src, err := LoadSignals(dir)
	if err != nil {
		t.Fatal(err)
	}
	features, err := ReadFeatures(feat)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := index.NewEngine(index.DefaultWeights, nil)
	if err != nil {
		t.Fatal(err)
	}
	points, err := Build(engine, src.WithFeatures(features))
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 days, got %d", len(points))
	}

	// day 1: low coherence suppresses deformation, radon not yet observed
	if points[0].Channels[signal.Deformation] != 0 || points[0].Channels[signal.Radon] != 0 {
		t.Errorf("day 1 channels = %v", points[0].Channels)
	}
	// day 2: animals carried forward, radon sigmoid(0), deformation 10/20
	want := [signal.NumChannels]float64{0.5, 0.5, 0.5, 0, 0}
	if points[1].Channels != want {
		t.Errorf("day 2 channels = %v, want %v", points[1].Channels, want)
	}
	// day 3: animal score clipped, features carried forward
	if points[2].Channels[signal.Animals] != 1 || points[2].Channels[signal.Deformation] != 0.5 {
		t.Errorf("day 3 channels = %v", points[2].Channels)
	}

	wantScore := 0.15*0.5 + 0.20*0.5 + 0.35*0.5
	if math.Abs(points[1].Score-wantScore) > 1e-9 {
		t.Errorf("day 2 score = %v, want %v", points[1].Score, wantScore)
	}
	if points[1].Band != "MEDIUM" {
		t.Errorf("day 2 band = %q", points[1].Band)
	}
	if len(engine.History(0)) != 3 {
		t.Errorf("engine should record one index per day")
	}
}

func TestMergeFeatures(t *testing.T) {
	dir := t.TempDir()
	dst := writeFile(t, dir, "features_ev.csv", "date,mean_coh,p95_defo_mm\n2024-01-01,0.4,1\n2024-01-02,0.4,2\n")
	src := writeFile(t, dir, "ev.csv", "date,p95_defo_mm,mean_coh\n2024-01-02,9,0.9\n2024-01-03,3,0.5\n")
	n, err := MergeFeatures(dst, src)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("merged rows = %d, want 3", n)
	}
	got, _ := ReadFeatures(dst)
	if got["2024-01-02"].P95DefoMM != 9 {
		t.Errorf("incoming row should win, got %+v", got["2024-01-02"])
	}
}
