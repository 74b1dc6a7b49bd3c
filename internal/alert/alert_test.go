package alert

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abelbrown/iasi/internal/index"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func record(v float64, label string) index.Record {
	return index.Record{ID: "rec-" + label, Value: v, Label: label}
}

func TestGenerate(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	g := NewGenerator(WithClock(c.now))

	ctx := map[string]any{"region": "Illapel"}
	a := g.Generate(record(0.72, "HIGH"), ctx)
	ctx["region"] = "changed"

	if a.ID == "" {
		t.Error("alert should carry an id")
	}
	if a.RecordID != "rec-HIGH" || a.Band != "HIGH" || a.IndexValue != 0.72 {
		t.Errorf("unexpected alert: %+v", a)
	}
	if a.Week != 42 || a.Year != 2026 {
		t.Errorf("week = %d/%d, want 42/2026", a.Week, a.Year)
	}
	if a.Context["region"] != "Illapel" {
		t.Errorf("context should be copied, got %v", a.Context["region"])
	}
	if a.Interpretation != index.Interpretation("HIGH") {
		t.Errorf("interpretation = %q", a.Interpretation)
	}
	if len(a.Recommendations) != 5 {
		t.Errorf("HIGH should carry 5 recommendations, got %d", len(a.Recommendations))
	}
	if g.Count() != 1 {
		t.Errorf("Count = %d, want 1", g.Count())
	}
}

func TestRecommendationsUnknownLabel(t *testing.T) {
	if diff := cmp.Diff([]string{"Consult experts"}, Recommendations("ORANGE")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	r := Recommendations("LOW")
	r[0] = "mutated"
	if Recommendations("LOW")[0] == "mutated" {
		t.Error("Recommendations should return a copy")
	}
}

func TestList(t *testing.T) {
	g := NewGenerator()
	for _, l := range []string{"LOW", "HIGH", "LOW", "CRITICAL", "LOW"} {
		g.Generate(record(0.1, l), nil)
	}

	tests := []struct {
		name  string
		limit int
		band  string
		want  int
	}{
		{"all", 0, "", 5},
		{"limited", 2, "", 2},
		{"band", 0, "LOW", 3},
		{"band limited", 2, "LOW", 2},
		{"no match", 0, "MEDIUM", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.List(tt.limit, tt.band)
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			for _, a := range got {
				if tt.band != "" && a.Band != tt.band {
					t.Errorf("band %q leaked into %q filter", a.Band, tt.band)
				}
			}
		})
	}
	if last := g.List(1, ""); last[0].Band != "LOW" {
		t.Errorf("List(1) should return the newest alert, got %s", last[0].Band)
	}
}

func TestWeeklyReport(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	g := NewGenerator(WithClock(c.now))

	// Outside the window once the clock advances.
	g.Generate(record(0.9, "CRITICAL"), nil)

	c.t = start.AddDate(0, 0, 8)
	g.Generate(record(0.2, "LOW"), nil)
	c.t = c.t.Add(time.Hour)
	g.Generate(record(0.7, "HIGH"), nil)
	c.t = c.t.Add(time.Hour)
	g.Generate(record(0.25, "LOW"), nil)

	r := g.WeeklyReport()
	if r.Status != StatusOK {
		t.Fatalf("status = %s", r.Status)
	}
	if r.Total != 3 {
		t.Errorf("total = %d, want 3", r.Total)
	}
	if r.Predominant != "LOW" {
		t.Errorf("predominant = %s, want LOW", r.Predominant)
	}
	if diff := cmp.Diff(map[string]int{"LOW": 2, "HIGH": 1}, r.Distribution); diff != "" {
		t.Errorf("distribution (-want +got):\n%s", diff)
	}
	if math.Abs(r.Mean-(0.2+0.7+0.25)/3) > 1e-9 || r.Min != 0.2 || r.Max != 0.7 {
		t.Errorf("stats mean=%v min=%v max=%v", r.Mean, r.Min, r.Max)
	}
	if !strings.Contains(r.Interpretation, "HIGH: 1 (33.3%), LOW: 2 (66.7%)") {
		t.Errorf("interpretation = %q", r.Interpretation)
	}
	if !strings.HasPrefix(r.ID, "IASi-Weekly-2026-W") {
		t.Errorf("id = %q", r.ID)
	}
}

func TestWeeklyReportTieGoesToSevereBand(t *testing.T) {
	g := NewGenerator()
	now := time.Now()
	alerts := []Alert{
		{Band: "LOW", IndexValue: 0.1, Timestamp: now},
		{Band: "HIGH", IndexValue: 0.7, Timestamp: now},
		{Band: "MEDIUM", IndexValue: 0.4, Timestamp: now},
		{Band: "HIGH", IndexValue: 0.65, Timestamp: now},
		{Band: "LOW", IndexValue: 0.2, Timestamp: now},
	}
	if got := g.Summarize(alerts, now).Predominant; got != "HIGH" {
		t.Errorf("predominant = %s, want HIGH", got)
	}
}

func TestWeeklyReportNoData(t *testing.T) {
	r := NewGenerator().WeeklyReport()
	if r.Status != StatusNoData || r.Total != 0 || r.Message == "" {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestText(t *testing.T) {
	rec, err := func() (index.Record, error) {
		e, err := index.NewEngine(index.DefaultWeights, nil)
		if err != nil {
			return index.Record{}, err
		}
		return e.CalculateIndex(signalsAll(0.9))
	}()
	if err != nil {
		t.Fatal(err)
	}
	text := Text(NewGenerator().Generate(rec, nil))
	for _, want := range []string{"RISK INDEX: 0.9000", "LEVEL: CRITICAL", "  - D: 0.9000 (weight: 0.35", "  1. IMMEDIATE ALERT"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}
