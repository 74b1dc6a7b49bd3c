package eval

import (
	"math"
	"testing"
	"time"
)

func days(n int) []time.Time {
	start := time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func bools(v ...int) []bool {
	out := make([]bool, len(v))
	for i, x := range v {
		out[i] = x == 1
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLabel(t *testing.T) {
	d := days(5)
	tests := []struct {
		name   string
		events []time.Time
		window int
		want   []bool
	}{
		{"no events", nil, 7, bools(0, 0, 0, 0, 0)},
		{"event strictly after", []time.Time{d[2]}, 1, bools(0, 1, 0, 0, 0)},
		{"window end inclusive", []time.Time{d[4]}, 2, bools(0, 0, 1, 1, 0)},
		{"event day itself is negative", []time.Time{d[0]}, 7, bools(0, 0, 0, 0, 0)},
		{"unsorted events", []time.Time{d[4], d[1]}, 1, bools(1, 0, 0, 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Label(d, tt.events, tt.window)
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Label = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAUCPR(t *testing.T) {
	tests := []struct {
		name   string
		labels []bool
		scores []float64
		want   float64
	}{
		{"perfect separation", bools(1, 1, 0, 0), []float64{0.9, 0.8, 0.2, 0.1}, 1},
		{"all negative", bools(0, 0, 0), []float64{0.9, 0.5, 0.1}, 0},
		{"empty", nil, nil, 0},
		{"tie keeps input order, negative first", bools(0, 1), []float64{0.5, 0.5}, 0.25},
		{"tie keeps input order, positive first", bools(1, 0), []float64{0.5, 0.5}, 1},
		{"inverted ranking", bools(0, 1), []float64{0.9, 0.1}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AUCPR(tt.labels, tt.scores); !approx(got, tt.want) {
				t.Errorf("AUCPR = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestF1AtThreshold(t *testing.T) {
	labels := bools(1, 0, 1, 0)
	scores := []float64{0.9, 0.8, 0.3, 0.1}
	if got := F1AtThreshold(labels, scores, 0.5); !approx(got, 0.5) {
		t.Errorf("F1 = %v, want 0.5", got)
	}
	if got := F1AtThreshold(labels, scores, 0.95); got != 0 {
		t.Errorf("no predictions should give F1 0, got %v", got)
	}
	if got := F1AtThreshold(bools(0, 0), []float64{0.9, 0.9}, 0.5); got != 0 {
		t.Errorf("no positives should give F1 0, got %v", got)
	}
}

func TestBestThresholdF1(t *testing.T) {
	t.Run("lowest threshold wins ties", func(t *testing.T) {
		thr, f1 := BestThresholdF1(bools(1, 0), []float64{0.9, 0.1}, []float64{0.8, 0.5, 0.3})
		if thr != 0.3 || f1 != 1 {
			t.Errorf("got (%v, %v), want (0.3, 1)", thr, f1)
		}
	})
	t.Run("picks maximum", func(t *testing.T) {
		labels := bools(1, 0, 1, 0)
		scores := []float64{0.9, 0.8, 0.3, 0.1}
		thr, f1 := BestThresholdF1(labels, scores, []float64{0.2, 0.5, 0.85})
		// 0.2: tp2 fp1 -> 0.8; 0.5: 0.5; 0.85: tp1 -> 2/3
		if thr != 0.2 || !approx(f1, 0.8) {
			t.Errorf("got (%v, %v), want (0.2, 0.8)", thr, f1)
		}
	})
	t.Run("all zero keeps first", func(t *testing.T) {
		thr, f1 := BestThresholdF1(bools(0, 0), []float64{0.9, 0.1}, []float64{0.7, 0.6})
		if thr != 0.6 || f1 != 0 {
			t.Errorf("got (%v, %v), want (0.6, 0)", thr, f1)
		}
	})
	t.Run("empty grid", func(t *testing.T) {
		thr, f1 := BestThresholdF1(bools(1), []float64{0.9}, nil)
		if thr != 0.5 || f1 != 0 {
			t.Errorf("got (%v, %v), want (0.5, 0)", thr, f1)
		}
	})
}

func TestFalseAlarmsPerMonth(t *testing.T) {
	d := days(6)
	scores := []float64{0, 0.9, 0, 0.9, 0, 0}

	if got := FalseAlarmsPerMonth(bools(0, 0, 0, 0, 0, 0), scores, 0.5, d); got != 2 {
		t.Errorf("two onsets with no positives = %v, want 2", got)
	}
	// a positive anywhere after the onsets clears them
	if got := FalseAlarmsPerMonth(bools(0, 0, 0, 0, 1, 0), scores, 0.5, d); got != 0 {
		t.Errorf("onsets followed by a positive = %v, want 0", got)
	}
	// only the onset after the last positive counts
	if got := FalseAlarmsPerMonth(bools(0, 0, 1, 0, 0, 0), scores, 0.5, d); got != 1 {
		t.Errorf("onset after last positive = %v, want 1", got)
	}
	if got := FalseAlarmsPerMonth(bools(0, 0), []float64{0.9, 0.9}, 0.5, days(2)); got != 0 {
		t.Errorf("an alarm active from day 0 is not an onset, got %v", got)
	}
	if got := FalseAlarmsPerMonth(nil, nil, 0.5, nil); got != 0 {
		t.Errorf("empty series = %v", got)
	}
}

func TestFalseAlarmsPerMonthRate(t *testing.T) {
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2), start.AddDate(0, 0, 3), start.AddDate(0, 0, 365)}
	scores := []float64{0, 0.9, 0, 0.9, 0}
	got := FalseAlarmsPerMonth(bools(0, 0, 0, 0, 0), scores, 0.5, dates)
	want := 2 / (365 / DaysPerMonth)
	if !approx(got, want) {
		t.Errorf("rate = %v, want %v", got, want)
	}
}

func TestLeadTimeDays(t *testing.T) {
	d := days(4)
	if got := LeadTimeDays(bools(0, 0, 1, 1), []float64{0.8, 0.1, 0.1, 0.9}, 0.5, d); got != 1 {
		t.Errorf("lead time = %v, want 1", got)
	}
	if got := LeadTimeDays(bools(0, 0, 0, 0), []float64{0.8, 0.1, 0.1, 0.9}, 0.5, d); got != 0 {
		t.Errorf("no event days = %v, want 0", got)
	}
	// the first event day has no earlier alarm and is left out of the mean
	if got := LeadTimeDays(bools(1, 0, 0, 1), []float64{0.1, 0.9, 0.1, 0.1}, 0.5, d); got != 2 {
		t.Errorf("lead time = %v, want 2", got)
	}
}

func TestBrier(t *testing.T) {
	if got := Brier(bools(1, 0), []float64{1, 0}); got != 0 {
		t.Errorf("perfect forecast = %v", got)
	}
	if got := Brier(bools(1, 0), []float64{0.5, 0.5}); got != 0.25 {
		t.Errorf("coin flip = %v, want 0.25", got)
	}
	if got := Brier(nil, nil); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestMismatchedLengthsUseCommonDays(t *testing.T) {
	d := days(4)
	short := bools(0, 1)
	scores := []float64{0.9, 0.9, 0.2, 0.8}
	tests := []struct {
		name      string
		got, want float64
	}{
		{"AUCPR", AUCPR(short, scores), AUCPR(short, scores[:2])},
		{"F1AtThreshold", F1AtThreshold(short, scores, 0.5), F1AtThreshold(short, scores[:2], 0.5)},
		{"FalseAlarmsPerMonth", FalseAlarmsPerMonth(short, scores, 0.5, d), FalseAlarmsPerMonth(short, scores[:2], 0.5, d[:2])},
		{"FalseAlarmsPerMonth short dates", FalseAlarmsPerMonth(bools(0, 1, 0, 0), scores, 0.5, d[:1]), 0},
		{"LeadTimeDays", LeadTimeDays(short, []float64{0.9, 0.2, 0.9, 0.9}, 0.5, d), 1},
		{"LeadTimeDays short scores", LeadTimeDays(bools(1, 1, 1), scores[:1], 0.5, d), 0},
		{"Brier", Brier(short, scores), Brier(short, scores[:2])},
		{"Brier short labels", Brier(bools(1), scores), 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !approx(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestGrid(t *testing.T) {
	g := DefaultGrid()
	if len(g) != 16 || g[0] != 0.65 || g[15] != 0.8 {
		t.Fatalf("DefaultGrid = %v", g)
	}
	if g[7] != 0.72 {
		t.Errorf("grid values should be exact two-decimal numbers, got %v", g[7])
	}
	coarse := Grid(0.5, 0.8, 0.05)
	want := []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8}
	if len(coarse) != len(want) {
		t.Fatalf("Grid(0.5, 0.8, 0.05) = %v", coarse)
	}
	for i := range want {
		if coarse[i] != want[i] {
			t.Errorf("Grid[%d] = %v, want %v", i, coarse[i], want[i])
		}
	}
	if Grid(0.8, 0.5, 0.1) != nil || Grid(0, 1, 0) != nil {
		t.Error("invalid ranges should yield no grid")
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v    float64
		d    int
		want float64
	}{
		{0.83140476, 4, 0.8314},
		{0.6666666, 2, 0.67},
		{1.23456, 3, 1.235},
		{0, 4, 0},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.d); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.d, got, tt.want)
		}
	}
}
