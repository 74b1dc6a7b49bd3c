package e2e

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/signal"
	"github.com/abelbrown/iasi/internal/store"
	"github.com/abelbrown/iasi/internal/timeline"
)

// fixtureEvent is the event seeded into the fixture database.
const fixtureEvent = "Illapel_2015"

// seedFixtureDB writes one evaluated event into dataDir/iasi.db.
func seedFixtureDB(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	st, err := store.Open(filepath.Join(dataDir, "iasi.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	start := time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC)
	points := make([]timeline.Point, 10)
	for i := range points {
		v := 0.1 * float64(i)
		points[i] = timeline.Point{
			Date:     start.AddDate(0, 0, i),
			Channels: [signal.NumChannels]float64{v, v, v, v, v},
			Score:    v,
			Band:     "LOW",
		}
	}
	points[9].Band = "CRITICAL"
	if err := st.SaveTimeline(ctx, fixtureEvent, points); err != nil {
		return err
	}
	reports := []eval.Report{
		{WindowDays: 7, AUCPR: 0.8314, F1: 0.6, BestThreshold: 0.5, LeadTimeDays: 0.67, Brier: 0.368, Days: 10, Positives: 7},
		{WindowDays: 30, AUCPR: 0.7, F1: 0.8235, BestThreshold: 0.65, Brier: 0.3, Days: 10, Positives: 10},
	}
	return st.SaveReports(ctx, "fixture-run", fixtureEvent, reports, time.Now().UTC())
}

func readSnapshot(f *os.File) string {
	if err := f.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return ""
	}
	out := make([]byte, 0, 8192)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(out)
}
