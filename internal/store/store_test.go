package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abelbrown/iasi/internal/alert"
	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/signal"
	"github.com/abelbrown/iasi/internal/timeline"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func day(n int) time.Time {
	return time.Date(2015, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestOpen(t *testing.T) {
	st := openTest(t)
	for _, table := range []string{"index_records", "timeline_points", "catalog_events", "metrics_reports", "alerts"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}
}

func TestOpenFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iasi.db")
	for i := 0; i < 2; i++ {
		st, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
}

func testRecords(t *testing.T, n int) []index.Record {
	t.Helper()
	e, err := index.NewEngine(index.DefaultWeights, nil)
	if err != nil {
		t.Fatal(err)
	}
	var recs []index.Record
	for i := 0; i < n; i++ {
		v := float64(i+1) / float64(n+1)
		sigs := make(map[signal.Channel]signal.Signal)
		for _, c := range signal.Channels {
			sigs[c] = signal.Signal{Channel: c, Normalized: v}
		}
		rec, err := e.CalculateIndexAt(day(i), sigs)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestSaveRecords(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	recs := testRecords(t, 4)

	n, err := st.SaveRecords(ctx, recs)
	if err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}
	if n != 4 {
		t.Errorf("saved %d, want 4", n)
	}

	n, err = st.SaveRecords(ctx, recs[:2])
	if err != nil {
		t.Fatalf("SaveRecords again: %v", err)
	}
	if n != 0 {
		t.Errorf("duplicates should be ignored, saved %d", n)
	}

	got, err := st.Records(ctx, 0)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if diff := cmp.Diff(recs, got, timeEqual); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	last, err := st.Records(ctx, 2)
	if err != nil {
		t.Fatalf("Records(2): %v", err)
	}
	if len(last) != 2 || last[0].ID != recs[2].ID || last[1].ID != recs[3].ID {
		t.Errorf("Records(2) should return the two newest oldest-first, got %+v", last)
	}
}

var timeEqual = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestSaveRecordsEmpty(t *testing.T) {
	st := openTest(t)
	n, err := st.SaveRecords(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("SaveRecords(nil) = %d, %v", n, err)
	}
	recs, err := st.Records(context.Background(), 10)
	if err != nil || len(recs) != 0 {
		t.Errorf("Records on empty store = %v, %v", recs, err)
	}
}

func TestTimelineRoundTrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	points := []timeline.Point{
		{Date: day(0), Channels: [signal.NumChannels]float64{0.1, 0.2, 0.3, 0.4, 0.5}, Score: 0.31, Band: "MEDIUM"},
		{Date: day(1), Channels: [signal.NumChannels]float64{0.9, 0.9, 0.9, 0.9, 0.9}, Score: 0.9, Band: "CRITICAL"},
	}
	if err := st.SaveTimeline(ctx, "Illapel_2015", points); err != nil {
		t.Fatalf("SaveTimeline: %v", err)
	}
	// Saving again replaces rather than appends.
	if err := st.SaveTimeline(ctx, "Illapel_2015", points[:1]); err != nil {
		t.Fatalf("SaveTimeline replace: %v", err)
	}
	got, err := st.Timeline(ctx, "Illapel_2015")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if diff := cmp.Diff(points[:1], got); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}

	other, err := st.Timeline(ctx, "Maule_2010")
	if err != nil || len(other) != 0 {
		t.Errorf("unknown event should be empty, got %v, %v", other, err)
	}
}

func TestCatalogDeduplicates(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	events := []catalog.Event{
		{ID: "us1", Date: day(15), Magnitude: 8.3, Latitude: -31.57, Longitude: -71.67, DepthKM: 22.4, Place: "Illapel"},
		{Date: day(3), Magnitude: 6.9},
	}
	n, err := st.SaveCatalog(ctx, "chile", events)
	if err != nil || n != 2 {
		t.Fatalf("SaveCatalog = %d, %v", n, err)
	}
	n, err = st.SaveCatalog(ctx, "chile", events)
	if err != nil || n != 0 {
		t.Errorf("duplicate SaveCatalog = %d, %v", n, err)
	}

	got, err := st.Catalog(ctx, "chile")
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	want := []catalog.Event{events[1], events[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestReports(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	old := []eval.Report{{WindowDays: 7, AUCPR: 0.1}}
	if err := st.SaveReports(ctx, "run-1", "Illapel_2015", old, t0); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}
	latest := []eval.Report{
		{WindowDays: 30, AUCPR: 0.9, F1: 0.7, BestThreshold: 0.7, FalseAlarmPM: 1.5, LeadTimeDays: 3.25, Brier: 0.2, Days: 60, Positives: 30},
		{WindowDays: 7, AUCPR: 0.8314, F1: 0.6, BestThreshold: 0.5, LeadTimeDays: 0.67, Brier: 0.368, Days: 10, Positives: 7},
	}
	if err := st.SaveReports(ctx, "run-2", "Illapel_2015", latest, t0.Add(time.Hour)); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}
	if err := st.SaveReports(ctx, "run-2", "Maule_2010", old, t0.Add(time.Hour)); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}

	got, err := st.LatestReports(ctx, "Illapel_2015")
	if err != nil {
		t.Fatalf("LatestReports: %v", err)
	}
	want := []eval.Report{latest[1], latest[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reports mismatch (-want +got):\n%s", diff)
	}

	none, err := st.LatestReports(ctx, "Valdivia_1960")
	if err != nil || none != nil {
		t.Errorf("unknown event = %v, %v", none, err)
	}

	names, err := st.EvaluatedEvents(ctx)
	if err != nil {
		t.Fatalf("EvaluatedEvents: %v", err)
	}
	if diff := cmp.Diff([]string{"Illapel_2015", "Maule_2010"}, names); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestAlerts(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	for i, band := range []string{"LOW", "HIGH", "LOW"} {
		a := alert.Alert{
			ID:              fmt.Sprintf("alert-%d", i),
			Timestamp:       day(i),
			IndexValue:      0.1 * float64(i+1),
			Band:            band,
			Recommendations: alert.Recommendations(band),
			Week:            36,
			Year:            2015,
		}
		if err := st.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert: %v", err)
		}
	}

	all, err := st.Alerts(ctx, 0, "")
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(all) != 3 || all[0].ID != "alert-0" || all[2].ID != "alert-2" {
		t.Errorf("unexpected alerts: %+v", all)
	}

	low, err := st.Alerts(ctx, 1, "LOW")
	if err != nil {
		t.Fatalf("Alerts(LOW): %v", err)
	}
	if len(low) != 1 || low[0].ID != "alert-2" {
		t.Errorf("Alerts(1, LOW) = %+v", low)
	}
	if diff := cmp.Diff(alert.Recommendations("LOW"), low[0].Recommendations); diff != "" {
		t.Errorf("recommendations mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	recs := testRecords(t, 10)

	var wg sync.WaitGroup
	// testing.T is not safe to fail from goroutines; collect instead.
	errCh := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := st.SaveRecords(ctx, recs[n:n+1]); err != nil {
				errCh <- fmt.Errorf("SaveRecords writer %d: %v", n, err)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Records(ctx, 100); err != nil {
				errCh <- fmt.Errorf("Records: %v", err)
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	got, err := st.Records(ctx, 0)
	if err != nil {
		t.Fatalf("final Records: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 records, got %d", len(got))
	}
}
