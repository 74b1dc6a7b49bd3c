package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/timeline"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.BatchStarted()
	m.ObserveReport("Illapel_2015", eval.Report{WindowDays: 7, AUCPR: 0.8314, F1: 0.6, BestThreshold: 0.5, Brier: 0.368})
	m.ObserveTimeline("Illapel_2015", []timeline.Point{{Score: 0.2}, {Score: 0.71}})
	m.EventFailed("Maule_2010")
	m.BatchFinished(1500*time.Millisecond, true, time.Unix(1700000000, 0))

	path, err := m.WriteTextfile(t.TempDir())
	if err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`iasi_eval_auc_pr{event="Illapel_2015",window_days="7"} 0.8314`,
		`iasi_eval_brier{event="Illapel_2015",window_days="7"} 0.368`,
		`iasi_timeline_days{event="Illapel_2015"} 2`,
		`iasi_timeline_last_index{event="Illapel_2015"} 0.71`,
		`iasi_batch_runs_total 1`,
		`iasi_batch_errors_total{event="Maule_2010"} 1`,
		`iasi_batch_duration_seconds_count 1`,
		`iasi_batch_last_success_timestamp_seconds 1.7e+09`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReport("Maule_2010", eval.Report{WindowDays: 30, F1: 0.25})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `iasi_eval_f1{event="Maule_2010",window_days="30"} 0.25`) {
		t.Errorf("unexpected exposition:\n%s", body)
	}
}

func TestNilMetricsDiscards(t *testing.T) {
	var m *Metrics
	m.BatchStarted()
	m.ObserveReport("x", eval.Report{})
	m.ObserveTimeline("x", nil)
	m.EventFailed("x")
	m.BatchFinished(time.Second, true, time.Now())
	if path, err := m.WriteTextfile(t.TempDir()); path != "" || err != nil {
		t.Errorf("nil WriteTextfile = %q, %v", path, err)
	}
}
