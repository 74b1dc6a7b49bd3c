package eval

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/timeline"
)

// DefaultMinMagnitude is the smallest magnitude that counts as an event.
const DefaultMinMagnitude = 6.5

// DefaultWindows are the lookahead horizons evaluated by default, in days.
var DefaultWindows = []int{7, 14, 30}

// Report holds the metrics of one timeline against one catalog for one
// window. Values are rounded: ratios to 4 decimals, false alarms to 3,
// lead time and threshold to 2.
type Report struct {
	WindowDays    int     `json:"window_days"`
	AUCPR         float64 `json:"auc_pr"`
	F1            float64 `json:"f1"`
	BestThreshold float64 `json:"best_threshold"`
	FalseAlarmPM  float64 `json:"false_alarm_pm"`
	LeadTimeDays  float64 `json:"lead_time_days"`
	Brier         float64 `json:"brier"`
	Days          int     `json:"n"`
	Positives     int     `json:"positives"`
}

// Evaluator composes the metrics. A nil MinMagnitude means
// DefaultMinMagnitude and a nil Grid means DefaultGrid; a MinMagnitude of 0
// counts every catalog event.
type Evaluator struct {
	MinMagnitude *float64
	Grid         []float64
}

func (e Evaluator) minMagnitude() float64 {
	if e.MinMagnitude == nil {
		return DefaultMinMagnitude
	}
	return *e.MinMagnitude
}

func (e Evaluator) grid() []float64 {
	if e.Grid == nil {
		return DefaultGrid()
	}
	return e.Grid
}

// Evaluate labels the timeline from the catalog events with magnitude at or
// above the minimum and computes every metric for windowDays. The best F1
// threshold is also the threshold used for false alarms and lead time.
func (e Evaluator) Evaluate(points []timeline.Point, events []catalog.Event, windowDays int) (Report, error) {
	if windowDays <= 0 {
		return Report{}, fmt.Errorf("eval: window must be positive, got %d", windowDays)
	}
	if err := timeline.Validate(points); err != nil {
		return Report{}, fmt.Errorf("eval: %w", err)
	}

	dates := timeline.Dates(points)
	scores := timeline.Scores(points)
	qualifying := catalog.FilterMinMagnitude(events, e.minMagnitude())
	labels := Label(dates, catalog.Dates(qualifying), windowDays)

	threshold, f1 := BestThresholdF1(labels, scores, e.grid())
	return Report{
		WindowDays:    windowDays,
		AUCPR:         Round(AUCPR(labels, scores), 4),
		F1:            Round(f1, 4),
		BestThreshold: Round(threshold, 2),
		FalseAlarmPM:  Round(FalseAlarmsPerMonth(labels, scores, threshold, dates), 3),
		LeadTimeDays:  Round(LeadTimeDays(labels, scores, threshold, dates), 2),
		Brier:         Round(Brier(labels, scores), 4),
		Days:          len(points),
		Positives:     countPositives(labels),
	}, nil
}

// EvaluateWindows evaluates each window concurrently. Reports are returned
// in ascending window order.
func (e Evaluator) EvaluateWindows(ctx context.Context, points []timeline.Point, events []catalog.Event, windows []int) ([]Report, error) {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	sorted := slices.Clone(windows)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	reports := make([]Report, len(sorted))
	g, ctx := errgroup.WithContext(ctx)
	for i, w := range sorted {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.Evaluate(points, events, w)
			if err != nil {
				return fmt.Errorf("window %dd: %w", w, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// CSVHeader is the metrics file header.
var CSVHeader = []string{"AUC_PR", "F1", "false_alarms_per_month", "lead_time_days", "brier", "best_threshold"}

func fmtMetric(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteCSV writes r as a one-row metrics CSV.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	cw.Write(CSVHeader)
	cw.Write([]string{
		fmtMetric(r.AUCPR),
		fmtMetric(r.F1),
		fmtMetric(r.FalseAlarmPM),
		fmtMetric(r.LeadTimeDays),
		fmtMetric(r.Brier),
		fmtMetric(r.BestThreshold),
	})
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes r to path, creating parent directories.
func WriteCSVFile(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses a metrics CSV written by WriteCSV. WindowDays, Days and
// Positives are not stored and stay zero.
func ReadCSV(r io.Reader, source string) (Report, error) {
	tbl, err := csvio.ReadTable(r, source)
	if err != nil {
		return Report{}, err
	}
	if len(tbl.Rows) == 0 {
		return Report{}, &csvio.ParseError{Source: source, Line: 2, Field: "AUC_PR", Err: io.ErrUnexpectedEOF}
	}
	var rep Report
	dst := []*float64{&rep.AUCPR, &rep.F1, &rep.FalseAlarmPM, &rep.LeadTimeDays, &rep.Brier, &rep.BestThreshold}
	for k, name := range CSVHeader {
		col, err := tbl.Require(name)
		if err != nil {
			return Report{}, err
		}
		if *dst[k], err = tbl.Float(0, col, name); err != nil {
			return Report{}, err
		}
	}
	return rep, nil
}
