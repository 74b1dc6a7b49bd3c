// Package batch runs the retrospective evaluation over every configured
// historical event: build the timeline, score it against the catalog and
// write the timeline, metrics and consolidated JSON outputs.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/config"
	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/metrics"
	"github.com/abelbrown/iasi/internal/otel"
	"github.com/abelbrown/iasi/internal/store"
	"github.com/abelbrown/iasi/internal/timeline"
)

// Output subdirectories under the configured outputs dir.
const (
	TimelinesDir = "timelines"
	MetricsDir   = "metrics"
	IndicesDir   = "indices"
)

// Result is the outcome for one event.
type Result struct {
	Event        string        `json:"event"`
	Days         int           `json:"days"`
	Catalog      int           `json:"catalog_events"`
	Reports      []eval.Report `json:"reports,omitempty"`
	TimelinePath string        `json:"timeline_path,omitempty"`
	MetricsPaths []string      `json:"metrics_paths,omitempty"`
	JSONPath     string        `json:"json_path,omitempty"`
	Err          error         `json:"-"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`
}

// Failed returns the results that carry an error.
func (s Summary) Failed() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Runner evaluates configured events. Store, metrics and events are optional.
type Runner struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	events  *otel.Logger
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore persists timelines, catalogs and reports.
func WithStore(st *store.Store) Option { return func(r *Runner) { r.store = st } }

// WithMetrics exports gauges and writes the Prometheus textfile after a run.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithEvents emits run events to l.
func WithEvents(l *otel.Logger) Option { return func(r *Runner) { r.events = l } }

// WithClock overrides the run clock.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) outDir(sub string) string {
	return filepath.Join(r.cfg.Resolve(r.cfg.OutputsDir), sub)
}

// TimelinePath is where the timeline of event is written.
func (r *Runner) TimelinePath(event string) string {
	return filepath.Join(r.outDir(TimelinesDir), event+"_iasi.csv")
}

// MetricsPath is where the report of event for one window is written.
func (r *Runner) MetricsPath(event string, window int) string {
	return filepath.Join(r.outDir(MetricsDir), fmt.Sprintf("%s_metrics_%dd.csv", event, window))
}

// JSONPath is where the consolidated export of event is written.
func (r *Runner) JSONPath(event string) string {
	return filepath.Join(r.outDir(IndicesDir), event, "iasi.json")
}

// Run evaluates the named events, or every configured event when names is
// empty. Events run concurrently, bounded by the configured concurrency. A
// failing event does not stop the others; the returned error joins every
// per-event failure.
func (r *Runner) Run(ctx context.Context, names ...string) (Summary, error) {
	events, err := r.selectEvents(names)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{RunID: uuid.NewString(), Started: r.now()}
	r.metrics.BatchStarted()
	r.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindBatchStart, Comp: "batch",
		RunID: sum.RunID, Count: len(events)})
	logging.Info("Batch started", "run", sum.RunID, "events", len(events))

	sources, err := timeline.LoadSignals(r.cfg.Resolve(r.cfg.SignalsDir))
	if err != nil {
		err = fmt.Errorf("load signals: %w", err)
		r.finish(&sum, err)
		return sum, err
	}

	sum.Results = make([]Result, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Evaluation.Concurrency))
	for i, ev := range events {
		g.Go(func() error {
			res := r.runEvent(gctx, sum.RunID, ev, sources)
			sum.Results[i] = res
			// Cancellation aborts the run; other failures are per event.
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.finish(&sum, err)
		return sum, err
	}

	var errs []error
	for _, res := range sum.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Event, res.Err))
		}
	}
	err = errors.Join(errs...)
	r.finish(&sum, err)
	return sum, err
}

// finish closes a started run on every exit path: duration, metrics,
// textfile and the batch.complete event, at error level when err is set.
func (r *Runner) finish(sum *Summary, err error) {
	sum.Duration = r.now().Sub(sum.Started)
	ok, failed := 0, 0
	for _, res := range sum.Results {
		switch {
		case res.Err != nil:
			failed++
		case res.Event != "":
			ok++
		}
	}
	r.metrics.BatchFinished(sum.Duration, err == nil, r.now())
	if r.metrics != nil {
		if path, werr := r.metrics.WriteTextfile(r.outDir(MetricsDir)); werr != nil {
			logging.Warn("Metrics textfile not written", "error", werr)
		} else {
			logging.Debug("Metrics textfile written", "path", path)
		}
	}

	ev := otel.Event{Level: otel.LevelInfo, Kind: otel.KindBatchComplete, Comp: "batch",
		RunID: sum.RunID, Count: ok, Dur: sum.Duration}
	if err != nil {
		ev.Level, ev.Err = otel.LevelError, err.Error()
	}
	r.events.Emit(ev)
	logging.Info("Batch finished", "run", sum.RunID, "ok", ok, "failed", failed,
		"duration", sum.Duration.Round(time.Millisecond), "error", err)
}

func (r *Runner) selectEvents(names []string) ([]config.EventConfig, error) {
	if len(names) == 0 {
		return r.cfg.Events, nil
	}
	out := make([]config.EventConfig, 0, len(names))
	for _, n := range names {
		ev, ok := r.cfg.Event(n)
		if !ok {
			return nil, fmt.Errorf("unknown event %q", n)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *Runner) runEvent(ctx context.Context, runID string, ev config.EventConfig, sources timeline.Sources) (res Result) {
	res.Event = ev.Name
	start := time.Now()
	defer func() {
		if res.Err != nil {
			r.metrics.EventFailed(ev.Name)
			r.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindEvalError, Comp: "batch",
				RunID: runID, Event: ev.Name, Err: res.Err.Error()})
			logging.Error("Event evaluation failed", "event", ev.Name, "error", res.Err)
			return
		}
		r.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindEvalComplete, Comp: "batch",
			RunID: runID, Event: ev.Name, Count: res.Days, Dur: time.Since(start)})
	}()
	r.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindEvalStart, Comp: "batch", RunID: runID, Event: ev.Name})

	features, err := timeline.ReadFeatures(r.cfg.Resolve(ev.Features))
	if err != nil {
		res.Err = fmt.Errorf("features: %w", err)
		return res
	}
	engine, err := r.cfg.Engine()
	if err != nil {
		res.Err = err
		return res
	}
	built, err := timeline.Build(engine, sources.WithFeatures(features))
	if err != nil {
		res.Err = fmt.Errorf("build timeline: %w", err)
		return res
	}

	res.TimelinePath = r.TimelinePath(ev.Name)
	if err := timeline.WriteFile(res.TimelinePath, built); err != nil {
		res.Err = fmt.Errorf("write timeline: %w", err)
		return res
	}
	// Metrics are computed on the timeline as written so that they can be
	// reproduced from the CSV alone.
	points, err := timeline.ReadFile(res.TimelinePath)
	if err != nil {
		res.Err = fmt.Errorf("reread timeline: %w", err)
		return res
	}
	res.Days = len(points)

	quakes, err := catalog.ReadFile(r.cfg.CatalogPath(ev))
	if err != nil {
		res.Err = fmt.Errorf("catalog: %w", err)
		return res
	}
	res.Catalog = len(quakes)

	reports, err := r.cfg.Evaluator().EvaluateWindows(ctx, points, quakes, r.cfg.Evaluation.Windows)
	if err != nil {
		res.Err = err
		return res
	}
	res.Reports = reports
	for _, rep := range reports {
		path := r.MetricsPath(ev.Name, rep.WindowDays)
		if err := eval.WriteCSVFile(path, rep); err != nil {
			res.Err = fmt.Errorf("write metrics: %w", err)
			return res
		}
		res.MetricsPaths = append(res.MetricsPaths, path)
		r.metrics.ObserveReport(ev.Name, rep)
	}
	r.metrics.ObserveTimeline(ev.Name, points)

	res.JSONPath = r.JSONPath(ev.Name)
	if err := WriteExport(res.JSONPath, NewExport(ev, engine.Weights().Map(), engine.Bands(), points, reports)); err != nil {
		res.Err = fmt.Errorf("write export: %w", err)
		return res
	}

	if r.store != nil {
		if err := r.persist(ctx, runID, ev.Name, points, quakes, reports); err != nil {
			r.events.Error(otel.KindStoreError, "batch", err)
			res.Err = fmt.Errorf("store: %w", err)
			return res
		}
	}
	logging.Debug("Event evaluated", "event", ev.Name, "days", res.Days, "catalog", res.Catalog)
	return res
}

func (r *Runner) persist(ctx context.Context, runID, event string, points []timeline.Point, quakes []catalog.Event, reports []eval.Report) error {
	if err := r.store.SaveTimeline(ctx, event, points); err != nil {
		return err
	}
	if _, err := r.store.SaveCatalog(ctx, event, quakes); err != nil {
		return err
	}
	return r.store.SaveReports(ctx, runID, event, reports, r.now())
}

// Meta describes the event and the configuration behind an export.
type Meta struct {
	Name       string             `json:"name"`
	Latitude   float64            `json:"lat"`
	Longitude  float64            `json:"lon"`
	Weights    map[string]float64 `json:"weights"`
	Thresholds []BandExport       `json:"thresholds"`
}

// BandExport is one band of the export metadata.
type BandExport struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Day is one timeline row of the export.
type Day struct {
	Date string  `json:"date"`
	A    float64 `json:"A"`
	R    float64 `json:"R"`
	D    float64 `json:"D"`
	M    float64 `json:"M"`
	S    float64 `json:"S"`
	IASi float64 `json:"IASi"`
	Band string  `json:"band,omitempty"`
}

// Export is the consolidated per-event document. Metrics are keyed by
// window length in days.
type Export struct {
	Meta     Meta                   `json:"meta"`
	Timeline []Day                  `json:"timeline"`
	Metrics  map[string]eval.Report `json:"metrics"`
}

// NewExport assembles the consolidated document of one event.
func NewExport(ev config.EventConfig, weights map[string]float64, bands index.Bands, points []timeline.Point, reports []eval.Report) Export {
	x := Export{
		Meta: Meta{
			Name:      ev.Name,
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
			Weights:   weights,
		},
		Timeline: make([]Day, len(points)),
		Metrics:  make(map[string]eval.Report, len(reports)),
	}
	for _, b := range bands {
		x.Meta.Thresholds = append(x.Meta.Thresholds, BandExport{Label: b.Label, Lower: b.Lower, Upper: b.Upper})
	}
	for i, p := range points {
		c := p.Channels
		x.Timeline[i] = Day{
			Date: csvio.FormatDate(p.Date),
			A:    c[0], R: c[1], D: c[2], M: c[3], S: c[4],
			IASi: p.Score,
			Band: p.Band,
		}
	}
	for _, rep := range reports {
		x.Metrics[strconv.Itoa(rep.WindowDays)] = rep
	}
	return x
}

// WriteExport writes x as indented JSON, creating parent directories.
func WriteExport(path string, x Export) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadExport loads a document written by WriteExport.
func ReadExport(path string) (Export, error) {
	var x Export
	data, err := os.ReadFile(path)
	if err != nil {
		return x, err
	}
	if err := json.Unmarshal(data, &x); err != nil {
		return x, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return x, nil
}
