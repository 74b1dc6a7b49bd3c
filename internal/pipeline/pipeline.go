// Package pipeline wires ingestion, fusion and alerting into one flow:
// raw readings in, normalized signals, an index record and an alert out.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/abelbrown/iasi/internal/alert"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/otel"
	"github.com/abelbrown/iasi/internal/signal"
	"github.com/abelbrown/iasi/internal/store"
)

// Default raw range applied when a reading leaves Min or Max unset.
const (
	DefaultMin = 0.0
	DefaultMax = 100.0
)

// Reading is one raw observation for a channel.
type Reading struct {
	Value    float64        `json:"value"`
	Min      *float64       `json:"min,omitempty"`
	Max      *float64       `json:"max,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r Reading) bounds() (lo, hi float64) {
	lo, hi = DefaultMin, DefaultMax
	if r.Min != nil {
		lo = *r.Min
	}
	if r.Max != nil {
		hi = *r.Max
	}
	return lo, hi
}

// Result is everything one ProcessAndAlert call produced.
type Result struct {
	Signals map[signal.Channel]signal.Signal `json:"signals"`
	Record  index.Record                     `json:"index"`
	Alert   alert.Alert                      `json:"alert"`
}

// Pipeline owns a processor, an engine and an alert generator. When a store
// is attached, records and alerts are persisted as they are produced.
type Pipeline struct {
	processor *signal.Processor
	engine    *index.Engine
	alerts    *alert.Generator
	store     *store.Store
	events    *otel.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists every record and alert.
func WithStore(st *store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithEvents emits run events to l.
func WithEvents(l *otel.Logger) Option {
	return func(p *Pipeline) { p.events = l }
}

// WithProcessor replaces the signal processor.
func WithProcessor(sp *signal.Processor) Option {
	return func(p *Pipeline) {
		if sp != nil {
			p.processor = sp
		}
	}
}

// WithAlerts replaces the alert generator.
func WithAlerts(g *alert.Generator) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.alerts = g
		}
	}
}

// New builds a pipeline around engine.
func New(engine *index.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		processor: signal.NewProcessor(),
		engine:    engine,
		alerts:    alert.NewGenerator(alert.WithBands(engine.Bands())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the fusion engine.
func (p *Pipeline) Engine() *index.Engine { return p.engine }

// Ingest normalizes readings keyed by channel code. Every key is checked
// before anything is ingested, so an unknown code leaves the logs untouched.
func (p *Pipeline) Ingest(readings map[string]Reading) (map[signal.Channel]signal.Signal, error) {
	codes := make([]string, 0, len(readings))
	chans := make(map[string]signal.Channel, len(readings))
	for code := range readings {
		c, err := signal.ParseChannel(code)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		chans[code] = c
	}
	sort.Strings(codes)

	out := make(map[signal.Channel]signal.Signal, len(readings))
	for _, code := range codes {
		r := readings[code]
		lo, hi := r.bounds()
		s, err := p.processor.Ingest(chans[code], r.Value, lo, hi, r.Metadata)
		if err != nil {
			return nil, err
		}
		out[s.Channel] = s
		p.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindIngestSignal, Comp: "pipeline",
			Msg: s.Channel.Code(), Value: s.Normalized})
	}
	return out, nil
}

// ProcessAndAlert ingests readings, computes the index and raises an alert.
// All five channels must be present.
func (p *Pipeline) ProcessAndAlert(ctx context.Context, readings map[string]Reading, alertCtx map[string]any) (Result, error) {
	sigs, err := p.Ingest(readings)
	if err != nil {
		return Result{}, err
	}
	rec, err := p.engine.CalculateIndex(sigs)
	if err != nil {
		return Result{}, err
	}
	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindIndexComputed, Comp: "pipeline",
		Value: rec.Value, Msg: rec.Label})

	a := p.alerts.Generate(rec, alertCtx)
	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindAlert, Comp: "pipeline",
		Value: a.IndexValue, Msg: a.Band})
	logging.Info("Index computed", "value", fmt.Sprintf("%.4f", rec.Value), "band", rec.Label, "alert", a.ID)

	if p.store != nil {
		if _, err := p.store.SaveRecords(ctx, []index.Record{rec}); err != nil {
			p.events.Error(otel.KindStoreError, "pipeline", err)
			return Result{}, fmt.Errorf("save record: %w", err)
		}
		if err := p.store.SaveAlert(ctx, a); err != nil {
			p.events.Error(otel.KindStoreError, "pipeline", err)
			return Result{}, fmt.Errorf("save alert: %w", err)
		}
	}
	return Result{Signals: sigs, Record: rec, Alert: a}, nil
}

// Status is a snapshot of the pipeline's state.
type Status struct {
	LatestSignals    map[signal.Channel]signal.Signal `json:"latest_signals"`
	SignalsProcessed int                              `json:"total_signals_processed"`
	IndicesComputed  int                              `json:"total_indices_calculated"`
	AlertsGenerated  int                              `json:"total_alerts_generated"`
	Weights          index.WeightSet                  `json:"current_weights"`
	Bands            index.Bands                      `json:"thresholds"`
	LatestIndex      *index.Record                    `json:"latest_index,omitempty"`
	LatestAlert      *alert.Alert                     `json:"latest_alert,omitempty"`
}

// Status reports totals and the latest outputs.
func (p *Pipeline) Status() Status {
	st := Status{
		LatestSignals:    p.processor.Latest(),
		SignalsProcessed: p.processor.Count(),
		AlertsGenerated:  p.alerts.Count(),
		Weights:          p.engine.Weights(),
		Bands:            p.engine.Bands(),
	}
	hist := p.engine.History(0)
	st.IndicesComputed = len(hist)
	if len(hist) > 0 {
		last := hist[len(hist)-1]
		st.LatestIndex = &last
	}
	if a, ok := p.alerts.Latest(); ok {
		st.LatestAlert = &a
	}
	return st
}

// Trend analyses the last window index values.
func (p *Pipeline) Trend(window int) index.Trend {
	return p.engine.Trend(window)
}

// WeeklyReport summarizes the alerts of the last seven days.
func (p *Pipeline) WeeklyReport() alert.WeeklyReport {
	return p.alerts.WeeklyReport()
}

// Alerts lists generated alerts; see alert.Generator.List.
func (p *Pipeline) Alerts(limit int, band string) []alert.Alert {
	return p.alerts.List(limit, band)
}
