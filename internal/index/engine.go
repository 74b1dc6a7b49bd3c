// Package index fuses the five normalized channels into a single bounded risk
// index, classifies it into auditable risk bands and estimates its short-term
// trend.
package index

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/iasi/internal/history"
	"github.com/abelbrown/iasi/internal/signal"
)

// Contribution is one channel's share of an index value.
type Contribution struct {
	Channel      signal.Channel `json:"channel"`
	Normalized   float64        `json:"normalized_value"`
	Weight       float64        `json:"weight"`
	Contribution float64        `json:"contribution"`
}

// Record is the fully traceable result of one fusion. Value equals the sum
// of the contributions; Weights and Bands are snapshots of the configuration
// that produced it.
type Record struct {
	ID            string                           `json:"id"`
	Value         float64                          `json:"index_value"`
	Label         string                           `json:"risk_level"`
	Contributions [signal.NumChannels]Contribution `json:"signal_contributions"`
	Weights       WeightSet                        `json:"weights_used"`
	Bands         Bands                            `json:"thresholds"`
	Timestamp     time.Time                        `json:"timestamp"`
}

// Engine owns a validated configuration and an append-only history of the
// records it produced. CalculateIndex and Trend are serialized by the
// engine's mutex, so one Engine may be shared between goroutines.
type Engine struct {
	mu      sync.Mutex
	weights WeightSet
	bands   Bands
	log     *history.Log[Record]
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory makes the engine append to (and read trends from) an existing
// log instead of a fresh one.
func WithHistory(log *history.Log[Record]) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates weights and bands and returns a ready Engine.
// A nil bands list selects DefaultBands.
func NewEngine(weights WeightSet, bands Bands, opts ...Option) (*Engine, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if bands == nil {
		bands = DefaultBands
	}
	b, err := NewBands(bands)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		weights: weights,
		bands:   b,
		log:     history.New[Record](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Weights returns the engine's weight set.
func (e *Engine) Weights() WeightSet { return e.weights }

// Bands returns a copy of the engine's bands.
func (e *Engine) Bands() Bands {
	out := make(Bands, len(e.bands))
	copy(out, e.bands)
	return out
}

// Classify maps an index value to its risk band label.
func (e *Engine) Classify(v float64) string {
	return e.bands.Classify(v)
}

// CalculateIndex fuses one signal per channel into a Record stamped with the
// engine clock. See CalculateIndexAt.
func (e *Engine) CalculateIndex(signals map[signal.Channel]signal.Signal) (Record, error) {
	return e.CalculateIndexAt(e.now(), signals)
}

// CalculateIndexAt computes Σ weight·normalized over all five channels,
// classifies the result and appends the Record to the history. Every channel
// must be present; otherwise nothing is computed and a MissingSignalError
// names each absent channel.
func (e *Engine) CalculateIndexAt(at time.Time, signals map[signal.Channel]signal.Signal) (Record, error) {
	var missing []signal.Channel
	for _, c := range signal.Channels {
		if _, ok := signals[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Record{}, &MissingSignalError{Missing: missing}
	}

	rec := Record{
		ID:        uuid.NewString(),
		Weights:   e.weights,
		Bands:     e.Bands(),
		Timestamp: at,
	}
	for _, c := range signal.Channels {
		v := signals[c].Normalized
		w := e.weights[c]
		contrib := v * w
		rec.Contributions[c] = Contribution{Channel: c, Normalized: v, Weight: w, Contribution: contrib}
		rec.Value += contrib
	}
	rec.Label = e.bands.Classify(rec.Value)

	e.mu.Lock()
	e.log.Append(rec)
	e.mu.Unlock()
	return rec, nil
}

// History returns up to limit of the most recent records (all when limit <= 0).
func (e *Engine) History(limit int) []Record {
	return e.log.Last(limit)
}

var interpretations = map[string]string{
	"LOW":      "Low seismic risk. Normal conditions.",
	"MEDIUM":   "Medium seismic risk. Continuous monitoring recommended.",
	"HIGH":     "High seismic risk. Activate preparedness protocols.",
	"CRITICAL": "Critical seismic risk. Issue an immediate alert.",
}

// Interpretation returns a one-line reading of a default band label.
// Custom labels get "Unknown level".
func Interpretation(label string) string {
	if s, ok := interpretations[label]; ok {
		return s
	}
	return "Unknown level"
}

// Direction classifies the slope of the index over a trend window.
type Direction string

const (
	TrendInsufficient Direction = "insufficient_data"
	TrendIncreasing   Direction = "increasing"
	TrendDecreasing   Direction = "decreasing"
	TrendStable       Direction = "stable"
)

// TrendSlopeThreshold is the per-record slope beyond which the index is
// considered to be moving.
const TrendSlopeThreshold = 0.05

// DefaultTrendWindow is the number of records Trend looks at by default.
const DefaultTrendWindow = 7

// Trend summarizes the last records of the history. With fewer than two
// records in total Direction is TrendInsufficient and the statistics are zero.
type Trend struct {
	Direction  Direction `json:"trend"`
	WindowSize int       `json:"window_size"`
	Slope      float64   `json:"slope"`
	Mean       float64   `json:"mean_index"`
	StdDev     float64   `json:"std_dev"`
	Min        float64   `json:"min_index"`
	Max        float64   `json:"max_index"`
}

// Trend fits a least-squares line to (position, value) over the last window
// records (DefaultTrendWindow when window <= 0).
func (e *Engine) Trend(window int) Trend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	e.mu.Lock()
	total := e.log.Len()
	recent := e.log.Last(window)
	e.mu.Unlock()

	if total < 2 {
		return Trend{Direction: TrendInsufficient}
	}

	values := make([]float64, len(recent))
	for i, r := range recent {
		values[i] = r.Value
	}
	return trendOf(values)
}

func trendOf(values []float64) Trend {
	n := float64(len(values))
	t := Trend{WindowSize: len(values), Min: values[0], Max: values[0]}

	var sum float64
	for _, v := range values {
		sum += v
		t.Min = min(t.Min, v)
		t.Max = max(t.Max, v)
	}
	t.Mean = sum / n

	var ss float64
	for _, v := range values {
		ss += (v - t.Mean) * (v - t.Mean)
	}
	t.StdDev = math.Sqrt(ss / n)

	t.Slope = slope(values)
	switch {
	case t.Slope > TrendSlopeThreshold:
		t.Direction = TrendIncreasing
	case t.Slope < -TrendSlopeThreshold:
		t.Direction = TrendDecreasing
	default:
		t.Direction = TrendStable
	}
	return t
}

// slope is the degree-1 least-squares coefficient of values against their
// positions 0..n-1. A single point has slope 0.
func slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	return num / den
}

// MarshalJSON encodes the weights keyed by channel code.
func (ws WeightSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ws.Map())
}

// UnmarshalJSON decodes and validates a code-keyed weight map.
func (ws *WeightSet) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := NewWeightSet(m)
	if err != nil {
		return err
	}
	*ws = parsed
	return nil
}
