package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/abelbrown/iasi/internal/signal"
)

// WeightTolerance is how far the weight sum may drift from 1.0.
const WeightTolerance = 0.01

// WeightSet holds one non-negative weight per channel. It is an array indexed
// by signal.Channel, so a WeightSet always covers exactly the five channels.
type WeightSet [signal.NumChannels]float64

// DefaultWeights gives deformation (InSAR) the largest share.
var DefaultWeights = WeightSet{
	signal.Animals:     0.15,
	signal.Radon:       0.20,
	signal.Deformation: 0.35,
	signal.Marine:      0.15,
	signal.Sensors:     0.15,
}

// NewWeightSet builds a WeightSet from textual keys (codes, names or legacy
// greek keys). The keys must cover exactly the five channels.
func NewWeightSet(m map[string]float64) (WeightSet, error) {
	var ws WeightSet
	var seen [signal.NumChannels]bool
	var unknown []string
	for key, w := range m {
		c, err := signal.ParseChannel(key)
		if err != nil {
			unknown = append(unknown, key)
			continue
		}
		if seen[c] {
			return WeightSet{}, &ConfigurationError{Reason: fmt.Sprintf("channel %s given more than once", c)}
		}
		seen[c] = true
		ws[c] = w
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return WeightSet{}, &ConfigurationError{Reason: fmt.Sprintf("unknown weight keys: %s", strings.Join(unknown, ", "))}
	}
	var missing []string
	for _, c := range signal.Channels {
		if !seen[c] {
			missing = append(missing, c.Code())
		}
	}
	if len(missing) > 0 {
		return WeightSet{}, &ConfigurationError{Reason: fmt.Sprintf("weights must cover every channel, missing: %s", strings.Join(missing, ", "))}
	}
	return ws, ws.Validate()
}

// Sum returns the total weight.
func (ws WeightSet) Sum() float64 {
	total := 0.0
	for _, w := range ws {
		total += w
	}
	return total
}

// Validate checks that every weight is non-negative and that they sum to 1
// within WeightTolerance.
func (ws WeightSet) Validate() error {
	for _, c := range signal.Channels {
		if ws[c] < 0 || math.IsNaN(ws[c]) {
			return &ConfigurationError{Reason: fmt.Sprintf("weight for %s must be non-negative, got %v", c, ws[c])}
		}
	}
	if total := ws.Sum(); math.Abs(total-1.0) > WeightTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("weights must sum to 1.0, got %.4f", total)}
	}
	return nil
}

// Map returns the weights keyed by channel code, for reports and storage.
func (ws WeightSet) Map() map[string]float64 {
	out := make(map[string]float64, signal.NumChannels)
	for _, c := range signal.Channels {
		out[c.Code()] = ws[c]
	}
	return out
}

// Band is one risk class: Lower is inclusive, Upper exclusive, except for
// the topmost band of a Bands list whose Upper is closed.
type Band struct {
	Label string  `json:"label" yaml:"label"`
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Bands is an ascending list of risk bands that partitions [0,1].
type Bands []Band

// DefaultBands are the auditable thresholds of the index.
var DefaultBands = Bands{
	{Label: "LOW", Lower: 0.0, Upper: 0.3},
	{Label: "MEDIUM", Lower: 0.3, Upper: 0.6},
	{Label: "HIGH", Lower: 0.6, Upper: 0.8},
	{Label: "CRITICAL", Lower: 0.8, Upper: 1.0},
}

// NewBands copies and validates a band list.
func NewBands(bands []Band) (Bands, error) {
	b := make(Bands, len(bands))
	copy(b, bands)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the partition invariant: non-empty, starts at 0, ends at 1,
// each band non-empty and contiguous with the next, labels unique.
func (b Bands) Validate() error {
	if len(b) == 0 {
		return &ConfigurationError{Reason: "at least one risk band is required"}
	}
	if b[0].Lower != 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("first band %q must start at 0, starts at %v", b[0].Label, b[0].Lower)}
	}
	if last := b[len(b)-1]; last.Upper != 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("last band %q must end at 1, ends at %v", last.Label, last.Upper)}
	}
	labels := make(map[string]bool, len(b))
	for i, band := range b {
		if band.Label == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("band %d has no label", i)}
		}
		if labels[band.Label] {
			return &ConfigurationError{Reason: fmt.Sprintf("duplicate band label %q", band.Label)}
		}
		labels[band.Label] = true
		if !(band.Lower < band.Upper) {
			return &ConfigurationError{Reason: fmt.Sprintf("band %q is empty or inverted: [%v, %v)", band.Label, band.Lower, band.Upper)}
		}
		if i > 0 && b[i-1].Upper != band.Lower {
			return &ConfigurationError{Reason: fmt.Sprintf("bands %q and %q are not contiguous (%v != %v)", b[i-1].Label, band.Label, b[i-1].Upper, band.Lower)}
		}
	}
	return nil
}

// Classify returns the label of the band containing v. The scan is
// ascending over half-open intervals; the top band also takes its closed
// upper bound. Values outside [0,1] saturate to the bottom or top band, so
// Classify is total.
func (b Bands) Classify(v float64) string {
	if len(b) == 0 {
		return ""
	}
	for _, band := range b {
		if v >= band.Lower && v < band.Upper {
			return band.Label
		}
	}
	if v < b[0].Lower {
		return b[0].Label
	}
	return b[len(b)-1].Label
}

// Rank returns the position of label in the list, or -1.
func (b Bands) Rank(label string) int {
	for i, band := range b {
		if band.Label == label {
			return i
		}
	}
	return -1
}
