package signal

import (
	"maps"
	"time"

	"github.com/abelbrown/iasi/internal/history"
)

// Signal is one normalized observation. Values are immutable once created;
// Metadata is copied on ingest and must not be mutated by callers.
type Signal struct {
	Channel    Channel        `json:"channel"`
	Raw        float64        `json:"raw_value"`
	Min        float64        `json:"min_val"`
	Max        float64        `json:"max_val"`
	Normalized float64        `json:"normalized_value"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Normalize maps value onto [0,1] using linear min-max scaling against
// [lo, hi], clamping anything outside the range. A zero-width range has no
// meaningful position, so it yields the midpoint 0.5.
func Normalize(value, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	n := (value - lo) / (hi - lo)
	return min(max(n, 0), 1)
}

// Processor normalizes incoming observations and appends them to one
// append-only log per channel.
type Processor struct {
	logs [NumChannels]*history.Log[Signal]
	now  func() time.Time
}

// NewProcessor creates a Processor with empty per-channel logs.
func NewProcessor() *Processor {
	p := &Processor{now: time.Now}
	for _, c := range Channels {
		p.logs[c] = history.New[Signal]()
	}
	return p
}

// SetClock overrides the timestamp source (tests, replays).
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// Ingest normalizes value against [lo, hi], records the resulting Signal in
// the channel's log and returns it.
func (p *Processor) Ingest(c Channel, value, lo, hi float64, metadata map[string]any) (Signal, error) {
	if !c.Valid() {
		return Signal{}, &UnknownChannelError{Name: c.Code()}
	}
	s := Signal{
		Channel:    c,
		Raw:        value,
		Min:        lo,
		Max:        hi,
		Normalized: Normalize(value, lo, hi),
		Timestamp:  p.now(),
		Metadata:   maps.Clone(metadata),
	}
	p.logs[c].Append(s)
	return s, nil
}

// IngestCode is Ingest for callers holding a textual channel key.
func (p *Processor) IngestCode(code string, value, lo, hi float64, metadata map[string]any) (Signal, error) {
	c, err := ParseChannel(code)
	if err != nil {
		return Signal{}, err
	}
	return p.Ingest(c, value, lo, hi, metadata)
}

// Latest returns the most recent signal of every channel that has one.
func (p *Processor) Latest() map[Channel]Signal {
	out := make(map[Channel]Signal, NumChannels)
	for _, c := range Channels {
		if s, ok := p.logs[c].Latest(); ok {
			out[c] = s
		}
	}
	return out
}

// History returns up to limit of the most recent signals for c
// (limit <= 0 returns all of them).
func (p *Processor) History(c Channel, limit int) ([]Signal, error) {
	if !c.Valid() {
		return nil, &UnknownChannelError{Name: c.Code()}
	}
	return p.logs[c].Last(limit), nil
}

// Count returns the total number of signals ingested across channels.
func (p *Processor) Count() int {
	n := 0
	for _, c := range Channels {
		n += p.logs[c].Len()
	}
	return n
}
