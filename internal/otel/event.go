// Package otel records structured run events for iasi.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine,
// so emitting never blocks a batch or an evaluation.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Fusion events
	KindIngestSignal  EventKind = "ingest.signal"
	KindIndexComputed EventKind = "index.computed"
	KindAlert         EventKind = "alert.generated"

	// Evaluation events
	KindEvalStart    EventKind = "eval.start"
	KindEvalComplete EventKind = "eval.complete"
	KindEvalError    EventKind = "eval.error"

	// Catalog events
	KindCatalogFetch EventKind = "catalog.fetch"
	KindCatalogError EventKind = "catalog.error"

	// Batch and watcher events
	KindBatchStart    EventKind = "batch.start"
	KindBatchComplete EventKind = "batch.complete"
	KindWatchFile     EventKind = "watch.file"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal run record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "batch", "eval", "catalog", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for the whole process
	RunID     string         `json:"run_id,omitempty"`     // batch run correlation ID
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Event     string         `json:"event,omitempty"` // historical event name, e.g. "Maule_2010"
	Window    int            `json:"window,omitempty"`
	Value     float64        `json:"value,omitempty"`
	Path      string         `json:"path,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
