package otel

// Goroutine safety:
// The drain goroutine is the sole reader of l.ch and the sole writer to l.w.

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// writerChanSize is the capacity of the async write channel.
	writerChanSize = 4096

	// FileName is the event log inside the data directory.
	FileName = "iasi.events.jsonl"
)

// Logger serializes events as JSONL via an async background writer.
// Goroutine-safe.
type Logger struct {
	sessionID string
	ch        chan []byte
	w         io.Writer
	closer    io.Closer     // file opened by Open, nil otherwise
	dropped   atomic.Uint64 // events dropped due to full channel, encode failure, or write error
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w asynchronously.
// Call Close() to flush and stop.
func NewLogger(w io.Writer) *Logger {
	var sid [8]byte
	_, _ = rand.Read(sid[:])

	l := &Logger{
		sessionID: fmt.Sprintf("%x", sid[:]),
		ch:        make(chan []byte, writerChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// Open appends events to dataDir/iasi.events.jsonl.
func Open(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l := NewLogger(f)
	l.closer = f
	return l, nil
}

// NewNullLogger creates a Logger that discards output.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) drain() {
	defer close(l.done)
	for data := range l.ch {
		if _, err := l.w.Write(data); err != nil {
			l.dropped.Add(1)
		}
	}
}

// SessionID returns the random identifier stamped on every event.
func (l *Logger) SessionID() string { return l.sessionID }

// Emit queues an event. Sets Time (if zero) and SessionID. Non-blocking:
// if the channel is full or the logger is closed, the event is dropped and
// the drop counter is incremented. A nil Logger discards, and debug events
// are skipped unless tracing is enabled.
func (l *Logger) Emit(e Event) {
	if l == nil || (e.Level == LevelDebug && !TraceEnabled()) {
		return
	}
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- data:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe (logged as empty string).
func (l *Logger) Error(kind EventKind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes pending events, stops the drain goroutine, closes the file
// opened by Open and reports dropped events to stderr.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done
		if l.closer != nil {
			l.closer.Close()
		}

		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "iasi: %d events dropped during session %s\n", d, l.sessionID)
		}
	})
}
