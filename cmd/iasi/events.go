package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abelbrown/iasi/internal/otel"
)

// eventRecord mirrors otel.Event for decoding. Decoding into a local type
// keeps old log lines readable when the event schema grows.
type eventRecord struct {
	Time      time.Time `json:"t"`
	Level     string    `json:"level"`
	Kind      string    `json:"kind"`
	Comp      string    `json:"comp"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id"`
	DurMs     float64   `json:"dur_ms"`
	Count     int       `json:"count"`
	Event     string    `json:"event"`
	Window    int       `json:"window"`
	Value     float64   `json:"value"`
	Path      string    `json:"path"`
	Err       string    `json:"err"`
	Msg       string    `json:"msg"`
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

type eventFilter struct {
	kind, level, comp, run, event string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.run != "" && !strings.HasPrefix(ev.RunID, f.run) {
		return false
	}
	if f.event != "" && ev.Event != f.event {
		return false
	}
	return true
}

func formatEvent(ev eventRecord) string {
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-16s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.Event != "" {
		parts = append(parts, "event="+ev.Event)
	}
	if ev.Window > 0 {
		parts = append(parts, fmt.Sprintf("window=%dd", ev.Window))
	}
	if ev.Value != 0 {
		parts = append(parts, fmt.Sprintf("value=%.4f", ev.Value))
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.RunID != "" {
		parts = append(parts, "run="+truncate(ev.RunID, 8))
	}
	if ev.Path != "" {
		parts = append(parts, "path="+ev.Path)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func runEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	tail := fs.Int("tail", 50, "Number of recent lines to show")
	follow := fs.Bool("f", false, "Follow mode (like tail -f)")
	var f eventFilter
	fs.StringVar(&f.kind, "kind", "", "Filter by event kind prefix (e.g. 'eval')")
	fs.StringVar(&f.level, "level", "", "Minimum level: debug, info, warn, error")
	fs.StringVar(&f.comp, "comp", "", "Filter by component name")
	fs.StringVar(&f.run, "run", "", "Filter by batch run ID prefix")
	fs.StringVar(&f.event, "event", "", "Filter by historical event name")
	rawJSON := fs.Bool("json", false, "Output raw JSON lines")
	fs.Parse(args)

	logPath := filepath.Join(dataDir(), otel.FileName)
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("event log not found at %s (run a batch first): %w", logPath, err)
	}
	defer file.Close()

	emit := func(ev eventRecord, raw []byte) {
		if *rawJSON {
			fmt.Println(string(raw))
			return
		}
		fmt.Println(formatEvent(ev))
	}

	for _, l := range readTailLines(file, *tail, f.match) {
		emit(l.ev, l.raw)
	}
	if !*follow {
		return nil
	}

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		line = trimLine(line)
		if len(line) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(line, &ev) != nil {
			continue
		}
		if f.match(ev) {
			emit(ev, line)
		}
	}
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	var ring []parsedLine
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil || !match(ev) {
			continue
		}
		// Scanner reuses its buffer.
		line := parsedLine{ev: ev, raw: append([]byte(nil), raw...)}
		if n <= 0 {
			continue
		}
		if len(ring) < n {
			ring = append(ring, line)
		} else {
			copy(ring, ring[1:])
			ring[n-1] = line
		}
	}
	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
