package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled lets debug-level events through Emit. Set once from
// IASI_TRACE.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("IASI_TRACE") != "")
}

// TraceEnabled reports whether IASI_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the flag for tests.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
