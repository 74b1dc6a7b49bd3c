// Package ui provides the Bubble Tea evaluation dashboard.
package ui

import "github.com/abelbrown/iasi/internal/eval"

// EventRow is one event's latest evaluation.
type EventRow struct {
	Event     string
	Days      int
	LastIndex float64
	Band      string
	Reports   []eval.Report // ascending window
	Err       error
}

// Report returns the report for window, if present.
func (r EventRow) Report(window int) (eval.Report, bool) {
	for _, rep := range r.Reports {
		if rep.WindowDays == window {
			return rep, true
		}
	}
	return eval.Report{}, false
}

// RowsLoaded is sent when evaluation results are read.
type RowsLoaded struct {
	Rows []EventRow
	Err  error
}

// EvalComplete is sent when a re-evaluation finishes.
type EvalComplete struct {
	RunID  string
	Failed int
	Err    error
}
