package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

const eventColWidth = 16

var columns = []string{"AUC-PR", "F1", "THR", "FA/MO", "LEAD", "BRIER", "DAYS", "LAST"}

// RenderTable renders one line per event with the metrics of window.
// Rows past height scroll to keep the cursor visible.
func RenderTable(rows []EventRow, cursor, window, width, height int) string {
	if len(rows) == 0 {
		return HelpStyle.Render("No evaluations yet. Press 'e' to run the batch.") + "\n"
	}

	var b strings.Builder
	b.WriteString(HeaderRow.Render(fitLine(headerLine(), width)))
	b.WriteString("\n")

	avail := max(1, height-1)
	offset := 0
	if cursor >= avail {
		offset = cursor - avail + 1
	}
	for i := offset; i < len(rows) && i < offset+avail; i++ {
		b.WriteString(renderRow(rows[i], i == cursor, window, width))
		b.WriteString("\n")
	}
	return b.String()
}

func headerLine() string {
	var b strings.Builder
	b.WriteString(runewidth.FillRight("EVENT", eventColWidth))
	for _, c := range columns {
		b.WriteString(" ")
		b.WriteString(runewidth.FillLeft(c, 7))
	}
	b.WriteString("  BAND")
	return b.String()
}

// FormatRow renders the plain-text cells of r for window.
func FormatRow(r EventRow, window int) string {
	var b strings.Builder
	b.WriteString(runewidth.FillRight(runewidth.Truncate(r.Event, eventColWidth, "…"), eventColWidth))
	if r.Err != nil {
		b.WriteString(" ")
		b.WriteString(r.Err.Error())
		return b.String()
	}
	rep, ok := r.Report(window)
	cells := make([]string, 0, len(columns))
	if ok {
		cells = append(cells,
			fmt.Sprintf("%.4f", rep.AUCPR),
			fmt.Sprintf("%.4f", rep.F1),
			fmt.Sprintf("%.2f", rep.BestThreshold),
			fmt.Sprintf("%.3f", rep.FalseAlarmPM),
			fmt.Sprintf("%.2f", rep.LeadTimeDays),
			fmt.Sprintf("%.4f", rep.Brier),
		)
	} else {
		for range 6 {
			cells = append(cells, "-")
		}
	}
	cells = append(cells, fmt.Sprintf("%d", r.Days), fmt.Sprintf("%.4f", r.LastIndex))
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(runewidth.FillLeft(c, 7))
	}
	return b.String()
}

func renderRow(r EventRow, selected bool, window, width int) string {
	line := fitLine(FormatRow(r, window), width-runewidth.StringWidth(r.Band)-4)
	switch {
	case selected:
		return SelectedRow.Render(line + "  " + r.Band)
	case r.Err != nil:
		return FailedRow.Render(line)
	default:
		return NormalRow.Render(line) + " " + BandStyle(r.Band).Render(r.Band)
	}
}

// fitLine truncates s to width display cells (no-op when width <= 0).
func fitLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
