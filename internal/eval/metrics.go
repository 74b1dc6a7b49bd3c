// Package eval scores a daily index timeline against an earthquake catalog.
//
// Labels are forward looking: day d is positive when a qualifying event
// falls in (d, d+window]. The metric functions are pure and safe for
// concurrent use; they take parallel label/score (and date) slices, and
// days past the end of the shortest slice are ignored.
package eval

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/abelbrown/iasi/internal/csvio"
)

// DaysPerMonth converts a span in days to months for the false-alarm rate.
const DaysPerMonth = 30.4375

// Label marks each date that has an event strictly after it and no more
// than windowDays later.
func Label(dates, eventDates []time.Time, windowDays int) []bool {
	events := slices.Clone(eventDates)
	slices.SortFunc(events, func(a, b time.Time) int { return a.Compare(b) })

	labels := make([]bool, len(dates))
	for i, d := range dates {
		end := d.AddDate(0, 0, windowDays)
		j := sort.Search(len(events), func(k int) bool { return events[k].After(d) })
		labels[i] = j < len(events) && !events[j].After(end)
	}
	return labels
}

// aligned cuts labels and scores to their common length.
func aligned(labels []bool, scores []float64) ([]bool, []float64) {
	n := min(len(labels), len(scores))
	return labels[:n], scores[:n]
}

// alignedDates cuts labels, scores and dates to their common length.
func alignedDates(labels []bool, scores []float64, dates []time.Time) ([]bool, []float64, []time.Time) {
	n := min(len(labels), len(scores), len(dates))
	return labels[:n], scores[:n], dates[:n]
}

func countPositives(labels []bool) int {
	n := 0
	for _, l := range labels {
		if l {
			n++
		}
	}
	return n
}

// AUCPR is the trapezoidal area under the precision-recall curve obtained by
// sweeping the scores in descending order, starting from (recall 0,
// precision 1). Equal scores keep their input order. With no positives the
// area is 0. Only the days covered by both slices count.
func AUCPR(labels []bool, scores []float64) float64 {
	labels, scores = aligned(labels, scores)
	positives := countPositives(labels)
	if positives == 0 {
		return 0
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	tp, fp, fn := 0, 0, positives
	prevRecall, prevPrecision := 0.0, 1.0
	area := 0.0
	for _, i := range order {
		if labels[i] {
			tp++
			fn--
		} else {
			fp++
		}
		recall := float64(tp) / float64(tp+fn)
		precision := 1.0
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		area += (recall - prevRecall) * (precision + prevPrecision) / 2
		prevRecall, prevPrecision = recall, precision
	}
	return area
}

// binarize returns score >= threshold per day.
func binarize(scores []float64, threshold float64) []bool {
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = s >= threshold
	}
	return out
}

// F1AtThreshold is the F1 score of predicting score >= threshold.
// Precision and recall with an empty denominator are 0, and so is F1 when
// both are 0. Only the days covered by both slices count.
func F1AtThreshold(labels []bool, scores []float64, threshold float64) float64 {
	labels, scores = aligned(labels, scores)
	var tp, fp, fn int
	for i, s := range scores {
		predicted := s >= threshold
		switch {
		case predicted && labels[i]:
			tp++
		case predicted:
			fp++
		case labels[i]:
			fn++
		}
	}
	var precision, recall float64
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// BestThresholdF1 scans grid in ascending order and returns the threshold
// with the highest F1. Ties go to the lowest threshold. An empty grid
// returns (0.5, 0).
func BestThresholdF1(labels []bool, scores []float64, grid []float64) (threshold, f1 float64) {
	if len(grid) == 0 {
		return 0.5, 0
	}
	sorted := slices.Clone(grid)
	slices.Sort(sorted)

	threshold, f1 = sorted[0], math.Inf(-1)
	for _, t := range sorted {
		if v := F1AtThreshold(labels, scores, t); v > f1 {
			threshold, f1 = t, v
		}
	}
	return threshold, f1
}

// FalseAlarmsPerMonth counts alarm onsets (rising edges at i > 0) after
// which no day, from the onset to the end of the series, is labeled
// positive, divided by the span of dates in months (at least 1).
//
// The lookahead runs to the end of the series rather than the label
// window, so an onset years before an event is not a false alarm. Only the
// days covered by all three slices count.
func FalseAlarmsPerMonth(labels []bool, scores []float64, threshold float64, dates []time.Time) float64 {
	labels, scores, dates = alignedDates(labels, scores, dates)
	if len(dates) == 0 {
		return 0
	}
	alarm := binarize(scores, threshold)

	// lastPositive is the index of the last positive label, or -1.
	lastPositive := -1
	for i, l := range labels {
		if l {
			lastPositive = i
		}
	}

	falseAlarms := 0
	for i := 1; i < len(alarm); i++ {
		if alarm[i] && !alarm[i-1] && i > lastPositive {
			falseAlarms++
		}
	}
	span := float64(csvio.DaysBetween(dates[0], dates[len(dates)-1]))
	months := max(1, span/DaysPerMonth)
	return float64(falseAlarms) / months
}

// LeadTimeDays averages, over positive days that have one, the days since
// the most recent day at or before them whose score met the threshold.
// Positive days with no earlier alarm are left out; no such days gives 0.
// Only the days covered by all three slices count.
func LeadTimeDays(labels []bool, scores []float64, threshold float64, dates []time.Time) float64 {
	labels, scores, dates = alignedDates(labels, scores, dates)
	lastOn := -1
	total, n := 0, 0
	for i, s := range scores {
		if s >= threshold {
			lastOn = i
		}
		if labels[i] && lastOn >= 0 {
			total += csvio.DaysBetween(dates[lastOn], dates[i])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// Brier is the mean squared difference between the 0/1 labels and the raw
// scores. Empty input scores 0. Only the days covered by both slices count.
func Brier(labels []bool, scores []float64) float64 {
	labels, scores = aligned(labels, scores)
	if len(labels) == 0 {
		return 0
	}
	var sum float64
	for i, s := range scores {
		y := 0.0
		if labels[i] {
			y = 1
		}
		sum += (y - s) * (y - s)
	}
	return sum / float64(len(labels))
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// Grid returns start, start+step, ... up to stop inclusive, each rounded to
// the step's precision so 0.65+0.01*k lands on exact two-decimal values.
func Grid(start, stop, step float64) []float64 {
	if step <= 0 || stop < start {
		return nil
	}
	decimals := 0
	for s := step; decimals < 10 && math.Abs(s-math.Round(s)) > 1e-9; s *= 10 {
		decimals++
	}
	n := int(math.Floor((stop-start)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = Round(start+float64(i)*step, decimals)
	}
	return out
}

// DefaultGrid is 0.65, 0.66, ..., 0.80.
func DefaultGrid() []float64 { return Grid(0.65, 0.80, 0.01) }
