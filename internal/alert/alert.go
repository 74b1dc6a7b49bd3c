// Package alert turns index records into alerts with recommendations and
// aggregates them into weekly reports.
package alert

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/iasi/internal/history"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/signal"
)

// Alert is an index record enriched with a reading of its band, what to do
// about it and the ISO week it belongs to.
type Alert struct {
	ID              string                                 `json:"alert_id"`
	RecordID        string                                 `json:"record_id,omitempty"`
	Timestamp       time.Time                              `json:"timestamp"`
	IndexValue      float64                                `json:"index_value"`
	Band            string                                 `json:"risk_level"`
	Contributions   [signal.NumChannels]index.Contribution `json:"signal_contributions"`
	Interpretation  string                                 `json:"interpretation"`
	Recommendations []string                               `json:"recommendations"`
	Context         map[string]any                         `json:"context,omitempty"`
	Week            int                                    `json:"week_number"`
	Year            int                                    `json:"year"`
}

var recommendations = map[string][]string{
	"LOW": {
		"Keep routine monitoring of all signals",
		"Review and update emergency plans",
		"Continue sensor calibration",
	},
	"MEDIUM": {
		"Increase monitoring frequency",
		"Notify rapid response teams",
		"Check the state of critical infrastructure",
		"Prepare preventive communications",
	},
	"HIGH": {
		"Activate preparedness protocols",
		"Notify local and regional authorities",
		"Intensify monitoring of critical signals",
		"Prepare preventive evacuations if needed",
		"Activate emergency operations centers",
	},
	"CRITICAL": {
		"IMMEDIATE ALERT: issue an urgent communication",
		"Activate all emergency protocols",
		"Coordinate with national authorities",
		"Prepare evacuation of high-risk zones",
		"Activate the emergency chain of command",
		"Keep constant communication with the population",
	},
}

// Recommendations returns the actions for a default band label. Unknown
// labels get a single "consult experts" entry.
func Recommendations(label string) []string {
	if r, ok := recommendations[label]; ok {
		return append([]string(nil), r...)
	}
	return []string{"Consult experts"}
}

// Generator creates alerts and keeps them in an append-only log.
type Generator struct {
	log   *history.Log[Alert]
	bands index.Bands
	now   func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithLog seeds the generator with an existing alert log.
func WithLog(log *history.Log[Alert]) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// WithBands sets the band order used to break weekly ties.
func WithBands(b index.Bands) Option {
	return func(g *Generator) {
		if len(b) > 0 {
			g.bands = b
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		log:   history.New[Alert](),
		bands: index.DefaultBands,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds an alert for rec and appends it to the log. ctx is copied.
func (g *Generator) Generate(rec index.Record, ctx map[string]any) Alert {
	ts := g.now()
	year, week := ts.ISOWeek()
	a := Alert{
		ID:              uuid.NewString(),
		RecordID:        rec.ID,
		Timestamp:       ts,
		IndexValue:      rec.Value,
		Band:            rec.Label,
		Contributions:   rec.Contributions,
		Interpretation:  index.Interpretation(rec.Label),
		Recommendations: Recommendations(rec.Label),
		Context:         maps.Clone(ctx),
		Week:            week,
		Year:            year,
	}
	g.log.Append(a)
	return a
}

// Count returns the number of alerts generated so far.
func (g *Generator) Count() int { return g.log.Len() }

// Latest returns the most recent alert.
func (g *Generator) Latest() (Alert, bool) { return g.log.Latest() }

// List returns alerts oldest first, optionally filtered by band and then
// truncated to the last limit entries (all when limit <= 0).
func (g *Generator) List(limit int, band string) []Alert {
	all := g.log.Last(0)
	if band != "" {
		kept := all[:0]
		for _, a := range all {
			if a.Band == band {
				kept = append(kept, a)
			}
		}
		all = kept
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// Report statuses.
const (
	StatusOK     = "OK"
	StatusNoData = "NO_DATA"
)

// WeeklyReport consolidates the alerts of a seven-day period.
type WeeklyReport struct {
	ID              string         `json:"report_id"`
	Status          string         `json:"status"`
	Message         string         `json:"message,omitempty"`
	Start           time.Time      `json:"start,omitzero"`
	End             time.Time      `json:"end,omitzero"`
	Week            int            `json:"week_number"`
	Year            int            `json:"year"`
	Total           int            `json:"total_alerts"`
	Predominant     string         `json:"predominant_risk_level,omitempty"`
	Distribution    map[string]int `json:"risk_distribution,omitempty"`
	Mean            float64        `json:"mean_index"`
	Max             float64        `json:"max_index"`
	Min             float64        `json:"min_index"`
	Interpretation  string         `json:"interpretation,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Alerts          []Alert        `json:"alerts,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// WeeklyReport summarizes the alerts generated in the seven days up to the
// generator clock.
func (g *Generator) WeeklyReport() WeeklyReport {
	now := g.now()
	since := now.AddDate(0, 0, -7)
	var week []Alert
	for _, a := range g.log.Last(0) {
		if !a.Timestamp.Before(since) {
			week = append(week, a)
		}
	}
	return g.Summarize(week, now)
}

// Summarize builds a weekly report from an explicit set of alerts. The
// predominant band is the most frequent one; ties go to the more severe band.
func (g *Generator) Summarize(alerts []Alert, now time.Time) WeeklyReport {
	year, week := now.ISOWeek()
	r := WeeklyReport{
		ID:          fmt.Sprintf("IASi-Weekly-%d-W%02d", year, week),
		Week:        week,
		Year:        year,
		GeneratedAt: now,
	}
	if len(alerts) == 0 {
		r.Status = StatusNoData
		r.Message = "no alerts to build a weekly report from"
		return r
	}

	r.Status = StatusOK
	r.Total = len(alerts)
	r.Start = alerts[0].Timestamp
	r.End = alerts[len(alerts)-1].Timestamp
	r.Distribution = make(map[string]int)
	r.Min, r.Max = alerts[0].IndexValue, alerts[0].IndexValue
	var sum float64
	for _, a := range alerts {
		r.Distribution[a.Band]++
		sum += a.IndexValue
		r.Min = min(r.Min, a.IndexValue)
		r.Max = max(r.Max, a.IndexValue)
	}
	r.Mean = sum / float64(len(alerts))
	r.Predominant = g.predominant(r.Distribution)
	r.Interpretation = weeklyInterpretation(r.Predominant, r.Distribution, r.Total)
	r.Recommendations = Recommendations(r.Predominant)
	r.Alerts = alerts
	return r
}

func (g *Generator) predominant(dist map[string]int) string {
	best, bestN, bestRank := "", -1, -2
	for label, n := range dist {
		rank := g.bands.Rank(label)
		if n > bestN || (n == bestN && (rank > bestRank || (rank == bestRank && label > best))) {
			best, bestN, bestRank = label, n, rank
		}
	}
	return best
}

func weeklyInterpretation(predominant string, dist map[string]int, total int) string {
	labels := make([]string, 0, len(dist))
	for l := range dist {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s: %d (%.1f%%)", l, dist[l], float64(dist[l])/float64(total)*100)
	}
	return fmt.Sprintf("The predominant risk level this week was %s. Alert distribution: %s.",
		predominant, strings.Join(parts, ", "))
}

// Text renders an alert as a plain-text bulletin.
func Text(a Alert) string {
	rule := strings.Repeat("=", 80)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nIASi ALERT - seismic anomaly index\n%s\n", rule, rule)
	fmt.Fprintf(&b, "ID: %s\nDate: %s\nWeek: %d/%d\n\n", a.ID, a.Timestamp.Format(time.RFC3339), a.Week, a.Year)
	fmt.Fprintf(&b, "RISK INDEX: %.4f\nLEVEL: %s\n\n", a.IndexValue, a.Band)
	fmt.Fprintf(&b, "INTERPRETATION:\n%s\n\nCONTRIBUTION BY SIGNAL:\n", a.Interpretation)
	for _, c := range a.Contributions {
		fmt.Fprintf(&b, "  - %s: %.4f (weight: %.2f, contribution: %.4f)\n",
			c.Channel.Code(), c.Normalized, c.Weight, c.Contribution)
	}
	b.WriteString("\nRECOMMENDATIONS:\n")
	for i, r := range a.Recommendations {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
	}
	fmt.Fprintf(&b, "\n%s\n", rule)
	return b.String()
}
