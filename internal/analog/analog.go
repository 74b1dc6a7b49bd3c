// Package analog finds historical days whose channel profile resembles a
// given day, using an HNSW graph over the five normalized channel values.
package analog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/signal"
	"github.com/abelbrown/iasi/internal/timeline"
)

// Match is one analog day.
type Match struct {
	Event    string    `json:"event"`
	Date     time.Time `json:"date"`
	Distance float64   `json:"distance"`
	Score    float64   `json:"index"`
	Band     string    `json:"band,omitempty"`
}

type entry struct {
	event string
	point timeline.Point
}

// Index holds the channel vectors of every added day.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string] // key: event/date
	entries map[string]entry
}

func NewIndex() *Index {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.EuclideanDistance
	g.M = 16
	g.EfSearch = 64
	return &Index{graph: g, entries: make(map[string]entry)}
}

func key(event string, d time.Time) string {
	return event + "/" + csvio.FormatDate(d)
}

func vector(c [signal.NumChannels]float64) []float32 {
	v := make([]float32, len(c))
	for i, f := range c {
		v[i] = float32(f)
	}
	return v
}

// Add indexes the days of one event timeline. Days already present are
// skipped. Returns how many were added.
func (x *Index) Add(event string, points []timeline.Point) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	var nodes []hnsw.Node[string]
	for _, p := range points {
		k := key(event, p.Date)
		if _, ok := x.entries[k]; ok {
			continue
		}
		x.entries[k] = entry{event: event, point: p}
		nodes = append(nodes, hnsw.MakeNode(k, vector(p.Channels)))
	}
	if len(nodes) > 0 {
		x.graph.Add(nodes...)
	}
	return len(nodes)
}

// Len returns the number of indexed days.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Search returns up to k indexed days closest to the channel profile,
// nearest first. Days of the event named in exclude (if any) on the same
// date as at are skipped so a day never matches itself.
func (x *Index) Search(channels [signal.NumChannels]float64, k int, exclude string, at time.Time) (matches []Match, err error) {
	if k <= 0 {
		return nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("HNSW panic recovered in Search", "error", r)
			matches, err = nil, fmt.Errorf("analog search: %v", r)
		}
	}()

	skip := ""
	if exclude != "" {
		skip = key(exclude, at)
	}
	q := vector(channels)
	// One extra candidate makes room for the excluded day.
	for _, n := range x.graph.Search(q, k+1) {
		if n.Key == skip {
			continue
		}
		e := x.entries[n.Key]
		matches = append(matches, Match{
			Event:    e.event,
			Date:     e.point.Date,
			Distance: float64(hnsw.EuclideanDistance(q, n.Value)),
			Score:    e.point.Score,
			Band:     e.point.Band,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Lookup returns the indexed day of event at date.
func (x *Index) Lookup(event string, date time.Time) (timeline.Point, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[key(event, date)]
	return e.point, ok
}
