package analog

import (
	"testing"
	"time"

	"github.com/abelbrown/iasi/internal/signal"
	"github.com/abelbrown/iasi/internal/timeline"
)

func day(n int) time.Time {
	return time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func profile(v float64) [signal.NumChannels]float64 {
	return [signal.NumChannels]float64{v, v, v, v, v}
}

func TestSearchNearestFirst(t *testing.T) {
	x := NewIndex()
	var maule []timeline.Point
	for i := 0; i < 20; i++ {
		v := float64(i) / 20
		maule = append(maule, timeline.Point{Date: day(i), Channels: profile(v), Score: v})
	}
	if n := x.Add("Maule_2010", maule); n != 20 {
		t.Fatalf("added %d, want 20", n)
	}
	if n := x.Add("Maule_2010", maule[:5]); n != 0 {
		t.Errorf("re-adding should be a no-op, added %d", n)
	}
	x.Add("Illapel_2015", []timeline.Point{{Date: day(0), Channels: profile(0.61), Score: 0.61, Band: "HIGH"}})

	got, err := x.Search(profile(0.6), 3, "", time.Time{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d matches", len(got))
	}
	if got[0].Event != "Maule_2010" || !got[0].Date.Equal(day(12)) || got[0].Distance > 1e-6 {
		t.Errorf("nearest = %+v, want Maule day 12", got[0])
	}
	if got[1].Event != "Illapel_2015" || got[1].Band != "HIGH" {
		t.Errorf("second = %+v, want the Illapel day", got[1])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("matches not sorted: %v", got)
		}
	}
}

func TestSearchExcludesSelf(t *testing.T) {
	x := NewIndex()
	x.Add("E", []timeline.Point{
		{Date: day(0), Channels: profile(0.2)},
		{Date: day(1), Channels: profile(0.25)},
		{Date: day(2), Channels: profile(0.9)},
	})
	got, err := x.Search(profile(0.2), 1, "E", day(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Date.Equal(day(1)) {
		t.Errorf("got %+v, want day 1", got)
	}
}

func TestSearchEmpty(t *testing.T) {
	x := NewIndex()
	got, err := x.Search(profile(0.5), 5, "", time.Time{})
	if err != nil || got != nil {
		t.Errorf("empty index Search = %v, %v", got, err)
	}
	if _, ok := x.Lookup("E", day(0)); ok {
		t.Error("Lookup on empty index")
	}
}
