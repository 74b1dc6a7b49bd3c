package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the USGS FDSN event query service.
	DefaultEndpoint = "https://earthquake.usgs.gov/fdsnws/event/1/query"
	// SignificantMonthFeed is the USGS M4.5+ past-30-days Atom feed.
	SignificantMonthFeed = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/4.5_month.atom"

	userAgent = "iasi/1.0 (https://github.com/abelbrown/iasi)"
)

// featureCollection is the subset of the USGS GeoJSON response we use.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string     `json:"id"`
	Properties properties `json:"properties"`
	Geometry   geometry   `json:"geometry"`
}

type properties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  int64    `json:"time"` // Unix ms
	Type  string   `json:"type"`
}

type geometry struct {
	Coordinates []float64 `json:"coordinates"` // lon, lat, depth km
}

// Query selects events from the FDSN service. A zero RadiusKM searches
// globally.
type Query struct {
	Start        time.Time
	End          time.Time
	MinMagnitude float64
	Latitude     float64
	Longitude    float64
	RadiusKM     float64
	Limit        int
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("format", "geojson")
	v.Set("eventtype", "earthquake")
	v.Set("orderby", "time-asc")
	if !q.Start.IsZero() {
		v.Set("starttime", q.Start.UTC().Format("2006-01-02"))
	}
	if !q.End.IsZero() {
		v.Set("endtime", q.End.UTC().Format("2006-01-02"))
	}
	if q.MinMagnitude > 0 {
		v.Set("minmagnitude", strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64))
	}
	if q.RadiusKM > 0 {
		v.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
		v.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
		v.Set("maxradiuskm", strconv.FormatFloat(q.RadiusKM, 'f', -1, 64))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Client fetches catalogs from USGS. Requests share one rate limiter; there
// are no retries.
type Client struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a Client for endpoint (DefaultEndpoint when empty)
// allowing rps requests per second (1 when <= 0).
func NewClient(endpoint string, rps float64, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}
	return resp, nil
}

// Query runs q against the FDSN service and returns the events sorted by
// date. Features without a magnitude are skipped.
func (c *Client) Query(ctx context.Context, q Query) ([]Event, error) {
	resp, err := c.get(ctx, c.endpoint+"?"+q.values().Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode earthquakes: %w", err)
	}

	events := make([]Event, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Properties.Mag == nil {
			continue
		}
		if f.Properties.Type != "" && f.Properties.Type != "earthquake" {
			continue
		}
		ev := Event{
			ID:        f.ID,
			Date:      time.UnixMilli(f.Properties.Time).UTC(),
			Magnitude: *f.Properties.Mag,
			Place:     f.Properties.Place,
		}
		if coords := f.Geometry.Coordinates; len(coords) >= 2 {
			ev.Longitude, ev.Latitude = coords[0], coords[1]
			if len(coords) >= 3 {
				ev.DepthKM = coords[2]
			}
		}
		events = append(events, ev)
	}
	Sort(events)
	return events, nil
}

// titleMag matches USGS feed titles such as "M 6.1 - 45 km W of Illapel, Chile".
var titleMag = regexp.MustCompile(`^M\s*([0-9]+(?:\.[0-9]+)?)\s*-\s*(.*)$`)

// Feed fetches a USGS Atom summary feed. Entries whose title carries no
// magnitude are skipped.
func (c *Client) Feed(ctx context.Context, feedURL string) ([]Event, error) {
	resp, err := c.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	events := make([]Event, 0, len(feed.Items))
	for _, item := range feed.Items {
		ev, ok := convertFeedItem(item)
		if ok {
			events = append(events, ev)
		}
	}
	Sort(events)
	return events, nil
}

func convertFeedItem(item *gofeed.Item) (Event, bool) {
	m := titleMag.FindStringSubmatch(strings.TrimSpace(item.Title))
	if m == nil {
		return Event{}, false
	}
	mag, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Event{}, false
	}
	ev := Event{ID: item.GUID, Magnitude: mag, Place: m[2]}
	switch {
	case item.PublishedParsed != nil:
		ev.Date = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		ev.Date = item.UpdatedParsed.UTC()
	default:
		return Event{}, false
	}
	if geo, ok := item.Extensions["georss"]; ok {
		if pts := geo["point"]; len(pts) > 0 {
			if f := strings.Fields(pts[0].Value); len(f) == 2 {
				ev.Latitude, _ = strconv.ParseFloat(f[0], 64)
				ev.Longitude, _ = strconv.ParseFloat(f[1], 64)
			}
		}
		if elev := geo["elev"]; len(elev) > 0 {
			if meters, err := strconv.ParseFloat(strings.TrimSpace(elev[0].Value), 64); err == nil {
				ev.DepthKM = -meters / 1000
			}
		}
	}
	return ev, true
}
