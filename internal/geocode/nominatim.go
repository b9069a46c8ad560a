package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxCachedQueries = 1024

// NominatimGeocoder resolves caller addresses through an OpenStreetMap
// Nominatim instance, honouring its one-request-per-interval usage policy.
type NominatimGeocoder struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
	MinInterval  time.Duration
	Client       *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]nominatimResult
}

type nominatimResult struct {
	Lat         float64
	Lon         float64
	DisplayName string
	Confidence  float64
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (float64, float64, string, float64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, 0, "", 0, ErrNotFound
	}
	g.defaults()

	if cached, ok := g.cached(query); ok {
		return cached.Lat, cached.Lon, cached.DisplayName, cached.Confidence, nil
	}
	if err := g.wait(ctx); err != nil {
		return 0, 0, "", 0, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	if g.CountryCodes != "" {
		params.Set("countrycodes", g.CountryCodes)
	}
	endpoint := strings.TrimRight(g.BaseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, "", 0, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return 0, 0, "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, 0, "", 0, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return 0, 0, "", 0, err
	}
	result, err := parseNominatimItems(items)
	if err != nil {
		return 0, 0, "", 0, err
	}
	g.store(query, result)
	return result.Lat, result.Lon, result.DisplayName, result.Confidence, nil
}

func (g *NominatimGeocoder) defaults() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Client == nil {
		g.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if g.UserAgent == "" {
		g.UserAgent = "dispatch-orchestrator"
	}
	if g.MinInterval <= 0 {
		g.MinInterval = time.Second
	}
	if g.cache == nil {
		g.cache = map[string]nominatimResult{}
	}
}

func (g *NominatimGeocoder) cached(query string) (nominatimResult, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.cache[query]
	return r, ok
}

func (g *NominatimGeocoder) store(query string, r nominatimResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.cache) >= maxCachedQueries {
		g.cache = map[string]nominatimResult{}
	}
	g.cache[query] = r
}

// wait blocks until the next request slot, or until ctx is done.
func (g *NominatimGeocoder) wait(ctx context.Context) error {
	g.mu.Lock()
	next := g.lastReqAt.Add(g.MinInterval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	g.lastReqAt = next
	g.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseNominatimItems(items []nominatimItem) (nominatimResult, error) {
	if len(items) == 0 {
		return nominatimResult{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return nominatimResult{}, err
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return nominatimResult{}, err
	}
	if lat == 0 && lon == 0 && items[0].DisplayName == "" {
		return nominatimResult{}, ErrNotFound
	}
	return nominatimResult{
		Lat:         lat,
		Lon:         lon,
		DisplayName: items[0].DisplayName,
		Confidence:  items[0].Importance,
	}, nil
}
