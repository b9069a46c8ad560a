package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "22.5806",
			Lon:         "88.4605",
			DisplayName: "Newtown, Kolkata",
			Importance:  0.72,
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != 22.5806 || res.Lon != 88.4605 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "Newtown, Kolkata" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if res.Confidence != 0.72 {
		t.Fatalf("unexpected confidence: %f", res.Confidence)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	if _, err := parseNominatimItems(nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNominatimGeocoderQueriesServerOnceThenCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Query().Get("q") != "Newtown, Kolkata" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("countrycodes") != "in" {
			t.Errorf("expected countrycodes=in, got %q", r.URL.Query().Get("countrycodes"))
		}
		_, _ = w.Write([]byte(`[{"lat":"22.58","lon":"88.46","display_name":"Newtown","importance":0.5}]`))
	}))
	defer srv.Close()

	g := &NominatimGeocoder{BaseURL: srv.URL, CountryCodes: "in", MinInterval: time.Millisecond}
	for i := 0; i < 2; i++ {
		lat, lon, name, _, err := g.Geocode(context.Background(), "Newtown, Kolkata")
		if err != nil {
			t.Fatalf("geocode: %v", err)
		}
		if lat != 22.58 || lon != 88.46 || name != "Newtown" {
			t.Fatalf("unexpected result %f %f %s", lat, lon, name)
		}
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}
}
