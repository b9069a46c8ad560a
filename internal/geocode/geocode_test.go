package geocode

import (
	"testing"

	"github.com/omnisense/dispatch/internal/models"
)

func TestBuildGeocodeQuery(t *testing.T) {
	q := BuildGeocodeQuery("Kolkata, India", "12 Park Street")
	if q != "12 Park Street, Kolkata, India" {
		t.Fatalf("unexpected query: %s", q)
	}
	if q := BuildGeocodeQuery("", "Newtown"); q != "Newtown" {
		t.Fatalf("unexpected query without region: %s", q)
	}
}

func TestShouldGeocodeSkipWhenLatLonExists(t *testing.T) {
	lat := 22.58
	lon := 88.46
	loc := &models.Location{Address: "Newtown", Latitude: &lat, Longitude: &lon}
	if ShouldGeocode(loc) {
		t.Fatalf("expected geocode to be skipped when lat/lon exist")
	}
	if !ShouldGeocode(&models.Location{Address: "Newtown"}) {
		t.Fatalf("expected geocode for an address without coordinates")
	}
	if ShouldGeocode(&models.Location{}) || ShouldGeocode(nil) {
		t.Fatalf("expected no geocode without an address")
	}
}
