package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/omnisense/dispatch/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

// BuildGeocodeQuery appends the configured region to a caller-provided
// address so bare street names resolve locally.
func BuildGeocodeQuery(region string, address string) string {
	region = strings.TrimSpace(region)
	address = strings.TrimSpace(address)
	parts := []string{}
	if address != "" {
		parts = append(parts, address)
	}
	if region != "" {
		parts = append(parts, region)
	}
	return strings.Join(parts, ", ")
}

func ShouldGeocode(loc *models.Location) bool {
	if loc == nil || strings.TrimSpace(loc.Address) == "" {
		return false
	}
	return loc.Latitude == nil || loc.Longitude == nil
}
