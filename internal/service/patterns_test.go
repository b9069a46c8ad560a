package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisense/dispatch/internal/models"
)

func fireAt(id, address string) models.Call {
	return models.Call{ID: id, EmergencyType: models.EmergencyFire, Location: &models.Location{Address: address}}
}

func TestLocationToken(t *testing.T) {
	d := NewPatternDetector(3)
	assert.Equal(t, "Newtown", d.LocationToken("near the mall in newtown"))
	assert.Equal(t, "Park Street", d.LocationToken("12 Park Street"))
	assert.Equal(t, "Sector 5", d.LocationToken("Sector-5 office block"))
	assert.Equal(t, "Sector 12", d.LocationToken("sector 12, building B"))
	assert.Equal(t, "Unknown", d.LocationToken("somewhere"))
	assert.Equal(t, "Unknown", d.LocationToken(""))
}

func TestDetectMassEvent(t *testing.T) {
	d := NewPatternDetector(3)
	alerts := d.Detect([]models.Call{
		fireAt("a", "Newtown"),
		fireAt("b", "Newtown main road"),
		fireAt("c", "New town? no, NEWTOWN"),
		fireAt("d", "Park Street"),
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMassEvent, alerts[0].Kind)
	assert.Equal(t, "high", alerts[0].Confidence)
	assert.Equal(t, 3, alerts[0].Count)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, alerts[0].CallIDs)
}

func TestDetectPotentialCluster(t *testing.T) {
	d := NewPatternDetector(3)
	alerts := d.Detect([]models.Call{fireAt("a", "Salt Lake"), fireAt("b", "Salt Lake")})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPotentialCluster, alerts[0].Kind)
	assert.Equal(t, 2, alerts[0].Count)
}

func TestDetectSingleCallRaisesNoAlert(t *testing.T) {
	d := NewPatternDetector(3)
	assert.Empty(t, d.Detect([]models.Call{fireAt("a", "Newtown")}))
	assert.Empty(t, d.Detect(nil))
}

func TestDetectIgnoresUnknownLocationAndDuplicates(t *testing.T) {
	d := NewPatternDetector(3)
	calls := []models.Call{fireAt("a", "nowhere"), fireAt("b", ""), fireAt("c", "unknown place"), fireAt("x", "Newtown"), fireAt("x", "Newtown")}
	assert.Empty(t, d.Detect(calls))
}

func TestDetectPrefersExtractedType(t *testing.T) {
	d := NewPatternDetector(2)
	a := fireAt("a", "Sector 5")
	b := models.Call{
		ID:            "b",
		EmergencyType: models.EmergencyUnknown,
		Extracted:     &models.ExtractedInfo{EmergencyType: models.EmergencyFire, Location: &models.Location{Address: "sector 5"}},
	}
	alerts := d.Detect([]models.Call{a, b})
	require.Len(t, alerts, 1)
	assert.Equal(t, models.EmergencyFire, alerts[0].EmergencyType)
	assert.Equal(t, AlertMassEvent, alerts[0].Kind)
}

func TestDetectUsesCoordinatesNearZone(t *testing.T) {
	d := NewPatternDetector(2)
	lat, lon := 22.5810, 88.4600
	a := fireAt("a", "Newtown")
	b := models.Call{ID: "b", EmergencyType: models.EmergencyFire, Location: &models.Location{Address: "Action Area 1", Latitude: &lat, Longitude: &lon}}
	alerts := d.Detect([]models.Call{a, b})
	require.Len(t, alerts, 1)
	assert.Equal(t, "Newtown", alerts[0].Location)
}
