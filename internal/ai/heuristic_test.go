package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisense/dispatch/internal/models"
)

func TestExtractHeuristicsTypeAndVictim(t *testing.T) {
	call := models.Call{ID: "c1", EmergencyType: models.EmergencyUnknown, Summary: "Processing..."}
	a := ExtractHeuristics(call, "My 70 year old father had a heart attack in Salt Lake, he is unconscious and not breathing")

	assert.Equal(t, models.EmergencyCardiacArrest, a.EmergencyType)
	require.NotNil(t, a.Location)
	assert.Equal(t, "Salt Lake", a.Location.Address)

	require.NotNil(t, a.Victim)
	require.NotNil(t, a.Victim.Age)
	assert.Equal(t, 70, *a.Victim.Age)
	assert.False(t, *a.Victim.Conscious)
	assert.False(t, *a.Victim.Breathing)

	require.NotNil(t, a.Extracted)
	assert.ElementsMatch(t, []string{"unconscious", "not_breathing"}, a.Extracted.SeverityIndicators)
	assert.Equal(t, "CARDIAC ARREST at Salt Lake; victim unconscious; not breathing; age 70", a.Summary)
}

func TestExtractHeuristicsStreetAndSector(t *testing.T) {
	a := ExtractHeuristics(models.Call{}, "there is a car crash near 12 Lake View Road right now")
	assert.Equal(t, models.EmergencyAccident, a.EmergencyType)
	require.NotNil(t, a.Location)
	assert.Equal(t, "12 Lake View Road", a.Location.Address)

	a = ExtractHeuristics(models.Call{}, "smoke coming out of a building in sector 12")
	assert.Equal(t, models.EmergencyFire, a.EmergencyType)
	require.NotNil(t, a.Location)
	assert.Equal(t, "sector 12", a.Location.Address)
}

func TestExtractHeuristicsKeepsPriorIndicators(t *testing.T) {
	call := models.Call{Extracted: &models.ExtractedInfo{
		EmergencyType:      models.EmergencyMedical,
		SeverityIndicators: []string{"pregnant"},
	}}
	a := ExtractHeuristics(call, "she is bleeding a lot")
	require.NotNil(t, a.Extracted)
	assert.ElementsMatch(t, []string{"pregnant", "bleeding"}, a.Extracted.SeverityIndicators)
	assert.Equal(t, models.EmergencyMedical, a.Extracted.EmergencyType)
}

func TestExtractHeuristicsNothingFound(t *testing.T) {
	call := models.Call{Summary: "Processing..."}
	a := ExtractHeuristics(call, "hello?")
	assert.Empty(t, a.EmergencyType)
	assert.Nil(t, a.Location)
	assert.Nil(t, a.Victim)
	assert.Nil(t, a.Extracted)
	assert.Equal(t, "Processing...", a.Summary)
}
