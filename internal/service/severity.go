package service

import (
	"strings"

	"github.com/omnisense/dispatch/internal/models"
)

var emergencyWeights = map[models.EmergencyType]int{
	models.EmergencyCardiacArrest: 100,
	models.EmergencyStroke:        95,
	models.EmergencySevereTrauma:  85,
	models.EmergencyFire:          80,
	models.EmergencyCrime:         75,
	models.EmergencyRescue:        70,
	models.EmergencyMedical:       60,
	models.EmergencyAccident:      50,
	models.EmergencyMinorInjury:   20,
	models.EmergencyNonEmergency:  10,
	models.EmergencyUnknown:       40,
}

var indicatorWeights = map[string]int{
	"unconscious":          20,
	"not_breathing":        25,
	"bleeding":             15,
	"chest_pain":           15,
	"severe_pain":          10,
	"child":                10,
	"elderly":              5,
	"pregnant":             10,
	"seizure":              15,
	"fall":                 8,
	"head_injury":          12,
	"difficulty_breathing": 18,
	"choking":              20,
	"overdose":             18,
	"burn":                 12,
	"broken_bone":          8,
	"public_location":      5,
	"multiple_victims":     15,
}

// SeverityInput is the subset of call attributes the scorer reads.
type SeverityInput struct {
	Type       models.EmergencyType
	Indicators []string
	Victim     *models.VictimInfo
}

// Score computes the 0-100 severity score. Unknown types weigh as UNKNOWN and
// unknown indicators contribute nothing.
func Score(in SeverityInput) int {
	base, ok := emergencyWeights[in.Type]
	if !ok {
		base = emergencyWeights[models.EmergencyUnknown]
	}

	modifier := 0
	for _, ind := range in.Indicators {
		modifier += indicatorWeights[normalizeIndicator(ind)]
	}

	if v := in.Victim; v != nil {
		if v.Conscious != nil && !*v.Conscious {
			modifier += 20
		}
		if v.Breathing != nil && !*v.Breathing {
			modifier += 25
		}
		if v.Age != nil && *v.Age < 12 {
			modifier += 10
		}
		if v.Age != nil && *v.Age > 65 {
			modifier += 5
		}
	}

	return clamp(base+modifier, 0, 100)
}

// Level buckets a score into a severity level.
func Level(score int) models.SeverityLevel {
	switch {
	case score >= 80:
		return models.SeverityCritical
	case score >= 60:
		return models.SeverityHigh
	case score >= 40:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ScoreCall scores a call from its recorded type, extracted indicators and
// victim status.
func ScoreCall(c *models.Call) int {
	return Score(SeverityInput{
		Type:       c.EmergencyType,
		Indicators: c.Indicators(),
		Victim:     c.Victim,
	})
}

func normalizeIndicator(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.Join(strings.Fields(v), "_")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
