package ai

import (
	"strings"

	"github.com/omnisense/dispatch/internal/models"
)

const extractedMarker = "EXTRACTED_INFO:"

var emergencyAliases = map[string]models.EmergencyType{
	"cardiac_arrest":    models.EmergencyCardiacArrest,
	"stroke":            models.EmergencyStroke,
	"severe_trauma":     models.EmergencySevereTrauma,
	"trauma":            models.EmergencySevereTrauma,
	"fire":              models.EmergencyFire,
	"crime":             models.EmergencyCrime,
	"rescue":            models.EmergencyRescue,
	"medical_emergency": models.EmergencyMedical,
	"medical":           models.EmergencyMedical,
	"accident":          models.EmergencyAccident,
	"minor_injury":      models.EmergencyMinorInjury,
	"non_emergency":     models.EmergencyNonEmergency,
	"other":             models.EmergencyUnknown,
	"unknown":           models.EmergencyUnknown,
}

// ParseEmergencyType maps free-form labels such as "Cardiac Arrest" onto the
// enumeration, returning UNKNOWN for anything unrecognised.
func ParseEmergencyType(v string) models.EmergencyType {
	key := strings.Join(strings.Fields(strings.ToLower(strings.Trim(v, " []"))), "_")
	if t, ok := emergencyAliases[key]; ok {
		return t
	}
	return models.EmergencyUnknown
}

type extractedBlock struct {
	info      models.ExtractedInfo
	conscious *bool
	breathing *bool
}

// splitExtracted separates the spoken reply from a trailing EXTRACTED_INFO
// block. ok is false when the reply carries no block.
func splitExtracted(reply string) (spoken string, block extractedBlock, ok bool) {
	idx := strings.Index(reply, extractedMarker)
	if idx < 0 {
		return strings.TrimSpace(reply), extractedBlock{}, false
	}
	spoken = strings.TrimSpace(reply[:idx])

	for _, line := range strings.Split(reply[idx+len(extractedMarker):], "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), "[]")
		switch key {
		case "emergency_type":
			block.info.EmergencyType = ParseEmergencyType(value)
		case "location":
			if value != "" && !strings.EqualFold(value, "unknown") {
				block.info.Location = &models.Location{Address: value}
			}
		case "severity_indicators":
			for _, ind := range strings.Split(value, ",") {
				if ind = strings.TrimSpace(ind); ind != "" {
					block.info.SeverityIndicators = append(block.info.SeverityIndicators, ind)
				}
			}
		case "victim_conscious":
			block.conscious = parseTriState(value)
		case "victim_breathing":
			block.breathing = parseTriState(value)
		}
	}
	return spoken, block, true
}

func parseTriState(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes":
		return boolPtr(true)
	case "false", "no":
		return boolPtr(false)
	}
	return nil
}
