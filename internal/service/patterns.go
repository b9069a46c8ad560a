package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/omnisense/dispatch/internal/models"
	"github.com/omnisense/dispatch/internal/utils"
)

const (
	AlertMassEvent        = "MASS_EVENT"
	AlertPotentialCluster = "POTENTIAL_CLUSTER"

	unknownLocation = "Unknown"

	zoneRadiusKm = 1.5
)

var defaultGazetteer = []string{"Newtown", "Park Street", "Sector 5", "Salt Lake"}

// zoneCenters lets geocoded calls without a named zone join a cluster.
var zoneCenters = map[string][2]float64{
	"Newtown":     {22.5806, 88.4605},
	"Park Street": {22.5535, 88.3520},
	"Sector 5":    {22.5726, 88.4339},
	"Salt Lake":   {22.5867, 88.4171},
}

var sectorPattern = regexp.MustCompile(`(?i)\bsector\s*-?\s*(\d+)\b`)

type Alert struct {
	Kind          string               `json:"kind"`
	Confidence    string               `json:"confidence"`
	EmergencyType models.EmergencyType `json:"emergency_type"`
	Location      string               `json:"location"`
	Count         int                  `json:"count"`
	CallIDs       []string             `json:"call_ids"`
	Message       string               `json:"message"`
}

// PatternDetector groups calls by (emergency type, location token). It keeps
// no state between scans.
type PatternDetector struct {
	Threshold int
	Gazetteer []string
}

func NewPatternDetector(threshold int) PatternDetector {
	if threshold <= 0 {
		threshold = 3
	}
	return PatternDetector{Threshold: threshold, Gazetteer: defaultGazetteer}
}

type clusterKey struct {
	kind     models.EmergencyType
	location string
}

// Detect scans calls and returns alerts ordered by size, largest first.
// Calls whose location resolves to "Unknown" never raise alerts.
func (d PatternDetector) Detect(calls []models.Call) []Alert {
	clusters := map[clusterKey][]string{}
	seen := map[string]bool{}
	for i := range calls {
		c := &calls[i]
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		key := clusterKey{kind: emergencyKey(c), location: d.callToken(c)}
		clusters[key] = append(clusters[key], c.ID)
	}

	warnAt := (d.Threshold + 1) / 2
	alerts := []Alert{}
	for key, ids := range clusters {
		if key.location == unknownLocation {
			continue
		}
		n := len(ids)
		switch {
		case n >= d.Threshold:
			alerts = append(alerts, Alert{
				Kind:          AlertMassEvent,
				Confidence:    "high",
				EmergencyType: key.kind,
				Location:      key.location,
				Count:         n,
				CallIDs:       ids,
				Message:       fmt.Sprintf("MASS EVENT DETECTED: %d calls reporting %s in %s", n, key.kind, key.location),
			})
		case n >= warnAt:
			alerts = append(alerts, Alert{
				Kind:          AlertPotentialCluster,
				Confidence:    "low",
				EmergencyType: key.kind,
				Location:      key.location,
				Count:         n,
				CallIDs:       ids,
				Message:       fmt.Sprintf("Potential cluster: %d calls reporting %s in %s", n, key.kind, key.location),
			})
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Count != alerts[j].Count {
			return alerts[i].Count > alerts[j].Count
		}
		if alerts[i].Location != alerts[j].Location {
			return alerts[i].Location < alerts[j].Location
		}
		return alerts[i].EmergencyType < alerts[j].EmergencyType
	})
	return alerts
}

// LocationToken resolves free text to a gazetteer name, a "Sector N" token or
// "Unknown".
func (d PatternDetector) LocationToken(address string) string {
	lower := strings.ToLower(address)
	if lower == "" {
		return unknownLocation
	}
	for _, name := range d.Gazetteer {
		if strings.Contains(lower, strings.ToLower(name)) {
			return name
		}
	}
	if m := sectorPattern.FindStringSubmatch(address); m != nil {
		return "Sector " + m[1]
	}
	return unknownLocation
}

func (d PatternDetector) callToken(c *models.Call) string {
	token := d.LocationToken(c.Address())
	if token != unknownLocation || c.Location == nil || c.Location.Latitude == nil || c.Location.Longitude == nil {
		return token
	}
	best, bestKm := unknownLocation, zoneRadiusKm
	for _, name := range d.Gazetteer {
		center, ok := zoneCenters[name]
		if !ok {
			continue
		}
		if km := utils.HaversineKm(*c.Location.Latitude, *c.Location.Longitude, center[0], center[1]); km <= bestKm {
			best, bestKm = name, km
		}
	}
	return best
}

func emergencyKey(c *models.Call) models.EmergencyType {
	if c.Extracted != nil && c.Extracted.EmergencyType != "" && c.Extracted.EmergencyType != models.EmergencyUnknown {
		return c.Extracted.EmergencyType
	}
	if c.EmergencyType == "" {
		return models.EmergencyUnknown
	}
	return c.EmergencyType
}
