package ai

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/omnisense/dispatch/internal/models"
)

type keywordRule struct {
	kind  models.EmergencyType
	words []string
}

// Ordered by acuity: the first matching rule wins.
var typeRules = []keywordRule{
	{models.EmergencyCardiacArrest, []string{"heart attack", "cardiac", "heart", "chest"}},
	{models.EmergencyStroke, []string{"stroke", "face drooping", "slurred"}},
	{models.EmergencySevereTrauma, []string{"stabbed", "shot", "impaled", "severe trauma"}},
	{models.EmergencyFire, []string{"fire", "smoke", "flames", "burning"}},
	{models.EmergencyCrime, []string{"gun", "robber", "kill", "attack", "intruder"}},
	{models.EmergencyRescue, []string{"trapped", "drowning", "stuck", "collapsed building"}},
	{models.EmergencyAccident, []string{"accident", "crash", "collision", "hit by"}},
	{models.EmergencyMedical, []string{"seizure", "overdose", "diabetic", "allergic", "pregnant", "fainted"}},
	{models.EmergencyMinorInjury, []string{"cut", "sprain", "bruise", "twisted"}},
	{models.EmergencyNonEmergency, []string{"noise complaint", "lost cat", "information"}},
}

var indicatorRules = map[string][]string{
	"unconscious":          {"unconscious", "passed out", "not responding", "unresponsive"},
	"not_breathing":        {"not breathing", "isn't breathing", "stopped breathing", "no breathing"},
	"bleeding":             {"bleeding", "blood"},
	"chest_pain":           {"chest pain", "chest hurts"},
	"severe_pain":          {"severe pain", "screaming in pain"},
	"child":                {"child", "baby", "kid", "toddler"},
	"elderly":              {"elderly", "grandma", "grandfather", "grandmother", "old man", "old woman"},
	"pregnant":             {"pregnant"},
	"seizure":              {"seizure", "convulsing", "shaking uncontrollably"},
	"fall":                 {"fell", "fall "},
	"head_injury":          {"head injury", "hit his head", "hit her head", "hit my head"},
	"difficulty_breathing": {"can't breathe", "cannot breathe", "struggling to breathe", "short of breath"},
	"choking":              {"choking"},
	"overdose":             {"overdose", "took too many"},
	"burn":                 {"burned", "burnt", "burns"},
	"broken_bone":          {"broken", "fracture"},
	"public_location":      {"mall", "station", "stadium", "school", "market"},
	"multiple_victims":     {"several people", "many people", "multiple people", "everyone"},
}

var knownZones = []string{"newtown", "salt lake", "park street", "sector 5"}

var (
	agePattern     = regexp.MustCompile(`(?i)\b(\d{1,3})[\s-]*(?:years?|yrs?)[\s-]*old\b`)
	addressPattern = regexp.MustCompile(`(?i)\b(?:at|on|near)\s+(\d+\s+[a-z][a-z ]+?(?:street|st|road|rd|avenue|ave|lane|ln|drive|dr))\b`)
	sectorWord     = regexp.MustCompile(`(?i)\bsector\s*-?\s*\d+\b`)
)

// ExtractHeuristics pre-populates fields from keywords so the dashboard lights
// up before any model-backed classification.
func ExtractHeuristics(call models.Call, text string) Assessment {
	lower := strings.ToLower(text)
	var out Assessment

	for _, rule := range typeRules {
		if containsAny(lower, rule.words) {
			out.EmergencyType = rule.kind
			break
		}
	}

	for _, zone := range knownZones {
		if strings.Contains(lower, zone) {
			out.Location = &models.Location{Address: titleWords(zone)}
			break
		}
	}
	if out.Location == nil {
		if m := addressPattern.FindStringSubmatch(text); m != nil {
			out.Location = &models.Location{Address: strings.TrimSpace(m[1])}
		} else if m := sectorWord.FindString(text); m != "" {
			out.Location = &models.Location{Address: m}
		}
	}

	indicators := []string{}
	if call.Extracted != nil {
		indicators = append(indicators, call.Extracted.SeverityIndicators...)
	}
	for name, words := range indicatorRules {
		if containsAny(lower, words) && !contains(indicators, name) {
			indicators = append(indicators, name)
		}
	}
	if len(indicators) > 0 {
		ex := models.ExtractedInfo{SeverityIndicators: indicators}
		if call.Extracted != nil {
			ex.EmergencyType = call.Extracted.EmergencyType
			ex.Location = call.Extracted.Location
		}
		out.Extracted = &ex
	}

	victim := models.VictimInfo{}
	if call.Victim != nil {
		victim = *call.Victim
	}
	touched := false
	if containsAny(lower, indicatorRules["unconscious"]) {
		victim.Conscious = boolPtr(false)
		touched = true
	} else if containsAny(lower, []string{"is conscious", "is awake", "talking to me"}) {
		victim.Conscious = boolPtr(true)
		touched = true
	}
	if containsAny(lower, indicatorRules["not_breathing"]) {
		victim.Breathing = boolPtr(false)
		touched = true
	} else if containsAny(lower, []string{"is breathing", "still breathing"}) {
		victim.Breathing = boolPtr(true)
		touched = true
	}
	if m := agePattern.FindStringSubmatch(text); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil {
			victim.Age = &age
			touched = true
		}
	}
	if touched {
		out.Victim = &victim
	}

	out.Summary = summarize(call, out)
	return out
}

func summarize(call models.Call, a Assessment) string {
	kind := call.EmergencyType
	if a.EmergencyType != "" {
		kind = a.EmergencyType
	}
	where := call.Address()
	if a.Location != nil && a.Location.Address != "" {
		where = a.Location.Address
	}
	if (kind == "" || kind == models.EmergencyUnknown) && where == "" {
		return call.Summary
	}

	parts := []string{}
	if kind != "" && kind != models.EmergencyUnknown {
		parts = append(parts, strings.ReplaceAll(string(kind), "_", " "))
	} else {
		parts = append(parts, "Unclassified emergency")
	}
	if where != "" {
		parts[0] += " at " + where
	}
	victim := call.Victim
	if a.Victim != nil {
		victim = a.Victim
	}
	if victim != nil {
		if victim.Conscious != nil && !*victim.Conscious {
			parts = append(parts, "victim unconscious")
		}
		if victim.Breathing != nil && !*victim.Breathing {
			parts = append(parts, "not breathing")
		}
		if victim.Age != nil {
			parts = append(parts, "age "+strconv.Itoa(*victim.Age))
		}
	}
	return strings.Join(parts, "; ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func boolPtr(b bool) *bool {
	return &b
}
