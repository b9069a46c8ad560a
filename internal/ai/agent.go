package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnisense/dispatch/internal/geocode"
	"github.com/omnisense/dispatch/internal/models"
)

const defaultHistoryTurns = 6

// TriageAgent runs keyword extraction on every utterance, then asks the
// assistant for the next spoken turn. Without an assistant it walks a fixed
// list of follow-up questions.
type TriageAgent struct {
	Assistant    Assistant
	Geocoder     geocode.Geocoder
	Region       string
	HistoryTurns int
	Logger       zerolog.Logger
}

func (t *TriageAgent) HandleMessage(ctx context.Context, call models.Call, text string) (Assessment, error) {
	a := ExtractHeuristics(call, text)
	view := applyAssessment(call, a)

	if t.Assistant == nil {
		a.Reply = nextFollowUp(view)
	} else {
		reply, err := t.Assistant.Ask(ctx, dispatcherPrompt, t.history(view))
		if err != nil {
			var rl RateLimitError
			if errors.As(err, &rl) {
				t.Logger.Warn().Str("call_id", call.ID).Dur("retry_after", rl.RetryAfter).Msg("assistant rate limited")
			} else {
				t.Logger.Error().Err(err).Str("call_id", call.ID).Msg("assistant failed")
			}
			a.Reply = FallbackReply
		} else {
			spoken, block, ok := splitExtracted(reply)
			if spoken == "" {
				spoken = followUps.Done
			}
			a.Reply = spoken
			if ok {
				mergeBlock(&a, view, block)
			}
		}
	}

	t.enrichLocation(ctx, call.ID, &a)
	return a, nil
}

func (t *TriageAgent) history(call models.Call) []ChatMessage {
	turns := t.HistoryTurns
	if turns <= 0 {
		turns = defaultHistoryTurns
	}
	entries := call.Transcript
	if len(entries) > turns {
		entries = entries[len(entries)-turns:]
	}
	out := make([]ChatMessage, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case "caller":
			out = append(out, ChatMessage{Role: "user", Content: e.Text})
		case "agent":
			out = append(out, ChatMessage{Role: "assistant", Content: e.Text})
		}
	}
	return out
}

func (t *TriageAgent) enrichLocation(ctx context.Context, callID string, a *Assessment) {
	if t.Geocoder == nil || a.Location == nil || !geocode.ShouldGeocode(a.Location) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	lat, lon, display, _, err := t.Geocoder.Geocode(ctx, geocode.BuildGeocodeQuery(t.Region, a.Location.Address))
	if err != nil {
		t.Logger.Debug().Err(err).Str("call_id", callID).Str("address", a.Location.Address).Msg("geocode skipped")
		return
	}
	a.Location.Latitude = &lat
	a.Location.Longitude = &lon
	if a.Location.Landmark == "" {
		a.Location.Landmark = display
	}
}

func mergeBlock(a *Assessment, view models.Call, block extractedBlock) {
	ex := models.ExtractedInfo{}
	if a.Extracted != nil {
		ex = *a.Extracted
	} else if view.Extracted != nil {
		ex = *view.Extracted
	}
	if block.info.EmergencyType != "" {
		ex.EmergencyType = block.info.EmergencyType
	}
	if block.info.Location != nil {
		ex.Location = block.info.Location
	}
	for _, ind := range block.info.SeverityIndicators {
		if !contains(ex.SeverityIndicators, ind) {
			ex.SeverityIndicators = append(ex.SeverityIndicators, ind)
		}
	}
	a.Extracted = &ex

	if block.conscious != nil || block.breathing != nil {
		v := models.VictimInfo{}
		if a.Victim != nil {
			v = *a.Victim
		} else if view.Victim != nil {
			v = *view.Victim
		}
		if block.conscious != nil {
			v.Conscious = block.conscious
		}
		if block.breathing != nil {
			v.Breathing = block.breathing
		}
		a.Victim = &v
	}
}

// applyAssessment returns call as it would look with a applied, for building
// prompts and follow-ups. It does not touch shared state.
func applyAssessment(call models.Call, a Assessment) models.Call {
	if a.EmergencyType != "" {
		call.EmergencyType = a.EmergencyType
	}
	if a.Location != nil {
		call.Location = a.Location
	}
	if a.Victim != nil {
		call.Victim = a.Victim
	}
	if a.Extracted != nil {
		call.Extracted = a.Extracted
	}
	return call
}

func nextFollowUp(call models.Call) string {
	switch {
	case call.EmergencyType == "" || call.EmergencyType == models.EmergencyUnknown:
		return followUps.EmergencyType
	case call.Address() == "":
		return followUps.Location
	case call.Victim == nil || call.Victim.Conscious == nil || call.Victim.Breathing == nil:
		return followUps.VictimStatus
	default:
		return followUps.Done
	}
}
