package ai

import (
	"context"

	"github.com/omnisense/dispatch/internal/models"
)

// FallbackReply is spoken when the agent cannot produce a reply.
const FallbackReply = "Help is on the way. Stay on the line."

// Assessment is what the agent derived from one caller utterance. Nil or zero
// fields leave the call's current values untouched.
type Assessment struct {
	Reply         string
	EmergencyType models.EmergencyType
	Location      *models.Location
	Victim        *models.VictimInfo
	Extracted     *models.ExtractedInfo
	Summary       string
}

// Agent is the triage agent: sole authority for natural-language
// understanding of caller speech. It receives a copy of the call and must not
// retain it.
type Agent interface {
	HandleMessage(ctx context.Context, call models.Call, text string) (Assessment, error)
}
