package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisense/dispatch/internal/models"
)

type fakeAssistant struct {
	reply   string
	err     error
	system  string
	history []ChatMessage
}

func (f *fakeAssistant) Ask(ctx context.Context, system string, history []ChatMessage) (string, error) {
	f.system = system
	f.history = history
	return f.reply, f.err
}

type fakeGeocoder struct {
	queries []string
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (float64, float64, string, float64, error) {
	f.queries = append(f.queries, query)
	return 22.5535, 88.3520, "Park Street, Kolkata", 0.9, nil
}

func callWith(entries ...models.TranscriptEntry) models.Call {
	return models.Call{ID: "c1", EmergencyType: models.EmergencyUnknown, Transcript: entries}
}

func TestTriageAgentFollowUpsWithoutAssistant(t *testing.T) {
	agent := &TriageAgent{Logger: zerolog.Nop()}
	ctx := context.Background()

	a, err := agent.HandleMessage(ctx, callWith(), "hello?")
	require.NoError(t, err)
	assert.Equal(t, followUps.EmergencyType, a.Reply)

	a, _ = agent.HandleMessage(ctx, callWith(), "there is a fire")
	assert.Equal(t, followUps.Location, a.Reply)

	a, _ = agent.HandleMessage(ctx, callWith(), "there is a fire in Newtown")
	assert.Equal(t, followUps.VictimStatus, a.Reply)

	a, _ = agent.HandleMessage(ctx, callWith(), "fire in Newtown, she is awake... she is conscious and is breathing")
	assert.Equal(t, followUps.Done, a.Reply)
}

func TestTriageAgentUsesAssistantAndBlock(t *testing.T) {
	assistant := &fakeAssistant{reply: "Help is on the way.\nEXTRACTED_INFO:\nemergency_type: stroke\nlocation: unknown\nseverity_indicators: elderly\nvictim_breathing: true"}
	agent := &TriageAgent{Assistant: assistant, HistoryTurns: 2, Logger: zerolog.Nop()}

	call := callWith(
		models.TranscriptEntry{Role: "caller", Text: "hi"},
		models.TranscriptEntry{Role: "agent", Text: "911, what is your emergency?"},
		models.TranscriptEntry{Role: "caller", Text: "my grandma cannot move her arm"},
	)
	a, err := agent.HandleMessage(context.Background(), call, "my grandma cannot move her arm")
	require.NoError(t, err)

	assert.Equal(t, "Help is on the way.", a.Reply)
	assert.Equal(t, dispatcherPrompt, assistant.system)
	assert.Equal(t, []ChatMessage{
		{Role: "assistant", Content: "911, what is your emergency?"},
		{Role: "user", Content: "my grandma cannot move her arm"},
	}, assistant.history)

	require.NotNil(t, a.Extracted)
	assert.Equal(t, models.EmergencyStroke, a.Extracted.EmergencyType)
	assert.Nil(t, a.Extracted.Location)
	assert.ElementsMatch(t, []string{"elderly"}, a.Extracted.SeverityIndicators)
	require.NotNil(t, a.Victim)
	assert.True(t, *a.Victim.Breathing)
}

func TestTriageAgentFallsBackOnAssistantError(t *testing.T) {
	for _, err := range []error{errors.New("boom"), RateLimitError{}} {
		agent := &TriageAgent{Assistant: &fakeAssistant{err: err}, Logger: zerolog.Nop()}
		a, herr := agent.HandleMessage(context.Background(), callWith(), "there is a fire")
		require.NoError(t, herr)
		assert.Equal(t, FallbackReply, a.Reply)
		assert.Equal(t, models.EmergencyFire, a.EmergencyType)
	}
}

func TestTriageAgentGeocodesNewLocation(t *testing.T) {
	geo := &fakeGeocoder{}
	agent := &TriageAgent{Geocoder: geo, Region: "Kolkata, India", Logger: zerolog.Nop()}
	a, err := agent.HandleMessage(context.Background(), callWith(), "someone was stabbed on Park Street")
	require.NoError(t, err)

	require.NotNil(t, a.Location)
	assert.Equal(t, []string{"Park Street, Kolkata, India"}, geo.queries)
	require.NotNil(t, a.Location.Latitude)
	assert.InDelta(t, 22.5535, *a.Location.Latitude, 1e-6)
	assert.Equal(t, "Park Street, Kolkata", a.Location.Landmark)
}
