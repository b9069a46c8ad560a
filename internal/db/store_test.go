package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisense/dispatch/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestArchiveCallRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	lat, lon := 22.5806, 88.4605
	call := models.Call{
		ID:            uuid.NewString(),
		CallNumber:    7,
		CallerContact: "Web-1234",
		EmergencyType: models.EmergencyFire,
		Location:      &models.Location{Address: "Newtown", Latitude: &lat, Longitude: &lon},
		Summary:       "FIRE at Newtown",
		Status:        models.StatusCompleted,
		AssignedTo:    "op1",
		SeverityScore: 80,
		SeverityLevel: models.SeverityCritical,
		CreatedAt:     now,
		CompletedAt:   &now,
		Transcript: []models.TranscriptEntry{
			{Role: "agent", Text: "911, what is your emergency?", Timestamp: now},
			{Role: "caller", Text: "there is a fire", Timestamp: now},
		},
	}
	require.NoError(t, store.ArchiveCall(ctx, call))

	call.Status = models.StatusArchived
	call.Transcript = call.Transcript[:1]
	require.NoError(t, store.ArchiveCall(ctx, call))

	records, err := store.RecentCallRecords(ctx, 500)
	require.NoError(t, err)
	var found *CallRecord
	for i := range records {
		if records[i].ID == call.ID {
			found = &records[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, models.StatusArchived, found.Status)
	assert.Equal(t, "Newtown", found.Address)
	assert.Equal(t, 1, found.TranscriptLen)

	entries, err := store.CallTranscript(ctx, call.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "agent", entries[0].Role)

	_, err = store.CallTranscript(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
