package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "immediate", cfg.QueuePolicy)
	assert.Equal(t, 2*time.Second, cfg.QueueInterval)
	assert.Equal(t, 10, cfg.EscalationDelta)
}

func TestLoadNormalisesQueuePolicy(t *testing.T) {
	t.Setenv("QUEUE_POLICY", " Sufficient_Info ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sufficient_info", cfg.QueuePolicy)
}

func TestLoadRejectsUnknownQueuePolicy(t *testing.T) {
	t.Setenv("QUEUE_POLICY", "whenever")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_POLICY")
}
