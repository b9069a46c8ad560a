package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopEngine(t *testing.T) {
	s, err := NopEngine{}.Start(context.Background(), "c1")
	require.NoError(t, err)
	require.NoError(t, s.Push([]byte{0, 0}))

	s.Stop()
	s.Stop()
	_, open := <-s.Results()
	assert.False(t, open)
	assert.ErrorIs(t, s.Push([]byte{0, 0}), ErrClosed)
}

func TestNopEngineClosesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NopEngine{}.Start(ctx, "c1")
	require.NoError(t, err)
	cancel()
	select {
	case _, open := <-s.Results():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("results not closed after context cancel")
	}
}

func TestHTTPEngineTranscribesWindows(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.Equal(t, "16000", r.URL.Query().Get("sample_rate"))
		body, _ := io.ReadAll(r.Body)
		assert.GreaterOrEqual(t, len(body), 32000)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"ignored","segments":[{"text":" there is a fire "},{"text":""},{"text":"in newtown"}]}`))
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.URL, 2*time.Second, zerolog.Nop())
	s, err := engine.Start(context.Background(), "c1")
	require.NoError(t, err)
	defer s.Stop()

	frame := make([]byte, 8000)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Push(frame))
	}
	assert.Equal(t, int32(0), hits.Load())
	require.NoError(t, s.Push(frame))

	got := []string{}
	for len(got) < 2 {
		select {
		case r := <-s.Results():
			got = append(got, r.Text)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for results, got %v", got)
		}
	}
	assert.Equal(t, []string{"there is a fire", "in newtown"}, got)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPEngineStopClosesSession(t *testing.T) {
	engine := NewHTTPEngine("http://127.0.0.1:1", time.Second, zerolog.Nop())
	s, err := engine.Start(context.Background(), "c1")
	require.NoError(t, err)
	s.Stop()
	assert.ErrorIs(t, s.Push([]byte{1, 2}), ErrClosed)
	_, open := <-s.Results()
	assert.False(t, open)
}

func TestLastRunes(t *testing.T) {
	assert.Equal(t, "abc", lastRunes("abc", 5))
	assert.Equal(t, "llo", lastRunes("hello", 3))
}
