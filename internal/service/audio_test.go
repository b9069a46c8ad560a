package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisense/dispatch/internal/models"
	"github.com/omnisense/dispatch/internal/stt"
)

type fakeRouter struct {
	mu      sync.Mutex
	owner   map[string]string
	current map[string]string
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{owner: map[string]string{}, current: map[string]string{}}
}

func (r *fakeRouter) assign(callID, party string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner[callID] = party
	if party != models.AIAgent {
		r.current[party] = callID
	}
}

func (r *fakeRouter) AssignedParty(callID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.owner[callID]
	return p, ok
}

func (r *fakeRouter) CurrentCall(operatorID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.current[operatorID]
	return c, ok
}

type chanSession struct {
	mu      sync.Mutex
	frames  int
	results chan stt.Result
	once    sync.Once
}

func (s *chanSession) Push(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *chanSession) Results() <-chan stt.Result { return s.results }

func (s *chanSession) Stop() { s.once.Do(func() { close(s.results) }) }

func (s *chanSession) pushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

type chanEngine struct {
	mu       sync.Mutex
	sessions map[string]*chanSession
}

func (e *chanEngine) Start(ctx context.Context, callID string) (stt.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &chanSession{results: make(chan stt.Result, 8)}
	e.sessions[callID] = s
	return s, nil
}

func (e *chanEngine) session(callID string) *chanSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[callID]
}

func newTestSwitch(router Router, handle MessageHandler) (*Switch, *chanEngine) {
	engine := &chanEngine{sessions: map[string]*chanSession{}}
	return NewSwitch(router, engine, handle, 0, zerolog.Nop()), engine
}

func TestSwitchRoutesByLiveOwner(t *testing.T) {
	router := newFakeRouter()
	sw, engine := newTestSwitch(router, nil)
	caller, operator := &recordingEndpoint{}, &recordingEndpoint{}

	router.assign("c1", models.AIAgent)
	require.NoError(t, sw.AttachCaller(context.Background(), "c1", caller))
	sw.AttachOperator("op1", operator)

	sw.FromCaller("c1", []byte{1})
	assert.Equal(t, 1, engine.session("c1").pushed())
	assert.Equal(t, 0, operator.frameCount())

	router.assign("c1", "op1")
	sw.FromCaller("c1", []byte{2})
	assert.Equal(t, 1, engine.session("c1").pushed())
	assert.Equal(t, 1, operator.frameCount())

	sw.FromOperator("op1", []byte{3})
	assert.Equal(t, 1, caller.frameCount())

	sw.FromCaller("unknown", []byte{4})
	sw.FromOperator("nobody", []byte{5})
	assert.Equal(t, 1, operator.frameCount())
	assert.Equal(t, 1, caller.frameCount())

	sw.DetachOperator("op1", operator)
	sw.FromCaller("c1", []byte{6})
	assert.Equal(t, 1, operator.frameCount())

	sw.DetachCaller("c1")
	sw.DetachCaller("c1")
}

func TestSwitchSuppressesWhileAgentSpeaks(t *testing.T) {
	router := newFakeRouter()
	sw, engine := newTestSwitch(router, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sw.now = func() time.Time { return now }

	router.assign("c1", models.AIAgent)
	require.NoError(t, sw.AttachCaller(context.Background(), "c1", &recordingEndpoint{}))

	sw.Suppress("c1", "stay on the line")
	sw.FromCaller("c1", []byte{1})
	assert.Equal(t, 0, engine.session("c1").pushed())

	// Four words at 350ms plus padding.
	now = now.Add(2 * time.Second)
	sw.FromCaller("c1", []byte{2})
	assert.Equal(t, 0, engine.session("c1").pushed())

	now = now.Add(200 * time.Millisecond)
	sw.FromCaller("c1", []byte{3})
	assert.Equal(t, 1, engine.session("c1").pushed())
}

func TestSwitchTranscriptionPipeline(t *testing.T) {
	router := newFakeRouter()
	var mu sync.Mutex
	var handled []string
	handle := func(ctx context.Context, callID, text string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, text)
		return "Help is coming.", nil
	}
	sw, engine := newTestSwitch(router, handle)
	caller := &recordingEndpoint{}

	router.assign("c1", models.AIAgent)
	require.NoError(t, sw.AttachCaller(context.Background(), "c1", caller))
	results := engine.session("c1").results
	for _, text := range []string{"...", "a", "There is a fire", "there is a fire", "I"} {
		results <- stt.Result{Text: text}
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"There is a fire", "I"}, handled)
	mu.Unlock()
	assert.Equal(t, []string{"transcription", "ai_speech", "transcription", "ai_speech"}, caller.types())

	sw.DetachCaller("c1")
}

func TestMeaningful(t *testing.T) {
	assert.True(t, meaningful("I"))
	assert.True(t, meaningful("ok"))
	assert.False(t, meaningful("a"))
	assert.False(t, meaningful("..."))
	assert.False(t, meaningful("42"))
	assert.False(t, meaningful(""))
}
