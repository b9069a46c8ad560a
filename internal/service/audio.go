package service

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/omnisense/dispatch/internal/models"
	"github.com/omnisense/dispatch/internal/stt"
	"github.com/omnisense/dispatch/internal/utils"
)

const suppressPadding = 750 * time.Millisecond

// Router answers live ownership questions for the switch. Implemented by
// Orchestrator.
type Router interface {
	AssignedParty(callID string) (party string, active bool)
	CurrentCall(operatorID string) (string, bool)
}

// MessageHandler feeds transcribed caller text into the call and returns the
// agent reply to speak, or "" when nothing should be spoken.
type MessageHandler func(ctx context.Context, callID, text string) (string, error)

type callerLeg struct {
	ep            Endpoint
	session       stt.Session
	cancel        context.CancelFunc
	suppressUntil time.Time
	lastText      uint64
}

// Switch relays audio frames. Every frame is routed by reading the call's
// current owner, so ownership changes apply from the next frame.
type Switch struct {
	Router  Router
	Engine  stt.Engine
	Handle  MessageHandler
	PerWord time.Duration
	Logger  zerolog.Logger

	mu        sync.Mutex
	callers   map[string]*callerLeg
	operators map[string]Endpoint
	now       func() time.Time
}

func NewSwitch(router Router, engine stt.Engine, handle MessageHandler, perWord time.Duration, logger zerolog.Logger) *Switch {
	if engine == nil {
		engine = stt.NopEngine{}
	}
	if perWord <= 0 {
		perWord = 350 * time.Millisecond
	}
	return &Switch{
		Router:    router,
		Engine:    engine,
		Handle:    handle,
		PerWord:   perWord,
		Logger:    logger.With().Str("component", "audio_switch").Logger(),
		callers:   map[string]*callerLeg{},
		operators: map[string]Endpoint{},
		now:       time.Now,
	}
}

// AttachCaller connects the caller-side endpoint of a call and starts its
// transcription session. A second attach replaces the first.
func (s *Switch) AttachCaller(ctx context.Context, callID string, ep Endpoint) error {
	sctx, cancel := context.WithCancel(ctx)
	session, err := s.Engine.Start(sctx, callID)
	if err != nil {
		cancel()
		return err
	}
	leg := &callerLeg{ep: ep, session: session, cancel: cancel}

	s.mu.Lock()
	prev := s.callers[callID]
	s.callers[callID] = leg
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		prev.session.Stop()
	}

	go s.consume(sctx, callID, leg)
	s.Logger.Info().Str("call_id", callID).Msg("caller audio attached")
	return nil
}

// DetachCaller stops the call's transcription session. Safe to call twice.
func (s *Switch) DetachCaller(callID string) {
	s.mu.Lock()
	leg := s.callers[callID]
	delete(s.callers, callID)
	s.mu.Unlock()
	if leg == nil {
		return
	}
	leg.cancel()
	leg.session.Stop()
	s.Logger.Info().Str("call_id", callID).Msg("caller audio detached")
}

func (s *Switch) AttachOperator(operatorID string, ep Endpoint) {
	s.mu.Lock()
	s.operators[operatorID] = ep
	s.mu.Unlock()
}

// DetachOperator removes ep if it is still the operator's endpoint and
// reports whether it was.
func (s *Switch) DetachOperator(operatorID string, ep Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.operators[operatorID] != ep {
		return false
	}
	delete(s.operators, operatorID)
	return true
}

// FromCaller routes one caller frame to the transcription engine or to the
// owning operator.
func (s *Switch) FromCaller(callID string, frame []byte) {
	party, active := s.Router.AssignedParty(callID)
	if !active {
		return
	}
	if party == models.AIAgent {
		s.mu.Lock()
		leg := s.callers[callID]
		if leg == nil || s.now().Before(leg.suppressUntil) {
			s.mu.Unlock()
			return
		}
		session := leg.session
		s.mu.Unlock()
		if err := session.Push(frame); err != nil {
			s.Logger.Debug().Err(err).Str("call_id", callID).Msg("transcription frame dropped")
		}
		return
	}

	s.mu.Lock()
	ep := s.operators[party]
	s.mu.Unlock()
	if ep != nil {
		_ = ep.SendAudio(frame)
	}
}

// FromOperator relays an operator frame to the caller of the operator's
// current call.
func (s *Switch) FromOperator(operatorID string, frame []byte) {
	callID, ok := s.Router.CurrentCall(operatorID)
	if !ok {
		return
	}
	s.mu.Lock()
	leg := s.callers[callID]
	s.mu.Unlock()
	if leg != nil {
		_ = leg.ep.SendAudio(frame)
	}
}

// Suppress drops caller frames for the time it takes to speak reply. Each
// call resets the window.
func (s *Switch) Suppress(callID, reply string) {
	words := len(strings.Fields(reply))
	until := s.now().Add(time.Duration(words)*s.PerWord + suppressPadding)
	s.mu.Lock()
	if leg := s.callers[callID]; leg != nil {
		leg.suppressUntil = until
	}
	s.mu.Unlock()
}

func (s *Switch) consume(ctx context.Context, callID string, leg *callerLeg) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-leg.session.Results():
			if !ok {
				return
			}
			s.transcribed(ctx, callID, leg, res.Text)
		}
	}
}

func (s *Switch) transcribed(ctx context.Context, callID string, leg *callerLeg, raw string) {
	text := strings.TrimSpace(raw)
	if !meaningful(text) {
		return
	}
	key := utils.UtteranceKey(text)
	s.mu.Lock()
	dup := key == leg.lastText
	leg.lastText = key
	s.mu.Unlock()
	if dup {
		return
	}
	if party, active := s.Router.AssignedParty(callID); !active || party != models.AIAgent {
		return
	}

	_ = leg.ep.SendJSON(map[string]any{"type": "transcription", "text": text})
	if s.Handle == nil {
		return
	}
	reply, err := s.Handle(ctx, callID, text)
	if err != nil {
		s.Logger.Warn().Err(err).Str("call_id", callID).Msg("transcribed message rejected")
		return
	}
	if reply == "" {
		return
	}
	s.Suppress(callID, reply)
	_ = leg.ep.SendJSON(map[string]any{"type": "ai_speech", "text": reply})
}

// meaningful filters transcription noise: text needs a letter and at least
// two characters, except the word "I".
func meaningful(text string) bool {
	if text != "I" && len([]rune(text)) < 2 {
		return false
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
