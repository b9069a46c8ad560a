// Package stt holds the transcription engine contract and its adapters.
package stt

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("transcription session closed")

type Result struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine starts one transcription session per call. A call may start a new
// session after stopping the previous one.
type Engine interface {
	Start(ctx context.Context, callID string) (Session, error)
}

// Session accepts raw audio frames and lazily yields results. Results is
// closed only after Stop or when the parent context ends.
type Session interface {
	Push(frame []byte) error
	Results() <-chan Result
	Stop()
}

// NopEngine accepts audio and never produces text.
type NopEngine struct{}

func (NopEngine) Start(ctx context.Context, callID string) (Session, error) {
	s := &nopSession{results: make(chan Result), done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		close(s.results)
	}()
	return s, nil
}

type nopSession struct {
	results chan Result
	done    chan struct{}
	once    sync.Once
}

func (s *nopSession) Push(frame []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
		return nil
	}
}

func (s *nopSession) Results() <-chan Result { return s.results }

func (s *nopSession) Stop() {
	s.once.Do(func() { close(s.done) })
}
