package stt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	defaultSampleRate = 16000
	bytesPerSample    = 2
)

// HTTPEngine posts fixed windows of 16-bit mono PCM to a transcription
// service and streams back the recognised segments.
type HTTPEngine struct {
	Client     *resty.Client
	SampleRate int
	Window     time.Duration
	Overlap    time.Duration
	Logger     zerolog.Logger
}

func NewHTTPEngine(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPEngine {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("Accept", "application/json")
	return &HTTPEngine{
		Client:     client,
		SampleRate: defaultSampleRate,
		Window:     time.Second,
		Overlap:    200 * time.Millisecond,
		Logger:     logger.With().Str("component", "stt").Logger(),
	}
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

func (e *HTTPEngine) Start(ctx context.Context, callID string) (Session, error) {
	if e.Client == nil {
		return nil, fmt.Errorf("stt: client is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &httpSession{
		engine:  e,
		callID:  callID,
		frames:  make(chan []byte, 256),
		results: make(chan Result, 16),
		cancel:  cancel,
	}
	go s.run(ctx)
	return s, nil
}

func (e *HTTPEngine) windowBytes() int {
	return int(e.Window.Seconds() * float64(e.sampleRate()*bytesPerSample))
}

func (e *HTTPEngine) overlapBytes() int {
	n := int(e.Overlap.Seconds() * float64(e.sampleRate()*bytesPerSample))
	return n - n%bytesPerSample
}

func (e *HTTPEngine) sampleRate() int {
	if e.SampleRate <= 0 {
		return defaultSampleRate
	}
	return e.SampleRate
}

type httpSession struct {
	engine  *HTTPEngine
	callID  string
	frames  chan []byte
	results chan Result
	cancel  context.CancelFunc

	mu      sync.Mutex
	stopped bool
	prompt  string
}

func (s *httpSession) Push(frame []byte) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrClosed
	}
	select {
	case s.frames <- frame:
	default:
		s.engine.Logger.Warn().Str("call_id", s.callID).Msg("transcription backlog full, dropping frame")
	}
	return nil
}

func (s *httpSession) Results() <-chan Result { return s.results }

func (s *httpSession) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

func (s *httpSession) run(ctx context.Context) {
	defer close(s.results)
	window := s.engine.windowBytes()
	overlap := s.engine.overlapBytes()
	buf := make([]byte, 0, window*2)

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.frames:
			buf = append(buf, frame...)
			if len(buf) < window {
				continue
			}
			texts, err := s.transcribe(ctx, buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.engine.Logger.Error().Err(err).Str("call_id", s.callID).Msg("transcription failed")
			}
			for _, text := range texts {
				select {
				case s.results <- Result{Text: text, Timestamp: time.Now().UTC()}:
				case <-ctx.Done():
					return
				}
			}
			if len(buf) > overlap {
				buf = append(buf[:0], buf[len(buf)-overlap:]...)
			} else {
				buf = buf[:0]
			}
		}
	}
}

func (s *httpSession) transcribe(ctx context.Context, pcm []byte) ([]string, error) {
	var out transcribeResponse
	resp, err := s.engine.Client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("sample_rate", strconv.Itoa(s.engine.sampleRate())).
		SetQueryParam("prompt", lastRunes(s.prompt, 100)).
		SetBody(pcm).
		SetResult(&out).
		Post("/transcribe")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stt http error: %s", resp.Status())
	}

	texts := []string{}
	if len(out.Segments) > 0 {
		for _, seg := range out.Segments {
			if t := strings.TrimSpace(seg.Text); t != "" {
				texts = append(texts, t)
			}
		}
	} else if t := strings.TrimSpace(out.Text); t != "" {
		texts = append(texts, t)
	}
	for _, t := range texts {
		s.prompt += " " + t
	}
	s.prompt = lastRunes(s.prompt, 400)
	return texts, nil
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
