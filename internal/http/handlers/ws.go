package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omnisense/dispatch/internal/service"
)

const (
	greeting = "911, what is your emergency?"

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 1 << 20
	sendBuffer   = 256
)

var (
	errPeerClosed  = errors.New("peer closed")
	errPeerBacklog = errors.New("peer send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type outbound struct {
	kind int
	data []byte
}

// Peer is a WebSocket endpoint. Sends never block: a slow peer loses
// messages instead of stalling the sender.
type Peer struct {
	conn   *websocket.Conn
	send   chan outbound
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newPeer(conn *websocket.Conn, logger zerolog.Logger) *Peer {
	p := &Peer{
		conn:   conn,
		send:   make(chan outbound, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go p.writePump()
	return p
}

func (p *Peer) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.enqueue(outbound{kind: websocket.TextMessage, data: b})
}

func (p *Peer) SendAudio(frame []byte) error {
	return p.enqueue(outbound{kind: websocket.BinaryMessage, data: frame})
}

func (p *Peer) enqueue(m outbound) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}
	select {
	case p.send <- m:
		return nil
	default:
		return errPeerBacklog
	}
}

func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *Peer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case m := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(m.kind, m.data); err != nil {
				p.logger.Debug().Err(err).Msg("websocket write failed")
				p.Close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.Close()
				return
			}
		}
	}
}

type controlMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallerAudio carries one caller's audio. Binary frames are PCM audio; text
// frames are control messages ("hangup", or "text" for typed input). A call
// id unknown to the system creates the call.
func (h *Handler) CallerAudio(c *gin.Context) {
	callID := c.Param("call_id")
	if existing, ok := h.Orchestrator.Call(callID); ok && !existing.Status.Active() {
		writeError(c, http.StatusConflict, "INVALID_STATE", "Call already ended", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Str("call_id", callID).Msg("caller websocket upgrade failed")
		return
	}
	log := h.Logger.With().Str("call_id", callID).Logger()
	peer := newPeer(conn, log)
	defer peer.Close()

	if _, ok := h.Orchestrator.Call(callID); !ok {
		if _, err := h.Orchestrator.CreateCallWithID(context.Background(), callID, webContact(callID)); err != nil {
			log.Warn().Err(err).Msg("caller sync failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Switch.AttachCaller(ctx, callID, peer); err != nil {
		log.Error().Err(err).Msg("transcription unavailable")
		_ = peer.SendJSON(gin.H{"type": "error", "message": "transcription unavailable"})
		return
	}
	defer h.Switch.DetachCaller(callID)

	if h.Orchestrator.Speak(callID, greeting) {
		h.Switch.Suppress(callID, greeting)
		_ = peer.SendJSON(gin.H{"type": "ai_speech", "text": greeting})
	}

	hungUp := false
	for !hungUp {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch kind {
		case websocket.BinaryMessage:
			h.Switch.FromCaller(callID, data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "hangup":
				hungUp = true
			case "text":
				h.typedMessage(ctx, callID, msg.Text, peer)
			}
		}
	}

	if err := h.Orchestrator.Disconnect(callID, !hungUp); err != nil {
		log.Debug().Err(err).Msg("disconnect after socket close")
	}
}

func (h *Handler) typedMessage(ctx context.Context, callID, text string, peer *Peer) {
	if text == "" {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()
	reply, err := h.Orchestrator.SendMessage(reqCtx, callID, text)
	if err != nil || reply == "" {
		return
	}
	h.Switch.Suppress(callID, reply)
	_ = peer.SendJSON(gin.H{"type": "ai_speech", "text": reply})
}

// OperatorSocket registers the operator for the lifetime of the connection.
// Binary frames are the operator's voice; a {"type":"complete"} text frame
// finishes the current call.
func (h *Handler) OperatorSocket(c *gin.Context) {
	operatorID := c.Param("operator_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Str("operator_id", operatorID).Msg("operator websocket upgrade failed")
		return
	}
	log := h.Logger.With().Str("operator_id", operatorID).Logger()
	peer := newPeer(conn, log)
	defer peer.Close()

	h.Switch.AttachOperator(operatorID, peer)
	op := h.Orchestrator.RegisterOperator(operatorID, c.Query("name"), peer)
	_ = peer.SendJSON(gin.H{"type": "registered", "operator": op})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch kind {
		case websocket.BinaryMessage:
			h.Switch.FromOperator(operatorID, data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "complete" {
				if res, err := h.Orchestrator.CompleteCall(operatorID); err == nil {
					_ = peer.SendJSON(gin.H{"type": "completed", "result": res})
				}
			}
		}
	}

	if h.Switch.DetachOperator(operatorID, peer) {
		if err := h.Orchestrator.UnregisterOperator(operatorID); err != nil {
			log.Debug().Err(err).Msg("unregister after socket close")
		}
	}
}

// DashboardSocket streams state snapshots. Only the latest snapshot is kept
// for a slow reader.
func (h *Handler) DashboardSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("dashboard websocket upgrade failed")
		return
	}
	peer := newPeer(conn, h.Logger)
	defer peer.Close()

	snapshots, unsubscribe := h.Orchestrator.Subscribe()
	defer unsubscribe()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				peer.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-peer.done:
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := peer.SendJSON(gin.H{"type": "state", "data": snap}); errors.Is(err, errPeerClosed) {
				return
			}
		}
	}
}

func (h *Handler) timeout() time.Duration {
	if h.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return h.RequestTimeout
}

func webContact(callID string) string {
	r := []rune(callID)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return "Web-" + string(r)
}

var _ service.Endpoint = (*Peer)(nil)
