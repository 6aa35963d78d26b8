package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hostsentry/core"
	"hostsentry/metrics"
)

const (
	// writeTimeout bounds a single frame write to a subscriber.
	writeTimeout = 10 * time.Second

	// pongTimeout is how long a subscriber may go without answering a ping.
	pongTimeout = 60 * time.Second

	// pingInterval must stay below pongTimeout.
	pingInterval = (pongTimeout * 9) / 10

	// readLimit caps inbound frames; subscribers are not expected to send any.
	readLimit = 512

	outboundBuffer = 256
)

// AlertFrame is the wire shape of an "alert" frame. The alert and the
// recomputed aggregate risk score sit at the top level.
type AlertFrame struct {
	Type      string      `json:"type"`
	Alert     *core.Alert `json:"alert"`
	RiskScore float64     `json:"risk_score"`
	Timestamp time.Time   `json:"timestamp"`
}

// RiskFrame is the wire shape of a "risk" score update frame.
type RiskFrame struct {
	Type      string    `json:"type"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans alert and risk frames out to every connected WebSocket
// subscriber. A slow subscriber is dropped rather than allowed to stall
// the rest.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	attach chan *subscriber
	detach chan *subscriber
	frames chan []byte

	logger *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Origin checks happen in corsMiddleware before the upgrade, so the
// upgrader itself accepts everything.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates a WebSocket hub. Start must be called before use.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		attach: make(chan *subscriber),
		detach: make(chan *subscriber),
		frames: make(chan []byte, outboundBuffer),
		logger: logger,
		ctx:    hubCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the hub loop. Call exactly once, in its own goroutine.
func (h *Hub) Start() {
	defer close(h.done)

	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return
		case s := <-h.attach:
			h.add(s)
		case s := <-h.detach:
			h.drop(s)
		case frame := <-h.frames:
			h.fanOut(frame)
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	total := len(h.subs)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	h.logger.Debugw("WebSocket subscriber connected", "total", total)
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
	total := len(h.subs)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(total))
	h.logger.Debugw("WebSocket subscriber disconnected", "total", total)
}

func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.out <- frame:
		default:
			// Full outbound buffer means the subscriber is not keeping up.
			go func(slow *subscriber) {
				select {
				case h.detach <- slow:
				case <-h.ctx.Done():
				}
				slow.conn.Close()
			}(s)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for s := range h.subs {
		close(s.out)
		s.conn.Close()
	}
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	metrics.WebsocketClients.Set(0)
}

// BroadcastAlert pushes a new alert frame to every subscriber. Never blocks
// the detection pipeline for more than a second.
func (h *Hub) BroadcastAlert(alert *core.Alert, riskScore float64) {
	h.enqueue("alert", AlertFrame{
		Type:      "alert",
		Alert:     alert,
		RiskScore: riskScore,
		Timestamp: time.Now(),
	})
}

// BroadcastRisk pushes a risk score update frame.
func (h *Hub) BroadcastRisk(score float64) {
	h.enqueue("risk", RiskFrame{Type: "risk", Score: score, Timestamp: time.Now()})
}

func (h *Hub) enqueue(msgType string, msg interface{}) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "type", msgType, "error", err)
		return
	}

	select {
	case h.frames <- frame:
	case <-time.After(time.Second):
		h.logger.Warnw("WebSocket broadcast timeout", "type", msgType)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stop shuts the hub down and waits for its goroutine to finish.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// readLoop discards inbound frames; it exists to answer pings and to notice
// when the peer goes away.
func (s *subscriber) readLoop() {
	defer func() {
		select {
		case s.hub.detach <- s:
		case <-s.hub.ctx.Done():
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debugw("WebSocket unexpected close", "error", err)
			}
			return
		}
	}
}

// writeLoop delivers queued frames and keeps the ping heartbeat going.
func (s *subscriber) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveWs(hub *Hub, logger *zap.SugaredLogger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	s := &subscriber{hub: hub, conn: conn, out: make(chan []byte, outboundBuffer)}
	hub.attach <- s

	go s.writeLoop()
	go s.readLoop()
}
