// Package ws serves live close sessions over WebSocket. A client sends its
// close inputs as JSON; every message, and every price or close event
// affecting the session, yields a fresh preview.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/perpcloser/internal/domain"
	"github.com/alanyoungcy/perpcloser/internal/server/handler"
	"github.com/alanyoungcy/perpcloser/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// Previewer computes close previews. *service.CloseService satisfies it.
type Previewer interface {
	Preview(ctx context.Context, req service.CloseRequest) (service.ClosePreview, error)
}

// Config holds the hub settings.
type Config struct {
	// AllowedOrigins restricts the upgrade Origin header; empty allows all.
	AllowedOrigins []string
}

// Hub tracks connected close sessions and nudges them when market state
// changes.
type Hub struct {
	previews Previewer
	bus      domain.SignalBus
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// NewHub creates a Hub.
func NewHub(previews Previewer, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	h := &Hub{
		previews: previews,
		bus:      bus,
		logger:   logger.With(slog.String("component", "ws_hub")),
		sessions: make(map[*session]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run forwards price and close events to the sessions until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	prices, err := h.bus.Subscribe(ctx, domain.ChannelPriceEvents)
	if err != nil {
		return err
	}
	closes, err := h.bus.Subscribe(ctx, domain.ChannelCloseEvents)
	if err != nil {
		return err
	}
	h.logger.Info("ws hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case _, ok := <-prices:
			if !ok {
				prices = nil
				continue
			}
			h.refresh(func(*session) bool { return true })
		case data, ok := <-closes:
			if !ok {
				closes = nil
				continue
			}
			account, ok := eventAccount(data)
			if !ok {
				continue
			}
			h.refresh(func(s *session) bool { return s.account() == account })
		}
	}
}

func eventAccount(data []byte) (common.Address, bool) {
	var evt struct {
		Account string `json:"account"`
	}
	if err := json.Unmarshal(data, &evt); err != nil || !common.IsHexAddress(evt.Account) {
		return common.Address{}, false
	}
	return common.HexToAddress(evt.Account), true
}

func (h *Hub) refresh(match func(*session) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if match(s) {
			s.nudge()
		}
	}
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("ws: session opened", slog.Int("sessions", n))
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("ws: session closed", slog.Int("sessions", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.stop()
	}
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleWS upgrades the request and runs a close session on it.
// GET /ws/close
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	s := newSession(h, conn)
	h.add(s)
	go s.writePump()
	go s.computeLoop()
	go s.readPump()
}

// message is the envelope of every frame sent to the client.
type message struct {
	Type    string                `json:"type"`
	Preview *service.ClosePreview `json:"preview,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	inputs  chan service.CloseRequest
	nudges  chan struct{}
	done    chan struct{}
	stopped sync.Once

	mu   sync.Mutex
	last *service.CloseRequest
}

func newSession(h *Hub, conn *websocket.Conn) *session {
	return &session{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		inputs: make(chan service.CloseRequest),
		nudges: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *session) stop() {
	s.stopped.Do(func() { close(s.done) })
}

func (s *session) account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return common.Address{}
	}
	return s.last.Account
}

// nudge asks for a recompute. Pending nudges coalesce.
func (s *session) nudge() {
	select {
	case s.nudges <- struct{}{}:
	default:
	}
}

func (s *session) readPump() {
	defer func() {
		s.stop()
		s.hub.remove(s)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var body handler.CloseRequestBody
		if err := json.Unmarshal(data, &body); err != nil {
			s.emit(message{Type: "error", Error: "invalid message"})
			continue
		}
		req, err := body.Request()
		if err != nil {
			s.emit(message{Type: "error", Error: err.Error()})
			continue
		}
		select {
		case s.inputs <- req:
		case <-s.done:
			return
		}
	}
}

// computeLoop serialises previews so the client sees them in input order.
func (s *session) computeLoop() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.inputs:
			s.mu.Lock()
			s.last = &req
			s.mu.Unlock()
			s.compute(req)
		case <-s.nudges:
			s.mu.Lock()
			last := s.last
			s.mu.Unlock()
			if last != nil {
				s.compute(*last)
			}
		}
	}
}

func (s *session) compute(req service.CloseRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pv, err := s.hub.previews.Preview(ctx, req)
	if err != nil {
		s.emit(message{Type: "error", Error: "preview unavailable"})
		s.hub.logger.Warn("ws: preview failed",
			slog.String("position_key", req.PositionKey),
			slog.String("error", err.Error()),
		)
		return
	}
	s.emit(message{Type: "preview", Preview: &pv})
}

// emit queues a frame, dropping it when the client is too slow.
func (s *session) emit(m message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	default:
		s.hub.logger.Warn("ws: dropping frame for slow client")
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.stop()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.stop()
				return
			}
		}
	}
}
