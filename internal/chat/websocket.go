package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsInbound is the frame a client sends.
type wsInbound struct {
	Text string `json:"text"`
}

// wsOutbound is the frame the server sends.
type wsOutbound struct {
	Text             string   `json:"text"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
}

// WebSocketChannel implements Channel over WebSocket connections. Clients
// connect to the handler with a user_id query parameter; one connection per
// user, a newer connection replaces the older one.
type WebSocketChannel struct {
	handler func(InboundMessage)
	conns   map[string]*websocket.Conn
	mu      sync.RWMutex
	started bool
}

// NewWebSocketChannel creates a WebSocket channel adapter.
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{
		conns: make(map[string]*websocket.Conn),
	}
}

// Start registers the inbound handler. Connections are accepted by the
// HTTP handler, not here.
func (w *WebSocketChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	w.started = true
	return nil
}

func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for userID, conn := range w.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(w.conns, userID)
	}
	w.started = false
	return nil
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	w.mu.RLock()
	conn, ok := w.conns[userID]
	w.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no websocket connection for user %s", userID)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return wsjson.Write(ctx, conn, wsOutbound{
		Text:             msg.Text,
		SuggestedReplies: msg.SuggestedReplies,
	})
}

// SendTyping is a no-op: the web client renders its own pending state.
func (w *WebSocketChannel) SendTyping(context.Context, string) error {
	return nil
}

// ServeHTTP upgrades the request and pumps inbound frames to the handler.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(rw, "user_id is required", http.StatusBadRequest)
		return
	}

	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if !started {
		http.Error(rw, "channel not started", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	w.register(userID, conn)
	defer w.unregister(userID, conn)

	slog.Info("websocket connected", "user_id", userID)

	for {
		var in wsInbound
		if err := wsjson.Read(r.Context(), conn, &in); err != nil {
			slog.Debug("websocket closed", "user_id", userID, "error", err)
			return
		}
		if in.Text == "" {
			continue
		}

		w.mu.RLock()
		handler := w.handler
		w.mu.RUnlock()
		if handler != nil {
			handler(InboundMessage{
				Channel: "websocket",
				UserID:  userID,
				Text:    in.Text,
			})
		}
	}
}

func (w *WebSocketChannel) register(userID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.conns[userID]; ok {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
	w.conns[userID] = conn
}

func (w *WebSocketChannel) unregister(userID string, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conns[userID] == conn {
		delete(w.conns, userID)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
