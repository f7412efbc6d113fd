package broadcast

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 512
)

// WSHandler bridges hub subscriptions onto websocket connections.
// GET /ws?topics=device_update,env_log_update
type WSHandler struct {
	hub          *Hub
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewWSHandler creates the websocket bridge. An empty origin list or "*"
// accepts every origin.
func NewWSHandler(hub *Hub, pingInterval time.Duration, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	h := &WSHandler{
		hub:          hub,
		logger:       logger,
		pingInterval: pingInterval,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

// ParseTopics splits a comma separated topics query value
func ParseTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(ParseTopics(r.URL.Query().Get("topics"))...)
	defer h.hub.Unsubscribe(sub)

	h.logger.Info("Viewer connected",
		zap.String("subscriber_id", sub.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	readerDone := make(chan struct{})
	go h.readLoop(conn, readerDone)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("WebSocket write failed",
					zap.String("subscriber_id", sub.ID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readerDone:
			h.logger.Info("Viewer disconnected", zap.String("subscriber_id", sub.ID()))
			return
		}
	}
}

// readLoop drains inbound frames so pongs and close frames are processed
func (h *WSHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
