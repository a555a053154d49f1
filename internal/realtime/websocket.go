package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 1 << 20
	wildcardOrigin = "*"
)

type TransportConfig struct {
	Gatekeeper     *Gatekeeper
	Coordinator    *Coordinator
	AllowedOrigins []string
	SendBuffer     int
	Logger         *zap.Logger
}

// Transport upgrades authenticated requests to websocket sessions.
type Transport struct {
	gatekeeper  *Gatekeeper
	coordinator *Coordinator
	upgrader    websocket.Upgrader
	sendBuffer  int
	logger      *zap.Logger
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Gatekeeper == nil {
		return nil, errors.New("realtime: gatekeeper is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("realtime: coordinator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := normalizeOrigins(cfg.AllowedOrigins)
	return &Transport{
		gatekeeper:  cfg.Gatekeeper,
		coordinator: cfg.Coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		sendBuffer: cfg.SendBuffer,
		logger:     logger,
	}, nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := t.gatekeeper.Admit(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("realtime upgrade failed",
			zap.String("user_id", identity.UserID.String()),
			zap.Error(err))
		return
	}

	session := NewSession(identity, t.sendBuffer)
	t.logger.Info("realtime session connected",
		zap.String("session_id", session.ID()),
		zap.String("user_id", identity.UserID.String()))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writePump(conn, session)
	}()

	t.readPump(r.Context(), conn, session)

	t.coordinator.Disconnect(session)
	<-writerDone
	t.logger.Info("realtime session disconnected",
		zap.String("session_id", session.ID()),
		zap.String("user_id", identity.UserID.String()))
}

func (t *Transport) readPump(ctx context.Context, conn *websocket.Conn, session *Session) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Debug("realtime read failed",
					zap.String("session_id", session.ID()),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		t.coordinator.HandleFrame(ctx, session, frame)
	}
}

func (t *Transport) writePump(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case event := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				session.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				return
			}
		case <-session.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

func originAllowed(allowed []string, origin string) bool {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == wildcardOrigin || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}
