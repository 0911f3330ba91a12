package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/rpc"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	maxMessageSize = 4096
	writeTimeout   = 10 * time.Second
)

type WebSocketSettings struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	registry *gateway.Registry
	router   *Router
	settings WebSocketSettings
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry *gateway.Registry,
	router *Router,
	settings WebSocketSettings,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		router,
		settings,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/ws", s.handle)
}

func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))

		return
	}

	transportId := gonanoid.Must()
	token := bearerToken(r)

	connection, err := s.registry.Connect(r.Context(), transportId, token)
	if err != nil {
		s.logger.Info("connection rejected",
			zap.String("transportId", transportId),
			zap.Error(err))

		// The client gets a structured error, not an abrupt close.
		s.writeErrorFrame(conn, err)
		conn.Close()

		return
	}

	s.sendAuthenticated(connection)

	go s.writePump(conn, connection)
	s.readPump(r, conn, connection)
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authorization := r.Header.Get("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		return strings.TrimPrefix(authorization, "Bearer ")
	}

	return ""
}

func (s *WebSocketServer) sendAuthenticated(connection *gateway.Connection) {
	params, err := json.Marshal(map[string]any{
		"userId":       connection.UserId(),
		"tenantId":     connection.TenantId(),
		"connectionId": connection.Id,
		"serverTime":   time.Now(),
	})
	if err != nil {
		s.logger.Error("failed to marshal authenticated event", zap.Error(err))

		return
	}

	raw := json.RawMessage(params)

	frame, err := json.Marshal(rpc.NewNotification("authenticated", &raw))
	if err != nil {
		s.logger.Error("failed to marshal authenticated frame", zap.Error(err))

		return
	}

	connection.Enqueue(frame)
}

func (s *WebSocketServer) writeErrorFrame(conn *websocket.Conn, cause error) {
	params, err := json.Marshal(map[string]any{
		"code":      gateway.WireCode(cause),
		"message":   cause.Error(),
		"timestamp": time.Now(),
	})
	if err != nil {
		return
	}

	raw := json.RawMessage(params)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(rpc.NewNotification("error", &raw)); err != nil {
		s.logger.Debug("failed to write error frame", zap.Error(err))
	}
}

// readPump serializes the connection's command stream: commands execute in
// receipt order because this loop is the only reader.
func (s *WebSocketServer) readPump(r *http.Request, conn *websocket.Conn, connection *gateway.Connection) {
	defer func() {
		// The request context may already be canceled once the client is
		// gone; store cleanup gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.registry.Disconnect(ctx, connection.TransportId)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.settings.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.settings.HeartbeatTimeout))
	})

	ctx := gateway.WithConnection(r.Context(), connection)

	for {
		var request rpc.Request
		if err := conn.ReadJSON(&request); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed",
					zap.String("connectionId", connection.Id),
					zap.Error(err))
			}

			return
		}

		conn.SetReadDeadline(time.Now().Add(s.settings.HeartbeatTimeout))

		response := s.router.RouteRequest(ctx, request)
		if response == nil {
			continue
		}

		frame, err := json.Marshal(response)
		if err != nil {
			s.logger.Error("failed to marshal response", zap.Error(err))

			continue
		}

		if !connection.Enqueue(frame) {
			s.logger.Warn("dropping response, send buffer full",
				zap.String("connectionId", connection.Id))
		}
	}
}

func (s *WebSocketServer) writePump(conn *websocket.Conn, connection *gateway.Connection) {
	ticker := time.NewTicker(s.settings.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-connection.Send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
