package server_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/handler"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
	"github.com/dialhaus/realtime-gateway/internal/server"
	"github.com/dialhaus/realtime-gateway/internal/store/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret     = "server-test-secret"
	testServiceKey = "server-test-service-key"
)

type testGateway struct {
	store       *memory.Store
	registry    *gateway.Registry
	broadcaster *gateway.Broadcaster
	httpServer  *httptest.Server
}

func newTestGateway(t *testing.T, maxPerTenant int) *testGateway {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store := memory.NewStore()
	verifier := auth.NewVerifier(testSecret, testServiceKey)
	registry := gateway.NewRegistry(logger, store, verifier, gateway.RegistrySettings{
		MaxConnectionsPerTenant: maxPerTenant,
		ConnectionTTLSeconds:    3600,
	})
	broadcaster := gateway.NewBroadcaster(logger, registry, store, nil, gateway.BroadcasterSettings{
		EventRetention: time.Hour,
	})

	idValidator := handler.NewIdValidator()
	dispatcher := handler.NewLogDispatcher(logger)

	router := server.NewRouter(
		logger,
		handler.NewHeartbeatHandler(),
		handler.NewSubscribeConversationHandler(idValidator, registry),
		handler.NewUnsubscribeConversationHandler(idValidator, registry),
		handler.NewTakeoverConversationHandler(idValidator, dispatcher, broadcaster),
		handler.NewSendMessageHandler(idValidator, dispatcher, broadcaster),
		handler.NewUpdateLeadStatusHandler(idValidator, dispatcher, broadcaster),
	)

	originChecker := server.NewOriginChecker([]string{"*"})
	upgrader := &gorillaws.Upgrader{
		CheckOrigin: originChecker.Check,
	}

	muxRouter := mux.NewRouter()
	server.NewWebSocketServer(logger, upgrader, registry, router, server.WebSocketSettings{
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
	}).Register(muxRouter)
	server.NewRESTServer(logger, broadcaster, registry, verifier, nil).Register(muxRouter)

	httpServer := httptest.NewServer(muxRouter)
	t.Cleanup(httpServer.Close)

	return &testGateway{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		httpServer:  httpServer,
	}
}

func (g *testGateway) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(g.httpServer.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}

	return url
}

func (g *testGateway) dial(t *testing.T, token string) *gorillaws.Conn {
	t.Helper()

	conn, _, err := gorillaws.DefaultDialer.Dial(g.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func signToken(t *testing.T, userId string, tenantId string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":      userId,
		"tenantId": tenantId,
		"exp":      time.Now().Add(time.Hour).Unix(),
		"iat":      time.Now().Unix(),
		"aud":      "realtime",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	return tokenString
}

// wireFrame covers both directions of the protocol: server-initiated
// notifications carry Method/Params, replies carry RequestId/Result/Error.
type wireFrame struct {
	Id        int              `json:"id"`
	Method    string           `json:"method"`
	Params    *json.RawMessage `json:"params"`
	RequestId int              `json:"requestId"`
	Result    *json.RawMessage `json:"result"`
	Error     *ierr.Error      `json:"error"`
}

func readWireFrame(t *testing.T, conn *gorillaws.Conn) wireFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame wireFrame
	require.NoError(t, conn.ReadJSON(&frame))

	return frame
}
