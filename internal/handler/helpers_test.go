package handler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/rpc"
	"github.com/dialhaus/realtime-gateway/internal/store/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

type fixture struct {
	store       *memory.Store
	registry    *gateway.Registry
	broadcaster *gateway.Broadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store := memory.NewStore()
	verifier := auth.NewVerifier(testSecret, "handler-test-service-key")
	registry := gateway.NewRegistry(logger, store, verifier, gateway.RegistrySettings{
		MaxConnectionsPerTenant: 10,
		ConnectionTTLSeconds:    3600,
	})
	broadcaster := gateway.NewBroadcaster(logger, registry, store, nil, gateway.BroadcasterSettings{
		EventRetention: time.Hour,
	})

	return &fixture{
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
	}
}

// connect admits a connection and returns a context carrying it, the way
// the websocket read pump does before routing a command.
func (f *fixture) connect(t *testing.T, transportId string, userId string, tenantId string) (context.Context, *gateway.Connection) {
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

	connection, err := f.registry.Connect(context.Background(), transportId, tokenString)
	require.NoError(t, err)

	return gateway.WithConnection(context.Background(), connection), connection
}

func readEvent(t *testing.T, connection *gateway.Connection) (string, map[string]any) {
	t.Helper()

	select {
	case frame := <-connection.Send:
		var request rpc.Request
		require.NoError(t, json.Unmarshal(frame, &request))
		require.NotNil(t, request.Params)

		var envelope struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(*request.Params, &envelope))

		return request.Method, envelope.Data
	default:
		t.Fatal("expected a frame but the send buffer is empty")

		return "", nil
	}
}

func requireNoEvent(t *testing.T, connection *gateway.Connection) {
	t.Helper()

	select {
	case frame := <-connection.Send:
		t.Fatalf("expected no frame but got: %s", frame)
	default:
	}
}

// recordingDispatcher captures delegated commands and optionally fails.
type recordingDispatcher struct {
	takeovers []string
	messages  []string
	leads     []string
	fail      error
}

func (d *recordingDispatcher) TakeoverConversation(ctx context.Context, tenantId string, conversationId string, userId string, message string) error {
	if d.fail != nil {
		return d.fail
	}
	d.takeovers = append(d.takeovers, tenantId+"/"+conversationId+"/"+userId)

	return nil
}

func (d *recordingDispatcher) SendMessage(ctx context.Context, tenantId string, conversationId string, userId string, message string) error {
	if d.fail != nil {
		return d.fail
	}
	d.messages = append(d.messages, tenantId+"/"+conversationId+"/"+message)

	return nil
}

func (d *recordingDispatcher) UpdateLeadStatus(ctx context.Context, tenantId string, leadId string, status string, notes string) error {
	if d.fail != nil {
		return d.fail
	}
	d.leads = append(d.leads, tenantId+"/"+leadId+"/"+status)

	return nil
}
