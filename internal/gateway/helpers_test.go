package gateway_test

import (
	"testing"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/store/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

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

func newTestRegistry(t *testing.T, store gateway.Store, maxPerTenant int) *gateway.Registry {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	verifier := auth.NewVerifier(testSecret, "test-service-key")

	return gateway.NewRegistry(logger, store, verifier, gateway.RegistrySettings{
		MaxConnectionsPerTenant: maxPerTenant,
		ConnectionTTLSeconds:    3600,
	})
}

func newTestBroadcaster(t *testing.T, store gateway.Store, registry *gateway.Registry) *gateway.Broadcaster {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	return gateway.NewBroadcaster(logger, registry, store, nil, gateway.BroadcasterSettings{
		EventRetention: time.Hour,
	})
}

func newMemoryStore() *memory.Store {
	return memory.NewStore()
}
