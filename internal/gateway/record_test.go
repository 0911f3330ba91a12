package gateway_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRecord_JSONRoundTrip(t *testing.T) {
	record := gateway.ConnectionRecord{
		ConnectionId:    "conn-1",
		TransportId:     "tr-1",
		UserId:          "user-1",
		TenantId:        "tenant-1",
		ConnectedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		LastActivityAt:  time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		SubscribedRooms: []string{"conversation:c1", "conversation:c2"},
		IsActive:        true,
		TTLSeconds:      3600,
	}

	payload, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded gateway.ConnectionRecord
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, record, decoded)
}
