package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// RelayEvent travels over the store's pub/sub channel so sibling gateway
// processes can deliver a broadcast to their own joined transports.
type RelayEvent struct {
	Origin    string          `json:"origin"`
	Room      string          `json:"room"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is the shared state store: connection records, the per-tenant
// connection index, the short-lived event log and the cross-process relay.
type Store interface {
	SaveConnection(ctx context.Context, record ConnectionRecord) error
	GetConnection(ctx context.Context, tenantId string, connectionId string) (*ConnectionRecord, error)
	DeleteConnection(ctx context.Context, tenantId string, connectionId string) error
	TouchConnection(ctx context.Context, record ConnectionRecord) error

	// ReserveSlot conditionally adds the connection to the tenant index,
	// atomically with the cap check. It returns false when the tenant is
	// at or over the limit.
	ReserveSlot(ctx context.Context, tenantId string, connectionId string, limit int) (bool, error)
	ReleaseSlot(ctx context.Context, tenantId string, connectionId string) error
	TenantConnectionCount(ctx context.Context, tenantId string) (int64, error)
	TenantConnections(ctx context.Context, tenantId string) ([]string, error)

	SaveEvent(ctx context.Context, record EventRecord) error
	PublishEvent(ctx context.Context, event RelayEvent) error
	Subscribe(ctx context.Context, fn func(event RelayEvent)) error
}
