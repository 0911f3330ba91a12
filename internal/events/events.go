package events

import (
	"context"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
)

// Archive keeps broadcast event records for a bounded retention window so
// dashboards can catch up after a reconnect. It is an audit/replay log,
// not a durable queue: nothing guarantees redelivery.
type Archive interface {
	Setup(ctx context.Context) error
	Save(ctx context.Context, record gateway.EventRecord) error
	List(ctx context.Context, conversationId string, lastSeenId string) ([]gateway.EventRecord, error)
}
