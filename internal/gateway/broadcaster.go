package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/ierr"
	"github.com/dialhaus/realtime-gateway/internal/rpc"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// Envelope is the shape every server-pushed event takes on the wire.
type Envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type BroadcastResult struct {
	Success   bool   `json:"success"`
	Room      string `json:"room"`
	Delivered int    `json:"delivered"`
}

// Wire-visible error codes sent to clients on error events.
const (
	WireCodeAuthenticationFailed    = "AUTHENTICATION_FAILED"
	WireCodeConnectionLimitExceeded = "CONNECTION_LIMIT_EXCEEDED"
	WireCodeValidationError         = "VALIDATION_ERROR"
	WireCodeInternalError           = "INTERNAL_ERROR"
)

// WireCode maps an internal error onto the code a client sees.
func WireCode(err error) string {
	var ierrErr ierr.Error
	if !errors.As(err, &ierrErr) {
		return WireCodeInternalError
	}

	switch ierrErr.Code {
	case ierr.ErrorCodeUnauthenticated, ierr.ErrorCodePermissionDenied:
		return WireCodeAuthenticationFailed
	case ierr.ErrorCodeResourceExhausted:
		return WireCodeConnectionLimitExceeded
	case ierr.ErrorCodeInvalidArgument, ierr.ErrorCodeFailedPrecondition:
		return WireCodeValidationError
	default:
		return WireCodeInternalError
	}
}

// Archiver keeps finalized event records for bounded-window replay.
type Archiver interface {
	Save(ctx context.Context, record EventRecord) error
}

type BroadcasterSettings struct {
	EventRetention time.Duration
}

// Broadcaster fans events out to rooms: locally through the registry,
// to sibling processes through the store relay, then records the attempt.
type Broadcaster struct {
	logger    *zap.Logger
	registry  *Registry
	store     Store
	archiver  Archiver
	settings  BroadcasterSettings
	processId string
}

func NewBroadcaster(
	logger *zap.Logger,
	registry *Registry,
	store Store,
	archiver Archiver,
	settings BroadcasterSettings,
) *Broadcaster {
	return &Broadcaster{
		logger:    logger,
		registry:  registry,
		store:     store,
		archiver:  archiver,
		settings:  settings,
		processId: gonanoid.Must(),
	}
}

// Run consumes the relay until ctx is done, delivering sibling-process
// broadcasts to locally joined transports.
func (b *Broadcaster) Run(ctx context.Context) error {
	return b.store.Subscribe(ctx, func(event RelayEvent) {
		if event.Origin == b.processId {
			return
		}

		frame, err := marshalEventFrame(Envelope{
			Event:     event.Event,
			Data:      event.Payload,
			Timestamp: event.Timestamp,
		})
		if err != nil {
			b.logger.Error("failed to marshal relayed event", zap.Error(err))

			return
		}

		b.registry.Deliver(event.Room, frame)
	})
}

// BroadcastToRoom delivers one event to every connection joined to the
// room. The event record is written after the fan-out and records outcome,
// not intent; a persistence failure never fails a delivery that already
// happened. A relay failure does: sibling processes missed the event.
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, kind RoomKind, id string, event string, payload any) (BroadcastResult, error) {
	room := Room(kind, id)
	now := time.Now()

	frame, err := marshalEventFrame(Envelope{
		Event:     event,
		Data:      payload,
		Timestamp: now,
	})
	if err != nil {
		return BroadcastResult{Room: room}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	delivered, failed := b.registry.Deliver(room, frame)

	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return BroadcastResult{Room: room}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	err = b.store.PublishEvent(ctx, RelayEvent{
		Origin:    b.processId,
		Room:      room,
		Event:     event,
		Payload:   payloadRaw,
		Timestamp: now,
	})
	if err != nil {
		return BroadcastResult{Room: room}, ierr.New(ierr.ErrorCodeUnavailable, err)
	}

	record := EventRecord{
		EventId:     gonanoid.Must(),
		EventName:   event,
		Payload:     payload,
		TargetRoom:  room,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.settings.EventRetention),
		DeliveredTo: delivered,
		FailedTo:    failed,
		MaxRetries:  3,
	}
	switch kind {
	case RoomKindTenant:
		record.TenantId = id
	case RoomKindConversation:
		record.ConversationId = id
	}

	if err := b.store.SaveEvent(ctx, record); err != nil {
		b.logger.Warn("failed to persist event record",
			zap.String("eventId", record.EventId),
			zap.String("room", room),
			zap.Error(err))
	}

	if b.archiver != nil {
		if err := b.archiver.Save(ctx, record); err != nil {
			b.logger.Warn("failed to archive event",
				zap.String("eventId", record.EventId),
				zap.Error(err))
		}
	}

	return BroadcastResult{
		Success:   true,
		Room:      room,
		Delivered: len(delivered),
	}, nil
}

func (b *Broadcaster) BroadcastToTenant(ctx context.Context, tenantId string, event string, payload any) (BroadcastResult, error) {
	return b.BroadcastToRoom(ctx, RoomKindTenant, tenantId, event, payload)
}

func (b *Broadcaster) BroadcastToConversation(ctx context.Context, conversationId string, event string, payload any) (BroadcastResult, error) {
	return b.BroadcastToRoom(ctx, RoomKindConversation, conversationId, event, payload)
}

// BroadcastMessageReceived reaches the tenant room and the conversation
// room as two independent deliveries. The two outcomes are reported
// separately; this is not a transaction.
func (b *Broadcaster) BroadcastMessageReceived(ctx context.Context, tenantId string, conversationId string, payload any) (BroadcastResult, BroadcastResult, error) {
	tenantResult, tenantErr := b.BroadcastToTenant(ctx, tenantId, "message_received", payload)
	conversationResult, conversationErr := b.BroadcastToConversation(ctx, conversationId, "message_received", payload)

	return tenantResult, conversationResult, errors.Join(tenantErr, conversationErr)
}

// SendToConnection targets a single connection through its room-of-one.
// Used for command acknowledgements; the target always lives in this
// process, so no relay and no event record.
func (b *Broadcaster) SendToConnection(connectionId string, event string, payload any) bool {
	frame, err := marshalEventFrame(Envelope{
		Event:     event,
		Data:      payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		b.logger.Error("failed to marshal confirmation event", zap.Error(err))

		return false
	}

	delivered, _ := b.registry.Deliver(Room(RoomKindConnection, connectionId), frame)

	return len(delivered) > 0
}

func marshalEventFrame(envelope Envelope) ([]byte, error) {
	params, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	raw := json.RawMessage(params)

	return json.Marshal(rpc.NewNotification(envelope.Event, &raw))
}
