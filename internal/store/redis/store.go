// Package redis implements the shared state store on a redis-compatible
// server. Key layout:
//
//	connection:{tenantId}:{connectionId} -> ConnectionRecord JSON, lease TTL
//	tenant_connections:{tenantId}        -> set of live connection ids
//	event:{eventId}                      -> EventRecord JSON, retention TTL
//
// Broadcast relay between gateway processes runs over a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
	goredis "github.com/redis/go-redis/v9"
)

const relayChannel = "realtime:events"

// reserveSlot adds the connection to the tenant index only while the index
// is under the limit, atomically. The index lease is refreshed on every
// reserve so a crashed process's members age out with their records.
var reserveSlot = goredis.NewScript(`
if redis.call('SCARD', KEYS[1]) < tonumber(ARGV[1]) then
	redis.call('SADD', KEYS[1], ARGV[2])
	redis.call('EXPIRE', KEYS[1], ARGV[3])
	return 1
end
return 0
`)

type Store struct {
	client     *goredis.Client
	ttlSeconds int
	retention  time.Duration
}

func NewStore(client *goredis.Client, ttlSeconds int, retention time.Duration) *Store {
	return &Store{
		client:     client,
		ttlSeconds: ttlSeconds,
		retention:  retention,
	}
}

func connectionKey(tenantId string, connectionId string) string {
	return "connection:" + tenantId + ":" + connectionId
}

func tenantKey(tenantId string) string {
	return "tenant_connections:" + tenantId
}

func eventKey(eventId string) string {
	return "event:" + eventId
}

func (s *Store) SaveConnection(ctx context.Context, record gateway.ConnectionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ttl := time.Duration(record.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Duration(s.ttlSeconds) * time.Second
	}

	return s.client.Set(ctx, connectionKey(record.TenantId, record.ConnectionId), payload, ttl).Err()
}

func (s *Store) GetConnection(ctx context.Context, tenantId string, connectionId string) (*gateway.ConnectionRecord, error) {
	payload, err := s.client.Get(ctx, connectionKey(tenantId, connectionId)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("connection not found"))
	}
	if err != nil {
		return nil, err
	}

	var record gateway.ConnectionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *Store) DeleteConnection(ctx context.Context, tenantId string, connectionId string) error {
	return s.client.Del(ctx, connectionKey(tenantId, connectionId)).Err()
}

func (s *Store) TouchConnection(ctx context.Context, record gateway.ConnectionRecord) error {
	record.LastActivityAt = time.Now()

	return s.SaveConnection(ctx, record)
}

func (s *Store) ReserveSlot(ctx context.Context, tenantId string, connectionId string, limit int) (bool, error) {
	result, err := reserveSlot.Run(ctx, s.client,
		[]string{tenantKey(tenantId)},
		limit, connectionId, s.ttlSeconds,
	).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, tenantId string, connectionId string) error {
	return s.client.SRem(ctx, tenantKey(tenantId), connectionId).Err()
}

func (s *Store) TenantConnectionCount(ctx context.Context, tenantId string) (int64, error) {
	return s.client.SCard(ctx, tenantKey(tenantId)).Result()
}

func (s *Store) TenantConnections(ctx context.Context, tenantId string) ([]string, error) {
	return s.client.SMembers(ctx, tenantKey(tenantId)).Result()
}

func (s *Store) SaveEvent(ctx context.Context, record gateway.EventRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, eventKey(record.EventId), payload, s.retention).Err()
}

func (s *Store) PublishEvent(ctx context.Context, event gateway.RelayEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.client.Publish(ctx, relayChannel, payload).Err()
}

// Subscribe consumes the relay channel until ctx is done. Malformed
// messages are skipped.
func (s *Store) Subscribe(ctx context.Context, fn func(event gateway.RelayEvent)) error {
	pubsub := s.client.Subscribe(ctx, relayChannel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()

		return err
	}

	go func() {
		defer pubsub.Close()

		messages := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}

				var event gateway.RelayEvent
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					continue
				}

				fn(event)
			}
		}
	}()

	return nil
}
