// Package memory implements the shared state store for tests and
// single-process deployments. It mirrors the redis store's semantics,
// including the conditional slot reserve and the relay loop-back.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
)

type Store struct {
	mu sync.Mutex

	connections map[string]gateway.ConnectionRecord
	tenantSets  map[string]map[string]struct{}
	events      map[string]gateway.EventRecord
	subscribers []func(event gateway.RelayEvent)
}

func NewStore() *Store {
	return &Store{
		connections: make(map[string]gateway.ConnectionRecord),
		tenantSets:  make(map[string]map[string]struct{}),
		events:      make(map[string]gateway.EventRecord),
	}
}

func connectionKey(tenantId string, connectionId string) string {
	return tenantId + ":" + connectionId
}

func (s *Store) SaveConnection(ctx context.Context, record gateway.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[connectionKey(record.TenantId, record.ConnectionId)] = record

	return nil
}

func (s *Store) GetConnection(ctx context.Context, tenantId string, connectionId string) (*gateway.ConnectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.connections[connectionKey(tenantId, connectionId)]
	if !ok {
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("connection not found"))
	}

	return &record, nil
}

func (s *Store) DeleteConnection(ctx context.Context, tenantId string, connectionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connectionKey(tenantId, connectionId))

	return nil
}

func (s *Store) TouchConnection(ctx context.Context, record gateway.ConnectionRecord) error {
	return s.SaveConnection(ctx, record)
}

func (s *Store) ReserveSlot(ctx context.Context, tenantId string, connectionId string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.tenantSets[tenantId]
	if !ok {
		set = make(map[string]struct{})
		s.tenantSets[tenantId] = set
	}

	if len(set) >= limit {
		return false, nil
	}

	set[connectionId] = struct{}{}

	return true, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, tenantId string, connectionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.tenantSets[tenantId]; ok {
		delete(set, connectionId)
		if len(set) == 0 {
			delete(s.tenantSets, tenantId)
		}
	}

	return nil
}

func (s *Store) TenantConnectionCount(ctx context.Context, tenantId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.tenantSets[tenantId])), nil
}

func (s *Store) TenantConnections(ctx context.Context, tenantId string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.tenantSets[tenantId]
	connectionIds := make([]string, 0, len(set))
	for connectionId := range set {
		connectionIds = append(connectionIds, connectionId)
	}

	return connectionIds, nil
}

func (s *Store) SaveEvent(ctx context.Context, record gateway.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[record.EventId] = record

	return nil
}

// Events exists for tests; the redis store relies on key expiry instead.
func (s *Store) Events() []gateway.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]gateway.EventRecord, 0, len(s.events))
	for _, record := range s.events {
		records = append(records, record)
	}

	return records
}

func (s *Store) PublishEvent(ctx context.Context, event gateway.RelayEvent) error {
	s.mu.Lock()
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	// Like real pub/sub, the publisher's own subscription also receives
	// the event; the broadcaster filters by origin.
	for _, fn := range subscribers {
		fn(event)
	}

	return nil
}

func (s *Store) Subscribe(ctx context.Context, fn func(event gateway.RelayEvent)) error {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()

	return nil
}
