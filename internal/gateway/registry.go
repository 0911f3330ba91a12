package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// storeOpTimeout bounds the best-effort store cleanup that runs outside a
// request context (stale consumer eviction).
const storeOpTimeout = 5 * time.Second

type RegistrySettings struct {
	MaxConnectionsPerTenant int
	ConnectionTTLSeconds    int
}

// Registry owns the lifecycle of transport connections: admission, room
// membership and teardown. Room membership is process-local; the shared
// store carries the cross-process connection presence.
type Registry struct {
	logger   *zap.Logger
	store    Store
	verifier *auth.Verifier
	settings RegistrySettings

	mu sync.RWMutex

	connections       map[string]*Connection
	connIdByTransport map[string]string
	membersByRoom     map[string]map[string]struct{}
	roomsByConn       map[string]map[string]struct{}
}

func NewRegistry(
	logger *zap.Logger,
	store Store,
	verifier *auth.Verifier,
	settings RegistrySettings,
) *Registry {
	return &Registry{
		logger:            logger,
		store:             store,
		verifier:          verifier,
		settings:          settings,
		connections:       make(map[string]*Connection),
		connIdByTransport: make(map[string]string),
		membersByRoom:     make(map[string]map[string]struct{}),
		roomsByConn:       make(map[string]map[string]struct{}),
	}
}

// Connect admits a transport connection: verify the token, reserve a
// tenant slot, persist the record, then register locally. Every failure
// rejects the connection; a connection without a store record would be
// invisible to cross-process fan-out.
func (r *Registry) Connect(ctx context.Context, transportId string, token string) (*Connection, error) {
	identity, err := r.verifier.VerifyUserToken(token)
	if err != nil {
		return nil, err
	}

	connectionId, err := gonanoid.New()
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInternal, err)
	}

	reserved, err := r.store.ReserveSlot(ctx, identity.TenantId, connectionId, r.settings.MaxConnectionsPerTenant)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInternal, err)
	}
	if !reserved {
		return nil, ierr.New(ierr.ErrorCodeResourceExhausted, errors.New("tenant connection limit exceeded"))
	}

	now := time.Now()
	record := ConnectionRecord{
		ConnectionId:    connectionId,
		TransportId:     transportId,
		UserId:          identity.UserId,
		TenantId:        identity.TenantId,
		ConnectedAt:     now,
		LastActivityAt:  now,
		SubscribedRooms: []string{},
		IsActive:        true,
		TTLSeconds:      r.settings.ConnectionTTLSeconds,
	}

	if err := r.store.SaveConnection(ctx, record); err != nil {
		if releaseErr := r.store.ReleaseSlot(ctx, identity.TenantId, connectionId); releaseErr != nil {
			r.logger.Warn("failed to release tenant slot after store failure",
				zap.String("tenantId", identity.TenantId),
				zap.String("connectionId", connectionId),
				zap.Error(releaseErr))
		}

		return nil, ierr.New(ierr.ErrorCodeInternal, err)
	}

	connection := newConnection(record)

	r.mu.Lock()
	r.connections[connectionId] = connection
	r.connIdByTransport[transportId] = connectionId
	r.joinRoomLocked(connectionId, Room(RoomKindTenant, identity.TenantId))
	r.joinRoomLocked(connectionId, Room(RoomKindUser, identity.UserId))
	r.joinRoomLocked(connectionId, Room(RoomKindConnection, connectionId))
	r.mu.Unlock()

	r.logger.Info("connection admitted",
		zap.String("connectionId", connectionId),
		zap.String("tenantId", identity.TenantId),
		zap.String("userId", identity.UserId))

	return connection, nil
}

// Disconnect tears a connection down. Unknown transports are a no-op so
// the path is idempotent; the transport is already gone, nothing is emitted.
func (r *Registry) Disconnect(ctx context.Context, transportId string) {
	r.mu.Lock()

	connectionId, ok := r.connIdByTransport[transportId]
	if !ok {
		r.mu.Unlock()

		return
	}

	connection := r.removeLocked(connectionId)
	r.mu.Unlock()

	if connection == nil {
		return
	}

	r.cleanupStore(ctx, connection.TenantId(), connectionId)

	r.logger.Info("connection removed",
		zap.String("connectionId", connectionId),
		zap.String("tenantId", connection.TenantId()))
}

// Subscribe joins the transport's connection to the named room. Joining an
// already-joined room is a no-op success.
func (r *Registry) Subscribe(ctx context.Context, transportId string, kind RoomKind, id string) error {
	connection, ok := r.ConnectionByTransport(transportId)
	if !ok {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("unknown transport"))
	}

	room := Room(kind, id)

	r.mu.Lock()
	r.joinRoomLocked(connection.Id, room)
	r.mu.Unlock()

	record := connection.addSubscribedRoom(room)
	if err := r.store.TouchConnection(ctx, record); err != nil {
		r.logger.Warn("failed to refresh connection record",
			zap.String("connectionId", connection.Id),
			zap.Error(err))
	}

	return nil
}

func (r *Registry) Unsubscribe(ctx context.Context, transportId string, kind RoomKind, id string) error {
	connection, ok := r.ConnectionByTransport(transportId)
	if !ok {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("unknown transport"))
	}

	room := Room(kind, id)

	r.mu.Lock()
	r.leaveRoomLocked(connection.Id, room)
	r.mu.Unlock()

	record := connection.removeSubscribedRoom(room)
	if err := r.store.TouchConnection(ctx, record); err != nil {
		r.logger.Warn("failed to refresh connection record",
			zap.String("connectionId", connection.Id),
			zap.Error(err))
	}

	return nil
}

// Deliver fans a pre-marshaled frame out to every connection joined to the
// room in this process. Consumers whose send buffer is full are evicted,
// mirroring the store cleanup a disconnect would do. The read lock is held
// across the whole enqueue loop: teardown closes the send channel under
// the write lock, so a concurrent disconnect can never close a channel
// this loop is about to send on.
func (r *Registry) Deliver(room string, frame []byte) (delivered []string, failed []string) {
	r.mu.RLock()

	memberIds, ok := r.membersByRoom[room]
	if !ok {
		r.mu.RUnlock()

		return nil, nil
	}

	var stale []*Connection

	for connectionId := range memberIds {
		connection, ok := r.connections[connectionId]
		if !ok {
			continue
		}

		if connection.Enqueue(frame) {
			delivered = append(delivered, connection.Id)
		} else {
			failed = append(failed, connection.Id)
			stale = append(stale, connection)
		}
	}

	r.mu.RUnlock()

	if len(stale) == 0 {
		return delivered, failed
	}

	for _, connection := range stale {
		r.logger.Warn("connection send buffer full, evicting",
			zap.String("connectionId", connection.Id))
	}

	r.mu.Lock()
	for _, connection := range stale {
		r.removeLocked(connection.Id)
	}
	r.mu.Unlock()

	for _, connection := range stale {
		go func(tenantId string, connectionId string) {
			ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
			defer cancel()

			r.cleanupStore(ctx, tenantId, connectionId)
		}(connection.TenantId(), connection.Id)
	}

	return delivered, failed
}

func (r *Registry) ConnectionByTransport(transportId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connectionId, ok := r.connIdByTransport[transportId]
	if !ok {
		return nil, false
	}

	connection, ok := r.connections[connectionId]

	return connection, ok
}

// TenantConnectionCount reads the cross-process count from the store.
func (r *Registry) TenantConnectionCount(ctx context.Context, tenantId string) (int64, error) {
	return r.store.TenantConnectionCount(ctx, tenantId)
}

// ActiveConnections lists a tenant's live connection records across all
// gateway processes.
func (r *Registry) ActiveConnections(ctx context.Context, tenantId string) ([]ConnectionRecord, error) {
	connectionIds, err := r.store.TenantConnections(ctx, tenantId)
	if err != nil {
		return nil, err
	}

	records := make([]ConnectionRecord, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		record, err := r.store.GetConnection(ctx, tenantId, connectionId)
		if err != nil {
			var ierrErr ierr.Error
			if errors.As(err, &ierrErr) && ierrErr.Code == ierr.ErrorCodeNotFound {
				// Record expired between the index read and the fetch.
				continue
			}

			return nil, err
		}

		records = append(records, *record)
	}

	return records, nil
}

func (r *Registry) joinRoomLocked(connectionId string, room string) {
	if _, ok := r.membersByRoom[room]; !ok {
		r.membersByRoom[room] = make(map[string]struct{})
	}
	r.membersByRoom[room][connectionId] = struct{}{}

	if _, ok := r.roomsByConn[connectionId]; !ok {
		r.roomsByConn[connectionId] = make(map[string]struct{})
	}
	r.roomsByConn[connectionId][room] = struct{}{}
}

func (r *Registry) leaveRoomLocked(connectionId string, room string) {
	if members, ok := r.membersByRoom[room]; ok {
		delete(members, connectionId)
		if len(members) == 0 {
			delete(r.membersByRoom, room)
		}
	}

	if rooms, ok := r.roomsByConn[connectionId]; ok {
		delete(rooms, room)
	}
}

// removeLocked drops a connection from every local map and closes its send
// channel. It must be called with the write lock held.
func (r *Registry) removeLocked(connectionId string) *Connection {
	connection, ok := r.connections[connectionId]
	if !ok {
		return nil
	}

	for room := range r.roomsByConn[connectionId] {
		if members, ok := r.membersByRoom[room]; ok {
			delete(members, connectionId)
			if len(members) == 0 {
				delete(r.membersByRoom, room)
			}
		}
	}

	delete(r.roomsByConn, connectionId)
	delete(r.connIdByTransport, connection.TransportId)
	delete(r.connections, connectionId)
	close(connection.Send)

	return connection
}

func (r *Registry) cleanupStore(ctx context.Context, tenantId string, connectionId string) {
	if err := r.store.DeleteConnection(ctx, tenantId, connectionId); err != nil {
		r.logger.Warn("failed to delete connection record",
			zap.String("connectionId", connectionId),
			zap.Error(err))
	}

	if err := r.store.ReleaseSlot(ctx, tenantId, connectionId); err != nil {
		r.logger.Warn("failed to release tenant slot",
			zap.String("connectionId", connectionId),
			zap.Error(err))
	}
}
