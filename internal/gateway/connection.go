package gateway

import (
	"context"
	"sync"
	"time"
)

// sendBufferSize bounds the outbound queue per connection; a consumer that
// falls this far behind is evicted by the fan-out path.
const sendBufferSize = 64

type Connection struct {
	Id          string
	TransportId string

	// Send carries pre-marshaled wire frames; the write pump drains it.
	Send chan []byte

	mu     sync.RWMutex
	record ConnectionRecord
}

func newConnection(record ConnectionRecord) *Connection {
	return &Connection{
		Id:          record.ConnectionId,
		TransportId: record.TransportId,
		Send:        make(chan []byte, sendBufferSize),
		record:      record,
	}
}

func (c *Connection) UserId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.record.UserId
}

func (c *Connection) TenantId() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.record.TenantId
}

// Record returns a copy of the connection's record.
func (c *Connection) Record() ConnectionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record := c.record
	record.SubscribedRooms = append([]string(nil), c.record.SubscribedRooms...)

	return record
}

func (c *Connection) addSubscribedRoom(room string) ConnectionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.record.SubscribedRooms {
		if existing == room {
			c.record.LastActivityAt = time.Now()
			return c.record
		}
	}

	c.record.SubscribedRooms = append(c.record.SubscribedRooms, room)
	c.record.LastActivityAt = time.Now()

	return c.record
}

func (c *Connection) removeSubscribedRoom(room string) ConnectionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := c.record.SubscribedRooms[:0]
	for _, existing := range c.record.SubscribedRooms {
		if existing != room {
			rooms = append(rooms, existing)
		}
	}

	c.record.SubscribedRooms = rooms
	c.record.LastActivityAt = time.Now()

	return c.record
}

// Enqueue attempts a non-blocking send and reports whether the frame fit.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
