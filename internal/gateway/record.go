package gateway

import "time"

// ConnectionRecord is the cross-process view of an admitted connection.
// It exists in the shared store iff the transport connection is admitted;
// the store is the source of truth, local maps are a same-process fast path.
type ConnectionRecord struct {
	ConnectionId    string    `json:"connectionId"`
	TransportId     string    `json:"transportId"`
	UserId          string    `json:"userId"`
	TenantId        string    `json:"tenantId"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
	SubscribedRooms []string  `json:"subscribedRooms"`
	IsActive        bool      `json:"isActive"`
	TTLSeconds      int       `json:"ttlSeconds"`
}

// EventRecord captures the outcome of one broadcast attempt. It is written
// after the fan-out completed and never mutated afterwards.
type EventRecord struct {
	EventId        string    `json:"eventId"`
	EventName      string    `json:"eventName"`
	TenantId       string    `json:"tenantId,omitempty"`
	ConversationId string    `json:"conversationId,omitempty"`
	Payload        any       `json:"payload"`
	TargetRoom     string    `json:"targetRoom"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	DeliveredTo    []string  `json:"deliveredTo"`
	FailedTo       []string  `json:"failedTo"`
	RetryCount     int       `json:"retryCount"`
	MaxRetries     int       `json:"maxRetries"`
}
