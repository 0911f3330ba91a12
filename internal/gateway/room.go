package gateway

type RoomKind string

const (
	RoomKindTenant       RoomKind = "tenant"
	RoomKindConversation RoomKind = "conversation"
	RoomKindUser         RoomKind = "user"
	RoomKindConnection   RoomKind = "connection"
	RoomKindUnknown      RoomKind = "unknown"
)

// Room names the broadcast channel for a kind and id. It is total:
// unrecognized kinds map to the unknown namespace instead of failing.
func Room(kind RoomKind, id string) string {
	switch kind {
	case RoomKindTenant, RoomKindConversation, RoomKindUser, RoomKindConnection:
		return string(kind) + ":" + id
	default:
		return string(RoomKindUnknown) + ":" + id
	}
}

func ParseRoomKind(s string) RoomKind {
	switch RoomKind(s) {
	case RoomKindTenant:
		return RoomKindTenant
	case RoomKindConversation:
		return RoomKindConversation
	case RoomKindUser:
		return RoomKindUser
	case RoomKindConnection:
		return RoomKindConnection
	default:
		return RoomKindUnknown
	}
}
