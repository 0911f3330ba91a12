package handler

import (
	"context"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
)

type SubscribeConversationRequest struct {
	ConversationId string `json:"conversationId"`
}

type SubscribeConversationResponse struct {
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

type SubscribeConversationHandler struct {
	idValidator *IdValidator
	registry    *gateway.Registry
}

func NewSubscribeConversationHandler(
	idValidator *IdValidator,
	registry *gateway.Registry,
) *SubscribeConversationHandler {
	return &SubscribeConversationHandler{
		idValidator,
		registry,
	}
}

func (h *SubscribeConversationHandler) Handle(ctx context.Context, req SubscribeConversationRequest) (SubscribeConversationResponse, error) {
	err := h.idValidator.Validate("conversationId", req.ConversationId)
	if err != nil {
		return SubscribeConversationResponse{}, err
	}

	connection, ok := gateway.ConnectionFromContext(ctx)
	if !ok {
		return SubscribeConversationResponse{}, errors.New("connection not found in context")
	}

	err = h.registry.Subscribe(ctx, connection.TransportId, gateway.RoomKindConversation, req.ConversationId)
	if err != nil {
		return SubscribeConversationResponse{}, err
	}

	return SubscribeConversationResponse{
		Room:      gateway.Room(gateway.RoomKindConversation, req.ConversationId),
		Timestamp: time.Now(),
	}, nil
}
