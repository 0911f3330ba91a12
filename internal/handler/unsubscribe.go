package handler

import (
	"context"
	"errors"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
)

type UnsubscribeConversationRequest struct {
	ConversationId string `json:"conversationId"`
}

type UnsubscribeConversationResponse struct {
	Success bool `json:"success"`
}

type UnsubscribeConversationHandler struct {
	idValidator *IdValidator
	registry    *gateway.Registry
}

func NewUnsubscribeConversationHandler(
	idValidator *IdValidator,
	registry *gateway.Registry,
) *UnsubscribeConversationHandler {
	return &UnsubscribeConversationHandler{
		idValidator,
		registry,
	}
}

func (h *UnsubscribeConversationHandler) Handle(ctx context.Context, req UnsubscribeConversationRequest) (UnsubscribeConversationResponse, error) {
	err := h.idValidator.Validate("conversationId", req.ConversationId)
	if err != nil {
		return UnsubscribeConversationResponse{}, err
	}

	connection, ok := gateway.ConnectionFromContext(ctx)
	if !ok {
		return UnsubscribeConversationResponse{}, errors.New("connection not found in context")
	}

	err = h.registry.Unsubscribe(ctx, connection.TransportId, gateway.RoomKindConversation, req.ConversationId)
	if err != nil {
		return UnsubscribeConversationResponse{}, err
	}

	return UnsubscribeConversationResponse{
		Success: true,
	}, nil
}
