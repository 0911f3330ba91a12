package handler

import (
	"context"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
)

type TakeoverConversationRequest struct {
	ConversationId string `json:"conversationId"`
	Message        string `json:"message"`
}

type TakeoverConversationResponse struct {
	Success        bool      `json:"success"`
	ConversationId string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// TakeoverConversationHandler hands a conversation from the AI to the
// calling operator: delegate the takeover, confirm to the caller, then
// tell the whole tenant room the AI is off this conversation.
type TakeoverConversationHandler struct {
	idValidator *IdValidator
	dispatcher  Dispatcher
	broadcaster *gateway.Broadcaster
}

func NewTakeoverConversationHandler(
	idValidator *IdValidator,
	dispatcher Dispatcher,
	broadcaster *gateway.Broadcaster,
) *TakeoverConversationHandler {
	return &TakeoverConversationHandler{
		idValidator,
		dispatcher,
		broadcaster,
	}
}

func (h *TakeoverConversationHandler) Handle(ctx context.Context, req TakeoverConversationRequest) (TakeoverConversationResponse, error) {
	err := h.idValidator.Validate("conversationId", req.ConversationId)
	if err != nil {
		return TakeoverConversationResponse{}, err
	}

	if req.Message == "" {
		return TakeoverConversationResponse{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message is required"))
	}

	connection, ok := gateway.ConnectionFromContext(ctx)
	if !ok {
		return TakeoverConversationResponse{}, errors.New("connection not found in context")
	}

	err = h.dispatcher.TakeoverConversation(ctx, connection.TenantId(), req.ConversationId, connection.UserId(), req.Message)
	if err != nil {
		return TakeoverConversationResponse{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	now := time.Now()

	h.broadcaster.SendToConnection(connection.Id, "takeover_confirmed", map[string]any{
		"conversationId": req.ConversationId,
		"userId":         connection.UserId(),
		"timestamp":      now,
	})

	_, err = h.broadcaster.BroadcastToTenant(ctx, connection.TenantId(), "ai_deactivated", map[string]any{
		"conversationId": req.ConversationId,
		"userId":         connection.UserId(),
	})
	if err != nil {
		return TakeoverConversationResponse{}, err
	}

	return TakeoverConversationResponse{
		Success:        true,
		ConversationId: req.ConversationId,
		Timestamp:      now,
	}, nil
}
