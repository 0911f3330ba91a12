package handler

import (
	"context"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
)

type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	Message        string `json:"message"`
}

type SendMessageResponse struct {
	Success        bool                    `json:"success"`
	ConversationId string                  `json:"conversationId"`
	Tenant         gateway.BroadcastResult `json:"tenant"`
	Conversation   gateway.BroadcastResult `json:"conversation"`
	Timestamp      time.Time               `json:"timestamp"`
}

type SendMessageHandler struct {
	idValidator *IdValidator
	dispatcher  Dispatcher
	broadcaster *gateway.Broadcaster
}

func NewSendMessageHandler(
	idValidator *IdValidator,
	dispatcher Dispatcher,
	broadcaster *gateway.Broadcaster,
) *SendMessageHandler {
	return &SendMessageHandler{
		idValidator,
		dispatcher,
		broadcaster,
	}
}

func (h *SendMessageHandler) Handle(ctx context.Context, req SendMessageRequest) (SendMessageResponse, error) {
	err := h.idValidator.Validate("conversationId", req.ConversationId)
	if err != nil {
		return SendMessageResponse{}, err
	}

	if req.Message == "" {
		return SendMessageResponse{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("message is required"))
	}

	connection, ok := gateway.ConnectionFromContext(ctx)
	if !ok {
		return SendMessageResponse{}, errors.New("connection not found in context")
	}

	err = h.dispatcher.SendMessage(ctx, connection.TenantId(), req.ConversationId, connection.UserId(), req.Message)
	if err != nil {
		return SendMessageResponse{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	now := time.Now()

	h.broadcaster.SendToConnection(connection.Id, "message_sent_confirmation", map[string]any{
		"conversationId": req.ConversationId,
		"timestamp":      now,
	})

	// Two independent deliveries, reported separately; not a transaction.
	tenantResult, conversationResult, err := h.broadcaster.BroadcastMessageReceived(ctx, connection.TenantId(), req.ConversationId, map[string]any{
		"conversationId": req.ConversationId,
		"userId":         connection.UserId(),
		"message":        req.Message,
	})
	if err != nil {
		return SendMessageResponse{}, err
	}

	return SendMessageResponse{
		Success:        true,
		ConversationId: req.ConversationId,
		Tenant:         tenantResult,
		Conversation:   conversationResult,
		Timestamp:      now,
	}, nil
}
