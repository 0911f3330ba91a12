package handler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/handler"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdValidator(t *testing.T) {
	validator := handler.NewIdValidator()

	assert.NoError(t, validator.Validate("conversationId", "c1"))
	assert.NoError(t, validator.Validate("conversationId", "conv_2026-08"))

	for _, id := range []string{"", "c 1", "c:1", "c/1", "c.1"} {
		err := validator.Validate("conversationId", id)
		require.Error(t, err, "id %q should be rejected", id)

		var ierrErr ierr.Error
		require.ErrorAs(t, err, &ierrErr)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierrErr.Code)
	}
}

func TestHeartbeatHandler(t *testing.T) {
	response := handler.NewHeartbeatHandler().Handle()

	assert.False(t, response.Timestamp.IsZero())
}

func TestSubscribeConversationHandler(t *testing.T) {
	t.Run("joins the conversation room", func(t *testing.T) {
		f := newFixture(t)
		ctx, connection := f.connect(t, "tr-1", "user-1", "tenant-1")
		subscribe := handler.NewSubscribeConversationHandler(handler.NewIdValidator(), f.registry)

		response, err := subscribe.Handle(ctx, handler.SubscribeConversationRequest{ConversationId: "c1"})
		require.NoError(t, err)
		assert.Equal(t, "conversation:c1", response.Room)

		result, err := f.broadcaster.BroadcastToConversation(context.Background(), "c1", "ai_activated", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Delivered)

		method, _ := readEvent(t, connection)
		assert.Equal(t, "ai_activated", method)
	})

	t.Run("rejects a malformed conversation id", func(t *testing.T) {
		f := newFixture(t)
		ctx, _ := f.connect(t, "tr-1", "user-1", "tenant-1")
		subscribe := handler.NewSubscribeConversationHandler(handler.NewIdValidator(), f.registry)

		_, err := subscribe.Handle(ctx, handler.SubscribeConversationRequest{ConversationId: "c 1"})
		require.Error(t, err)
	})

	t.Run("requires a connection on the context", func(t *testing.T) {
		f := newFixture(t)
		subscribe := handler.NewSubscribeConversationHandler(handler.NewIdValidator(), f.registry)

		_, err := subscribe.Handle(context.Background(), handler.SubscribeConversationRequest{ConversationId: "c1"})
		require.Error(t, err)
	})
}

func TestUnsubscribeConversationHandler(t *testing.T) {
	f := newFixture(t)
	ctx, connection := f.connect(t, "tr-1", "user-1", "tenant-1")
	subscribe := handler.NewSubscribeConversationHandler(handler.NewIdValidator(), f.registry)
	unsubscribe := handler.NewUnsubscribeConversationHandler(handler.NewIdValidator(), f.registry)

	_, err := subscribe.Handle(ctx, handler.SubscribeConversationRequest{ConversationId: "c1"})
	require.NoError(t, err)

	_, err = unsubscribe.Handle(ctx, handler.UnsubscribeConversationRequest{ConversationId: "c1"})
	require.NoError(t, err)

	result, err := f.broadcaster.BroadcastToConversation(context.Background(), "c1", "ai_activated", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Delivered)
	requireNoEvent(t, connection)
}

func TestTakeoverConversationHandler(t *testing.T) {
	t.Run("confirms to the caller and tells the tenant", func(t *testing.T) {
		f := newFixture(t)
		ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
		_, colleague := f.connect(t, "tr-2", "user-2", "tenant-1")
		dispatcher := &recordingDispatcher{}
		takeover := handler.NewTakeoverConversationHandler(handler.NewIdValidator(), dispatcher, f.broadcaster)

		response, err := takeover.Handle(ctx, handler.TakeoverConversationRequest{
			ConversationId: "c1",
			Message:        "I'll take it from here",
		})
		require.NoError(t, err)
		assert.True(t, response.Success)
		assert.Equal(t, "c1", response.ConversationId)
		assert.Equal(t, []string{"tenant-1/c1/user-1"}, dispatcher.takeovers)

		method, data := readEvent(t, caller)
		assert.Equal(t, "takeover_confirmed", method)
		assert.Equal(t, "c1", data["conversationId"])

		// The caller is also in the tenant room.
		method, _ = readEvent(t, caller)
		assert.Equal(t, "ai_deactivated", method)

		method, data = readEvent(t, colleague)
		assert.Equal(t, "ai_deactivated", method)
		assert.Equal(t, "user-1", data["userId"])
	})

	t.Run("requires a message", func(t *testing.T) {
		f := newFixture(t)
		ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
		takeover := handler.NewTakeoverConversationHandler(handler.NewIdValidator(), &recordingDispatcher{}, f.broadcaster)

		_, err := takeover.Handle(ctx, handler.TakeoverConversationRequest{ConversationId: "c1"})
		require.Error(t, err)
		assert.Equal(t, gateway.WireCodeValidationError, gateway.WireCode(err))
		requireNoEvent(t, caller)
	})

	t.Run("surfaces a dispatch failure without broadcasting", func(t *testing.T) {
		f := newFixture(t)
		ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
		dispatcher := &recordingDispatcher{fail: errors.New("dispatch service down")}
		takeover := handler.NewTakeoverConversationHandler(handler.NewIdValidator(), dispatcher, f.broadcaster)

		_, err := takeover.Handle(ctx, handler.TakeoverConversationRequest{
			ConversationId: "c1",
			Message:        "taking over",
		})
		require.Error(t, err)

		var ierrErr ierr.Error
		require.ErrorAs(t, err, &ierrErr)
		assert.Equal(t, ierr.ErrorCodeInternal, ierrErr.Code)
		requireNoEvent(t, caller)
	})
}

func TestSendMessageHandler(t *testing.T) {
	f := newFixture(t)
	ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
	_, colleague := f.connect(t, "tr-2", "user-2", "tenant-1")
	dispatcher := &recordingDispatcher{}
	send := handler.NewSendMessageHandler(handler.NewIdValidator(), dispatcher, f.broadcaster)

	response, err := send.Handle(ctx, handler.SendMessageRequest{
		ConversationId: "c1",
		Message:        "We can fit you in tomorrow at 9",
	})
	require.NoError(t, err)
	assert.True(t, response.Success)
	assert.Equal(t, []string{"tenant-1/c1/We can fit you in tomorrow at 9"}, dispatcher.messages)

	// Tenant-wide and conversation fan-outs reported independently.
	assert.Equal(t, "tenant:tenant-1", response.Tenant.Room)
	assert.Equal(t, 2, response.Tenant.Delivered)
	assert.Equal(t, "conversation:c1", response.Conversation.Room)
	assert.Zero(t, response.Conversation.Delivered)

	method, _ := readEvent(t, caller)
	assert.Equal(t, "message_sent_confirmation", method)
	method, _ = readEvent(t, caller)
	assert.Equal(t, "message_received", method)

	method, data := readEvent(t, colleague)
	assert.Equal(t, "message_received", method)
	assert.Equal(t, "We can fit you in tomorrow at 9", data["message"])
}

func TestUpdateLeadStatusHandler(t *testing.T) {
	t.Run("broadcasts the new status to the tenant", func(t *testing.T) {
		f := newFixture(t)
		ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
		dispatcher := &recordingDispatcher{}
		update := handler.NewUpdateLeadStatusHandler(handler.NewIdValidator(), dispatcher, f.broadcaster)

		response, err := update.Handle(ctx, handler.UpdateLeadStatusRequest{
			LeadId: "lead-1",
			Status: "qualified",
			Notes:  "asked for a quote",
		})
		require.NoError(t, err)
		assert.True(t, response.Success)
		assert.Equal(t, "qualified", response.Status)
		assert.Equal(t, []string{"tenant-1/lead-1/qualified"}, dispatcher.leads)

		method, data := readEvent(t, caller)
		assert.Equal(t, "lead_updated", method)
		assert.Equal(t, "lead-1", data["leadId"])
		assert.Equal(t, "qualified", data["status"])
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		f := newFixture(t)
		ctx, caller := f.connect(t, "tr-1", "user-1", "tenant-1")
		update := handler.NewUpdateLeadStatusHandler(handler.NewIdValidator(), &recordingDispatcher{}, f.broadcaster)

		_, err := update.Handle(ctx, handler.UpdateLeadStatusRequest{LeadId: "lead-1", Status: "archived"})
		require.Error(t, err)
		assert.Equal(t, gateway.WireCodeValidationError, gateway.WireCode(err))
		requireNoEvent(t, caller)
	})
}
