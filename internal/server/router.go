package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dialhaus/realtime-gateway/internal/handler"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
	"github.com/dialhaus/realtime-gateway/internal/rpc"
	"go.uber.org/zap"
)

// Router maps inbound commands to their handlers. Validation failures are
// replied to the caller and never tear the connection down.
type Router struct {
	logger *zap.Logger

	heartbeatHandler   *handler.HeartbeatHandler
	subscribeHandler   *handler.SubscribeConversationHandler
	unsubscribeHandler *handler.UnsubscribeConversationHandler
	takeoverHandler    *handler.TakeoverConversationHandler
	sendMessageHandler *handler.SendMessageHandler
	leadStatusHandler  *handler.UpdateLeadStatusHandler
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler *handler.HeartbeatHandler,
	subscribeHandler *handler.SubscribeConversationHandler,
	unsubscribeHandler *handler.UnsubscribeConversationHandler,
	takeoverHandler *handler.TakeoverConversationHandler,
	sendMessageHandler *handler.SendMessageHandler,
	leadStatusHandler *handler.UpdateLeadStatusHandler,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		subscribeHandler,
		unsubscribeHandler,
		takeoverHandler,
		sendMessageHandler,
		leadStatusHandler,
	}
}

func (r *Router) RouteRequest(ctx context.Context, request rpc.Request) *rpc.Response {
	response, err := r.Handle(ctx, request)
	if err != nil {
		response := request.ReplyWithError(r.mapError(err))

		return &response
	}

	hasResponse := response != nil

	if request.ReplyExpected() && !hasResponse {
		r.logger.Error("handler did not return a response but one was expected", zap.String("method", request.Method))

		response := request.ReplyWithError(
			ierr.New(ierr.ErrorCodeInternal, errors.New("internal error")),
		)

		return &response
	}

	if !request.ReplyExpected() && hasResponse {
		r.logger.Error("handler returned a response but none was expected", zap.String("method", request.Method))

		return nil
	}

	if hasResponse {
		rawJson, err := json.Marshal(response)
		if err != nil {
			response := request.ReplyWithError(r.mapError(err))

			return &response
		}

		payload := json.RawMessage(rawJson)
		response := request.Reply(&payload)

		return &response
	}

	return nil
}

func (r *Router) Handle(ctx context.Context, request rpc.Request) (any, error) {
	switch request.Method {
	case "heartbeat":
		return r.heartbeatHandler.Handle(), nil
	case "subscribe_conversation":
		var req handler.SubscribeConversationRequest
		if err := decodeParams(request.Params, &req); err != nil {
			return nil, err
		}

		return r.subscribeHandler.Handle(ctx, req)
	case "unsubscribe_conversation":
		var req handler.UnsubscribeConversationRequest
		if err := decodeParams(request.Params, &req); err != nil {
			return nil, err
		}

		return r.unsubscribeHandler.Handle(ctx, req)
	case "takeover_conversation":
		var req handler.TakeoverConversationRequest
		if err := decodeParams(request.Params, &req); err != nil {
			return nil, err
		}

		return r.takeoverHandler.Handle(ctx, req)
	case "send_message":
		var req handler.SendMessageRequest
		if err := decodeParams(request.Params, &req); err != nil {
			return nil, err
		}

		return r.sendMessageHandler.Handle(ctx, req)
	case "update_lead_status":
		var req handler.UpdateLeadStatusRequest
		if err := decodeParams(request.Params, &req); err != nil {
			return nil, err
		}

		return r.leadStatusHandler.Handle(ctx, req)
	default:
		return nil, ierr.New(ierr.ErrorCodeNotFound, errors.New("method not found: "+request.Method))
	}
}

func (r *Router) mapError(err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	r.logger.Error("error in command handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}

func decodeParams(params *json.RawMessage, v any) error {
	if params == nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing params"))
	}

	if err := json.Unmarshal(*params, v); err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid params: "+err.Error()))
	}

	return nil
}
