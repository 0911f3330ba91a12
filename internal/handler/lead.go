package handler

import (
	"context"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/dialhaus/realtime-gateway/internal/ierr"
)

var leadStatuses = map[string]struct{}{
	"new":       {},
	"contacted": {},
	"qualified": {},
	"booked":    {},
	"lost":      {},
}

type UpdateLeadStatusRequest struct {
	LeadId string `json:"leadId"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type UpdateLeadStatusResponse struct {
	Success   bool      `json:"success"`
	LeadId    string    `json:"leadId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type UpdateLeadStatusHandler struct {
	idValidator *IdValidator
	dispatcher  Dispatcher
	broadcaster *gateway.Broadcaster
}

func NewUpdateLeadStatusHandler(
	idValidator *IdValidator,
	dispatcher Dispatcher,
	broadcaster *gateway.Broadcaster,
) *UpdateLeadStatusHandler {
	return &UpdateLeadStatusHandler{
		idValidator,
		dispatcher,
		broadcaster,
	}
}

func (h *UpdateLeadStatusHandler) Handle(ctx context.Context, req UpdateLeadStatusRequest) (UpdateLeadStatusResponse, error) {
	err := h.idValidator.Validate("leadId", req.LeadId)
	if err != nil {
		return UpdateLeadStatusResponse{}, err
	}

	if _, ok := leadStatuses[req.Status]; !ok {
		return UpdateLeadStatusResponse{},
			ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown lead status: "+req.Status))
	}

	connection, ok := gateway.ConnectionFromContext(ctx)
	if !ok {
		return UpdateLeadStatusResponse{}, errors.New("connection not found in context")
	}

	err = h.dispatcher.UpdateLeadStatus(ctx, connection.TenantId(), req.LeadId, req.Status, req.Notes)
	if err != nil {
		return UpdateLeadStatusResponse{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	_, err = h.broadcaster.BroadcastToTenant(ctx, connection.TenantId(), "lead_updated", map[string]any{
		"leadId": req.LeadId,
		"status": req.Status,
		"userId": connection.UserId(),
	})
	if err != nil {
		return UpdateLeadStatusResponse{}, err
	}

	return UpdateLeadStatusResponse{
		Success:   true,
		LeadId:    req.LeadId,
		Status:    req.Status,
		Timestamp: time.Now(),
	}, nil
}
