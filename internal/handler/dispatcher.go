package handler

import (
	"context"

	"go.uber.org/zap"
)

// Dispatcher is the business side of inbound commands: conversation
// takeover, outbound messaging, lead updates. The gateway only validates,
// delegates and acknowledges; deciding what the command means belongs to
// the sibling services behind this interface.
type Dispatcher interface {
	TakeoverConversation(ctx context.Context, tenantId string, conversationId string, userId string, message string) error
	SendMessage(ctx context.Context, tenantId string, conversationId string, userId string, message string) error
	UpdateLeadStatus(ctx context.Context, tenantId string, leadId string, status string, notes string) error
}

// LogDispatcher accepts every command and only logs it. It stands in when
// the gateway runs without the dispatch service attached.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{
		logger,
	}
}

func (d *LogDispatcher) TakeoverConversation(ctx context.Context, tenantId string, conversationId string, userId string, message string) error {
	d.logger.Info("takeover requested",
		zap.String("tenantId", tenantId),
		zap.String("conversationId", conversationId),
		zap.String("userId", userId))

	return nil
}

func (d *LogDispatcher) SendMessage(ctx context.Context, tenantId string, conversationId string, userId string, message string) error {
	d.logger.Info("message send requested",
		zap.String("tenantId", tenantId),
		zap.String("conversationId", conversationId),
		zap.String("userId", userId))

	return nil
}

func (d *LogDispatcher) UpdateLeadStatus(ctx context.Context, tenantId string, leadId string, status string, notes string) error {
	d.logger.Info("lead status update requested",
		zap.String("tenantId", tenantId),
		zap.String("leadId", leadId),
		zap.String("status", status))

	return nil
}
