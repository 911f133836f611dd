package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/events"
)

// AuditService records authentication and account events.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.AuditConfig
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.handleInfo)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleWarn)
	a.dispatcher.Subscribe(events.EventDemoFallbackGranted, a.handleWarn)
	a.dispatcher.Subscribe(events.EventAccessDenied, a.handleWarn)
	a.dispatcher.Subscribe(events.EventUserRoleChanged, a.handleInfo)
	a.dispatcher.Subscribe(events.EventUserStatusChanged, a.handleInfo)
}

func (a *AuditService) handleInfo(ctx context.Context, event events.Event) error {
	a.logger.Info(string(event.Type), a.fields(event)...)
	a.sendWebhookStub(ctx, event)
	return nil
}

func (a *AuditService) handleWarn(ctx context.Context, event events.Event) error {
	a.logger.Warn(string(event.Type), a.fields(event)...)
	a.sendWebhookStub(ctx, event)
	return nil
}

func (a *AuditService) fields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("actor_id", event.Actor.UserID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.Bool("synthetic", event.Actor.Synthetic),
		zap.Time("at", event.Timestamp),
		zap.Any("payload", event.Payload),
	}
}

// TODO: deliver to AUDIT_WEBHOOK_URL over HTTP once the receiving SIEM endpoint
// contract is agreed; until then the call is only logged.
func (a *AuditService) sendWebhookStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(a.cfg.WebhookURL) == "" {
		return
	}
	a.logger.Debug("sendWebhookStub",
		zap.String("url", a.cfg.WebhookURL),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}
