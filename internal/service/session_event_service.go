package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/events"
	"github.com/spec-kit/freight-session/internal/observability"
)

// SessionEventService logs and counts session lifecycle events.
type SessionEventService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewSessionEventService creates the service.
func NewSessionEventService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *SessionEventService {
	return &SessionEventService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to every session event.
func (n *SessionEventService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes() {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
	n.dispatcher.Subscribe(events.EventLoginRedirect, n.handleLoginRedirect)
}

func (n *SessionEventService) handle(_ context.Context, event events.Event) error {
	n.metrics.RecordSessionEvent(string(event.Audience), string(event.Type))
	n.logger.Debug("session event",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("audience", string(event.Audience)),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *SessionEventService) handleLoginRedirect(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.LoginRedirectPayload)
	n.logger.Info("login redirect",
		zap.String("audience", string(event.Audience)),
		zap.String("route", payload.Route),
		zap.String("reason", payload.Reason))
	return nil
}
