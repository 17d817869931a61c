package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/notify"
)

// NotificationService turns domain events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     notify.Sender
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender notify.Sender, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.sender == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketResponded, n.handleTicketResponded)
	n.dispatcher.Subscribe(events.EventTicketReturned, n.handleTicketReturned)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventTicketRedirected, n.handleTicketRedirected)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return payloadError(event)
	}
	return n.send(ctx, event, notify.Confirmation(p.CreatorEmail, p.Title, event.TicketID, p.TempPassword))
}

func (n *NotificationService) handleTicketResponded(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketRespondedPayload)
	if !ok {
		return payloadError(event)
	}
	return n.send(ctx, event, notify.Response(p.CreatorEmail, p.Title, p.Responder, p.Message))
}

func (n *NotificationService) handleTicketReturned(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketReturnedPayload)
	if !ok {
		return payloadError(event)
	}
	return n.send(ctx, event, notify.Returned(p.CreatorEmail, p.Title, p.Reason))
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return payloadError(event)
	}
	if p.StaffEmail == "" {
		return nil
	}
	return n.send(ctx, event, notify.Update(p.StaffEmail, p.Title, p.Supplement))
}

func (n *NotificationService) handleTicketRedirected(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketRedirectedPayload)
	if !ok {
		return payloadError(event)
	}
	if p.AssigneeEmail == "" {
		return nil
	}
	return n.send(ctx, event, notify.Redirect(p.AssigneeEmail, p.Title, event.TicketID))
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return payloadError(event)
	}
	return n.send(ctx, event, notify.Closed(p.CreatorEmail, p.Title, p.Kind == domain.ClosureInactivity))
}

func (n *NotificationService) send(ctx context.Context, event events.Event, msg notify.Message) error {
	if err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error("notification delivery failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.String("to", msg.To),
			zap.Error(err))
		return err
	}
	return nil
}

func payloadError(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
