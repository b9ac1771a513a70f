package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/events"
)

// NotificationQueue accepts notifications for out-of-band delivery.
type NotificationQueue interface {
	Enqueue(n domain.Notification) bool
}

// NotificationService turns committed ticket events into notifications
// for the counterpart.
type NotificationService struct {
	dispatcher     events.Dispatcher
	queue          NotificationQueue
	supportQueueID string
	logger         *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, queue NotificationQueue, supportQueueID string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:     dispatcher,
		queue:          queue,
		supportQueueID: supportQueueID,
		logger:         logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventMessagePosted, n.handleMessagePosted)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	recipient := n.supportQueueID
	if payload.Ticket.TargetID != nil {
		recipient = *payload.Ticket.TargetID
	}
	n.enqueue(domain.Notification{
		RecipientID: recipient,
		TicketID:    payload.Ticket.ID,
		MessageID:   payload.Message.ID,
		Kind:        domain.NotificationNewTicket,
		CreatedAt:   payload.Message.CreatedAt,
	})
	return nil
}

func (n *NotificationService) handleMessagePosted(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessagePostedPayload)
	if !ok {
		return nil
	}
	recipient := n.otherParty(&payload.Ticket, payload.Message.SenderID)
	if recipient == "" {
		return nil
	}
	n.enqueue(domain.Notification{
		RecipientID: recipient,
		TicketID:    payload.Ticket.ID,
		MessageID:   payload.Message.ID,
		Kind:        domain.NotificationNewReply,
		CreatedAt:   payload.Message.CreatedAt,
	})
	return nil
}

// otherParty is the requester when the answering side posts, and the
// target (or support queue) otherwise.
func (n *NotificationService) otherParty(t *domain.Ticket, senderID string) string {
	if !t.IsRequester(senderID) {
		return t.RequesterID
	}
	if t.TargetID != nil {
		return *t.TargetID
	}
	return n.supportQueueID
}

func (n *NotificationService) enqueue(notification domain.Notification) {
	if n.queue == nil {
		return
	}
	notification.ID = newID()
	if !n.queue.Enqueue(notification) {
		n.logger.Warn("notification not queued",
			zap.String("ticket_id", notification.TicketID),
			zap.String("recipient_id", notification.RecipientID))
	}
}
