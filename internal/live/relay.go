package live

import (
	"context"

	"github.com/inquirydesk/inquiry-service/internal/events"
)

// RegisterHandlers forwards committed ticket events to live viewers.
func RegisterHandlers(dispatcher events.Dispatcher, hub *Hub) {
	dispatcher.Subscribe(events.EventMessagePosted, func(ctx context.Context, ev events.Event) error {
		payload, ok := ev.Payload.(events.MessagePostedPayload)
		if !ok {
			return nil
		}
		return hub.Publish(ctx, Update{
			Kind:      UpdateMessage,
			TicketID:  payload.Ticket.ID,
			Status:    payload.Ticket.Status,
			UpdatedAt: payload.Ticket.UpdatedAt,
			Message: &MessageUpdate{
				ID:        payload.Message.ID,
				SenderID:  payload.Message.SenderID,
				Body:      payload.Message.Body,
				CreatedAt: payload.Message.CreatedAt,
			},
		})
	})

	statusChanged := func(ctx context.Context, ev events.Event) error {
		payload, ok := ev.Payload.(events.TicketStatusChangedPayload)
		if !ok {
			return nil
		}
		return hub.Publish(ctx, Update{
			Kind:      UpdateStatus,
			TicketID:  payload.Ticket.ID,
			Status:    payload.NewStatus,
			UpdatedAt: payload.Ticket.UpdatedAt,
		})
	}
	dispatcher.Subscribe(events.EventTicketResolved, statusChanged)
	dispatcher.Subscribe(events.EventTicketDisputed, statusChanged)
}
