package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/live"
	"github.com/inquirydesk/inquiry-service/internal/service"
)

// StreamHandler serves live ticket updates as server-sent events.
type StreamHandler struct {
	service   *service.TicketService
	hub       *live.Hub
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs handler.
func NewStreamHandler(ticketService *service.TicketService, hub *live.Hub, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{service: ticketService, hub: hub, heartbeat: heartbeat, logger: logger}
}

// Stream GET /tickets/:id/stream. The stream ends with a resync event
// when the viewer falls behind; clients refetch the thread and
// reconnect.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.AuthorizeViewer(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	sub := h.hub.Subscribe(ticket.ID)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ready := live.Update{Kind: live.UpdateStatus, TicketID: ticket.ID, Status: ticket.Status, UpdatedAt: ticket.UpdatedAt}
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		if err := writeEvent(w, "ready", ready); err != nil {
			return
		}
		for {
			select {
			case u, ok := <-sub.C:
				if !ok {
					_ = writeEvent(w, "resync", live.Update{TicketID: ticket.ID})
					return
				}
				if err := writeEvent(w, string(u.Kind), u); err != nil {
					h.logger.Debug("live stream closed", zap.String("ticket_id", ticket.ID), zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

// writeEvent emits one SSE frame. Message updates carry the message id
// as the event id so consumers can drop redeliveries.
func writeEvent(w *bufio.Writer, event string, u live.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if u.Message != nil {
		if _, err := fmt.Fprintf(w, "id: %s\n", u.Message.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
