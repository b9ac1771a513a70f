// Package live fans ticket updates out to open viewers. Delivery is
// at-least-once; consumers dedupe by message id.
package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/observability"
)

// UpdateKind distinguishes message appends from status changes.
type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateStatus  UpdateKind = "status"
)

// MessageUpdate is the message portion of an update.
type MessageUpdate struct {
	ID        string    `cbor:"id" json:"id"`
	SenderID  string    `cbor:"sender_id" json:"sender_id"`
	Body      string    `cbor:"body" json:"body"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// Update is pushed to every subscriber of a ticket.
type Update struct {
	Kind      UpdateKind          `cbor:"kind" json:"kind"`
	TicketID  string              `cbor:"ticket_id" json:"ticket_id"`
	Status    domain.TicketStatus `cbor:"status" json:"status"`
	UpdatedAt time.Time           `cbor:"updated_at" json:"updated_at"`
	Message   *MessageUpdate      `cbor:"message,omitempty" json:"message,omitempty"`
}

// Broker carries updates between replicas. A nil Broker keeps fan-out
// inside the process.
type Broker interface {
	Publish(ctx context.Context, u Update) error
	// Listen blocks, handing every remote update to deliver, until ctx
	// is cancelled.
	Listen(ctx context.Context, deliver func(Update)) error
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

// Subscription is one viewer's stream. C is closed when the viewer
// falls behind or the hub drops it; the viewer should refetch the thread.
type Subscription struct {
	C        <-chan Update
	ticketID string
	ch       chan Update
}

// Hub is the per-ticket subscriber registry.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	broker Broker
	logger *zap.Logger
}

// NewHub builds a hub. broker may be nil.
func NewHub(broker Broker, buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		broker: broker,
		logger: logger,
	}
}

// Subscribe registers a viewer for ticketID.
func (h *Hub) Subscribe(ticketID string) *Subscription {
	ch := make(chan Update, h.buffer)
	sub := &Subscription{C: ch, ticketID: ticketID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[ticketID] == nil {
		h.subs[ticketID] = make(map[*Subscription]struct{})
	}
	h.subs[ticketID][sub] = struct{}{}
	observability.LiveSubscribers.Inc()
	return sub
}

// Unsubscribe removes sub. Safe to call after the hub already dropped it.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	set, ok := h.subs[sub.ticketID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	observability.LiveSubscribers.Dec()
	if len(set) == 0 {
		delete(h.subs, sub.ticketID)
	}
}

// Publish sends u to every subscriber of its ticket, across replicas
// when a broker is configured.
func (h *Hub) Publish(ctx context.Context, u Update) error {
	if h.broker == nil {
		h.fanout(u)
		return nil
	}
	return h.broker.Publish(ctx, u)
}

// Run relays broker traffic into local subscribers until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	if h.broker == nil {
		<-ctx.Done()
		return nil
	}
	return h.broker.Listen(ctx, h.fanout)
}

// SubscriberCount reports the number of viewers of ticketID.
func (h *Hub) SubscriberCount(ticketID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ticketID])
}

func (h *Hub) fanout(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[u.TicketID] {
		select {
		case sub.ch <- u:
		default:
			h.logger.Debug("live subscriber fell behind; closing",
				zap.String("ticket_id", u.TicketID))
			h.removeLocked(sub)
		}
	}
}
