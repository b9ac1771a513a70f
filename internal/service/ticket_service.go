package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/clock"
	"github.com/inquirydesk/inquiry-service/internal/config"
	"github.com/inquirydesk/inquiry-service/internal/directory"
	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/events"
	"github.com/inquirydesk/inquiry-service/internal/observability"
	"github.com/inquirydesk/inquiry-service/internal/repository"
	apperrors "github.com/inquirydesk/inquiry-service/pkg/util/errorutil"
)

// Actor is the authenticated caller. Operators staff the support queue.
type Actor struct {
	UserID   string
	Operator bool
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	directory  directory.Directory
	clock      clock.Clock
	cfg        config.TicketConfig
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Directory  directory.Directory
	Clock      clock.Clock
	Config     config.TicketConfig
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Type         domain.TicketType
	TargetID     *string
	Entity       *domain.EntityRef
	Subject      string
	FirstMessage string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Directory == nil {
		deps.Directory = directory.NewStatic()
	}
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		directory:  deps.Directory,
		clock:      deps.Clock,
		cfg:        deps.Config,
		logger:     deps.Logger,
	}
}

// CreateTicket opens a ticket together with its first message. At most
// one open ticket may exist per dedup key.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.validateCreate(actor, &input); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:          newID(),
		RequesterID: actor.UserID,
		TargetID:    input.TargetID,
		Type:        input.Type,
		Entity:      input.Entity,
		Subject:     input.Subject,
		Status:      domain.TicketStatusOpen,
		DedupKey:    domain.DedupKey(actor.UserID, input.Entity, input.TargetID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	msg := &domain.Message{
		ID:        newID(),
		TicketID:  ticket.ID,
		SenderID:  actor.UserID,
		Body:      input.FirstMessage,
		CreatedAt: now,
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Tickets.FindOpenByDedupKey(ctx, ticket.DedupKey)
		switch {
		case err == nil:
			return apperrors.NewDuplicateOpenTicket(existing.ID)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return repos.Messages.Create(ctx, msg)
	})
	if errors.Is(err, repository.ErrDuplicateOpenTicket) {
		// lost the race to a concurrent creator; the index holds the winner
		err = s.duplicateOf(ctx, ticket.DedupKey)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateOpenTicket) {
			observability.DedupRejections.Inc()
		}
		return nil, s.wrap(err)
	}

	observability.TicketsCreated.WithLabelValues(string(ticket.Type)).Inc()
	observability.MessagesPosted.Inc()
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload:  events.TicketCreatedPayload{Ticket: *ticket, Message: *msg},
	})
	return ticket, nil
}

func (s *TicketService) validateCreate(actor Actor, input *TicketCreateInput) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return apperrors.NewUnauthenticated("requester identity required")
	}
	if !input.Type.Valid() {
		return apperrors.NewInvalidArgument("unknown ticket type", map[string]any{"ticket_type": string(input.Type)})
	}

	input.Subject = strings.TrimSpace(input.Subject)
	if input.Subject == "" {
		return apperrors.NewInvalidArgument("subject is required", map[string]any{"field": "subject"})
	}
	if s.cfg.MaxSubjectLength > 0 && utf8.RuneCountInString(input.Subject) > s.cfg.MaxSubjectLength {
		return apperrors.NewInvalidArgument("subject is too long", map[string]any{"field": "subject", "max_length": s.cfg.MaxSubjectLength})
	}

	input.FirstMessage = strings.TrimSpace(input.FirstMessage)
	if input.FirstMessage == "" {
		return apperrors.NewInvalidArgument("first message is required", map[string]any{"field": "first_message"})
	}
	if err := s.checkBodyLength(input.FirstMessage); err != nil {
		return err
	}

	if input.Entity != nil {
		input.Entity.ID = strings.TrimSpace(input.Entity.ID)
		if !input.Entity.Type.Valid() || input.Entity.ID == "" {
			return apperrors.NewInvalidArgument("invalid entity reference", map[string]any{"field": "entity_ref"})
		}
	}

	if input.TargetID != nil {
		target := strings.TrimSpace(*input.TargetID)
		if target == "" {
			input.TargetID = nil
		} else {
			input.TargetID = &target
		}
	}
	if input.TargetID == nil && input.Type != domain.TicketTypeSupport {
		return apperrors.NewInvalidArgument("target is required", map[string]any{"field": "target_id"})
	}
	if input.TargetID != nil && *input.TargetID == actor.UserID {
		return apperrors.NewInvalidArgument("cannot open a ticket addressed to yourself", map[string]any{"field": "target_id"})
	}
	return nil
}

func (s *TicketService) duplicateOf(ctx context.Context, key string) error {
	existing, err := s.store.Repositories().Tickets.FindOpenByDedupKey(ctx, key)
	if err != nil {
		// the winner already moved on; report without a pointer
		s.logger.Debug("open ticket vanished after dedup conflict", zap.String("dedup_key", key), zap.Error(err))
		return apperrors.NewDuplicateOpenTicket("")
	}
	return apperrors.NewDuplicateOpenTicket(existing.ID)
}

// PostMessage appends a message and moves the ticket to replied.
func (s *TicketService) PostMessage(ctx context.Context, actor Actor, ticketID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewEmptyMessage()
	}
	if err := s.checkBodyLength(body); err != nil {
		return nil, err
	}

	if !validID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}

	var (
		msg       *domain.Message
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !canParticipate(ticket, actor) {
			return apperrors.NewUnauthorized("only ticket parties may post messages")
		}
		oldStatus = ticket.Status
		next, err := transition(ticket, domain.TicketEventReply, apperrors.NewTicketClosed)
		if err != nil {
			return err
		}

		createdAt := s.now()
		if !createdAt.After(ticket.UpdatedAt) {
			// keep thread order strictly increasing under clock skew
			createdAt = ticket.UpdatedAt.Add(time.Microsecond)
		}
		msg = &domain.Message{
			ID:        newID(),
			TicketID:  ticket.ID,
			SenderID:  actor.UserID,
			Body:      body,
			CreatedAt: createdAt,
		}
		if err := repos.Messages.Create(ctx, msg); err != nil {
			return err
		}
		ticket.Status = next
		ticket.UpdatedAt = createdAt
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	observability.MessagesPosted.Inc()
	if oldStatus != ticket.Status {
		observability.TicketTransitions.WithLabelValues(string(ticket.Status)).Inc()
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventMessagePosted,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload:  events.MessagePostedPayload{Ticket: *ticket, Message: *msg, OldStatus: oldStatus},
	})
	return msg, nil
}

// Resolve closes the ticket on behalf of the target once the cool-down
// since the target's latest reply has elapsed.
func (s *TicketService) Resolve(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	if !validID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !actsAsTarget(ticket, actor) {
			return apperrors.NewUnauthorized("only the target may resolve a ticket")
		}
		oldStatus = ticket.Status
		next, err := transition(ticket, domain.TicketEventResolve, apperrors.NewTicketAlreadyClosed)
		if err != nil {
			return err
		}

		now := s.now()
		reply, err := repos.Messages.LatestReply(ctx, ticket.ID, ticket.RequesterID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewResolutionTooEarly(0, time.Time{})
		}
		if err != nil {
			return err
		}
		resolvableAt := reply.CreatedAt.Add(s.cfg.ResolutionCooldown)
		if now.Before(resolvableAt) {
			return apperrors.NewResolutionTooEarly(resolvableAt.Sub(now), resolvableAt)
		}

		ticket.Status = next
		ticket.ResolvedAt = &now
		ticket.UpdatedAt = latest(now, ticket.UpdatedAt)
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	observability.TicketTransitions.WithLabelValues(string(ticket.Status)).Inc()
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketResolved,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload:  events.TicketStatusChangedPayload{Ticket: *ticket, OldStatus: oldStatus, NewStatus: ticket.Status},
	})
	return ticket, nil
}

// Dispute moves a live ticket to disputed. Either party may raise it.
func (s *TicketService) Dispute(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	if !validID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	var (
		ticket    *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !canParticipate(ticket, actor) {
			return apperrors.NewUnauthorized("only ticket parties may dispute")
		}
		oldStatus = ticket.Status
		next, err := transition(ticket, domain.TicketEventDispute, apperrors.NewTicketAlreadyClosed)
		if err != nil {
			return err
		}
		ticket.Status = next
		ticket.UpdatedAt = latest(s.now(), ticket.UpdatedAt)
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, s.wrap(err)
	}

	observability.TicketTransitions.WithLabelValues(string(ticket.Status)).Inc()
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDisputed,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload:  events.TicketStatusChangedPayload{Ticket: *ticket, OldStatus: oldStatus, NewStatus: ticket.Status},
	})
	return ticket, nil
}

// AuthorizeViewer loads the ticket and checks that actor may read it.
func (s *TicketService) AuthorizeViewer(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	if !validID(ticketID) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	ticket, err := s.store.Repositories().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.wrap(err)
	}
	if !canParticipate(ticket, actor) {
		return nil, apperrors.NewUnauthorized("only ticket parties may view this ticket")
	}
	return ticket, nil
}

func (s *TicketService) checkBodyLength(body string) error {
	if s.cfg.MaxBodyLength > 0 && utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return apperrors.NewInvalidArgument("message is too long", map[string]any{"field": "body", "max_length": s.cfg.MaxBodyLength})
	}
	return nil
}

// now is truncated to the store's timestamp precision so in-memory and
// persisted values compare equal.
func (s *TicketService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *TicketService) wrap(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", nil)
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewInternalError(err)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = newID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// transition applies ev to the ticket's status. A terminal ticket reports
// closed; a status outside the lifecycle table reports an invalid transition.
func transition(ticket *domain.Ticket, ev domain.TicketEvent, closed func(ticketID string) error) (domain.TicketStatus, error) {
	next, ok := ticket.Status.Next(ev)
	if ok {
		return next, nil
	}
	if ticket.Status.IsTerminal() {
		return "", closed(ticket.ID)
	}
	return "", apperrors.NewInvalidTransition(string(ticket.Status), string(ev))
}

// canParticipate covers posting, disputing and viewing.
func canParticipate(t *domain.Ticket, actor Actor) bool {
	return t.IsRequester(actor.UserID) || actsAsTarget(t, actor)
}

func actsAsTarget(t *domain.Ticket, actor Actor) bool {
	if t.IsTarget(actor.UserID) {
		return true
	}
	return actor.Operator && t.AllowsOperators() && !t.IsRequester(actor.UserID)
}

func eventActor(actor Actor) events.Actor {
	return events.Actor{UserID: actor.UserID, Operator: actor.Operator}
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// validID rejects ids the store could never have issued.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
