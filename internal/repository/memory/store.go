// Package memory provides an in-process Store used when no database is
// configured and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/repository"
)

type state struct {
	tickets  map[string]domain.Ticket
	messages map[string][]domain.Message
}

func newState() *state {
	return &state{
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string][]domain.Message),
	}
}

func (s *state) clone() *state {
	out := &state{
		tickets:  make(map[string]domain.Ticket, len(s.tickets)),
		messages: make(map[string][]domain.Message, len(s.messages)),
	}
	for id, t := range s.tickets {
		out.tickets[id] = t
	}
	for id, msgs := range s.messages {
		out.messages[id] = append([]domain.Message(nil), msgs...)
	}
	return out
}

// Store keeps tickets and messages in memory. Transactions are
// serialized and see a private copy of the state that replaces the
// shared one on commit.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

type accessor interface {
	with(fn func(st *state) error) error
}

type sharedAccess struct{ store *Store }

func (a sharedAccess) with(fn func(st *state) error) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

type txAccess struct{ st *state }

func (a txAccess) with(fn func(st *state) error) error {
	return fn(a.st)
}

func (s *Store) Repositories() repository.Repositories {
	return reposFor(sharedAccess{store: s})
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := s.state.clone()
	if err := fn(ctx, reposFor(txAccess{st: staged})); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func reposFor(a accessor) repository.Repositories {
	return repository.Repositories{
		Tickets:  &ticketRepository{access: a},
		Messages: &messageRepository{access: a},
	}
}

type ticketRepository struct {
	access accessor
}

func (r *ticketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.access.with(func(st *state) error {
		if ticket.Status == domain.TicketStatusOpen {
			for _, existing := range st.tickets {
				if existing.Status == domain.TicketStatusOpen && existing.DedupKey == ticket.DedupKey {
					return repository.ErrDuplicateOpenTicket
				}
			}
		}
		st.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (r *ticketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.access.with(func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return repository.ErrNotFound
		}
		current.Status = ticket.Status
		current.UpdatedAt = ticket.UpdatedAt
		current.ResolvedAt = ticket.ResolvedAt
		st.tickets[ticket.ID] = current
		return nil
	})
}

func (r *ticketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.access.with(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no row lock: transactions are already serialized.
func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepository) FindOpenByDedupKey(_ context.Context, key string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.access.with(func(st *state) error {
		for _, t := range st.tickets {
			if t.Status == domain.TicketStatusOpen && t.DedupKey == key {
				t := t
				out = &t
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *ticketRepository) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var matched []domain.Ticket
	_ = r.access.with(func(st *state) error {
		for _, t := range st.tickets {
			if matchesFilter(&t, filter) {
				matched = append(matched, t)
			}
		}
		return nil
	})

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit, offset := repository.NormalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchesFilter(t *domain.Ticket, filter repository.TicketFilter) bool {
	sent := t.RequesterID == filter.ParticipantID
	received := t.IsTarget(filter.ParticipantID) ||
		(filter.IncludeSupportQueue && t.AllowsOperators() && !sent)

	switch {
	case filter.Direction != nil && *filter.Direction == domain.DirectionSent:
		if !sent {
			return false
		}
	case filter.Direction != nil && *filter.Direction == domain.DirectionReceived:
		if !received {
			return false
		}
	default:
		if !sent && !received {
			return false
		}
	}

	if filter.Type != nil && t.Type != *filter.Type {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Subject), term) {
			return false
		}
	}
	return true
}

type messageRepository struct {
	access accessor
}

func (r *messageRepository) Create(_ context.Context, msg *domain.Message) error {
	return r.access.with(func(st *state) error {
		if _, ok := st.tickets[msg.TicketID]; !ok {
			return repository.ErrNotFound
		}
		st.messages[msg.TicketID] = append(st.messages[msg.TicketID], *msg)
		return nil
	})
}

func (r *messageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	var out []domain.Message
	_ = r.access.with(func(st *state) error {
		out = append(out, st.messages[ticketID]...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *messageRepository) LatestReply(ctx context.Context, ticketID, requesterID string) (*domain.Message, error) {
	msgs, err := r.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID != requesterID {
			msg := msgs[i]
			return &msg, nil
		}
	}
	return nil, repository.ErrNotFound
}
