package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inquirydesk/inquiry-service/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateOpenTicket is returned by TicketRepository.Create when
	// the open-ticket uniqueness constraint rejects the insert.
	ErrDuplicateOpenTicket = errors.New("open ticket already exists for dedup key")
)

// TicketFilter captures inbox search parameters. ParticipantID is
// required; IncludeSupportQueue widens "received" to every support
// ticket for operators.
type TicketFilter struct {
	ParticipantID       string
	IncludeSupportQueue bool
	Direction           *domain.Direction
	Type                *domain.TicketType
	SearchTerm          *string
	Limit               int
	Offset              int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	FindOpenByDedupKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// MessageRepository manages ticket thread messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	// LatestReply returns the newest message not authored by the requester.
	LatestReply(ctx context.Context, ticketID, requesterID string) (*domain.Message, error)
}

// Repositories groups the repositories that share a transaction.
type Repositories struct {
	Tickets  TicketRepository
	Messages MessageRepository
}

// Store hands out repositories, either bound to the pool or to a single
// transaction.
type Store interface {
	Repositories() Repositories
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DefaultLimit applies when a filter carries no limit.
const DefaultLimit = 20

// MaxLimit caps page sizes.
const MaxLimit = 100

// NormalizePage clamps limit and offset.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
