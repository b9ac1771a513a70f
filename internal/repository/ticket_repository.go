package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/observability"
)

const (
	ticketColumns = `id, requester_id, target_id, ticket_type, entity_type, entity_id, subject,
               status, dedup_key, created_at, updated_at, resolved_at`

	openDedupConstraint = "tickets_open_dedup_key_idx"
	uniqueViolation     = "23505"
)

type ticketRepository struct {
	db Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db Querier) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer observability.ObserveStore("tickets", "create")()

	const query = `
        INSERT INTO tickets (id, requester_id, target_id, ticket_type, entity_type, entity_id, subject,
                             status, dedup_key, created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	entityType, entityID := entityColumns(ticket.Entity)
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.RequesterID,
		ticket.TargetID,
		ticket.Type,
		entityType,
		entityID,
		ticket.Subject,
		ticket.Status,
		ticket.DedupKey,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	)
	return mapCreateError(err)
}

// mapCreateError turns a violation of the open dedup index into
// ErrDuplicateOpenTicket and passes every other error through.
func mapCreateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openDedupConstraint {
		return ErrDuplicateOpenTicket
	}
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	defer observability.ObserveStore("tickets", "update")()

	const query = `
        UPDATE tickets SET status=$1, updated_at=$2, resolved_at=$3
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Status,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	defer observability.ObserveStore("tickets", "get_by_id")()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	defer observability.ObserveStore("tickets", "get_by_id_for_update")()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindOpenByDedupKey(ctx context.Context, key string) (*domain.Ticket, error) {
	defer observability.ObserveStore("tickets", "find_open_by_dedup_key")()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE dedup_key=$1 AND status='open'`
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	defer observability.ObserveStore("tickets", "list_with_filter")()

	args := []any{filter.ParticipantID}
	sent := "requester_id=$1"
	received := "target_id=$1"
	if filter.IncludeSupportQueue {
		received = "(target_id=$1 OR (ticket_type='support' AND requester_id<>$1))"
	}

	var clauses []string
	switch {
	case filter.Direction != nil && *filter.Direction == domain.DirectionSent:
		clauses = append(clauses, sent)
	case filter.Direction != nil && *filter.Direction == domain.DirectionReceived:
		clauses = append(clauses, received)
	default:
		clauses = append(clauses, fmt.Sprintf("(%s OR %s)", sent, received))
	}

	if filter.Type != nil {
		args = append(args, *filter.Type)
		clauses = append(clauses, fmt.Sprintf("ticket_type=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchTerm)))+"%")
		clauses = append(clauses, fmt.Sprintf(`LOWER(subject) LIKE $%d ESCAPE '\'`, len(args)))
	}

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		entityType *string
		entityID   *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.RequesterID,
		&ticket.TargetID,
		&ticket.Type,
		&entityType,
		&entityID,
		&ticket.Subject,
		&ticket.Status,
		&ticket.DedupKey,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	if entityType != nil && entityID != nil {
		ticket.Entity = &domain.EntityRef{Type: domain.EntityType(*entityType), ID: *entityID}
	}
	return &ticket, nil
}

func entityColumns(ref *domain.EntityRef) (*string, *string) {
	if ref == nil {
		return nil, nil
	}
	entityType := string(ref.Type)
	entityID := ref.ID
	return &entityType, &entityID
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
