package repository

import (
	"context"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/observability"
)

type ticketMessageRepository struct {
	db Querier
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(db Querier) MessageRepository {
	return &ticketMessageRepository{db: db}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	defer observability.ObserveStore("messages", "create")()

	const query = `
        INSERT INTO messages (id, ticket_id, sender_id, body, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderID,
		msg.Body,
		msg.CreatedAt,
	)
	return err
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	defer observability.ObserveStore("messages", "list_by_ticket")()

	const query = `
        SELECT id, ticket_id, sender_id, body, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) LatestReply(ctx context.Context, ticketID, requesterID string) (*domain.Message, error) {
	defer observability.ObserveStore("messages", "latest_reply")()

	const query = `
        SELECT id, ticket_id, sender_id, body, created_at
        FROM messages WHERE ticket_id=$1 AND sender_id<>$2
        ORDER BY created_at DESC, id DESC LIMIT 1`
	var msg domain.Message
	if err := r.db.QueryRow(ctx, query, ticketID, requesterID).Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.SenderID,
		&msg.Body,
		&msg.CreatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &msg, nil
}
