package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// AIProcessingRepository stores one enrichment row per ticket.
type AIProcessingRepository interface {
	// Insert is a no-op when the ticket already has a row; created reports which happened.
	Insert(ctx context.Context, processing *domain.AITicketProcessing) (created bool, err error)
	GetByTicket(ctx context.Context, ticketID string) (*domain.AITicketProcessing, error)
}

type aiProcessingRepository struct {
	db DBTX
}

// NewAIProcessingRepository builds the repository.
func NewAIProcessingRepository(db DBTX) AIProcessingRepository {
	return &aiProcessingRepository{db: db}
}

func (r *aiProcessingRepository) Insert(ctx context.Context, processing *domain.AITicketProcessing) (bool, error) {
	const query = `
        INSERT INTO ai_ticket_processing (ticket_id, ai_department, ai_priority, ai_answer)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		processing.TicketID,
		processing.Department,
		processing.Priority,
		processing.Answer,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *aiProcessingRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.AITicketProcessing, error) {
	const query = `
        SELECT ticket_id, ai_department, ai_priority, ai_answer, created_at
        FROM ai_ticket_processing WHERE ticket_id=$1`
	var p domain.AITicketProcessing
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(
		&p.TicketID,
		&p.Department,
		&p.Priority,
		&p.Answer,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
