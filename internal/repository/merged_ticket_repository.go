package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// MergedTicketRepository manages merge groups and their suggested/approved sets.
type MergedTicketRepository interface {
	// GetOrCreate returns the single group for primaryID, creating it when absent.
	GetOrCreate(ctx context.Context, primaryID string) (*domain.MergedTicket, error)
	GetByPrimary(ctx context.Context, primaryID string) (*domain.MergedTicket, error)
	AddSuggested(ctx context.Context, mergeID, ticketID string) error
	AddApproved(ctx context.Context, mergeID, ticketID string) error
	RemoveApproved(ctx context.Context, mergeID, ticketID string) error
}

type mergedTicketRepository struct {
	db DBTX
}

// NewMergedTicketRepository builds the repository.
func NewMergedTicketRepository(db DBTX) MergedTicketRepository {
	return &mergedTicketRepository{db: db}
}

func (r *mergedTicketRepository) GetOrCreate(ctx context.Context, primaryID string) (*domain.MergedTicket, error) {
	const query = `
        INSERT INTO merged_tickets (primary_ticket_id) VALUES ($1)
        ON CONFLICT (primary_ticket_id) DO UPDATE SET primary_ticket_id=EXCLUDED.primary_ticket_id
        RETURNING id, primary_ticket_id, merged_at`
	var m domain.MergedTicket
	if err := r.db.QueryRow(ctx, query, primaryID).Scan(&m.ID, &m.PrimaryTicketID, &m.MergedAt); err != nil {
		return nil, err
	}
	if err := r.loadSets(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mergedTicketRepository) GetByPrimary(ctx context.Context, primaryID string) (*domain.MergedTicket, error) {
	const query = `SELECT id, primary_ticket_id, merged_at FROM merged_tickets WHERE primary_ticket_id=$1`
	var m domain.MergedTicket
	if err := r.db.QueryRow(ctx, query, primaryID).Scan(&m.ID, &m.PrimaryTicketID, &m.MergedAt); err != nil {
		return nil, err
	}
	if err := r.loadSets(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mergedTicketRepository) AddSuggested(ctx context.Context, mergeID, ticketID string) error {
	const query = `
        INSERT INTO merged_ticket_suggested (merged_ticket_id, ticket_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, mergeID, ticketID)
	return err
}

func (r *mergedTicketRepository) AddApproved(ctx context.Context, mergeID, ticketID string) error {
	const query = `
        INSERT INTO merged_ticket_approved (merged_ticket_id, ticket_id) VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, mergeID, ticketID)
	return err
}

func (r *mergedTicketRepository) RemoveApproved(ctx context.Context, mergeID, ticketID string) error {
	const query = `DELETE FROM merged_ticket_approved WHERE merged_ticket_id=$1 AND ticket_id=$2`
	_, err := r.db.Exec(ctx, query, mergeID, ticketID)
	return err
}

func (r *mergedTicketRepository) loadSets(ctx context.Context, m *domain.MergedTicket) error {
	suggested, err := r.ticketIDs(ctx, `SELECT ticket_id::text FROM merged_ticket_suggested WHERE merged_ticket_id=$1 ORDER BY ticket_id`, m.ID)
	if err != nil {
		return err
	}
	approved, err := r.ticketIDs(ctx, `SELECT ticket_id::text FROM merged_ticket_approved WHERE merged_ticket_id=$1 ORDER BY ticket_id`, m.ID)
	if err != nil {
		return err
	}
	m.Suggested = suggested
	m.Approved = approved
	return nil
}

func (r *mergedTicketRepository) ticketIDs(ctx context.Context, query, mergeID string) ([]string, error) {
	rows, err := r.db.Query(ctx, query, mergeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
