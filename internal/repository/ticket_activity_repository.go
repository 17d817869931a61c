package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// TicketActivityRepository stores the append-only transition log.
type TicketActivityRepository interface {
	Create(ctx context.Context, activity *domain.TicketActivity) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error)
	CountByAction(ctx context.Context, ticketID string, action domain.Action) (int, error)
}

type ticketActivityRepository struct {
	db DBTX
}

// NewTicketActivityRepository builds repository.
func NewTicketActivityRepository(db DBTX) TicketActivityRepository {
	return &ticketActivityRepository{db: db}
}

func (r *ticketActivityRepository) Create(ctx context.Context, activity *domain.TicketActivity) error {
	const query = `
        INSERT INTO ticket_activities (ticket_id, action, actor_id, comment)
        VALUES ($1,$2,$3,$4)
        RETURNING id, action_time`
	return r.db.QueryRow(ctx, query,
		activity.TicketID,
		activity.Action,
		activity.ActorID,
		activity.Comment,
	).Scan(&activity.ID, &activity.ActionTime)
}

func (r *ticketActivityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	const query = `
        SELECT id, ticket_id, action, actor_id, comment, action_time
        FROM ticket_activities WHERE ticket_id=$1 ORDER BY action_time ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketActivity
	for rows.Next() {
		var activity domain.TicketActivity
		if err := rows.Scan(
			&activity.ID,
			&activity.TicketID,
			&activity.Action,
			&activity.ActorID,
			&activity.Comment,
			&activity.ActionTime,
		); err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}

func (r *ticketActivityRepository) CountByAction(ctx context.Context, ticketID string, action domain.Action) (int, error) {
	const query = `SELECT COUNT(*) FROM ticket_activities WHERE ticket_id=$1 AND action=$2`
	var count int
	if err := r.db.QueryRow(ctx, query, ticketID, action).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
