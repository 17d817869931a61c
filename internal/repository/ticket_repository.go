package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatorID   *string
	AssigneeID  *string
	Department  *domain.Department
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	UpdatedFrom *time.Time
	UpdatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	// Escalate writes priority and latest action without refreshing updated_at.
	Escalate(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	ListBySender(ctx context.Context, email string) ([]domain.Ticket, error)
	ListOpenByAIDepartment(ctx context.Context, department domain.Department, excludeID string) ([]domain.Ticket, error)
	ListStale(ctx context.Context, before time.Time) ([]domain.Ticket, error)
	CountOpenByAssignee(ctx context.Context) (map[string]int, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `t.id, t.title, t.description, t.status, t.priority, t.department, t.creator_id, t.sender_email,
               t.assignee_id, t.latest_editor_id, t.answers, t.return_reason, t.latest_action,
               t.can_be_managed_by_program_officer, t.can_be_managed_by_specialist, t.need_student_update,
               t.program_officer_resolved, t.specialist_resolved, t.created_at, t.updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, priority, department, creator_id, sender_email,
            assignee_id, latest_editor_id, answers, return_reason, latest_action,
            can_be_managed_by_program_officer, can_be_managed_by_specialist, need_student_update,
            program_officer_resolved, specialist_resolved)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Department,
		ticket.CreatorID,
		ticket.SenderEmail,
		ticket.AssigneeID,
		ticket.LatestEditorID,
		ticket.Answers,
		ticket.ReturnReason,
		ticket.LatestAction,
		ticket.CanBeManagedByProgramOfficer,
		ticket.CanBeManagedBySpecialist,
		ticket.NeedStudentUpdate,
		ticket.ProgramOfficerResolved,
		ticket.SpecialistResolved,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, department=$5,
            assignee_id=$6, latest_editor_id=$7, answers=$8, return_reason=$9, latest_action=$10,
            can_be_managed_by_program_officer=$11, can_be_managed_by_specialist=$12,
            need_student_update=$13, program_officer_resolved=$14, specialist_resolved=$15,
            updated_at=NOW()
        WHERE id=$16
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Department,
		ticket.AssigneeID,
		ticket.LatestEditorID,
		ticket.Answers,
		ticket.ReturnReason,
		ticket.LatestAction,
		ticket.CanBeManagedByProgramOfficer,
		ticket.CanBeManagedBySpecialist,
		ticket.NeedStudentUpdate,
		ticket.ProgramOfficerResolved,
		ticket.SpecialistResolved,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) Escalate(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET priority=$1, latest_action=$2, latest_editor_id=$3
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query, ticket.Priority, ticket.LatestAction, ticket.LatestEditorID, ticket.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1 FOR UPDATE`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) ListBySender(ctx context.Context, email string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE LOWER(t.sender_email) = LOWER($1)
        ORDER BY t.created_at DESC`
	return r.list(ctx, query, strings.TrimSpace(email))
}

func (r *ticketRepository) ListOpenByAIDepartment(ctx context.Context, department domain.Department, excludeID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        JOIN ai_ticket_processing ai ON ai.ticket_id = t.id
        WHERE t.status = $1 AND ai.ai_department = $2 AND t.id <> $3
        ORDER BY t.created_at ASC`
	return r.list(ctx, query, domain.TicketStatusInProgress, department, excludeID)
}

func (r *ticketRepository) ListStale(ctx context.Context, before time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t
        WHERE t.status = $1 AND t.updated_at < $2
        ORDER BY t.updated_at ASC`
	return r.list(ctx, query, domain.TicketStatusInProgress, before)
}

func (r *ticketRepository) CountOpenByAssignee(ctx context.Context) (map[string]int, error) {
	const query = `
        SELECT assignee_id::text, COUNT(*) FROM tickets
        WHERE status = $1 AND assignee_id IS NOT NULL
        GROUP BY assignee_id`
	rows, err := r.db.Query(ctx, query, domain.TicketStatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var (
			assignee string
			count    int
		)
		if err := rows.Scan(&assignee, &count); err != nil {
			return nil, err
		}
		result[assignee] = count
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets t`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("t.creator_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assignee_id=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("t.department=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	if filter.UpdatedFrom != nil {
		args = append(args, *filter.UpdatedFrom)
		clauses = append(clauses, fmt.Sprintf("t.updated_at >= $%d", len(args)))
	}
	if filter.UpdatedTo != nil {
		args = append(args, *filter.UpdatedTo)
		clauses = append(clauses, fmt.Sprintf("t.updated_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(t.title) LIKE %s OR LOWER(t.description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)
	return r.list(ctx, query, args...)
}

func (r *ticketRepository) DeleteAll(ctx context.Context) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
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
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Department,
		&ticket.CreatorID,
		&ticket.SenderEmail,
		&ticket.AssigneeID,
		&ticket.LatestEditorID,
		&ticket.Answers,
		&ticket.ReturnReason,
		&ticket.LatestAction,
		&ticket.CanBeManagedByProgramOfficer,
		&ticket.CanBeManagedBySpecialist,
		&ticket.NeedStudentUpdate,
		&ticket.ProgramOfficerResolved,
		&ticket.SpecialistResolved,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
