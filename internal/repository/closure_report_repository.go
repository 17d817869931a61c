package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// ClosureReportRepository upserts per-day, per-department closure counters.
type ClosureReportRepository interface {
	Increment(ctx context.Context, day time.Time, department domain.Department, kind domain.ClosureKind) error
	ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyTicketClosureReport, error)
}

type closureReportRepository struct {
	db DBTX
}

// NewClosureReportRepository builds the repository.
func NewClosureReportRepository(db DBTX) ClosureReportRepository {
	return &closureReportRepository{db: db}
}

func (r *closureReportRepository) Increment(ctx context.Context, day time.Time, department domain.Department, kind domain.ClosureKind) error {
	var column string
	switch kind {
	case domain.ClosureManual:
		column = "closed_manually"
	case domain.ClosureInactivity:
		column = "closed_by_inactivity"
	default:
		return fmt.Errorf("unknown closure kind %q", kind)
	}
	query := fmt.Sprintf(`
        INSERT INTO daily_ticket_closure_reports (report_date, department, %[1]s)
        VALUES ($1, $2, 1)
        ON CONFLICT (report_date, department)
        DO UPDATE SET %[1]s = daily_ticket_closure_reports.%[1]s + 1`, column)
	_, err := r.db.Exec(ctx, query, truncateDay(day), department)
	return err
}

func (r *closureReportRepository) ListRange(ctx context.Context, from, to time.Time) ([]domain.DailyTicketClosureReport, error) {
	const query = `
        SELECT report_date, department, closed_by_inactivity, closed_manually
        FROM daily_ticket_closure_reports
        WHERE report_date BETWEEN $1 AND $2
        ORDER BY report_date ASC, department ASC`
	rows, err := r.db.Query(ctx, query, truncateDay(from), truncateDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DailyTicketClosureReport
	for rows.Next() {
		var report domain.DailyTicketClosureReport
		if err := rows.Scan(&report.Date, &report.Department, &report.ClosedByInactivity, &report.ClosedManually); err != nil {
			return nil, err
		}
		result = append(result, report)
	}
	return result, rows.Err()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
