package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

const reportSheet = "Closures"

// ReportService reads and exports the daily closure counters.
type ReportService struct {
	reports repository.ClosureReportRepository
}

// NewReportService constructs the service.
func NewReportService(reports repository.ClosureReportRepository) *ReportService {
	return &ReportService{reports: reports}
}

// Range returns report rows for [from, to], both inclusive days.
func (s *ReportService) Range(ctx context.Context, from, to time.Time) ([]domain.DailyTicketClosureReport, error) {
	if to.Before(from) {
		return nil, apperrors.NewValidationError("range end is before its start", map[string]any{
			"from": from.Format(time.DateOnly),
			"to":   to.Format(time.DateOnly),
		})
	}
	rows, err := s.reports.ListRange(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rows, nil
}

// ExportXLSX writes the range as a spreadsheet with a totals row.
func (s *ReportService) ExportXLSX(ctx context.Context, from, to time.Time, w io.Writer) (int, error) {
	rows, err := s.Range(ctx, from, to)
	if err != nil {
		return 0, err
	}
	f, err := buildClosureWorkbook(rows)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(rows), nil
}

func buildClosureWorkbook(rows []domain.DailyTicketClosureReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		f.Close()
		return nil, err
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	headers := []string{"Date", "Department", "Closed by inactivity", "Closed manually", "Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, h)
		_ = f.SetCellStyle(reportSheet, cell, cell, headerStyle)
	}

	var inactivity, manual int
	for i, r := range rows {
		line := i + 2
		values := []any{
			r.Date.Format(time.DateOnly),
			string(r.Department),
			r.ClosedByInactivity,
			r.ClosedManually,
			r.ClosedByInactivity + r.ClosedManually,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			if err := f.SetCellValue(reportSheet, cell, v); err != nil {
				f.Close()
				return nil, err
			}
		}
		inactivity += r.ClosedByInactivity
		manual += r.ClosedManually
	}

	totalLine := len(rows) + 2
	totals := []any{"Total", "", inactivity, manual, inactivity + manual}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col+1, totalLine)
		_ = f.SetCellValue(reportSheet, cell, v)
		_ = f.SetCellStyle(reportSheet, cell, cell, headerStyle)
	}
	_ = f.SetColWidth(reportSheet, "A", "B", 20)
	_ = f.SetColWidth(reportSheet, "C", "E", 22)
	return f, nil
}
