package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func TestExportXLSX(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	reports := h.store.repos().Reports
	require.NoError(t, reports.Increment(ctx, day1, domain.DepartmentHousing, domain.ClosureInactivity))
	require.NoError(t, reports.Increment(ctx, day1, domain.DepartmentHousing, domain.ClosureManual))
	require.NoError(t, reports.Increment(ctx, day2, domain.DepartmentITSupport, domain.ClosureManual))

	var buf bytes.Buffer
	n, err := h.reports.ExportXLSX(ctx, day1, day2, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Date", "Department", "Closed by inactivity", "Closed manually", "Total"}, rows[0])
	assert.Equal(t, []string{"2024-03-01", "housing", "1", "1", "2"}, rows[1])
	assert.Equal(t, []string{"2024-03-02", "it_support", "0", "1", "1"}, rows[2])
	totals := rows[3]
	assert.Equal(t, "Total", totals[0])
	assert.Equal(t, []string{"1", "2", "3"}, totals[len(totals)-3:])
}

func TestRangeRejectsInvertedDates(t *testing.T) {
	h := newHarness(t)
	now := h.clock.now()
	_, err := h.reports.Range(context.Background(), now, now.AddDate(0, 0, -1))
	require.Error(t, err)
}
