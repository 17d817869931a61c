package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func TestEnrichIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ticket := h.newTicket(t, h.student("ana@uni.test"), wifiSubject, wifiBody)
	calls := h.classifier.calls

	svc := NewEnrichmentService(EnrichmentDependencies{AIRepo: h.store.repos().AI, Classifier: h.classifier})
	row, err := svc.Enrich(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.DepartmentITSupport, row.Department)
	assert.Equal(t, calls, h.classifier.calls, "an existing row skips the model")
}

func TestEnrichFallsBackWhenModelFails(t *testing.T) {
	h := newHarness(t)
	h.classifier.err = errors.New("model offline")
	ticket := h.newTicket(t, h.student("ana@uni.test"), "Dorm heating", "The heating in my dorm is broken.")

	row, err := h.store.repos().AI.GetByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepartmentHousing, row.Department)
	assert.Equal(t, domain.TicketPriorityMedium, row.Priority)
	assert.Empty(t, row.Answer)
}

func TestEnrichWithoutClassifier(t *testing.T) {
	h := newHarness(t)
	ticket := &domain.Ticket{ID: "t-x", Title: "x", Description: "y", Priority: domain.TicketPriorityLow}
	svc := NewEnrichmentService(EnrichmentDependencies{AIRepo: h.store.repos().AI})

	row, err := svc.Enrich(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDepartment, row.Department)
	assert.Equal(t, domain.TicketPriorityLow, row.Priority)
}
