package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/ai"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
)

const fallbackClassifier = "classifier"

// EnrichmentService stores the model's department, priority and draft answer for a ticket.
// It never changes the ticket itself.
type EnrichmentService struct {
	processing repository.AIProcessingRepository
	classifier ai.Classifier
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// EnrichmentDependencies bundles collaborators.
type EnrichmentDependencies struct {
	AIRepo     repository.AIProcessingRepository
	Classifier ai.Classifier
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewEnrichmentService constructs the service.
func NewEnrichmentService(deps EnrichmentDependencies) *EnrichmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentService{
		processing: deps.AIRepo,
		classifier: deps.Classifier,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Enrich is idempotent: an existing row is returned untouched and the model is not called.
// Each model call falls back independently, so a row is always written.
func (s *EnrichmentService) Enrich(ctx context.Context, ticket *domain.Ticket) (*domain.AITicketProcessing, error) {
	existing, err := s.processing.GetByTicket(ctx, ticket.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	text := ticket.Title + "\n" + ticket.Description
	result := &domain.AITicketProcessing{
		TicketID:   ticket.ID,
		Department: s.department(ctx, ticket, text),
		Priority:   ticket.Priority,
	}
	if s.classifier != nil {
		if p, err := s.classifier.PredictPriority(ctx, text); err == nil {
			result.Priority = p
		} else {
			s.fallback(ticket, "priority", err)
		}
		if answer, err := s.classifier.DraftAnswer(ctx, text); err == nil {
			result.Answer = answer
		} else {
			s.fallback(ticket, "answer", err)
		}
	}

	created, err := s.processing.Insert(ctx, result)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another run won the race; return what it stored.
		return s.processing.GetByTicket(ctx, ticket.ID)
	}
	return result, nil
}

func (s *EnrichmentService) department(ctx context.Context, ticket *domain.Ticket, text string) domain.Department {
	fallback := ticket.Department
	if fallback == "" {
		fallback = domain.DefaultDepartment
	}
	dept, err := ai.DepartmentOr(ctx, s.classifier, text, fallback)
	if err != nil {
		s.fallback(ticket, "department", err)
	}
	return dept
}

func (s *EnrichmentService) fallback(ticket *domain.Ticket, field string, err error) {
	s.metrics.RecordFallback(fallbackClassifier)
	s.logger.Warn("classifier unavailable, using fallback",
		zap.String("ticket_id", ticket.ID),
		zap.String("field", field),
		zap.Error(err))
}
