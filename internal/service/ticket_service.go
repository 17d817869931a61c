package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/inbound"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	"github.com/spec-kit/helpdesk-intake/internal/storage"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// TicketService creates tickets and serves them back to the people allowed to see them.
type TicketService struct {
	repos      repository.Repositories
	tx         repository.Transactor
	duplicates *DuplicateDetector
	rules      KeywordRules
	enricher   *EnrichmentService
	store      storage.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Repos      repository.Repositories
	Transactor repository.Transactor
	Duplicates *DuplicateDetector
	Rules      KeywordRules
	Enricher   *EnrichmentService
	Store      storage.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		repos:      deps.Repos,
		tx:         deps.Transactor,
		duplicates: deps.Duplicates,
		rules:      deps.Rules,
		enricher:   deps.Enricher,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.rules == nil {
		s.rules = DefaultKeywordRules()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TicketCreateInput describes a new ticket from any channel.
type TicketCreateInput struct {
	Creator      *domain.User
	SenderEmail  string
	Title        string
	Description  string
	Attachments  []inbound.Attachment
	TempPassword string
}

// TicketDetail is a ticket with everything hanging off it.
type TicketDetail struct {
	Ticket      *domain.Ticket
	Activities  []domain.TicketActivity
	Attachments []domain.TicketAttachment
	AI          *domain.AITicketProcessing
	Merge       *domain.MergedTicket
}

// TicketListFilter describes listing filters. Visibility scoping is applied on top.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Department *domain.Department
	SearchTerm *string
	Limit      int
	Offset     int
}

// Create routes the ticket by keyword rules, stores it with its created activity in one
// transaction, then persists attachments, enriches it and announces it. Steps after the
// commit are best effort.
func (s *TicketService) Create(ctx context.Context, in TicketCreateInput) (*domain.Ticket, error) {
	if in.Creator == nil {
		return nil, apperrors.NewValidationError("creator is required", nil)
	}
	sender := in.SenderEmail
	if sender == "" {
		sender = in.Creator.Email
	}
	department := s.rules.Classify(in.Title, in.Description)
	ticket := domain.NewTicket(in.Title, in.Description, department, in.Creator, sender)
	if err := ticket.CheckConsistency(); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return repos.Activities.Create(ctx, domain.NewActivity(ticket, in.Creator, "Ticket created"))
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordTicketCreated()
	s.metrics.RecordTransition(string(domain.ActionCreated))

	s.saveAttachments(ctx, ticket, in.Attachments)
	if s.enricher != nil {
		if _, err := s.enricher.Enrich(ctx, ticket); err != nil {
			s.logger.Warn("ticket enrichment failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(in.Creator),
		Payload: events.TicketCreatedPayload{
			Title:        ticket.Title,
			Department:   ticket.Department,
			CreatorEmail: ticket.SenderEmail,
			TempPassword: in.TempPassword,
		},
	})
	return ticket, nil
}

// Submit is the authenticated web submission path. It shares the duplicate gate with ingestion.
func (s *TicketService) Submit(ctx context.Context, user *domain.User, title, description string) (*domain.Ticket, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if user.Role != domain.RoleStudent {
		return nil, apperrors.ErrPermissionDenied
	}
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description are required", nil)
	}
	if s.duplicates != nil {
		prior, err := s.duplicates.Find(ctx, user.Email, title, description)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if prior != nil {
			return nil, apperrors.NewConflict("duplicate ticket", map[string]any{"ticket_id": prior.ID})
		}
	}
	return s.Create(ctx, TicketCreateInput{Creator: user, SenderEmail: user.Email, Title: title, Description: description})
}

func (s *TicketService) saveAttachments(ctx context.Context, ticket *domain.Ticket, attachments []inbound.Attachment) {
	if s.store == nil || len(attachments) == 0 {
		return
	}
	for i, att := range attachments {
		key := storage.AttachmentKey(ticket.SenderEmail, s.now(), ticket.ID, i+1, att.FileName)
		locator, err := s.store.Put(ctx, key, att.Data, att.ContentType)
		if err != nil {
			s.logger.Warn("attachment upload failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("file_name", att.FileName),
				zap.Error(err))
			continue
		}
		row := &domain.TicketAttachment{
			TicketID:    ticket.ID,
			Locator:     locator,
			FileName:    att.FileName,
			ContentType: att.ContentType,
			SizeBytes:   int64(len(att.Data)),
		}
		if err := s.repos.Attachments.Create(ctx, row); err != nil {
			s.logger.Warn("attachment record failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("file_name", att.FileName),
				zap.Error(err))
		}
	}
}

// Get returns a ticket with its activities, attachments, enrichment and merge group.
func (s *TicketService) Get(ctx context.Context, user *domain.User, ticketID string) (*TicketDetail, error) {
	ticket, err := s.repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !canView(user, ticket) {
		return nil, apperrors.ErrPermissionDenied
	}
	detail := &TicketDetail{Ticket: ticket}
	if detail.Activities, err = s.repos.Activities.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.Attachments, err = s.repos.Attachments.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.AI, err = optional(s.repos.AI.GetByTicket(ctx, ticket.ID)); err != nil {
		return nil, apperrors.MapError(err)
	}
	if detail.Merge, err = optional(s.repos.Merges.GetByPrimary(ctx, ticket.ID)); err != nil {
		return nil, apperrors.MapError(err)
	}
	return detail, nil
}

// List returns tickets visible to the user: students their own, specialists their assigned ones,
// program officers everything.
func (s *TicketService) List(ctx context.Context, user *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Department: filter.Department,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch user.Role {
	case domain.RoleProgramOfficer:
	case domain.RoleSpecialist:
		repoFilter.AssigneeID = &user.ID
	default:
		repoFilter.CreatorID = &user.ID
	}
	tickets, err := s.repos.Tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Attachment returns the metadata and bytes of one attachment.
func (s *TicketService) Attachment(ctx context.Context, user *domain.User, ticketID, attachmentID string) (*domain.TicketAttachment, []byte, error) {
	ticket, err := s.repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !canView(user, ticket) {
		return nil, nil, apperrors.ErrPermissionDenied
	}
	attachments, err := s.repos.Attachments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	for i := range attachments {
		if attachments[i].ID != attachmentID {
			continue
		}
		if s.store == nil {
			return nil, nil, apperrors.NewInternalError(errors.New("attachment store not configured"))
		}
		data, err := s.store.Get(ctx, attachments[i].Locator)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
			}
			return nil, nil, apperrors.NewInternalError(err)
		}
		return &attachments[i], data, nil
	}
	return nil, nil, apperrors.NewNotFound("attachment", map[string]any{"attachment_id": attachmentID})
}

// Reset deletes every ticket and everything that cascades from it.
func (s *TicketService) Reset(ctx context.Context) (int64, error) {
	deleted, err := s.repos.Tickets.DeleteAll(ctx)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.logger.Warn("all tickets deleted", zap.Int64("count", deleted))
	return deleted, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.now, event)
}

func canView(user *domain.User, ticket *domain.Ticket) bool {
	if user == nil {
		return false
	}
	switch {
	case user.Role == domain.RoleProgramOfficer:
		return true
	case ticket.CreatorID == user.ID:
		return true
	case ticket.IsAssignedTo(user.ID):
		return true
	}
	return false
}

// optional turns a not-found result into nil.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func actorOf(user *domain.User) events.Actor {
	if user == nil {
		return events.SystemActor
	}
	id := user.ID
	return events.Actor{UserID: &id, Role: user.Role}
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, now func() time.Time, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}
