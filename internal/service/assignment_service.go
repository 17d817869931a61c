package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/ai"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// TargetKind tells a human assignee apart from the department-only placeholder.
type TargetKind string

const (
	TargetHuman      TargetKind = "human"
	TargetUnassigned TargetKind = "unassigned"
)

// AssignmentTarget is where a redirect sends a ticket.
type AssignmentTarget struct {
	Kind         TargetKind
	SpecialistID string
	// Department is only read for TargetUnassigned. Empty means "ask the classifier".
	Department domain.Department
}

// HumanTarget assigns a concrete specialist.
func HumanTarget(specialistID string) AssignmentTarget {
	return AssignmentTarget{Kind: TargetHuman, SpecialistID: specialistID}
}

// UnassignedTarget routes to a department without an owner.
func UnassignedTarget(department domain.Department) AssignmentTarget {
	return AssignmentTarget{Kind: TargetUnassigned, Department: department}
}

// Candidate is one row of the redirect picker.
type Candidate struct {
	Target      AssignmentTarget
	UserID      string
	Username    string
	DisplayName string
	Department  domain.Department
	OpenTickets int
	Recommended bool
}

// CandidateList is the ranked redirect picker for one ticket.
type CandidateList struct {
	RecommendedDepartment domain.Department
	// ClassifierFallback is set when the department came from the ticket instead of the model.
	ClassifierFallback bool
	Recommended        []Candidate
	Others             []Candidate
	// Placeholder is present only when no specialist covers the recommended department.
	Placeholder *Candidate
}

// All returns the candidates in display order.
func (l *CandidateList) All() []Candidate {
	out := make([]Candidate, 0, len(l.Recommended)+len(l.Others)+1)
	out = append(out, l.Recommended...)
	if l.Placeholder != nil {
		out = append(out, *l.Placeholder)
	}
	return append(out, l.Others...)
}

// AssignmentService ranks specialists for a ticket and redirects it.
type AssignmentService struct {
	repos      repository.Repositories
	classifier ai.Classifier
	lifecycle  *LifecycleService
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	Repos      repository.Repositories
	Classifier ai.Classifier
	Lifecycle  *LifecycleService
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repos:      deps.Repos,
		classifier: deps.Classifier,
		lifecycle:  deps.Lifecycle,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// recommendDepartment asks the classifier and falls back to the ticket's department.
// It never fails.
func (s *AssignmentService) recommendDepartment(ctx context.Context, ticket *domain.Ticket) (domain.Department, bool) {
	fallback := ticket.Department
	if fallback == "" {
		fallback = domain.DefaultDepartment
	}
	dept, err := ai.DepartmentOr(ctx, s.classifier, ticket.Description, fallback)
	if err != nil {
		s.metrics.RecordFallback(fallbackClassifier)
		s.logger.Warn("classifier unavailable, using ticket department",
			zap.String("ticket_id", ticket.ID),
			zap.String("department", string(fallback)),
			zap.Error(err))
		return dept, true
	}
	return dept, false
}

// Candidates ranks every specialist by open workload, recommended department first.
func (s *AssignmentService) Candidates(ctx context.Context, actor *domain.User, ticketID string) (*CandidateList, error) {
	if err := allowedRole(domain.ActionRedirected, actor); err != nil {
		return nil, err
	}
	ticket, err := s.repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	dept, fellBack := s.recommendDepartment(ctx, ticket)

	specialists, err := s.repos.Users.ListByRole(ctx, domain.RoleSpecialist)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	load, err := s.repos.Tickets.CountOpenByAssignee(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	excluded, err := s.returnedBy(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rankCandidates(specialists, load, excluded, dept, fellBack), nil
}

// rankCandidates orders least-loaded first, then by username, and splits by department match.
func rankCandidates(specialists []domain.User, load map[string]int, excluded map[string]bool, dept domain.Department, fellBack bool) *CandidateList {
	list := &CandidateList{RecommendedDepartment: dept, ClassifierFallback: fellBack}
	all := make([]Candidate, 0, len(specialists))
	for _, sp := range specialists {
		if excluded[sp.ID] {
			continue
		}
		var spDept domain.Department
		if sp.Department != nil {
			spDept = *sp.Department
		}
		all = append(all, Candidate{
			Target:      HumanTarget(sp.ID),
			UserID:      sp.ID,
			Username:    sp.Username,
			DisplayName: sp.DisplayName(),
			Department:  spDept,
			OpenTickets: load[sp.ID],
			Recommended: domain.SameDepartment(string(spDept), string(dept)),
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].OpenTickets != all[j].OpenTickets {
			return all[i].OpenTickets < all[j].OpenTickets
		}
		return all[i].Username < all[j].Username
	})
	for _, c := range all {
		if c.Recommended {
			list.Recommended = append(list.Recommended, c)
		} else {
			list.Others = append(list.Others, c)
		}
	}
	if len(list.Recommended) == 0 {
		list.Placeholder = &Candidate{
			Target:      UnassignedTarget(dept),
			DisplayName: fmt.Sprintf("AI recommended: %s (unassigned)", dept),
			Department:  dept,
			Recommended: true,
		}
	}
	return list
}

// returnedBy collects specialists and officers who already sent this ticket back.
func (s *AssignmentService) returnedBy(ctx context.Context, ticketID string) (map[string]bool, error) {
	activities, err := s.repos.Activities.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, a := range activities {
		if a.Action == domain.ActionReturned && a.ActorID != nil {
			out[*a.ActorID] = true
		}
	}
	return out, nil
}

// Redirect moves the ticket to a specialist, or to a department with nobody owning it yet.
func (s *AssignmentService) Redirect(ctx context.Context, actor *domain.User, ticketID string, target AssignmentTarget) (*domain.Ticket, error) {
	if err := allowedRole(domain.ActionRedirected, actor); err != nil {
		return nil, err
	}

	var (
		assigneeID *string
		assignee   *domain.User
		dept       domain.Department
		comment    string
	)
	switch target.Kind {
	case TargetHuman:
		specialist, err := s.repos.Users.GetByID(ctx, target.SpecialistID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("unknown specialist", map[string]any{"specialist_id": target.SpecialistID})
			}
			return nil, apperrors.MapError(err)
		}
		if specialist.Role != domain.RoleSpecialist || specialist.Department == nil {
			return nil, apperrors.NewValidationError("redirect target is not a specialist", map[string]any{"user_id": specialist.ID})
		}
		assignee = specialist
		assigneeID = &specialist.ID
		dept = *specialist.Department
		comment = "Redirected to " + specialist.Username
	case TargetUnassigned:
		dept = target.Department
		if dept == "" {
			ticket, err := s.repos.Tickets.GetByID(ctx, ticketID)
			if err != nil {
				return nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
			}
			dept, _ = s.recommendDepartment(ctx, ticket)
		} else if parsed, ok := domain.ParseDepartment(string(dept)); ok {
			dept = parsed
		} else {
			return nil, apperrors.NewValidationError("unknown department", map[string]any{"department": dept})
		}
		comment = fmt.Sprintf("Redirected to %s (unassigned)", strings.ReplaceAll(string(dept), "_", " "))
	default:
		return nil, apperrors.NewValidationError("unknown redirect target", nil)
	}

	ticket, err := s.lifecycle.transition(ctx, domain.ActionRedirected, actor, ticketID, func(t *domain.Ticket) (string, error) {
		t.ApplyRedirect(actor, assigneeID, dept)
		return comment, nil
	})
	if err != nil {
		return nil, err
	}

	payload := events.TicketRedirectedPayload{
		Title:      ticket.Title,
		AssigneeID: assigneeID,
		Department: dept,
	}
	if assignee != nil {
		payload.AssigneeEmail = assignee.Email
	}
	s.lifecycle.publish(ctx, events.Event{
		Type:     events.EventTicketRedirected,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload:  payload,
	})
	return ticket, nil
}
