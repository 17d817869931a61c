package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/ai"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// capability declares who may trigger a transition.
// owner, when set, narrows the role check to a relationship with the ticket.
type capability struct {
	roles map[domain.Role]struct{}
	owner func(actor *domain.User, ticket *domain.Ticket) bool
	// staffGate requires the ticket to be open to the actor's role.
	staffGate bool
}

func roles(rs ...domain.Role) map[domain.Role]struct{} {
	set := make(map[domain.Role]struct{}, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

func isCreator(actor *domain.User, t *domain.Ticket) bool {
	return t.CreatorID == actor.ID
}

// programOfficerOrAssignee admits any program officer and the specialist who owns the ticket.
func programOfficerOrAssignee(actor *domain.User, t *domain.Ticket) bool {
	return actor.Role == domain.RoleProgramOfficer || t.IsAssignedTo(actor.ID)
}

var capabilities = map[domain.Action]capability{
	domain.ActionResponded: {
		roles:     roles(domain.RoleProgramOfficer, domain.RoleSpecialist),
		owner:     programOfficerOrAssignee,
		staffGate: true,
	},
	domain.ActionReturned: {
		roles:     roles(domain.RoleProgramOfficer, domain.RoleSpecialist),
		owner:     programOfficerOrAssignee,
		staffGate: true,
	},
	domain.ActionPriorityUpdated: {
		roles: roles(domain.RoleProgramOfficer, domain.RoleSpecialist),
		owner: programOfficerOrAssignee,
	},
	domain.ActionStatusUpdated: {
		roles: roles(domain.RoleStudent, domain.RoleProgramOfficer, domain.RoleSpecialist, domain.RoleOther),
		owner: isCreator,
	},
	domain.ActionClosed: {
		roles: roles(domain.RoleStudent, domain.RoleProgramOfficer, domain.RoleSpecialist, domain.RoleOther),
		owner: isCreator,
	},
	domain.ActionRedirected: {roles: roles(domain.RoleProgramOfficer)},
	domain.ActionMerged:     {roles: roles(domain.RoleProgramOfficer)},
}

// allowedRole is the pre-check done before any remote call or lock.
func allowedRole(action domain.Action, actor *domain.User) error {
	if actor == nil {
		return apperrors.ErrPermissionDenied
	}
	c, ok := capabilities[action]
	if !ok {
		return apperrors.ErrPermissionDenied
	}
	if _, ok := c.roles[actor.Role]; !ok {
		return apperrors.ErrPermissionDenied
	}
	return nil
}

// authorize is the single gate every transition passes before mutating anything.
func authorize(action domain.Action, actor *domain.User, ticket *domain.Ticket) error {
	if err := allowedRole(action, actor); err != nil {
		return err
	}
	c := capabilities[action]
	if c.owner != nil && !c.owner(actor, ticket) {
		return apperrors.ErrPermissionDenied
	}
	if !ticket.IsOpen() {
		return apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}
	if c.staffGate && !ticket.CanBeManagedBy(actor.Role) {
		return apperrors.NewConflict("ticket is waiting for the student", map[string]any{"ticket_id": ticket.ID})
	}
	return nil
}

// LifecycleService drives every ticket transition after creation.
type LifecycleService struct {
	repos      repository.Repositories
	tx         repository.Transactor
	classifier ai.Classifier
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators.
type LifecycleDependencies struct {
	Repos      repository.Repositories
	Transactor repository.Transactor
	Classifier ai.Classifier
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		repos:      deps.Repos,
		tx:         deps.Transactor,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// transition locks the ticket, checks permission, applies mutate and writes the ticket
// together with exactly one activity row. Nothing is written when any step fails.
func (s *LifecycleService) transition(
	ctx context.Context,
	action domain.Action,
	actor *domain.User,
	ticketID string,
	mutate func(t *domain.Ticket) (comment string, err error),
) (*domain.Ticket, error) {
	if err := allowedRole(action, actor); err != nil {
		return nil, err
	}
	var updated *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
		}
		if err := authorize(action, actor, ticket); err != nil {
			return err
		}
		comment, err := mutate(ticket)
		if err != nil {
			return err
		}
		if ticket.LatestAction != action {
			return apperrors.NewInternalError(fmt.Errorf("transition %s recorded as %s", action, ticket.LatestAction))
		}
		if err := ticket.CheckConsistency(); err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if err := repos.Activities.Create(ctx, domain.NewActivity(ticket, actor, comment)); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.metrics.RecordTransition(string(action))
	return updated, nil
}

// ResponseOutcome reports how a response spread across a merge group.
type ResponseOutcome struct {
	Ticket     *domain.Ticket
	Propagated []string
	Failed     map[string]error
}

// Respond appends the responder's message, then fans it out to every approved merged ticket.
// Each merged ticket is updated in its own transaction; a failure there is logged and does
// not undo the primary.
func (s *LifecycleService) Respond(ctx context.Context, actor *domain.User, ticketID, message string) (*ResponseOutcome, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.NewValidationError("response message is required", nil)
	}
	ticket, err := s.transition(ctx, domain.ActionResponded, actor, ticketID, func(t *domain.Ticket) (string, error) {
		t.ApplyResponse(actor, message)
		return message, nil
	})
	if err != nil {
		return nil, err
	}
	s.publishResponded(ctx, actor, ticket, message, "")

	outcome := &ResponseOutcome{Ticket: ticket, Failed: map[string]error{}}
	group, err := optional(s.repos.Merges.GetByPrimary(ctx, ticket.ID))
	if err != nil {
		s.logger.Error("loading merge group failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return outcome, nil
	}
	if group == nil {
		return outcome, nil
	}
	for _, mergedID := range group.Approved {
		merged, err := s.propagateResponse(ctx, actor, ticket.ID, mergedID, message)
		if err != nil {
			outcome.Failed[mergedID] = err
			s.logger.Warn("merged ticket response failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("merged_ticket_id", mergedID),
				zap.Error(err))
			continue
		}
		if merged == nil {
			continue
		}
		outcome.Propagated = append(outcome.Propagated, mergedID)
		s.publishResponded(ctx, actor, merged, message, ticket.ID)
	}
	return outcome, nil
}

// propagateResponse applies a primary's response to one merged ticket. Closed tickets are skipped.
// A ticket returned to its student is left alone and reported as a conflict.
func (s *LifecycleService) propagateResponse(ctx context.Context, actor *domain.User, primaryID, mergedID, message string) (*domain.Ticket, error) {
	var updated *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(ctx, mergedID)
		if err != nil {
			return err
		}
		if !ticket.IsOpen() {
			return nil
		}
		if ticket.NeedStudentUpdate {
			return apperrors.NewConflict("ticket is waiting for the student", map[string]any{"ticket_id": ticket.ID})
		}
		ticket.ApplyResponse(actor, message)
		if err := ticket.CheckConsistency(); err != nil {
			return err
		}
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		comment := fmt.Sprintf("Response from merged ticket %s: %s", primaryID, message)
		if err := repos.Activities.Create(ctx, domain.NewActivity(ticket, actor, comment)); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.metrics.RecordTransition(string(domain.ActionResponded))
	}
	return updated, nil
}

func (s *LifecycleService) publishResponded(ctx context.Context, actor *domain.User, ticket *domain.Ticket, message, mergedFrom string) {
	s.publish(ctx, events.Event{
		Type:     events.EventTicketResponded,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketRespondedPayload{
			Title:        ticket.Title,
			CreatorEmail: ticket.SenderEmail,
			Responder:    actor.Username,
			Message:      message,
			MergedFrom:   mergedFrom,
		},
	})
}

// Return hands the ticket back to the student with a reason.
func (s *LifecycleService) Return(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("return reason is required", nil)
	}
	ticket, err := s.transition(ctx, domain.ActionReturned, actor, ticketID, func(t *domain.Ticket) (string, error) {
		t.ApplyReturn(actor, reason)
		return reason, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketReturned,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketReturnedPayload{
			Title:        ticket.Title,
			CreatorEmail: ticket.SenderEmail,
			Reason:       reason,
		},
	})
	return ticket, nil
}

// Update lets the creator add information. The staff member who last owned the ticket is
// notified unless they are the updater.
func (s *LifecycleService) Update(ctx context.Context, actor *domain.User, ticketID, supplement string) (*domain.Ticket, error) {
	supplement = strings.TrimSpace(supplement)
	if supplement == "" {
		return nil, apperrors.NewValidationError("supplement text is required", nil)
	}
	var previousStaff *string
	ticket, err := s.transition(ctx, domain.ActionStatusUpdated, actor, ticketID, func(t *domain.Ticket) (string, error) {
		previousStaff = t.LatestEditorID
		if t.AssigneeID != nil && *t.AssigneeID != t.CreatorID {
			previousStaff = t.AssigneeID
		}
		t.ApplyUpdate(actor, supplement)
		// A returned ticket goes back to the program officers' queue.
		if t.AssigneeID != nil && *t.AssigneeID == t.CreatorID {
			t.AssigneeID = nil
		}
		return supplement, nil
	})
	if err != nil {
		return nil, err
	}
	payload := events.TicketUpdatedPayload{Title: ticket.Title, Supplement: supplement}
	if previousStaff != nil && *previousStaff != actor.ID {
		if staff, err := s.repos.Users.GetByID(ctx, *previousStaff); err == nil {
			payload.StaffEmail = staff.Email
		} else {
			s.logger.Warn("could not load staff to notify", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload:  payload,
	})
	return ticket, nil
}

// Close lets the creator close the ticket. The daily report is written after the commit
// and a failure there only gets logged.
func (s *LifecycleService) Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.transition(ctx, domain.ActionClosed, actor, ticketID, func(t *domain.Ticket) (string, error) {
		t.ApplyClose(actor)
		return "Closed by creator", nil
	})
	if err != nil {
		return nil, err
	}
	s.recordClosure(ctx, ticket, domain.ClosureManual)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload: events.TicketClosedPayload{
			Title:        ticket.Title,
			CreatorEmail: ticket.SenderEmail,
			Department:   ticket.Department,
			Kind:         domain.ClosureManual,
		},
	})
	return ticket, nil
}

func (s *LifecycleService) recordClosure(ctx context.Context, ticket *domain.Ticket, kind domain.ClosureKind) {
	if err := s.repos.Reports.Increment(ctx, s.now(), ticket.Department, kind); err != nil {
		s.logger.Error("closure report update failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("department", string(ticket.Department)),
			zap.Error(err))
	}
}

// ChangePriority sets a new priority.
func (s *LifecycleService) ChangePriority(ctx context.Context, actor *domain.User, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if _, ok := domain.ParsePriority(string(priority)); !ok {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	var old domain.TicketPriority
	ticket, err := s.transition(ctx, domain.ActionPriorityUpdated, actor, ticketID, func(t *domain.Ticket) (string, error) {
		old = t.Priority
		t.ApplyPriority(actor, priority)
		return fmt.Sprintf("Priority changed from %s to %s", old, priority), nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventPriorityChanged,
		TicketID: ticket.ID,
		Actor:    actorOf(actor),
		Payload:  events.TicketPriorityChangedPayload{OldPriority: old, NewPriority: priority},
	})
	return ticket, nil
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.now, event)
}
