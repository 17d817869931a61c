package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/ai"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// MergeService groups tickets that describe the same issue under a primary ticket.
type MergeService struct {
	repos      repository.Repositories
	tx         repository.Transactor
	classifier ai.Classifier
	lifecycle  *LifecycleService
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// MergeDependencies bundles collaborators.
type MergeDependencies struct {
	Repos      repository.Repositories
	Transactor repository.Transactor
	Classifier ai.Classifier
	Lifecycle  *LifecycleService
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewMergeService constructs the service.
func NewMergeService(deps MergeDependencies) *MergeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeService{
		repos:      deps.Repos,
		tx:         deps.Transactor,
		classifier: deps.Classifier,
		lifecycle:  deps.Lifecycle,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Suggestions compares the primary against other open tickets the model placed in the same
// department and records the similar ones as suggested. A failed comparison is skipped.
func (s *MergeService) Suggestions(ctx context.Context, actor *domain.User, primaryID string) ([]domain.Ticket, error) {
	if err := allowedRole(domain.ActionMerged, actor); err != nil {
		return nil, err
	}
	primary, err := s.repos.Tickets.GetByID(ctx, primaryID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": primaryID})
	}
	enrichment, err := optional(s.repos.AI.GetByTicket(ctx, primary.ID))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if enrichment == nil || s.classifier == nil {
		return []domain.Ticket{}, nil
	}
	others, err := s.repos.Tickets.ListOpenByAIDepartment(ctx, enrichment.Department, primary.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	similar := make([]domain.Ticket, 0)
	var group *domain.MergedTicket
	for _, candidate := range others {
		same, err := s.classifier.SameIssue(ctx, ticketText(primary), ticketText(&candidate))
		if err != nil {
			s.metrics.RecordFallback(fallbackClassifier)
			s.logger.Warn("merge similarity check failed",
				zap.String("ticket_id", primary.ID),
				zap.String("candidate_id", candidate.ID),
				zap.Error(err))
			continue
		}
		if !same {
			continue
		}
		if group == nil {
			if group, err = s.repos.Merges.GetOrCreate(ctx, primary.ID); err != nil {
				return nil, apperrors.MapError(err)
			}
		}
		if err := s.repos.Merges.AddSuggested(ctx, group.ID, candidate.ID); err != nil {
			return nil, apperrors.MapError(err)
		}
		similar = append(similar, candidate)
	}
	return similar, nil
}

// MergeOutcome reports the state after a toggle.
type MergeOutcome struct {
	Candidate *domain.Ticket
	Group     *domain.MergedTicket
	Approved  bool
}

// Toggle merges candidate into primary, or unmerges it when it is already approved.
// Applying it twice restores the original approved set.
func (s *MergeService) Toggle(ctx context.Context, actor *domain.User, primaryID, candidateID string) (*MergeOutcome, error) {
	if err := allowedRole(domain.ActionMerged, actor); err != nil {
		return nil, err
	}
	if primaryID == candidateID {
		return nil, apperrors.NewValidationError("a ticket cannot be merged into itself", nil)
	}

	outcome := &MergeOutcome{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		primary, candidate, err := lockPair(ctx, repos.Tickets, primaryID, candidateID)
		if err != nil {
			return err
		}
		if err := authorize(domain.ActionMerged, actor, primary); err != nil {
			return err
		}
		if err := authorize(domain.ActionMerged, actor, candidate); err != nil {
			return err
		}

		group, err := repos.Merges.GetOrCreate(ctx, primary.ID)
		if err != nil {
			return err
		}
		var comment string
		if group.IsApproved(candidate.ID) {
			if err := repos.Merges.RemoveApproved(ctx, group.ID, candidate.ID); err != nil {
				return err
			}
			group.Approved = without(group.Approved, candidate.ID)
			comment = fmt.Sprintf("Unmerged from ticket %s", primary.ID)
		} else {
			if err := repos.Merges.AddApproved(ctx, group.ID, candidate.ID); err != nil {
				return err
			}
			group.Approved = append(group.Approved, candidate.ID)
			outcome.Approved = true
			comment = fmt.Sprintf("Merged into ticket %s", primary.ID)
		}

		candidate.ApplyMerge(actor)
		if err := candidate.CheckConsistency(); err != nil {
			return apperrors.NewInternalError(err)
		}
		if err := repos.Tickets.Update(ctx, candidate); err != nil {
			return err
		}
		if err := repos.Activities.Create(ctx, domain.NewActivity(candidate, actor, comment)); err != nil {
			return err
		}
		outcome.Candidate = candidate
		outcome.Group = group
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordTransition(string(domain.ActionMerged))
	s.lifecycle.publish(ctx, events.Event{
		Type:     events.EventTicketMerged,
		TicketID: candidateID,
		Actor:    actorOf(actor),
		Payload:  events.TicketMergedPayload{PrimaryTicketID: primaryID, Approved: outcome.Approved},
	})
	return outcome, nil
}

// lockPair locks both rows in id order so concurrent toggles cannot deadlock.
func lockPair(ctx context.Context, tickets repository.TicketRepository, primaryID, candidateID string) (*domain.Ticket, *domain.Ticket, error) {
	first, second := primaryID, candidateID
	if second < first {
		first, second = second, first
	}
	a, err := tickets.GetForUpdate(ctx, first)
	if err != nil {
		return nil, nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": first})
	}
	b, err := tickets.GetForUpdate(ctx, second)
	if err != nil {
		return nil, nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": second})
	}
	if a.ID == primaryID {
		return a, b, nil
	}
	return b, a, nil
}

func ticketText(t *domain.Ticket) string {
	return t.Title + "\n" + t.Description
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
