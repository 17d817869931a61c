package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
)

// SweepReport summarizes one inactivity sweep.
type SweepReport struct {
	Closed    int
	Escalated int
	Failed    int
}

// Sweep closes tickets nobody touched for CloseAfter and escalates those idle for EscalateAfter.
// Escalation leaves updated_at alone so the close clock keeps running.
func (s *LifecycleService) Sweep(ctx context.Context, cfg config.SweepConfig) (SweepReport, error) {
	var report SweepReport
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = 7 * 24 * time.Hour
	}
	if cfg.EscalateAfter <= 0 || cfg.EscalateAfter > cfg.CloseAfter {
		cfg.EscalateAfter = cfg.CloseAfter - 24*time.Hour
	}
	now := s.now()
	closeBefore := now.Add(-cfg.CloseAfter)
	escalateBefore := now.Add(-cfg.EscalateAfter)

	stale, err := s.repos.Tickets.ListStale(ctx, escalateBefore)
	if err != nil {
		return report, err
	}
	for _, candidate := range stale {
		var err error
		switch {
		case candidate.UpdatedAt.Before(closeBefore):
			var closed bool
			closed, err = s.autoClose(ctx, candidate.ID, closeBefore)
			if closed {
				report.Closed++
			}
		case candidate.Priority != domain.TicketPriorityUrgent:
			var escalated bool
			escalated, err = s.escalate(ctx, candidate.ID, escalateBefore)
			if escalated {
				report.Escalated++
			}
		}
		if err != nil {
			report.Failed++
			s.logger.Warn("inactivity sweep failed for ticket", zap.String("ticket_id", candidate.ID), zap.Error(err))
		}
	}
	s.logger.Info("inactivity sweep finished",
		zap.Int("closed", report.Closed),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *LifecycleService) autoClose(ctx context.Context, ticketID string, before time.Time) (bool, error) {
	var closed *domain.Ticket
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		t, err := repos.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		// Someone may have touched it since the listing.
		if !t.IsOpen() || !t.UpdatedAt.Before(before) {
			return nil
		}
		t.ApplyClose(nil)
		if err := t.CheckConsistency(); err != nil {
			return err
		}
		if err := repos.Tickets.Update(ctx, t); err != nil {
			return err
		}
		if err := repos.Activities.Create(ctx, domain.NewActivity(t, nil, "Closed automatically after inactivity")); err != nil {
			return err
		}
		closed = t
		return nil
	})
	if err != nil || closed == nil {
		return false, err
	}
	s.metrics.RecordTransition(string(domain.ActionClosed))
	s.recordClosure(ctx, closed, domain.ClosureInactivity)
	s.publish(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: closed.ID,
		Actor:    events.SystemActor,
		Payload: events.TicketClosedPayload{
			Title:        closed.Title,
			CreatorEmail: closed.SenderEmail,
			Department:   closed.Department,
			Kind:         domain.ClosureInactivity,
		},
	})
	return true, nil
}

func (s *LifecycleService) escalate(ctx context.Context, ticketID string, before time.Time) (bool, error) {
	escalated := false
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		t, err := repos.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !t.IsOpen() || t.Priority == domain.TicketPriorityUrgent || !t.UpdatedAt.Before(before) {
			return nil
		}
		t.ApplyPriority(nil, domain.TicketPriorityUrgent)
		if err := repos.Tickets.Escalate(ctx, t); err != nil {
			return err
		}
		if err := repos.Activities.Create(ctx, domain.NewActivity(t, nil, "Escalated to urgent after inactivity")); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if escalated {
		s.metrics.RecordTransition(string(domain.ActionPriorityUpdated))
	}
	return escalated, nil
}
