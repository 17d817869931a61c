package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/notify"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
)

// DuplicateWindow is how long a ticket blocks identical resubmissions regardless of responses.
const DuplicateWindow = 7 * 24 * time.Hour

// DuplicateDetector finds an earlier ticket that makes a new submission redundant.
type DuplicateDetector struct {
	tickets    repository.TicketRepository
	activities repository.TicketActivityRepository
	sender     notify.Sender
	logger     *zap.Logger
	now        func() time.Time
}

// DuplicateDependencies bundles collaborators for the detector.
type DuplicateDependencies struct {
	TicketRepo   repository.TicketRepository
	ActivityRepo repository.TicketActivityRepository
	Sender       notify.Sender
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewDuplicateDetector constructs the detector.
func NewDuplicateDetector(deps DuplicateDependencies) *DuplicateDetector {
	d := &DuplicateDetector{
		tickets:    deps.TicketRepo,
		activities: deps.ActivityRepo,
		sender:     deps.Sender,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Find returns the conflicting ticket, or nil when a new ticket may be created.
// A duplicate always triggers a notice to the sender.
func (d *DuplicateDetector) Find(ctx context.Context, sender, subject, body string) (*domain.Ticket, error) {
	match, err := d.latestMatch(ctx, sender, subject, body)
	if err != nil || match == nil {
		return nil, err
	}
	responses, err := d.activities.CountByAction(ctx, match.ID, domain.ActionResponded)
	if err != nil {
		return nil, err
	}
	if !isDuplicate(match, responses, d.now()) {
		return nil, nil
	}
	d.notify(ctx, sender, subject, match)
	return match, nil
}

func (d *DuplicateDetector) latestMatch(ctx context.Context, sender, subject, body string) (*domain.Ticket, error) {
	previous, err := d.tickets.ListBySender(ctx, sender)
	if err != nil {
		return nil, err
	}
	subject, body = normalizeText(subject), normalizeText(body)
	var latest *domain.Ticket
	for i := range previous {
		t := &previous[i]
		if normalizeText(t.Title) != subject || normalizeText(t.Description) != body {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	return latest, nil
}

// isDuplicate applies the window rule: inside the window any match blocks,
// outside it only an answered match does.
func isDuplicate(match *domain.Ticket, responses int, now time.Time) bool {
	if now.Sub(match.CreatedAt) <= DuplicateWindow {
		return true
	}
	return responses > 0
}

func (d *DuplicateDetector) notify(ctx context.Context, sender, subject string, prior *domain.Ticket) {
	if d.sender == nil {
		return
	}
	if err := d.sender.Send(ctx, notify.Duplicate(sender, subject, prior.ID)); err != nil {
		d.logger.Error("duplicate notice failed",
			zap.String("sender", sender),
			zap.String("ticket_id", prior.ID),
			zap.Error(err))
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
