package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/inbound"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/spam"
)

const ingestionLockKey = "helpdesk:ingestion:lock"

// Locker keeps two scheduled runs from reading the same mailbox at once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// IngestionReport summarizes one mailbox run.
type IngestionReport struct {
	Fetched    int
	Created    int
	Duplicates int
	Spam       int
	Bounces    int
	Failed     int
	Skipped    bool
}

// IngestionService turns unread mailbox messages into tickets.
type IngestionService struct {
	mailbox    inbound.Mailbox
	locker     Locker
	lockTTL    time.Duration
	accounts   *AuthService
	spam       spam.Checker
	duplicates *DuplicateDetector
	tickets    *TicketService
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// IngestionDependencies bundles collaborators.
type IngestionDependencies struct {
	Mailbox    inbound.Mailbox
	Locker     Locker
	LockTTL    time.Duration
	Accounts   *AuthService
	Spam       spam.Checker
	Duplicates *DuplicateDetector
	Tickets    *TicketService
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewIngestionService constructs the pipeline.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	s := &IngestionService{
		mailbox:    deps.Mailbox,
		locker:     deps.Locker,
		lockTTL:    deps.LockTTL,
		accounts:   deps.Accounts,
		spam:       deps.Spam,
		duplicates: deps.Duplicates,
		tickets:    deps.Tickets,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Minute
	}
	return s
}

// Run fetches unread messages once and processes them in order. A mailbox that cannot be
// opened leaves everything unread for the next run. Every fetched message is marked read,
// whether or not it produced a ticket.
func (s *IngestionService) Run(ctx context.Context) (IngestionReport, error) {
	var report IngestionReport
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, ingestionLockKey, s.lockTTL)
		if err != nil {
			s.logger.Warn("ingestion lock unavailable, running unlocked", zap.Error(err))
		} else if !ok {
			s.logger.Info("another ingestion run holds the lock, skipping")
			report.Skipped = true
			return report, nil
		} else {
			defer release()
		}
	}

	session, err := s.mailbox.Open(ctx)
	if err != nil {
		s.logger.Error("mailbox connection failed", zap.Error(err))
		return report, fmt.Errorf("open mailbox: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Debug("mailbox close failed", zap.Error(err))
		}
	}()

	uids, err := session.SearchUnseen(ctx)
	if err != nil {
		s.logger.Error("mailbox search failed", zap.Error(err))
		return report, fmt.Errorf("search unseen: %w", err)
	}
	report.Fetched = len(uids)

	for _, uid := range uids {
		if ctx.Err() != nil {
			break
		}
		outcome := s.processOne(ctx, session, uid)
		s.metrics.RecordMessage(outcome)
		switch outcome {
		case observability.OutcomeCreated:
			report.Created++
		case observability.OutcomeDuplicate:
			report.Duplicates++
		case observability.OutcomeSpam:
			report.Spam++
		case observability.OutcomeBounce:
			report.Bounces++
		default:
			report.Failed++
		}
		if err := session.MarkSeen(ctx, uid); err != nil {
			s.logger.Warn("mark seen failed", zap.Uint32("message_uid", uid), zap.Error(err))
		}
	}

	s.logger.Info("ingestion run finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("created", report.Created),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("spam", report.Spam),
		zap.Int("bounces", report.Bounces),
		zap.Int("failed", report.Failed))
	return report, nil
}

// processOne never panics and never returns an error; failures become OutcomeFailed.
func (s *IngestionService) processOne(ctx context.Context, session inbound.Session, uid uint32) (outcome string) {
	logger := s.logger.With(zap.Uint32("message_uid", uid))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message processing panicked", zap.Any("panic", r))
			outcome = observability.OutcomeFailed
		}
	}()

	raw, err := session.Fetch(ctx, uid)
	if err != nil {
		logger.Error("fetch failed", zap.Error(err))
		return observability.OutcomeFailed
	}
	msg := inbound.Parse(raw)
	logger = logger.With(zap.String("sender", msg.Sender))
	if len(msg.DecodeErrors) > 0 {
		logger.Warn("message decoded with errors", zap.Strings("parts", msg.DecodeErrors))
	}

	if inbound.IsBounce(msg.Sender, msg.Subject) {
		logger.Info("skipping delivery failure notice", zap.String("subject", msg.Subject))
		return observability.OutcomeBounce
	}
	if msg.Sender == "" {
		logger.Warn("message has no sender")
		return observability.OutcomeFailed
	}

	user, tempPassword, err := s.accounts.EnsureStudent(ctx, msg.Sender)
	if err != nil {
		logger.Error("user provisioning failed", zap.Error(err))
		return observability.OutcomeFailed
	}

	if s.spam != nil && s.spam.IsSpam(ctx, msg.Subject, msg.Body) {
		logger.Info("dropping spam", zap.String("subject", msg.Subject))
		return observability.OutcomeSpam
	}

	prior, err := s.duplicates.Find(ctx, msg.Sender, msg.Subject, msg.Body)
	if err != nil {
		logger.Error("duplicate check failed", zap.Error(err))
		return observability.OutcomeFailed
	}
	if prior != nil {
		logger.Info("duplicate submission", zap.String("ticket_id", prior.ID))
		return observability.OutcomeDuplicate
	}

	ticket, err := s.tickets.Create(ctx, TicketCreateInput{
		Creator:      user,
		SenderEmail:  msg.Sender,
		Title:        msg.Subject,
		Description:  msg.Body,
		Attachments:  msg.Attachments,
		TempPassword: tempPassword,
	})
	if err != nil {
		logger.Error("ticket creation failed", zap.Error(err))
		return observability.OutcomeFailed
	}
	logger.Info("ticket created from email",
		zap.String("ticket_id", ticket.ID),
		zap.String("department", string(ticket.Department)))
	return observability.OutcomeCreated
}
