package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time            { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// harness wires every service against the in-memory store.
type harness struct {
	clock      *testClock
	store      *memStore
	classifier *stubClassifier
	sender     *recordingSender
	blobs      *memBlobStore
	events     *eventLog

	auth       *AuthService
	staff      *StaffService
	duplicates *DuplicateDetector
	tickets    *TicketService
	lifecycle  *LifecycleService
	assignment *AssignmentService
	merges     *MergeService
	reports    *ReportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.now)
	repos := store.repos()
	classifier := &stubClassifier{
		department: domain.DepartmentITSupport,
		priority:   domain.TicketPriorityHigh,
		answer:     "Try forgetting the network and reconnecting.",
	}
	sender := &recordingSender{}
	blobs := newMemBlobStore()
	dispatcher := events.NewInMemoryDispatcher(nil)
	log := &eventLog{}
	log.attach(dispatcher)
	NewNotificationService(dispatcher, sender, nil).RegisterHandlers()

	authCfg := config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost}
	h := &harness{
		clock:      clock,
		store:      store,
		classifier: classifier,
		sender:     sender,
		blobs:      blobs,
		events:     log,
	}
	h.auth = NewAuthService(authCfg, AuthDependencies{UserRepo: repos.Users})
	h.staff = NewStaffService(authCfg, OrgDependencies{DepartmentRepo: repos.Departments, UserRepo: repos.Users})
	h.duplicates = NewDuplicateDetector(DuplicateDependencies{
		TicketRepo:   repos.Tickets,
		ActivityRepo: repos.Activities,
		Sender:       sender,
		Now:          clock.now,
	})
	enricher := NewEnrichmentService(EnrichmentDependencies{AIRepo: repos.AI, Classifier: classifier})
	h.tickets = NewTicketService(TicketDependencies{
		Repos:      repos,
		Transactor: store,
		Duplicates: h.duplicates,
		Rules:      DefaultKeywordRules(),
		Enricher:   enricher,
		Store:      blobs,
		Dispatcher: dispatcher,
		Now:        clock.now,
	})
	h.lifecycle = NewLifecycleService(LifecycleDependencies{
		Repos:      repos,
		Transactor: store,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Now:        clock.now,
	})
	h.assignment = NewAssignmentService(AssignmentDependencies{
		Repos:      repos,
		Classifier: classifier,
		Lifecycle:  h.lifecycle,
	})
	h.merges = NewMergeService(MergeDependencies{
		Repos:      repos,
		Transactor: store,
		Classifier: classifier,
		Lifecycle:  h.lifecycle,
	})
	h.reports = NewReportService(repos.Reports)
	return h
}

func (h *harness) student(email string) *domain.User {
	return h.store.addUser(domain.User{Username: email, Email: email, Role: domain.RoleStudent})
}

func (h *harness) officer(username string) *domain.User {
	return h.store.addUser(domain.User{Username: username, Email: username + "@uni.test", Role: domain.RoleProgramOfficer})
}

func (h *harness) specialist(username string, dept domain.Department) *domain.User {
	return h.store.addUser(domain.User{Username: username, Email: username + "@uni.test", Role: domain.RoleSpecialist, Department: &dept})
}

// newTicket creates a ticket through the normal creation path.
func (h *harness) newTicket(t *testing.T, creator *domain.User, title, description string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.Create(context.Background(), TicketCreateInput{
		Creator:     creator,
		SenderEmail: creator.Email,
		Title:       title,
		Description: description,
	})
	require.NoError(t, err)
	return ticket
}
