package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/inbound"
	"github.com/spec-kit/helpdesk-intake/internal/notify"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	"github.com/spec-kit/helpdesk-intake/internal/storage"
)

// memStore backs every repository with maps. WithinTransaction restores a snapshot on error.
type memStore struct {
	mu  sync.Mutex
	seq int
	now func() time.Time

	tickets     map[string]domain.Ticket
	activities  []domain.TicketActivity
	attachments []domain.TicketAttachment
	ai          map[string]domain.AITicketProcessing
	merges      map[string]domain.MergedTicket
	reports     map[string]domain.DailyTicketClosureReport
	users       map[string]domain.User
	departments map[domain.Department]domain.DepartmentInfo

	// failUpdate makes Tickets.Update fail for the given ticket ids.
	failUpdate map[string]error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:         now,
		tickets:     map[string]domain.Ticket{},
		ai:          map[string]domain.AITicketProcessing{},
		merges:      map[string]domain.MergedTicket{},
		reports:     map[string]domain.DailyTicketClosureReport{},
		users:       map[string]domain.User{},
		departments: map[domain.Department]domain.DepartmentInfo{},
		failUpdate:  map[string]error{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func (s *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Tickets:     memTickets{s},
		Activities:  memActivities{s},
		Attachments: memAttachments{s},
		AI:          memAI{s},
		Merges:      memMerges{s},
		Reports:     memReports{s},
		Users:       memUsers{s},
		Departments: memDepartments{s},
	}
}

type memSnapshot struct {
	seq         int
	tickets     map[string]domain.Ticket
	activities  []domain.TicketActivity
	attachments []domain.TicketAttachment
	ai          map[string]domain.AITicketProcessing
	merges      map[string]domain.MergedTicket
	reports     map[string]domain.DailyTicketClosureReport
	users       map[string]domain.User
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		seq:         s.seq,
		tickets:     make(map[string]domain.Ticket, len(s.tickets)),
		activities:  append([]domain.TicketActivity(nil), s.activities...),
		attachments: append([]domain.TicketAttachment(nil), s.attachments...),
		ai:          make(map[string]domain.AITicketProcessing, len(s.ai)),
		merges:      make(map[string]domain.MergedTicket, len(s.merges)),
		reports:     make(map[string]domain.DailyTicketClosureReport, len(s.reports)),
		users:       make(map[string]domain.User, len(s.users)),
	}
	for k, v := range s.tickets {
		snap.tickets[k] = v
	}
	for k, v := range s.ai {
		snap.ai[k] = v
	}
	for k, v := range s.merges {
		snap.merges[k] = copyMerge(v)
	}
	for k, v := range s.reports {
		snap.reports[k] = v
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = snap.seq
	s.tickets = snap.tickets
	s.activities = snap.activities
	s.attachments = snap.attachments
	s.ai = snap.ai
	s.merges = snap.merges
	s.reports = snap.reports
	s.users = snap.users
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	snap := s.snapshot()
	if err := fn(ctx, s.repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) ticket(id string) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[id]
}

func (s *memStore) activitiesFor(id string) []domain.TicketActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketActivity
	for _, a := range s.activities {
		if a.TicketID == id {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) addUser(u domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID("u")
	}
	s.users[u.ID] = u
	return &u
}

// putTicket stores t as-is, keeping its timestamps.
func (s *memStore) putTicket(t domain.Ticket) *domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextID("t")
	}
	s.tickets[t.ID] = t
	return &t
}

func copyMerge(m domain.MergedTicket) domain.MergedTicket {
	m.Suggested = append([]string(nil), m.Suggested...)
	m.Approved = append([]string(nil), m.Approved...)
	return m
}

func sortTickets(list []domain.Ticket) []domain.Ticket {
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

type memTickets struct{ s *memStore }

func (r memTickets) Create(_ context.Context, t *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.nextID("t")
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.s.now()
	}
	t.UpdatedAt = t.CreatedAt
	r.s.tickets[t.ID] = *t
	return nil
}

func (r memTickets) Update(_ context.Context, t *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failUpdate[t.ID]; err != nil {
		return err
	}
	if _, ok := r.s.tickets[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	t.UpdatedAt = r.s.now()
	r.s.tickets[t.ID] = *t
	return nil
}

func (r memTickets) Escalate(_ context.Context, t *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Priority = t.Priority
	stored.LatestAction = t.LatestAction
	stored.LatestEditorID = t.LatestEditorID
	r.s.tickets[t.ID] = stored
	return nil
}

func (r memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r memTickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r memTickets) ListBySender(_ context.Context, email string) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if strings.EqualFold(t.SenderEmail, email) {
			out = append(out, t)
		}
	}
	return sortTickets(out), nil
}

func (r memTickets) ListOpenByAIDepartment(_ context.Context, dept domain.Department, excludeID string) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.ID == excludeID || !t.IsOpen() {
			continue
		}
		if row, ok := r.s.ai[t.ID]; ok && row.Department == dept {
			out = append(out, t)
		}
	}
	return sortTickets(out), nil
}

func (r memTickets) ListStale(_ context.Context, before time.Time) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.IsOpen() && t.UpdatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r memTickets) CountOpenByAssignee(_ context.Context) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]int{}
	for _, t := range r.s.tickets {
		if t.IsOpen() && t.AssigneeID != nil {
			out[*t.AssigneeID]++
		}
	}
	return out, nil
}

func (r memTickets) ListWithFilter(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if f.CreatorID != nil && t.CreatorID != *f.CreatorID {
			continue
		}
		if f.AssigneeID != nil && !t.IsAssignedTo(*f.AssigneeID) {
			continue
		}
		if f.Department != nil && t.Department != *f.Department {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
			continue
		}
		out = append(out, t)
	}
	return sortTickets(out), nil
}

func containsStatus(list []domain.TicketStatus, v domain.TicketStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (r memTickets) DeleteAll(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.tickets))
	r.s.tickets = map[string]domain.Ticket{}
	r.s.activities = nil
	r.s.attachments = nil
	r.s.ai = map[string]domain.AITicketProcessing{}
	r.s.merges = map[string]domain.MergedTicket{}
	return n, nil
}

type memActivities struct{ s *memStore }

func (r memActivities) Create(_ context.Context, a *domain.TicketActivity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.nextID("a")
	if a.ActionTime.IsZero() {
		a.ActionTime = r.s.now()
	}
	r.s.activities = append(r.s.activities, *a)
	return nil
}

func (r memActivities) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketActivity, error) {
	return r.s.activitiesFor(ticketID), nil
}

func (r memActivities) CountByAction(_ context.Context, ticketID string, action domain.Action) (int, error) {
	n := 0
	for _, a := range r.s.activitiesFor(ticketID) {
		if a.Action == action {
			n++
		}
	}
	return n, nil
}

type memAttachments struct{ s *memStore }

func (r memAttachments) Create(_ context.Context, a *domain.TicketAttachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.nextID("f")
	a.UploadedAt = r.s.now()
	r.s.attachments = append(r.s.attachments, *a)
	return nil
}

func (r memAttachments) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketAttachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TicketAttachment
	for _, a := range r.s.attachments {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memAI struct{ s *memStore }

func (r memAI) Insert(_ context.Context, p *domain.AITicketProcessing) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.ai[p.TicketID]; ok {
		return false, nil
	}
	p.CreatedAt = r.s.now()
	r.s.ai[p.TicketID] = *p
	return true, nil
}

func (r memAI) GetByTicket(_ context.Context, ticketID string) (*domain.AITicketProcessing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.ai[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

type memMerges struct{ s *memStore }

func (r memMerges) GetOrCreate(_ context.Context, primaryID string) (*domain.MergedTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.merges[primaryID]
	if !ok {
		m = domain.MergedTicket{ID: r.s.nextID("m"), PrimaryTicketID: primaryID, MergedAt: r.s.now()}
		r.s.merges[primaryID] = m
	}
	m = copyMerge(m)
	return &m, nil
}

func (r memMerges) GetByPrimary(_ context.Context, primaryID string) (*domain.MergedTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.merges[primaryID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	m = copyMerge(m)
	return &m, nil
}

func (r memMerges) mutate(mergeID string, fn func(m *domain.MergedTicket)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, m := range r.s.merges {
		if m.ID == mergeID {
			m = copyMerge(m)
			fn(&m)
			r.s.merges[k] = m
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r memMerges) AddSuggested(_ context.Context, mergeID, ticketID string) error {
	return r.mutate(mergeID, func(m *domain.MergedTicket) {
		for _, id := range m.Suggested {
			if id == ticketID {
				return
			}
		}
		m.Suggested = append(m.Suggested, ticketID)
	})
}

func (r memMerges) AddApproved(_ context.Context, mergeID, ticketID string) error {
	return r.mutate(mergeID, func(m *domain.MergedTicket) {
		for _, id := range m.Approved {
			if id == ticketID {
				return
			}
		}
		m.Approved = append(m.Approved, ticketID)
	})
}

func (r memMerges) RemoveApproved(_ context.Context, mergeID, ticketID string) error {
	return r.mutate(mergeID, func(m *domain.MergedTicket) {
		m.Approved = without(m.Approved, ticketID)
	})
}

type memReports struct{ s *memStore }

func (r memReports) Increment(_ context.Context, day time.Time, dept domain.Department, kind domain.ClosureKind) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	day = day.UTC().Truncate(24 * time.Hour)
	key := day.Format("2006-01-02") + "|" + string(dept)
	row := r.s.reports[key]
	row.Date = day
	row.Department = dept
	switch kind {
	case domain.ClosureInactivity:
		row.ClosedByInactivity++
	case domain.ClosureManual:
		row.ClosedManually++
	default:
		return errors.New("unknown closure kind")
	}
	r.s.reports[key] = row
	return nil
}

func (r memReports) ListRange(_ context.Context, from, to time.Time) ([]domain.DailyTicketClosureReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.DailyTicketClosureReport
	for _, row := range r.s.reports {
		if row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Department < out[j].Department
	})
	return out, nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return fmt.Errorf("unique violation on %s", u.Email)
		}
	}
	u.ID = r.s.nextID("u")
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) Update(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r memUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

type memDepartments struct{ s *memStore }

func (r memDepartments) Upsert(_ context.Context, d *domain.DepartmentInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.departments[d.Name] = *d
	return nil
}

func (r memDepartments) List(_ context.Context) ([]domain.DepartmentInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.DepartmentInfo, 0, len(r.s.departments))
	for _, d := range r.s.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// stubClassifier returns canned answers. A nil same func means "not similar".
type stubClassifier struct {
	department domain.Department
	priority   domain.TicketPriority
	answer     string
	err        error
	same       func(a, b string) (bool, error)
	calls      int
}

func (c *stubClassifier) ClassifyDepartment(context.Context, string) (domain.Department, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.department, nil
}

func (c *stubClassifier) PredictPriority(context.Context, string) (domain.TicketPriority, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.priority, nil
}

func (c *stubClassifier) DraftAnswer(context.Context, string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *stubClassifier) SameIssue(_ context.Context, a, b string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if c.same == nil {
		return false, nil
	}
	return c.same(a, b)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingSender) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, m := range r.sent {
		out = append(out, m.Subject)
	}
	return out
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	err   error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (m *memBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	locator := "mem://" + key
	m.blobs[locator] = append([]byte(nil), data...)
	return locator, nil
}

func (m *memBlobStore) Get(_ context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[locator]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

// eventLog subscribes to every ticket event.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) attach(d events.Dispatcher) {
	for _, t := range []events.EventType{
		events.EventTicketCreated, events.EventTicketResponded, events.EventTicketReturned,
		events.EventTicketUpdated, events.EventTicketClosed, events.EventTicketRedirected,
		events.EventTicketMerged, events.EventPriorityChanged,
	} {
		d.Subscribe(t, func(_ context.Context, e events.Event) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, e)
			return nil
		})
	}
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type stubSpam struct{ spam bool }

func (s stubSpam) IsSpam(context.Context, string, string) bool { return s.spam }

// fakeMailbox serves raw messages by uid and tracks which were marked seen.
type fakeMailbox struct {
	mu      sync.Mutex
	raw     map[uint32][]byte
	seen    map[uint32]bool
	openErr error
}

func newFakeMailbox(msgs ...[]byte) *fakeMailbox {
	m := &fakeMailbox{raw: map[uint32][]byte{}, seen: map[uint32]bool{}}
	for i, msg := range msgs {
		m.raw[uint32(i+1)] = msg
	}
	return m
}

func (m *fakeMailbox) Open(context.Context) (inbound.Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return &fakeSession{box: m}, nil
}

type fakeSession struct{ box *fakeMailbox }

func (s *fakeSession) SearchUnseen(context.Context) ([]uint32, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	var out []uint32
	for uid := range s.box.raw {
		if !s.box.seen[uid] {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *fakeSession) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	raw, ok := s.box.raw[uid]
	if !ok {
		return nil, fmt.Errorf("no message %d", uid)
	}
	return raw, nil
}

func (s *fakeSession) MarkSeen(_ context.Context, uid uint32) error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	s.box.seen[uid] = true
	return nil
}

func (s *fakeSession) Close() error { return nil }

type fakeLocker struct {
	held bool
	err  error
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() { l.held = false }, true, nil
}
