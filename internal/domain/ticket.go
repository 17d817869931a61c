package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// ParsePriority maps a free-text label onto a priority.
func ParsePriority(label string) (TicketPriority, bool) {
	switch TicketPriority(strings.ToLower(strings.Trim(strings.TrimSpace(label), ".\"'"))) {
	case TicketPriorityLow:
		return TicketPriorityLow, true
	case TicketPriorityMedium:
		return TicketPriorityMedium, true
	case TicketPriorityHigh:
		return TicketPriorityHigh, true
	case TicketPriorityUrgent:
		return TicketPriorityUrgent, true
	}
	return "", false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	Department     Department
	CreatorID      string
	SenderEmail    string
	AssigneeID     *string
	LatestEditorID *string
	Answers        string
	ReturnReason   string
	LatestAction   Action

	CanBeManagedByProgramOfficer bool
	CanBeManagedBySpecialist     bool
	NeedStudentUpdate            bool
	ProgramOfficerResolved       bool
	SpecialistResolved           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTicket returns a ticket in its initial in-progress state.
func NewTicket(title, description string, department Department, creator *User, senderEmail string) *Ticket {
	t := &Ticket{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Priority:    TicketPriorityMedium,
		Department:  department,
		CreatorID:   creator.ID,
		SenderEmail: strings.ToLower(strings.TrimSpace(senderEmail)),
	}
	t.applyCreated()
	return t
}

func (t *Ticket) applyCreated() {
	t.Status = TicketStatusInProgress
	t.LatestAction = ActionCreated
	t.CanBeManagedByProgramOfficer = true
	t.CanBeManagedBySpecialist = true
	t.NeedStudentUpdate = false
	t.ProgramOfficerResolved = false
	t.SpecialistResolved = false
}

// IsOpen reports whether the ticket still accepts transitions.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusInProgress
}

// IsAssignedTo reports whether the given user owns the ticket.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// CanBeManagedBy returns the per-role management flag.
func (t *Ticket) CanBeManagedBy(role Role) bool {
	switch role {
	case RoleProgramOfficer:
		return t.CanBeManagedByProgramOfficer
	case RoleSpecialist:
		return t.CanBeManagedBySpecialist
	}
	return false
}

// ApplyResponse appends a response line and marks the responder role resolved.
func (t *Ticket) ApplyResponse(responder *User, message string) {
	line := fmt.Sprintf("Response by %s: %s", responder.Username, strings.TrimSpace(message))
	if t.Answers == "" {
		t.Answers = line
	} else {
		t.Answers += "\n" + line
	}
	switch responder.Role {
	case RoleProgramOfficer:
		t.ProgramOfficerResolved = true
	case RoleSpecialist:
		t.SpecialistResolved = true
	}
	t.LatestEditorID = &responder.ID
	t.LatestAction = ActionResponded
}

// ApplyReturn hands the ticket back to its creator.
func (t *Ticket) ApplyReturn(actor *User, reason string) {
	creator := t.CreatorID
	t.AssigneeID = &creator
	t.ReturnReason = strings.TrimSpace(reason)
	t.NeedStudentUpdate = true
	t.CanBeManagedByProgramOfficer = false
	t.CanBeManagedBySpecialist = false
	t.ProgramOfficerResolved = false
	t.SpecialistResolved = false
	t.LatestEditorID = &actor.ID
	t.LatestAction = ActionReturned
}

// ApplyUpdate appends a supplement from the creator and reopens the ticket to staff.
func (t *Ticket) ApplyUpdate(actor *User, supplement string) {
	if s := strings.TrimSpace(supplement); s != "" {
		t.Description += "\n\nSupplement: " + s
	}
	t.CanBeManagedByProgramOfficer = true
	t.CanBeManagedBySpecialist = true
	t.NeedStudentUpdate = false
	t.LatestEditorID = &actor.ID
	t.LatestAction = ActionStatusUpdated
}

// ApplyClose moves the ticket to its terminal state. A nil actor means the system.
func (t *Ticket) ApplyClose(actor *User) {
	t.Status = TicketStatusClosed
	t.CanBeManagedByProgramOfficer = false
	t.CanBeManagedBySpecialist = false
	t.NeedStudentUpdate = false
	t.ProgramOfficerResolved = true
	t.SpecialistResolved = true
	if actor != nil {
		t.LatestEditorID = &actor.ID
	}
	t.LatestAction = ActionClosed
}

// ApplyRedirect reassigns the ticket to a specialist (or nobody) in the given department.
func (t *Ticket) ApplyRedirect(actor *User, assigneeID *string, department Department) {
	t.AssigneeID = assigneeID
	t.Department = department
	t.CanBeManagedByProgramOfficer = true
	t.CanBeManagedBySpecialist = true
	t.NeedStudentUpdate = false
	t.LatestEditorID = &actor.ID
	t.LatestAction = ActionRedirected
}

// ApplyPriority changes the priority. A nil actor means the system.
func (t *Ticket) ApplyPriority(actor *User, priority TicketPriority) {
	t.Priority = priority
	if actor != nil {
		t.LatestEditorID = &actor.ID
	}
	t.LatestAction = ActionPriorityUpdated
}

// ApplyMerge records a merge toggle against this ticket.
func (t *Ticket) ApplyMerge(actor *User) {
	t.LatestEditorID = &actor.ID
	t.LatestAction = ActionMerged
}

// CheckConsistency verifies status and workflow flags agree with the latest action.
func (t *Ticket) CheckConsistency() error {
	bad := func(reason string) error {
		return fmt.Errorf("ticket %s inconsistent after %s: %s", t.ID, t.LatestAction, reason)
	}
	if t.LatestAction == ActionClosed {
		if t.Status != TicketStatusClosed {
			return bad("status must be closed")
		}
		if t.CanBeManagedByProgramOfficer || t.CanBeManagedBySpecialist {
			return bad("closed tickets cannot be managed")
		}
		if !t.ProgramOfficerResolved || !t.SpecialistResolved {
			return bad("closed tickets are resolved by both roles")
		}
		if t.NeedStudentUpdate {
			return bad("closed tickets need no student update")
		}
		return nil
	}
	if t.Status != TicketStatusInProgress {
		return bad("status must be in_progress")
	}
	switch t.LatestAction {
	case ActionCreated:
		if !t.CanBeManagedByProgramOfficer || !t.CanBeManagedBySpecialist || t.NeedStudentUpdate ||
			t.ProgramOfficerResolved || t.SpecialistResolved {
			return bad("new tickets are open to staff and unresolved")
		}
	case ActionReturned:
		if !t.NeedStudentUpdate || t.CanBeManagedByProgramOfficer || t.CanBeManagedBySpecialist ||
			t.ProgramOfficerResolved || t.SpecialistResolved {
			return bad("returned tickets wait on the student only")
		}
	case ActionResponded:
		if t.NeedStudentUpdate || !(t.ProgramOfficerResolved || t.SpecialistResolved) {
			return bad("responded tickets carry a resolved flag")
		}
	case ActionStatusUpdated, ActionRedirected:
		if t.NeedStudentUpdate || !t.CanBeManagedByProgramOfficer || !t.CanBeManagedBySpecialist {
			return bad("reopened tickets are open to staff")
		}
	}
	return nil
}
