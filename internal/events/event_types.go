package events

import (
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketResponded  EventType = "ticket_responded"
	EventTicketReturned   EventType = "ticket_returned"
	EventTicketUpdated    EventType = "ticket_updated"
	EventTicketClosed     EventType = "ticket_closed"
	EventTicketRedirected EventType = "ticket_redirected"
	EventTicketMerged     EventType = "ticket_merged"
	EventPriorityChanged  EventType = "ticket_priority_changed"
)

// Actor identifies who triggered the event. A nil UserID means the system.
type Actor struct {
	UserID *string     `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title        string            `json:"title"`
	Department   domain.Department `json:"department"`
	CreatorEmail string            `json:"creator_email"`
	TempPassword string            `json:"-"`
}

// TicketRespondedPayload payload.
type TicketRespondedPayload struct {
	Title        string `json:"title"`
	CreatorEmail string `json:"creator_email"`
	Responder    string `json:"responder"`
	Message      string `json:"message"`
	// MergedFrom is set when the response was fanned out from a primary ticket.
	MergedFrom string `json:"merged_from,omitempty"`
}

// TicketReturnedPayload payload.
type TicketReturnedPayload struct {
	Title        string `json:"title"`
	CreatorEmail string `json:"creator_email"`
	Reason       string `json:"reason"`
}

// TicketUpdatedPayload is published when the creator supplements a ticket.
// StaffEmail is empty when there is nobody to notify.
type TicketUpdatedPayload struct {
	Title      string `json:"title"`
	StaffEmail string `json:"staff_email,omitempty"`
	Supplement string `json:"supplement"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Title        string             `json:"title"`
	CreatorEmail string             `json:"creator_email"`
	Department   domain.Department  `json:"department"`
	Kind         domain.ClosureKind `json:"kind"`
}

// TicketRedirectedPayload payload. AssigneeEmail is empty for the unassigned target.
type TicketRedirectedPayload struct {
	Title         string            `json:"title"`
	AssigneeID    *string           `json:"assignee_id,omitempty"`
	AssigneeEmail string            `json:"assignee_email,omitempty"`
	Department    domain.Department `json:"department"`
}

// TicketMergedPayload payload.
type TicketMergedPayload struct {
	PrimaryTicketID string `json:"primary_ticket_id"`
	Approved        bool   `json:"approved"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}
