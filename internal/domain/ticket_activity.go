package domain

import "time"

// Action is the kind of transition recorded against a ticket.
type Action string

const (
	ActionCreated         Action = "created"
	ActionStatusUpdated   Action = "status_updated"
	ActionPriorityUpdated Action = "priority_updated"
	ActionRedirected      Action = "redirected"
	ActionResponded       Action = "responded"
	ActionClosed          Action = "closed"
	ActionMerged          Action = "merged"
	ActionReturned        Action = "returned"
)

// TicketActivity is an immutable audit trail entry. ActorID is nil for system actions.
type TicketActivity struct {
	ID         string
	TicketID   string
	Action     Action
	ActorID    *string
	Comment    string
	ActionTime time.Time
}

// NewActivity builds an activity row for the ticket's latest action.
func NewActivity(ticket *Ticket, actor *User, comment string) *TicketActivity {
	activity := &TicketActivity{
		TicketID: ticket.ID,
		Action:   ticket.LatestAction,
		Comment:  comment,
	}
	if actor != nil {
		id := actor.ID
		activity.ActorID = &id
	}
	return activity
}
