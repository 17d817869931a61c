package domain

import "time"

// AITicketProcessing holds the classifier's view of a ticket. One row per ticket.
type AITicketProcessing struct {
	TicketID   string
	Department Department
	Priority   TicketPriority
	Answer     string
	CreatedAt  time.Time
}

// MergedTicket groups tickets believed to describe the same issue under a primary.
type MergedTicket struct {
	ID              string
	PrimaryTicketID string
	Suggested       []string
	Approved        []string
	MergedAt        time.Time
}

// IsApproved reports whether ticketID is in the approved set.
func (m *MergedTicket) IsApproved(ticketID string) bool {
	for _, id := range m.Approved {
		if id == ticketID {
			return true
		}
	}
	return false
}

// ClosureKind distinguishes how a ticket reached the closed state.
type ClosureKind string

const (
	ClosureManual     ClosureKind = "manual"
	ClosureInactivity ClosureKind = "inactivity"
)

// DailyTicketClosureReport counts closures per day and department.
type DailyTicketClosureReport struct {
	Date               time.Time
	Department         Department
	ClosedByInactivity int
	ClosedManually     int
}
