package domain

import "time"

// TicketAttachment stores metadata for a file owned by a ticket.
type TicketAttachment struct {
	ID          string
	TicketID    string
	Locator     string
	FileName    string
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time
}
