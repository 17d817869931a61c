package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required,max=20000"`
}

// RespondRequest payload.
type RespondRequest struct {
	Message string `json:"message" validate:"required,max=10000"`
}

// ReturnRequest payload.
type ReturnRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// UpdateRequest payload for the creator's supplement.
type UpdateRequest struct {
	Supplement string `json:"supplement" validate:"required,max=10000"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority" validate:"required,priority"`
}

// RedirectRequest payload. Exactly one of specialist_id or unassigned is expected.
type RedirectRequest struct {
	SpecialistID string            `json:"specialist_id" validate:"required_without=Unassigned,omitempty,uuid"`
	Unassigned   bool              `json:"unassigned"`
	Department   domain.Department `json:"department" validate:"omitempty,department"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	Department   domain.Department     `json:"department"`
	SenderEmail  string                `json:"sender_email"`
	AssigneeID   *string               `json:"assignee_id"`
	LatestAction domain.Action         `json:"latest_action"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// WorkflowFlags exposes the per-role workflow state.
type WorkflowFlags struct {
	CanBeManagedByProgramOfficer bool `json:"can_be_managed_by_program_officer"`
	CanBeManagedBySpecialist     bool `json:"can_be_managed_by_specialist"`
	NeedStudentUpdate            bool `json:"need_student_update"`
	ProgramOfficerResolved       bool `json:"program_officer_resolved"`
	SpecialistResolved           bool `json:"specialist_resolved"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description    string               `json:"description"`
	Answers        string               `json:"answers"`
	ReturnReason   string               `json:"return_reason,omitempty"`
	LatestEditorID *string              `json:"latest_editor_id"`
	Flags          WorkflowFlags        `json:"flags"`
	Activities     []ActivityResponse   `json:"activities"`
	Attachments    []AttachmentResponse `json:"attachments"`
	AI             *AIResponse          `json:"ai,omitempty"`
	MergedTickets  []string             `json:"merged_tickets,omitempty"`
}

// ActivityResponse is one audit entry.
type ActivityResponse struct {
	ID         string        `json:"id"`
	Action     domain.Action `json:"action"`
	ActorID    *string       `json:"actor_id"`
	Comment    string        `json:"comment"`
	ActionTime time.Time     `json:"action_time"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AIResponse is the stored model output for a ticket.
type AIResponse struct {
	Department domain.Department     `json:"department"`
	Priority   domain.TicketPriority `json:"priority"`
	Answer     string                `json:"answer"`
}

// CandidateResponse is one entry in the redirect picker.
type CandidateResponse struct {
	Kind        string            `json:"kind"`
	UserID      string            `json:"user_id,omitempty"`
	Username    string            `json:"username,omitempty"`
	DisplayName string            `json:"display_name"`
	Department  domain.Department `json:"department"`
	OpenTickets int               `json:"open_tickets"`
	Recommended bool              `json:"recommended"`
}

// CandidatesResponse is the full redirect picker.
type CandidatesResponse struct {
	RecommendedDepartment domain.Department   `json:"recommended_department"`
	ClassifierFallback    bool                `json:"classifier_fallback"`
	Candidates            []CandidateResponse `json:"candidates"`
}

// RespondResponse reports the primary ticket and the merge fan-out.
type RespondResponse struct {
	Ticket     TicketSummary     `json:"ticket"`
	Propagated []string          `json:"propagated"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// MergeResponse reports a toggle.
type MergeResponse struct {
	PrimaryTicketID string   `json:"primary_ticket_id"`
	CandidateID     string   `json:"candidate_id"`
	Approved        bool     `json:"approved"`
	ApprovedTickets []string `json:"approved_tickets"`
}
