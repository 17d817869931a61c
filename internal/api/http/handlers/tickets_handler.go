package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/service"
)

// TicketsHandler serves ticket endpoints shared by every role. Visibility and transition
// rules are enforced by the services.
type TicketsHandler struct {
	tickets   *service.TicketService
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, lifecycle: lifecycle}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Submit(c.UserContext(), user, req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.List(c.UserContext(), user, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	detail, err := h.tickets.Get(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// DownloadAttachment GET /tickets/:id/attachments/:attachmentId.
func (h *TicketsHandler) DownloadAttachment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	att, data, err := h.tickets.Attachment(c.UserContext(), user, c.Params("id"), c.Params("attachmentId"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, att.ContentType)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+strconv.Quote(att.FileName))
	return c.Send(data)
}

// UpdateTicket POST /tickets/:id/update.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.Update(c.UserContext(), user, c.Params("id"), req.Supplement)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	for _, part := range splitCSV(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitCSV(c.Query("priority")) {
		if p, ok := domain.ParsePriority(part); ok {
			filter.Priorities = append(filter.Priorities, p)
		}
	}
	if dept, ok := domain.ParseDepartment(c.Query("department")); ok {
		filter.Department = &dept
	}
	if q := c.Query("q"); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		Department:   ticket.Department,
		SenderEmail:  ticket.SenderEmail,
		AssigneeID:   ticket.AssigneeID,
		LatestAction: ticket.LatestAction,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	ticket := detail.Ticket
	resp := dto.TicketDetailResponse{
		TicketSummary:  ticketSummary(ticket),
		Description:    ticket.Description,
		Answers:        ticket.Answers,
		ReturnReason:   ticket.ReturnReason,
		LatestEditorID: ticket.LatestEditorID,
		Flags: dto.WorkflowFlags{
			CanBeManagedByProgramOfficer: ticket.CanBeManagedByProgramOfficer,
			CanBeManagedBySpecialist:     ticket.CanBeManagedBySpecialist,
			NeedStudentUpdate:            ticket.NeedStudentUpdate,
			ProgramOfficerResolved:       ticket.ProgramOfficerResolved,
			SpecialistResolved:           ticket.SpecialistResolved,
		},
		Activities:  make([]dto.ActivityResponse, 0, len(detail.Activities)),
		Attachments: make([]dto.AttachmentResponse, 0, len(detail.Attachments)),
	}
	for _, a := range detail.Activities {
		resp.Activities = append(resp.Activities, dto.ActivityResponse{
			ID:         a.ID,
			Action:     a.Action,
			ActorID:    a.ActorID,
			Comment:    a.Comment,
			ActionTime: a.ActionTime,
		})
	}
	for _, att := range detail.Attachments {
		resp.Attachments = append(resp.Attachments, dto.AttachmentResponse{
			ID:          att.ID,
			FileName:    att.FileName,
			ContentType: att.ContentType,
			SizeBytes:   att.SizeBytes,
			UploadedAt:  att.UploadedAt,
		})
	}
	if detail.AI != nil {
		resp.AI = &dto.AIResponse{
			Department: detail.AI.Department,
			Priority:   detail.AI.Priority,
			Answer:     detail.AI.Answer,
		}
	}
	if detail.Merge != nil {
		resp.MergedTickets = detail.Merge.Approved
	}
	return resp
}
