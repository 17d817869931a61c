package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/service"
)

// StaffTicketsHandler handles the staff side of the ticket workflow.
type StaffTicketsHandler struct {
	lifecycle  *service.LifecycleService
	assignment *service.AssignmentService
	merges     *service.MergeService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(lifecycle *service.LifecycleService, assignment *service.AssignmentService, merges *service.MergeService) *StaffTicketsHandler {
	return &StaffTicketsHandler{lifecycle: lifecycle, assignment: assignment, merges: merges}
}

// Respond POST /staff/tickets/:id/respond.
func (h *StaffTicketsHandler) Respond(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RespondRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	outcome, err := h.lifecycle.Respond(c.UserContext(), user, c.Params("id"), req.Message)
	if err != nil {
		return err
	}
	resp := dto.RespondResponse{
		Ticket:     ticketSummary(outcome.Ticket),
		Propagated: outcome.Propagated,
	}
	if len(outcome.Failed) > 0 {
		resp.Failed = make(map[string]string, len(outcome.Failed))
		for id, ferr := range outcome.Failed {
			resp.Failed[id] = ferr.Error()
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Return POST /staff/tickets/:id/return.
func (h *StaffTicketsHandler) Return(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ReturnRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.Return(c.UserContext(), user, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ChangePriority POST /staff/tickets/:id/priority.
func (h *StaffTicketsHandler) ChangePriority(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	priority, _ := domain.ParsePriority(string(req.Priority))
	ticket, err := h.lifecycle.ChangePriority(c.UserContext(), user, c.Params("id"), priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Candidates GET /staff/tickets/:id/candidates.
func (h *StaffTicketsHandler) Candidates(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := h.assignment.Candidates(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	all := list.All()
	resp := dto.CandidatesResponse{
		RecommendedDepartment: list.RecommendedDepartment,
		ClassifierFallback:    list.ClassifierFallback,
		Candidates:            make([]dto.CandidateResponse, 0, len(all)),
	}
	for _, cand := range all {
		resp.Candidates = append(resp.Candidates, dto.CandidateResponse{
			Kind:        string(cand.Target.Kind),
			UserID:      cand.UserID,
			Username:    cand.Username,
			DisplayName: cand.DisplayName,
			Department:  cand.Department,
			OpenTickets: cand.OpenTickets,
			Recommended: cand.Recommended,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Redirect POST /staff/tickets/:id/redirect.
func (h *StaffTicketsHandler) Redirect(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RedirectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	target := service.HumanTarget(req.SpecialistID)
	if req.Unassigned {
		target = service.UnassignedTarget(req.Department)
	}
	ticket, err := h.assignment.Redirect(c.UserContext(), user, c.Params("id"), target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// MergeSuggestions GET /staff/tickets/:id/merge-suggestions.
func (h *StaffTicketsHandler) MergeSuggestions(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	similar, err := h.merges.Suggestions(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(similar))
	for i := range similar {
		items = append(items, ticketSummary(&similar[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ToggleMerge POST /staff/tickets/:id/merge/:candidateId.
func (h *StaffTicketsHandler) ToggleMerge(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	primaryID, candidateID := c.Params("id"), c.Params("candidateId")
	outcome, err := h.merges.Toggle(c.UserContext(), user, primaryID, candidateID)
	if err != nil {
		return err
	}
	approved := outcome.Group.Approved
	if approved == nil {
		approved = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.MergeResponse{
		PrimaryTicketID: primaryID,
		CandidateID:     candidateID,
		Approved:        outcome.Approved,
		ApprovedTickets: approved,
	}})
}
