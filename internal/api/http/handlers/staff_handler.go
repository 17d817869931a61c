package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StaffHandler exposes organisation and reporting endpoints.
type StaffHandler struct {
	orgService *service.StaffService
	reports    *service.ReportService
	now        func() time.Time
}

// NewStaffHandler constructs handler.
func NewStaffHandler(orgService *service.StaffService, reports *service.ReportService) *StaffHandler {
	return &StaffHandler{orgService: orgService, reports: reports, now: time.Now}
}

// ListDepartments GET /departments.
func (h *StaffHandler) ListDepartments(c *fiber.Ctx) error {
	departments, err := h.orgService.ListDepartments(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(departments))
	for _, d := range departments {
		items = append(items, dto.DepartmentResponse{
			Name:            d.Name,
			DisplayName:     d.DisplayName,
			Description:     d.Description,
			ResponsibleRole: d.ResponsibleRole,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateStaff POST /staff/members.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	input := service.StaffCreateInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
	}
	if req.Department != nil {
		dept, _ := domain.ParseDepartment(string(*req.Department))
		input.Department = &dept
	}
	staff, err := h.orgService.CreateStaff(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": staffResponse(staff)})
}

// ListStaff GET /staff/members?role=specialist.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	role := domain.Role(c.Query("role", string(domain.RoleSpecialist)))
	members, err := h.orgService.ListStaff(c.UserContext(), user, role)
	if err != nil {
		return err
	}
	items := make([]dto.StaffResponse, 0, len(members))
	for i := range members {
		items = append(items, staffResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ClosureReport GET /staff/reports/closures.
func (h *StaffHandler) ClosureReport(c *fiber.Ctx) error {
	from, to, err := parseDateRange(c, h.now())
	if err != nil {
		return err
	}
	rows, err := h.reports.Range(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	items := make([]dto.ClosureReportResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.ClosureReportResponse{
			Date:               r.Date.Format(dateLayout),
			Department:         r.Department,
			ClosedByInactivity: r.ClosedByInactivity,
			ClosedManually:     r.ClosedManually,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ExportClosureReport GET /staff/reports/closures.xlsx.
func (h *StaffHandler) ExportClosureReport(c *fiber.Ctx) error {
	from, to, err := parseDateRange(c, h.now())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := h.reports.ExportXLSX(c.UserContext(), from, to, &buf); err != nil {
		return err
	}
	filename := fmt.Sprintf("closures_%s_%s.xlsx", from.Format(dateLayout), to.Format(dateLayout))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")
	return c.Send(buf.Bytes())
}

func staffResponse(user *domain.User) dto.StaffResponse {
	return dto.StaffResponse{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName(),
		Email:       user.Email,
		Role:        user.Role,
		Department:  user.Department,
	}
}
