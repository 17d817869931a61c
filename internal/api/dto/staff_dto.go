package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// CreateStaffRequest payload.
type CreateStaffRequest struct {
	Username   string             `json:"username" validate:"required,max=150"`
	FirstName  string             `json:"first_name" validate:"max=150"`
	LastName   string             `json:"last_name" validate:"max=150"`
	Email      string             `json:"email" validate:"required,email"`
	Password   string             `json:"password" validate:"required,min=8,max=72"`
	Role       domain.Role        `json:"role" validate:"required,oneof=specialist program_officer"`
	Department *domain.Department `json:"department" validate:"required_if=Role specialist,omitempty,department"`
}

// StaffResponse represents a staff account.
type StaffResponse struct {
	ID          string             `json:"id"`
	Username    string             `json:"username"`
	DisplayName string             `json:"display_name"`
	Email       string             `json:"email"`
	Role        domain.Role        `json:"role"`
	Department  *domain.Department `json:"department,omitempty"`
}

// DepartmentResponse is one department.
type DepartmentResponse struct {
	Name            domain.Department `json:"name"`
	DisplayName     string            `json:"display_name"`
	Description     string            `json:"description"`
	ResponsibleRole domain.Role       `json:"responsible_role"`
}

// ClosureReportResponse is one daily closure row.
type ClosureReportResponse struct {
	Date               string            `json:"date"`
	Department         domain.Department `json:"department"`
	ClosedByInactivity int               `json:"closed_by_inactivity"`
	ClosedManually     int               `json:"closed_manually"`
}

// ReportRangeQuery captures ?from=YYYY-MM-DD&to=YYYY-MM-DD.
type ReportRangeQuery struct {
	From time.Time
	To   time.Time
}
