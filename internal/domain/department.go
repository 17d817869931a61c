package domain

import (
	"errors"
	"strings"
)

var (
	ErrSpecialistWithoutDepartment = errors.New("specialists require a department")
	ErrUnknownRole                 = errors.New("unknown role")
)

// Department is the support category a ticket is routed to.
type Department string

const (
	DepartmentGeneralEnquiry  Department = "general_enquiry"
	DepartmentAcademicSupport Department = "academic_support"
	DepartmentHealthServices  Department = "health_services"
	DepartmentFinancialAid    Department = "financial_aid"
	DepartmentCareerServices  Department = "career_services"
	DepartmentWelfare         Department = "welfare"
	DepartmentMisconduct      Department = "misconduct"
	DepartmentITSupport       Department = "it_support"
	DepartmentHousing         Department = "housing"
	DepartmentAdmissions      Department = "admissions"
	DepartmentLibraryServices Department = "library_services"
	DepartmentResearchSupport Department = "research_support"
	DepartmentStudyAbroad     Department = "study_abroad"
	DepartmentAlumniRelations Department = "alumni_relations"
	DepartmentExamOffice      Department = "exam_office"
	DepartmentSecurity        Department = "security"
	DepartmentLanguageCentre  Department = "language_centre"
)

// DefaultDepartment receives anything no rule or classifier can place.
const DefaultDepartment = DepartmentGeneralEnquiry

// Departments lists every known department in display order.
var Departments = []Department{
	DepartmentGeneralEnquiry,
	DepartmentAcademicSupport,
	DepartmentHealthServices,
	DepartmentFinancialAid,
	DepartmentCareerServices,
	DepartmentWelfare,
	DepartmentMisconduct,
	DepartmentITSupport,
	DepartmentHousing,
	DepartmentAdmissions,
	DepartmentLibraryServices,
	DepartmentResearchSupport,
	DepartmentStudyAbroad,
	DepartmentAlumniRelations,
	DepartmentExamOffice,
	DepartmentSecurity,
	DepartmentLanguageCentre,
}

// NormalizeDepartmentName lowercases and strips separators so "IT Support" equals "it_support".
func NormalizeDepartmentName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SameDepartment compares two department names case- and space-insensitively.
func SameDepartment(a, b string) bool {
	return NormalizeDepartmentName(a) == NormalizeDepartmentName(b)
}

// ParseDepartment maps a free-text label onto a known department.
func ParseDepartment(label string) (Department, bool) {
	cleaned := strings.Trim(strings.TrimSpace(label), ".\"'`*")
	if cleaned == "" {
		return "", false
	}
	for _, d := range Departments {
		if SameDepartment(cleaned, string(d)) {
			return d, true
		}
	}
	return "", false
}

// DepartmentInfo is the static reference record for a department.
type DepartmentInfo struct {
	Name            Department
	DisplayName     string
	Description     string
	ResponsibleRole Role
}
