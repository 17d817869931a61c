package service

import (
	"strings"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// DepartmentRule routes text containing any keyword to a department.
type DepartmentRule struct {
	Department domain.Department
	Keywords   []string
}

// Matches reports whether any keyword occurs in the lowercased text.
func (r DepartmentRule) Matches(text string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// KeywordRules is an ordered rule list. The first matching rule wins.
type KeywordRules []DepartmentRule

// DefaultKeywordRules returns the intake routing table.
func DefaultKeywordRules() KeywordRules {
	return KeywordRules{
		{domain.DepartmentGeneralEnquiry, []string{"general"}},
		{domain.DepartmentAcademicSupport, []string{"course", "academic", "exam", "grades", "study"}},
		{domain.DepartmentHealthServices, []string{"health", "medical", "doctor", "sick", "hospital"}},
		{domain.DepartmentFinancialAid, []string{"financial", "payment", "tuition", "scholarship"}},
		{domain.DepartmentCareerServices, []string{"career", "job", "internship", "resume"}},
		{domain.DepartmentWelfare, []string{"welfare", "counseling", "support"}},
		{domain.DepartmentMisconduct, []string{"misconduct", "disciplinary", "plagiarism"}},
		{domain.DepartmentITSupport, []string{"wifi", "login", "it support", "computer", "software"}},
		{domain.DepartmentHousing, []string{"housing", "accommodation", "dorm", "rent"}},
		{domain.DepartmentAdmissions, []string{"admissions", "application", "enrollment"}},
		{domain.DepartmentLibraryServices, []string{"library", "books", "borrowing", "overdue"}},
		{domain.DepartmentResearchSupport, []string{"research", "thesis", "proposal", "publication"}},
		{domain.DepartmentStudyAbroad, []string{"study abroad", "exchange", "visa"}},
		{domain.DepartmentAlumniRelations, []string{"alumni", "graduate", "networking"}},
		{domain.DepartmentExamOffice, []string{"exam", "grades", "schedule", "timetable"}},
		{domain.DepartmentSecurity, []string{"security", "crime", "theft", "safety"}},
		{domain.DepartmentLanguageCentre, []string{"language", "english", "spanish", "french"}},
	}
}

// Classify returns the department of the first rule matching subject or body.
func (rules KeywordRules) Classify(subject, body string) domain.Department {
	text := strings.ToLower(subject) + "\n" + strings.ToLower(body)
	for _, rule := range rules {
		if rule.Matches(text) {
			return rule.Department
		}
	}
	return domain.DefaultDepartment
}
