package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

func TestEmbeddedDepartmentsCoverEveryDepartment(t *testing.T) {
	departments, err := Departments()
	require.NoError(t, err)
	require.Len(t, departments, len(domain.Departments))
	for i, d := range departments {
		assert.Equal(t, domain.Departments[i], d.Name)
		assert.NotEmpty(t, d.DisplayName, d.Name)
	}
}

func TestParseDepartmentsRejectsUnknownEntries(t *testing.T) {
	_, err := ParseDepartments([]byte("departments:\n  - name: astrology\n    responsible_role: specialist\n"))
	assert.Error(t, err)

	_, err = ParseDepartments([]byte("departments:\n  - name: housing\n    responsible_role: student\n"))
	assert.Error(t, err)

	parsed, err := ParseDepartments([]byte("departments:\n  - name: Exam Office\n    responsible_role: program_officer\n"))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, domain.DepartmentExamOffice, parsed[0].Name)
}
