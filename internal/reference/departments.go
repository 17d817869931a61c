// Package reference holds static lookup data shipped with the binary.
package reference

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

//go:embed departments.yaml
var departmentsYAML []byte

type departmentFile struct {
	Departments []struct {
		Name            string `yaml:"name"`
		DisplayName     string `yaml:"display_name"`
		Description     string `yaml:"description"`
		ResponsibleRole string `yaml:"responsible_role"`
	} `yaml:"departments"`
}

// Departments decodes the embedded department list.
func Departments() ([]domain.DepartmentInfo, error) {
	return ParseDepartments(departmentsYAML)
}

// ParseDepartments decodes a department list and rejects unknown names or roles.
func ParseDepartments(raw []byte) ([]domain.DepartmentInfo, error) {
	var file departmentFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode departments: %w", err)
	}
	result := make([]domain.DepartmentInfo, 0, len(file.Departments))
	for _, d := range file.Departments {
		name, ok := domain.ParseDepartment(d.Name)
		if !ok {
			return nil, fmt.Errorf("unknown department %q", d.Name)
		}
		role := domain.Role(d.ResponsibleRole)
		switch role {
		case domain.RoleProgramOfficer, domain.RoleSpecialist:
		default:
			return nil, fmt.Errorf("department %s: invalid responsible role %q", d.Name, d.ResponsibleRole)
		}
		result = append(result, domain.DepartmentInfo{
			Name:            name,
			DisplayName:     d.DisplayName,
			Description:     d.Description,
			ResponsibleRole: role,
		})
	}
	return result, nil
}
