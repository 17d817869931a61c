package domain

import "time"

// Role enumerates who a user is in the support workflow.
type Role string

const (
	RoleStudent        Role = "student"
	RoleProgramOfficer Role = "program_officer"
	RoleSpecialist     Role = "specialist"
	RoleOther          Role = "other"
)

// User is anyone who submits or handles tickets.
type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	Department   *Department
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// Validate checks role-specific requirements.
func (u *User) Validate() error {
	switch u.Role {
	case RoleStudent, RoleProgramOfficer, RoleOther:
	case RoleSpecialist:
		if u.Department == nil || *u.Department == "" {
			return ErrSpecialistWithoutDepartment
		}
	default:
		return ErrUnknownRole
	}
	return nil
}
