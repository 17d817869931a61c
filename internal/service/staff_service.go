package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/reference"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// StaffService manages departments and staff accounts.
type StaffService struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
	bcryptCost  int
	logger      *zap.Logger
}

// OrgDependencies encapsulates repositories required for org management.
type OrgDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	UserRepo       repository.UserRepository
	Logger         *zap.Logger
}

// StaffCreateInput describes a new staff account.
type StaffCreateInput struct {
	Username   string
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Role       domain.Role
	Department *domain.Department
}

// NewStaffService constructs the service.
func NewStaffService(cfg config.AuthConfig, deps OrgDependencies) *StaffService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{
		departments: deps.DepartmentRepo,
		users:       deps.UserRepo,
		bcryptCost:  cfg.BcryptCost,
		logger:      logger,
	}
}

func requireProgramOfficer(actor *domain.User) error {
	if actor == nil || actor.Role != domain.RoleProgramOfficer {
		return apperrors.ErrPermissionDenied
	}
	return nil
}

// SyncDepartments upserts the embedded department reference data.
func (s *StaffService) SyncDepartments(ctx context.Context) (int, error) {
	departments, err := reference.Departments()
	if err != nil {
		return 0, err
	}
	for i := range departments {
		if err := s.departments.Upsert(ctx, &departments[i]); err != nil {
			return i, err
		}
	}
	s.logger.Info("department reference data synced", zap.Int("count", len(departments)))
	return len(departments), nil
}

// ListDepartments returns every department.
func (s *StaffService) ListDepartments(ctx context.Context) ([]domain.DepartmentInfo, error) {
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return departments, nil
}

// ListStaff returns users with the given staff role.
func (s *StaffService) ListStaff(ctx context.Context, actor *domain.User, role domain.Role) ([]domain.User, error) {
	if err := requireProgramOfficer(actor); err != nil {
		return nil, err
	}
	if role != domain.RoleSpecialist && role != domain.RoleProgramOfficer {
		return nil, apperrors.NewValidationError("role must be specialist or program_officer", map[string]any{"role": role})
	}
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// CreateStaff creates a specialist or program officer. A nil actor is the command line.
func (s *StaffService) CreateStaff(ctx context.Context, actor *domain.User, input StaffCreateInput) (*domain.User, error) {
	if actor != nil {
		if err := requireProgramOfficer(actor); err != nil {
			return nil, err
		}
	}
	if input.Role != domain.RoleSpecialist && input.Role != domain.RoleProgramOfficer {
		return nil, apperrors.NewValidationError("role must be specialist or program_officer", map[string]any{"role": input.Role})
	}
	if input.Department != nil {
		dept, ok := domain.ParseDepartment(string(*input.Department))
		if !ok {
			return nil, apperrors.NewValidationError("unknown department", map[string]any{"department": *input.Department})
		}
		input.Department = &dept
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Username:     strings.TrimSpace(input.Username),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		Role:         input.Role,
		Department:   input.Department,
	}
	if err := user.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	taken, err := s.users.UsernameExists(ctx, user.Username)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if taken {
		return nil, apperrors.NewConflict("username already taken", map[string]any{"username": user.Username})
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}
