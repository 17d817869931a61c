package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

const tempPasswordLength = 12

// AuthService coordinates account provisioning and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
	}
}

// Tokens exposes the token manager for the HTTP middleware.
func (s *AuthService) Tokens() *auth.TokenManager {
	return s.tokenMgr
}

// EnsureStudent returns the user owning email, creating a student account when none exists.
// tempPassword is non-empty only for a freshly created account.
func (s *AuthService) EnsureStudent(ctx context.Context, email string) (user *domain.User, tempPassword string, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", apperrors.NewValidationError("sender email is empty", nil)
	}
	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", err
	}

	username, err := s.freeUsername(ctx, email)
	if err != nil {
		return nil, "", err
	}
	tempPassword, err = auth.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, "", err
	}
	hash, err := auth.HashPassword(tempPassword, s.bcryptCost)
	if err != nil {
		return nil, "", err
	}
	user = &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleStudent,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	s.logger.Info("created account for new sender", zap.String("user_id", user.ID), zap.String("sender", email))
	return user, tempPassword, nil
}

// freeUsername derives a username from the address local part, adding a numeric suffix on collision.
func (s *AuthService) freeUsername(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		base = email[:at]
	}
	candidate := base
	for i := 1; ; i++ {
		taken, err := s.users.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// Login authenticates any user and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *domain.AccessToken, string, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, "", apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, "", apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, nil, "", apperrors.NewUnauthorized("invalid credentials")
	}
	meta, token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, nil, "", apperrors.NewInternalError(err)
	}
	return user, meta, token, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, current, next string) error {
	if user == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := auth.ComparePassword(user.PasswordHash, current); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	hash, err := auth.HashPassword(next, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}
