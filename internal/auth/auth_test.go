package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

type stubUsers struct {
	users map[string]*domain.User
}

func (s stubUsers) Create(context.Context, *domain.User) error { return nil }
func (s stubUsers) Update(context.Context, *domain.User) error { return nil }
func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}
func (s stubUsers) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}
func (s stubUsers) UsernameExists(context.Context, string) (bool, error) { return false, nil }
func (s stubUsers) ListByRole(context.Context, domain.Role) ([]domain.User, error) {
	return nil, nil
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	user := &domain.User{ID: "u-1", Role: domain.RoleSpecialist}

	meta, signed, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, meta.ExpiresAt.Sub(meta.IssuedAt))
	assert.False(t, meta.Expired(meta.IssuedAt))
	assert.True(t, meta.Expired(meta.ExpiresAt))

	claims, err := tm.ParseToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, domain.RoleSpecialist, claims.Role)

	_, err = NewTokenManager("other", 30).ParseToken(signed)
	assert.Error(t, err)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	_, signed, err := tm.GenerateToken(&domain.User{ID: "u-1", Role: domain.RoleStudent})
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.ParseToken(signed)
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter22"))
	assert.Error(t, ComparePassword(hash, "hunter23"))

	temp, err := GenerateTempPassword(16)
	require.NoError(t, err)
	assert.Len(t, temp, 16)
	assert.NotContains(t, temp, "0")
	assert.NotContains(t, temp, "O")
}

func newGuardedApp(tm *TokenManager, users stubUsers, guard fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.SendStatus(fe.Code)
		}
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/", mw.Handle, guard, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Role()))
	})
	return app
}

func TestMiddlewareAndRoleGuards(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	it := domain.DepartmentITSupport
	users := stubUsers{users: map[string]*domain.User{
		"u-s": {ID: "u-s", Role: domain.RoleStudent},
		"u-p": {ID: "u-p", Role: domain.RoleSpecialist, Department: &it},
	}}
	token := func(u *domain.User) string {
		_, signed, err := tm.GenerateToken(u)
		require.NoError(t, err)
		return signed
	}

	cases := []struct {
		name   string
		header string
		guard  fiber.Handler
		want   int
	}{
		{"missing header", "", RequireAnyRole(), http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", RequireAnyRole(), http.StatusUnauthorized},
		{"garbage token", "Bearer abc", RequireAnyRole(), http.StatusUnauthorized},
		{"unknown user", "Bearer " + token(&domain.User{ID: "u-x", Role: domain.RoleStudent}), RequireAnyRole(), http.StatusUnauthorized},
		{"student passes any role", "Bearer " + token(users.users["u-s"]), RequireAnyRole(), http.StatusOK},
		{"student blocked from staff", "Bearer " + token(users.users["u-s"]), RequireStaff(), http.StatusForbidden},
		{"specialist is staff", "Bearer " + token(users.users["u-p"]), RequireStaff(), http.StatusOK},
		{"specialist is not officer", "Bearer " + token(users.users["u-p"]), RequireRole(domain.RoleProgramOfficer), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := newGuardedApp(tm, users, tc.guard).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestStoredRoleWinsOverToken(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	users := stubUsers{users: map[string]*domain.User{"u-1": {ID: "u-1", Role: domain.RoleStudent}}}
	_, signed, err := tm.GenerateToken(&domain.User{ID: "u-1", Role: domain.RoleProgramOfficer})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := newGuardedApp(tm, users, RequireRole(domain.RoleProgramOfficer)).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
