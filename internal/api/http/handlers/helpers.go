package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("department", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseDepartment(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParsePriority(fl.Field().String())
		return ok
	})
	return v
}

// bind parses the JSON body into req and runs its validate tags.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return apperrors.NewValidationError("invalid payload", details)
		}
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return nil
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("user required")
	}
	return principal.User, nil
}

func parseDate(val string) (time.Time, bool) {
	if val == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseDateRange reads ?from and ?to, defaulting to the last 30 days.
func parseDateRange(c *fiber.Ctx, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		parsed, ok := parseDate(raw)
		if !ok {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("from must be YYYY-MM-DD", nil)
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, ok := parseDate(raw)
		if !ok {
			return time.Time{}, time.Time{}, apperrors.NewValidationError("to must be YYYY-MM-DD", nil)
		}
		to = parsed
	}
	return from, to, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitCSV(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
