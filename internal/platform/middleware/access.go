package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/auth"
)

// Access kinds reported to the recorder.
const (
	AccessDenied       = "denied"
	AccessVitalsViewed = "vitals_viewed"
)

// AccessEntry describes one request worth keeping in the audit trail.
type AccessEntry struct {
	Kind       string
	UserID     string
	UserRoles  []string
	PatientID  string
	Method     string
	Path       string
	IPAddress  string
	UserAgent  string
	StatusCode int
	RequestID  string
	Timestamp  time.Time
}

// AccessRecorder persists access entries. Implementations must not block the
// request for long; the audit service writes these asynchronously.
type AccessRecorder interface {
	RecordAccess(ctx context.Context, entry AccessEntry)
}

type AccessRecorderFunc func(ctx context.Context, entry AccessEntry)

func (f AccessRecorderFunc) RecordAccess(ctx context.Context, entry AccessEntry) {
	f(ctx, entry)
}

// AccessAudit records rejected requests and successful reads of a patient's
// vitals under /api/v1/.
func AccessAudit(logger zerolog.Logger, recorder AccessRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			kind := accessKind(req.Method, c.Path(), status)
			if kind == "" {
				return err
			}

			// Auth runs inside this middleware, so the user is only on the
			// request after next returns.
			ctx := c.Request().Context()
			entry := AccessEntry{
				Kind:       kind,
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				PatientID:  c.Param("patient_id"),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				RequestID:  requestID(c),
				Timestamp:  time.Now().UTC(),
			}
			if recorder != nil {
				recorder.RecordAccess(ctx, entry)
			}

			evt := logger.Info()
			if kind == AccessDenied {
				evt = logger.Warn()
			}
			evt.
				Str("type", "access_audit").
				Str("kind", entry.Kind).
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Msg("access")

			return err
		}
	}
}

func accessKind(method, route string, status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AccessDenied
	case method == http.MethodGet && status < http.StatusBadRequest && strings.Contains(route, "/vitals"):
		return AccessVitalsViewed
	}
	return ""
}
