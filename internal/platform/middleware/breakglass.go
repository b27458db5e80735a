package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chartlock/chartlock/internal/platform/auth"
)

// EmergencyRecorder persists a break-glass access entry at the moment the
// override is invoked. Implemented by the breakglass domain service.
type EmergencyRecorder interface {
	RecordEmergencyAccess(ctx context.Context, userID, patientID, reason, justification string) (string, error)
}

// breakGlassContextKey is the unexported type used for break-glass context
// values to avoid collisions with other packages.
type breakGlassContextKey string

const (
	breakGlassKey       breakGlassContextKey = "break_glass"
	breakGlassReasonKey breakGlassContextKey = "break_glass_reason"
)

// breakGlassRateLimit tracks per-user request counts within a rolling window.
type breakGlassRateLimit struct {
	mu      sync.Mutex
	entries map[string][]time.Time // userID -> list of request timestamps
}

func newBreakGlassRateLimit() *breakGlassRateLimit {
	return &breakGlassRateLimit{
		entries: make(map[string][]time.Time),
	}
}

// allow checks whether the user is under the break-glass rate limit.
// It keeps only timestamps within the last hour and enforces a maximum of
// maxPerHour requests. The caller supplies the current time so that tests
// can inject a deterministic clock.
func (rl *breakGlassRateLimit) allow(userID string, now time.Time, maxPerHour int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-1 * time.Hour)

	existing := rl.entries[userID]
	pruned := existing[:0]
	for _, ts := range existing {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= maxPerHour {
		rl.entries[userID] = pruned
		return false
	}

	rl.entries[userID] = append(pruned, now)
	return true
}

// cleanup removes all entries older than one hour. Called periodically from
// a background goroutine to prevent unbounded memory growth.
func (rl *breakGlassRateLimit) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-1 * time.Hour)
	for userID, timestamps := range rl.entries {
		pruned := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				pruned = append(pruned, ts)
			}
		}
		if len(pruned) == 0 {
			delete(rl.entries, userID)
		} else {
			rl.entries[userID] = pruned
		}
	}
}

const (
	breakGlassMaxPerHour    = 10
	breakGlassCleanupPeriod = 5 * time.Minute
)

// BreakGlass returns Echo middleware implementing the emergency override for
// clinical data access. When a request carries the X-Break-Glass header with
// a non-empty justification, the middleware:
//
//  1. Verifies the user is authenticated.
//  2. Enforces a per-user rate limit (10 requests per hour).
//  3. Records a break-glass log entry via the EmergencyRecorder, which puts
//     the access into the compliance review queue.
//  4. Stores break_glass flags in the request context for downstream audit
//     logging.
//  5. Emits a WARN-level structured log entry.
//
// The recorder write is mandatory: if the entry cannot be persisted the
// override is refused, since emergency access without a reviewable record
// is a compliance violation.
func BreakGlass(logger zerolog.Logger, recorder EmergencyRecorder) echo.MiddlewareFunc {
	rl := newBreakGlassRateLimit()

	go func() {
		ticker := time.NewTicker(breakGlassCleanupPeriod)
		defer ticker.Stop()
		for range ticker.C {
			rl.cleanup(time.Now())
		}
	}()

	return breakGlassMiddleware(logger, recorder, rl, time.Now)
}

// breakGlassMiddleware is the internal constructor that accepts a clock
// function for testing determinism and a pre-built rate limiter.
func breakGlassMiddleware(logger zerolog.Logger, recorder EmergencyRecorder, rl *breakGlassRateLimit, nowFn func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			justification := strings.TrimSpace(req.Header.Get("X-Break-Glass"))
			if justification == "" {
				return next(c)
			}

			ctx := req.Context()
			identity := auth.IdentityFromContext(ctx)
			if identity == nil || identity.UserID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "break-glass requires authentication")
			}

			now := nowFn()
			if !rl.allow(identity.UserID, now, breakGlassMaxPerHour) {
				return echo.NewHTTPError(http.StatusTooManyRequests,
					"break-glass rate limit exceeded: maximum 10 requests per user per hour")
			}

			patientID := extractPatientID(c)
			if patientID != "" && recorder != nil {
				if _, err := recorder.RecordEmergencyAccess(ctx, identity.UserID, patientID, "Emergency access", justification); err != nil {
					logger.Error().Err(err).
						Str("user_id", identity.UserID).
						Str("patient_id", patientID).
						Msg("failed to record break-glass entry")
					return echo.NewHTTPError(http.StatusInternalServerError, "break-glass logging failed")
				}
			}

			ctx = context.WithValue(ctx, breakGlassKey, true)
			ctx = context.WithValue(ctx, breakGlassReasonKey, justification)
			c.SetRequest(req.WithContext(ctx))

			logger.Warn().
				Str("type", "break_glass").
				Str("user_id", identity.UserID).
				Strs("roles", identity.Roles).
				Str("patient_id", patientID).
				Str("justification", justification).
				Str("path", req.URL.Path).
				Str("method", req.Method).
				Str("remote_ip", c.RealIP()).
				Time("timestamp", now).
				Msg("break_glass_override")

			return next(c)
		}
	}
}

// extractPatientID finds a patient identifier in the request: the
// patient_id query param, or the :id segment of patient-scoped paths.
func extractPatientID(c echo.Context) string {
	if pid := c.QueryParam("patient_id"); pid != "" {
		return pid
	}
	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		segments := strings.Split(strings.TrimPrefix(path, "/api/v1/patients/"), "/")
		if len(segments) > 0 && segments[0] != "" {
			return segments[0]
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

// IsBreakGlass returns true if the request is a break-glass override.
func IsBreakGlass(ctx context.Context) bool {
	v, _ := ctx.Value(breakGlassKey).(bool)
	return v
}

// BreakGlassReason returns the justification provided in the X-Break-Glass
// header, or an empty string if break-glass was not invoked.
func BreakGlassReason(ctx context.Context) string {
	v, _ := ctx.Value(breakGlassReasonKey).(string)
	return v
}
