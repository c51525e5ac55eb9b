package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cardiometrix/internal/types"
)

// requestIDHeader is the inbound/outbound correlation header.
const requestIDHeader = "X-Request-ID"

// userIDHeader carries the authenticated user's ID, set by the auth gateway
// in front of this service. This service trusts the gateway; it performs no
// credential checks of its own.
const userIDHeader = "X-User-ID"

// jobSecretHeader carries the shared secret presented by the scheduler on
// job-trigger routes.
const jobSecretHeader = "X-Job-Secret"

// RequestIDMiddleware propagates the inbound request ID or generates one, and
// echoes it on the response for client-side correlation.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := types.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser extracts the gateway-authenticated user ID into the context and
// rejects requests without one.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing,
				"missing user identity", nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), userID)))
	})
}

// RequireJobSecret guards the scheduled-job routes with a bcrypt-hashed
// shared secret. An empty configured hash disables the routes entirely, which
// is the safe default for environments without a scheduler.
func RequireJobSecret(secretHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretHash == "" {
				Error(w, r, types.NewAppError(types.ErrCodeAuthJobSecretInvalid,
					"job routes are not enabled", nil))
				return
			}
			secret := r.Header.Get(jobSecretHeader)
			if secret == "" ||
				bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) != nil {
				Error(w, r, types.NewAppError(types.ErrCodeAuthJobSecretInvalid,
					"invalid job secret", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// RequestLogger emits one structured log line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.InfoContext(r.Context(), "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", types.GetRequestID(r.Context())),
			)
		})
	}
}

// Recoverer converts handler panics into opaque 500 responses instead of
// dropping the connection.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panic",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
					)
					Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
						"an unexpected error occurred", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
