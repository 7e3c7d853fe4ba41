package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/auth"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// Authenticator resolves bearer tokens into the request's domain.User.
type Authenticator struct {
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
}

// NewAuthenticator creates a new Authenticator. m may be nil.
func NewAuthenticator(jwtManager *auth.JWTManager, m *metrics.Metrics) *Authenticator {
	return &Authenticator{jwtManager: jwtManager, metrics: m}
}

// Require rejects requests without a valid bearer token.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, reason, err := a.authenticate(r)
		if err != nil {
			a.record("failure", reason)
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}

		a.record("success", "")
		next.ServeHTTP(w, r.WithContext(domain.ContextWithUser(r.Context(), user)))
	})
}

// Optional attaches the user when a valid token is present and otherwise
// lets the request through anonymously.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, err := a.authenticate(r); err == nil {
			r = r.WithContext(domain.ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*domain.User, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "missing_header", domain.ErrUnauthorized
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, "malformed_header", domain.ErrUnauthorized
	}

	claims, err := a.jwtManager.Verify(token)
	if err != nil {
		if errors.Is(err, domain.ErrExpiredToken) {
			return nil, "expired", err
		}
		return nil, "invalid_token", err
	}

	return claims.User(), "", nil
}

func (a *Authenticator) record(status, reason string) {
	if a.metrics == nil {
		return
	}
	a.metrics.AuthAttempts.WithLabelValues(status).Inc()
	if reason != "" {
		a.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}

// RequireRole lets the request through when allowed accepts the caller's role.
// It must run after Authenticator.Require.
func RequireRole(allowed func(domain.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := domain.UserFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
				return
			}

			if !allowed(user.Role) {
				writeJSONError(w, http.StatusForbidden, domain.ErrInsufficientRole.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CanCreate allows admins and operators.
func CanCreate(r domain.Role) bool { return r.CanCreate() }

// CanManageCards allows admins.
func CanManageCards(r domain.Role) bool { return r.CanManageCards() }

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
