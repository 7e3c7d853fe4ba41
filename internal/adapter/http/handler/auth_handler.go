package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/auth"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// AuthHandler issues development tokens. There is no user store: any caller
// that can reach the endpoint may mint a token for any valid role, so it is
// only mounted when authentication is enabled for local and test setups.
type AuthHandler struct {
	jwtManager *auth.JWTManager
	metrics    *metrics.Metrics
	expiration time.Duration
	now        func() time.Time
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(jwtManager *auth.JWTManager, expiration time.Duration, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		metrics:    m,
		expiration: expiration,
		now:        time.Now,
	}
}

// IssueToken handles POST /auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if !decodeJSON(w, r, &req) {
		h.record("failure", "bad_request")
		return
	}

	user := &domain.User{
		ID:    strings.TrimSpace(req.UserID),
		Email: req.Email,
		Role:  domain.Role(req.Role),
	}
	if user.ID == "" || !user.Role.IsValid() {
		h.record("failure", "invalid_subject")
		writeError(w, http.StatusBadRequest, "invalid token request", "user_id and a role of admin, operator or viewer are required")
		return
	}

	issuedAt := h.now()
	token, err := h.jwtManager.Generate(user)
	if err != nil {
		h.record("failure", "sign")
		writeError(w, http.StatusInternalServerError, "failed to generate token", err.Error())
		return
	}

	h.record("success", "")
	writeJSON(w, http.StatusOK, dto.TokenResponse{
		Token:     token,
		ExpiresAt: issuedAt.Add(h.expiration).UTC(),
		UserID:    user.ID,
		Role:      string(user.Role),
	})
}

// CurrentUser returns the caller resolved by the auth middleware.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := domain.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"role":  string(user.Role),
	})
}

func (h *AuthHandler) record(status, reason string) {
	if h.metrics == nil {
		return
	}
	h.metrics.AuthAttempts.WithLabelValues(status).Inc()
	if reason != "" {
		h.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}
