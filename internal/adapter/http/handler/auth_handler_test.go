package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/auth"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

func TestAuthHandler_IssueToken(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	manager := auth.NewJWTManager("secret", time.Hour)
	h := NewAuthHandler(manager, time.Hour, m)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(`{"user_id":"u-1","email":"ops@example.com","role":"operator"}`))
	rec := httptest.NewRecorder()

	h.IssueToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	claims, err := manager.Verify(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != domain.RoleOperator {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected one successful attempt, got %v", got)
	}
}

func TestAuthHandler_IssueToken_Rejects(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	h := NewAuthHandler(auth.NewJWTManager("secret", time.Hour), time.Hour, m)

	for _, body := range []string{`{"user_id":"u-1","role":"root"}`, `{"role":"admin"}`, `not json`} {
		rec := httptest.NewRecorder()
		h.IssueToken(rec, httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}

	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("failure")); got != 3 {
		t.Fatalf("expected three failed attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues("invalid_subject")); got != 2 {
		t.Fatalf("expected two invalid subjects, got %v", got)
	}
}

func TestAuthHandler_CurrentUser(t *testing.T) {
	h := NewAuthHandler(auth.NewJWTManager("secret", time.Hour), time.Hour, nil)

	rec := httptest.NewRecorder()
	h.CurrentUser(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(domain.ContextWithUser(req.Context(), &domain.User{ID: "u-1", Role: domain.RoleViewer}))
	rec = httptest.NewRecorder()
	h.CurrentUser(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
