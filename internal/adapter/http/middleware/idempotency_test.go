package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/cardledger/internal/domain"
)

type fakeIdempotencyStore struct {
	checkAndSetFn func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	updateFn      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
}

func (f *fakeIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if f.checkAndSetFn != nil {
		return f.checkAndSetFn(ctx, key, response, ttl)
	}
	return false, nil, nil
}

func (f *fakeIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, key, response, ttl)
	}
	return nil
}

func newIdempotencyMiddleware(store *fakeIdempotencyStore) *IdempotencyMiddleware {
	return NewIdempotencyMiddleware(store, time.Hour, zerolog.Nop())
}

func newKeyedRequest(method, key string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/purchases", bytes.NewBufferString(`{}`))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req
}

func TestIdempotencyMiddleware_StoreErrors(t *testing.T) {
	var called bool
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return false, nil, context.DeadlineExceeded
		},
	}
	rr := httptest.NewRecorder()

	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rr, newKeyedRequest(http.MethodPost, "key-err"))

	if called {
		t.Fatalf("handler should not be called when store errors")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_SkipsNonMutatingRequests(t *testing.T) {
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			t.Fatalf("store should not be consulted for GET")
			return false, nil, nil
		},
	}

	called := false
	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), newKeyedRequest(http.MethodGet, "key"))

	if !called {
		t.Fatalf("expected next handler to be called")
	}
}

func TestIdempotencyMiddleware_ScopesKeyToRoute(t *testing.T) {
	var seen string
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			seen = key
			if ttl != time.Hour {
				t.Fatalf("expected configured TTL, got %s", ttl)
			}
			return false, nil, nil
		},
	}

	handler := newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), newKeyedRequest(http.MethodPost, "abc"))
	if seen != "POST:/api/v1/purchases:system:abc" {
		t.Fatalf("unexpected store key %q", seen)
	}

	req := newKeyedRequest(http.MethodPost, "abc")
	req = req.WithContext(domain.ContextWithUser(req.Context(), &domain.User{ID: "u-42", Role: domain.RoleOperator}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "POST:/api/v1/purchases:u-42:abc" {
		t.Fatalf("expected key scoped to the user, got %q", seen)
	}
}

func TestIdempotencyMiddleware_PendingKeyConflicts(t *testing.T) {
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, []byte("processing"), nil
		},
	}
	rr := httptest.NewRecorder()

	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run while the first request is in flight")
	})).ServeHTTP(rr, newKeyedRequest(http.MethodPost, "key-pending"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_ReplaysStoredResponse(t *testing.T) {
	stored, _ := json.Marshal(storedResponse{Status: http.StatusCreated, Body: []byte(`{"cached":true}`)})
	store := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, stored, nil
		},
	}
	rr := httptest.NewRecorder()

	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called when cached response exists")
	})).ServeHTTP(rr, newKeyedRequest(http.MethodPost, "key-123"))

	if rr.Header().Get(ReplayHeader) != "true" {
		t.Fatalf("expected %s header to be set", ReplayHeader)
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != `{"cached":true}` {
		t.Fatalf("unexpected cached body: %s", got)
	}
}

func TestIdempotencyMiddleware_StoresResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantTTL time.Duration
	}{
		{name: "success", status: http.StatusCreated, wantTTL: time.Hour},
		{name: "client error is replayed", status: http.StatusConflict, wantTTL: time.Hour},
		{name: "server error is held briefly", status: http.StatusInternalServerError, wantTTL: failureHoldTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var updated []byte
			var updatedTTL time.Duration
			store := &fakeIdempotencyStore{
				updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
					updated = append([]byte(nil), response...)
					updatedTTL = ttl
					return nil
				},
			}
			rr := httptest.NewRecorder()

			newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"ok":true}`))
			})).ServeHTTP(rr, newKeyedRequest(http.MethodPut, "key-456"))

			if rr.Code != tt.status {
				t.Fatalf("unexpected status code: %d", rr.Code)
			}
			if updatedTTL != tt.wantTTL {
				t.Fatalf("expected TTL %s, got %s", tt.wantTTL, updatedTTL)
			}

			var got storedResponse
			if err := json.Unmarshal(updated, &got); err != nil {
				t.Fatalf("stored payload is not an envelope: %v", err)
			}
			if got.Status != tt.status || string(got.Body) != `{"ok":true}` {
				t.Fatalf("unexpected stored response: %+v", got)
			}
		})
	}
}

func TestIdempotencyMiddleware_ReplaysHeaders(t *testing.T) {
	var updated []byte
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			updated = append([]byte(nil), response...)
			return nil
		},
	}

	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"3"`)
		w.Header().Set("Location", "/api/v1/purchases/b-1")
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(httptest.NewRecorder(), newKeyedRequest(http.MethodPost, "key-h"))

	replayStore := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, updated, nil
		},
	}
	rr := httptest.NewRecorder()
	newIdempotencyMiddleware(replayStore).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run on replay")
	})).ServeHTTP(rr, newKeyedRequest(http.MethodPost, "key-h"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rr.Code)
	}
	if got := rr.Header().Get("ETag"); got != `"3"` {
		t.Fatalf("expected ETag replayed, got %q", got)
	}
	if got := rr.Header().Get("Location"); got != "/api/v1/purchases/b-1" {
		t.Fatalf("expected Location replayed, got %q", got)
	}
}

func TestIdempotencyMiddleware_RejectsDifferentBody(t *testing.T) {
	var updated []byte
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			updated = append([]byte(nil), response...)
			return nil
		},
	}

	first := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", bytes.NewBufferString(`{"totalAmount":"10.00"}`))
	first.Header.Set(IdempotencyKeyHeader, "key-b")
	newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})).ServeHTTP(httptest.NewRecorder(), first)

	replayStore := &fakeIdempotencyStore{
		checkAndSetFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
			return true, updated, nil
		},
	}
	handler := newIdempotencyMiddleware(replayStore).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for a reused key")
	}))

	same := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", bytes.NewBufferString(`{"totalAmount":"10.00"}`))
	same.Header.Set(IdempotencyKeyHeader, "key-b")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, same)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected identical body to replay 201, got %d", rr.Code)
	}

	changed := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", bytes.NewBufferString(`{"totalAmount":"99.00"}`))
	changed.Header.Set(IdempotencyKeyHeader, "key-b")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, changed)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a different body, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_HandlerReadsFullBody(t *testing.T) {
	var got string
	newIdempotencyMiddleware(&fakeIdempotencyStore{}).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	})).ServeHTTP(httptest.NewRecorder(), newKeyedRequest(http.MethodPost, "key-r"))

	if got != `{}` {
		t.Fatalf("expected handler to see the original body, got %q", got)
	}
}

func TestIdempotencyMiddleware_PanicReleasesKey(t *testing.T) {
	var updated []byte
	var updatedTTL time.Duration
	store := &fakeIdempotencyStore{
		updateFn: func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
			updated = append([]byte(nil), response...)
			updatedTTL = ttl
			return nil
		},
	}

	handler := Recovery(zerolog.Nop())(newIdempotencyMiddleware(store).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newKeyedRequest(http.MethodPost, "key-panic"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovery, got %d", rr.Code)
	}
	if updated == nil {
		t.Fatalf("expected the pending marker to be replaced")
	}
	if updatedTTL != failureHoldTTL {
		t.Fatalf("expected failure hold TTL, got %s", updatedTTL)
	}

	var stored storedResponse
	if err := json.Unmarshal(updated, &stored); err != nil {
		t.Fatalf("stored payload is not an envelope: %v", err)
	}
	if stored.Status != http.StatusInternalServerError {
		t.Fatalf("expected stored 500, got %d", stored.Status)
	}
}
