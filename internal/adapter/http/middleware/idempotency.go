package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	redisrepo "github.com/iho/cardledger/internal/adapter/repository/redis"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"

	// ReplayHeader marks a response served from the idempotency store.
	ReplayHeader = "X-Idempotency-Replay"

	// Server failures are kept only long enough to absorb a burst of
	// duplicate submissions, then the key frees up for a real retry.
	failureHoldTTL = 5 * time.Second
)

// replayedHeaders are copied from the first response into every replay.
var replayedHeaders = []string{"Content-Type", "ETag", "Location"}

// storedResponse is what the store keeps for a finished request.
type storedResponse struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
}

// IdempotencyMiddleware replays the first response for a repeated
// Idempotency-Key on POST and PUT requests. Keys are scoped to the method,
// the path and the calling user.
type IdempotencyMiddleware struct {
	store  usecase.IdempotencyStore
	ttl    time.Duration
	logger zerolog.Logger
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration, logger zerolog.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = usecase.IdempotencyKeyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl, logger: logger}
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		key = r.Method + ":" + r.URL.Path + ":" + domain.ActorID(r.Context()) + ":" + key

		var body []byte
		if r.Body != nil {
			var err error
			if body, err = io.ReadAll(r.Body); err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		sum := sha256.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])

		exists, cached, err := m.store.CheckAndSet(r.Context(), key, nil, m.ttl)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("idempotency check failed")
			writeJSONError(w, http.StatusInternalServerError, "idempotency check failed")
			return
		}

		if exists {
			if redisrepo.IsPending(cached) {
				writeJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress")
				return
			}
			m.replay(w, cached, fingerprint)
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}

		// The pending marker must not outlive a panicking handler, or every
		// retry with this key gets a conflict until the TTL expires.
		finished := false
		defer func() {
			if finished {
				return
			}
			rec := recover()
			m.save(r, key, storedResponse{
				Status:      http.StatusInternalServerError,
				Body:        []byte(`{"error":"internal server error"}` + "\n"),
				Headers:     map[string]string{"Content-Type": "application/json"},
				Fingerprint: fingerprint,
			}, failureHoldTTL)
			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(recorder, r)
		finished = true

		ttl := m.ttl
		if recorder.statusCode >= http.StatusInternalServerError {
			ttl = failureHoldTTL
		}

		headers := make(map[string]string, len(replayedHeaders))
		for _, h := range replayedHeaders {
			if v := w.Header().Get(h); v != "" {
				headers[h] = v
			}
		}

		m.save(r, key, storedResponse{
			Status:      recorder.statusCode,
			Body:        recorder.body.Bytes(),
			Headers:     headers,
			Fingerprint: fingerprint,
		}, ttl)
	})
}

func (m *IdempotencyMiddleware) save(r *http.Request, key string, resp storedResponse, ttl time.Duration) {
	payload, err := json.Marshal(resp)
	if err == nil {
		// The client may be gone; the outcome must still be recorded.
		err = m.store.Update(context.WithoutCancel(r.Context()), key, payload, ttl)
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
	}
}

func (m *IdempotencyMiddleware) replay(w http.ResponseWriter, cached []byte, fingerprint string) {
	var stored storedResponse
	if err := json.Unmarshal(cached, &stored); err != nil || stored.Status == 0 {
		// Entries written without an envelope are raw success bodies.
		stored = storedResponse{Status: http.StatusOK, Body: cached}
	}

	if stored.Fingerprint != "" && stored.Fingerprint != fingerprint {
		writeJSONError(w, http.StatusUnprocessableEntity, "idempotency key was already used with a different request body")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	for h, v := range stored.Headers {
		w.Header().Set(h, v)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
