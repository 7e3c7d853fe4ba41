package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/cardledger/internal/adapter/http/dto"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	defer func() { stdout = orig }()

	fn()

	return buf.String()
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected short unchanged, got %q", got)
	}

	if got := truncate("longerstring", 6); got != "lon..." {
		t.Fatalf("expected lon..., got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	out := captureOutput(t, func() {
		printJSON(struct {
			A int `json:"a"`
		}{A: 1})
	})

	expected := "{\n  \"a\": 1\n}\n"
	if out != expected {
		t.Fatalf("unexpected json output:\n%s", out)
	}
}

func TestScheduleCmd(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"schedule",
		"--amount", "100",
		"--installments", "3",
		"--closing-day", "10",
		"--due-day", "20",
		"--date", "2024-01-05",
	})

	out := captureOutput(t, func() {
		require.NoError(t, cmd.Execute())
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "33.33")
	assert.Contains(t, lines[1], "2024-01-20")
	assert.Contains(t, lines[1], "2024-01")
	assert.Contains(t, lines[3], "33.34")
	assert.Contains(t, lines[3], "2024-03-20")
}

func TestScheduleCmd_InvalidAmount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"schedule", "--amount", "abc", "--closing-day", "10", "--due-day", "20"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --amount")
}

func newTestClient(url string) *apiClient {
	c := newAPIClient(url, "tok", time.Second)
	c.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestUpdateInvoice_RetriesVersionConflict(t *testing.T) {
	var puts atomic.Int32
	var version atomic.Int64
	version.Store(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(dto.InvoiceResponse{ID: "inv-1", Version: version.Load()})
		case http.MethodPut:
			// The first write loses a race with another client.
			if puts.Add(1) == 1 {
				version.Store(2)
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "failed to set paid flag", Code: "concurrency_conflict"})
				return
			}
			assert.Equal(t, `"2"`, r.Header.Get("If-Match"))
			_ = json.NewEncoder(w).Encode(dto.InvoiceResponse{ID: "inv-1", Status: "PAID", Version: 3})
		}
	}))
	defer srv.Close()

	inv, err := newTestClient(srv.URL).updateInvoice(context.Background(), "inv-1", "/paid", dto.SetPaidRequest{Paid: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inv.Version)
	assert.Equal(t, int32(2), puts.Load())
}

func TestUpdateInvoice_StateConflictIsNotRetried(t *testing.T) {
	var puts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(dto.InvoiceResponse{ID: "inv-1", Version: 1})
			return
		}
		puts.Add(1)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Error: "failed to set paid flag", Code: "state_conflict", Message: "invoice is closed"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).updateInvoice(context.Background(), "inv-1", "/paid", dto.SetPaidRequest{Paid: true})
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "state_conflict", apiErr.Body.Code)
	assert.Equal(t, int32(1), puts.Load())
}

func TestAPIClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).do(context.Background(), http.MethodGet, "/x", nil, nil, nil)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Body.Error)
}

func TestMigrateCmd(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "down"})
	assert.ErrorIs(t, cmd.Execute(), errMissingDatabaseURL)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"migrate", "down", "--database-url", "postgres://invalid:5432/db", "--steps", "0"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps must be positive")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"migrate", "up", "--database-url", "postgres://invalid:5432/db", "--path", t.TempDir() + "/missing"})
	assert.Error(t, cmd.Execute())
}
