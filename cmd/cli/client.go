package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Error, e.Body.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Body.Error)
}

// versionConflict reports whether err is an optimistic-lock rejection that
// a re-read can fix.
func versionConflict(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Body.Code == domain.KindConcurrencyConflict.String()
}

type apiClient struct {
	baseURL    string
	token      string
	http       *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		token:      token,
		http:       &http.Client{Timeout: timeout},
		maxRetries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(raw, &apiErr.Body); jsonErr != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// withVersionRetry reruns op while the server reports a version conflict.
// op must re-read the resource so each attempt sends a fresh If-Match.
func (c *apiClient) withVersionRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !versionConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// updateInvoice reads the invoice, then sends body to path with its version
// in If-Match.
func (c *apiClient) updateInvoice(ctx context.Context, invoiceID, suffix string, body any) (*dto.InvoiceResponse, error) {
	var updated dto.InvoiceResponse

	err := c.withVersionRetry(ctx, func() error {
		var current dto.InvoiceResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/invoices/"+invoiceID, nil, &current, nil); err != nil {
			return err
		}

		return c.do(ctx, http.MethodPut, "/api/v1/invoices/"+invoiceID+suffix, body, &updated, map[string]string{
			"If-Match": strconv.Quote(strconv.FormatInt(current.Version, 10)),
		})
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}
