package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

type partialPaymentServiceStub struct {
	registerFn func(ctx context.Context, input usecase.RegisterPartialPaymentInput) (*usecase.RegisterPartialPaymentResult, error)
	deleteFn   func(ctx context.Context, paymentID string) (bool, error)
}

func (s *partialPaymentServiceStub) Register(ctx context.Context, input usecase.RegisterPartialPaymentInput) (*usecase.RegisterPartialPaymentResult, error) {
	return s.registerFn(ctx, input)
}

func (s *partialPaymentServiceStub) Delete(ctx context.Context, paymentID string) (bool, error) {
	return s.deleteFn(ctx, paymentID)
}

func (s *partialPaymentServiceStub) GetPartialPayment(ctx context.Context, id string) (*domain.PartialPayment, error) {
	return &domain.PartialPayment{ID: id, Amount: decimal.NewFromInt(10)}, nil
}

func (s *partialPaymentServiceStub) ListByInvoice(ctx context.Context, invoiceID string) ([]*domain.PartialPayment, error) {
	return []*domain.PartialPayment{{ID: "p-1", InvoiceID: invoiceID}}, nil
}

func TestPartialPaymentHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "registered", body: `{"amount":"25.50","description":"early"}`, wantStatus: http.StatusCreated},
		{name: "card disallows partial payments", body: `{"amount":"25.50"}`, err: domain.ErrPartialPaymentNotAllowed, wantStatus: http.StatusConflict},
		{name: "missing amount", body: `{}`, err: domain.ErrInvalidPaymentAmount, wantStatus: http.StatusBadRequest},
		{name: "closed invoice", body: `{"amount":"1"}`, err: domain.ErrInvoiceClosed, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured usecase.RegisterPartialPaymentInput
			handler := NewPartialPaymentHandler(&partialPaymentServiceStub{
				registerFn: func(ctx context.Context, input usecase.RegisterPartialPaymentInput) (*usecase.RegisterPartialPaymentResult, error) {
					captured = input
					if tt.err != nil {
						return nil, tt.err
					}
					return &usecase.RegisterPartialPaymentResult{
						Payment:        &domain.PartialPayment{ID: "p-1", InvoiceID: input.InvoiceID, Amount: input.Amount.Decimal},
						AvailableLimit: &domain.AvailableLimit{AvailableLimit: decimal.NewFromInt(975)},
					}, nil
				},
			})

			req := setChiURLParam(httptest.NewRequest(http.MethodPost, "/invoices/inv-1/partial-payments", bytes.NewBufferString(tt.body)), "id", "inv-1")
			rec := httptest.NewRecorder()

			handler.Register(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if captured.InvoiceID != "inv-1" {
				t.Fatalf("expected invoice from path, got %+v", captured)
			}
			if tt.err != nil {
				return
			}

			var resp dto.RegisterPartialPaymentResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !resp.Payment.Amount.Equal(decimal.RequireFromString("25.5")) || resp.AvailableLimit == nil {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestPartialPaymentHandler_Delete(t *testing.T) {
	handler := NewPartialPaymentHandler(&partialPaymentServiceStub{
		deleteFn: func(ctx context.Context, paymentID string) (bool, error) {
			switch paymentID {
			case "gone":
				return false, domain.ErrPartialPaymentNotFound
			case "orphan":
				return false, domain.ErrInvalidState
			}
			return true, nil
		},
	})

	for id, want := range map[string]int{
		"p-1":    http.StatusNoContent,
		"gone":   http.StatusNotFound,
		"orphan": http.StatusConflict,
	} {
		rec := httptest.NewRecorder()
		handler.Delete(rec, setChiURLParam(httptest.NewRequest(http.MethodDelete, "/partial-payments/"+id, nil), "id", id))
		if rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", id, want, rec.Code)
		}
	}
}

func TestPartialPaymentHandler_GetAndList(t *testing.T) {
	handler := NewPartialPaymentHandler(&partialPaymentServiceStub{})

	rec := httptest.NewRecorder()
	handler.Get(rec, setChiURLParam(httptest.NewRequest(http.MethodGet, "/partial-payments/p-9", nil), "id", "p-9"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ListByInvoice(rec, setChiURLParam(httptest.NewRequest(http.MethodGet, "/invoices/inv-1/partial-payments", nil), "id", "inv-1"))

	var resp []dto.PartialPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].InvoiceID != "inv-1" {
		t.Fatalf("unexpected list: %+v", resp)
	}
}
