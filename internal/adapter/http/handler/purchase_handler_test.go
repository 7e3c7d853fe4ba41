package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/adapter/http/dto"
	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

type purchaseServiceStub struct {
	registerFn func(ctx context.Context, input usecase.RegisterPurchaseInput) (*usecase.Purchase, error)
	deleteFn   func(ctx context.Context, billID string) error
	previewFn  func(ctx context.Context, input usecase.PreviewScheduleInput) ([]domain.PlannedInstallment, error)
	listInput  usecase.ListPurchasesByCardInput
}

func (s *purchaseServiceStub) RegisterPurchase(ctx context.Context, input usecase.RegisterPurchaseInput) (*usecase.Purchase, error) {
	return s.registerFn(ctx, input)
}

func (s *purchaseServiceStub) GetPurchase(ctx context.Context, billID string) (*usecase.Purchase, error) {
	if billID == "missing" {
		return nil, domain.ErrBillNotFound
	}
	return &usecase.Purchase{Bill: &domain.Bill{ID: billID}}, nil
}

func (s *purchaseServiceStub) ListPurchasesByCard(ctx context.Context, input usecase.ListPurchasesByCardInput) ([]*domain.Bill, error) {
	s.listInput = input
	return []*domain.Bill{{ID: "b-2"}, {ID: "b-1"}}, nil
}

func (s *purchaseServiceStub) DeletePurchase(ctx context.Context, billID string) error {
	return s.deleteFn(ctx, billID)
}

func (s *purchaseServiceStub) PreviewSchedule(ctx context.Context, input usecase.PreviewScheduleInput) ([]domain.PlannedInstallment, error) {
	return s.previewFn(ctx, input)
}

func TestPurchaseHandler_Create(t *testing.T) {
	purchasedAt := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

	var captured usecase.RegisterPurchaseInput
	handler := NewPurchaseHandler(&purchaseServiceStub{
		registerFn: func(ctx context.Context, input usecase.RegisterPurchaseInput) (*usecase.Purchase, error) {
			captured = input
			return &usecase.Purchase{
				Bill: &domain.Bill{ID: "bill-1", TotalAmount: input.TotalAmount, InstallmentCount: 2},
				Installments: []*domain.Installment{
					{ID: "i-1", InstallmentNumber: 1, Amount: decimal.NewFromInt(50), DueDate: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)},
					{ID: "i-2", InstallmentNumber: 2, Amount: decimal.NewFromInt(50), DueDate: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)},
				},
			}, nil
		},
	})

	body := `{"credit_card_id":"card-1","description":"shoes","total_amount":"100","installment_count":2,"purchased_at":"2024-03-05T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/purchases", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PurchasedAt == nil || !captured.PurchasedAt.Equal(purchasedAt) || captured.InstallmentCount != 2 {
		t.Fatalf("unexpected input: %+v", captured)
	}

	var resp dto.PurchaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Installments) != 2 || resp.Installments[1].DueDate != "2024-04-20" {
		t.Fatalf("unexpected installments: %+v", resp.Installments)
	}
}

func TestPurchaseHandler_Create_ClosedInvoice(t *testing.T) {
	handler := NewPurchaseHandler(&purchaseServiceStub{
		registerFn: func(ctx context.Context, input usecase.RegisterPurchaseInput) (*usecase.Purchase, error) {
			return nil, domain.ErrInvoiceClosed
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/purchases", bytes.NewBufferString(`{"credit_card_id":"card-1","total_amount":"10","installment_count":1}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPurchaseHandler_Preview(t *testing.T) {
	handler := NewPurchaseHandler(&purchaseServiceStub{
		previewFn: func(ctx context.Context, input usecase.PreviewScheduleInput) ([]domain.PlannedInstallment, error) {
			return []domain.PlannedInstallment{
				{Number: 1, Amount: decimal.NewFromInt(30), DueDate: time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), ReferenceMonth: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/purchases/preview", bytes.NewBufferString(`{"credit_card_id":"card-1","total_amount":"30","installment_count":1}`))
	rec := httptest.NewRecorder()

	handler.Preview(rec, req)

	var resp []dto.PlannedInstallmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Code != http.StatusOK || len(resp) != 1 || resp[0].ReferenceMonth != "2024-12" {
		t.Fatalf("unexpected preview: %d %+v", rec.Code, resp)
	}
}

func TestPurchaseHandler_GetDeleteList(t *testing.T) {
	stub := &purchaseServiceStub{
		deleteFn: func(ctx context.Context, billID string) error {
			if billID == "locked" {
				return domain.ErrInvoiceClosed
			}
			return nil
		},
	}
	handler := NewPurchaseHandler(stub)

	rec := httptest.NewRecorder()
	handler.Get(rec, setChiURLParam(httptest.NewRequest(http.MethodGet, "/purchases/missing", nil), "id", "missing"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Delete(rec, setChiURLParam(httptest.NewRequest(http.MethodDelete, "/purchases/bill-1", nil), "id", "bill-1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Delete(rec, setChiURLParam(httptest.NewRequest(http.MethodDelete, "/purchases/locked", nil), "id", "locked"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ListByCard(rec, setChiURLParam(httptest.NewRequest(http.MethodGet, "/credit-cards/card-1/purchases?limit=7", nil), "id", "card-1"))
	if rec.Code != http.StatusOK || stub.listInput.CreditCardID != "card-1" || stub.listInput.Limit != 7 {
		t.Fatalf("unexpected list call: %d %+v", rec.Code, stub.listInput)
	}
}
