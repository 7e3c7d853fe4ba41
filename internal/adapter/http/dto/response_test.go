package dto

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/usecase"
)

func TestInvoiceFromDomain(t *testing.T) {
	closedAt := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	inv := &domain.Invoice{
		ID:              "inv-1",
		CreditCardID:    "card-1",
		ReferenceMonth:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount:     decimal.RequireFromString("100.50"),
		PreviousBalance: decimal.RequireFromString("-20"),
		Status:          domain.InvoiceStatusClosedUnpaid,
		Version:         4,
		ClosedAt:        &closedAt,
	}

	resp := InvoiceFromDomain(inv)
	if resp.ReferenceMonth != "2024-03" || resp.Status != "closed_unpaid" || resp.Version != 4 {
		t.Fatalf("unexpected invoice response: %+v", resp)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["total_amount"] != "100.5" || decoded["previous_balance"] != "-20" {
		t.Fatalf("expected decimal amounts as strings, got %v", decoded)
	}
}

func TestCloseInvoiceFromUseCase(t *testing.T) {
	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := &usecase.CloseResult{
		Invoice:     &domain.Invoice{ID: "march", ReferenceMonth: month, Status: domain.InvoiceStatusClosedPaid},
		FinalAmount: decimal.RequireFromString("-30"),
		Credit:      decimal.RequireFromString("30"),
	}

	resp := CloseInvoiceFromUseCase(result)
	if resp.NextInvoice != nil {
		t.Fatalf("expected no next invoice, got %+v", resp.NextInvoice)
	}

	result.NextInvoice = &domain.Invoice{ID: "april", ReferenceMonth: month.AddDate(0, 1, 0)}
	resp = CloseInvoiceFromUseCase(result)
	if resp.NextInvoice == nil || resp.NextInvoice.ReferenceMonth != "2024-04" {
		t.Fatalf("expected next invoice for April, got %+v", resp.NextInvoice)
	}
	if !resp.Credit.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected credit 30, got %s", resp.Credit)
	}
}

func TestCloseDueFromUseCase(t *testing.T) {
	resp := CloseDueFromUseCase(&usecase.CloseDueResult{
		Closed: []*usecase.CloseResult{{Invoice: &domain.Invoice{ID: "a"}}},
		Failed: []usecase.CloseFailure{{InvoiceID: "b", Err: errors.New("boom")}},
	})

	if len(resp.Closed) != 1 || resp.Closed[0].Invoice.ID != "a" {
		t.Fatalf("unexpected closed list: %+v", resp.Closed)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].InvoiceID != "b" || resp.Failed[0].Error != "boom" {
		t.Fatalf("unexpected failures: %+v", resp.Failed)
	}
}

func TestPurchaseAndScheduleFromDomain(t *testing.T) {
	due := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	p := &usecase.Purchase{
		Bill: &domain.Bill{ID: "bill-1", InstallmentCount: 1, TotalAmount: decimal.NewFromInt(10)},
		Installments: []*domain.Installment{
			{ID: "i-1", BillID: "bill-1", InvoiceID: "inv-1", InstallmentNumber: 1, Amount: decimal.NewFromInt(10), DueDate: due},
		},
	}

	resp := PurchaseFromUseCase(p)
	if resp.Bill.ID != "bill-1" || len(resp.Installments) != 1 || resp.Installments[0].DueDate != "2024-04-20" {
		t.Fatalf("unexpected purchase response: %+v", resp)
	}
	if len(resp.Invoices) != 0 {
		t.Fatalf("expected no invoices, got %d", len(resp.Invoices))
	}

	plan := ScheduleFromDomain([]domain.PlannedInstallment{
		{Number: 1, Amount: decimal.NewFromInt(10), DueDate: due, ReferenceMonth: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	})
	if plan[0].ReferenceMonth != "2024-04" || plan[0].DueDate != "2024-04-20" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestRegisterPartialPaymentFromUseCase(t *testing.T) {
	note := "early"
	resp := RegisterPartialPaymentFromUseCase(&usecase.RegisterPartialPaymentResult{
		Payment: &domain.PartialPayment{ID: "p-1", InvoiceID: "inv-1", Amount: decimal.NewFromInt(50), Description: &note},
	})
	if resp.Payment.ID != "p-1" || *resp.Payment.Description != "early" {
		t.Fatalf("unexpected payment: %+v", resp.Payment)
	}
	if resp.AvailableLimit != nil {
		t.Fatalf("expected no limit snapshot")
	}
}
