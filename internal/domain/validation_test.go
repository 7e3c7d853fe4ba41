package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateCardName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateCardName("Platinum Travel"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateCardName("   ")
		if !errors.Is(err, ErrInvalidCardName) {
			t.Fatalf("expected ErrInvalidCardName, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		tooLong := strings.Repeat("a", MaxCardNameLength+1)
		err := ValidateCardName(tooLong)
		if !errors.Is(err, ErrInvalidCardName) {
			t.Fatalf("expected ErrInvalidCardName, got %v", err)
		}
	})
}

func TestValidateDescription(t *testing.T) {
	t.Parallel()

	if err := ValidateDescription(""); err != nil {
		t.Fatalf("empty description should be allowed, got %v", err)
	}

	err := ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1))
	if !errors.Is(err, ErrInvalidDescription) {
		t.Fatalf("expected ErrInvalidDescription, got %v", err)
	}
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid input kind, got %s", KindOf(err))
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	valid := decimal.NewFromFloat(100.25)
	if err := ValidateAmount(valid); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromInt(-3)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}

	small := decimal.RequireFromString("0.001")
	if err := ValidateAmount(small); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected ErrAmountTooSmall, got %v", err)
	}

	large := decimal.RequireFromString(MaxPurchaseAmount).Add(decimal.NewFromInt(1))
	if err := ValidateAmount(large); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidateScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "whole", amount: "100"},
		{name: "cents", amount: "33.33"},
		{name: "trailing zeros", amount: "10.500"},
		{name: "negative cents", amount: "-0.01"},
		{name: "sub-cent", amount: "33.345", wantErr: true},
		{name: "tenth of a cent", amount: "0.001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScale(decimal.RequireFromString(tt.amount))
			if tt.wantErr != (err != nil) {
				t.Fatalf("ValidateScale(%s) = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
			if tt.wantErr && KindOf(err) != KindInvalidInput {
				t.Fatalf("expected invalid input kind, got %s", KindOf(err))
			}
		})
	}
}

func TestMoneyInputsRejectSubCentAmounts(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.RequireFromString("100.005")); !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("expected ErrAmountPrecision for purchase, got %v", err)
	}

	err := ValidatePaymentAmount(decimal.NewNullDecimal(decimal.RequireFromString("0.001")))
	if !errors.Is(err, ErrInvalidPaymentAmount) || !errors.Is(err, ErrAmountPrecision) {
		t.Fatalf("expected sub-cent payment rejected, got %v", err)
	}
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid input kind, got %s", KindOf(err))
	}

	card := &CreditCard{Name: "Gold", CreditLimit: decimal.RequireFromString("1000.001"), ClosingDay: 10, DueDay: 20}
	if err := card.Validate(); !errors.Is(err, ErrInvalidCreditLimit) {
		t.Fatalf("expected ErrInvalidCreditLimit, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"defaults", 0, 0, 20, 0},
		{"negative offset", 10, -5, 10, 0},
		{"capped limit", 500, 40, 100, 40},
	}

	for _, tt := range tests {
		limit, offset := ValidatePagination(tt.limit, tt.offset)
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", tt.name, limit, offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestBill_Validate(t *testing.T) {
	t.Parallel()

	bill := Bill{TotalAmount: decimal.NewFromInt(300), InstallmentCount: 3, Description: "Laptop"}
	if err := bill.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bill.InstallmentCount = MaxInstallments + 1
	if err := bill.Validate(); !errors.Is(err, ErrInvalidInstallmentCount) {
		t.Fatalf("expected ErrInvalidInstallmentCount, got %v", err)
	}
}
