package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxInstallments bounds how many installments a purchase may be split into.
const MaxInstallments = 72

// Installment is one fraction of a purchase, due on a specific date.
type Installment struct {
	ID                string
	BillID            string
	CreditCardID      string
	InvoiceID         string
	InstallmentNumber int
	Amount            decimal.Decimal
	DueDate           time.Time
	CreatedAt         time.Time
}

// SplitAmount divides total into count parts rounded down to cents. The
// rounding remainder goes to the last part so the parts add back to total.
func SplitAmount(total decimal.Decimal, count int) ([]decimal.Decimal, error) {
	if count < 1 || count > MaxInstallments {
		return nil, ErrInvalidInstallmentCount
	}

	share := total.Div(decimal.NewFromInt(int64(count))).RoundDown(2)

	parts := make([]decimal.Decimal, count)
	allocated := decimal.Zero
	for n := 0; n < count-1; n++ {
		parts[n] = share
		allocated = allocated.Add(share)
	}
	parts[count-1] = total.Sub(allocated)

	return parts, nil
}

// PlannedInstallment is a scheduled installment with its share of the
// purchase amount.
type PlannedInstallment struct {
	Number         int
	Amount         decimal.Decimal
	DueDate        time.Time
	ReferenceMonth time.Time
}

// PlanInstallments splits total across count installments and places each
// one on card's billing calendar.
func PlanInstallments(card *CreditCard, total decimal.Decimal, count int, purchasedAt time.Time) ([]PlannedInstallment, error) {
	parts, err := SplitAmount(total, count)
	if err != nil {
		return nil, err
	}

	scheduled := card.Schedule(purchasedAt, count)

	plan := make([]PlannedInstallment, count)
	for i, s := range scheduled {
		plan[i] = PlannedInstallment{
			Number:         s.Number,
			Amount:         parts[i],
			DueDate:        s.DueDate,
			ReferenceMonth: s.ReferenceMonth,
		}
	}

	return plan, nil
}
