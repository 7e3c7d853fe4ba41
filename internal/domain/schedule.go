package domain

import "time"

const (
	MinDayOfMonth = 1
	MaxDayOfMonth = 31
)

// ScheduledInstallment is the calendar placement of one installment.
type ScheduledInstallment struct {
	Number         int
	DueDate        time.Time
	ReferenceMonth time.Time
}

// ScheduleInstallment places installment n of a purchase made at purchasedAt
// on a card with the given closing and due days.
//
// A purchase on or after the closing day belongs to the next month's cycle.
// The first installment falls due in the cycle month, or in the following
// month when the cycle is the purchase month but the due day has already
// passed. Each later installment falls due one calendar month after the
// previous one and belongs to the invoice of the month it falls due in.
// Due days missing from a month fall back to that month's last day.
func ScheduleInstallment(purchasedAt time.Time, closingDay, dueDay, n int) (dueDate, referenceMonth time.Time) {
	if n < 1 {
		n = 1
	}

	purchaseDay := purchasedAt.Day()
	purchaseMonth := MonthStart(purchasedAt)

	rolled := purchaseDay >= closingDay

	firstOffset := 0
	if rolled || dueDay < purchaseDay {
		firstOffset = 1
	}

	nominal := purchaseMonth.AddDate(0, firstOffset+n-1, 0)
	dueDate = DateInMonth(nominal, dueDay)

	if n == 1 {
		if rolled {
			return dueDate, purchaseMonth.AddDate(0, 1, 0)
		}
		return dueDate, purchaseMonth
	}

	return dueDate, MonthStart(dueDate)
}

// Schedule places installments 1..count of one purchase.
func Schedule(purchasedAt time.Time, closingDay, dueDay, count int) []ScheduledInstallment {
	out := make([]ScheduledInstallment, 0, count)
	for n := 1; n <= count; n++ {
		due, ref := ScheduleInstallment(purchasedAt, closingDay, dueDay, n)
		out = append(out, ScheduledInstallment{Number: n, DueDate: due, ReferenceMonth: ref})
	}
	return out
}

// MonthStart normalizes t to midnight UTC on the first day of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the month containing t.
func DaysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateInMonth returns the given day of t's month, clamped into the month.
func DateInMonth(t time.Time, day int) time.Time {
	last := DaysIn(t)
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}

// ClosingDate is the day an invoice for referenceMonth stops accepting
// purchases.
func ClosingDate(referenceMonth time.Time, closingDay int) time.Time {
	return DateInMonth(MonthStart(referenceMonth), closingDay)
}

// ValidateDay checks that day is a calendar day-of-month.
func ValidateDay(day int) error {
	if day < MinDayOfMonth || day > MaxDayOfMonth {
		return ErrInvalidDay
	}
	return nil
}

// ParseReferenceMonth parses a YYYY-MM month.
func ParseReferenceMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, ErrInvalidReferenceMonth
	}
	return MonthStart(t), nil
}

// FormatReferenceMonth renders a reference month as YYYY-MM.
func FormatReferenceMonth(t time.Time) string {
	return t.Format("2006-01")
}
