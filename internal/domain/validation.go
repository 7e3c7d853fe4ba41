package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidCardName    = newError(KindInvalidInput, "invalid credit card name")
	ErrInvalidDescription = newError(KindInvalidInput, "invalid description")
	ErrAmountTooLarge     = newError(KindInvalidInput, "amount exceeds maximum allowed")
	ErrAmountTooSmall     = newError(KindInvalidInput, "amount below minimum allowed")
	ErrAmountPrecision    = newError(KindInvalidInput, "amount has more than 2 decimal places")
)

// Validation constants
const (
	MaxCardNameLength    = 120
	MaxDescriptionLength = 255
	MaxPurchaseAmount    = "1000000000" // 1 billion
	MinPurchaseAmount    = "0.01"
	MoneyScale           = 2
)

// ValidateCardName validates a credit card display name
func ValidateCardName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidCardName)
	}

	if utf8.RuneCountInString(name) > MaxCardNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidCardName, MaxCardNameLength)
	}

	return nil
}

// ValidateDescription validates an optional free-text description
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidDescription, MaxDescriptionLength)
	}
	return nil
}

// ValidateAmount validates a purchase amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	minAmount := decimal.RequireFromString(MinPurchaseAmount)
	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinPurchaseAmount)
	}

	maxAmount := decimal.RequireFromString(MaxPurchaseAmount)
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPurchaseAmount)
	}

	return ValidateScale(amount)
}

// ValidateScale rejects amounts that would be rounded when stored in cents.
func ValidateScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: got %s", ErrAmountPrecision, amount)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 100
	const DefaultPageSize = 20

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
