package shop

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const amountScale = 2

// AmountCents is a fixed-point currency amount in minor units (two fractional digits).
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// NewPositiveAmountCents validates a strictly positive amount.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// ParseAmount parses a decimal string such as "12.50" or "-3" into minor units.
// More than two fractional digits is rejected rather than rounded.
func ParseAmount(raw string) (AmountCents, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if !value.Equal(value.Round(amountScale)) {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, amountScale)
	}
	cents := value.Shift(amountScale)
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || cents.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return AmountCents(cents.IntPart()), nil
}

// ParsePositiveAmount parses a decimal string and requires a value greater than zero.
func ParsePositiveAmount(raw string) (AmountCents, error) {
	amount, err := ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return amount, nil
}

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in major units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -amountScale)
}

// String formats the amount with exactly two fractional digits.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(amountScale)
}

// Negated flips the sign.
func (amount AmountCents) Negated() AmountCents {
	return -amount
}

// Times multiplies a unit amount by a quantity, failing on overflow.
func (amount AmountCents) Times(quantity int) (AmountCents, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("%w: negative quantity", ErrInvalidQuantity)
	}
	if quantity == 0 || amount == 0 {
		return 0, nil
	}
	product := int64(amount) * int64(quantity)
	if product/int64(quantity) != int64(amount) {
		return 0, fmt.Errorf("%w: total overflows", ErrInvalidAmount)
	}
	return AmountCents(product), nil
}
