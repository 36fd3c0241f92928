package shop

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountID identifies an account. Values come from the chat front-end (user ids), so they
// are supplied by the caller rather than generated.
type AccountID struct {
	value int64
}

// ProductID identifies a product.
type ProductID struct {
	value int64
}

// PlanID identifies a plan.
type PlanID struct {
	value int64
}

// KeyID identifies a single key row.
type KeyID struct {
	value int64
}

// OrderID identifies an order.
type OrderID struct {
	value int64
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value int64
}

// NewAccountID validates an account id.
func NewAccountID(raw int64) (AccountID, error) {
	if raw <= 0 {
		return AccountID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAccountID)
	}
	return AccountID{value: raw}, nil
}

// ParseAccountID parses a decimal account id.
func ParseAccountID(raw string) (AccountID, error) {
	value, err := parsePositiveInt(raw)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAccountID, err)
	}
	return AccountID{value: value}, nil
}

// Int64 returns the raw identifier.
func (id AccountID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id AccountID) String() string { return strconv.FormatInt(id.value, 10) }

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool { return id.value == 0 }

// NewProductID validates a product id.
func NewProductID(raw int64) (ProductID, error) {
	if raw <= 0 {
		return ProductID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidProductID)
	}
	return ProductID{value: raw}, nil
}

// ParseProductID parses a decimal product id.
func ParseProductID(raw string) (ProductID, error) {
	value, err := parsePositiveInt(raw)
	if err != nil {
		return ProductID{}, fmt.Errorf("%w: %v", ErrInvalidProductID, err)
	}
	return ProductID{value: value}, nil
}

// Int64 returns the raw identifier.
func (id ProductID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id ProductID) String() string { return strconv.FormatInt(id.value, 10) }

// IsZero reports whether the id is unset.
func (id ProductID) IsZero() bool { return id.value == 0 }

// NewPlanID validates a plan id.
func NewPlanID(raw int64) (PlanID, error) {
	if raw <= 0 {
		return PlanID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPlanID)
	}
	return PlanID{value: raw}, nil
}

// ParsePlanID parses a decimal plan id.
func ParsePlanID(raw string) (PlanID, error) {
	value, err := parsePositiveInt(raw)
	if err != nil {
		return PlanID{}, fmt.Errorf("%w: %v", ErrInvalidPlanID, err)
	}
	return PlanID{value: value}, nil
}

// Int64 returns the raw identifier.
func (id PlanID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id PlanID) String() string { return strconv.FormatInt(id.value, 10) }

// IsZero reports whether the id is unset.
func (id PlanID) IsZero() bool { return id.value == 0 }

// NewKeyID validates a key id.
func NewKeyID(raw int64) (KeyID, error) {
	if raw <= 0 {
		return KeyID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidKeyID)
	}
	return KeyID{value: raw}, nil
}

// ParseKeyID parses a decimal key id.
func ParseKeyID(raw string) (KeyID, error) {
	value, err := parsePositiveInt(raw)
	if err != nil {
		return KeyID{}, fmt.Errorf("%w: %v", ErrInvalidKeyID, err)
	}
	return KeyID{value: value}, nil
}

// Int64 returns the raw identifier.
func (id KeyID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id KeyID) String() string { return strconv.FormatInt(id.value, 10) }

// NewOrderID validates an order id.
func NewOrderID(raw int64) (OrderID, error) {
	if raw <= 0 {
		return OrderID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidOrderID)
	}
	return OrderID{value: raw}, nil
}

// Int64 returns the raw identifier.
func (id OrderID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id OrderID) String() string { return strconv.FormatInt(id.value, 10) }

// NewEntryID validates a ledger entry id.
func NewEntryID(raw int64) (EntryID, error) {
	if raw <= 0 {
		return EntryID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidEntryID)
	}
	return EntryID{value: raw}, nil
}

// ParseEntryID parses a decimal ledger entry id.
func ParseEntryID(raw string) (EntryID, error) {
	value, err := parsePositiveInt(raw)
	if err != nil {
		return EntryID{}, fmt.Errorf("%w: %v", ErrInvalidEntryID, err)
	}
	return EntryID{value: value}, nil
}

// Int64 returns the raw identifier.
func (id EntryID) Int64() int64 { return id.value }

// String returns the decimal identifier.
func (id EntryID) String() string { return strconv.FormatInt(id.value, 10) }

func parsePositiveInt(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("must be greater than zero")
	}
	return value, nil
}
