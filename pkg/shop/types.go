package shop

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role controls which operations an account may perform.
type Role string

const (
	RoleUser     Role = "user"
	RoleReseller Role = "reseller"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleUser, RoleReseller, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryPurchase    EntryKind = "purchase"
	EntryAdminAdd    EntryKind = "admin_add"
	EntryAdminDeduct EntryKind = "admin_deduct"
	EntryReversal    EntryKind = "reversal"
	EntryBan         EntryKind = "ban"
	EntryUnban       EntryKind = "unban"
	EntryDeleteUser  EntryKind = "delete_user"
	EntryForfeit     EntryKind = "forfeit"
)

// ParseEntryKind validates an entry kind name.
func ParseEntryKind(raw string) (EntryKind, error) {
	kind := EntryKind(strings.TrimSpace(raw))
	switch kind {
	case EntryPurchase, EntryAdminAdd, EntryAdminDeduct, EntryReversal, EntryBan, EntryUnban, EntryDeleteUser, EntryForfeit:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
	}
}

// OrderStatus is the lifecycle state of an order. Orders are only ever written completed.
type OrderStatus string

const OrderStatusCompleted OrderStatus = "completed"

// MetadataJSON stores arbitrary audit metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Account is a buyer, reseller or admin with a prepaid balance.
type Account struct {
	ID          AccountID
	DisplayName string
	Balance     AmountCents
	Role        Role
	Banned      bool
	BanReason   string
	BannedAt    *time.Time
	CreatedAt   time.Time
}

// IsAdmin reports whether the account holds the admin role.
func (account Account) IsAdmin() bool {
	return account.Role == RoleAdmin
}

// Product groups plans.
type Product struct {
	ID          ProductID
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// Plan is a sellable validity period of a product. Stock mirrors the number of unused keys.
type Plan struct {
	ID           PlanID
	ProductID    ProductID
	ValidityDays int
	BasePrice    AmountCents
	Stock        int
	Active       bool
	CreatedAt    time.Time
}

// Key is one single-use access code.
type Key struct {
	ID        KeyID
	ProductID ProductID
	PlanID    PlanID
	Value     string
	Used      bool
	UsedBy    *AccountID
	UsedAt    *time.Time
	OrderID   *OrderID
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Order records a completed purchase.
type Order struct {
	ID         OrderID
	AccountID  AccountID
	ProductID  ProductID
	PlanID     PlanID
	Quantity   int
	UnitPrice  AmountCents
	TotalPrice AmountCents
	Status     OrderStatus
	CreatedAt  time.Time
}

// ResellerPrice overrides the base price of a plan for one account.
type ResellerPrice struct {
	AccountID   AccountID
	PlanID      PlanID
	CustomPrice AmountCents
	UpdatedAt   time.Time
}

// LedgerEntry is a single immutable line in the balance history.
type LedgerEntry struct {
	ID              EntryID
	AccountID       AccountID
	Amount          AmountCents
	Kind            EntryKind
	AdminID         *AccountID
	Reason          string
	OrderID         *OrderID
	ReversesEntryID *EntryID
	Metadata        MetadataJSON
	CreatedAt       time.Time
}

// NewAccount is the insert payload for a lazily created account.
type NewAccount struct {
	ID          AccountID
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// AccountBan is the ban state written to an account row.
type AccountBan struct {
	Banned bool
	Reason string
	At     *time.Time
}

// LedgerEntryInput is the insert payload for a ledger entry.
type LedgerEntryInput struct {
	AccountID       AccountID
	Amount          AmountCents
	Kind            EntryKind
	AdminID         *AccountID
	Reason          string
	OrderID         *OrderID
	ReversesEntryID *EntryID
	Metadata        MetadataJSON
	CreatedAt       time.Time
}

// NewProduct is the insert payload for a product.
type NewProduct struct {
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	Name        string
	Description string
}

// NewPlan is the insert payload for a plan. Stock starts at zero and follows key inserts.
type NewPlan struct {
	ProductID    ProductID
	ValidityDays int
	BasePrice    AmountCents
	Active       bool
	CreatedAt    time.Time
}

// PlanInput creates a plan together with its initial keys.
type PlanInput struct {
	ProductID    ProductID
	ValidityDays int
	BasePrice    AmountCents
	Keys         []string
}

// PlanUpdate carries the editable plan fields.
type PlanUpdate struct {
	ValidityDays int
	BasePrice    AmountCents
}

// NewKey is the insert payload for a key.
type NewKey struct {
	ProductID ProductID
	PlanID    PlanID
	Value     string
	CreatedAt time.Time
}

// KeyClaim asks the store to flip Count unused keys of a plan to used.
// A zero AccountID claims without an owner.
type KeyClaim struct {
	PlanID    PlanID
	AccountID AccountID
	Count     int
	ClaimedAt time.Time
	ExpiresAt time.Time
}

// OrderInput is the insert payload for an order.
type OrderInput struct {
	AccountID  AccountID
	ProductID  ProductID
	PlanID     PlanID
	Quantity   int
	UnitPrice  AmountCents
	TotalPrice AmountCents
	Status     OrderStatus
	CreatedAt  time.Time
}

// KeyFilter narrows key listings. A nil Used lists both states.
type KeyFilter struct {
	PlanID *PlanID
	Used   *bool
	Limit  int
}

// AccountFilter narrows account listings. Search matches a numeric id exactly or a
// display name substring.
type AccountFilter struct {
	Search     string
	BannedOnly bool
	Limit      int
}

// EntryFilter narrows ledger listings.
type EntryFilter struct {
	AccountID *AccountID
	Limit     int
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	AccountID *AccountID
	PlanID    *PlanID
	Limit     int
}

// PurchaseRequest asks to buy Quantity keys of a plan.
type PurchaseRequest struct {
	AccountID AccountID
	PlanID    PlanID
	Quantity  int
}

// IssuedKey is a key handed to the buyer. Value is disclosed here only.
type IssuedKey struct {
	ID        KeyID
	Value     string
	ExpiresAt time.Time
}

// PurchaseReceipt is the outcome of a successful purchase.
type PurchaseReceipt struct {
	Order   Order
	Keys    []IssuedKey
	Balance AmountCents
}

// BalanceAdjustment is a manual admin credit (positive) or debit (negative).
type BalanceAdjustment struct {
	AccountID     AccountID
	Amount        AmountCents
	AdminID       AccountID
	Reason        string
	AllowNegative bool
}

// Reconciliation compares the stored balance with the ledger sum.
type Reconciliation struct {
	AccountID AccountID
	Balance   AmountCents
	LedgerSum AmountCents
}

// Consistent reports whether the stored balance matches the ledger.
func (reconciliation Reconciliation) Consistent() bool {
	return reconciliation.Balance == reconciliation.LedgerSum
}

// Statistics summarises the whole shop.
type Statistics struct {
	TotalOrders    int64
	Revenue        AmountCents
	Accounts       int64
	BannedAccounts int64
	ActiveProducts int64
	TotalKeys      int64
	UsedKeys       int64
	AvailableKeys  int64
}

// SalesStatistics summarises one product or plan.
type SalesStatistics struct {
	Sold      int64
	Available int64
	TotalKeys int64
	Orders    int64
	Revenue   AmountCents
}

// MaskKeyValue hides all but the last four characters of a key value.
func MaskKeyValue(value string) string {
	const visible = 4
	runes := []rune(value)
	if len(runes) <= visible {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visible) + string(runes[len(runes)-visible:])
}
