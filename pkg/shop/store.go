package shop

import "context"

// AccountStore persists accounts and their ledger.
type AccountStore interface {
	// GetOrCreateAccount inserts the account when absent and returns the stored row.
	GetOrCreateAccount(ctx context.Context, account NewAccount) (Account, error)
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	// LockAccount reads the account row under a write lock held until the unit ends.
	LockAccount(ctx context.Context, accountID AccountID) (Account, error)
	// AddToBalance adds delta to the stored balance and returns the new balance.
	AddToBalance(ctx context.Context, accountID AccountID, delta AmountCents) (AmountCents, error)
	SetAccountBan(ctx context.Context, accountID AccountID, ban AccountBan) error
	SetAccountRole(ctx context.Context, accountID AccountID, role Role) error
	DeleteAccount(ctx context.Context, accountID AccountID) error
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	InsertLedgerEntry(ctx context.Context, entry LedgerEntryInput) (LedgerEntry, error)
	GetLedgerEntry(ctx context.Context, entryID EntryID) (LedgerEntry, error)
	HasReversal(ctx context.Context, entryID EntryID) (bool, error)
	ListLedgerEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error)
	SumLedgerEntries(ctx context.Context, accountID AccountID) (AmountCents, error)
}

// CatalogStore persists products and plans.
type CatalogStore interface {
	CreateProduct(ctx context.Context, product NewProduct) (Product, error)
	GetProduct(ctx context.Context, productID ProductID) (Product, error)
	UpdateProduct(ctx context.Context, productID ProductID, input ProductInput) (Product, error)
	SetProductActive(ctx context.Context, productID ProductID, active bool) error
	// DeleteProduct removes the product with its plans, keys and reseller prices.
	DeleteProduct(ctx context.Context, productID ProductID) error
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
	CreatePlan(ctx context.Context, plan NewPlan) (Plan, error)
	GetPlan(ctx context.Context, planID PlanID) (Plan, error)
	// LockPlan reads the plan row under a write lock held until the unit ends.
	LockPlan(ctx context.Context, planID PlanID) (Plan, error)
	// LockProductPlans locks every plan of the product in id order.
	LockProductPlans(ctx context.Context, productID ProductID) ([]Plan, error)
	UpdatePlan(ctx context.Context, planID PlanID, update PlanUpdate) (Plan, error)
	SetPlanActive(ctx context.Context, planID PlanID, active bool) error
	// DeletePlan removes the plan with its keys and reseller prices.
	DeletePlan(ctx context.Context, planID PlanID) error
	ListPlans(ctx context.Context, productID ProductID, activeOnly bool) ([]Plan, error)
	AdjustPlanStock(ctx context.Context, planID PlanID, delta int) error
	CountOrdersForPlan(ctx context.Context, planID PlanID) (int64, error)
	CountOrdersForProduct(ctx context.Context, productID ProductID) (int64, error)
}

// InventoryStore persists keys.
type InventoryStore interface {
	InsertKeys(ctx context.Context, keys []NewKey) (int, error)
	// ClaimKeys flips exactly claim.Count unused keys to used or returns ErrOutOfStock.
	ClaimKeys(ctx context.Context, claim KeyClaim) ([]Key, error)
	AssignKeysToOrder(ctx context.Context, keyIDs []KeyID, orderID OrderID) error
	GetKey(ctx context.Context, keyID KeyID) (Key, error)
	// DeleteUnusedKey deletes the key only while it is unused.
	DeleteUnusedKey(ctx context.Context, keyID KeyID) (bool, error)
	ListKeys(ctx context.Context, filter KeyFilter) ([]Key, error)
	ListKeysByOwner(ctx context.Context, accountID AccountID, limit int) ([]Key, error)
}

// OrderStore persists orders.
type OrderStore interface {
	InsertOrder(ctx context.Context, order OrderInput) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
}

// PricingStore persists reseller overrides.
type PricingStore interface {
	FindResellerPrice(ctx context.Context, accountID AccountID, planID PlanID) (ResellerPrice, bool, error)
	UpsertResellerPrice(ctx context.Context, price ResellerPrice) error
	DeleteResellerPrice(ctx context.Context, accountID AccountID, planID PlanID) (bool, error)
	ListResellerPrices(ctx context.Context, accountID AccountID) ([]ResellerPrice, error)
}

// ReportStore answers aggregate queries.
type ReportStore interface {
	Statistics(ctx context.Context) (Statistics, error)
	ProductStatistics(ctx context.Context, productID ProductID) (SalesStatistics, error)
	PlanStatistics(ctx context.Context, planID PlanID) (SalesStatistics, error)
}

// Store is the persistence contract used by Service.
// Any error returned from the WithTx callback rolls the whole unit back.
type Store interface {
	AccountStore
	CatalogStore
	InventoryStore
	OrderStore
	PricingStore
	ReportStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
}
