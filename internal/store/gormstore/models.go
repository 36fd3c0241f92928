package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Account represents the accounts table. The id is assigned by the chat front-end.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement:false"`
	DisplayName  string     `gorm:"not null"`
	BalanceCents int64      `gorm:"not null"`
	Role         string     `gorm:"size:16;not null;index"`
	Banned       bool       `gorm:"not null;index"`
	BanReason    string     `gorm:"not null"`
	BannedAt     *time.Time `gorm:""`
	CreatedAt    time.Time  `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Product mirrors the products table.
type Product struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	Active      bool      `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Plan mirrors the plans table.
type Plan struct {
	ID             int64     `gorm:"primaryKey"`
	ProductID      int64     `gorm:"not null;index"`
	ValidityDays   int       `gorm:"not null"`
	BasePriceCents int64     `gorm:"not null"`
	Stock          int       `gorm:"not null"`
	Active         bool      `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// AccessKey mirrors the access_keys table.
type AccessKey struct {
	ID        int64      `gorm:"primaryKey"`
	ProductID int64      `gorm:"not null;index"`
	PlanID    int64      `gorm:"not null;index:idx_access_keys_plan_used,priority:1;index:idx_access_keys_plan_value,priority:1"`
	Value     string     `gorm:"not null;index:idx_access_keys_plan_value,priority:2"`
	Used      bool       `gorm:"not null;index:idx_access_keys_plan_used,priority:2"`
	UsedBy    *int64     `gorm:"index"`
	UsedAt    *time.Time `gorm:""`
	OrderID   *int64     `gorm:"index"`
	ExpiresAt *time.Time `gorm:""`
	CreatedAt time.Time  `gorm:"not null"`
}

func (AccessKey) TableName() string { return "access_keys" }

// Order mirrors the orders table.
type Order struct {
	ID              int64     `gorm:"primaryKey"`
	AccountID       int64     `gorm:"not null;index:idx_orders_account_created,priority:1"`
	ProductID       int64     `gorm:"not null;index"`
	PlanID          int64     `gorm:"not null;index"`
	Quantity        int       `gorm:"not null"`
	UnitPriceCents  int64     `gorm:"not null"`
	TotalPriceCents int64     `gorm:"not null"`
	Status          string    `gorm:"size:16;not null"`
	CreatedAt       time.Time `gorm:"not null;index:idx_orders_account_created,priority:2"`
}

func (Order) TableName() string { return "orders" }

// ResellerPrice mirrors the reseller_prices table.
type ResellerPrice struct {
	AccountID        int64     `gorm:"primaryKey;autoIncrement:false"`
	PlanID           int64     `gorm:"primaryKey;autoIncrement:false;index"`
	CustomPriceCents int64     `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (ResellerPrice) TableName() string { return "reseller_prices" }

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	ID              int64          `gorm:"primaryKey"`
	AccountID       int64          `gorm:"not null;index:idx_ledger_account_created,priority:1"`
	AmountCents     int64          `gorm:"not null"`
	Kind            string         `gorm:"size:32;not null"`
	AdminID         *int64         `gorm:""`
	Reason          string         `gorm:"not null"`
	OrderID         *int64         `gorm:"index"`
	ReversesEntryID *int64         `gorm:"uniqueIndex:uniq_ledger_reverses_entry"`
	Metadata        datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Account{},
		&Product{},
		&Plan{},
		&AccessKey{},
		&Order{},
		&ResellerPrice{},
		&LedgerEntry{},
	}
}
