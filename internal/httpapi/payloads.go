package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/command"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

type sessionRequest struct {
	DisplayName string `json:"display_name"`
}

type purchaseRequest struct {
	PlanID   int64 `json:"plan_id"`
	Quantity int   `json:"quantity"`
}

type commandRequest struct {
	Data string `json:"data"`
}

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type planRequest struct {
	ProductID    int64    `json:"product_id"`
	ValidityDays int      `json:"validity_days"`
	BasePrice    string   `json:"base_price"`
	Keys         []string `json:"keys"`
}

type keysRequest struct {
	Keys []string `json:"keys"`
}

type balanceRequest struct {
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
	AllowNegative bool   `json:"allow_negative"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type accountPayload struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	Balance     string     `json:"balance"`
	Role        string     `json:"role"`
	Banned      bool       `json:"banned"`
	BanReason   string     `json:"ban_reason,omitempty"`
	BannedAt    *time.Time `json:"banned_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type productPayload struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type planPayload struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	ValidityDays int       `json:"validity_days"`
	BasePrice    string    `json:"base_price"`
	Stock        int       `json:"stock"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type keyPayload struct {
	ID        int64      `json:"id"`
	PlanID    int64      `json:"plan_id"`
	Value     string     `json:"value"`
	Used      bool       `json:"used"`
	UsedBy    *int64     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	OrderID   *int64     `json:"order_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type issuedKeyPayload struct {
	ID        int64     `json:"id"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type orderPayload struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	ProductID  int64     `json:"product_id"`
	PlanID     int64     `json:"plan_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalPrice string    `json:"total_price"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type receiptPayload struct {
	Order   orderPayload       `json:"order"`
	Keys    []issuedKeyPayload `json:"keys"`
	Balance string             `json:"balance"`
}

type entryPayload struct {
	ID              int64           `json:"id"`
	AccountID       int64           `json:"account_id"`
	Amount          string          `json:"amount"`
	Kind            string          `json:"kind"`
	AdminID         *int64          `json:"admin_id,omitempty"`
	Reason          string          `json:"reason"`
	OrderID         *int64          `json:"order_id,omitempty"`
	ReversesEntryID *int64          `json:"reverses_entry_id,omitempty"`
	Metadata        json.RawMessage `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
}

type resellerPricePayload struct {
	AccountID int64     `json:"account_id"`
	PlanID    int64     `json:"plan_id"`
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

type reconciliationPayload struct {
	AccountID  int64  `json:"account_id"`
	Balance    string `json:"balance"`
	LedgerSum  string `json:"ledger_sum"`
	Consistent bool   `json:"consistent"`
}

type statisticsPayload struct {
	TotalOrders    int64  `json:"total_orders"`
	Revenue        string `json:"revenue"`
	Accounts       int64  `json:"accounts"`
	BannedAccounts int64  `json:"banned_accounts"`
	ActiveProducts int64  `json:"active_products"`
	TotalKeys      int64  `json:"total_keys"`
	UsedKeys       int64  `json:"used_keys"`
	AvailableKeys  int64  `json:"available_keys"`
}

type salesPayload struct {
	Sold      int64  `json:"sold"`
	Available int64  `json:"available"`
	TotalKeys int64  `json:"total_keys"`
	Orders    int64  `json:"orders"`
	Revenue   string `json:"revenue"`
}

type commandPayload struct {
	Verb       string             `json:"verb"`
	Account    *accountPayload    `json:"account,omitempty"`
	Products   []productPayload   `json:"products,omitempty"`
	Plans      []planPayload      `json:"plans,omitempty"`
	Plan       *planPayload       `json:"plan,omitempty"`
	Price      string             `json:"price,omitempty"`
	Receipt    *receiptPayload    `json:"receipt,omitempty"`
	Orders     []orderPayload     `json:"orders,omitempty"`
	Keys       []keyPayload       `json:"keys,omitempty"`
	Entries    []entryPayload     `json:"entries,omitempty"`
	Statistics *statisticsPayload `json:"statistics,omitempty"`
}

func toAccountPayload(account shop.Account) accountPayload {
	return accountPayload{
		ID:          account.ID.Int64(),
		DisplayName: account.DisplayName,
		Balance:     account.Balance.String(),
		Role:        account.Role.String(),
		Banned:      account.Banned,
		BanReason:   account.BanReason,
		BannedAt:    account.BannedAt,
		CreatedAt:   account.CreatedAt,
	}
}

func toProductPayload(product shop.Product) productPayload {
	return productPayload{
		ID:          product.ID.Int64(),
		Name:        product.Name,
		Description: product.Description,
		Active:      product.Active,
		CreatedAt:   product.CreatedAt,
	}
}

func toPlanPayload(plan shop.Plan) planPayload {
	return planPayload{
		ID:           plan.ID.Int64(),
		ProductID:    plan.ProductID.Int64(),
		ValidityDays: plan.ValidityDays,
		BasePrice:    plan.BasePrice.String(),
		Stock:        plan.Stock,
		Active:       plan.Active,
		CreatedAt:    plan.CreatedAt,
	}
}

func toKeyPayload(key shop.Key) keyPayload {
	payload := keyPayload{
		ID:        key.ID.Int64(),
		PlanID:    key.PlanID.Int64(),
		Value:     key.Value,
		Used:      key.Used,
		UsedAt:    key.UsedAt,
		ExpiresAt: key.ExpiresAt,
	}
	if key.UsedBy != nil {
		owner := key.UsedBy.Int64()
		payload.UsedBy = &owner
	}
	if key.OrderID != nil {
		orderID := key.OrderID.Int64()
		payload.OrderID = &orderID
	}
	return payload
}

func toOrderPayload(order shop.Order) orderPayload {
	return orderPayload{
		ID:         order.ID.Int64(),
		AccountID:  order.AccountID.Int64(),
		ProductID:  order.ProductID.Int64(),
		PlanID:     order.PlanID.Int64(),
		Quantity:   order.Quantity,
		UnitPrice:  order.UnitPrice.String(),
		TotalPrice: order.TotalPrice.String(),
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt,
	}
}

func toReceiptPayload(receipt shop.PurchaseReceipt) receiptPayload {
	keys := make([]issuedKeyPayload, 0, len(receipt.Keys))
	for _, key := range receipt.Keys {
		keys = append(keys, issuedKeyPayload{ID: key.ID.Int64(), Value: key.Value, ExpiresAt: key.ExpiresAt})
	}
	return receiptPayload{
		Order:   toOrderPayload(receipt.Order),
		Keys:    keys,
		Balance: receipt.Balance.String(),
	}
}

func toEntryPayload(entry shop.LedgerEntry) entryPayload {
	payload := entryPayload{
		ID:        entry.ID.Int64(),
		AccountID: entry.AccountID.Int64(),
		Amount:    entry.Amount.String(),
		Kind:      string(entry.Kind),
		Reason:    entry.Reason,
		Metadata:  json.RawMessage(entry.Metadata.String()),
		CreatedAt: entry.CreatedAt,
	}
	if entry.AdminID != nil {
		adminID := entry.AdminID.Int64()
		payload.AdminID = &adminID
	}
	if entry.OrderID != nil {
		orderID := entry.OrderID.Int64()
		payload.OrderID = &orderID
	}
	if entry.ReversesEntryID != nil {
		reversed := entry.ReversesEntryID.Int64()
		payload.ReversesEntryID = &reversed
	}
	return payload
}

func toResellerPricePayload(price shop.ResellerPrice) resellerPricePayload {
	return resellerPricePayload{
		AccountID: price.AccountID.Int64(),
		PlanID:    price.PlanID.Int64(),
		Price:     price.CustomPrice.String(),
		UpdatedAt: price.UpdatedAt,
	}
}

func toStatisticsPayload(statistics shop.Statistics) statisticsPayload {
	return statisticsPayload{
		TotalOrders:    statistics.TotalOrders,
		Revenue:        statistics.Revenue.String(),
		Accounts:       statistics.Accounts,
		BannedAccounts: statistics.BannedAccounts,
		ActiveProducts: statistics.ActiveProducts,
		TotalKeys:      statistics.TotalKeys,
		UsedKeys:       statistics.UsedKeys,
		AvailableKeys:  statistics.AvailableKeys,
	}
}

func toSalesPayload(statistics shop.SalesStatistics) salesPayload {
	return salesPayload{
		Sold:      statistics.Sold,
		Available: statistics.Available,
		TotalKeys: statistics.TotalKeys,
		Orders:    statistics.Orders,
		Revenue:   statistics.Revenue.String(),
	}
}

func toCommandPayload(result command.Result) commandPayload {
	payload := commandPayload{Verb: result.Command.Verb()}
	if result.Account != nil {
		account := toAccountPayload(*result.Account)
		payload.Account = &account
	}
	payload.Products = mapSlice(result.Products, toProductPayload)
	payload.Plans = mapSlice(result.Plans, toPlanPayload)
	if result.Plan != nil {
		plan := toPlanPayload(*result.Plan)
		payload.Plan = &plan
	}
	if result.Price != nil {
		payload.Price = result.Price.String()
	}
	if result.Receipt != nil {
		receipt := toReceiptPayload(*result.Receipt)
		payload.Receipt = &receipt
	}
	payload.Orders = mapSlice(result.Orders, toOrderPayload)
	payload.Keys = mapSlice(result.Keys, toKeyPayload)
	payload.Entries = mapSlice(result.Entries, toEntryPayload)
	if result.Statistics != nil {
		statistics := toStatisticsPayload(*result.Statistics)
		payload.Statistics = &statistics
	}
	return payload
}

func mapSlice[S any, T any](source []S, convert func(S) T) []T {
	if source == nil {
		return nil
	}
	mapped := make([]T, 0, len(source))
	for _, item := range source {
		mapped = append(mapped, convert(item))
	}
	return mapped
}
