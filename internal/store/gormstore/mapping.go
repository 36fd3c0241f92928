package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

func mapAccount(row Account) (shop.Account, error) {
	accountID, err := shop.NewAccountID(row.ID)
	if err != nil {
		return shop.Account{}, err
	}
	role, err := shop.ParseRole(row.Role)
	if err != nil {
		return shop.Account{}, err
	}
	return shop.Account{
		ID:          accountID,
		DisplayName: row.DisplayName,
		Balance:     shop.AmountCents(row.BalanceCents),
		Role:        role,
		Banned:      row.Banned,
		BanReason:   row.BanReason,
		BannedAt:    utcRef(row.BannedAt),
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func mapProduct(row Product) (shop.Product, error) {
	productID, err := shop.NewProductID(row.ID)
	if err != nil {
		return shop.Product{}, err
	}
	return shop.Product{
		ID:          productID,
		Name:        row.Name,
		Description: row.Description,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func mapPlan(row Plan) (shop.Plan, error) {
	planID, err := shop.NewPlanID(row.ID)
	if err != nil {
		return shop.Plan{}, err
	}
	productID, err := shop.NewProductID(row.ProductID)
	if err != nil {
		return shop.Plan{}, err
	}
	return shop.Plan{
		ID:           planID,
		ProductID:    productID,
		ValidityDays: row.ValidityDays,
		BasePrice:    shop.AmountCents(row.BasePriceCents),
		Stock:        row.Stock,
		Active:       row.Active,
		CreatedAt:    row.CreatedAt.UTC(),
	}, nil
}

func mapKey(row AccessKey) (shop.Key, error) {
	keyID, err := shop.NewKeyID(row.ID)
	if err != nil {
		return shop.Key{}, err
	}
	productID, err := shop.NewProductID(row.ProductID)
	if err != nil {
		return shop.Key{}, err
	}
	planID, err := shop.NewPlanID(row.PlanID)
	if err != nil {
		return shop.Key{}, err
	}
	key := shop.Key{
		ID:        keyID,
		ProductID: productID,
		PlanID:    planID,
		Value:     row.Value,
		Used:      row.Used,
		UsedAt:    utcRef(row.UsedAt),
		ExpiresAt: utcRef(row.ExpiresAt),
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.UsedBy != nil {
		owner, err := shop.NewAccountID(*row.UsedBy)
		if err != nil {
			return shop.Key{}, err
		}
		key.UsedBy = &owner
	}
	if row.OrderID != nil {
		orderID, err := shop.NewOrderID(*row.OrderID)
		if err != nil {
			return shop.Key{}, err
		}
		key.OrderID = &orderID
	}
	return key, nil
}

func mapOrder(row Order) (shop.Order, error) {
	orderID, err := shop.NewOrderID(row.ID)
	if err != nil {
		return shop.Order{}, err
	}
	accountID, err := shop.NewAccountID(row.AccountID)
	if err != nil {
		return shop.Order{}, err
	}
	productID, err := shop.NewProductID(row.ProductID)
	if err != nil {
		return shop.Order{}, err
	}
	planID, err := shop.NewPlanID(row.PlanID)
	if err != nil {
		return shop.Order{}, err
	}
	return shop.Order{
		ID:         orderID,
		AccountID:  accountID,
		ProductID:  productID,
		PlanID:     planID,
		Quantity:   row.Quantity,
		UnitPrice:  shop.AmountCents(row.UnitPriceCents),
		TotalPrice: shop.AmountCents(row.TotalPriceCents),
		Status:     shop.OrderStatus(row.Status),
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func mapResellerPrice(row ResellerPrice) (shop.ResellerPrice, error) {
	accountID, err := shop.NewAccountID(row.AccountID)
	if err != nil {
		return shop.ResellerPrice{}, err
	}
	planID, err := shop.NewPlanID(row.PlanID)
	if err != nil {
		return shop.ResellerPrice{}, err
	}
	return shop.ResellerPrice{
		AccountID:   accountID,
		PlanID:      planID,
		CustomPrice: shop.AmountCents(row.CustomPriceCents),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (shop.LedgerEntry, error) {
	entryID, err := shop.NewEntryID(row.ID)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	accountID, err := shop.NewAccountID(row.AccountID)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	kind, err := shop.ParseEntryKind(row.Kind)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	metadata, err := shop.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	entry := shop.LedgerEntry{
		ID:        entryID,
		AccountID: accountID,
		Amount:    shop.AmountCents(row.AmountCents),
		Kind:      kind,
		Reason:    row.Reason,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.AdminID != nil {
		adminID, err := shop.NewAccountID(*row.AdminID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.AdminID = &adminID
	}
	if row.OrderID != nil {
		orderID, err := shop.NewOrderID(*row.OrderID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.OrderID = &orderID
	}
	if row.ReversesEntryID != nil {
		reversedID, err := shop.NewEntryID(*row.ReversesEntryID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.ReversesEntryID = &reversedID
	}
	return entry, nil
}

func optionalAccount(accountID shop.AccountID) *shop.AccountID {
	if accountID.IsZero() {
		return nil
	}
	return &accountID
}

func accountRef(accountID *shop.AccountID) *int64 {
	if accountID == nil {
		return nil
	}
	value := accountID.Int64()
	return &value
}

func orderRef(orderID *shop.OrderID) *int64 {
	if orderID == nil {
		return nil
	}
	value := orderID.Int64()
	return &value
}

func entryRef(entryID *shop.EntryID) *int64 {
	if entryID == nil {
		return nil
	}
	value := entryID.Int64()
	return &value
}

func utcRef(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	normalized := value.UTC()
	return &normalized
}
