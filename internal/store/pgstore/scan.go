package pgstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

func scanAccount(row scanner) (shop.Account, error) {
	var (
		id          int64
		displayName string
		balance     int64
		roleValue   string
		banned      bool
		banReason   string
		bannedAt    *time.Time
		createdAt   time.Time
	)
	if err := row.Scan(&id, &displayName, &balance, &roleValue, &banned, &banReason, &bannedAt, &createdAt); err != nil {
		return shop.Account{}, err
	}
	accountID, err := shop.NewAccountID(id)
	if err != nil {
		return shop.Account{}, err
	}
	role, err := shop.ParseRole(roleValue)
	if err != nil {
		return shop.Account{}, err
	}
	return shop.Account{
		ID:          accountID,
		DisplayName: displayName,
		Balance:     shop.AmountCents(balance),
		Role:        role,
		Banned:      banned,
		BanReason:   banReason,
		BannedAt:    utcRef(bannedAt),
		CreatedAt:   createdAt.UTC(),
	}, nil
}

func scanProduct(row scanner) (shop.Product, error) {
	var (
		id      int64
		product shop.Product
	)
	if err := row.Scan(&id, &product.Name, &product.Description, &product.Active, &product.CreatedAt); err != nil {
		return shop.Product{}, err
	}
	productID, err := shop.NewProductID(id)
	if err != nil {
		return shop.Product{}, err
	}
	product.ID = productID
	product.CreatedAt = product.CreatedAt.UTC()
	return product, nil
}

func scanPlan(row scanner) (shop.Plan, error) {
	var (
		id        int64
		productID int64
		basePrice int64
		plan      shop.Plan
	)
	if err := row.Scan(&id, &productID, &plan.ValidityDays, &basePrice, &plan.Stock, &plan.Active, &plan.CreatedAt); err != nil {
		return shop.Plan{}, err
	}
	planID, err := shop.NewPlanID(id)
	if err != nil {
		return shop.Plan{}, err
	}
	parentID, err := shop.NewProductID(productID)
	if err != nil {
		return shop.Plan{}, err
	}
	plan.ID = planID
	plan.ProductID = parentID
	plan.BasePrice = shop.AmountCents(basePrice)
	plan.CreatedAt = plan.CreatedAt.UTC()
	return plan, nil
}

func scanKey(row scanner) (shop.Key, error) {
	var (
		id        int64
		productID int64
		planID    int64
		usedBy    *int64
		orderID   *int64
		key       shop.Key
	)
	if err := row.Scan(&id, &productID, &planID, &key.Value, &key.Used, &usedBy, &key.UsedAt, &orderID, &key.ExpiresAt, &key.CreatedAt); err != nil {
		return shop.Key{}, err
	}
	keyID, err := shop.NewKeyID(id)
	if err != nil {
		return shop.Key{}, err
	}
	parentProduct, err := shop.NewProductID(productID)
	if err != nil {
		return shop.Key{}, err
	}
	parentPlan, err := shop.NewPlanID(planID)
	if err != nil {
		return shop.Key{}, err
	}
	key.ID = keyID
	key.ProductID = parentProduct
	key.PlanID = parentPlan
	key.UsedAt = utcRef(key.UsedAt)
	key.ExpiresAt = utcRef(key.ExpiresAt)
	key.CreatedAt = key.CreatedAt.UTC()
	if usedBy != nil {
		owner, err := shop.NewAccountID(*usedBy)
		if err != nil {
			return shop.Key{}, err
		}
		key.UsedBy = &owner
	}
	if orderID != nil {
		order, err := shop.NewOrderID(*orderID)
		if err != nil {
			return shop.Key{}, err
		}
		key.OrderID = &order
	}
	return key, nil
}

func scanOrder(row scanner) (shop.Order, error) {
	var (
		id          int64
		accountID   int64
		productID   int64
		planID      int64
		unitPrice   int64
		totalPrice  int64
		statusValue string
		order       shop.Order
	)
	if err := row.Scan(&id, &accountID, &productID, &planID, &order.Quantity, &unitPrice, &totalPrice, &statusValue, &order.CreatedAt); err != nil {
		return shop.Order{}, err
	}
	orderID, err := shop.NewOrderID(id)
	if err != nil {
		return shop.Order{}, err
	}
	buyer, err := shop.NewAccountID(accountID)
	if err != nil {
		return shop.Order{}, err
	}
	product, err := shop.NewProductID(productID)
	if err != nil {
		return shop.Order{}, err
	}
	plan, err := shop.NewPlanID(planID)
	if err != nil {
		return shop.Order{}, err
	}
	order.ID = orderID
	order.AccountID = buyer
	order.ProductID = product
	order.PlanID = plan
	order.UnitPrice = shop.AmountCents(unitPrice)
	order.TotalPrice = shop.AmountCents(totalPrice)
	order.Status = shop.OrderStatus(statusValue)
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func scanResellerPrice(row scanner) (shop.ResellerPrice, error) {
	var (
		accountID int64
		planID    int64
		custom    int64
		updatedAt time.Time
	)
	if err := row.Scan(&accountID, &planID, &custom, &updatedAt); err != nil {
		return shop.ResellerPrice{}, err
	}
	reseller, err := shop.NewAccountID(accountID)
	if err != nil {
		return shop.ResellerPrice{}, err
	}
	plan, err := shop.NewPlanID(planID)
	if err != nil {
		return shop.ResellerPrice{}, err
	}
	return shop.ResellerPrice{
		AccountID:   reseller,
		PlanID:      plan,
		CustomPrice: shop.AmountCents(custom),
		UpdatedAt:   updatedAt.UTC(),
	}, nil
}

func scanLedgerEntry(row scanner) (shop.LedgerEntry, error) {
	var (
		id              int64
		accountID       int64
		amount          int64
		kindValue       string
		adminID         *int64
		reason          string
		orderID         *int64
		reversesEntryID *int64
		metadataValue   string
		createdAt       time.Time
	)
	err := row.Scan(&id, &accountID, &amount, &kindValue, &adminID, &reason, &orderID, &reversesEntryID, &metadataValue, &createdAt)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	entryID, err := shop.NewEntryID(id)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	owner, err := shop.NewAccountID(accountID)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	kind, err := shop.ParseEntryKind(kindValue)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	metadata, err := shop.NewMetadataJSON(metadataValue)
	if err != nil {
		return shop.LedgerEntry{}, err
	}
	entry := shop.LedgerEntry{
		ID:        entryID,
		AccountID: owner,
		Amount:    shop.AmountCents(amount),
		Kind:      kind,
		Reason:    reason,
		Metadata:  metadata,
		CreatedAt: createdAt.UTC(),
	}
	if adminID != nil {
		admin, err := shop.NewAccountID(*adminID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.AdminID = &admin
	}
	if orderID != nil {
		order, err := shop.NewOrderID(*orderID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.OrderID = &order
	}
	if reversesEntryID != nil {
		reversed, err := shop.NewEntryID(*reversesEntryID)
		if err != nil {
			return shop.LedgerEntry{}, err
		}
		entry.ReversesEntryID = &reversed
	}
	return entry, nil
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
