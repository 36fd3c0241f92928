package shop

import (
	"context"
	"fmt"
)

// Purchase buys Quantity keys of a plan in a single unit: the account row is locked, the
// buyer must not be banned, the plan and its product must be active, the balance must
// cover the total and enough keys must be available. Either every step commits or none.
func (service *Service) Purchase(ctx context.Context, request PurchaseRequest) (PurchaseReceipt, error) {
	var receipt PurchaseReceipt
	operationError := func() error {
		if request.AccountID.IsZero() {
			return fmt.Errorf("%w: empty value", ErrInvalidAccountID)
		}
		if request.Quantity < 1 || request.Quantity > service.maxPurchaseQuantity {
			return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, service.maxPurchaseQuantity)
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			completed, err := service.purchaseInUnit(ctx, transactionStore, request)
			if err != nil {
				return err
			}
			receipt = completed
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationPurchase,
		AccountID: request.AccountID,
		PlanID:    request.PlanID,
		OrderID:   receipt.Order.ID,
		Amount:    receipt.Order.TotalPrice,
		Quantity:  request.Quantity,
		Error:     operationError,
	})
	if operationError != nil {
		return PurchaseReceipt{}, operationError
	}
	return receipt, nil
}

func (service *Service) purchaseInUnit(ctx context.Context, transactionStore Store, request PurchaseRequest) (PurchaseReceipt, error) {
	now := service.now()
	if _, err := transactionStore.GetOrCreateAccount(ctx, NewAccount{ID: request.AccountID, Role: RoleUser, CreatedAt: now}); err != nil {
		return PurchaseReceipt{}, err
	}
	account, err := transactionStore.LockAccount(ctx, request.AccountID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	if account.Banned {
		return PurchaseReceipt{}, ErrBanned
	}

	plan, err := sellablePlan(ctx, transactionStore, request.PlanID)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	unitPrice, err := resolvePrice(ctx, transactionStore, request.AccountID, plan)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	total, err := unitPrice.Times(request.Quantity)
	if err != nil {
		return PurchaseReceipt{}, err
	}

	if account.Balance < total {
		return PurchaseReceipt{}, ErrInsufficientBalance
	}

	keys, err := claimKeys(ctx, transactionStore, plan, request.AccountID, request.Quantity, now)
	if err != nil {
		return PurchaseReceipt{}, err
	}

	order, err := transactionStore.InsertOrder(ctx, OrderInput{
		AccountID:  request.AccountID,
		ProductID:  plan.ProductID,
		PlanID:     plan.ID,
		Quantity:   request.Quantity,
		UnitPrice:  unitPrice,
		TotalPrice: total,
		Status:     OrderStatusCompleted,
		CreatedAt:  now,
	})
	if err != nil {
		return PurchaseReceipt{}, err
	}
	keyIDs := make([]KeyID, 0, len(keys))
	for _, key := range keys {
		keyIDs = append(keyIDs, key.ID)
	}
	if err := transactionStore.AssignKeysToOrder(ctx, keyIDs, order.ID); err != nil {
		return PurchaseReceipt{}, err
	}
	orderRef := order.ID
	_, balance, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
		AccountID: request.AccountID,
		Amount:    total.Negated(),
		Kind:      EntryPurchase,
		Reason:    purchaseReasonPrefix + order.ID.String(),
		OrderID:   &orderRef,
		CreatedAt: now,
	})
	if err != nil {
		return PurchaseReceipt{}, err
	}

	issued := make([]IssuedKey, 0, len(keys))
	expiresAt := keyExpiry(now, plan.ValidityDays)
	for _, key := range keys {
		keyExpiresAt := expiresAt
		if key.ExpiresAt != nil {
			keyExpiresAt = *key.ExpiresAt
		}
		issued = append(issued, IssuedKey{ID: key.ID, Value: key.Value, ExpiresAt: keyExpiresAt})
	}
	return PurchaseReceipt{Order: order, Keys: issued, Balance: balance}, nil
}

// sellablePlan locks a plan that can be bought: it must exist and both it and its product
// must be active.
func sellablePlan(ctx context.Context, transactionStore Store, planID PlanID) (Plan, error) {
	plan, err := transactionStore.LockPlan(ctx, planID)
	if err != nil {
		return Plan{}, err
	}
	if !plan.Active {
		return Plan{}, fmt.Errorf("%w: plan %s is inactive", ErrPlanNotFound, planID)
	}
	product, err := transactionStore.GetProduct(ctx, plan.ProductID)
	if err != nil {
		return Plan{}, err
	}
	if !product.Active {
		return Plan{}, fmt.Errorf("%w: product %s is inactive", ErrPlanNotFound, product.ID)
	}
	return plan, nil
}
