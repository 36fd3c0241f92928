package shop

import (
	"context"
	"fmt"
)

// ResolvePrice returns the reseller override for the pair when present, else the plan base
// price. Inactive plans still resolve; only a missing plan row fails.
func (service *Service) ResolvePrice(ctx context.Context, accountID AccountID, planID PlanID) (AmountCents, error) {
	plan, err := service.store.GetPlan(ctx, planID)
	if err != nil {
		return 0, err
	}
	return resolvePrice(ctx, service.store, accountID, plan)
}

func resolvePrice(ctx context.Context, store Store, accountID AccountID, plan Plan) (AmountCents, error) {
	override, found, err := store.FindResellerPrice(ctx, accountID, plan.ID)
	if err != nil {
		return 0, err
	}
	if found {
		return override.CustomPrice, nil
	}
	return plan.BasePrice, nil
}

// SetResellerPrice upserts a per-account price override.
func (service *Service) SetResellerPrice(ctx context.Context, accountID AccountID, planID PlanID, price AmountCents) error {
	operationError := func() error {
		if price <= 0 {
			return fmt.Errorf("%w: reseller price must be greater than zero", ErrInvalidAmount)
		}
		if accountID.IsZero() {
			return fmt.Errorf("%w: empty value", ErrInvalidAccountID)
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if _, err := transactionStore.GetPlan(ctx, planID); err != nil {
				return err
			}
			if _, err := transactionStore.GetAccount(ctx, accountID); err != nil {
				return err
			}
			return transactionStore.UpsertResellerPrice(ctx, ResellerPrice{
				AccountID:   accountID,
				PlanID:      planID,
				CustomPrice: price,
				UpdatedAt:   service.now(),
			})
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationSetResellerPrice,
		AccountID: accountID,
		PlanID:    planID,
		Amount:    price,
		Error:     operationError,
	})
	return operationError
}

// RemoveResellerPrice deletes an override; the plan base price applies again.
func (service *Service) RemoveResellerPrice(ctx context.Context, accountID AccountID, planID PlanID) error {
	removed, operationError := service.store.DeleteResellerPrice(ctx, accountID, planID)
	if operationError == nil && !removed {
		operationError = ErrResellerPriceNotFound
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveResellerPrice,
		AccountID: accountID,
		PlanID:    planID,
		Error:     operationError,
	})
	return operationError
}

// ListResellerPrices lists every override of an account.
func (service *Service) ListResellerPrices(ctx context.Context, accountID AccountID) ([]ResellerPrice, error) {
	if _, err := service.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return service.store.ListResellerPrices(ctx, accountID)
}
