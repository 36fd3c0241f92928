package shop

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const dayDuration = 24 * time.Hour

// ClaimKey claims one unused key of the plan in its own unit and decrements stock.
func (service *Service) ClaimKey(ctx context.Context, planID PlanID) (Key, error) {
	var claimed Key
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		plan, err := transactionStore.LockPlan(ctx, planID)
		if err != nil {
			return err
		}
		keys, err := claimKeys(ctx, transactionStore, plan, AccountID{}, 1, service.now())
		if err != nil {
			return err
		}
		claimed = keys[0]
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationClaimKey,
		PlanID:    planID,
		Quantity:  1,
		Error:     operationError,
	})
	if operationError != nil {
		return Key{}, operationError
	}
	return claimed, nil
}

// claimKeys flips count keys to used and keeps the stock counter in step, inside the
// caller's unit.
func claimKeys(ctx context.Context, transactionStore Store, plan Plan, owner AccountID, count int, claimedAt time.Time) ([]Key, error) {
	keys, err := transactionStore.ClaimKeys(ctx, KeyClaim{
		PlanID:    plan.ID,
		AccountID: owner,
		Count:     count,
		ClaimedAt: claimedAt,
		ExpiresAt: keyExpiry(claimedAt, plan.ValidityDays),
	})
	if err != nil {
		return nil, err
	}
	if len(keys) != count {
		return nil, ErrOutOfStock
	}
	if err := transactionStore.AdjustPlanStock(ctx, plan.ID, -count); err != nil {
		return nil, err
	}
	return keys, nil
}

func keyExpiry(claimedAt time.Time, validityDays int) time.Time {
	return claimedAt.Add(time.Duration(validityDays) * dayDuration)
}

// ReleaseKey deletes an unused key. A used key is left untouched and yields ErrInvalidState.
func (service *Service) ReleaseKey(ctx context.Context, keyID KeyID) (bool, error) {
	var planID PlanID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		key, err := transactionStore.GetKey(ctx, keyID)
		if err != nil {
			return err
		}
		planID = key.PlanID
		if key.Used {
			return fmt.Errorf("%w: key %s already issued", ErrInvalidState, keyID)
		}
		deleted, err := transactionStore.DeleteUnusedKey(ctx, keyID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: key %s already issued", ErrInvalidState, keyID)
		}
		return transactionStore.AdjustPlanStock(ctx, key.PlanID, -1)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReleaseKey,
		PlanID:    planID,
		Quantity:  1,
		Error:     operationError,
	})
	if operationError != nil {
		return false, operationError
	}
	return true, nil
}

// AddKeys inserts trimmed key values for a plan and raises its stock by the same count.
func (service *Service) AddKeys(ctx context.Context, planID PlanID, values []string) (int, error) {
	var inserted int
	operationError := func() error {
		normalized, err := normalizeKeyValues(values)
		if err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			plan, err := transactionStore.LockPlan(ctx, planID)
			if err != nil {
				return err
			}
			count, err := insertKeys(ctx, transactionStore, plan, normalized, service.now())
			if err != nil {
				return err
			}
			inserted = count
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAddKeys,
		PlanID:    planID,
		Quantity:  inserted,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return inserted, nil
}

func insertKeys(ctx context.Context, transactionStore Store, plan Plan, values []string, createdAt time.Time) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}
	rows := make([]NewKey, 0, len(values))
	for _, value := range values {
		rows = append(rows, NewKey{
			ProductID: plan.ProductID,
			PlanID:    plan.ID,
			Value:     value,
			CreatedAt: createdAt,
		})
	}
	count, err := transactionStore.InsertKeys(ctx, rows)
	if err != nil {
		return 0, err
	}
	if err := transactionStore.AdjustPlanStock(ctx, plan.ID, count); err != nil {
		return 0, err
	}
	return count, nil
}

func normalizeKeyValues(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidKeyValue)
	}
	normalized := make([]string, 0, len(values))
	for index, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: empty value at position %d", ErrInvalidKeyValue, index+1)
		}
		normalized = append(normalized, trimmed)
	}
	return normalized, nil
}

// ListKeys lists keys for inventory views.
func (service *Service) ListKeys(ctx context.Context, filter KeyFilter) ([]Key, error) {
	filter.Limit = normalizeListLimit(filter.Limit)
	return service.store.ListKeys(ctx, filter)
}

// ListPurchasedKeys lists keys issued to an account with their values masked.
func (service *Service) ListPurchasedKeys(ctx context.Context, accountID AccountID, limit int) ([]Key, error) {
	keys, err := service.store.ListKeysByOwner(ctx, accountID, normalizeListLimit(limit))
	if err != nil {
		return nil, err
	}
	for index := range keys {
		keys[index].Value = MaskKeyValue(keys[index].Value)
	}
	return keys, nil
}
