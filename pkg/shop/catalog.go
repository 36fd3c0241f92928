package shop

import (
	"context"
	"fmt"
	"strings"
)

// CreateProduct adds an active product.
func (service *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	var created Product
	operationError := func() error {
		normalized, err := normalizeProductInput(input)
		if err != nil {
			return err
		}
		product, err := service.store.CreateProduct(ctx, NewProduct{
			Name:        normalized.Name,
			Description: normalized.Description,
			Active:      true,
			CreatedAt:   service.now(),
		})
		if err != nil {
			return err
		}
		created = product
		return nil
	}()
	service.logOperation(ctx, OperationLog{Operation: operationCreateProduct, Error: operationError})
	if operationError != nil {
		return Product{}, operationError
	}
	return created, nil
}

// UpdateProduct edits name and description.
func (service *Service) UpdateProduct(ctx context.Context, productID ProductID, input ProductInput) (Product, error) {
	var updated Product
	operationError := func() error {
		normalized, err := normalizeProductInput(input)
		if err != nil {
			return err
		}
		product, err := service.store.UpdateProduct(ctx, productID, normalized)
		if err != nil {
			return err
		}
		updated = product
		return nil
	}()
	service.logOperation(ctx, OperationLog{Operation: operationUpdateProduct, Error: operationError})
	if operationError != nil {
		return Product{}, operationError
	}
	return updated, nil
}

// DeactivateProduct hides a product from sale without touching history.
func (service *Service) DeactivateProduct(ctx context.Context, productID ProductID) error {
	return service.setProductActive(ctx, productID, false)
}

// ActivateProduct puts a product back on sale.
func (service *Service) ActivateProduct(ctx context.Context, productID ProductID) error {
	return service.setProductActive(ctx, productID, true)
}

func (service *Service) setProductActive(ctx context.Context, productID ProductID, active bool) error {
	operationError := service.store.SetProductActive(ctx, productID, active)
	service.logOperation(ctx, OperationLog{Operation: operationSetProductActive, Error: operationError})
	return operationError
}

// DeleteProduct hard-deletes a product together with its plans, keys and reseller prices.
// Products whose plans were ever ordered must be deactivated instead.
func (service *Service) DeleteProduct(ctx context.Context, productID ProductID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetProduct(ctx, productID); err != nil {
			return err
		}
		if _, err := transactionStore.LockProductPlans(ctx, productID); err != nil {
			return err
		}
		orders, err := transactionStore.CountOrdersForProduct(ctx, productID)
		if err != nil {
			return err
		}
		if orders > 0 {
			return fmt.Errorf("%w: product %s has %d orders", ErrHasDependentOrders, productID, orders)
		}
		return transactionStore.DeleteProduct(ctx, productID)
	})
	service.logOperation(ctx, OperationLog{Operation: operationDeleteProduct, Error: operationError})
	return operationError
}

// GetProduct returns a product or ErrProductNotFound.
func (service *Service) GetProduct(ctx context.Context, productID ProductID) (Product, error) {
	return service.store.GetProduct(ctx, productID)
}

// ListProducts lists products by name.
func (service *Service) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	return service.store.ListProducts(ctx, activeOnly)
}

// CreatePlan creates a plan and its initial keys in one unit.
func (service *Service) CreatePlan(ctx context.Context, input PlanInput) (Plan, error) {
	var created Plan
	operationError := func() error {
		if err := validatePlanFields(input.ValidityDays, input.BasePrice); err != nil {
			return err
		}
		var values []string
		if len(input.Keys) > 0 {
			normalized, err := normalizeKeyValues(input.Keys)
			if err != nil {
				return err
			}
			values = normalized
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if _, err := transactionStore.GetProduct(ctx, input.ProductID); err != nil {
				return err
			}
			now := service.now()
			plan, err := transactionStore.CreatePlan(ctx, NewPlan{
				ProductID:    input.ProductID,
				ValidityDays: input.ValidityDays,
				BasePrice:    input.BasePrice,
				Active:       true,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			count, err := insertKeys(ctx, transactionStore, plan, values, now)
			if err != nil {
				return err
			}
			plan.Stock += count
			created = plan
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationCreatePlan,
		PlanID:    created.ID,
		Amount:    input.BasePrice,
		Quantity:  created.Stock,
		Error:     operationError,
	})
	if operationError != nil {
		return Plan{}, operationError
	}
	return created, nil
}

// UpdatePlan edits validity and base price. Already issued keys keep their expiry.
func (service *Service) UpdatePlan(ctx context.Context, planID PlanID, update PlanUpdate) (Plan, error) {
	var updated Plan
	operationError := func() error {
		if err := validatePlanFields(update.ValidityDays, update.BasePrice); err != nil {
			return err
		}
		plan, err := service.store.UpdatePlan(ctx, planID, update)
		if err != nil {
			return err
		}
		updated = plan
		return nil
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdatePlan,
		PlanID:    planID,
		Amount:    update.BasePrice,
		Error:     operationError,
	})
	if operationError != nil {
		return Plan{}, operationError
	}
	return updated, nil
}

// DeactivatePlan stops sales of a plan.
func (service *Service) DeactivatePlan(ctx context.Context, planID PlanID) error {
	return service.setPlanActive(ctx, planID, false)
}

// ActivatePlan resumes sales of a plan.
func (service *Service) ActivatePlan(ctx context.Context, planID PlanID) error {
	return service.setPlanActive(ctx, planID, true)
}

func (service *Service) setPlanActive(ctx context.Context, planID PlanID, active bool) error {
	operationError := service.store.SetPlanActive(ctx, planID, active)
	service.logOperation(ctx, OperationLog{Operation: operationSetPlanActive, PlanID: planID, Error: operationError})
	return operationError
}

// DeletePlan hard-deletes a plan with its keys and reseller prices unless it was ordered.
func (service *Service) DeletePlan(ctx context.Context, planID PlanID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockPlan(ctx, planID); err != nil {
			return err
		}
		orders, err := transactionStore.CountOrdersForPlan(ctx, planID)
		if err != nil {
			return err
		}
		if orders > 0 {
			return fmt.Errorf("%w: plan %s has %d orders", ErrHasDependentOrders, planID, orders)
		}
		return transactionStore.DeletePlan(ctx, planID)
	})
	service.logOperation(ctx, OperationLog{Operation: operationDeletePlan, PlanID: planID, Error: operationError})
	return operationError
}

// GetPlan returns a plan or ErrPlanNotFound.
func (service *Service) GetPlan(ctx context.Context, planID PlanID) (Plan, error) {
	return service.store.GetPlan(ctx, planID)
}

// ListPlans lists the plans of a product ordered by validity days.
func (service *Service) ListPlans(ctx context.Context, productID ProductID, activeOnly bool) ([]Plan, error) {
	return service.store.ListPlans(ctx, productID, activeOnly)
}

func normalizeProductInput(input ProductInput) (ProductInput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ProductInput{}, fmt.Errorf("%w: empty value", ErrInvalidProductName)
	}
	return ProductInput{Name: name, Description: strings.TrimSpace(input.Description)}, nil
}

func validatePlanFields(validityDays int, basePrice AmountCents) error {
	if validityDays <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidValidityDays)
	}
	if basePrice <= 0 {
		return fmt.Errorf("%w: base price must be greater than zero", ErrInvalidAmount)
	}
	return nil
}
