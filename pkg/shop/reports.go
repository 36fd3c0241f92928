package shop

import "context"

// Statistics summarises orders, revenue, accounts and key inventory.
func (service *Service) Statistics(ctx context.Context) (Statistics, error) {
	return service.store.Statistics(ctx)
}

// ProductStatistics summarises sales of one product.
func (service *Service) ProductStatistics(ctx context.Context, productID ProductID) (SalesStatistics, error) {
	if _, err := service.store.GetProduct(ctx, productID); err != nil {
		return SalesStatistics{}, err
	}
	return service.store.ProductStatistics(ctx, productID)
}

// PlanStatistics summarises sales of one plan.
func (service *Service) PlanStatistics(ctx context.Context, planID PlanID) (SalesStatistics, error) {
	if _, err := service.store.GetPlan(ctx, planID); err != nil {
		return SalesStatistics{}, err
	}
	return service.store.PlanStatistics(ctx, planID)
}

// ListOrders lists orders newest first.
func (service *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	filter.Limit = normalizeListLimit(filter.Limit)
	return service.store.ListOrders(ctx, filter)
}
