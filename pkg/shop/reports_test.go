package shop

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestStatisticsAfterPurchases(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 30, mustAmount(test, "2.50"), "K1", "K2", "K3")
	other := store.seedPlan(test, 30, mustAmount(test, "1"), "O1")
	buyer := store.seedAccount(test, 7001, mustAmount(test, "20"), RoleUser)
	service := mustNewService(test, store)
	ctx := context.Background()
	if _, err := service.Purchase(ctx, PurchaseRequest{AccountID: buyer, PlanID: plan.ID, Quantity: 2}); err != nil {
		test.Fatalf("purchase: %v", err)
	}

	statistics, err := service.Statistics(ctx)
	if err != nil {
		test.Fatalf("statistics: %v", err)
	}
	want := Statistics{TotalOrders: 1, Revenue: mustAmount(test, "5"), Accounts: 1, ActiveProducts: 2, TotalKeys: 4, UsedKeys: 2, AvailableKeys: 2}
	if statistics != want {
		test.Fatalf("expected %+v, got %+v", want, statistics)
	}
	again, err := service.Statistics(ctx)
	if err != nil || again != statistics {
		test.Fatalf("statistics must be a pure read")
	}

	planStatistics, err := service.PlanStatistics(ctx, plan.ID)
	if err != nil {
		test.Fatalf("plan statistics: %v", err)
	}
	if !reflect.DeepEqual(planStatistics, SalesStatistics{Sold: 2, Available: 1, TotalKeys: 3, Orders: 1, Revenue: mustAmount(test, "5")}) {
		test.Fatalf("unexpected plan statistics: %+v", planStatistics)
	}
	productStatistics, err := service.ProductStatistics(ctx, other.ProductID)
	if err != nil {
		test.Fatalf("product statistics: %v", err)
	}
	if productStatistics.Sold != 0 || productStatistics.Available != 1 {
		test.Fatalf("unexpected product statistics: %+v", productStatistics)
	}
	if _, err := service.PlanStatistics(ctx, mustPlanID(test, 99)); !errors.Is(err, ErrPlanNotFound) {
		test.Fatalf("expected ErrPlanNotFound, got %v", err)
	}

	orders, err := service.ListOrders(ctx, OrderFilter{AccountID: &buyer})
	if err != nil || len(orders) != 1 || orders[0].Quantity != 2 {
		test.Fatalf("unexpected orders: %+v, %v", orders, err)
	}
}
