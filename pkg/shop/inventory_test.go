package shop

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAddKeysTrimsAndRaisesStock(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 30, mustAmount(test, "1"), "K1")
	service := mustNewService(test, store)

	count, err := service.AddKeys(context.Background(), plan.ID, []string{" K2 ", "K3\n"})
	if err != nil {
		test.Fatalf("add keys: %v", err)
	}
	if count != 2 {
		test.Fatalf("expected 2 inserted, got %d", count)
	}
	if stock := store.plan(test, plan.ID).Stock; stock != 3 || store.unusedKeyCount(plan.ID) != 3 {
		test.Fatalf("stock %d does not match unused keys %d", stock, store.unusedKeyCount(plan.ID))
	}
	keys, err := service.ListKeys(context.Background(), KeyFilter{PlanID: &plan.ID})
	if err != nil {
		test.Fatalf("list keys: %v", err)
	}
	if keys[1].Value != "K2" || keys[2].Value != "K3" {
		test.Fatalf("values not trimmed: %+v", keys)
	}
}

func TestAddKeysRejectsEmptyInput(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 30, mustAmount(test, "1"))
	service := mustNewService(test, store)

	for _, values := range [][]string{nil, {"K1", "  "}} {
		if _, err := service.AddKeys(context.Background(), plan.ID, values); !errors.Is(err, ErrInvalidKeyValue) {
			test.Fatalf("expected ErrInvalidKeyValue for %q, got %v", values, err)
		}
	}
	if stock := store.plan(test, plan.ID).Stock; stock != 0 {
		test.Fatalf("expected stock 0, got %d", stock)
	}
	if _, err := service.AddKeys(context.Background(), mustPlanID(test, 77), []string{"K"}); !errors.Is(err, ErrPlanNotFound) {
		test.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestClaimKeyDecrementsStock(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 10, mustAmount(test, "1"), "K1")
	service := mustNewService(test, store)

	key, err := service.ClaimKey(context.Background(), plan.ID)
	if err != nil {
		test.Fatalf("claim: %v", err)
	}
	if !key.Used || key.Value != "K1" || key.UsedBy != nil {
		test.Fatalf("unexpected claimed key: %+v", key)
	}
	if stock := store.plan(test, plan.ID).Stock; stock != 0 {
		test.Fatalf("expected stock 0, got %d", stock)
	}
	if _, err := service.ClaimKey(context.Background(), plan.ID); !errors.Is(err, ErrOutOfStock) {
		test.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestReleaseKey(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 10, mustAmount(test, "1"), "K1", "K2")
	buyer := store.seedAccount(test, 5001, mustAmount(test, "1"), RoleUser)
	service := mustNewService(test, store)
	receipt, err := service.Purchase(context.Background(), PurchaseRequest{AccountID: buyer, PlanID: plan.ID, Quantity: 1})
	if err != nil {
		test.Fatalf("purchase: %v", err)
	}

	if _, err := service.ReleaseKey(context.Background(), receipt.Keys[0].ID); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState for a used key, got %v", err)
	}
	unused, err := service.ListKeys(context.Background(), KeyFilter{PlanID: &plan.ID, Used: new(bool)})
	if err != nil || len(unused) != 1 {
		test.Fatalf("expected one unused key, got %d, %v", len(unused), err)
	}
	released, err := service.ReleaseKey(context.Background(), unused[0].ID)
	if err != nil || !released {
		test.Fatalf("release: %v", err)
	}
	if stock := store.plan(test, plan.ID).Stock; stock != 0 {
		test.Fatalf("expected stock 0, got %d", stock)
	}
	if _, err := service.ReleaseKey(context.Background(), unused[0].ID); !errors.Is(err, ErrKeyNotFound) {
		test.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestListPurchasedKeysMasksValues(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	plan := store.seedPlan(test, 10, mustAmount(test, "1"), "ABCD-EFGH-1234")
	buyer := store.seedAccount(test, 5002, mustAmount(test, "1"), RoleUser)
	service := mustNewService(test, store)
	if _, err := service.Purchase(context.Background(), PurchaseRequest{AccountID: buyer, PlanID: plan.ID, Quantity: 1}); err != nil {
		test.Fatalf("purchase: %v", err)
	}

	keys, err := service.ListPurchasedKeys(context.Background(), buyer, 0)
	if err != nil {
		test.Fatalf("list purchased: %v", err)
	}
	if len(keys) != 1 {
		test.Fatalf("expected one key, got %d", len(keys))
	}
	if keys[0].Value != "**********1234" || strings.Contains(keys[0].Value, "ABCD") {
		test.Fatalf("value not masked: %q", keys[0].Value)
	}
	if stored := store.state.keys[keys[0].ID.Int64()].Value; stored != "ABCD-EFGH-1234" {
		test.Fatalf("masking must not touch stored value, got %q", stored)
	}
}

func TestMaskKeyValue(test *testing.T) {
	test.Parallel()
	testCases := map[string]string{
		"":         "",
		"abc":      "***",
		"abcd":     "****",
		"abcdefgh": "****efgh",
	}
	for input, want := range testCases {
		if got := MaskKeyValue(input); got != want {
			test.Fatalf("MaskKeyValue(%q) = %q, want %q", input, got, want)
		}
	}
}
