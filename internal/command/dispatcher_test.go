package command

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	service    *shop.Service
	dispatcher *Dispatcher
	plan       shop.Plan
	admin      Caller
	buyer      Caller
}

func newDispatchFixture(test *testing.T) dispatchFixture {
	test.Helper()
	ctx := context.Background()
	database, err := gormstore.Open(ctx, filepath.Join(test.TempDir(), "keyshop.db"), nil)
	require.NoError(test, err)
	test.Cleanup(func() { _ = database.Close() })
	require.NoError(test, database.AutoMigrate())
	service, err := shop.NewService(gormstore.New(database.DB), func() time.Time {
		return time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	})
	require.NoError(test, err)
	dispatcher, err := NewDispatcher(service)
	require.NoError(test, err)

	product, err := service.CreateProduct(ctx, shop.ProductInput{Name: "Proxy"})
	require.NoError(test, err)
	price, err := shop.ParseAmount("3")
	require.NoError(test, err)
	plan, err := service.CreatePlan(ctx, shop.PlanInput{ProductID: product.ID, ValidityDays: 7, BasePrice: price, Keys: []string{"K1", "K2"}})
	require.NoError(test, err)

	admin := Caller{AccountID: mustAccountID(test, 1), DisplayName: "root"}
	require.NoError(test, service.EnsureAdmins(ctx, []shop.AccountID{admin.AccountID}))
	buyer := Caller{AccountID: mustAccountID(test, 2), DisplayName: "buyer"}
	credit, err := shop.ParseAmount("10")
	require.NoError(test, err)
	_, err = service.GetOrCreateAccount(ctx, buyer.AccountID, buyer.DisplayName)
	require.NoError(test, err)
	_, err = service.AdjustBalance(ctx, shop.BalanceAdjustment{AccountID: buyer.AccountID, Amount: credit, AdminID: admin.AccountID, Reason: "top up"})
	require.NoError(test, err)

	return dispatchFixture{service: service, dispatcher: dispatcher, plan: plan, admin: admin, buyer: buyer}
}

func TestDispatchBuyFromRawCallback(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	ctx := context.Background()

	result, err := fixture.dispatcher.DispatchRaw(ctx, fixture.buyer, Encode(Buy{PlanID: fixture.plan.ID, Quantity: 2}))
	require.NoError(test, err)
	require.NotNil(test, result.Receipt)
	require.Len(test, result.Receipt.Keys, 2)
	expectedBalance, err := shop.ParseAmount("4")
	require.NoError(test, err)
	require.Equal(test, expectedBalance, result.Receipt.Balance)

	result, err = fixture.dispatcher.Dispatch(ctx, fixture.buyer, MyKeys{})
	require.NoError(test, err)
	require.Len(test, result.Keys, 2)

	result, err = fixture.dispatcher.Dispatch(ctx, fixture.buyer, OrderHistory{})
	require.NoError(test, err)
	require.Len(test, result.Orders, 1)
}

func TestDispatchViewPlanResolvesCallerPrice(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	ctx := context.Background()
	custom, err := shop.ParseAmount("1.25")
	require.NoError(test, err)
	require.NoError(test, fixture.service.SetResellerPrice(ctx, fixture.buyer.AccountID, fixture.plan.ID, custom))

	result, err := fixture.dispatcher.Dispatch(ctx, fixture.buyer, ViewPlan{PlanID: fixture.plan.ID})
	require.NoError(test, err)
	require.NotNil(test, result.Price)
	require.Equal(test, custom, *result.Price)
	require.Equal(test, 2, result.Plan.Stock)
}

func TestDispatchRequiresAdminRole(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	ctx := context.Background()

	_, err := fixture.dispatcher.Dispatch(ctx, fixture.buyer, AdminStatistics{})
	require.ErrorIs(test, err, ErrForbidden)

	result, err := fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminStatistics{})
	require.NoError(test, err)
	require.NotNil(test, result.Statistics)
	require.EqualValues(test, 2, result.Statistics.AvailableKeys)
}

func TestDispatchBlocksBannedCaller(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	ctx := context.Background()

	result, err := fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminBan{AccountID: fixture.buyer.AccountID, Reason: "spam"})
	require.NoError(test, err)
	require.True(test, result.Account.Banned)

	_, err = fixture.dispatcher.Dispatch(ctx, fixture.buyer, ViewProducts{})
	require.ErrorIs(test, err, shop.ErrBanned)

	_, err = fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminUnban{AccountID: fixture.buyer.AccountID})
	require.NoError(test, err)

	result, err = fixture.dispatcher.Dispatch(ctx, fixture.buyer, CheckBalance{})
	require.NoError(test, err)
	require.False(test, result.Account.Banned)
}

func TestDispatchAdminDeleteKeyRejectsIssuedKey(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	ctx := context.Background()

	receipt, err := fixture.service.Purchase(ctx, shop.PurchaseRequest{AccountID: fixture.buyer.AccountID, PlanID: fixture.plan.ID, Quantity: 1})
	require.NoError(test, err)

	_, err = fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminDeleteKey{KeyID: receipt.Keys[0].ID})
	require.ErrorIs(test, err, shop.ErrInvalidState)

	result, err := fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminViewKeys{PlanID: fixture.plan.ID})
	require.NoError(test, err)
	require.Len(test, result.Keys, 2)
	for _, key := range result.Keys {
		if key.Used {
			continue
		}
		_, err = fixture.dispatcher.Dispatch(ctx, fixture.admin, AdminDeleteKey{KeyID: key.ID})
		require.NoError(test, err)
	}
	plan, err := fixture.service.GetPlan(ctx, fixture.plan.ID)
	require.NoError(test, err)
	require.Zero(test, plan.Stock)
}

func TestDispatchRejectsUnknownRaw(test *testing.T) {
	test.Parallel()
	fixture := newDispatchFixture(test)
	_, err := fixture.dispatcher.DispatchRaw(context.Background(), fixture.buyer, "admin_panel")
	require.ErrorIs(test, err, ErrUnknownCommand)
}
