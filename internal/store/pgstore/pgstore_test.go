package pgstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/migration"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

const testDatabaseEnv = "KEYSHOP_TEST_DATABASE_URL"

type fakeRow struct {
	values []any
}

func (row fakeRow) Scan(dest ...any) error {
	if len(dest) != len(row.values) {
		return errors.New("column count mismatch")
	}
	for index, target := range dest {
		switch typed := target.(type) {
		case *int64:
			*typed = row.values[index].(int64)
		case *int:
			*typed = row.values[index].(int)
		case *string:
			*typed = row.values[index].(string)
		case *bool:
			*typed = row.values[index].(bool)
		case *time.Time:
			*typed = row.values[index].(time.Time)
		case **int64:
			value, _ := row.values[index].(*int64)
			*typed = value
		case **time.Time:
			value, _ := row.values[index].(*time.Time)
			*typed = value
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func TestScanLedgerEntryMapsOptionalReferences(test *testing.T) {
	test.Parallel()
	adminID := int64(9)
	reversed := int64(3)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("UTC+2", 7200))
	entry, err := scanLedgerEntry(fakeRow{values: []any{
		int64(4), int64(77), int64(-250), "reversal", &adminID, "oops", (*int64)(nil), &reversed, `{"source":"admin"}`, createdAt,
	}})
	require.NoError(test, err)
	require.Equal(test, int64(4), entry.ID.Int64())
	require.Equal(test, shop.EntryReversal, entry.Kind)
	require.Equal(test, shop.AmountCents(-250), entry.Amount)
	require.NotNil(test, entry.AdminID)
	require.Equal(test, int64(9), entry.AdminID.Int64())
	require.Nil(test, entry.OrderID)
	require.Equal(test, int64(3), entry.ReversesEntryID.Int64())
	require.Equal(test, time.UTC, entry.CreatedAt.Location())
}

func TestScanKeyRejectsInvalidIdentifiers(test *testing.T) {
	test.Parallel()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := scanKey(fakeRow{values: []any{
		int64(0), int64(1), int64(1), "VALUE", false, (*int64)(nil), (*time.Time)(nil), (*int64)(nil), (*time.Time)(nil), createdAt,
	}})
	require.ErrorIs(test, err, shop.ErrInvalidKeyID)
}

func TestScanAccountRejectsUnknownRole(test *testing.T) {
	test.Parallel()
	_, err := scanAccount(fakeRow{values: []any{
		int64(5), "name", int64(0), "owner", false, "", (*time.Time)(nil), time.Now(),
	}})
	require.ErrorIs(test, err, shop.ErrInvalidRole)
}

func TestIsUniqueViolationMatchesConstraint(test *testing.T) {
	test.Parallel()
	err := &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintReversesEntry}
	require.True(test, isUniqueViolation(err, constraintReversesEntry))
	require.False(test, isUniqueViolation(err, "reseller_prices_pkey"))
	require.False(test, isUniqueViolation(nil, constraintReversesEntry))
	require.Equal(test, maxQueryLimit, queryLimit(0))
	require.Equal(test, 7, queryLimit(7))
}

func newPostgresService(test *testing.T) *shop.Service {
	test.Helper()
	_, service := newPostgresFixture(test)
	return service
}

func newPostgresFixture(test *testing.T) (*Store, *shop.Service) {
	test.Helper()
	databaseURL := os.Getenv(testDatabaseEnv)
	if databaseURL == "" {
		test.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(test, err)
	test.Cleanup(pool.Close)

	sqlDB := stdlib.OpenDBFromPool(pool)
	test.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(test, migration.RunMigrations(ctx, sqlDB))
	_, err = pool.Exec(ctx, `truncate ledger_entries, reseller_prices, orders, access_keys, plans, products, accounts restart identity`)
	require.NoError(test, err)

	store := New(pool)
	service, err := shop.NewService(store, func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	require.NoError(test, err)
	return store, service
}

func TestPostgresConcurrentPurchases(test *testing.T) {
	service := newPostgresService(test)
	ctx := context.Background()
	product, err := service.CreateProduct(ctx, shop.ProductInput{Name: "VPN"})
	require.NoError(test, err)
	plan, err := service.CreatePlan(ctx, shop.PlanInput{ProductID: product.ID, ValidityDays: 7, BasePrice: 100, Keys: []string{"P1", "P2", "P3"}})
	require.NoError(test, err)

	const buyers = 8
	for index := 1; index <= buyers; index++ {
		buyer, err := shop.NewAccountID(int64(index))
		require.NoError(test, err)
		_, err = service.GetOrCreateAccount(ctx, buyer, "buyer")
		require.NoError(test, err)
		_, err = service.AdjustBalance(ctx, shop.BalanceAdjustment{AccountID: buyer, Amount: 500})
		require.NoError(test, err)
	}

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		sold      int
	)
	for index := 1; index <= buyers; index++ {
		waitGroup.Add(1)
		go func(raw int64) {
			defer waitGroup.Done()
			buyer, _ := shop.NewAccountID(raw)
			_, err := service.Purchase(ctx, shop.PurchaseRequest{AccountID: buyer, PlanID: plan.ID, Quantity: 1})
			if err == nil {
				mutex.Lock()
				sold++
				mutex.Unlock()
				return
			}
			if !errors.Is(err, shop.ErrOutOfStock) {
				test.Errorf("unexpected purchase error: %v", err)
			}
		}(int64(index))
	}
	waitGroup.Wait()

	statistics, err := service.PlanStatistics(ctx, plan.ID)
	require.NoError(test, err)
	require.Equal(test, int64(sold), statistics.Sold)
	require.Equal(test, int64(sold), statistics.Orders)
	require.LessOrEqual(test, sold, 3)
	require.Equal(test, shop.AmountCents(int64(sold)*100), statistics.Revenue)
}

func TestPostgresConcurrentPurchasesBySameAccount(test *testing.T) {
	service := newPostgresService(test)
	ctx := context.Background()
	product, err := service.CreateProduct(ctx, shop.ProductInput{Name: "VPN"})
	require.NoError(test, err)
	plan, err := service.CreatePlan(ctx, shop.PlanInput{ProductID: product.ID, ValidityDays: 7, BasePrice: 1000, Keys: []string{"Q1", "Q2", "Q3", "Q4", "Q5", "Q6"}})
	require.NoError(test, err)
	buyer, err := shop.NewAccountID(77)
	require.NoError(test, err)
	_, err = service.GetOrCreateAccount(ctx, buyer, "buyer")
	require.NoError(test, err)
	_, err = service.AdjustBalance(ctx, shop.BalanceAdjustment{AccountID: buyer, Amount: 2500})
	require.NoError(test, err)

	const attempts = 6
	var (
		waitGroup    sync.WaitGroup
		mutex        sync.Mutex
		sold         int
		insufficient int
	)
	for index := 0; index < attempts; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.Purchase(ctx, shop.PurchaseRequest{AccountID: buyer, PlanID: plan.ID, Quantity: 1})
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, shop.ErrInsufficientBalance):
				insufficient++
			default:
				test.Errorf("unexpected purchase error: %v", err)
			}
		}()
	}
	waitGroup.Wait()

	require.Equal(test, 2, sold)
	require.Equal(test, attempts-2, insufficient)
	account, err := service.GetAccount(ctx, buyer)
	require.NoError(test, err)
	require.Equal(test, shop.AmountCents(500), account.Balance)
}

func TestPostgresDeletePlanWaitsForPurchaseUnit(test *testing.T) {
	store, service := newPostgresFixture(test)
	ctx := context.Background()
	product, err := service.CreateProduct(ctx, shop.ProductInput{Name: "VPN"})
	require.NoError(test, err)
	plan, err := service.CreatePlan(ctx, shop.PlanInput{ProductID: product.ID, ValidityDays: 7, BasePrice: 100, Keys: []string{"R1"}})
	require.NoError(test, err)
	buyer, err := shop.NewAccountID(91)
	require.NoError(test, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	purchaseDone := make(chan error, 1)
	go func() {
		purchaseDone <- store.WithTx(ctx, func(ctx context.Context, txStore shop.Store) error {
			defer close(locked)
			lockedPlan, err := txStore.LockPlan(ctx, plan.ID)
			if err != nil {
				return err
			}
			_, err = txStore.InsertOrder(ctx, shop.OrderInput{
				AccountID:  buyer,
				ProductID:  lockedPlan.ProductID,
				PlanID:     lockedPlan.ID,
				Quantity:   1,
				UnitPrice:  lockedPlan.BasePrice,
				TotalPrice: lockedPlan.BasePrice,
				Status:     shop.OrderStatusCompleted,
				CreatedAt:  time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			locked <- struct{}{}
			<-release
			return nil
		})
	}()
	<-locked

	deleteDone := make(chan error, 1)
	go func() { deleteDone <- service.DeletePlan(ctx, plan.ID) }()
	select {
	case err := <-deleteDone:
		test.Fatalf("delete finished while the plan was locked: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	close(release)

	require.NoError(test, <-purchaseDone)
	require.ErrorIs(test, <-deleteDone, shop.ErrHasDependentOrders)
	_, err = service.GetPlan(ctx, plan.ID)
	require.NoError(test, err)
}
