package pgstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/jackc/pgx/v5"
)

const (
	accountColumns = `id, display_name, balance_cents, role, banned, ban_reason, banned_at, created_at`
	productColumns = `id, name, description, active, created_at`
	planColumns    = `id, product_id, validity_days, base_price_cents, stock, active, created_at`
	keyColumns     = `id, product_id, plan_id, value, used, used_by, used_at, order_id, expires_at, created_at`
	orderColumns   = `id, account_id, product_id, plan_id, quantity, unit_price_cents, total_price_cents, status, created_at`
	priceColumns   = `account_id, plan_id, custom_price_cents, updated_at`
	entryColumns   = `id, account_id, amount_cents, kind, admin_id, reason, order_id, reverses_entry_id, coalesce(metadata::text,'{}'), created_at`

	sqlInsertAccountIfMissing = `
		insert into accounts(id, display_name, balance_cents, role, banned, ban_reason, created_at)
		values($1, $2, 0, $3, false, '', $4)
		on conflict (id) do nothing
	`

	sqlSelectAccount       = `select ` + accountColumns + ` from accounts where id = $1`
	sqlSelectAccountLocked = sqlSelectAccount + ` for update`
	sqlAddToBalance        = `update accounts set balance_cents = balance_cents + $2 where id = $1 returning balance_cents`
	sqlSetAccountBan       = `update accounts set banned = $2, ban_reason = $3, banned_at = $4 where id = $1`
	sqlSetAccountRole      = `update accounts set role = $2 where id = $1`
	sqlDeleteAccount       = `delete from accounts where id = $1`

	sqlInsertEntry = `
		insert into ledger_entries(account_id, amount_cents, kind, admin_id, reason, order_id, reverses_entry_id, metadata, created_at)
		values($1, $2, $3, $4, $5, $6, $7, coalesce(nullif($8,''),'{}')::jsonb, $9)
		returning ` + entryColumns

	sqlSelectEntry = `select ` + entryColumns + ` from ledger_entries where id = $1`
	sqlHasReversal = `select exists(select 1 from ledger_entries where reverses_entry_id = $1)`
	sqlSumEntries  = `select coalesce(sum(amount_cents),0) from ledger_entries where account_id = $1`

	sqlInsertProduct       = `insert into products(name, description, active, created_at) values($1, $2, $3, $4) returning ` + productColumns
	sqlSelectProduct       = `select ` + productColumns + ` from products where id = $1`
	sqlUpdateProduct       = `update products set name = $2, description = $3 where id = $1 returning ` + productColumns
	sqlSetProductFlag      = `update products set active = $2 where id = $1`
	sqlDeleteProductPrices = `delete from reseller_prices where plan_id in (select id from plans where product_id = $1)`
	sqlDeleteProductKeys   = `delete from access_keys where product_id = $1`
	sqlDeleteProductPlans  = `delete from plans where product_id = $1`
	sqlDeleteProduct       = `delete from products where id = $1`

	sqlInsertPlan = `
		insert into plans(product_id, validity_days, base_price_cents, stock, active, created_at)
		values($1, $2, $3, 0, $4, $5)
		returning ` + planColumns

	sqlSelectPlan         = `select ` + planColumns + ` from plans where id = $1`
	sqlSelectPlanLocked   = sqlSelectPlan + ` for update`
	sqlLockProductPlans   = `select ` + planColumns + ` from plans where product_id = $1 order by id for update`
	sqlUpdatePlan         = `update plans set validity_days = $2, base_price_cents = $3 where id = $1 returning ` + planColumns
	sqlSetPlanFlag        = `update plans set active = $2 where id = $1`
	sqlAdjustPlanStock    = `update plans set stock = stock + $2 where id = $1`
	sqlDeletePlanPrices   = `delete from reseller_prices where plan_id = $1`
	sqlDeletePlanKeys     = `delete from access_keys where plan_id = $1`
	sqlDeletePlan         = `delete from plans where id = $1`
	sqlCountPlanOrders    = `select count(*) from orders where plan_id = $1`
	sqlCountProductOrders = `select count(*) from orders where product_id = $1 or plan_id in (select id from plans where product_id = $1)`

	sqlInsertKey = `insert into access_keys(product_id, plan_id, value, used, created_at) values($1, $2, $3, false, $4)`

	sqlClaimKeys = `
		with candidates as (
			select id from access_keys
			where plan_id = $1 and used = false
			order by id
			limit $2
			for update skip locked
		)
		update access_keys
		set used = true, used_by = $3, used_at = $4, expires_at = $5
		from candidates
		where access_keys.id = candidates.id
		returning access_keys.id, access_keys.product_id, access_keys.plan_id, access_keys.value, access_keys.used,
			access_keys.used_by, access_keys.used_at, access_keys.order_id, access_keys.expires_at, access_keys.created_at
	`

	sqlAssignKeys      = `update access_keys set order_id = $2 where id = any($1)`
	sqlSelectKey       = `select ` + keyColumns + ` from access_keys where id = $1`
	sqlDeleteUnusedKey = `delete from access_keys where id = $1 and used = false`
	sqlKeysByOwner     = `select ` + keyColumns + ` from access_keys where used_by = $1 order by id desc limit $2`

	sqlInsertOrder = `
		insert into orders(account_id, product_id, plan_id, quantity, unit_price_cents, total_price_cents, status, created_at)
		values($1, $2, $3, $4, $5, $6, $7, $8)
		returning ` + orderColumns

	sqlSelectPrice = `select ` + priceColumns + ` from reseller_prices where account_id = $1 and plan_id = $2`

	sqlUpsertPrice = `
		insert into reseller_prices(account_id, plan_id, custom_price_cents, updated_at)
		values($1, $2, $3, $4)
		on conflict (account_id, plan_id) do update
		set custom_price_cents = excluded.custom_price_cents, updated_at = excluded.updated_at
	`

	sqlDeletePrice = `delete from reseller_prices where account_id = $1 and plan_id = $2`
	sqlListPrices  = `select ` + priceColumns + ` from reseller_prices where account_id = $1 order by plan_id`

	sqlStatistics = `
		select
			(select count(*) from orders),
			(select coalesce(sum(total_price_cents),0) from orders),
			(select count(*) from accounts),
			(select count(*) from accounts where banned),
			(select count(*) from products where active),
			(select count(*) from access_keys),
			(select count(*) from access_keys where used)
	`

	sqlProductSales = `
		select
			(select count(*) from access_keys where product_id = $1),
			(select count(*) from access_keys where product_id = $1 and used),
			(select count(*) from orders where product_id = $1),
			(select coalesce(sum(total_price_cents),0) from orders where product_id = $1)
	`

	sqlPlanSales = `
		select
			(select count(*) from access_keys where plan_id = $1),
			(select count(*) from access_keys where plan_id = $1 and used),
			(select count(*) from orders where plan_id = $1),
			(select coalesce(sum(total_price_cents),0) from orders where plan_id = $1)
	`

	maxQueryLimit = 1 << 30
)

// queries holds the statements shared by Store and TxStore.
type queries struct {
	db querier
}

type scanner interface {
	Scan(dest ...any) error
}

func (q queries) GetOrCreateAccount(ctx context.Context, account shop.NewAccount) (shop.Account, error) {
	createdAt := account.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := q.db.Exec(ctx, sqlInsertAccountIfMissing, account.ID.Int64(), account.DisplayName, account.Role.String(), createdAt); err != nil {
		return shop.Account{}, storageError(errorSubjectAccount, errorCodeCreate, err)
	}
	return q.GetAccount(ctx, account.ID)
}

func (q queries) GetAccount(ctx context.Context, accountID shop.AccountID) (shop.Account, error) {
	return q.selectAccount(ctx, sqlSelectAccount, accountID, errorCodeGet)
}

func (q queries) LockAccount(ctx context.Context, accountID shop.AccountID) (shop.Account, error) {
	return q.selectAccount(ctx, sqlSelectAccountLocked, accountID, errorCodeLock)
}

func (q queries) selectAccount(ctx context.Context, statement string, accountID shop.AccountID, code string) (shop.Account, error) {
	account, err := scanAccount(q.db.QueryRow(ctx, statement, accountID.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Account{}, wrapStoreError(errorSubjectAccount, code, shop.ErrAccountNotFound)
	}
	if err != nil {
		return shop.Account{}, storageError(errorSubjectAccount, code, err)
	}
	return account, nil
}

func (q queries) AddToBalance(ctx context.Context, accountID shop.AccountID, delta shop.AmountCents) (shop.AmountCents, error) {
	var balance int64
	err := q.db.QueryRow(ctx, sqlAddToBalance, accountID.Int64(), delta.Int64()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeUpdate, shop.ErrAccountNotFound)
	}
	if err != nil {
		return 0, storageError(errorSubjectBalance, errorCodeUpdate, err)
	}
	return shop.AmountCents(balance), nil
}

func (q queries) SetAccountBan(ctx context.Context, accountID shop.AccountID, ban shop.AccountBan) error {
	return q.execAffectingOne(ctx, errorSubjectAccount, errorCodeUpdate, shop.ErrAccountNotFound,
		sqlSetAccountBan, accountID.Int64(), ban.Banned, ban.Reason, utcRef(ban.At))
}

func (q queries) SetAccountRole(ctx context.Context, accountID shop.AccountID, role shop.Role) error {
	return q.execAffectingOne(ctx, errorSubjectAccount, errorCodeUpdate, shop.ErrAccountNotFound,
		sqlSetAccountRole, accountID.Int64(), role.String())
}

func (q queries) DeleteAccount(ctx context.Context, accountID shop.AccountID) error {
	return q.execAffectingOne(ctx, errorSubjectAccount, errorCodeDelete, shop.ErrAccountNotFound,
		sqlDeleteAccount, accountID.Int64())
}

func (q queries) ListAccounts(ctx context.Context, filter shop.AccountFilter) ([]shop.Account, error) {
	clauses := []string{"true"}
	arguments := []any{}
	if filter.BannedOnly {
		clauses = append(clauses, "banned")
	}
	if filter.Search != "" {
		arguments = append(arguments, "%"+strings.ToLower(filter.Search)+"%")
		searchClause := fmt.Sprintf("lower(display_name) like $%d", len(arguments))
		if numericID, err := strconv.ParseInt(filter.Search, 10, 64); err == nil {
			arguments = append(arguments, numericID)
			searchClause = fmt.Sprintf("(%s or id = $%d)", searchClause, len(arguments))
		}
		clauses = append(clauses, searchClause)
	}
	arguments = append(arguments, queryLimit(filter.Limit))
	statement := fmt.Sprintf("select %s from accounts where %s order by id limit $%d",
		accountColumns, strings.Join(clauses, " and "), len(arguments))
	rows, err := q.db.Query(ctx, statement, arguments...)
	if err != nil {
		return nil, storageError(errorSubjectAccount, errorCodeList, err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Account, error) {
		return scanAccount(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return accounts, nil
}

func (q queries) InsertLedgerEntry(ctx context.Context, input shop.LedgerEntryInput) (shop.LedgerEntry, error) {
	createdAt := input.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	entry, err := scanLedgerEntry(q.db.QueryRow(ctx, sqlInsertEntry,
		input.AccountID.Int64(),
		input.Amount.Int64(),
		string(input.Kind),
		accountRef(input.AdminID),
		input.Reason,
		orderRef(input.OrderID),
		entryRef(input.ReversesEntryID),
		input.Metadata.String(),
		createdAt,
	))
	if isUniqueViolation(err, constraintReversesEntry) {
		return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, fmt.Errorf("%w: entry already reversed", shop.ErrInvalidState))
	}
	if err != nil {
		return shop.LedgerEntry{}, storageError(errorSubjectEntry, errorCodeInsert, err)
	}
	return entry, nil
}

func (q queries) GetLedgerEntry(ctx context.Context, entryID shop.EntryID) (shop.LedgerEntry, error) {
	entry, err := scanLedgerEntry(q.db.QueryRow(ctx, sqlSelectEntry, entryID.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, shop.ErrEntryNotFound)
	}
	if err != nil {
		return shop.LedgerEntry{}, storageError(errorSubjectEntry, errorCodeGet, err)
	}
	return entry, nil
}

func (q queries) HasReversal(ctx context.Context, entryID shop.EntryID) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, sqlHasReversal, entryID.Int64()).Scan(&exists); err != nil {
		return false, storageError(errorSubjectEntry, errorCodeCount, err)
	}
	return exists, nil
}

func (q queries) ListLedgerEntries(ctx context.Context, filter shop.EntryFilter) ([]shop.LedgerEntry, error) {
	statement := `select ` + entryColumns + ` from ledger_entries order by id desc limit $1`
	arguments := []any{queryLimit(filter.Limit)}
	if filter.AccountID != nil {
		statement = `select ` + entryColumns + ` from ledger_entries where account_id = $2 order by id desc limit $1`
		arguments = append(arguments, filter.AccountID.Int64())
	}
	rows, err := q.db.Query(ctx, statement, arguments...)
	if err != nil {
		return nil, storageError(errorSubjectEntry, errorCodeList, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.LedgerEntry, error) {
		return scanLedgerEntry(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func (q queries) SumLedgerEntries(ctx context.Context, accountID shop.AccountID) (shop.AmountCents, error) {
	var sum int64
	if err := q.db.QueryRow(ctx, sqlSumEntries, accountID.Int64()).Scan(&sum); err != nil {
		return 0, storageError(errorSubjectBalance, errorCodeSum, err)
	}
	return shop.AmountCents(sum), nil
}

func (q queries) CreateProduct(ctx context.Context, product shop.NewProduct) (shop.Product, error) {
	created, err := scanProduct(q.db.QueryRow(ctx, sqlInsertProduct, product.Name, product.Description, product.Active, product.CreatedAt.UTC()))
	if err != nil {
		return shop.Product{}, storageError(errorSubjectProduct, errorCodeCreate, err)
	}
	return created, nil
}

func (q queries) GetProduct(ctx context.Context, productID shop.ProductID) (shop.Product, error) {
	return q.returnProduct(q.db.QueryRow(ctx, sqlSelectProduct, productID.Int64()), errorCodeGet)
}

func (q queries) UpdateProduct(ctx context.Context, productID shop.ProductID, input shop.ProductInput) (shop.Product, error) {
	return q.returnProduct(q.db.QueryRow(ctx, sqlUpdateProduct, productID.Int64(), input.Name, input.Description), errorCodeUpdate)
}

func (q queries) returnProduct(row pgx.Row, code string) (shop.Product, error) {
	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Product{}, wrapStoreError(errorSubjectProduct, code, shop.ErrProductNotFound)
	}
	if err != nil {
		return shop.Product{}, storageError(errorSubjectProduct, code, err)
	}
	return product, nil
}

func (q queries) SetProductActive(ctx context.Context, productID shop.ProductID, active bool) error {
	return q.execAffectingOne(ctx, errorSubjectProduct, errorCodeUpdate, shop.ErrProductNotFound,
		sqlSetProductFlag, productID.Int64(), active)
}

func (q queries) DeleteProduct(ctx context.Context, productID shop.ProductID) error {
	for _, statement := range []string{sqlDeleteProductPrices, sqlDeleteProductKeys, sqlDeleteProductPlans} {
		if _, err := q.db.Exec(ctx, statement, productID.Int64()); err != nil {
			return storageError(errorSubjectProduct, errorCodeDelete, err)
		}
	}
	return q.execAffectingOne(ctx, errorSubjectProduct, errorCodeDelete, shop.ErrProductNotFound,
		sqlDeleteProduct, productID.Int64())
}

func (q queries) ListProducts(ctx context.Context, activeOnly bool) ([]shop.Product, error) {
	statement := `select ` + productColumns + ` from products order by name, id`
	if activeOnly {
		statement = `select ` + productColumns + ` from products where active order by name, id`
	}
	rows, err := q.db.Query(ctx, statement)
	if err != nil {
		return nil, storageError(errorSubjectProduct, errorCodeList, err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	return products, nil
}

func (q queries) CreatePlan(ctx context.Context, plan shop.NewPlan) (shop.Plan, error) {
	created, err := scanPlan(q.db.QueryRow(ctx, sqlInsertPlan,
		plan.ProductID.Int64(), plan.ValidityDays, plan.BasePrice.Int64(), plan.Active, plan.CreatedAt.UTC()))
	if err != nil {
		return shop.Plan{}, storageError(errorSubjectPlan, errorCodeCreate, err)
	}
	return created, nil
}

func (q queries) GetPlan(ctx context.Context, planID shop.PlanID) (shop.Plan, error) {
	return q.returnPlan(q.db.QueryRow(ctx, sqlSelectPlan, planID.Int64()), errorCodeGet)
}

func (q queries) LockPlan(ctx context.Context, planID shop.PlanID) (shop.Plan, error) {
	return q.returnPlan(q.db.QueryRow(ctx, sqlSelectPlanLocked, planID.Int64()), errorCodeLock)
}

func (q queries) LockProductPlans(ctx context.Context, productID shop.ProductID) ([]shop.Plan, error) {
	return q.collectPlans(ctx, sqlLockProductPlans, productID, errorCodeLock)
}

func (q queries) UpdatePlan(ctx context.Context, planID shop.PlanID, update shop.PlanUpdate) (shop.Plan, error) {
	return q.returnPlan(q.db.QueryRow(ctx, sqlUpdatePlan, planID.Int64(), update.ValidityDays, update.BasePrice.Int64()), errorCodeUpdate)
}

func (q queries) returnPlan(row pgx.Row, code string) (shop.Plan, error) {
	plan, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Plan{}, wrapStoreError(errorSubjectPlan, code, shop.ErrPlanNotFound)
	}
	if err != nil {
		return shop.Plan{}, storageError(errorSubjectPlan, code, err)
	}
	return plan, nil
}

func (q queries) SetPlanActive(ctx context.Context, planID shop.PlanID, active bool) error {
	return q.execAffectingOne(ctx, errorSubjectPlan, errorCodeUpdate, shop.ErrPlanNotFound,
		sqlSetPlanFlag, planID.Int64(), active)
}

func (q queries) DeletePlan(ctx context.Context, planID shop.PlanID) error {
	for _, statement := range []string{sqlDeletePlanPrices, sqlDeletePlanKeys} {
		if _, err := q.db.Exec(ctx, statement, planID.Int64()); err != nil {
			return storageError(errorSubjectPlan, errorCodeDelete, err)
		}
	}
	return q.execAffectingOne(ctx, errorSubjectPlan, errorCodeDelete, shop.ErrPlanNotFound,
		sqlDeletePlan, planID.Int64())
}

func (q queries) ListPlans(ctx context.Context, productID shop.ProductID, activeOnly bool) ([]shop.Plan, error) {
	statement := `select ` + planColumns + ` from plans where product_id = $1 order by validity_days, id`
	if activeOnly {
		statement = `select ` + planColumns + ` from plans where product_id = $1 and active order by validity_days, id`
	}
	return q.collectPlans(ctx, statement, productID, errorCodeList)
}

func (q queries) collectPlans(ctx context.Context, statement string, productID shop.ProductID, code string) ([]shop.Plan, error) {
	rows, err := q.db.Query(ctx, statement, productID.Int64())
	if err != nil {
		return nil, storageError(errorSubjectPlan, code, err)
	}
	plans, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Plan, error) {
		return scanPlan(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectPlan, errorCodeInvalid, err)
	}
	return plans, nil
}

func (q queries) AdjustPlanStock(ctx context.Context, planID shop.PlanID, delta int) error {
	return q.execAffectingOne(ctx, errorSubjectPlan, errorCodeUpdate, shop.ErrPlanNotFound,
		sqlAdjustPlanStock, planID.Int64(), delta)
}

func (q queries) CountOrdersForPlan(ctx context.Context, planID shop.PlanID) (int64, error) {
	return q.count(ctx, errorSubjectOrder, sqlCountPlanOrders, planID.Int64())
}

func (q queries) CountOrdersForProduct(ctx context.Context, productID shop.ProductID) (int64, error) {
	return q.count(ctx, errorSubjectOrder, sqlCountProductOrders, productID.Int64())
}

// InsertKeys sends all rows in one batch.
func (q queries) InsertKeys(ctx context.Context, keys []shop.NewKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(sqlInsertKey, key.ProductID.Int64(), key.PlanID.Int64(), key.Value, key.CreatedAt.UTC())
	}
	results := q.db.SendBatch(ctx, batch)
	for range keys {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return 0, storageError(errorSubjectKey, errorCodeInsert, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, storageError(errorSubjectKey, errorCodeInsert, err)
	}
	return len(keys), nil
}

func (q queries) ClaimKeys(ctx context.Context, claim shop.KeyClaim) ([]shop.Key, error) {
	if claim.Count <= 0 {
		return nil, wrapStoreError(errorSubjectKey, errorCodeClaim, shop.ErrInvalidQuantity)
	}
	var owner *int64
	if !claim.AccountID.IsZero() {
		value := claim.AccountID.Int64()
		owner = &value
	}
	rows, err := q.db.Query(ctx, sqlClaimKeys, claim.PlanID.Int64(), claim.Count, owner, claim.ClaimedAt.UTC(), claim.ExpiresAt.UTC())
	if err != nil {
		return nil, storageError(errorSubjectKey, errorCodeClaim, err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Key, error) {
		return scanKey(row)
	})
	if err != nil {
		return nil, storageError(errorSubjectKey, errorCodeClaim, err)
	}
	if len(keys) < claim.Count {
		return nil, wrapStoreError(errorSubjectKey, errorCodeClaim, shop.ErrOutOfStock)
	}
	slices.SortFunc(keys, func(left, right shop.Key) int {
		return cmp.Compare(left.ID.Int64(), right.ID.Int64())
	})
	return keys, nil
}

func (q queries) AssignKeysToOrder(ctx context.Context, keyIDs []shop.KeyID, orderID shop.OrderID) error {
	if len(keyIDs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(keyIDs))
	for _, keyID := range keyIDs {
		ids = append(ids, keyID.Int64())
	}
	tag, err := q.db.Exec(ctx, sqlAssignKeys, ids, orderID.Int64())
	if err != nil {
		return storageError(errorSubjectKey, errorCodeAssign, err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return wrapStoreError(errorSubjectKey, errorCodeAssign, shop.ErrKeyNotFound)
	}
	return nil
}

func (q queries) GetKey(ctx context.Context, keyID shop.KeyID) (shop.Key, error) {
	key, err := scanKey(q.db.QueryRow(ctx, sqlSelectKey, keyID.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.Key{}, wrapStoreError(errorSubjectKey, errorCodeGet, shop.ErrKeyNotFound)
	}
	if err != nil {
		return shop.Key{}, storageError(errorSubjectKey, errorCodeGet, err)
	}
	return key, nil
}

func (q queries) DeleteUnusedKey(ctx context.Context, keyID shop.KeyID) (bool, error) {
	tag, err := q.db.Exec(ctx, sqlDeleteUnusedKey, keyID.Int64())
	if err != nil {
		return false, storageError(errorSubjectKey, errorCodeDelete, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) ListKeys(ctx context.Context, filter shop.KeyFilter) ([]shop.Key, error) {
	clauses := []string{"true"}
	arguments := []any{}
	if filter.PlanID != nil {
		arguments = append(arguments, filter.PlanID.Int64())
		clauses = append(clauses, fmt.Sprintf("plan_id = $%d", len(arguments)))
	}
	if filter.Used != nil {
		arguments = append(arguments, *filter.Used)
		clauses = append(clauses, fmt.Sprintf("used = $%d", len(arguments)))
	}
	arguments = append(arguments, queryLimit(filter.Limit))
	statement := fmt.Sprintf("select %s from access_keys where %s order by id limit $%d",
		keyColumns, strings.Join(clauses, " and "), len(arguments))
	return q.queryKeys(ctx, statement, arguments...)
}

func (q queries) ListKeysByOwner(ctx context.Context, accountID shop.AccountID, limit int) ([]shop.Key, error) {
	return q.queryKeys(ctx, sqlKeysByOwner, accountID.Int64(), queryLimit(limit))
}

func (q queries) queryKeys(ctx context.Context, statement string, arguments ...any) ([]shop.Key, error) {
	rows, err := q.db.Query(ctx, statement, arguments...)
	if err != nil {
		return nil, storageError(errorSubjectKey, errorCodeList, err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Key, error) {
		return scanKey(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectKey, errorCodeInvalid, err)
	}
	return keys, nil
}

func (q queries) InsertOrder(ctx context.Context, input shop.OrderInput) (shop.Order, error) {
	order, err := scanOrder(q.db.QueryRow(ctx, sqlInsertOrder,
		input.AccountID.Int64(),
		input.ProductID.Int64(),
		input.PlanID.Int64(),
		input.Quantity,
		input.UnitPrice.Int64(),
		input.TotalPrice.Int64(),
		string(input.Status),
		input.CreatedAt.UTC(),
	))
	if err != nil {
		return shop.Order{}, storageError(errorSubjectOrder, errorCodeInsert, err)
	}
	return order, nil
}

func (q queries) ListOrders(ctx context.Context, filter shop.OrderFilter) ([]shop.Order, error) {
	clauses := []string{"true"}
	arguments := []any{}
	if filter.AccountID != nil {
		arguments = append(arguments, filter.AccountID.Int64())
		clauses = append(clauses, fmt.Sprintf("account_id = $%d", len(arguments)))
	}
	if filter.PlanID != nil {
		arguments = append(arguments, filter.PlanID.Int64())
		clauses = append(clauses, fmt.Sprintf("plan_id = $%d", len(arguments)))
	}
	arguments = append(arguments, queryLimit(filter.Limit))
	statement := fmt.Sprintf("select %s from orders where %s order by id desc limit $%d",
		orderColumns, strings.Join(clauses, " and "), len(arguments))
	rows, err := q.db.Query(ctx, statement, arguments...)
	if err != nil {
		return nil, storageError(errorSubjectOrder, errorCodeList, err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeInvalid, err)
	}
	return orders, nil
}

func (q queries) FindResellerPrice(ctx context.Context, accountID shop.AccountID, planID shop.PlanID) (shop.ResellerPrice, bool, error) {
	price, err := scanResellerPrice(q.db.QueryRow(ctx, sqlSelectPrice, accountID.Int64(), planID.Int64()))
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ResellerPrice{}, false, nil
	}
	if err != nil {
		return shop.ResellerPrice{}, false, storageError(errorSubjectPrice, errorCodeGet, err)
	}
	return price, true, nil
}

func (q queries) UpsertResellerPrice(ctx context.Context, price shop.ResellerPrice) error {
	_, err := q.db.Exec(ctx, sqlUpsertPrice, price.AccountID.Int64(), price.PlanID.Int64(), price.CustomPrice.Int64(), price.UpdatedAt.UTC())
	if err != nil {
		return storageError(errorSubjectPrice, errorCodeUpdate, err)
	}
	return nil
}

func (q queries) DeleteResellerPrice(ctx context.Context, accountID shop.AccountID, planID shop.PlanID) (bool, error) {
	tag, err := q.db.Exec(ctx, sqlDeletePrice, accountID.Int64(), planID.Int64())
	if err != nil {
		return false, storageError(errorSubjectPrice, errorCodeDelete, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q queries) ListResellerPrices(ctx context.Context, accountID shop.AccountID) ([]shop.ResellerPrice, error) {
	rows, err := q.db.Query(ctx, sqlListPrices, accountID.Int64())
	if err != nil {
		return nil, storageError(errorSubjectPrice, errorCodeList, err)
	}
	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shop.ResellerPrice, error) {
		return scanResellerPrice(row)
	})
	if err != nil {
		return nil, wrapStoreError(errorSubjectPrice, errorCodeInvalid, err)
	}
	return prices, nil
}

func (q queries) Statistics(ctx context.Context) (shop.Statistics, error) {
	var (
		statistics shop.Statistics
		revenue    int64
	)
	err := q.db.QueryRow(ctx, sqlStatistics).Scan(
		&statistics.TotalOrders,
		&revenue,
		&statistics.Accounts,
		&statistics.BannedAccounts,
		&statistics.ActiveProducts,
		&statistics.TotalKeys,
		&statistics.UsedKeys,
	)
	if err != nil {
		return shop.Statistics{}, storageError(errorSubjectStatistics, errorCodeSum, err)
	}
	statistics.Revenue = shop.AmountCents(revenue)
	statistics.AvailableKeys = statistics.TotalKeys - statistics.UsedKeys
	return statistics, nil
}

func (q queries) ProductStatistics(ctx context.Context, productID shop.ProductID) (shop.SalesStatistics, error) {
	return q.salesStatistics(ctx, sqlProductSales, productID.Int64())
}

func (q queries) PlanStatistics(ctx context.Context, planID shop.PlanID) (shop.SalesStatistics, error) {
	return q.salesStatistics(ctx, sqlPlanSales, planID.Int64())
}

func (q queries) salesStatistics(ctx context.Context, statement string, id int64) (shop.SalesStatistics, error) {
	var (
		statistics shop.SalesStatistics
		revenue    int64
	)
	err := q.db.QueryRow(ctx, statement, id).Scan(&statistics.TotalKeys, &statistics.Sold, &statistics.Orders, &revenue)
	if err != nil {
		return shop.SalesStatistics{}, storageError(errorSubjectStatistics, errorCodeSum, err)
	}
	statistics.Available = statistics.TotalKeys - statistics.Sold
	statistics.Revenue = shop.AmountCents(revenue)
	return statistics, nil
}

func (q queries) execAffectingOne(ctx context.Context, subject string, code string, missing error, statement string, arguments ...any) error {
	tag, err := q.db.Exec(ctx, statement, arguments...)
	if err != nil {
		return storageError(subject, code, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(subject, code, missing)
	}
	return nil
}

func (q queries) count(ctx context.Context, subject string, statement string, arguments ...any) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, statement, arguments...).Scan(&count); err != nil {
		return 0, storageError(subject, errorCodeCount, err)
	}
	return count, nil
}

func queryLimit(limit int) int {
	if limit <= 0 {
		return maxQueryLimit
	}
	return limit
}
