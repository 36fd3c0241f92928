package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintReversesEntry = "uniq_ledger_reverses_entry"
	defaultMetadataJSON     = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintUnique  = 2067
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectBalance     = "balance"
	errorSubjectEntry       = "entry"
	errorSubjectProduct     = "product"
	errorSubjectPlan        = "plan"
	errorSubjectKey         = "key"
	errorSubjectOrder       = "order"
	errorSubjectPrice       = "reseller_price"
	errorSubjectStatistics  = "statistics"
	errorCodeAssign         = "assign"
	errorCodeClaim          = "claim"
	errorCodeCount          = "count"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeSum            = "sum"
	errorCodeUpdate         = "update"
)

// Store implements shop.Store using GORM.
type Store struct {
	db *gorm.DB
}

var _ shop.Store = (*Store)(nil)

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore shop.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) session(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx)
}

func (store *Store) GetOrCreateAccount(ctx context.Context, account shop.NewAccount) (shop.Account, error) {
	row := Account{
		ID:          account.ID.Int64(),
		DisplayName: account.DisplayName,
		Role:        account.Role.String(),
		CreatedAt:   account.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.session(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return shop.Account{}, storageError(errorSubjectAccount, errorCodeCreate, err)
	}
	return store.GetAccount(ctx, account.ID)
}

func (store *Store) GetAccount(ctx context.Context, accountID shop.AccountID) (shop.Account, error) {
	return store.takeAccount(store.session(ctx), accountID, errorCodeGet)
}

func (store *Store) LockAccount(ctx context.Context, accountID shop.AccountID) (shop.Account, error) {
	return store.takeAccount(store.session(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountID, errorCodeLock)
}

func (store *Store) takeAccount(db *gorm.DB, accountID shop.AccountID, code string) (shop.Account, error) {
	var row Account
	err := db.Where("id = ?", accountID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.Account{}, wrapStoreError(errorSubjectAccount, code, shop.ErrAccountNotFound)
		}
		return shop.Account{}, storageError(errorSubjectAccount, code, err)
	}
	account, err := mapAccount(row)
	if err != nil {
		return shop.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) AddToBalance(ctx context.Context, accountID shop.AccountID, delta shop.AmountCents) (shop.AmountCents, error) {
	result := store.session(ctx).
		Model(&Account{}).
		Where("id = ?", accountID.Int64()).
		Update("balance_cents", gorm.Expr("balance_cents + ?", delta.Int64()))
	if result.Error != nil {
		return 0, storageError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeUpdate, shop.ErrAccountNotFound)
	}
	var row Account
	if err := store.session(ctx).Select("balance_cents").Where("id = ?", accountID.Int64()).Take(&row).Error; err != nil {
		return 0, storageError(errorSubjectBalance, errorCodeGet, err)
	}
	return shop.AmountCents(row.BalanceCents), nil
}

func (store *Store) SetAccountBan(ctx context.Context, accountID shop.AccountID, ban shop.AccountBan) error {
	var bannedAt *time.Time
	if ban.At != nil {
		value := ban.At.UTC()
		bannedAt = &value
	}
	return store.updateAccount(ctx, accountID, map[string]any{
		"banned":     ban.Banned,
		"ban_reason": ban.Reason,
		"banned_at":  bannedAt,
	})
}

func (store *Store) SetAccountRole(ctx context.Context, accountID shop.AccountID, role shop.Role) error {
	return store.updateAccount(ctx, accountID, map[string]any{"role": role.String()})
}

func (store *Store) updateAccount(ctx context.Context, accountID shop.AccountID, updates map[string]any) error {
	result := store.session(ctx).Model(&Account{}).Where("id = ?", accountID.Int64()).Updates(updates)
	if result.Error != nil {
		return storageError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, shop.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) DeleteAccount(ctx context.Context, accountID shop.AccountID) error {
	result := store.session(ctx).Where("id = ?", accountID.Int64()).Delete(&Account{})
	if result.Error != nil {
		return storageError(errorSubjectAccount, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeDelete, shop.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) ListAccounts(ctx context.Context, filter shop.AccountFilter) ([]shop.Account, error) {
	query := store.session(ctx).Model(&Account{})
	if filter.BannedOnly {
		query = query.Where("banned = ?", true)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		if numericID, err := strconv.ParseInt(filter.Search, 10, 64); err == nil {
			query = query.Where("id = ? OR LOWER(display_name) LIKE ?", numericID, pattern)
		} else {
			query = query.Where("LOWER(display_name) LIKE ?", pattern)
		}
	}
	var rows []Account
	if err := limited(query.Order("id"), filter.Limit).Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]shop.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *Store) InsertLedgerEntry(ctx context.Context, input shop.LedgerEntryInput) (shop.LedgerEntry, error) {
	row := LedgerEntry{
		AccountID:       input.AccountID.Int64(),
		AmountCents:     input.Amount.Int64(),
		Kind:            string(input.Kind),
		AdminID:         accountRef(input.AdminID),
		Reason:          input.Reason,
		OrderID:         orderRef(input.OrderID),
		ReversesEntryID: entryRef(input.ReversesEntryID),
		Metadata:        datatypesJSON(input.Metadata.String()),
		CreatedAt:       input.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.session(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintReversesEntry) {
		return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, fmt.Errorf("%w: entry already reversed", shop.ErrInvalidState))
	}
	if err != nil {
		return shop.LedgerEntry{}, storageError(errorSubjectEntry, errorCodeInsert, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) GetLedgerEntry(ctx context.Context, entryID shop.EntryID) (shop.LedgerEntry, error) {
	var row LedgerEntry
	err := store.session(ctx).Where("id = ?", entryID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, shop.ErrEntryNotFound)
		}
		return shop.LedgerEntry{}, storageError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return shop.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) HasReversal(ctx context.Context, entryID shop.EntryID) (bool, error) {
	var count int64
	err := store.session(ctx).Model(&LedgerEntry{}).Where("reverses_entry_id = ?", entryID.Int64()).Count(&count).Error
	if err != nil {
		return false, storageError(errorSubjectEntry, errorCodeCount, err)
	}
	return count > 0, nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, filter shop.EntryFilter) ([]shop.LedgerEntry, error) {
	query := store.session(ctx).Model(&LedgerEntry{})
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", filter.AccountID.Int64())
	}
	var rows []LedgerEntry
	if err := limited(query.Order("id DESC"), filter.Limit).Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]shop.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) SumLedgerEntries(ctx context.Context, accountID shop.AccountID) (shop.AmountCents, error) {
	var sum sqlSum
	err := store.session(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("account_id = ?", accountID.Int64()).
		Scan(&sum).Error
	if err != nil {
		return 0, storageError(errorSubjectBalance, errorCodeSum, err)
	}
	return shop.AmountCents(sum.Total), nil
}

func (store *Store) CreateProduct(ctx context.Context, product shop.NewProduct) (shop.Product, error) {
	row := Product{
		Name:        product.Name,
		Description: product.Description,
		Active:      product.Active,
		CreatedAt:   product.CreatedAt.UTC(),
	}
	if err := store.session(ctx).Create(&row).Error; err != nil {
		return shop.Product{}, storageError(errorSubjectProduct, errorCodeCreate, err)
	}
	created, err := mapProduct(row)
	if err != nil {
		return shop.Product{}, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetProduct(ctx context.Context, productID shop.ProductID) (shop.Product, error) {
	var row Product
	err := store.session(ctx).Where("id = ?", productID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.Product{}, wrapStoreError(errorSubjectProduct, errorCodeGet, shop.ErrProductNotFound)
		}
		return shop.Product{}, storageError(errorSubjectProduct, errorCodeGet, err)
	}
	product, err := mapProduct(row)
	if err != nil {
		return shop.Product{}, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
	}
	return product, nil
}

func (store *Store) UpdateProduct(ctx context.Context, productID shop.ProductID, input shop.ProductInput) (shop.Product, error) {
	result := store.session(ctx).Model(&Product{}).Where("id = ?", productID.Int64()).Updates(map[string]any{
		"name":        input.Name,
		"description": input.Description,
	})
	if result.Error != nil {
		return shop.Product{}, storageError(errorSubjectProduct, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return shop.Product{}, wrapStoreError(errorSubjectProduct, errorCodeUpdate, shop.ErrProductNotFound)
	}
	return store.GetProduct(ctx, productID)
}

func (store *Store) SetProductActive(ctx context.Context, productID shop.ProductID, active bool) error {
	result := store.session(ctx).Model(&Product{}).Where("id = ?", productID.Int64()).Update("active", active)
	if result.Error != nil {
		return storageError(errorSubjectProduct, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetProduct(ctx, productID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteProduct removes the product and everything hanging off its plans. Call it inside
// WithTx to make the cascade atomic.
func (store *Store) DeleteProduct(ctx context.Context, productID shop.ProductID) error {
	planIDs := store.session(ctx).Model(&Plan{}).Select("id").Where("product_id = ?", productID.Int64())
	if err := store.session(ctx).Where("plan_id IN (?)", planIDs).Delete(&ResellerPrice{}).Error; err != nil {
		return storageError(errorSubjectProduct, errorCodeDelete, err)
	}
	if err := store.session(ctx).Where("product_id = ?", productID.Int64()).Delete(&AccessKey{}).Error; err != nil {
		return storageError(errorSubjectProduct, errorCodeDelete, err)
	}
	if err := store.session(ctx).Where("product_id = ?", productID.Int64()).Delete(&Plan{}).Error; err != nil {
		return storageError(errorSubjectProduct, errorCodeDelete, err)
	}
	result := store.session(ctx).Where("id = ?", productID.Int64()).Delete(&Product{})
	if result.Error != nil {
		return storageError(errorSubjectProduct, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProduct, errorCodeDelete, shop.ErrProductNotFound)
	}
	return nil
}

func (store *Store) ListProducts(ctx context.Context, activeOnly bool) ([]shop.Product, error) {
	query := store.session(ctx).Model(&Product{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []Product
	if err := query.Order("name").Order("id").Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectProduct, errorCodeList, err)
	}
	products := make([]shop.Product, 0, len(rows))
	for _, row := range rows {
		product, err := mapProduct(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectProduct, errorCodeInvalid, err)
		}
		products = append(products, product)
	}
	return products, nil
}

func (store *Store) CreatePlan(ctx context.Context, plan shop.NewPlan) (shop.Plan, error) {
	row := Plan{
		ProductID:      plan.ProductID.Int64(),
		ValidityDays:   plan.ValidityDays,
		BasePriceCents: plan.BasePrice.Int64(),
		Active:         plan.Active,
		CreatedAt:      plan.CreatedAt.UTC(),
	}
	if err := store.session(ctx).Create(&row).Error; err != nil {
		return shop.Plan{}, storageError(errorSubjectPlan, errorCodeCreate, err)
	}
	created, err := mapPlan(row)
	if err != nil {
		return shop.Plan{}, wrapStoreError(errorSubjectPlan, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) GetPlan(ctx context.Context, planID shop.PlanID) (shop.Plan, error) {
	return store.takePlan(store.session(ctx), planID, errorCodeGet)
}

func (store *Store) LockPlan(ctx context.Context, planID shop.PlanID) (shop.Plan, error) {
	return store.takePlan(store.session(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), planID, errorCodeLock)
}

func (store *Store) takePlan(db *gorm.DB, planID shop.PlanID, code string) (shop.Plan, error) {
	var row Plan
	err := db.Where("id = ?", planID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.Plan{}, wrapStoreError(errorSubjectPlan, code, shop.ErrPlanNotFound)
		}
		return shop.Plan{}, storageError(errorSubjectPlan, code, err)
	}
	plan, err := mapPlan(row)
	if err != nil {
		return shop.Plan{}, wrapStoreError(errorSubjectPlan, errorCodeInvalid, err)
	}
	return plan, nil
}

func (store *Store) LockProductPlans(ctx context.Context, productID shop.ProductID) ([]shop.Plan, error) {
	var rows []Plan
	err := store.session(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ?", productID.Int64()).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(errorSubjectPlan, errorCodeLock, err)
	}
	return mapPlans(rows)
}

func (store *Store) UpdatePlan(ctx context.Context, planID shop.PlanID, update shop.PlanUpdate) (shop.Plan, error) {
	result := store.session(ctx).Model(&Plan{}).Where("id = ?", planID.Int64()).Updates(map[string]any{
		"validity_days":    update.ValidityDays,
		"base_price_cents": update.BasePrice.Int64(),
	})
	if result.Error != nil {
		return shop.Plan{}, storageError(errorSubjectPlan, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return shop.Plan{}, wrapStoreError(errorSubjectPlan, errorCodeUpdate, shop.ErrPlanNotFound)
	}
	return store.GetPlan(ctx, planID)
}

func (store *Store) SetPlanActive(ctx context.Context, planID shop.PlanID, active bool) error {
	result := store.session(ctx).Model(&Plan{}).Where("id = ?", planID.Int64()).Update("active", active)
	if result.Error != nil {
		return storageError(errorSubjectPlan, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetPlan(ctx, planID); err != nil {
			return err
		}
	}
	return nil
}

func (store *Store) DeletePlan(ctx context.Context, planID shop.PlanID) error {
	if err := store.session(ctx).Where("plan_id = ?", planID.Int64()).Delete(&ResellerPrice{}).Error; err != nil {
		return storageError(errorSubjectPlan, errorCodeDelete, err)
	}
	if err := store.session(ctx).Where("plan_id = ?", planID.Int64()).Delete(&AccessKey{}).Error; err != nil {
		return storageError(errorSubjectPlan, errorCodeDelete, err)
	}
	result := store.session(ctx).Where("id = ?", planID.Int64()).Delete(&Plan{})
	if result.Error != nil {
		return storageError(errorSubjectPlan, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPlan, errorCodeDelete, shop.ErrPlanNotFound)
	}
	return nil
}

func (store *Store) ListPlans(ctx context.Context, productID shop.ProductID, activeOnly bool) ([]shop.Plan, error) {
	query := store.session(ctx).Model(&Plan{}).Where("product_id = ?", productID.Int64())
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []Plan
	if err := query.Order("validity_days").Order("id").Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectPlan, errorCodeList, err)
	}
	return mapPlans(rows)
}

func mapPlans(rows []Plan) ([]shop.Plan, error) {
	plans := make([]shop.Plan, 0, len(rows))
	for _, row := range rows {
		plan, err := mapPlan(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPlan, errorCodeInvalid, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (store *Store) AdjustPlanStock(ctx context.Context, planID shop.PlanID, delta int) error {
	result := store.session(ctx).
		Model(&Plan{}).
		Where("id = ?", planID.Int64()).
		Update("stock", gorm.Expr("stock + ?", delta))
	if result.Error != nil {
		return storageError(errorSubjectPlan, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPlan, errorCodeUpdate, shop.ErrPlanNotFound)
	}
	return nil
}

func (store *Store) CountOrdersForPlan(ctx context.Context, planID shop.PlanID) (int64, error) {
	var count int64
	if err := store.session(ctx).Model(&Order{}).Where("plan_id = ?", planID.Int64()).Count(&count).Error; err != nil {
		return 0, storageError(errorSubjectOrder, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) CountOrdersForProduct(ctx context.Context, productID shop.ProductID) (int64, error) {
	planIDs := store.session(ctx).Model(&Plan{}).Select("id").Where("product_id = ?", productID.Int64())
	var count int64
	err := store.session(ctx).
		Model(&Order{}).
		Where("product_id = ? OR plan_id IN (?)", productID.Int64(), planIDs).
		Count(&count).Error
	if err != nil {
		return 0, storageError(errorSubjectOrder, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) InsertKeys(ctx context.Context, keys []shop.NewKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	rows := make([]AccessKey, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, AccessKey{
			ProductID: key.ProductID.Int64(),
			PlanID:    key.PlanID.Int64(),
			Value:     key.Value,
			CreatedAt: key.CreatedAt.UTC(),
		})
	}
	if err := store.session(ctx).Create(&rows).Error; err != nil {
		return 0, storageError(errorSubjectKey, errorCodeInsert, err)
	}
	return len(rows), nil
}

// ClaimKeys selects candidates with FOR UPDATE SKIP LOCKED and flips them with a conditional
// update, so a row taken by a concurrent unit is never counted twice. SQLite ignores the
// locking clause and relies on the single-connection pool to serialize units.
func (store *Store) ClaimKeys(ctx context.Context, claim shop.KeyClaim) ([]shop.Key, error) {
	if claim.Count <= 0 {
		return nil, wrapStoreError(errorSubjectKey, errorCodeClaim, shop.ErrInvalidQuantity)
	}
	var candidates []AccessKey
	err := store.session(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("plan_id = ? AND used = ?", claim.PlanID.Int64(), false).
		Order("id").
		Limit(claim.Count).
		Find(&candidates).Error
	if err != nil {
		return nil, storageError(errorSubjectKey, errorCodeClaim, err)
	}
	if len(candidates) < claim.Count {
		return nil, wrapStoreError(errorSubjectKey, errorCodeClaim, shop.ErrOutOfStock)
	}
	ids := make([]int64, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.ID)
	}
	usedAt := claim.ClaimedAt.UTC()
	expiresAt := claim.ExpiresAt.UTC()
	usedBy := accountRef(optionalAccount(claim.AccountID))
	result := store.session(ctx).
		Model(&AccessKey{}).
		Where("id IN ? AND used = ?", ids, false).
		Updates(map[string]any{
			"used":       true,
			"used_by":    usedBy,
			"used_at":    usedAt,
			"expires_at": expiresAt,
		})
	if result.Error != nil {
		return nil, storageError(errorSubjectKey, errorCodeClaim, result.Error)
	}
	if result.RowsAffected != int64(claim.Count) {
		return nil, wrapStoreError(errorSubjectKey, errorCodeClaim, shop.ErrOutOfStock)
	}
	claimed := make([]shop.Key, 0, len(candidates))
	for _, candidate := range candidates {
		candidate.Used = true
		candidate.UsedBy = usedBy
		candidate.UsedAt = &usedAt
		candidate.ExpiresAt = &expiresAt
		key, err := mapKey(candidate)
		if err != nil {
			return nil, wrapStoreError(errorSubjectKey, errorCodeInvalid, err)
		}
		claimed = append(claimed, key)
	}
	return claimed, nil
}

func (store *Store) AssignKeysToOrder(ctx context.Context, keyIDs []shop.KeyID, orderID shop.OrderID) error {
	if len(keyIDs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(keyIDs))
	for _, keyID := range keyIDs {
		ids = append(ids, keyID.Int64())
	}
	result := store.session(ctx).Model(&AccessKey{}).Where("id IN ?", ids).Update("order_id", orderID.Int64())
	if result.Error != nil {
		return storageError(errorSubjectKey, errorCodeAssign, result.Error)
	}
	if result.RowsAffected != int64(len(ids)) {
		return wrapStoreError(errorSubjectKey, errorCodeAssign, shop.ErrKeyNotFound)
	}
	return nil
}

func (store *Store) GetKey(ctx context.Context, keyID shop.KeyID) (shop.Key, error) {
	var row AccessKey
	err := store.session(ctx).Where("id = ?", keyID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.Key{}, wrapStoreError(errorSubjectKey, errorCodeGet, shop.ErrKeyNotFound)
		}
		return shop.Key{}, storageError(errorSubjectKey, errorCodeGet, err)
	}
	key, err := mapKey(row)
	if err != nil {
		return shop.Key{}, wrapStoreError(errorSubjectKey, errorCodeInvalid, err)
	}
	return key, nil
}

func (store *Store) DeleteUnusedKey(ctx context.Context, keyID shop.KeyID) (bool, error) {
	result := store.session(ctx).Where("id = ? AND used = ?", keyID.Int64(), false).Delete(&AccessKey{})
	if result.Error != nil {
		return false, storageError(errorSubjectKey, errorCodeDelete, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) ListKeys(ctx context.Context, filter shop.KeyFilter) ([]shop.Key, error) {
	query := store.session(ctx).Model(&AccessKey{})
	if filter.PlanID != nil {
		query = query.Where("plan_id = ?", filter.PlanID.Int64())
	}
	if filter.Used != nil {
		query = query.Where("used = ?", *filter.Used)
	}
	return store.findKeys(limited(query.Order("id"), filter.Limit))
}

func (store *Store) ListKeysByOwner(ctx context.Context, accountID shop.AccountID, limit int) ([]shop.Key, error) {
	query := store.session(ctx).Model(&AccessKey{}).Where("used_by = ?", accountID.Int64()).Order("id DESC")
	return store.findKeys(limited(query, limit))
}

func (store *Store) findKeys(query *gorm.DB) ([]shop.Key, error) {
	var rows []AccessKey
	if err := query.Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectKey, errorCodeList, err)
	}
	keys := make([]shop.Key, 0, len(rows))
	for _, row := range rows {
		key, err := mapKey(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectKey, errorCodeInvalid, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (store *Store) InsertOrder(ctx context.Context, input shop.OrderInput) (shop.Order, error) {
	row := Order{
		AccountID:       input.AccountID.Int64(),
		ProductID:       input.ProductID.Int64(),
		PlanID:          input.PlanID.Int64(),
		Quantity:        input.Quantity,
		UnitPriceCents:  input.UnitPrice.Int64(),
		TotalPriceCents: input.TotalPrice.Int64(),
		Status:          string(input.Status),
		CreatedAt:       input.CreatedAt.UTC(),
	}
	if err := store.session(ctx).Create(&row).Error; err != nil {
		return shop.Order{}, storageError(errorSubjectOrder, errorCodeInsert, err)
	}
	order, err := mapOrder(row)
	if err != nil {
		return shop.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInvalid, err)
	}
	return order, nil
}

func (store *Store) ListOrders(ctx context.Context, filter shop.OrderFilter) ([]shop.Order, error) {
	query := store.session(ctx).Model(&Order{})
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", filter.AccountID.Int64())
	}
	if filter.PlanID != nil {
		query = query.Where("plan_id = ?", filter.PlanID.Int64())
	}
	var rows []Order
	if err := limited(query.Order("id DESC"), filter.Limit).Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectOrder, errorCodeList, err)
	}
	orders := make([]shop.Order, 0, len(rows))
	for _, row := range rows {
		order, err := mapOrder(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectOrder, errorCodeInvalid, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (store *Store) FindResellerPrice(ctx context.Context, accountID shop.AccountID, planID shop.PlanID) (shop.ResellerPrice, bool, error) {
	var row ResellerPrice
	err := store.session(ctx).Where("account_id = ? AND plan_id = ?", accountID.Int64(), planID.Int64()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.ResellerPrice{}, false, nil
		}
		return shop.ResellerPrice{}, false, storageError(errorSubjectPrice, errorCodeGet, err)
	}
	price, err := mapResellerPrice(row)
	if err != nil {
		return shop.ResellerPrice{}, false, wrapStoreError(errorSubjectPrice, errorCodeInvalid, err)
	}
	return price, true, nil
}

func (store *Store) UpsertResellerPrice(ctx context.Context, price shop.ResellerPrice) error {
	row := ResellerPrice{
		AccountID:        price.AccountID.Int64(),
		PlanID:           price.PlanID.Int64(),
		CustomPriceCents: price.CustomPrice.Int64(),
		UpdatedAt:        price.UpdatedAt.UTC(),
	}
	err := store.session(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "plan_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"custom_price_cents", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return storageError(errorSubjectPrice, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) DeleteResellerPrice(ctx context.Context, accountID shop.AccountID, planID shop.PlanID) (bool, error) {
	result := store.session(ctx).Where("account_id = ? AND plan_id = ?", accountID.Int64(), planID.Int64()).Delete(&ResellerPrice{})
	if result.Error != nil {
		return false, storageError(errorSubjectPrice, errorCodeDelete, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListResellerPrices(ctx context.Context, accountID shop.AccountID) ([]shop.ResellerPrice, error) {
	var rows []ResellerPrice
	if err := store.session(ctx).Where("account_id = ?", accountID.Int64()).Order("plan_id").Find(&rows).Error; err != nil {
		return nil, storageError(errorSubjectPrice, errorCodeList, err)
	}
	prices := make([]shop.ResellerPrice, 0, len(rows))
	for _, row := range rows {
		price, err := mapResellerPrice(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPrice, errorCodeInvalid, err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}

func (store *Store) Statistics(ctx context.Context) (shop.Statistics, error) {
	var statistics shop.Statistics
	var orders orderTotals
	if err := store.session(ctx).Model(&Order{}).Select("count(*) as orders, coalesce(sum(total_price_cents),0) as revenue").Scan(&orders).Error; err != nil {
		return shop.Statistics{}, storageError(errorSubjectStatistics, errorCodeSum, err)
	}
	statistics.TotalOrders = orders.Orders
	statistics.Revenue = shop.AmountCents(orders.Revenue)
	counts := []struct {
		model  any
		where  string
		args   []any
		target *int64
	}{
		{model: &Account{}, target: &statistics.Accounts},
		{model: &Account{}, where: "banned = ?", args: []any{true}, target: &statistics.BannedAccounts},
		{model: &Product{}, where: "active = ?", args: []any{true}, target: &statistics.ActiveProducts},
		{model: &AccessKey{}, target: &statistics.TotalKeys},
		{model: &AccessKey{}, where: "used = ?", args: []any{true}, target: &statistics.UsedKeys},
	}
	for _, count := range counts {
		query := store.session(ctx).Model(count.model)
		if count.where != "" {
			query = query.Where(count.where, count.args...)
		}
		if err := query.Count(count.target).Error; err != nil {
			return shop.Statistics{}, storageError(errorSubjectStatistics, errorCodeCount, err)
		}
	}
	statistics.AvailableKeys = statistics.TotalKeys - statistics.UsedKeys
	return statistics, nil
}

func (store *Store) ProductStatistics(ctx context.Context, productID shop.ProductID) (shop.SalesStatistics, error) {
	return store.salesStatistics(ctx, "product_id", productID.Int64())
}

func (store *Store) PlanStatistics(ctx context.Context, planID shop.PlanID) (shop.SalesStatistics, error) {
	return store.salesStatistics(ctx, "plan_id", planID.Int64())
}

func (store *Store) salesStatistics(ctx context.Context, column string, id int64) (shop.SalesStatistics, error) {
	var keys keyTotals
	err := store.session(ctx).
		Model(&AccessKey{}).
		Select("count(*) as total, coalesce(sum(case when used then 1 else 0 end),0) as used").
		Where(column+" = ?", id).
		Scan(&keys).Error
	if err != nil {
		return shop.SalesStatistics{}, storageError(errorSubjectStatistics, errorCodeCount, err)
	}
	var orders orderTotals
	err = store.session(ctx).
		Model(&Order{}).
		Select("count(*) as orders, coalesce(sum(total_price_cents),0) as revenue").
		Where(column+" = ?", id).
		Scan(&orders).Error
	if err != nil {
		return shop.SalesStatistics{}, storageError(errorSubjectStatistics, errorCodeSum, err)
	}
	return shop.SalesStatistics{
		Sold:      keys.Used,
		Available: keys.Total - keys.Used,
		TotalKeys: keys.Total,
		Orders:    orders.Orders,
		Revenue:   shop.AmountCents(orders.Revenue),
	}, nil
}

func limited(query *gorm.DB, limit int) *gorm.DB {
	if limit <= 0 {
		return query
	}
	return query.Limit(limit)
}

func wrapStoreError(subject string, code string, err error) error {
	return shop.WrapError(errorOperationStore, subject, code, err)
}

func storageError(subject string, code string, err error) error {
	return wrapStoreError(subject, code, shop.StorageFailure(err))
}

type sqlSum struct {
	Total int64
}

type orderTotals struct {
	Orders  int64
	Revenue int64
}

type keyTotals struct {
	Total int64
	Used  int64
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

// sqliteUniqueColumns maps index names to the column list SQLite reports, since its
// constraint errors name columns rather than indexes.
var sqliteUniqueColumns = map[string]string{
	constraintReversesEntry: "ledger_entries.reverses_entry_id",
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() != sqliteConstraintUnique {
			return false
		}
		columns, known := sqliteUniqueColumns[constraint]
		return known && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed: "+columns)
	}
	return false
}
