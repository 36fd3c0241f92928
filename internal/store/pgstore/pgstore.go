package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintReversesEntry = "uniq_ledger_reverses_entry"
	pgUniqueViolationCode   = "23505"
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
	errorSubjectTransaction = "transaction"
	errorCodeAssign         = "assign"
	errorCodeBegin          = "begin"
	errorCodeClaim          = "claim"
	errorCodeCommit         = "commit"
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

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
}

// Store implements shop.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements shop.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

var (
	_ shop.Store = (*Store)(nil)
	_ shop.Store = (*TxStore)(nil)
)

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore shop.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storageError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// WithTx on a transaction store joins the running transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore shop.Store) error) error {
	return fn(ctx, store)
}

func wrapStoreError(subject string, code string, err error) error {
	return shop.WrapError(errorOperationStore, subject, code, err)
}

func storageError(subject string, code string, err error) error {
	return wrapStoreError(subject, code, shop.StorageFailure(err))
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
