package shop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// GetOrCreateAccount returns the account, creating it with the user role on first contact.
func (service *Service) GetOrCreateAccount(ctx context.Context, accountID AccountID, displayName string) (Account, error) {
	if accountID.IsZero() {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return service.store.GetOrCreateAccount(ctx, NewAccount{
		ID:          accountID,
		DisplayName: strings.TrimSpace(displayName),
		Role:        RoleUser,
		CreatedAt:   service.now(),
	})
}

// GetAccount returns an existing account or ErrAccountNotFound.
func (service *Service) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	return service.store.GetAccount(ctx, accountID)
}

// AdjustBalance applies a manual credit or debit. A debit that would leave the balance
// negative is rejected unless AllowNegative is set.
func (service *Service) AdjustBalance(ctx context.Context, adjustment BalanceAdjustment) (LedgerEntry, error) {
	var entry LedgerEntry
	operationError := func() error {
		if adjustment.Amount == 0 {
			return fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidAmount)
		}
		kind := EntryAdminAdd
		if adjustment.Amount < 0 {
			kind = EntryAdminDeduct
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			account, err := transactionStore.LockAccount(ctx, adjustment.AccountID)
			if err != nil {
				return err
			}
			if kind == EntryAdminDeduct && !adjustment.AllowNegative && account.Balance+adjustment.Amount < 0 {
				return ErrInsufficientBalance
			}
			applied, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
				AccountID: adjustment.AccountID,
				Amount:    adjustment.Amount,
				Kind:      kind,
				AdminID:   adminRef(adjustment.AdminID),
				Reason:    strings.TrimSpace(adjustment.Reason),
				CreatedAt: service.now(),
			})
			if err != nil {
				return err
			}
			entry = applied
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAdjustBalance,
		AccountID: adjustment.AccountID,
		ActorID:   adjustment.AdminID,
		Amount:    adjustment.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerEntry{}, operationError
	}
	return entry, nil
}

// Ban blocks purchases for the account and records a zero ban entry.
func (service *Service) Ban(ctx context.Context, accountID AccountID, reason string, adminID AccountID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockAccount(ctx, accountID); err != nil {
			return err
		}
		bannedAt := service.now()
		trimmedReason := strings.TrimSpace(reason)
		if err := transactionStore.SetAccountBan(ctx, accountID, AccountBan{Banned: true, Reason: trimmedReason, At: &bannedAt}); err != nil {
			return err
		}
		_, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
			AccountID: accountID,
			Kind:      EntryBan,
			AdminID:   adminRef(adminID),
			Reason:    trimmedReason,
			CreatedAt: bannedAt,
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationBan,
		AccountID: accountID,
		ActorID:   adminID,
		Error:     operationError,
	})
	return operationError
}

// Unban clears the ban flag and records a zero unban entry.
func (service *Service) Unban(ctx context.Context, accountID AccountID, adminID AccountID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockAccount(ctx, accountID); err != nil {
			return err
		}
		if err := transactionStore.SetAccountBan(ctx, accountID, AccountBan{}); err != nil {
			return err
		}
		_, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
			AccountID: accountID,
			Kind:      EntryUnban,
			AdminID:   adminRef(adminID),
			Reason:    "Unbanned by admin",
			CreatedAt: service.now(),
		})
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationUnban,
		AccountID: accountID,
		ActorID:   adminID,
		Error:     operationError,
	})
	return operationError
}

// DeleteAccount records a delete_user entry, forfeits any remaining balance and removes the
// account row. Ledger entries, orders and keys keep referencing the removed id.
func (service *Service) DeleteAccount(ctx context.Context, accountID AccountID, adminID AccountID) error {
	var forfeited AmountCents
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		deletedAt := service.now()
		if _, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
			AccountID: accountID,
			Kind:      EntryDeleteUser,
			AdminID:   adminRef(adminID),
			Reason:    "Account deleted by admin",
			CreatedAt: deletedAt,
		}); err != nil {
			return err
		}
		if account.Balance != 0 {
			forfeited = account.Balance
			if _, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
				AccountID: accountID,
				Amount:    account.Balance.Negated(),
				Kind:      EntryForfeit,
				AdminID:   adminRef(adminID),
				Reason:    forfeitReason,
				CreatedAt: deletedAt,
			}); err != nil {
				return err
			}
		}
		return transactionStore.DeleteAccount(ctx, accountID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteAccount,
		AccountID: accountID,
		ActorID:   adminID,
		Amount:    forfeited,
		Error:     operationError,
	})
	return operationError
}

// SetRole changes the role of an existing account.
func (service *Service) SetRole(ctx context.Context, accountID AccountID, role Role) error {
	operationError := func() error {
		if _, err := ParseRole(role.String()); err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if _, err := transactionStore.LockAccount(ctx, accountID); err != nil {
				return err
			}
			return transactionStore.SetAccountRole(ctx, accountID, role)
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationSetRole,
		AccountID: accountID,
		Error:     operationError,
	})
	return operationError
}

// ListAccounts searches accounts by numeric id or display name substring.
func (service *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit = normalizeListLimit(filter.Limit)
	return service.store.ListAccounts(ctx, filter)
}

// ListLedgerEntries lists entries newest first.
func (service *Service) ListLedgerEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error) {
	filter.Limit = normalizeListLimit(filter.Limit)
	return service.store.ListLedgerEntries(ctx, filter)
}

// ReverseEntry appends an opposite reversal entry. Each entry can be reversed once; zero
// entries and reversals themselves cannot be reversed.
func (service *Service) ReverseEntry(ctx context.Context, entryID EntryID, adminID AccountID, reason string) (LedgerEntry, error) {
	var reversal LedgerEntry
	var accountID AccountID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		original, err := transactionStore.GetLedgerEntry(ctx, entryID)
		if err != nil {
			return err
		}
		accountID = original.AccountID
		if original.Kind == EntryReversal {
			return fmt.Errorf("%w: entry %s is a reversal", ErrInvalidState, entryID)
		}
		if original.Amount == 0 {
			return fmt.Errorf("%w: entry %s moves no funds", ErrInvalidState, entryID)
		}
		if _, err := transactionStore.LockAccount(ctx, original.AccountID); err != nil {
			return err
		}
		reversed, err := transactionStore.HasReversal(ctx, entryID)
		if err != nil {
			return err
		}
		if reversed {
			return fmt.Errorf("%w: entry %s already reversed", ErrInvalidState, entryID)
		}
		trimmedReason := strings.TrimSpace(reason)
		if trimmedReason == "" {
			trimmedReason = reversalReasonPrefix + entryID.String()
		}
		reversesRef := entryID
		applied, _, err := applyLedgerEntry(ctx, transactionStore, LedgerEntryInput{
			AccountID:       original.AccountID,
			Amount:          original.Amount.Negated(),
			Kind:            EntryReversal,
			AdminID:         adminRef(adminID),
			Reason:          trimmedReason,
			OrderID:         original.OrderID,
			ReversesEntryID: &reversesRef,
			CreatedAt:       service.now(),
		})
		if err != nil {
			return err
		}
		reversal = applied
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReverseEntry,
		AccountID: accountID,
		ActorID:   adminID,
		Amount:    reversal.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerEntry{}, operationError
	}
	return reversal, nil
}

// Reconcile compares the stored balance with the sum of the account's ledger entries.
func (service *Service) Reconcile(ctx context.Context, accountID AccountID) (Reconciliation, error) {
	account, err := service.store.GetAccount(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum, err := service.store.SumLedgerEntries(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		AccountID: accountID,
		Balance:   account.Balance,
		LedgerSum: sum,
	}, nil
}

// EnsureAdmins promotes the given accounts to admin, creating them when absent.
func (service *Service) EnsureAdmins(ctx context.Context, accountIDs []AccountID) error {
	for _, accountID := range accountIDs {
		account, err := service.GetOrCreateAccount(ctx, accountID, "admin "+strconv.FormatInt(accountID.Int64(), 10))
		if err != nil {
			return err
		}
		if account.IsAdmin() {
			continue
		}
		if err := service.SetRole(ctx, accountID, RoleAdmin); err != nil {
			return err
		}
	}
	return nil
}
