package shop

import (
	"context"
	"errors"
	"testing"
)

func TestAdjustBalanceKinds(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3001, mustAmount(test, "5"), RoleUser)
	admin := store.seedAccount(test, 1, 0, RoleAdmin)
	service := mustNewService(test, store)

	credit, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: buyer, Amount: mustAmount(test, "2.50"), AdminID: admin, Reason: " manual top-up "})
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	if credit.Kind != EntryAdminAdd || credit.AdminID == nil || *credit.AdminID != admin || credit.Reason != "manual top-up" {
		test.Fatalf("unexpected credit entry: %+v", credit)
	}
	debit, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: buyer, Amount: mustAmount(test, "-7.50"), AdminID: admin})
	if err != nil {
		test.Fatalf("debit: %v", err)
	}
	if debit.Kind != EntryAdminDeduct {
		test.Fatalf("expected admin_deduct, got %s", debit.Kind)
	}
	if balance := store.account(test, buyer).Balance; balance != 0 {
		test.Fatalf("expected zero balance, got %s", balance)
	}
}

func TestAdjustBalanceRejectsOverdraftUnlessAllowed(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3002, mustAmount(test, "1"), RoleUser)
	service := mustNewService(test, store)

	_, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: buyer, Amount: mustAmount(test, "-2")})
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: buyer, Amount: mustAmount(test, "-2"), AllowNegative: true}); err != nil {
		test.Fatalf("override: %v", err)
	}
	if balance := store.account(test, buyer).Balance; balance != mustAmount(test, "-1") {
		test.Fatalf("expected -1.00, got %s", balance)
	}
}

func TestAdjustBalanceValidation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3003, 0, RoleUser)
	service := mustNewService(test, store)

	if _, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: buyer}); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err := service.AdjustBalance(context.Background(), BalanceAdjustment{AccountID: mustAccountID(test, 9), Amount: 100})
	if !errors.Is(err, ErrAccountNotFound) || !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestBanAndUnbanWriteZeroEntries(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3004, mustAmount(test, "3"), RoleUser)
	admin := store.seedAccount(test, 1, 0, RoleAdmin)
	service := mustNewService(test, store)
	ctx := context.Background()

	if err := service.Ban(ctx, buyer, "chargeback", admin); err != nil {
		test.Fatalf("ban: %v", err)
	}
	banned := store.account(test, buyer)
	if !banned.Banned || banned.BanReason != "chargeback" || banned.BannedAt == nil {
		test.Fatalf("unexpected banned account: %+v", banned)
	}
	if err := service.Unban(ctx, buyer, admin); err != nil {
		test.Fatalf("unban: %v", err)
	}
	if store.account(test, buyer).Banned {
		test.Fatalf("account still banned")
	}
	entries, err := service.ListLedgerEntries(ctx, EntryFilter{AccountID: &buyer})
	if err != nil {
		test.Fatalf("list entries: %v", err)
	}
	if len(entries) != 3 || entries[0].Kind != EntryUnban || entries[1].Kind != EntryBan {
		test.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Amount != 0 || entries[1].Amount != 0 {
		test.Fatalf("ban entries must be zero")
	}
}

func TestDeleteAccountForfeitsBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3005, mustAmount(test, "12.34"), RoleUser)
	admin := store.seedAccount(test, 1, 0, RoleAdmin)
	service := mustNewService(test, store)

	if err := service.DeleteAccount(context.Background(), buyer, admin); err != nil {
		test.Fatalf("delete: %v", err)
	}
	if _, ok := store.state.accounts[buyer.Int64()]; ok {
		test.Fatalf("account row still present")
	}
	var sum AmountCents
	var kinds []EntryKind
	for _, entry := range store.state.entries {
		if entry.AccountID == buyer {
			sum += entry.Amount
			kinds = append(kinds, entry.Kind)
		}
	}
	if sum != 0 {
		test.Fatalf("expected orphaned history to sum to zero, got %s", sum)
	}
	if len(kinds) != 3 || kinds[1] != EntryDeleteUser || kinds[2] != EntryForfeit {
		test.Fatalf("unexpected entry kinds: %v", kinds)
	}
	if _, err := service.GetAccount(context.Background(), buyer); !errors.Is(err, ErrAccountNotFound) {
		test.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestReverseEntryRules(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3006, mustAmount(test, "10"), RoleUser)
	service := mustNewService(test, store)
	ctx := context.Background()

	credit, err := service.AdjustBalance(ctx, BalanceAdjustment{AccountID: buyer, Amount: mustAmount(test, "4")})
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	reversal, err := service.ReverseEntry(ctx, credit.ID, AccountID{}, "")
	if err != nil {
		test.Fatalf("reverse: %v", err)
	}
	if reversal.Amount != mustAmount(test, "-4") || reversal.Kind != EntryReversal || reversal.ReversesEntryID == nil || *reversal.ReversesEntryID != credit.ID {
		test.Fatalf("unexpected reversal: %+v", reversal)
	}
	if reversal.Reason != "Reversal of entry #"+credit.ID.String() {
		test.Fatalf("unexpected default reason %q", reversal.Reason)
	}
	if _, err := service.ReverseEntry(ctx, credit.ID, AccountID{}, ""); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState for double reversal, got %v", err)
	}
	if _, err := service.ReverseEntry(ctx, reversal.ID, AccountID{}, ""); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState for reversing a reversal, got %v", err)
	}
	if err := service.Ban(ctx, buyer, "", AccountID{}); err != nil {
		test.Fatalf("ban: %v", err)
	}
	entries, err := service.ListLedgerEntries(ctx, EntryFilter{AccountID: &buyer, Limit: 1})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if _, err := service.ReverseEntry(ctx, entries[0].ID, AccountID{}, ""); !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState for zero entry, got %v", err)
	}
	if _, err := service.ReverseEntry(ctx, EntryID{value: 999}, AccountID{}, ""); !errors.Is(err, ErrEntryNotFound) {
		test.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestListAccountsSearch(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedAccount(test, 3007, 0, RoleUser)
	store.seedAccount(test, 3008, 0, RoleUser)
	service := mustNewService(test, store)

	byID, err := service.ListAccounts(context.Background(), AccountFilter{Search: " 3008 "})
	if err != nil {
		test.Fatalf("search by id: %v", err)
	}
	if len(byID) != 1 || byID[0].ID.Int64() != 3008 {
		test.Fatalf("unexpected id search result: %+v", byID)
	}
	byName, err := service.ListAccounts(context.Background(), AccountFilter{Search: "USER 300"})
	if err != nil {
		test.Fatalf("search by name: %v", err)
	}
	if len(byName) != 2 {
		test.Fatalf("expected 2 name matches, got %d", len(byName))
	}
}

func TestSetRoleAndEnsureAdmins(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	buyer := store.seedAccount(test, 3009, 0, RoleUser)
	service := mustNewService(test, store)

	if err := service.SetRole(context.Background(), buyer, Role("owner")); !errors.Is(err, ErrInvalidRole) {
		test.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if err := service.SetRole(context.Background(), buyer, RoleReseller); err != nil {
		test.Fatalf("set role: %v", err)
	}
	if role := store.account(test, buyer).Role; role != RoleReseller {
		test.Fatalf("expected reseller, got %s", role)
	}
	bootstrap := mustAccountID(test, 77)
	if err := service.EnsureAdmins(context.Background(), []AccountID{bootstrap, bootstrap}); err != nil {
		test.Fatalf("ensure admins: %v", err)
	}
	if !store.account(test, bootstrap).IsAdmin() {
		test.Fatalf("bootstrap account not promoted")
	}
}

func TestGetOrCreateAccountIsStable(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	accountID := mustAccountID(test, 3010)

	first, err := service.GetOrCreateAccount(context.Background(), accountID, " Alice ")
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	second, err := service.GetOrCreateAccount(context.Background(), accountID, "Bob")
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if first.DisplayName != "Alice" || second.DisplayName != "Alice" || second.Role != RoleUser {
		test.Fatalf("unexpected accounts: %+v %+v", first, second)
	}
	if _, err := service.GetOrCreateAccount(context.Background(), AccountID{}, "x"); !errors.Is(err, ErrInvalidAccountID) {
		test.Fatalf("expected ErrInvalidAccountID, got %v", err)
	}
}
