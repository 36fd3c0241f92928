package shop

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type resellerPriceKey struct {
	accountID int64
	planID    int64
}

type stubState struct {
	accounts      map[int64]Account
	products      map[int64]Product
	plans         map[int64]Plan
	keys          map[int64]Key
	orders        []Order
	prices        map[resellerPriceKey]ResellerPrice
	entries       []LedgerEntry
	nextProductID int64
	nextPlanID    int64
	nextKeyID     int64
	nextOrderID   int64
	nextEntryID   int64
}

func newStubState() *stubState {
	return &stubState{
		accounts: map[int64]Account{},
		products: map[int64]Product{},
		plans:    map[int64]Plan{},
		keys:     map[int64]Key{},
		prices:   map[resellerPriceKey]ResellerPrice{},
	}
}

func (state *stubState) clone() *stubState {
	copied := &stubState{
		accounts:      make(map[int64]Account, len(state.accounts)),
		products:      make(map[int64]Product, len(state.products)),
		plans:         make(map[int64]Plan, len(state.plans)),
		keys:          make(map[int64]Key, len(state.keys)),
		orders:        append([]Order(nil), state.orders...),
		prices:        make(map[resellerPriceKey]ResellerPrice, len(state.prices)),
		entries:       append([]LedgerEntry(nil), state.entries...),
		nextProductID: state.nextProductID,
		nextPlanID:    state.nextPlanID,
		nextKeyID:     state.nextKeyID,
		nextOrderID:   state.nextOrderID,
		nextEntryID:   state.nextEntryID,
	}
	for id, account := range state.accounts {
		copied.accounts[id] = account
	}
	for id, product := range state.products {
		copied.products[id] = product
	}
	for id, plan := range state.plans {
		copied.plans[id] = plan
	}
	for id, key := range state.keys {
		copied.keys[id] = key
	}
	for id, price := range state.prices {
		copied.prices[id] = price
	}
	return copied
}

// stubStore keeps all rows in memory. WithTx runs the callback against a copy of the state
// and swaps it in only when the callback succeeds, so rollbacks are observable.
type stubStore struct {
	mutex    *sync.Mutex
	state    *stubState
	failures map[string]error
	calls    *callLog
	inTx     bool
	commits  int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		mutex:    &sync.Mutex{},
		state:    newStubState(),
		failures: map[string]error{},
		calls:    &callLog{},
	}
}

// callLog records store method names in call order.
type callLog struct {
	mutex   sync.Mutex
	methods []string
}

func (log *callLog) record(method string) {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	log.methods = append(log.methods, method)
}

// index returns the position of the first call to method, or -1.
func (log *callLog) index(method string) int {
	log.mutex.Lock()
	defer log.mutex.Unlock()
	for index, call := range log.methods {
		if call == method {
			return index
		}
	}
	return -1
}

func (store *stubStore) failure(method string) error {
	store.calls.record(method)
	return store.failures[method]
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.failure("WithTx"); err != nil {
		return err
	}
	if store.inTx {
		return fn(ctx, store)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	transactionStore := &stubStore{
		mutex:    store.mutex,
		state:    store.state.clone(),
		failures: store.failures,
		calls:    store.calls,
		inTx:     true,
	}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	store.state = transactionStore.state
	store.commits++
	return nil
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, account NewAccount) (Account, error) {
	if err := store.failure("GetOrCreateAccount"); err != nil {
		return Account{}, err
	}
	if existing, ok := store.state.accounts[account.ID.Int64()]; ok {
		return existing, nil
	}
	created := Account{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		CreatedAt:   account.CreatedAt,
	}
	store.state.accounts[account.ID.Int64()] = created
	return created, nil
}

func (store *stubStore) GetAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if err := store.failure("GetAccount"); err != nil {
		return Account{}, err
	}
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) LockAccount(ctx context.Context, accountID AccountID) (Account, error) {
	if err := store.failure("LockAccount"); err != nil {
		return Account{}, err
	}
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) AddToBalance(ctx context.Context, accountID AccountID, delta AmountCents) (AmountCents, error) {
	if err := store.failure("AddToBalance"); err != nil {
		return 0, err
	}
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		return 0, ErrAccountNotFound
	}
	account.Balance += delta
	store.state.accounts[accountID.Int64()] = account
	return account.Balance, nil
}

func (store *stubStore) SetAccountBan(ctx context.Context, accountID AccountID, ban AccountBan) error {
	if err := store.failure("SetAccountBan"); err != nil {
		return err
	}
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		return ErrAccountNotFound
	}
	account.Banned = ban.Banned
	account.BanReason = ban.Reason
	account.BannedAt = ban.At
	store.state.accounts[accountID.Int64()] = account
	return nil
}

func (store *stubStore) SetAccountRole(ctx context.Context, accountID AccountID, role Role) error {
	if err := store.failure("SetAccountRole"); err != nil {
		return err
	}
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		return ErrAccountNotFound
	}
	account.Role = role
	store.state.accounts[accountID.Int64()] = account
	return nil
}

func (store *stubStore) DeleteAccount(ctx context.Context, accountID AccountID) error {
	if err := store.failure("DeleteAccount"); err != nil {
		return err
	}
	if _, ok := store.state.accounts[accountID.Int64()]; !ok {
		return ErrAccountNotFound
	}
	delete(store.state.accounts, accountID.Int64())
	return nil
}

func (store *stubStore) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	if err := store.failure("ListAccounts"); err != nil {
		return nil, err
	}
	search := strings.ToLower(filter.Search)
	var accounts []Account
	for _, account := range store.state.accounts {
		if filter.BannedOnly && !account.Banned {
			continue
		}
		if search != "" && account.ID.String() != search && !strings.Contains(strings.ToLower(account.DisplayName), search) {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(left, right int) bool { return accounts[left].ID.Int64() < accounts[right].ID.Int64() })
	return limitSlice(accounts, filter.Limit), nil
}

func (store *stubStore) InsertLedgerEntry(ctx context.Context, input LedgerEntryInput) (LedgerEntry, error) {
	if err := store.failure("InsertLedgerEntry"); err != nil {
		return LedgerEntry{}, err
	}
	store.state.nextEntryID++
	entry := LedgerEntry{
		ID:              EntryID{value: store.state.nextEntryID},
		AccountID:       input.AccountID,
		Amount:          input.Amount,
		Kind:            input.Kind,
		AdminID:         input.AdminID,
		Reason:          input.Reason,
		OrderID:         input.OrderID,
		ReversesEntryID: input.ReversesEntryID,
		Metadata:        input.Metadata,
		CreatedAt:       input.CreatedAt,
	}
	store.state.entries = append(store.state.entries, entry)
	return entry, nil
}

func (store *stubStore) GetLedgerEntry(ctx context.Context, entryID EntryID) (LedgerEntry, error) {
	if err := store.failure("GetLedgerEntry"); err != nil {
		return LedgerEntry{}, err
	}
	for _, entry := range store.state.entries {
		if entry.ID == entryID {
			return entry, nil
		}
	}
	return LedgerEntry{}, ErrEntryNotFound
}

func (store *stubStore) HasReversal(ctx context.Context, entryID EntryID) (bool, error) {
	if err := store.failure("HasReversal"); err != nil {
		return false, err
	}
	for _, entry := range store.state.entries {
		if entry.ReversesEntryID != nil && *entry.ReversesEntryID == entryID {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) ListLedgerEntries(ctx context.Context, filter EntryFilter) ([]LedgerEntry, error) {
	if err := store.failure("ListLedgerEntries"); err != nil {
		return nil, err
	}
	var entries []LedgerEntry
	for index := len(store.state.entries) - 1; index >= 0; index-- {
		entry := store.state.entries[index]
		if filter.AccountID != nil && entry.AccountID != *filter.AccountID {
			continue
		}
		entries = append(entries, entry)
	}
	return limitSlice(entries, filter.Limit), nil
}

func (store *stubStore) SumLedgerEntries(ctx context.Context, accountID AccountID) (AmountCents, error) {
	if err := store.failure("SumLedgerEntries"); err != nil {
		return 0, err
	}
	var sum AmountCents
	for _, entry := range store.state.entries {
		if entry.AccountID == accountID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

func (store *stubStore) CreateProduct(ctx context.Context, product NewProduct) (Product, error) {
	if err := store.failure("CreateProduct"); err != nil {
		return Product{}, err
	}
	store.state.nextProductID++
	created := Product{
		ID:          ProductID{value: store.state.nextProductID},
		Name:        product.Name,
		Description: product.Description,
		Active:      product.Active,
		CreatedAt:   product.CreatedAt,
	}
	store.state.products[created.ID.Int64()] = created
	return created, nil
}

func (store *stubStore) GetProduct(ctx context.Context, productID ProductID) (Product, error) {
	if err := store.failure("GetProduct"); err != nil {
		return Product{}, err
	}
	product, ok := store.state.products[productID.Int64()]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (store *stubStore) UpdateProduct(ctx context.Context, productID ProductID, input ProductInput) (Product, error) {
	if err := store.failure("UpdateProduct"); err != nil {
		return Product{}, err
	}
	product, ok := store.state.products[productID.Int64()]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	product.Name = input.Name
	product.Description = input.Description
	store.state.products[productID.Int64()] = product
	return product, nil
}

func (store *stubStore) SetProductActive(ctx context.Context, productID ProductID, active bool) error {
	if err := store.failure("SetProductActive"); err != nil {
		return err
	}
	product, ok := store.state.products[productID.Int64()]
	if !ok {
		return ErrProductNotFound
	}
	product.Active = active
	store.state.products[productID.Int64()] = product
	return nil
}

func (store *stubStore) DeleteProduct(ctx context.Context, productID ProductID) error {
	if err := store.failure("DeleteProduct"); err != nil {
		return err
	}
	for id, plan := range store.state.plans {
		if plan.ProductID == productID {
			store.deletePlanRows(plan.ID)
			delete(store.state.plans, id)
		}
	}
	delete(store.state.products, productID.Int64())
	return nil
}

func (store *stubStore) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	if err := store.failure("ListProducts"); err != nil {
		return nil, err
	}
	var products []Product
	for _, product := range store.state.products {
		if activeOnly && !product.Active {
			continue
		}
		products = append(products, product)
	}
	sort.Slice(products, func(left, right int) bool { return products[left].Name < products[right].Name })
	return products, nil
}

func (store *stubStore) CreatePlan(ctx context.Context, plan NewPlan) (Plan, error) {
	if err := store.failure("CreatePlan"); err != nil {
		return Plan{}, err
	}
	store.state.nextPlanID++
	created := Plan{
		ID:           PlanID{value: store.state.nextPlanID},
		ProductID:    plan.ProductID,
		ValidityDays: plan.ValidityDays,
		BasePrice:    plan.BasePrice,
		Active:       plan.Active,
		CreatedAt:    plan.CreatedAt,
	}
	store.state.plans[created.ID.Int64()] = created
	return created, nil
}

func (store *stubStore) GetPlan(ctx context.Context, planID PlanID) (Plan, error) {
	if err := store.failure("GetPlan"); err != nil {
		return Plan{}, err
	}
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (store *stubStore) LockPlan(ctx context.Context, planID PlanID) (Plan, error) {
	if err := store.failure("LockPlan"); err != nil {
		return Plan{}, err
	}
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (store *stubStore) LockProductPlans(ctx context.Context, productID ProductID) ([]Plan, error) {
	if err := store.failure("LockProductPlans"); err != nil {
		return nil, err
	}
	var plans []Plan
	for _, plan := range store.state.plans {
		if plan.ProductID == productID {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(left, right int) bool { return plans[left].ID.Int64() < plans[right].ID.Int64() })
	return plans, nil
}

func (store *stubStore) UpdatePlan(ctx context.Context, planID PlanID, update PlanUpdate) (Plan, error) {
	if err := store.failure("UpdatePlan"); err != nil {
		return Plan{}, err
	}
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	plan.ValidityDays = update.ValidityDays
	plan.BasePrice = update.BasePrice
	store.state.plans[planID.Int64()] = plan
	return plan, nil
}

func (store *stubStore) SetPlanActive(ctx context.Context, planID PlanID, active bool) error {
	if err := store.failure("SetPlanActive"); err != nil {
		return err
	}
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		return ErrPlanNotFound
	}
	plan.Active = active
	store.state.plans[planID.Int64()] = plan
	return nil
}

func (store *stubStore) DeletePlan(ctx context.Context, planID PlanID) error {
	if err := store.failure("DeletePlan"); err != nil {
		return err
	}
	store.deletePlanRows(planID)
	delete(store.state.plans, planID.Int64())
	return nil
}

func (store *stubStore) deletePlanRows(planID PlanID) {
	for id, key := range store.state.keys {
		if key.PlanID == planID {
			delete(store.state.keys, id)
		}
	}
	for id, price := range store.state.prices {
		if price.PlanID == planID {
			delete(store.state.prices, id)
		}
	}
}

func (store *stubStore) ListPlans(ctx context.Context, productID ProductID, activeOnly bool) ([]Plan, error) {
	if err := store.failure("ListPlans"); err != nil {
		return nil, err
	}
	var plans []Plan
	for _, plan := range store.state.plans {
		if plan.ProductID != productID || (activeOnly && !plan.Active) {
			continue
		}
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(left, right int) bool { return plans[left].ValidityDays < plans[right].ValidityDays })
	return plans, nil
}

func (store *stubStore) AdjustPlanStock(ctx context.Context, planID PlanID, delta int) error {
	if err := store.failure("AdjustPlanStock"); err != nil {
		return err
	}
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		return ErrPlanNotFound
	}
	plan.Stock += delta
	store.state.plans[planID.Int64()] = plan
	return nil
}

func (store *stubStore) CountOrdersForPlan(ctx context.Context, planID PlanID) (int64, error) {
	if err := store.failure("CountOrdersForPlan"); err != nil {
		return 0, err
	}
	var count int64
	for _, order := range store.state.orders {
		if order.PlanID == planID {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) CountOrdersForProduct(ctx context.Context, productID ProductID) (int64, error) {
	if err := store.failure("CountOrdersForProduct"); err != nil {
		return 0, err
	}
	var count int64
	for _, order := range store.state.orders {
		plan, ok := store.state.plans[order.PlanID.Int64()]
		if order.ProductID == productID || (ok && plan.ProductID == productID) {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) InsertKeys(ctx context.Context, keys []NewKey) (int, error) {
	if err := store.failure("InsertKeys"); err != nil {
		return 0, err
	}
	for _, key := range keys {
		store.state.nextKeyID++
		store.state.keys[store.state.nextKeyID] = Key{
			ID:        KeyID{value: store.state.nextKeyID},
			ProductID: key.ProductID,
			PlanID:    key.PlanID,
			Value:     key.Value,
			CreatedAt: key.CreatedAt,
		}
	}
	return len(keys), nil
}

func (store *stubStore) ClaimKeys(ctx context.Context, claim KeyClaim) ([]Key, error) {
	if err := store.failure("ClaimKeys"); err != nil {
		return nil, err
	}
	var candidates []Key
	for _, key := range store.state.keys {
		if key.PlanID == claim.PlanID && !key.Used {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) < claim.Count {
		return nil, ErrOutOfStock
	}
	sort.Slice(candidates, func(left, right int) bool { return candidates[left].ID.Int64() < candidates[right].ID.Int64() })
	claimed := make([]Key, 0, claim.Count)
	for _, key := range candidates[:claim.Count] {
		usedAt := claim.ClaimedAt
		expiresAt := claim.ExpiresAt
		key.Used = true
		key.UsedAt = &usedAt
		key.ExpiresAt = &expiresAt
		if !claim.AccountID.IsZero() {
			owner := claim.AccountID
			key.UsedBy = &owner
		}
		store.state.keys[key.ID.Int64()] = key
		claimed = append(claimed, key)
	}
	return claimed, nil
}

func (store *stubStore) AssignKeysToOrder(ctx context.Context, keyIDs []KeyID, orderID OrderID) error {
	if err := store.failure("AssignKeysToOrder"); err != nil {
		return err
	}
	for _, keyID := range keyIDs {
		key, ok := store.state.keys[keyID.Int64()]
		if !ok {
			return ErrKeyNotFound
		}
		orderRef := orderID
		key.OrderID = &orderRef
		store.state.keys[keyID.Int64()] = key
	}
	return nil
}

func (store *stubStore) GetKey(ctx context.Context, keyID KeyID) (Key, error) {
	if err := store.failure("GetKey"); err != nil {
		return Key{}, err
	}
	key, ok := store.state.keys[keyID.Int64()]
	if !ok {
		return Key{}, ErrKeyNotFound
	}
	return key, nil
}

func (store *stubStore) DeleteUnusedKey(ctx context.Context, keyID KeyID) (bool, error) {
	if err := store.failure("DeleteUnusedKey"); err != nil {
		return false, err
	}
	key, ok := store.state.keys[keyID.Int64()]
	if !ok || key.Used {
		return false, nil
	}
	delete(store.state.keys, keyID.Int64())
	return true, nil
}

func (store *stubStore) ListKeys(ctx context.Context, filter KeyFilter) ([]Key, error) {
	if err := store.failure("ListKeys"); err != nil {
		return nil, err
	}
	var keys []Key
	for _, key := range store.state.keys {
		if filter.PlanID != nil && key.PlanID != *filter.PlanID {
			continue
		}
		if filter.Used != nil && key.Used != *filter.Used {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(left, right int) bool { return keys[left].ID.Int64() < keys[right].ID.Int64() })
	return limitSlice(keys, filter.Limit), nil
}

func (store *stubStore) ListKeysByOwner(ctx context.Context, accountID AccountID, limit int) ([]Key, error) {
	if err := store.failure("ListKeysByOwner"); err != nil {
		return nil, err
	}
	var keys []Key
	for _, key := range store.state.keys {
		if key.UsedBy != nil && *key.UsedBy == accountID {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(left, right int) bool { return keys[left].ID.Int64() > keys[right].ID.Int64() })
	return limitSlice(keys, limit), nil
}

func (store *stubStore) InsertOrder(ctx context.Context, input OrderInput) (Order, error) {
	if err := store.failure("InsertOrder"); err != nil {
		return Order{}, err
	}
	store.state.nextOrderID++
	order := Order{
		ID:         OrderID{value: store.state.nextOrderID},
		AccountID:  input.AccountID,
		ProductID:  input.ProductID,
		PlanID:     input.PlanID,
		Quantity:   input.Quantity,
		UnitPrice:  input.UnitPrice,
		TotalPrice: input.TotalPrice,
		Status:     input.Status,
		CreatedAt:  input.CreatedAt,
	}
	store.state.orders = append(store.state.orders, order)
	return order, nil
}

func (store *stubStore) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	if err := store.failure("ListOrders"); err != nil {
		return nil, err
	}
	var orders []Order
	for index := len(store.state.orders) - 1; index >= 0; index-- {
		order := store.state.orders[index]
		if filter.AccountID != nil && order.AccountID != *filter.AccountID {
			continue
		}
		if filter.PlanID != nil && order.PlanID != *filter.PlanID {
			continue
		}
		orders = append(orders, order)
	}
	return limitSlice(orders, filter.Limit), nil
}

func (store *stubStore) FindResellerPrice(ctx context.Context, accountID AccountID, planID PlanID) (ResellerPrice, bool, error) {
	if err := store.failure("FindResellerPrice"); err != nil {
		return ResellerPrice{}, false, err
	}
	price, ok := store.state.prices[resellerPriceKey{accountID: accountID.Int64(), planID: planID.Int64()}]
	return price, ok, nil
}

func (store *stubStore) UpsertResellerPrice(ctx context.Context, price ResellerPrice) error {
	if err := store.failure("UpsertResellerPrice"); err != nil {
		return err
	}
	store.state.prices[resellerPriceKey{accountID: price.AccountID.Int64(), planID: price.PlanID.Int64()}] = price
	return nil
}

func (store *stubStore) DeleteResellerPrice(ctx context.Context, accountID AccountID, planID PlanID) (bool, error) {
	if err := store.failure("DeleteResellerPrice"); err != nil {
		return false, err
	}
	key := resellerPriceKey{accountID: accountID.Int64(), planID: planID.Int64()}
	if _, ok := store.state.prices[key]; !ok {
		return false, nil
	}
	delete(store.state.prices, key)
	return true, nil
}

func (store *stubStore) ListResellerPrices(ctx context.Context, accountID AccountID) ([]ResellerPrice, error) {
	if err := store.failure("ListResellerPrices"); err != nil {
		return nil, err
	}
	var prices []ResellerPrice
	for _, price := range store.state.prices {
		if price.AccountID == accountID {
			prices = append(prices, price)
		}
	}
	sort.Slice(prices, func(left, right int) bool { return prices[left].PlanID.Int64() < prices[right].PlanID.Int64() })
	return prices, nil
}

func (store *stubStore) Statistics(ctx context.Context) (Statistics, error) {
	if err := store.failure("Statistics"); err != nil {
		return Statistics{}, err
	}
	var statistics Statistics
	for _, order := range store.state.orders {
		statistics.TotalOrders++
		statistics.Revenue += order.TotalPrice
	}
	for _, account := range store.state.accounts {
		statistics.Accounts++
		if account.Banned {
			statistics.BannedAccounts++
		}
	}
	for _, product := range store.state.products {
		if product.Active {
			statistics.ActiveProducts++
		}
	}
	for _, key := range store.state.keys {
		statistics.TotalKeys++
		if key.Used {
			statistics.UsedKeys++
		} else {
			statistics.AvailableKeys++
		}
	}
	return statistics, nil
}

func (store *stubStore) ProductStatistics(ctx context.Context, productID ProductID) (SalesStatistics, error) {
	if err := store.failure("ProductStatistics"); err != nil {
		return SalesStatistics{}, err
	}
	return store.salesStatistics(func(key Key) bool { return key.ProductID == productID }, func(order Order) bool { return order.ProductID == productID }), nil
}

func (store *stubStore) PlanStatistics(ctx context.Context, planID PlanID) (SalesStatistics, error) {
	if err := store.failure("PlanStatistics"); err != nil {
		return SalesStatistics{}, err
	}
	return store.salesStatistics(func(key Key) bool { return key.PlanID == planID }, func(order Order) bool { return order.PlanID == planID }), nil
}

func (store *stubStore) salesStatistics(keyMatches func(Key) bool, orderMatches func(Order) bool) SalesStatistics {
	var statistics SalesStatistics
	for _, key := range store.state.keys {
		if !keyMatches(key) {
			continue
		}
		statistics.TotalKeys++
		if key.Used {
			statistics.Sold++
		} else {
			statistics.Available++
		}
	}
	for _, order := range store.state.orders {
		if orderMatches(order) {
			statistics.Orders++
			statistics.Revenue += order.TotalPrice
		}
	}
	return statistics
}

func (store *stubStore) unusedKeyCount(planID PlanID) int {
	count := 0
	for _, key := range store.state.keys {
		if key.PlanID == planID && !key.Used {
			count++
		}
	}
	return count
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// seedAccount stores an account with the given balance and a matching opening entry.
func (store *stubStore) seedAccount(test *testing.T, rawID int64, balance AmountCents, role Role) AccountID {
	test.Helper()
	accountID := mustAccountID(test, rawID)
	store.state.accounts[rawID] = Account{
		ID:          accountID,
		DisplayName: "user " + strconv.FormatInt(rawID, 10),
		Balance:     balance,
		Role:        role,
		CreatedAt:   fixedNow(),
	}
	if balance != 0 {
		store.state.nextEntryID++
		store.state.entries = append(store.state.entries, LedgerEntry{
			ID:        EntryID{value: store.state.nextEntryID},
			AccountID: accountID,
			Amount:    balance,
			Kind:      EntryAdminAdd,
			Reason:    "seed",
			CreatedAt: fixedNow(),
		})
	}
	return accountID
}

// seedPlan stores an active product and plan with the given keys.
func (store *stubStore) seedPlan(test *testing.T, validityDays int, basePrice AmountCents, keyValues ...string) Plan {
	test.Helper()
	store.state.nextProductID++
	product := Product{ID: ProductID{value: store.state.nextProductID}, Name: "VPN " + strconv.FormatInt(store.state.nextProductID, 10), Active: true, CreatedAt: fixedNow()}
	store.state.products[product.ID.Int64()] = product
	store.state.nextPlanID++
	plan := Plan{
		ID:           PlanID{value: store.state.nextPlanID},
		ProductID:    product.ID,
		ValidityDays: validityDays,
		BasePrice:    basePrice,
		Stock:        len(keyValues),
		Active:       true,
		CreatedAt:    fixedNow(),
	}
	store.state.plans[plan.ID.Int64()] = plan
	for _, value := range keyValues {
		store.state.nextKeyID++
		store.state.keys[store.state.nextKeyID] = Key{
			ID:        KeyID{value: store.state.nextKeyID},
			ProductID: product.ID,
			PlanID:    plan.ID,
			Value:     value,
			CreatedAt: fixedNow(),
		}
	}
	return plan
}

func (store *stubStore) account(test *testing.T, accountID AccountID) Account {
	test.Helper()
	account, ok := store.state.accounts[accountID.Int64()]
	if !ok {
		test.Fatalf("account %s missing", accountID)
	}
	return account
}

func (store *stubStore) plan(test *testing.T, planID PlanID) Plan {
	test.Helper()
	plan, ok := store.state.plans[planID.Int64()]
	if !ok {
		test.Fatalf("plan %s missing", planID)
	}
	return plan
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, fixedNow, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw int64) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustPlanID(test *testing.T, raw int64) PlanID {
	test.Helper()
	planID, err := NewPlanID(raw)
	if err != nil {
		test.Fatalf("plan id: %v", err)
	}
	return planID
}

func mustAmount(test *testing.T, raw string) AmountCents {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}
