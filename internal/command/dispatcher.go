package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

const recentListLimit = 10

// ErrForbidden is returned when a non-admin caller sends an admin command.
var ErrForbidden = errors.New("admin role required")

// Service is the part of *shop.Service the dispatcher drives.
type Service interface {
	GetOrCreateAccount(ctx context.Context, accountID shop.AccountID, displayName string) (shop.Account, error)
	GetAccount(ctx context.Context, accountID shop.AccountID) (shop.Account, error)
	Ban(ctx context.Context, accountID shop.AccountID, reason string, adminID shop.AccountID) error
	Unban(ctx context.Context, accountID shop.AccountID, adminID shop.AccountID) error
	DeleteAccount(ctx context.Context, accountID shop.AccountID, adminID shop.AccountID) error
	SetRole(ctx context.Context, accountID shop.AccountID, role shop.Role) error
	ListLedgerEntries(ctx context.Context, filter shop.EntryFilter) ([]shop.LedgerEntry, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]shop.Product, error)
	ListPlans(ctx context.Context, productID shop.ProductID, activeOnly bool) ([]shop.Plan, error)
	GetPlan(ctx context.Context, planID shop.PlanID) (shop.Plan, error)
	DeleteProduct(ctx context.Context, productID shop.ProductID) error
	DeletePlan(ctx context.Context, planID shop.PlanID) error
	ResolvePrice(ctx context.Context, accountID shop.AccountID, planID shop.PlanID) (shop.AmountCents, error)
	Purchase(ctx context.Context, request shop.PurchaseRequest) (shop.PurchaseReceipt, error)
	ListKeys(ctx context.Context, filter shop.KeyFilter) ([]shop.Key, error)
	ListPurchasedKeys(ctx context.Context, accountID shop.AccountID, limit int) ([]shop.Key, error)
	ReleaseKey(ctx context.Context, keyID shop.KeyID) (bool, error)
	ListOrders(ctx context.Context, filter shop.OrderFilter) ([]shop.Order, error)
	Statistics(ctx context.Context) (shop.Statistics, error)
}

// Caller identifies who sent a command.
type Caller struct {
	AccountID   shop.AccountID
	DisplayName string
}

// Result carries whatever the command produced. Only the fields relevant to the command are set.
type Result struct {
	Command    Command
	Caller     shop.Account
	Account    *shop.Account
	Products   []shop.Product
	Plans      []shop.Plan
	Plan       *shop.Plan
	Price      *shop.AmountCents
	Receipt    *shop.PurchaseReceipt
	Orders     []shop.Order
	Keys       []shop.Key
	Entries    []shop.LedgerEntry
	Statistics *shop.Statistics
}

// Dispatcher routes decoded commands to the service.
type Dispatcher struct {
	service Service
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(service Service) (*Dispatcher, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", shop.ErrInvalidServiceConfig)
	}
	return &Dispatcher{service: service}, nil
}

// DispatchRaw decodes raw callback data and dispatches it.
func (dispatcher *Dispatcher) DispatchRaw(ctx context.Context, caller Caller, raw string) (Result, error) {
	decoded, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}
	return dispatcher.Dispatch(ctx, caller, decoded)
}

// Dispatch resolves the caller, enforces the ban and admin rules and runs the command.
// Banned callers may still run admin commands when they hold the admin role.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, caller Caller, command Command) (Result, error) {
	if command == nil {
		return Result{}, fmt.Errorf("%w: nil command", ErrMalformedCommand)
	}
	account, err := dispatcher.service.GetOrCreateAccount(ctx, caller.AccountID, caller.DisplayName)
	if err != nil {
		return Result{}, err
	}
	if IsAdmin(command) {
		if !account.IsAdmin() {
			return Result{}, ErrForbidden
		}
	} else if account.Banned {
		return Result{}, shop.ErrBanned
	}
	result := Result{Command: command, Caller: account}
	if err := dispatcher.run(ctx, account, command, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (dispatcher *Dispatcher) run(ctx context.Context, caller shop.Account, command Command, result *Result) error {
	service := dispatcher.service
	switch typed := command.(type) {
	case ViewProducts:
		products, err := service.ListProducts(ctx, true)
		result.Products = products
		return err
	case ViewPlans:
		plans, err := service.ListPlans(ctx, typed.ProductID, true)
		result.Plans = plans
		return err
	case ViewPlan:
		plan, err := service.GetPlan(ctx, typed.PlanID)
		if err != nil {
			return err
		}
		price, err := service.ResolvePrice(ctx, caller.ID, typed.PlanID)
		if err != nil {
			return err
		}
		result.Plan = &plan
		result.Price = &price
		return nil
	case Buy:
		receipt, err := service.Purchase(ctx, shop.PurchaseRequest{
			AccountID: caller.ID,
			PlanID:    typed.PlanID,
			Quantity:  max(typed.Quantity, 1),
		})
		if err != nil {
			return err
		}
		result.Receipt = &receipt
		return nil
	case CheckBalance:
		result.Account = &caller
		return nil
	case OrderHistory:
		orders, err := service.ListOrders(ctx, shop.OrderFilter{AccountID: &caller.ID, Limit: recentListLimit})
		result.Orders = orders
		return err
	case MyKeys:
		keys, err := service.ListPurchasedKeys(ctx, caller.ID, recentListLimit)
		result.Keys = keys
		return err
	case AdminStatistics:
		statistics, err := service.Statistics(ctx)
		if err != nil {
			return err
		}
		result.Statistics = &statistics
		return nil
	case AdminOrders:
		orders, err := service.ListOrders(ctx, shop.OrderFilter{Limit: shop.DefaultListLimit})
		result.Orders = orders
		return err
	case AdminTransactions:
		entries, err := service.ListLedgerEntries(ctx, shop.EntryFilter{Limit: shop.DefaultListLimit})
		result.Entries = entries
		return err
	case AdminViewKeys:
		keys, err := service.ListKeys(ctx, shop.KeyFilter{PlanID: &typed.PlanID, Limit: shop.DefaultListLimit})
		result.Keys = keys
		return err
	case AdminDeleteKey:
		_, err := service.ReleaseKey(ctx, typed.KeyID)
		return err
	case AdminDeleteProduct:
		return service.DeleteProduct(ctx, typed.ProductID)
	case AdminDeletePlan:
		return service.DeletePlan(ctx, typed.PlanID)
	case AdminViewUser:
		account, err := service.GetAccount(ctx, typed.AccountID)
		if err != nil {
			return err
		}
		orders, err := service.ListOrders(ctx, shop.OrderFilter{AccountID: &typed.AccountID, Limit: recentListLimit})
		if err != nil {
			return err
		}
		result.Account = &account
		result.Orders = orders
		return nil
	case AdminSetRole:
		if err := service.SetRole(ctx, typed.AccountID, typed.Role); err != nil {
			return err
		}
		return dispatcher.loadAccount(ctx, typed.AccountID, result)
	case AdminBan:
		if err := service.Ban(ctx, typed.AccountID, typed.Reason, caller.ID); err != nil {
			return err
		}
		return dispatcher.loadAccount(ctx, typed.AccountID, result)
	case AdminUnban:
		if err := service.Unban(ctx, typed.AccountID, caller.ID); err != nil {
			return err
		}
		return dispatcher.loadAccount(ctx, typed.AccountID, result)
	case AdminDeleteUser:
		return service.DeleteAccount(ctx, typed.AccountID, caller.ID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command.Verb())
	}
}

func (dispatcher *Dispatcher) loadAccount(ctx context.Context, accountID shop.AccountID, result *Result) error {
	account, err := dispatcher.service.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	result.Account = &account
	return nil
}
