// Package command decodes compact callback data into typed commands and dispatches them
// into the shop service.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
)

const separator = ":"

const (
	verbViewProducts       = "view_products"
	verbViewPlans          = "product"
	verbViewPlan           = "plan"
	verbBuy                = "buy"
	verbCheckBalance       = "check_balance"
	verbOrderHistory       = "order_history"
	verbMyKeys             = "my_keys"
	verbAdminStatistics    = "admin_statistics"
	verbAdminOrders        = "admin_orders"
	verbAdminTransactions  = "admin_transactions"
	verbAdminViewKeys      = "admin_view_keys"
	verbAdminDeleteKey     = "admin_delete_key"
	verbAdminDeleteProduct = "admin_delete_product"
	verbAdminDeletePlan    = "admin_delete_plan"
	verbAdminViewUser      = "admin_view_user"
	verbAdminSetRole       = "admin_set_role"
	verbAdminBan           = "admin_ban"
	verbAdminUnban         = "admin_unban"
	verbAdminDeleteUser    = "admin_delete_user"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedCommand = errors.New("malformed command")
)

// Command is one decoded callback. The set of implementations is closed.
type Command interface {
	Verb() string
	args() []string
	admin() bool
}

type ViewProducts struct{}

type ViewPlans struct {
	ProductID shop.ProductID
}

type ViewPlan struct {
	PlanID shop.PlanID
}

// Buy purchases Quantity keys; a missing quantity means one.
type Buy struct {
	PlanID   shop.PlanID
	Quantity int
}

type CheckBalance struct{}

type OrderHistory struct{}

type MyKeys struct{}

type AdminStatistics struct{}

type AdminOrders struct{}

type AdminTransactions struct{}

type AdminViewKeys struct {
	PlanID shop.PlanID
}

type AdminDeleteKey struct {
	KeyID shop.KeyID
}

type AdminDeleteProduct struct {
	ProductID shop.ProductID
}

type AdminDeletePlan struct {
	PlanID shop.PlanID
}

type AdminViewUser struct {
	AccountID shop.AccountID
}

type AdminSetRole struct {
	AccountID shop.AccountID
	Role      shop.Role
}

type AdminBan struct {
	AccountID shop.AccountID
	Reason    string
}

type AdminUnban struct {
	AccountID shop.AccountID
}

type AdminDeleteUser struct {
	AccountID shop.AccountID
}

func (ViewProducts) Verb() string       { return verbViewProducts }
func (ViewPlans) Verb() string          { return verbViewPlans }
func (ViewPlan) Verb() string           { return verbViewPlan }
func (Buy) Verb() string                { return verbBuy }
func (CheckBalance) Verb() string       { return verbCheckBalance }
func (OrderHistory) Verb() string       { return verbOrderHistory }
func (MyKeys) Verb() string             { return verbMyKeys }
func (AdminStatistics) Verb() string    { return verbAdminStatistics }
func (AdminOrders) Verb() string        { return verbAdminOrders }
func (AdminTransactions) Verb() string  { return verbAdminTransactions }
func (AdminViewKeys) Verb() string      { return verbAdminViewKeys }
func (AdminDeleteKey) Verb() string     { return verbAdminDeleteKey }
func (AdminDeleteProduct) Verb() string { return verbAdminDeleteProduct }
func (AdminDeletePlan) Verb() string    { return verbAdminDeletePlan }
func (AdminViewUser) Verb() string      { return verbAdminViewUser }
func (AdminSetRole) Verb() string       { return verbAdminSetRole }
func (AdminBan) Verb() string           { return verbAdminBan }
func (AdminUnban) Verb() string         { return verbAdminUnban }
func (AdminDeleteUser) Verb() string    { return verbAdminDeleteUser }

func (ViewProducts) args() []string               { return nil }
func (command ViewPlans) args() []string          { return []string{command.ProductID.String()} }
func (command ViewPlan) args() []string           { return []string{command.PlanID.String()} }
func (CheckBalance) args() []string               { return nil }
func (OrderHistory) args() []string               { return nil }
func (MyKeys) args() []string                     { return nil }
func (AdminStatistics) args() []string            { return nil }
func (AdminOrders) args() []string                { return nil }
func (AdminTransactions) args() []string          { return nil }
func (command AdminViewKeys) args() []string      { return []string{command.PlanID.String()} }
func (command AdminDeleteKey) args() []string     { return []string{command.KeyID.String()} }
func (command AdminDeleteProduct) args() []string { return []string{command.ProductID.String()} }
func (command AdminDeletePlan) args() []string    { return []string{command.PlanID.String()} }
func (command AdminViewUser) args() []string      { return []string{command.AccountID.String()} }
func (command AdminUnban) args() []string         { return []string{command.AccountID.String()} }
func (command AdminDeleteUser) args() []string    { return []string{command.AccountID.String()} }
func (command AdminSetRole) args() []string       { return []string{command.AccountID.String(), command.Role.String()} }

func (command Buy) args() []string {
	if command.Quantity <= 1 {
		return []string{command.PlanID.String()}
	}
	return []string{command.PlanID.String(), strconv.Itoa(command.Quantity)}
}

func (command AdminBan) args() []string {
	if command.Reason == "" {
		return []string{command.AccountID.String()}
	}
	return []string{command.AccountID.String(), command.Reason}
}

func (ViewProducts) admin() bool       { return false }
func (ViewPlans) admin() bool          { return false }
func (ViewPlan) admin() bool           { return false }
func (Buy) admin() bool                { return false }
func (CheckBalance) admin() bool       { return false }
func (OrderHistory) admin() bool       { return false }
func (MyKeys) admin() bool             { return false }
func (AdminStatistics) admin() bool    { return true }
func (AdminOrders) admin() bool        { return true }
func (AdminTransactions) admin() bool  { return true }
func (AdminViewKeys) admin() bool      { return true }
func (AdminDeleteKey) admin() bool     { return true }
func (AdminDeleteProduct) admin() bool { return true }
func (AdminDeletePlan) admin() bool    { return true }
func (AdminViewUser) admin() bool      { return true }
func (AdminSetRole) admin() bool       { return true }
func (AdminBan) admin() bool           { return true }
func (AdminUnban) admin() bool         { return true }
func (AdminDeleteUser) admin() bool    { return true }

// IsAdmin reports whether the command requires the admin role.
func IsAdmin(command Command) bool {
	return command.admin()
}

// Encode renders the compact verb[:arg...] form accepted by Decode.
func Encode(command Command) string {
	return strings.Join(append([]string{command.Verb()}, command.args()...), separator)
}

// Decode parses compact callback data. The last argument of admin_ban keeps any separators
// so free-text reasons survive.
func Decode(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedCommand)
	}
	verb, rest, _ := strings.Cut(trimmed, separator)
	var parts []string
	if rest != "" {
		parts = strings.Split(rest, separator)
	}
	switch verb {
	case verbViewProducts:
		return noArgs(verb, parts, ViewProducts{})
	case verbCheckBalance:
		return noArgs(verb, parts, CheckBalance{})
	case verbOrderHistory:
		return noArgs(verb, parts, OrderHistory{})
	case verbMyKeys:
		return noArgs(verb, parts, MyKeys{})
	case verbAdminStatistics:
		return noArgs(verb, parts, AdminStatistics{})
	case verbAdminOrders:
		return noArgs(verb, parts, AdminOrders{})
	case verbAdminTransactions:
		return noArgs(verb, parts, AdminTransactions{})
	case verbViewPlans, verbAdminDeleteProduct:
		if err := expectArgs(verb, parts, 1); err != nil {
			return nil, err
		}
		productID, err := shop.ParseProductID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		if verb == verbViewPlans {
			return ViewPlans{ProductID: productID}, nil
		}
		return AdminDeleteProduct{ProductID: productID}, nil
	case verbViewPlan, verbAdminViewKeys, verbAdminDeletePlan:
		if err := expectArgs(verb, parts, 1); err != nil {
			return nil, err
		}
		planID, err := shop.ParsePlanID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		switch verb {
		case verbViewPlan:
			return ViewPlan{PlanID: planID}, nil
		case verbAdminViewKeys:
			return AdminViewKeys{PlanID: planID}, nil
		default:
			return AdminDeletePlan{PlanID: planID}, nil
		}
	case verbBuy:
		return decodeBuy(parts)
	case verbAdminDeleteKey:
		if err := expectArgs(verb, parts, 1); err != nil {
			return nil, err
		}
		keyID, err := shop.ParseKeyID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		return AdminDeleteKey{KeyID: keyID}, nil
	case verbAdminViewUser, verbAdminUnban, verbAdminDeleteUser:
		if err := expectArgs(verb, parts, 1); err != nil {
			return nil, err
		}
		accountID, err := shop.ParseAccountID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		switch verb {
		case verbAdminViewUser:
			return AdminViewUser{AccountID: accountID}, nil
		case verbAdminUnban:
			return AdminUnban{AccountID: accountID}, nil
		default:
			return AdminDeleteUser{AccountID: accountID}, nil
		}
	case verbAdminSetRole:
		if err := expectArgs(verb, parts, 2); err != nil {
			return nil, err
		}
		accountID, err := shop.ParseAccountID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		role, err := shop.ParseRole(parts[1])
		if err != nil {
			return nil, malformed(verb, err)
		}
		return AdminSetRole{AccountID: accountID, Role: role}, nil
	case verbAdminBan:
		if len(parts) == 0 {
			return nil, fmt.Errorf("%w: %s expects an account id", ErrMalformedCommand, verb)
		}
		accountID, err := shop.ParseAccountID(parts[0])
		if err != nil {
			return nil, malformed(verb, err)
		}
		return AdminBan{AccountID: accountID, Reason: strings.TrimSpace(strings.Join(parts[1:], separator))}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}

func decodeBuy(parts []string) (Command, error) {
	if len(parts) != 1 && len(parts) != 2 {
		return nil, fmt.Errorf("%w: %s expects a plan id and an optional quantity", ErrMalformedCommand, verbBuy)
	}
	planID, err := shop.ParsePlanID(parts[0])
	if err != nil {
		return nil, malformed(verbBuy, err)
	}
	quantity := 1
	if len(parts) == 2 {
		quantity, err = strconv.Atoi(parts[1])
		if err != nil || quantity < 1 {
			return nil, fmt.Errorf("%w: %s quantity %q", ErrMalformedCommand, verbBuy, parts[1])
		}
	}
	return Buy{PlanID: planID, Quantity: quantity}, nil
}

func noArgs(verb string, parts []string, decoded Command) (Command, error) {
	if err := expectArgs(verb, parts, 0); err != nil {
		return nil, err
	}
	return decoded, nil
}

func expectArgs(verb string, parts []string, count int) error {
	if len(parts) != count {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrMalformedCommand, verb, count, len(parts))
	}
	return nil
}

func malformed(verb string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedCommand, verb, err)
}
