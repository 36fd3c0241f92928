package shop

const (
	operationPurchase            = "purchase"
	operationClaimKey            = "claim_key"
	operationReleaseKey          = "release_key"
	operationAddKeys             = "add_keys"
	operationCreateAccount       = "create_account"
	operationAdjustBalance       = "adjust_balance"
	operationBan                 = "ban"
	operationUnban               = "unban"
	operationDeleteAccount       = "delete_account"
	operationSetRole             = "set_role"
	operationReverseEntry        = "reverse_entry"
	operationSetResellerPrice    = "set_reseller_price"
	operationRemoveResellerPrice = "remove_reseller_price"
	operationCreateProduct       = "create_product"
	operationUpdateProduct       = "update_product"
	operationSetProductActive    = "set_product_active"
	operationDeleteProduct       = "delete_product"
	operationCreatePlan          = "create_plan"
	operationUpdatePlan          = "update_plan"
	operationSetPlanActive       = "set_plan_active"
	operationDeletePlan          = "delete_plan"

	OperationStatusOK       = "ok"
	OperationStatusRejected = "rejected"
	OperationStatusError    = "error"

	// DefaultMaxPurchaseQuantity caps the keys bought in one order.
	DefaultMaxPurchaseQuantity = 10
	// DefaultListLimit applies when a listing does not specify a limit.
	DefaultListLimit = 50
	// MaxListLimit caps any listing.
	MaxListLimit = 200

	purchaseReasonPrefix = "Purchase order #"
	reversalReasonPrefix = "Reversal of entry #"
	forfeitReason        = "Balance forfeited on account deletion"
)
