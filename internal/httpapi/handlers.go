package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/keyshop/internal/command"
	"github.com/MarkoPoloResearchLab/keyshop/internal/observability"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	service    *shop.Service
	dispatcher *command.Dispatcher
	logger     *zap.Logger
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	var request sessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	displayName := request.DisplayName
	if displayName == "" {
		displayName = principal.DisplayName
	}
	account, err := handler.service.GetOrCreateAccount(ctx.Request.Context(), principal.AccountID, displayName)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": toAccountPayload(account)})
}

func (handler *httpHandler) handleListProducts(ctx *gin.Context) {
	if _, ok := handler.activeCaller(ctx); !ok {
		return
	}
	products, err := handler.service.ListProducts(ctx.Request.Context(), true)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"products": mapSlice(products, toProductPayload)})
}

func (handler *httpHandler) handleListPlans(ctx *gin.Context) {
	if _, ok := handler.activeCaller(ctx); !ok {
		return
	}
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	plans, err := handler.service.ListPlans(ctx.Request.Context(), productID, true)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"plans": mapSlice(plans, toPlanPayload)})
}

func (handler *httpHandler) handlePlanPrice(ctx *gin.Context) {
	caller, ok := handler.activeCaller(ctx)
	if !ok {
		return
	}
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	price, err := handler.service.ResolvePrice(ctx.Request.Context(), caller.ID, planID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"plan_id": planID.Int64(), "price": price.String()})
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	planID, err := shop.NewPlanID(request.PlanID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	quantity := request.Quantity
	if quantity == 0 {
		quantity = 1
	}
	receipt, err := handler.service.Purchase(ctx.Request.Context(), shop.PurchaseRequest{
		AccountID: principal.AccountID,
		PlanID:    planID,
		Quantity:  quantity,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"receipt": toReceiptPayload(receipt)})
}

func (handler *httpHandler) handleListOrders(ctx *gin.Context) {
	caller, ok := handler.activeCaller(ctx)
	if !ok {
		return
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	orders, err := handler.service.ListOrders(ctx.Request.Context(), shop.OrderFilter{AccountID: &caller.ID, Limit: limit})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": mapSlice(orders, toOrderPayload)})
}

func (handler *httpHandler) handleListKeys(ctx *gin.Context) {
	caller, ok := handler.activeCaller(ctx)
	if !ok {
		return
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	keys, err := handler.service.ListPurchasedKeys(ctx.Request.Context(), caller.ID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"keys": mapSlice(keys, toKeyPayload)})
}

func (handler *httpHandler) handleListLedger(ctx *gin.Context) {
	caller, ok := handler.activeCaller(ctx)
	if !ok {
		return
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	entries, err := handler.service.ListLedgerEntries(ctx.Request.Context(), shop.EntryFilter{AccountID: &caller.ID, Limit: limit})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance": caller.Balance.String(),
		"entries": mapSlice(entries, toEntryPayload),
	})
}

func (handler *httpHandler) handleCommand(ctx *gin.Context) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	var request commandRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	result, err := handler.dispatcher.DispatchRaw(ctx.Request.Context(), command.Caller{
		AccountID:   principal.AccountID,
		DisplayName: principal.DisplayName,
	}, request.Data)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"result": toCommandPayload(result)})
}

// activeCaller loads the caller's account, creating it on first contact, and rejects banned
// accounts. It writes the error response itself.
func (handler *httpHandler) activeCaller(ctx *gin.Context) (shop.Account, bool) {
	principal, ok := getPrincipal(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return shop.Account{}, false
	}
	account, err := handler.service.GetOrCreateAccount(ctx.Request.Context(), principal.AccountID, principal.DisplayName)
	if err != nil {
		handler.respondError(ctx, err)
		return shop.Account{}, false
	}
	if account.Banned {
		handler.respondError(ctx, shop.ErrBanned)
		return shop.Account{}, false
	}
	return account, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	mapped := mapToHTTPError(err)
	if mapped.status >= http.StatusInternalServerError {
		observability.WithContext(ctx.Request.Context(), handler.logger).Error("request failed",
			zap.String("route", ctx.FullPath()),
			zap.Error(err),
		)
	}
	ctx.JSON(mapped.status, errorResponse(mapped.code, mapped.message))
}

func (handler *httpHandler) limitQuery(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidInput, "limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}

func (handler *httpHandler) productParam(ctx *gin.Context) (shop.ProductID, bool) {
	productID, err := shop.ParseProductID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return shop.ProductID{}, false
	}
	return productID, true
}

func (handler *httpHandler) planParam(ctx *gin.Context, name string) (shop.PlanID, bool) {
	planID, err := shop.ParsePlanID(ctx.Param(name))
	if err != nil {
		handler.respondError(ctx, err)
		return shop.PlanID{}, false
	}
	return planID, true
}

func (handler *httpHandler) accountParam(ctx *gin.Context) (shop.AccountID, bool) {
	accountID, err := shop.ParseAccountID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return shop.AccountID{}, false
	}
	return accountID, true
}
