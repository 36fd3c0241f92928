package httpapi

import (
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleAdminListProducts(ctx *gin.Context) {
	products, err := handler.service.ListProducts(ctx.Request.Context(), false)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"products": mapSlice(products, toProductPayload)})
}

func (handler *httpHandler) handleCreateProduct(ctx *gin.Context) {
	var request productRequest
	if !bindJSON(ctx, &request) {
		return
	}
	product, err := handler.service.CreateProduct(ctx.Request.Context(), shop.ProductInput{Name: request.Name, Description: request.Description})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"product": toProductPayload(product)})
}

func (handler *httpHandler) handleUpdateProduct(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	var request productRequest
	if !bindJSON(ctx, &request) {
		return
	}
	product, err := handler.service.UpdateProduct(ctx.Request.Context(), productID, shop.ProductInput{Name: request.Name, Description: request.Description})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"product": toProductPayload(product)})
}

func (handler *httpHandler) handleActivateProduct(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.ActivateProduct(ctx.Request.Context(), productID))
}

func (handler *httpHandler) handleDeactivateProduct(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.DeactivateProduct(ctx.Request.Context(), productID))
}

func (handler *httpHandler) handleDeleteProduct(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.DeleteProduct(ctx.Request.Context(), productID))
}

func (handler *httpHandler) handleAdminListPlans(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	plans, err := handler.service.ListPlans(ctx.Request.Context(), productID, false)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"plans": mapSlice(plans, toPlanPayload)})
}

func (handler *httpHandler) handleProductStatistics(ctx *gin.Context) {
	productID, ok := handler.productParam(ctx)
	if !ok {
		return
	}
	statistics, err := handler.service.ProductStatistics(ctx.Request.Context(), productID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": toSalesPayload(statistics)})
}

func (handler *httpHandler) handleCreatePlan(ctx *gin.Context) {
	var request planRequest
	if !bindJSON(ctx, &request) {
		return
	}
	productID, err := shop.NewProductID(request.ProductID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	basePrice, err := shop.ParsePositiveAmount(request.BasePrice)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	plan, err := handler.service.CreatePlan(ctx.Request.Context(), shop.PlanInput{
		ProductID:    productID,
		ValidityDays: request.ValidityDays,
		BasePrice:    basePrice,
		Keys:         request.Keys,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"plan": toPlanPayload(plan)})
}

func (handler *httpHandler) handleUpdatePlan(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	var request planRequest
	if !bindJSON(ctx, &request) {
		return
	}
	basePrice, err := shop.ParsePositiveAmount(request.BasePrice)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	plan, err := handler.service.UpdatePlan(ctx.Request.Context(), planID, shop.PlanUpdate{ValidityDays: request.ValidityDays, BasePrice: basePrice})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"plan": toPlanPayload(plan)})
}

func (handler *httpHandler) handleActivatePlan(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.ActivatePlan(ctx.Request.Context(), planID))
}

func (handler *httpHandler) handleDeactivatePlan(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.DeactivatePlan(ctx.Request.Context(), planID))
}

func (handler *httpHandler) handleDeletePlan(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.DeletePlan(ctx.Request.Context(), planID))
}

func (handler *httpHandler) handlePlanStatistics(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	statistics, err := handler.service.PlanStatistics(ctx.Request.Context(), planID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": toSalesPayload(statistics)})
}

func (handler *httpHandler) handleAddKeys(ctx *gin.Context) {
	planID, ok := handler.planParam(ctx, "id")
	if !ok {
		return
	}
	var request keysRequest
	if !bindJSON(ctx, &request) {
		return
	}
	inserted, err := handler.service.AddKeys(ctx.Request.Context(), planID, request.Keys)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"inserted": inserted})
}

func (handler *httpHandler) handleAdminListKeys(ctx *gin.Context) {
	filter := shop.KeyFilter{}
	if raw := ctx.Query("plan_id"); raw != "" {
		planID, err := shop.ParsePlanID(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.PlanID = &planID
	}
	if raw := ctx.Query("used"); raw != "" {
		used, err := strconv.ParseBool(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidInput, "used must be a boolean"))
			return
		}
		filter.Used = &used
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	filter.Limit = limit
	keys, err := handler.service.ListKeys(ctx.Request.Context(), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"keys": mapSlice(keys, toKeyPayload)})
}

func (handler *httpHandler) handleDeleteKey(ctx *gin.Context) {
	keyID, err := shop.ParseKeyID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	_, err = handler.service.ReleaseKey(ctx.Request.Context(), keyID)
	handler.respondStatus(ctx, err)
}

func (handler *httpHandler) handleListAccounts(ctx *gin.Context) {
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	bannedOnly, _ := strconv.ParseBool(ctx.Query("banned"))
	accounts, err := handler.service.ListAccounts(ctx.Request.Context(), shop.AccountFilter{
		Search:     ctx.Query("search"),
		BannedOnly: bannedOnly,
		Limit:      limit,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"accounts": mapSlice(accounts, toAccountPayload)})
}

func (handler *httpHandler) handleGetAccount(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	account, err := handler.service.GetAccount(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	orders, err := handler.service.ListOrders(ctx.Request.Context(), shop.OrderFilter{AccountID: &accountID})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account": toAccountPayload(account),
		"orders":  mapSlice(orders, toOrderPayload),
	})
}

func (handler *httpHandler) handleAdjustBalance(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	var request balanceRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := shop.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	principal, _ := getPrincipal(ctx)
	entry, err := handler.service.AdjustBalance(ctx.Request.Context(), shop.BalanceAdjustment{
		AccountID:     accountID,
		Amount:        amount,
		AdminID:       principal.AccountID,
		Reason:        request.Reason,
		AllowNegative: request.AllowNegative,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": toEntryPayload(entry)})
}

func (handler *httpHandler) handleBan(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	var request reasonRequest
	if !bindOptionalJSON(ctx, &request) {
		return
	}
	principal, _ := getPrincipal(ctx)
	handler.respondStatus(ctx, handler.service.Ban(ctx.Request.Context(), accountID, request.Reason, principal.AccountID))
}

func (handler *httpHandler) handleUnban(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	principal, _ := getPrincipal(ctx)
	handler.respondStatus(ctx, handler.service.Unban(ctx.Request.Context(), accountID, principal.AccountID))
}

func (handler *httpHandler) handleDeleteAccount(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	principal, _ := getPrincipal(ctx)
	handler.respondStatus(ctx, handler.service.DeleteAccount(ctx.Request.Context(), accountID, principal.AccountID))
}

func (handler *httpHandler) handleSetRole(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	var request roleRequest
	if !bindJSON(ctx, &request) {
		return
	}
	role, err := shop.ParseRole(request.Role)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondStatus(ctx, handler.service.SetRole(ctx.Request.Context(), accountID, role))
}

func (handler *httpHandler) handleReconcile(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	reconciliation, err := handler.service.Reconcile(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reconciliation": reconciliationPayload{
		AccountID:  reconciliation.AccountID.Int64(),
		Balance:    reconciliation.Balance.String(),
		LedgerSum:  reconciliation.LedgerSum.String(),
		Consistent: reconciliation.Consistent(),
	}})
}

func (handler *httpHandler) handleListResellerPrices(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	prices, err := handler.service.ListResellerPrices(ctx.Request.Context(), accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"prices": mapSlice(prices, toResellerPricePayload)})
}

func (handler *httpHandler) handleSetResellerPrice(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	planID, ok := handler.planParam(ctx, "plan")
	if !ok {
		return
	}
	var request priceRequest
	if !bindJSON(ctx, &request) {
		return
	}
	price, err := shop.ParsePositiveAmount(request.Price)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondStatus(ctx, handler.service.SetResellerPrice(ctx.Request.Context(), accountID, planID, price))
}

func (handler *httpHandler) handleRemoveResellerPrice(ctx *gin.Context) {
	accountID, ok := handler.accountParam(ctx)
	if !ok {
		return
	}
	planID, ok := handler.planParam(ctx, "plan")
	if !ok {
		return
	}
	handler.respondStatus(ctx, handler.service.RemoveResellerPrice(ctx.Request.Context(), accountID, planID))
}

func (handler *httpHandler) handleAdminListLedger(ctx *gin.Context) {
	filter := shop.EntryFilter{}
	if raw := ctx.Query("account_id"); raw != "" {
		accountID, err := shop.ParseAccountID(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.AccountID = &accountID
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	filter.Limit = limit
	entries, err := handler.service.ListLedgerEntries(ctx.Request.Context(), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": mapSlice(entries, toEntryPayload)})
}

func (handler *httpHandler) handleReverseEntry(ctx *gin.Context) {
	entryID, err := shop.ParseEntryID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request reasonRequest
	if !bindOptionalJSON(ctx, &request) {
		return
	}
	principal, _ := getPrincipal(ctx)
	reversal, err := handler.service.ReverseEntry(ctx.Request.Context(), entryID, principal.AccountID, request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry": toEntryPayload(reversal)})
}

func (handler *httpHandler) handleAdminListOrders(ctx *gin.Context) {
	filter := shop.OrderFilter{}
	if raw := ctx.Query("account_id"); raw != "" {
		accountID, err := shop.ParseAccountID(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.AccountID = &accountID
	}
	if raw := ctx.Query("plan_id"); raw != "" {
		planID, err := shop.ParsePlanID(raw)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.PlanID = &planID
	}
	limit, ok := handler.limitQuery(ctx)
	if !ok {
		return
	}
	filter.Limit = limit
	orders, err := handler.service.ListOrders(ctx.Request.Context(), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": mapSlice(orders, toOrderPayload)})
}

func (handler *httpHandler) handleStatistics(ctx *gin.Context) {
	statistics, err := handler.service.Statistics(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": toStatisticsPayload(statistics)})
}

func (handler *httpHandler) respondStatus(ctx *gin.Context, err error) {
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

func bindOptionalJSON(ctx *gin.Context, target any) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(ctx, target)
}
