// Package httpapi exposes the shop service over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/command"
	"github.com/MarkoPoloResearchLab/keyshop/internal/observability"
	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	shutdownTimeout          = 5 * time.Second
	defaultSessionCookieName = "app_session"
)

// Options configures the router.
type Options struct {
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	SessionCookieName string
}

// Dependencies are the collaborators shared by every handler. Sessions, Metrics and
// Gatherer may be nil.
type Dependencies struct {
	Service    *shop.Service
	Dispatcher *command.Dispatcher
	Tokens     *TokenIssuer
	Sessions   *sessionvalidator.Validator
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(options Options, dependencies Dependencies) (*gin.Engine, error) {
	if dependencies.Service == nil {
		return nil, fmt.Errorf("service dependency is nil")
	}
	if dependencies.Tokens == nil {
		return nil, fmt.Errorf("token issuer dependency is nil")
	}
	dispatcher := dependencies.Dispatcher
	if dispatcher == nil {
		created, err := command.NewDispatcher(dependencies.Service)
		if err != nil {
			return nil, err
		}
		dispatcher = created
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		service:    dependencies.Service,
		dispatcher: dispatcher,
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestScope(logger, dependencies.Metrics, options.RequestTimeout))
	if len(options.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     options.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if dependencies.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dependencies.Gatherer, promhttp.HandlerOpts{})))
	}

	cookieName := options.SessionCookieName
	if cookieName == "" {
		cookieName = defaultSessionCookieName
	}
	api := router.Group("/api")
	api.Use(sessionMiddleware(dependencies.Sessions, cookieName), authenticate(dependencies.Tokens))
	api.POST("/session", handler.handleSession)
	api.GET("/products", handler.handleListProducts)
	api.GET("/products/:id/plans", handler.handleListPlans)
	api.GET("/plans/:id/price", handler.handlePlanPrice)
	api.POST("/purchases", handler.handlePurchase)
	api.GET("/orders", handler.handleListOrders)
	api.GET("/keys", handler.handleListKeys)
	api.GET("/ledger", handler.handleListLedger)
	api.POST("/commands", handler.handleCommand)

	admin := api.Group("/admin")
	admin.Use(handler.requireAdmin())
	admin.GET("/products", handler.handleAdminListProducts)
	admin.POST("/products", handler.handleCreateProduct)
	admin.PUT("/products/:id", handler.handleUpdateProduct)
	admin.POST("/products/:id/activate", handler.handleActivateProduct)
	admin.POST("/products/:id/deactivate", handler.handleDeactivateProduct)
	admin.DELETE("/products/:id", handler.handleDeleteProduct)
	admin.GET("/products/:id/plans", handler.handleAdminListPlans)
	admin.GET("/products/:id/statistics", handler.handleProductStatistics)
	admin.POST("/plans", handler.handleCreatePlan)
	admin.PUT("/plans/:id", handler.handleUpdatePlan)
	admin.POST("/plans/:id/activate", handler.handleActivatePlan)
	admin.POST("/plans/:id/deactivate", handler.handleDeactivatePlan)
	admin.DELETE("/plans/:id", handler.handleDeletePlan)
	admin.GET("/plans/:id/statistics", handler.handlePlanStatistics)
	admin.POST("/plans/:id/keys", handler.handleAddKeys)
	admin.GET("/keys", handler.handleAdminListKeys)
	admin.DELETE("/keys/:id", handler.handleDeleteKey)
	admin.GET("/accounts", handler.handleListAccounts)
	admin.GET("/accounts/:id", handler.handleGetAccount)
	admin.POST("/accounts/:id/balance", handler.handleAdjustBalance)
	admin.POST("/accounts/:id/ban", handler.handleBan)
	admin.POST("/accounts/:id/unban", handler.handleUnban)
	admin.DELETE("/accounts/:id", handler.handleDeleteAccount)
	admin.PUT("/accounts/:id/role", handler.handleSetRole)
	admin.GET("/accounts/:id/reconcile", handler.handleReconcile)
	admin.GET("/accounts/:id/prices", handler.handleListResellerPrices)
	admin.PUT("/accounts/:id/prices/:plan", handler.handleSetResellerPrice)
	admin.DELETE("/accounts/:id/prices/:plan", handler.handleRemoveResellerPrice)
	admin.GET("/ledger", handler.handleAdminListLedger)
	admin.POST("/ledger/:id/reverse", handler.handleReverseEntry)
	admin.GET("/orders", handler.handleAdminListOrders)
	admin.GET("/statistics", handler.handleStatistics)

	return router, nil
}

// Run serves handler on listenAddr until ctx is cancelled.
func Run(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("keyshopd listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
