package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	unmatchedRoute  = "unmatched"
)

// requestScope assigns a request id, bounds the request with timeout and records the
// outcome in the access log and latency histogram.
func requestScope(logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		requestID := ctx.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		ctx.Header(requestIDHeader, requestID)

		requestCtx := observability.WithRequestID(ctx.Request.Context(), requestID)
		var cancel context.CancelFunc = func() {}
		if timeout > 0 {
			requestCtx, cancel = context.WithTimeout(requestCtx, timeout)
		}
		defer cancel()
		ctx.Request = ctx.Request.WithContext(requestCtx)

		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := ctx.Writer.Status()
		elapsed := time.Since(started)
		if metrics != nil {
			metrics.ObserveHTTP(route, statusClass(status), elapsed.Seconds())
		}
		observability.WithContext(requestCtx, logger).Info("http request",
			zap.String("method", ctx.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
	}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
