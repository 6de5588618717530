package routes

import (
	"context"
	"time"

	apperrors "checkout-service/common/errors"
	commonmw "checkout-service/common/middleware"
	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/gateways"
	"checkout-service/middleware"
	aws_pkg "checkout-service/pkg/aws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// NewRouter builds the engine with the global middleware chain. ctx bounds
// the rate limiter's cleanup goroutine.
func NewRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics aws_pkg.MetricsRecorder) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		commonmw.RequestID(),
		commonmw.RequestLogger(logger),
		apperrors.ErrorMiddleware(cfg.IsProduction()),
		commonmw.Timeout(requestTimeout),
		commonmw.SecurityHeaders(),
		commonmw.CORSMiddleware(cfg.AllowedOrigins),
		commonmw.RateLimitMiddleware(ctx, cfg.RateLimitPerMinute, cfg.RateLimitBurst),
	)
	if metrics != nil {
		r.Use(commonmw.MetricsMiddleware(metrics, cfg.ServiceName))
	}

	r.GET("/health", controllers.HealthCheck(cfg.ServiceName))
	return r
}

func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController, auth gin.HandlerFunc) {
	orders := r.Group("/orders")
	orders.Use(auth)
	{
		orders.POST("/place", oc.PlaceOrder)
		orders.GET("", oc.GetOrders)
		orders.GET("/:id", oc.GetOrderByID)
		orders.POST("/:id/cancel", oc.CancelOrder)
		orders.PUT("/:id/status", middleware.AdminOnly(), oc.UpdateOrderStatus)
	}

	admin := r.Group("/admin")
	admin.Use(auth, middleware.AdminOnly())
	admin.GET("/orders", oc.GetAllOrders)
}

func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentController, auth gin.HandlerFunc) {
	payments := r.Group("/payments")

	// called by providers, not users
	payments.POST("/phonepe/callback", pc.PhonePeCallback)
	payments.POST("/stripe/webhook", pc.StripeWebhook)

	authed := payments.Group("")
	authed.Use(auth)
	{
		authed.POST("/initiate/:orderId", pc.Initiate)
		authed.GET("/status/:orderId", pc.GetPaymentStatus)
		for _, name := range []string{gateways.NamePhonePe, gateways.NameRazorpay, gateways.NameStripe} {
			authed.POST("/"+name+"/initiate/:orderId", pc.InitiateWith(name))
		}
		authed.POST("/razorpay/verify", pc.VerifyRazorpay)
		authed.POST("/stripe/verify", pc.VerifyStripe)
	}
}
