package handlers

import (
	"net/http"
	"time"

	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	AllowedOrigins []string
	LoginLimit     int
	LoginWindow    time.Duration
}

type Handlers struct {
	Auth     *AuthHandler
	Purchase *PurchaseHandler
	Lesson   *LessonHandler
	Admin    *AdminHandler
}

func NewRouter(h Handlers, authenticator middleware.Authenticator, limiter *middleware.RateLimiter, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log))

	config := cors.DefaultConfig()
	config.AllowOrigins = cfg.AllowedOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	config.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", middleware.RequestIDHeader}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRequired := middleware.AuthMiddleware(authenticator)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", limiter.Limit("login", cfg.LoginLimit, cfg.LoginWindow), h.Auth.Login)
			auth.POST("/logout", h.Auth.Logout)
			auth.GET("/me", authRequired, h.Auth.Me)
		}

		api.POST("/payments/webhooks/:provider", h.Purchase.Webhook)

		purchases := api.Group("/purchases")
		purchases.Use(authRequired)
		{
			purchases.POST("", h.Purchase.Checkout)
			purchases.GET("", h.Purchase.List)
			purchases.POST("/verify", h.Purchase.Verify)
			purchases.GET("/:ref", h.Purchase.Status)
		}

		lessons := api.Group("/lessons")
		lessons.Use(authRequired)
		{
			lessons.GET("/:id/access-token", h.Lesson.AccessToken)
			lessons.POST("/:id/progress", h.Lesson.Progress)
		}

		admin := api.Group("/admin")
		admin.Use(authRequired, middleware.RequireRole(domain.RoleAdmin))
		{
			admin.PUT("/settings/registration", h.Admin.SetRegistration)
			admin.PUT("/users/:id/active", h.Admin.SetUserActive)
			admin.POST("/purchases/:ref/confirm", h.Admin.ConfirmPurchase)
		}
	}

	return r
}
