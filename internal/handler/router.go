package handler

import (
	"leadledger/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 认证相关（无需登录）
		auth := api.Group("/auth")
		{
			auth.POST("/signup", h.SignUp)
			auth.POST("/login", h.Login)
			auth.GET("/profile", JWTAuthMiddleware(cfg), h.GetProfile)
		}

		// Stripe webhook（Stripe 服务端调用，靠签名鉴权而不是 Token）
		api.POST("/payments/webhook", h.StripeWebhook)
		// 可发布密钥是公开信息，登录前也要能拿到
		api.GET("/payments/public-key", h.StripePublicKey)

		// 需要登录的接口
		authed := api.Group("", JWTAuthMiddleware(cfg))
		{
			// 积分相关
			credits := authed.Group("/credits")
			{
				credits.GET("/balance", h.GetBalance)
				credits.POST("/use", h.UseCredits)
				credits.GET("/transactions", h.ListTransactions)
				credits.GET("/settings", h.GetSettings)
			}

			// 支付相关
			payments := authed.Group("/payments")
			{
				payments.POST("/checkout", h.CreateCheckout)
				payments.POST("/verify", h.VerifyCheckout)
				payments.GET("/orders", h.ListCheckoutOrders)
			}

			// 客源搜索相关
			prospects := authed.Group("/prospects")
			{
				prospects.POST("/search", h.Search)
				prospects.GET("/list", h.ListProspects)
				prospects.GET("/sources", h.ListSources)
			}

			searches := authed.Group("/searches")
			{
				searches.GET("/list", h.ListSearches)
				searches.GET("/detail", h.GetSearchProspects)
			}

			// 管理端接口
			admin := authed.Group("/admin", RequireAdminMiddleware())
			{
				admin.POST("/credits/add", h.AddCredits)
				admin.PUT("/settings", h.UpdateSettings)
				admin.GET("/users", h.ListUsers)
				admin.PUT("/users/role", h.UpdateRole)
				admin.GET("/accounting/platform", h.PlatformReport)
				admin.GET("/accounting/user", h.UserReport)
				admin.GET("/outbox/failed", h.ListFailedOutbox)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
