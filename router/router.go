package router

import (
	"net/http"
	"time"

	"expensebot/api"
	"expensebot/config"
	_ "expensebot/docs"
	"expensebot/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers 路由用到的处理器
type Handlers struct {
	Webhook    *api.WebhookHandler
	Manual     *api.ManualHandler
	Expense    *api.ExpenseHandler
	Export     *api.ExportHandler
	Category   *api.CategoryHandler
	Statistics *api.StatisticsHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h Handlers, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(middleware.RequestLogger(log), gin.Recovery())
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Telegram 自带密钥校验，不走 JWT 与限流
	r.POST("/api/telegram/webhook", h.Webhook.Handle)

	// Swagger 文档
	if cfg.Server.Mode != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	if cfg.Server.RateLimit > 0 {
		v1.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))
	}
	v1.Use(middleware.JWTAuth())
	{
		categories := v1.Group("/categories")
		{
			categories.GET("", h.Category.List)
			categories.POST("", h.Category.Create)
			categories.GET("/suggest", h.Category.Suggest)
			categories.PUT("/:id", h.Category.Update)
			categories.DELETE("/:id", h.Category.Delete)
		}

		expenses := v1.Group("/expenses")
		{
			expenses.GET("", h.Expense.List)
			expenses.GET("/export", h.Export.Excel)
			expenses.POST("/manual/preview", h.Manual.Preview)
			expenses.POST("/manual/confirm", h.Manual.Confirm)
			expenses.POST("/manual/reject", h.Manual.Reject)
			expenses.GET("/:id", h.Expense.Get)
			expenses.PUT("/:id", h.Expense.Update)
			expenses.DELETE("/:id", h.Expense.Delete)
		}

		statistics := v1.Group("/statistics")
		{
			statistics.GET("/summary", h.Statistics.Summary)
			statistics.GET("/by_category", h.Statistics.ByCategory)
			statistics.GET("/by_vendor", h.Statistics.ByVendor)
			statistics.GET("/trend", h.Statistics.Trend)
		}
	}

	return r
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
