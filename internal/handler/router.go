package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 注册所有路由
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()

	r.Use(LoggerMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 支付网关回调（表单编码，状态码面向网关重试语义）
	r.POST("/payment/notify", h.PaymentNotify)

	v1 := r.Group("/api/v1")
	{
		auction := v1.Group("/auction")
		{
			auction.POST("/create", h.CreateAuction)
			auction.POST("/bid", h.PlaceBid)
			auction.POST("/buyout", h.Buyout)
			auction.POST("/delete", h.DeleteAuction)
			auction.POST("/message", h.AttachMessage)
			auction.GET("/detail", h.GetAuction)
			auction.GET("/list", h.ListAuctions)
		}

		account := v1.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.POST("/adjust", h.AdjustBalance)
		}
	}

	return r
}
