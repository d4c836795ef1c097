package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/service"
	"auctionhouse/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg            *config.Config
	auctionService *service.AuctionService
	bidService     *service.BidService
	balanceService *service.BalanceService
	paymentService *service.PaymentService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	eligibility := service.NewRedisEligibility(rdb, cfg.Business.EligibleSetKey)
	return &Handler{
		cfg:            cfg,
		auctionService: service.NewAuctionService(db, cfg, eligibility),
		bidService:     service.NewBidService(db, cfg, eligibility),
		balanceService: service.NewBalanceService(db),
		paymentService: service.NewPaymentService(db, cfg),
	}
}

// bizError 把服务层的类型化拒绝映射成响应码
// 预期内的业务拒绝永远走 code+message，不暴露堆栈
func bizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAuctionNotFound):
		response.BusinessError(c, response.CodeAuctionNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrNotEligible):
		response.BusinessError(c, response.CodeNotEligible, err.Error())
	case errors.Is(err, service.ErrNotAdmin), errors.Is(err, service.ErrNotOwner):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrAuctionNotActive),
		errors.Is(err, service.ErrBidStale),
		errors.Is(err, service.ErrInvalidIncrement),
		errors.Is(err, service.ErrNoBlitzPrice),
		errors.Is(err, service.ErrOwnBid),
		errors.Is(err, service.ErrHasBids):
		response.BusinessError(c, response.CodeBidRejected, err.Error())
	case errors.Is(err, service.ErrBlitzBelowStart),
		errors.Is(err, service.ErrInvalidStartPrice),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidAmount):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 拍卖相关接口
// ============================================================

// CreateAuctionRequest 发布拍卖请求
type CreateAuctionRequest struct {
	UserID      int64    `json:"user_id" binding:"required"`
	Username    string   `json:"username"`
	Description string   `json:"description" binding:"required"`
	StartPrice  int64    `json:"start_price" binding:"required,gt=0"`
	BlitzPrice  int64    `json:"blitz_price"`                            // 0 表示不设置一口价
	DurationMin int64    `json:"duration_minutes" binding:"required,gt=0"` // 拍卖时长（分钟）
	Media       []string `json:"media"`                                  // 有序媒体引用
}

// CreateAuction 发布拍卖（发布即扣 1 点）
// POST /api/v1/auction/create
func (h *Handler) CreateAuction(c *gin.Context) {
	var req CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	auction, err := h.auctionService.CreateAuction(c.Request.Context(), &service.CreateAuctionRequest{
		UserID:      req.UserID,
		Username:    req.Username,
		Description: req.Description,
		StartPrice:  req.StartPrice,
		BlitzPrice:  req.BlitzPrice,
		EndAt:       time.Now().Add(time.Duration(req.DurationMin) * time.Minute),
		Media:       req.Media,
	})
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"auction_no":    auction.AuctionNo,
		"status":        auction.Status,
		"current_price": auction.CurrentPrice,
		"end_at":        auction.EndAt,
	})
}

// BidRequest 出价请求
type BidRequest struct {
	AuctionNo string `json:"auction_no" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username"`
	Increment int64  `json:"increment" binding:"required,gt=0"` // 固定加价档位
}

// PlaceBid 固定加价出价
// POST /api/v1/auction/bid
func (h *Handler) PlaceBid(c *gin.Context) {
	var req BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome, err := h.bidService.PlaceBid(c.Request.Context(), req.AuctionNo, req.UserID, req.Username, req.Increment)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, outcome)
}

// BuyoutRequest 一口价购买请求
type BuyoutRequest struct {
	AuctionNo string `json:"auction_no" binding:"required"`
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username"`
}

// Buyout 一口价购买，立即成交
// POST /api/v1/auction/buyout
func (h *Handler) Buyout(c *gin.Context) {
	var req BuyoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome, err := h.bidService.Buyout(c.Request.Context(), req.AuctionNo, req.UserID, req.Username)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, outcome)
}

// GetAuction 查询拍卖详情（含出价历史）
// GET /api/v1/auction/detail?auction_no=xxx
func (h *Handler) GetAuction(c *gin.Context) {
	auctionNo := c.Query("auction_no")
	if auctionNo == "" {
		response.ParamError(c, "auction_no 参数不能为空")
		return
	}

	auction, err := h.auctionService.GetAuction(c.Request.Context(), auctionNo)
	if err != nil {
		bizError(c, err)
		return
	}

	bids, err := h.auctionService.GetBidHistory(c.Request.Context(), auctionNo)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"auction": auction,
		"bids":    bids,
	})
}

// ListAuctions 查询用户的拍卖列表
// GET /api/v1/auction/list?user_id=xxx&status=ACTIVE&page=1&page_size=10
func (h *Handler) ListAuctions(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	auctions, total, err := h.auctionService.ListUserAuctions(c.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      auctions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// DeleteAuction 删除尚无出价的拍卖（卖家或管理员）
// POST /api/v1/auction/delete
func (h *Handler) DeleteAuction(c *gin.Context) {
	var req struct {
		AuctionNo  string `json:"auction_no" binding:"required"`
		OperatorID int64  `json:"operator_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.auctionService.DeleteAuction(c.Request.Context(), req.AuctionNo, req.OperatorID); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "拍卖已删除"})
}

// AttachMessage 聊天端回填公示消息坐标
// POST /api/v1/auction/message
func (h *Handler) AttachMessage(c *gin.Context) {
	var req struct {
		AuctionNo string `json:"auction_no" binding:"required"`
		ChatID    int64  `json:"chat_id" binding:"required"`
		MessageID int64  `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.auctionService.AttachMessageRef(c.Request.Context(), req.AuctionNo, req.ChatID, req.MessageID); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "消息坐标已更新"})
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询用户点数余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	user, err := h.balanceService.GetAccount(c.Request.Context(), userID, c.Query("username"))
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":  user.UserID,
		"balance":  user.Balance,
		"is_admin": user.IsAdmin,
	})
}

// ListTransactions 查询点数流水
// GET /api/v1/account/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.balanceService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// AdjustBalance 管理员赠送/扣罚点数
// POST /api/v1/account/adjust
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req struct {
		OperatorID int64  `json:"operator_id" binding:"required"`
		UserID     int64  `json:"user_id" binding:"required"`
		Amount     int64  `json:"amount" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.balanceService.AdminAdjust(c.Request.Context(), req.OperatorID, req.UserID, req.Amount, req.Reason); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "调整成功"})
}

// ============================================================
// 支付回调接口
// ============================================================

// PaymentNotify 支付网关回调
// POST /payment/notify （表单编码）
//
// 【关键点】和业务接口不同，这里的 HTTP 状态码面向网关重试语义：
// 已处理/重放返回 200（网关停止重试），鉴权失败/金额不识别返回非 200
func (h *Handler) PaymentNotify(c *gin.Context) {
	amount, err := strconv.ParseInt(c.PostForm("amount"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "bad amount")
		return
	}

	notif := &service.PaymentNotification{
		OperationID: c.PostForm("operation_id"),
		Amount:      amount,
		Label:       c.PostForm("label"),
		Token:       c.PostForm("token"),
	}

	result, err := h.paymentService.HandleNotification(c.Request.Context(), notif)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentUnauthorized):
			c.String(http.StatusForbidden, "forbidden")
		case errors.Is(err, service.ErrPaymentBadLabel), errors.Is(err, service.ErrAmountNotMapped):
			c.String(http.StatusBadRequest, "rejected")
		default:
			// 基础设施错误：回 500 让网关按它的策略重试，operation_id 保证不会重复入账
			c.String(http.StatusInternalServerError, "retry later")
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
