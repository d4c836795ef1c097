package repository

import (
	"context"
	"errors"
	"time"

	"auctionhouse/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAuctionNotFound      = errors.New("拍卖不存在")
	ErrAuctionStatusInvalid = errors.New("拍卖状态不合法")
	ErrBidConflict          = errors.New("出价冲突，价格已变化")
)

type AuctionRepository struct {
	db *gorm.DB
}

func NewAuctionRepository(db *gorm.DB) *AuctionRepository {
	return &AuctionRepository{db: db}
}

func (r *AuctionRepository) Create(ctx context.Context, tx *gorm.DB, auction *model.Auction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(auction).Error
}

func (r *AuctionRepository) GetByAuctionNo(ctx context.Context, auctionNo string) (*model.Auction, error) {
	var auction model.Auction
	err := r.db.WithContext(ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("auction_no = ?", auctionNo).
		First(&auction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

// UpdateStatus 条件状态转换
//
// 【关键点】WHERE 带上 fromStatus，状态翻转本身就是“只结算一次”的闸门：
// 两个扫描周期（或扫描与一口价）竞争同一行时，只有赢下这次条件更新的一方
// 继续做后续通知，输家看到 RowsAffected == 0 直接跳过
func (r *AuctionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, auctionNo string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrAuctionStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ? AND status = ?", auctionNo, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAuctionStatusInvalid
	}

	return nil
}

// ApplyBid 条件写入新价与领先者
// WHERE 同时带上期望的当前价：并发的第二笔出价必须基于已提交的新价重新仲裁，
// 读旧价的写入在这里失败（ErrBidConflict），绝不会覆盖别人赢下的价格
func (r *AuctionRepository) ApplyBid(ctx context.Context, tx *gorm.DB, auctionNo string, expectedPrice, newPrice int64, leaderID int64, leaderName string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ? AND status = ? AND current_price = ?",
			auctionNo, model.AuctionStatusActive, expectedPrice).
		Updates(map[string]interface{}{
			"current_price": newPrice,
			"leader_id":     leaderID,
			"leader_name":   leaderName,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBidConflict
	}

	return nil
}

// ApplyBuyout 一口价成交：直接置为 SOLD，价格锁定为 blitz_price
// 条件：仍是 ACTIVE 且设置了一口价。与到期扫描竞争时同样由本条件写裁决
func (r *AuctionRepository) ApplyBuyout(ctx context.Context, tx *gorm.DB, auctionNo string, buyerID int64, buyerName string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ? AND status = ? AND blitz_price > 0",
			auctionNo, model.AuctionStatusActive).
		Updates(map[string]interface{}{
			"status":        model.AuctionStatusSold,
			"current_price": gorm.Expr("blitz_price"),
			"leader_id":     buyerID,
			"leader_name":   buyerName,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAuctionStatusInvalid
	}

	return nil
}

// FinalizeExpired 到期结算专用的条件状态翻转
//
// 【关键点】WHERE 除了 status 还要带上扫描时读到的当前价：
// 结算结果（成交/流拍）是基于扫描快照算出来的，扫描之后、翻转之前
// 插进来的出价会改变应得的结果。价格对不上说明快照已过期，
// 这次条件写落空，该场留到下一个周期按新的领先者重新结算
func (r *AuctionRepository) FinalizeExpired(ctx context.Context, auctionNo string, expectedPrice int64, toStatus string) error {
	if !model.CanTransitionTo(model.AuctionStatusActive, toStatus) {
		return ErrAuctionStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ? AND status = ? AND current_price = ?",
			auctionNo, model.AuctionStatusActive, expectedPrice).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAuctionStatusInvalid
	}

	return nil
}

// GetExpiredAuctions 查询已到期但仍是 ACTIVE 的拍卖
func (r *AuctionRepository) GetExpiredAuctions(ctx context.Context, limit int) ([]*model.Auction, error) {
	var auctions []*model.Auction
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_at <= ?", model.AuctionStatusActive, time.Now()).
		Limit(limit).
		Find(&auctions).Error
	return auctions, err
}

// GetActiveAuctions 查询全部进行中的拍卖（快照用）
func (r *AuctionRepository) GetActiveAuctions(ctx context.Context) ([]*model.Auction, error) {
	var auctions []*model.Auction
	err := r.db.WithContext(ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("status = ?", model.AuctionStatusActive).
		Order("created_at ASC").
		Find(&auctions).Error
	return auctions, err
}

func (r *AuctionRepository) ListByUserID(ctx context.Context, userID int64, status string, page, pageSize int) ([]*model.Auction, int64, error) {
	var auctions []*model.Auction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Auction{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&auctions).Error

	return auctions, total, err
}

// UpdateMessageRef 回填公示消息坐标（聊天端发布成功后回调）
func (r *AuctionRepository) UpdateMessageRef(ctx context.Context, auctionNo string, chatID, messageID int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ?", auctionNo).
		Updates(map[string]interface{}{
			"chat_id":    chatID,
			"message_id": messageID,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// ForceActive 恢复流程专用：把漂移的行强制拉回快照里的 ACTIVE 状态
// 这是整个仓库里唯一允许绕过状态机的写入，只在启动恢复时调用
func (r *AuctionRepository) ForceActive(ctx context.Context, auctionNo string, currentPrice int64, leaderID int64, leaderName string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Auction{}).
		Where("auction_no = ?", auctionNo).
		Updates(map[string]interface{}{
			"status":        model.AuctionStatusActive,
			"current_price": currentPrice,
			"leader_id":     leaderID,
			"leader_name":   leaderName,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAuctionNotFound
	}
	return nil
}
