package repository

import (
	"context"
	"time"

	"auctionhouse/internal/model"

	"gorm.io/gorm"
)

type BidRepository struct {
	db *gorm.DB
}

func NewBidRepository(db *gorm.DB) *BidRepository {
	return &BidRepository{db: db}
}

func (r *BidRepository) Create(ctx context.Context, tx *gorm.DB, bid *model.Bid) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(bid).Error
}

// ListByAuction 按时间顺序返回一场拍卖的全部出价
func (r *BidRepository) ListByAuction(ctx context.Context, auctionNo string) ([]*model.Bid, error) {
	var bids []*model.Bid
	err := r.db.WithContext(ctx).
		Where("auction_no = ?", auctionNo).
		Order("created_at ASC, id ASC").
		Find(&bids).Error
	return bids, err
}

func (r *BidRepository) CountByAuction(ctx context.Context, auctionNo string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Bid{}).
		Where("auction_no = ?", auctionNo).
		Count(&count).Error
	return count, err
}

// Exists 恢复对账用：按 出价人+价格+时间 判断快照里的出价是否已在库中
func (r *BidRepository) Exists(ctx context.Context, auctionNo string, userID, price int64, createdAt time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Bid{}).
		Where("auction_no = ? AND user_id = ? AND price = ? AND created_at = ?",
			auctionNo, userID, price, createdAt).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
