package model

import (
	"time"
)

const (
	AuctionStatusActive  = "ACTIVE"
	AuctionStatusSold    = "SOLD"
	AuctionStatusExpired = "EXPIRED"
	AuctionStatusDeleted = "DELETED"
)

// ACTIVE 是唯一的非终态，SOLD/EXPIRED/DELETED 都是终态，任何转换不可逆
var ValidStatusTransitions = map[string][]string{
	AuctionStatusActive: {AuctionStatusSold, AuctionStatusExpired, AuctionStatusDeleted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Auction 拍卖表
// current_price/leader 是冗余字段，权威出价历史在 bid 表里
//
// 不变量：
//  1. blitz_price > 0 时，current_price ∈ [start_price, blitz_price]
//  2. 首次出价前 current_price == start_price
//  3. current_price 在 ACTIVE 期间单调不减
type Auction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuctionNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"auction_no"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`                // 卖家ID
	Username    string    `gorm:"type:varchar(128)" json:"username"`            // 卖家展示名
	Description string    `gorm:"type:text" json:"description"`                 // 商品描述
	StartPrice  int64     `gorm:"not null" json:"start_price"`                  // 起拍价
	BlitzPrice  int64     `gorm:"not null;default:0" json:"blitz_price"`        // 一口价，0 表示未设置
	CurrentPrice int64    `gorm:"not null" json:"current_price"`                // 当前价
	LeaderID    int64     `gorm:"not null;default:0" json:"leader_id"`          // 当前领先者，0 表示无人出价
	LeaderName  string    `gorm:"type:varchar(128)" json:"leader_name"`
	EndAt       time.Time `gorm:"not null;index" json:"end_at"`                 // 截止时间（绝对时间）
	Status      string    `gorm:"type:varchar(20);index;not null" json:"status"`
	ChatID      int64     `gorm:"not null;default:0" json:"chat_id"`            // 公示消息坐标（发布后回填）
	MessageID   int64     `gorm:"not null;default:0" json:"message_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Media []AuctionMedia `gorm:"foreignKey:AuctionID;references:ID" json:"media,omitempty"`
}

func (Auction) TableName() string {
	return "auction"
}

// HasBlitzPrice 是否设置了一口价
func (a *Auction) HasBlitzPrice() bool {
	return a.BlitzPrice > 0
}

// HasLeader 是否存在真实领先者（出过价且价格高于起拍价才算成交候选）
func (a *Auction) HasLeader() bool {
	return a.LeaderID != 0 && a.CurrentPrice > a.StartPrice
}

// AuctionMedia 拍卖附件表（有序的媒体引用，file_id 由聊天平台提供）
type AuctionMedia struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuctionID int64     `gorm:"index;not null" json:"auction_id"`
	FileID    string    `gorm:"type:varchar(256);not null" json:"file_id"`
	Position  int       `gorm:"not null" json:"position"` // 展示顺序
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AuctionMedia) TableName() string {
	return "auction_media"
}
