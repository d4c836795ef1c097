package model

import (
	"time"
)

// Bid 出价记录表
//
// 【重要】出价表设计原则：
// 1. 只追加，不修改，不删除 —— 既是用户可见的出价历史，也是崩溃恢复的对账依据
// 2. price 记录的是本次出价后的成交候选价（已含加价/封顶处理）
type Bid struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuctionNo string    `gorm:"type:varchar(64);index;not null" json:"auction_no"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Username  string    `gorm:"type:varchar(128)" json:"username"`
	Price     int64     `gorm:"not null" json:"price"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Bid) TableName() string {
	return "bid"
}
