package model

import (
	"time"
)

// ProcessedPayment 已处理的支付通知表
// 以网关侧的 operation_id 作唯一键，保证同一笔外部支付至多入账一次
// 只插入，不更新：唯一索引冲突即代表重放
type ProcessedPayment struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OperationID string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"operation_id"` // 网关操作ID
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`  // 通知中的到账金额（最小货币单位）
	Credits     int64     `gorm:"not null" json:"credits"` // 映射出的点数
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProcessedPayment) TableName() string {
	return "processed_payment"
}
