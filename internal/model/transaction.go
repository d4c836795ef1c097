package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeListingFee    = "LISTING_FEE"    // 发布扣费
	TransactionTypeAdminGrant    = "ADMIN_GRANT"    // 管理员赠送
	TransactionTypeAdminPenalty  = "ADMIN_PENALTY"  // 管理员扣罚
	TransactionTypePaymentCredit = "PAYMENT_CREDIT" // 支付网关充值
)

// ============================================================================
// 账户流水实体
// ============================================================================

// CreditTransaction 点数流水表
// 记录账户的每一笔点数变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 余额字段本身是权威值，流水用于审计
type CreditTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Amount        int64     `gorm:"not null" json:"amount"`                // 点数变动（正数入账，负数出账）
	Type          string    `gorm:"type:varchar(32);not null" json:"type"` // 交易类型
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`        // 交易前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`         // 交易后余额
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`       // 备注
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
