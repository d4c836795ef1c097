package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 通知发件箱表
// 通知（开拍/成交/流拍/到账等）先与业务写入同一个事务落库，
// 再由后台任务异步投递到 Kafka，由聊天端消费后推送给用户。
// 状态流转失败只影响通知，绝不回滚业务，也绝不触发二次结算
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// 通知种类（payload 中的 kind 字段）
const (
	NotifyKindUser      = "USER_MESSAGE"      // 私聊通知某个用户
	NotifyKindEdit      = "LISTING_EDIT"      // 编辑公示消息（撤掉按钮、展示终态文案）
	NotifyKindRepublish = "LISTING_REPUBLISH" // 公示消息丢失，要求聊天端重新发布
)

// NotifyPayload 投递给聊天端的通知载荷
type NotifyPayload struct {
	Kind      string `json:"kind"`
	UserID    int64  `json:"user_id,omitempty"`    // kind=USER_MESSAGE 时的接收者
	Text      string `json:"text,omitempty"`       // 展示文案
	AuctionNo string `json:"auction_no,omitempty"` // “跳转到拍卖”引用
	ChatID    int64  `json:"chat_id,omitempty"`    // kind=LISTING_EDIT 时的消息坐标
	MessageID int64  `json:"message_id,omitempty"`
}
