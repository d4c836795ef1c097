package service

import (
	"context"
	"database/sql"
	"encoding/json"

	"auctionhouse/internal/model"

	"gorm.io/gorm"
)

// TxRunner 抽象 *gorm.DB 的事务入口，便于测试注入
type TxRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

// OutboxStore 通知发件箱写入口
type OutboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

// enqueueNotify 把通知写进发件箱（可挂在业务事务里）
// 返回 error 由调用方决定是否吞掉：结算后的通知失败只记日志，绝不回滚结算
func enqueueNotify(ctx context.Context, store OutboxStore, tx *gorm.DB, topic, key string, payload *model.NotifyPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return store.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	})
}
