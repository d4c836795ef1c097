package repository

import (
	"context"
	"errors"
	"strings"

	"auctionhouse/internal/model"

	"gorm.io/gorm"
)

var ErrDuplicateOperation = errors.New("支付通知已处理过")

type ProcessedPaymentRepository struct {
	db *gorm.DB
}

func NewProcessedPaymentRepository(db *gorm.DB) *ProcessedPaymentRepository {
	return &ProcessedPaymentRepository{db: db}
}

// Exists 查询某个网关操作ID是否已入账
func (r *ProcessedPaymentRepository) Exists(ctx context.Context, operationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ProcessedPayment{}).
		Where("operation_id = ?", operationID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create 插入去重记录
//
// 【关键点】真正的防重放靠的是 operation_id 上的唯一索引，而不是先查后插：
// 同一通知并发到达时，两个事务都可能通过 Exists 检查，
// 但唯一索引保证只有一个 INSERT 提交成功，输家拿到 ErrDuplicateOperation 整体回滚
func (r *ProcessedPaymentRepository) Create(ctx context.Context, tx *gorm.DB, record *model.ProcessedPayment) error {
	if tx == nil {
		tx = r.db
	}

	err := tx.WithContext(ctx).Create(record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicateOperation
		}
		return err
	}
	return nil
}
