package repository

import (
	"context"
	"errors"

	"auctionhouse/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrBalanceNotEnough = errors.New("点数不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUserID(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetOrCreate 懒创建账户：首次交互时落库，余额从 0 开始
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, error) {
	user, err := r.GetByUserID(ctx, userID)
	if err == nil {
		// 展示名可能变化，顺手刷新
		if username != "" && user.Username != username {
			_ = r.db.WithContext(ctx).Model(&model.User{}).
				Where("user_id = ?", userID).
				Update("username", username).Error
			user.Username = username
		}
		return user, nil
	}

	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		UserID:   userID,
		Username: username,
		Balance:  0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newUser).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Deduct 条件扣减点数
//
// 【关键点】余额校验必须放进 WHERE 条件里（balance >= ? AND version = ?），
// 而不是先读后写：两个处理流程可能在持久化往返之间交错，
// 只有条件写能保证非管理员余额永不为负
func (r *UserRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ? AND balance >= ? AND version = ?", userID, amount, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		user, err := r.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

// Increase 增加点数（入账不需要余额前置条件），返回入账后的余额
//
// 新余额必须在同一个事务里读回来：流水的 balance_before/after 要和
// 真实的账面变化对得上，用事务外的读数会被并发入账打乱
func (r *UserRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}

	var user model.User
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error; err != nil {
		return 0, err
	}

	return user.Balance, nil
}
