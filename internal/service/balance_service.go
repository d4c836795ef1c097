package service

import (
	"context"
	"errors"
	"fmt"

	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"
	"auctionhouse/pkg/idgen"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotAdmin      = errors.New("需要管理员权限")
	ErrInvalidAmount = errors.New("调整点数不能为0")
)

// BalanceUserStore 余额管理需要的账户操作
type BalanceUserStore interface {
	GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, error)
	Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error
	Increase(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (int64, error)
}

// BalanceLedgerStore 流水读写口
type BalanceLedgerStore interface {
	Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error)
}

type BalanceService struct {
	db         TxRunner
	userRepo   BalanceUserStore
	ledgerRepo BalanceLedgerStore
}

func NewBalanceService(db *gorm.DB) *BalanceService {
	return &BalanceService{
		db:         db,
		userRepo:   repository.NewUserRepository(db),
		ledgerRepo: repository.NewTransactionRepository(db),
	}
}

func (s *BalanceService) GetAccount(ctx context.Context, userID int64, username string) (*model.User, error) {
	return s.userRepo.GetOrCreate(ctx, userID, username)
}

func (s *BalanceService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// AdminAdjust 管理员赠送/扣罚点数
// amount > 0 为赠送，amount < 0 为扣罚；扣罚同样受“余额不为负”条件写约束
func (s *BalanceService) AdminAdjust(ctx context.Context, operatorID, targetID int64, amount int64, reason string) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	operator, err := s.userRepo.GetOrCreate(ctx, operatorID, "")
	if err != nil {
		return err
	}
	if !operator.IsAdmin {
		return ErrNotAdmin
	}

	target, err := s.userRepo.GetOrCreate(ctx, targetID, "")
	if err != nil {
		return err
	}

	kind := model.TransactionTypeAdminGrant
	if amount < 0 {
		kind = model.TransactionTypeAdminPenalty
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var before, after int64
		if amount > 0 {
			newBalance, err := s.userRepo.Increase(ctx, tx, targetID, amount)
			if err != nil {
				return err
			}
			before, after = newBalance-amount, newBalance
		} else {
			if err := s.userRepo.Deduct(ctx, tx, targetID, -amount, target.Version); err != nil {
				return err
			}
			// 版本号匹配保证事务前读到的余额仍然有效
			before, after = target.Balance, target.Balance+amount
		}

		trans := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        targetID,
			Amount:        amount,
			Type:          kind,
			BalanceBefore: before,
			BalanceAfter:  after,
			Remark:        fmt.Sprintf("管理员调整(%d): %s", operatorID, reason),
		}
		return s.ledgerRepo.Create(ctx, tx, trans)
	})
	if err != nil {
		return err
	}

	log.Infof("[Balance] 管理员调整: operator=%d, target=%d, amount=%d", operatorID, targetID, amount)
	return nil
}
