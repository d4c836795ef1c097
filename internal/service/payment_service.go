package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"
	"auctionhouse/pkg/idgen"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 回调处理的业务拒绝
var (
	ErrPaymentUnauthorized = errors.New("回调鉴权失败")
	ErrPaymentBadLabel     = errors.New("无法解析受益人")
	ErrAmountNotMapped     = errors.New("金额不在任何充值档位内")
)

// ProcessedPaymentStore 去重表操作
type ProcessedPaymentStore interface {
	Exists(ctx context.Context, operationID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, record *model.ProcessedPayment) error
}

type PaymentService struct {
	db          TxRunner
	cfg         *config.Config
	paymentRepo ProcessedPaymentStore
	userRepo    BalanceUserStore
	ledgerRepo  LedgerStore
	outboxRepo  OutboxStore
}

func NewPaymentService(db *gorm.DB, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:          db,
		cfg:         cfg,
		paymentRepo: repository.NewProcessedPaymentRepository(db),
		userRepo:    repository.NewUserRepository(db),
		ledgerRepo:  repository.NewTransactionRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// PaymentNotification 网关回调的抽象载荷
// 具体传输格式（表单字段名、签名算法）由 handler 适配，这里只看合同字段
type PaymentNotification struct {
	OperationID string // 网关侧唯一操作ID
	Amount      int64  // 到账金额（最小货币单位，可能已扣手续费）
	Label       string // 创建支付链接时塞入的受益人引用（用户ID）
	Token       string // 共享密钥鉴权
}

// PaymentResult 处理结果
type PaymentResult struct {
	Applied bool  `json:"applied"`
	Credits int64 `json:"credits"`
}

// HandleNotification 处理一条支付回调，幂等入账
//
// 步骤（每一步都是硬前置）：
//  1. 共享密钥鉴权（常数时间比较）
//  2. operation_id 已处理过 -> 幂等返回 applied，不再入账
//  3. 解析受益人
//  4. 金额映射充值档位（含容差区间），映射不上直接拒绝，绝不按比例折算
//  5. 一个事务内：插去重记录 + 加余额 + 记流水（三者同生共死）
//  6. 通知用户（尽力而为，失败不回滚）
func (s *PaymentService) HandleNotification(ctx context.Context, notif *PaymentNotification) (*PaymentResult, error) {
	if subtle.ConstantTimeCompare([]byte(notif.Token), []byte(s.cfg.Payment.Secret)) != 1 {
		return nil, ErrPaymentUnauthorized
	}

	if notif.OperationID == "" {
		return nil, ErrPaymentBadLabel
	}
	processed, err := s.paymentRepo.Exists(ctx, notif.OperationID)
	if err != nil {
		return nil, fmt.Errorf("查询去重记录失败: %w", err)
	}
	if processed {
		log.Infof("[Payment] 重放通知，幂等返回: operationID=%s", notif.OperationID)
		return &PaymentResult{Applied: true}, nil
	}

	userID, err := strconv.ParseInt(notif.Label, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrPaymentBadLabel
	}

	tier := s.matchTier(notif.Amount)
	if tier == nil {
		// 记日志后丢弃：宁可少记点数也不要凭空折算
		log.Warnf("[Payment] 金额未命中任何档位: operationID=%s, amount=%d", notif.OperationID, notif.Amount)
		return nil, ErrAmountNotMapped
	}

	// 懒建档：保证 Increase 有行可加
	if _, err := s.userRepo.GetOrCreate(ctx, userID, ""); err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	// 流水的前后余额取自事务内 Increase 的返回值：
	// 并发入账时事务外的读数会过期，对账字段必须反映真实的账面变化
	var newBalance int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.Create(ctx, tx, &model.ProcessedPayment{
			OperationID: notif.OperationID,
			UserID:      userID,
			Amount:      notif.Amount,
			Credits:     tier.Credits,
		}); err != nil {
			return err
		}
		balance, err := s.userRepo.Increase(ctx, tx, userID, tier.Credits)
		if err != nil {
			return err
		}
		newBalance = balance
		trans := &model.CreditTransaction{
			TransactionNo: idgen.GenerateTransactionNo(),
			UserID:        userID,
			Amount:        tier.Credits,
			Type:          model.TransactionTypePaymentCredit,
			BalanceBefore: newBalance - tier.Credits,
			BalanceAfter:  newBalance,
			Remark:        fmt.Sprintf("充值-%s", notif.OperationID),
		}
		return s.ledgerRepo.Create(ctx, tx, trans)
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOperation) {
			// 并发重放：唯一索引裁决，本次按已处理返回
			log.Infof("[Payment] 并发重放被唯一索引拦截: operationID=%s", notif.OperationID)
			return &PaymentResult{Applied: true}, nil
		}
		return nil, err
	}

	// 通知失败只记日志，入账已经持久化
	if err := enqueueNotify(ctx, s.outboxRepo, nil, s.cfg.Kafka.Topic.Notification, notif.OperationID, &model.NotifyPayload{
		Kind:   model.NotifyKindUser,
		UserID: userID,
		Text:   fmt.Sprintf("充值成功，到账 %d 点，当前余额 %d 点", tier.Credits, newBalance),
	}); err != nil {
		log.Warnf("[Payment] 入账通知写入失败: operationID=%s, err=%v", notif.OperationID, err)
	}

	log.Infof("[Payment] 入账成功: operationID=%s, userID=%d, amount=%d, credits=%d",
		notif.OperationID, userID, notif.Amount, tier.Credits)

	return &PaymentResult{Applied: true, Credits: tier.Credits}, nil
}

// matchTier 金额 -> 档位映射
// 网关可能先扣手续费再回调，所以按 [amount-tolerance, amount+tolerance] 闭区间匹配
func (s *PaymentService) matchTier(amount int64) *config.CreditTier {
	for i := range s.cfg.Payment.Tiers {
		tier := &s.cfg.Payment.Tiers[i]
		if amount >= tier.Amount-tier.Tolerance && amount <= tier.Amount+tier.Tolerance {
			return tier
		}
	}
	return nil
}
