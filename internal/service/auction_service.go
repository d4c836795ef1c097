package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"
	"auctionhouse/pkg/idgen"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrBlitzBelowStart  = errors.New("一口价不能低于起拍价")
	ErrInvalidStartPrice = errors.New("起拍价必须大于0")
	ErrInvalidDuration  = errors.New("截止时间必须晚于当前时间")
	ErrNotOwner         = errors.New("只有卖家或管理员可以操作")
	ErrHasBids          = errors.New("已有出价，无法删除")
)

// AuctionStore 发布/管理路径需要的拍卖存储操作
type AuctionStore interface {
	Create(ctx context.Context, tx *gorm.DB, auction *model.Auction) error
	GetByAuctionNo(ctx context.Context, auctionNo string) (*model.Auction, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, auctionNo string, fromStatus, toStatus string) error
	ListByUserID(ctx context.Context, userID int64, status string, page, pageSize int) ([]*model.Auction, int64, error)
	UpdateMessageRef(ctx context.Context, auctionNo string, chatID, messageID int64) error
}

// UserStore 账户存储操作（发布扣费用）
type UserStore interface {
	GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, error)
	Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64, version int) error
}

// LedgerStore 点数流水写入口
type LedgerStore interface {
	Create(ctx context.Context, tx *gorm.DB, trans *model.CreditTransaction) error
}

// BidHistoryStore 出价历史读取口
type BidHistoryStore interface {
	ListByAuction(ctx context.Context, auctionNo string) ([]*model.Bid, error)
	CountByAuction(ctx context.Context, auctionNo string) (int64, error)
}

type AuctionService struct {
	db          TxRunner
	cfg         *config.Config
	auctionRepo AuctionStore
	userRepo    UserStore
	ledgerRepo  LedgerStore
	bidRepo     BidHistoryStore
	outboxRepo  OutboxStore
	eligibility EligibilityChecker
}

func NewAuctionService(db *gorm.DB, cfg *config.Config, eligibility EligibilityChecker) *AuctionService {
	return &AuctionService{
		db:          db,
		cfg:         cfg,
		auctionRepo: repository.NewAuctionRepository(db),
		userRepo:    repository.NewUserRepository(db),
		ledgerRepo:  repository.NewTransactionRepository(db),
		bidRepo:     repository.NewBidRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		eligibility: eligibility,
	}
}

type CreateAuctionRequest struct {
	UserID      int64
	Username    string
	Description string
	StartPrice  int64
	BlitzPrice  int64 // 0 表示不设置一口价
	EndAt       time.Time
	Media       []string // 有序的媒体引用
}

// CreateAuction 发布拍卖
//
// 发布即扣费：非管理员扣 1 点（条件写保证余额不为负），
// 扣费、流水、拍卖行、媒体引用在同一个事务里落库 ——
// 不存在“扣了费却没有拍卖”或“有拍卖却没扣费”的中间态
func (s *AuctionService) CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*model.Auction, error) {
	if req.StartPrice <= 0 {
		return nil, ErrInvalidStartPrice
	}
	// 不变量：一口价要么不设，要么 >= 起拍价，在入口处挡掉
	if req.BlitzPrice != 0 && req.BlitzPrice < req.StartPrice {
		return nil, ErrBlitzBelowStart
	}
	if !req.EndAt.After(time.Now()) {
		return nil, ErrInvalidDuration
	}
	if !s.eligibility.IsEligible(ctx, req.UserID) {
		return nil, ErrNotEligible
	}

	user, err := s.userRepo.GetOrCreate(ctx, req.UserID, req.Username)
	if err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	fee := s.cfg.Business.ListingFee
	if !user.IsAdmin && user.Balance < fee {
		return nil, repository.ErrBalanceNotEnough
	}

	auction := &model.Auction{
		AuctionNo:    idgen.GenerateAuctionNo(),
		UserID:       req.UserID,
		Username:     req.Username,
		Description:  req.Description,
		StartPrice:   req.StartPrice,
		BlitzPrice:   req.BlitzPrice,
		CurrentPrice: req.StartPrice, // 首次出价前当前价 == 起拍价
		EndAt:        req.EndAt,
		Status:       model.AuctionStatusActive,
	}
	for i, fileID := range req.Media {
		auction.Media = append(auction.Media, model.AuctionMedia{
			FileID:   fileID,
			Position: i,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 管理员余额视作无限，不扣费也不记流水
		if !user.IsAdmin {
			if err := s.userRepo.Deduct(ctx, tx, req.UserID, fee, user.Version); err != nil {
				return err
			}
			trans := &model.CreditTransaction{
				TransactionNo: idgen.GenerateTransactionNo(),
				UserID:        req.UserID,
				Amount:        -fee,
				Type:          model.TransactionTypeListingFee,
				BalanceBefore: user.Balance,
				BalanceAfter:  user.Balance - fee,
				Remark:        fmt.Sprintf("发布拍卖-%s", auction.AuctionNo),
			}
			if err := s.ledgerRepo.Create(ctx, tx, trans); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}

		if err := s.auctionRepo.Create(ctx, tx, auction); err != nil {
			return fmt.Errorf("创建拍卖失败: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	log.Infof("[Auction] 发布成功: auctionNo=%s, userID=%d, start=%d, blitz=%d",
		auction.AuctionNo, req.UserID, req.StartPrice, req.BlitzPrice)

	return auction, nil
}

func (s *AuctionService) GetAuction(ctx context.Context, auctionNo string) (*model.Auction, error) {
	return s.auctionRepo.GetByAuctionNo(ctx, auctionNo)
}

func (s *AuctionService) GetBidHistory(ctx context.Context, auctionNo string) ([]*model.Bid, error) {
	return s.bidRepo.ListByAuction(ctx, auctionNo)
}

func (s *AuctionService) ListUserAuctions(ctx context.Context, userID int64, status string, page, pageSize int) ([]*model.Auction, int64, error) {
	return s.auctionRepo.ListByUserID(ctx, userID, status, page, pageSize)
}

// AttachMessageRef 聊天端发布公示消息后回填坐标
func (s *AuctionService) AttachMessageRef(ctx context.Context, auctionNo string, chatID, messageID int64) error {
	return s.auctionRepo.UpdateMessageRef(ctx, auctionNo, chatID, messageID)
}

// DeleteAuction 卖家或管理员删除尚无出价的拍卖
//
// 有无出价的检查是尽力而为的：检查和状态翻转之间可能插进一笔出价，
// 但 ACTIVE->DELETED 的条件写保证删除之后不会再有出价落到这一行上
func (s *AuctionService) DeleteAuction(ctx context.Context, auctionNo string, operatorID int64) error {
	auction, err := s.auctionRepo.GetByAuctionNo(ctx, auctionNo)
	if err != nil {
		return err
	}

	if auction.UserID != operatorID {
		operator, err := s.userRepo.GetOrCreate(ctx, operatorID, "")
		if err != nil {
			return err
		}
		if !operator.IsAdmin {
			return ErrNotOwner
		}
	}

	count, err := s.bidRepo.CountByAuction(ctx, auctionNo)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrHasBids
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.auctionRepo.UpdateStatus(ctx, tx, auctionNo, model.AuctionStatusActive, model.AuctionStatusDeleted); err != nil {
			return err
		}
		if auction.ChatID != 0 && auction.MessageID != 0 {
			if err := enqueueNotify(ctx, s.outboxRepo, tx, s.cfg.Kafka.Topic.Notification, auctionNo, &model.NotifyPayload{
				Kind:      model.NotifyKindEdit,
				AuctionNo: auctionNo,
				ChatID:    auction.ChatID,
				MessageID: auction.MessageID,
				Text:      "该拍卖已被删除",
			}); err != nil {
				log.Warnf("[Auction] 删除通知写入失败: auctionNo=%s, err=%v", auctionNo, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("[Auction] 已删除: auctionNo=%s, operatorID=%d", auctionNo, operatorID)
	return nil
}
