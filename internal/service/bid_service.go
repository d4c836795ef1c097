package service

import (
	"context"
	"errors"
	"fmt"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BidAuctionStore 出价路径需要的拍卖存储操作
type BidAuctionStore interface {
	GetByAuctionNo(ctx context.Context, auctionNo string) (*model.Auction, error)
	ApplyBid(ctx context.Context, tx *gorm.DB, auctionNo string, expectedPrice, newPrice int64, leaderID int64, leaderName string) error
	ApplyBuyout(ctx context.Context, tx *gorm.DB, auctionNo string, buyerID int64, buyerName string) error
}

// BidStore 出价流水写入口
type BidStore interface {
	Create(ctx context.Context, tx *gorm.DB, bid *model.Bid) error
}

type BidService struct {
	db          TxRunner
	cfg         *config.Config
	auctionRepo BidAuctionStore
	bidRepo     BidStore
	outboxRepo  OutboxStore
	eligibility EligibilityChecker
}

func NewBidService(db *gorm.DB, cfg *config.Config, eligibility EligibilityChecker) *BidService {
	return &BidService{
		db:          db,
		cfg:         cfg,
		auctionRepo: repository.NewAuctionRepository(db),
		bidRepo:     repository.NewBidRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		eligibility: eligibility,
	}
}

// BidOutcome 一次被接受的出价/一口价结果
type BidOutcome struct {
	AuctionNo string `json:"auction_no"`
	Price     int64  `json:"price"`  // 新的当前价（一口价时即成交价）
	Status    string `json:"status"` // 出价后拍卖状态
	LeaderID  int64  `json:"leader_id"`
}

// PlaceBid 固定加价出价
//
// 【关键点】读-算-条件写：这里读到的价格只是仲裁输入，
// ApplyBid 的 WHERE current_price = 读到的价 才是最终裁决。
// 两笔并发出价交错时，后提交的一方在条件写处失败并收到“价格已变化”，
// 绝不会基于丢失的旧价覆盖别人的出价
func (s *BidService) PlaceBid(ctx context.Context, auctionNo string, userID int64, username string, increment int64) (*BidOutcome, error) {
	if !s.eligibility.IsEligible(ctx, userID) {
		return nil, ErrNotEligible
	}

	auction, err := s.auctionRepo.GetByAuctionNo(ctx, auctionNo)
	if err != nil {
		return nil, err
	}
	if auction.UserID == userID {
		return nil, ErrOwnBid
	}

	newPrice, err := ArbitrateBid(auction, increment, s.cfg.Business.BidIncrements)
	if err != nil {
		return nil, err
	}

	bid := &model.Bid{
		AuctionNo: auctionNo,
		UserID:    userID,
		Username:  username,
		Price:     newPrice,
	}

	// 价格更新和出价流水必须同生共死
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.auctionRepo.ApplyBid(ctx, tx, auctionNo, auction.CurrentPrice, newPrice, userID, username); err != nil {
			return err
		}
		if err := s.bidRepo.Create(ctx, tx, bid); err != nil {
			return fmt.Errorf("记录出价失败: %w", err)
		}
		// 刷新公示消息上的当前价（聊天端消费后编辑消息）
		// 通知失败只记日志，不回滚已赢下的出价
		if auction.ChatID != 0 && auction.MessageID != 0 {
			if err := enqueueNotify(ctx, s.outboxRepo, tx, s.cfg.Kafka.Topic.Notification, auctionNo, &model.NotifyPayload{
				Kind:      model.NotifyKindEdit,
				AuctionNo: auctionNo,
				ChatID:    auction.ChatID,
				MessageID: auction.MessageID,
				Text:      fmt.Sprintf("当前价 %d，领先者 %s", newPrice, username),
			}); err != nil {
				log.Warnf("[Bid] 通知写入失败: auctionNo=%s, err=%v", auctionNo, err)
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrBidConflict) {
			// 输掉条件写 == 基于过期价格出价，按规则拒绝
			return nil, ErrBidStale
		}
		return nil, err
	}

	log.Infof("[Bid] 出价成功: auctionNo=%s, userID=%d, price=%d", auctionNo, userID, newPrice)

	return &BidOutcome{
		AuctionNo: auctionNo,
		Price:     newPrice,
		Status:    model.AuctionStatusActive,
		LeaderID:  userID,
	}, nil
}

// Buyout 显式一口价购买，立即成交并结束拍卖
func (s *BidService) Buyout(ctx context.Context, auctionNo string, userID int64, username string) (*BidOutcome, error) {
	if !s.eligibility.IsEligible(ctx, userID) {
		return nil, ErrNotEligible
	}

	auction, err := s.auctionRepo.GetByAuctionNo(ctx, auctionNo)
	if err != nil {
		return nil, err
	}
	if auction.UserID == userID {
		return nil, ErrOwnBid
	}

	price, err := ArbitrateBuyout(auction)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.auctionRepo.ApplyBuyout(ctx, tx, auctionNo, userID, username); err != nil {
			return err
		}
		if err := s.bidRepo.Create(ctx, tx, &model.Bid{
			AuctionNo: auctionNo,
			UserID:    userID,
			Username:  username,
			Price:     price,
		}); err != nil {
			return fmt.Errorf("记录出价失败: %w", err)
		}

		// 成交通知：卖家、买家各一条，另加一条公示消息终态编辑
		// 通知失败只记日志，结算本身不受影响
		topic := s.cfg.Kafka.Topic.Notification
		if err := enqueueNotify(ctx, s.outboxRepo, tx, topic, auctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindUser,
			UserID:    auction.UserID,
			AuctionNo: auctionNo,
			Text:      fmt.Sprintf("您的拍卖已按一口价 %d 成交，买家：%s", price, username),
		}); err != nil {
			log.Warnf("[Bid] 卖家通知写入失败: auctionNo=%s, err=%v", auctionNo, err)
		}
		if err := enqueueNotify(ctx, s.outboxRepo, tx, topic, auctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindUser,
			UserID:    userID,
			AuctionNo: auctionNo,
			Text:      fmt.Sprintf("恭喜，您以一口价 %d 拍下该商品，请联系卖家 %s", price, auction.Username),
		}); err != nil {
			log.Warnf("[Bid] 买家通知写入失败: auctionNo=%s, err=%v", auctionNo, err)
		}
		if auction.ChatID != 0 && auction.MessageID != 0 {
			if err := enqueueNotify(ctx, s.outboxRepo, tx, topic, auctionNo, &model.NotifyPayload{
				Kind:      model.NotifyKindEdit,
				AuctionNo: auctionNo,
				ChatID:    auction.ChatID,
				MessageID: auction.MessageID,
				Text:      fmt.Sprintf("已成交，成交价 %d", price),
			}); err != nil {
				log.Warnf("[Bid] 公示消息编辑通知写入失败: auctionNo=%s, err=%v", auctionNo, err)
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrAuctionStatusInvalid) {
			// 条件写失败：到期扫描或另一笔一口价抢先结算了
			return nil, ErrAuctionNotActive
		}
		return nil, err
	}

	log.Infof("[Bid] 一口价成交: auctionNo=%s, buyerID=%d, price=%d", auctionNo, userID, price)

	return &BidOutcome{
		AuctionNo: auctionNo,
		Price:     price,
		Status:    model.AuctionStatusSold,
		LeaderID:  userID,
	}, nil
}
