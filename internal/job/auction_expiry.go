package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExpiryAuctionStore 到期扫描需要的存储操作
type ExpiryAuctionStore interface {
	GetExpiredAuctions(ctx context.Context, limit int) ([]*model.Auction, error)
	FinalizeExpired(ctx context.Context, auctionNo string, expectedPrice int64, toStatus string) error
}

// ExpiryOutboxStore 通知发件箱写入口
type ExpiryOutboxStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

// AuctionExpiryJob 到期结算任务
//
// 固定周期扫描 status=ACTIVE AND end_at<=now 的拍卖，逐个驱动到终态。
//
// 【关键点】“只结算一次”不靠任何内存锁：ACTIVE -> 终态 的条件写就是闸门，
// 两个扫描周期重叠（包括崩溃重启后与旧周期重叠）时，
// 只有赢下条件更新的一方继续发通知，输家看到状态已翻转直接跳过。
// 通知发生在状态落库之后：通知失败只记日志，绝不会导致二次结算
type AuctionExpiryJob struct {
	auctionRepo ExpiryAuctionStore
	outboxRepo  ExpiryOutboxStore
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewAuctionExpiryJob(db *gorm.DB, cfg *config.Config) *AuctionExpiryJob {
	return &AuctionExpiryJob{
		auctionRepo: repository.NewAuctionRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    cfg.Business.ExpiryInterval(),
		batchSize:   100,
	}
}

func (j *AuctionExpiryJob) Start(ctx context.Context) {
	log.Println("[AuctionExpiryJob] 到期结算任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AuctionExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[AuctionExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.finalizeExpired(ctx)
		}
	}
}

func (j *AuctionExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *AuctionExpiryJob) finalizeExpired(ctx context.Context) {
	auctions, err := j.auctionRepo.GetExpiredAuctions(ctx, j.batchSize)
	if err != nil {
		log.Errorf("[AuctionExpiryJob] 查询到期拍卖失败: %v", err)
		return
	}

	if len(auctions) == 0 {
		return
	}

	log.Infof("[AuctionExpiryJob] 发现 %d 场到期拍卖", len(auctions))

	finalized := 0
	for _, auction := range auctions {
		if j.finalizeOne(ctx, auction) {
			finalized++
		}
	}

	log.Infof("[AuctionExpiryJob] 本次结算 %d 场", finalized)
}

// finalizeOne 结算单场拍卖，返回是否由本次调用完成结算
//
// 成交/流拍的判定来自扫描快照，条件写同时锁定快照里的状态和价格：
// 扫描之后插进来的出价（价格变了）或另一路结算（状态变了）都会让
// 这次翻转落空，该场留到下一个周期用新鲜状态重新判定
func (j *AuctionExpiryJob) finalizeOne(ctx context.Context, auction *model.Auction) bool {
	// 有真实领先者（出过价且高于起拍价）按成交结算，否则流拍
	toStatus := model.AuctionStatusExpired
	if auction.HasLeader() {
		toStatus = model.AuctionStatusSold
	}

	err := j.auctionRepo.FinalizeExpired(ctx, auction.AuctionNo, auction.CurrentPrice, toStatus)
	if err != nil {
		// 输掉条件写：别的路径已结算，或扫描后价格变了，都留给下个周期
		log.Infof("[AuctionExpiryJob] 快照已过期，本轮跳过: auctionNo=%s", auction.AuctionNo)
		return false
	}

	log.Infof("[AuctionExpiryJob] 拍卖已结算: auctionNo=%s, status=%s, price=%d",
		auction.AuctionNo, toStatus, auction.CurrentPrice)

	// 状态已持久化，下面全部尽力而为
	j.notifyFinalized(ctx, auction, toStatus)
	return true
}

func (j *AuctionExpiryJob) notifyFinalized(ctx context.Context, auction *model.Auction, toStatus string) {
	topic := j.cfg.Kafka.Topic.Notification

	if toStatus == model.AuctionStatusSold {
		j.enqueue(ctx, auction.AuctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindUser,
			UserID:    auction.UserID,
			AuctionNo: auction.AuctionNo,
			Text:      fmt.Sprintf("您的拍卖已结束，成交价 %d，买家：%s", auction.CurrentPrice, auction.LeaderName),
		}, topic)
		j.enqueue(ctx, auction.AuctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindUser,
			UserID:    auction.LeaderID,
			AuctionNo: auction.AuctionNo,
			Text:      fmt.Sprintf("恭喜，您以 %d 拍得该商品，请联系卖家 %s", auction.CurrentPrice, auction.Username),
		}, topic)
	} else {
		// 流拍只通知卖家
		j.enqueue(ctx, auction.AuctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindUser,
			UserID:    auction.UserID,
			AuctionNo: auction.AuctionNo,
			Text:      "您的拍卖已到期，无人出价，已流拍",
		}, topic)
	}

	// 编辑公示消息：撤掉出价按钮，展示终态文案
	if auction.ChatID != 0 && auction.MessageID != 0 {
		text := "已流拍"
		if toStatus == model.AuctionStatusSold {
			text = fmt.Sprintf("已成交，成交价 %d", auction.CurrentPrice)
		}
		j.enqueue(ctx, auction.AuctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindEdit,
			AuctionNo: auction.AuctionNo,
			ChatID:    auction.ChatID,
			MessageID: auction.MessageID,
			Text:      text,
		}, topic)
	}
}

func (j *AuctionExpiryJob) enqueue(ctx context.Context, key string, payload *model.NotifyPayload, topic string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("[AuctionExpiryJob] 序列化通知失败: auctionNo=%s, err=%v", key, err)
		return
	}
	err = j.outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	})
	if err != nil {
		// 结算已经落库，通知丢了就丢了，绝不回头重结算
		log.Errorf("[AuctionExpiryJob] 通知写入失败: auctionNo=%s, err=%v", key, err)
	}
}
