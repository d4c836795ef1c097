package job

import (
	"context"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/infrastructure/mq"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationSender 通知投递任务
// 轮询发件箱里的 PENDING 通知，逐条发到 Kafka 由聊天端消费；
// 超过最大重试次数的标记为 FAILED 留待人工排查
type NotificationSender struct {
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewNotificationSender(db *gorm.DB, cfg *config.Config) *NotificationSender {
	return &NotificationSender{
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *NotificationSender) Start(ctx context.Context) {
	log.Println("[NotificationSender] 通知投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[NotificationSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[NotificationSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *NotificationSender) Stop() {
	close(s.stopCh)
}

func (s *NotificationSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Errorf("[NotificationSender] 查询通知失败: %v", err)
		return
	}

	if len(messages) == 0 {
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *NotificationSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := mq.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Errorf("[NotificationSender] 更新通知状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return
	}

	log.Warnf("[NotificationSender] 通知投递失败: id=%d, err=%v", msg.ID, err)

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Errorf("[NotificationSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Errorf("[NotificationSender] 标记失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			log.Warnf("[NotificationSender] 通知超过最大重试次数，标记为失败: id=%d", msg.ID)
		}
	}
}
