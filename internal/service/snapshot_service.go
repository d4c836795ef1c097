package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SnapshotSchemaVersion 快照文档格式版本
// 版本不一致的快照一律当作“没有可用快照”处理，绝不猜测字段含义
const SnapshotSchemaVersion = "v1"

// ============================================================================
// 快照 / 恢复
// ============================================================================
//
// 周期性把全部 ACTIVE 拍卖（含完整出价历史和媒体引用）序列化到主库之外的
// 旁路存储（Redis 单 key，SET 覆盖写对读者天然原子）。
//
// 启动时用最近一次快照和主库对账：进程在写主库中途崩溃时，
// 某行的状态/价格可能漂移，恢复流程把它拉回快照里的样子，
// 缺失的出价流水按 出价人+价格+时间 补插。
// 快照完全可以从主库重建，丢了只是恢复慢一点，不是数据丢失
// ============================================================================

// SnapshotDocument 快照文档（单个带版本号的 JSON）
type SnapshotDocument struct {
	SnapshotID    string            `json:"snapshot_id"`
	SchemaVersion string            `json:"schema_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Count         int               `json:"count"`
	Auctions      []AuctionSnapshot `json:"auctions"`
}

// AuctionSnapshot 单场拍卖的快照（出价历史内联）
type AuctionSnapshot struct {
	AuctionNo    string          `json:"auction_no"`
	UserID       int64           `json:"user_id"`
	Username     string          `json:"username"`
	Description  string          `json:"description"`
	StartPrice   int64           `json:"start_price"`
	BlitzPrice   int64           `json:"blitz_price"`
	CurrentPrice int64           `json:"current_price"`
	LeaderID     int64           `json:"leader_id"`
	LeaderName   string          `json:"leader_name"`
	EndAt        time.Time       `json:"end_at"`
	ChatID       int64           `json:"chat_id"`
	MessageID    int64           `json:"message_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Media        []MediaSnapshot `json:"media,omitempty"`
	Bids         []BidSnapshot   `json:"bids,omitempty"`
}

type MediaSnapshot struct {
	FileID   string `json:"file_id"`
	Position int    `json:"position"`
}

type BidSnapshot struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotSideStore 快照旁路存储
// 写必须对读者原子：读者要么看到整篇旧文档，要么整篇新文档
type SnapshotSideStore interface {
	Write(ctx context.Context, data []byte) error
	// Read 没有快照时返回 (nil, nil)，这不是错误
	Read(ctx context.Context) ([]byte, error)
}

// RedisSnapshotStore 基于 Redis 单 key 的旁路存储实现
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: key}
}

func (s *RedisSnapshotStore) Write(ctx context.Context, data []byte) error {
	// SET 覆盖写本身是原子的，不需要临时 key + RENAME
	return s.client.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisSnapshotStore) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 冷启动，没有可恢复的内容
		}
		return nil, err
	}
	return data, nil
}

// SnapshotAuctionStore 快照/恢复需要的拍卖存储操作
type SnapshotAuctionStore interface {
	GetActiveAuctions(ctx context.Context) ([]*model.Auction, error)
	GetByAuctionNo(ctx context.Context, auctionNo string) (*model.Auction, error)
	Create(ctx context.Context, tx *gorm.DB, auction *model.Auction) error
	ForceActive(ctx context.Context, auctionNo string, currentPrice int64, leaderID int64, leaderName string) error
}

// SnapshotBidStore 快照/恢复需要的出价存储操作
type SnapshotBidStore interface {
	ListByAuction(ctx context.Context, auctionNo string) ([]*model.Bid, error)
	Exists(ctx context.Context, auctionNo string, userID, price int64, createdAt time.Time) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, bid *model.Bid) error
}

type SnapshotService struct {
	cfg         *config.Config
	sideStore   SnapshotSideStore
	auctionRepo SnapshotAuctionStore
	bidRepo     SnapshotBidStore
	outboxRepo  OutboxStore
}

func NewSnapshotService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *SnapshotService {
	return &SnapshotService{
		cfg:         cfg,
		sideStore:   NewRedisSnapshotStore(rdb, cfg.Business.SnapshotKey),
		auctionRepo: repository.NewAuctionRepository(db),
		bidRepo:     repository.NewBidRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// Save 读出全部 ACTIVE 拍卖和出价历史，整篇覆盖写到旁路存储
func (s *SnapshotService) Save(ctx context.Context) error {
	auctions, err := s.auctionRepo.GetActiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("读取进行中拍卖失败: %w", err)
	}

	doc := &SnapshotDocument{
		SnapshotID:    uuid.NewString(),
		SchemaVersion: SnapshotSchemaVersion,
		CreatedAt:     time.Now(),
		Count:         len(auctions),
	}

	for _, a := range auctions {
		snap := AuctionSnapshot{
			AuctionNo:    a.AuctionNo,
			UserID:       a.UserID,
			Username:     a.Username,
			Description:  a.Description,
			StartPrice:   a.StartPrice,
			BlitzPrice:   a.BlitzPrice,
			CurrentPrice: a.CurrentPrice,
			LeaderID:     a.LeaderID,
			LeaderName:   a.LeaderName,
			EndAt:        a.EndAt,
			ChatID:       a.ChatID,
			MessageID:    a.MessageID,
			CreatedAt:    a.CreatedAt,
		}
		for _, m := range a.Media {
			snap.Media = append(snap.Media, MediaSnapshot{FileID: m.FileID, Position: m.Position})
		}

		bids, err := s.bidRepo.ListByAuction(ctx, a.AuctionNo)
		if err != nil {
			return fmt.Errorf("读取出价历史失败: auctionNo=%s: %w", a.AuctionNo, err)
		}
		for _, b := range bids {
			snap.Bids = append(snap.Bids, BidSnapshot{
				UserID:    b.UserID,
				Username:  b.Username,
				Price:     b.Price,
				CreatedAt: b.CreatedAt,
			})
		}

		doc.Auctions = append(doc.Auctions, snap)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	if err := s.sideStore.Write(ctx, data); err != nil {
		return fmt.Errorf("写入快照失败: %w", err)
	}

	log.Infof("[Snapshot] 快照完成: id=%s, auctions=%d", doc.SnapshotID, doc.Count)
	return nil
}

// Restore 启动时执行一次：用最近的快照和主库对账
//
// 规则：
//   - 没有快照 / 版本不认识 -> 无事可做，正常启动
//   - 快照里已过期的拍卖跳过（归到期扫描管）
//   - 主库状态漂移（非 ACTIVE 或价格落后于快照）-> 强制拉回快照状态
//   - 主库整行缺失 -> 按快照重建
//   - 快照里有而出价表里没有的出价 -> 补插
//   - 公示消息坐标缺失 -> 通知聊天端重新发布
func (s *SnapshotService) Restore(ctx context.Context) error {
	data, err := s.sideStore.Read(ctx)
	if err != nil {
		return fmt.Errorf("读取快照失败: %w", err)
	}
	if data == nil {
		log.Println("[Snapshot] 没有快照，冷启动")
		return nil
	}

	var doc SnapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warnf("[Snapshot] 快照解析失败，忽略: %v", err)
		return nil
	}
	if doc.SchemaVersion != SnapshotSchemaVersion {
		log.Warnf("[Snapshot] 快照版本不一致(%s)，忽略", doc.SchemaVersion)
		return nil
	}

	restored := 0
	now := time.Now()
	for i := range doc.Auctions {
		snap := &doc.Auctions[i]

		// 已过期的归到期扫描处理，恢复流程不碰
		if !snap.EndAt.After(now) {
			continue
		}

		changed, err := s.restoreAuction(ctx, snap)
		if err != nil {
			// 单场失败不阻塞其余恢复
			log.Errorf("[Snapshot] 恢复失败: auctionNo=%s, err=%v", snap.AuctionNo, err)
			continue
		}
		if changed {
			restored++
		}
	}

	log.Infof("[Snapshot] 恢复完成: snapshotID=%s, total=%d, repaired=%d", doc.SnapshotID, len(doc.Auctions), restored)
	return nil
}

func (s *SnapshotService) restoreAuction(ctx context.Context, snap *AuctionSnapshot) (bool, error) {
	changed := false

	stored, err := s.auctionRepo.GetByAuctionNo(ctx, snap.AuctionNo)
	switch {
	case errors.Is(err, repository.ErrAuctionNotFound):
		// 行整个丢了（崩溃发生在插入提交前），按快照重建
		auction := &model.Auction{
			AuctionNo:    snap.AuctionNo,
			UserID:       snap.UserID,
			Username:     snap.Username,
			Description:  snap.Description,
			StartPrice:   snap.StartPrice,
			BlitzPrice:   snap.BlitzPrice,
			CurrentPrice: snap.CurrentPrice,
			LeaderID:     snap.LeaderID,
			LeaderName:   snap.LeaderName,
			EndAt:        snap.EndAt,
			Status:       model.AuctionStatusActive,
			ChatID:       snap.ChatID,
			MessageID:    snap.MessageID,
		}
		for _, m := range snap.Media {
			auction.Media = append(auction.Media, model.AuctionMedia{FileID: m.FileID, Position: m.Position})
		}
		if err := s.auctionRepo.Create(ctx, nil, auction); err != nil {
			return false, err
		}
		log.Warnf("[Snapshot] 主库缺行，已按快照重建: auctionNo=%s", snap.AuctionNo)
		changed = true
	case err != nil:
		return false, err
	default:
		// 状态或价格漂移：中断的写会留下非 ACTIVE 状态或落后的价格
		if stored.Status != model.AuctionStatusActive || stored.CurrentPrice < snap.CurrentPrice {
			if err := s.auctionRepo.ForceActive(ctx, snap.AuctionNo, snap.CurrentPrice, snap.LeaderID, snap.LeaderName); err != nil {
				return false, err
			}
			log.Warnf("[Snapshot] 状态漂移已修复: auctionNo=%s, storedStatus=%s", snap.AuctionNo, stored.Status)
			changed = true
		}
	}

	// 补插缺失的出价流水
	for _, b := range snap.Bids {
		exists, err := s.bidRepo.Exists(ctx, snap.AuctionNo, b.UserID, b.Price, b.CreatedAt)
		if err != nil {
			return changed, err
		}
		if exists {
			continue
		}
		if err := s.bidRepo.Create(ctx, nil, &model.Bid{
			AuctionNo: snap.AuctionNo,
			UserID:    b.UserID,
			Username:  b.Username,
			Price:     b.Price,
			CreatedAt: b.CreatedAt,
		}); err != nil {
			return changed, err
		}
		log.Warnf("[Snapshot] 补插出价: auctionNo=%s, userID=%d, price=%d", snap.AuctionNo, b.UserID, b.Price)
		changed = true
	}

	// 公示消息找不到就让聊天端重发一条，坐标由回填接口更新
	if snap.ChatID == 0 || snap.MessageID == 0 {
		if err := enqueueNotify(ctx, s.outboxRepo, nil, s.cfg.Kafka.Topic.Notification, snap.AuctionNo, &model.NotifyPayload{
			Kind:      model.NotifyKindRepublish,
			AuctionNo: snap.AuctionNo,
		}); err != nil {
			log.Warnf("[Snapshot] 重发请求写入失败: auctionNo=%s, err=%v", snap.AuctionNo, err)
		}
	}

	return changed, nil
}
