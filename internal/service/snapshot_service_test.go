package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"auctionhouse/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSideStore 内存旁路存储
type memSideStore struct {
	data []byte
}

func (s *memSideStore) Write(_ context.Context, data []byte) error {
	s.data = data
	return nil
}

func (s *memSideStore) Read(_ context.Context) ([]byte, error) {
	return s.data, nil
}

func newTestSnapshotService(side *memSideStore, store *memAuctionStore, bids *memBidStore, outbox *memOutbox) *SnapshotService {
	return &SnapshotService{
		cfg:         testConfig(),
		sideStore:   side,
		auctionRepo: store,
		bidRepo:     bids,
		outboxRepo:  outbox,
	}
}

func snapshotFixture() (*memAuctionStore, *memBidStore) {
	store := newMemAuctionStore(&model.Auction{
		AuctionNo:    "AUC-1",
		UserID:       100,
		Username:     "seller",
		Description:  "二手键盘",
		StartPrice:   1000,
		BlitzPrice:   5000,
		CurrentPrice: 2000,
		LeaderID:     202,
		LeaderName:   "bob",
		EndAt:        time.Now().Add(time.Hour).Truncate(time.Second),
		Status:       model.AuctionStatusActive,
		ChatID:       -100123,
		MessageID:    42,
		Media:        []model.AuctionMedia{{FileID: "file-a", Position: 0}},
	})
	bids := &memBidStore{}
	now := time.Now().Truncate(time.Second)
	bids.bids = []*model.Bid{
		{AuctionNo: "AUC-1", UserID: 201, Username: "alice", Price: 1500, CreatedAt: now.Add(-2 * time.Minute)},
		{AuctionNo: "AUC-1", UserID: 202, Username: "bob", Price: 2000, CreatedAt: now.Add(-time.Minute)},
	}
	return store, bids
}

func TestSnapshotSave(t *testing.T) {
	ctx := context.Background()
	store, bids := snapshotFixture()
	side := &memSideStore{}
	svc := newTestSnapshotService(side, store, bids, &memOutbox{})

	require.NoError(t, svc.Save(ctx))
	require.NotNil(t, side.data)

	var doc SnapshotDocument
	require.NoError(t, json.Unmarshal(side.data, &doc))
	assert.Equal(t, SnapshotSchemaVersion, doc.SchemaVersion)
	assert.NotEmpty(t, doc.SnapshotID)
	require.Equal(t, 1, doc.Count)

	snap := doc.Auctions[0]
	assert.Equal(t, "AUC-1", snap.AuctionNo)
	assert.Equal(t, int64(2000), snap.CurrentPrice)
	assert.Equal(t, int64(202), snap.LeaderID)
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, int64(1500), snap.Bids[0].Price)
	require.Len(t, snap.Media, 1)
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("冷启动没有快照", func(t *testing.T) {
		svc := newTestSnapshotService(&memSideStore{}, newMemAuctionStore(), &memBidStore{}, &memOutbox{})
		assert.NoError(t, svc.Restore(ctx))
	})

	t.Run("版本不一致的快照被忽略", func(t *testing.T) {
		side := &memSideStore{}
		doc := SnapshotDocument{SchemaVersion: "v999", Auctions: []AuctionSnapshot{{AuctionNo: "AUC-X", EndAt: time.Now().Add(time.Hour)}}}
		data, _ := json.Marshal(doc)
		side.data = data

		store := newMemAuctionStore()
		svc := newTestSnapshotService(side, store, &memBidStore{}, &memOutbox{})
		require.NoError(t, svc.Restore(ctx))
		assert.Empty(t, store.auctions, "不认识的版本不做任何写入")
	})

	t.Run("损坏的快照被忽略", func(t *testing.T) {
		side := &memSideStore{data: []byte("{not json")}
		svc := newTestSnapshotService(side, newMemAuctionStore(), &memBidStore{}, &memOutbox{})
		assert.NoError(t, svc.Restore(ctx))
	})

	t.Run("主库与快照一致时不做修复", func(t *testing.T) {
		store, bids := snapshotFixture()
		side := &memSideStore{}
		svc := newTestSnapshotService(side, store, bids, &memOutbox{})

		require.NoError(t, svc.Save(ctx))
		require.NoError(t, svc.Restore(ctx))

		a, _ := store.GetByAuctionNo(ctx, "AUC-1")
		assert.Equal(t, int64(2000), a.CurrentPrice)
		assert.Len(t, bids.bids, 2, "不重复补插出价")
	})

	t.Run("价格落后时强制拉回快照状态", func(t *testing.T) {
		store, bids := snapshotFixture()
		side := &memSideStore{}
		svc := newTestSnapshotService(side, store, bids, &memOutbox{})
		require.NoError(t, svc.Save(ctx))

		// 模拟崩溃导致的漂移：价格回退、领先者丢失
		store.auctions["AUC-1"].CurrentPrice = 1500
		store.auctions["AUC-1"].LeaderID = 201

		require.NoError(t, svc.Restore(ctx))

		a, _ := store.GetByAuctionNo(ctx, "AUC-1")
		assert.Equal(t, int64(2000), a.CurrentPrice)
		assert.Equal(t, int64(202), a.LeaderID)
		assert.Equal(t, model.AuctionStatusActive, a.Status)
	})

	t.Run("主库缺行时按快照重建", func(t *testing.T) {
		store, bids := snapshotFixture()
		side := &memSideStore{}
		svc := newTestSnapshotService(side, store, bids, &memOutbox{})
		require.NoError(t, svc.Save(ctx))

		// 整行丢失，出价流水一并丢失
		delete(store.auctions, "AUC-1")
		bids.bids = nil

		require.NoError(t, svc.Restore(ctx))

		a, err := store.GetByAuctionNo(ctx, "AUC-1")
		require.NoError(t, err)
		assert.Equal(t, model.AuctionStatusActive, a.Status)
		assert.Equal(t, int64(2000), a.CurrentPrice)
		require.Len(t, a.Media, 1)

		history, _ := bids.ListByAuction(ctx, "AUC-1")
		assert.Len(t, history, 2, "出价历史按快照补插")
	})

	t.Run("缺失的出价被补插", func(t *testing.T) {
		store, bids := snapshotFixture()
		side := &memSideStore{}
		svc := newTestSnapshotService(side, store, bids, &memOutbox{})
		require.NoError(t, svc.Save(ctx))

		// 丢一条出价，但拍卖行本身完好
		bids.bids = bids.bids[:1]

		require.NoError(t, svc.Restore(ctx))

		history, _ := bids.ListByAuction(ctx, "AUC-1")
		assert.Len(t, history, 2)
	})

	t.Run("已过期的拍卖跳过不恢复", func(t *testing.T) {
		store, bids := snapshotFixture()
		store.auctions["AUC-1"].EndAt = time.Now().Add(-time.Minute)
		side := &memSideStore{}
		svc := newTestSnapshotService(side, store, bids, &memOutbox{})
		require.NoError(t, svc.Save(ctx))

		// 快照后拍卖被到期扫描结算掉
		store.auctions["AUC-1"].Status = model.AuctionStatusSold

		require.NoError(t, svc.Restore(ctx))

		a, _ := store.GetByAuctionNo(ctx, "AUC-1")
		assert.Equal(t, model.AuctionStatusSold, a.Status, "归到期扫描管，恢复流程不碰")
	})

	t.Run("公示消息坐标缺失时请求重发", func(t *testing.T) {
		store, bids := snapshotFixture()
		store.auctions["AUC-1"].ChatID = 0
		store.auctions["AUC-1"].MessageID = 0
		side := &memSideStore{}
		outbox := &memOutbox{}
		svc := newTestSnapshotService(side, store, bids, outbox)
		require.NoError(t, svc.Save(ctx))

		require.NoError(t, svc.Restore(ctx))
		assert.Contains(t, outbox.kinds(), model.NotifyKindRepublish)
	})
}
