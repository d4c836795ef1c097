package service

import (
	"context"
	"testing"
	"time"

	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuctionService(store *memAuctionStore, users *memUserStore, ledger *memLedger, bids *memBidStore, outbox *memOutbox, elig *stubEligibility) *AuctionService {
	return &AuctionService{
		db:          fakeTxRunner{},
		cfg:         testConfig(),
		auctionRepo: store,
		userRepo:    users,
		ledgerRepo:  ledger,
		bidRepo:     bids,
		outboxRepo:  outbox,
		eligibility: elig,
	}
}

func validCreateReq() *CreateAuctionRequest {
	return &CreateAuctionRequest{
		UserID:      100,
		Username:    "seller",
		Description: "二手键盘",
		StartPrice:  1000,
		BlitzPrice:  5000,
		EndAt:       time.Now().Add(24 * time.Hour),
		Media:       []string{"file-a", "file-b"},
	}
}

func TestCreateAuction(t *testing.T) {
	ctx := context.Background()

	t.Run("发布成功并扣费记流水", func(t *testing.T) {
		store := newMemAuctionStore()
		users := newMemUserStore(&model.User{UserID: 100, Username: "seller", Balance: 3})
		ledger := &memLedger{}
		svc := newTestAuctionService(store, users, ledger, &memBidStore{}, &memOutbox{}, allowAll())

		auction, err := svc.CreateAuction(ctx, validCreateReq())
		require.NoError(t, err)
		assert.NotEmpty(t, auction.AuctionNo)
		assert.Equal(t, model.AuctionStatusActive, auction.Status)
		assert.Equal(t, int64(1000), auction.CurrentPrice, "首次出价前当前价等于起拍价")
		assert.Equal(t, int64(0), auction.LeaderID)
		require.Len(t, auction.Media, 2)
		assert.Equal(t, 0, auction.Media[0].Position)
		assert.Equal(t, 1, auction.Media[1].Position)

		// 扣 1 点并落一条 LISTING_FEE 流水
		u, _ := users.GetOrCreate(ctx, 100, "")
		assert.Equal(t, int64(2), u.Balance)
		require.Len(t, ledger.records, 1)
		assert.Equal(t, model.TransactionTypeListingFee, ledger.records[0].Type)
		assert.Equal(t, int64(-1), ledger.records[0].Amount)
		assert.Equal(t, int64(3), ledger.records[0].BalanceBefore)
		assert.Equal(t, int64(2), ledger.records[0].BalanceAfter)
	})

	t.Run("一口价低于起拍价被拒绝", func(t *testing.T) {
		svc := newTestAuctionService(newMemAuctionStore(), newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		req := validCreateReq()
		req.BlitzPrice = 500
		_, err := svc.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrBlitzBelowStart)
	})

	t.Run("不设置一口价是合法的", func(t *testing.T) {
		users := newMemUserStore(&model.User{UserID: 100, Balance: 1})
		svc := newTestAuctionService(newMemAuctionStore(), users, &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		req := validCreateReq()
		req.BlitzPrice = 0
		auction, err := svc.CreateAuction(ctx, req)
		require.NoError(t, err)
		assert.False(t, auction.HasBlitzPrice())
	})

	t.Run("起拍价必须为正", func(t *testing.T) {
		svc := newTestAuctionService(newMemAuctionStore(), newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		req := validCreateReq()
		req.StartPrice = 0
		_, err := svc.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidStartPrice)
	})

	t.Run("截止时间必须在将来", func(t *testing.T) {
		svc := newTestAuctionService(newMemAuctionStore(), newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		req := validCreateReq()
		req.EndAt = time.Now().Add(-time.Minute)
		_, err := svc.CreateAuction(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})

	t.Run("余额不足发布失败", func(t *testing.T) {
		store := newMemAuctionStore()
		users := newMemUserStore(&model.User{UserID: 100, Balance: 0})
		svc := newTestAuctionService(store, users, &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		_, err := svc.CreateAuction(ctx, validCreateReq())
		assert.ErrorIs(t, err, repository.ErrBalanceNotEnough)
		assert.Empty(t, store.auctions, "扣费失败时不能出现拍卖行")
	})

	t.Run("管理员发布不扣费", func(t *testing.T) {
		users := newMemUserStore(&model.User{UserID: 100, Balance: 0, IsAdmin: true})
		ledger := &memLedger{}
		svc := newTestAuctionService(newMemAuctionStore(), users, ledger, &memBidStore{}, &memOutbox{}, allowAll())

		_, err := svc.CreateAuction(ctx, validCreateReq())
		require.NoError(t, err)

		u, _ := users.GetOrCreate(ctx, 100, "")
		assert.Equal(t, int64(0), u.Balance)
		assert.Empty(t, ledger.records, "管理员发布不记流水")
	})

	t.Run("不满足参与条件", func(t *testing.T) {
		elig := &stubEligibility{denied: map[int64]bool{100: true}}
		svc := newTestAuctionService(newMemAuctionStore(), newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, elig)

		_, err := svc.CreateAuction(ctx, validCreateReq())
		assert.ErrorIs(t, err, ErrNotEligible)
	})
}

func TestDeleteAuction(t *testing.T) {
	ctx := context.Background()

	newStoredAuction := func() *model.Auction {
		return &model.Auction{
			AuctionNo:    "AUC-1",
			UserID:       100,
			StartPrice:   1000,
			CurrentPrice: 1000,
			EndAt:        time.Now().Add(time.Hour),
			Status:       model.AuctionStatusActive,
		}
	}

	t.Run("卖家删除无出价的拍卖", func(t *testing.T) {
		store := newMemAuctionStore(newStoredAuction())
		svc := newTestAuctionService(store, newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		err := svc.DeleteAuction(ctx, "AUC-1", 100)
		require.NoError(t, err)

		a, _ := store.GetByAuctionNo(ctx, "AUC-1")
		assert.Equal(t, model.AuctionStatusDeleted, a.Status)
	})

	t.Run("管理员可删除他人拍卖", func(t *testing.T) {
		store := newMemAuctionStore(newStoredAuction())
		users := newMemUserStore(&model.User{UserID: 1, IsAdmin: true})
		svc := newTestAuctionService(store, users, &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		err := svc.DeleteAuction(ctx, "AUC-1", 1)
		require.NoError(t, err)
	})

	t.Run("无关用户不能删除", func(t *testing.T) {
		store := newMemAuctionStore(newStoredAuction())
		svc := newTestAuctionService(store, newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

		err := svc.DeleteAuction(ctx, "AUC-1", 999)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("已有出价的拍卖不能删除", func(t *testing.T) {
		store := newMemAuctionStore(newStoredAuction())
		bids := &memBidStore{}
		require.NoError(t, bids.Create(ctx, nil, &model.Bid{AuctionNo: "AUC-1", UserID: 201, Price: 1500}))
		svc := newTestAuctionService(store, newMemUserStore(), &memLedger{}, bids, &memOutbox{}, allowAll())

		err := svc.DeleteAuction(ctx, "AUC-1", 100)
		assert.ErrorIs(t, err, ErrHasBids)

		a, _ := store.GetByAuctionNo(ctx, "AUC-1")
		assert.Equal(t, model.AuctionStatusActive, a.Status)
	})
}

func TestAttachMessageRef(t *testing.T) {
	ctx := context.Background()

	store := newMemAuctionStore(&model.Auction{
		AuctionNo: "AUC-1",
		UserID:    100,
		Status:    model.AuctionStatusActive,
	})
	svc := newTestAuctionService(store, newMemUserStore(), &memLedger{}, &memBidStore{}, &memOutbox{}, allowAll())

	require.NoError(t, svc.AttachMessageRef(ctx, "AUC-1", -100123, 42))

	a, _ := store.GetByAuctionNo(ctx, "AUC-1")
	assert.Equal(t, int64(-100123), a.ChatID)
	assert.Equal(t, int64(42), a.MessageID)
}
