package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/model"
	"auctionhouse/internal/repository"

	"gorm.io/gorm"
)

// fakeTxRunner 直接在当前 goroutine 执行事务函数，tx 传 nil
// 各内存存储实现都忽略 tx 参数
type fakeTxRunner struct{}

func (fakeTxRunner) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return fc(nil)
}

// stubEligibility 可配置的资格检查
type stubEligibility struct {
	denied map[int64]bool
}

func (s *stubEligibility) IsEligible(_ context.Context, userID int64) bool {
	return !s.denied[userID]
}

func allowAll() *stubEligibility {
	return &stubEligibility{denied: map[int64]bool{}}
}

// memOutbox 收集写入的通知，便于断言种类和数量
type memOutbox struct {
	messages []*model.OutboxMessage
}

func (m *memOutbox) Create(_ context.Context, _ *gorm.DB, msg *model.OutboxMessage) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memOutbox) kinds() []string {
	var kinds []string
	for _, msg := range m.messages {
		var p model.NotifyPayload
		_ = json.Unmarshal([]byte(msg.Payload), &p)
		kinds = append(kinds, p.Kind)
	}
	return kinds
}

// failOutbox 写入必失败的发件箱，用于验证通知失败不影响业务写入
type failOutbox struct{}

func (failOutbox) Create(_ context.Context, _ *gorm.DB, _ *model.OutboxMessage) error {
	return fmt.Errorf("发件箱不可用")
}

// memUserStore 内存账户表，Deduct 复刻条件写语义
type memUserStore struct {
	users map[int64]*model.User
}

func newMemUserStore(users ...*model.User) *memUserStore {
	s := &memUserStore{users: map[int64]*model.User{}}
	for _, u := range users {
		s.users[u.UserID] = u
	}
	return s
}

func (s *memUserStore) GetOrCreate(_ context.Context, userID int64, username string) (*model.User, error) {
	if u, ok := s.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &model.User{UserID: userID, Username: username}
	s.users[userID] = u
	cp := *u
	return &cp, nil
}

func (s *memUserStore) Deduct(_ context.Context, _ *gorm.DB, userID int64, amount int64, version int) error {
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.Balance < amount {
		return repository.ErrBalanceNotEnough
	}
	if u.Version != version {
		return repository.ErrOptimisticLock
	}
	u.Balance -= amount
	u.Version++
	return nil
}

func (s *memUserStore) Increase(_ context.Context, _ *gorm.DB, userID int64, amount int64) (int64, error) {
	u, ok := s.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.Balance += amount
	u.Version++
	return u.Balance, nil
}

// memLedger 内存流水表
type memLedger struct {
	records []*model.CreditTransaction
}

func (m *memLedger) Create(_ context.Context, _ *gorm.DB, trans *model.CreditTransaction) error {
	m.records = append(m.records, trans)
	return nil
}

func (m *memLedger) ListByUserID(_ context.Context, userID int64, page, pageSize int) ([]*model.CreditTransaction, int64, error) {
	var out []*model.CreditTransaction
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

// memBidStore 内存出价流水
type memBidStore struct {
	bids []*model.Bid
}

func (m *memBidStore) Create(_ context.Context, _ *gorm.DB, bid *model.Bid) error {
	m.bids = append(m.bids, bid)
	return nil
}

func (m *memBidStore) ListByAuction(_ context.Context, auctionNo string) ([]*model.Bid, error) {
	var out []*model.Bid
	for _, b := range m.bids {
		if b.AuctionNo == auctionNo {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBidStore) CountByAuction(_ context.Context, auctionNo string) (int64, error) {
	bids, _ := m.ListByAuction(context.Background(), auctionNo)
	return int64(len(bids)), nil
}

func (m *memBidStore) Exists(_ context.Context, auctionNo string, userID, price int64, createdAt time.Time) (bool, error) {
	for _, b := range m.bids {
		if b.AuctionNo == auctionNo && b.UserID == userID && b.Price == price && b.CreatedAt.Equal(createdAt) {
			return true, nil
		}
	}
	return false, nil
}

// memAuctionStore 内存拍卖表，条件写语义和 MySQL 实现对齐
type memAuctionStore struct {
	auctions map[string]*model.Auction
	// beforeApplyBid 在条件写检查前执行一次，用于在读和条件写之间插入并发动作
	beforeApplyBid func()
}

func newMemAuctionStore(auctions ...*model.Auction) *memAuctionStore {
	s := &memAuctionStore{auctions: map[string]*model.Auction{}}
	for _, a := range auctions {
		s.auctions[a.AuctionNo] = a
	}
	return s
}

func (s *memAuctionStore) Create(_ context.Context, _ *gorm.DB, auction *model.Auction) error {
	if _, ok := s.auctions[auction.AuctionNo]; ok {
		return fmt.Errorf("duplicate auction_no: %s", auction.AuctionNo)
	}
	s.auctions[auction.AuctionNo] = auction
	return nil
}

func (s *memAuctionStore) GetByAuctionNo(_ context.Context, auctionNo string) (*model.Auction, error) {
	a, ok := s.auctions[auctionNo]
	if !ok {
		return nil, repository.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAuctionStore) ApplyBid(_ context.Context, _ *gorm.DB, auctionNo string, expectedPrice, newPrice int64, leaderID int64, leaderName string) error {
	if s.beforeApplyBid != nil {
		hook := s.beforeApplyBid
		s.beforeApplyBid = nil
		hook()
	}
	a, ok := s.auctions[auctionNo]
	if !ok {
		return repository.ErrBidConflict
	}
	// WHERE status = 'ACTIVE' AND current_price = expectedPrice
	if a.Status != model.AuctionStatusActive || a.CurrentPrice != expectedPrice {
		return repository.ErrBidConflict
	}
	a.CurrentPrice = newPrice
	a.LeaderID = leaderID
	a.LeaderName = leaderName
	return nil
}

func (s *memAuctionStore) ApplyBuyout(_ context.Context, _ *gorm.DB, auctionNo string, buyerID int64, buyerName string) error {
	a, ok := s.auctions[auctionNo]
	if !ok {
		return repository.ErrAuctionStatusInvalid
	}
	// WHERE status = 'ACTIVE' AND blitz_price > 0
	if a.Status != model.AuctionStatusActive || a.BlitzPrice <= 0 {
		return repository.ErrAuctionStatusInvalid
	}
	a.Status = model.AuctionStatusSold
	a.CurrentPrice = a.BlitzPrice
	a.LeaderID = buyerID
	a.LeaderName = buyerName
	return nil
}

func (s *memAuctionStore) UpdateStatus(_ context.Context, _ *gorm.DB, auctionNo string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return repository.ErrAuctionStatusInvalid
	}
	a, ok := s.auctions[auctionNo]
	if !ok || a.Status != fromStatus {
		return repository.ErrAuctionStatusInvalid
	}
	a.Status = toStatus
	return nil
}

func (s *memAuctionStore) ListByUserID(_ context.Context, userID int64, status string, page, pageSize int) ([]*model.Auction, int64, error) {
	var out []*model.Auction
	for _, a := range s.auctions {
		if a.UserID != userID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (s *memAuctionStore) GetActiveAuctions(_ context.Context) ([]*model.Auction, error) {
	var out []*model.Auction
	for _, a := range s.auctions {
		if a.Status == model.AuctionStatusActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memAuctionStore) ForceActive(_ context.Context, auctionNo string, currentPrice int64, leaderID int64, leaderName string) error {
	a, ok := s.auctions[auctionNo]
	if !ok {
		return repository.ErrAuctionNotFound
	}
	a.Status = model.AuctionStatusActive
	a.CurrentPrice = currentPrice
	a.LeaderID = leaderID
	a.LeaderName = leaderName
	return nil
}

func (s *memAuctionStore) UpdateMessageRef(_ context.Context, auctionNo string, chatID, messageID int64) error {
	a, ok := s.auctions[auctionNo]
	if !ok {
		return repository.ErrAuctionNotFound
	}
	a.ChatID = chatID
	a.MessageID = messageID
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{Notification: "auction_notification"},
		},
		Business: config.BusinessConfig{
			ListingFee:    1,
			BidIncrements: []int64{100, 500, 1000},
			SnapshotKey:   "auction:snapshot:latest",
		},
		Payment: config.PaymentConfig{
			Secret: "test-secret",
			Tiers: []config.CreditTier{
				{Amount: 10000, Tolerance: 500, Credits: 1},
				{Amount: 45000, Tolerance: 2000, Credits: 5},
				{Amount: 80000, Tolerance: 3000, Credits: 10},
			},
		},
	}
}
