package service

import (
	"errors"

	"auctionhouse/internal/model"
)

// ============================================================================
// 出价仲裁
// ============================================================================
//
// 纯决策逻辑：输入当前拍卖状态和一次出价/一口价请求，输出新价格或拒绝原因。
// 不做任何 IO —— 落库时的条件写（ApplyBid / ApplyBuyout）才是最终裁决，
// 这里算出的只是“基于我读到的状态应得的结果”
// ============================================================================

// 业务拒绝（区别于基础设施错误，永远不升级为 5xx）
var (
	ErrAuctionNotActive = errors.New("拍卖已结束")
	ErrInvalidIncrement = errors.New("加价档位不合法")
	ErrBidStale         = errors.New("出价已过期，价格已变化")
	ErrNoBlitzPrice     = errors.New("该拍卖未设置一口价")
	ErrNotEligible      = errors.New("不满足参与条件")
	ErrOwnBid           = errors.New("不能对自己的拍卖出价")
)

// ArbitrateBid 仲裁一次固定加价出价，返回新的当前价
//
// 规则（按顺序）：
//  1. 非 ACTIVE 直接拒绝
//  2. 加价必须出自配置的固定档位
//  3. 候选价 = 当前价 + 加价；候选价不高于当前价视为过期请求，拒绝
//  4. 设置了一口价时，候选价封顶到 blitz_price
//
// 【注意】通过加价触到一口价只封顶价格，不提前结束拍卖 ——
// 只有显式一口价才会立即成交，这是有意为之的产品规则
func ArbitrateBid(a *model.Auction, increment int64, increments []int64) (int64, error) {
	if a.Status != model.AuctionStatusActive {
		return 0, ErrAuctionNotActive
	}

	valid := false
	for _, inc := range increments {
		if inc == increment {
			valid = true
			break
		}
	}
	if !valid {
		return 0, ErrInvalidIncrement
	}

	candidate := a.CurrentPrice + increment
	if candidate <= a.CurrentPrice {
		return 0, ErrBidStale
	}

	if a.HasBlitzPrice() && candidate >= a.BlitzPrice {
		candidate = a.BlitzPrice
		// 已经顶到一口价后再加价没有意义
		if candidate <= a.CurrentPrice {
			return 0, ErrBidStale
		}
	}

	return candidate, nil
}

// ArbitrateBuyout 仲裁一次显式一口价购买，返回成交价
// 一口价只要设置了就总能成交，成交价精确等于 blitz_price
func ArbitrateBuyout(a *model.Auction) (int64, error) {
	if a.Status != model.AuctionStatusActive {
		return 0, ErrAuctionNotActive
	}
	if !a.HasBlitzPrice() {
		return 0, ErrNoBlitzPrice
	}
	return a.BlitzPrice, nil
}
