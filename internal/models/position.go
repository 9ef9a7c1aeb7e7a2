package models

import (
	"time"
)

// 交易方向常量
const (
	DirectionLong  = "long"
	DirectionShort = "short"
	DirectionHold  = "hold"
	DirectionClose = "close"
)

// Position 代表一个持仓，由模拟账本独占持有
// 只能通过账本的开仓/平仓/加仓操作变更，平仓后置空
type Position struct {
	Symbol          string    `json:"symbol"`
	Direction       string    `json:"direction"` // "long" 或 "short"
	Size            float64   `json:"size"`
	EntryPrice      float64   `json:"entry_price"`
	Leverage        int       `json:"leverage"`
	Margin          float64   `json:"margin"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	TakeProfitPrice float64   `json:"take_profit_price,omitempty"`
	StopLossPrice   float64   `json:"stop_loss_price,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Notional 持仓名义价值（按入场价）
func (p *Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// Account 代表模拟账户
// 不变量：TotalEquity == AvailableBalance + UsedMargin + UnrealizedPnL
type Account struct {
	TotalEquity      float64 `json:"total_equity"`
	AvailableBalance float64 `json:"available_balance"`
	UsedMargin       float64 `json:"used_margin"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
}

// TrueAvailableMargin 真实可用保证金：浮亏要从可用余额中扣除
func (a *Account) TrueAvailableMargin() float64 {
	if a.UnrealizedPnL < 0 {
		return a.AvailableBalance + a.UnrealizedPnL
	}
	return a.AvailableBalance
}

// EquitySnapshot 权益快照，由持仓监控器周期性记录
type EquitySnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Equity        float64   `json:"equity"`
	Balance       float64   `json:"balance"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	HasPosition   bool      `json:"has_position"`
	Direction     string    `json:"direction,omitempty"`
}

// TradeRecord 成交记录（模拟账本的历史流水）
type TradeRecord struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"`
	Action      string    `json:"action"` // "open" / "add" / "close"
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	Margin      float64   `json:"margin"`
	Leverage    int       `json:"leverage"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
