package models

import (
	"fmt"
	"time"
)

// TradingSignal 共识产出的交易信号，构造后不再变更
// TP/SL 价格由 NewTradingSignal 工厂一次性派生，派生与构造分离
type TradingSignal struct {
	Direction       string      `json:"direction"`
	Symbol          string      `json:"symbol"`
	Leverage        int         `json:"leverage"`
	AmountPercent   float64     `json:"amount_percent"`
	EntryPrice      float64     `json:"entry_price"`
	TakeProfitPrice float64     `json:"take_profit_price"`
	StopLossPrice   float64     `json:"stop_loss_price"`
	Confidence      int         `json:"confidence"`
	Reasoning       string      `json:"reasoning"`
	AgentsConsensus VoteSummary `json:"agents_consensus"`
	Timestamp       time.Time   `json:"timestamp"`
}

// NewTradingSignal 由共识结果构建完整信号
//
// tpMarginPercent / slMarginPercent 是按保证金计的止盈/止损百分比，
// 必须除以杠杆才是价格百分比：price% = margin% / leverage。
// 漏掉这一步会把真实风险放大 leverage 倍，是全系统最安全关键的一行。
func NewTradingSignal(
	direction, symbol string,
	entryPrice float64,
	leverage int,
	amountPercent float64,
	confidence int,
	tpMarginPercent, slMarginPercent float64,
	reasoning string,
	summary VoteSummary,
) (*TradingSignal, error) {
	if leverage < 1 {
		return nil, fmt.Errorf("杠杆倍数无效: %d", leverage)
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("入场价格无效: %f", entryPrice)
	}

	// 保证金百分比换算为价格百分比
	tpPricePercent := tpMarginPercent / float64(leverage)
	slPricePercent := slMarginPercent / float64(leverage)

	var tpPrice, slPrice float64
	switch direction {
	case DirectionLong:
		tpPrice = entryPrice * (1 + tpPricePercent/100)
		slPrice = entryPrice * (1 - slPricePercent/100)
	case DirectionShort:
		tpPrice = entryPrice * (1 - tpPricePercent/100)
		slPrice = entryPrice * (1 + slPricePercent/100)
	case DirectionHold, DirectionClose:
		// hold/close 不携带价格目标
	default:
		return nil, fmt.Errorf("未知的信号方向: %s", direction)
	}

	return &TradingSignal{
		Direction:       direction,
		Symbol:          symbol,
		Leverage:        leverage,
		AmountPercent:   amountPercent,
		EntryPrice:      entryPrice,
		TakeProfitPrice: tpPrice,
		StopLossPrice:   slPrice,
		Confidence:      confidence,
		Reasoning:       reasoning,
		AgentsConsensus: summary,
		Timestamp:       time.Now(),
	}, nil
}
