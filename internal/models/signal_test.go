package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTradingSignal_TPSLDerivation(t *testing.T) {
	// 保证金止盈8%、杠杆5倍 => 价格止盈1.6%
	signal, err := NewTradingSignal(
		DirectionLong, "BTC/USDT",
		100000, 5, 30, 80,
		8.0, 4.0,
		"", VoteSummary{},
	)
	require.NoError(t, err)

	assert.InDelta(t, 101600, signal.TakeProfitPrice, 1e-6)
	assert.InDelta(t, 99200, signal.StopLossPrice, 1e-6)
}

func TestNewTradingSignal_ShortDirection(t *testing.T) {
	// 空头方向：止盈在入场价下方，止损在上方
	signal, err := NewTradingSignal(
		DirectionShort, "BTC/USDT",
		100000, 10, 30, 80,
		10.0, 5.0,
		"", VoteSummary{},
	)
	require.NoError(t, err)

	assert.InDelta(t, 99000, signal.TakeProfitPrice, 1e-6)
	assert.InDelta(t, 100500, signal.StopLossPrice, 1e-6)
	assert.Less(t, signal.TakeProfitPrice, signal.EntryPrice)
	assert.Greater(t, signal.StopLossPrice, signal.EntryPrice)
}

func TestNewTradingSignal_LeverageScalesRisk(t *testing.T) {
	// 同样的保证金百分比，杠杆越高价格目标越贴近入场价
	tests := []struct {
		name     string
		leverage int
		expected float64 // 止盈价
	}{
		{name: "杠杆1倍", leverage: 1, expected: 110000},
		{name: "杠杆5倍", leverage: 5, expected: 102000},
		{name: "杠杆10倍", leverage: 10, expected: 101000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, err := NewTradingSignal(
				DirectionLong, "BTC/USDT",
				100000, tt.leverage, 30, 80,
				10.0, 5.0,
				"", VoteSummary{},
			)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, signal.TakeProfitPrice, 1e-6)
		})
	}
}

func TestNewTradingSignal_HoldCarriesNoTargets(t *testing.T) {
	signal, err := NewTradingSignal(
		DirectionHold, "BTC/USDT",
		100000, 1, 0, 30,
		10.0, 5.0,
		"", VoteSummary{},
	)
	require.NoError(t, err)

	assert.Zero(t, signal.TakeProfitPrice)
	assert.Zero(t, signal.StopLossPrice)
}

func TestNewTradingSignal_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		direction  string
		entryPrice float64
		leverage   int
	}{
		{name: "杠杆为零", direction: DirectionLong, entryPrice: 100000, leverage: 0},
		{name: "入场价为零", direction: DirectionLong, entryPrice: 0, leverage: 5},
		{name: "未知方向", direction: "sideways", entryPrice: 100000, leverage: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTradingSignal(
				tt.direction, "BTC/USDT",
				tt.entryPrice, tt.leverage, 30, 80,
				10.0, 5.0,
				"", VoteSummary{},
			)
			assert.Error(t, err)
		})
	}
}

func TestNewVote_Clamping(t *testing.T) {
	tests := []struct {
		name         string
		confidence   int
		leverage     int
		wantConf     int
		wantLeverage int
	}{
		{name: "置信度越上界", confidence: 150, leverage: 5, wantConf: 100, wantLeverage: 5},
		{name: "置信度越下界", confidence: -10, leverage: 5, wantConf: 0, wantLeverage: 5},
		{name: "杠杆越下界", confidence: 70, leverage: 0, wantConf: 70, wantLeverage: 1},
		{name: "杠杆越上界", confidence: 70, leverage: 500, wantConf: 70, wantLeverage: 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vote := NewVote(DirectionLong, tt.confidence, tt.leverage, 10, 5, "")
			assert.Equal(t, tt.wantConf, vote.Confidence)
			assert.Equal(t, tt.wantLeverage, vote.Leverage)
		})
	}
}

func TestAccount_TrueAvailableMargin(t *testing.T) {
	// 浮亏要从可用余额中扣除，浮盈不计入
	withLoss := Account{AvailableBalance: 1000, UnrealizedPnL: -200}
	assert.InDelta(t, 800, withLoss.TrueAvailableMargin(), 1e-9)

	withProfit := Account{AvailableBalance: 1000, UnrealizedPnL: 300}
	assert.InDelta(t, 1000, withProfit.TrueAvailableMargin(), 1e-9)
}
