package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/quorum/internal/mocks"
	"github.com/life2you_mini/quorum/internal/models"
)

// stubLedger 可编程的账本桩，逐次巡检切换持仓视图
type stubLedger struct {
	position *models.Position
	account  *models.Account
	err      error
}

func (s *stubLedger) GetPosition(ctx context.Context) (*models.Position, error) {
	return s.position, s.err
}

func (s *stubLedger) GetAccount(ctx context.Context) (*models.Account, error) {
	if s.account != nil {
		return s.account, nil
	}
	return &models.Account{TotalEquity: 10000, AvailableBalance: 9000, UsedMargin: 1000}, nil
}

func (s *stubLedger) UpdatePrice(ctx context.Context, symbol string, price float64) error {
	return nil
}

type stubPrices struct {
	price float64
	err   error
}

func (s *stubPrices) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, s.err
}

func longPosition(tp, sl float64) *models.Position {
	return &models.Position{
		Symbol:          "BTC/USDT",
		Direction:       models.DirectionLong,
		Size:            0.05,
		EntryPrice:      100000,
		Leverage:        5,
		Margin:          1000,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		CreatedAt:       time.Now(),
	}
}

func newTestMonitor(t *testing.T, ledger *stubLedger, prices *stubPrices, callbacks Callbacks) *PositionMonitor {
	return NewPositionMonitor(Config{
		Symbol:           "BTC/USDT",
		EquityHistoryCap: 5,
	}, ledger, prices, nil, callbacks, zaptest.NewLogger(t))
}

func TestPositionMonitor_TPFiresOnce(t *testing.T) {
	ledger := &stubLedger{position: longPosition(102000, 99000)}
	prices := &stubPrices{price: 102500}

	tpHits := 0
	m := newTestMonitor(t, ledger, prices, Callbacks{
		OnTPHit: func(position *models.Position, price float64) {
			tpHits++
			assert.InDelta(t, 102500, price, 1e-9)
		},
	})

	// 止盈条件持续满足，回调只触发一次
	require.NoError(t, m.checkOnce(context.Background()))
	require.NoError(t, m.checkOnce(context.Background()))
	require.NoError(t, m.checkOnce(context.Background()))
	assert.Equal(t, 1, tpHits)
}

func TestPositionMonitor_SLFires(t *testing.T) {
	ledger := &stubLedger{position: longPosition(102000, 99000)}
	prices := &stubPrices{price: 100500}

	slHits := 0
	m := newTestMonitor(t, ledger, prices, Callbacks{
		OnSLHit: func(position *models.Position, price float64) { slHits++ },
	})

	// 价格尚在止损上方，不触发
	require.NoError(t, m.checkOnce(context.Background()))
	assert.Zero(t, slHits)

	prices.price = 98900
	require.NoError(t, m.checkOnce(context.Background()))
	assert.Equal(t, 1, slHits)
}

func TestPositionMonitor_PositionClosedCallback(t *testing.T) {
	ledger := &stubLedger{position: longPosition(102000, 99000)}
	prices := &stubPrices{price: 100000}

	var closed *models.Position
	m := newTestMonitor(t, ledger, prices, Callbacks{
		OnPositionClosed: func(position *models.Position) { closed = position },
	})

	require.NoError(t, m.checkOnce(context.Background()))
	require.Nil(t, closed)

	// 持仓消失视为外部已平仓
	ledger.position = nil
	require.NoError(t, m.checkOnce(context.Background()))
	require.NotNil(t, closed)
	assert.Equal(t, "BTC/USDT", closed.Symbol)

	// 再次巡检不重复通知
	closed = nil
	require.NoError(t, m.checkOnce(context.Background()))
	assert.Nil(t, closed)
}

func TestPositionMonitor_FiredFlagsResetOnNewPosition(t *testing.T) {
	ledger := &stubLedger{position: longPosition(102000, 99000)}
	prices := &stubPrices{price: 102500}

	tpHits := 0
	m := newTestMonitor(t, ledger, prices, Callbacks{
		OnTPHit: func(position *models.Position, price float64) { tpHits++ },
	})

	require.NoError(t, m.checkOnce(context.Background()))
	assert.Equal(t, 1, tpHits)

	// 旧仓平掉、新仓建立后，新仓的止盈可以再次触发
	ledger.position = nil
	require.NoError(t, m.checkOnce(context.Background()))

	fresh := longPosition(102000, 99000)
	fresh.CreatedAt = time.Now().Add(time.Minute)
	ledger.position = fresh
	require.NoError(t, m.checkOnce(context.Background()))
	assert.Equal(t, 2, tpHits)
}

func TestPositionMonitor_EquityHistoryBounded(t *testing.T) {
	ledger := &stubLedger{}
	prices := &stubPrices{price: 100000}
	m := newTestMonitor(t, ledger, prices, Callbacks{})

	for i := 0; i < 12; i++ {
		require.NoError(t, m.checkOnce(context.Background()))
	}

	history := m.EquityHistory()
	assert.Len(t, history, 5)
	assert.InDelta(t, 10000, history[0].Equity, 1e-9)
}

func TestPositionMonitor_PriceFailureRecorded(t *testing.T) {
	ledger := &stubLedger{}
	prices := &stubPrices{err: errors.New("exchange unavailable")}
	m := newTestMonitor(t, ledger, prices, Callbacks{})

	err := m.checkOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "最新价格")

	status := m.GetStatus()
	assert.Equal(t, 1, status.TickCount)
	assert.Equal(t, 1, status.FailureCount)
	assert.Contains(t, status.LastError, "exchange unavailable")
}

func TestPositionMonitor_MarkPriceAdvancedEachTick(t *testing.T) {
	// 每拍先推进账本标记价再读取持仓与账户
	ledger := new(mocks.MockTrader)
	ledger.On("UpdatePrice", mock.Anything, "BTC/USDT", 100000.0).Return(nil).Once()
	ledger.On("UpdatePrice", mock.Anything, "BTC/USDT", 100500.0).Return(nil).Once()
	ledger.On("GetPosition", mock.Anything).Return(nil, nil)
	ledger.On("GetAccount", mock.Anything).Return(&models.Account{
		TotalEquity:      10000,
		AvailableBalance: 10000,
	}, nil)

	prices := &stubPrices{price: 100000}
	m := NewPositionMonitor(Config{Symbol: "BTC/USDT"}, ledger, prices, nil, Callbacks{}, zaptest.NewLogger(t))

	require.NoError(t, m.checkOnce(context.Background()))
	prices.price = 100500
	require.NoError(t, m.checkOnce(context.Background()))
	ledger.AssertExpectations(t)
}

func TestPositionMonitor_SnapshotMetrics(t *testing.T) {
	ledger := &stubLedger{position: longPosition(102000, 99000)}
	ledger.position.UnrealizedPnL = 50
	prices := &stubPrices{price: 101000}
	m := newTestMonitor(t, ledger, prices, Callbacks{})

	require.NoError(t, m.checkOnce(context.Background()))

	snap := m.GetStatus().LastSnapshot
	require.NotNil(t, snap)
	assert.InDelta(t, 101000, snap.CurrentPrice, 1e-9)
	assert.InDelta(t, 5.0, snap.PnLPercent, 1e-9)
	// 5倍杠杆多仓的清算价在入场价下方约 20%
	assert.InDelta(t, 100000*(1-0.2+0.005), snap.LiquidationPrice, 1e-6)
	assert.Greater(t, snap.SLDistancePercent, 0.0)
	assert.Less(t, snap.TPDistancePercent, 1.0)
}
