package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/quorum/internal/models"
	"github.com/life2you_mini/quorum/internal/trading"
)

// MockTrader 交易账本接口的模拟实现
type MockTrader struct {
	mock.Mock
}

// OpenLong 开多仓的模拟实现
func (m *MockTrader) OpenLong(ctx context.Context, symbol string, req trading.OpenRequest) *trading.OpenResult {
	args := m.Called(ctx, symbol, req)
	return args.Get(0).(*trading.OpenResult)
}

// OpenShort 开空仓的模拟实现
func (m *MockTrader) OpenShort(ctx context.Context, symbol string, req trading.OpenRequest) *trading.OpenResult {
	args := m.Called(ctx, symbol, req)
	return args.Get(0).(*trading.OpenResult)
}

// AddToPosition 加仓的模拟实现
func (m *MockTrader) AddToPosition(ctx context.Context, symbol string, req trading.OpenRequest) *trading.OpenResult {
	args := m.Called(ctx, symbol, req)
	return args.Get(0).(*trading.OpenResult)
}

// ClosePosition 平仓的模拟实现
func (m *MockTrader) ClosePosition(ctx context.Context, symbol string) *trading.CloseResult {
	args := m.Called(ctx, symbol)
	return args.Get(0).(*trading.CloseResult)
}

// GetPosition 获取持仓的模拟实现
func (m *MockTrader) GetPosition(ctx context.Context) (*models.Position, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Position), args.Error(1)
}

// GetAccount 获取账户的模拟实现
func (m *MockTrader) GetAccount(ctx context.Context) (*models.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

// UpdatePrice 推进标记价的模拟实现
func (m *MockTrader) UpdatePrice(ctx context.Context, symbol string, price float64) error {
	args := m.Called(ctx, symbol, price)
	return args.Error(0)
}

// SetTPSL 调整止盈止损的模拟实现
func (m *MockTrader) SetTPSL(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	args := m.Called(ctx, symbol, takeProfit, stopLoss)
	return args.Error(0)
}

// GetTradeHistory 获取成交历史的模拟实现
func (m *MockTrader) GetTradeHistory(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TradeRecord), args.Error(1)
}
