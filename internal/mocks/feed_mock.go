package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/quorum/internal/market"
)

// MockPriceFeed 行情源接口的模拟实现
type MockPriceFeed struct {
	mock.Mock
}

// GetExchangeName 获取交易所名称的模拟实现
func (m *MockPriceFeed) GetExchangeName() string {
	args := m.Called()
	return args.String(0)
}

// GetPrice 获取最新价格的模拟实现
func (m *MockPriceFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

// GetTicker 获取行情快照的模拟实现
func (m *MockPriceFeed) GetTicker(ctx context.Context, symbol string) (*market.Ticker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market.Ticker), args.Error(1)
}
