// Package market 行情数据源：通过 CCXT 对接交易所公共行情
package market

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Ticker 24 小时行情快照
type Ticker struct {
	Exchange      string    `json:"exchange"`
	Symbol        string    `json:"symbol"`
	Last          float64   `json:"last"`
	High24h       float64   `json:"high_24h"`
	Low24h        float64   `json:"low_24h"`
	ChangePercent float64   `json:"change_percent"`
	QuoteVolume   float64   `json:"quote_volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// PriceFeed 行情源接口，只读公共数据，不涉及账户
type PriceFeed interface {
	GetExchangeName() string
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// FeedFactory 行情源工厂
type FeedFactory struct {
	feeds map[string]PriceFeed
}

// NewFeedFactory 创建行情源工厂
func NewFeedFactory() *FeedFactory {
	return &FeedFactory{feeds: make(map[string]PriceFeed)}
}

// Register 注册行情源实例
func (f *FeedFactory) Register(name string, feed PriceFeed) {
	f.feeds[strings.ToLower(name)] = feed
}

// Get 获取行情源实例
func (f *FeedFactory) Get(name string) (PriceFeed, bool) {
	feed, exists := f.feeds[strings.ToLower(name)]
	return feed, exists
}

// GetAll 获取所有已注册的行情源
func (f *FeedFactory) GetAll() []PriceFeed {
	var result []PriceFeed
	for _, feed := range f.feeds {
		result = append(result, feed)
	}
	return result
}

// 辅助函数：将BTC/USDT格式的交易对转换为币安合约格式
func formatBinanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// 辅助函数：将BTC/USDT格式的交易对转换为OKX永续合约格式
func formatOKXSymbol(symbol string) string {
	parts := strings.Split(symbol, "/")
	if len(parts) == 2 {
		return fmt.Sprintf("%s-%s-SWAP", parts[0], parts[1])
	}
	return symbol
}
