package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ccxt/ccxt/go/v4/go"
	"go.uber.org/zap"
)

// BinanceFeed 币安行情源
type BinanceFeed struct {
	exchange *ccxt.Binance
	logger   *zap.Logger
}

// NewBinanceFeed 创建币安行情源
// 只读公共行情，API密钥可为空
func NewBinanceFeed(apiKey, apiSecret string, logger *zap.Logger) *BinanceFeed {
	binanceInstance := ccxt.NewBinance(map[string]interface{}{
		"apiKey":          apiKey,
		"secret":          apiSecret,
		"enableRateLimit": true,
	})

	// 加载市场信息
	go func() {
		<-binanceInstance.LoadMarkets()
		logger.Info("Binance市场数据加载完成")
	}()

	return &BinanceFeed{
		exchange: binanceInstance,
		logger:   logger,
	}
}

// GetExchangeName 获取交易所名称
func (b *BinanceFeed) GetExchangeName() string {
	return "Binance"
}

// GetPrice 获取最新价格
func (b *BinanceFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	ticker, err := b.exchange.FetchTicker(formattedSymbol)
	if err != nil {
		b.logger.Error("获取币安价格失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return 0, fmt.Errorf("获取币安价格失败: %w", err)
	}

	lastPrice, ok := (*ticker)["last"].(float64)
	if !ok {
		return 0, fmt.Errorf("价格数据格式错误")
	}

	return lastPrice, nil
}

// GetTicker 获取24小时行情快照
func (b *BinanceFeed) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	formattedSymbol := formatBinanceSymbol(symbol)

	raw, err := b.exchange.FetchTicker(formattedSymbol)
	if err != nil {
		b.logger.Error("获取币安行情失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取币安行情失败: %w", err)
	}

	return parseTicker(b.GetExchangeName(), symbol, *raw)
}

// parseTicker 解析CCXT行情数据
// CCXT返回的数值字段类型不稳定，统一经字符串转换兜底
func parseTicker(exchange, symbol string, raw map[string]interface{}) (*Ticker, error) {
	last, err := parseFloat(raw["last"])
	if err != nil {
		return nil, fmt.Errorf("解析最新价失败: %w", err)
	}

	ticker := &Ticker{
		Exchange:  exchange,
		Symbol:    symbol,
		Last:      last,
		Timestamp: time.Now(),
	}

	// 以下字段缺失不视为错误
	if v, err := parseFloat(raw["high"]); err == nil {
		ticker.High24h = v
	}
	if v, err := parseFloat(raw["low"]); err == nil {
		ticker.Low24h = v
	}
	if v, err := parseFloat(raw["percentage"]); err == nil {
		ticker.ChangePercent = v
	}
	if v, err := parseFloat(raw["quoteVolume"]); err == nil {
		ticker.QuoteVolume = v
	}

	return ticker, nil
}

func parseFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("字段为空")
	}
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
}
