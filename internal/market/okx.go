package market

import (
	"context"
	"fmt"

	"github.com/ccxt/ccxt/go/v4/go"
	"go.uber.org/zap"
)

// OKXFeed 使用CCXT实现的OKX行情源
type OKXFeed struct {
	exchange *ccxt.OKX
	logger   *zap.Logger
}

// NewOKXFeed 创建OKX行情源
func NewOKXFeed(apiKey, apiSecret, passphrase string, logger *zap.Logger) *OKXFeed {
	okxInstance := ccxt.NewOKX(map[string]interface{}{
		"apiKey":          apiKey,
		"secret":          apiSecret,
		"password":        passphrase,
		"enableRateLimit": true,
	})

	// 加载市场信息
	go func() {
		<-okxInstance.LoadMarkets()
		logger.Info("OKX市场数据加载完成")
	}()

	return &OKXFeed{
		exchange: okxInstance,
		logger:   logger,
	}
}

// GetExchangeName 获取交易所名称
func (o *OKXFeed) GetExchangeName() string {
	return "OKX"
}

// GetPrice 获取最新价格
func (o *OKXFeed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	formattedSymbol := formatOKXSymbol(symbol)

	ticker, err := o.exchange.FetchTicker(formattedSymbol)
	if err != nil {
		o.logger.Error("获取OKX价格失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return 0, fmt.Errorf("获取OKX价格失败: %w", err)
	}

	lastPrice, ok := (*ticker)["last"].(float64)
	if !ok {
		return 0, fmt.Errorf("价格数据格式错误")
	}

	return lastPrice, nil
}

// GetTicker 获取24小时行情快照
func (o *OKXFeed) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	formattedSymbol := formatOKXSymbol(symbol)

	raw, err := o.exchange.FetchTicker(formattedSymbol)
	if err != nil {
		o.logger.Error("获取OKX行情失败",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, fmt.Errorf("获取OKX行情失败: %w", err)
	}

	return parseTicker(o.GetExchangeName(), symbol, *raw)
}
