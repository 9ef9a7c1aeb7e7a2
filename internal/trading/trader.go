// Package trading 包含账本契约、模拟账本、交易执行器与执行计划器
package trading

import (
	"context"
	"fmt"

	"github.com/life2you_mini/quorum/internal/models"
)

// OpenRequest 开仓/加仓请求参数
// MarginUSDT > 0 时按固定保证金额执行，否则按可用余额百分比
type OpenRequest struct {
	Leverage        int     `json:"leverage"`
	AmountPercent   float64 `json:"amount_percent"`
	MarginUSDT      float64 `json:"margin_usdt,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
}

// OpenResult 开仓/加仓结果
type OpenResult struct {
	Success       bool             `json:"success"`
	ExecutedPrice float64          `json:"executed_price,omitempty"`
	Position      *models.Position `json:"position,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// CloseResult 平仓结果
type CloseResult struct {
	Success   bool    `json:"success"`
	PnL       float64 `json:"pnl,omitempty"`
	ExitPrice float64 `json:"exit_price,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Trader 账本能力契约，对实现方式（模拟或实盘）多态
//
// 可选能力（AddToPosition/SetTPSL/GetTradeHistory）的实现缺省返回
// "不支持"结果而非 panic，调用方必须检查 Success 标志
type Trader interface {
	OpenLong(ctx context.Context, symbol string, req OpenRequest) *OpenResult
	OpenShort(ctx context.Context, symbol string, req OpenRequest) *OpenResult
	ClosePosition(ctx context.Context, symbol string) *CloseResult

	GetPosition(ctx context.Context) (*models.Position, error)
	GetAccount(ctx context.Context) (*models.Account, error)

	// UpdatePrice 推进内部标记价，未实现盈亏按标记价计算
	UpdatePrice(ctx context.Context, symbol string, price float64) error

	// 可选能力
	AddToPosition(ctx context.Context, symbol string, req OpenRequest) *OpenResult
	SetTPSL(ctx context.Context, symbol string, takeProfit, stopLoss float64) error
	GetTradeHistory(ctx context.Context, limit int) ([]models.TradeRecord, error)
}

// UnsupportedOpenResult 可选能力未实现时的标准返回
func UnsupportedOpenResult(op string) *OpenResult {
	return &OpenResult{Success: false, Error: fmt.Sprintf("操作不支持: %s", op)}
}
