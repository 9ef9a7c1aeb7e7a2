package models

import (
	"time"
)

// 执行策略常量
const (
	StrategyDirect = "direct"
	StrategySliced = "sliced"
	StrategyTWAP   = "twap"
)

// 资金分层常量
const (
	TierSmall  = "small"
	TierMedium = "medium"
	TierLarge  = "large"
	TierXLarge = "xlarge"
)

// 执行结果状态常量
const (
	ExecStatusCompleted = "completed"
	ExecStatusPartial   = "partial"
	ExecStatusAborted   = "aborted"
	ExecStatusFailed    = "failed"
)

// ExecutionPlan 大额订单的执行计划
type ExecutionPlan struct {
	Symbol             string        `json:"symbol"`
	Direction          string        `json:"direction"`
	Strategy           string        `json:"strategy"` // "direct" / "sliced" / "twap"
	CapitalTier        string        `json:"capital_tier"`
	TotalAmountUSDT    float64       `json:"total_amount_usdt"`
	SliceCount         int           `json:"slice_count"`
	SliceAmounts       []float64     `json:"slice_amounts"`
	SliceInterval      time.Duration `json:"slice_interval"`
	MaxSlippagePercent float64       `json:"max_slippage_percent"`
	CreatedAt          time.Time     `json:"created_at"`
}

// SliceResult 单片执行结果
type SliceResult struct {
	Index         int     `json:"index"`
	AmountUSDT    float64 `json:"amount_usdt"`
	FilledUSDT    float64 `json:"filled_usdt"`
	ExecutedPrice float64 `json:"executed_price"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

// ExecutionResult 执行计划的汇总结果
type ExecutionResult struct {
	Plan            *ExecutionPlan `json:"plan"`
	Status          string         `json:"status"` // "completed" / "partial" / "aborted" / "failed"
	TotalFilledUSDT float64        `json:"total_filled_usdt"`
	AvgPrice        float64        `json:"avg_price"`
	SlippagePercent float64        `json:"slippage_percent"`
	Slices          []SliceResult  `json:"slices"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// FillRate 成交率 = 实际成交额 / 计划总额
func (r *ExecutionResult) FillRate() float64 {
	if r.Plan == nil || r.Plan.TotalAmountUSDT <= 0 {
		return 0
	}
	return r.TotalFilledUSDT / r.Plan.TotalAmountUSDT
}
