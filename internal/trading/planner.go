package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/models"
)

// PlannerConfig 执行计划器配置
// 三个阈值把名义保证金划进四个资金层级
type PlannerConfig struct {
	SmallCutoffUSDT    float64       // 低于此值为 small
	MediumCutoffUSDT   float64       // 低于此值为 medium
	LargeCutoffUSDT    float64       // 低于此值为 large，其余 xlarge
	MinSlices          int           // 分片下限
	MaxSlices          int           // 分片上限
	SliceInterval      time.Duration // sliced 策略片间间隔
	TWAPInterval       time.Duration // twap 策略片间间隔
	MaxSlippagePercent float64       // 计划层面的滑点预算
}

// DefaultPlannerConfig 默认计划器配置
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		SmallCutoffUSDT:    1000,
		MediumCutoffUSDT:   5000,
		LargeCutoffUSDT:    20000,
		MinSlices:          2,
		MaxSlices:          10,
		SliceInterval:      2 * time.Second,
		TWAPInterval:       30 * time.Second,
		MaxSlippagePercent: 0.5,
	}
}

// ExecutionPlanner 资金分层执行计划器
//
// 这是一个启发式的订单拆分器而非市场冲击模型：不依赖真实盘口深度，
// 只按名义规模选择更保守的执行节奏以约束滑点
type ExecutionPlanner struct {
	logger *zap.Logger
	config PlannerConfig
	trader Trader
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutionPlanner 创建执行计划器
func NewExecutionPlanner(config PlannerConfig, trader Trader, logger *zap.Logger) *ExecutionPlanner {
	if config.MinSlices <= 0 {
		config.MinSlices = DefaultPlannerConfig().MinSlices
	}
	if config.MaxSlices < config.MinSlices {
		config.MaxSlices = DefaultPlannerConfig().MaxSlices
	}
	return &ExecutionPlanner{
		logger: logger.With(zap.String("component", "execution_planner")),
		config: config,
		trader: trader,
		sleep:  sleepInterval,
	}
}

// CapitalTier 按阈值给名义保证金分层
func (p *ExecutionPlanner) CapitalTier(amountUSDT float64) string {
	switch {
	case amountUSDT < p.config.SmallCutoffUSDT:
		return models.TierSmall
	case amountUSDT < p.config.MediumCutoffUSDT:
		return models.TierMedium
	case amountUSDT < p.config.LargeCutoffUSDT:
		return models.TierLarge
	default:
		return models.TierXLarge
	}
}

// RecommendedStrategy 层级到执行策略的映射
func (p *ExecutionPlanner) RecommendedStrategy(tier string) string {
	switch tier {
	case models.TierLarge:
		return models.StrategySliced
	case models.TierXLarge:
		return models.StrategyTWAP
	default:
		return models.StrategyDirect
	}
}

// RecommendedSlices 计算推荐分片数
// small/medium 整单直发；large 随规模线性增长并钳制在 [min,max]；xlarge 取上限
func (p *ExecutionPlanner) RecommendedSlices(amountUSDT float64) int {
	tier := p.CapitalTier(amountUSDT)
	switch tier {
	case models.TierSmall, models.TierMedium:
		return 1
	case models.TierLarge:
		n := int(math.Round(amountUSDT / p.config.MediumCutoffUSDT * 2))
		if n < p.config.MinSlices {
			n = p.config.MinSlices
		}
		if n > p.config.MaxSlices {
			n = p.config.MaxSlices
		}
		return n
	default:
		return p.config.MaxSlices
	}
}

// BuildPlan 构建执行计划，分片金额均分、余数并入末片
func (p *ExecutionPlanner) BuildPlan(symbol, direction string, amountUSDT float64) *models.ExecutionPlan {
	tier := p.CapitalTier(amountUSDT)
	strategy := p.RecommendedStrategy(tier)
	count := p.RecommendedSlices(amountUSDT)

	interval := p.config.SliceInterval
	if strategy == models.StrategyTWAP {
		interval = p.config.TWAPInterval
	}
	if strategy == models.StrategyDirect {
		interval = 0
	}

	total := decimal.NewFromFloat(amountUSDT)
	base := total.Div(decimal.NewFromInt(int64(count))).RoundDown(2)
	amounts := make([]float64, count)
	allocated := decimal.Zero
	for i := 0; i < count-1; i++ {
		amounts[i] = base.InexactFloat64()
		allocated = allocated.Add(base)
	}
	amounts[count-1] = total.Sub(allocated).InexactFloat64()

	plan := &models.ExecutionPlan{
		Symbol:             symbol,
		Direction:          direction,
		Strategy:           strategy,
		CapitalTier:        tier,
		TotalAmountUSDT:    amountUSDT,
		SliceCount:         count,
		SliceAmounts:       amounts,
		SliceInterval:      interval,
		MaxSlippagePercent: p.config.MaxSlippagePercent,
		CreatedAt:          time.Now(),
	}

	p.logger.Info("生成执行计划",
		zap.String("symbol", symbol),
		zap.String("tier", tier),
		zap.String("strategy", strategy),
		zap.Int("slices", count),
		zap.Float64("total_usdt", amountUSDT))

	return plan
}

// ExecutePlan 逐片执行计划
// 首片开仓、后续加仓；任一片失败即停止：已有成交为 partial，否则 failed；
// 上下文取消为 aborted
func (p *ExecutionPlanner) ExecutePlan(ctx context.Context, plan *models.ExecutionPlan, base OpenRequest) *models.ExecutionResult {
	result := &models.ExecutionResult{
		Plan:      plan,
		Status:    models.ExecStatusCompleted,
		StartedAt: time.Now(),
	}

	var refPrice float64
	filled := decimal.Zero
	costSum := decimal.Zero // Σ(filledUSDT * execPrice)，用于加权均价

	for i, amount := range plan.SliceAmounts {
		if i > 0 && plan.SliceInterval > 0 {
			if err := p.sleep(ctx, plan.SliceInterval); err != nil {
				result.Status = models.ExecStatusAborted
				break
			}
		}

		req := base
		req.MarginUSDT = amount
		req.AmountPercent = 0

		var open *OpenResult
		if i == 0 {
			if plan.Direction == models.DirectionLong {
				open = p.trader.OpenLong(ctx, plan.Symbol, req)
			} else {
				open = p.trader.OpenShort(ctx, plan.Symbol, req)
			}
		} else {
			open = p.trader.AddToPosition(ctx, plan.Symbol, req)
		}

		slice := models.SliceResult{
			Index:      i,
			AmountUSDT: amount,
			Success:    open.Success,
		}
		if open.Success {
			slice.FilledUSDT = amount
			slice.ExecutedPrice = open.ExecutedPrice
			filled = filled.Add(decimal.NewFromFloat(amount))
			costSum = costSum.Add(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(open.ExecutedPrice)))
			if refPrice == 0 {
				refPrice = open.ExecutedPrice
			}
		} else {
			slice.Error = open.Error
		}
		result.Slices = append(result.Slices, slice)

		if !open.Success {
			p.logger.Warn("分片执行失败，停止后续分片",
				zap.String("symbol", plan.Symbol),
				zap.Int("slice", i),
				zap.String("error", open.Error))
			if filled.IsZero() {
				result.Status = models.ExecStatusFailed
			} else {
				result.Status = models.ExecStatusPartial
			}
			break
		}
	}

	result.TotalFilledUSDT = filled.InexactFloat64()
	if filled.GreaterThan(decimal.Zero) {
		avg := costSum.Div(filled)
		result.AvgPrice = avg.InexactFloat64()
		if refPrice > 0 {
			// 相对首片成交价的已实现滑点（带方向符号，正值为不利）
			slip := avg.Sub(decimal.NewFromFloat(refPrice)).Div(decimal.NewFromFloat(refPrice)).Mul(decimal.NewFromInt(100))
			if plan.Direction == models.DirectionShort {
				slip = slip.Neg()
			}
			result.SlippagePercent = slip.InexactFloat64()
		}
	}
	result.FinishedAt = time.Now()

	p.logger.Info("执行计划完成",
		zap.String("symbol", plan.Symbol),
		zap.String("status", result.Status),
		zap.Float64("fill_rate", result.FillRate()),
		zap.Float64("slippage_percent", result.SlippagePercent))

	return result
}

// sleepInterval 可被上下文打断的片间等待
func sleepInterval(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("执行计划被取消: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
