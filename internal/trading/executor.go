package trading

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/models"
)

// 执行状态常量
const (
	ExecStatusExecuted = "executed"
	ExecStatusRejected = "rejected"
	ExecStatusError    = "error"
)

// ExecutorConfig 交易执行器配置
type ExecutorConfig struct {
	MinBalanceUSDT           float64 // 最低可交易余额
	MaxLeverage              int     // 信号允许的最大杠杆
	MaxPositionMarginPercent float64 // 单仓保证金占权益的名义上限（百分比）
}

// DefaultExecutorConfig 默认执行器配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MinBalanceUSDT:           50,
		MaxLeverage:              20,
		MaxPositionMarginPercent: 80,
	}
}

// ExecutionResponse 执行器的公共返回结构
// 任何拒绝都携带可直接展示的 reason，边界不抛裸异常
type ExecutionResponse struct {
	Status  string                 `json:"status"` // "executed" / "rejected" / "error"
	Action  string                 `json:"action"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TradeExecutor 消费 TradingSignal 的四段校验流水线
// 信号校验 → 账户检查 → 持仓冲突 → 分发，任一段失败即短路
type TradeExecutor struct {
	logger  *zap.Logger
	config  ExecutorConfig
	trader  Trader
	planner *ExecutionPlanner // 可为 nil，大单退化为直接执行
}

// NewTradeExecutor 创建交易执行器
func NewTradeExecutor(config ExecutorConfig, trader Trader, planner *ExecutionPlanner, logger *zap.Logger) *TradeExecutor {
	if config.MaxLeverage <= 0 {
		config.MaxLeverage = DefaultExecutorConfig().MaxLeverage
	}
	if config.MaxPositionMarginPercent <= 0 {
		config.MaxPositionMarginPercent = DefaultExecutorConfig().MaxPositionMarginPercent
	}
	return &TradeExecutor{
		logger:  logger.With(zap.String("component", "trade_executor")),
		config:  config,
		trader:  trader,
		planner: planner,
	}
}

// Execute 执行交易信号
// 分发前重新查询持仓（check-then-act）：监控器可能已在本周期内独立平仓，
// 不能以调用方早先的快照为准
func (e *TradeExecutor) Execute(ctx context.Context, signal *models.TradingSignal) (resp *ExecutionResponse) {
	defer func() {
		// 内部意外错误不穿透公共边界
		if r := recover(); r != nil {
			e.logger.Error("执行器内部错误", zap.Any("panic", r))
			resp = &ExecutionResponse{
				Status: ExecStatusError,
				Action: "none",
				Reason: fmt.Sprintf("内部错误: %v", r),
			}
		}
	}()

	if signal == nil {
		return &ExecutionResponse{Status: ExecStatusRejected, Action: "none", Reason: "信号为空"}
	}

	// 第一段：信号校验（不触达账本）
	if reason := e.validateSignal(signal); reason != "" {
		e.logger.Warn("信号校验未通过",
			zap.String("direction", signal.Direction),
			zap.String("reason", reason))
		return &ExecutionResponse{Status: ExecStatusRejected, Action: "none", Reason: reason}
	}

	// hold 无需触达账本
	if signal.Direction == models.DirectionHold {
		return &ExecutionResponse{Status: ExecStatusExecuted, Action: "hold", Reason: "保持观望"}
	}

	// 第二段：账户检查
	account, err := e.trader.GetAccount(ctx)
	if err != nil {
		return &ExecutionResponse{Status: ExecStatusError, Action: "none", Reason: fmt.Sprintf("获取账户失败: %v", err)}
	}
	if signal.Direction != models.DirectionClose && account.AvailableBalance < e.config.MinBalanceUSDT {
		return &ExecutionResponse{
			Status: ExecStatusRejected,
			Action: "none",
			Reason: fmt.Sprintf("可用余额 %.2f 低于最低交易阈值 %.2f USDT", account.AvailableBalance, e.config.MinBalanceUSDT),
		}
	}

	// 第三段：持仓冲突检查（分发前的即时重查）
	position, err := e.trader.GetPosition(ctx)
	if err != nil {
		return &ExecutionResponse{Status: ExecStatusError, Action: "none", Reason: fmt.Sprintf("获取持仓失败: %v", err)}
	}

	switch signal.Direction {
	case models.DirectionClose:
		return e.dispatchClose(ctx, signal, position)
	case models.DirectionLong, models.DirectionShort:
		if reason := e.checkPositionConflict(signal, position, account); reason != "" {
			e.logger.Warn("持仓冲突，拒绝执行",
				zap.String("signal_direction", signal.Direction),
				zap.String("reason", reason))
			return &ExecutionResponse{Status: ExecStatusRejected, Action: "none", Reason: reason}
		}
		return e.dispatchOpen(ctx, signal, position, account)
	}

	return &ExecutionResponse{Status: ExecStatusRejected, Action: "none", Reason: fmt.Sprintf("未知方向: %s", signal.Direction)}
}

// validateSignal 第一段：信号合法性，校验失败返回拒绝原因
func (e *TradeExecutor) validateSignal(signal *models.TradingSignal) string {
	switch signal.Direction {
	case models.DirectionLong, models.DirectionShort, models.DirectionHold, models.DirectionClose:
	default:
		return fmt.Sprintf("无效的信号方向: %s", signal.Direction)
	}

	if signal.Confidence < 0 || signal.Confidence > 100 {
		return fmt.Sprintf("置信度超出范围 [0,100]: %d", signal.Confidence)
	}

	// 仅开仓动作校验下列字段
	if signal.Direction == models.DirectionLong || signal.Direction == models.DirectionShort {
		if signal.Leverage < 1 || signal.Leverage > e.config.MaxLeverage {
			return fmt.Sprintf("杠杆倍数 %d 超出允许范围 [1,%d]", signal.Leverage, e.config.MaxLeverage)
		}
		if signal.AmountPercent <= 0 || signal.AmountPercent > 100 {
			return fmt.Sprintf("仓位比例超出范围 (0,100]: %.2f", signal.AmountPercent)
		}
		// 未设置止盈止损的信号一律拒绝，不做默认值兜底
		if signal.TakeProfitPrice <= 0 {
			return "止盈价格未设置或无效"
		}
		if signal.StopLossPrice <= 0 {
			return "止损价格未设置或无效"
		}
	}

	return ""
}

// checkPositionConflict 第三段：持仓冲突判定
// 无持仓不冲突；同向仅在仍有加仓余量时放行；反向一律冲突（不自动翻仓）
func (e *TradeExecutor) checkPositionConflict(signal *models.TradingSignal, position *models.Position, account *models.Account) string {
	if position == nil {
		return ""
	}

	if position.Direction == signal.Direction {
		maxMargin := account.TotalEquity * e.config.MaxPositionMarginPercent / 100
		room := maxMargin - position.Margin
		if room < e.config.MinBalanceUSDT {
			return fmt.Sprintf("已有同方向持仓且保证金已达上限（%.2f/%.2f USDT），拒绝加仓", position.Margin, maxMargin)
		}
		return ""
	}

	return fmt.Sprintf("持仓方向冲突: 现有 %s 持仓，收到 %s 信号，需先平仓", position.Direction, signal.Direction)
}

// dispatchClose 分发平仓
func (e *TradeExecutor) dispatchClose(ctx context.Context, signal *models.TradingSignal, position *models.Position) *ExecutionResponse {
	if position == nil {
		// 监控器可能已抢先平仓，按幂等成功处理
		return &ExecutionResponse{Status: ExecStatusExecuted, Action: "close", Reason: "当前无持仓，无需平仓"}
	}

	result := e.trader.ClosePosition(ctx, signal.Symbol)
	if !result.Success {
		return &ExecutionResponse{Status: ExecStatusRejected, Action: "close", Reason: result.Error}
	}
	return &ExecutionResponse{
		Status: ExecStatusExecuted,
		Action: "close",
		Details: map[string]interface{}{
			"pnl":        result.PnL,
			"exit_price": result.ExitPrice,
		},
	}
}

// dispatchOpen 分发开仓/加仓，大单交由执行计划器分片
func (e *TradeExecutor) dispatchOpen(ctx context.Context, signal *models.TradingSignal, position *models.Position, account *models.Account) *ExecutionResponse {
	marginUSDT := account.AvailableBalance * signal.AmountPercent / 100
	req := OpenRequest{
		Leverage:        signal.Leverage,
		AmountPercent:   signal.AmountPercent,
		TakeProfitPrice: signal.TakeProfitPrice,
		StopLossPrice:   signal.StopLossPrice,
	}

	// 加仓保证金截断到单仓名义上限内的剩余额度
	if position != nil {
		room := account.TotalEquity*e.config.MaxPositionMarginPercent/100 - position.Margin
		if marginUSDT > room {
			e.logger.Info("加仓金额超出单仓上限，按剩余额度截断",
				zap.Float64("requested_margin", marginUSDT),
				zap.Float64("room", room))
			marginUSDT = room
		}
		req.MarginUSDT = marginUSDT
	}

	// 大额订单走分片/TWAP 计划
	if e.planner != nil && position == nil {
		tier := e.planner.CapitalTier(marginUSDT)
		if tier == models.TierLarge || tier == models.TierXLarge {
			plan := e.planner.BuildPlan(signal.Symbol, signal.Direction, marginUSDT)
			result := e.planner.ExecutePlan(ctx, plan, req)
			status := ExecStatusExecuted
			if result.Status == models.ExecStatusFailed || result.Status == models.ExecStatusAborted {
				status = ExecStatusError
			}
			return &ExecutionResponse{
				Status: status,
				Action: "open_" + signal.Direction,
				Details: map[string]interface{}{
					"strategy":  plan.Strategy,
					"fill_rate": result.FillRate(),
					"slippage":  result.SlippagePercent,
					"result":    result,
				},
			}
		}
	}

	var result *OpenResult
	if position != nil {
		// 同向加仓路径，冲突检查已确认仍有余量
		result = e.trader.AddToPosition(ctx, signal.Symbol, req)
	} else if signal.Direction == models.DirectionLong {
		result = e.trader.OpenLong(ctx, signal.Symbol, req)
	} else {
		result = e.trader.OpenShort(ctx, signal.Symbol, req)
	}

	if !result.Success {
		return &ExecutionResponse{Status: ExecStatusRejected, Action: "open_" + signal.Direction, Reason: result.Error}
	}

	return &ExecutionResponse{
		Status: ExecStatusExecuted,
		Action: "open_" + signal.Direction,
		Details: map[string]interface{}{
			"executed_price": result.ExecutedPrice,
			"position":       result.Position,
		},
	}
}
