// Package services 组件装配：按配置构建并托管全部子系统的生命周期
package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/agents"
	"github.com/life2you_mini/quorum/internal/config"
	"github.com/life2you_mini/quorum/internal/llm"
	"github.com/life2you_mini/quorum/internal/market"
	"github.com/life2you_mini/quorum/internal/models"
	"github.com/life2you_mini/quorum/internal/monitor"
	"github.com/life2you_mini/quorum/internal/resilience"
	"github.com/life2you_mini/quorum/internal/scheduler"
	"github.com/life2you_mini/quorum/internal/storage"
	"github.com/life2you_mini/quorum/internal/trading"
)

// quorumService 委员会决策交易服务
type quorumService struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	feedFactory *market.FeedFactory
	store       *storage.Client // 可为 nil（纯内存模式）
	trader      *trading.SimulatedTrader
	executor    *trading.TradeExecutor
	committee   *agents.Committee
	posMonitor  *monitor.PositionMonitor
	scheduler   *scheduler.Scheduler
}

// NewQuorumService 创建服务并完成全部组件装配
func NewQuorumService(
	parentCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (*quorumService, error) {
	ctx, cancel := context.WithCancel(parentCtx)

	// Redis 存储（可选）
	var store *storage.Client
	if cfg.Redis.Enabled {
		var err error
		store, err = storage.NewClient(storage.Options{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("初始化Redis客户端失败: %w", err)
		}
	}

	// 行情源工厂
	feedFactory := market.NewFeedFactory()
	if cfg.Exchanges.Binance.Enabled {
		feedFactory.Register("binance", market.NewBinanceFeed(
			cfg.Exchanges.Binance.APIKey,
			cfg.Exchanges.Binance.APISecret,
			logger,
		))
	}
	if cfg.Exchanges.OKX.Enabled {
		feedFactory.Register("okx", market.NewOKXFeed(
			cfg.Exchanges.OKX.APIKey,
			cfg.Exchanges.OKX.APISecret,
			cfg.Exchanges.OKX.Passphrase,
			logger,
		))
	}
	primaryFeed, ok := feedFactory.Get(cfg.Exchanges.Primary)
	if !ok {
		cancel()
		return nil, fmt.Errorf("主行情源未注册: %s", cfg.Exchanges.Primary)
	}

	// 模拟账本
	var ledgerStore trading.LedgerStore
	if store != nil {
		ledgerStore = store
	}
	trader := trading.NewSimulatedTrader(ctx, trading.SimulatedConfig{
		InitialBalance: cfg.Trading.InitialBalance,
		TakerFeeRate:   cfg.Trading.TakerFeeRate,
		SlippageBps:    cfg.Trading.SlippageBps,
		MinMarginUSDT:  cfg.Trading.MinMarginUSDT,
	}, logger, ledgerStore)

	// 执行计划器与执行器
	planner := trading.NewExecutionPlanner(trading.PlannerConfig{
		SmallCutoffUSDT:    cfg.Execution.SmallCutoffUSDT,
		MediumCutoffUSDT:   cfg.Execution.MediumCutoffUSDT,
		LargeCutoffUSDT:    cfg.Execution.LargeCutoffUSDT,
		MinSlices:          cfg.Execution.MinSlices,
		MaxSlices:          cfg.Execution.MaxSlices,
		SliceInterval:      time.Duration(cfg.Execution.SliceIntervalSeconds) * time.Second,
		TWAPInterval:       time.Duration(cfg.Execution.TWAPIntervalSeconds) * time.Second,
		MaxSlippagePercent: cfg.Execution.MaxSlippagePercent,
	}, trader, logger)

	executor := trading.NewTradeExecutor(trading.ExecutorConfig{
		MinBalanceUSDT:           cfg.Execution.MinBalanceUSDT,
		MaxLeverage:              cfg.Execution.MaxLeverage,
		MaxPositionMarginPercent: cfg.Execution.MaxPositionMarginPercent,
	}, trader, planner, logger)

	// LLM客户端与弹性层
	llmClient, err := llm.NewGatewayClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化LLM客户端失败: %w", err)
	}

	breaker := resilience.NewCircuitBreaker("llm_gateway", resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		SuccessThreshold: cfg.Resilience.SuccessThreshold,
		RecoveryTimeout:  time.Duration(cfg.Resilience.RecoveryTimeoutSeconds) * time.Second,
	}, logger)
	retryHandler := resilience.NewRetryHandler(resilience.RetryConfig{
		MaxRetries:      cfg.Resilience.MaxRetries,
		BaseDelay:       time.Duration(cfg.Resilience.BaseDelaySeconds * float64(time.Second)),
		MaxDelay:        time.Duration(cfg.Resilience.MaxDelaySeconds * float64(time.Second)),
		ExponentialBase: cfg.Resilience.ExponentialBase,
		JitterFraction:  cfg.Resilience.JitterFraction,
	}, breaker, logger)

	// 委员会
	personas := make([]agents.Persona, 0, len(cfg.Committee.Personas))
	for _, p := range cfg.Committee.Personas {
		personas = append(personas, agents.Persona{Name: p.Name, SystemPrompt: p.SystemPrompt})
	}
	committee := agents.NewCommittee(agents.Config{
		Personas:     personas,
		MinVotes:     cfg.Committee.MinVotes,
		AgentTimeout: time.Duration(cfg.Committee.AgentTimeoutSeconds) * time.Second,
	}, llmClient, retryHandler, primaryFeed, logger)

	// 持仓监控：止盈止损触发时按配置自动平仓
	callbacks := monitor.Callbacks{}
	if cfg.Monitor.AutoCloseOnTrigger {
		callbacks.OnTPHit = func(position *models.Position, price float64) {
			closeOnTrigger(ctx, trader, logger, position, price, "止盈")
		}
		callbacks.OnSLHit = func(position *models.Position, price float64) {
			closeOnTrigger(ctx, trader, logger, position, price, "止损")
		}
	}
	var snapshotStore monitor.SnapshotStore
	if store != nil {
		snapshotStore = store
	}
	posMonitor := monitor.NewPositionMonitor(monitor.Config{
		Symbol:                cfg.System.Symbol,
		CheckInterval:         time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second,
		EquityHistoryCap:      cfg.Monitor.EquityHistoryCap,
		MaintenanceMarginRate: cfg.Monitor.MaintenanceMarginRate,
	}, trader, primaryFeed, snapshotStore, callbacks, logger)

	// 决策调度：有存储时落盘每轮决策摘要
	var signalExecutor scheduler.SignalExecutor = executor
	if store != nil {
		signalExecutor = &decisionRecorder{inner: executor, store: store, logger: logger}
	}
	lock := scheduler.NewTriggerLock()
	sched := scheduler.NewScheduler(scheduler.Config{
		Symbol:            cfg.System.Symbol,
		DecisionInterval:  cfg.Scheduler.DecisionInterval(),
		Cooldown:          cfg.Scheduler.Cooldown(),
		MaxLeverage:       cfg.Execution.MaxLeverage,
		TPMarginPercent:   cfg.Scheduler.TPMarginPercent,
		SLMarginPercent:   cfg.Scheduler.SLMarginPercent,
		MinOpenConfidence: cfg.Scheduler.MinOpenConfidence,
	}, lock, committee, signalExecutor, primaryFeed, logger)

	return &quorumService{
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		feedFactory: feedFactory,
		store:       store,
		trader:      trader,
		executor:    executor,
		committee:   committee,
		posMonitor:  posMonitor,
		scheduler:   sched,
	}, nil
}

// decisionRecorder 执行器装饰：每轮决策连同执行结果写入历史
type decisionRecorder struct {
	inner  scheduler.SignalExecutor
	store  *storage.Client
	logger *zap.Logger
}

func (d *decisionRecorder) Execute(ctx context.Context, signal *models.TradingSignal) *trading.ExecutionResponse {
	resp := d.inner.Execute(ctx, signal)
	record := map[string]interface{}{
		"timestamp":      time.Now(),
		"symbol":         signal.Symbol,
		"direction":      signal.Direction,
		"confidence":     signal.Confidence,
		"leverage":       signal.Leverage,
		"amount_percent": signal.AmountPercent,
		"entry_price":    signal.EntryPrice,
		"status":         resp.Status,
		"action":         resp.Action,
		"reason":         resp.Reason,
	}
	if err := d.store.PushDecisionRecord(ctx, record); err != nil {
		d.logger.Warn("持久化决策记录失败", zap.Error(err))
	}
	return resp
}

// closeOnTrigger 监控回调触发的平仓
func closeOnTrigger(ctx context.Context, trader trading.Trader, logger *zap.Logger, position *models.Position, price float64, trigger string) {
	logger.Info("监控触发自动平仓",
		zap.String("trigger", trigger),
		zap.String("symbol", position.Symbol),
		zap.Float64("price", price))
	result := trader.ClosePosition(ctx, position.Symbol)
	if !result.Success {
		logger.Error("自动平仓失败",
			zap.String("trigger", trigger),
			zap.String("error", result.Error))
		return
	}
	logger.Info("自动平仓完成",
		zap.String("trigger", trigger),
		zap.Float64("pnl", result.PnL),
		zap.Float64("exit_price", result.ExitPrice))
}

// Start 启动服务
func (s *quorumService) Start() {
	s.logger.Info("启动委员会决策交易服务")

	// 启动持仓监控
	go func() {
		if err := s.posMonitor.Start(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("持仓监控启动失败", zap.Error(err))
		}
	}()

	// 启动决策调度
	go func() {
		if err := s.scheduler.Start(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("决策调度启动失败", zap.Error(err))
		}
	}()
}

// Stop 停止服务
func (s *quorumService) Stop(ctx context.Context) error {
	s.logger.Info("停止委员会决策交易服务")

	// 取消服务上下文，各循环自行退出
	s.cancel()

	// 关闭Redis连接
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("关闭Redis连接失败", zap.Error(err))
		}
	}

	// 等待服务优雅关闭的超时时间
	shutdownTimeout := 5 * time.Second

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
