package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/consensus"
	"github.com/life2you_mini/quorum/internal/models"
	"github.com/life2you_mini/quorum/internal/trading"
)

// 默认参数
const (
	DefaultDecisionInterval = 15 * time.Minute
	DefaultCooldown         = 5 * time.Minute
	DefaultMinHoldConf      = 55
)

// VoteCollector 委员会投票收集器
type VoteCollector interface {
	CollectVotes(ctx context.Context, symbol string) ([]models.AgentVote, error)
}

// SignalExecutor 信号执行入口
type SignalExecutor interface {
	Execute(ctx context.Context, signal *models.TradingSignal) *trading.ExecutionResponse
}

// PriceSource 决策时刻的入场参考价来源
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Config 调度器配置
type Config struct {
	Symbol            string
	DecisionInterval  time.Duration
	Cooldown          time.Duration
	MaxLeverage       int
	TPMarginPercent   float64 // 止盈百分比（按保证金计）
	SLMarginPercent   float64 // 止损百分比（按保证金计）
	MinOpenConfidence int     // 低于此置信度降级为 hold
}

// CycleRecord 单轮决策的结果摘要
type CycleRecord struct {
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Skipped    bool                       `json:"skipped"`
	SkipReason string                     `json:"skip_reason,omitempty"`
	Signal     *models.TradingSignal      `json:"signal,omitempty"`
	Response   *trading.ExecutionResponse `json:"response,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Scheduler 固定间隔的决策循环
//
// 每个周期：触发锁 → 取入场价 → 收集投票 → 共识聚合 → 构建信号 → 执行 → 冷却。
// 周期内任一步失败只结束本轮，不终止循环。
type Scheduler struct {
	logger    *zap.Logger
	config    Config
	lock      *TriggerLock
	collector VoteCollector
	executor  SignalExecutor
	prices    PriceSource

	mu         sync.Mutex
	cycleCount int
	skipCount  int
	lastCycle  *CycleRecord
	isRunning  bool
}

// NewScheduler 创建决策调度器
func NewScheduler(config Config, lock *TriggerLock, collector VoteCollector, executor SignalExecutor, prices PriceSource, logger *zap.Logger) *Scheduler {
	if config.DecisionInterval <= 0 {
		config.DecisionInterval = DefaultDecisionInterval
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.MinOpenConfidence <= 0 {
		config.MinOpenConfidence = DefaultMinHoldConf
	}
	return &Scheduler{
		logger:    logger.With(zap.String("component", "scheduler")),
		config:    config,
		lock:      lock,
		collector: collector,
		executor:  executor,
		prices:    prices,
	}
}

// Start 启动决策循环，阻塞直至 ctx 取消
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.logger.Info("启动决策调度器",
		zap.String("symbol", s.config.Symbol),
		zap.Duration("decision_interval", s.config.DecisionInterval),
		zap.Duration("cooldown", s.config.Cooldown))

	ticker := time.NewTicker(s.config.DecisionInterval)
	defer ticker.Stop()

	// 启动后立即跑第一轮
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("决策调度器退出")
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle 执行一轮完整决策，返回本轮摘要
// 触发锁占用或冷却未到时跳过本轮并记录原因
func (s *Scheduler) RunCycle(ctx context.Context) *CycleRecord {
	record := &CycleRecord{StartedAt: time.Now()}
	defer func() {
		record.FinishedAt = time.Now()
		s.mu.Lock()
		s.cycleCount++
		if record.Skipped {
			s.skipCount++
		}
		s.lastCycle = record
		s.mu.Unlock()
	}()

	if ok, reason := s.lock.CanTrigger(); !ok {
		record.Skipped = true
		record.SkipReason = reason
		s.logger.Info("跳过本轮决策", zap.String("reason", reason))
		return record
	}

	gen, reason := s.lock.AcquireCheck("scheduler")
	if gen == 0 {
		// 与手动触发竞争失败
		record.Skipped = true
		record.SkipReason = reason
		s.logger.Info("跳过本轮决策", zap.String("reason", reason))
		return record
	}

	// 前置检查：入场参考价必须可得
	entryPrice, err := s.prices.GetPrice(ctx, s.config.Symbol)
	if err != nil {
		s.lock.Abort(gen)
		record.Error = fmt.Sprintf("获取入场参考价失败: %v", err)
		s.logger.Warn("决策前置检查失败", zap.Error(err))
		return record
	}

	if !s.lock.BeginAnalysis(gen) {
		// 分析开始前被强制抢占
		record.Skipped = true
		record.SkipReason = "触发锁已被抢占"
		s.logger.Warn("触发锁在分析开始前被抢占")
		return record
	}
	// 分析完成后进入冷却；被抢占时 Release 为空操作
	defer s.lock.Release(gen, s.config.Cooldown)

	votes, err := s.collector.CollectVotes(ctx, s.config.Symbol)
	if err != nil {
		record.Error = fmt.Sprintf("收集委员会投票失败: %v", err)
		s.logger.Error("收集委员会投票失败", zap.Error(err))
		return record
	}

	signal, err := s.buildSignal(votes, entryPrice)
	if err != nil {
		record.Error = fmt.Sprintf("构建交易信号失败: %v", err)
		s.logger.Error("构建交易信号失败", zap.Error(err))
		return record
	}
	record.Signal = signal

	s.logger.Info("共识信号生成",
		zap.String("symbol", signal.Symbol),
		zap.String("direction", signal.Direction),
		zap.Int("confidence", signal.Confidence),
		zap.Int("leverage", signal.Leverage),
		zap.Float64("amount_percent", signal.AmountPercent),
		zap.Int("total_votes", signal.AgentsConsensus.TotalVotes))

	resp := s.executor.Execute(ctx, signal)
	record.Response = resp

	s.logger.Info("信号执行完成",
		zap.String("status", resp.Status),
		zap.String("action", resp.Action),
		zap.String("reason", resp.Reason))
	return record
}

// buildSignal 共识聚合并构建信号
// 共识方向为开仓但置信度不足时降级为 hold
func (s *Scheduler) buildSignal(votes []models.AgentVote, entryPrice float64) (*models.TradingSignal, error) {
	summary := consensus.Summarize(votes)
	direction := summary.ConsensusDirection
	confidence := consensus.CalculateConfidence(votes, direction)

	if (direction == models.DirectionLong || direction == models.DirectionShort) &&
		confidence < s.config.MinOpenConfidence {
		s.logger.Info("共识置信度不足，降级为观望",
			zap.String("direction", direction),
			zap.Int("confidence", confidence),
			zap.Int("min_required", s.config.MinOpenConfidence))
		direction = models.DirectionHold
	}

	leverage := consensus.CalculateLeverage(confidence, s.config.MaxLeverage)
	amountPercent := consensus.CalculatePositionSize(confidence) * 100

	reasoning := fmt.Sprintf("委员会 %d 票: %d 多 / %d 空 / %d 观望，共识强度 %.0f%%",
		summary.TotalVotes, summary.LongCount, summary.ShortCount, summary.HoldCount,
		summary.ConsensusStrength*100)

	return models.NewTradingSignal(
		direction, s.config.Symbol,
		entryPrice, leverage, amountPercent, confidence,
		s.config.TPMarginPercent, s.config.SLMarginPercent,
		reasoning, summary,
	)
}

// Status 调度器状态快照
type Status struct {
	Running    bool         `json:"running"`
	Symbol     string       `json:"symbol"`
	CycleCount int          `json:"cycle_count"`
	SkipCount  int          `json:"skip_count"`
	Lock       LockStatus   `json:"lock"`
	LastCycle  *CycleRecord `json:"last_cycle,omitempty"`
}

// GetStatus 返回状态快照
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:    s.isRunning,
		Symbol:     s.config.Symbol,
		CycleCount: s.cycleCount,
		SkipCount:  s.skipCount,
		Lock:       s.lock.GetStatus(),
		LastCycle:  s.lastCycle,
	}
}
