package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/models"
)

// 默认参数
const (
	DefaultCheckInterval    = 15 * time.Second
	DefaultEquityHistoryCap = 1000
	defaultMaintenanceMMR   = 0.005
)

// LedgerReader 监控器对账本的只读视图
type LedgerReader interface {
	GetPosition(ctx context.Context) (*models.Position, error)
	GetAccount(ctx context.Context) (*models.Account, error)
	UpdatePrice(ctx context.Context, symbol string, price float64) error
}

// PriceSource 监控器消费的行情源
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// SnapshotStore 权益快照持久化的窄接口
type SnapshotStore interface {
	PushEquitySnapshot(ctx context.Context, snap *models.EquitySnapshot) error
}

// Callbacks 监控器的事件回调
// 监控器只发信号，不自行下平仓单；平仓由回调方（宿主）决定
type Callbacks struct {
	OnTPHit          func(position *models.Position, price float64)
	OnSLHit          func(position *models.Position, price float64)
	OnPositionClosed func(position *models.Position)
}

// Config 监控器配置
type Config struct {
	Symbol                string
	CheckInterval         time.Duration
	EquityHistoryCap      int
	MaintenanceMarginRate float64
}

// PositionSnapshot 单次巡检的持仓视图
type PositionSnapshot struct {
	Position            *models.Position `json:"position,omitempty"`
	CurrentPrice        float64          `json:"current_price"`
	PnLPercent          float64          `json:"pnl_percent"`
	TPDistancePercent   float64          `json:"tp_distance_percent"`
	SLDistancePercent   float64          `json:"sl_distance_percent"`
	LiquidationPrice    float64          `json:"liquidation_price"`
	LiquidationDistance float64          `json:"liquidation_distance"`
	Timestamp           time.Time        `json:"timestamp"`
}

// PositionMonitor 持仓监控器：独立轮询循环，不由请求驱动
// 单次巡检失败只记日志，循环在下一拍继续
type PositionMonitor struct {
	logger    *zap.Logger
	config    Config
	ledger    LedgerReader
	prices    PriceSource
	store     SnapshotStore // 可为 nil
	callbacks Callbacks

	mu            sync.Mutex
	tracked       *models.Position
	tpFired       bool
	slFired       bool
	equityHistory []models.EquitySnapshot
	lastSnapshot  *PositionSnapshot
	tickCount     int
	failureCount  int
	lastError     string
	isRunning     bool
}

// NewPositionMonitor 创建持仓监控器
func NewPositionMonitor(config Config, ledger LedgerReader, prices PriceSource, store SnapshotStore, callbacks Callbacks, logger *zap.Logger) *PositionMonitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.EquityHistoryCap <= 0 {
		config.EquityHistoryCap = DefaultEquityHistoryCap
	}
	if config.MaintenanceMarginRate <= 0 {
		config.MaintenanceMarginRate = defaultMaintenanceMMR
	}
	return &PositionMonitor{
		logger:    logger.With(zap.String("component", "position_monitor")),
		config:    config,
		ledger:    ledger,
		prices:    prices,
		store:     store,
		callbacks: callbacks,
	}
}

// Start 启动监控循环，阻塞直至 ctx 取消
func (m *PositionMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	m.isRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.isRunning = false
		m.mu.Unlock()
	}()

	m.logger.Info("启动持仓监控器",
		zap.String("symbol", m.config.Symbol),
		zap.Duration("check_interval", m.config.CheckInterval))

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	// 立即执行一次巡检
	if err := m.checkOnce(ctx); err != nil {
		m.logger.Warn("首次持仓巡检失败", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("持仓监控器退出")
			return ctx.Err()
		case <-ticker.C:
			if err := m.checkOnce(ctx); err != nil {
				// 瞬时失败不终止循环
				m.logger.Warn("持仓巡检失败，下一拍重试", zap.Error(err))
			}
		}
	}
}

// checkOnce 单次巡检
func (m *PositionMonitor) checkOnce(ctx context.Context) error {
	m.mu.Lock()
	m.tickCount++
	m.mu.Unlock()

	price, err := m.prices.GetPrice(ctx, m.config.Symbol)
	if err != nil {
		m.recordFailure(err)
		return fmt.Errorf("获取最新价格失败: %w", err)
	}
	if err := m.ledger.UpdatePrice(ctx, m.config.Symbol, price); err != nil {
		m.recordFailure(err)
		return fmt.Errorf("推进标记价失败: %w", err)
	}

	position, err := m.ledger.GetPosition(ctx)
	if err != nil {
		m.recordFailure(err)
		return fmt.Errorf("获取持仓失败: %w", err)
	}
	account, err := m.ledger.GetAccount(ctx)
	if err != nil {
		m.recordFailure(err)
		return fmt.Errorf("获取账户失败: %w", err)
	}

	m.mu.Lock()
	tracked := m.tracked
	m.mu.Unlock()

	// 被跟踪的持仓消失：外部（执行器或止损回调）已平仓
	if tracked != nil && position == nil {
		m.logger.Info("检测到持仓已关闭",
			zap.String("symbol", tracked.Symbol),
			zap.String("direction", tracked.Direction))
		m.mu.Lock()
		m.tracked = nil
		m.tpFired = false
		m.slFired = false
		m.mu.Unlock()
		if m.callbacks.OnPositionClosed != nil {
			m.callbacks.OnPositionClosed(tracked)
		}
	}

	if position != nil {
		m.inspectPosition(position, price)
	} else {
		m.mu.Lock()
		m.lastSnapshot = &PositionSnapshot{CurrentPrice: price, Timestamp: time.Now()}
		m.mu.Unlock()
	}

	m.appendEquity(ctx, account, position)
	return nil
}

// inspectPosition 计算距离指标并触发 TP/SL 回调
func (m *PositionMonitor) inspectPosition(position *models.Position, price float64) {
	snap := &PositionSnapshot{
		Position:          position,
		CurrentPrice:      price,
		PnLPercent:        CalculatePnLPercent(position),
		TPDistancePercent: CalculateTPDistance(price, position.TakeProfitPrice, position.Direction),
		SLDistancePercent: CalculateSLDistance(price, position.StopLossPrice, position.Direction),
		Timestamp:         time.Now(),
	}
	snap.LiquidationPrice = CalculateLiquidationPrice(position, m.config.MaintenanceMarginRate)
	snap.LiquidationDistance = CalculateLiquidationDistance(price, snap.LiquidationPrice, position.Direction)

	m.mu.Lock()
	// 新持仓重置触发标记
	if m.tracked == nil || m.tracked.Symbol != position.Symbol ||
		m.tracked.Direction != position.Direction ||
		!m.tracked.CreatedAt.Equal(position.CreatedAt) {
		m.tpFired = false
		m.slFired = false
	}
	m.tracked = position
	m.lastSnapshot = snap
	fireTP := !m.tpFired && TPHit(price, position.TakeProfitPrice, position.Direction)
	fireSL := !m.slFired && SLHit(price, position.StopLossPrice, position.Direction)
	if fireTP {
		m.tpFired = true
	}
	if fireSL {
		m.slFired = true
	}
	m.mu.Unlock()

	m.logger.Debug("持仓巡检",
		zap.String("symbol", position.Symbol),
		zap.Float64("price", price),
		zap.Float64("pnl_percent", snap.PnLPercent),
		zap.Float64("tp_distance", snap.TPDistancePercent),
		zap.Float64("sl_distance", snap.SLDistancePercent))

	if fireTP {
		m.logger.Info("止盈条件触发",
			zap.String("symbol", position.Symbol),
			zap.Float64("price", price),
			zap.Float64("take_profit_price", position.TakeProfitPrice))
		if m.callbacks.OnTPHit != nil {
			m.callbacks.OnTPHit(position, price)
		}
	}
	if fireSL {
		m.logger.Warn("止损条件触发",
			zap.String("symbol", position.Symbol),
			zap.Float64("price", price),
			zap.Float64("stop_loss_price", position.StopLossPrice))
		if m.callbacks.OnSLHit != nil {
			m.callbacks.OnSLHit(position, price)
		}
	}
}

// appendEquity 追加权益快照到有界环并落盘
func (m *PositionMonitor) appendEquity(ctx context.Context, account *models.Account, position *models.Position) {
	snap := models.EquitySnapshot{
		Timestamp:     time.Now(),
		Equity:        account.TotalEquity,
		Balance:       account.AvailableBalance,
		UnrealizedPnL: account.UnrealizedPnL,
		HasPosition:   position != nil,
	}
	if position != nil {
		snap.Direction = position.Direction
	}

	m.mu.Lock()
	m.equityHistory = append(m.equityHistory, snap)
	// 超过容量丢弃最旧
	if len(m.equityHistory) > m.config.EquityHistoryCap {
		m.equityHistory = m.equityHistory[len(m.equityHistory)-m.config.EquityHistoryCap:]
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.PushEquitySnapshot(ctx, &snap); err != nil {
			m.logger.Warn("持久化权益快照失败", zap.Error(err))
		}
	}
}

func (m *PositionMonitor) recordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCount++
	m.lastError = err.Error()
}

// EquityHistory 返回权益历史的副本
func (m *PositionMonitor) EquityHistory() []models.EquitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.EquitySnapshot, len(m.equityHistory))
	copy(out, m.equityHistory)
	return out
}

// Status 监控器的可序列化状态快照
type Status struct {
	Running      bool              `json:"running"`
	Symbol       string            `json:"symbol"`
	TickCount    int               `json:"tick_count"`
	FailureCount int               `json:"failure_count"`
	LastError    string            `json:"last_error,omitempty"`
	LastSnapshot *PositionSnapshot `json:"last_snapshot,omitempty"`
	HistoryLen   int               `json:"history_len"`
}

// GetStatus 返回状态快照，用于健康/观测面
func (m *PositionMonitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:      m.isRunning,
		Symbol:       m.config.Symbol,
		TickCount:    m.tickCount,
		FailureCount: m.failureCount,
		LastError:    m.lastError,
		LastSnapshot: m.lastSnapshot,
		HistoryLen:   len(m.equityHistory),
	}
}
