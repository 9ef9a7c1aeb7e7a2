package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/models"
)

// LedgerSnapshot 账本状态快照，用于跨重启恢复
type LedgerSnapshot struct {
	Account    models.Account     `json:"account"`
	Position   *models.Position   `json:"position,omitempty"`
	MarkPrices map[string]float64 `json:"mark_prices"`
	SavedAt    time.Time          `json:"saved_at"`
}

// LedgerStore 账本持久化的窄接口
type LedgerStore interface {
	SaveLedgerSnapshot(ctx context.Context, snap *LedgerSnapshot) error
	LoadLedgerSnapshot(ctx context.Context) (*LedgerSnapshot, error)
	PushTradeRecord(ctx context.Context, record *models.TradeRecord) error
	GetTradeHistory(ctx context.Context, limit int64) ([]models.TradeRecord, error)
}

// SimulatedConfig 模拟账本配置
type SimulatedConfig struct {
	InitialBalance float64 // 初始余额（USDT）
	TakerFeeRate   float64 // 吃单费率，如 0.0005
	SlippageBps    float64 // 市价单对称滑点（基点）
	MinMarginUSDT  float64 // 单笔最低保证金
}

// DefaultSimulatedConfig 默认模拟账本配置
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		InitialBalance: 10000,
		TakerFeeRate:   0.0005,
		SlippageBps:    2,
		MinMarginUSDT:  10,
	}
}

// SimulatedTrader 模拟账本，Position/Account 的唯一属主
//
// 同一账户的全部变更经单一互斥锁串行化：两个并发开仓不可能同时成功。
// 任何变更要么完整生效要么保持原状，不存在部分写入。
type SimulatedTrader struct {
	logger *zap.Logger
	config SimulatedConfig
	store  LedgerStore // 可为 nil（纯内存模式）

	mu         sync.Mutex
	available  decimal.Decimal
	usedMargin decimal.Decimal
	position   *models.Position
	markPrices map[string]float64
}

// NewSimulatedTrader 创建模拟账本，store 非空时尝试恢复历史快照
func NewSimulatedTrader(ctx context.Context, config SimulatedConfig, logger *zap.Logger, store LedgerStore) *SimulatedTrader {
	t := &SimulatedTrader{
		logger:     logger.With(zap.String("component", "simulated_trader")),
		config:     config,
		store:      store,
		available:  decimal.NewFromFloat(config.InitialBalance),
		usedMargin: decimal.Zero,
		markPrices: make(map[string]float64),
	}

	if store != nil {
		snap, err := store.LoadLedgerSnapshot(ctx)
		if err != nil {
			t.logger.Warn("恢复账本快照失败，使用初始状态", zap.Error(err))
		} else if snap != nil {
			t.available = decimal.NewFromFloat(snap.Account.AvailableBalance)
			t.usedMargin = decimal.NewFromFloat(snap.Account.UsedMargin)
			t.position = snap.Position
			if snap.MarkPrices != nil {
				t.markPrices = snap.MarkPrices
			}
			t.logger.Info("账本快照已恢复",
				zap.Float64("available", snap.Account.AvailableBalance),
				zap.Bool("has_position", snap.Position != nil))
		}
	}

	return t
}

// OpenLong 开多仓
func (t *SimulatedTrader) OpenLong(ctx context.Context, symbol string, req OpenRequest) *OpenResult {
	return t.open(ctx, symbol, models.DirectionLong, req)
}

// OpenShort 开空仓
func (t *SimulatedTrader) OpenShort(ctx context.Context, symbol string, req OpenRequest) *OpenResult {
	return t.open(ctx, symbol, models.DirectionShort, req)
}

// open 统一开仓路径，持锁执行
func (t *SimulatedTrader) open(ctx context.Context, symbol, direction string, req OpenRequest) *OpenResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.position != nil {
		return &OpenResult{Success: false, Error: fmt.Sprintf("已有持仓 %s %s，不能重复开仓", t.position.Symbol, t.position.Direction)}
	}
	if req.Leverage < 1 {
		return &OpenResult{Success: false, Error: fmt.Sprintf("杠杆倍数无效: %d", req.Leverage)}
	}

	mark, ok := t.markPrices[symbol]
	if !ok || mark <= 0 {
		return &OpenResult{Success: false, Error: fmt.Sprintf("缺少标记价格: %s", symbol)}
	}

	margin := t.resolveMargin(req)
	if margin.LessThan(decimal.NewFromFloat(t.config.MinMarginUSDT)) {
		return &OpenResult{Success: false, Error: fmt.Sprintf("保证金 %s 低于最小交易额 %.2f USDT", margin.StringFixed(2), t.config.MinMarginUSDT)}
	}

	execPrice := t.slippedPrice(mark, direction, true)
	leverage := decimal.NewFromInt(int64(req.Leverage))
	notional := margin.Mul(leverage)
	fee := notional.Mul(decimal.NewFromFloat(t.config.TakerFeeRate))
	cost := margin.Add(fee)

	if cost.GreaterThan(t.available) {
		return &OpenResult{Success: false, Error: fmt.Sprintf("可用余额不足: 需要 %s，可用 %s", cost.StringFixed(2), t.available.StringFixed(2))}
	}

	size := notional.Div(decimal.NewFromFloat(execPrice))

	// 校验已全部通过，以下变更一次性生效
	t.available = t.available.Sub(cost)
	t.usedMargin = t.usedMargin.Add(margin)
	t.position = &models.Position{
		Symbol:          symbol,
		Direction:       direction,
		Size:            size.InexactFloat64(),
		EntryPrice:      execPrice,
		Leverage:        req.Leverage,
		Margin:          margin.InexactFloat64(),
		TakeProfitPrice: req.TakeProfitPrice,
		StopLossPrice:   req.StopLossPrice,
		CreatedAt:       time.Now(),
	}

	t.logger.Info("开仓成功",
		zap.String("symbol", symbol),
		zap.String("direction", direction),
		zap.Float64("executed_price", execPrice),
		zap.String("margin", margin.StringFixed(2)),
		zap.Int("leverage", req.Leverage))

	t.recordTrade(ctx, "open", direction, symbol, size.InexactFloat64(), execPrice, margin.InexactFloat64(), req.Leverage, 0)
	t.persist(ctx)

	pos := *t.position
	return &OpenResult{Success: true, ExecutedPrice: execPrice, Position: &pos}
}

// AddToPosition 向现有同向持仓加仓
func (t *SimulatedTrader) AddToPosition(ctx context.Context, symbol string, req OpenRequest) *OpenResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.position == nil {
		return &OpenResult{Success: false, Error: "没有可加仓的持仓"}
	}
	if t.position.Symbol != symbol {
		return &OpenResult{Success: false, Error: fmt.Sprintf("持仓交易对不匹配: %s != %s", t.position.Symbol, symbol)}
	}

	mark, ok := t.markPrices[symbol]
	if !ok || mark <= 0 {
		return &OpenResult{Success: false, Error: fmt.Sprintf("缺少标记价格: %s", symbol)}
	}

	margin := t.resolveMargin(req)
	if margin.LessThan(decimal.NewFromFloat(t.config.MinMarginUSDT)) {
		return &OpenResult{Success: false, Error: fmt.Sprintf("加仓保证金 %s 低于最小交易额", margin.StringFixed(2))}
	}

	leverage := decimal.NewFromInt(int64(t.position.Leverage))
	execPrice := t.slippedPrice(mark, t.position.Direction, true)
	notional := margin.Mul(leverage)
	fee := notional.Mul(decimal.NewFromFloat(t.config.TakerFeeRate))
	cost := margin.Add(fee)

	if cost.GreaterThan(t.available) {
		return &OpenResult{Success: false, Error: fmt.Sprintf("可用余额不足: 需要 %s，可用 %s", cost.StringFixed(2), t.available.StringFixed(2))}
	}

	addSize := notional.Div(decimal.NewFromFloat(execPrice))
	oldSize := decimal.NewFromFloat(t.position.Size)
	oldNotional := oldSize.Mul(decimal.NewFromFloat(t.position.EntryPrice))
	newSize := oldSize.Add(addSize)
	// 加权平均入场价
	newEntry := oldNotional.Add(addSize.Mul(decimal.NewFromFloat(execPrice))).Div(newSize)

	t.available = t.available.Sub(cost)
	t.usedMargin = t.usedMargin.Add(margin)
	t.position.Size = newSize.InexactFloat64()
	t.position.EntryPrice = newEntry.InexactFloat64()
	t.position.Margin = decimal.NewFromFloat(t.position.Margin).Add(margin).InexactFloat64()
	t.refreshUnrealized(mark)

	t.logger.Info("加仓成功",
		zap.String("symbol", symbol),
		zap.Float64("executed_price", execPrice),
		zap.String("added_margin", margin.StringFixed(2)))

	t.recordTrade(ctx, "add", t.position.Direction, symbol, addSize.InexactFloat64(), execPrice, margin.InexactFloat64(), t.position.Leverage, 0)
	t.persist(ctx)

	pos := *t.position
	return &OpenResult{Success: true, ExecutedPrice: execPrice, Position: &pos}
}

// ClosePosition 平仓并结算已实现盈亏
func (t *SimulatedTrader) ClosePosition(ctx context.Context, symbol string) *CloseResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.position == nil {
		return &CloseResult{Success: false, Error: "当前没有持仓"}
	}
	if symbol != "" && t.position.Symbol != symbol {
		return &CloseResult{Success: false, Error: fmt.Sprintf("持仓交易对不匹配: %s != %s", t.position.Symbol, symbol)}
	}

	mark, ok := t.markPrices[t.position.Symbol]
	if !ok || mark <= 0 {
		return &CloseResult{Success: false, Error: fmt.Sprintf("缺少标记价格: %s", t.position.Symbol)}
	}

	exitPrice := t.slippedPrice(mark, t.position.Direction, false)
	size := decimal.NewFromFloat(t.position.Size)
	entry := decimal.NewFromFloat(t.position.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	var pnl decimal.Decimal
	if t.position.Direction == models.DirectionLong {
		pnl = exit.Sub(entry).Mul(size)
	} else {
		pnl = entry.Sub(exit).Mul(size)
	}

	fee := size.Mul(exit).Mul(decimal.NewFromFloat(t.config.TakerFeeRate))
	margin := decimal.NewFromFloat(t.position.Margin)
	realized := pnl.Sub(fee)

	closed := *t.position
	t.available = t.available.Add(margin).Add(realized)
	t.usedMargin = t.usedMargin.Sub(margin)
	t.position = nil

	t.logger.Info("平仓完成",
		zap.String("symbol", closed.Symbol),
		zap.String("direction", closed.Direction),
		zap.Float64("exit_price", exitPrice),
		zap.String("realized_pnl", realized.StringFixed(2)))

	t.recordTrade(ctx, "close", closed.Direction, closed.Symbol, closed.Size, exitPrice, closed.Margin, closed.Leverage, realized.InexactFloat64())
	t.persist(ctx)

	return &CloseResult{Success: true, PnL: realized.InexactFloat64(), ExitPrice: exitPrice}
}

// GetPosition 返回当前持仓的副本，无持仓返回 nil
func (t *SimulatedTrader) GetPosition(ctx context.Context) (*models.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.position == nil {
		return nil, nil
	}
	pos := *t.position
	return &pos, nil
}

// GetAccount 返回账户快照
func (t *SimulatedTrader) GetAccount(ctx context.Context) (*models.Account, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accountLocked(), nil
}

// UpdatePrice 推进标记价并刷新未实现盈亏
func (t *SimulatedTrader) UpdatePrice(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("无效的标记价格: %f", price)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markPrices[symbol] = price
	if t.position != nil && t.position.Symbol == symbol {
		t.refreshUnrealized(price)
	}
	return nil
}

// SetTPSL 调整当前持仓的止盈止损价
func (t *SimulatedTrader) SetTPSL(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.position == nil || t.position.Symbol != symbol {
		return fmt.Errorf("没有匹配的持仓: %s", symbol)
	}
	t.position.TakeProfitPrice = takeProfit
	t.position.StopLossPrice = stopLoss
	t.persist(ctx)
	return nil
}

// GetTradeHistory 成交历史由持久层维护，纯内存模式不支持
func (t *SimulatedTrader) GetTradeHistory(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if t.store == nil {
		return nil, fmt.Errorf("操作不支持: get_trade_history 需要持久层")
	}
	return t.store.GetTradeHistory(ctx, int64(limit))
}

// accountLocked 以当前状态组装账户视图，调用方必须持锁
func (t *SimulatedTrader) accountLocked() *models.Account {
	upnl := decimal.Zero
	if t.position != nil {
		upnl = decimal.NewFromFloat(t.position.UnrealizedPnL)
	}
	equity := t.available.Add(t.usedMargin).Add(upnl)
	return &models.Account{
		TotalEquity:      equity.InexactFloat64(),
		AvailableBalance: t.available.InexactFloat64(),
		UsedMargin:       t.usedMargin.InexactFloat64(),
		UnrealizedPnL:    upnl.InexactFloat64(),
	}
}

// refreshUnrealized 按标记价刷新持仓浮盈，调用方必须持锁
func (t *SimulatedTrader) refreshUnrealized(mark float64) {
	if t.position == nil {
		return
	}
	size := decimal.NewFromFloat(t.position.Size)
	entry := decimal.NewFromFloat(t.position.EntryPrice)
	price := decimal.NewFromFloat(mark)
	var pnl decimal.Decimal
	if t.position.Direction == models.DirectionLong {
		pnl = price.Sub(entry).Mul(size)
	} else {
		pnl = entry.Sub(price).Mul(size)
	}
	t.position.UnrealizedPnL = pnl.InexactFloat64()
}

// resolveMargin 解析请求的保证金额
func (t *SimulatedTrader) resolveMargin(req OpenRequest) decimal.Decimal {
	if req.MarginUSDT > 0 {
		return decimal.NewFromFloat(req.MarginUSDT)
	}
	return t.available.Mul(decimal.NewFromFloat(req.AmountPercent)).Div(decimal.NewFromInt(100))
}

// slippedPrice 对市价单施加对称滑点
// 开多/平空按卖一方向抬价，开空/平多按买一方向压价
func (t *SimulatedTrader) slippedPrice(mark float64, direction string, opening bool) float64 {
	slip := t.config.SlippageBps / 10000
	adverse := direction == models.DirectionLong
	if !opening {
		adverse = !adverse
	}
	if adverse {
		return mark * (1 + slip)
	}
	return mark * (1 - slip)
}

// recordTrade 写入成交流水（尽力而为）
func (t *SimulatedTrader) recordTrade(ctx context.Context, action, direction, symbol string, size, price, margin float64, leverage int, realized float64) {
	if t.store == nil {
		return
	}
	record := &models.TradeRecord{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Direction:   direction,
		Action:      action,
		Size:        size,
		Price:       price,
		Margin:      margin,
		Leverage:    leverage,
		RealizedPnL: realized,
		Timestamp:   time.Now(),
	}
	if err := t.store.PushTradeRecord(ctx, record); err != nil {
		t.logger.Warn("写入成交流水失败", zap.Error(err))
	}
}

// persist 持久化账本快照（尽力而为，失败不影响账本状态）
func (t *SimulatedTrader) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	snap := &LedgerSnapshot{
		Account:    *t.accountLocked(),
		MarkPrices: t.markPrices,
		SavedAt:    time.Now(),
	}
	if t.position != nil {
		pos := *t.position
		snap.Position = &pos
	}
	if err := t.store.SaveLedgerSnapshot(ctx, snap); err != nil {
		t.logger.Warn("持久化账本快照失败", zap.Error(err))
	}
}
