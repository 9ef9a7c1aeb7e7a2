// Package monitor 持仓监控：独立轮询账本、检测止盈止损、维护权益历史
package monitor

import (
	"github.com/life2you_mini/quorum/internal/models"
)

// CalculateTPDistance 计算当前价格到止盈价的百分比距离
// 符号约定随方向变化：多仓为 (tp - price)/price，空仓为 (price - tp)/price，
// 正值表示尚未到达止盈
func CalculateTPDistance(currentPrice, takeProfitPrice float64, direction string) float64 {
	if currentPrice <= 0 || takeProfitPrice <= 0 {
		return 0
	}
	if direction == models.DirectionLong {
		return (takeProfitPrice - currentPrice) / currentPrice * 100
	}
	return (currentPrice - takeProfitPrice) / currentPrice * 100
}

// CalculateSLDistance 计算当前价格到止损价的百分比距离
// 正值表示尚未触及止损
func CalculateSLDistance(currentPrice, stopLossPrice float64, direction string) float64 {
	if currentPrice <= 0 || stopLossPrice <= 0 {
		return 0
	}
	if direction == models.DirectionLong {
		return (currentPrice - stopLossPrice) / currentPrice * 100
	}
	return (stopLossPrice - currentPrice) / currentPrice * 100
}

// CalculatePnLPercent 未实现盈亏相对保证金的百分比
func CalculatePnLPercent(position *models.Position) float64 {
	if position == nil || position.Margin <= 0 {
		return 0
	}
	return position.UnrealizedPnL / position.Margin * 100
}

// CalculateLiquidationPrice 估算清算价格
// LiqPrice = EntryPrice * (1 ∓ 1/Leverage ± MMR)，多仓取下方，空仓取上方
func CalculateLiquidationPrice(position *models.Position, maintenanceMarginRate float64) float64 {
	if position == nil || position.Leverage < 1 {
		return 0
	}
	inv := 1.0 / float64(position.Leverage)
	if position.Direction == models.DirectionLong {
		return position.EntryPrice * (1 - inv + maintenanceMarginRate)
	}
	return position.EntryPrice * (1 + inv - maintenanceMarginRate)
}

// CalculateLiquidationDistance 当前价格到清算价的百分比距离
func CalculateLiquidationDistance(currentPrice, liquidationPrice float64, direction string) float64 {
	if currentPrice <= 0 {
		return 0
	}
	if direction == models.DirectionLong {
		return (currentPrice - liquidationPrice) / currentPrice * 100
	}
	return (liquidationPrice - currentPrice) / currentPrice * 100
}

// TPHit 判断价格是否到达止盈
func TPHit(currentPrice, takeProfitPrice float64, direction string) bool {
	if takeProfitPrice <= 0 {
		return false
	}
	if direction == models.DirectionLong {
		return currentPrice >= takeProfitPrice
	}
	return currentPrice <= takeProfitPrice
}

// SLHit 判断价格是否触及止损
func SLHit(currentPrice, stopLossPrice float64, direction string) bool {
	if stopLossPrice <= 0 {
		return false
	}
	if direction == models.DirectionLong {
		return currentPrice <= stopLossPrice
	}
	return currentPrice >= stopLossPrice
}
