package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/life2you_mini/quorum/internal/models"
)

func TestCalculateTPDistance(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		tp        float64
		direction string
		expected  float64
	}{
		{name: "多仓未到止盈", price: 100000, tp: 102000, direction: models.DirectionLong, expected: 2.0},
		{name: "多仓越过止盈", price: 103000, tp: 102000, direction: models.DirectionLong, expected: -0.970873786},
		{name: "空仓未到止盈", price: 100000, tp: 98000, direction: models.DirectionShort, expected: 2.0},
		{name: "空仓越过止盈", price: 97000, tp: 98000, direction: models.DirectionShort, expected: -1.030927835},
		{name: "无止盈价", price: 100000, tp: 0, direction: models.DirectionLong, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateTPDistance(tt.price, tt.tp, tt.direction), 1e-6)
		})
	}
}

func TestCalculateSLDistance(t *testing.T) {
	// 多仓：价格高于止损为正
	assert.InDelta(t, 1.0, CalculateSLDistance(100000, 99000, models.DirectionLong), 1e-6)
	// 空仓：价格低于止损为正
	assert.InDelta(t, 1.0, CalculateSLDistance(100000, 101000, models.DirectionShort), 1e-6)
}

func TestCalculatePnLPercent(t *testing.T) {
	position := &models.Position{Margin: 1000, UnrealizedPnL: 150}
	assert.InDelta(t, 15.0, CalculatePnLPercent(position), 1e-9)

	assert.Zero(t, CalculatePnLPercent(nil))
	assert.Zero(t, CalculatePnLPercent(&models.Position{Margin: 0}))
}

func TestCalculateLiquidationPrice(t *testing.T) {
	long := &models.Position{
		Direction:  models.DirectionLong,
		EntryPrice: 100000,
		Leverage:   10,
	}
	// 10倍杠杆多仓：入场价下方约 10% - mmr
	liq := CalculateLiquidationPrice(long, 0.005)
	assert.InDelta(t, 90500, liq, 1e-6)

	short := &models.Position{
		Direction:  models.DirectionShort,
		EntryPrice: 100000,
		Leverage:   10,
	}
	liq = CalculateLiquidationPrice(short, 0.005)
	assert.InDelta(t, 109500, liq, 1e-6)
}

func TestTPHit(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		tp        float64
		direction string
		expected  bool
	}{
		{name: "多仓到达止盈", price: 102000, tp: 102000, direction: models.DirectionLong, expected: true},
		{name: "多仓未到止盈", price: 101999, tp: 102000, direction: models.DirectionLong, expected: false},
		{name: "空仓到达止盈", price: 98000, tp: 98000, direction: models.DirectionShort, expected: true},
		{name: "空仓未到止盈", price: 98001, tp: 98000, direction: models.DirectionShort, expected: false},
		{name: "无止盈价不触发", price: 102000, tp: 0, direction: models.DirectionLong, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TPHit(tt.price, tt.tp, tt.direction))
		})
	}
}

func TestSLHit(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		sl        float64
		direction string
		expected  bool
	}{
		{name: "多仓触及止损", price: 99000, sl: 99000, direction: models.DirectionLong, expected: true},
		{name: "多仓未触止损", price: 99001, sl: 99000, direction: models.DirectionLong, expected: false},
		{name: "空仓触及止损", price: 101000, sl: 101000, direction: models.DirectionShort, expected: true},
		{name: "空仓未触止损", price: 100999, sl: 101000, direction: models.DirectionShort, expected: false},
		{name: "无止损价不触发", price: 90000, sl: 0, direction: models.DirectionLong, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SLHit(tt.price, tt.sl, tt.direction))
		})
	}
}
