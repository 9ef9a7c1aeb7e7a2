package models

import (
	"time"
)

// 投票取值边界
const (
	MinConfidence = 0
	MaxConfidence = 100
	MinLeverage   = 1
	MaxLeverage   = 125
)

// Vote 单个分析师的方向投票
// confidence 与 leverage 在构造时钳制进合法区间，越界值不拒绝
type Vote struct {
	Direction         string  `json:"direction"` // "long" / "short" / "hold"
	Confidence        int     `json:"confidence"`
	Leverage          int     `json:"leverage"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	Reasoning         string  `json:"reasoning"`
}

// NewVote 创建投票并钳制取值范围
func NewVote(direction string, confidence, leverage int, tpPercent, slPercent float64, reasoning string) Vote {
	if confidence < MinConfidence {
		confidence = MinConfidence
	}
	if confidence > MaxConfidence {
		confidence = MaxConfidence
	}
	if leverage < MinLeverage {
		leverage = MinLeverage
	}
	if leverage > MaxLeverage {
		leverage = MaxLeverage
	}
	return Vote{
		Direction:         direction,
		Confidence:        confidence,
		Leverage:          leverage,
		TakeProfitPercent: tpPercent,
		StopLossPercent:   slPercent,
		Reasoning:         reasoning,
	}
}

// AgentVote 将投票绑定到代理身份
type AgentVote struct {
	AgentName string    `json:"agent_name"`
	Vote      Vote      `json:"vote"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteSummary 投票列表的只读聚合
type VoteSummary struct {
	TotalVotes         int     `json:"total_votes"`
	LongCount          int     `json:"long_count"`
	ShortCount         int     `json:"short_count"`
	HoldCount          int     `json:"hold_count"`
	ConsensusDirection string  `json:"consensus_direction"`
	ConsensusStrength  float64 `json:"consensus_strength"`
}
