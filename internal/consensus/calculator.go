// Package consensus 将一组分析师投票聚合为单一方向决策
// 全部为纯函数，无副作用
package consensus

import (
	"github.com/life2you_mini/quorum/internal/models"
)

// 阶梯表刻意离散化而非线性插值：
// LLM 给出的置信度噪声很大，离散档位避免制造虚假精度

// CalculateConfidence 统计与目标方向一致的票数并映射为置信度
// direction 为空时使用多数方向；空投票列表返回 30
func CalculateConfidence(votes []models.AgentVote, direction string) int {
	if len(votes) == 0 {
		return 30
	}

	if direction == "" {
		direction = Summarize(votes).ConsensusDirection
	}

	agree := 0
	for _, av := range votes {
		if av.Vote.Direction == direction {
			agree++
		}
	}

	switch {
	case agree >= 5:
		return 90
	case agree >= 4:
		return 80
	case agree >= 3:
		return 65
	case agree >= 2:
		return 50
	default:
		return 30
	}
}

// CalculateLeverage 由置信度映射杠杆倍数，上限 maxLeverage
func CalculateLeverage(confidence, maxLeverage int) int {
	var leverage int
	switch {
	case confidence >= 85:
		leverage = 10
	case confidence >= 75:
		leverage = 8
	case confidence >= 65:
		leverage = 6
	case confidence >= 55:
		leverage = 5
	case confidence >= 45:
		leverage = 3
	default:
		leverage = 2
	}

	if maxLeverage > 0 && leverage > maxLeverage {
		leverage = maxLeverage
	}
	return leverage
}

// CalculatePositionSize 由置信度映射仓位比例，取值 (0, 1]
func CalculatePositionSize(confidence int) float64 {
	switch {
	case confidence >= 85:
		return 0.60
	case confidence >= 75:
		return 0.50
	case confidence >= 65:
		return 0.40
	case confidence >= 55:
		return 0.30
	default:
		return 0.20
	}
}

// Summarize 聚合投票列表为只读摘要
// 多数方向平票时取合计置信度高者；空列表共识方向为 hold
func Summarize(votes []models.AgentVote) models.VoteSummary {
	summary := models.VoteSummary{
		TotalVotes:         len(votes),
		ConsensusDirection: models.DirectionHold,
	}
	if len(votes) == 0 {
		return summary
	}

	confSum := map[string]int{}
	for _, av := range votes {
		switch av.Vote.Direction {
		case models.DirectionLong:
			summary.LongCount++
		case models.DirectionShort:
			summary.ShortCount++
		default:
			summary.HoldCount++
		}
		confSum[av.Vote.Direction] += av.Vote.Confidence
	}

	counts := map[string]int{
		models.DirectionLong:  summary.LongCount,
		models.DirectionShort: summary.ShortCount,
		models.DirectionHold:  summary.HoldCount,
	}

	// 先比票数，平票比合计置信度
	best := models.DirectionHold
	for _, dir := range []string{models.DirectionLong, models.DirectionShort, models.DirectionHold} {
		if counts[dir] > counts[best] {
			best = dir
		} else if counts[dir] == counts[best] && confSum[dir] > confSum[best] {
			best = dir
		}
	}

	summary.ConsensusDirection = best
	summary.ConsensusStrength = float64(counts[best]) / float64(len(votes))
	return summary
}
