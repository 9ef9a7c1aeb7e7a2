package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/life2you_mini/quorum/internal/models"
)

// votingInstruction 拼接在所有角色系统提示之后的输出格式要求
const votingInstruction = `请严格以JSON格式输出投票，不要输出任何其他内容:
{
  "direction": "long|short|hold",
  "confidence": 0-100的整数,
  "leverage": 1-20的整数,
  "take_profit_percent": 止盈百分比（按保证金计）,
  "stop_loss_percent": 止损百分比（按保证金计）,
  "reasoning": "一句话理由"
}`

// rawVote LLM输出的投票结构
type rawVote struct {
	Direction         string  `json:"direction"`
	Confidence        int     `json:"confidence"`
	Leverage          int     `json:"leverage"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	Reasoning         string  `json:"reasoning"`
}

// ParseVote 从LLM响应文本中提取投票
// 容忍 Markdown 代码块与前后缀杂文，只要求包含一个合法JSON对象；
// 越界数值由 NewVote 钳制，不合法方向才算解析失败
func ParseVote(text string) (*models.Vote, error) {
	jsonText, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var raw rawVote
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("投票JSON解析失败: %w", err)
	}

	direction := strings.ToLower(strings.TrimSpace(raw.Direction))
	switch direction {
	case models.DirectionLong, models.DirectionShort, models.DirectionHold:
	default:
		return nil, fmt.Errorf("无效的投票方向: %q", raw.Direction)
	}

	vote := models.NewVote(direction, raw.Confidence, raw.Leverage,
		raw.TakeProfitPercent, raw.StopLossPercent, raw.Reasoning)
	return &vote, nil
}

// extractJSON 提取文本中第一个括号配平的JSON对象
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", fmt.Errorf("响应中不含JSON对象")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("JSON对象括号不配平")
}
