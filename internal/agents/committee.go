// Package agents 分析师委员会：多角色并行咨询LLM并收集方向投票
package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/quorum/internal/llm"
	"github.com/life2you_mini/quorum/internal/market"
	"github.com/life2you_mini/quorum/internal/models"
	"github.com/life2you_mini/quorum/internal/resilience"
)

// Persona 单个分析师的角色设定
type Persona struct {
	Name         string `mapstructure:"name" json:"name"`
	SystemPrompt string `mapstructure:"system_prompt" json:"system_prompt"`
}

// DefaultPersonas 默认的五人委员会
// 角色视角刻意互补，避免同质化投票
func DefaultPersonas() []Persona {
	return []Persona{
		{
			Name:         "trend_follower",
			SystemPrompt: "你是一名趋势跟踪交易员，关注价格动量与趋势延续，趋势不明时倾向观望。",
		},
		{
			Name:         "mean_reverter",
			SystemPrompt: "你是一名均值回归交易员，关注价格对短期均值的偏离，偏离极端时倾向反向操作。",
		},
		{
			Name:         "risk_manager",
			SystemPrompt: "你是一名风险管理专家，优先评估下行风险与波动率，风险收益比不足时投观望票。",
		},
		{
			Name:         "macro_analyst",
			SystemPrompt: "你是一名宏观分析师，从流动性环境与市场情绪出发判断中期方向。",
		},
		{
			Name:         "contrarian",
			SystemPrompt: "你是一名逆向交易员，当市场情绪极端一致时寻找反向机会，否则保持中立。",
		},
	}
}

// Config 委员会配置
type Config struct {
	Personas     []Persona
	MinVotes     int           // 低于此有效票数视为本轮失败
	AgentTimeout time.Duration // 单个代理的调用超时
}

// Committee 分析师委员会
// 每轮对所有角色并行发起LLM咨询，解析失败或调用失败的角色弃权
type Committee struct {
	logger *zap.Logger
	config Config
	client llm.Client
	retry  *resilience.RetryHandler
	feed   market.PriceFeed
}

// NewCommittee 创建委员会
func NewCommittee(config Config, client llm.Client, retry *resilience.RetryHandler, feed market.PriceFeed, logger *zap.Logger) *Committee {
	if len(config.Personas) == 0 {
		config.Personas = DefaultPersonas()
	}
	if config.MinVotes <= 0 {
		config.MinVotes = 1
	}
	if config.AgentTimeout <= 0 {
		config.AgentTimeout = 90 * time.Second
	}
	return &Committee{
		logger: logger.With(zap.String("component", "agent_committee")),
		config: config,
		client: client,
		retry:  retry,
		feed:   feed,
	}
}

// CollectVotes 收集一轮完整投票
// 先取一次行情快照供所有角色共享，再并行咨询；单个角色失败记为弃权
func (c *Committee) CollectVotes(ctx context.Context, symbol string) ([]models.AgentVote, error) {
	ticker, err := c.feed.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("获取行情快照失败: %w", err)
	}

	userPrompt := buildMarketPrompt(ticker)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		votes []models.AgentVote
	)

	for _, persona := range c.config.Personas {
		wg.Add(1)
		go func(p Persona) {
			defer wg.Done()

			agentCtx, cancel := context.WithTimeout(ctx, c.config.AgentTimeout)
			defer cancel()

			vote, err := c.askAgent(agentCtx, p, userPrompt)
			if err != nil {
				c.logger.Warn("代理投票失败，记为弃权",
					zap.String("agent", p.Name),
					zap.Error(err))
				return
			}

			mu.Lock()
			votes = append(votes, models.AgentVote{
				AgentName: p.Name,
				Vote:      *vote,
				Timestamp: time.Now(),
			})
			mu.Unlock()
		}(persona)
	}
	wg.Wait()

	if len(votes) < c.config.MinVotes {
		return nil, fmt.Errorf("有效投票不足: %d/%d", len(votes), len(c.config.Personas))
	}

	c.logger.Info("委员会投票收集完成",
		zap.String("symbol", symbol),
		zap.Int("valid_votes", len(votes)),
		zap.Int("personas", len(c.config.Personas)))

	return votes, nil
}

// askAgent 咨询单个角色，LLM调用经弹性层保护
func (c *Committee) askAgent(ctx context.Context, persona Persona, userPrompt string) (*models.Vote, error) {
	messages := []llm.Message{
		{Role: "system", Content: persona.SystemPrompt + "\n\n" + votingInstruction},
		{Role: "user", Content: userPrompt},
	}

	var raw string
	call := func(ctx context.Context) error {
		text, err := c.client.Generate(ctx, messages)
		if err != nil {
			return err
		}
		raw = text
		return nil
	}

	if c.retry != nil {
		if err := c.retry.ExecuteWithRetry(ctx, "agent_"+persona.Name, call); err != nil {
			return nil, err
		}
	} else {
		if err := call(ctx); err != nil {
			return nil, err
		}
	}

	vote, err := ParseVote(raw)
	if err != nil {
		return nil, fmt.Errorf("解析代理响应失败: %w", err)
	}
	return vote, nil
}

// buildMarketPrompt 将行情快照渲染为用户侧提示
func buildMarketPrompt(ticker *market.Ticker) string {
	return fmt.Sprintf(
		"当前 %s 行情（来自 %s）:\n最新价: %.2f\n24h最高: %.2f\n24h最低: %.2f\n24h涨跌幅: %.2f%%\n24h成交额: %.0f USDT\n\n请基于以上数据给出你的交易投票。",
		ticker.Symbol, ticker.Exchange,
		ticker.Last, ticker.High24h, ticker.Low24h,
		ticker.ChangePercent, ticker.QuoteVolume)
}
