package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/quorum/internal/market"
	"github.com/life2you_mini/quorum/internal/mocks"
	"github.com/life2you_mini/quorum/internal/models"
)

func testTicker() *market.Ticker {
	return &market.Ticker{
		Exchange:      "Binance",
		Symbol:        "BTC/USDT",
		Last:          100000,
		High24h:       102000,
		Low24h:        98000,
		ChangePercent: 1.5,
		QuoteVolume:   1200000000,
	}
}

func TestCommittee_CollectVotes(t *testing.T) {
	feed := new(mocks.MockPriceFeed)
	feed.On("GetTicker", mock.Anything, "BTC/USDT").Return(testTicker(), nil)

	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(`{"direction":"long","confidence":70,"leverage":5,"take_profit_percent":10,"stop_loss_percent":5,"reasoning":"上行趋势"}`, nil)

	committee := NewCommittee(Config{MinVotes: 3}, client, nil, feed, zaptest.NewLogger(t))

	votes, err := committee.CollectVotes(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Len(t, votes, len(DefaultPersonas()))
	for _, av := range votes {
		assert.Equal(t, models.DirectionLong, av.Vote.Direction)
		assert.NotEmpty(t, av.AgentName)
	}
}

func TestCommittee_PartialFailureTolerated(t *testing.T) {
	feed := new(mocks.MockPriceFeed)
	feed.On("GetTicker", mock.Anything, "BTC/USDT").Return(testTicker(), nil)

	// 一部分代理返回无法解析的文本，按弃权处理
	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return(`{"direction":"short","confidence":60,"leverage":3}`, nil).Times(3)
	client.On("Generate", mock.Anything, mock.Anything).
		Return("我无法给出判断", nil)

	committee := NewCommittee(Config{MinVotes: 3}, client, nil, feed, zaptest.NewLogger(t))

	votes, err := committee.CollectVotes(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Len(t, votes, 3)
}

func TestCommittee_TooFewVotes(t *testing.T) {
	feed := new(mocks.MockPriceFeed)
	feed.On("GetTicker", mock.Anything, "BTC/USDT").Return(testTicker(), nil)

	client := new(mocks.MockLLMClient)
	client.On("Generate", mock.Anything, mock.Anything).
		Return("", errors.New("server overloaded"))

	committee := NewCommittee(Config{MinVotes: 3}, client, nil, feed, zaptest.NewLogger(t))

	_, err := committee.CollectVotes(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "有效投票不足")
}

func TestCommittee_TickerFailure(t *testing.T) {
	feed := new(mocks.MockPriceFeed)
	feed.On("GetTicker", mock.Anything, "BTC/USDT").Return(nil, errors.New("exchange unavailable"))

	client := new(mocks.MockLLMClient)
	committee := NewCommittee(Config{}, client, nil, feed, zaptest.NewLogger(t))

	_, err := committee.CollectVotes(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "行情快照")
	// 行情失败时不应发起任何LLM调用
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}
