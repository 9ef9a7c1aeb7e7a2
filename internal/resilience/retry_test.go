package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestRetry 创建不真实睡眠的重试执行器
func newTestRetry(t *testing.T, config RetryConfig, breaker *CircuitBreaker) *RetryHandler {
	r := NewRetryHandler(config, breaker, zaptest.NewLogger(t))
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}
	return r
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "限流可重试", err: errors.New("429 rate limit exceeded"), expected: true},
		{name: "超时可重试", err: errors.New("request timeout"), expected: true},
		{name: "服务端错误可重试", err: errors.New("upstream returned 503"), expected: true},
		{name: "过载可重试", err: errors.New("server overloaded"), expected: true},
		{name: "鉴权失败不可重试", err: errors.New("unauthorized: invalid api key"), expected: false},
		{name: "权限不足不可重试", err: errors.New("permission denied"), expected: false},
		{name: "请求非法不可重试", err: errors.New("invalid request: bad schema"), expected: false},
		{name: "内容过滤不可重试", err: errors.New("blocked by content filter"), expected: false},
		{name: "熔断打开不可重试", err: ErrCircuitOpen, expected: false},
		{name: "未识别默认可重试", err: errors.New("something odd happened"), expected: true},
		{name: "空错误不可重试", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	r := newTestRetry(t, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, nil)

	calls := 0
	err := r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentErrorNoRetry(t *testing.T) {
	r := newTestRetry(t, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, nil)

	calls := 0
	err := r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		calls++
		return errors.New("unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	r := newTestRetry(t, RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, nil)

	calls := 0
	err := r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // 首次 + 2 次重试
	assert.Contains(t, err.Error(), "重试")
}

func TestRetry_CircuitOpenFailsFast(t *testing.T) {
	breaker := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Hour,
	}, zaptest.NewLogger(t))
	breaker.RecordFailure(errors.New("timeout"))
	require.Equal(t, StateOpen, breaker.State())

	r := newTestRetry(t, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, breaker)

	calls := 0
	err := r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Zero(t, calls) // 熔断打开时不发起调用
}

func TestRetry_FailuresFeedBreaker(t *testing.T) {
	breaker := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Hour,
	}, zaptest.NewLogger(t))
	r := newTestRetry(t, RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, breaker)

	_ = r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		return errors.New("timeout")
	})

	// 重试过程中的连续失败会累计到熔断器并最终打开
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBackoffDelay_Bounded(t *testing.T) {
	r := NewRetryHandler(RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2,
		JitterFraction:  0.2,
	}, nil, zaptest.NewLogger(t))

	for attempt := 0; attempt < 10; attempt++ {
		delay := r.backoffDelay(attempt)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		// 抖动不会超过上限的 (1 + jitter)
		assert.LessOrEqual(t, delay, 12*time.Second)
	}
}

func TestRetry_GetStatus(t *testing.T) {
	r := newTestRetry(t, RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}, nil)

	_ = r.ExecuteWithRetry(context.Background(), "test_call", func(ctx context.Context) error {
		return errors.New("timeout")
	})

	status := r.GetStatus()
	assert.Equal(t, 1, status.TotalCalls)
	assert.Equal(t, 1, status.TotalRetries)
	assert.Equal(t, 1, status.TotalFailures)
	assert.Contains(t, status.LastError, "timeout")
}
