package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen 熔断器打开时的快失败错误
// 与瞬时/永久错误区分开，调用方应等待恢复窗口而不是立即重试
var ErrCircuitOpen = errors.New("熔断器已打开，拒绝调用")

// 可重试错误的特征子串
var retryableSubstrings = []string{
	"rate limit",
	"rate_limit",
	"timeout",
	"timed out",
	"500", "502", "503", "504",
	"overloaded",
	"capacity",
	"connection reset",
	"temporarily",
}

// 不可重试错误的特征子串
var permanentSubstrings = []string{
	"auth",
	"unauthorized",
	"permission",
	"forbidden",
	"invalid request",
	"invalid_request",
	"content filter",
	"content_filter",
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterFraction  float64 // 对称抖动比例，0.1 表示 ±10%
}

// DefaultRetryConfig 默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		JitterFraction:  0.2,
	}
}

// RetryHandler 带熔断保护的重试执行器
type RetryHandler struct {
	config  RetryConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	totalCalls    int
	totalRetries  int
	totalFailures int
	lastError     string
}

// NewRetryHandler 创建重试执行器
func NewRetryHandler(config RetryConfig, breaker *CircuitBreaker, logger *zap.Logger) *RetryHandler {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	if config.ExponentialBase <= 1 {
		config.ExponentialBase = DefaultRetryConfig().ExponentialBase
	}
	return &RetryHandler{
		config:  config,
		breaker: breaker,
		logger:  logger.With(zap.String("component", "retry_handler")),
		sleep:   sleepCtx,
	}
}

// ExecuteWithRetry 执行 fn，失败时按分类决定是否退避重试
// 每次尝试前询问熔断器；熔断打开时不发起调用，直接返回 ErrCircuitOpen
func (r *RetryHandler) ExecuteWithRetry(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.totalCalls++
	r.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if r.breaker != nil && !r.breaker.Allow() {
			r.recordFailure(ErrCircuitOpen)
			return fmt.Errorf("%s: %w", name, ErrCircuitOpen)
		}

		err := fn(ctx)
		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			return nil
		}

		lastErr = err
		if r.breaker != nil {
			r.breaker.RecordFailure(err)
		}

		if !IsRetryable(err) {
			r.logger.Warn("不可重试错误，立即上抛",
				zap.String("call", name),
				zap.Error(err))
			r.recordFailure(err)
			return err
		}

		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.backoffDelay(attempt)
		r.mu.Lock()
		r.totalRetries++
		r.mu.Unlock()
		r.logger.Warn("调用失败，退避后重试",
			zap.String("call", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.recordFailure(lastErr)
	return fmt.Errorf("%s: 重试 %d 次后仍失败: %w", name, r.config.MaxRetries, lastErr)
}

// backoffDelay 计算第 attempt 次失败后的退避时长（含对称抖动）
func (r *RetryHandler) backoffDelay(attempt int) time.Duration {
	base := float64(r.config.BaseDelay) * math.Pow(r.config.ExponentialBase, float64(attempt))
	if base > float64(r.config.MaxDelay) {
		base = float64(r.config.MaxDelay)
	}
	if r.config.JitterFraction > 0 {
		jitter := base * r.config.JitterFraction
		base += (rand.Float64()*2 - 1) * jitter
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func (r *RetryHandler) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalFailures++
	if err != nil {
		r.lastError = err.Error()
	}
}

// RetryStatus 重试执行器的可序列化状态快照
type RetryStatus struct {
	TotalCalls    int            `json:"total_calls"`
	TotalRetries  int            `json:"total_retries"`
	TotalFailures int            `json:"total_failures"`
	LastError     string         `json:"last_error,omitempty"`
	Breaker       *BreakerStatus `json:"breaker,omitempty"`
}

// GetStatus 返回状态快照
func (r *RetryHandler) GetStatus() RetryStatus {
	r.mu.Lock()
	status := RetryStatus{
		TotalCalls:    r.totalCalls,
		TotalRetries:  r.totalRetries,
		TotalFailures: r.totalFailures,
		LastError:     r.lastError,
	}
	r.mu.Unlock()
	if r.breaker != nil {
		bs := r.breaker.GetStatus()
		status.Breaker = &bs
	}
	return status
}

// IsRetryable 按错误文本分类：永久错误不重试，未识别默认可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range permanentSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	// 未识别的错误默认可重试
	return true
}

// sleepCtx 可被上下文打断的睡眠
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
