// Package resilience 为所有跨进程/网络调用提供重试与熔断保护
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// 熔断器状态常量
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           // 连续失败多少次后打开
	SuccessThreshold int           // 半开状态连续成功多少次后关闭
	RecoveryTimeout  time.Duration // 打开后多久允许探测
}

// DefaultBreakerConfig 默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreaker 熔断器
// closed -> (连续失败达阈值) -> open -> (恢复窗口过后) -> half_open
// half_open 连续成功达阈值回 closed，任一失败立即回 open
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *zap.Logger

	mu              sync.Mutex
	state           string
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastError       string
	now             func() time.Time
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, config BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", name)),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow 判断当前是否允许发起调用
// open 状态下恢复窗口过后转入 half_open 并放行探测
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	}
	return true
}

// RecordSuccess 记录一次成功调用
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure 记录一次失败调用
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()
	if err != nil {
		cb.lastError = err.Error()
	}

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// 半开探测失败，立即重新打开
		cb.transition(StateOpen)
		cb.successCount = 0
	}
}

// State 返回当前状态
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStatus 熔断器可序列化状态快照
type BreakerStatus struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// GetStatus 返回状态快照，用于健康/观测面
func (cb *CircuitBreaker) GetStatus() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastError:       cb.lastError,
	}
}

func (cb *CircuitBreaker) transition(to string) {
	if cb.state == to {
		return
	}
	cb.logger.Warn("熔断器状态切换",
		zap.String("from", cb.state),
		zap.String("to", to),
		zap.Int("failure_count", cb.failureCount))
	cb.state = to
}
