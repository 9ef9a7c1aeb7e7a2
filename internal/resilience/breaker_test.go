package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// newTestBreaker 创建可控制时钟的熔断器
func newTestBreaker(t *testing.T, config BreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker("test", config, zaptest.NewLogger(t))
	now := time.Now()
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure(errors.New("timeout"))
	cb.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(errors.New("timeout"))
	cb.RecordFailure(errors.New("timeout"))
	cb.RecordSuccess()
	// 计数已清零，再失败两次不应打开
	cb.RecordFailure(errors.New("timeout"))
	cb.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenAfterRecovery(t *testing.T) {
	cb, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	// 恢复窗口过后放行探测
	*now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	cb, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(errors.New("timeout"))
	*now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(errors.New("timeout"))
	*now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// 半开探测失败立即重新打开
	cb.RecordFailure(errors.New("timeout"))
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreaker_GetStatus(t *testing.T) {
	cb, _ := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure(errors.New("rate limit"))
	status := cb.GetStatus()
	assert.Equal(t, "test", status.Name)
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, 1, status.FailureCount)
	assert.Contains(t, status.LastError, "rate limit")
}
