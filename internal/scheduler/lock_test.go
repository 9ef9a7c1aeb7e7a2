package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerLock_BasicCycle(t *testing.T) {
	lock := NewTriggerLock()
	assert.Equal(t, StateIdle, lock.State())

	ok, reason := lock.CanTrigger()
	assert.True(t, ok)
	assert.Empty(t, reason)

	gen, reason := lock.AcquireCheck("scheduler")
	require.NotZero(t, gen)
	assert.Empty(t, reason)
	assert.Equal(t, StateChecking, lock.State())

	assert.True(t, lock.BeginAnalysis(gen))
	assert.Equal(t, StateAnalyzing, lock.State())

	lock.Release(gen, 0)
	assert.Equal(t, StateIdle, lock.State())
}

func TestTriggerLock_RejectsWhileBusy(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("first")
	require.NotZero(t, gen)

	// checking 期间拒绝
	second, reason := lock.AcquireCheck("second")
	assert.Zero(t, second)
	assert.NotEmpty(t, reason)

	// analyzing 期间同样拒绝
	require.True(t, lock.BeginAnalysis(gen))
	ok, reason := lock.CanTrigger()
	assert.False(t, ok)
	assert.Contains(t, reason, "分析")
}

func TestTriggerLock_CooldownLazyExpiry(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("scheduler")
	require.True(t, lock.BeginAnalysis(gen))

	lock.Release(gen, 50*time.Millisecond)
	assert.Equal(t, StateCooldown, lock.State())

	ok, reason := lock.CanTrigger()
	assert.False(t, ok)
	assert.Contains(t, reason, "冷却")

	// 到期后的任何读取都会结算过期冷却
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateIdle, lock.State())
	ok, _ = lock.CanTrigger()
	assert.True(t, ok)
}

func TestTriggerLock_ReleaseIdempotent(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("scheduler")
	require.True(t, lock.BeginAnalysis(gen))

	lock.Release(gen, 0)
	assert.Equal(t, StateIdle, lock.State())

	// 重复释放与过期代数的释放都是空操作
	lock.Release(gen, time.Hour)
	assert.Equal(t, StateIdle, lock.State())
}

func TestTriggerLock_ReleaseDuringCooldownKeepsExpiry(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("scheduler")
	require.True(t, lock.BeginAnalysis(gen))

	lock.Release(gen, time.Minute)
	require.Equal(t, StateCooldown, lock.State())
	expiry := lock.GetStatus().CooldownExpiresAt

	// 冷却期内重复释放不延长到期时间
	lock.Release(gen, time.Hour)
	assert.Equal(t, StateCooldown, lock.State())
	assert.Equal(t, expiry, lock.GetStatus().CooldownExpiresAt)
}

func TestTriggerLock_ForceAcquirePreempts(t *testing.T) {
	lock := NewTriggerLock()
	oldGen, _ := lock.AcquireCheck("stuck_holder")
	require.NotZero(t, oldGen)
	require.True(t, lock.BeginAnalysis(oldGen))

	// 超时后强制抢占
	newGen := lock.Acquire("manual", 10*time.Millisecond)
	require.NotZero(t, newGen)
	assert.Greater(t, newGen, oldGen)
	assert.Equal(t, StateChecking, lock.State())

	// 被抢占的旧持有者释放无效
	lock.Release(oldGen, time.Hour)
	assert.Equal(t, StateChecking, lock.State())

	// 新持有者正常走完流程
	require.True(t, lock.BeginAnalysis(newGen))
	lock.Release(newGen, 0)
	assert.Equal(t, StateIdle, lock.State())
}

func TestTriggerLock_ForceAcquireWaitsForIdle(t *testing.T) {
	// 空闲时强制获取不需要等待
	lock := NewTriggerLock()
	gen := lock.Acquire("manual", time.Second)
	assert.NotZero(t, gen)
	assert.Equal(t, StateChecking, lock.State())
}

func TestTriggerLock_Abort(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("scheduler")

	// 前置检查失败放弃本轮，不进入冷却
	lock.Abort(gen)
	assert.Equal(t, StateIdle, lock.State())

	ok, _ := lock.CanTrigger()
	assert.True(t, ok)
}

func TestTriggerLock_BeginAnalysisStaleGeneration(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("first")
	lock.Abort(gen)

	newGen, _ := lock.AcquireCheck("second")
	require.NotZero(t, newGen)

	// 旧代数无法推进状态
	assert.False(t, lock.BeginAnalysis(gen))
	assert.Equal(t, StateChecking, lock.State())
}

func TestTriggerLock_GetStatus(t *testing.T) {
	lock := NewTriggerLock()
	gen, _ := lock.AcquireCheck("scheduler")
	require.True(t, lock.BeginAnalysis(gen))
	lock.Release(gen, time.Minute)

	status := lock.GetStatus()
	assert.Equal(t, StateCooldown, status.State)
	assert.Equal(t, gen, status.Generation)
	assert.False(t, status.CooldownExpiresAt.IsZero())
}
