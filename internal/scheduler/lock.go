// Package scheduler 决策调度：触发锁状态机与固定间隔的决策循环
package scheduler

import (
	"sync"
	"time"
)

// 触发锁状态常量
const (
	StateIdle      = "idle"      // 空闲，可触发
	StateChecking  = "checking"  // 前置检查中
	StateAnalyzing = "analyzing" // 委员会分析/执行中
	StateCooldown  = "cooldown"  // 冷却期
)

// TriggerLock 决策周期的互斥状态机
//
// idle → checking → analyzing → cooldown → idle
//
// checking/analyzing 期间拒绝新的触发；cooldown 到期采用惰性判定，
// 任何读取状态的调用都会先结算过期的冷却。
// 强制抢占通过代数（generation）区分持有者：被抢占的旧持有者
// 释放时代数不匹配，释放被忽略。
type TriggerLock struct {
	mu         sync.Mutex
	state      string
	generation uint64    // 每次成功获取递增
	cooldownAt time.Time // cooldown 到期时间
	acquiredAt time.Time
	holder     string
}

// NewTriggerLock 创建触发锁，初始为 idle
func NewTriggerLock() *TriggerLock {
	return &TriggerLock{state: StateIdle}
}

// settleLocked 结算过期的冷却（持锁调用）
func (l *TriggerLock) settleLocked(now time.Time) {
	if l.state == StateCooldown && !now.Before(l.cooldownAt) {
		l.state = StateIdle
		l.holder = ""
	}
}

// State 当前状态（已结算冷却过期）
func (l *TriggerLock) State() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked(time.Now())
	return l.state
}

// CanTrigger 是否可以触发新一轮决策，不可触发时返回原因
func (l *TriggerLock) CanTrigger() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.settleLocked(now)

	switch l.state {
	case StateIdle:
		return true, ""
	case StateChecking:
		return false, "上一轮前置检查尚未完成"
	case StateAnalyzing:
		return false, "上一轮分析尚未完成"
	case StateCooldown:
		remaining := l.cooldownAt.Sub(now).Round(time.Second)
		return false, "冷却期未结束，剩余 " + remaining.String()
	}
	return false, "未知状态: " + l.state
}

// AcquireCheck 尝试从 idle 进入 checking
// 返回持有代数；失败返回 0 和原因
func (l *TriggerLock) AcquireCheck(holder string) (uint64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.settleLocked(now)

	if l.state != StateIdle {
		if l.state == StateCooldown {
			return 0, "冷却期未结束"
		}
		return 0, "触发锁被占用: " + l.state
	}

	l.generation++
	l.state = StateChecking
	l.holder = holder
	l.acquiredAt = now
	return l.generation, ""
}

// BeginAnalysis checking → analyzing，代数不匹配则忽略
func (l *TriggerLock) BeginAnalysis(generation uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation || l.state != StateChecking {
		return false
	}
	l.state = StateAnalyzing
	return true
}

// Acquire 强制获取：等待至多 timeout 后若仍未释放则抢占
// 抢占使旧持有者的后续 Release 失效
func (l *TriggerLock) Acquire(holder string, timeout time.Duration) uint64 {
	deadline := time.Now().Add(timeout)
	for {
		if gen, _ := l.AcquireCheck(holder); gen != 0 {
			return gen
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.state = StateChecking
	l.holder = holder
	l.acquiredAt = time.Now()
	return l.generation
}

// Release 释放并进入冷却；cooldown <= 0 直接回到 idle
// 被抢占的旧持有者释放（代数不匹配）被静默忽略
func (l *TriggerLock) Release(generation uint64, cooldown time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation {
		return
	}
	if l.state != StateChecking && l.state != StateAnalyzing {
		return
	}

	if cooldown <= 0 {
		l.state = StateIdle
		l.holder = ""
		return
	}
	l.state = StateCooldown
	l.cooldownAt = time.Now().Add(cooldown)
}

// Abort 放弃本轮，直接回到 idle（不进入冷却）
func (l *TriggerLock) Abort(generation uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation {
		return
	}
	if l.state == StateChecking || l.state == StateAnalyzing {
		l.state = StateIdle
		l.holder = ""
	}
}

// LockStatus 触发锁状态快照
type LockStatus struct {
	State             string    `json:"state"`
	Holder            string    `json:"holder,omitempty"`
	Generation        uint64    `json:"generation"`
	AcquiredAt        time.Time `json:"acquired_at,omitempty"`
	CooldownExpiresAt time.Time `json:"cooldown_expires_at,omitempty"`
}

// GetStatus 返回状态快照
func (l *TriggerLock) GetStatus() LockStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked(time.Now())
	status := LockStatus{
		State:      l.state,
		Holder:     l.holder,
		Generation: l.generation,
		AcquiredAt: l.acquiredAt,
	}
	if l.state == StateCooldown {
		status.CooldownExpiresAt = l.cooldownAt
	}
	return status
}
