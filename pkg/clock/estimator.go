// Package clock 在客户端估算“此刻服务器处于哪个 tick”。
package clock

import (
	"math"
	"time"
)

// 调参常量，影响对时行为，修改需谨慎
const (
	// MaxNudgeTicks 每次观测最多修正的 tick 数
	MaxNudgeTicks = 0.25
	// HardResyncTicks 误差超过该值视为大误差
	HardResyncTicks = 8.0
	// HardResyncStreak 连续多少次大误差后强制重新对时
	HardResyncStreak = 3
)

// Estimator 由参考点 (serverTick, localTime) 加上本地流逝时间推算服务器 tick。
// 输出单调不减：参考点被向后修正时，估计值会停在上一次的输出上，直到真实时间追上
type Estimator struct {
	tickRate float64

	refTick float64
	refTime time.Time
	synced  bool

	last      float64
	errStreak int
	resyncs   int
}

// New 创建估算器
func New(tickRate int) *Estimator {
	if tickRate <= 0 {
		tickRate = 60
	}
	return &Estimator{tickRate: float64(tickRate)}
}

// Synced 是否已经有过至少一次观测
func (e *Estimator) Synced() bool { return e.synced }

// TickRate 服务器 tick 频率
func (e *Estimator) TickRate() float64 { return e.tickRate }

// Resyncs 强制对时次数
func (e *Estimator) Resyncs() int { return e.resyncs }

func (e *Estimator) raw(now time.Time) float64 {
	return e.refTick + now.Sub(e.refTime).Seconds()*e.tickRate
}

// Estimate 返回当前估计的服务器 tick（带小数）
func (e *Estimator) Estimate(now time.Time) float64 {
	if !e.synced {
		return 0
	}
	v := e.raw(now)
	if v < e.last {
		v = e.last
	}
	e.last = v
	return v
}

// Tick 返回估计 tick 的整数部分
func (e *Estimator) Tick(now time.Time) uint32 {
	return uint32(math.Floor(e.Estimate(now)))
}

// Observe 处理一次权威 tick 观测（来自快照或 Pong）。
// 首次观测直接作为参考点；之后按误差小步修正，持续大误差才强制重新对时
func (e *Estimator) Observe(tick float64, now time.Time) {
	if !e.synced {
		e.rebase(tick, now)
		return
	}

	diff := tick - e.raw(now)
	if math.Abs(diff) > HardResyncTicks {
		e.errStreak++
		if e.errStreak >= HardResyncStreak {
			e.rebase(tick, now)
			e.resyncs++
			return
		}
	} else {
		e.errStreak = 0
	}

	if diff > MaxNudgeTicks {
		diff = MaxNudgeTicks
	} else if diff < -MaxNudgeTicks {
		diff = -MaxNudgeTicks
	}
	e.refTick += diff
}

// Resync 服务器显式提示时立即重新对时
func (e *Estimator) Resync(tick float64, now time.Time) {
	e.rebase(tick, now)
	e.resyncs++
}

func (e *Estimator) rebase(tick float64, now time.Time) {
	e.refTick = tick
	e.refTime = now
	e.synced = true
	e.errStreak = 0
}

// Reset 回到未同步状态
func (e *Estimator) Reset() {
	*e = Estimator{tickRate: e.tickRate}
}
