package interp

import (
	"math"
	"time"
)

// JitterAlpha 到达抖动 EWMA 的系数
const JitterAlpha = 0.1

// JitterTracker 统计快照实际到达间隔与期望间隔的偏差
type JitterTracker struct {
	expected time.Duration
	last     time.Time
	has      bool
	jitter   float64 // 秒
	samples  int
}

// NewJitterTracker expected 为期望的快照间隔
func NewJitterTracker(expected time.Duration) *JitterTracker {
	return &JitterTracker{expected: expected}
}

// Observe 记录一次快照到达
func (j *JitterTracker) Observe(now time.Time) {
	if j.has {
		dev := math.Abs(now.Sub(j.last).Seconds() - j.expected.Seconds())
		j.jitter += (dev - j.jitter) * JitterAlpha
		j.samples++
	}
	j.last = now
	j.has = true
}

// Jitter 当前抖动估计（秒）
func (j *JitterTracker) Jitter() float64 { return j.jitter }

// Samples 已统计的间隔数
func (j *JitterTracker) Samples() int { return j.samples }

// Reset 清空
func (j *JitterTracker) Reset() {
	*j = JitterTracker{expected: j.expected}
}

// AutoDelay 根据快照间隔与抖动调整插值延迟（单位 tick）
type AutoDelay struct {
	MinTicks float64
	MaxTicks float64
	// K 抖动的倍数
	K float64
	// Smoothing 每次更新向目标靠拢的比例
	Smoothing float64

	current float64
}

// NewAutoDelay initial 为初始延迟
func NewAutoDelay(initial, min, max float64) *AutoDelay {
	return &AutoDelay{MinTicks: min, MaxTicks: max, K: 2, Smoothing: 0.05, current: clamp(initial, min, max)}
}

// Update 目标延迟 = 快照间隔 + K·抖动，平滑靠拢后返回当前值
func (a *AutoDelay) Update(snapshotIntervalTicks, jitterSec, tickRate float64) float64 {
	target := clamp(snapshotIntervalTicks+a.K*jitterSec*tickRate, a.MinTicks, a.MaxTicks)
	a.current += (target - a.current) * a.Smoothing
	return a.current
}

// Ticks 当前延迟
func (a *AutoDelay) Ticks() float64 { return a.current }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
