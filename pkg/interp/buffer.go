// Package interp 为远端实体保存按 tick 排序的状态样本，并在渲染时刻插值或外推。
package interp

import (
	"sort"

	"arenanet/pkg/core"
)

// DefaultCapacity 每个实体保留的样本数
const DefaultCapacity = 32

// Sample 某个服务器 tick 的实体状态
type Sample struct {
	Tick     uint32
	Position core.Vec3
	Velocity core.Vec3
	Yaw      float64
	Pitch    float64
	Grounded bool
}

// SampleFromState 由实体状态构造样本
func SampleFromState(tick uint32, s core.EntityState) Sample {
	return Sample{
		Tick:     tick,
		Position: s.Position,
		Velocity: s.Velocity,
		Yaw:      s.Yaw,
		Pitch:    s.Pitch,
		Grounded: s.Grounded,
	}
}

// State 转为实体状态
func (s Sample) State() core.EntityState {
	return core.EntityState{
		Position: s.Position,
		Velocity: s.Velocity,
		Yaw:      s.Yaw,
		Pitch:    s.Pitch,
		Grounded: s.Grounded,
	}
}

// Mode 查询结果来源
type Mode uint8

const (
	ModeEmpty        Mode = iota // 没有样本
	ModeClamped                  // 早于最旧样本，使用最旧样本
	ModeInterpolated             // 两个样本之间插值
	ModeExtrapolated             // 晚于最新样本，按速度外推
	ModeHeld                     // 外推超过上限，停在上限位置
)

func (m Mode) String() string {
	switch m {
	case ModeClamped:
		return "clamped"
	case ModeInterpolated:
		return "interpolated"
	case ModeExtrapolated:
		return "extrapolated"
	case ModeHeld:
		return "held"
	default:
		return "empty"
	}
}

// Options 插值参数
type Options struct {
	Capacity int
	// Hermite 为 true 时以两端速度作切线做三次插值，否则线性插值
	Hermite bool
	// MaxExtrapolationTicks 最新样本之后最多外推多少 tick
	MaxExtrapolationTicks float64
	// TickDT 每个 tick 的秒数
	TickDT float64
}

// DefaultOptions 默认参数
func DefaultOptions(tickRate int) Options {
	if tickRate <= 0 {
		tickRate = core.DefaultTickRate
	}
	return Options{
		Capacity:              DefaultCapacity,
		Hermite:               true,
		MaxExtrapolationTicks: float64(tickRate) * 0.25,
		TickDT:                1 / float64(tickRate),
	}
}

// Buffer 单个远端实体的样本缓冲，按 tick 升序，满了淘汰最旧的
type Buffer struct {
	opts    Options
	samples []Sample
}

// NewBuffer 创建样本缓冲
func NewBuffer(opts Options) *Buffer {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TickDT <= 0 {
		opts.TickDT = 1 / float64(core.DefaultTickRate)
	}
	return &Buffer{opts: opts, samples: make([]Sample, 0, opts.Capacity)}
}

// Insert 插入样本：乱序到达的按 tick 插入，同 tick 覆盖。
// 缓冲已满且样本比最旧的还旧时丢弃，返回 false
func (b *Buffer) Insert(s Sample) bool {
	i := sort.Search(len(b.samples), func(i int) bool { return b.samples[i].Tick >= s.Tick })
	if i < len(b.samples) && b.samples[i].Tick == s.Tick {
		b.samples[i] = s
		return true
	}
	if len(b.samples) == b.opts.Capacity {
		if i == 0 {
			return false
		}
		// 淘汰最旧的，插入位置随之前移
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
		i--
	}
	b.samples = append(b.samples, Sample{})
	copy(b.samples[i+1:], b.samples[i:])
	b.samples[i] = s
	return true
}

// Len 样本数
func (b *Buffer) Len() int { return len(b.samples) }

// Oldest 最旧样本
func (b *Buffer) Oldest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[0], true
}

// Newest 最新样本
func (b *Buffer) Newest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Ticks 当前保存的 tick 列表（测试与调试用）
func (b *Buffer) Ticks() []uint32 {
	out := make([]uint32, len(b.samples))
	for i, s := range b.samples {
		out[i] = s.Tick
	}
	return out
}

// Clear 清空
func (b *Buffer) Clear() {
	b.samples = b.samples[:0]
}

// At 返回渲染时刻 renderTick 的实体状态
func (b *Buffer) At(renderTick float64) (core.EntityState, Mode) {
	n := len(b.samples)
	if n == 0 {
		return core.EntityState{}, ModeEmpty
	}

	first := b.samples[0]
	if renderTick <= float64(first.Tick) {
		// 不向过去外推
		return first.State(), ModeClamped
	}

	last := b.samples[n-1]
	if renderTick >= float64(last.Tick) {
		return b.extrapolate(last, renderTick-float64(last.Tick))
	}

	// 第一个 tick 大于渲染时刻的样本
	j := sort.Search(n, func(i int) bool { return float64(b.samples[i].Tick) > renderTick })
	a, c := b.samples[j-1], b.samples[j]
	span := float64(c.Tick - a.Tick)
	t := (renderTick - float64(a.Tick)) / span
	return b.blend(a, c, t, span), ModeInterpolated
}

func (b *Buffer) blend(a, c Sample, t, spanTicks float64) core.EntityState {
	var pos core.Vec3
	if b.opts.Hermite {
		spanSec := spanTicks * b.opts.TickDT
		pos = core.Hermite(a.Position, a.Velocity.Scale(spanSec), c.Position, c.Velocity.Scale(spanSec), t)
	} else {
		pos = a.Position.Lerp(c.Position, t)
	}
	grounded := a.Grounded
	if t >= 0.5 {
		grounded = c.Grounded
	}
	return core.EntityState{
		Position: pos,
		Velocity: a.Velocity.Lerp(c.Velocity, t),
		Yaw:      core.LerpAngle(a.Yaw, c.Yaw, t),
		Pitch:    core.LerpAngle(a.Pitch, c.Pitch, t),
		Grounded: grounded,
	}
}

func (b *Buffer) extrapolate(last Sample, aheadTicks float64) (core.EntityState, Mode) {
	if aheadTicks == 0 {
		return last.State(), ModeInterpolated
	}
	mode := ModeExtrapolated
	if aheadTicks > b.opts.MaxExtrapolationTicks {
		aheadTicks = b.opts.MaxExtrapolationTicks
		mode = ModeHeld
	}
	s := last.State()
	s.Position = s.Position.Add(s.Velocity.Scale(aheadTicks * b.opts.TickDT))
	return s, mode
}
