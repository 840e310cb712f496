package core

import "math"

// Buttons 按键位掩码
type Buttons uint16

const (
	ButtonJump        Buttons = 1 << iota // 跳跃（按住）
	ButtonJumpPressed                     // 跳跃（本 tick 按下）
	ButtonFire                            // 开火（按住）
	ButtonFirePressed                     // 开火（本 tick 按下）
	ButtonCrouch
	ButtonSprint
	ButtonUse
	ButtonReload
)

// AllowedButtons 服务器接受的按键集合
const AllowedButtons = ButtonJump | ButtonJumpPressed | ButtonFire | ButtonFirePressed |
	ButtonCrouch | ButtonSprint | ButtonUse | ButtonReload

// Has 判断是否包含按键
func (b Buttons) Has(mask Buttons) bool {
	return b&mask != 0
}

// RawInput 每个固定步采集到的原始输入
type RawInput struct {
	MoveX, MoveY float32
	Yaw, Pitch   float32
	Held         Buttons // 只包含按住位，边沿位由 EdgeTracker 计算
}

// EdgeTracker 由按住状态推导“本 tick 按下”边沿
type EdgeTracker struct {
	prev Buttons
}

// Apply 返回包含边沿位的按键
func (e *EdgeTracker) Apply(held Buttons) Buttons {
	held &^= ButtonJumpPressed | ButtonFirePressed
	out := held
	if held.Has(ButtonJump) && !e.prev.Has(ButtonJump) {
		out |= ButtonJumpPressed
	}
	if held.Has(ButtonFire) && !e.prev.Has(ButtonFire) {
		out |= ButtonFirePressed
	}
	e.prev = held
	return out
}

// Reset 清空上一 tick 的状态（例如失焦后）
func (e *EdgeTracker) Reset() {
	e.prev = 0
}

// Command 一个固定步的输入指令
// 同一 epoch 内 Seq 与 Tick 严格递增
type Command struct {
	Seq     uint32
	Tick    uint32
	Epoch   uint16
	DT      float32
	MoveX   float32
	MoveY   float32
	Buttons Buttons
	Yaw     float32
	Pitch   float32
}

// Neutral 返回“保持上一条”回退用的指令：移动清零、清除跳跃按下位
func (c Command) Neutral() Command {
	c.MoveX = 0
	c.MoveY = 0
	c.Buttons &^= ButtonJumpPressed
	return c
}

// Sanitize 规范化指令：移动向量限制为单位长度、yaw 归一到 [-π, π]、
// pitch 限制在 ±PitchLimit、按键按白名单过滤
func Sanitize(c Command) Command {
	if isFinite32(c.MoveX) && isFinite32(c.MoveY) {
		// 留一点余量，保证对已规范化的指令再次调用结果不变
		lenSq := c.MoveX*c.MoveX + c.MoveY*c.MoveY
		if lenSq > 1+1e-5 {
			inv := float32(1 / math.Sqrt(float64(lenSq)))
			c.MoveX *= inv
			c.MoveY *= inv
		}
	}
	if isFinite32(c.Yaw) {
		c.Yaw = WrapAngle32(c.Yaw)
	}
	if isFinite32(c.Pitch) {
		c.Pitch = clamp32(c.Pitch, -PitchLimit, PitchLimit)
	}
	c.Buttons &= AllowedButtons
	return c
}

// Validate 服务器端校验，不合法的指令直接拒绝
func Validate(c Command) bool {
	if c.Seq == 0 || c.Tick == 0 || c.Epoch == 0 {
		return false
	}
	if !isFinite32(c.DT) || c.DT <= 0 || c.DT > MaxCommandDelta {
		return false
	}
	if !isFinite32(c.MoveX) || !isFinite32(c.MoveY) || !isFinite32(c.Yaw) || !isFinite32(c.Pitch) {
		return false
	}
	if c.Buttons&^AllowedButtons != 0 {
		return false
	}
	return true
}

func isFinite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
