package bot

import (
	"math"

	"arenanet/pkg/core"
)

// 游荡方向持续 tick 数
const wanderDirectionTicks = 45

// yawTowards 让前进方向指向 d（yaw=0 指向 -Z）
func yawTowards(d core.Vec3) float64 {
	return math.Atan2(-d.X, -d.Z)
}

func pitchTowards(d core.Vec3) float64 {
	return math.Atan2(d.Y, math.Hypot(d.X, d.Z))
}

func eye(s core.EntityState) core.Vec3 {
	return s.Position.Add(core.Vec3{Y: core.PlayerEyeHeight})
}

// ========== 边界 ==========

func condNearEdge(bb *Blackboard) bool {
	c := bb.Config
	if c.Bounds <= 0 {
		return false
	}
	p := bb.View.Self.Position
	limit := c.Bounds - c.EdgeMargin
	return math.Abs(p.X) > limit || math.Abs(p.Z) > limit
}

func actReturnToCenter(bb *Blackboard) Status {
	p := bb.View.Self.Position
	bb.Input.Yaw = float32(yawTowards(core.Vec3{X: -p.X, Z: -p.Z}))
	bb.Input.MoveY = 1
	bb.WanderTicks = 0
	return StatusRunning
}

// ========== 战斗 ==========

// condFindTarget 找射程内最近的玩家
func condFindTarget(bb *Blackboard) bool {
	self := bb.View.Self.Position
	best := math.Inf(1)
	for i := range bb.View.Others {
		o := &bb.View.Others[i]
		d := o.State.Position.Sub(self).Len()
		if d <= bb.Config.AimRange && d < best {
			best = d
			bb.Target = o
		}
	}
	return bb.Target != nil
}

func actAim(bb *Blackboard) Status {
	dir := bb.Target.State.Position.Add(core.Vec3{Y: core.PlayerEyeHeight - 0.7}).Sub(eye(bb.View.Self))
	bb.Input.Yaw = float32(yawTowards(dir))
	bb.Input.Pitch = float32(pitchTowards(dir))
	// 绕着目标横移
	if bb.RNG.Intn(2) == 0 {
		bb.Input.MoveX = 1
	} else {
		bb.Input.MoveX = -1
	}
	return StatusSuccess
}

// condCanFire 被冻结或冷却中不开火
func condCanFire(bb *Blackboard) bool {
	return !bb.View.Frozen && bb.FireCooldown <= 0
}

func actFire(bb *Blackboard) Status {
	origin := eye(bb.View.Self)
	aim := bb.Target.State.Position.Add(core.Vec3{Y: core.PlayerEyeHeight - 0.7})
	bb.Shot = &Shot{Origin: origin, Direction: aim.Sub(origin).Normalize()}
	bb.Input.Held |= core.ButtonFire
	bb.FireCooldown = bb.Config.FireCooldownTicks
	return StatusSuccess
}

// ========== 游荡 ==========

func actWander(bb *Blackboard) Status {
	if bb.WanderTicks <= 0 {
		bb.WanderYaw = (bb.RNG.Float64()*2 - 1) * math.Pi
		bb.WanderTicks = wanderDirectionTicks
		// 偶尔跳一下
		if bb.RNG.Intn(4) == 0 {
			bb.Input.Held |= core.ButtonJump
		}
	}
	bb.Input.Yaw = float32(bb.WanderYaw)
	bb.Input.MoveY = 1
	return StatusRunning
}
