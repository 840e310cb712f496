package core

import "math"

// Mover 每 tick 的运动步进函数。
// 客户端预测与服务器模拟必须使用同一个 Mover，且对同一输入结果确定
type Mover interface {
	Step(s EntityState, cmd Command) EntityState
}

// MoverFunc 函数适配
type MoverFunc func(s EntityState, cmd Command) EntityState

func (f MoverFunc) Step(s EntityState, cmd Command) EntityState { return f(s, cmd) }

// KinematicMover 默认运动器：平地加速/摩擦、重力与跳跃。
// 真实项目里由外部的运动物理替换
type KinematicMover struct {
	// Bounds 水平方向活动范围（绝对值），0 表示不限制
	Bounds float64
}

// Step 推进一个 tick
func (m KinematicMover) Step(s EntityState, cmd Command) EntityState {
	dt := float64(cmd.DT)
	if dt <= 0 {
		return s
	}

	s.Yaw = float64(cmd.Yaw)
	s.Pitch = float64(cmd.Pitch)

	// 输入方向转换到世界坐标（MoveY 为前进）
	sin, cos := math.Sincos(s.Yaw)
	fwd := Vec3{X: -sin, Z: -cos}
	right := Vec3{X: cos, Z: -sin}
	wish := fwd.Scale(float64(cmd.MoveY)).Add(right.Scale(float64(cmd.MoveX)))

	maxSpeed := WalkSpeed
	if cmd.Buttons.Has(ButtonSprint) {
		maxSpeed = SprintSpeed
	}

	horiz := Vec3{X: s.Velocity.X, Z: s.Velocity.Z}
	if s.Grounded {
		// 摩擦
		speed := horiz.Len()
		if speed > 0 {
			drop := speed * GroundFriction * dt
			scale := math.Max(speed-drop, 0) / speed
			horiz = horiz.Scale(scale)
		}
		horiz = accelerate(horiz, wish, maxSpeed, GroundAccel, dt)

		if cmd.Buttons.Has(ButtonJumpPressed) {
			s.Velocity.Y = JumpVelocity
			s.Grounded = false
		}
	} else {
		horiz = accelerate(horiz, wish, maxSpeed, AirAccel, dt)
	}

	if !s.Grounded {
		s.Velocity.Y -= Gravity * dt
	}
	s.Velocity.X = horiz.X
	s.Velocity.Z = horiz.Z

	s.Position = s.Position.Add(s.Velocity.Scale(dt))
	if s.Position.Y <= GroundHeight {
		s.Position.Y = GroundHeight
		if s.Velocity.Y < 0 {
			s.Velocity.Y = 0
		}
		s.Grounded = true
	}

	if m.Bounds > 0 {
		s.Position.X = math.Max(-m.Bounds, math.Min(m.Bounds, s.Position.X))
		s.Position.Z = math.Max(-m.Bounds, math.Min(m.Bounds, s.Position.Z))
	}
	return s
}

func accelerate(vel, wish Vec3, maxSpeed, accel, dt float64) Vec3 {
	wishLen := wish.Len()
	if wishLen == 0 {
		return vel
	}
	dir := wish.Scale(1 / wishLen)
	target := maxSpeed * math.Min(wishLen, 1)
	current := vel.Dot(dir)
	add := target - current
	if add <= 0 {
		return vel
	}
	step := math.Min(accel*dt*target, add)
	return vel.Add(dir.Scale(step))
}
