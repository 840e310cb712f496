package protocol

import "arenanet/pkg/core"

// ========== Vec3 转换 ==========

// CoreVecToWire 双精度向量转线上单精度
func CoreVecToWire(v core.Vec3) Vec3 {
	return Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

// WireVecToCore 线上向量转双精度
func WireVecToCore(v Vec3) core.Vec3 {
	return core.Vec3{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// ========== Command 转换 ==========

// CoreCommandToWire 将 core.Command 转为线上槽位
func CoreCommandToWire(c core.Command) Command {
	return Command{
		Seq:     c.Seq,
		Tick:    c.Tick,
		Epoch:   c.Epoch,
		Buttons: uint16(c.Buttons),
		DT:      c.DT,
		MoveX:   c.MoveX,
		MoveY:   c.MoveY,
		Yaw:     c.Yaw,
		Pitch:   c.Pitch,
	}
}

// WireCommandToCore 将线上槽位转为 core.Command，不做校验
func WireCommandToCore(c Command) core.Command {
	return core.Command{
		Seq:     c.Seq,
		Tick:    c.Tick,
		Epoch:   c.Epoch,
		Buttons: core.Buttons(c.Buttons),
		DT:      c.DT,
		MoveX:   c.MoveX,
		MoveY:   c.MoveY,
		Yaw:     c.Yaw,
		Pitch:   c.Pitch,
	}
}

// CoreCommandsToBundle 打包若干指令
func CoreCommandsToBundle(cmds []core.Command) *InputBundle {
	b := &InputBundle{Commands: make([]Command, 0, len(cmds))}
	for _, c := range cmds {
		b.Commands = append(b.Commands, CoreCommandToWire(c))
	}
	return b
}

// ========== 实体状态转换 ==========

// CorePlayerToWire 将玩家状态填入快照行，诊断字段由调用方补充
func CorePlayerToWire(p *core.Player, tick uint32) PlayerState {
	ps := PlayerState{
		Peer:     uint32(p.ID),
		Position: CoreVecToWire(p.State.Position),
		Velocity: CoreVecToWire(p.State.Velocity),
		Yaw:      float32(p.State.Yaw),
		Pitch:    float32(p.State.Pitch),
	}
	if p.State.Grounded {
		ps.Flags |= FlagGrounded
	}
	if p.Frozen(tick) {
		ps.Flags |= FlagFrozen
	}
	return ps
}

// WireStateToCore 将快照行转为实体状态
func WireStateToCore(ps PlayerState) core.EntityState {
	return core.EntityState{
		Position: WireVecToCore(ps.Position),
		Velocity: WireVecToCore(ps.Velocity),
		Yaw:      float64(ps.Yaw),
		Pitch:    float64(ps.Pitch),
		Grounded: ps.Grounded(),
	}
}
