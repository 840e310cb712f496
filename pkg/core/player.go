package core

// EntityState 玩家实体的权威运动状态（纯逻辑，不包含渲染）
type EntityState struct {
	Position Vec3
	Velocity Vec3
	Yaw      float64
	Pitch    float64
	Grounded bool
}

// Quantize 按线上精度截断位置、速度与朝向
func (s EntityState) Quantize() EntityState {
	s.Position = s.Position.Quantize()
	s.Velocity = s.Velocity.Quantize()
	s.Yaw = float64(float32(s.Yaw))
	s.Pitch = float64(float32(s.Pitch))
	return s
}

// Player 会话里的一个玩家实体
type Player struct {
	ID    PeerID
	State EntityState

	// FrozenUntil 冻结到该 tick（含）为止，0 表示未冻结
	FrozenUntil uint32
}

// NewPlayer 创建新玩家
func NewPlayer(id PeerID, spawn Vec3) *Player {
	return &Player{
		ID: id,
		State: EntityState{
			Position: spawn,
			Grounded: spawn.Y <= GroundHeight,
		},
	}
}

// Frozen 判断在指定 tick 是否处于冻结
func (p *Player) Frozen(tick uint32) bool {
	return p.FrozenUntil != 0 && tick <= p.FrozenUntil
}
