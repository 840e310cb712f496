package bot

import (
	"math/rand"

	"arenanet/pkg/core"
)

// Other 机器人看到的其他玩家
type Other struct {
	Peer  core.PeerID
	State core.EntityState
}

// View 每个 tick 喂给机器人的局面
type View struct {
	Tick   uint32
	Self   core.EntityState
	Frozen bool
	Others []Other
}

// Shot 机器人决定的一次开火
type Shot struct {
	Origin    core.Vec3
	Direction core.Vec3
}

// Blackboard 行为树节点之间共享的数据
type Blackboard struct {
	View   View
	RNG    *rand.Rand
	Config *Config

	Target *Other
	Input  core.RawInput
	Shot   *Shot

	// 游荡方向跨 tick 保持
	WanderYaw   float64
	WanderTicks int
	// 两次开火之间的冷却
	FireCooldown int
}

// ResetFrame 新一轮思考前清掉本轮的输出
func (bb *Blackboard) ResetFrame(v View) {
	bb.View = v
	bb.Target = nil
	bb.Input = core.RawInput{}
	bb.Shot = nil
	// WanderYaw、WanderTicks、FireCooldown 不重置
}
