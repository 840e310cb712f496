// Package bot 行为树驱动的无界面输入源，压测客户端和监听服务器的本地玩家都用它。
package bot

import (
	"math/rand"

	"arenanet/pkg/core"
)

// Decision 一个 tick 的输出
type Decision struct {
	Input core.RawInput
	// Shot 非空时本 tick 开火
	Shot *Shot
}

// Controller 一个机器人
type Controller struct {
	rnd    *rand.Rand
	config *Config

	thinkCounter int
	cached       core.RawInput

	blackboard Blackboard
	tree       Node
}

// New 使用普通难度
func New(seed int64) *Controller {
	return NewWithConfig(seed, &ConfigNormal)
}

// NewWithConfig 使用指定配置，同样的种子和局面序列得到同样的输入
func NewWithConfig(seed int64, config *Config) *Controller {
	if config == nil {
		config = &ConfigNormal
	}
	rnd := rand.New(rand.NewSource(seed))

	c := &Controller{
		rnd:    rnd,
		config: config,
	}
	c.blackboard = Blackboard{RNG: rnd, Config: config}

	c.tree = Selector(
		// 快出界时先往回走
		Sequence(Condition(condNearEdge), Action(actReturnToCenter)),
		Sequence(
			Condition(condFindTarget),
			Action(actAim),
			Always(Sequence(Condition(condCanFire), Action(actFire))),
		),
		Action(actWander),
	)
	return c
}

// Decide 每个固定步调用一次
func (c *Controller) Decide(v View) Decision {
	bb := &c.blackboard
	if bb.FireCooldown > 0 {
		bb.FireCooldown--
	}
	if bb.WanderTicks > 0 {
		bb.WanderTicks--
	}

	c.thinkCounter++
	if c.thinkCounter < c.config.ThinkIntervalTicks {
		// 开火只在思考的 tick 上发生，按住位不沿用
		in := c.cached
		in.Held &^= core.ButtonFire | core.ButtonJump
		return Decision{Input: in}
	}
	c.thinkCounter = 0

	bb.ResetFrame(v)
	_ = c.tree.Tick(bb)

	if c.config.MistakeRate > 0 && c.rnd.Float64() < c.config.MistakeRate {
		switch c.rnd.Intn(2) {
		case 0:
			// 发呆
			bb.Input = core.RawInput{Yaw: bb.Input.Yaw, Pitch: bb.Input.Pitch}
			bb.Shot = nil
		case 1:
			// 反向走
			bb.Input.MoveX, bb.Input.MoveY = -bb.Input.MoveX, -bb.Input.MoveY
		}
	}

	c.cached = bb.Input
	return Decision{Input: bb.Input, Shot: bb.Shot}
}

// Config 当前配置
func (c *Controller) Config() *Config { return c.config }
