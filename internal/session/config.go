package session

import (
	"log"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/interp"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/protocol"
)

// 调好的阈值，数值本身影响重同步行为，修改前先在真实抖动下验证
const (
	// MaxBufferSlack 服务器缓冲超过 输入延迟+该值 时跳过最旧的指令追赶
	MaxBufferSlack = 4
	// MaxSeqLead 指令序号最多领先 入场后服务器 tick 数 的量，超出视为伪造
	MaxSeqLead = 120
	// DelayUpdateCooldown 两次 DelayUpdate 之间至少间隔的 tick
	DelayUpdateCooldown = 30
	// ResyncLagTicks 输入 tick 偏离服务器 tick 超过该值时发送 ResyncHint
	ResyncLagTicks = 30
	// ResyncHintInterval 每个连接 ResyncHint 的最小间隔
	ResyncHintInterval = time.Second
)

// Config 会话参数
type Config struct {
	TickRate     int
	SnapshotRate int
	// StartTick 服务器起始 tick
	StartTick uint32

	// 输入延迟（tick）
	InputDelay    int
	MinInputDelay int
	MaxInputDelay int
	DelaySafetyMs float64
	// Redundancy 每个输入包携带的最近指令条数
	Redundancy   int
	MaxPeers     int
	PingInterval time.Duration

	// 和解的视觉修正
	CorrectionTime time.Duration
	SnapDistance   float64

	// 远端插值延迟（tick）
	InterpDelayTicks      float64
	MinInterpDelayTicks   float64
	MaxInterpDelayTicks   float64
	Hermite               bool
	MaxExtrapolationTicks float64

	HistoryTicks int
	LagComp      lagcomp.Config
	Scene        lagcomp.SceneRaycaster

	// 每个连接的限流
	FireRate     float64
	FireBurst    int
	ControlRate  float64
	ControlBurst int

	TokenSecret []byte
	TokenTTL    time.Duration
	// ResumeToken 客户端重连时携带的上一次令牌
	ResumeToken string

	Name    string
	Mover   core.Mover
	Logger  *log.Logger
	Metrics Metrics
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		TickRate:              core.DefaultTickRate,
		SnapshotRate:          core.DefaultSnapshotRate,
		InputDelay:            2,
		MinInputDelay:         1,
		MaxInputDelay:         6,
		DelaySafetyMs:         20,
		Redundancy:            3,
		MaxPeers:              protocol.MaxSnapshotEntries,
		PingInterval:          250 * time.Millisecond,
		CorrectionTime:        100 * time.Millisecond,
		SnapDistance:          2.0,
		InterpDelayTicks:      6,
		MinInterpDelayTicks:   3,
		MaxInterpDelayTicks:   12,
		Hermite:               true,
		MaxExtrapolationTicks: 15,
		HistoryTicks:          lagcomp.DefaultHistoryTicks,
		LagComp:               lagcomp.DefaultConfig(),
		FireRate:              10,
		FireBurst:             3,
		ControlRate:           60,
		ControlBurst:          120,
		TokenTTL:              DefaultTokenTTL,
		Name:                  "player",
		Mover:                 core.KinematicMover{Bounds: 50},
	}
}

// normalize 零值取默认，越界的值收回到合法范围
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.SnapshotRate <= 0 {
		c.SnapshotRate = d.SnapshotRate
	}
	if c.SnapshotRate > c.TickRate {
		c.SnapshotRate = c.TickRate
	}
	if c.MaxInputDelay <= 0 {
		c.MaxInputDelay = d.MaxInputDelay
	}
	// 延迟窗口不能超过冗余包能覆盖的条数
	if c.MaxInputDelay > protocol.MaxBundleCommands {
		c.MaxInputDelay = protocol.MaxBundleCommands
	}
	if c.MinInputDelay < 0 {
		c.MinInputDelay = 0
	}
	if c.MinInputDelay > c.MaxInputDelay {
		c.MinInputDelay = c.MaxInputDelay
	}
	if c.InputDelay <= 0 {
		c.InputDelay = d.InputDelay
	}
	c.InputDelay = clampInt(c.InputDelay, c.MinInputDelay, c.MaxInputDelay)
	if c.DelaySafetyMs <= 0 {
		c.DelaySafetyMs = d.DelaySafetyMs
	}
	if c.Redundancy <= 0 {
		c.Redundancy = d.Redundancy
	}
	c.Redundancy = clampInt(c.Redundancy, 1, protocol.MaxBundleCommands)
	if c.MaxPeers <= 0 || c.MaxPeers > protocol.MaxSnapshotEntries {
		c.MaxPeers = d.MaxPeers
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.CorrectionTime <= 0 {
		c.CorrectionTime = d.CorrectionTime
	}
	if c.SnapDistance <= 0 {
		c.SnapDistance = d.SnapDistance
	}
	if c.MinInterpDelayTicks <= 0 {
		c.MinInterpDelayTicks = d.MinInterpDelayTicks
	}
	if c.MaxInterpDelayTicks < c.MinInterpDelayTicks {
		c.MaxInterpDelayTicks = max(d.MaxInterpDelayTicks, c.MinInterpDelayTicks)
	}
	if c.InterpDelayTicks <= 0 {
		c.InterpDelayTicks = d.InterpDelayTicks
	}
	if c.MaxExtrapolationTicks < 0 {
		c.MaxExtrapolationTicks = 0
	}
	if c.HistoryTicks <= 0 {
		c.HistoryTicks = d.HistoryTicks
	}
	if c.LagComp == (lagcomp.Config{}) {
		c.LagComp = d.LagComp
	}
	if c.FireRate <= 0 {
		c.FireRate = d.FireRate
	}
	if c.FireBurst <= 0 {
		c.FireBurst = d.FireBurst
	}
	if c.ControlRate <= 0 {
		c.ControlRate = d.ControlRate
	}
	if c.ControlBurst <= 0 {
		c.ControlBurst = d.ControlBurst
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = d.TokenTTL
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Mover == nil {
		c.Mover = d.Mover
	}
	return c
}

// snapshotEvery 每隔多少 tick 发一次快照
func (c Config) snapshotEvery() uint32 {
	return uint32(max(c.TickRate/c.SnapshotRate, 1))
}

func (c Config) fixedDelta() float32 {
	return float32(1 / float64(c.TickRate))
}

func (c Config) tickMs() float64 {
	return 1000 / float64(c.TickRate)
}

func (c Config) interpOptions() interp.Options {
	opts := interp.DefaultOptions(c.TickRate)
	opts.Hermite = c.Hermite
	opts.MaxExtrapolationTicks = c.MaxExtrapolationTicks
	return opts
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
