package core

import "math"

// 时间步配置
const (
	DefaultTickRate     = 60 // 物理步频（Hz）
	DefaultSnapshotRate = 20 // 快照广播频率（Hz）
	DefaultFixedDelta   = float32(1.0 / DefaultTickRate)
	MaxCommandDelta     = float32(0.25) // 单条指令允许的最大 dt（秒）
)

// PitchLimit 俯仰角上限（弧度）
const PitchLimit = float32(89 * math.Pi / 180)

// 默认运动器参数（单位：米、秒）
const (
	PlayerRadius    = 0.5  // 命中球半径
	PlayerEyeHeight = 1.6  // 视线高度
	WalkSpeed       = 6.0  // 地面最大速度
	SprintSpeed     = 9.0  // 冲刺最大速度
	GroundAccel     = 60.0 // 地面加速度
	GroundFriction  = 10.0 // 地面摩擦
	AirAccel        = 12.0 // 空中加速度
	Gravity         = 20.0 // 重力加速度
	JumpVelocity    = 7.0  // 起跳速度
	GroundHeight    = 0.0  // 地面高度
)

// PeerID 连接标识，一个连接拥有一个实体
type PeerID uint32

const (
	// ServerPeerID 客户端视角下的服务器
	ServerPeerID PeerID = 1
	// HostPeerID 监听服务器模式下本地玩家
	HostPeerID PeerID = 1
	// FirstRemotePeerID 远端连接从这里开始分配
	FirstRemotePeerID PeerID = 2
)
