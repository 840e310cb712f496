package session

import (
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/protocol"
)

// Hooks 游戏模式规则通过这些回调接入会话，全部在 tick 协程里同步调用。
// 未设置的回调直接跳过
type Hooks struct {
	// ServerOnTick 服务器每个 tick 模拟完所有玩家之后
	ServerOnTick func(tick uint32)
	// ServerPostSimulatePlayer 单个玩家移动之后，用于命中/抓人之类的规则
	ServerPostSimulatePlayer func(p *core.Player, cmd core.Command, tick uint32)
	// PeerJoined 握手完成
	PeerJoined func(peer core.PeerID, resumed bool)
	// PeerLeft 断开或主动离开
	PeerLeft func(peer core.PeerID)
	// FireResolved 服务器完成一次开火判定
	FireResolved func(shooter core.PeerID, res lagcomp.Result)

	// ClientOnTick 客户端每个固定步生成指令之后
	ClientOnTick func(cmd core.Command)
	// Welcomed 客户端握手完成
	Welcomed func(peer core.PeerID, resumed bool)
	// ControlReceived 客户端收到游戏模式的控制包（比赛、标记、背包、道具、冻结）
	ControlReceived func(body protocol.ControlBody)
	// ShotConfirmed 自己开火的判定结果
	ShotConfirmed func(res *protocol.FireResult)
	// ShotSeen 其他玩家的开火表现
	ShotSeen func(v *protocol.FireVisual)
	// Disconnected 客户端会话终止，err 说明原因
	Disconnected func(err error)
}

// InputSource 服务器每 tick 消费的指令来源
type InputSource uint8

const (
	InputBuffered InputSource = iota
	InputHoldLast
	InputRejected
	InputDropped
	// InputLate 到达时对应序号已经被跳过，没有被模拟
	InputLate
)

func (s InputSource) String() string {
	switch s {
	case InputBuffered:
		return "buffered"
	case InputHoldLast:
		return "hold_last"
	case InputRejected:
		return "rejected"
	case InputDropped:
		return "dropped"
	case InputLate:
		return "late"
	default:
		return "unknown"
	}
}

// Metrics 会话的指标出口，由 internal/metrics 实现
type Metrics interface {
	TickDuration(d time.Duration)
	Input(src InputSource, n int)
	SnapshotSent(entries int)
	MalformedPacket()
	Peers(stats []PeerStats)
}

type nopMetrics struct{}

func (nopMetrics) TickDuration(time.Duration) {}
func (nopMetrics) Input(InputSource, int)     {}
func (nopMetrics) SnapshotSent(int)           {}
func (nopMetrics) MalformedPacket()           {}
func (nopMetrics) Peers([]PeerStats)          {}
