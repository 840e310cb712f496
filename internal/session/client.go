package session

import (
	"math"
	"sort"
	"time"

	"arenanet/pkg/clock"
	"arenanet/pkg/core"
	"arenanet/pkg/inputbuf"
	"arenanet/pkg/interp"
	"arenanet/pkg/protocol"
)

// ClientStats 客户端计数
type ClientStats struct {
	SnapshotsReceived int
	StaleSnapshots    int
	Corrections       int
	HardSnaps         int
	Replayed          int
	InputsSent        int
	Malformed         int
}

// remote 一个远端实体的插值状态
type remote struct {
	buf    *interp.Buffer
	render core.EntityState
	mode   interp.Mode
}

type clientState struct {
	local         core.PeerID
	welcomed      bool
	epoch         uint16
	seq           uint32
	lastInputTick uint32
	delay         int
	redundancy    int
	tickRate      int
	snapshotEvery int
	token         string

	ring     *inputbuf.ClientRing
	edges    core.EdgeTracker
	input    core.RawInput
	clock    *clock.Estimator
	rtt      RTTEstimator
	pingID   uint32
	lastPong uint32
	nextPing time.Time

	// 本地预测，碰撞体只看 predicted，渲染位置再叠加 offset
	predicted      core.EntityState
	predictedReady bool
	frozenUntil    uint32
	ackSeq         uint32
	lastSnapshot   uint32
	offset         core.Vec3
	offsetVel      core.Vec3
	diag           protocol.PlayerState

	remotes   map[core.PeerID]*remote
	interp    interp.Options
	jitter    *interp.JitterTracker
	autoDelay *interp.AutoDelay
	fireID    uint32

	stats ClientStats
}

func newClientState(cfg Config) *clientState {
	interval := time.Second / time.Duration(cfg.SnapshotRate)
	return &clientState{
		epoch:     1,
		ring:      inputbuf.NewClientRing(),
		remotes:   make(map[core.PeerID]*remote),
		interp:    cfg.interpOptions(),
		jitter:    interp.NewJitterTracker(interval),
		autoDelay: interp.NewAutoDelay(cfg.InterpDelayTicks, cfg.MinInterpDelayTicks, cfg.MaxInterpDelayTicks),
	}
}

// clientTick 采样输入生成指令，立即预测，然后发送冗余包
func (s *Session) clientTick(now time.Time) {
	cl := s.cl
	if !cl.welcomed {
		return
	}

	cmd := cl.buildCommand(s.inputBaseTick(now), s.cfg.fixedDelta())
	cl.ring.Push(cmd)
	if cl.predictedReady {
		cl.predicted = stepEntity(s.cfg.Mover, cl.predicted, cmd, cl.frozen(cmd.Tick))
	}
	if s.hooks.ClientOnTick != nil {
		s.hooks.ClientOnTick(cmd)
	}

	bundle := protocol.CoreCommandsToBundle(cl.ring.Latest(cl.redundancy))
	s.sendToServer(bundle)
	cl.stats.InputsSent++

	if s.mode == ModeClient && !now.Before(cl.nextPing) {
		cl.pingID++
		s.sendToServer(protocol.NewPingPacket(cl.pingID, uint64(now.UnixMicro()), cl.clock.Tick(now)))
		cl.nextPing = now.Add(s.cfg.PingInterval)
	}
}

// inputBaseTick 估计的服务器当前 tick；监听服务器的本地玩家直接用服务器 tick
func (s *Session) inputBaseTick(now time.Time) uint32 {
	if s.mode == ModeListenServer {
		return s.tick
	}
	return uint32(math.Floor(s.cl.clock.Estimate(now) + tickEpsilon))
}

// buildCommand 输入 tick = max(上一条+1, 估计 tick + 延迟 + 1)
func (cl *clientState) buildCommand(base uint32, dt float32) core.Command {
	tick := base + uint32(cl.delay) + 1
	if tick <= cl.lastInputTick {
		tick = cl.lastInputTick + 1
	}
	cl.lastInputTick = tick
	cl.seq++
	raw := cl.input
	return core.Sanitize(core.Command{
		Seq:     cl.seq,
		Tick:    tick,
		Epoch:   cl.epoch,
		DT:      dt,
		MoveX:   raw.MoveX,
		MoveY:   raw.MoveY,
		Buttons: cl.edges.Apply(raw.Held),
		Yaw:     raw.Yaw,
		Pitch:   raw.Pitch,
	})
}

func (cl *clientState) frozen(tick uint32) bool {
	return cl.frozenUntil != 0 && tick <= cl.frozenUntil
}

// halfRTTTicks 单程延迟折算成 tick，用于修正观测到的服务器 tick
func (cl *clientState) halfRTTTicks() float64 {
	return cl.rtt.RTT() / 2 / 1000 * float64(cl.tickRate)
}

// clientHandle 处理服务器发来的包
func (s *Session) clientHandle(p protocol.Packet, now time.Time) {
	switch v := p.(type) {
	case *protocol.Snapshot:
		s.handleSnapshot(v, now)
	case *protocol.Control:
		s.clientControl(v, now)
	case *protocol.FireResult:
		if s.hooks.ShotConfirmed != nil {
			s.hooks.ShotConfirmed(v)
		}
	case *protocol.FireVisual:
		if s.hooks.ShotSeen != nil {
			s.hooks.ShotSeen(v)
		}
	default:
		s.cl.stats.Malformed++
	}
}

func (s *Session) clientControl(ctrl *protocol.Control, now time.Time) {
	cl := s.cl
	switch b := ctrl.Body.(type) {
	case *protocol.Welcome:
		s.handleWelcome(b, now)
	case *protocol.Reject:
		s.handleReject(b)
	case *protocol.Goodbye:
		if s.mode == ModeClient {
			s.teardown(ErrDisconnected)
		}
	case *protocol.Ping:
		if cl.welcomed && s.mode == ModeClient {
			s.sendToServer(protocol.NewPongPacket(b, cl.clock.Tick(now)))
		}
	case *protocol.Pong:
		if !cl.welcomed || b.ID == 0 || b.ID > cl.pingID || b.ID <= cl.lastPong {
			return
		}
		cl.lastPong = b.ID
		cl.rtt.Observe(float64(now.UnixMicro()-int64(b.EchoUs)) / 1000)
		cl.clock.Observe(float64(b.Tick)+cl.halfRTTTicks(), now)
	case *protocol.DelayUpdate:
		if s.mode == ModeClient {
			cl.delay = int(b.DelayTicks)
		}
	case *protocol.ResyncHint:
		if cl.welcomed && s.mode == ModeClient {
			s.logger.Printf("服务器要求重同步: tick %d", b.ServerTick)
			cl.clock.Resync(float64(b.ServerTick)+cl.halfRTTTicks(), now)
		}
	default:
		if f, ok := b.(*protocol.FreezeState); ok && core.PeerID(f.Peer) == cl.local {
			cl.frozenUntil = 0
			if f.Frozen {
				cl.frozenUntil = f.UntilTick
			}
		}
		if s.hooks.ControlReceived != nil {
			s.hooks.ControlReceived(ctrl.Body)
		}
	}
}

// ========== 输入与查询 ==========

// SetInput 设置下一个固定步要采样的原始输入
func (s *Session) SetInput(raw core.RawInput) {
	if s.cl != nil {
		s.cl.input = raw
	}
}

// BumpEpoch 失焦等场景：换一个 epoch，丢弃所有未确认的指令
func (s *Session) BumpEpoch() error {
	if s.cl == nil {
		return ErrNotRunning
	}
	cl := s.cl
	cl.epoch++
	if cl.epoch == 0 {
		cl.epoch = 1
	}
	cl.ring.Clear()
	cl.edges.Reset()
	cl.input = core.RawInput{}
	return nil
}

// Welcomed 客户端握手是否完成
func (s *Session) Welcomed() bool { return s.cl != nil && s.cl.welcomed }

// LocalPeer 本地玩家的实体编号
func (s *Session) LocalPeer() core.PeerID {
	if s.cl == nil {
		return 0
	}
	return s.cl.local
}

// Epoch 当前输入 epoch
func (s *Session) Epoch() uint16 {
	if s.cl == nil {
		return 0
	}
	return s.cl.epoch
}

// InputDelay 客户端当前使用的输入延迟
func (s *Session) InputDelay() int {
	if s.cl == nil {
		return 0
	}
	return s.cl.delay
}

// Token 服务器签发的重连令牌
func (s *Session) Token() string {
	if s.cl == nil {
		return ""
	}
	return s.cl.token
}

// PendingInputs 尚未被服务器确认的指令数
func (s *Session) PendingInputs() int {
	if s.cl == nil {
		return 0
	}
	return s.cl.ring.Len()
}

// Predicted 本地玩家的预测状态（碰撞用，不含视觉修正）
func (s *Session) Predicted() (core.EntityState, bool) {
	if s.cl == nil || !s.cl.predictedReady {
		return core.EntityState{}, false
	}
	return s.cl.predicted, true
}

// Frozen 本地玩家此刻是否被服务器冻结
func (s *Session) Frozen() bool {
	if s.cl == nil {
		return false
	}
	return s.cl.frozen(s.Tick())
}

// RenderState 本地玩家的渲染状态 = 预测 + 视觉修正
func (s *Session) RenderState() (core.EntityState, bool) {
	st, ok := s.Predicted()
	if !ok {
		return st, false
	}
	st.Position = st.Position.Add(s.cl.offset)
	return st, true
}

// Correction 当前视觉修正量
func (s *Session) Correction() core.Vec3 {
	if s.cl == nil {
		return core.Vec3{}
	}
	return s.cl.offset
}

// Diagnostics 最近一次快照里服务器给本地玩家的诊断
func (s *Session) Diagnostics() protocol.PlayerState {
	if s.cl == nil {
		return protocol.PlayerState{}
	}
	return s.cl.diag
}

// ClientStats 客户端计数
func (s *Session) ClientStats() ClientStats {
	if s.cl == nil {
		return ClientStats{}
	}
	return s.cl.stats
}

// RemotePeers 已知的远端实体，升序
func (s *Session) RemotePeers() []core.PeerID {
	if s.cl == nil {
		return nil
	}
	ids := make([]core.PeerID, 0, len(s.cl.remotes))
	for id := range s.cl.remotes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RemoteState 远端实体最近一帧的渲染状态
func (s *Session) RemoteState(peer core.PeerID) (core.EntityState, interp.Mode, bool) {
	if s.cl == nil {
		return core.EntityState{}, interp.ModeEmpty, false
	}
	r, ok := s.cl.remotes[peer]
	if !ok {
		return core.EntityState{}, interp.ModeEmpty, false
	}
	return r.render, r.mode, true
}

// InterpDelay 当前插值延迟（tick）
func (s *Session) InterpDelay() float64 {
	if s.cl == nil {
		return 0
	}
	return s.cl.autoDelay.Ticks()
}
