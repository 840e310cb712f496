// Package session 是复制核心：握手、权威服务器模拟、自适应输入延迟、
// 客户端预测与和解、远端插值以及延迟补偿命中判定。
//
// 会话只由调用 PhysicsTick / FrameTick 的那个协程驱动，内部不加锁；
// 网络 I/O 全部是非阻塞的 Poll，传输层自己管理读写协程。
package session

import (
	"errors"
	"fmt"
	"log"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
	"arenanet/pkg/transport"
)

// Mode 会话角色
type Mode uint8

const (
	ModeInactive Mode = iota
	ModeListenServer
	ModeDedicatedServer
	ModeClient
)

func (m Mode) String() string {
	switch m {
	case ModeListenServer:
		return "listen_server"
	case ModeDedicatedServer:
		return "dedicated_server"
	case ModeClient:
		return "client"
	default:
		return "inactive"
	}
}

func (m Mode) isServer() bool {
	return m == ModeListenServer || m == ModeDedicatedServer
}

var (
	ErrNotRunning      = errors.New("session: not running")
	ErrAlreadyRunning  = errors.New("session: already running")
	ErrNoTransport     = errors.New("session: transport required")
	ErrNotWelcomed     = errors.New("session: handshake not complete")
	ErrVersionMismatch = errors.New("session: protocol version mismatch")
	ErrRejected        = errors.New("session: rejected by server")
	ErrDisconnected    = errors.New("session: disconnected")
	ErrUnknownPeer     = errors.New("session: unknown peer")
)

// tickEpsilon 估计 tick 取整前加的余量，抵消 time.Duration 的舍入
const tickEpsilon = 1e-3

// flusher netsim.Simulator 之类需要每 tick 推进的传输
type flusher interface {
	Flush(now time.Time) int
}

// Session 一个进程角色对应一个会话
type Session struct {
	cfg     Config
	hooks   Hooks
	logger  *log.Logger
	metrics Metrics

	mode  Mode
	tr    transport.Transport
	world *core.World
	tick  uint32    // 服务器：最近模拟完的 tick
	now   time.Time // 当前 PhysicsTick 的时间

	srv *serverState
	cl  *clientState
}

// New 创建未启动的会话
func New(cfg Config, hooks Hooks) *Session {
	cfg = cfg.normalize()
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	var m Metrics = nopMetrics{}
	if cfg.Metrics != nil {
		m = cfg.Metrics
	}
	return &Session{
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger,
		metrics: m,
	}
}

// StartDedicatedServer 以专用服务器启动
func (s *Session) StartDedicatedServer(tr transport.Transport) error {
	if tr == nil {
		return fmt.Errorf("%s: %w", ModeDedicatedServer, ErrNoTransport)
	}
	return s.start(ModeDedicatedServer, tr)
}

// StartListenServer 以监听服务器启动，本地玩家占用 HostPeerID。
// tr 可以为 nil（只有本地玩家）
func (s *Session) StartListenServer(tr transport.Transport) error {
	return s.start(ModeListenServer, tr)
}

// StartClient 以客户端启动，握手在传输连上后自动发起
func (s *Session) StartClient(tr transport.Transport) error {
	if tr == nil {
		return fmt.Errorf("%s: %w", ModeClient, ErrNoTransport)
	}
	return s.start(ModeClient, tr)
}

func (s *Session) start(mode Mode, tr transport.Transport) error {
	if s.mode != ModeInactive {
		return ErrAlreadyRunning
	}
	s.mode = mode
	s.tr = tr
	s.world = core.NewWorld()
	s.now = time.Time{}

	switch mode {
	case ModeDedicatedServer:
		s.tick = s.cfg.StartTick
		s.srv = newServerState(s.cfg)
	case ModeListenServer:
		s.tick = s.cfg.StartTick
		s.srv = newServerState(s.cfg)
		s.cl = newClientState(s.cfg)
		s.joinHost()
	case ModeClient:
		s.tick = 0
		s.cl = newClientState(s.cfg)
	}
	s.logger.Printf("会话启动: %s", mode)
	return nil
}

// Stop 停止会话并清空全部状态，可重复调用。
// 停止后不再持有传输和实体的引用，传输由调用方关闭
func (s *Session) Stop() {
	s.stop(true)
}

func (s *Session) stop(farewell bool) {
	if s.mode == ModeInactive {
		return
	}
	if farewell && s.tr != nil {
		switch {
		case s.mode.isServer():
			for _, c := range s.srv.sortedConns() {
				if c.welcomed() && !c.host {
					s.sendReliable(c, &protocol.Control{Body: &protocol.Goodbye{Reason: protocol.ReasonShutdown}})
				}
			}
		case s.cl != nil && s.cl.welcomed:
			s.sendToServer(&protocol.Control{Body: &protocol.Goodbye{}})
		}
	}
	s.logger.Printf("会话停止: %s", s.mode)

	s.mode = ModeInactive
	s.tr = nil
	s.world = nil
	s.srv = nil
	s.cl = nil
	s.tick = 0
	s.now = time.Time{}
}

// teardown 客户端遇到致命错误：通知上层后整体复位
func (s *Session) teardown(err error) {
	s.logger.Printf("会话终止: %v", err)
	hook := s.hooks.Disconnected
	s.stop(false)
	if hook != nil {
		hook(err)
	}
}

// PhysicsTick 固定步：拉取网络包并按到达顺序处理，然后推进模拟并发送
func (s *Session) PhysicsTick(now time.Time) {
	if s.mode == ModeInactive {
		return
	}
	started := time.Now()
	s.now = now

	s.flush(now)
	s.poll(now)
	// 处理网络包时可能已经断开
	if s.mode == ModeInactive {
		return
	}

	switch s.mode {
	case ModeClient:
		s.clientTick(now)
	case ModeListenServer:
		// 本地玩家先产出本 tick 的指令，服务器同一 tick 就能消费
		s.clientTick(now)
		s.serverTick(now)
	case ModeDedicatedServer:
		s.serverTick(now)
	}

	s.flush(now)
	s.metrics.TickDuration(time.Since(started))
}

// FrameTick 渲染帧：推进远端插值和视觉修正的衰减
func (s *Session) FrameTick(now time.Time, dt float64) {
	if s.cl == nil || !s.cl.welcomed {
		return
	}
	s.cl.decayCorrection(s.cfg.CorrectionTime.Seconds(), dt)
	renderTick := s.renderTick(now)
	for _, r := range s.cl.remotes {
		r.render, r.mode = r.buf.At(renderTick)
	}
}

func (s *Session) flush(now time.Time) {
	if f, ok := s.tr.(flusher); ok {
		f.Flush(now)
	}
}

func (s *Session) poll(now time.Time) {
	if s.tr == nil {
		return
	}
	for _, msg := range s.tr.Poll() {
		if s.mode == ModeInactive {
			return
		}
		switch msg.Kind {
		case transport.KindConnect:
			s.onConnect(msg.Peer)
		case transport.KindDisconnect:
			s.onDisconnect(msg.Peer)
		case transport.KindData:
			s.onData(msg.Peer, msg.Data, now)
		}
	}
}

func (s *Session) onConnect(peer core.PeerID) {
	if s.mode.isServer() {
		s.acceptPeer(peer)
		return
	}
	s.sendHello()
}

func (s *Session) onDisconnect(peer core.PeerID) {
	if s.mode.isServer() {
		if c := s.srv.conns[peer]; c != nil {
			s.removePeer(c, "连接断开")
		}
		return
	}
	s.teardown(ErrDisconnected)
}

func (s *Session) onData(peer core.PeerID, data []byte, now time.Time) {
	p, err := protocol.Decode(data)
	if err != nil {
		s.malformed(peer, err)
		return
	}
	if s.mode.isServer() {
		c := s.srv.conns[peer]
		if c == nil {
			return
		}
		s.serverHandle(c, p, now)
		return
	}
	s.clientHandle(p, now)
}

// malformed 畸形包直接丢弃，只计数
func (s *Session) malformed(peer core.PeerID, err error) {
	s.metrics.MalformedPacket()
	if s.mode.isServer() {
		if c := s.srv.conns[peer]; c != nil {
			c.stats.Malformed++
		}
		return
	}
	s.cl.stats.Malformed++
	s.logger.Printf("丢弃畸形包: %v", err)
}

// ========== 发送 ==========

// encode 按可靠性编码。玩法流量走可靠通道属于编程错误，直接 panic
func (s *Session) encode(rel protocol.Reliability, p protocol.Packet) ([]byte, bool) {
	data, err := protocol.EncodeFor(rel, p)
	if err != nil {
		if errors.Is(err, protocol.ErrInputOnReliable) || errors.Is(err, protocol.ErrControlUnreliable) {
			panic(fmt.Sprintf("session: %s: %v", protocol.PacketName(p), err))
		}
		s.logger.Printf("编码 %s 失败: %v", protocol.PacketName(p), err)
		return nil, false
	}
	return data, true
}

func (s *Session) sendUnreliable(c *peerConn, p protocol.Packet) {
	s.sendPacket(c, protocol.ChannelGameplay, protocol.Unreliable, p)
}

func (s *Session) sendReliable(c *peerConn, p protocol.Packet) {
	s.sendPacket(c, protocol.ChannelControl, protocol.Reliable, p)
}

func (s *Session) sendPacket(c *peerConn, ch protocol.Channel, rel protocol.Reliability, p protocol.Packet) {
	data, ok := s.encode(rel, p)
	if !ok {
		return
	}
	if c.host {
		// 本地玩家绕过传输，进程内直接投递
		s.clientHandle(p, s.now)
		return
	}
	if s.tr == nil {
		return
	}
	if err := s.tr.Send(c.transportID, ch, rel, data); err != nil {
		s.logger.Printf("peer %d: 发送 %s 失败: %v", c.transportID, protocol.PacketName(p), err)
	}
}

// sendToServer 客户端发给服务器；监听服务器的本地玩家直接交给服务器逻辑
func (s *Session) sendToServer(p protocol.Packet) {
	ch, rel := protocol.RouteFor(p.Tag())
	data, ok := s.encode(rel, p)
	if !ok {
		return
	}
	if s.mode == ModeListenServer {
		s.serverHandle(s.srv.host, p, s.now)
		return
	}
	if s.tr == nil {
		return
	}
	if err := s.tr.Send(core.ServerPeerID, ch, rel, data); err != nil {
		s.logger.Printf("发送 %s 失败: %v", protocol.PacketName(p), err)
	}
}

// ========== 查询 ==========

// Mode 当前角色
func (s *Session) Mode() Mode { return s.mode }

// Config 生效的配置
func (s *Session) Config() Config { return s.cfg }

// World 实体表。服务器上是权威状态，客户端上是最近一次快照的权威状态
func (s *Session) World() *core.World { return s.world }

// Tick 服务器返回最近模拟的 tick，客户端返回估计的服务器 tick
func (s *Session) Tick() uint32 {
	if s.mode == ModeClient && s.cl.welcomed {
		return s.cl.clock.Tick(s.now)
	}
	return s.tick
}
