package session

import (
	"fmt"
	"time"

	"arenanet/pkg/clock"
	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

// ========== 服务器 ==========

// acceptPeer 传输层连上，等待 Hello
func (s *Session) acceptPeer(peer core.PeerID) {
	if _, ok := s.srv.conns[peer]; ok {
		return
	}
	s.srv.conns[peer] = newPeerConn(peer, s.cfg)
	s.logger.Printf("peer %d 已连接，等待握手", peer)
}

// joinHost 监听服务器的本地玩家，不经过传输也不需要握手
func (s *Session) joinHost() {
	c := newPeerConn(core.HostPeerID, s.cfg)
	c.host = true
	c.id = core.HostPeerID
	c.name = s.cfg.Name
	c.epoch = s.cl.epoch
	c.state = stateAwaitingFirstInput
	c.joinedTick = s.tick
	// 本地指令同一 tick 就能被消费，不需要缓冲窗口
	c.delay = newDelayController(0, s.tick)
	s.srv.host = c
	s.srv.byEntity[c.id] = c
	s.world.AddPlayer(c.id, core.SpawnPoint(c.id))

	s.cl.welcome(c.id, s.tick, 0, s.cfg.Redundancy, s.cfg.TickRate, s.cfg.SnapshotRate, time.Time{})
	if s.hooks.PeerJoined != nil {
		s.hooks.PeerJoined(c.id, false)
	}
}

func (s *Session) handleHello(c *peerConn, h *protocol.Hello, now time.Time) {
	if c.welcomed() || c.host {
		return
	}
	if h.Version != protocol.Version {
		s.logger.Printf("peer %d: 协议版本不匹配 (客户端 %d, 服务器 %d)", c.transportID, h.Version, protocol.Version)
		s.reject(c, protocol.ReasonVersion)
		return
	}
	if len(s.srv.byEntity) >= s.cfg.MaxPeers {
		s.reject(c, protocol.ReasonFull)
		return
	}

	s.purgeParked(now)
	id, resumed := c.transportID, false
	if h.Token != "" {
		claimed, err := VerifyToken(s.cfg.TokenSecret, h.Token, now)
		if err != nil {
			s.logger.Printf("peer %d: 令牌无效: %v", c.transportID, err)
			s.reject(c, protocol.ReasonBadToken)
			return
		}
		// 原编号还被占用时按新玩家处理
		if s.srv.byEntity[claimed] == nil {
			id, resumed = claimed, true
		}
	}

	c.id = id
	c.name = h.Name
	c.epoch = h.Epoch
	c.state = stateAwaitingFirstInput
	c.joinedTick = s.tick
	c.delay = newDelayController(s.cfg.InputDelay, s.tick)
	c.nextPing = now
	s.srv.byEntity[id] = c

	p := s.world.AddPlayer(id, core.SpawnPoint(id))
	if pk, ok := s.srv.parked[id]; ok && resumed {
		p.State = pk.state
		delete(s.srv.parked, id)
		s.srv.stats.Resumed++
	}

	token, err := IssueToken(s.cfg.TokenSecret, id, s.cfg.TokenTTL, now)
	if err != nil {
		s.logger.Printf("peer %d: 签发令牌失败: %v", id, err)
		token = ""
	}
	s.sendReliable(c, protocol.NewControl(&protocol.Welcome{
		Peer:         uint32(id),
		ServerTick:   s.tick,
		TickRate:     uint16(s.cfg.TickRate),
		SnapshotRate: uint16(s.cfg.SnapshotRate),
		InputDelay:   uint8(s.cfg.InputDelay),
		Redundancy:   uint8(s.cfg.Redundancy),
		Resumed:      resumed,
		Token:        token,
	}))
	s.logger.Printf("玩家 %q 加入: peer %d (传输 %d, 恢复=%v)", h.Name, id, c.transportID, resumed)
	if s.hooks.PeerJoined != nil {
		s.hooks.PeerJoined(id, resumed)
	}
}

// reject 拒绝握手并忘掉这个连接，客户端收到后自行断开
func (s *Session) reject(c *peerConn, reason uint8) {
	s.srv.stats.Rejected++
	s.sendReliable(c, protocol.NewRejectPacket(reason))
	delete(s.srv.conns, c.transportID)
}

// purgeParked 清理超过令牌有效期的暂存实体
func (s *Session) purgeParked(now time.Time) {
	for id, pk := range s.srv.parked {
		if now.Sub(pk.at) > s.cfg.TokenTTL {
			delete(s.srv.parked, id)
		}
	}
}

// ========== 客户端 ==========

func (s *Session) sendHello() {
	if s.cl.welcomed {
		return
	}
	s.sendToServer(protocol.NewHelloPacket(s.cfg.Name, s.cl.epoch, s.cfg.ResumeToken))
}

func (s *Session) handleWelcome(w *protocol.Welcome, now time.Time) {
	cl := s.cl
	if cl.welcomed {
		return
	}
	cl.welcome(core.PeerID(w.Peer), w.ServerTick, int(w.InputDelay), int(w.Redundancy), int(w.TickRate), int(w.SnapshotRate), now)
	cl.token = w.Token
	s.logger.Printf("握手完成: peer %d, 服务器 tick %d, 延迟 %d, 冗余 %d", w.Peer, w.ServerTick, w.InputDelay, w.Redundancy)
	if s.hooks.Welcomed != nil {
		s.hooks.Welcomed(cl.local, w.Resumed)
	}
}

func (s *Session) handleReject(r *protocol.Reject) {
	if r.Reason == protocol.ReasonVersion {
		s.teardown(fmt.Errorf("server v%d, client v%d: %w", r.ServerVersion, protocol.Version, ErrVersionMismatch))
		return
	}
	s.teardown(fmt.Errorf("reason %d: %w", r.Reason, ErrRejected))
}

// welcome 握手完成后的客户端初始化。时钟以 Welcome 里的服务器 tick 起步，
// 第一条指令的 tick 一定大于它
func (cl *clientState) welcome(local core.PeerID, serverTick uint32, delay, redundancy, tickRate, snapshotRate int, now time.Time) {
	if tickRate <= 0 {
		tickRate = core.DefaultTickRate
	}
	if snapshotRate <= 0 || snapshotRate > tickRate {
		snapshotRate = min(core.DefaultSnapshotRate, tickRate)
	}
	cl.local = local
	cl.welcomed = true
	cl.delay = delay
	cl.redundancy = clampInt(redundancy, 1, protocol.MaxBundleCommands)
	cl.tickRate = tickRate
	cl.snapshotEvery = max(tickRate/snapshotRate, 1)
	cl.lastInputTick = serverTick
	cl.clock = clock.New(tickRate)
	cl.clock.Resync(float64(serverTick), now)
	cl.nextPing = now
}
