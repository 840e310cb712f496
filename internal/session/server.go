package session

import (
	"sort"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/protocol"
)

// parked 断开的玩家，凭令牌重连时恢复
type parked struct {
	state core.EntityState
	at    time.Time
}

// ServerStats 服务器全局计数
type ServerStats struct {
	SnapshotsSent int
	ResyncHints   int
	Rejected      int
	Resumed       int
}

type serverState struct {
	conns    map[core.PeerID]*peerConn // 按传输层编号
	byEntity map[core.PeerID]*peerConn // 按实体编号
	host     *peerConn
	parked   map[core.PeerID]parked

	validator *lagcomp.Validator
	every     uint32
	stats     ServerStats
}

func newServerState(cfg Config) *serverState {
	return &serverState{
		conns:     make(map[core.PeerID]*peerConn),
		byEntity:  make(map[core.PeerID]*peerConn),
		parked:    make(map[core.PeerID]parked),
		validator: lagcomp.NewValidator(cfg.LagComp, lagcomp.NewRing(cfg.HistoryTicks), cfg.Scene),
		every:     cfg.snapshotEvery(),
	}
}

// sortedConns 按实体编号排序，保证发送顺序确定
func (st *serverState) sortedConns() []*peerConn {
	out := make([]*peerConn, 0, len(st.conns)+1)
	for _, c := range st.conns {
		out = append(out, c)
	}
	if st.host != nil {
		out = append(out, st.host)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].transportID < out[j].transportID
	})
	return out
}

// serverTick 权威模拟一步
func (s *Session) serverTick(now time.Time) {
	srv := s.srv
	s.tick++
	tick := s.tick
	dt := s.cfg.fixedDelta()

	for _, id := range s.world.IDs() {
		p := s.world.Players[id]
		c := srv.byEntity[id]
		if c == nil {
			continue
		}
		cmd := c.nextCommand(dt, s.metrics)
		// 冻结只看服务器自己的 tick，客户端预测按 cmd.Tick 估计，见 replay
		p.State = stepEntity(s.cfg.Mover, p.State, cmd, p.Frozen(tick))
		if s.hooks.ServerPostSimulatePlayer != nil {
			s.hooks.ServerPostSimulatePlayer(p, cmd, tick)
		}
	}

	srv.validator.Ring().Record(tick, s.world)
	if s.hooks.ServerOnTick != nil {
		s.hooks.ServerOnTick(tick)
	}

	s.servicePeers(now)
	if tick%srv.every == 0 {
		s.broadcastSnapshot()
	}
}

// stepEntity 客户端预测与服务器模拟共用的一步：冻结时按中性输入走，结果按线上精度截断
func stepEntity(m core.Mover, st core.EntityState, cmd core.Command, frozen bool) core.EntityState {
	if frozen {
		cmd = cmd.Neutral()
	}
	return m.Step(st, cmd).Quantize()
}

// servicePeers 定时 Ping，并根据 RTT 抖动调整每个连接的输入延迟
func (s *Session) servicePeers(now time.Time) {
	for _, c := range s.srv.sortedConns() {
		if !c.welcomed() || c.host {
			continue
		}
		if !now.Before(c.nextPing) {
			c.pingID++
			s.sendReliable(c, protocol.NewPingPacket(c.pingID, uint64(now.UnixMicro()), s.tick))
			c.nextPing = now.Add(s.cfg.PingInterval)
		}
		if c.rtt.Samples() == 0 {
			continue
		}
		target := EffectiveDelay(c.rtt.Jitter(), s.cfg.DelaySafetyMs, s.cfg.tickMs(), s.cfg.MinInputDelay, s.cfg.MaxInputDelay)
		prev := c.inputDelay()
		if d, push := c.delay.Update(target, s.tick); push {
			if d > prev {
				c.widen()
			}
			s.logger.Printf("peer %d: 输入延迟调整为 %d tick (rtt %.1fms, jitter %.1fms)", c.id, d, c.rtt.RTT(), c.rtt.Jitter())
			s.sendReliable(c, protocol.NewControl(&protocol.DelayUpdate{DelayTicks: uint8(d)}))
		}
	}
}

// serverHandle 处理一个已解码的包
func (s *Session) serverHandle(c *peerConn, p protocol.Packet, now time.Time) {
	switch v := p.(type) {
	case *protocol.InputBundle:
		s.handleBundle(c, v, now)
	case *protocol.Control:
		if !c.host && !c.limits.control.AllowN(now, 1) {
			c.stats.Throttled++
			return
		}
		s.serverControl(c, v, now)
	case *protocol.Fire:
		s.handleFire(c, v, now)
	default:
		// 服务器不接受快照和判定结果
		c.stats.Malformed++
	}
}

func (s *Session) serverControl(c *peerConn, ctrl *protocol.Control, now time.Time) {
	switch b := ctrl.Body.(type) {
	case *protocol.Hello:
		s.handleHello(c, b, now)
	case *protocol.Goodbye:
		s.removePeer(c, "主动离开")
	case *protocol.Ping:
		if c.welcomed() {
			s.sendReliable(c, protocol.NewPongPacket(b, s.tick))
		}
	case *protocol.Pong:
		// 只接受比上一个应答更新的 Pong，RTT 超过 Ping 间隔时也能测到
		if !c.welcomed() || b.ID == 0 || b.ID > c.pingID || b.ID <= c.lastPong {
			return
		}
		c.lastPong = b.ID
		sample := float64(now.UnixMicro()-int64(b.EchoUs)) / 1000
		c.rtt.Observe(sample)
	}
}

// handleBundle 输入包到达：写入缓冲区，必要时切换 epoch 或开始消费
func (s *Session) handleBundle(c *peerConn, b *protocol.InputBundle, now time.Time) {
	if !c.welcomed() {
		return
	}
	var newestTick uint32
	for _, wc := range b.Commands {
		cmd := protocol.WireCommandToCore(wc)
		// 序号不可能领先入场以来的 tick 数太多，伪造的大序号会把消费水位推到天上
		if cmd.Seq > c.seqLimit(s.tick) {
			c.stats.Rejected++
			s.metrics.Input(InputRejected, 1)
			continue
		}
		switch {
		case cmd.Epoch < c.epoch:
			continue
		case cmd.Epoch > c.epoch:
			s.logger.Printf("peer %d: epoch %d -> %d", c.id, c.epoch, cmd.Epoch)
			c.changeEpoch(cmd.Epoch)
		}
		if !c.ring.Push(cmd) {
			// 冗余重发的已消费指令不算迟到
			if cmd.Seq != 0 && !c.ring.WasTaken(cmd.Seq) {
				c.stats.Late++
				s.metrics.Input(InputLate, 1)
			}
			continue
		}
		if cmd.Tick > newestTick {
			newestTick = cmd.Tick
		}
	}
	if newestTick == 0 {
		return
	}
	if newestTick > c.lastInputTick {
		c.lastInputTick = newestTick
	}
	if c.state == stateAwaitingFirstInput && c.ring.Len() > 0 {
		latest, _ := c.ring.Latest()
		c.beginStreaming(latest)
	}
	s.checkResync(c, newestTick, now)
}

// checkResync 输入 tick 与服务器 tick 偏差太大说明客户端时钟跑偏了
func (s *Session) checkResync(c *peerConn, inputTick uint32, now time.Time) {
	if c.host {
		return
	}
	diff := int64(inputTick) - int64(s.tick)
	if diff >= -ResyncLagTicks && diff <= ResyncLagTicks {
		return
	}
	if !c.limits.resync.AllowN(now, 1) {
		return
	}
	s.srv.stats.ResyncHints++
	s.logger.Printf("peer %d: 输入 tick %d 偏离服务器 tick %d，发送重同步", c.id, inputTick, s.tick)
	s.sendReliable(c, protocol.NewControl(&protocol.ResyncHint{ServerTick: s.tick}))
}

// removePeer 连接断开或离开，实体暂存以便重连
func (s *Session) removePeer(c *peerConn, reason string) {
	srv := s.srv
	delete(srv.conns, c.transportID)
	if !c.welcomed() {
		return
	}
	if srv.byEntity[c.id] == c {
		delete(srv.byEntity, c.id)
	}
	if p := s.world.Player(c.id); p != nil {
		srv.parked[c.id] = parked{state: p.State, at: s.now}
		s.world.RemovePlayer(c.id)
	}
	s.logger.Printf("peer %d 离开: %s", c.id, reason)
	if s.hooks.PeerLeft != nil {
		s.hooks.PeerLeft(c.id)
	}
}

// Kick 服务器主动踢人
func (s *Session) Kick(peer core.PeerID) error {
	if !s.mode.isServer() {
		return ErrNotRunning
	}
	c := s.srv.byEntity[peer]
	if c == nil || c.host {
		return ErrUnknownPeer
	}
	s.sendReliable(c, protocol.NewControl(&protocol.Goodbye{Reason: protocol.ReasonKicked}))
	s.removePeer(c, "被踢出")
	return nil
}

// Peers 每个连接的诊断，按实体编号排序
func (s *Session) Peers() []PeerStats {
	if !s.mode.isServer() {
		return nil
	}
	conns := s.srv.sortedConns()
	out := make([]PeerStats, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.snapshot())
	}
	return out
}

// ServerStats 服务器全局计数
func (s *Session) ServerStats() ServerStats {
	if !s.mode.isServer() {
		return ServerStats{}
	}
	return s.srv.stats
}
