package session

import (
	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

// buildSnapshot 每个实体一行，附带各自连接的诊断
func (s *Session) buildSnapshot() *protocol.Snapshot {
	snap := &protocol.Snapshot{ServerTick: s.tick}
	for _, id := range s.world.IDs() {
		if len(snap.Entries) == protocol.MaxSnapshotEntries {
			break
		}
		row := protocol.CorePlayerToWire(s.world.Players[id], s.tick)
		if c := s.srv.byEntity[id]; c != nil {
			c.fillDiagnostics(&row)
		}
		snap.Entries = append(snap.Entries, row)
	}
	return snap
}

// broadcastSnapshot 不可靠广播给所有握手完成的连接，本地玩家进程内投递
func (s *Session) broadcastSnapshot() {
	snap := s.buildSnapshot()
	stats := make([]PeerStats, 0, len(s.srv.conns)+1)
	for _, c := range s.srv.sortedConns() {
		if !c.welcomed() {
			continue
		}
		s.sendUnreliable(c, snap)
		stats = append(stats, c.snapshot())
	}
	s.srv.stats.SnapshotsSent++
	s.metrics.SnapshotSent(len(snap.Entries))
	s.metrics.Peers(stats)
}

// broadcastControl 可靠广播一个控制包，先编码一次以便把越界错误返回给调用方
func (s *Session) broadcastControl(body protocol.ControlBody) error {
	if !s.mode.isServer() {
		return ErrNotRunning
	}
	ctrl := protocol.NewControl(body)
	if _, err := protocol.EncodeFor(protocol.Reliable, ctrl); err != nil {
		return err
	}
	for _, c := range s.srv.sortedConns() {
		if c.welcomed() {
			s.sendReliable(c, ctrl)
		}
	}
	return nil
}

// BroadcastMatchConfig 比赛配置
func (s *Session) BroadcastMatchConfig(m protocol.MatchConfig) error {
	return s.broadcastControl(&m)
}

// BroadcastMatchState 比赛阶段与比分
func (s *Session) BroadcastMatchState(m protocol.MatchState) error {
	return s.broadcastControl(&m)
}

// BroadcastTagStateFull 完整的标记状态，新玩家加入后发一次
func (s *Session) BroadcastTagStateFull(m protocol.TagStateFull) error {
	return s.broadcastControl(&m)
}

// BroadcastTagStateDelta 单个玩家的标记变化
func (s *Session) BroadcastTagStateDelta(m protocol.TagStateDelta) error {
	return s.broadcastControl(&m)
}

// BroadcastInventory 某个玩家的背包
func (s *Session) BroadcastInventory(m protocol.InventoryState) error {
	return s.broadcastControl(&m)
}

// BroadcastPickups 场上道具
func (s *Session) BroadcastPickups(m protocol.PickupState) error {
	return s.broadcastControl(&m)
}

// BroadcastFreeze 冻结状态
func (s *Session) BroadcastFreeze(m protocol.FreezeState) error {
	return s.broadcastControl(&m)
}

// Freeze 冻结玩家到 untilTick（含），0 表示解冻。冻结期间按中性输入模拟
func (s *Session) Freeze(peer core.PeerID, untilTick uint32) error {
	if !s.mode.isServer() {
		return ErrNotRunning
	}
	p := s.world.Player(peer)
	if p == nil {
		return ErrUnknownPeer
	}
	p.FrozenUntil = untilTick
	return s.BroadcastFreeze(protocol.FreezeState{
		Peer:      uint32(peer),
		Frozen:    untilTick != 0,
		UntilTick: untilTick,
	})
}

// Respawn 把玩家放到新位置并清空速度，客户端在下一个快照里和解
func (s *Session) Respawn(peer core.PeerID, pos core.Vec3) error {
	if !s.mode.isServer() {
		return ErrNotRunning
	}
	p := s.world.Player(peer)
	if p == nil {
		return ErrUnknownPeer
	}
	p.State = core.EntityState{
		Position: pos.Quantize(),
		Yaw:      p.State.Yaw,
		Pitch:    p.State.Pitch,
		Grounded: pos.Y <= core.GroundHeight,
	}
	return nil
}
