package session

import (
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/interp"
	"arenanet/pkg/protocol"
)

// handleSnapshot 远端行进插值缓冲，本地行触发和解
func (s *Session) handleSnapshot(snap *protocol.Snapshot, now time.Time) {
	cl := s.cl
	if !cl.welcomed {
		return
	}
	cl.stats.SnapshotsReceived++

	// 乱序到达的旧快照仍然插入远端缓冲
	for _, row := range snap.Entries {
		id := core.PeerID(row.Peer)
		if id == cl.local {
			continue
		}
		cl.remoteFor(id).buf.Insert(interp.SampleFromState(snap.ServerTick, protocol.WireStateToCore(row)))
	}

	if snap.ServerTick <= cl.lastSnapshot {
		cl.stats.StaleSnapshots++
		return
	}
	cl.lastSnapshot = snap.ServerTick

	if s.mode == ModeClient {
		cl.jitter.Observe(now)
		cl.autoDelay.Update(float64(cl.snapshotEvery), cl.jitter.Jitter(), float64(cl.tickRate))
		cl.clock.Observe(float64(snap.ServerTick)+cl.halfRTTTicks(), now)
		s.mirrorWorld(snap)
	}
	cl.dropMissing(snap)

	if row, ok := snap.Find(uint32(cl.local)); ok {
		cl.reconcile(row, s.cfg)
	}
}

// reconcile 对齐权威状态后重放所有未确认的指令。
// 预测结果的跳变转成视觉修正量，超过 SnapDistance 时直接跳过去
func (cl *clientState) reconcile(row protocol.PlayerState, cfg Config) {
	cl.diag = row
	before := cl.predicted.Position
	wasReady := cl.predictedReady

	if row.LastProcessedSeq > cl.ackSeq {
		cl.ackSeq = row.LastProcessedSeq
	}
	cl.ring.TrimThrough(cl.ackSeq)

	state := protocol.WireStateToCore(row)
	pending := cl.ring.Pending()
	state = replay(cfg.Mover, state, pending, cl.frozen)
	cl.predicted = state
	cl.predictedReady = true
	cl.stats.Replayed += len(pending)

	if !wasReady {
		return
	}
	delta := before.Sub(state.Position)
	if delta.IsZero() {
		return
	}
	cl.offset = cl.offset.Add(delta)
	if cl.offset.Len() > cfg.SnapDistance {
		cl.offset = core.Vec3{}
		cl.offsetVel = core.Vec3{}
		cl.stats.HardSnaps++
		return
	}
	cl.stats.Corrections++
}

// replay 从基准状态按序号顺序重放指令。
// 冻结按 cmd.Tick 判断：它是客户端对服务器消费该指令时所处 tick 的估计，
// 服务器则按自己消费时的 tick 判断。两者在冻结边界上可能差一两个 tick，
// 这种偏差由下一次快照的和解修正，服务器不采信客户端给出的 tick
func replay(m core.Mover, base core.EntityState, cmds []core.Command, frozen func(tick uint32) bool) core.EntityState {
	st := base
	for _, cmd := range cmds {
		st = stepEntity(m, st, cmd, frozen(cmd.Tick))
	}
	return st
}

// decayCorrection 视觉修正量临界阻尼衰减到零
func (cl *clientState) decayCorrection(smoothTime, dt float64) {
	if cl.offset.IsZero() && cl.offsetVel.IsZero() {
		return
	}
	cl.offset = core.SmoothDamp(cl.offset, core.Vec3{}, &cl.offsetVel, smoothTime, dt)
	if cl.offset.Len() < 1e-6 && cl.offsetVel.Len() < 1e-6 {
		cl.offset = core.Vec3{}
		cl.offsetVel = core.Vec3{}
	}
}

func (cl *clientState) remoteFor(id core.PeerID) *remote {
	r, ok := cl.remotes[id]
	if !ok {
		r = &remote{buf: interp.NewBuffer(cl.interp)}
		cl.remotes[id] = r
	}
	return r
}

// dropMissing 最新快照里没有的远端实体视为已离开
func (cl *clientState) dropMissing(snap *protocol.Snapshot) {
	for id := range cl.remotes {
		if _, ok := snap.Find(uint32(id)); !ok {
			delete(cl.remotes, id)
		}
	}
}

// mirrorWorld 客户端的 world 保存最近一次快照的权威状态，供游戏模式读取
func (s *Session) mirrorWorld(snap *protocol.Snapshot) {
	seen := make(map[core.PeerID]bool, len(snap.Entries))
	for _, row := range snap.Entries {
		id := core.PeerID(row.Peer)
		seen[id] = true
		p := s.world.AddPlayer(id, core.Vec3{})
		p.State = protocol.WireStateToCore(row)
	}
	for _, id := range s.world.IDs() {
		if !seen[id] {
			s.world.RemovePlayer(id)
		}
	}
}

// renderTick 远端实体的渲染时间 = 估计服务器 tick - 插值延迟
func (s *Session) renderTick(now time.Time) float64 {
	cl := s.cl
	if s.mode == ModeListenServer {
		return float64(s.tick) - cl.autoDelay.Ticks()
	}
	return cl.clock.Estimate(now) - cl.autoDelay.Ticks()
}
