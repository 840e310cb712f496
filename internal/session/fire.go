package session

import (
	"math"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/protocol"
)

// Fire 客户端开火。声称的 tick 是玩家此刻看到的远端渲染 tick，
// 服务器据此回滚其他实体做判定
func (s *Session) Fire(origin, dir core.Vec3, weapon uint8) (uint32, error) {
	if s.cl == nil {
		return 0, ErrNotRunning
	}
	cl := s.cl
	if !cl.welcomed {
		return 0, ErrNotWelcomed
	}
	cl.fireID++
	claimed := math.Max(0, math.Floor(s.renderTick(s.now)))
	s.sendToServer(&protocol.Fire{
		FireID:     cl.fireID,
		ClientTick: uint32(claimed),
		Origin:     protocol.CoreVecToWire(origin),
		Direction:  protocol.CoreVecToWire(dir),
		Weapon:     weapon,
	})
	return cl.fireID, nil
}

// handleFire 服务器端：限流后做延迟补偿判定，结果回给射手，表现广播给其他人
func (s *Session) handleFire(c *peerConn, f *protocol.Fire, now time.Time) {
	if !c.welcomed() {
		return
	}
	if !c.host && !c.limits.fire.AllowN(now, 1) {
		c.stats.Throttled++
		return
	}

	res := s.srv.validator.Validate(s.world, lagcomp.Shot{
		Shooter:     c.id,
		ClaimedTick: f.ClientTick,
		Origin:      protocol.WireVecToCore(f.Origin),
		Direction:   protocol.WireVecToCore(f.Direction),
	}, s.tick)
	if s.hooks.FireResolved != nil {
		s.hooks.FireResolved(c.id, res)
	}

	s.sendUnreliable(c, &protocol.FireResult{
		FireID:        f.FireID,
		ServerTick:    s.tick,
		ValidatedTick: res.ValidatedTick,
		Hit:           res.Hit,
		Target:        uint32(res.Target),
		Point:         protocol.CoreVecToWire(res.Point),
	})

	visual := &protocol.FireVisual{
		Shooter:    uint32(c.id),
		ServerTick: s.tick,
		Origin:     protocol.CoreVecToWire(res.Origin),
		Direction:  f.Direction,
		Hit:        res.Hit,
		Target:     uint32(res.Target),
		Point:      protocol.CoreVecToWire(res.Point),
	}
	for _, other := range s.srv.sortedConns() {
		if other != c && other.welcomed() {
			s.sendUnreliable(other, visual)
		}
	}
}
