package session

import (
	"testing"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

func scriptedCommands(n int) []core.Command {
	var edges core.EdgeTracker
	cmds := make([]core.Command, 0, n)
	for i := 1; i <= n; i++ {
		held := core.Buttons(0)
		if i%15 < 3 {
			held = core.ButtonJump
		}
		cmds = append(cmds, core.Sanitize(core.Command{
			Seq:     uint32(i),
			Tick:    uint32(100 + i),
			Epoch:   1,
			DT:      core.DefaultFixedDelta,
			MoveX:   0.7,
			MoveY:   0.9,
			Yaw:     float32(i) * 0.05,
			Buttons: edges.Apply(held),
		}))
	}
	return cmds
}

func never(uint32) bool { return false }

func TestReplayDeterministic(t *testing.T) {
	m := core.KinematicMover{Bounds: 50}
	base := core.EntityState{Position: core.Vec3{X: 8, Z: -8}, Grounded: true}
	cmds := scriptedCommands(90)

	full := replay(m, base, cmds, never)
	if full != replay(m, base, cmds, never) {
		t.Fatal("replay not repeatable")
	}

	// 从中间某个已确认状态（经过线上编码）重放剩余部分，结果必须完全一致
	for _, split := range []int{1, 30, 89} {
		mid := replay(m, base, cmds[:split], never)
		wire := protocol.WireStateToCore(protocol.CorePlayerToWire(&core.Player{ID: 2, State: mid}, 0))
		if got := replay(m, wire, cmds[split:], never); got != full {
			t.Errorf("split %d: %+v != %+v", split, got, full)
		}
	}
}

func TestReconcileCorrection(t *testing.T) {
	cfg := DefaultConfig().normalize()
	cl := newClientState(cfg)
	cl.welcome(2, 100, 2, 3, 60, 20, newFakeClock().now())

	cmds := scriptedCommands(10)
	for _, c := range cmds {
		cl.ring.Push(c)
	}
	base := core.EntityState{Position: core.Vec3{X: 1}, Grounded: true}
	row := protocol.CorePlayerToWire(&core.Player{ID: 2, State: base}, 105)
	row.LastProcessedSeq = 4

	// 第一次只建立预测，不算修正
	cl.reconcile(row, cfg)
	if !cl.predictedReady || cl.stats.Corrections != 0 || cl.ring.Len() != 6 {
		t.Fatalf("ready=%v corrections=%d pending=%d", cl.predictedReady, cl.stats.Corrections, cl.ring.Len())
	}
	want := replay(cfg.Mover, base, cmds[4:], never)
	if cl.predicted != want {
		t.Fatalf("predicted %+v, want %+v", cl.predicted, want)
	}

	// 同样的权威状态再来一次：没有修正
	cl.reconcile(row, cfg)
	if cl.stats.Corrections != 0 || !cl.offset.IsZero() {
		t.Errorf("identical state produced a correction: %+v", cl.offset)
	}

	// 小偏差转成视觉修正量，渲染位置不跳
	before := cl.predicted.Position
	row.Position.X += 0.5
	cl.reconcile(row, cfg)
	if cl.stats.Corrections != 1 {
		t.Fatalf("corrections = %d", cl.stats.Corrections)
	}
	if got := cl.predicted.Position.Add(cl.offset); got.Sub(before).Len() > 1e-6 {
		t.Errorf("render position jumped from %+v to %+v", before, got)
	}

	// 修正量随帧衰减到零
	for i := 0; i < 120; i++ {
		cl.decayCorrection(cfg.CorrectionTime.Seconds(), 1.0/60)
	}
	if !cl.offset.IsZero() {
		t.Errorf("offset did not decay: %+v", cl.offset)
	}

	// 大偏差直接跳过去
	row.Position.X += 10
	cl.reconcile(row, cfg)
	if cl.stats.HardSnaps != 1 || !cl.offset.IsZero() {
		t.Errorf("hard snaps=%d offset=%+v", cl.stats.HardSnaps, cl.offset)
	}
}

func TestClientInputTicksMonotonic(t *testing.T) {
	cl := newClientState(DefaultConfig().normalize())
	cl.welcome(2, 500, 2, 3, 60, 20, newFakeClock().now())

	// 估计 tick 回退时指令 tick 仍然递增
	bases := []uint32{500, 501, 499, 499, 510, 505}
	var last uint32
	for _, b := range bases {
		cmd := cl.buildCommand(b, core.DefaultFixedDelta)
		if cmd.Tick <= last || cmd.Tick < b+3 {
			t.Errorf("base %d -> tick %d (last %d)", b, cmd.Tick, last)
		}
		last = cmd.Tick
	}
	if cl.seq != uint32(len(bases)) {
		t.Errorf("seq = %d", cl.seq)
	}
}
