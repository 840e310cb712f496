package session

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/interp"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/netsim"
	"arenanet/pkg/protocol"
	"arenanet/pkg/transport"
)

var quiet = log.New(io.Discard, "", 0)

const step = time.Second / 60

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartTick = 1000
	cfg.Logger = quiet
	cfg.TokenSecret = []byte("test-secret")
	return cfg
}

// harness 一个专用服务器加若干客户端，全部由同一个假时钟驱动
type harness struct {
	t       *testing.T
	clk     *fakeClock
	hub     *transport.Hub
	server  *Session
	clients []*Session
}

func newHarness(t *testing.T, hooks Hooks) *harness {
	t.Helper()
	return newHarnessOn(t, nil, hooks)
}

// newHarnessOn wrap 不为 nil 时包装服务器端传输
func newHarnessOn(t *testing.T, wrap func(transport.Transport) transport.Transport, hooks Hooks) *harness {
	t.Helper()
	h := &harness{t: t, clk: newFakeClock(), hub: transport.NewHub()}
	var tr transport.Transport = h.hub
	if wrap != nil {
		tr = wrap(h.hub)
	}
	h.server = New(testConfig(), hooks)
	if err := h.server.StartDedicatedServer(tr); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) addClient(cfg Config, hooks Hooks, wrap func(transport.Transport) transport.Transport) *Session {
	h.t.Helper()
	var tr transport.Transport = h.hub.Connect()
	if wrap != nil {
		tr = wrap(tr)
	}
	c := New(cfg, hooks)
	if err := c.StartClient(tr); err != nil {
		h.t.Fatal(err)
	}
	h.clients = append(h.clients, c)
	return c
}

func (h *harness) run(n int) {
	for i := 0; i < n; i++ {
		now := h.clk.now()
		h.server.PhysicsTick(now)
		for _, c := range h.clients {
			c.PhysicsTick(now)
			c.FrameTick(now, step.Seconds())
		}
		h.clk.advance(step)
	}
}

func (h *harness) runUntil(max int, cond func() bool) {
	h.t.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return
		}
		h.run(1)
	}
	if !cond() {
		h.t.Fatalf("condition not met after %d ticks", max)
	}
}

func peerStats(t *testing.T, s *Session, peer core.PeerID) PeerStats {
	t.Helper()
	for _, p := range s.Peers() {
		if p.Peer == peer {
			return p
		}
	}
	t.Fatalf("peer %d not found in %+v", peer, s.Peers())
	return PeerStats{}
}

// spyTransport 记录服务器发出的快照 tick
type spyTransport struct {
	transport.Transport
	snapshots []uint32
}

func (s *spyTransport) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	if p, err := protocol.Decode(data); err == nil {
		if snap, ok := p.(*protocol.Snapshot); ok {
			s.snapshots = append(s.snapshots, snap.ServerTick)
		}
	}
	return s.Transport.Send(peer, ch, rel, data)
}

func TestSnapshotCadence(t *testing.T) {
	spy := &spyTransport{}
	h := newHarnessOn(t, func(tr transport.Transport) transport.Transport {
		spy.Transport = tr
		return spy
	}, Hooks{})
	h.addClient(testConfig(), Hooks{}, nil)
	h.run(120)

	if len(spy.snapshots) < 35 {
		t.Fatalf("only %d snapshots in 120 ticks", len(spy.snapshots))
	}
	for i, tick := range spy.snapshots {
		if tick%3 != 0 {
			t.Errorf("snapshot at tick %d not on the 20Hz grid", tick)
		}
		if i > 0 && tick-spy.snapshots[i-1] != 3 {
			t.Errorf("snapshot gap %d -> %d", spy.snapshots[i-1], tick)
		}
	}
	if got := h.server.ServerStats().SnapshotsSent; got != len(spy.snapshots) {
		t.Errorf("SnapshotsSent = %d, spy saw %d", got, len(spy.snapshots))
	}
}

func TestWarmupInputTicksAhead(t *testing.T) {
	var h *harness
	var ticks, serverAt []uint32
	hooks := Hooks{ClientOnTick: func(cmd core.Command) {
		ticks = append(ticks, cmd.Tick)
		serverAt = append(serverAt, h.server.Tick())
	}}
	h = newHarness(t, Hooks{})
	h.addClient(testConfig(), hooks, nil)
	h.run(90)

	if len(ticks) == 0 {
		t.Fatal("client never produced input")
	}
	if ticks[0] < 1001 {
		t.Errorf("first input tick %d predates the session start", ticks[0])
	}
	for i := range ticks {
		if ticks[i] <= serverAt[i] {
			t.Fatalf("input %d has tick %d, server already at %d", i, ticks[i], serverAt[i])
		}
		if i > 0 && ticks[i] <= ticks[i-1] {
			t.Fatalf("input ticks not increasing: %d then %d", ticks[i-1], ticks[i])
		}
	}
	if h.server.ServerStats().ResyncHints != 0 {
		t.Errorf("unexpected resync hints: %d", h.server.ServerStats().ResyncHints)
	}
}

func TestFullInputLossFallsBackToHoldLast(t *testing.T) {
	var joinedAt uint32
	var h *harness
	h = newHarness(t, Hooks{PeerJoined: func(core.PeerID, bool) { joinedAt = h.server.Tick() }})
	c := h.addClient(testConfig(), Hooks{}, func(tr transport.Transport) transport.Transport {
		return netsim.New(tr, netsim.Config{LossPercent: 100, Seed: 7}, netsim.WithClock(h.clk.now))
	})
	c.SetInput(core.RawInput{MoveY: 1})
	h.run(120)

	if !c.Welcomed() {
		t.Fatal("handshake should survive: control traffic is never dropped")
	}
	ps := peerStats(t, h.server, c.LocalPeer())
	if want := h.server.Tick() - joinedAt; ps.UsedHoldLast != want {
		t.Errorf("UsedHoldLast = %d, want %d", ps.UsedHoldLast, want)
	}
	if ps.UsedBuffered != 0 || ps.LastProcessedSeq != 0 {
		t.Errorf("server consumed input it never received: %+v", ps)
	}
	if ps.State != stateAwaitingFirstInput.String() {
		t.Errorf("state = %s", ps.State)
	}
	if c.PendingInputs() == 0 {
		t.Error("client should still hold unacknowledged input")
	}
}

func TestPredictionMatchesServerWithoutLoss(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	h.runUntil(10, c.Welcomed)

	for i := 0; i < 240; i++ {
		raw := core.RawInput{MoveY: 1, MoveX: 0.4, Yaw: 0.3}
		if i%40 < 5 {
			raw.Held = core.ButtonJump
		}
		if i > 120 {
			raw.Held |= core.ButtonSprint
			raw.Yaw = -1.2
		}
		c.SetInput(raw)
		h.run(1)
	}

	st := c.ClientStats()
	if st.SnapshotsReceived < 70 {
		t.Fatalf("snapshots received = %d", st.SnapshotsReceived)
	}
	if st.Corrections != 0 || st.HardSnaps != 0 {
		t.Errorf("corrections=%d hard snaps=%d, want none on a clean link", st.Corrections, st.HardSnaps)
	}
	if !c.Correction().IsZero() {
		t.Errorf("residual correction %+v", c.Correction())
	}
	ps := peerStats(t, h.server, c.LocalPeer())
	if ps.Dropped != 0 || ps.Rejected != 0 {
		t.Errorf("server stats = %+v", ps)
	}
	if ps.UsedBuffered == 0 {
		t.Error("server never consumed buffered input")
	}
	if p, ok := c.Predicted(); !ok || p.Position.Len() == 0 {
		t.Errorf("predicted = %+v ok=%v", p, ok)
	}
}

func TestJitteryLossyLinkKeepsBuffering(t *testing.T) {
	link := func(seed int64, now func() time.Time) func(transport.Transport) transport.Transport {
		return func(tr transport.Transport) transport.Transport {
			cfg := netsim.Config{Latency: 40 * time.Millisecond, Jitter: 15 * time.Millisecond, LossPercent: 10, Seed: seed}
			return netsim.New(tr, cfg, netsim.WithClock(now))
		}
	}
	var h *harness
	now := func() time.Time { return h.clk.now() }
	h = newHarnessOn(t, link(3, now), Hooks{})
	c := h.addClient(testConfig(), Hooks{}, link(9, now))
	h.runUntil(60, c.Welcomed)
	peer := c.LocalPeer()

	// 先让延迟和时钟同步稳定下来
	c.SetInput(core.RawInput{MoveY: 1})
	h.run(120)

	before := peerStats(t, h.server, peer)
	const moving = 300
	for i := 0; i < moving; i++ {
		c.SetInput(core.RawInput{MoveY: 1, MoveX: 0.3, Yaw: float32(i%120) * 0.05})
		h.run(1)
	}
	after := peerStats(t, h.server, peer)
	if hold := after.UsedHoldLast - before.UsedHoldLast; hold > moving/10 {
		t.Errorf("hold-last on %d of %d ticks (stats %+v)", hold, moving, after)
	}
	if used := after.UsedBuffered - before.UsedBuffered; used < moving*8/10 {
		t.Errorf("buffered = %d of %d ticks", used, moving)
	}
	if after.Rejected != 0 {
		t.Errorf("honest input rejected: %+v", after)
	}

	// 停手后预测必须收敛到服务器位置
	c.SetInput(core.RawInput{})
	h.run(240)
	p, ok := c.Predicted()
	if !ok {
		t.Fatal("no prediction")
	}
	want := h.server.World().Player(peer).State.Position
	if d := p.Position.Sub(want).Len(); d > 1e-3 {
		t.Errorf("predicted %+v, server %+v (off by %.4f)", p.Position, want, d)
	}
	if c.Correction().Len() > 1e-3 {
		t.Errorf("residual correction %+v", c.Correction())
	}
}

func TestForgedSequenceRejected(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	h.runUntil(10, c.Welcomed)
	c.SetInput(core.RawInput{MoveY: 1})
	h.run(20)

	peer := c.LocalPeer()
	conn := h.server.srv.byEntity[peer]
	forged := core.Command{Seq: 4_000_000_000, Tick: h.server.Tick() + 2, Epoch: c.Epoch(), DT: core.DefaultFixedDelta, MoveY: 1}
	h.server.handleBundle(conn, protocol.CoreCommandsToBundle([]core.Command{forged}), h.clk.now())
	before := peerStats(t, h.server, peer)
	if before.Rejected != 1 {
		t.Fatalf("forged command not rejected: %+v", before)
	}

	// 冗余重发的已消费指令不算迟到
	lp := before.LastProcessedSeq
	h.server.handleBundle(conn, protocol.CoreCommandsToBundle([]core.Command{{Seq: lp, Tick: h.server.Tick(), Epoch: c.Epoch(), DT: core.DefaultFixedDelta}}), h.clk.now())
	if ps := peerStats(t, h.server, peer); ps.Late != 0 {
		t.Errorf("duplicate counted as late: %+v", ps)
	}

	h.run(60)
	after := peerStats(t, h.server, peer)
	if after.LastProcessedSeq > 1000 || after.Dropped != 0 {
		t.Errorf("watermark moved by forged command: %+v", after)
	}
	if used := after.UsedBuffered - before.UsedBuffered; used < 55 {
		t.Errorf("peer stalled: only %d commands consumed in 60 ticks", used)
	}
}

func TestFreezeBoundaryReconciles(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	h.runUntil(10, c.Welcomed)
	peer := c.LocalPeer()

	c.SetInput(core.RawInput{MoveY: 1, Yaw: 0.4})
	h.run(30)
	if err := h.server.Freeze(peer, h.server.Tick()+15); err != nil {
		t.Fatal(err)
	}
	h.run(40)

	// 冻结边界两侧的估计偏差由后续快照收敛
	c.SetInput(core.RawInput{})
	h.run(120)
	p, ok := c.Predicted()
	if !ok {
		t.Fatal("no prediction")
	}
	want := h.server.World().Player(peer).State.Position
	if d := p.Position.Sub(want).Len(); d > 1e-3 {
		t.Errorf("predicted %+v, server %+v", p.Position, want)
	}
	if c.Correction().Len() > 1e-3 {
		t.Errorf("residual correction %+v", c.Correction())
	}
}

func TestVersionMismatchRejected(t *testing.T) {
	h := newHarness(t, Hooks{})
	raw := h.hub.Connect()
	raw.Poll()
	h.run(1)

	hello, err := protocol.Marshal(protocol.NewControl(&protocol.Hello{Version: protocol.Version + 1, Epoch: 1, Name: "old"}))
	if err != nil {
		t.Fatal(err)
	}
	raw.Send(core.ServerPeerID, protocol.ChannelControl, protocol.Reliable, hello)
	h.run(1)

	var reject *protocol.Reject
	for _, m := range raw.Poll() {
		if m.Kind != transport.KindData {
			continue
		}
		p, err := protocol.Decode(m.Data)
		if err != nil {
			t.Fatal(err)
		}
		if ctrl, ok := p.(*protocol.Control); ok {
			if r, ok := ctrl.Body.(*protocol.Reject); ok {
				reject = r
			}
		}
	}
	if reject == nil || reject.Reason != protocol.ReasonVersion || reject.ServerVersion != protocol.Version {
		t.Fatalf("reject = %+v", reject)
	}
	if h.server.ServerStats().Rejected != 1 || len(h.server.Peers()) != 0 {
		t.Errorf("server kept rejected peer: %+v", h.server.Peers())
	}
}

func TestClientTearsDownOnVersionReject(t *testing.T) {
	hub := transport.NewHub()
	lc := hub.Connect()
	var gotErr error
	c := New(testConfig(), Hooks{Disconnected: func(err error) { gotErr = err }})
	if err := c.StartClient(lc); err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1700000000, 0)
	c.PhysicsTick(now)

	msgs := hub.Poll()
	if len(msgs) < 2 || msgs[1].Kind != transport.KindData {
		t.Fatalf("expected connect + hello, got %+v", msgs)
	}
	data, _ := protocol.Marshal(protocol.NewRejectPacket(protocol.ReasonVersion))
	hub.Send(lc.ID(), protocol.ChannelControl, protocol.Reliable, data)
	c.PhysicsTick(now.Add(step))

	if !errors.Is(gotErr, ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch", gotErr)
	}
	if c.Mode() != ModeInactive {
		t.Errorf("mode = %s", c.Mode())
	}
}

func TestEpochBump(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	c.SetInput(core.RawInput{MoveY: 1})
	h.run(30)

	if err := c.BumpEpoch(); err != nil {
		t.Fatal(err)
	}
	if c.Epoch() != 2 || c.PendingInputs() != 0 {
		t.Fatalf("epoch=%d pending=%d", c.Epoch(), c.PendingInputs())
	}
	h.run(30)

	ps := peerStats(t, h.server, c.LocalPeer())
	if ps.Epoch != 2 {
		t.Errorf("server epoch = %d", ps.Epoch)
	}
	if ps.State != stateStreaming.String() {
		t.Errorf("server state = %s", ps.State)
	}
	if ps.Rejected != 0 {
		t.Errorf("rejected = %d", ps.Rejected)
	}
}

func TestLagCompensatedHit(t *testing.T) {
	var resolved []core.PeerID
	h := newHarness(t, Hooks{FireResolved: func(shooter core.PeerID, _ lagcomp.Result) {
		resolved = append(resolved, shooter)
	}})
	var confirmed *protocol.FireResult
	var seen *protocol.FireVisual
	shooter := h.addClient(testConfig(), Hooks{ShotConfirmed: func(r *protocol.FireResult) { confirmed = r }}, nil)
	target := h.addClient(testConfig(), Hooks{ShotSeen: func(v *protocol.FireVisual) { seen = v }}, nil)
	h.runUntil(60, func() bool {
		return len(shooter.RemotePeers()) == 1 && len(target.RemotePeers()) == 1
	})
	h.run(30)

	if shooter.LocalPeer() != 2 || target.LocalPeer() != 3 {
		t.Fatalf("peers = %d, %d", shooter.LocalPeer(), target.LocalPeer())
	}
	// 2 号出生在 (8,0,-8)，3 号在 (-8,0,8)
	origin := core.Vec3{X: 8, Y: core.PlayerEyeHeight, Z: -8}
	aim := core.Vec3{X: -8, Y: 0.9, Z: 8}.Sub(origin)
	id, err := shooter.Fire(origin, aim, 1)
	if err != nil {
		t.Fatal(err)
	}
	h.run(2)

	if len(resolved) != 1 || resolved[0] != 2 {
		t.Fatalf("resolved = %v", resolved)
	}
	if confirmed == nil || confirmed.FireID != id || !confirmed.Hit || confirmed.Target != 3 {
		t.Fatalf("confirmed = %+v", confirmed)
	}
	if seen == nil || seen.Shooter != 2 || !seen.Hit || seen.Target != 3 {
		t.Fatalf("seen = %+v", seen)
	}
}

func TestFireRequiresHandshake(t *testing.T) {
	c := New(testConfig(), Hooks{})
	if _, err := c.Fire(core.Vec3{}, core.Vec3{X: 1}, 0); !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v", err)
	}
	hub := transport.NewHub()
	if err := c.StartClient(hub.Connect()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fire(core.Vec3{}, core.Vec3{X: 1}, 0); !errors.Is(err, ErrNotWelcomed) {
		t.Errorf("err = %v", err)
	}
}

func TestListenServer(t *testing.T) {
	clk := newFakeClock()
	hub := transport.NewHub()
	host := New(testConfig(), Hooks{})
	if err := host.StartListenServer(hub); err != nil {
		t.Fatal(err)
	}
	if !host.Welcomed() || host.LocalPeer() != core.HostPeerID {
		t.Fatalf("host welcomed=%v peer=%d", host.Welcomed(), host.LocalPeer())
	}
	remote := New(testConfig(), Hooks{})
	if err := remote.StartClient(hub.Connect()); err != nil {
		t.Fatal(err)
	}

	host.SetInput(core.RawInput{MoveY: 1, Yaw: 0.5})
	for i := 0; i < 90; i++ {
		now := clk.now()
		host.PhysicsTick(now)
		host.FrameTick(now, step.Seconds())
		remote.PhysicsTick(now)
		remote.FrameTick(now, step.Seconds())
		clk.advance(step)
	}

	pred, ok := host.Predicted()
	if !ok {
		t.Fatal("host has no prediction")
	}
	if auth := host.World().Player(core.HostPeerID).State; pred != auth {
		t.Errorf("host prediction %+v != authority %+v", pred, auth)
	}
	if st := host.ClientStats(); st.Corrections != 0 || st.HardSnaps != 0 {
		t.Errorf("host corrections = %+v", st)
	}
	if ps := peerStats(t, host, core.HostPeerID); ps.UsedBuffered == 0 || ps.DelayTicks != 0 {
		t.Errorf("host peer stats = %+v", ps)
	}
	if got := host.RemotePeers(); len(got) != 1 || got[0] != remote.LocalPeer() {
		t.Errorf("host remotes = %v", got)
	}
	if got := remote.RemotePeers(); len(got) != 1 || got[0] != core.HostPeerID {
		t.Errorf("remote remotes = %v", got)
	}
	if _, mode, ok := remote.RemoteState(core.HostPeerID); !ok || mode == interp.ModeEmpty {
		t.Errorf("remote view of host: mode=%v ok=%v", mode, ok)
	}
}

func TestResumeWithToken(t *testing.T) {
	var h *harness
	var resumed []bool
	var restored core.EntityState
	h = newHarness(t, Hooks{PeerJoined: func(peer core.PeerID, r bool) {
		resumed = append(resumed, r)
		if r {
			restored = h.server.World().Player(peer).State
		}
	}})
	first := h.addClient(testConfig(), Hooks{}, nil)
	first.SetInput(core.RawInput{MoveY: 1})
	h.run(60)

	token := first.Token()
	if token == "" {
		t.Fatal("no token issued")
	}
	peer := first.LocalPeer()
	first.Stop()
	h.clients = nil
	h.run(2)

	pk, ok := h.server.srv.parked[peer]
	if !ok {
		t.Fatal("entity was not parked")
	}
	if h.server.World().Player(peer) != nil {
		t.Fatal("departed entity still simulated")
	}

	cfg := testConfig()
	cfg.ResumeToken = token
	var welcomedResumed bool
	second := h.addClient(cfg, Hooks{Welcomed: func(_ core.PeerID, r bool) { welcomedResumed = r }}, nil)
	h.runUntil(10, second.Welcomed)

	if second.LocalPeer() != peer || !welcomedResumed {
		t.Fatalf("resumed as peer %d (resumed=%v), want %d", second.LocalPeer(), welcomedResumed, peer)
	}
	if restored != pk.state {
		t.Errorf("restored %+v, want parked %+v", restored, pk.state)
	}
	if h.server.ServerStats().Resumed != 1 || len(resumed) != 2 || !resumed[1] {
		t.Errorf("resumed hooks = %v stats = %+v", resumed, h.server.ServerStats())
	}
	if _, ok := h.server.srv.parked[peer]; ok {
		t.Error("parked entry not consumed")
	}
}

func TestBadTokenRejected(t *testing.T) {
	h := newHarness(t, Hooks{})
	cfg := testConfig()
	cfg.ResumeToken = "garbage"
	var gotErr error
	c := h.addClient(cfg, Hooks{Disconnected: func(err error) { gotErr = err }}, nil)
	h.run(3)
	if !errors.Is(gotErr, ErrRejected) || c.Mode() != ModeInactive {
		t.Errorf("err=%v mode=%s", gotErr, c.Mode())
	}
}

func TestKickDisconnectsClient(t *testing.T) {
	h := newHarness(t, Hooks{})
	var gotErr error
	c := h.addClient(testConfig(), Hooks{Disconnected: func(err error) { gotErr = err }}, nil)
	h.runUntil(10, c.Welcomed)

	if err := h.server.Kick(c.LocalPeer()); err != nil {
		t.Fatal(err)
	}
	if err := h.server.Kick(99); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("kick unknown = %v", err)
	}
	h.run(1)

	if !errors.Is(gotErr, ErrDisconnected) || c.Mode() != ModeInactive {
		t.Errorf("err=%v mode=%s", gotErr, c.Mode())
	}
	if len(h.server.Peers()) != 0 {
		t.Errorf("peers = %+v", h.server.Peers())
	}
}

func TestFreezeHoldsPlayer(t *testing.T) {
	h := newHarness(t, Hooks{})
	var bodies []protocol.ControlBody
	c := h.addClient(testConfig(), Hooks{ControlReceived: func(b protocol.ControlBody) { bodies = append(bodies, b) }}, nil)
	h.run(30)

	peer := c.LocalPeer()
	if err := h.server.Freeze(peer, h.server.Tick()+20); err != nil {
		t.Fatal(err)
	}
	if err := h.server.Freeze(99, 1); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("freeze unknown = %v", err)
	}
	pos := h.server.World().Player(peer).State.Position
	c.SetInput(core.RawInput{MoveY: 1})
	h.run(10)
	if got := h.server.World().Player(peer).State.Position; got != pos {
		t.Errorf("frozen player moved from %+v to %+v", pos, got)
	}
	if len(bodies) != 1 {
		t.Fatalf("control bodies = %+v", bodies)
	}
	if f, ok := bodies[0].(*protocol.FreezeState); !ok || !f.Frozen || core.PeerID(f.Peer) != peer {
		t.Errorf("freeze = %+v", bodies[0])
	}

	h.run(20)
	if got := h.server.World().Player(peer).State.Position; got == pos {
		t.Error("player still frozen after the window")
	}
}

func TestBroadcastRejectsOversizedBody(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	h.runUntil(10, c.Welcomed)

	scores := make([]protocol.ScoreEntry, protocol.MaxScoreEntries+1)
	if err := h.server.BroadcastMatchState(protocol.MatchState{Scores: scores}); !errors.Is(err, protocol.ErrTooMany) {
		t.Errorf("err = %v, want ErrTooMany", err)
	}
	if err := h.server.BroadcastMatchState(protocol.MatchState{Phase: protocol.PhasePlaying}); err != nil {
		t.Errorf("err = %v", err)
	}
	if err := c.BroadcastMatchState(protocol.MatchState{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("client broadcast err = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s := New(testConfig(), Hooks{})
	if err := s.StartClient(nil); !errors.Is(err, ErrNoTransport) {
		t.Errorf("nil transport = %v", err)
	}
	if err := s.StartListenServer(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartListenServer(nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("double start = %v", err)
	}
	s.PhysicsTick(time.Unix(1700000000, 0))
	if s.Tick() != 1001 {
		t.Errorf("tick = %d", s.Tick())
	}

	s.Stop()
	s.Stop()
	if s.Mode() != ModeInactive || s.World() != nil || s.Tick() != 0 {
		t.Errorf("state survived Stop: mode=%s tick=%d", s.Mode(), s.Tick())
	}
	s.PhysicsTick(time.Unix(1700000001, 0))

	if err := s.StartDedicatedServer(transport.NewHub()); err != nil {
		t.Errorf("restart after stop: %v", err)
	}
}

func TestMalformedPacketCounted(t *testing.T) {
	h := newHarness(t, Hooks{})
	c := h.addClient(testConfig(), Hooks{}, nil)
	h.runUntil(10, c.Welcomed)
	h.hub.Send(c.LocalPeer(), protocol.ChannelGameplay, protocol.Unreliable, []byte{0xEE, 1, 2})
	h.run(1)
	if c.ClientStats().Malformed != 1 {
		t.Errorf("client malformed = %d", c.ClientStats().Malformed)
	}
}
