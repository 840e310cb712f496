package session

import (
	"math"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/inputbuf"
	"arenanet/pkg/protocol"
)

// connState 服务器上每个连接的状态
type connState uint8

const (
	stateHandshaking connState = iota
	stateAwaitingFirstInput
	stateStreaming
)

func (s connState) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateAwaitingFirstInput:
		return "awaiting_first_input"
	default:
		return "streaming"
	}
}

// counters 诊断计数，随快照下发
type counters struct {
	Dropped          uint32
	UsedBuffered     uint32
	UsedHoldLast     uint32
	Rejected         uint32
	Late             uint32
	Malformed        uint32
	Throttled        uint32
	MissingStreak    uint32
	MaxMissingStreak uint32
}

// peerConn 服务器上的一个连接。transportID 是传输层分配的编号，
// id 是实体编号（凭令牌重连时沿用旧的）
type peerConn struct {
	transportID core.PeerID
	id          core.PeerID
	host        bool
	name        string
	state       connState
	epoch       uint16

	ring          *inputbuf.ServerRing
	lastProcessed uint32
	lastGood      core.Command
	hasGood       bool
	lastInputTick uint32
	joinedTick    uint32

	// rebuffering 缓冲见底或延迟调大后，暂停消费直到缓冲重新攒够 inputDelay 条
	rebuffering bool

	delay    delayController
	rtt      RTTEstimator
	limits   limiters
	pingID   uint32
	lastPong uint32
	nextPing time.Time

	stats counters
}

func newPeerConn(transportID core.PeerID, cfg Config) *peerConn {
	return &peerConn{
		transportID: transportID,
		state:       stateHandshaking,
		ring:        inputbuf.NewServerRing(),
		limits:      newLimiters(cfg),
	}
}

func (c *peerConn) welcomed() bool { return c.state != stateHandshaking }

// inputDelay 服务器按最近推送给客户端的延迟开窗
func (c *peerConn) inputDelay() int { return c.delay.Current() }

// seqLimit 到 tick 为止诚实客户端可能用到的最大序号：每个客户端 tick 一条，再留 MaxSeqLead 余量
func (c *peerConn) seqLimit(tick uint32) uint32 {
	return tick - c.joinedTick + MaxSeqLead
}

// widen 推送了更大的延迟：先攒够新的窗口再继续消费
func (c *peerConn) widen() {
	if c.state == stateStreaming {
		c.rebuffering = true
	}
}

// changeEpoch 新 epoch 作废所有未消费的指令，重新等待首个输入
func (c *peerConn) changeEpoch(epoch uint16) {
	c.epoch = epoch
	c.ring.ResetKeepWatermark()
	c.state = stateAwaitingFirstInput
}

// beginStreaming 首个输入到达：从 latest - delay 开始消费，留出缓冲窗口
func (c *peerConn) beginStreaming(latest uint32) {
	start := uint32(1)
	if d := uint32(c.inputDelay()); latest > d {
		start = latest - d
	}
	if start <= c.lastProcessed {
		start = c.lastProcessed + 1
	}
	c.lastProcessed = start - 1
	c.ring.SetConsumed(start - 1)
	c.state = stateStreaming
	c.rebuffering = false
}

// nextCommand 取出本 tick 要模拟的指令，每个 tick 恰好前进一步。
// 缓冲见底时沿用上一条指令但不推进 lastProcessed，还在路上的序号不会被烧掉
func (c *peerConn) nextCommand(dt float32, m Metrics) core.Command {
	if c.state != stateStreaming {
		return c.holdLast(dt, m)
	}

	expected := c.lastProcessed + 1
	delay := uint32(c.inputDelay())
	// 缓冲积压太多时跳过最旧的指令追上来
	if latest, ok := c.ring.Latest(); ok && latest > expected {
		if latest-expected > delay+MaxBufferSlack {
			target := latest - delay
			skipped := target - expected
			c.stats.Dropped += skipped
			m.Input(InputDropped, int(skipped))
			c.ring.DiscardThrough(target - 1)
			expected = target
			c.lastProcessed = target - 1
			c.rebuffering = false
		}
	}

	if c.rebuffering {
		if c.ring.Len() < int(max(delay, 1)) {
			return c.holdLast(dt, m)
		}
		c.rebuffering = false
	}
	if !c.ring.Has(expected) && c.ring.Len() == 0 {
		// 什么都没到：停在原地重新攒窗口
		c.rebuffering = true
		return c.holdLast(dt, m)
	}

	// 更新的指令已到而 expected 缺失，视为丢失
	cmd, ok := c.ring.Take(expected)
	c.lastProcessed = expected
	if !ok {
		return c.holdLast(dt, m)
	}
	if !core.Validate(cmd) || cmd.Epoch != c.epoch {
		c.stats.Rejected++
		m.Input(InputRejected, 1)
		return c.substitute(dt)
	}

	cmd = core.Sanitize(cmd)
	c.lastGood, c.hasGood = cmd, true
	c.stats.UsedBuffered++
	c.stats.MissingStreak = 0
	m.Input(InputBuffered, 1)
	return cmd
}

// holdLast 缺输入：沿用上一条有效指令，移动清零并去掉跳跃按下位
func (c *peerConn) holdLast(dt float32, m Metrics) core.Command {
	c.stats.UsedHoldLast++
	c.stats.MissingStreak++
	if c.stats.MissingStreak > c.stats.MaxMissingStreak {
		c.stats.MaxMissingStreak = c.stats.MissingStreak
	}
	m.Input(InputHoldLast, 1)
	return c.fallback(dt).Neutral()
}

// substitute 非法指令：换成上一条有效指令，只去掉按下沿
func (c *peerConn) substitute(dt float32) core.Command {
	cmd := c.fallback(dt)
	cmd.Buttons &^= core.ButtonJumpPressed | core.ButtonFirePressed
	return cmd
}

func (c *peerConn) fallback(dt float32) core.Command {
	if c.hasGood {
		return c.lastGood
	}
	return core.Command{Epoch: c.epoch, DT: dt}
}

// fillDiagnostics 把诊断字段写进快照行
func (c *peerConn) fillDiagnostics(row *protocol.PlayerState) {
	row.DelayTicks = uint8(c.inputDelay())
	row.MissingStreak = clampU16(c.stats.MissingStreak)
	row.MaxMissingStreak = clampU16(c.stats.MaxMissingStreak)
	row.RTTMs = clampU16(uint32(math.Round(c.rtt.RTT())))
	row.JitterMs = clampU16(uint32(math.Round(c.rtt.Jitter())))
	row.LastProcessedSeq = c.lastProcessed
	row.Dropped = c.stats.Dropped
	row.UsedBuffered = c.stats.UsedBuffered
	row.UsedHoldLast = c.stats.UsedHoldLast
	row.Rejected = c.stats.Rejected
	row.Malformed = c.stats.Malformed
}

func clampU16(v uint32) uint16 {
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// PeerStats 调试接口和指标用的连接快照
type PeerStats struct {
	Peer             core.PeerID `json:"peer"`
	Transport        core.PeerID `json:"transport"`
	Name             string      `json:"name"`
	Host             bool        `json:"host"`
	State            string      `json:"state"`
	Epoch            uint16      `json:"epoch"`
	DelayTicks       int         `json:"delay_ticks"`
	RTTMs            float64     `json:"rtt_ms"`
	JitterMs         float64     `json:"jitter_ms"`
	LastProcessedSeq uint32      `json:"last_processed_seq"`
	Buffered         int         `json:"buffered"`
	Dropped          uint32      `json:"dropped"`
	UsedBuffered     uint32      `json:"used_buffered"`
	UsedHoldLast     uint32      `json:"used_hold_last"`
	Rejected         uint32      `json:"rejected"`
	Late             uint32      `json:"late"`
	Malformed        uint32      `json:"malformed"`
	Throttled        uint32      `json:"throttled"`
	MissingStreak    uint32      `json:"missing_streak"`
	MaxMissingStreak uint32      `json:"max_missing_streak"`
}

func (c *peerConn) snapshot() PeerStats {
	return PeerStats{
		Peer:             c.id,
		Transport:        c.transportID,
		Name:             c.name,
		Host:             c.host,
		State:            c.state.String(),
		Epoch:            c.epoch,
		DelayTicks:       c.inputDelay(),
		RTTMs:            c.rtt.RTT(),
		JitterMs:         c.rtt.Jitter(),
		LastProcessedSeq: c.lastProcessed,
		Buffered:         c.ring.Len(),
		Dropped:          c.stats.Dropped,
		UsedBuffered:     c.stats.UsedBuffered,
		UsedHoldLast:     c.stats.UsedHoldLast,
		Rejected:         c.stats.Rejected,
		Late:             c.stats.Late,
		Malformed:        c.stats.Malformed,
		Throttled:        c.stats.Throttled,
		MissingStreak:    c.stats.MissingStreak,
		MaxMissingStreak: c.stats.MaxMissingStreak,
	}
}
