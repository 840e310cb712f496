package server

import (
	"log"
	"sort"

	"arenanet/internal/session"
	"arenanet/pkg/core"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/protocol"
)

// 对局模式
const ModeDeathmatch uint8 = 1

// MatchRules 死斗规则参数
type MatchRules struct {
	ScoreLimit        int16
	RoundTicks        uint32
	RespawnDelayTicks uint32
	// IntermissionTicks 一局结束到下一局开始
	IntermissionTicks uint32
	// MinPlayers 人数够了才开局
	MinPlayers int
}

// DefaultMatchRules 60Hz 下：每局 3 分钟，被击中冻结 2 秒
func DefaultMatchRules(tickRate int) MatchRules {
	return MatchRules{
		ScoreLimit:        20,
		RoundTicks:        uint32(180 * tickRate),
		RespawnDelayTicks: uint32(2 * tickRate),
		IntermissionTicks: uint32(5 * tickRate),
		MinPlayers:        2,
	}
}

// Match 通过会话的 hook 与广播原语实现的死斗：命中得一分，
// 被命中的玩家冻结一段时间后回到出生点。所有方法都在 tick 协程里调用
type Match struct {
	sess     *session.Session
	rules    MatchRules
	tickRate int
	logger   *log.Logger

	phase   uint8
	round   uint8
	phaseAt uint32 // 当前阶段结束的 tick

	scores   map[core.PeerID]int16
	respawns map[core.PeerID]uint32
	dirty    bool
}

// NewMatch 创建规则，Bind 之后才生效
func NewMatch(rules MatchRules, tickRate int, logger *log.Logger) *Match {
	if logger == nil {
		logger = log.Default()
	}
	return &Match{
		rules:    rules,
		tickRate: tickRate,
		logger:   logger,
		phase:    protocol.PhaseWaiting,
		scores:   make(map[core.PeerID]int16),
		respawns: make(map[core.PeerID]uint32),
	}
}

// Bind 关联会话。hook 在会话创建前就要给出，所以分两步
func (m *Match) Bind(s *session.Session) { m.sess = s }

// Hooks 返回规则需要的回调
func (m *Match) Hooks() session.Hooks {
	return session.Hooks{
		ServerOnTick: m.onTick,
		PeerJoined:   m.onJoined,
		PeerLeft:     m.onLeft,
		FireResolved: m.onFire,
	}
}

// Phase 当前阶段
func (m *Match) Phase() uint8 { return m.phase }

// Score 某个玩家的分数
func (m *Match) Score(peer core.PeerID) int16 { return m.scores[peer] }

func (m *Match) config() protocol.MatchConfig {
	return protocol.MatchConfig{
		Mode:              ModeDeathmatch,
		MaxPlayers:        uint8(m.sess.Config().MaxPeers),
		ScoreLimit:        uint16(m.rules.ScoreLimit),
		RoundTimeSec:      uint16(m.rules.RoundTicks / uint32(m.tickRate)),
		RespawnDelayTicks: uint16(m.rules.RespawnDelayTicks),
	}
}

func (m *Match) onJoined(peer core.PeerID, resumed bool) {
	if _, ok := m.scores[peer]; !ok {
		m.scores[peer] = 0
	}
	if err := m.sess.BroadcastMatchConfig(m.config()); err != nil {
		m.logger.Printf("广播对局配置失败: %v", err)
	}
	m.dirty = true
}

func (m *Match) onLeft(peer core.PeerID) {
	delete(m.scores, peer)
	delete(m.respawns, peer)
	m.dirty = true
}

func (m *Match) onFire(shooter core.PeerID, res lagcomp.Result) {
	if m.phase != protocol.PhasePlaying || !res.Hit || res.Target == shooter {
		return
	}
	tick := m.sess.Tick()
	target := m.sess.World().Player(res.Target)
	if target == nil || target.Frozen(tick) {
		return
	}
	m.scores[shooter]++
	m.dirty = true

	until := tick + m.rules.RespawnDelayTicks
	if err := m.sess.Freeze(res.Target, until); err != nil {
		m.logger.Printf("冻结 peer %d 失败: %v", res.Target, err)
		return
	}
	m.respawns[res.Target] = until
}

func (m *Match) onTick(tick uint32) {
	m.respawnDue(tick)

	switch m.phase {
	case protocol.PhaseWaiting:
		if len(m.scores) >= m.rules.MinPlayers {
			m.startRound(tick)
		}
	case protocol.PhasePlaying:
		if tick >= m.phaseAt || m.leaderScore() >= m.rules.ScoreLimit {
			m.phase = protocol.PhaseRoundOver
			m.phaseAt = tick + m.rules.IntermissionTicks
			m.dirty = true
			m.logger.Printf("第 %d 局结束", m.round)
		}
	case protocol.PhaseRoundOver:
		if tick >= m.phaseAt {
			if len(m.scores) >= m.rules.MinPlayers {
				m.startRound(tick)
			} else {
				m.phase = protocol.PhaseWaiting
				m.dirty = true
			}
		}
	}

	// 进行中每秒同步一次剩余时间
	if m.dirty || (m.phase == protocol.PhasePlaying && tick%uint32(m.tickRate) == 0) {
		m.broadcastState(tick)
	}
}

func (m *Match) startRound(tick uint32) {
	m.round++
	m.phase = protocol.PhasePlaying
	m.phaseAt = tick + m.rules.RoundTicks
	for peer := range m.scores {
		m.scores[peer] = 0
	}
	m.dirty = true
	m.logger.Printf("第 %d 局开始: %d 名玩家", m.round, len(m.scores))
}

func (m *Match) respawnDue(tick uint32) {
	for _, peer := range sortedPeers(m.respawns) {
		if tick < m.respawns[peer] {
			continue
		}
		delete(m.respawns, peer)
		if err := m.sess.Respawn(peer, core.SpawnPoint(peer)); err != nil {
			continue
		}
		if err := m.sess.Freeze(peer, 0); err != nil {
			m.logger.Printf("解冻 peer %d 失败: %v", peer, err)
		}
	}
}

func (m *Match) leaderScore() int16 {
	var best int16
	for _, s := range m.scores {
		best = max(best, s)
	}
	return best
}

func (m *Match) broadcastState(tick uint32) {
	st := protocol.MatchState{Phase: m.phase, Round: m.round}
	if m.phaseAt > tick {
		st.RemainingTicks = m.phaseAt - tick
	}
	for _, peer := range sortedPeers(m.scores) {
		if len(st.Scores) == protocol.MaxScoreEntries {
			break
		}
		st.Scores = append(st.Scores, protocol.ScoreEntry{Peer: uint32(peer), Score: m.scores[peer]})
	}
	if err := m.sess.BroadcastMatchState(st); err != nil {
		m.logger.Printf("广播对局状态失败: %v", err)
		return
	}
	m.dirty = false
}

func sortedPeers[V any](m map[core.PeerID]V) []core.PeerID {
	ids := make([]core.PeerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
