package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"arenanet/internal/session"
	"arenanet/pkg/bot"
	"arenanet/pkg/core"
)

// ErrRoomClosed 房间循环已经退出
var ErrRoomClosed = errors.New("server: room closed")

// Status 给调试接口看的只读快照，每个 tick 结束时发布
type Status struct {
	Mode    string              `json:"mode"`
	Tick    uint32              `json:"tick"`
	Phase   uint8               `json:"phase"`
	Peers   []session.PeerStats `json:"peers"`
	Stats   session.ServerStats `json:"stats"`
	Updated time.Time           `json:"updated"`
}

type action struct {
	fn     func(*session.Session) error
	respCh chan error
}

// Room 独占会话的单协程循环。会话不加锁，外部操作都经 actions 通道送进来
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	sess     *session.Session
	match    *Match
	host     *bot.Controller // 监听服务器模式下的本地玩家
	tickRate int

	actions chan action

	mu     sync.RWMutex
	status Status
}

// NewRoom 会话必须已经启动
func NewRoom(parent context.Context, sess *session.Session, match *Match, host *bot.Controller, logger *log.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = log.Default()
	}

	return &Room{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		sess:     sess,
		match:    match,
		host:     host,
		tickRate: sess.Config().TickRate,
		actions:  make(chan action),
	}
}

// Run 固定步长循环，直到上下文取消
func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(r.tickRate))
	defer ticker.Stop()

	r.logger.Printf("房间循环启动: %d TPS (%s)", r.tickRate, r.sess.Mode())
	last := time.Now()

	for {
		select {
		case <-r.ctx.Done():
			r.sess.Stop()
			r.logger.Println("房间循环停止")
			return

		case a := <-r.actions:
			a.respCh <- a.fn(r.sess)

		case now := <-ticker.C:
			r.tick(now, now.Sub(last).Seconds())
			last = now
		}
	}
}

// Shutdown 停止循环
func (r *Room) Shutdown() {
	r.cancel()
}

// Do 在 tick 协程里执行 fn 并等待结果
func (r *Room) Do(fn func(*session.Session) error) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case r.actions <- action{fn: fn, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case err := <-respCh:
		return err
	}
}

// Kick 踢出玩家
func (r *Room) Kick(peer core.PeerID) error {
	return r.Do(func(s *session.Session) error { return s.Kick(peer) })
}

// Status 最近一次发布的快照
func (r *Room) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Room) tick(now time.Time, dt float64) {
	if r.host != nil {
		r.driveHost()
	}
	r.sess.PhysicsTick(now)
	if r.sess.Mode() == session.ModeListenServer {
		r.sess.FrameTick(now, dt)
	}
	r.publish(now)
}

// driveHost 本地玩家的输入交给机器人
func (r *Room) driveHost() {
	world := r.sess.World()
	self := world.Player(core.HostPeerID)
	if self == nil {
		return
	}
	tick := r.sess.Tick()
	v := bot.View{Tick: tick, Self: self.State, Frozen: self.Frozen(tick)}
	for _, id := range world.IDs() {
		if id == core.HostPeerID {
			continue
		}
		v.Others = append(v.Others, bot.Other{Peer: id, State: world.Player(id).State})
	}

	d := r.host.Decide(v)
	r.sess.SetInput(d.Input)
	if d.Shot != nil {
		if _, err := r.sess.Fire(d.Shot.Origin, d.Shot.Direction, 0); err != nil {
			r.logger.Printf("本地玩家开火失败: %v", err)
		}
	}
}

func (r *Room) publish(now time.Time) {
	st := Status{
		Mode:    r.sess.Mode().String(),
		Tick:    r.sess.Tick(),
		Peers:   r.sess.Peers(),
		Stats:   r.sess.ServerStats(),
		Updated: now,
	}
	if r.match != nil {
		st.Phase = r.match.Phase()
	}

	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}
