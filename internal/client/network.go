// Package client 无界面客户端：拨号、握手，然后用固定步长驱动会话，
// 输入由机器人产生。压测和端到端测试都用它
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"arenanet/internal/config"
	"arenanet/internal/session"
	"arenanet/pkg/bot"
	"arenanet/pkg/core"
	"arenanet/pkg/netsim"
	"arenanet/pkg/protocol"
	"arenanet/pkg/transport"
)

// WelcomeTimeout 等待握手完成的时间
const WelcomeTimeout = 10 * time.Second

// ErrWelcomeTimeout 握手超时
var ErrWelcomeTimeout = errors.New("client: 等待握手超时")

// Status 客户端对外的只读快照，每个 tick 发布一次
type Status struct {
	Peer        core.PeerID
	Tick        uint32
	Position    core.Vec3
	InputDelay  int
	Pending     int
	InterpDelay float64
	Remotes     int
	Stats       session.ClientStats
	ShotsFired  int
	ShotsHit    int
	ShotsSeen   int
	Match       protocol.MatchState
}

// NetworkClient 一个连到服务器的玩家
type NetworkClient struct {
	cfg    config.AppConfig
	name   string
	logger *log.Logger

	sess *session.Session
	bot  *bot.Controller
	tr   transport.Transport

	// 网络
	connected bool
	lost      atomic.Bool // 会话被服务器结束
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	welcomeCh chan core.PeerID
	errChan   chan error

	// 只在 tick 协程里写
	shotsFired, shotsHit, shotsSeen int
	match                           protocol.MatchState

	mu     sync.RWMutex
	status Status
}

// NewNetworkClient 创建客户端，seed 决定机器人的行为
func NewNetworkClient(cfg config.AppConfig, name string, seed int64) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &NetworkClient{
		cfg:       cfg,
		name:      name,
		logger:    log.New(log.Writer(), "["+name+"] ", log.LstdFlags),
		bot:       bot.New(seed),
		ctx:       ctx,
		cancel:    cancel,
		welcomeCh: make(chan core.PeerID, 1),
		errChan:   make(chan error, 1),
	}
}

// Connect 连接服务器并等待握手完成
func (nc *NetworkClient) Connect() error {
	nc.logger.Printf("连接到服务器: %s (%s)", nc.cfg.Net.Addr, nc.cfg.Net.Proto)

	tr, err := nc.dial()
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	return nc.ConnectWith(tr)
}

// ConnectWith 使用已有传输，测试里传回环
func (nc *NetworkClient) ConnectWith(tr transport.Transport) error {
	if sim := nc.cfg.Net.Netsim(); sim.Enabled() {
		tr = netsim.New(tr, sim)
	}
	nc.tr = tr

	scfg := nc.cfg.Session()
	scfg.Name = nc.name
	scfg.Logger = nc.logger
	nc.sess = session.New(scfg, session.Hooks{
		Welcomed:        nc.onWelcomed,
		Disconnected:    nc.onDisconnected,
		ControlReceived: nc.onControl,
		ShotConfirmed:   nc.onShotConfirmed,
		ShotSeen:        func(*protocol.FireVisual) { nc.shotsSeen++ },
	})
	if err := nc.sess.StartClient(tr); err != nil {
		tr.Close()
		return err
	}
	nc.connected = true

	// 启动 tick 循环
	nc.wg.Add(1)
	go nc.runLoop()

	// 等待握手
	select {
	case peer := <-nc.welcomeCh:
		nc.logger.Printf("玩家 ID: %d", peer)
		return nil

	case err := <-nc.errChan:
		nc.Close()
		return err

	case <-time.After(WelcomeTimeout):
		nc.Close()
		return ErrWelcomeTimeout
	}
}

// dial 传输的生命周期由 Close 控制，不跟 nc.ctx 走，这样 tick 协程退出时的 Goodbye 还能发出去
func (nc *NetworkClient) dial() (transport.Transport, error) {
	ctx := context.Background()
	switch nc.cfg.Net.Proto {
	case transport.ProtoWS:
		url := nc.cfg.Net.Addr
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			url = "ws://" + url + "/ws"
		}
		return transport.DialWS(ctx, url, nc.logger)
	case "", transport.ProtoTCP, transport.ProtoKCP:
		return transport.DialStream(ctx, nc.cfg.Net.Proto, nc.cfg.Net.Addr, nc.logger)
	default:
		return nil, fmt.Errorf("不支持的协议: %s", nc.cfg.Net.Proto)
	}
}

// runLoop 固定步长：机器人决定输入，然后推进会话
func (nc *NetworkClient) runLoop() {
	defer nc.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(nc.sess.Config().TickRate))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-nc.ctx.Done():
			nc.sess.Stop()
			return

		case now := <-ticker.C:
			nc.step(now, now.Sub(last).Seconds())
			last = now
			if nc.sess.Mode() == session.ModeInactive {
				return
			}
		}
	}
}

func (nc *NetworkClient) step(now time.Time, dt float64) {
	if nc.sess.Welcomed() {
		nc.drive()
	}
	nc.sess.PhysicsTick(now)
	nc.sess.FrameTick(now, dt)
	nc.publish()
}

// drive 把当前看到的局面交给机器人
func (nc *NetworkClient) drive() {
	self, ok := nc.sess.Predicted()
	if !ok {
		return
	}
	v := bot.View{Tick: nc.sess.Tick(), Self: self, Frozen: nc.sess.Frozen()}
	for _, peer := range nc.sess.RemotePeers() {
		if st, _, ok := nc.sess.RemoteState(peer); ok {
			v.Others = append(v.Others, bot.Other{Peer: peer, State: st})
		}
	}

	d := nc.bot.Decide(v)
	nc.sess.SetInput(d.Input)
	if d.Shot != nil {
		if _, err := nc.sess.Fire(d.Shot.Origin, d.Shot.Direction, 0); err == nil {
			nc.shotsFired++
		}
	}
}

func (nc *NetworkClient) publish() {
	if nc.sess.Mode() == session.ModeInactive {
		return
	}
	st := Status{
		Peer:        nc.sess.LocalPeer(),
		Tick:        nc.sess.Tick(),
		InputDelay:  nc.sess.InputDelay(),
		Pending:     nc.sess.PendingInputs(),
		InterpDelay: nc.sess.InterpDelay(),
		Remotes:     len(nc.sess.RemotePeers()),
		Stats:       nc.sess.ClientStats(),
		ShotsFired:  nc.shotsFired,
		ShotsHit:    nc.shotsHit,
		ShotsSeen:   nc.shotsSeen,
		Match:       nc.match,
	}
	if rs, ok := nc.sess.RenderState(); ok {
		st.Position = rs.Position
	}

	nc.mu.Lock()
	nc.status = st
	nc.mu.Unlock()
}

// ========== 会话回调（tick 协程） ==========

func (nc *NetworkClient) onWelcomed(peer core.PeerID, resumed bool) {
	select {
	case nc.welcomeCh <- peer:
	default:
	}
}

func (nc *NetworkClient) onDisconnected(err error) {
	nc.logger.Printf("与服务器断开: %v", err)
	nc.lost.Store(true)
	select {
	case nc.errChan <- err:
	default:
	}
}

func (nc *NetworkClient) onControl(body protocol.ControlBody) {
	if m, ok := body.(*protocol.MatchState); ok {
		nc.match = *m
	}
}

func (nc *NetworkClient) onShotConfirmed(res *protocol.FireResult) {
	if res.Hit {
		nc.shotsHit++
	}
}

// ========== 查询 ==========

// Status 最近一次发布的快照
func (nc *NetworkClient) Status() Status {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	return nc.status
}

// Err 会话因错误结束时可读到原因，不阻塞
func (nc *NetworkClient) Err() error {
	select {
	case err := <-nc.errChan:
		return err
	default:
		return nil
	}
}

// IsConnected 检查是否已连接
func (nc *NetworkClient) IsConnected() bool {
	return nc.connected && !nc.lost.Load()
}

// Close 离开并关闭连接，可重复调用
func (nc *NetworkClient) Close() {
	if !nc.connected {
		return
	}
	nc.connected = false
	nc.cancel()

	// 等 tick 协程把 Goodbye 放进发送队列，再关传输
	nc.wg.Wait()
	if nc.tr != nil {
		nc.tr.Close()
	}

	nc.logger.Printf("网络客户端已关闭")
}
