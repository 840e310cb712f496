package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"arenanet/internal/config"
	"arenanet/internal/metrics"
	"arenanet/internal/session"
	"arenanet/pkg/bot"
	"arenanet/pkg/netsim"
	"arenanet/pkg/transport"
)

// GameServer 专用/监听服务器进程：传输、房间循环和调试 HTTP
type GameServer struct {
	cfg     config.AppConfig
	logger  *log.Logger
	metrics *metrics.Collector

	room  *Room
	match *Match
	tr    transport.Transport

	// ws 模式下承载 /ws 的 HTTP 服务
	wsServer *http.Server
	debug    *http.Server
	record   *os.File

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
	ready    chan struct{}
	addr     net.Addr
}

// NewGameServer 创建服务器，Start 之前不占用任何端口
func NewGameServer(cfg config.AppConfig) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &GameServer{
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[server] ", log.LstdFlags),
		metrics:  metrics.New(),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
		ready:    make(chan struct{}),
	}
}

// Start 启动服务器并阻塞到 Shutdown
func (s *GameServer) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.logger.Printf("启动游戏服务器: %s (%s)", s.cfg.Net.Addr, s.cfg.Net.Proto)

	tr, err := s.listen()
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.tr, err = s.wrapNetsim(tr)
	if err != nil {
		tr.Close()
		return err
	}

	scfg := s.cfg.Session()
	scfg.Logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	scfg.Metrics = s.metrics

	s.match = NewMatch(DefaultMatchRules(scfg.TickRate), scfg.TickRate, s.logger)
	sess := session.New(scfg, s.match.Hooks())
	s.match.Bind(sess)

	var host *bot.Controller
	if s.cfg.Server.Listen {
		err = sess.StartListenServer(s.tr)
		host = bot.New(time.Now().UnixNano())
	} else {
		err = sess.StartDedicatedServer(s.tr)
	}
	if err != nil {
		s.tr.Close()
		return fmt.Errorf("启动会话失败: %w", err)
	}

	s.room = NewRoom(s.ctx, sess, s.match, host, s.logger)

	// 启动房间循环
	s.wg.Add(1)
	go s.room.Run(&s.wg)

	if s.cfg.Debug.Enabled {
		s.startDebug()
	}
	close(s.ready)

	// 等待关闭信号
	<-s.shutdown

	s.logger.Println("服务器正在关闭...")
	return nil
}

// listen 按协议选择传输
func (s *GameServer) listen() (transport.Transport, error) {
	switch s.cfg.Net.Proto {
	case "ws":
		ws := transport.NewWSServer(s.ctx, s.logger)
		r := chi.NewRouter()
		r.Handle("/ws", ws)
		ln, err := net.Listen("tcp", s.cfg.Net.Addr)
		if err != nil {
			ws.Close()
			return nil, err
		}
		s.addr = ln.Addr()
		s.wsServer = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.wsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("websocket 服务退出: %v", err)
			}
		}()
		return ws, nil
	default:
		ss, err := transport.NewStreamServer(s.ctx, s.cfg.Net.Proto, s.cfg.Net.Addr, s.logger)
		if err != nil {
			return nil, err
		}
		s.addr = ss.Addr()
		return ss, nil
	}
}

// wrapNetsim 配置了人为网络条件或抓包时包一层模拟器
func (s *GameServer) wrapNetsim(tr transport.Transport) (transport.Transport, error) {
	sim := s.cfg.Net.Netsim()
	if !sim.Enabled() && s.cfg.Net.RecordPath == "" {
		return tr, nil
	}
	var opts []netsim.Option
	if s.cfg.Net.RecordPath != "" {
		f, err := os.Create(s.cfg.Net.RecordPath)
		if err != nil {
			return nil, fmt.Errorf("创建抓包文件失败: %w", err)
		}
		s.record = f
		opts = append(opts, netsim.WithRecorder(netsim.NewRecorder(f)))
	}
	s.logger.Printf("网络模拟: 延迟 %v 抖动 %v 丢包 %.1f%%", sim.Latency, sim.Jitter, sim.LossPercent)
	return netsim.New(tr, sim, opts...), nil
}

func (s *GameServer) startDebug() {
	router := NewDebugRouter(s.room, s.metrics.Handler(), s.cfg.Debug.CORSOrigins)
	s.debug = &http.Server{
		Addr:              s.cfg.Debug.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("调试接口: http://%s", s.cfg.Debug.Addr)
		if err := s.debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("调试接口退出: %v", err)
		}
	}()
}

// Ready Start 完成初始化后关闭
func (s *GameServer) Ready() <-chan struct{} { return s.ready }

// Addr 实际监听地址，Ready 之后有效
func (s *GameServer) Addr() net.Addr { return s.addr }

// Room 房间，Ready 之后有效
func (s *GameServer) Room() *Room { return s.room }

// Shutdown 优雅关闭服务器，可重复调用
func (s *GameServer) Shutdown() {
	s.once.Do(func() {
		s.logger.Println("正在关闭服务器...")

		// 先停房间循环，会话借此向客户端发送 Goodbye
		if s.room != nil {
			s.room.Shutdown()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if s.debug != nil {
			s.debug.Shutdown(ctx)
		}
		if s.wsServer != nil {
			s.wsServer.Shutdown(ctx)
		}

		// 取消上下文
		s.cancel()

		// 关闭 shutdown 通道
		close(s.shutdown)

		// 等待所有 goroutine 结束
		s.wg.Wait()

		if s.tr != nil {
			s.tr.Close()
		}
		if s.record != nil {
			s.record.Close()
		}

		s.logger.Println("服务器已关闭")
	})
}
