package transport

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

// StreamServer 基于流式连接（KCP 或 TCP）的服务器传输。
// KCP 本身可靠有序，两个逻辑通道共用一条会话，不可靠发送只在拥塞时丢帧
type StreamServer struct {
	listener Listener
	logger   *log.Logger
	inbox    inbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[core.PeerID]*frameConn
	nextID core.PeerID
	closed bool
}

// NewStreamServer 监听 proto/addr 并开始接受连接
func NewStreamServer(ctx context.Context, proto, addr string, logger *log.Logger) (*StreamServer, error) {
	l, err := Listen(proto, addr)
	if err != nil {
		return nil, err
	}
	return ServeStream(ctx, l, logger), nil
}

// ServeStream 在已有监听器上提供服务
func ServeStream(ctx context.Context, l Listener, logger *log.Logger) *StreamServer {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StreamServer{
		listener: l,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[core.PeerID]*frameConn),
		nextID:   core.FirstRemotePeerID,
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s
}

// Addr 监听地址
func (s *StreamServer) Addr() net.Addr { return s.listener.Addr() }

func (s *StreamServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("接受连接失败: %v", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		id := s.nextID
		s.nextID++
		fc := newFrameConn(conn, id, &s.inbox, s.logger)
		fc.onClose = s.remove
		s.conns[id] = fc
		s.mu.Unlock()

		s.logger.Printf("新连接: peer %d (%s)", id, conn.RemoteAddr())
		s.inbox.push(Message{Kind: KindConnect, Peer: id})
		fc.start(s.ctx, &s.wg)
	}
}

func (s *StreamServer) remove(peer core.PeerID) {
	s.mu.Lock()
	delete(s.conns, peer)
	s.mu.Unlock()
}

// Send 发给某个对端
func (s *StreamServer) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	s.mu.Lock()
	fc, ok := s.conns[peer]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	return fc.send(ch, rel, data)
}

// Poll 取走收件箱
func (s *StreamServer) Poll() []Message { return s.inbox.drain() }

// Kick 断开某个对端
func (s *StreamServer) Kick(peer core.PeerID) {
	s.mu.Lock()
	fc, ok := s.conns[peer]
	s.mu.Unlock()
	if ok {
		fc.close()
	}
}

// Close 关闭监听器与全部连接并等待协程退出
func (s *StreamServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*frameConn, 0, len(s.conns))
	for _, fc := range s.conns {
		conns = append(conns, fc)
	}
	s.mu.Unlock()

	for _, fc := range conns {
		waitDrained(fc.sendChan, flushTimeout)
	}
	s.cancel()
	err := s.listener.Close()
	for _, fc := range conns {
		fc.close()
	}
	s.wg.Wait()
	return err
}

// StreamClient 流式客户端传输，唯一对端为服务器
type StreamClient struct {
	fc     *frameConn
	inbox  inbox
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DialStream 连接服务器
func DialStream(ctx context.Context, proto, addr string, logger *log.Logger) (*StreamClient, error) {
	conn, err := Dial(proto, addr)
	if err != nil {
		return nil, err
	}
	return NewStreamClient(ctx, conn, logger), nil
}

// NewStreamClient 在已建立的连接上创建客户端传输
func NewStreamClient(ctx context.Context, conn net.Conn, logger *log.Logger) *StreamClient {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &StreamClient{cancel: cancel}
	c.fc = newFrameConn(conn, core.ServerPeerID, &c.inbox, logger)
	c.inbox.push(Message{Kind: KindConnect, Peer: core.ServerPeerID})
	c.fc.start(ctx, &c.wg)
	return c
}

// Send 只能发给服务器
func (c *StreamClient) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	if peer != core.ServerPeerID {
		return ErrUnknownPeer
	}
	return c.fc.send(ch, rel, data)
}

// Poll 取走收件箱
func (c *StreamClient) Poll() []Message { return c.inbox.drain() }

// Close 断开并等待协程退出
func (c *StreamClient) Close() error {
	waitDrained(c.fc.sendChan, flushTimeout)
	c.fc.close()
	c.cancel()
	c.wg.Wait()
	return nil
}
