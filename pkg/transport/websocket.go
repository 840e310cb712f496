package transport

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  MaxFrameSize,
	WriteBufferSize: MaxFrameSize,
	// 调试服务器只在本地使用，来源由上层的 CORS 配置控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn 一条 WebSocket 连接。每条二进制消息 = 1 字节通道 + 载荷
type wsConn struct {
	conn   *websocket.Conn
	peer   core.PeerID
	inbox  *inbox
	logger *log.Logger

	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex
	onClose  func(peer core.PeerID)
}

func newWSConn(conn *websocket.Conn, peer core.PeerID, in *inbox, logger *log.Logger) *wsConn {
	conn.SetReadLimit(MaxFrameSize)
	return &wsConn{
		conn:     conn,
		peer:     peer,
		inbox:    in,
		logger:   logger,
		sendChan: make(chan []byte, sendQueueSize),
		closeCh:  make(chan struct{}),
	}
}

func (c *wsConn) send(ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	if len(data)+1 > MaxFrameSize {
		return ErrFrameTooLarge
	}
	msg := make([]byte, 1+len(data))
	msg[0] = byte(ch)
	copy(msg[1:], data)

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.sendChan <- msg:
		return nil
	default:
		if rel == protocol.Unreliable {
			return nil
		}
		return ErrSendQueueFull
	}
}

func (c *wsConn) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	close(c.sendChan)
	c.closeMu.Unlock()

	c.conn.Close()
	c.inbox.push(Message{Kind: KindDisconnect, Peer: c.peer})
	if c.onClose != nil {
		c.onClose(c.peer)
	}
	c.logger.Printf("peer %d: websocket 已关闭", c.peer)
}

func (c *wsConn) writeLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	for msg := range c.sendChan {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.logger.Printf("peer %d: 发送失败: %v", c.peer, err)
			c.close()
			return
		}
	}
}

func (c *wsConn) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		default:
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.close()
			return
		}
		if kind != websocket.BinaryMessage || len(payload) == 0 {
			continue
		}
		c.inbox.push(Message{
			Kind:    KindData,
			Peer:    c.peer,
			Channel: protocol.Channel(payload[0]),
			Data:    payload[1:],
		})
	}
}

// WSServer WebSocket 服务器传输，作为 http.Handler 挂到路由上
type WSServer struct {
	logger *log.Logger
	inbox  inbox
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[core.PeerID]*wsConn
	nextID core.PeerID
	closed bool
}

// NewWSServer 创建 WebSocket 服务器传输
func NewWSServer(ctx context.Context, logger *log.Logger) *WSServer {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WSServer{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[core.PeerID]*wsConn),
		nextID: core.FirstRemotePeerID,
	}
}

// ServeHTTP 升级连接并在当前协程里读
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket 升级失败: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	id := s.nextID
	s.nextID++
	c := newWSConn(conn, id, &s.inbox, s.logger)
	c.onClose = s.remove
	s.conns[id] = c
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Printf("新 websocket 连接: peer %d (%s)", id, r.RemoteAddr)
	s.inbox.push(Message{Kind: KindConnect, Peer: id})

	go c.writeLoop(&s.wg)
	c.readLoop(s.ctx)
}

func (s *WSServer) remove(peer core.PeerID) {
	s.mu.Lock()
	delete(s.conns, peer)
	s.mu.Unlock()
}

// Send 发给某个对端
func (s *WSServer) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	s.mu.Lock()
	c, ok := s.conns[peer]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	return c.send(ch, rel, data)
}

// Poll 取走收件箱
func (s *WSServer) Poll() []Message { return s.inbox.drain() }

// Close 关闭全部连接
func (s *WSServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		waitDrained(c.sendChan, flushTimeout)
	}
	s.cancel()
	for _, c := range conns {
		c.close()
	}
	s.wg.Wait()
	return nil
}

// WSClient WebSocket 客户端传输
type WSClient struct {
	c  *wsConn
	in inbox
	wg sync.WaitGroup
}

// DialWS 连接 ws://host/path
func DialWS(ctx context.Context, url string, logger *log.Logger) (*WSClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	cl := &WSClient{}
	cl.c = newWSConn(conn, core.ServerPeerID, &cl.in, logger)
	cl.in.push(Message{Kind: KindConnect, Peer: core.ServerPeerID})
	cl.wg.Add(1)
	go cl.c.writeLoop(&cl.wg)
	go cl.c.readLoop(ctx)
	return cl, nil
}

// Send 只能发给服务器
func (c *WSClient) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	if peer != core.ServerPeerID {
		return ErrUnknownPeer
	}
	return c.c.send(ch, rel, data)
}

// Poll 取走收件箱
func (c *WSClient) Poll() []Message { return c.in.drain() }

// Close 断开
func (c *WSClient) Close() error {
	waitDrained(c.c.sendChan, flushTimeout)
	c.c.close()
	c.wg.Wait()
	return nil
}
