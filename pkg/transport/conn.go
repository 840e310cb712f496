package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

const (
	readTimeout   = 5 * time.Second // 读取超时，会话每 250ms 一次 Ping，足够覆盖
	writeTimeout  = 1 * time.Second // 写入超时
	sendQueueSize = 256
	flushTimeout  = 200 * time.Millisecond // 关闭前等待发送队列清空的上限
)

// frameConn 在流式连接上按帧收发：4 字节大端长度 + 1 字节通道 + 载荷。
// 一个发送协程、一个接收协程，收到的帧写入共享收件箱
type frameConn struct {
	conn   net.Conn
	peer   core.PeerID
	inbox  *inbox
	logger *log.Logger

	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	// onClose 连接关闭后回调一次（服务器端用来移除对端）
	onClose func(peer core.PeerID)
}

func newFrameConn(conn net.Conn, peer core.PeerID, in *inbox, logger *log.Logger) *frameConn {
	return &frameConn{
		conn:     conn,
		peer:     peer,
		inbox:    in,
		logger:   logger,
		sendChan: make(chan []byte, sendQueueSize),
		closeCh:  make(chan struct{}),
	}
}

// start 启动收发协程
func (c *frameConn) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go c.sendLoop(ctx, wg)
	go c.receiveLoop(ctx, wg)
}

// send 异步发送。可靠帧在队列满时返回错误，不可靠帧直接丢弃
func (c *frameConn) send(ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	if len(data)+1 > MaxFrameSize {
		return ErrFrameTooLarge
	}
	frame := make([]byte, 4+1+len(data))
	binary.BigEndian.PutUint32(frame, uint32(1+len(data)))
	frame[4] = byte(ch)
	copy(frame[5:], data)

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.sendChan <- frame:
		return nil
	default:
		if rel == protocol.Unreliable {
			return nil
		}
		return ErrSendQueueFull
	}
}

// waitDrained 等发送队列清空，最多等 d。关闭前调用，让 Goodbye 之类的最后几帧发出去
func waitDrained(ch chan []byte, d time.Duration) {
	deadline := time.Now().Add(d)
	for len(ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// 最后一帧可能刚出队还在写
	time.Sleep(5 * time.Millisecond)
}

func (c *frameConn) close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	close(c.sendChan)
	c.closeMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	c.inbox.push(Message{Kind: KindDisconnect, Peer: c.peer})
	if c.onClose != nil {
		c.onClose(c.peer)
	}
	c.logger.Printf("peer %d: 连接已关闭", c.peer)
}

func (c *frameConn) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case frame, ok := <-c.sendChan:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(frame); err != nil {
				c.logger.Printf("peer %d: 发送失败: %v", c.peer, err)
				c.close()
				return
			}
		}
	}
}

func (c *frameConn) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	var header [4]byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, err := io.ReadFull(c.conn, header[:]); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.logger.Printf("peer %d: 读取超时", c.peer)
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Printf("peer %d: 读取长度失败: %v", c.peer, err)
			}
			c.close()
			return
		}

		length := binary.BigEndian.Uint32(header[:])
		if length > MaxFrameSize {
			c.logger.Printf("peer %d: 帧过大 (%d bytes)", c.peer, length)
			c.close()
			return
		}
		if length == 0 {
			continue
		}

		body := make([]byte, length)
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, err := io.ReadFull(c.conn, body); err != nil {
			c.logger.Printf("peer %d: 读取数据失败: %v", c.peer, err)
			c.close()
			return
		}
		c.inbox.push(Message{
			Kind:    KindData,
			Peer:    c.peer,
			Channel: protocol.Channel(body[0]),
			Data:    body[1:],
		})
	}
}
