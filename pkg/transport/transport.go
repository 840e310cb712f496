// Package transport 定义会话使用的传输接口以及几种实现：
// 进程内回环、基于 KCP/TCP 的流式连接、WebSocket。
//
// 所有实现都自行管理收发协程，对外只暴露非阻塞的 Poll，
// 会话在自己的 tick 里取走消息，不需要加锁。
package transport

import (
	"errors"
	"sync"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

var (
	ErrClosed        = errors.New("transport: closed")
	ErrUnknownPeer   = errors.New("transport: unknown peer")
	ErrSendQueueFull = errors.New("transport: send queue full")
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// MaxFrameSize 单帧最大字节数
const MaxFrameSize = 4096

// Kind 消息类型
type Kind uint8

const (
	KindData Kind = iota
	KindConnect
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Message Poll 返回的事件
type Message struct {
	Kind    Kind
	Peer    core.PeerID
	Channel protocol.Channel
	Data    []byte
}

// Transport 会话注入的传输层。
// 客户端侧只有一个对端：core.ServerPeerID
type Transport interface {
	// Send 发送一帧。不可靠发送在队列满时直接丢弃并返回 nil
	Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error
	// Poll 取走自上次调用以来收到的所有事件，按到达顺序
	Poll() []Message
	// Close 关闭传输，可重复调用
	Close() error
}

// inbox 收件箱，收发协程写入，tick 线程 Poll 读取
type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (b *inbox) push(m Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
}

func (b *inbox) drain() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		return nil
	}
	out := b.msgs
	b.msgs = nil
	return out
}
