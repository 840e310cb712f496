package transport

import (
	"sync"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

// Hub 进程内回环传输的服务器端，测试和单机对战使用。
// 发送是同步的：数据直接拷贝进对端收件箱
type Hub struct {
	mu      sync.Mutex
	inbox   inbox
	clients map[core.PeerID]*LoopbackClient
	nextID  core.PeerID
	closed  bool
}

// NewHub 创建回环服务器
func NewHub() *Hub {
	return &Hub{clients: make(map[core.PeerID]*LoopbackClient), nextID: core.FirstRemotePeerID}
}

// Connect 新建一个客户端端点，服务器收到 Connect 事件
func (h *Hub) Connect() *LoopbackClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &LoopbackClient{hub: h, id: h.nextID}
	h.nextID++
	if h.closed {
		c.closed = true
		return c
	}
	h.clients[c.id] = c
	h.inbox.push(Message{Kind: KindConnect, Peer: c.id})
	c.inbox.push(Message{Kind: KindConnect, Peer: core.ServerPeerID})
	return c
}

// Send 发给某个客户端
func (h *Hub) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	c, ok := h.clients[peer]
	if !ok {
		return ErrUnknownPeer
	}
	c.inbox.push(Message{Kind: KindData, Peer: core.ServerPeerID, Channel: ch, Data: clone(data)})
	return nil
}

// Poll 取走服务器收件箱
func (h *Hub) Poll() []Message { return h.inbox.drain() }

// Kick 断开某个客户端，两端都收到 Disconnect
func (h *Hub) Kick(peer core.PeerID) {
	h.mu.Lock()
	c, ok := h.clients[peer]
	if ok {
		delete(h.clients, peer)
	}
	h.mu.Unlock()
	if ok {
		c.drop()
		h.inbox.push(Message{Kind: KindDisconnect, Peer: peer})
	}
}

// Close 关闭所有客户端
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[core.PeerID]*LoopbackClient)
	h.mu.Unlock()
	for _, c := range clients {
		c.drop()
	}
	return nil
}

func (h *Hub) deliver(from core.PeerID, ch protocol.Channel, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, ok := h.clients[from]; !ok {
		return ErrClosed
	}
	h.inbox.push(Message{Kind: KindData, Peer: from, Channel: ch, Data: clone(data)})
	return nil
}

func (h *Hub) leave(id core.PeerID) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		h.inbox.push(Message{Kind: KindDisconnect, Peer: id})
	}
}

// LoopbackClient 回环传输的客户端端点
type LoopbackClient struct {
	hub    *Hub
	id     core.PeerID
	inbox  inbox
	mu     sync.Mutex
	closed bool
}

// ID 服务器分配给该端点的 PeerID
func (c *LoopbackClient) ID() core.PeerID { return c.id }

// Send 只能发给服务器
func (c *LoopbackClient) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if peer != core.ServerPeerID {
		return ErrUnknownPeer
	}
	return c.hub.deliver(c.id, ch, data)
}

// Poll 取走客户端收件箱
func (c *LoopbackClient) Poll() []Message { return c.inbox.drain() }

// Close 主动断开
func (c *LoopbackClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.hub.leave(c.id)
	return nil
}

// drop 被服务器断开
func (c *LoopbackClient) drop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.inbox.push(Message{Kind: KindDisconnect, Peer: core.ServerPeerID})
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
