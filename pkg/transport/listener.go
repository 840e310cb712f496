package transport

import (
	"fmt"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
)

// 支持的流式协议
const (
	ProtoTCP = "tcp"
	ProtoKCP = "kcp"
	ProtoWS  = "ws"
)

// Listener 流式监听器
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

// Listen 按协议创建监听器
func Listen(proto, addr string) (Listener, error) {
	switch proto {
	case "", ProtoTCP:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tunedListener{Listener: l, accept: func() (net.Conn, error) {
			conn, err := l.Accept()
			if err != nil {
				return nil, err
			}
			return tuneTCP(conn), nil
		}}, nil
	case ProtoKCP:
		l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return &tunedListener{Listener: l, accept: func() (net.Conn, error) {
			sess, err := l.AcceptKCP()
			if err != nil {
				return nil, err
			}
			tuneKCP(sess)
			return sess, nil
		}}, nil
	}
	return nil, fmt.Errorf("不支持的协议: %s", proto)
}

// Dial 按协议建立连接
func Dial(proto, addr string) (net.Conn, error) {
	switch proto {
	case "", ProtoTCP:
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, err
		}
		return tuneTCP(conn), nil
	case ProtoKCP:
		sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		tuneKCP(sess)
		return sess, nil
	}
	return nil, fmt.Errorf("不支持的协议: %s", proto)
}

const dialTimeout = 5 * time.Second

// tunedListener 接受连接时顺带按协议调参
type tunedListener struct {
	net.Listener
	accept func() (net.Conn, error)
}

func (l *tunedListener) Accept() (net.Conn, error) { return l.accept() }

// tuneTCP 关掉 Nagle，小包立即发出
func tuneTCP(conn net.Conn) net.Conn {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn
}

// tuneKCP 低延迟参数：nodelay、10ms 内部时钟、快速重传、关闭拥塞控制
func tuneKCP(s *kcp.UDPSession) {
	s.SetStreamMode(true)
	s.SetNoDelay(1, 10, 2, 1)
	s.SetWindowSize(256, 256)
	s.SetACKNoDelay(true)
}
