package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
)

var quiet = log.New(io.Discard, "", 0)

// waitFor 轮询 Poll 直到找到满足条件的消息
func waitFor(t *testing.T, tr Transport, match func(Message) bool) Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range tr.Poll() {
			if match(m) {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for message")
	return Message{}
}

func isKind(k Kind) func(Message) bool {
	return func(m Message) bool { return m.Kind == k }
}

func TestLoopback(t *testing.T) {
	hub := NewHub()
	c := hub.Connect()

	msgs := hub.Poll()
	if len(msgs) != 1 || msgs[0].Kind != KindConnect || msgs[0].Peer != c.ID() {
		t.Fatalf("server connect = %+v", msgs)
	}
	if m := c.Poll(); len(m) != 1 || m[0].Kind != KindConnect {
		t.Fatalf("client connect = %+v", m)
	}

	payload := []byte{1, 2, 3}
	if err := c.Send(core.ServerPeerID, protocol.ChannelGameplay, protocol.Unreliable, payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 9 // 发送后修改不影响已投递的数据
	got := hub.Poll()
	if len(got) != 1 || !bytes.Equal(got[0].Data, []byte{1, 2, 3}) || got[0].Peer != c.ID() {
		t.Fatalf("server got %+v", got)
	}

	if err := hub.Send(c.ID(), protocol.ChannelControl, protocol.Reliable, []byte{7}); err != nil {
		t.Fatal(err)
	}
	if m := c.Poll(); len(m) != 1 || m[0].Channel != protocol.ChannelControl {
		t.Fatalf("client got %+v", m)
	}

	if err := hub.Send(99, protocol.ChannelControl, protocol.Reliable, nil); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("send to unknown = %v", err)
	}

	c.Close()
	c.Close()
	if m := hub.Poll(); len(m) != 1 || m[0].Kind != KindDisconnect {
		t.Fatalf("disconnect = %+v", m)
	}
	if err := c.Send(core.ServerPeerID, protocol.ChannelGameplay, protocol.Unreliable, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close = %v", err)
	}
}

func TestLoopbackKick(t *testing.T) {
	hub := NewHub()
	c := hub.Connect()
	hub.Poll()
	c.Poll()

	hub.Kick(c.ID())
	if m := c.Poll(); len(m) != 1 || m[0].Kind != KindDisconnect {
		t.Fatalf("client = %+v", m)
	}
	if m := hub.Poll(); len(m) != 1 || m[0].Kind != KindDisconnect {
		t.Fatalf("server = %+v", m)
	}
}

func TestStreamTCP(t *testing.T) {
	ctx := context.Background()
	srv, err := NewStreamServer(ctx, ProtoTCP, "127.0.0.1:0", quiet)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	cl, err := DialStream(ctx, ProtoTCP, srv.Addr().String(), quiet)
	if err != nil {
		t.Fatal(err)
	}
	defer cl.Close()

	conn := waitFor(t, srv, isKind(KindConnect))
	if conn.Peer != core.FirstRemotePeerID {
		t.Errorf("peer = %d", conn.Peer)
	}

	if err := cl.Send(core.ServerPeerID, protocol.ChannelControl, protocol.Reliable, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	m := waitFor(t, srv, isKind(KindData))
	if string(m.Data) != "hello" || m.Channel != protocol.ChannelControl {
		t.Errorf("server got %+v", m)
	}

	if err := srv.Send(conn.Peer, protocol.ChannelGameplay, protocol.Unreliable, []byte("snap")); err != nil {
		t.Fatal(err)
	}
	m = waitFor(t, cl, isKind(KindData))
	if string(m.Data) != "snap" || m.Channel != protocol.ChannelGameplay {
		t.Errorf("client got %+v", m)
	}

	big := make([]byte, MaxFrameSize)
	if err := cl.Send(core.ServerPeerID, protocol.ChannelGameplay, protocol.Unreliable, big); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized frame err = %v", err)
	}

	cl.Close()
	waitFor(t, srv, isKind(KindDisconnect))
}

func TestWebSocket(t *testing.T) {
	ctx := context.Background()
	srv := NewWSServer(ctx, quiet)
	hs := httptest.NewServer(srv)
	defer hs.Close()
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	cl, err := DialWS(ctx, url, quiet)
	if err != nil {
		t.Fatal(err)
	}
	defer cl.Close()

	conn := waitFor(t, srv, isKind(KindConnect))

	if err := cl.Send(core.ServerPeerID, protocol.ChannelGameplay, protocol.Unreliable, []byte{4, 5}); err != nil {
		t.Fatal(err)
	}
	m := waitFor(t, srv, isKind(KindData))
	if !bytes.Equal(m.Data, []byte{4, 5}) || m.Peer != conn.Peer {
		t.Errorf("server got %+v", m)
	}

	if err := srv.Send(conn.Peer, protocol.ChannelControl, protocol.Reliable, []byte{6}); err != nil {
		t.Fatal(err)
	}
	m = waitFor(t, cl, isKind(KindData))
	if !bytes.Equal(m.Data, []byte{6}) || m.Channel != protocol.ChannelControl {
		t.Errorf("client got %+v", m)
	}
}
