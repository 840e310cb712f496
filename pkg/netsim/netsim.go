// Package netsim 在真实传输外面包一层人为的延迟、抖动与丢包，用于测试和调参。
// 随机数使用显式种子，同样的配置和发送序列得到同样的结果。
package netsim

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"arenanet/pkg/core"
	"arenanet/pkg/protocol"
	"arenanet/pkg/transport"
)

// Config 模拟参数
type Config struct {
	Latency time.Duration
	Jitter  time.Duration
	// LossPercent 不可靠流量的丢包率 [0,100]，可靠/控制流量永不丢弃
	LossPercent float64
	Seed        int64
}

// Enabled 是否有任何效果
func (c Config) Enabled() bool {
	return c.Latency > 0 || c.Jitter > 0 || c.LossPercent > 0
}

// Stats 统计
type Stats struct {
	Sent      int
	Dropped   int
	Delivered int
	Queued    int
}

type pending struct {
	due  time.Time
	seq  uint64
	peer core.PeerID
	ch   protocol.Channel
	rel  protocol.Reliability
	data []byte
}

// Simulator 包装一个 transport.Transport，出站数据先进延迟队列，Flush 时投递
type Simulator struct {
	inner transport.Transport
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	queue    []pending
	seq      uint64
	stats    Stats
	recorder *Recorder
}

// Option 构造选项
type Option func(*Simulator)

// WithClock 注入时钟，测试里用假时间
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithRecorder 记录每个投递出去的包
func WithRecorder(r *Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

// New 创建模拟器
func New(inner transport.Transport, cfg Config, opts ...Option) *Simulator {
	s := &Simulator{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send 按配置决定丢弃或延迟
func (s *Simulator) Send(peer core.PeerID, ch protocol.Channel, rel protocol.Reliability, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Sent++
	if rel == protocol.Unreliable && ch != protocol.ChannelControl && s.cfg.LossPercent > 0 {
		if s.rng.Float64()*100 < s.cfg.LossPercent {
			s.stats.Dropped++
			return nil
		}
	}

	delay := s.cfg.Latency
	if s.cfg.Jitter > 0 {
		delay += time.Duration((s.rng.Float64()*2 - 1) * float64(s.cfg.Jitter))
	}
	if delay < 0 {
		delay = 0
	}

	s.seq++
	s.queue = append(s.queue, pending{
		due:  s.now().Add(delay),
		seq:  s.seq,
		peer: peer,
		ch:   ch,
		rel:  rel,
		data: append([]byte(nil), data...),
	})
	return nil
}

// Flush 投递所有到期的包，返回投递数量
func (s *Simulator) Flush(now time.Time) int {
	s.mu.Lock()
	var due []pending
	rest := s.queue[:0]
	for _, p := range s.queue {
		if !p.due.After(now) {
			due = append(due, p)
		} else {
			rest = append(rest, p)
		}
	}
	s.queue = rest
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})

	delivered := 0
	for _, p := range due {
		if err := s.inner.Send(p.peer, p.ch, p.rel, p.data); err != nil {
			continue
		}
		delivered++
		if s.recorder != nil {
			s.recorder.Record(p.due, p.peer, p.ch, p.data)
		}
	}

	s.mu.Lock()
	s.stats.Delivered += delivered
	s.mu.Unlock()
	return delivered
}

// Poll 入站流量直接透传
func (s *Simulator) Poll() []transport.Message {
	return s.inner.Poll()
}

// Close 丢弃队列并关闭内层传输
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	return s.inner.Close()
}

// Stats 当前统计
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Queued = len(s.queue)
	return st
}

// Inner 被包装的传输
func (s *Simulator) Inner() transport.Transport { return s.inner }
