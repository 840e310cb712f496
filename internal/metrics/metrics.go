// Package metrics 把会话的诊断数据导出为 Prometheus 指标。
//
// 标签只用有限的取值（指令来源、max/avg），不按玩家打标签。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arenanet/internal/session"
)

const namespace = "arenanet"

// Collector 实现 session.Metrics，注册在私有 registry 上
type Collector struct {
	registry *prometheus.Registry

	tickDuration    prometheus.Histogram
	inputs          *prometheus.CounterVec // source: buffered|hold_last|rejected|dropped|late
	snapshots       prometheus.Counter
	snapshotEntries prometheus.Gauge
	malformed       prometheus.Counter

	peers  prometheus.Gauge
	rtt    *prometheus.GaugeVec // stat: max|avg
	jitter *prometheus.GaugeVec
	delay  *prometheus.GaugeVec
	streak prometheus.Gauge
}

var _ session.Metrics = (*Collector)(nil)

// New 创建并注册全部指标，同时带上进程与 Go 运行时指标
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one physics tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.05},
		}),
		inputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_total",
			Help:      "Commands handled by the server, by outcome",
		}, []string{"source"}),
		snapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_sent_total",
			Help:      "Snapshot broadcasts",
		}),
		snapshotEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_entries",
			Help:      "Entities in the last snapshot",
		}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_packets_total",
			Help:      "Packets that failed to decode",
		}),
		peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Connected peers, host included",
		}),
		rtt: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_rtt_milliseconds",
			Help:      "Smoothed round trip time across peers",
		}, []string{"stat"}),
		jitter: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_jitter_milliseconds",
			Help:      "Round trip jitter across peers",
		}, []string{"stat"}),
		delay: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_input_delay_ticks",
			Help:      "Effective input delay across peers",
		}, []string{"stat"}),
		streak: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_missing_streak_max",
			Help:      "Longest current run of missing inputs across peers",
		}),
	}
}

// Handler /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry 额外的指标可以注册到这里
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) TickDuration(d time.Duration) { c.tickDuration.Observe(d.Seconds()) }

func (c *Collector) Input(src session.InputSource, n int) {
	if n <= 0 {
		return
	}
	c.inputs.WithLabelValues(src.String()).Add(float64(n))
}

func (c *Collector) SnapshotSent(entries int) {
	c.snapshots.Inc()
	c.snapshotEntries.Set(float64(entries))
}

func (c *Collector) MalformedPacket() { c.malformed.Inc() }

// Peers 聚合成 max/avg，主机的 RTT 恒为零，不参与统计
func (c *Collector) Peers(stats []session.PeerStats) {
	c.peers.Set(float64(len(stats)))

	var n int
	var rttMax, rttSum, jitMax, jitSum float64
	var delayMax, delaySum int
	var streak uint32
	for _, ps := range stats {
		streak = max(streak, ps.MissingStreak)
		if ps.Host {
			continue
		}
		n++
		rttMax = max(rttMax, ps.RTTMs)
		rttSum += ps.RTTMs
		jitMax = max(jitMax, ps.JitterMs)
		jitSum += ps.JitterMs
		delayMax = max(delayMax, ps.DelayTicks)
		delaySum += ps.DelayTicks
	}
	c.streak.Set(float64(streak))

	var rttAvg, jitAvg, delayAvg float64
	if n > 0 {
		rttAvg = rttSum / float64(n)
		jitAvg = jitSum / float64(n)
		delayAvg = float64(delaySum) / float64(n)
	}
	c.rtt.WithLabelValues("max").Set(rttMax)
	c.rtt.WithLabelValues("avg").Set(rttAvg)
	c.jitter.WithLabelValues("max").Set(jitMax)
	c.jitter.WithLabelValues("avg").Set(jitAvg)
	c.delay.WithLabelValues("max").Set(float64(delayMax))
	c.delay.WithLabelValues("avg").Set(delayAvg)
}
