package session

import "math"

// RTT 离群判定参数
const (
	// OutlierK 样本超过 rtt + OutlierK·jitter 视为离群
	OutlierK = 4.0
	// OutlierFloorMs 离群阈值的绝对下限
	OutlierFloorMs = 40.0
	// OutlierStreak 连续这么多个离群样本后认为网络状况真的变了
	OutlierStreak = 3
)

// RTTEstimator 往返时延估计（毫秒），带离群过滤。
// 单个尖峰被忽略，连续 OutlierStreak 个离群样本则直接采用它们的均值作为新基线
type RTTEstimator struct {
	rtt      float64
	jitter   float64
	has      bool
	streak   []float64
	samples  int
	outliers int
}

// Observe 输入一个样本，返回是否被采纳
func (e *RTTEstimator) Observe(sampleMs float64) bool {
	if math.IsNaN(sampleMs) || math.IsInf(sampleMs, 0) || sampleMs < 0 {
		return false
	}
	if !e.has {
		e.rtt = sampleMs
		e.jitter = 0
		e.has = true
		e.samples = 1
		return true
	}

	if sampleMs > e.rtt+math.Max(OutlierK*e.jitter, OutlierFloorMs) {
		e.outliers++
		e.streak = append(e.streak, sampleMs)
		if len(e.streak) < OutlierStreak {
			return false
		}
		mean := 0.0
		for _, v := range e.streak {
			mean += v
		}
		mean /= float64(len(e.streak))
		dev := 0.0
		for _, v := range e.streak {
			dev += math.Abs(v - mean)
		}
		e.rtt = mean
		e.jitter = dev / float64(len(e.streak))
		e.streak = e.streak[:0]
		e.samples++
		return true
	}

	e.streak = e.streak[:0]
	diff := sampleMs - e.rtt
	e.rtt += diff / 8
	e.jitter += (math.Abs(diff) - e.jitter) / 4
	e.samples++
	return true
}

// RTT 当前估计
func (e *RTTEstimator) RTT() float64 { return e.rtt }

// Jitter 当前抖动估计
func (e *RTTEstimator) Jitter() float64 { return e.jitter }

// Samples 已采纳的样本数
func (e *RTTEstimator) Samples() int { return e.samples }

// Outliers 被判为离群的样本数
func (e *RTTEstimator) Outliers() int { return e.outliers }
