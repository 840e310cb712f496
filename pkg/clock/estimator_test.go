package clock

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms float64) time.Time {
	return epoch.Add(time.Duration(ms * float64(time.Millisecond)))
}

func TestFirstObservationSeeds(t *testing.T) {
	e := New(60)
	if e.Synced() {
		t.Fatal("synced before any observation")
	}
	e.Observe(1000, at(0))
	if got := e.Estimate(at(0)); got != 1000 {
		t.Errorf("estimate = %v, want 1000", got)
	}
	if got := e.Tick(at(500)); got != 1030 {
		t.Errorf("tick after 500ms = %d, want 1030", got)
	}
}

func TestNudgeIsBounded(t *testing.T) {
	e := New(60)
	e.Observe(100, at(0))
	// 误差 5 tick，小于强制对时阈值，只能修正 MaxNudgeTicks
	e.Observe(105, at(0))
	if got := e.Estimate(at(0)); math.Abs(got-(100+MaxNudgeTicks)) > 1e-9 {
		t.Errorf("estimate = %v, want %v", got, 100+MaxNudgeTicks)
	}
}

func TestHardResyncAfterStreak(t *testing.T) {
	e := New(60)
	e.Observe(100, at(0))
	for i := 0; i < HardResyncStreak-1; i++ {
		e.Observe(200, at(0))
	}
	if got := e.Estimate(at(0)); got > 101 {
		t.Fatalf("resynced too early: %v", got)
	}
	e.Observe(200, at(0))
	if got := e.Estimate(at(0)); got != 200 {
		t.Errorf("estimate = %v, want 200 after streak", got)
	}
	if e.Resyncs() != 1 {
		t.Errorf("resyncs = %d", e.Resyncs())
	}
}

func TestMonotonicUnderNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := New(60)
	tickMs := 1000.0 / 60
	prev := -1.0
	for i := 0; i < 2000; i++ {
		now := float64(i) * 5
		// 真实 tick 加上 ±3 tick 的观测噪声，偶尔出现大跳变
		truth := 500 + now/tickMs
		noise := (rng.Float64()*2 - 1) * 3
		if i%400 == 399 {
			noise = -20
		}
		e.Observe(truth+noise, at(now))
		got := e.Estimate(at(now))
		if got < prev {
			t.Fatalf("estimate decreased at step %d: %v -> %v", i, prev, got)
		}
		prev = got
	}
}

func TestConvergesAfterBackwardResync(t *testing.T) {
	e := New(60)
	e.Observe(1000, at(0))
	before := e.Estimate(at(1000)) // 1060

	// 服务器提示真实 tick 比估计慢 10
	e.Resync(1050, at(1000))
	if got := e.Estimate(at(1000)); got != before {
		t.Errorf("estimate jumped backward: %v", got)
	}

	// 10 tick 之后真实时间追上，估计值与真值一致
	trueAt := func(ms float64) float64 { return 1050 + (ms-1000)/1000*60 }
	ms := 1000 + 10*1000.0/60 + 1
	if got := e.Estimate(at(ms)); math.Abs(got-trueAt(ms)) > 1e-6 {
		t.Errorf("estimate = %v, want %v", got, trueAt(ms))
	}
}

func TestReset(t *testing.T) {
	e := New(30)
	e.Observe(10, at(0))
	e.Reset()
	if e.Synced() || e.Estimate(at(0)) != 0 {
		t.Error("reset did not clear state")
	}
	if e.TickRate() != 30 {
		t.Errorf("tick rate lost: %v", e.TickRate())
	}
}
