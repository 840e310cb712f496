package session

import (
	"math"
	"testing"
)

func TestRTTFirstSampleSeeds(t *testing.T) {
	var e RTTEstimator
	if !e.Observe(50) {
		t.Fatal("first sample rejected")
	}
	if e.RTT() != 50 || e.Jitter() != 0 || e.Samples() != 1 {
		t.Errorf("rtt=%v jitter=%v samples=%d", e.RTT(), e.Jitter(), e.Samples())
	}
}

func TestRTTSmoothing(t *testing.T) {
	var e RTTEstimator
	e.Observe(40)
	e.Observe(56) // diff 16: rtt += 2, jitter += 4
	if e.RTT() != 42 || e.Jitter() != 4 {
		t.Errorf("rtt=%v jitter=%v, want 42/4", e.RTT(), e.Jitter())
	}
}

func TestRTTSingleSpikeIgnored(t *testing.T) {
	var e RTTEstimator
	for i := 0; i < 20; i++ {
		e.Observe(50)
	}
	if e.Observe(500) {
		t.Fatal("10x spike accepted")
	}
	if e.RTT() > 60 {
		t.Errorf("rtt after spike = %v", e.RTT())
	}
	if e.Outliers() != 1 {
		t.Errorf("outliers = %d", e.Outliers())
	}

	// 正常样本打断离群序列
	e.Observe(500)
	e.Observe(50)
	e.Observe(500)
	if e.RTT() > 60 {
		t.Errorf("interrupted streak moved rtt to %v", e.RTT())
	}
}

func TestRTTSustainedShiftAdopted(t *testing.T) {
	var e RTTEstimator
	for i := 0; i < 20; i++ {
		e.Observe(50)
	}
	got := []bool{e.Observe(200), e.Observe(210), e.Observe(190)}
	want := []bool{false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("accepted = %v, want %v", got, want)
		}
	}
	if e.RTT() != 200 {
		t.Errorf("rtt = %v, want 200", e.RTT())
	}
	if math.Abs(e.Jitter()-20.0/3) > 1e-9 {
		t.Errorf("jitter = %v", e.Jitter())
	}

	// 新基线下 200 附近的样本都是正常样本
	if !e.Observe(205) {
		t.Error("sample near new baseline rejected")
	}
}

func TestRTTRejectsInvalid(t *testing.T) {
	var e RTTEstimator
	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		if e.Observe(v) {
			t.Errorf("accepted %v", v)
		}
	}
	if e.Samples() != 0 {
		t.Errorf("samples = %d", e.Samples())
	}
}
