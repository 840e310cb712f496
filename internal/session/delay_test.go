package session

import "testing"

func TestEffectiveDelay(t *testing.T) {
	tickMs := 1000.0 / 60
	tests := []struct {
		name     string
		jitter   float64
		safety   float64
		min, max int
		want     int
	}{
		{"no jitter", 0, 20, 1, 6, 2},
		{"moderate jitter", 10, 20, 1, 6, 3},
		{"heavy jitter clamps to max", 100, 20, 1, 6, 6},
		{"floor", 0, 1, 2, 6, 2},
		{"max above bundle capacity", 500, 20, 1, 20, 8},
		{"small jitter", 5, 20, 1, 6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveDelay(tt.jitter, tt.safety, tickMs, tt.min, tt.max); got != tt.want {
				t.Errorf("EffectiveDelay = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDelayControllerCooldown(t *testing.T) {
	d := newDelayController(2, 100)

	if _, push := d.Update(2, 200); push {
		t.Error("unchanged target pushed")
	}
	if _, push := d.Update(4, 100+DelayUpdateCooldown-1); push {
		t.Error("pushed inside cooldown")
	}
	if d.Current() != 2 {
		t.Errorf("current = %d", d.Current())
	}

	v, push := d.Update(4, 100+DelayUpdateCooldown)
	if !push || v != 4 || d.Current() != 4 {
		t.Fatalf("update = %d,%v current=%d", v, push, d.Current())
	}
	if _, push := d.Update(3, 100+DelayUpdateCooldown+1); push {
		t.Error("second push ignored cooldown")
	}
}
