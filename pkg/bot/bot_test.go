package bot

import (
	"math"
	"testing"

	"arenanet/pkg/core"
)

func TestTreeComposites(t *testing.T) {
	ok := Action(func(*Blackboard) Status { return StatusSuccess })
	fail := Action(func(*Blackboard) Status { return StatusFailure })
	run := Action(func(*Blackboard) Status { return StatusRunning })

	tests := []struct {
		name string
		node Node
		want Status
	}{
		{"sequence all ok", Sequence(ok, ok), StatusSuccess},
		{"sequence stops on failure", Sequence(ok, fail, run), StatusFailure},
		{"sequence running", Sequence(run, fail), StatusRunning},
		{"empty sequence", Sequence(), StatusSuccess},
		{"selector first ok", Selector(fail, ok), StatusSuccess},
		{"selector all fail", Selector(fail, fail), StatusFailure},
		{"always hides failure", Always(fail), StatusSuccess},
		{"nil action", Action(nil), StatusFailure},
		{"nil condition", Condition(nil), StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Tick(&Blackboard{}); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYawMatchesMover(t *testing.T) {
	for _, d := range []core.Vec3{{X: 1}, {Z: 1}, {X: -3, Z: 4}, {Z: -2}} {
		f := core.YawForward(yawTowards(d), 0)
		want := d.Normalize()
		if math.Abs(f.X-want.X) > 1e-9 || math.Abs(f.Z-want.Z) > 1e-9 {
			t.Errorf("dir %+v: forward %+v", d, f)
		}
	}
}

func TestBotFiresAtTargetInRange(t *testing.T) {
	cfg := ConfigHard
	cfg.ThinkIntervalTicks = 1
	c := NewWithConfig(7, &cfg)

	self := core.EntityState{Position: core.Vec3{X: 0, Z: 0}, Grounded: true}
	target := core.EntityState{Position: core.Vec3{X: 0, Z: -10}, Grounded: true}
	d := c.Decide(View{Tick: 1, Self: self, Others: []Other{{Peer: 3, State: target}}})
	if d.Shot == nil {
		t.Fatal("no shot at target in range")
	}
	if d.Shot.Direction.Z >= 0 || math.Abs(d.Shot.Direction.Len()-1) > 1e-9 {
		t.Errorf("direction = %+v", d.Shot.Direction)
	}
	if math.Abs(float64(d.Input.Yaw)) > 1e-6 {
		t.Errorf("yaw = %v, want facing -Z", d.Input.Yaw)
	}

	// 冷却期内不再开火
	if d := c.Decide(View{Tick: 2, Self: self, Others: []Other{{Peer: 3, State: target}}}); d.Shot != nil {
		t.Error("fired during cooldown")
	}
}

func TestBotHoldsFireWhenFrozen(t *testing.T) {
	cfg := ConfigHard
	cfg.ThinkIntervalTicks = 1
	c := NewWithConfig(1, &cfg)
	d := c.Decide(View{
		Self:   core.EntityState{Grounded: true},
		Frozen: true,
		Others: []Other{{Peer: 2, State: core.EntityState{Position: core.Vec3{X: 5}}}},
	})
	if d.Shot != nil {
		t.Error("frozen bot fired")
	}
}

func TestBotReturnsFromEdge(t *testing.T) {
	c := NewWithConfig(1, &ConfigHard)
	self := core.EntityState{Position: core.Vec3{X: 48, Z: 0}, Grounded: true}
	var d Decision
	for i := 0; i < ConfigHard.ThinkIntervalTicks; i++ {
		d = c.Decide(View{Self: self})
	}
	f := core.YawForward(float64(d.Input.Yaw), 0)
	if d.Input.MoveY != 1 || f.X > -0.99 {
		t.Errorf("input %+v heads %+v, want toward center", d.Input, f)
	}
}

func TestBotDeterministic(t *testing.T) {
	a, b := New(42), New(42)
	self := core.EntityState{Grounded: true}
	for i := 0; i < 200; i++ {
		v := View{Tick: uint32(i), Self: self}
		if da, db := a.Decide(v), b.Decide(v); da.Input != db.Input {
			t.Fatalf("tick %d: %+v != %+v", i, da.Input, db.Input)
		}
	}
}
