package protocol

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	buf := make([]byte, p.Size())
	n, err := p.Encode(buf)
	if err != nil {
		t.Fatalf("encode %s: %v", PacketName(p), err)
	}
	if n != p.Size() {
		t.Fatalf("encode %s wrote %d bytes, want %d", PacketName(p), n, p.Size())
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode %s: %v", PacketName(p), err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	maxCmd := Command{
		Seq:     math.MaxUint32,
		Tick:    math.MaxUint32,
		Epoch:   math.MaxUint16,
		Buttons: math.MaxUint16,
		DT:      math.MaxFloat32,
		MoveX:   -1,
		MoveY:   1,
		Yaw:     -math.Pi,
		Pitch:   -math.SmallestNonzeroFloat32,
	}
	fullBundle := &InputBundle{}
	for i := 0; i < MaxBundleCommands; i++ {
		c := maxCmd
		c.Seq = uint32(i + 1)
		fullBundle.Commands = append(fullBundle.Commands, c)
	}

	row := PlayerState{
		Peer:             math.MaxUint32,
		Position:         Vec3{X: -1e6, Y: 0, Z: 3.5},
		Velocity:         Vec3{X: math.MaxFloat32, Y: -math.MaxFloat32},
		Yaw:              math.Pi,
		Pitch:            -1.5,
		Flags:            FlagGrounded | FlagFrozen,
		DelayTicks:       math.MaxUint8,
		MissingStreak:    math.MaxUint16,
		MaxMissingStreak: 7,
		RTTMs:            120,
		JitterMs:         9,
		LastProcessedSeq: math.MaxUint32,
		Dropped:          1,
		UsedBuffered:     2,
		UsedHoldLast:     3,
		Rejected:         4,
		Malformed:        5,
	}
	fullSnap := &Snapshot{ServerTick: math.MaxUint32}
	for i := 0; i < MaxSnapshotEntries; i++ {
		r := row
		r.Peer = uint32(i)
		fullSnap.Entries = append(fullSnap.Entries, r)
	}

	tests := []struct {
		name string
		p    Packet
	}{
		{"empty bundle", &InputBundle{}},
		{"one command", &InputBundle{Commands: []Command{{Seq: 1, Tick: 1, Epoch: 1, DT: 1.0 / 60}}}},
		{"full bundle", fullBundle},
		{"empty snapshot", &Snapshot{}},
		{"one row", &Snapshot{ServerTick: 1001, Entries: []PlayerState{row}}},
		{"full snapshot", fullSnap},
		{"fire", &Fire{FireID: math.MaxUint32, ClientTick: 7, Origin: Vec3{X: -1, Y: 1.6}, Direction: Vec3{Z: -1}, Weapon: 255}},
		{"fire result", &FireResult{FireID: 9, ServerTick: 10, ValidatedTick: 8, Hit: true, Target: 3, Point: Vec3{X: 1, Y: 2, Z: 3}}},
		{"fire visual", &FireVisual{Shooter: 2, ServerTick: math.MaxUint32, Origin: Vec3{Y: 1}, Direction: Vec3{X: 1}, Hit: true, Target: 4, Point: Vec3{X: -2}}},
		{"hello", NewHelloPacket("alice", 3, strings.Repeat("t", MaxTokenLen))},
		{"hello empty", NewControl(&Hello{})},
		{"welcome", NewControl(&Welcome{Peer: 2, ServerTick: 1000, TickRate: 60, SnapshotRate: 20, InputDelay: 2, Redundancy: 3, Resumed: true, Token: "abc.def.ghi"})},
		{"reject", NewRejectPacket(ReasonVersion)},
		{"goodbye", NewControl(&Goodbye{Reason: ReasonShutdown})},
		{"ping", NewPingPacket(math.MaxUint32, math.MaxUint64, 5)},
		{"pong", NewControl(&Pong{ID: 1, EchoUs: 123456789, Tick: 1000})},
		{"delay update", NewControl(&DelayUpdate{DelayTicks: 8})},
		{"resync hint", NewControl(&ResyncHint{ServerTick: 42})},
		{"match config", NewControl(&MatchConfig{Mode: 1, MaxPlayers: 16, ScoreLimit: 50, RoundTimeSec: 300, RespawnDelayTicks: 180, Flags: math.MaxUint32})},
		{"match state", NewControl(&MatchState{Phase: PhasePlaying, Round: 2, RemainingTicks: 600, Scores: []ScoreEntry{{Peer: 1, Score: -5, Team: 1}, {Peer: 2, Score: math.MaxInt16}}})},
		{"tag full", NewControl(&TagStateFull{ServerTick: 10, ItPeer: 2, Entries: []TagEntry{{Peer: 2, Tagged: true, TagCount: 3, ImmuneUntil: 99}}})},
		{"tag delta", NewControl(&TagStateDelta{ServerTick: 11, ItPeer: 3, Entry: TagEntry{Peer: 3, Tagged: true}})},
		{"inventory", NewControl(&InventoryState{Peer: 2, Active: 1, Slots: []InventorySlot{{Item: 1, Count: 30}, {Item: 2, Count: 1}}})},
		{"pickups", NewControl(&PickupState{Pickups: make([]Pickup, MaxPickups)})},
		{"freeze", NewControl(&FreezeState{Peer: 5, Frozen: true, UntilTick: 1234})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.p)
			if !reflect.DeepEqual(got, tt.p) {
				t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, tt.p)
			}
		})
	}
}

func TestEncodeTooMany(t *testing.T) {
	b := &InputBundle{Commands: make([]Command, MaxBundleCommands+1)}
	if _, err := b.Encode(make([]byte, InputBundleSize)); !errors.Is(err, ErrTooMany) {
		t.Errorf("bundle err = %v", err)
	}
	s := &Snapshot{Entries: make([]PlayerState, MaxSnapshotEntries+1)}
	if _, err := s.Encode(make([]byte, SnapshotSize)); !errors.Is(err, ErrTooMany) {
		t.Errorf("snapshot err = %v", err)
	}
	h := NewControl(&Hello{Token: strings.Repeat("x", MaxTokenLen+1)})
	if _, err := h.Encode(make([]byte, ControlSize)); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("hello err = %v", err)
	}
}

func TestEncodeShortBuffer(t *testing.T) {
	packets := []Packet{&InputBundle{}, &Snapshot{}, NewControl(&Goodbye{}), &Fire{}, &FireResult{}, &FireVisual{}}
	for _, p := range packets {
		if _, err := p.Encode(make([]byte, p.Size()-1)); !errors.Is(err, ErrShortBuffer) {
			t.Errorf("%s: err = %v", PacketName(p), err)
		}
	}
}

func TestDecodeFailsClosed(t *testing.T) {
	valid, err := Marshal(&Snapshot{ServerTick: 5})
	if err != nil {
		t.Fatal(err)
	}

	badCount := append([]byte(nil), valid...)
	badCount[5] = MaxSnapshotEntries + 1

	control, _ := Marshal(NewControl(&Goodbye{}))
	badSubtype := append([]byte(nil), control...)
	badSubtype[1] = 200

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"unknown tag", []byte{99, 0, 0}, ErrBadTag},
		{"truncated snapshot", valid[:len(valid)-1], ErrTruncated},
		{"truncated control", control[:10], ErrTruncated},
		{"bad count", badCount, ErrBadCount},
		{"bad subtype", badSubtype, ErrBadSubtype},
		{"tag only", []byte{TagInputBundle}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Errorf("partial result %+v", p)
			}
		})
	}
}

func TestDecodeWrongTag(t *testing.T) {
	data, _ := Marshal(&Fire{})
	if _, err := DecodeSnapshot(data); !errors.Is(err, ErrBadTag) {
		t.Errorf("err = %v, want ErrBadTag", err)
	}
}

func TestCheckRoute(t *testing.T) {
	tests := []struct {
		tag  byte
		rel  Reliability
		want error
	}{
		{TagInputBundle, Unreliable, nil},
		{TagInputBundle, Reliable, ErrInputOnReliable},
		{TagSnapshot, Reliable, ErrInputOnReliable},
		{TagFire, Reliable, ErrInputOnReliable},
		{TagControl, Reliable, nil},
		{TagControl, Unreliable, ErrControlUnreliable},
	}
	for _, tt := range tests {
		if err := CheckRoute(tt.tag, tt.rel); !errors.Is(err, tt.want) {
			t.Errorf("CheckRoute(%d, %d) = %v, want %v", tt.tag, tt.rel, err, tt.want)
		}
	}

	if _, err := EncodeFor(Reliable, &InputBundle{}); !errors.Is(err, ErrInputOnReliable) {
		t.Errorf("EncodeFor input on reliable = %v", err)
	}
	if ch, rel := RouteFor(TagControl); ch != ChannelControl || rel != Reliable {
		t.Errorf("RouteFor(control) = %v, %v", ch, rel)
	}
}

func TestUnusedSlotsZeroed(t *testing.T) {
	buf := make([]byte, InputBundleSize)
	for i := range buf {
		buf[i] = 0xff
	}
	b := &InputBundle{Commands: []Command{{Seq: 1}}}
	if _, err := b.Encode(buf); err != nil {
		t.Fatal(err)
	}
	for i := 2 + CommandSize; i < InputBundleSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, buf[i])
		}
	}
}

func TestNameTruncated(t *testing.T) {
	p := roundTrip(t, NewHelloPacket(strings.Repeat("n", MaxNameLen+5), 1, ""))
	h := p.(*Control).Body.(*Hello)
	if len(h.Name) != MaxNameLen {
		t.Errorf("name len = %d, want %d", len(h.Name), MaxNameLen)
	}
}

func FuzzDecode(f *testing.F) {
	seeds := []Packet{
		&InputBundle{Commands: []Command{{Seq: 1, Tick: 2, Epoch: 1}}},
		&Snapshot{ServerTick: 3, Entries: []PlayerState{{Peer: 1}}},
		NewHelloPacket("bot", 1, "tok"),
		NewControl(&MatchState{Scores: []ScoreEntry{{Peer: 1}}}),
		NewControl(&PickupState{Pickups: []Pickup{{ID: 1}}}),
		&Fire{FireID: 1},
		&FireResult{FireID: 1},
		&FireVisual{Shooter: 1},
	}
	for _, p := range seeds {
		b, err := Marshal(p)
		if err != nil {
			f.Fatal(err)
		}
		f.Add(b)
	}
	f.Add([]byte{})
	f.Add([]byte{TagControl, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := Decode(data)
		if err != nil {
			if p != nil {
				t.Fatalf("partial result with error %v", err)
			}
			return
		}
		// 解码成功的包必须能重新编码
		if _, err := Marshal(p); err != nil {
			t.Fatalf("re-encode %s: %v", PacketName(p), err)
		}
	})
}
