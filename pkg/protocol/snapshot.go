package protocol

// 实体状态标志位
const (
	FlagGrounded uint8 = 1 << iota
	FlagFrozen
)

// PlayerState 快照中单个实体的一行，72 字节
//
//	0  peer              u32
//	4  position          3×f32
//	16 velocity          3×f32
//	28 yaw               f32
//	32 pitch             f32
//	36 flags             u8
//	37 delayTicks        u8
//	38 missingStreak     u16
//	40 maxMissingStreak  u16
//	42 rttMs             u16
//	44 jitterMs          u16
//	46 (reserved)        u16
//	48 lastProcessedSeq  u32
//	52 dropped           u32
//	56 usedBuffered      u32
//	60 usedHoldLast      u32
//	64 rejected          u32
//	68 malformed         u32
type PlayerState struct {
	Peer             uint32
	Position         Vec3
	Velocity         Vec3
	Yaw              float32
	Pitch            float32
	Flags            uint8
	DelayTicks       uint8
	MissingStreak    uint16
	MaxMissingStreak uint16
	RTTMs            uint16
	JitterMs         uint16
	LastProcessedSeq uint32
	Dropped          uint32
	UsedBuffered     uint32
	UsedHoldLast     uint32
	Rejected         uint32
	Malformed        uint32
}

// Grounded 是否着地
func (p PlayerState) Grounded() bool { return p.Flags&FlagGrounded != 0 }

// Frozen 是否被冻结
func (p PlayerState) Frozen() bool { return p.Flags&FlagFrozen != 0 }

// PlayerStateSize 单行大小
const PlayerStateSize = 72

// SnapshotSize 快照大小：tag + tick + count + 16 行
const SnapshotSize = 6 + MaxSnapshotEntries*PlayerStateSize

// Snapshot 服务器在某个 tick 的权威状态广播
type Snapshot struct {
	ServerTick uint32
	Entries    []PlayerState
}

func (s *Snapshot) Tag() byte { return TagSnapshot }
func (s *Snapshot) Size() int { return SnapshotSize }

// Find 查找某个实体的行
func (s *Snapshot) Find(peer uint32) (PlayerState, bool) {
	for _, e := range s.Entries {
		if e.Peer == peer {
			return e, true
		}
	}
	return PlayerState{}, false
}

// Encode 编码，超过 MaxSnapshotEntries 返回 ErrTooMany
func (s *Snapshot) Encode(dst []byte) (int, error) {
	if len(s.Entries) > MaxSnapshotEntries {
		return 0, ErrTooMany
	}
	if err := checkDst(dst, SnapshotSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagSnapshot)
	w.u32(s.ServerTick)
	w.u8(uint8(len(s.Entries)))
	for _, e := range s.Entries {
		w.u32(e.Peer)
		w.vec(e.Position)
		w.vec(e.Velocity)
		w.f32(e.Yaw)
		w.f32(e.Pitch)
		w.u8(e.Flags)
		w.u8(e.DelayTicks)
		w.u16(e.MissingStreak)
		w.u16(e.MaxMissingStreak)
		w.u16(e.RTTMs)
		w.u16(e.JitterMs)
		w.u16(0)
		w.u32(e.LastProcessedSeq)
		w.u32(e.Dropped)
		w.u32(e.UsedBuffered)
		w.u32(e.UsedHoldLast)
		w.u32(e.Rejected)
		w.u32(e.Malformed)
	}
	w.zero((MaxSnapshotEntries - len(s.Entries)) * PlayerStateSize)
	return SnapshotSize, nil
}

// DecodeSnapshot 解码快照
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if err := header(data, TagSnapshot, SnapshotSize); err != nil {
		return nil, err
	}
	r := reader{buf: data, off: 1}
	s := &Snapshot{ServerTick: r.u32()}
	n := int(r.u8())
	if n > MaxSnapshotEntries {
		return nil, ErrBadCount
	}
	if n > 0 {
		s.Entries = make([]PlayerState, n)
	}
	for i := range s.Entries {
		e := &s.Entries[i]
		e.Peer = r.u32()
		e.Position = r.vec()
		e.Velocity = r.vec()
		e.Yaw = r.f32()
		e.Pitch = r.f32()
		e.Flags = r.u8()
		e.DelayTicks = r.u8()
		e.MissingStreak = r.u16()
		e.MaxMissingStreak = r.u16()
		e.RTTMs = r.u16()
		e.JitterMs = r.u16()
		r.skip(2)
		e.LastProcessedSeq = r.u32()
		e.Dropped = r.u32()
		e.UsedBuffered = r.u32()
		e.UsedHoldLast = r.u32()
		e.Rejected = r.u32()
		e.Malformed = r.u32()
	}
	return s, nil
}
