package protocol

// ControlType 控制包子类型
type ControlType uint8

const (
	ControlHello ControlType = 1 + iota
	ControlWelcome
	ControlReject
	ControlGoodbye
	ControlPing
	ControlPong
	ControlDelayUpdate
	ControlResyncHint
	ControlMatchConfig
	ControlMatchState
	ControlTagStateFull
	ControlTagStateDelta
	ControlInventoryState
	ControlPickupState
	ControlFreezeState
)

var controlNames = map[ControlType]string{
	ControlHello:          "hello",
	ControlWelcome:        "welcome",
	ControlReject:         "reject",
	ControlGoodbye:        "goodbye",
	ControlPing:           "ping",
	ControlPong:           "pong",
	ControlDelayUpdate:    "delay_update",
	ControlResyncHint:     "resync_hint",
	ControlMatchConfig:    "match_config",
	ControlMatchState:     "match_state",
	ControlTagStateFull:   "tag_state_full",
	ControlTagStateDelta:  "tag_state_delta",
	ControlInventoryState: "inventory_state",
	ControlPickupState:    "pickup_state",
	ControlFreezeState:    "freeze_state",
}

func (t ControlType) String() string {
	if s, ok := controlNames[t]; ok {
		return s
	}
	return "unknown"
}

// 控制包的定长载荷区，所有子类型补零到同一大小
const (
	ControlBodySize = 336
	ControlSize     = 2 + ControlBodySize
)

// 定长字符串槽位
const (
	MaxNameLen  = 16
	MaxTokenLen = 256
)

// 数组槽位
const (
	MaxScoreEntries = 16
	MaxTagEntries   = 16
	MaxInventory    = 8
	MaxPickups      = 16
)

// ControlBody 控制包载荷
type ControlBody interface {
	Type() ControlType
	encode(w *writer) error
}

// Control 可靠通道上的控制包：tag + subtype + 定长载荷
type Control struct {
	Body ControlBody
}

func (c *Control) Tag() byte { return TagControl }
func (c *Control) Size() int { return ControlSize }

// Encode 编码
func (c *Control) Encode(dst []byte) (int, error) {
	if c.Body == nil {
		return 0, ErrBadSubtype
	}
	if err := checkDst(dst, ControlSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagControl)
	w.u8(uint8(c.Body.Type()))
	clear(dst[2:ControlSize])
	if err := c.Body.encode(&w); err != nil {
		return 0, err
	}
	return ControlSize, nil
}

// DecodeControl 解码控制包
func DecodeControl(data []byte) (*Control, error) {
	if err := header(data, TagControl, ControlSize); err != nil {
		return nil, err
	}
	r := reader{buf: data[:ControlSize], off: 1}
	t := ControlType(r.u8())
	dec, ok := controlDecoders[t]
	if !ok {
		return nil, ErrBadSubtype
	}
	body, err := dec(&r)
	if err != nil {
		return nil, err
	}
	return &Control{Body: body}, nil
}

var controlDecoders = map[ControlType]func(r *reader) (ControlBody, error){
	ControlHello:          decodeHello,
	ControlWelcome:        decodeWelcome,
	ControlReject:         decodeReject,
	ControlGoodbye:        decodeGoodbye,
	ControlPing:           decodePing,
	ControlPong:           decodePong,
	ControlDelayUpdate:    decodeDelayUpdate,
	ControlResyncHint:     decodeResyncHint,
	ControlMatchConfig:    decodeMatchConfig,
	ControlMatchState:     decodeMatchState,
	ControlTagStateFull:   decodeTagStateFull,
	ControlTagStateDelta:  decodeTagStateDelta,
	ControlInventoryState: decodeInventoryState,
	ControlPickupState:    decodePickupState,
	ControlFreezeState:    decodeFreezeState,
}

// ========== 握手 ==========

// Hello 客户端握手请求，可携带上次会话的重连令牌
type Hello struct {
	Version uint16
	Epoch   uint16
	Name    string
	Token   string
}

func (*Hello) Type() ControlType { return ControlHello }

func (h *Hello) encode(w *writer) error {
	if len(h.Token) > MaxTokenLen {
		return ErrTokenTooLong
	}
	w.u16(h.Version)
	w.u16(h.Epoch)
	w.fixed([]byte(h.Name), MaxNameLen)
	w.u16(uint16(len(h.Token)))
	w.fixed([]byte(h.Token), MaxTokenLen)
	return nil
}

func decodeHello(r *reader) (ControlBody, error) {
	h := &Hello{Version: r.u16(), Epoch: r.u16()}
	h.Name = cstring(r.fixed(MaxNameLen))
	n := int(r.u16())
	if n > MaxTokenLen {
		return nil, ErrBadCount
	}
	h.Token = string(r.fixed(MaxTokenLen)[:n])
	return h, nil
}

// Welcome 服务器握手应答
type Welcome struct {
	Peer         uint32
	ServerTick   uint32
	TickRate     uint16
	SnapshotRate uint16
	InputDelay   uint8
	Redundancy   uint8
	Resumed      bool
	Token        string
}

func (*Welcome) Type() ControlType { return ControlWelcome }

func (m *Welcome) encode(w *writer) error {
	if len(m.Token) > MaxTokenLen {
		return ErrTokenTooLong
	}
	w.u32(m.Peer)
	w.u32(m.ServerTick)
	w.u16(m.TickRate)
	w.u16(m.SnapshotRate)
	w.u8(m.InputDelay)
	w.u8(m.Redundancy)
	w.bool(m.Resumed)
	w.u8(0)
	w.u16(uint16(len(m.Token)))
	w.fixed([]byte(m.Token), MaxTokenLen)
	return nil
}

func decodeWelcome(r *reader) (ControlBody, error) {
	m := &Welcome{
		Peer:         r.u32(),
		ServerTick:   r.u32(),
		TickRate:     r.u16(),
		SnapshotRate: r.u16(),
		InputDelay:   r.u8(),
		Redundancy:   r.u8(),
		Resumed:      r.bool(),
	}
	r.skip(1)
	n := int(r.u16())
	if n > MaxTokenLen {
		return nil, ErrBadCount
	}
	m.Token = string(r.fixed(MaxTokenLen)[:n])
	return m, nil
}

// 拒绝原因
const (
	ReasonVersion uint8 = 1 + iota
	ReasonFull
	ReasonBadToken
	ReasonShutdown
	ReasonKicked
)

// Reject 服务器拒绝握手
type Reject struct {
	Reason        uint8
	ServerVersion uint16
}

func (*Reject) Type() ControlType { return ControlReject }

func (m *Reject) encode(w *writer) error {
	w.u8(m.Reason)
	w.u16(m.ServerVersion)
	return nil
}

func decodeReject(r *reader) (ControlBody, error) {
	return &Reject{Reason: r.u8(), ServerVersion: r.u16()}, nil
}

// Goodbye 主动离开
type Goodbye struct {
	Reason uint8
}

func (*Goodbye) Type() ControlType { return ControlGoodbye }

func (m *Goodbye) encode(w *writer) error {
	w.u8(m.Reason)
	return nil
}

func decodeGoodbye(r *reader) (ControlBody, error) {
	return &Goodbye{Reason: r.u8()}, nil
}

// ========== 时钟与延迟 ==========

// Ping 往返测量请求，SentUs 为发送方本地时间（微秒）
type Ping struct {
	ID     uint32
	SentUs uint64
	Tick   uint32
}

func (*Ping) Type() ControlType { return ControlPing }

func (m *Ping) encode(w *writer) error {
	w.u32(m.ID)
	w.u64(m.SentUs)
	w.u32(m.Tick)
	return nil
}

func decodePing(r *reader) (ControlBody, error) {
	return &Ping{ID: r.u32(), SentUs: r.u64(), Tick: r.u32()}, nil
}

// Pong 原样回显 Ping 的 ID 与时间，并附带应答方当前 tick
type Pong struct {
	ID     uint32
	EchoUs uint64
	Tick   uint32
}

func (*Pong) Type() ControlType { return ControlPong }

func (m *Pong) encode(w *writer) error {
	w.u32(m.ID)
	w.u64(m.EchoUs)
	w.u32(m.Tick)
	return nil
}

func decodePong(r *reader) (ControlBody, error) {
	return &Pong{ID: r.u32(), EchoUs: r.u64(), Tick: r.u32()}, nil
}

// DelayUpdate 服务器下发的输入延迟（tick）
type DelayUpdate struct {
	DelayTicks uint8
}

func (*DelayUpdate) Type() ControlType { return ControlDelayUpdate }

func (m *DelayUpdate) encode(w *writer) error {
	w.u8(m.DelayTicks)
	return nil
}

func decodeDelayUpdate(r *reader) (ControlBody, error) {
	return &DelayUpdate{DelayTicks: r.u8()}, nil
}

// ResyncHint 要求客户端立即按 ServerTick 重新对时
type ResyncHint struct {
	ServerTick uint32
}

func (*ResyncHint) Type() ControlType { return ControlResyncHint }

func (m *ResyncHint) encode(w *writer) error {
	w.u32(m.ServerTick)
	return nil
}

func decodeResyncHint(r *reader) (ControlBody, error) {
	return &ResyncHint{ServerTick: r.u32()}, nil
}

// ========== 玩法状态 ==========

// MatchConfig 对局配置
type MatchConfig struct {
	Mode              uint8
	MaxPlayers        uint8
	ScoreLimit        uint16
	RoundTimeSec      uint16
	RespawnDelayTicks uint16
	Flags             uint32
}

func (*MatchConfig) Type() ControlType { return ControlMatchConfig }

func (m *MatchConfig) encode(w *writer) error {
	w.u8(m.Mode)
	w.u8(m.MaxPlayers)
	w.u16(m.ScoreLimit)
	w.u16(m.RoundTimeSec)
	w.u16(m.RespawnDelayTicks)
	w.u32(m.Flags)
	return nil
}

func decodeMatchConfig(r *reader) (ControlBody, error) {
	return &MatchConfig{
		Mode:              r.u8(),
		MaxPlayers:        r.u8(),
		ScoreLimit:        r.u16(),
		RoundTimeSec:      r.u16(),
		RespawnDelayTicks: r.u16(),
		Flags:             r.u32(),
	}, nil
}

// ScoreEntry 计分行，8 字节
type ScoreEntry struct {
	Peer  uint32
	Score int16
	Team  uint8
}

// 对局阶段
const (
	PhaseWaiting uint8 = iota
	PhaseCountdown
	PhasePlaying
	PhaseRoundOver
)

// MatchState 对局进度与计分
type MatchState struct {
	Phase          uint8
	Round          uint8
	RemainingTicks uint32
	Scores         []ScoreEntry
}

func (*MatchState) Type() ControlType { return ControlMatchState }

func (m *MatchState) encode(w *writer) error {
	if len(m.Scores) > MaxScoreEntries {
		return ErrTooMany
	}
	w.u8(m.Phase)
	w.u8(m.Round)
	w.u32(m.RemainingTicks)
	w.u8(uint8(len(m.Scores)))
	for _, s := range m.Scores {
		w.u32(s.Peer)
		w.u16(uint16(s.Score))
		w.u8(s.Team)
		w.u8(0)
	}
	return nil
}

func decodeMatchState(r *reader) (ControlBody, error) {
	m := &MatchState{Phase: r.u8(), Round: r.u8(), RemainingTicks: r.u32()}
	n := int(r.u8())
	if n > MaxScoreEntries {
		return nil, ErrBadCount
	}
	for i := 0; i < n; i++ {
		s := ScoreEntry{Peer: r.u32(), Score: int16(r.u16()), Team: r.u8()}
		r.skip(1)
		m.Scores = append(m.Scores, s)
	}
	return m, nil
}

// TagEntry 抓人模式中单个玩家的状态，12 字节
type TagEntry struct {
	Peer        uint32
	Tagged      bool
	TagCount    uint16
	ImmuneUntil uint32
}

func (w *writer) tagEntry(e TagEntry) {
	w.u32(e.Peer)
	w.bool(e.Tagged)
	w.u8(0)
	w.u16(e.TagCount)
	w.u32(e.ImmuneUntil)
}

func (r *reader) tagEntry() TagEntry {
	e := TagEntry{Peer: r.u32(), Tagged: r.bool()}
	r.skip(1)
	e.TagCount = r.u16()
	e.ImmuneUntil = r.u32()
	return e
}

// TagStateFull 抓人状态全量
type TagStateFull struct {
	ServerTick uint32
	ItPeer     uint32
	Entries    []TagEntry
}

func (*TagStateFull) Type() ControlType { return ControlTagStateFull }

func (m *TagStateFull) encode(w *writer) error {
	if len(m.Entries) > MaxTagEntries {
		return ErrTooMany
	}
	w.u32(m.ServerTick)
	w.u32(m.ItPeer)
	w.u8(uint8(len(m.Entries)))
	for _, e := range m.Entries {
		w.tagEntry(e)
	}
	return nil
}

func decodeTagStateFull(r *reader) (ControlBody, error) {
	m := &TagStateFull{ServerTick: r.u32(), ItPeer: r.u32()}
	n := int(r.u8())
	if n > MaxTagEntries {
		return nil, ErrBadCount
	}
	for i := 0; i < n; i++ {
		m.Entries = append(m.Entries, r.tagEntry())
	}
	return m, nil
}

// TagStateDelta 单个玩家抓人状态变化
type TagStateDelta struct {
	ServerTick uint32
	ItPeer     uint32
	Entry      TagEntry
}

func (*TagStateDelta) Type() ControlType { return ControlTagStateDelta }

func (m *TagStateDelta) encode(w *writer) error {
	w.u32(m.ServerTick)
	w.u32(m.ItPeer)
	w.tagEntry(m.Entry)
	return nil
}

func decodeTagStateDelta(r *reader) (ControlBody, error) {
	m := &TagStateDelta{ServerTick: r.u32(), ItPeer: r.u32()}
	m.Entry = r.tagEntry()
	return m, nil
}

// InventorySlot 物品栏槽位
type InventorySlot struct {
	Item  uint16
	Count uint16
}

// InventoryState 某玩家的物品栏
type InventoryState struct {
	Peer   uint32
	Active uint8
	Slots  []InventorySlot
}

func (*InventoryState) Type() ControlType { return ControlInventoryState }

func (m *InventoryState) encode(w *writer) error {
	if len(m.Slots) > MaxInventory {
		return ErrTooMany
	}
	w.u32(m.Peer)
	w.u8(m.Active)
	w.u8(uint8(len(m.Slots)))
	for _, s := range m.Slots {
		w.u16(s.Item)
		w.u16(s.Count)
	}
	return nil
}

func decodeInventoryState(r *reader) (ControlBody, error) {
	m := &InventoryState{Peer: r.u32(), Active: r.u8()}
	n := int(r.u8())
	if n > MaxInventory {
		return nil, ErrBadCount
	}
	for i := 0; i < n; i++ {
		m.Slots = append(m.Slots, InventorySlot{Item: r.u16(), Count: r.u16()})
	}
	return m, nil
}

// Pickup 地图拾取物，20 字节
type Pickup struct {
	ID          uint16
	Kind        uint8
	Active      bool
	RespawnTick uint32
	Position    Vec3
}

// PickupState 拾取物全量
type PickupState struct {
	Pickups []Pickup
}

func (*PickupState) Type() ControlType { return ControlPickupState }

func (m *PickupState) encode(w *writer) error {
	if len(m.Pickups) > MaxPickups {
		return ErrTooMany
	}
	w.u8(uint8(len(m.Pickups)))
	for _, p := range m.Pickups {
		w.u16(p.ID)
		w.u8(p.Kind)
		w.bool(p.Active)
		w.u32(p.RespawnTick)
		w.vec(p.Position)
	}
	return nil
}

func decodePickupState(r *reader) (ControlBody, error) {
	m := &PickupState{}
	n := int(r.u8())
	if n > MaxPickups {
		return nil, ErrBadCount
	}
	for i := 0; i < n; i++ {
		m.Pickups = append(m.Pickups, Pickup{
			ID:          r.u16(),
			Kind:        r.u8(),
			Active:      r.bool(),
			RespawnTick: r.u32(),
			Position:    r.vec(),
		})
	}
	return m, nil
}

// FreezeState 冻结状态变化
type FreezeState struct {
	Peer      uint32
	Frozen    bool
	UntilTick uint32
}

func (*FreezeState) Type() ControlType { return ControlFreezeState }

func (m *FreezeState) encode(w *writer) error {
	w.u32(m.Peer)
	w.bool(m.Frozen)
	w.u32(m.UntilTick)
	return nil
}

func decodeFreezeState(r *reader) (ControlBody, error) {
	return &FreezeState{Peer: r.u32(), Frozen: r.bool(), UntilTick: r.u32()}, nil
}
