package protocol

// Command 线上的单条输入指令，32 字节定长槽位
//
//	0  seq      u32
//	4  tick     u32
//	8  epoch    u16
//	10 buttons  u16
//	12 dt       f32
//	16 moveX    f32
//	20 moveY    f32
//	24 yaw      f32
//	28 pitch    f32
type Command struct {
	Seq     uint32
	Tick    uint32
	Epoch   uint16
	Buttons uint16
	DT      float32
	MoveX   float32
	MoveY   float32
	Yaw     float32
	Pitch   float32
}

// CommandSize 单条指令的槽位大小
const CommandSize = 32

// InputBundleSize 冗余输入包大小：tag + count + 8 个槽位
const InputBundleSize = 2 + MaxBundleCommands*CommandSize

func (w *writer) command(c Command) {
	w.u32(c.Seq)
	w.u32(c.Tick)
	w.u16(c.Epoch)
	w.u16(c.Buttons)
	w.f32(c.DT)
	w.f32(c.MoveX)
	w.f32(c.MoveY)
	w.f32(c.Yaw)
	w.f32(c.Pitch)
}

func (r *reader) command() Command {
	return Command{
		Seq:     r.u32(),
		Tick:    r.u32(),
		Epoch:   r.u16(),
		Buttons: r.u16(),
		DT:      r.f32(),
		MoveX:   r.f32(),
		MoveY:   r.f32(),
		Yaw:     r.f32(),
		Pitch:   r.f32(),
	}
}

// InputBundle 客户端每 tick 发送的冗余输入包，按 seq 升序携带最近若干条指令
type InputBundle struct {
	Commands []Command
}

func (b *InputBundle) Tag() byte { return TagInputBundle }
func (b *InputBundle) Size() int { return InputBundleSize }

// Encode 编码，超过 MaxBundleCommands 返回 ErrTooMany
func (b *InputBundle) Encode(dst []byte) (int, error) {
	if len(b.Commands) > MaxBundleCommands {
		return 0, ErrTooMany
	}
	if err := checkDst(dst, InputBundleSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagInputBundle)
	w.u8(uint8(len(b.Commands)))
	for _, c := range b.Commands {
		w.command(c)
	}
	w.zero((MaxBundleCommands - len(b.Commands)) * CommandSize)
	return InputBundleSize, nil
}

// DecodeInputBundle 解码冗余输入包
func DecodeInputBundle(data []byte) (*InputBundle, error) {
	if err := header(data, TagInputBundle, InputBundleSize); err != nil {
		return nil, err
	}
	r := reader{buf: data, off: 1}
	n := int(r.u8())
	if n > MaxBundleCommands {
		return nil, ErrBadCount
	}
	b := &InputBundle{}
	if n > 0 {
		b.Commands = make([]Command, n)
	}
	for i := range b.Commands {
		b.Commands[i] = r.command()
	}
	return b, nil
}
