package protocol

// 开火相关包大小
const (
	FireSize       = 34
	FireResultSize = 30
	FireVisualSize = 50
)

// Fire 客户端开火请求，ClientTick 为客户端看到的渲染 tick
type Fire struct {
	FireID     uint32
	ClientTick uint32
	Origin     Vec3
	Direction  Vec3
	Weapon     uint8
}

func (f *Fire) Tag() byte { return TagFire }
func (f *Fire) Size() int { return FireSize }

func (f *Fire) Encode(dst []byte) (int, error) {
	if err := checkDst(dst, FireSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagFire)
	w.u32(f.FireID)
	w.u32(f.ClientTick)
	w.vec(f.Origin)
	w.vec(f.Direction)
	w.u8(f.Weapon)
	return FireSize, nil
}

// DecodeFire 解码开火请求
func DecodeFire(data []byte) (*Fire, error) {
	if err := header(data, TagFire, FireSize); err != nil {
		return nil, err
	}
	r := reader{buf: data, off: 1}
	return &Fire{
		FireID:     r.u32(),
		ClientTick: r.u32(),
		Origin:     r.vec(),
		Direction:  r.vec(),
		Weapon:     r.u8(),
	}, nil
}

// FireResult 服务器对开火者的判定结果
type FireResult struct {
	FireID        uint32
	ServerTick    uint32
	ValidatedTick uint32
	Hit           bool
	Target        uint32
	Point         Vec3
}

func (f *FireResult) Tag() byte { return TagFireResult }
func (f *FireResult) Size() int { return FireResultSize }

func (f *FireResult) Encode(dst []byte) (int, error) {
	if err := checkDst(dst, FireResultSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagFireResult)
	w.u32(f.FireID)
	w.u32(f.ServerTick)
	w.u32(f.ValidatedTick)
	w.bool(f.Hit)
	w.u32(f.Target)
	w.vec(f.Point)
	return FireResultSize, nil
}

// DecodeFireResult 解码开火结果
func DecodeFireResult(data []byte) (*FireResult, error) {
	if err := header(data, TagFireResult, FireResultSize); err != nil {
		return nil, err
	}
	r := reader{buf: data, off: 1}
	return &FireResult{
		FireID:        r.u32(),
		ServerTick:    r.u32(),
		ValidatedTick: r.u32(),
		Hit:           r.bool(),
		Target:        r.u32(),
		Point:         r.vec(),
	}, nil
}

// FireVisual 广播给其他玩家的开火表现
type FireVisual struct {
	Shooter    uint32
	ServerTick uint32
	Origin     Vec3
	Direction  Vec3
	Hit        bool
	Target     uint32
	Point      Vec3
}

func (f *FireVisual) Tag() byte { return TagFireVisual }
func (f *FireVisual) Size() int { return FireVisualSize }

func (f *FireVisual) Encode(dst []byte) (int, error) {
	if err := checkDst(dst, FireVisualSize); err != nil {
		return 0, err
	}
	w := writer{buf: dst}
	w.u8(TagFireVisual)
	w.u32(f.Shooter)
	w.u32(f.ServerTick)
	w.vec(f.Origin)
	w.vec(f.Direction)
	w.bool(f.Hit)
	w.u32(f.Target)
	w.vec(f.Point)
	return FireVisualSize, nil
}

// DecodeFireVisual 解码开火表现
func DecodeFireVisual(data []byte) (*FireVisual, error) {
	if err := header(data, TagFireVisual, FireVisualSize); err != nil {
		return nil, err
	}
	r := reader{buf: data, off: 1}
	return &FireVisual{
		Shooter:    r.u32(),
		ServerTick: r.u32(),
		Origin:     r.vec(),
		Direction:  r.vec(),
		Hit:        r.bool(),
		Target:     r.u32(),
		Point:      r.vec(),
	}, nil
}
