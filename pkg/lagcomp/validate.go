package lagcomp

import (
	"math"

	"arenanet/pkg/core"
)

// SceneRaycaster 场景几何的射线检测（墙体遮挡），由外部物理实现
type SceneRaycaster interface {
	// Raycast 返回射线命中场景的距离
	Raycast(origin, dir core.Vec3, maxDist float64) (dist float64, hit bool)
}

// Config 判定参数
type Config struct {
	// MaxOriginOffset 开火起点相对（回滚后）射手眼睛位置允许的最大偏移
	MaxOriginOffset float64
	// MaxRange 射程
	MaxRange float64
	// HitRadius 命中球半径
	HitRadius float64
	// HitCenterHeight 命中球中心离脚底的高度
	HitCenterHeight float64
	// EyeHeight 射手视线高度
	EyeHeight float64
}

// DefaultConfig 默认判定参数
func DefaultConfig() Config {
	return Config{
		MaxOriginOffset: 1.0,
		MaxRange:        200,
		HitRadius:       core.PlayerRadius,
		HitCenterHeight: 0.9,
		EyeHeight:       core.PlayerEyeHeight,
	}
}

// Shot 一次开火请求
type Shot struct {
	Shooter     core.PeerID
	ClaimedTick uint32
	Origin      core.Vec3
	Direction   core.Vec3
}

// Result 判定结果
type Result struct {
	ValidatedTick  uint32
	Origin         core.Vec3 // 限制后的起点
	OriginClamped  bool
	Hit            bool
	Target         core.PeerID
	Point          core.Vec3
	Distance       float64
	BlockedByScene bool
}

// Validator 延迟补偿命中判定
type Validator struct {
	cfg   Config
	ring  *Ring
	scene SceneRaycaster
}

// NewValidator scene 可以为 nil
func NewValidator(cfg Config, ring *Ring, scene SceneRaycaster) *Validator {
	return &Validator{cfg: cfg, ring: ring, scene: scene}
}

// Ring 回滚历史
func (v *Validator) Ring() *Ring { return v.ring }

// Validate 把除射手外的实体回滚到声称的 tick 做命中检测，返回前无条件恢复现场。
// 该 tick 没有记录的实体保持当前位置
func (v *Validator) Validate(w *core.World, shot Shot, currentTick uint32) (res Result) {
	tick := v.ring.ClampTick(shot.ClaimedTick, currentTick)
	res.ValidatedTick = tick

	type saved struct {
		p   *core.Player
		pos core.Vec3
	}
	var restore []saved
	defer func() {
		for _, s := range restore {
			s.p.State.Position = s.pos
		}
	}()

	for _, id := range w.IDs() {
		if id == shot.Shooter {
			continue
		}
		p := w.Players[id]
		if hist, ok := v.ring.Lookup(tick, id); ok {
			restore = append(restore, saved{p: p, pos: p.State.Position})
			p.State.Position = hist
		}
	}

	// 起点限制在射手（回滚后）眼睛附近
	eye := core.Vec3{}
	if shooter := w.Player(shot.Shooter); shooter != nil {
		eye = shooter.State.Position
	}
	if hist, ok := v.ring.Lookup(tick, shot.Shooter); ok {
		eye = hist
	}
	eye.Y += v.cfg.EyeHeight
	res.Origin, res.OriginClamped = clampOrigin(shot.Origin, eye, v.cfg.MaxOriginOffset)

	dir := shot.Direction.Normalize()
	if dir.IsZero() || !dir.IsFinite() {
		return res
	}

	best := v.cfg.MaxRange
	for _, id := range w.IDs() {
		if id == shot.Shooter {
			continue
		}
		p := w.Players[id]
		center := p.State.Position
		center.Y += v.cfg.HitCenterHeight
		if d, ok := raySphere(res.Origin, dir, center, v.cfg.HitRadius); ok && d <= best {
			best = d
			res.Hit = true
			res.Target = id
		}
	}

	if v.scene != nil {
		if d, ok := v.scene.Raycast(res.Origin, dir, best); ok && d < best {
			best = d
			res.Hit = false
			res.Target = 0
			res.BlockedByScene = true
		}
	}

	if res.Hit || res.BlockedByScene {
		res.Distance = best
		res.Point = res.Origin.Add(dir.Scale(best))
	}
	return res
}

func clampOrigin(origin, anchor core.Vec3, maxOffset float64) (core.Vec3, bool) {
	if !origin.IsFinite() {
		return anchor, true
	}
	off := origin.Sub(anchor)
	l := off.Len()
	if l <= maxOffset {
		return origin, false
	}
	return anchor.Add(off.Scale(maxOffset / l)), true
}

// raySphere 返回射线与球的最近非负交点距离，dir 须为单位向量
func raySphere(origin, dir, center core.Vec3, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		// 起点在球内
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}
