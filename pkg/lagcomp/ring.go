// Package lagcomp 保存最近若干 tick 的实体位置，并在判定开火时临时回滚世界。
package lagcomp

import "arenanet/pkg/core"

// 默认参数
const (
	DefaultHistoryTicks = 64 // 约 1 秒（60Hz）
	MaxFrameEntities    = 32
)

type entry struct {
	peer core.PeerID
	pos  core.Vec3
}

// Frame 某个 tick 的全部实体位置
type Frame struct {
	Tick    uint32
	count   int
	entries [MaxFrameEntities]entry
}

// Position 查找实体在该帧的位置
func (f *Frame) Position(peer core.PeerID) (core.Vec3, bool) {
	for i := 0; i < f.count; i++ {
		if f.entries[i].peer == peer {
			return f.entries[i].pos, true
		}
	}
	return core.Vec3{}, false
}

// Ring 定长回滚历史，按 tick % size 存放
type Ring struct {
	frames []Frame
	valid  []bool
	newest uint32
	has    bool
}

// NewRing 创建回滚历史，size 为保留的 tick 数
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultHistoryTicks
	}
	return &Ring{frames: make([]Frame, size), valid: make([]bool, size)}
}

// Size 容量
func (r *Ring) Size() int { return len(r.frames) }

// Record 记录某个 tick 的世界快照（按 ID 升序，超过容量的实体忽略）
func (r *Ring) Record(tick uint32, w *core.World) {
	i := int(tick % uint32(len(r.frames)))
	f := &r.frames[i]
	f.Tick = tick
	f.count = 0
	for _, id := range w.IDs() {
		if f.count == MaxFrameEntities {
			break
		}
		f.entries[f.count] = entry{peer: id, pos: w.Players[id].State.Position}
		f.count++
	}
	r.valid[i] = true
	if !r.has || tick > r.newest {
		r.newest = tick
		r.has = true
	}
}

// Frame 返回精确 tick 的帧
func (r *Ring) Frame(tick uint32) (*Frame, bool) {
	if !r.has || tick > r.newest {
		return nil, false
	}
	i := int(tick % uint32(len(r.frames)))
	if !r.valid[i] || r.frames[i].Tick != tick {
		return nil, false
	}
	return &r.frames[i], true
}

// Lookup 返回实体在精确 tick 的位置
func (r *Ring) Lookup(tick uint32, peer core.PeerID) (core.Vec3, bool) {
	f, ok := r.Frame(tick)
	if !ok {
		return core.Vec3{}, false
	}
	return f.Position(peer)
}

// Window 保留的 tick 范围 [oldest, newest]
func (r *Ring) Window() (oldest, newest uint32, ok bool) {
	if !r.has {
		return 0, 0, false
	}
	size := uint32(len(r.frames))
	oldest = 0
	if r.newest >= size {
		oldest = r.newest - size + 1
	}
	return oldest, r.newest, true
}

// ClampTick 把客户端声称的 tick 限制在 [oldest, current] 内
func (r *Ring) ClampTick(claimed, current uint32) uint32 {
	oldest, _, ok := r.Window()
	if !ok {
		return current
	}
	if claimed < oldest {
		claimed = oldest
	}
	if claimed > current {
		claimed = current
	}
	return claimed
}

// Reset 清空
func (r *Ring) Reset() {
	for i := range r.valid {
		r.valid[i] = false
		r.frames[i].count = 0
	}
	r.newest = 0
	r.has = false
}
