// Package inputbuf 提供按序号索引的定长输入环形缓冲区。
// 槽位下标为 seq % capacity，槽位里同时保存 seq，读取时必须精确匹配，
// 因此被覆盖（驱逐）的旧序号自然查不到。
package inputbuf

import "arenanet/pkg/core"

// 缓冲区容量
const (
	ClientCapacity = 1024
	ServerCapacity = 512
)

type slot struct {
	cmd   core.Command
	valid bool
	taken bool // 服务器已取出过该序号
}

// ========== 客户端 ==========

// ClientRing 客户端待确认指令缓冲区。
// 序号必须递增写入，min/max 记录仍存活的序号范围，便于快速裁剪与重放
type ClientRing struct {
	slots  [ClientCapacity]slot
	minSeq uint32
	maxSeq uint32
	count  int
}

// NewClientRing 创建客户端缓冲区
func NewClientRing() *ClientRing {
	return &ClientRing{}
}

// Push 写入一条新指令。seq 不大于当前最大值时忽略并返回 false。
// 超出窗口时最旧的指令被驱逐
func (r *ClientRing) Push(cmd core.Command) bool {
	if cmd.Seq == 0 || (r.count > 0 && cmd.Seq <= r.maxSeq) {
		return false
	}
	if r.count == 0 {
		r.minSeq = cmd.Seq
	}
	r.maxSeq = cmd.Seq

	// 窗口外的旧序号全部失效
	if r.maxSeq-r.minSeq >= ClientCapacity {
		newMin := r.maxSeq - ClientCapacity + 1
		r.dropRange(r.minSeq, newMin-1)
		r.minSeq = newMin
	}

	s := &r.slots[cmd.Seq%ClientCapacity]
	if !s.valid {
		r.count++
	}
	s.cmd = cmd
	s.valid = true
	r.skipHoles()
	return true
}

// Get 按序号读取
func (r *ClientRing) Get(seq uint32) (core.Command, bool) {
	if r.count == 0 || seq < r.minSeq || seq > r.maxSeq {
		return core.Command{}, false
	}
	s := &r.slots[seq%ClientCapacity]
	if !s.valid || s.cmd.Seq != seq {
		return core.Command{}, false
	}
	return s.cmd, true
}

// TrimThrough 丢弃所有 seq <= ack 的指令
func (r *ClientRing) TrimThrough(ack uint32) {
	if r.count == 0 || ack < r.minSeq {
		return
	}
	if ack >= r.maxSeq {
		r.Clear()
		return
	}
	r.dropRange(r.minSeq, ack)
	r.minSeq = ack + 1
	r.skipHoles()
}

// Pending 按序号升序返回所有未确认指令
func (r *ClientRing) Pending() []core.Command {
	if r.count == 0 {
		return nil
	}
	out := make([]core.Command, 0, r.count)
	for seq := r.minSeq; ; seq++ {
		if c, ok := r.Get(seq); ok {
			out = append(out, c)
		}
		if seq == r.maxSeq {
			break
		}
	}
	return out
}

// Latest 返回最近的 n 条未确认指令（升序），用于冗余发送
func (r *ClientRing) Latest(n int) []core.Command {
	if r.count == 0 || n <= 0 {
		return nil
	}
	out := make([]core.Command, 0, n)
	for seq := r.maxSeq; len(out) < n; seq-- {
		if c, ok := r.Get(seq); ok {
			out = append(out, c)
		}
		if seq == r.minSeq {
			break
		}
	}
	// 反转为升序
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len 存活指令数
func (r *ClientRing) Len() int { return r.count }

// Bounds 返回存活序号范围
func (r *ClientRing) Bounds() (min, max uint32, ok bool) {
	return r.minSeq, r.maxSeq, r.count > 0
}

// Clear 清空
func (r *ClientRing) Clear() {
	r.slots = [ClientCapacity]slot{}
	r.minSeq, r.maxSeq, r.count = 0, 0, 0
}

func (r *ClientRing) dropRange(from, to uint32) {
	if to-from >= ClientCapacity {
		// 区间覆盖所有槽位，按槽位扫描一遍即可
		for i := range r.slots {
			s := &r.slots[i]
			if s.valid && s.cmd.Seq >= from && s.cmd.Seq <= to {
				s.valid = false
				r.count--
			}
		}
		return
	}
	for seq := from; seq <= to; seq++ {
		s := &r.slots[seq%ClientCapacity]
		if s.valid && s.cmd.Seq == seq {
			s.valid = false
			r.count--
		}
		if seq == to {
			break
		}
	}
}

// skipHoles 让 minSeq 指向第一个存活槽位
func (r *ClientRing) skipHoles() {
	if r.count == 0 {
		r.minSeq, r.maxSeq = 0, 0
		return
	}
	for r.minSeq < r.maxSeq {
		s := &r.slots[r.minSeq%ClientCapacity]
		if s.valid && s.cmd.Seq == r.minSeq {
			return
		}
		r.minSeq++
	}
}

// ========== 服务器 ==========

// ServerRing 服务器每连接的输入缓冲区。
// 到达即写入（同槽位后写覆盖），模拟时按精确序号取出且只取一次，
// 已消费的序号再次到达会被忽略，所以缓冲区里只有未消费的指令
type ServerRing struct {
	slots    [ServerCapacity]slot
	consumed uint32 // 已消费（或跳过）的最大序号
	latest   uint32 // 收到过的最大序号
	count    int
}

// NewServerRing 创建服务器缓冲区
func NewServerRing() *ServerRing {
	return &ServerRing{}
}

// Push 写入到达的指令，已消费的序号返回 false
func (r *ServerRing) Push(cmd core.Command) bool {
	if cmd.Seq == 0 || cmd.Seq <= r.consumed {
		return false
	}
	// 超出窗口时覆盖同槽位的旧指令，旧序号随之被驱逐
	s := &r.slots[cmd.Seq%ServerCapacity]
	if !s.valid {
		r.count++
	}
	s.cmd = cmd
	s.valid = true
	s.taken = false
	if cmd.Seq > r.latest {
		r.latest = cmd.Seq
	}
	return true
}

// Take 取出精确序号的指令并推进消费水位。
// 无论是否命中，seq 都视为已消费
func (r *ServerRing) Take(seq uint32) (core.Command, bool) {
	if seq > r.consumed {
		r.DiscardThrough(seq - 1)
		r.consumed = seq
	}
	s := &r.slots[seq%ServerCapacity]
	if !s.valid || s.cmd.Seq != seq {
		return core.Command{}, false
	}
	s.valid = false
	s.taken = true
	r.count--
	return s.cmd, true
}

// DiscardThrough 丢弃所有 seq <= through 的未消费指令，返回丢弃条数
func (r *ServerRing) DiscardThrough(through uint32) int {
	if through <= r.consumed {
		return 0
	}
	dropped := 0
	from := r.consumed + 1
	if through-from >= ServerCapacity {
		// 区间覆盖所有槽位，按槽位扫描
		for i := range r.slots {
			s := &r.slots[i]
			if s.valid && s.cmd.Seq >= from && s.cmd.Seq <= through {
				s.valid = false
				r.count--
				dropped++
			}
		}
		r.consumed = through
		return dropped
	}
	for seq := from; seq <= through; seq++ {
		s := &r.slots[seq%ServerCapacity]
		if s.valid && s.cmd.Seq == seq {
			s.valid = false
			r.count--
			dropped++
		}
		if seq == through {
			break
		}
	}
	r.consumed = through
	return dropped
}

// Has 是否存在某个未消费序号
func (r *ServerRing) Has(seq uint32) bool {
	s := &r.slots[seq%ServerCapacity]
	return s.valid && s.cmd.Seq == seq
}

// WasTaken 序号是否曾被 Take 取出。已消费水位以下却没取出过的序号是被跳过的
func (r *ServerRing) WasTaken(seq uint32) bool {
	s := &r.slots[seq%ServerCapacity]
	return s.taken && s.cmd.Seq == seq
}

// Latest 收到过的最大序号
func (r *ServerRing) Latest() (uint32, bool) {
	return r.latest, r.latest != 0
}

// Consumed 消费水位
func (r *ServerRing) Consumed() uint32 { return r.consumed }

// SetConsumed 设置消费水位（首个输入到达时确定起点），并丢弃水位以下的指令
func (r *ServerRing) SetConsumed(seq uint32) {
	if seq > r.consumed {
		r.DiscardThrough(seq)
	}
}

// Len 未消费指令数
func (r *ServerRing) Len() int { return r.count }

// Reset 清空，用于 epoch 切换或断线
func (r *ServerRing) Reset() {
	r.slots = [ServerCapacity]slot{}
	r.consumed, r.latest, r.count = 0, 0, 0
}

// ResetKeepWatermark 清空缓冲但保留已消费水位，epoch 切换时使用：
// 新 epoch 的序号继续递增，旧序号不会被重新接受
func (r *ServerRing) ResetKeepWatermark() {
	consumed, latest := r.consumed, r.latest
	r.Reset()
	r.consumed = consumed
	r.latest = latest
}
