package protocol

import (
	"encoding/binary"
	"math"
)

// writer 在预先分配好的定长缓冲区上顺序写入。
// 调用方保证 buf 足够大，因此不做越界检查
type writer struct {
	buf []byte
	off int
}

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *writer) vec(v Vec3) {
	w.f32(v.X)
	w.f32(v.Y)
	w.f32(v.Z)
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// fixed 写入定长字节区，不足补零
func (w *writer) fixed(b []byte, n int) {
	c := copy(w.buf[w.off:w.off+n], b)
	clear(w.buf[w.off+c : w.off+n])
	w.off += n
}

// zero 跳过并补零
func (w *writer) zero(n int) {
	clear(w.buf[w.off : w.off+n])
	w.off += n
}

// seek 跳到绝对偏移
func (w *writer) seek(off int) { w.off = off }

// reader 与 writer 对称，同样依赖调用方预先校验长度
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) vec() Vec3 {
	return Vec3{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) fixed(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) skip(n int) { r.off += n }

func (r *reader) seek(off int) { r.off = off }

// Vec3 线上使用的单精度向量
type Vec3 struct {
	X, Y, Z float32
}

// header 校验最小长度与标签
func header(data []byte, tag byte, size int) error {
	if len(data) < 1 {
		return ErrTruncated
	}
	if data[0] != tag {
		return ErrBadTag
	}
	if len(data) < size {
		return ErrTruncated
	}
	return nil
}

// checkDst 校验输出缓冲区
func checkDst(dst []byte, size int) error {
	if len(dst) < size {
		return ErrShortBuffer
	}
	return nil
}

// cstring 去掉定长字符串尾部的零
func cstring(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
