package core

import "math"

// Vec3 三维向量（Y 轴向上）
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64         { return math.Sqrt(v.Dot(v)) }
func (v Vec3) IsZero() bool         { return v.X == 0 && v.Y == 0 && v.Z == 0 }
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{v.X + (o.X-v.X)*t, v.Y + (o.Y-v.Y)*t, v.Z + (o.Z-v.Z)*t}
}

// Normalize 返回单位向量，零向量原样返回
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// IsFinite 所有分量都是有限值
func (v Vec3) IsFinite() bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Quantize 按 float32 精度截断，保证服务器状态与线上表示逐位一致
func (v Vec3) Quantize() Vec3 {
	return Vec3{float64(float32(v.X)), float64(float32(v.Y)), float64(float32(v.Z))}
}

// WrapAngle 把角度归一到 [-π, π]
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// WrapAngle32 float32 版本
func WrapAngle32(a float32) float32 {
	if a >= -float32(math.Pi) && a <= float32(math.Pi) {
		return a
	}
	return float32(WrapAngle(float64(a)))
}

// LerpAngle 沿最短弧插值
func LerpAngle(a, b, t float64) float64 {
	d := WrapAngle(b - a)
	return WrapAngle(a + d*t)
}

// Hermite 三次 Hermite 插值，m0/m1 为按区间长度缩放后的切线
func Hermite(p0, m0, p1, m1 Vec3, t float64) Vec3 {
	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return p0.Scale(h00).Add(m0.Scale(h10)).Add(p1.Scale(h01)).Add(m1.Scale(h11))
}

// SmoothDamp 临界阻尼平滑，current 向 target 收敛，velocity 为内部状态。
// smoothTime 近似到达目标所需时间
func SmoothDamp(current, target Vec3, velocity *Vec3, smoothTime, dt float64) Vec3 {
	if smoothTime < 1e-4 {
		smoothTime = 1e-4
	}
	omega := 2 / smoothTime
	x := omega * dt
	exp := 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)
	change := current.Sub(target)
	temp := velocity.Add(change.Scale(omega)).Scale(dt)
	*velocity = velocity.Sub(temp.Scale(omega)).Scale(exp)
	out := target.Add(change.Add(temp).Scale(exp))

	// 防止越过目标
	if target.Sub(current).Dot(out.Sub(target)) > 0 {
		out = target
		*velocity = Vec3{}
	}
	return out
}

// YawForward 由 yaw/pitch 得到朝向向量（yaw=0 指向 -Z）
func YawForward(yaw, pitch float64) Vec3 {
	cp := math.Cos(pitch)
	return Vec3{
		X: -math.Sin(yaw) * cp,
		Y: math.Sin(pitch),
		Z: -math.Cos(yaw) * cp,
	}
}
