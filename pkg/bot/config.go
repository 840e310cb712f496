package bot

// Config 机器人的行为参数
type Config struct {
	// ThinkIntervalTicks 重新跑一遍行为树的间隔，中间沿用上次输入
	ThinkIntervalTicks int
	// MistakeRate 随机失误率 (0.0-1.0)
	MistakeRate float64
	// AimRange 超过这个距离不瞄准
	AimRange float64
	// FireCooldownTicks 两次开火最少间隔
	FireCooldownTicks int
	// EdgeMargin 离边界多近开始往中心走，Bounds 为 0 时不生效
	EdgeMargin float64
	Bounds     float64
}

// 预设配置：普通难度
var ConfigNormal = Config{
	ThinkIntervalTicks: 6,
	MistakeRate:        0.05,
	AimRange:           25,
	FireCooldownTicks:  30,
	EdgeMargin:         5,
	Bounds:             50,
}

// 预设配置：困难难度
var ConfigHard = Config{
	ThinkIntervalTicks: 2,
	MistakeRate:        0,
	AimRange:           40,
	FireCooldownTicks:  12,
	EdgeMargin:         5,
	Bounds:             50,
}
