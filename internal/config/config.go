// Package config 集中管理进程参数：代码里的默认值，环境变量覆盖，命令行再覆盖。
//
// 所有数值默认值都在这里，其他包通过 Session()/Netsim() 拿到转换好的结构。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"arenanet/internal/session"
	"arenanet/pkg/core"
	"arenanet/pkg/lagcomp"
	"arenanet/pkg/netsim"
	"arenanet/pkg/protocol"
)

// =============================================================================
// 网络
// =============================================================================

// NetConfig 传输与网络模拟
type NetConfig struct {
	Proto string // kcp | tcp | ws
	Addr  string

	// 人为网络条件，全为零时不包装模拟器
	Latency     time.Duration
	Jitter      time.Duration
	LossPercent float64
	Seed        int64
	// RecordPath 非空时把投递的包写入该文件
	RecordPath string
}

// DefaultNet 默认网络参数
func DefaultNet() NetConfig {
	return NetConfig{
		Proto: "kcp",
		Addr:  ":8080",
		Seed:  1,
	}
}

// NetFromEnv 环境变量覆盖默认值
func NetFromEnv() NetConfig {
	cfg := DefaultNet()

	if p := os.Getenv("ARENA_PROTO"); p != "" {
		cfg.Proto = p
	}
	if a := os.Getenv("ARENA_ADDR"); a != "" {
		cfg.Addr = a
	}
	cfg.Latency = getEnvDuration("ARENA_SIM_LATENCY", cfg.Latency)
	cfg.Jitter = getEnvDuration("ARENA_SIM_JITTER", cfg.Jitter)
	cfg.LossPercent = getEnvFloat("ARENA_SIM_LOSS", cfg.LossPercent)
	cfg.Seed = int64(getEnvInt("ARENA_SIM_SEED", int(cfg.Seed)))
	if r := os.Getenv("ARENA_RECORD"); r != "" {
		cfg.RecordPath = r
	}

	return cfg
}

// Netsim 转成模拟器参数
func (c NetConfig) Netsim() netsim.Config {
	return netsim.Config{
		Latency:     c.Latency,
		Jitter:      c.Jitter,
		LossPercent: c.LossPercent,
		Seed:        c.Seed,
	}
}

// =============================================================================
// 模拟
// =============================================================================

// SimConfig 固定步长与历史窗口
type SimConfig struct {
	TickRate     int
	SnapshotRate int
	// HistoryTicks 回滚判定能回看的 tick 数
	HistoryTicks int
	// WorldBounds 可活动区域半边长
	WorldBounds float64
}

// DefaultSim 默认模拟参数
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:     core.DefaultTickRate,
		SnapshotRate: core.DefaultSnapshotRate,
		HistoryTicks: lagcomp.DefaultHistoryTicks,
		WorldBounds:  50,
	}
}

// SimFromEnv 环境变量覆盖默认值
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v := getEnvInt("ARENA_TICK_RATE", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("ARENA_SNAPSHOT_RATE", 0); v > 0 {
		cfg.SnapshotRate = v
	}
	if v := getEnvInt("ARENA_HISTORY_TICKS", 0); v > 0 {
		cfg.HistoryTicks = v
	}
	if v := getEnvFloat("ARENA_WORLD_BOUNDS", 0); v > 0 {
		cfg.WorldBounds = v
	}

	return cfg
}

// =============================================================================
// 服务器
// =============================================================================

// ServerConfig 服务器侧参数
type ServerConfig struct {
	MaxPeers    int
	TokenSecret string
	TokenTTL    time.Duration
	FireRate    float64
	FireBurst   int
	// Listen 以监听服务器运行，本机同时有一个玩家
	Listen bool
}

// DefaultServer 默认服务器参数
func DefaultServer() ServerConfig {
	return ServerConfig{
		MaxPeers:  protocol.MaxSnapshotEntries,
		TokenTTL:  session.DefaultTokenTTL,
		FireRate:  10,
		FireBurst: 3,
	}
}

// ServerFromEnv 环境变量覆盖默认值
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if v := getEnvInt("ARENA_MAX_PEERS", 0); v > 0 {
		cfg.MaxPeers = v
	}
	if s := os.Getenv("ARENA_TOKEN_SECRET"); s != "" {
		cfg.TokenSecret = s
	}
	cfg.TokenTTL = getEnvDuration("ARENA_TOKEN_TTL", cfg.TokenTTL)
	if v := getEnvFloat("ARENA_FIRE_RATE", 0); v > 0 {
		cfg.FireRate = v
	}
	if v := getEnvInt("ARENA_FIRE_BURST", 0); v > 0 {
		cfg.FireBurst = v
	}
	cfg.Listen = getEnvBool("ARENA_LISTEN_SERVER", cfg.Listen)

	return cfg
}

// =============================================================================
// 客户端
// =============================================================================

// ClientConfig 客户端侧参数
type ClientConfig struct {
	Name string
	// 输入延迟（tick）
	InputDelay    int
	MinInputDelay int
	MaxInputDelay int
	Redundancy    int

	InterpDelayTicks float64
	Hermite          bool
	CorrectionTime   time.Duration
	SnapDistance     float64

	// Bots 压测时启动的机器人数量
	Bots int
}

// DefaultClient 默认客户端参数
func DefaultClient() ClientConfig {
	return ClientConfig{
		Name:             "player",
		InputDelay:       2,
		MinInputDelay:    1,
		MaxInputDelay:    6,
		Redundancy:       3,
		InterpDelayTicks: 6,
		Hermite:          true,
		CorrectionTime:   100 * time.Millisecond,
		SnapDistance:     2,
		Bots:             1,
	}
}

// ClientFromEnv 环境变量覆盖默认值
func ClientFromEnv() ClientConfig {
	cfg := DefaultClient()

	if n := os.Getenv("ARENA_NAME"); n != "" {
		cfg.Name = n
	}
	cfg.InputDelay = getEnvInt("ARENA_INPUT_DELAY", cfg.InputDelay)
	cfg.MinInputDelay = getEnvInt("ARENA_MIN_INPUT_DELAY", cfg.MinInputDelay)
	cfg.MaxInputDelay = getEnvInt("ARENA_MAX_INPUT_DELAY", cfg.MaxInputDelay)
	cfg.Redundancy = getEnvInt("ARENA_REDUNDANCY", cfg.Redundancy)
	cfg.InterpDelayTicks = getEnvFloat("ARENA_INTERP_DELAY", cfg.InterpDelayTicks)
	cfg.Hermite = getEnvBool("ARENA_HERMITE", cfg.Hermite)
	cfg.CorrectionTime = getEnvDuration("ARENA_CORRECTION_TIME", cfg.CorrectionTime)
	cfg.SnapDistance = getEnvFloat("ARENA_SNAP_DISTANCE", cfg.SnapDistance)
	cfg.Bots = getEnvInt("ARENA_BOTS", cfg.Bots)

	return cfg
}

// =============================================================================
// 调试
// =============================================================================

// DebugConfig 调试 HTTP 服务
type DebugConfig struct {
	Enabled bool
	// Addr 默认只绑本机
	Addr        string
	CORSOrigins []string
}

// DefaultDebug 默认调试参数
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:     true,
		Addr:        "127.0.0.1:6060",
		CORSOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
	}
}

// DebugFromEnv 环境变量覆盖默认值
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	cfg.Enabled = getEnvBool("ARENA_DEBUG", cfg.Enabled)
	if a := os.Getenv("ARENA_DEBUG_ADDR"); a != "" {
		cfg.Addr = a
	}

	return cfg
}

// =============================================================================
// 汇总
// =============================================================================

// AppConfig 进程的全部参数
type AppConfig struct {
	Net    NetConfig
	Sim    SimConfig
	Server ServerConfig
	Client ClientConfig
	Debug  DebugConfig
}

// Load 默认值加环境变量
func Load() AppConfig {
	return AppConfig{
		Net:    NetFromEnv(),
		Sim:    SimFromEnv(),
		Server: ServerFromEnv(),
		Client: ClientFromEnv(),
		Debug:  DebugFromEnv(),
	}
}

// ErrInvalid 所有校验错误都包装它
var ErrInvalid = errors.New("config: invalid")

// Validate 检查取值范围，返回第一个问题
func (c AppConfig) Validate() error {
	switch c.Net.Proto {
	case "kcp", "tcp", "ws":
	default:
		return fmt.Errorf("%w: 不支持的协议 %q", ErrInvalid, c.Net.Proto)
	}
	if c.Net.Addr == "" {
		return fmt.Errorf("%w: 地址为空", ErrInvalid)
	}
	if c.Net.Latency < 0 || c.Net.Jitter < 0 {
		return fmt.Errorf("%w: 模拟延迟不能为负", ErrInvalid)
	}
	if c.Net.LossPercent < 0 || c.Net.LossPercent > 100 {
		return fmt.Errorf("%w: 丢包率 %.1f 不在 [0,100]", ErrInvalid, c.Net.LossPercent)
	}
	if c.Sim.TickRate <= 0 || c.Sim.SnapshotRate <= 0 {
		return fmt.Errorf("%w: tick/快照频率必须为正", ErrInvalid)
	}
	if c.Sim.SnapshotRate > c.Sim.TickRate {
		return fmt.Errorf("%w: 快照频率 %d 高于 tick 频率 %d", ErrInvalid, c.Sim.SnapshotRate, c.Sim.TickRate)
	}
	if c.Sim.WorldBounds <= 0 {
		return fmt.Errorf("%w: 世界边界必须为正", ErrInvalid)
	}
	if c.Server.MaxPeers <= 0 || c.Server.MaxPeers > protocol.MaxSnapshotEntries {
		return fmt.Errorf("%w: 玩家上限 %d 不在 [1,%d]", ErrInvalid, c.Server.MaxPeers, protocol.MaxSnapshotEntries)
	}
	if c.Client.MinInputDelay < 0 || c.Client.MinInputDelay > c.Client.MaxInputDelay {
		return fmt.Errorf("%w: 输入延迟范围 [%d,%d] 无效", ErrInvalid, c.Client.MinInputDelay, c.Client.MaxInputDelay)
	}
	if c.Client.MaxInputDelay > protocol.MaxBundleCommands {
		return fmt.Errorf("%w: 最大输入延迟 %d 超过单包指令数 %d", ErrInvalid, c.Client.MaxInputDelay, protocol.MaxBundleCommands)
	}
	if c.Client.Redundancy < 1 || c.Client.Redundancy > protocol.MaxBundleCommands {
		return fmt.Errorf("%w: 冗余条数 %d 不在 [1,%d]", ErrInvalid, c.Client.Redundancy, protocol.MaxBundleCommands)
	}
	if c.Client.Bots < 0 {
		return fmt.Errorf("%w: 机器人数量为负", ErrInvalid)
	}
	return nil
}

// Session 转成会话参数，日志和指标由调用方再填
func (c AppConfig) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.TickRate = c.Sim.TickRate
	cfg.SnapshotRate = c.Sim.SnapshotRate
	cfg.HistoryTicks = c.Sim.HistoryTicks
	cfg.Mover = core.KinematicMover{Bounds: c.Sim.WorldBounds}

	cfg.MaxPeers = c.Server.MaxPeers
	cfg.TokenSecret = []byte(c.Server.TokenSecret)
	cfg.TokenTTL = c.Server.TokenTTL
	cfg.FireRate = c.Server.FireRate
	cfg.FireBurst = c.Server.FireBurst

	cfg.Name = c.Client.Name
	cfg.InputDelay = c.Client.InputDelay
	cfg.MinInputDelay = c.Client.MinInputDelay
	cfg.MaxInputDelay = c.Client.MaxInputDelay
	cfg.Redundancy = c.Client.Redundancy
	cfg.InterpDelayTicks = c.Client.InterpDelayTicks
	cfg.Hermite = c.Client.Hermite
	cfg.CorrectionTime = c.Client.CorrectionTime
	cfg.SnapDistance = c.Client.SnapDistance
	return cfg
}

// =============================================================================
// 辅助函数
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
