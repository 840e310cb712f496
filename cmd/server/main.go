package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arenanet/internal/config"
	"arenanet/internal/server"
)

func main() {
	cfg := config.Load()

	// 命令行参数覆盖环境变量
	flag.StringVar(&cfg.Net.Addr, "addr", cfg.Net.Addr, "服务器监听地址")
	flag.StringVar(&cfg.Net.Proto, "proto", cfg.Net.Proto, "传输协议: kcp | tcp | ws")
	flag.BoolVar(&cfg.Server.Listen, "listen", cfg.Server.Listen, "监听服务器模式，本机带一个机器人玩家")
	flag.IntVar(&cfg.Server.MaxPeers, "max-peers", cfg.Server.MaxPeers, "最大玩家数")
	flag.BoolVar(&cfg.Debug.Enabled, "debug", cfg.Debug.Enabled, "启用调试 HTTP 服务")
	flag.StringVar(&cfg.Debug.Addr, "debug-addr", cfg.Debug.Addr, "调试 HTTP 地址")
	flag.DurationVar(&cfg.Net.Latency, "latency", cfg.Net.Latency, "模拟单程延迟")
	flag.DurationVar(&cfg.Net.Jitter, "jitter", cfg.Net.Jitter, "模拟抖动")
	flag.Float64Var(&cfg.Net.LossPercent, "loss", cfg.Net.LossPercent, "模拟丢包率 (%)")
	flag.StringVar(&cfg.Net.RecordPath, "record", cfg.Net.RecordPath, "把投递的包录制到文件")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置错误: %v", err)
	}

	// 创建服务器
	gameServer := server.NewGameServer(cfg)

	// 启动服务器（在新的 goroutine 中）
	go func() {
		if err := gameServer.Start(); err != nil {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()
	<-gameServer.Ready()

	mode := "专用服务器"
	if cfg.Server.Listen {
		mode = "监听服务器"
	}
	log.Println("========================================")
	log.Println("  arenanet 对战服务器")
	log.Println("========================================")
	log.Printf("监听地址: %s (%s)", gameServer.Addr(), cfg.Net.Proto)
	log.Printf("运行模式: %s", mode)
	log.Printf("最大玩家数: %d", cfg.Server.MaxPeers)
	log.Printf("模拟频率: %d Hz, 快照频率: %d Hz", cfg.Sim.TickRate, cfg.Sim.SnapshotRate)
	if sim := cfg.Net.Netsim(); sim.Enabled() {
		log.Printf("网络模拟: 延迟 %v 抖动 %v 丢包 %.1f%%", cfg.Net.Latency, cfg.Net.Jitter, cfg.Net.LossPercent)
	}
	if cfg.Debug.Enabled {
		log.Printf("调试接口: http://%s/status", cfg.Debug.Addr)
	}
	log.Println("========================================")
	log.Println("服务器正在运行...")
	log.Println("按 Ctrl+C 停止服务器")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("正在关闭服务器...")
	gameServer.Shutdown()

	log.Println("服务器已关闭")
}
