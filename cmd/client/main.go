package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arenanet/internal/client"
	"arenanet/internal/config"
)

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.Net.Addr, "addr", cfg.Net.Addr, "服务器地址")
	flag.StringVar(&cfg.Net.Proto, "proto", cfg.Net.Proto, "传输协议: kcp | tcp | ws")
	flag.StringVar(&cfg.Client.Name, "name", cfg.Client.Name, "玩家名前缀")
	flag.IntVar(&cfg.Client.Bots, "bots", cfg.Client.Bots, "同时连接的机器人数量")
	flag.DurationVar(&cfg.Net.Latency, "latency", cfg.Net.Latency, "模拟单程延迟")
	flag.DurationVar(&cfg.Net.Jitter, "jitter", cfg.Net.Jitter, "模拟抖动")
	flag.Float64Var(&cfg.Net.LossPercent, "loss", cfg.Net.LossPercent, "模拟丢包率 (%)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "机器人随机种子")
	duration := flag.Duration("duration", 0, "运行时长，0 表示直到 Ctrl+C")
	interval := flag.Duration("stats", 5*time.Second, "统计输出间隔")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置错误: %v", err)
	}

	// 逐个连接，失败的直接跳过
	clients := make([]*client.NetworkClient, 0, cfg.Client.Bots)
	for i := 0; i < cfg.Client.Bots; i++ {
		name := cfg.Client.Name
		if cfg.Client.Bots > 1 {
			name = fmt.Sprintf("%s-%d", cfg.Client.Name, i+1)
		}
		nc := client.NewNetworkClient(cfg, name, *seed+int64(i))
		if err := nc.Connect(); err != nil {
			log.Printf("%s 连接失败: %v", name, err)
			continue
		}
		clients = append(clients, nc)
	}
	if len(clients) == 0 {
		log.Fatal("没有客户端连上服务器")
	}
	log.Printf("%d/%d 个客户端已连接到 %s (%s)", len(clients), cfg.Client.Bots, cfg.Net.Addr, cfg.Net.Proto)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-sigChan:
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			alive := 0
			for _, nc := range clients {
				if err := nc.Err(); err != nil {
					log.Printf("客户端断开: %v", err)
				}
				if !nc.IsConnected() {
					continue
				}
				alive++
				logStatus(nc.Status())
			}
			if alive == 0 {
				break loop
			}
		}
	}

	log.Println("正在断开...")
	var wg sync.WaitGroup
	for _, nc := range clients {
		wg.Add(1)
		go func(nc *client.NetworkClient) {
			defer wg.Done()
			nc.Close()
		}(nc)
	}
	wg.Wait()
	log.Println("已退出")
}

func logStatus(st client.Status) {
	log.Printf("peer %d tick=%d pos=(%.1f,%.1f,%.1f) delay=%d pending=%d interp=%.1f remotes=%d snaps=%d corr=%d shots=%d/%d phase=%d",
		st.Peer, st.Tick, st.Position.X, st.Position.Y, st.Position.Z,
		st.InputDelay, st.Pending, st.InterpDelay, st.Remotes,
		st.Stats.SnapshotsReceived, st.Stats.Corrections,
		st.ShotsHit, st.ShotsFired, st.Match.Phase)
}
