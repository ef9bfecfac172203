package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kuma-grid-bot-go/internal/config"
	"kuma-grid-bot-go/internal/history"
	"kuma-grid-bot-go/internal/logger"
	"kuma-grid-bot-go/internal/manager"
	"kuma-grid-bot-go/internal/reporter"
	"kuma-grid-bot-go/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "配置文件路径")
	flag.Parse()

	// .env 保存交易所密钥, 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.LogConfig)
	log := logger.S()
	defer log.Sync()

	creds := manager.Credentials{
		KumaAPIKey:        os.Getenv("KUMA_API_KEY"),
		KumaAPISecret:     os.Getenv("KUMA_API_SECRET"),
		KumaWalletAddress: os.Getenv("KUMA_WALLET_ADDRESS"),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_SECRET_KEY"),
	}

	store, err := history.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("打开交易历史数据库失败: %v", err)
	}
	defer store.Close()

	mgr := manager.New(store, manager.DefaultGatewayFactory(cfg, creds, log), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 创建配置文件中声明的机器人, Enabled 的立即启动
	for _, botCfg := range cfg.Bots {
		id, err := mgr.Create(botCfg)
		if err != nil {
			log.Errorf("创建机器人 %s 失败: %v", botCfg.Symbol, err)
			continue
		}
		if botCfg.Enabled {
			if err := mgr.Start(ctx, id); err != nil {
				log.Errorf("启动机器人 %s 失败: %v", id, err)
			}
		}
	}

	if cfg.HTTPAddr != "" {
		srv := server.New(ctx, cfg.HTTPAddr, mgr, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Errorf("控制面API退出: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info("收到退出信号, 正在停止所有机器人...")

	mgr.Shutdown()
	reporter.PrintSessionReport(os.Stdout, mgr.Snapshots())
}
