package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"proxyharvest/internal/metrics"
	"proxyharvest/internal/shared/config"
	"proxyharvest/internal/shared/logger"
	manager "proxyharvest/proxypool"
	"proxyharvest/proxypool/model"
	"proxyharvest/proxypool/scraper"
	"proxyharvest/proxypool/validator"
)

const defaultTarget = "https://www.baidu.com"

func main() {
	var target string
	flag.StringVar(&target, "url", defaultTarget, "Target URL to probe through each proxy")
	flag.StringVar(&target, "u", defaultTarget, "Shorthand for -url")
	flag.Parse()

	// 1. 加载配置
	iniPath := config.Path()
	cfg, err := config.Load(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		logger.Fatal().Str("url", target).Msg("Target must be an absolute http(s) URL.")
	}

	srv := metrics.StartServer(cfg.MetricsConf.Port)
	defer metrics.Shutdown(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 抓取端 -> 队列 -> 验证端
	queue := make(chan model.Proxy, cfg.QueueSize)
	fetchers := scraper.Registry(scraper.Options{
		RequestInterval: cfg.RequestInterval(),
		Timeout:         cfg.FetchTimeout(),
	})
	mgr := manager.NewManager(cfg.PipelineConf, fetchers)
	go func() {
		_ = mgr.Run(ctx, queue)
	}()

	v := validator.NewValidator(cfg.ProbeConf)
	sum := v.Consume(ctx, queue, target)

	logger.Info().
		Int("received", sum.Received).
		Int("reachable", sum.Reachable).
		Int("rejected", sum.Rejected).
		Int("failed", sum.Failed).
		Msg("Harvest finished.")
}
