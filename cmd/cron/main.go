package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/internal/conf"
	"fulfillment-service/internal/metrics"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

// interval 读取调度间隔配置，缺省用 fallback
func interval(d conf.Duration, fallback time.Duration) time.Duration {
	if d > 0 {
		return d.AsDuration()
	}
	return fallback
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/fulfillment-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "fulfillment-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	metrics.InitMetrics()

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	var (
		holdCleanupEvery = 5 * time.Minute
		orderPollEvery   = 2 * time.Minute
		refillPollEvery  = 2 * time.Minute
	)
	if bc.Scheduler != nil {
		holdCleanupEvery = interval(bc.Scheduler.HoldCleanupInterval, holdCleanupEvery)
		orderPollEvery = interval(bc.Scheduler.OrderPollInterval, orderPollEvery)
		refillPollEvery = interval(bc.Scheduler.RefillPollInterval, refillPollEvery)
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	addJob := func(name string, every time.Duration, run func(context.Context)) {
		_, err := cronScheduler.AddFunc("@every "+every.String(), func() {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			defer cancel()
			run(ctx)
		})
		if err != nil {
			logHelper.Errorf("Failed to add %s job: %v", name, err)
		}
	}

	// 过期预扣清理
	addJob("hold cleanup", holdCleanupEvery, app.jobs.RunHoldCleanup)
	// 订单状态轮询
	addJob("order status poll", orderPollEvery, app.jobs.RunOrderStatusPoll)
	// 补单状态轮询
	addJob("refill status poll", refillPollEvery, app.jobs.RunRefillStatusPoll)

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Infof("  - Hold cleanup: every %s", holdCleanupEvery)
	logHelper.Infof("  - Order status poll: every %s", orderPollEvery)
	logHelper.Infof("  - Refill status poll: every %s", refillPollEvery)
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
