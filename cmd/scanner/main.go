package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chainless-core/internal/service"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/saga"
	"chainless-core/internal/service/transfer"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/database"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/utils/lock"
)

// scanner 独立运行的对账进程，只跑定时任务，不对外提供接口
// 多个实例通过 Redis 锁保证同一时刻只有一个在推进
func main() {
	config.Init()
	cfg := config.Global

	logger.Init(cfg.App.Env)
	defer logger.Sync()

	logger.Info("启动对账服务 (Scanner)...", zap.String("env", cfg.App.Env), zap.String("chain", cfg.Chain.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DB, cfg.App.Env)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	rdb, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	submitted := cache.NewMultiLevelCache(cache.NewMemoryCache(5*time.Minute, 10*time.Minute), cache.NewRedisCache(rdb))
	submitter, closeChain, err := chain.Open(ctx, cfg.Chain, submitted)
	if err != nil {
		logger.Fatal("链驱动初始化失败", zap.Error(err))
	}
	defer closeChain()

	exec := saga.NewExecutor(db, submitter, cfg.Reconcile.MaxAttempts)
	transfers := transfer.NewService(db, submitter, cfg.Wallet.TxExpire, cfg.Wallet.BridgeAccount, cfg.Reconcile.MaxAttempts)

	cronSrv := service.NewCronService(lock.NewRedisLock(rdb), exec, transfers, cfg.Reconcile.Interval, cfg.Reconcile.BatchSize)
	if err := cronSrv.Start(); err != nil {
		logger.Fatal("定时任务启动失败", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("⚠️  Shutting down scanner...")
	cronSrv.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Scanner exited properly")
}
