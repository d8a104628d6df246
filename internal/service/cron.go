package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"chainless-core/pkg/logger"
	"chainless-core/pkg/monitor"
	"chainless-core/pkg/utils/lock"
)

// ManageReconciler 推进停滞的钱包管理记录
type ManageReconciler interface {
	Reconcile(ctx context.Context, batch int) (int, error)
}

// TransferSettler 转账的广播、链上确认和过期处理
type TransferSettler interface {
	ResubmitNotLaunched(ctx context.Context, batch int) (int, error)
	PollPending(ctx context.Context, batch int) (int, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type CronService struct {
	cron     *cron.Cron
	locker   lock.DistributedLock
	manage   ManageReconciler
	settler  TransferSettler
	interval string
	batch    int
}

func NewCronService(locker lock.DistributedLock, manage ManageReconciler, settler TransferSettler, interval string, batch int) *CronService {
	if interval == "" {
		interval = "@every 3s"
	}
	if batch <= 0 {
		batch = 50
	}
	return &CronService{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker:   locker,
		manage:   manage,
		settler:  settler,
		interval: interval,
		batch:    batch,
	}
}

func (s *CronService) Start() error {
	jobs := []struct {
		spec string
		fn   func()
	}{
		{s.interval, s.ReconcileManageRecords},
		{"@every 5s", s.SettleTransfers},
		{"@every 1m", s.ExpireTransfers},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.fn); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info("Cron Service started", zap.String("reconcile_interval", s.interval))
	return nil
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// ReconcileManageRecords 推进没有完成的钱包管理记录
func (s *CronService) ReconcileManageRecords() {
	s.runLocked("reconcile_manage", func(ctx context.Context) error {
		n, err := s.manage.Reconcile(ctx, s.batch)
		if n > 0 {
			logger.Debug("管理记录对账完成", zap.Int("count", n))
		}
		return err
	})
}

// SettleTransfers 重新广播未提交的转账，并查询已广播转账的结果
func (s *CronService) SettleTransfers() {
	s.runLocked("settle_transfers", func(ctx context.Context) error {
		if _, err := s.settler.ResubmitNotLaunched(ctx, s.batch); err != nil {
			return err
		}
		_, err := s.settler.PollPending(ctx, s.batch)
		return err
	})
}

// ExpireTransfers 标记超时的转账
func (s *CronService) ExpireTransfers() {
	s.runLocked("expire_transfers", func(ctx context.Context) error {
		_, err := s.settler.ExpireStale(ctx, time.Now())
		return err
	})
}

// runLocked 多实例部署时同一任务只有一个节点执行
func (s *CronService) runLocked(job string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	lockKey := "cron:lock:" + job
	locked, err := s.locker.Acquire(ctx, lockKey, time.Minute)
	if err != nil || !locked {
		logger.Debug("获取锁失败或已有实例在运行", zap.String("job", job))
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, lockKey); err != nil {
			logger.Warn("释放锁失败", zap.String("job", job), zap.Error(err))
		}
	}()

	start := time.Now()
	if err := fn(ctx); err != nil {
		logger.Error("定时任务执行失败", zap.String("job", job), zap.Error(err))
	}
	monitor.Business.ReconcileDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
