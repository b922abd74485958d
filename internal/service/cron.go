package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wallet-session/pkg/logger"
	"wallet-session/pkg/monitor"
	"wallet-session/pkg/utils/lock"
)

const pruneLockKey = "cron:lock:prune_login_records"

// LoginPruner 删除过期登录记录，auth.DBRecorder 实现了它
type LoginPruner interface {
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}

type CronService struct {
	cron   *cron.Cron
	redis  *redis.Client
	pruner LoginPruner
}

// NewCronService rdb 为 nil 时单实例运行，不加锁
func NewCronService(rdb *redis.Client, pruner LoginPruner) *CronService {
	// 标准配置 (分级)
	c := cron.New()
	return &CronService{
		cron:   c,
		redis:  rdb,
		pruner: pruner,
	}
}

func (s *CronService) Start() error {
	// 注册任务
	if _, err := s.cron.AddFunc("@hourly", s.PruneLoginRecords); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Cron Service started")
	return nil
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// PruneLoginRecords 清理已过期的登录记录
func (s *CronService) PruneLoginRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// 1. 获取分布式锁，防止多实例同时执行
	if s.redis != nil {
		locker := lock.NewRedisLock(s.redis)
		locked, err := locker.Acquire(ctx, pruneLockKey, time.Minute)
		if err != nil || !locked {
			logger.Debug("PruneLoginRecords: 获取锁失败或已有实例在运行", zap.Error(err))
			return
		}
		defer locker.Release(ctx, pruneLockKey)
	}

	// 2. 执行清理
	n, err := s.pruner.PruneExpired(ctx, time.Now())
	if err != nil {
		logger.Error("清理登录记录失败", zap.Error(err))
		return
	}
	monitor.Business.LoginRecordsPruned.Add(float64(n))
	if n > 0 {
		logger.Info("清理过期登录记录", zap.Int64("count", n))
	}
}
