package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/wire"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/conf"
	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/metrics"
)

// ProviderSet is scheduler providers.
var ProviderSet = wire.NewSet(NewJobs)

// distLock 分布式锁的最小接口，生产实现是 *redsync.Mutex
type distLock interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
}

// Jobs 三个对账任务的入口。每个任务跑之前先抢分布式锁，
// 抢不到说明别的实例正在跑这一轮，直接跳过——同一任务全局单飞。
type Jobs struct {
	holdUC     *biz.HoldUseCase
	orderUC    *biz.OrderUseCase
	newLock    func(name string, expiry time.Duration) distLock
	lockExpiry time.Duration
	log        *log.Helper

	// 本进程内的防重入标志，上一轮超时未结束时 cron 不会叠跑
	running map[string]*atomic.Bool
}

// NewJobs 创建对账任务集合
func NewJobs(holdUC *biz.HoldUseCase, orderUC *biz.OrderUseCase, rs *redsync.Redsync, c *conf.Bootstrap, logger log.Logger) *Jobs {
	lockExpiry := 2 * time.Minute
	if c.Scheduler != nil && c.Scheduler.LockExpiry > 0 {
		lockExpiry = c.Scheduler.LockExpiry.AsDuration()
	}
	running := make(map[string]*atomic.Bool)
	for _, name := range []string{constants.LockHoldCleanup, constants.LockOrderStatusPoll, constants.LockRefillStatusPoll} {
		running[name] = &atomic.Bool{}
	}
	return &Jobs{
		holdUC:  holdUC,
		orderUC: orderUC,
		newLock: func(name string, expiry time.Duration) distLock {
			return rs.NewMutex(name, redsync.WithExpiry(expiry), redsync.WithTries(1))
		},
		lockExpiry: lockExpiry,
		log:        log.NewHelper(logger),
		running:    running,
	}
}

// runLocked 在分布式锁内执行一轮任务。锁被占用时返回 skipped=true。
func (j *Jobs) runLocked(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	m := metrics.GetMetrics()

	if flag := j.running[name]; flag != nil {
		if !flag.CompareAndSwap(false, true) {
			m.SchedulerSkipTotal.WithLabelValues(name).Inc()
			j.log.WithContext(ctx).Warnf("[CRON] %s: previous round still running, skip", name)
			return
		}
		defer flag.Store(false)
	}

	// 锁有效期至少覆盖本轮的 ctx 期限：清理任务的周期可能长于配置的
	// lock_expiry，锁先于任务到期会丢掉跨实例单飞
	expiry := j.lockExpiry
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) + 10*time.Second; remaining > expiry {
			expiry = remaining
		}
	}

	mutex := j.newLock(constants.RedisKeySchedulerLock+name, expiry)
	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) {
			m.SchedulerSkipTotal.WithLabelValues(name).Inc()
			j.log.WithContext(ctx).Debugf("[CRON] %s: lock busy, skip this round", name)
			return
		}
		j.log.WithContext(ctx).Errorf("[CRON] %s: acquire lock: %v", name, err)
		return
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			j.log.WithContext(ctx).Warnf("[CRON] %s: release lock: %v", name, err)
		}
	}()

	start := time.Now()
	count, err := fn(ctx)
	m.SchedulerRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		j.log.WithContext(ctx).Errorf("[CRON] %s: %v", name, err)
		return
	}
	if count > 0 {
		j.log.WithContext(ctx).Infof("[CRON] %s: handled %d items in %s", name, count, time.Since(start))
	}
}

// RunHoldCleanup 释放超时未终结的预扣
func (j *Jobs) RunHoldCleanup(ctx context.Context) {
	j.runLocked(ctx, constants.LockHoldCleanup, j.holdUC.ReleaseExpiredHolds)
}

// RunOrderStatusPoll 轮询供应商订单状态并推进本地订单
func (j *Jobs) RunOrderStatusPoll(ctx context.Context) {
	j.runLocked(ctx, constants.LockOrderStatusPoll, j.orderUC.ReconcileOrderStatuses)
}

// RunRefillStatusPoll 轮询供应商补单状态
func (j *Jobs) RunRefillStatusPoll(ctx context.Context) {
	j.runLocked(ctx, constants.LockRefillStatusPoll, j.orderUC.ReconcileRefillStatuses)
}
