package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/metrics"
)

// BalanceHold 余额预扣领域对象
// 创建后 Amount 不可变；从 HELD 出发的终态迁移（capture/release/expire）恰好发生一次。
type BalanceHold struct {
	ID             string
	UserID         string
	Amount         decimal.Decimal
	Status         string
	IdempotencyKey string
	ReferenceType  string
	ReferenceID    string
	ExpiresAt      time.Time
	ReleaseReason  string
	FinalizedAt    *time.Time
	Version        int64
	CreatedAt      time.Time
}

// Held 是否仍处于预扣中
func (h *BalanceHold) Held() bool {
	return h.Status == constants.HoldStatusHeld
}

// UserBalance 账户余额领域对象
type UserBalance struct {
	UserID    string
	Balance   decimal.Decimal
	Version   int64
	UpdatedAt time.Time
}

// ReserveParams 预扣创建参数
type ReserveParams struct {
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
	ReferenceType  string
	ReferenceID    string
	TTL            time.Duration
}

// HoldRepo 预扣数据层接口（定义在 biz 层）
//
// Reserve 在单个事务内完成：余额检查、扣减、HELD 记录插入、ORDER 流水插入。
// Capture/Release/Expire 以状态列为迁移守卫（WHERE status='HELD'），
// 竞争失败返回 HoldAlreadyFinalizedError。
type HoldRepo interface {
	Reserve(ctx context.Context, p ReserveParams) (*BalanceHold, error)
	GetHold(ctx context.Context, holdID string) (*BalanceHold, error)
	GetHoldByIdempotencyKey(ctx context.Context, key string) (*BalanceHold, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID, reason string) error
	Expire(ctx context.Context, holdID string) error
	ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*BalanceHold, error)
	GetUserBalance(ctx context.Context, userID string) (*UserBalance, error)
}

// HoldUseCase 余额预扣业务逻辑（Balance Reservation Manager）
// 用户余额的所有变动都经由 Reserve/Release/Expire（以及充值入账），
// 流水表因此是每次余额变化的唯一审计来源。
type HoldUseCase struct {
	repo    HoldRepo
	log     *log.Helper
	metrics *metrics.FulfillmentMetrics
}

// NewHoldUseCase 创建预扣 UseCase
func NewHoldUseCase(repo HoldRepo, logger log.Logger) *HoldUseCase {
	return &HoldUseCase{
		repo:    repo,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Reserve 创建预扣：原子地检查并扣减可用余额，写入 HELD 记录和一条 ORDER 流水。
// 同一幂等键重复调用返回已存在的预扣，不会重复扣款。
// 余额不足返回 InsufficientBalanceError，无任何副作用。
func (uc *HoldUseCase) Reserve(ctx context.Context, p ReserveParams) (*BalanceHold, error) {
	if !p.Amount.IsPositive() {
		return nil, BadRequestf("hold amount must be positive, got %s", p.Amount)
	}

	if p.IdempotencyKey != "" {
		existing, err := uc.repo.GetHoldByIdempotencyKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	hold, err := uc.repo.Reserve(ctx, p)
	if err != nil {
		if uc.metrics != nil {
			if _, ok := err.(*InsufficientBalanceError); ok {
				uc.metrics.HoldReserveTotal.WithLabelValues("insufficient").Inc()
			} else {
				uc.metrics.HoldReserveTotal.WithLabelValues("error").Inc()
			}
		}
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.HoldReserveTotal.WithLabelValues("success").Inc()
	}
	return hold, nil
}

// Capture 将预扣终结为已消费（HELD→CAPTURED）。
// 不发生余额变动：扣款已在 Reserve 时完成，capture 只是定格结局。
func (uc *HoldUseCase) Capture(ctx context.Context, holdID string) error {
	err := uc.repo.Capture(ctx, holdID)
	if uc.metrics != nil {
		if err == nil {
			uc.metrics.HoldFinalizeTotal.WithLabelValues("captured").Inc()
		} else if _, ok := err.(*HoldAlreadyFinalizedError); ok {
			uc.metrics.HoldFinalizeTotal.WithLabelValues("lost_race").Inc()
		}
	}
	return err
}

// Release 取消预扣并退回金额（HELD→RELEASED），写入一条 REFUND 流水。
// 与 Capture 并发调用时恰好一方成功；失败方收到 HoldAlreadyFinalizedError，
// 不得再尝试相反动作。
func (uc *HoldUseCase) Release(ctx context.Context, holdID, reason string) error {
	err := uc.repo.Release(ctx, holdID, reason)
	if uc.metrics != nil {
		if err == nil {
			uc.metrics.HoldFinalizeTotal.WithLabelValues("released").Inc()
		} else if _, ok := err.(*HoldAlreadyFinalizedError); ok {
			uc.metrics.HoldFinalizeTotal.WithLabelValues("lost_race").Inc()
		}
	}
	return err
}

// ReleaseExpiredHolds 释放所有已过期仍处于 HELD 的预扣，返回成功释放的数量。
// 这是"预扣后崩溃、既未 capture 也未 release"场景的兜底。
// 单条失败只记日志，不阻断整批。
func (uc *HoldUseCase) ReleaseExpiredHolds(ctx context.Context) (int, error) {
	holds, err := uc.repo.ListExpiredHeld(ctx, time.Now(), 500)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, h := range holds {
		if err := uc.repo.Expire(ctx, h.ID); err != nil {
			if _, ok := err.(*HoldAlreadyFinalizedError); ok {
				// 并发中已被终结，不算失败
				continue
			}
			uc.log.Warnf("release expired hold failed: hold_id=%s, err=%v", h.ID, err)
			continue
		}
		count++
		if uc.metrics != nil {
			uc.metrics.HoldFinalizeTotal.WithLabelValues("expired").Inc()
			uc.metrics.HoldReleasedSweep.Inc()
		}
	}

	if count > 0 {
		uc.log.Infof("released %d expired holds", count)
	}
	return count, nil
}

// GetBalance 查询用户余额
func (uc *HoldUseCase) GetBalance(ctx context.Context, userID string) (*UserBalance, error) {
	return uc.repo.GetUserBalance(ctx, userID)
}
