package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"fulfillment-service/internal/metrics"
)

// DepositEvent 支付网关入账事件（由 RocketMQ 消费）
// 充值获取流程本身不在本服务范围内，这里只负责把已成功的支付入账到余额，
// 与订单共用同一张流水表。
type DepositEvent struct {
	PaymentID string          `json:"payment_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// DepositRepo 充值数据层接口（定义在 biz 层）
// CreditWithIdempotency 以 payment_id 唯一键保证同一笔支付只入账一次，
// 入账事务内写入余额变更与 DEPOSIT 流水。返回是否实际入账。
type DepositRepo interface {
	CreditWithIdempotency(ctx context.Context, paymentID, userID string, amount decimal.Decimal) (bool, error)
}

// DepositUseCase 充值入账业务逻辑
type DepositUseCase struct {
	repo    DepositRepo
	log     *log.Helper
	metrics *metrics.FulfillmentMetrics
}

// NewDepositUseCase 创建充值 UseCase
func NewDepositUseCase(repo DepositRepo, logger log.Logger) *DepositUseCase {
	return &DepositUseCase{
		repo:    repo,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Credit 充值入账（幂等）
func (uc *DepositUseCase) Credit(ctx context.Context, event *DepositEvent) error {
	if event.PaymentID == "" || event.UserID == "" {
		return BadRequestf("deposit event missing payment_id or user_id")
	}
	if !event.Amount.IsPositive() {
		return BadRequestf("deposit amount must be positive, got %s", event.Amount)
	}

	credited, err := uc.repo.CreditWithIdempotency(ctx, event.PaymentID, event.UserID, event.Amount)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.DepositCreditTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	if uc.metrics != nil {
		if credited {
			uc.metrics.DepositCreditTotal.WithLabelValues("success").Inc()
			amount, _ := event.Amount.Float64()
			uc.metrics.DepositCreditAmount.Add(amount)
		} else {
			uc.metrics.DepositCreditTotal.WithLabelValues("duplicate").Inc()
		}
	}

	if credited {
		uc.log.Infof("deposit credited: payment_id=%s, user_id=%s, amount=%s",
			event.PaymentID, event.UserID, event.Amount.StringFixed(4))
	} else {
		uc.log.Infof("deposit already processed: payment_id=%s", event.PaymentID)
	}
	return nil
}
