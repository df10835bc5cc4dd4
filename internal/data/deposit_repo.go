package data

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/data/model"
)

// depositRepo 充值入账数据访问
type depositRepo struct {
	data *Data
	log  *log.Helper
}

// NewDepositRepo 创建充值 repo（返回 biz.DepositRepo 接口）
func NewDepositRepo(data *Data, logger log.Logger) biz.DepositRepo {
	return &depositRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreditWithIdempotency 按支付流水号幂等入账（事务）。
// deposit_order.payment_id 唯一索引保证同一笔支付重复消费只入账一次，
// 重复时返回 (false, nil)。入账、充值单、DEPOSIT 流水在同一事务内提交。
func (r *depositRepo) CreditWithIdempotency(ctx context.Context, paymentID, userID string, amount decimal.Decimal) (bool, error) {
	var newBalance decimal.Decimal
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deposit := model.DepositOrder{
			DepositOrderID: constants.OrderIDPrefixDeposit + uuid.New().String(),
			UserID:         userID,
			Amount:         amount,
			PaymentID:      paymentID,
			Status:         model.DepositStatusSuccess,
		}
		if err := tx.Create(&deposit).Error; err != nil {
			return err
		}

		balance, err := lockUserBalance(tx, userID)
		if err != nil {
			return err
		}
		newBalance = balance.Balance.Add(amount)
		if err := tx.Model(balance).Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		}).Error; err != nil {
			return err
		}

		return writeLedger(tx, userID, model.TransactionTypeDeposit,
			amount, balance.Balance, newBalance,
			constants.RefTypeDeposit, deposit.DepositOrderID, "deposit "+paymentID)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			r.log.WithContext(ctx).Infof("payment %s already credited, skip", paymentID)
			return false, nil
		}
		return false, err
	}

	r.data.cacheBalance(userID, newBalance)
	return true, nil
}

// isDuplicateKeyError 判断是否唯一索引冲突
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}
