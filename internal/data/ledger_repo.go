package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/data/model"
)

// ledgerRepo 余额流水数据访问（只读；写入只发生在余额变动事务内部）
type ledgerRepo struct {
	data *Data
	log  *log.Helper
}

// NewLedgerRepo 创建流水 repo（返回 biz.LedgerRepo 接口）
func NewLedgerRepo(data *Data, logger log.Logger) biz.LedgerRepo {
	return &ledgerRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ListTransactions 分页查询用户流水（按时间倒序）
func (r *ledgerRepo) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*biz.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	query := r.data.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []model.Transaction
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	txs := make([]*biz.Transaction, 0, len(models))
	for i := range models {
		m := &models[i]
		txs = append(txs, &biz.Transaction{
			ID:            m.TransactionID,
			UserID:        m.UserID,
			Type:          m.Type,
			Amount:        m.Amount,
			BalanceBefore: m.BalanceBefore,
			BalanceAfter:  m.BalanceAfter,
			ReferenceType: m.ReferenceType,
			ReferenceID:   m.ReferenceID,
			Description:   m.Description,
			CreatedAt:     m.CreatedAt,
		})
	}
	return txs, total, nil
}
