package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// Transaction 余额流水领域对象（只追加）
type Transaction struct {
	ID            string
	UserID        string
	Type          string
	Amount        decimal.Decimal // 带符号：入账为正，扣款为负
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Description   string
	CreatedAt     time.Time
}

// LedgerRepo 流水数据层接口（定义在 biz 层）
// 流水只由余额变动事务内部写入，这里只提供查询。
type LedgerRepo interface {
	ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*Transaction, int64, error)
}

// LedgerUseCase 流水业务逻辑
type LedgerUseCase struct {
	repo LedgerRepo
	log  *log.Helper
}

// NewLedgerUseCase 创建流水 UseCase
func NewLedgerUseCase(repo LedgerRepo, logger log.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// ListTransactions 获取用户流水列表
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*Transaction, int64, error) {
	return uc.repo.ListTransactions(ctx, userID, page, pageSize)
}
