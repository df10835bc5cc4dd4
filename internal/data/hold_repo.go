package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/data/model"
)

// holdRepo 余额预扣数据访问
type holdRepo struct {
	data *Data
	log  *log.Helper
}

// NewHoldRepo 创建预扣 repo（返回 biz.HoldRepo 接口）
func NewHoldRepo(data *Data, logger log.Logger) biz.HoldRepo {
	return &holdRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// lockUserBalance 锁定用户余额行（FOR UPDATE），不存在则创建零余额记录
func lockUserBalance(tx *gorm.DB, userID string) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get balance failed: %w", err)
	}

	balance = model.UserBalance{
		UserBalanceID: uuid.New().String(),
		UserID:        userID,
		Balance:       decimal.Zero,
	}
	if err := tx.Create(&balance).Error; err != nil {
		return nil, fmt.Errorf("create user balance failed: %w", err)
	}
	return &balance, nil
}

// writeLedger 在余额变更事务内写入一条流水。
// 不变式 balance_after = balance_before + amount 由调用方传入的值保证，这里再校验一次。
func writeLedger(tx *gorm.DB, userID, txType string, amount, before, after decimal.Decimal, refType, refID, description string) error {
	if !before.Add(amount).Equal(after) {
		return fmt.Errorf("ledger invariant violated: %s + %s != %s", before, amount, after)
	}
	entry := model.Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: refType,
		ReferenceID:   refID,
		Description:   description,
	}
	return tx.Create(&entry).Error
}

// reserveInTx 在已开启的事务内执行预扣：检查并扣减余额，插入 HELD 记录和 ORDER 流水。
// 余额不足返回 biz.InsufficientBalanceError，事务由调用方回滚。
func reserveInTx(tx *gorm.DB, p biz.ReserveParams, now time.Time) (*model.BalanceHold, decimal.Decimal, error) {
	balance, err := lockUserBalance(tx, p.UserID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if balance.Balance.LessThan(p.Amount) {
		return nil, decimal.Zero, &biz.InsufficientBalanceError{
			Required:  p.Amount,
			Available: balance.Balance,
		}
	}

	newBalance := balance.Balance.Sub(p.Amount)
	if err := tx.Model(balance).Updates(map[string]interface{}{
		"balance": newBalance,
		"version": gorm.Expr("version + 1"),
	}).Error; err != nil {
		return nil, decimal.Zero, err
	}

	hold := &model.BalanceHold{
		BalanceHoldID: uuid.New().String(),
		UserID:        p.UserID,
		Amount:        p.Amount,
		Status:        model.HoldStatusHeld,
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		ExpiresAt:     now.Add(p.TTL),
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		hold.IdempotencyKey = &key
	}
	if err := tx.Create(hold).Error; err != nil {
		return nil, decimal.Zero, err
	}

	if err := writeLedger(tx, p.UserID, model.TransactionTypeOrder,
		p.Amount.Neg(), balance.Balance, newBalance,
		constants.RefTypeHold, hold.BalanceHoldID, "balance reserved for order"); err != nil {
		return nil, decimal.Zero, err
	}

	return hold, newBalance, nil
}

// finalizeHeldInTx 在事务内把 HELD 预扣迁移到退回类终态（RELEASED/EXPIRED），
// 退回金额并写 REFUND 流水。状态列 CAS 是迁移守卫：竞争失败返回
// biz.HoldAlreadyFinalizedError。
func finalizeHeldInTx(tx *gorm.DB, holdID, toStatus, reason string, now time.Time) (*model.BalanceHold, decimal.Decimal, error) {
	result := tx.Model(&model.BalanceHold{}).
		Where("balance_hold_id = ? AND status = ?", holdID, model.HoldStatusHeld).
		Updates(map[string]interface{}{
			"status":         toStatus,
			"release_reason": reason,
			"finalized_at":   now,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, decimal.Zero, &biz.HoldAlreadyFinalizedError{HoldID: holdID}
	}

	var hold model.BalanceHold
	if err := tx.Where("balance_hold_id = ?", holdID).First(&hold).Error; err != nil {
		return nil, decimal.Zero, err
	}

	balance, err := lockUserBalance(tx, hold.UserID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	newBalance := balance.Balance.Add(hold.Amount)
	if err := tx.Model(balance).Updates(map[string]interface{}{
		"balance": newBalance,
		"version": gorm.Expr("version + 1"),
	}).Error; err != nil {
		return nil, decimal.Zero, err
	}

	if err := writeLedger(tx, hold.UserID, model.TransactionTypeRefund,
		hold.Amount, balance.Balance, newBalance,
		constants.RefTypeHold, hold.BalanceHoldID, "hold released: "+reason); err != nil {
		return nil, decimal.Zero, err
	}

	return &hold, newBalance, nil
}

// captureHeldInTx 在事务内把 HELD 预扣迁移到 CAPTURED。
// 不发生余额变动：扣款已在预扣时完成。
func captureHeldInTx(tx *gorm.DB, holdID string, now time.Time) error {
	result := tx.Model(&model.BalanceHold{}).
		Where("balance_hold_id = ? AND status = ?", holdID, model.HoldStatusHeld).
		Updates(map[string]interface{}{
			"status":       model.HoldStatusCaptured,
			"finalized_at": now,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &biz.HoldAlreadyFinalizedError{HoldID: holdID}
	}
	return nil
}

func toBizHold(m *model.BalanceHold) *biz.BalanceHold {
	h := &biz.BalanceHold{
		ID:            m.BalanceHoldID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		Status:        m.Status,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		ExpiresAt:     m.ExpiresAt,
		ReleaseReason: m.ReleaseReason,
		FinalizedAt:   m.FinalizedAt,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
	}
	if m.IdempotencyKey != nil {
		h.IdempotencyKey = *m.IdempotencyKey
	}
	return h
}

// Reserve 创建预扣（事务：余额检查+扣减、HELD 插入、ORDER 流水）
func (r *holdRepo) Reserve(ctx context.Context, p biz.ReserveParams) (*biz.BalanceHold, error) {
	var (
		created    *model.BalanceHold
		newBalance decimal.Decimal
	)
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, balance, err := reserveInTx(tx, p, time.Now())
		if err != nil {
			return err
		}
		created = hold
		newBalance = balance
		return nil
	})
	if err != nil {
		// 幂等键唯一索引冲突：并发重试，返回已存在的预扣
		if p.IdempotencyKey != "" {
			if existing, getErr := r.GetHoldByIdempotencyKey(ctx, p.IdempotencyKey); getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	r.data.cacheBalance(p.UserID, newBalance)
	return toBizHold(created), nil
}

// GetHold 按ID查询预扣
func (r *holdRepo) GetHold(ctx context.Context, holdID string) (*biz.BalanceHold, error) {
	var m model.BalanceHold
	if err := r.data.db.WithContext(ctx).Where("balance_hold_id = ?", holdID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizHold(&m), nil
}

// GetHoldByIdempotencyKey 按幂等键查询预扣
func (r *holdRepo) GetHoldByIdempotencyKey(ctx context.Context, key string) (*biz.BalanceHold, error) {
	var m model.BalanceHold
	if err := r.data.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizHold(&m), nil
}

// Capture HELD→CAPTURED（单条 CAS，无余额变动）
func (r *holdRepo) Capture(ctx context.Context, holdID string) error {
	return captureHeldInTx(r.data.db.WithContext(ctx), holdID, time.Now())
}

// Release HELD→RELEASED（事务：CAS、余额退回、REFUND 流水）
func (r *holdRepo) Release(ctx context.Context, holdID, reason string) error {
	return r.finalize(ctx, holdID, model.HoldStatusReleased, reason)
}

// Expire HELD→EXPIRED（清理任务专用，语义同 Release，终态不同以便审计区分）
func (r *holdRepo) Expire(ctx context.Context, holdID string) error {
	return r.finalize(ctx, holdID, model.HoldStatusExpired, constants.ReleaseReasonExpired)
}

func (r *holdRepo) finalize(ctx context.Context, holdID, toStatus, reason string) error {
	var (
		userID     string
		newBalance decimal.Decimal
	)
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, balance, err := finalizeHeldInTx(tx, holdID, toStatus, reason, time.Now())
		if err != nil {
			return err
		}
		userID = hold.UserID
		newBalance = balance
		return nil
	})
	if err != nil {
		return err
	}

	r.data.cacheBalance(userID, newBalance)
	return nil
}

// ListExpiredHeld 查询已过期仍处于 HELD 的预扣
func (r *holdRepo) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*biz.BalanceHold, error) {
	var models []model.BalanceHold
	if err := r.data.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.HoldStatusHeld, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	holds := make([]*biz.BalanceHold, 0, len(models))
	for i := range models {
		holds = append(holds, toBizHold(&models[i]))
	}
	return holds, nil
}

// GetUserBalance 查询用户余额（优先走缓存）
func (r *holdRepo) GetUserBalance(ctx context.Context, userID string) (*biz.UserBalance, error) {
	// 先尝试从 Redis 获取
	balanceKey := constants.RedisKeyBalance + userID
	if cached, err := r.data.rdb.Get(ctx, balanceKey).Result(); err == nil {
		if value, err := decimal.NewFromString(cached); err == nil {
			return &biz.UserBalance{UserID: userID, Balance: value}, nil
		}
	}

	// 缓存未命中，从数据库查询
	var m model.UserBalance
	if err := r.data.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	r.data.cacheBalance(userID, m.Balance)
	return &biz.UserBalance{
		UserID:    m.UserID,
		Balance:   m.Balance,
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
