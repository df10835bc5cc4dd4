package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/data/model"
)

// refillRepo 补单数据访问
type refillRepo struct {
	data *Data
	log  *log.Helper
}

// NewRefillRepo 创建补单 repo（返回 biz.RefillRepo 接口）
func NewRefillRepo(data *Data, logger log.Logger) biz.RefillRepo {
	return &refillRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func toBizRefill(m *model.OrderRefill) *biz.OrderRefill {
	return &biz.OrderRefill{
		ID:             m.OrderRefillID,
		OrderID:        m.OrderID,
		VendorRefillID: m.VendorRefillID,
		Quantity:       m.Quantity,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}

// CreateRefill 创建补单意向记录（事务）。
// 同一订单的既有非终态补单行加锁检查，存在则返回 ErrRefillAlreadyActive，
// 两个并发补单请求只有一个能通过。
func (r *refillRepo) CreateRefill(ctx context.Context, refill *biz.OrderRefill) (*biz.OrderRefill, error) {
	created := model.OrderRefill{
		OrderRefillID: uuid.New().String(),
		OrderID:       refill.OrderID,
		Quantity:      refill.Quantity,
		Status:        model.RefillStatusPending,
	}

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.OrderRefill{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND status IN ?", refill.OrderID,
				[]string{model.RefillStatusPending, model.RefillStatusProcessing}).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return biz.ErrRefillAlreadyActive
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return toBizRefill(&created), nil
}

// UpdateRefillStatus 更新补单状态（仅非终态行可更新，终态写入后不再改变）
func (r *refillRepo) UpdateRefillStatus(ctx context.Context, refillID, vendorRefillID, status string) error {
	updates := map[string]interface{}{"status": status}
	if vendorRefillID != "" {
		updates["vendor_refill_id"] = vendorRefillID
	}
	result := r.data.db.WithContext(ctx).Model(&model.OrderRefill{}).
		Where("order_refill_id = ? AND status IN ?", refillID,
			[]string{model.RefillStatusPending, model.RefillStatusProcessing}).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		r.log.WithContext(ctx).Warnf("refill %s already terminal, skip update to %s", refillID, status)
	}
	return nil
}

// CancelStaleRefillIntents 取消滞留的补单意向。
// 意向落库后、供应商确认前进程崩溃会遗留无补单号的 PENDING 行，
// 这类行无从轮询却占着该订单的补单名额，超过时限后统一终结为 CANCELLED。
func (r *refillRepo) CancelStaleRefillIntents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.data.db.WithContext(ctx).Model(&model.OrderRefill{}).
		Where("status = ? AND vendor_refill_id = '' AND created_at < ?",
			model.RefillStatusPending, olderThan).
		Update("status", model.RefillStatusCancelled)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListActiveRefills 查询可轮询的补单（按创建时间先进先出）。
// PENDING 但已有供应商补单号的记录也纳入轮询，覆盖确认写库前崩溃的场景。
func (r *refillRepo) ListActiveRefills(ctx context.Context, limit int) ([]*biz.OrderRefill, error) {
	var models []model.OrderRefill
	if err := r.data.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND vendor_refill_id <> '')",
			model.RefillStatusProcessing, model.RefillStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	refills := make([]*biz.OrderRefill, 0, len(models))
	for i := range models {
		refills = append(refills, toBizRefill(&models[i]))
	}
	return refills, nil
}
