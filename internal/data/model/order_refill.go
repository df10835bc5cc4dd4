package model

import (
	"time"

	"fulfillment-service/internal/constants"
)

// 补单状态常量（引用 constants 包中的常量，保持一致性）
const (
	RefillStatusPending    = constants.RefillStatusPending
	RefillStatusProcessing = constants.RefillStatusProcessing
	RefillStatusCompleted  = constants.RefillStatusCompleted
	RefillStatusRejected   = constants.RefillStatusRejected
	RefillStatusCancelled  = constants.RefillStatusCancelled
)

// OrderRefill 补单记录表
// 每个订单同一时刻至多一条非终态补单，由创建事务内的存在性检查保证。
type OrderRefill struct {
	OrderRefillID  string `gorm:"primaryKey;type:varchar(36)"`
	OrderID        string `gorm:"type:varchar(36);not null;index"`
	VendorRefillID string `gorm:"type:varchar(64);index"`
	Quantity       int    `gorm:"not null"`
	Status         string `gorm:"type:enum('PENDING','PROCESSING','COMPLETED','REJECTED','CANCELLED');not null;default:'PENDING';index"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (OrderRefill) TableName() string {
	return "order_refill"
}
