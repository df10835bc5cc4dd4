package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogService 服务项目表（目录，核心只读）
type CatalogService struct {
	ServiceID       string          `gorm:"primaryKey;type:varchar(36)"`
	ProviderID      string          `gorm:"type:varchar(36);not null;index"`
	Name            string          `gorm:"type:varchar(255);not null"`
	VendorServiceID string          `gorm:"type:varchar(64);not null"` // 供应商侧服务编号
	PricePerUnit    decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	CostPerUnit     decimal.Decimal `gorm:"type:decimal(19,4);not null"`
	MinQuantity     int             `gorm:"not null;default:1"`
	MaxQuantity     int             `gorm:"not null"`
	RefillDays      int             `gorm:"not null;default:0"` // 0 表示不支持补单
	DripFeed        bool            `gorm:"default:false"`
	Enabled         bool            `gorm:"default:true"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CatalogService) TableName() string {
	return "catalog_service"
}

// Provider 供应商表
type Provider struct {
	ProviderID string    `gorm:"primaryKey;type:varchar(36)"`
	Name       string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	ApiURL     string    `gorm:"type:varchar(255);not null"`
	ApiKey     string    `gorm:"type:varchar(128);not null"`
	Enabled    bool      `gorm:"default:true"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Provider) TableName() string {
	return "provider"
}
