package data

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/data/model"
)

// catalogRepo 目录数据访问（服务项目 + 供应商，核心只读）
type catalogRepo struct {
	data *Data
	log  *log.Helper
}

// NewCatalogRepo 创建目录 repo（返回 biz.CatalogRepo 接口）
func NewCatalogRepo(data *Data, logger log.Logger) biz.CatalogRepo {
	return &catalogRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetService 按ID查询服务项目
func (r *catalogRepo) GetService(ctx context.Context, serviceID string) (*biz.CatalogService, error) {
	var m model.CatalogService
	if err := r.data.db.WithContext(ctx).Where("service_id = ?", serviceID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &biz.CatalogService{
		ID:              m.ServiceID,
		ProviderID:      m.ProviderID,
		Name:            m.Name,
		VendorServiceID: m.VendorServiceID,
		PricePerUnit:    m.PricePerUnit,
		CostPerUnit:     m.CostPerUnit,
		MinQuantity:     m.MinQuantity,
		MaxQuantity:     m.MaxQuantity,
		RefillDays:      m.RefillDays,
		DripFeed:        m.DripFeed,
		Enabled:         m.Enabled,
	}, nil
}

// GetProvider 按ID查询供应商
func (r *catalogRepo) GetProvider(ctx context.Context, providerID string) (*biz.Provider, error) {
	var m model.Provider
	if err := r.data.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &biz.Provider{
		ID:      m.ProviderID,
		Name:    m.Name,
		ApiURL:  m.ApiURL,
		ApiKey:  m.ApiKey,
		Enabled: m.Enabled,
	}, nil
}
