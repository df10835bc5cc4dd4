package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/conf"
)

// ProviderSet is gateway providers.
var ProviderSet = wire.NewSet(NewFactory)

// Factory 按供应商记录创建面板协议网关，同一供应商复用适配器实例
type Factory struct {
	conf   *conf.Vendor
	client *http.Client
	logger log.Logger

	mu       sync.Mutex
	gateways map[string]biz.VendorGateway
}

// NewFactory 创建网关工厂（返回 biz.GatewayFactory 接口）
func NewFactory(c *conf.Bootstrap, logger log.Logger) biz.GatewayFactory {
	connectTimeout := 10 * time.Second
	requestTimeout := 30 * time.Second
	if c.Vendor != nil {
		if c.Vendor.ConnectTimeout > 0 {
			connectTimeout = c.Vendor.ConnectTimeout.AsDuration()
		}
		if c.Vendor.RequestTimeout > 0 {
			requestTimeout = c.Vendor.RequestTimeout.AsDuration()
		}
	}

	return &Factory{
		conf: c.Vendor,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:   logger,
		gateways: make(map[string]biz.VendorGateway),
	}
}

// Gateway 返回供应商对应的网关适配器
func (f *Factory) Gateway(provider *biz.Provider) biz.VendorGateway {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.gateways[provider.ID]; ok {
		return g
	}
	g := &panelGateway{
		provider: provider,
		client:   f.client,
		log:      log.NewHelper(f.logger),
	}
	f.gateways[provider.ID] = g
	return g
}
