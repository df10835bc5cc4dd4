package biz

import (
	"time"

	"fulfillment-service/internal/conf"
)

// FulfillmentConfig 履约业务配置
type FulfillmentConfig struct {
	HoldTTL              time.Duration // 预扣有效期，超时未终结由清理任务释放
	OrderPollBatchLimit  int           // 每轮状态轮询最多处理的订单数
	RefillPollBatchLimit int           // 每轮补单轮询最多处理的补单数
}

// NewFulfillmentConfig 从配置创建 FulfillmentConfig
func NewFulfillmentConfig(c *conf.Bootstrap) *FulfillmentConfig {
	config := &FulfillmentConfig{
		HoldTTL:              30 * time.Minute, // 默认值
		OrderPollBatchLimit:  1000,
		RefillPollBatchLimit: 500,
	}
	if c.Fulfillment != nil && c.Fulfillment.HoldTTL.AsDuration() > 0 {
		config.HoldTTL = c.Fulfillment.HoldTTL.AsDuration()
	}
	if c.Scheduler != nil {
		if c.Scheduler.OrderPollBatchLimit > 0 {
			config.OrderPollBatchLimit = c.Scheduler.OrderPollBatchLimit
		}
		if c.Scheduler.RefillPollBatchLimit > 0 {
			config.RefillPollBatchLimit = c.Scheduler.RefillPollBatchLimit
		}
	}
	return config
}
