package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FulfillmentMetrics 履约服务指标
type FulfillmentMetrics struct {
	// 下单相关指标
	OrderCreateTotal    *prometheus.CounterVec   // 下单总数（按结果）
	OrderCreateDuration prometheus.Histogram     // 下单耗时
	OrderSubmitTotal    *prometheus.CounterVec   // 提交供应商总数（按结果）
	OrderSubmitDuration *prometheus.HistogramVec // 提交供应商耗时（按供应商）

	// 预扣相关指标
	HoldReserveTotal  *prometheus.CounterVec // 预扣创建总数（按结果）
	HoldFinalizeTotal *prometheus.CounterVec // 预扣终结总数（按结局 captured/released/expired）
	HoldReleasedSweep prometheus.Counter     // 清理任务释放的过期预扣总数

	// 供应商接口指标
	VendorRequestTotal    *prometheus.CounterVec   // 供应商请求总数（按供应商、动作、结果）
	VendorRequestDuration *prometheus.HistogramVec // 供应商请求耗时（按供应商、动作）

	// 调度任务指标
	SchedulerRunDuration *prometheus.HistogramVec // 每轮调度耗时（按任务）
	SchedulerItemsTotal  *prometheus.CounterVec   // 每轮处理条目数（按任务、结果）
	SchedulerSkipTotal   *prometheus.CounterVec   // 因未取得锁被跳过的轮次（按任务）

	// 充值相关指标
	DepositCreditTotal  *prometheus.CounterVec // 充值入账总数（按结果）
	DepositCreditAmount prometheus.Counter     // 充值入账金额累计
}

// NewFulfillmentMetrics 创建履约服务指标
func NewFulfillmentMetrics() *FulfillmentMetrics {
	return &FulfillmentMetrics{
		// 下单指标
		OrderCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_order_create_total",
				Help: "Total number of order creations",
			},
			[]string{"result"}, // result: success/bad_request/insufficient_balance/error
		),
		OrderCreateDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fulfillment_order_create_duration_seconds",
				Help:    "Duration of order creation (phase 1)",
				Buckets: prometheus.DefBuckets,
			},
		),
		OrderSubmitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_order_submit_total",
				Help: "Total number of vendor submissions",
			},
			[]string{"result"}, // result: success/failed/skipped
		),
		OrderSubmitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_order_submit_duration_seconds",
				Help:    "Duration of vendor submission (phase 2)",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"vendor"},
		),

		// 预扣指标
		HoldReserveTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_hold_reserve_total",
				Help: "Total number of balance hold reservations",
			},
			[]string{"result"}, // result: success/insufficient/error
		),
		HoldFinalizeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_hold_finalize_total",
				Help: "Total number of hold finalizations",
			},
			[]string{"outcome"}, // outcome: captured/released/expired/lost_race
		),
		HoldReleasedSweep: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fulfillment_hold_released_sweep_total",
				Help: "Total number of expired holds released by the cleanup job",
			},
		),

		// 供应商指标
		VendorRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_vendor_request_total",
				Help: "Total number of vendor API requests",
			},
			[]string{"vendor", "action", "result"}, // result: success/error
		),
		VendorRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_vendor_request_duration_seconds",
				Help:    "Duration of vendor API requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"vendor", "action"},
		),

		// 调度指标
		SchedulerRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_scheduler_run_duration_seconds",
				Help:    "Duration of one reconciliation run",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"job"},
		),
		SchedulerItemsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_scheduler_items_total",
				Help: "Total number of items handled by reconciliation jobs",
			},
			[]string{"job", "result"}, // result: updated/unchanged/error
		),
		SchedulerSkipTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_scheduler_skip_total",
				Help: "Total number of runs skipped because the lock was busy",
			},
			[]string{"job"},
		),

		// 充值指标
		DepositCreditTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_deposit_credit_total",
				Help: "Total number of deposit credit operations",
			},
			[]string{"result"}, // result: success/duplicate/error
		),
		DepositCreditAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fulfillment_deposit_credit_amount_total",
				Help: "Total amount credited from deposits",
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *FulfillmentMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewFulfillmentMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *FulfillmentMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
