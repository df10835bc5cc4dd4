package biz

import (
	"context"
	"time"

	"fulfillment-service/internal/constants"
)

// 对账轮询的业务逻辑。调度（周期、单飞锁）在 internal/scheduler，
// 这里只负责一轮做什么；流水写入也因此始终走与管道相同的 repo 方法。

// ReconcileOrderStatuses 拉取进行中订单在供应商侧的状态并收敛本地状态。
// 按供应商分组、批量查询；逐单应用，单单失败只记日志，单个供应商不可达
// 不影响其他供应商的对账。返回发生更新的订单数。
func (uc *OrderUseCase) ReconcileOrderStatuses(ctx context.Context) (int, error) {
	orders, err := uc.repo.ListActiveOrders(ctx, []string{
		constants.OrderStatusPending,
		constants.OrderStatusProcessing,
		constants.OrderStatusInProgress,
	}, uc.conf.OrderPollBatchLimit)
	if err != nil {
		return 0, err
	}

	// PENDING 且无供应商单号的订单无从查询，由过期预扣清理兜底
	byProvider := make(map[string][]*Order)
	for _, o := range orders {
		if o.VendorOrderID == "" {
			continue
		}
		byProvider[o.ProviderID] = append(byProvider[o.ProviderID], o)
	}

	updated := 0
	for providerID, group := range byProvider {
		provider, err := uc.catalog.GetProvider(ctx, providerID)
		if err != nil || provider == nil {
			uc.log.Warnf("order poll: provider %s unavailable: %v", providerID, err)
			continue
		}
		gw := uc.gateways.Gateway(provider)

		for start := 0; start < len(group); start += constants.VendorBatchLimit {
			end := start + constants.VendorBatchLimit
			if end > len(group) {
				end = len(group)
			}
			chunk := group[start:end]

			ids := make([]string, 0, len(chunk))
			for _, o := range chunk {
				ids = append(ids, o.VendorOrderID)
			}
			statuses, err := gw.GetStatusBatch(ctx, ids)
			if err != nil {
				uc.log.Warnf("order poll: status batch failed: vendor=%s, err=%v", provider.Name, err)
				uc.countSchedulerItem("order_status_poll", "error")
				continue
			}

			for _, o := range chunk {
				vs, ok := statuses[o.VendorOrderID]
				if !ok || vs == nil {
					continue
				}
				changed, err := uc.applyVendorOrderStatus(ctx, o, vs)
				if err != nil {
					uc.log.Warnf("order poll: apply status failed: order_id=%s, err=%v", o.ID, err)
					uc.countSchedulerItem("order_status_poll", "error")
					continue
				}
				if changed {
					updated++
					uc.countSchedulerItem("order_status_poll", "updated")
				} else {
					uc.countSchedulerItem("order_status_poll", "unchanged")
				}
			}
		}
	}
	return updated, nil
}

// applyVendorOrderStatus 把单笔供应商状态收敛到本地订单。
// 只沿状态格次向前；remains/status/completedAt 仅在发生实际变化时写库。
func (uc *OrderUseCase) applyVendorOrderStatus(ctx context.Context, o *Order, vs *VendorOrderStatus) (bool, error) {
	mapped := MapVendorOrderStatus(vs.Status)
	if mapped == "" {
		// 未知状态留到下一轮
		uc.log.Warnf("unknown vendor status %q for order %s", vs.Status, o.ID)
		return false, nil
	}

	newRemains := o.Remains
	if vs.Remains >= 0 && vs.Remains <= o.Quantity {
		newRemains = vs.Remains
	}

	statusChanged := mapped != o.Status && StatusAdvances(o.Status, mapped)
	remainsChanged := newRemains != o.Remains
	if !statusChanged && !remainsChanged {
		return false, nil
	}

	// 供应商确认取消：未送达部分按售价折算退款
	if mapped == constants.OrderStatusCancelled && statusChanged {
		refund := ChargeFor(o.PricePerUnit, newRemains)
		o.Remains = newRemains
		o.Status = constants.OrderStatusRefunded
		o.RecomputeProfit()
		if !refund.IsPositive() {
			o.Status = constants.OrderStatusCancelled
			return true, uc.repo.UpdateProgress(ctx, o)
		}
		return true, uc.repo.RefundRemains(ctx, o, refund, "vendor canceled, undelivered remains refunded")
	}

	o.Remains = newRemains
	if statusChanged {
		o.Status = mapped
		if mapped == constants.OrderStatusCompleted {
			now := time.Now()
			o.CompletedAt = &now
			if o.IsRefillable {
				if svc, err := uc.catalog.GetService(ctx, o.ServiceID); err == nil && svc != nil && svc.RefillDays > 0 {
					deadline := now.AddDate(0, 0, svc.RefillDays)
					o.RefillDeadline = &deadline
				}
			}
		}
	}
	o.RecomputeProfit()
	return true, uc.repo.UpdateProgress(ctx, o)
}

// refillIntentStaleAfter 补单意向滞留时限。
// PENDING 且无供应商补单号的意向超过该时限即视为创建方已崩溃。
const refillIntentStaleAfter = 10 * time.Minute

// ReconcileRefillStatuses 轮询进行中补单的供应商状态（补单没有批量接口，逐条查询）。
// 轮询前先取消滞留的补单意向，确认写库前崩溃的残留不会一直占着补单名额。
// COMPLETED / REJECTED 为终态；单条失败只记日志，不阻断整批。返回发生更新的补单数。
func (uc *OrderUseCase) ReconcileRefillStatuses(ctx context.Context) (int, error) {
	if stale, err := uc.refillRepo.CancelStaleRefillIntents(ctx, time.Now().Add(-refillIntentStaleAfter)); err != nil {
		uc.log.Warnf("refill poll: cancel stale intents: %v", err)
	} else if stale > 0 {
		uc.log.Warnf("refill poll: cancelled %d stale refill intents", stale)
	}

	refills, err := uc.refillRepo.ListActiveRefills(ctx, uc.conf.RefillPollBatchLimit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range refills {
		if r.VendorRefillID == "" {
			continue
		}
		order, err := uc.repo.GetOrder(ctx, r.OrderID)
		if err != nil || order == nil {
			uc.log.Warnf("refill poll: order %s not found for refill %s", r.OrderID, r.ID)
			continue
		}
		provider, err := uc.catalog.GetProvider(ctx, order.ProviderID)
		if err != nil || provider == nil {
			uc.log.Warnf("refill poll: provider %s unavailable: %v", order.ProviderID, err)
			continue
		}

		raw, err := uc.gateways.Gateway(provider).GetRefillStatus(ctx, r.VendorRefillID)
		if err != nil {
			uc.log.Warnf("refill poll: status failed: refill_id=%s, err=%v", r.ID, err)
			uc.countSchedulerItem("refill_status_poll", "error")
			continue
		}

		mapped := MapVendorRefillStatus(raw)
		if mapped == "" || mapped == r.Status {
			uc.countSchedulerItem("refill_status_poll", "unchanged")
			continue
		}

		if err := uc.refillRepo.UpdateRefillStatus(ctx, r.ID, r.VendorRefillID, mapped); err != nil {
			uc.log.Warnf("refill poll: update failed: refill_id=%s, err=%v", r.ID, err)
			uc.countSchedulerItem("refill_status_poll", "error")
			continue
		}
		updated++
		uc.countSchedulerItem("refill_status_poll", "updated")

		switch mapped {
		case constants.RefillStatusCompleted:
			uc.log.Infof("refill completed: refill_id=%s, order_id=%s", r.ID, r.OrderID)
		case constants.RefillStatusRejected:
			uc.log.Warnf("refill rejected by vendor: refill_id=%s, order_id=%s", r.ID, r.OrderID)
		}
	}
	return updated, nil
}

func (uc *OrderUseCase) countSchedulerItem(job, result string) {
	if uc.metrics != nil {
		uc.metrics.SchedulerItemsTotal.WithLabelValues(job, result).Inc()
	}
}
