package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"

	"fulfillment-service/internal/biz"
	"fulfillment-service/internal/constants"
	"fulfillment-service/internal/metrics"
)

// panelGateway 面板协议供应商适配器。
// 协议：POST 表单到供应商 api_url，带 key + action 参数，响应为 JSON。
// 供应商返回的报文结构不越过本包边界，出错统一包装为 biz.VendorApiError。
type panelGateway struct {
	provider *biz.Provider
	client   *http.Client
	log      *log.Helper
}

// 面板协议响应结构（供应商侧字段多为字符串，数值也按字符串解析）

type panelAddReply struct {
	Order json.Number `json:"order"`
	Error string      `json:"error"`
}

type panelStatusReply struct {
	Status     string      `json:"status"`
	Remains    json.Number `json:"remains"`
	StartCount json.Number `json:"start_count"`
	Charge     string      `json:"charge"`
	Error      string      `json:"error"`
}

type panelRefillReply struct {
	Refill json.Number `json:"refill"`
	Error  string      `json:"error"`
}

type panelRefillStatusReply struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type panelCancelReply struct {
	Order  json.Number `json:"order"`
	Cancel interface{} `json:"cancel"`
	Error  string      `json:"error"`
}

type panelBalanceReply struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
	Error    string `json:"error"`
}

type panelServiceEntry struct {
	Service  json.Number `json:"service"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Rate     string      `json:"rate"`
	Min      json.Number `json:"min"`
	Max      json.Number `json:"max"`
	Refill   bool        `json:"refill"`
	Dripfeed bool        `json:"dripfeed"`
}

// post 执行一次面板协议请求并解析 JSON 响应到 out。
// 网络错误重试一次，非 2xx 不重试。
func (g *panelGateway) post(ctx context.Context, action string, params url.Values, out interface{}) error {
	params.Set("key", g.provider.ApiKey)
	params.Set("action", action)
	body := params.Encode()

	m := metrics.GetMetrics()
	start := time.Now()
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt < 2; attempt++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, g.provider.ApiURL, strings.NewReader(body))
		if err != nil {
			break
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = g.client.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	m.VendorRequestDuration.WithLabelValues(g.provider.Name, action).Observe(time.Since(start).Seconds())

	if err != nil {
		m.VendorRequestTotal.WithLabelValues(g.provider.Name, action, "error").Inc()
		return &biz.VendorApiError{Vendor: g.provider.Name, Action: action, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		m.VendorRequestTotal.WithLabelValues(g.provider.Name, action, "error").Inc()
		return &biz.VendorApiError{Vendor: g.provider.Name, Action: action, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.VendorRequestTotal.WithLabelValues(g.provider.Name, action, "error").Inc()
		return &biz.VendorApiError{
			Vendor:  g.provider.Name,
			Action:  action,
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(raw), 200)),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		m.VendorRequestTotal.WithLabelValues(g.provider.Name, action, "error").Inc()
		return &biz.VendorApiError{
			Vendor:  g.provider.Name,
			Action:  action,
			Message: fmt.Sprintf("unparsable response: %s", truncate(string(raw), 200)),
		}
	}

	m.VendorRequestTotal.WithLabelValues(g.provider.Name, action, "success").Inc()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (g *panelGateway) apiError(action, message string) error {
	return &biz.VendorApiError{Vendor: g.provider.Name, Action: action, Message: message}
}

// SubmitOrder 提交订单（action=add）
func (g *panelGateway) SubmitOrder(ctx context.Context, req *biz.VendorSubmitRequest) (*biz.VendorSubmitReply, error) {
	params := url.Values{}
	params.Set("service", req.VendorServiceID)
	params.Set("link", req.Target)
	params.Set("quantity", strconv.Itoa(req.Quantity))
	if req.Runs > 0 {
		params.Set("runs", strconv.Itoa(req.Runs))
		params.Set("interval", strconv.Itoa(req.Interval))
	}

	var reply panelAddReply
	if err := g.post(ctx, constants.VendorActionAdd, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, g.apiError(constants.VendorActionAdd, reply.Error)
	}
	if reply.Order.String() == "" {
		return nil, g.apiError(constants.VendorActionAdd, "missing order id in response")
	}
	return &biz.VendorSubmitReply{VendorOrderID: reply.Order.String()}, nil
}

func toVendorOrderStatus(r *panelStatusReply) *biz.VendorOrderStatus {
	// remains 缺失或不可解析时置 -1，避免被当成"剩余 0"入库
	st := &biz.VendorOrderStatus{Status: r.Status, Remains: -1}
	if v, err := r.Remains.Int64(); err == nil {
		st.Remains = int(v)
	}
	if v, err := r.StartCount.Int64(); err == nil {
		st.StartCount = int(v)
	}
	if r.Charge != "" {
		if v, err := decimal.NewFromString(r.Charge); err == nil {
			st.Charge = v
		}
	}
	return st
}

// GetStatus 查询单个订单状态（action=status）
func (g *panelGateway) GetStatus(ctx context.Context, vendorOrderID string) (*biz.VendorOrderStatus, error) {
	params := url.Values{}
	params.Set("order", vendorOrderID)

	var reply panelStatusReply
	if err := g.post(ctx, constants.VendorActionStatus, params, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, g.apiError(constants.VendorActionStatus, reply.Error)
	}
	return toVendorOrderStatus(&reply), nil
}

// GetStatusBatch 批量查询订单状态（action=status，orders 逗号分隔）。
// 单次最多 constants.VendorBatchLimit 个单号，超出直接报错而不是截断。
// 响应为 map[单号]状态；单个单号出错只影响该单号（不出现在结果里）。
func (g *panelGateway) GetStatusBatch(ctx context.Context, vendorOrderIDs []string) (map[string]*biz.VendorOrderStatus, error) {
	if len(vendorOrderIDs) == 0 {
		return map[string]*biz.VendorOrderStatus{}, nil
	}
	if len(vendorOrderIDs) > constants.VendorBatchLimit {
		return nil, biz.BadRequestf("status batch size %d exceeds limit %d", len(vendorOrderIDs), constants.VendorBatchLimit)
	}

	params := url.Values{}
	params.Set("orders", strings.Join(vendorOrderIDs, ","))

	var reply map[string]json.RawMessage
	if err := g.post(ctx, constants.VendorActionStatus, params, &reply); err != nil {
		return nil, err
	}

	result := make(map[string]*biz.VendorOrderStatus, len(reply))
	for id, raw := range reply {
		var entry panelStatusReply
		if err := json.Unmarshal(raw, &entry); err != nil {
			g.log.WithContext(ctx).Warnf("vendor %s: unparsable status for order %s", g.provider.Name, id)
			continue
		}
		if entry.Error != "" {
			g.log.WithContext(ctx).Warnf("vendor %s: order %s status error: %s", g.provider.Name, id, entry.Error)
			continue
		}
		result[id] = toVendorOrderStatus(&entry)
	}
	return result, nil
}

// RequestRefill 发起补单（action=refill），返回供应商补单号
func (g *panelGateway) RequestRefill(ctx context.Context, vendorOrderID string) (string, error) {
	params := url.Values{}
	params.Set("order", vendorOrderID)

	var reply panelRefillReply
	if err := g.post(ctx, constants.VendorActionRefill, params, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", g.apiError(constants.VendorActionRefill, reply.Error)
	}
	if reply.Refill.String() == "" {
		return "", g.apiError(constants.VendorActionRefill, "missing refill id in response")
	}
	return reply.Refill.String(), nil
}

// GetRefillStatus 查询补单状态（action=refill_status），返回供应商原始状态串
func (g *panelGateway) GetRefillStatus(ctx context.Context, vendorRefillID string) (string, error) {
	params := url.Values{}
	params.Set("refill", vendorRefillID)

	var reply panelRefillStatusReply
	if err := g.post(ctx, constants.VendorActionRefillStatus, params, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", g.apiError(constants.VendorActionRefillStatus, reply.Error)
	}
	return reply.Status, nil
}

// Cancel 批量取消订单（action=cancel）。返回逐单结果，整体不因单个失败而报错。
func (g *panelGateway) Cancel(ctx context.Context, vendorOrderIDs []string) ([]*biz.VendorCancelResult, error) {
	if len(vendorOrderIDs) == 0 {
		return nil, nil
	}
	if len(vendorOrderIDs) > constants.VendorBatchLimit {
		return nil, biz.BadRequestf("cancel batch size %d exceeds limit %d", len(vendorOrderIDs), constants.VendorBatchLimit)
	}

	params := url.Values{}
	params.Set("orders", strings.Join(vendorOrderIDs, ","))

	var reply []panelCancelReply
	if err := g.post(ctx, constants.VendorActionCancel, params, &reply); err != nil {
		return nil, err
	}

	results := make([]*biz.VendorCancelResult, 0, len(reply))
	for _, entry := range reply {
		r := &biz.VendorCancelResult{VendorOrderID: entry.Order.String()}
		if entry.Error != "" {
			r.Err = entry.Error
		} else if m, ok := entry.Cancel.(map[string]interface{}); ok {
			if msg, ok := m["error"].(string); ok && msg != "" {
				r.Err = msg
			}
		}
		results = append(results, r)
	}
	return results, nil
}

// GetBalance 查询供应商侧账户余额（action=balance），返回余额和币种
func (g *panelGateway) GetBalance(ctx context.Context) (decimal.Decimal, string, error) {
	var reply panelBalanceReply
	if err := g.post(ctx, constants.VendorActionBalance, url.Values{}, &reply); err != nil {
		return decimal.Zero, "", err
	}
	if reply.Error != "" {
		return decimal.Zero, "", g.apiError(constants.VendorActionBalance, reply.Error)
	}
	balance, err := decimal.NewFromString(reply.Balance)
	if err != nil {
		return decimal.Zero, "", g.apiError(constants.VendorActionBalance, "unparsable balance: "+reply.Balance)
	}
	return balance, reply.Currency, nil
}

// ListServices 拉取供应商服务目录（action=services）
func (g *panelGateway) ListServices(ctx context.Context) ([]*biz.VendorService, error) {
	var reply []panelServiceEntry
	if err := g.post(ctx, constants.VendorActionServices, url.Values{}, &reply); err != nil {
		return nil, err
	}

	services := make([]*biz.VendorService, 0, len(reply))
	for _, entry := range reply {
		svc := &biz.VendorService{
			VendorServiceID: entry.Service.String(),
			Name:            entry.Name,
			Category:        entry.Category,
			Refillable:      entry.Refill,
			DripFeed:        entry.Dripfeed,
		}
		if v, err := decimal.NewFromString(entry.Rate); err == nil {
			svc.Rate = v
		}
		if v, err := entry.Min.Int64(); err == nil {
			svc.MinQuantity = int(v)
		}
		if v, err := entry.Max.Int64(); err == nil {
			svc.MaxQuantity = int(v)
		}
		services = append(services, svc)
	}
	return services, nil
}
