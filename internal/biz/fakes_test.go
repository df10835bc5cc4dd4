package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-service/internal/constants"
)

// 内存版 repo 实现，模拟数据层的事务语义：
// 预扣创建即扣款，release 退回，capture 不动余额，
// 终态迁移以状态守卫保证恰好一次。

type fakeStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	holds    map[string]*BalanceHold
	orders   map[string]*Order
	refills  map[string]*OrderRefill
	ledger   []*Transaction
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		balances: make(map[string]decimal.Decimal),
		holds:    make(map[string]*BalanceHold),
		orders:   make(map[string]*Order),
		refills:  make(map[string]*OrderRefill),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) appendLedger(userID, txType string, amount, before, after decimal.Decimal, refType, refID string) {
	s.ledger = append(s.ledger, &Transaction{
		ID:            s.nextID("tx"),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     time.Now(),
	})
}

// reserveLocked 扣款并创建 HELD 记录，调用方持锁
func (s *fakeStore) reserveLocked(p ReserveParams) (*BalanceHold, error) {
	balance := s.balances[p.UserID]
	if balance.LessThan(p.Amount) {
		return nil, &InsufficientBalanceError{Required: p.Amount, Available: balance}
	}
	newBalance := balance.Sub(p.Amount)
	s.balances[p.UserID] = newBalance

	h := &BalanceHold{
		ID:             s.nextID("hold"),
		UserID:         p.UserID,
		Amount:         p.Amount,
		Status:         constants.HoldStatusHeld,
		IdempotencyKey: p.IdempotencyKey,
		ReferenceType:  p.ReferenceType,
		ReferenceID:    p.ReferenceID,
		ExpiresAt:      time.Now().Add(p.TTL),
		CreatedAt:      time.Now(),
	}
	s.holds[h.ID] = h
	s.appendLedger(p.UserID, constants.TransactionTypeOrder, p.Amount.Neg(), balance, newBalance, p.ReferenceType, p.ReferenceID)
	return h, nil
}

// finalizeLocked HELD→终态迁移，调用方持锁
func (s *fakeStore) finalizeLocked(holdID, toStatus, reason string) error {
	h, ok := s.holds[holdID]
	if !ok || h.Status != constants.HoldStatusHeld {
		return &HoldAlreadyFinalizedError{HoldID: holdID}
	}
	h.Status = toStatus
	h.ReleaseReason = reason
	now := time.Now()
	h.FinalizedAt = &now

	if toStatus != constants.HoldStatusCaptured {
		before := s.balances[h.UserID]
		after := before.Add(h.Amount)
		s.balances[h.UserID] = after
		s.appendLedger(h.UserID, constants.TransactionTypeRefund, h.Amount, before, after, constants.RefTypeHold, h.ID)
	}
	return nil
}

// --- HoldRepo ---

type fakeHoldRepo struct{ s *fakeStore }

func (r *fakeHoldRepo) Reserve(ctx context.Context, p ReserveParams) (*BalanceHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.IdempotencyKey != "" {
		for _, h := range r.s.holds {
			if h.IdempotencyKey == p.IdempotencyKey {
				return h, nil
			}
		}
	}
	return r.s.reserveLocked(p)
}

func (r *fakeHoldRepo) GetHold(ctx context.Context, holdID string) (*BalanceHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.holds[holdID], nil
}

func (r *fakeHoldRepo) GetHoldByIdempotencyKey(ctx context.Context, key string) (*BalanceHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.holds {
		if h.IdempotencyKey == key {
			return h, nil
		}
	}
	return nil, nil
}

func (r *fakeHoldRepo) Capture(ctx context.Context, holdID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.finalizeLocked(holdID, constants.HoldStatusCaptured, "")
}

func (r *fakeHoldRepo) Release(ctx context.Context, holdID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.finalizeLocked(holdID, constants.HoldStatusReleased, reason)
}

func (r *fakeHoldRepo) Expire(ctx context.Context, holdID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.finalizeLocked(holdID, constants.HoldStatusExpired, constants.ReleaseReasonExpired)
}

func (r *fakeHoldRepo) ListExpiredHeld(ctx context.Context, now time.Time, limit int) ([]*BalanceHold, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*BalanceHold
	for _, h := range r.s.holds {
		if h.Status == constants.HoldStatusHeld && h.ExpiresAt.Before(now) {
			out = append(out, h)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeHoldRepo) GetUserBalance(ctx context.Context, userID string) (*UserBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return &UserBalance{UserID: userID, Balance: r.s.balances[userID]}, nil
}

// --- OrderRepo ---

type fakeOrderRepo struct{ s *fakeStore }

func (r *fakeOrderRepo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[orderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOrderRepo) GetOrderByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) CreateWithReservation(ctx context.Context, o *Order, ttl time.Duration) (*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orderID := r.s.nextID("order")
	hold, err := r.s.reserveLocked(ReserveParams{
		UserID:         o.UserID,
		Amount:         o.TotalCharge,
		IdempotencyKey: o.IdempotencyKey,
		ReferenceType:  constants.RefTypeOrder,
		ReferenceID:    orderID,
		TTL:            ttl,
	})
	if err != nil {
		return nil, err
	}

	created := *o
	created.ID = orderID
	created.Status = constants.OrderStatusPending
	created.BalanceHoldID = hold.ID
	created.CreatedAt = time.Now()
	r.s.orders[orderID] = &created
	cp := created
	return &cp, nil
}

func (r *fakeOrderRepo) MarkSubmitted(ctx context.Context, orderID string, version int64, vendorOrderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Version != version || o.Status != constants.OrderStatusPending {
		return ErrOptimisticConflict
	}
	if err := r.s.finalizeLocked(o.BalanceHoldID, constants.HoldStatusCaptured, ""); err != nil {
		return err
	}
	o.Status = constants.OrderStatusProcessing
	o.VendorOrderID = vendorOrderID
	o.Version++
	return nil
}

func (r *fakeOrderRepo) MarkSubmissionFailed(ctx context.Context, orderID string, version int64, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderID]
	if !ok || o.Version != version || o.Status != constants.OrderStatusPending {
		return ErrOptimisticConflict
	}
	if err := r.s.finalizeLocked(o.BalanceHoldID, constants.HoldStatusReleased, reason); err != nil {
		return err
	}
	o.Status = constants.OrderStatusCancelled
	o.Version++
	return nil
}

func (r *fakeOrderRepo) UpdateProgress(ctx context.Context, o *Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return ErrOptimisticConflict
	}
	cp := *o
	cp.Version++
	r.s.orders[o.ID] = &cp
	o.Version++
	return nil
}

func (r *fakeOrderRepo) RefundRemains(ctx context.Context, o *Order, amount decimal.Decimal, description string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return ErrOptimisticConflict
	}
	before := r.s.balances[o.UserID]
	after := before.Add(amount)
	r.s.balances[o.UserID] = after
	r.s.appendLedger(o.UserID, constants.TransactionTypeRefund, amount, before, after, constants.RefTypeOrder, o.ID)

	cp := *o
	cp.Version++
	r.s.orders[o.ID] = &cp
	o.Version++
	return nil
}

func (r *fakeOrderRepo) ListActiveOrders(ctx context.Context, statuses []string, limit int) ([]*Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*Order
	for _, o := range r.s.orders {
		if want[o.Status] {
			cp := *o
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- RefillRepo ---

type fakeRefillRepo struct{ s *fakeStore }

func (r *fakeRefillRepo) CreateRefill(ctx context.Context, refill *OrderRefill) (*OrderRefill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.refills {
		if existing.OrderID == refill.OrderID && !existing.Terminal() {
			return nil, ErrRefillAlreadyActive
		}
	}
	created := *refill
	created.ID = r.s.nextID("refill")
	created.Status = constants.RefillStatusPending
	created.CreatedAt = time.Now()
	r.s.refills[created.ID] = &created
	cp := created
	return &cp, nil
}

func (r *fakeRefillRepo) UpdateRefillStatus(ctx context.Context, refillID, vendorRefillID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	refill, ok := r.s.refills[refillID]
	if !ok || refill.Terminal() {
		return nil
	}
	if vendorRefillID != "" {
		refill.VendorRefillID = vendorRefillID
	}
	refill.Status = status
	return nil
}

func (r *fakeRefillRepo) ListActiveRefills(ctx context.Context, limit int) ([]*OrderRefill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*OrderRefill
	for _, refill := range r.s.refills {
		active := refill.Status == constants.RefillStatusProcessing ||
			(refill.Status == constants.RefillStatusPending && refill.VendorRefillID != "")
		if active {
			cp := *refill
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRefillRepo) CancelStaleRefillIntents(ctx context.Context, olderThan time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, refill := range r.s.refills {
		if refill.Status == constants.RefillStatusPending && refill.VendorRefillID == "" && refill.CreatedAt.Before(olderThan) {
			refill.Status = constants.RefillStatusCancelled
			n++
		}
	}
	return n, nil
}

// --- CatalogRepo ---

type fakeCatalogRepo struct {
	services  map[string]*CatalogService
	providers map[string]*Provider
}

func (r *fakeCatalogRepo) GetService(ctx context.Context, serviceID string) (*CatalogService, error) {
	return r.services[serviceID], nil
}

func (r *fakeCatalogRepo) GetProvider(ctx context.Context, providerID string) (*Provider, error) {
	return r.providers[providerID], nil
}

// --- VendorGateway ---

type fakeGateway struct {
	mu          sync.Mutex
	submitReply *VendorSubmitReply
	submitErr   error
	submitCalls int
	statuses    map[string]*VendorOrderStatus
	statusErr   error
	refillID    string
	refillErr   error
	refillRaw   map[string]string
	cancelled   [][]string
}

func (g *fakeGateway) SubmitOrder(ctx context.Context, req *VendorSubmitRequest) (*VendorSubmitReply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return g.submitReply, nil
}

func (g *fakeGateway) GetStatus(ctx context.Context, vendorOrderID string) (*VendorOrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.statuses[vendorOrderID], nil
}

func (g *fakeGateway) GetStatusBatch(ctx context.Context, vendorOrderIDs []string) (map[string]*VendorOrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	out := make(map[string]*VendorOrderStatus)
	for _, id := range vendorOrderIDs {
		if st, ok := g.statuses[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (g *fakeGateway) RequestRefill(ctx context.Context, vendorOrderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refillErr != nil {
		return "", g.refillErr
	}
	return g.refillID, nil
}

func (g *fakeGateway) GetRefillStatus(ctx context.Context, vendorRefillID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refillRaw[vendorRefillID], nil
}

func (g *fakeGateway) Cancel(ctx context.Context, vendorOrderIDs []string) ([]*VendorCancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, vendorOrderIDs)
	out := make([]*VendorCancelResult, 0, len(vendorOrderIDs))
	for _, id := range vendorOrderIDs {
		out = append(out, &VendorCancelResult{VendorOrderID: id})
	}
	return out, nil
}

func (g *fakeGateway) GetBalance(ctx context.Context) (decimal.Decimal, string, error) {
	return decimal.Zero, "USD", nil
}

func (g *fakeGateway) ListServices(ctx context.Context) ([]*VendorService, error) {
	return nil, nil
}

type fakeGatewayFactory struct{ gw *fakeGateway }

func (f *fakeGatewayFactory) Gateway(provider *Provider) VendorGateway { return f.gw }
