package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-service/internal/constants"
)

type testEnv struct {
	store    *fakeStore
	holdRepo *fakeHoldRepo
	catalog  *fakeCatalogRepo
	gw       *fakeGateway
	holdUC   *HoldUseCase
	orderUC  *OrderUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	holdRepo := &fakeHoldRepo{s: store}
	catalog := &fakeCatalogRepo{
		services: map[string]*CatalogService{
			"svc-1": {
				ID:              "svc-1",
				ProviderID:      "prov-1",
				Name:            "followers",
				VendorServiceID: "77",
				PricePerUnit:    decimal.RequireFromString("25.00"),
				CostPerUnit:     decimal.RequireFromString("18.00"),
				MinQuantity:     100,
				MaxQuantity:     10000,
				RefillDays:      30,
				Enabled:         true,
			},
		},
		providers: map[string]*Provider{
			"prov-1": {ID: "prov-1", Name: "panel-one", ApiURL: "http://vendor.test/api", ApiKey: "k", Enabled: true},
		},
	}
	gw := &fakeGateway{submitReply: &VendorSubmitReply{VendorOrderID: "V-1"}}
	logger := log.NewStdLogger(io.Discard)

	holdUC := NewHoldUseCase(holdRepo, logger)
	orderUC := NewOrderUseCase(
		&fakeOrderRepo{s: store},
		catalog,
		&fakeRefillRepo{s: store},
		holdUC,
		&fakeGatewayFactory{gw: gw},
		&FulfillmentConfig{HoldTTL: 30 * time.Minute, OrderPollBatchLimit: 1000, RefillPollBatchLimit: 500},
		logger,
	)

	return &testEnv{store: store, holdRepo: holdRepo, catalog: catalog, gw: gw, holdUC: holdUC, orderUC: orderUC}
}

func (e *testEnv) fund(userID string, amount string) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.balances[userID] = decimal.RequireFromString(amount)
}

func (e *testEnv) balance(userID string) decimal.Decimal {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.balances[userID]
}

func TestCreateOrderReservesCharge(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	order, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "https://example.com/p", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	// 25.00 * 1000 / 1000 = 25.00
	assert.True(t, MoneyEqual(decimal.RequireFromString("25.00"), order.TotalCharge), "charge = %s", order.TotalCharge)
	assert.True(t, MoneyEqual(decimal.RequireFromString("7.00"), order.Profit))
	assert.Equal(t, constants.OrderStatusPending, order.Status)
	assert.Equal(t, 1000, order.Remains)
	assert.NotEmpty(t, order.BalanceHoldID)

	// 余额立刻预扣
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), env.balance("u1")))

	hold, err := env.holdRepo.GetHold(context.Background(), order.BalanceHoldID)
	require.NoError(t, err)
	assert.Equal(t, constants.HoldStatusHeld, hold.Status)
}

func TestCreateOrderIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	p := CreateOrderParams{UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1"}
	first, err := env.orderUC.CreateOrder(context.Background(), p)
	require.NoError(t, err)
	second, err := env.orderUC.CreateOrder(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// 只扣了一次
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), env.balance("u1")))
}

func TestCreateOrderInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "10.00")

	_, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	var ib *InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, MoneyEqual(decimal.RequireFromString("25.00"), ib.Required))
	assert.True(t, MoneyEqual(decimal.RequireFromString("10.00"), ib.Available))

	// 无副作用
	assert.True(t, MoneyEqual(decimal.RequireFromString("10.00"), env.balance("u1")))
	assert.Empty(t, env.store.ledger)
}

func TestCreateOrderQuantityOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	for _, qty := range []int{50, 20000} {
		_, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
			UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: qty, IdempotencyKey: fmt.Sprintf("key-%d", qty),
		})
		assert.ErrorIs(t, err, ErrBadRequest, "quantity %d", qty)
	}
}

func TestCreateOrderRequiresIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000,
	})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestSubmitOrderSuccessCapturesHold(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	created, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	submitted, err := env.orderUC.SubmitOrder(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, constants.OrderStatusProcessing, submitted.Status)
	assert.Equal(t, "V-1", submitted.VendorOrderID)

	// capture 不动余额
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), env.balance("u1")))
	hold, _ := env.holdRepo.GetHold(context.Background(), created.BalanceHoldID)
	assert.Equal(t, constants.HoldStatusCaptured, hold.Status)
}

func TestSubmitOrderVendorFailureCompensates(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")
	env.gw.submitErr = &VendorApiError{Vendor: "panel-one", Action: "add", Message: "rejected"}

	created, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	_, err = env.orderUC.SubmitOrder(context.Background(), created.ID)
	var failed *VendorSubmissionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, created.ID, failed.OrderID)
	var apiErr *VendorApiError
	assert.ErrorAs(t, err, &apiErr)

	// 本地已补偿：余额退回、订单终结、预扣释放
	assert.True(t, MoneyEqual(decimal.RequireFromString("100.00"), env.balance("u1")))
	after, _ := env.orderUC.GetOrder(context.Background(), created.ID)
	assert.Equal(t, constants.OrderStatusCancelled, after.Status)
	hold, _ := env.holdRepo.GetHold(context.Background(), created.BalanceHoldID)
	assert.Equal(t, constants.HoldStatusReleased, hold.Status)
}

func TestSubmitOrderSkipsNonPending(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	created, err := env.orderUC.CreateOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	_, err = env.orderUC.SubmitOrder(context.Background(), created.ID)
	require.NoError(t, err)

	// 重复提交不再触达供应商
	again, err := env.orderUC.SubmitOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusProcessing, again.Status)
	assert.Equal(t, 1, env.gw.submitCalls)
}

func TestPlaceOrderEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	order, err := env.orderUC.PlaceOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusProcessing, order.Status)
	assert.Equal(t, "V-1", order.VendorOrderID)
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), env.balance("u1")))
}

func TestCancelOrdersBatchLimit(t *testing.T) {
	env := newTestEnv(t)

	ids := make([]string, constants.VendorBatchLimit+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("order-%d", i)
	}
	_, err := env.orderUC.CancelOrders(context.Background(), ids)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestCancelOrdersGroupsByVendorOrderID(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")

	order, err := env.orderUC.PlaceOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	results, err := env.orderUC.CancelOrders(context.Background(), []string{order.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, order.VendorOrderID, results[0].VendorOrderID)
	assert.Empty(t, results[0].Err)
}

func TestStatusAdvances(t *testing.T) {
	assert.True(t, StatusAdvances(constants.OrderStatusPending, constants.OrderStatusProcessing))
	assert.True(t, StatusAdvances(constants.OrderStatusProcessing, constants.OrderStatusInProgress))
	assert.True(t, StatusAdvances(constants.OrderStatusInProgress, constants.OrderStatusCompleted))
	assert.True(t, StatusAdvances(constants.OrderStatusCancelled, constants.OrderStatusRefunded))

	// 终态之间不互迁，向后一律禁止
	assert.False(t, StatusAdvances(constants.OrderStatusCompleted, constants.OrderStatusProcessing))
	assert.False(t, StatusAdvances(constants.OrderStatusCompleted, constants.OrderStatusPartial))
	assert.False(t, StatusAdvances(constants.OrderStatusCancelled, constants.OrderStatusCompleted))
	assert.False(t, StatusAdvances(constants.OrderStatusProcessing, constants.OrderStatusPending))
}

func TestLedgerInvariantHoldsAcrossLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u1", "100.00")
	env.gw.submitErr = errors.New("vendor down")

	_, err := env.orderUC.PlaceOrder(context.Background(), CreateOrderParams{
		UserID: "u1", ServiceID: "svc-1", Target: "t", Quantity: 1000, IdempotencyKey: "key-1",
	})
	require.Error(t, err)

	// 每条流水 balance_after = balance_before + amount，且首尾相接可回放
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	require.Len(t, env.store.ledger, 2)
	running := decimal.RequireFromString("100.00")
	for _, tx := range env.store.ledger {
		assert.True(t, MoneyEqual(tx.BalanceAfter, tx.BalanceBefore.Add(tx.Amount)), "tx %s", tx.ID)
		assert.True(t, MoneyEqual(running, tx.BalanceBefore))
		running = tx.BalanceAfter
	}
	assert.True(t, MoneyEqual(decimal.RequireFromString("100.00"), running))
}
