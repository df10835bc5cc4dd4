package biz

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-service/internal/constants"
)

func newHoldTestEnv(t *testing.T) (*fakeStore, *HoldUseCase) {
	t.Helper()
	store := newFakeStore()
	uc := NewHoldUseCase(&fakeHoldRepo{s: store}, log.NewStdLogger(io.Discard))
	return store, uc
}

func TestReserveDeductsBalance(t *testing.T) {
	store, uc := newHoldTestEnv(t)
	store.balances["u1"] = decimal.RequireFromString("100.00")

	hold, err := uc.Reserve(context.Background(), ReserveParams{
		UserID: "u1", Amount: decimal.RequireFromString("25.00"),
		IdempotencyKey: "key-1", ReferenceType: constants.RefTypeOrder, ReferenceID: "order-1",
		TTL: 30 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, constants.HoldStatusHeld, hold.Status)

	balance, err := uc.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), balance.Balance))
}

func TestReserveRejectsNonPositiveAmount(t *testing.T) {
	_, uc := newHoldTestEnv(t)
	for _, amount := range []string{"0", "-1.00"} {
		_, err := uc.Reserve(context.Background(), ReserveParams{
			UserID: "u1", Amount: decimal.RequireFromString(amount), IdempotencyKey: "k",
		})
		assert.ErrorIs(t, err, ErrBadRequest, "amount %s", amount)
	}
}

func TestReserveIdempotent(t *testing.T) {
	store, uc := newHoldTestEnv(t)
	store.balances["u1"] = decimal.RequireFromString("100.00")

	p := ReserveParams{
		UserID: "u1", Amount: decimal.RequireFromString("25.00"),
		IdempotencyKey: "key-1", TTL: 30 * time.Minute,
	}
	first, err := uc.Reserve(context.Background(), p)
	require.NoError(t, err)
	second, err := uc.Reserve(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	balance, _ := uc.GetBalance(context.Background(), "u1")
	assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), balance.Balance))
}

func TestCaptureReleaseExactlyOnce(t *testing.T) {
	store, uc := newHoldTestEnv(t)
	store.balances["u1"] = decimal.RequireFromString("100.00")

	hold, err := uc.Reserve(context.Background(), ReserveParams{
		UserID: "u1", Amount: decimal.RequireFromString("25.00"),
		IdempotencyKey: "key-1", TTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	// capture 与 release 并发竞争，恰好一方成功
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = uc.Capture(context.Background(), hold.ID)
	}()
	go func() {
		defer wg.Done()
		errs[1] = uc.Release(context.Background(), hold.ID, "caller quit")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var finalized *HoldAlreadyFinalizedError
			assert.ErrorAs(t, err, &finalized)
		}
	}
	assert.Equal(t, 1, succeeded)

	// 结局决定余额：captured 保持扣款，released 全额退回
	after, _ := uc.GetBalance(context.Background(), "u1")
	final, _ := uc.repo.GetHold(context.Background(), hold.ID)
	switch final.Status {
	case constants.HoldStatusCaptured:
		assert.True(t, MoneyEqual(decimal.RequireFromString("75.00"), after.Balance))
	case constants.HoldStatusReleased:
		assert.True(t, MoneyEqual(decimal.RequireFromString("100.00"), after.Balance))
	default:
		t.Fatalf("unexpected final status %s", final.Status)
	}
}

func TestReleaseExpiredHolds(t *testing.T) {
	store, uc := newHoldTestEnv(t)
	store.balances["u1"] = decimal.RequireFromString("100.00")

	expired, err := uc.Reserve(context.Background(), ReserveParams{
		UserID: "u1", Amount: decimal.RequireFromString("25.00"),
		IdempotencyKey: "key-1", TTL: -time.Minute,
	})
	require.NoError(t, err)
	fresh, err := uc.Reserve(context.Background(), ReserveParams{
		UserID: "u1", Amount: decimal.RequireFromString("10.00"),
		IdempotencyKey: "key-2", TTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	count, err := uc.ReleaseExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	h1, _ := uc.repo.GetHold(context.Background(), expired.ID)
	assert.Equal(t, constants.HoldStatusExpired, h1.Status)
	h2, _ := uc.repo.GetHold(context.Background(), fresh.ID)
	assert.Equal(t, constants.HoldStatusHeld, h2.Status)

	// 过期的退回，未过期的保持扣着
	balance, _ := uc.GetBalance(context.Background(), "u1")
	assert.True(t, MoneyEqual(decimal.RequireFromString("90.00"), balance.Balance))

	// 再跑一轮应当无事可做
	count, err = uc.ReleaseExpiredHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
