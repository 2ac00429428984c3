package hedger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hedgerd/internal/delta"
	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker is a scriptable broker for loop tests. Mutex-guarded so
// assertions can run while loops poll.
type fakeBroker struct {
	mu        sync.Mutex
	positions []broker.Position
	pending   []broker.Order
	greeks    broker.Greeks
	submitRes broker.OrderResult
	submitErr error
	posErr    error

	submitted []submittedOrder
}

type submittedOrder struct {
	inst instrument.Instrument
	side broker.Side
	qty  int64
}

func (f *fakeBroker) Positions(_ context.Context, _ string) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.posErr != nil {
		return nil, f.posErr
	}
	return append([]broker.Position{}, f.positions...), nil
}

func (f *fakeBroker) ContractGreeks(_ context.Context, _ instrument.Instrument) (broker.Greeks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.greeks, nil
}

func (f *fakeBroker) PendingOrders(_ context.Context, _ instrument.Instrument) ([]broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Order{}, f.pending...), nil
}

func (f *fakeBroker) SubmitOrder(_ context.Context, inst instrument.Instrument, side broker.Side, qty int64) (broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return broker.OrderResult{}, f.submitErr
	}
	f.submitted = append(f.submitted, submittedOrder{inst: inst, side: side, qty: qty})
	return f.submitRes, nil
}

func (f *fakeBroker) submittedOrders() []submittedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submittedOrder{}, f.submitted...)
}

func newTestController(b *fakeBroker) *Controller {
	return NewController(b, delta.NewAggregator(b))
}

func stockPositions(qty int64) []broker.Position {
	return []broker.Position{{Instrument: instrument.Stock{Symbol: "QQQ"}, Quantity: qty}}
}

func runOneCycle(t *testing.T, c *Controller, target Target) *runner {
	t.Helper()
	inst, err := instrument.ParseKey(target.Key)
	require.NoError(t, err)
	r := newRunner(c, inst, target.withDefaults())
	require.NoError(t, r.evaluate(context.Background()))
	return r
}

func TestEvaluate_WithinThresholdNoOrder(t *testing.T) {
	b := &fakeBroker{positions: stockPositions(180)}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 200, Threshold: 50, MaxOrderQty: 500})
	assert.Empty(t, b.submittedOrders())
	assert.Empty(t, c.Alerts(0))
}

func TestEvaluate_OutsideThresholdOrders(t *testing.T) {
	b := &fakeBroker{
		positions: stockPositions(100),
		submitRes: broker.OrderResult{Status: broker.StatusFilled, AvgFillPrice: 431.5},
	}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 200, Threshold: 50, MaxOrderQty: 500})

	orders := b.submittedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, broker.Buy, orders[0].side)
	assert.EqualValues(t, 100, orders[0].qty)

	alerts := c.Alerts(0)
	require.Len(t, alerts, 2) // PENDING then FILLED
	assert.Equal(t, AlertFilled, alerts[0].Status)
	assert.Equal(t, 431.5, alerts[0].FillPrice)
	assert.Equal(t, AlertPending, alerts[1].Status)
}

func TestEvaluate_ClampsToMaxOrderQty(t *testing.T) {
	b := &fakeBroker{
		positions: stockPositions(-1000),
		submitRes: broker.OrderResult{Status: broker.StatusSubmitted},
	}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 0, Threshold: 10, MaxOrderQty: 250})

	orders := b.submittedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, broker.Buy, orders[0].side)
	assert.EqualValues(t, 250, orders[0].qty)
}

func TestEvaluate_SellDirection(t *testing.T) {
	b := &fakeBroker{
		positions: stockPositions(300),
		submitRes: broker.OrderResult{Status: broker.StatusFilled},
	}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 100, Threshold: 10, MaxOrderQty: 500})

	orders := b.submittedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, broker.Sell, orders[0].side)
	assert.EqualValues(t, 200, orders[0].qty)
}

func TestEvaluate_PendingOrderSuppression(t *testing.T) {
	for _, status := range []broker.OrderStatus{broker.StatusSubmitted, broker.StatusPreSubmitted, broker.StatusPendingSubmit} {
		t.Run(string(status), func(t *testing.T) {
			b := &fakeBroker{
				positions: stockPositions(0),
				pending:   []broker.Order{{ID: "7", Status: status}},
			}
			c := newTestController(b)

			runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 500, Threshold: 1, MaxOrderQty: 500})
			assert.Empty(t, b.submittedOrders(), "working order must suppress new hedges")
		})
	}
}

func TestEvaluate_TerminalOrdersDoNotSuppress(t *testing.T) {
	b := &fakeBroker{
		positions: stockPositions(0),
		pending:   []broker.Order{{ID: "7", Status: broker.StatusFilled}},
		submitRes: broker.OrderResult{Status: broker.StatusFilled},
	}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 100, Threshold: 1, MaxOrderQty: 500})
	assert.Len(t, b.submittedOrders(), 1)
}

func TestEvaluate_NoPositionsSkips(t *testing.T) {
	b := &fakeBroker{}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 100, Threshold: 1, MaxOrderQty: 500})
	assert.Empty(t, b.submittedOrders())
}

func TestEvaluate_ZeroQuantitySkips(t *testing.T) {
	// diff = 0.4 rounds to zero shares.
	b := &fakeBroker{positions: stockPositions(100)}
	c := newTestController(b)

	runOneCycle(t, c, Target{Key: "QQQ", TargetDelta: 100.4, Threshold: 0.2, MaxOrderQty: 500})
	assert.Empty(t, b.submittedOrders())
}

func TestEvaluate_OptionHedgeSizing(t *testing.T) {
	// Hedging an option key: diff / (perContract * multiplier) contracts.
	b := &fakeBroker{
		positions: []broker.Position{{
			Instrument: instrument.Option{
				Underlying: "QQQ",
				Expiry:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
				Strike:     498,
				Right:      instrument.Put,
				Multiplier: 100,
			},
			Quantity: 10,
		}},
		greeks:    broker.Greeks{Delta: -0.5, HasDelta: true},
		submitRes: broker.OrderResult{Status: broker.StatusSubmitted},
	}
	c := newTestController(b)

	// Aggregate = 10 * -0.5 * 100 = -500; target 0 -> diff 500;
	// contracts = 500 / (-0.5*100) = -10 -> SELL 10.
	runOneCycle(t, c, Target{Key: "QQQ 241101P00498000", TargetDelta: 0, Threshold: 50, MaxOrderQty: 100})

	orders := b.submittedOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, broker.Sell, orders[0].side)
	assert.EqualValues(t, 10, orders[0].qty)
}

func TestEvaluate_BrokerErrorCounts(t *testing.T) {
	b := &fakeBroker{posErr: fmt.Errorf("socket closed")}
	c := newTestController(b)

	inst, err := instrument.ParseKey("QQQ")
	require.NoError(t, err)
	r := newRunner(c, inst, Target{Key: "QQQ", TargetDelta: 0, Threshold: 1}.withDefaults())

	err = r.evaluate(context.Background())
	assert.ErrorIs(t, err, broker.ErrOperation)
}

func TestEvaluate_SubmitErrorRecordsErrorAlert(t *testing.T) {
	b := &fakeBroker{
		positions: stockPositions(0),
		submitErr: fmt.Errorf("rejected by session"),
	}
	c := newTestController(b)

	inst, err := instrument.ParseKey("QQQ")
	require.NoError(t, err)
	r := newRunner(c, inst, Target{Key: "QQQ", TargetDelta: 100, Threshold: 1, MaxOrderQty: 500}.withDefaults())

	err = r.evaluate(context.Background())
	assert.ErrorIs(t, err, broker.ErrOperation)

	alerts := c.Alerts(0)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertError, alerts[0].Status)
	assert.Contains(t, alerts[0].Detail, "rejected by session")
}

func TestController_DuplicateStartRejected(t *testing.T) {
	b := &fakeBroker{positions: stockPositions(100)}
	c := newTestController(b)

	target := Target{Key: "QQQ", TargetDelta: 100, Threshold: 50, MaxOrderQty: 10, Interval: time.Hour}
	require.NoError(t, c.Start(target))
	defer c.StopAll()

	err := c.Start(target)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, c.Running("QQQ"))
}

func TestController_StartRejectsBadKey(t *testing.T) {
	c := newTestController(&fakeBroker{})
	err := c.Start(Target{Key: "QQQ 241101X00498000", MaxOrderQty: 10})
	assert.ErrorIs(t, err, instrument.ErrInvalidKey)
}

func TestController_StartRequiresOrderCap(t *testing.T) {
	c := newTestController(&fakeBroker{})
	for _, qty := range []int64{0, -1} {
		err := c.Start(Target{Key: "QQQ", Threshold: 1, MaxOrderQty: qty})
		require.Error(t, err)
		assert.False(t, c.Running("QQQ"))
	}
}

func TestController_StopStoppedIsNoOp(t *testing.T) {
	c := newTestController(&fakeBroker{})
	err := c.Stop("QQQ")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestController_StartStopLifecycle(t *testing.T) {
	b := &fakeBroker{positions: stockPositions(100)}
	c := newTestController(b)

	target := Target{Key: "QQQ", TargetDelta: 100, Threshold: 50, MaxOrderQty: 10, Interval: 10 * time.Millisecond}
	require.NoError(t, c.Start(target))
	assert.True(t, c.Running("QQQ"))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Stop("QQQ"))
	assert.False(t, c.Running("QQQ"))

	// Restart after stop is allowed.
	require.NoError(t, c.Start(target))
	require.NoError(t, c.Stop("QQQ"))
}

func TestController_ConsecutiveFailuresAutoStop(t *testing.T) {
	b := &fakeBroker{posErr: fmt.Errorf("gateway down")}
	c := newTestController(b)

	target := Target{Key: "QQQ", TargetDelta: 100, Threshold: 1, MaxOrderQty: 10, Interval: 5 * time.Millisecond}
	require.NoError(t, c.Start(target))

	require.Eventually(t, func() bool {
		return !c.Running("QQQ")
	}, 2*time.Second, 10*time.Millisecond, "3 consecutive broker errors must stop the hedger")

	statuses := c.Status()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Running)
	assert.Equal(t, "consecutive failures", statuses[0].StopReason)
}

func TestAlertRing_EvictsOldest(t *testing.T) {
	ring := NewAlertRing(3)
	for i := 0; i < 5; i++ {
		ring.Append(Alert{ID: fmt.Sprintf("a%d", i)})
	}
	recent := ring.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "a4", recent[0].ID)
	assert.Equal(t, "a3", recent[1].ID)
	assert.Equal(t, "a2", recent[2].ID)
	assert.Equal(t, 3, ring.Len())
}

func TestAlertRing_ConcurrentAppend(t *testing.T) {
	ring := NewAlertRing(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ring.Append(Alert{ID: fmt.Sprintf("%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 64, ring.Len())
	assert.Len(t, ring.Recent(0), 64)
}

func TestOrderQuantityRounding(t *testing.T) {
	cases := []struct {
		diff float64
		max  int64
		want int64
	}{
		{100.4, 500, 100},
		{100.5, 500, 101},
		{-100.5, 500, -101},
		{0.4, 500, 0},
		{-0.4, 500, 0},
		{900, 250, 250},
		{-900, 250, -250},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, orderQuantity(tc.diff, tc.max), "diff=%v", tc.diff)
	}
}

func TestContractQuantity(t *testing.T) {
	// 500 delta via 0.5-delta calls: 10 contracts.
	assert.EqualValues(t, 10, contractQuantity(500, 0.5, 100, 0))
	// Same exposure via puts goes the other way.
	assert.EqualValues(t, -10, contractQuantity(500, -0.5, 100, 0))
	// Degenerate per-contract delta sizes to zero.
	assert.EqualValues(t, 0, contractQuantity(500, 0, 100, 0))
	// Clamp preserves sign.
	assert.EqualValues(t, -3, contractQuantity(500, -0.5, 100, 3))
}
