package hedger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
)

// runner is one per-key hedge loop. Cycles execute strictly
// sequentially: the loop goroutine is the only evaluator for its key.
type runner struct {
	ctrl   *Controller
	inst   instrument.Instrument
	target Target
	safe   *failSafe

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	active     bool
	lastDelta  float64
	lastEval   time.Time
	stopReason string
}

func newRunner(ctrl *Controller, inst instrument.Instrument, target Target) *runner {
	return &runner{
		ctrl:   ctrl,
		inst:   inst,
		target: target,
		safe:   newFailSafe(defaultFailureThreshold),
	}
}

func (r *runner) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Lock()
	r.active = true
	r.stopReason = ""
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)
}

// stop signals the loop and joins it with a bounded wait. An order
// submission already in flight completes; the loop just never starts
// another cycle.
func (r *runner) stop(timeout time.Duration) {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warnf("hedger: %s did not stop within %s", r.target.Key, timeout)
	}
	r.markStopped("stopped")
}

func (r *runner) loop(ctx context.Context) {
	defer r.wg.Done()
	defer r.markStopped("stopped")

	ticker := time.NewTicker(r.target.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.evaluate(ctx); err != nil {
			logger.Errorf("hedger: cycle failed for %s: %v", r.target.Key, err)
			if r.safe.RecordFailure() {
				logger.Errorf("hedger: %d consecutive failures for %s, stopping", r.safe.Failures(), r.target.Key)
				r.markStopped("consecutive failures")
				return
			}
		} else {
			r.safe.RecordSuccess()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// evaluate runs one hedge cycle. Skips (no positions, pending order,
// inside threshold, zero quantity) return nil; only broker failures
// count toward the fail-safe.
func (r *runner) evaluate(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hedge cycle panic: %v", rec)
			r.ctrl.record(Alert{
				Key:        r.target.Key,
				Instrument: r.inst.Key(),
				Status:     AlertError,
				Timestamp:  time.Now().UTC(),
				Detail:     fmt.Sprint(rec),
			})
		}
	}()

	key := r.target.Key

	positions, err := r.ctrl.broker.Positions(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: fetching positions for %s: %v", broker.ErrOperation, key, err)
	}
	if len(positions) == 0 {
		logger.Infof("hedger: no positions for %s, skipping cycle", key)
		r.observe(0)
		return nil
	}

	pending, err := r.ctrl.broker.PendingOrders(ctx, r.inst)
	if err != nil {
		return fmt.Errorf("%w: querying pending orders for %s: %v", broker.ErrOperation, key, err)
	}
	for _, o := range pending {
		if o.Status.Working() {
			logger.Infof("hedger: pending order %s (%s) on %s, skipping cycle", o.ID, o.Status, key)
			return nil
		}
	}

	aggregate := r.ctrl.aggregator.Aggregate(ctx, positions)
	r.observe(aggregate)
	diff := r.target.TargetDelta - aggregate
	logger.Infof("hedger: %s aggregate=%.2f target=%.2f diff=%.2f", key, aggregate, r.target.TargetDelta, diff)

	if math.Abs(diff) <= r.target.Threshold {
		logger.Infof("hedger: %s within threshold %.2f, no action", key, r.target.Threshold)
		return nil
	}

	qty := r.sizeOrder(ctx, diff)
	if qty == 0 {
		logger.Infof("hedger: %s order quantity rounds to zero, no action", key)
		return nil
	}

	side := broker.Buy
	if qty < 0 {
		side = broker.Sell
	}
	return r.submit(ctx, side, abs64(qty))
}

// sizeOrder converts the delta difference to shares or contracts.
func (r *runner) sizeOrder(ctx context.Context, diff float64) int64 {
	opt, isOption := r.inst.(instrument.Option)
	if !isOption {
		return orderQuantity(diff, r.target.MaxOrderQty)
	}
	per, ok := r.ctrl.aggregator.Source.PerContract(ctx, opt)
	if !ok || per == 0 {
		per = 0.5 * opt.Right.Sign()
	}
	return contractQuantity(diff, per, opt.EffectiveMultiplier(), r.target.MaxOrderQty)
}

func (r *runner) submit(ctx context.Context, side broker.Side, qty int64) error {
	alert := newAlert(r.target.Key, r.inst.Key(), side, qty)
	r.ctrl.record(alert)
	logger.Infof("hedger: submitting %s %d %s", side, qty, r.inst.Key())

	result, err := r.ctrl.broker.SubmitOrder(ctx, r.inst, side, qty)
	if err != nil {
		alert.Status = AlertError
		alert.Detail = err.Error()
		r.ctrl.record(alert)
		return fmt.Errorf("%w: submitting %s %d %s: %v", broker.ErrOperation, side, qty, r.inst.Key(), err)
	}

	switch {
	case result.Status == broker.StatusFilled:
		alert.Status = AlertFilled
		alert.FillPrice = result.AvgFillPrice
		alert.Detail = fmt.Sprintf("filled at %.4f", result.AvgFillPrice)
	case result.Status.Working():
		// A working order counts as a handled hedge: the pending-order
		// check suppresses re-triggering until it resolves.
		alert.Detail = fmt.Sprintf("order %s %s", result.OrderID, result.Status)
	default:
		alert.Status = AlertFailed
		alert.Detail = fmt.Sprintf("order %s", result.Status)
	}
	r.ctrl.record(alert)
	logger.Infof("hedger: order result for %s: %s", r.target.Key, alert.Detail)
	return nil
}

func (r *runner) observe(aggregate float64) {
	r.mu.Lock()
	r.lastDelta = aggregate
	r.lastEval = time.Now().UTC()
	r.mu.Unlock()
}

func (r *runner) markStopped(reason string) {
	r.mu.Lock()
	if r.active {
		r.active = false
		r.stopReason = reason
	}
	r.mu.Unlock()
}

func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *runner) status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunnerStatus{
		Key:          r.target.Key,
		Running:      r.active,
		Target:       r.target,
		LastDelta:    r.lastDelta,
		LastEvalTime: r.lastEval,
		Failures:     r.safe.Failures(),
		StopReason:   r.stopReason,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
