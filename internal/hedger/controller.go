package hedger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"hedgerd/internal/delta"
	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
)

var (
	// ErrAlreadyRunning rejects a second Start for a key while its
	// hedger runs; starting twice is a logged no-op failure.
	ErrAlreadyRunning = errors.New("hedger already running for key")
	// ErrNotRunning rejects Stop for a key with no active hedger.
	ErrNotRunning = errors.New("no hedger running for key")
)

// Target configures one hedger instance. MaxOrderQty caps the size of
// any single hedge order and must be positive: an uncapped market
// order is never acceptable.
type Target struct {
	Key         string        `json:"key"`
	TargetDelta float64       `json:"target_delta"`
	Threshold   float64       `json:"threshold"`
	MaxOrderQty int64         `json:"max_order_qty"`
	Interval    time.Duration `json:"interval"`
}

const (
	DefaultInterval = 5 * time.Second
	stopJoinTimeout = 10 * time.Second
)

func (t Target) withDefaults() Target {
	if t.Interval <= 0 {
		t.Interval = DefaultInterval
	}
	if t.Threshold < 0 {
		t.Threshold = 0
	}
	return t
}

func (t Target) validate() error {
	if t.Key == "" {
		return fmt.Errorf("%w: empty key", instrument.ErrInvalidKey)
	}
	if t.MaxOrderQty <= 0 {
		return fmt.Errorf("hedge target %s: max order qty must be positive", t.Key)
	}
	return nil
}

// Controller owns the registry of active hedgers. It replaces the
// module-global status maps of earlier iterations with one injected
// object: all hedger state lives here and resets on process start.
type Controller struct {
	broker     broker.Broker
	aggregator *delta.Aggregator
	ring       *AlertRing
	sink       Sink // optional durable sink

	mu      sync.Mutex
	runners map[string]*runner
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSink attaches a durable alert sink alongside the in-memory ring.
func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithRing overrides the default alert ring.
func WithRing(r *AlertRing) Option {
	return func(c *Controller) { c.ring = r }
}

func NewController(b broker.Broker, agg *delta.Aggregator, opts ...Option) *Controller {
	c := &Controller{
		broker:     b,
		aggregator: agg,
		ring:       NewAlertRing(DefaultRingCapacity),
		runners:    make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a hedge loop for the target's key. The key is parsed
// up front so malformed input fails here, not inside the loop.
func (c *Controller) Start(target Target) error {
	if err := target.validate(); err != nil {
		return err
	}
	inst, err := instrument.ParseKey(target.Key)
	if err != nil {
		return err
	}
	target = target.withDefaults()
	key := inst.Key()
	target.Key = key

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.runners[key]; ok && existing.running() {
		logger.Warnf("hedger: already running for %s, start ignored", key)
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, key)
	}

	r := newRunner(c, inst, target)
	c.runners[key] = r
	r.start()
	logger.Infof("hedger: started for %s target=%.2f threshold=%.2f max_qty=%d interval=%s",
		key, target.TargetDelta, target.Threshold, target.MaxOrderQty, target.Interval)
	return nil
}

// Stop signals the key's loop to exit after its current cycle and
// joins it with a bounded wait. Stopping a stopped key is an error the
// caller may treat as a no-op.
func (c *Controller) Stop(key string) error {
	c.mu.Lock()
	r, ok := c.runners[key]
	c.mu.Unlock()
	if !ok || !r.running() {
		return fmt.Errorf("%w: %s", ErrNotRunning, key)
	}
	r.stop(stopJoinTimeout)
	logger.Infof("hedger: stopped for %s", key)
	return nil
}

// StopAll shuts every active hedger down; used on process exit.
func (c *Controller) StopAll() {
	c.mu.Lock()
	active := make([]*runner, 0, len(c.runners))
	for _, r := range c.runners {
		if r.running() {
			active = append(active, r)
		}
	}
	c.mu.Unlock()
	for _, r := range active {
		r.stop(stopJoinTimeout)
	}
}

// Running reports whether a hedger is active for the key.
func (c *Controller) Running(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runners[key]
	return ok && r.running()
}

// RunnerStatus is a point-in-time view of one hedger.
type RunnerStatus struct {
	Key          string    `json:"key"`
	Running      bool      `json:"running"`
	Target       Target    `json:"target"`
	LastDelta    float64   `json:"last_delta"`
	LastEvalTime time.Time `json:"last_eval_time"`
	Failures     int       `json:"consecutive_failures"`
	StopReason   string    `json:"stop_reason,omitempty"`
}

// Status lists every known hedger, running or stopped.
func (c *Controller) Status() []RunnerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RunnerStatus, 0, len(c.runners))
	for _, r := range c.runners {
		out = append(out, r.status())
	}
	return out
}

// Alerts returns up to n recent alerts, newest first.
func (c *Controller) Alerts(n int) []Alert {
	return c.ring.Recent(n)
}

func (c *Controller) record(a Alert) {
	c.ring.Append(a)
	if c.sink != nil {
		c.sink.Record(a)
	}
}
