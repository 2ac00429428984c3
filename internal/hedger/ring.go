package hedger

import "sync"

// DefaultRingCapacity matches the display depth the dashboard reads.
const DefaultRingCapacity = 100

// AlertRing is a bounded, concurrency-safe ring of recent alerts.
// Appends from any hedge loop; the oldest entry is evicted at capacity.
type AlertRing struct {
	mu    sync.Mutex
	buf   []Alert
	head  int
	count int
}

func NewAlertRing(capacity int) *AlertRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &AlertRing{buf: make([]Alert, capacity)}
}

// Append records an alert, evicting the oldest entry when full.
func (r *AlertRing) Append(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	r.buf[idx] = a
	r.count++
}

// Recent returns up to n alerts, newest first. n <= 0 returns all.
func (r *AlertRing) Recent(n int) []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Alert, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.head + r.count - 1 - i) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len reports the number of alerts currently retained.
func (r *AlertRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
