package hedger

import "sync"

// failSafe trips after a number of consecutive cycle failures; a
// hedger that keeps erroring must stop rather than hedge blindly.
type failSafe struct {
	mu        sync.Mutex
	failures  int
	threshold int
}

const defaultFailureThreshold = 3

func newFailSafe(threshold int) *failSafe {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	return &failSafe{threshold: threshold}
}

// RecordSuccess resets the consecutive-failure count.
func (f *failSafe) RecordSuccess() {
	f.mu.Lock()
	f.failures = 0
	f.mu.Unlock()
}

// RecordFailure counts a failure and reports whether the trip
// threshold has been reached.
func (f *failSafe) RecordFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	return f.failures >= f.threshold
}

func (f *failSafe) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}
