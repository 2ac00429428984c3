package profile

import (
	"errors"
	"sync"

	"hedgerd/internal/hedger"
	"hedgerd/internal/logger"
)

// HedgeController is the slice of the hedging core reconciliation
// drives.
type HedgeController interface {
	Start(target hedger.Target) error
	Stop(key string) error
	Running(key string) bool
}

// Reconciler applies profile snapshots to the hedge controller: it
// starts autostart profiles, restarts ones whose settings changed and
// stops hedgers whose profile was removed. Removal only stops keys the
// reconciler itself started, so hedgers started over the API survive a
// profile edit; an autostart profile for an already-running key takes
// it over.
type Reconciler struct {
	controller HedgeController

	mu      sync.Mutex
	managed map[string]hedger.Target // key -> last applied settings
}

func NewReconciler(controller HedgeController) *Reconciler {
	return &Reconciler{
		controller: controller,
		managed:    make(map[string]hedger.Target),
	}
}

// Apply reconciles the controller against one snapshot. Errors are
// logged per profile; one bad entry never blocks the rest.
func (r *Reconciler) Apply(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desired := make(map[string]hedger.Target, len(snap.Profiles))
	for _, name := range snap.Names() {
		def := snap.Profiles[name]
		if !def.Autostart {
			continue
		}
		target, err := def.Target()
		if err != nil {
			logger.Errorf("profile %s rejected: %v", name, err)
			continue
		}
		desired[target.Key] = target
	}

	// Stop managed hedgers whose profile disappeared or lost autostart.
	for key := range r.managed {
		if _, keep := desired[key]; keep {
			continue
		}
		if err := r.controller.Stop(key); err != nil && !errors.Is(err, hedger.ErrNotRunning) {
			logger.Errorf("stopping hedger %s: %v", key, err)
		}
		delete(r.managed, key)
	}

	for key, target := range desired {
		prev, known := r.managed[key]
		if known && prev == target && r.controller.Running(key) {
			continue
		}
		if known || r.controller.Running(key) {
			// Settings changed: restart with the new target.
			if err := r.controller.Stop(key); err != nil && !errors.Is(err, hedger.ErrNotRunning) {
				logger.Errorf("restarting hedger %s: %v", key, err)
				continue
			}
		}
		if err := r.controller.Start(target); err != nil {
			logger.Errorf("starting hedger %s: %v", key, err)
			continue
		}
		r.managed[key] = target
		logger.Infof("hedger %s reconciled from profile", key)
	}
}
