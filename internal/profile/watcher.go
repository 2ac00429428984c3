package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hedgerd/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// ChangeListener is called with each accepted snapshot.
type ChangeListener func(Snapshot)

const reloadDebounce = 500 * time.Millisecond

// Loader reads a profile document and watches it for edits. Editors
// save through renames and partial writes, so reloads are debounced
// and a document that fails validation keeps the previous snapshot.
type Loader struct {
	path string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener

	watcher *fsnotify.Watcher
	done    chan struct{}
	timerMu sync.Mutex
	timer   *time.Timer
}

// NewLoader loads the document once and starts the file watcher.
func NewLoader(path string) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader requires path")
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profile watcher: %w", err)
	}
	// Watch the directory: rename-based saves replace the inode and
	// a watch on the file itself goes stale.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("profile watcher: %w", err)
	}
	l := &Loader{
		path:    path,
		watcher: watcher,
		done:    make(chan struct{}),
		snapshot: Snapshot{
			Version:  1,
			LoadedAt: time.Now(),
			Profiles: cfg.Profiles,
		},
	}
	go l.watchLoop()
	return l, nil
}

// Snapshot returns the current accepted document.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe registers a listener and immediately delivers the current
// snapshot on a separate goroutine.
func (l *Loader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go deliver(fn, snap)
}

func (l *Loader) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}
	close(l.done)
	return l.watcher.Close()
}

func (l *Loader) watchLoop() {
	base := filepath.Base(l.path)
	for {
		select {
		case <-l.done:
			return
		case evt, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != base {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			l.scheduleReload()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("profile watcher error: %v", err)
		}
	}
}

func (l *Loader) scheduleReload() {
	l.timerMu.Lock()
	defer l.timerMu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(reloadDebounce, func() {
		select {
		case <-l.done:
			return
		default:
		}
		if err := l.reload(); err != nil {
			logger.Errorf("profile reload failed (%s): %v", l.path, err)
		}
	})
}

func (l *Loader) reload() error {
	cfg, err := Load(l.path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: cfg.Profiles,
	}
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.Unlock()

	logger.Infof("profile reloaded: version=%d profiles=%d", snap.Version, len(snap.Profiles))
	for _, fn := range listeners {
		go deliver(fn, snap)
	}
	return nil
}

func deliver(fn ChangeListener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("profile listener panic: %v", r)
		}
	}()
	fn(snap)
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt}
	if s.Profiles != nil {
		out.Profiles = make(map[string]Definition, len(s.Profiles))
		for name, def := range s.Profiles {
			out.Profiles[name] = def
		}
	}
	return out
}
