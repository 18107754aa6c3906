package trigger

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// placeholderRE matches %name%-style substitutions in glob patterns, e.g.
// "refs/heads/%name%" resolved against a carrier object at arm time.
var placeholderRE = regexp.MustCompile(`%(\w+)%`)

// Multiplexer shares one underlying fsnotify.Watcher per watched root
// directory across every PathWatcher registered under it, so N cells
// watching the same repository cost one OS watch, not N. This mirrors the
// teacher lineage's MultiObserver/DispatchingHandler pair.
type Multiplexer struct {
	mu   sync.Mutex
	dirs map[string]*dispatcher
}

// NewMultiplexer creates an empty Multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{dirs: make(map[string]*dispatcher)}
}

// Default is the process-wide multiplexer used by NewPathWatcher unless a
// caller supplies its own.
var Default = NewMultiplexer()

type dispatcher struct {
	root string

	mu       sync.RWMutex
	handlers map[*PathWatcher]struct{} // copy-on-write snapshot held in `snapshot`
	snapshot []*PathWatcher

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func (m *Multiplexer) schedule(root string, h *PathWatcher) (*dispatcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dirs[root]
	if !ok {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		d = &dispatcher{
			root:     root,
			handlers: make(map[*PathWatcher]struct{}),
			watcher:  w,
			done:     make(chan struct{}),
		}
		if err := addTreeRecursive(w, root); err != nil {
			_ = w.Close()
			return nil, err
		}
		m.dirs[root] = d
		go d.run()
	}
	d.addHandler(h)
	return d, nil
}

func (m *Multiplexer) unschedule(root string, h *PathWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.dirs[root]
	if !ok {
		return
	}
	if d.removeHandler(h) {
		delete(m.dirs, root)
		close(d.done)
		_ = d.watcher.Close()
	}
}

func addTreeRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			_ = w.Add(path)
		}
		return nil
	})
}

func (d *dispatcher) addHandler(h *PathWatcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h] = struct{}{}
	d.rebuildSnapshot()
}

// removeHandler returns true if no handlers remain.
func (d *dispatcher) removeHandler(h *PathWatcher) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, h)
	d.rebuildSnapshot()
	return len(d.handlers) == 0
}

func (d *dispatcher) rebuildSnapshot() {
	snap := make([]*PathWatcher, 0, len(d.handlers))
	for h := range d.handlers {
		snap = append(snap, h)
	}
	d.snapshot = snap
}

func (d *dispatcher) handlersSnapshot() []*PathWatcher {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

func (d *dispatcher) run() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addTreeRecursive(d.watcher, ev.Name)
				}
			}
			for _, h := range d.handlersSnapshot() {
				h.handle(ev)
			}
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		case <-d.done:
			return
		}
	}
}

// Carrier resolves a %placeholder% found in a glob pattern to its
// substituted value, analogous to the teacher lineage's per-object
// "%name%" substitution on LazyGitProperty globs.
type Carrier func(placeholder string) (string, bool)

// PathWatcher fires when a filesystem event's source or destination path,
// relative to root, matches any of patterns. Patterns may contain
// %name%-style placeholders resolved against carrier at Arm time.
type PathWatcher struct {
	mux      *Multiplexer
	root     string
	patterns []string
	carrier  Carrier
	debounce time.Duration
	lockFile string

	mu       sync.Mutex
	callback func()
	disp     *dispatcher
	timer    *time.Timer
}

// lockPollInterval is how often a firing watcher rechecks index.lock while
// it holds, and the settle delay observed after the lock is released.
const lockPollInterval = 50 * time.Millisecond

// NewPathWatcher creates a watcher rooted at root (typically the
// repository's control directory) that fires on any event matching one of
// patterns, using the shared Default multiplexer.
func NewPathWatcher(root string, patterns []string, carrier Carrier) *PathWatcher {
	return NewPathWatcherWithMultiplexer(Default, root, patterns, carrier)
}

// NewPathWatcherWithMultiplexer is NewPathWatcher with an explicit
// multiplexer, primarily for tests that want isolation from Default.
func NewPathWatcherWithMultiplexer(mux *Multiplexer, root string, patterns []string, carrier Carrier) *PathWatcher {
	return &PathWatcher{mux: mux, root: root, patterns: patterns, carrier: carrier}
}

// WithLockAwareness makes the watcher hold off firing while root's
// index.lock exists, retrying until git releases it and waiting one more
// lockPollInterval to let the write it guarded settle, mirroring the
// teacher lineage's GitLockWatcher.
func (p *PathWatcher) WithLockAwareness(root string) *PathWatcher {
	p.lockFile = filepath.Join(root, "index.lock")
	return p
}

// WithDebounce sets how long the watcher waits after a matching event
// before firing, restarting the wait on every further matching event, so a
// burst of ref/index writes (e.g. a rebase touching many refs) collapses
// into one callback invocation. The zero value fires on every matching
// event immediately, as before.
func (p *PathWatcher) WithDebounce(d time.Duration) *PathWatcher {
	p.debounce = d
	return p
}

// Arm implements kernel.Trigger.
func (p *PathWatcher) Arm(callback func()) error {
	p.mu.Lock()
	p.callback = callback
	p.mu.Unlock()

	abs, err := filepath.Abs(p.root)
	if err != nil {
		return err
	}
	d, err := p.mux.schedule(abs, p)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.disp = d
	p.mu.Unlock()
	return nil
}

// Disarm implements kernel.Trigger.
func (p *PathWatcher) Disarm() {
	p.mu.Lock()
	d := p.disp
	p.disp = nil
	p.mu.Unlock()
	if d != nil {
		p.mux.unschedule(d.root, p)
	}
}

func (p *PathWatcher) handle(ev fsnotify.Event) {
	abs, err := filepath.Abs(p.root)
	if err != nil {
		return
	}
	if p.pathMatches(abs, ev.Name) {
		p.fire()
		return
	}
	// Rename/move events: fsnotify reports source and destination as
	// separate events on most platforms, but some backends report a
	// single event with both names joined; handle both shapes.
	if parts := strings.SplitN(ev.Name, "\x00", 2); len(parts) == 2 {
		if p.pathMatches(abs, parts[1]) {
			p.fire()
		}
	}
}

func (p *PathWatcher) fire() {
	p.mu.Lock()
	if p.debounce <= 0 {
		p.mu.Unlock()
		p.invokeWhenUnlocked()
		return
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, p.invokeWhenUnlocked)
	p.mu.Unlock()
}

// invokeWhenUnlocked calls the armed callback, unless the watcher is
// lock-aware and root's index.lock currently exists — in which case it
// rechecks every lockPollInterval and, once the lock is gone, waits one
// more lockPollInterval before trying again. Each call waits on its own,
// so every fire seen while the lock is held yields its own callback.
func (p *PathWatcher) invokeWhenUnlocked() {
	p.mu.Lock()
	lockFile := p.lockFile
	p.mu.Unlock()

	if lockFile != "" {
		if _, err := os.Stat(lockFile); err == nil {
			time.AfterFunc(lockPollInterval, func() {
				if _, err := os.Stat(lockFile); err == nil {
					p.invokeWhenUnlocked()
					return
				}
				time.AfterFunc(lockPollInterval, p.invokeWhenUnlocked)
			})
			return
		}
	}

	p.mu.Lock()
	cb := p.callback
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *PathWatcher) pathMatches(root, absPath string) bool {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range p.patterns {
		glob := g
		if p.carrier != nil {
			glob = placeholderRE.ReplaceAllStringFunc(glob, func(m string) string {
				name := placeholderRE.FindStringSubmatch(m)[1]
				if v, ok := p.carrier(name); ok {
					return v
				}
				return m
			})
		}
		if ok, _ := filepath.Match(glob, rel); ok {
			return true
		}
	}
	return false
}
