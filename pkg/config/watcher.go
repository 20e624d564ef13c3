package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"renter-registry/internal/matching"
	"renter-registry/pkg/logging"
	"renter-registry/pkg/metrics"
)

// Snapshot is one consistent view of env config and match policy.
type Snapshot struct {
	Env    *Config
	Policy matching.Policy
}

// Change describes a configuration update event.
// Only a subset of fields may have changed; see Fields for the list of keys.
type Change struct {
	Old    *Snapshot
	New    *Snapshot
	Fields []string
	Err    error
}

// Subscriber channel buffer size; small to apply back-pressure if receivers are slow.
const subBuf = 4

// Watcher reloads configuration when the policy file or the optional
// CONFIG_FILE .env file changes on disk. Events are debounced; editors that
// save by rename are handled by watching the parent directories.
type Watcher struct {
	mu       sync.RWMutex
	cur      *Snapshot
	fallback []byte
	delay    time.Duration
	load     func() *Config
	subs     []chan Change
	closed   bool
	reload   sync.Mutex

	fsw     *fsnotify.Watcher
	files   map[string]struct{}
	done    chan struct{}
	started bool

	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l.WithComponent("config") }
}

func WithWatcherMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// NewWatcher starts from cur. fallback is the policy used when no
// MATCH_POLICY_FILE is set.
func NewWatcher(cur Snapshot, fallback []byte, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	w := &Watcher{
		cur:      &cur,
		fallback: fallback,
		delay:    cur.Env.ReloadDelay,
		load:     Load,
		fsw:      fsw,
		files:    make(map[string]struct{}),
		done:     make(chan struct{}),
		logger:   logging.Nop().WithComponent("config"),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, path := range []string{cur.Env.PolicyFile, cur.Env.ConfigFile} {
		if path == "" {
			continue
		}
		if err := w.track(path); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) track(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}
	w.files[abs] = struct{}{}
	return nil
}

// Current returns the active snapshot.
func (w *Watcher) Current() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.cur
}

// Subscribe returns a channel to receive Change notifications.
// Caller should drain the channel until it is closed.
func (w *Watcher) Subscribe() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Change, subBuf)
	w.subs = append(w.subs, ch)
	return ch
}

// Start begins watching in a goroutine. It is safe to call once.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.loop()
}

// Close stops the watcher and closes subscriber channels.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	w.fsw.Close()
	if started {
		<-w.done
	}

	w.mu.Lock()
	for _, s := range w.subs {
		close(s)
	}
	w.subs = nil
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.delay)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", logging.String("error", err.Error()))

		case <-fire:
			fire = nil
			w.Reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

// Reload re-reads the .env file, the environment and the policy file. An
// invalid result is reported to subscribers and the current snapshot kept.
func (w *Watcher) Reload() {
	w.reload.Lock()
	defer w.reload.Unlock()

	w.mu.RLock()
	old := w.cur
	w.mu.RUnlock()

	if old.Env.ConfigFile != "" {
		if err := godotenv.Overload(old.Env.ConfigFile); err != nil {
			w.fail(old, nil, fmt.Errorf("reload %s: %w", old.Env.ConfigFile, err))
			return
		}
	}

	env := w.load()
	if err := env.Validate(); err != nil {
		w.fail(old, &Snapshot{Env: env}, fmt.Errorf("invalid config: %w", err))
		return
	}
	policy, err := LoadPolicy(env.PolicyFile, w.fallback)
	if err != nil {
		w.fail(old, &Snapshot{Env: env}, fmt.Errorf("invalid match policy: %w", err))
		return
	}

	next := &Snapshot{Env: env, Policy: policy}
	fields := diffKeys(old, next)
	if len(fields) == 0 {
		return
	}

	w.mu.Lock()
	w.cur = next
	w.mu.Unlock()

	w.metrics.IncConfigReload("ok")
	w.logger.Info("configuration reloaded", logging.Strings("fields", fields))
	w.notify(Change{Old: old, New: next, Fields: fields})
}

func (w *Watcher) fail(old, next *Snapshot, err error) {
	w.metrics.IncConfigReload("error")
	w.logger.Error("configuration reload rejected", err)
	w.notify(Change{Old: old, New: next, Err: err})
}

func (w *Watcher) notify(chg Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.subs {
		select {
		case s <- chg:
		default:
			// drop if slow; keep system moving
		}
	}
}

func diffKeys(a, b *Snapshot) []string {
	if a == nil || b == nil || a.Env == nil || b.Env == nil {
		return []string{"all"}
	}
	var f []string
	appendIf := func(cond bool, name string) {
		if cond {
			f = append(f, name)
		}
	}
	appendIf(a.Env.LogLevel != b.Env.LogLevel, "LogLevel")
	appendIf(a.Env.LogFormat != b.Env.LogFormat, "LogFormat")
	appendIf(a.Env.GenericNameMinCount != b.Env.GenericNameMinCount, "GenericNameMinCount")
	appendIf(a.Env.PolicyFile != b.Env.PolicyFile, "PolicyFile")
	appendIf(a.Env.SweepInterval != b.Env.SweepInterval || a.Env.SweepRPS != b.Env.SweepRPS ||
		a.Env.SweepBurst != b.Env.SweepBurst || a.Env.SweepBatchSize != b.Env.SweepBatchSize, "Sweep")
	appendIf(!reflect.DeepEqual(a.Policy.Normalize, b.Policy.Normalize), "Policy.Normalize")
	appendIf(!reflect.DeepEqual(a.Policy.Scoring, b.Policy.Scoring), "Policy.Scoring")
	appendIf(a.Policy.Matching != b.Policy.Matching, "Policy.Matching")
	return f
}
