package consensus

import (
	"context"
	"sync"
	"time"
)

// StatusListener is the push half of the SCM context described in the
// control loop's design notes: a one-way interface the context uses to
// notify interested services of leader/safe-mode transitions, without the
// context retaining ownership of the service.
type StatusListener interface {
	NotifyStatusChanged()
}

// StatusEvent records one leader/safe-mode transition, for diagnostics.
type StatusEvent struct {
	Timestamp time.Time
	WasLeader bool
	IsLeader  bool
	SafeMode  bool
}

// StatusWatcher watches the consensus Engine's leadership channel and
// safe-mode flag and fans transitions out to registered StatusListeners.
// Adapted from the teacher's election-monitoring goroutine: same
// ctx/cancel/wg lifecycle and history-recording idiom, narrowed to the two
// conditions the balancer actually needs (isLeader, isInSafeMode) instead of
// full priority-based candidate scoring, which has no role in a single-core
// control loop that only ever reads leadership, never participates in it.
type StatusWatcher struct {
	engine *Engine

	mu        sync.RWMutex
	listeners []StatusListener
	history   []StatusEvent

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusWatcher creates a watcher bound to engine. pollInterval governs
// how often safe-mode (which has no channel of its own) is re-checked;
// leadership transitions are observed immediately via the engine's channel.
func NewStatusWatcher(engine *Engine, pollInterval time.Duration) *StatusWatcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StatusWatcher{
		engine:       engine,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Subscribe registers a listener to be notified on every leader/safe-mode
// transition. Safe to call before or after Start.
func (w *StatusWatcher) Subscribe(l StatusListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Start begins the monitoring loop.
func (w *StatusWatcher) Start() {
	w.wg.Add(1)
	go w.monitorLoop()
}

// Stop halts the monitoring loop and waits for it to exit.
func (w *StatusWatcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *StatusWatcher) monitorLoop() {
	defer w.wg.Done()

	wasLeader := w.engine.IsLeader()
	wasSafeMode := w.engine.IsInSafeMode()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case isLeader := <-w.engine.LeadershipChanges():
			w.record(wasLeader, isLeader, w.engine.IsInSafeMode())
			wasLeader = isLeader
			w.notifyAll()
		case <-ticker.C:
			safeMode := w.engine.IsInSafeMode()
			if safeMode != wasSafeMode {
				w.record(wasLeader, wasLeader, safeMode)
				wasSafeMode = safeMode
				w.notifyAll()
			}
		}
	}
}

func (w *StatusWatcher) record(was, is, safeMode bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, StatusEvent{
		Timestamp: time.Now(),
		WasLeader: was,
		IsLeader:  is,
		SafeMode:  safeMode,
	})
	if len(w.history) > 256 {
		w.history = w.history[len(w.history)-256:]
	}
}

func (w *StatusWatcher) notifyAll() {
	w.mu.RLock()
	listeners := make([]StatusListener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.RUnlock()

	for _, l := range listeners {
		l.NotifyStatusChanged()
	}
}

// History returns a copy of the recorded status transitions.
func (w *StatusWatcher) History() []StatusEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]StatusEvent, len(w.history))
	copy(out, w.history)
	return out
}
