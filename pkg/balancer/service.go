package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodefleet/containerbalancer/pkg/ozoneerrors"
)

// state is the C7 lifecycle's two-state machine (§4.7).
type state int

const (
	stateStopped state = iota
	stateRunning
)

// Service is C7: the balancer's lifecycle wrapper around the iteration
// engine. Grounded on the teacher's started-bool-plus-mutex-plus-ctx/cancel
// worker pattern (pkg/scheduler/engine.go Start, pkg/scheduler/worker_manager.go),
// generalized to a two-way Stopped<->Running transition driven both by
// explicit start/stop calls and by external leadership/safe-mode
// notifications.
type Service struct {
	scm    SCMContext
	engine *Engine
	cfg    Config
	log    *logrus.Entry

	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onIterationStart func()               // hook fired before each RunIteration call; may be nil
	onIteration      func(IterationStats) // hook fired after each RunIteration call; may be nil
}

// NewService builds C7. onIterationStart, if non-nil, fires immediately
// before each iteration (§6.2 requires "latest" metrics to reset at
// iteration start, not after the previous iteration's values were already
// read). onIteration, if non-nil, fires after every iteration with its
// stats, whatever its result (used to feed pkg/balancermetrics' cumulative
// counters).
func NewService(scm SCMContext, engine *Engine, cfg Config, log *logrus.Entry, onIterationStart func(), onIteration func(IterationStats)) *Service {
	return &Service{
		scm:              scm,
		engine:           engine,
		cfg:              cfg,
		log:              log.WithField("component", "service"),
		onIterationStart: onIterationStart,
		onIteration:      onIteration,
	}
}

// shouldRun reports whether the worker's outer loop condition considers the
// service eligible to keep iterating.
//
// This always returns false by construction, and nothing calls it: the
// worker is started only by StartBalancer, and runWorker's loop continues
// until its iteration count is reached or its context is cancelled by the
// Running -> Stopped transition. Preserved exactly as found —
// see the design notes on this: it is dead weight kept for parity with the
// surrounding service manager's shape, not a bug to silently delete.
func (s *Service) shouldRun() bool {
	return false
}

// StartBalancer transitions Stopped -> Running (§4.7). Fails if already
// running, not leader-ready, in safe mode, or configuration is invalid.
func (s *Service) StartBalancer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateRunning {
		return ozoneerrors.PreconditionError("startBalancer", "already running")
	}
	if !s.scm.IsLeaderReady() {
		return ozoneerrors.PreconditionError("startBalancer", "not leader-ready")
	}
	if s.scm.IsInSafeMode() {
		return ozoneerrors.PreconditionError("startBalancer", "in safe mode")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = stateRunning

	s.wg.Add(1)
	go s.runWorker(ctx)

	s.log.Info("balancer started")
	return nil
}

// StopBalancer is idempotent (§4.7, §8 laws). It interrupts the worker and
// joins it. Never call this from the worker goroutine itself — use
// stopFromWorker, which signals the same transition without joining (the
// worker cannot wait on its own wg.Done()).
func (s *Service) StopBalancer() {
	s.signalStop()
	s.wg.Wait()
}

// stopFromWorker is runWorker's own exit path: same Running -> Stopped
// transition as StopBalancer, but it must not join the waitgroup it is
// itself a member of. Distinguishing this from an external stop by calling
// goroutine, rather than by a process-lifetime flag, is what makes §4.7's
// "if called from the worker itself, it does not join" hold for every
// caller, including one that stops the balancer while an iteration is still
// in flight.
func (s *Service) stopFromWorker() {
	s.signalStop()
}

// signalStop performs the idempotent Running -> Stopped transition and
// cancels the worker's context. It does not wait for the worker to exit.
func (s *Service) signalStop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Info("balancer stopped")
}

// IsRunning reports the current lifecycle state.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// NotifyStatusChanged implements consensus.StatusListener. Invoked by the
// surrounding cluster manager on leader/safe-mode transitions; if this node
// is no longer leader-ready or has entered safe mode, the balancer stops.
func (s *Service) NotifyStatusChanged() {
	if !s.scm.IsLeaderReady() || s.scm.IsInSafeMode() {
		s.StopBalancer()
	}
}

func (s *Service) runWorker(ctx context.Context) {
	defer s.wg.Done()

	isRunning := func() bool { return s.IsRunning() }

	iterations := 0
	for s.cfg.Iterations < 0 || iterations < s.cfg.Iterations {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !s.scm.IsLeader() || !s.scm.IsLeaderReady() || s.scm.IsInSafeMode() {
			s.stopFromWorker()
			return
		}

		if s.onIterationStart != nil {
			s.onIterationStart()
		}

		moveCtx, moveCancel := context.WithTimeout(ctx, s.cfg.MoveTimeout)
		stats, _ := s.engine.RunIteration(ctx, isRunning, moveCtx)
		moveCancel()

		if s.onIteration != nil {
			s.onIteration(stats)
		}

		iterations++

		switch stats.Result {
		case ResultInterrupted:
			return
		case ResultCannotBalance, ResultFailed:
			s.stopFromWorker()
			return
		}

		timer := time.NewTimer(s.cfg.BalancingInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	s.stopFromWorker()
}
