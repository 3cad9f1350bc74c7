package balancer

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nodefleet/containerbalancer/pkg/ozoneerrors"
)

var errMoveRejected = errors.New("move rejected by replication manager")

// MoveTracker is C5: it submits container moves through the replication
// manager, tracks their futures, and awaits them all against a deadline.
//
// Grounded on the teacher's TaskTracker registry+ctx/cancel/wg lifecycle
// (pkg/scheduler/task_tracker.go): an active-set map guarded by a mutex,
// entries keyed for idempotent re-submission, and a single await loop driven
// by golang.org/x/sync/errgroup bound to a deadline-derived context rather
// than the teacher's polling cleanupLoop.
type MoveTracker struct {
	repl ReplicationManager
	log  *logrus.Entry

	mu      sync.Mutex
	pending map[MoveSelection]Future
}

// NewMoveTracker builds C5 over the given replication manager.
func NewMoveTracker(repl ReplicationManager, log *logrus.Entry) *MoveTracker {
	return &MoveTracker{
		repl:    repl,
		log:     log.WithField("component", "movetracker"),
		pending: make(map[MoveSelection]Future),
	}
}

// Submit starts a move and tracks its future, keyed by
// (containerID, source, target). Re-submitting the same key returns the
// existing in-flight future rather than starting a second move.
func (t *MoveTracker) Submit(ctx context.Context, sel MoveSelection) Future {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pendingSel, f := range t.pending {
		if pendingSel.ContainerID == sel.ContainerID && pendingSel.Source == sel.Source && pendingSel.Target == sel.Target {
			return f
		}
	}

	f := t.repl.Move(ctx, sel.ContainerID, sel.Source, sel.Target)
	// Stored unconditionally, even though the future may already be
	// resolved (e.g. synchronous rejection): every submitted move must be
	// accounted for in AwaitAll's tally, including ones that fail
	// immediately. A prior version of this dropped exceptionally-resolved
	// futures here, silently under-counting failed moves.
	t.pending[sel] = f
	t.log.WithField("move", sel.String()).Debug("move submitted")
	return f
}

// Pending returns the number of futures currently tracked.
func (t *MoveTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// AwaitAll blocks until every tracked future resolves or ctx is done
// (typically ctx carries the iteration's move-timeout deadline). Futures
// still unresolved when ctx ends are cancelled and counted as MoveTimedOut.
// Returns completed/timedOut/failed tallies and clears the tracked set.
func (t *MoveTracker) AwaitAll(ctx context.Context) (completed, timedOut, failed int) {
	t.mu.Lock()
	selections := make([]MoveSelection, 0, len(t.pending))
	futures := make([]Future, 0, len(t.pending))
	for sel, f := range t.pending {
		selections = append(selections, sel)
		futures = append(futures, f)
	}
	t.pending = make(map[MoveSelection]Future)
	t.mu.Unlock()

	if len(futures) == 0 {
		return 0, 0, 0
	}

	outcomes := make([]MoveOutcome, len(futures))

	g, gctx := errgroup.WithContext(context.Background())
	for i, f := range futures {
		i, f := i, f
		g.Go(func() error {
			select {
			case <-f.Done():
				outcomes[i] = f.Outcome()
			case <-ctx.Done():
				f.Cancel()
				<-f.Done()
				outcomes[i] = MoveOutcome{Kind: MoveTimedOut, Reason: ctx.Err().Error()}
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		switch o.Kind {
		case MoveCompleted:
			completed++
		case MoveTimedOut:
			timedOut++
			t.log.WithError(ozoneerrors.TimeoutErr("awaitMove", 0)).
				WithField("move", selections[i].String()).
				Warn("move timed out waiting for resolution")
		default:
			failed++
			t.log.WithError(ozoneerrors.SubmissionError(string(selections[i].ContainerID), errMoveRejected)).
				WithField("move", selections[i].String()).
				WithField("outcome", o.Kind).
				WithField("reason", o.Reason).
				Warn("move did not complete")
		}
	}
	return completed, timedOut, failed
}
