package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

// future is the in-memory fixture's balancer.Future implementation: a
// closed-on-resolve channel plus a cancel signal, grounded on the teacher's
// TaskResult-over-channel pattern (pkg/scheduler/task_tracker.go) collapsed
// to a single-value future instead of a shared results channel.
type future struct {
	done    chan struct{}
	cancel  chan struct{}
	once    sync.Once
	outcome balancer.MoveOutcome
	mu      sync.Mutex
}

func newFuture() *future {
	return &future{done: make(chan struct{}), cancel: make(chan struct{})}
}

func (f *future) Done() <-chan struct{} { return f.done }

func (f *future) Outcome() balancer.MoveOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

func (f *future) Cancel() {
	f.once.Do(func() { close(f.cancel) })
}

func (f *future) resolve(o balancer.MoveOutcome) {
	f.mu.Lock()
	f.outcome = o
	f.mu.Unlock()
	close(f.done)
}

// ReplicationManager is an in-memory implementation of
// balancer.ReplicationManager. It simulates the latency of a real container
// move with a short fixed delay and applies the replica-set change to the
// catalogue on success.
type ReplicationManager struct {
	containers *ContainerCatalogue
	log        *logrus.Entry
	moveDelay  time.Duration
}

// NewReplicationManager builds the fixture replication manager.
func NewReplicationManager(containers *ContainerCatalogue, log *logrus.Entry) *ReplicationManager {
	return &ReplicationManager{
		containers: containers,
		log:        log.WithField("component", "replication"),
		moveDelay:  2 * time.Second,
	}
}

// Move implements balancer.ReplicationManager.
func (r *ReplicationManager) Move(ctx context.Context, containerID balancer.ContainerId, source, target balancer.NodeId) balancer.Future {
	f := newFuture()

	if _, ok := r.containers.GetContainer(containerID); !ok {
		f.resolve(balancer.MoveOutcome{Kind: balancer.MoveFailed, Reason: "container not found"})
		return f
	}

	r.containers.markInFlight(containerID)

	go func() {
		defer r.containers.clearInFlight(containerID)

		timer := time.NewTimer(r.moveDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			f.resolve(balancer.MoveOutcome{Kind: balancer.MoveCancelled, Reason: ctx.Err().Error()})
		case <-f.cancel:
			f.resolve(balancer.MoveOutcome{Kind: balancer.MoveCancelled, Reason: "cancelled by tracker"})
		case <-timer.C:
			r.containers.applyMove(containerID, source, target)
			r.log.WithField("move", containerID).Debug("move completed")
			f.resolve(balancer.MoveOutcome{Kind: balancer.MoveCompleted})
		}
	}()

	return f
}
