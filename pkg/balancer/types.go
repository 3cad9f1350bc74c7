// Package balancer implements the container balancer control loop: usage
// snapshotting, over/under-utilization classification, greedy source/target
// matching, asynchronous move submission and tracking, and the surrounding
// service lifecycle.
package balancer

import "fmt"

// NodeId is an opaque, stable identifier for a data node.
type NodeId string

// ContainerId is an opaque, stable identifier for a container.
type ContainerId string

// NodeUsage is an immutable, per-iteration view of one node's capacity,
// used, and remaining bytes.
//
// Invariants: capacity >= used >= 0, capacity >= remaining >= 0,
// capacity >= used + remaining (the excess is reserved/unaccounted space,
// not an error).
type NodeUsage struct {
	ID        NodeId
	Capacity  int64
	Used      int64
	Remaining int64
}

// Utilization returns (capacity - remaining) / capacity, in [0, 1]. Returns
// 0 for a zero-capacity node rather than dividing by zero; such nodes are
// never meaningfully over- or under-utilized.
func (u NodeUsage) Utilization() float64 {
	if u.Capacity <= 0 {
		return 0
	}
	return float64(u.Capacity-u.Remaining) / float64(u.Capacity)
}

// ContainerState is the movable-state gate checked by C2's selection
// criteria.
type ContainerState string

const (
	ContainerStateOpen   ContainerState = "open"
	ContainerStateClosed ContainerState = "closed"
	ContainerStateSealed ContainerState = "sealed"
)

// Movable reports whether a container in this state is eligible to move.
func (s ContainerState) Movable() bool {
	return s == ContainerStateClosed || s == ContainerStateSealed
}

// ContainerInfo describes one container as observed at snapshot time.
// usedBytes is treated as immutable for the duration of an iteration.
type ContainerInfo struct {
	ID         ContainerId
	UsedBytes  int64
	ReplicaSet []NodeId
	State      ContainerState

	// ReplicationFactor is the container's configured target replica
	// count; eligibility requires len(ReplicaSet) == ReplicationFactor
	// (§4.2 rule 4 — we do not balance under-/over-replicated containers).
	ReplicationFactor int
}

// MoveSelection is produced by C4 (FindTarget) and consumed by C5 (the move
// tracker). SizeBytes is the selected container's actual UsedBytes at
// selection time, not the configured per-container cap — §8 invariant 2
// requires bytesLeaving/bytesEntering/sizeMoved to all agree on the real
// size moved.
type MoveSelection struct {
	ContainerID ContainerId
	Source      NodeId
	Target      NodeId
	SizeBytes   int64
}

func (m MoveSelection) String() string {
	return fmt.Sprintf("%s:%s->%s", m.ContainerID, m.Source, m.Target)
}

// MoveOutcomeKind tags the terminal state of one submitted move.
type MoveOutcomeKind string

const (
	MoveCompleted        MoveOutcomeKind = "completed"
	MoveFailed           MoveOutcomeKind = "failed"
	MoveTimedOut         MoveOutcomeKind = "timed_out"
	MoveCancelled        MoveOutcomeKind = "cancelled"
	MoveReplaced         MoveOutcomeKind = "replaced"
	MovePlacementInvalid MoveOutcomeKind = "placement_invalid"
)

// MoveOutcome is the tagged-variant result of one container move.
type MoveOutcome struct {
	Kind   MoveOutcomeKind
	Reason string
}

// IterationResult is C6's terminal status for one iteration.
type IterationResult string

const (
	ResultCompleted     IterationResult = "completed"
	ResultCannotBalance IterationResult = "cannot_balance"
	ResultInterrupted   IterationResult = "interrupted"
	ResultFailed        IterationResult = "failed"
)

// IterationStats summarizes one iteration for logging/metrics; it is the
// only thing that survives IterationState's destruction at iteration exit.
type IterationStats struct {
	Result             IterationResult
	SizeMovedBytes     int64
	DatanodesInvolved  int
	MovesCompleted     int
	MovesTimedOut      int
	MovesFailed        int
	UnbalancedDatanodes int
	UnbalancedBytes    int64
}

// ratioToBytes computes floor(capacity * ratio), per §4.6.4.
func ratioToBytes(capacity int64, ratio float64) int64 {
	return int64(float64(capacity) * ratio)
}

// clampToZero implements the §4.6.4 clamp: "bytes over upper limit" may
// underflow to negative in corner cases and must be clamped to zero before
// being added to totals.
func clampToZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
