package balancer

import (
	"context"
	"time"
)

// NodeManager is the external collaborator that owns node membership and
// usage collection (out of scope for the core — see SPEC_FULL.md §1).
type NodeManager interface {
	// MostUsedFirst returns all in-service, healthy nodes, ranked
	// most-used first.
	MostUsedFirst() []NodeUsage
	// RefreshAllHealthyNodeUsage asks every healthy node to recompute its
	// on-disk usage; it does not block for the result.
	RefreshAllHealthyNodeUsage()
	// Exists reports whether id is a known node.
	Exists(id NodeId) bool
	// HostnameAndIP resolves id for include/exclude filtering.
	HostnameAndIP(id NodeId) (hostname, ip string, ok bool)
}

// ContainerManager is the external collaborator holding the
// pipeline/container catalogue.
type ContainerManager interface {
	// GetContainer returns the container's info, or ok=false if not found.
	GetContainer(id ContainerId) (ContainerInfo, bool)
	// ContainersOnNode lists the containers physically present on node.
	ContainersOnNode(node NodeId) []ContainerId
	// HasInFlightOperation reports whether the replication manager has an
	// operation already in progress against this container (§4.2 rule 3).
	HasInFlightOperation(id ContainerId) bool
}

// Future is a handle to an asynchronous move's eventual MoveOutcome.
type Future interface {
	// Done returns a channel closed once the outcome is available.
	Done() <-chan struct{}
	// Outcome returns the resolved outcome; valid only after Done closes.
	Outcome() MoveOutcome
	// Cancel cooperatively asks the engine to cancel the move. Whether the
	// physical move actually stops is the engine's concern.
	Cancel()
}

// ReplicationManager is the external collaborator that actually performs
// container moves.
type ReplicationManager interface {
	// Move submits a move request and returns immediately with a Future.
	// If the engine rejects synchronously (container or node not found),
	// the returned Future is already resolved as Failed.
	Move(ctx context.Context, containerID ContainerId, source, target NodeId) Future
}

// PlacementPolicy validates a candidate replica set.
type PlacementPolicy interface {
	Validate(replicaSet []NodeId) bool
}

// NetworkTopology exposes rack-awareness for the topology-aware FindTarget
// variant.
type NetworkTopology interface {
	SameRack(a, b NodeId) bool
	RackDistance(a, b NodeId) int
}

// SCMContext is the pull half of the balancer's relationship with its
// surrounding cluster manager (see SPEC_FULL.md §9 design notes).
type SCMContext interface {
	IsLeader() bool
	IsLeaderReady() bool
	IsInSafeMode() bool
}

// Config is the subset of internal/config.BalancerConfig the control loop
// consumes directly; kept separate from the viper-backed config struct so
// pkg/balancer has no dependency on internal/config.
type Config struct {
	Threshold                              float64
	Iterations                             int
	MaxDatanodesRatioToInvolvePerIteration float64
	MaxSizeToMovePerIterationBytes         int64
	MaxSizeEnteringTargetBytes             int64
	MaxSizeLeavingSourceBytes              int64
	BalancingInterval                      time.Duration
	MoveTimeout                            time.Duration
	TriggerDUEnable                        bool
	NetworkTopologyEnable                  bool
	NodeReportInterval                     time.Duration
	ContainerSizeBytes                     int64
	IncludeNodes                           []string
	ExcludeNodes                           []string
}

// Validate checks the fatal preconditions from §4.7: size caps must each
// exceed the container size.
func (c Config) Validate() error {
	if c.MaxSizeEnteringTargetBytes <= c.ContainerSizeBytes {
		return ConfigValidationError{Field: "MaxSizeEnteringTargetBytes", Reason: "must exceed ContainerSizeBytes"}
	}
	if c.MaxSizeLeavingSourceBytes <= c.ContainerSizeBytes {
		return ConfigValidationError{Field: "MaxSizeLeavingSourceBytes", Reason: "must exceed ContainerSizeBytes"}
	}
	return nil
}

// ConfigValidationError reports a single invalid configuration field.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e ConfigValidationError) Error() string {
	return e.Field + ": " + e.Reason
}
