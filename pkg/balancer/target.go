package balancer

import "sort"

// TargetStrategy is C4: given a source and its candidate containers, picks
// a (container, target) pair satisfying all placement constraints, or
// reports none found.
//
// Two interchangeable variants are provided: byUsage (ascending current
// utilization, the default) and byTopology (rack locality preferred). Both
// share the same constraint-checking core, grounded on the teacher's
// TaskLoadBalancer.selectResourceAware / selectLeastLoaded pattern of
// scoring-then-filtering candidates (pkg/scheduler/load_balancer.go),
// generalized from worker-load scoring to node-utilization scoring.
type TargetStrategy struct {
	underUtilized []NodeUsage // least-used first (already reversed by C6)
	byID          map[NodeId]NodeUsage
	upperLimit    float64
	maxEntering   int64
	bytesEntering map[NodeId]int64

	placement PlacementPolicy
	topology  NetworkTopology
	useTopology bool

	containers ContainerManager
}

// NewTargetStrategy builds C4 over underUtilized (already ordered
// least-used-first by C6's reversal step).
func NewTargetStrategy(
	underUtilized []NodeUsage,
	upperLimit float64,
	maxSizeEnteringTarget int64,
	placement PlacementPolicy,
	topology NetworkTopology,
	useTopology bool,
	containers ContainerManager,
) *TargetStrategy {
	byID := make(map[NodeId]NodeUsage, len(underUtilized))
	for _, u := range underUtilized {
		byID[u.ID] = u
	}

	return &TargetStrategy{
		underUtilized: underUtilized,
		byID:          byID,
		upperLimit:    upperLimit,
		maxEntering:   maxSizeEnteringTarget,
		bytesEntering: make(map[NodeId]int64),
		placement:     placement,
		topology:      topology,
		useTopology:   useTopology,
		containers:    containers,
	}
}

// FindTargetForContainerMove picks a (container, target) pair from
// candidates for the given source, or ok=false if none qualifies (§4.4).
func (t *TargetStrategy) FindTargetForContainerMove(source NodeId, candidates []ContainerInfo) (MoveSelection, bool) {
	for _, c := range candidates {
		targets := t.orderedTargets(source, c)
		for _, target := range targets {
			if t.qualifies(source, target, c) {
				t.bytesEntering[target] += c.UsedBytes
				return MoveSelection{ContainerID: c.ID, Source: source, Target: target, SizeBytes: c.UsedBytes}, true
			}
		}
	}
	return MoveSelection{}, false
}

// BytesEntering returns cumulative bytes scheduled to enter id so far this
// iteration.
func (t *TargetStrategy) BytesEntering(id NodeId) int64 {
	return t.bytesEntering[id]
}

func (t *TargetStrategy) orderedTargets(source NodeId, c ContainerInfo) []NodeId {
	ids := make([]NodeId, len(t.underUtilized))
	for i, u := range t.underUtilized {
		ids[i] = u.ID
	}

	if !t.useTopology || t.topology == nil {
		// underUtilized is already ascending-utilization ordered by C6.
		return ids
	}

	sourceHasRackMate := false
	for _, r := range c.ReplicaSet {
		if r != source && t.topology.SameRack(r, source) {
			sourceHasRackMate = true
			break
		}
	}

	sort.SliceStable(ids, func(i, j int) bool {
		di := t.topologyScore(source, ids[i], c, sourceHasRackMate)
		dj := t.topologyScore(source, ids[j], c, sourceHasRackMate)
		return di < dj
	})
	return ids
}

// topologyScore ranks candidate targets: same-rack-as-an-existing-replica
// first (only relevant if the source itself is rack-colocated with a
// replica), then ascending rack distance from the source.
func (t *TargetStrategy) topologyScore(source, target NodeId, c ContainerInfo, sourceHasRackMate bool) int {
	if sourceHasRackMate {
		for _, r := range c.ReplicaSet {
			if t.topology.SameRack(r, target) {
				return 0
			}
		}
	}
	return 1 + t.topology.RackDistance(source, target)
}

func (t *TargetStrategy) qualifies(source, target NodeId, c ContainerInfo) bool {
	usage, inUnder := t.byID[target]
	if !inUnder {
		return false // constraint 1: must be in the initial underUtilized list
	}

	for _, r := range c.ReplicaSet {
		if r == target {
			return false // constraint 2: not already a replica
		}
	}

	if usage.Capacity <= 0 {
		return false
	}
	projectedRemaining := usage.Remaining - c.UsedBytes
	projectedUtil := float64(usage.Capacity-projectedRemaining) / float64(usage.Capacity)
	if projectedUtil > t.upperLimit {
		return false // constraint 3
	}

	if t.bytesEntering[target]+c.UsedBytes > t.maxEntering {
		return false // constraint 4
	}

	newReplicaSet := make([]NodeId, 0, len(c.ReplicaSet)+1)
	for _, r := range c.ReplicaSet {
		if r != source {
			newReplicaSet = append(newReplicaSet, r)
		}
	}
	newReplicaSet = append(newReplicaSet, target)

	if t.placement != nil && !t.placement.Validate(newReplicaSet) {
		return false // constraint 5
	}

	return true
}
