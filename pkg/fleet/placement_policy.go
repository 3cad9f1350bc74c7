package fleet

import (
	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

// PlacementPolicy is a minimal in-memory balancer.PlacementPolicy: it
// accepts any replica set with no duplicate node ids. Real deployments
// would additionally enforce rack-spread and fault-domain rules; those are
// out of scope here (see SPEC_FULL.md §1) and left to the real placement
// engine this fixture stands in for.
type PlacementPolicy struct{}

// NewPlacementPolicy builds the fixture placement policy.
func NewPlacementPolicy() *PlacementPolicy {
	return &PlacementPolicy{}
}

// Validate implements balancer.PlacementPolicy.
func (p *PlacementPolicy) Validate(replicaSet []balancer.NodeId) bool {
	seen := make(map[balancer.NodeId]struct{}, len(replicaSet))
	for _, n := range replicaSet {
		if _, dup := seen[n]; dup {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}
