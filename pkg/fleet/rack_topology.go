package fleet

import (
	"sync"

	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

// RackTopology is an in-memory balancer.NetworkTopology backed by its own
// node-to-rack map, filled through Assign; it does not read NodeManager.
type RackTopology struct {
	mu    sync.RWMutex
	racks map[balancer.NodeId]string
}

// NewRackTopology builds an empty topology; call Assign to register each
// node's rack (typically mirrored from NodeManager.RegisterNode).
func NewRackTopology() *RackTopology {
	return &RackTopology{racks: make(map[balancer.NodeId]string)}
}

// Assign records node's rack.
func (t *RackTopology) Assign(node balancer.NodeId, rack string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.racks[node] = rack
}

// SameRack implements balancer.NetworkTopology.
func (t *RackTopology) SameRack(a, b balancer.NodeId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ra, ok1 := t.racks[a]
	rb, ok2 := t.racks[b]
	return ok1 && ok2 && ra == rb
}

// RackDistance implements balancer.NetworkTopology: 0 for the same rack, 1
// otherwise. A real topology would use a multi-layer tree; this fixture has
// only one layer of locality to reason about.
func (t *RackTopology) RackDistance(a, b balancer.NodeId) int {
	if t.SameRack(a, b) {
		return 0
	}
	return 1
}
