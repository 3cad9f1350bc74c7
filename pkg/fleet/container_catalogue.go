package fleet

import (
	"sync"

	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

// ContainerCatalogue is an in-memory implementation of
// balancer.ContainerManager, grounded on the same registry+RWMutex shape as
// NodeManager above.
type ContainerCatalogue struct {
	mu         sync.RWMutex
	containers map[balancer.ContainerId]balancer.ContainerInfo
	byNode     map[balancer.NodeId]map[balancer.ContainerId]struct{}
	inFlight   map[balancer.ContainerId]struct{}
}

// NewContainerCatalogue creates an empty catalogue.
func NewContainerCatalogue() *ContainerCatalogue {
	return &ContainerCatalogue{
		containers: make(map[balancer.ContainerId]balancer.ContainerInfo),
		byNode:     make(map[balancer.NodeId]map[balancer.ContainerId]struct{}),
		inFlight:   make(map[balancer.ContainerId]struct{}),
	}
}

// Put adds or replaces a container record and indexes it by its replica set.
func (c *ContainerCatalogue) Put(info balancer.ContainerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.containers[info.ID]; ok {
		c.unindex(old)
	}
	c.containers[info.ID] = info
	for _, node := range info.ReplicaSet {
		if c.byNode[node] == nil {
			c.byNode[node] = make(map[balancer.ContainerId]struct{})
		}
		c.byNode[node][info.ID] = struct{}{}
	}
}

func (c *ContainerCatalogue) unindex(info balancer.ContainerInfo) {
	for _, node := range info.ReplicaSet {
		delete(c.byNode[node], info.ID)
	}
}

// GetContainer implements balancer.ContainerManager.
func (c *ContainerCatalogue) GetContainer(id balancer.ContainerId) (balancer.ContainerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.containers[id]
	return info, ok
}

// ContainersOnNode implements balancer.ContainerManager.
func (c *ContainerCatalogue) ContainersOnNode(node balancer.NodeId) []balancer.ContainerId {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.byNode[node]
	out := make([]balancer.ContainerId, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// HasInFlightOperation implements balancer.ContainerManager.
func (c *ContainerCatalogue) HasInFlightOperation(id balancer.ContainerId) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.inFlight[id]
	return ok
}

// markInFlight/clearInFlight are used by ReplicationManager to reserve a
// container for the duration of a simulated move, so the catalogue reflects
// rule 3 of §4.2 while a move is outstanding.
func (c *ContainerCatalogue) markInFlight(id balancer.ContainerId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[id] = struct{}{}
}

func (c *ContainerCatalogue) clearInFlight(id balancer.ContainerId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// applyMove moves a container's replica set from source to target on
// successful completion.
func (c *ContainerCatalogue) applyMove(id balancer.ContainerId, source, target balancer.NodeId) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.containers[id]
	if !ok {
		return
	}
	c.unindex(info)

	newSet := make([]balancer.NodeId, 0, len(info.ReplicaSet))
	for _, n := range info.ReplicaSet {
		if n != source {
			newSet = append(newSet, n)
		}
	}
	newSet = append(newSet, target)
	info.ReplicaSet = newSet

	c.containers[id] = info
	for _, node := range info.ReplicaSet {
		if c.byNode[node] == nil {
			c.byNode[node] = make(map[balancer.ContainerId]struct{})
		}
		c.byNode[node][id] = struct{}{}
	}
}
