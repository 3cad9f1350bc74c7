// Package fleet provides an in-memory implementation of the balancer's
// external collaborators (node manager, container manager, replication
// manager, placement policy, network topology). It exists for the CLI's
// standalone/demo mode; pkg/balancer's own tests use their own fakes. A
// production deployment would instead bind pkg/balancer's collaborator
// interfaces to the real persistent KV store and replication engine (both
// explicitly out of scope — see SPEC_FULL.md §1).
package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

// NodeStatus mirrors the teacher's WorkerStatus enum, narrowed to the
// states a data node collaborator cares about.
type NodeStatus string

const (
	NodeStatusOnline  NodeStatus = "online"
	NodeStatusOffline NodeStatus = "offline"
)

// Node is the fleet's internal record for one data node; NodeUsage is
// derived from it on demand.
type Node struct {
	ID       balancer.NodeId
	Hostname string
	IP       string
	Rack     string

	Capacity  int64
	Used      int64
	Remaining int64

	Status   NodeStatus
	LastSeen time.Time
}

// NodeManager is an in-memory node registry implementing
// balancer.NodeManager, grounded on the teacher's WorkerManager registry
// (registration map + RWMutex + periodic refresh loop), generalized from
// worker/capability tracking to node capacity/usage tracking.
type NodeManager struct {
	mu    sync.RWMutex
	nodes map[balancer.NodeId]*Node

	refreshInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNodeManager creates an empty node manager. refreshInterval governs the
// background loop that simulates nodes reporting fresh disk usage.
func NewNodeManager(refreshInterval time.Duration) *NodeManager {
	if refreshInterval <= 0 {
		refreshInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NodeManager{
		nodes:           make(map[balancer.NodeId]*Node),
		refreshInterval: refreshInterval,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start begins the background usage-refresh loop.
func (nm *NodeManager) Start() {
	nm.wg.Add(1)
	go nm.refreshLoop()
}

// Stop halts the background loop.
func (nm *NodeManager) Stop() {
	nm.cancel()
	nm.wg.Wait()
}

// RegisterNode adds or replaces a node record.
func (nm *NodeManager) RegisterNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("node and node ID are required")
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()

	n.LastSeen = time.Now()
	if n.Status == "" {
		n.Status = NodeStatusOnline
	}
	nm.nodes[n.ID] = n
	return nil
}

// UnregisterNode removes a node.
func (nm *NodeManager) UnregisterNode(id balancer.NodeId) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.nodes, id)
}

// UpdateUsage updates a node's used and remaining bytes (capacity is left
// unchanged), simulating a data node's periodic usage report.
func (nm *NodeManager) UpdateUsage(id balancer.NodeId, used, remaining int64) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	n, ok := nm.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	n.Used = used
	n.Remaining = remaining
	n.LastSeen = time.Now()
	return nil
}

// MostUsedFirst implements balancer.NodeManager: returns all online nodes
// ranked from most- to least-used by utilization.
func (nm *NodeManager) MostUsedFirst() []balancer.NodeUsage {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	usages := make([]balancer.NodeUsage, 0, len(nm.nodes))
	for _, n := range nm.nodes {
		if n.Status != NodeStatusOnline {
			continue
		}
		usages = append(usages, balancer.NodeUsage{
			ID:        n.ID,
			Capacity:  n.Capacity,
			Used:      n.Used,
			Remaining: n.Remaining,
		})
	}

	sort.Slice(usages, func(i, j int) bool {
		ui, uj := usages[i].Utilization(), usages[j].Utilization()
		if ui != uj {
			return ui > uj
		}
		return usages[i].ID < usages[j].ID
	})

	return usages
}

// RefreshAllHealthyNodeUsage simulates asking every healthy node to
// recompute its on-disk usage; in this in-memory fixture there is nothing
// to recompute, so it is a no-op that exists to satisfy the collaborator
// interface; it records nothing about being called.
func (nm *NodeManager) RefreshAllHealthyNodeUsage() {}

// Exists implements balancer.NodeManager.
func (nm *NodeManager) Exists(id balancer.NodeId) bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	_, ok := nm.nodes[id]
	return ok
}

// HostnameAndIP implements balancer.NodeManager, used by C1's
// include/exclude filtering.
func (nm *NodeManager) HostnameAndIP(id balancer.NodeId) (hostname, ip string, ok bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	n, found := nm.nodes[id]
	if !found {
		return "", "", false
	}
	return n.Hostname, n.IP, true
}

// Rack returns a node's rack, used by the topology-aware FindTarget
// variant.
func (nm *NodeManager) Rack(id balancer.NodeId) (string, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	n, found := nm.nodes[id]
	if !found {
		return "", false
	}
	return n.Rack, true
}

func (nm *NodeManager) refreshLoop() {
	defer nm.wg.Done()

	ticker := time.NewTicker(nm.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-nm.ctx.Done():
			return
		case <-ticker.C:
			nm.RefreshAllHealthyNodeUsage()
		}
	}
}
