package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNodeManager struct {
	usages  []NodeUsage
	missing map[NodeId]bool // nodes Exists should report false for
}

func (f *fakeNodeManager) MostUsedFirst() []NodeUsage  { return f.usages }
func (f *fakeNodeManager) RefreshAllHealthyNodeUsage() {}
func (f *fakeNodeManager) Exists(id NodeId) bool       { return !f.missing[id] }
func (f *fakeNodeManager) HostnameAndIP(id NodeId) (string, string, bool) {
	return string(id), string(id), true
}

func alwaysRunning() bool { return true }

func baseCfg() Config {
	return Config{
		Threshold:                              0.1,
		Iterations:                              -1,
		MaxDatanodesRatioToInvolvePerIteration: 1.0,
		MaxSizeToMovePerIterationBytes:          1_000_000,
		MaxSizeEnteringTargetBytes:              1_000_000,
		MaxSizeLeavingSourceBytes:               1_000_000,
		BalancingInterval:                       time.Minute,
		MoveTimeout:                             time.Second,
		ContainerSizeBytes:                      10,
	}
}

func TestEngine_EmptySnapshot_Fails(t *testing.T) {
	nodes := &fakeNodeManager{usages: nil}
	containers := &stubContainerManager{containers: map[ContainerId]ContainerInfo{}, onNode: map[NodeId][]ContainerId{}}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, baseCfg(), testLog())
	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	assert.Equal(t, ResultFailed, stats.Result)
	assert.Nil(t, selections)
}

func TestEngine_BalancedCluster_CannotBalance(t *testing.T) {
	nodes := &fakeNodeManager{usages: []NodeUsage{
		{ID: "a", Capacity: 100, Remaining: 50},
		{ID: "b", Capacity: 100, Remaining: 50},
	}}
	containers := &stubContainerManager{containers: map[ContainerId]ContainerInfo{}, onNode: map[NodeId][]ContainerId{}}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, baseCfg(), testLog())
	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	assert.Equal(t, ResultCannotBalance, stats.Result)
	assert.Nil(t, selections)
}

func TestEngine_OneOverOneUnder_SchedulesExactlyOneMove(t *testing.T) {
	nodes := &fakeNodeManager{usages: []NodeUsage{
		{ID: "over", Capacity: 100, Remaining: 5},  // util 0.95
		{ID: "under", Capacity: 100, Remaining: 95}, // util 0.05
	}}
	containers := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"over"}, ReplicationFactor: 1},
		},
		onNode: map[NodeId][]ContainerId{"over": {"c1"}},
	}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, baseCfg(), testLog())

	// Resolve the move asynchronously so AwaitAll returns quickly.
	go func() {
		for {
			repl.mu.Lock()
			f, ok := repl.futures[MoveSelection{ContainerID: "c1", Source: "over", Target: "under"}]
			repl.mu.Unlock()
			if ok {
				f.resolve(MoveOutcome{Kind: MoveCompleted})
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	require.Equal(t, ResultCompleted, stats.Result)
	require.Len(t, selections, 1)
	assert.Equal(t, MoveSelection{ContainerID: "c1", Source: "over", Target: "under", SizeBytes: 10}, selections[0])
	assert.Equal(t, 1, stats.MovesCompleted)
	assert.Equal(t, int64(10), stats.SizeMovedBytes)
}

// TestEngine_SizeAccounting_UsesActualUsedBytesNotConfiguredCap guards §8
// invariant 2 (bytesLeaving == bytesEntering == sizeMoved): a container
// whose UsedBytes differs from the configured ContainerSizeBytes must still
// move its real size, not the fixed per-container cap used only for the
// pre-selection round-trip check.
func TestEngine_SizeAccounting_UsesActualUsedBytesNotConfiguredCap(t *testing.T) {
	nodes := &fakeNodeManager{usages: []NodeUsage{
		{ID: "over", Capacity: 100_000_000_000, Remaining: 5_000_000_000},   // util 0.95
		{ID: "under", Capacity: 100_000_000_000, Remaining: 95_000_000_000}, // util 0.05
	}}
	containers := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 5_000_000_000, State: ContainerStateClosed, ReplicaSet: []NodeId{"over"}, ReplicationFactor: 1},
		},
		onNode: map[NodeId][]ContainerId{"over": {"c1"}},
	}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	cfg := baseCfg()
	cfg.ContainerSizeBytes = 1_000_000 // deliberately far smaller than c1's actual size
	cfg.MaxSizeEnteringTargetBytes = 10_000_000_000

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, cfg, testLog())

	go func() {
		for {
			repl.mu.Lock()
			f, ok := repl.futures[MoveSelection{ContainerID: "c1", Source: "over", Target: "under"}]
			repl.mu.Unlock()
			if ok {
				f.resolve(MoveOutcome{Kind: MoveCompleted})
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	require.Equal(t, ResultCompleted, stats.Result)
	require.Len(t, selections, 1)
	assert.Equal(t, int64(5_000_000_000), selections[0].SizeBytes)
	assert.Equal(t, int64(5_000_000_000), stats.SizeMovedBytes)
}

// TestEngine_MissingSourceNode_LoggedAndSkipped guards §7's "missing node
// during matching is logged at WARN and matching continues" policy: a
// source node that vanished from the node manager between snapshot and
// matching must be skipped, not treated as fatal.
func TestEngine_MissingSourceNode_LoggedAndSkipped(t *testing.T) {
	nodes := &fakeNodeManager{
		usages: []NodeUsage{
			{ID: "over", Capacity: 100, Remaining: 5},
			{ID: "under", Capacity: 100, Remaining: 95},
		},
		missing: map[NodeId]bool{"over": true},
	}
	containers := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"over"}, ReplicationFactor: 1},
		},
		onNode: map[NodeId][]ContainerId{"over": {"c1"}},
	}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, baseCfg(), testLog())
	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	assert.Equal(t, ResultCannotBalance, stats.Result)
	assert.Nil(t, selections)
}

func TestEngine_NoValidTarget_CannotBalance(t *testing.T) {
	nodes := &fakeNodeManager{usages: []NodeUsage{
		{ID: "over", Capacity: 100, Remaining: 5},
		{ID: "under", Capacity: 100, Remaining: 95},
	}}
	containers := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			// Already replicated on "under", so no qualifying target exists.
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"over", "under"}, ReplicationFactor: 2},
		},
		onNode: map[NodeId][]ContainerId{"over": {"c1"}},
	}
	repl := newFakeReplicationManager()
	tracker := NewMoveTracker(repl, testLog())

	e := NewEngine(nodes, containers, tracker, PlacementAcceptAll{}, nil, baseCfg(), testLog())
	stats, selections := e.RunIteration(context.Background(), alwaysRunning, context.Background())

	assert.Equal(t, ResultCannotBalance, stats.Result)
	assert.Nil(t, selections)
}
