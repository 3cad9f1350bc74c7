package balancer

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/nodefleet/containerbalancer/pkg/ozoneerrors"
)

var errNodeNotFound = errors.New("node not found")

// Engine is C6: the single-iteration control algorithm. One Engine instance
// is long-lived across iterations; IterationState is scoped to a single
// call to RunIteration and discarded at its end.
type Engine struct {
	nodes      NodeManager
	containers ContainerManager
	tracker    *MoveTracker
	placement  PlacementPolicy
	topology   NetworkTopology
	cfg        Config
	log        *logrus.Entry
}

// NewEngine builds C6 over its collaborators.
func NewEngine(nodes NodeManager, containers ContainerManager, tracker *MoveTracker, placement PlacementPolicy, topology NetworkTopology, cfg Config, log *logrus.Entry) *Engine {
	return &Engine{
		nodes:      nodes,
		containers: containers,
		tracker:    tracker,
		placement:  placement,
		topology:   topology,
		cfg:        cfg,
		log:        log.WithField("component", "iteration"),
	}
}

// isRunningFunc lets the service report "still running" without the engine
// importing the service (avoids a dependency cycle); see Service.runWorker.
type isRunningFunc func() bool

// iterationState is scoped to a single RunIteration call; §5 notes it is
// thread-confined to the worker and needs no lock.
type iterationState struct {
	selectedContainers map[ContainerId]struct{}
	sourceToTarget      map[NodeId]NodeId
	datanodesInvolved   int
	sizeMoved           int64
}

// RunIteration executes the eleven-step algorithm in §4.6.2 once. ctx bounds
// the optional disk-usage-refresh wait; moveCtx is passed to every submitted
// move and bounds awaitAll; isRunning reports
// whether the surrounding service still wants this iteration to continue.
func (e *Engine) RunIteration(ctx context.Context, isRunning isRunningFunc, moveCtx context.Context) (IterationStats, []MoveSelection) {
	// Step 1-2: refresh + snapshot.
	snap := NewSnapshotter(e.nodes, e.cfg, e.log).Snapshot(ctx, e.cfg.TriggerDUEnable)
	if len(snap) == 0 {
		return IterationStats{Result: ResultFailed}, nil
	}

	// Step 3-4: cluster average and limits.
	var capSum, remSum int64
	for _, u := range snap {
		capSum += u.Capacity
		remSum += u.Remaining
	}
	if capSum <= 0 {
		return IterationStats{Result: ResultFailed}, nil
	}
	clusterAvg := float64(capSum-remSum) / float64(capSum)
	upperLimit := clusterAvg + e.cfg.Threshold
	lowerLimit := clusterAvg - e.cfg.Threshold

	// Step 5: classify. over is most-used-first (snap's existing order);
	// under is reversed to least-used-first.
	var over, under []NodeUsage
	var unbalancedBytes int64
	for _, u := range snap {
		util := u.Utilization()
		if util > upperLimit {
			over = append(over, u)
			overBytes := ratioToBytes(u.Capacity, util) - ratioToBytes(u.Capacity, upperLimit)
			unbalancedBytes += clampToZero(overBytes)
		} else if util < lowerLimit {
			under = append(under, u)
		}
	}
	reverse(under)

	// Step 6.
	if len(over) == 0 && len(under) == 0 {
		return IterationStats{Result: ResultCannotBalance}, nil
	}

	// Step 7.
	source := NewSourceStrategy(over, upperLimit, e.cfg.MaxSizeLeavingSourceBytes)
	target := NewTargetStrategy(under, upperLimit, e.cfg.MaxSizeEnteringTargetBytes, e.placement, e.topology, e.cfg.NetworkTopologyEnable, e.containers)
	selection := NewSelectionCriteria(e.containers, e.log)

	st := &iterationState{
		selectedContainers: make(map[ContainerId]struct{}),
		sourceToTarget:     make(map[NodeId]NodeId),
	}

	totalNodes := len(snap)
	maxDatanodes := ratioToBytes(int64(totalNodes), e.cfg.MaxDatanodesRatioToInvolvePerIteration)
	oneContainerSize := e.cfg.ContainerSizeBytes

	var selections []MoveSelection
	interrupted := false

	// Step 8: main matching loop.
	for {
		if isRunning != nil && !isRunning() {
			interrupted = true
			break
		}

		if int64(st.datanodesInvolved)+2 > maxDatanodes {
			break
		}
		if st.sizeMoved+oneContainerSize > e.cfg.MaxSizeToMovePerIterationBytes {
			break
		}

		src, ok := source.NextCandidate()
		if !ok {
			break
		}

		if e.nodes != nil && !e.nodes.Exists(src) {
			// §7: missing node during matching is logged at WARN and
			// matching continues without it, not treated as fatal.
			e.log.WithError(ozoneerrors.CollaboratorError("matchSource", errNodeNotFound)).
				WithField("node", src).
				Warn("source node selected for matching but no longer known to the node manager")
			source.RemoveCandidate(src)
			continue
		}

		candidates := selection.CandidateContainers(src, st.selectedContainers)
		if len(candidates) == 0 {
			source.RemoveCandidate(src)
			continue
		}

		sel, found := target.FindTargetForContainerMove(src, candidates)
		if !found {
			source.RemoveCandidate(src)
			continue
		}

		st.selectedContainers[sel.ContainerID] = struct{}{}
		st.sourceToTarget[sel.Source] = sel.Target
		source.IncreaseLeaving(sel.Source, sel.SizeBytes)
		st.datanodesInvolved += 2
		st.sizeMoved += sel.SizeBytes

		e.tracker.Submit(moveCtx, sel)
		selections = append(selections, sel)
	}

	if interrupted {
		return IterationStats{
			Result:              ResultInterrupted,
			SizeMovedBytes:      st.sizeMoved,
			DatanodesInvolved:   st.datanodesInvolved,
			UnbalancedDatanodes: len(over) + len(under),
			UnbalancedBytes:     unbalancedBytes,
		}, selections
	}

	// Step 9.
	if len(selections) == 0 {
		return IterationStats{
			Result:              ResultCannotBalance,
			UnbalancedDatanodes: len(over) + len(under),
			UnbalancedBytes:     unbalancedBytes,
		}, nil
	}

	// Step 10: await outcomes.
	completed, timedOut, failed := e.tracker.AwaitAll(moveCtx)

	// Step 11.
	return IterationStats{
		Result:              ResultCompleted,
		SizeMovedBytes:      st.sizeMoved,
		DatanodesInvolved:   st.datanodesInvolved,
		MovesCompleted:      completed,
		MovesTimedOut:       timedOut,
		MovesFailed:         failed,
		UnbalancedDatanodes: len(over) + len(under),
		UnbalancedBytes:     unbalancedBytes,
	}, selections
}

func reverse(s []NodeUsage) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
