package balancer

import (
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nodefleet/containerbalancer/pkg/ozoneerrors"
)

var errContainerNotFound = errors.New("container not found")

// SelectionCriteria is C2: given a source node, yields the ordered set of
// candidate containers eligible for move.
type SelectionCriteria struct {
	containers ContainerManager
	log        *logrus.Entry
}

// NewSelectionCriteria builds C2 over the given container manager. log may
// be nil in tests that don't care about the missing-container WARN path.
func NewSelectionCriteria(containers ContainerManager, log *logrus.Entry) *SelectionCriteria {
	return &SelectionCriteria{containers: containers, log: log}
}

// CandidateContainers returns the containers on source eligible to move,
// ordered by descending UsedBytes, tie-broken by ContainerId (§4.2).
// selected is the set already chosen earlier in this iteration
// (IterationState.selectedContainers); containers in it are excluded.
func (s *SelectionCriteria) CandidateContainers(source NodeId, selected map[ContainerId]struct{}) []ContainerInfo {
	ids := s.containers.ContainersOnNode(source)

	out := make([]ContainerInfo, 0, len(ids))
	for _, id := range ids {
		if _, already := selected[id]; already {
			continue
		}

		info, ok := s.containers.GetContainer(id)
		if !ok {
			// §7: missing container during matching is logged at WARN and
			// matching continues with the next candidate, not treated as a
			// fatal error.
			if s.log != nil {
				s.log.WithError(ozoneerrors.CollaboratorError("CandidateContainers", errContainerNotFound)).
					WithField("container", id).
					WithField("node", source).
					Warn("container listed on node but not found in catalogue")
			}
			continue
		}
		if !info.State.Movable() {
			continue
		}
		if s.containers.HasInFlightOperation(id) {
			continue
		}
		if len(info.ReplicaSet) != info.ReplicationFactor {
			continue
		}

		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsedBytes != out[j].UsedBytes {
			return out[i].UsedBytes > out[j].UsedBytes
		}
		return out[i].ID < out[j].ID
	})

	return out
}
