package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubContainerManager struct {
	containers map[ContainerId]ContainerInfo
	onNode     map[NodeId][]ContainerId
	inFlight   map[ContainerId]bool
}

func (s *stubContainerManager) GetContainer(id ContainerId) (ContainerInfo, bool) {
	info, ok := s.containers[id]
	return info, ok
}

func (s *stubContainerManager) ContainersOnNode(node NodeId) []ContainerId {
	return s.onNode[node]
}

func (s *stubContainerManager) HasInFlightOperation(id ContainerId) bool {
	return s.inFlight[id]
}

func TestSelectionCriteria_FiltersAndOrders(t *testing.T) {
	cm := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
			"c2": {ID: "c2", UsedBytes: 50, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
			"c3": {ID: "c3", UsedBytes: 30, State: ContainerStateOpen, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
			"c4": {ID: "c4", UsedBytes: 40, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1"}, ReplicationFactor: 2},
		},
		onNode: map[NodeId][]ContainerId{
			"n1": {"c1", "c2", "c3", "c4"},
		},
		inFlight: map[ContainerId]bool{"c2": true},
	}

	sc := NewSelectionCriteria(cm, testLog())
	out := sc.CandidateContainers("n1", map[ContainerId]struct{}{})

	// c2 excluded (in flight), c3 excluded (open/not movable), c4 excluded
	// (under-replicated). Only c1 remains.
	assert.Equal(t, []ContainerInfo{cm.containers["c1"]}, out)
}

func TestSelectionCriteria_ExcludesAlreadySelected(t *testing.T) {
	cm := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
		},
		onNode: map[NodeId][]ContainerId{"n1": {"c1"}},
	}

	sc := NewSelectionCriteria(cm, testLog())
	out := sc.CandidateContainers("n1", map[ContainerId]struct{}{"c1": {}})
	assert.Empty(t, out)
}

func TestSelectionCriteria_SkipsMissingContainerWithoutFailing(t *testing.T) {
	cm := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"c1": {ID: "c1", UsedBytes: 10, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
		},
		// "ghost" is listed on the node but absent from the catalogue.
		onNode: map[NodeId][]ContainerId{"n1": {"ghost", "c1"}},
	}

	sc := NewSelectionCriteria(cm, testLog())
	out := sc.CandidateContainers("n1", map[ContainerId]struct{}{})

	assert.Equal(t, []ContainerInfo{cm.containers["c1"]}, out)
}

func TestSelectionCriteria_OrdersByUsedBytesDescTieBrokenByID(t *testing.T) {
	cm := &stubContainerManager{
		containers: map[ContainerId]ContainerInfo{
			"cA": {ID: "cA", UsedBytes: 20, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
			"cB": {ID: "cB", UsedBytes: 20, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
			"cC": {ID: "cC", UsedBytes: 50, State: ContainerStateClosed, ReplicaSet: []NodeId{"n1", "n2"}, ReplicationFactor: 2},
		},
		onNode: map[NodeId][]ContainerId{"n1": {"cA", "cB", "cC"}},
	}

	sc := NewSelectionCriteria(cm, testLog())
	out := sc.CandidateContainers("n1", map[ContainerId]struct{}{})

	assert.Equal(t, ContainerId("cC"), out[0].ID)
	assert.Equal(t, ContainerId("cA"), out[1].ID)
	assert.Equal(t, ContainerId("cB"), out[2].ID)
}
