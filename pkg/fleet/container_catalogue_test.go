package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/containerbalancer/pkg/balancer"
)

func TestContainerCatalogue_ContainersOnNode(t *testing.T) {
	c := NewContainerCatalogue()
	c.Put(balancer.ContainerInfo{ID: "c1", ReplicaSet: []balancer.NodeId{"n1", "n2"}, ReplicationFactor: 2})
	c.Put(balancer.ContainerInfo{ID: "c2", ReplicaSet: []balancer.NodeId{"n2"}, ReplicationFactor: 1})

	onN1 := c.ContainersOnNode("n1")
	require.Len(t, onN1, 1)
	assert.Equal(t, balancer.ContainerId("c1"), onN1[0])

	onN2 := c.ContainersOnNode("n2")
	assert.Len(t, onN2, 2)
}

func TestContainerCatalogue_ApplyMove_ReindexesReplicaSet(t *testing.T) {
	c := NewContainerCatalogue()
	c.Put(balancer.ContainerInfo{ID: "c1", ReplicaSet: []balancer.NodeId{"n1"}, ReplicationFactor: 1})

	c.applyMove("c1", "n1", "n2")

	assert.Empty(t, c.ContainersOnNode("n1"))
	onN2 := c.ContainersOnNode("n2")
	require.Len(t, onN2, 1)
	assert.Equal(t, balancer.ContainerId("c1"), onN2[0])

	info, ok := c.GetContainer("c1")
	require.True(t, ok)
	assert.Equal(t, []balancer.NodeId{"n2"}, info.ReplicaSet)
}

func TestContainerCatalogue_InFlightTracking(t *testing.T) {
	c := NewContainerCatalogue()
	c.Put(balancer.ContainerInfo{ID: "c1"})

	assert.False(t, c.HasInFlightOperation("c1"))
	c.markInFlight("c1")
	assert.True(t, c.HasInFlightOperation("c1"))
	c.clearInFlight("c1")
	assert.False(t, c.HasInFlightOperation("c1"))
}
