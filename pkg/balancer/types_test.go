package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeUsage_Utilization(t *testing.T) {
	cases := []struct {
		name string
		u    NodeUsage
		want float64
	}{
		{"half used", NodeUsage{Capacity: 100, Remaining: 50}, 0.5},
		{"empty", NodeUsage{Capacity: 100, Remaining: 100}, 0},
		{"full", NodeUsage{Capacity: 100, Remaining: 0}, 1},
		{"zero capacity", NodeUsage{Capacity: 0, Remaining: 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.u.Utilization(), 1e-9)
		})
	}
}

func TestContainerState_Movable(t *testing.T) {
	assert.False(t, ContainerStateOpen.Movable())
	assert.True(t, ContainerStateClosed.Movable())
	assert.True(t, ContainerStateSealed.Movable())
}

func TestRatioToBytes_FloorsLikeSpec(t *testing.T) {
	assert.Equal(t, int64(30), ratioToBytes(100, 0.309))
	assert.Equal(t, int64(0), ratioToBytes(100, 0))
	assert.Equal(t, int64(100), ratioToBytes(100, 1))
}

func TestClampToZero(t *testing.T) {
	assert.Equal(t, int64(0), clampToZero(-5))
	assert.Equal(t, int64(0), clampToZero(0))
	assert.Equal(t, int64(7), clampToZero(7))
}

func TestMoveSelection_String(t *testing.T) {
	sel := MoveSelection{ContainerID: "c1", Source: "n1", Target: "n2"}
	assert.Equal(t, "c1:n1->n2", sel.String())
}
