package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceStrategy_NextCandidate_MostUsedFirst(t *testing.T) {
	over := []NodeUsage{
		{ID: "a", Capacity: 100, Remaining: 10}, // 0.90
		{ID: "b", Capacity: 100, Remaining: 20}, // 0.80
	}
	s := NewSourceStrategy(over, 0.5, 1000)

	id, ok := s.NextCandidate()
	assert.True(t, ok)
	assert.Equal(t, NodeId("a"), id)
}

func TestSourceStrategy_ExhaustsOnMaxLeaving(t *testing.T) {
	over := []NodeUsage{{ID: "a", Capacity: 100, Remaining: 10}}
	s := NewSourceStrategy(over, 0.0, 50)

	s.IncreaseLeaving("a", 60)
	_, ok := s.NextCandidate()
	assert.False(t, ok, "source should be exhausted once bytesLeaving exceeds maxLeaving")
}

func TestSourceStrategy_ExhaustsBelowUpperLimit(t *testing.T) {
	// Capacity 100, remaining 10 -> util 0.90. upperLimit 0.5.
	over := []NodeUsage{{ID: "a", Capacity: 100, Remaining: 10}}
	s := NewSourceStrategy(over, 0.5, 1000)

	// Leaving 45 bytes -> remaining effectively 55 -> util 0.45 < 0.5: exhausted.
	s.IncreaseLeaving("a", 45)
	_, ok := s.NextCandidate()
	assert.False(t, ok)
}

func TestSourceStrategy_RemoveCandidate(t *testing.T) {
	over := []NodeUsage{
		{ID: "a", Capacity: 100, Remaining: 10},
		{ID: "b", Capacity: 100, Remaining: 20},
	}
	s := NewSourceStrategy(over, 0.0, 1000)

	s.RemoveCandidate("a")
	id, ok := s.NextCandidate()
	assert.True(t, ok)
	assert.Equal(t, NodeId("b"), id)
}

func TestSourceStrategy_BytesLeaving(t *testing.T) {
	over := []NodeUsage{{ID: "a", Capacity: 100, Remaining: 10}}
	s := NewSourceStrategy(over, 0.0, 1000)

	s.IncreaseLeaving("a", 10)
	s.IncreaseLeaving("a", 5)
	assert.Equal(t, int64(15), s.BytesLeaving("a"))
}
