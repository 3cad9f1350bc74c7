package balancer

// SourceStrategy is C3: a greedy iterator over remaining over-utilized
// source nodes, tracking bytes scheduled to leave each.
//
// Initialized with the over-utilized list (ranked most-used first, per C1)
// and upperLimit; exhausts a source once its bytesLeaving exceeds
// maxSizeLeavingSource, or once leaving bytes would bring it below
// upperLimit (i.e. it would no longer be over-utilized).
type SourceStrategy struct {
	candidates  []NodeUsage // remaining sources, most-used first
	byID        map[NodeId]NodeUsage
	upperLimit  float64
	maxLeaving  int64
	bytesLeaving map[NodeId]int64
}

// NewSourceStrategy builds C3 over overUtilized (already ordered
// most-used-first by C1/C6's classification step).
func NewSourceStrategy(overUtilized []NodeUsage, upperLimit float64, maxSizeLeavingSource int64) *SourceStrategy {
	candidates := make([]NodeUsage, len(overUtilized))
	copy(candidates, overUtilized)

	byID := make(map[NodeId]NodeUsage, len(candidates))
	for _, u := range candidates {
		byID[u.ID] = u
	}

	return &SourceStrategy{
		candidates:   candidates,
		byID:         byID,
		upperLimit:   upperLimit,
		maxLeaving:   maxSizeLeavingSource,
		bytesLeaving: make(map[NodeId]int64),
	}
}

// NextCandidate returns the next not-yet-exhausted source, or "" if none
// remain. The ordering is the stable most-used-first ordering from
// construction (§4.6.3).
func (s *SourceStrategy) NextCandidate() (NodeId, bool) {
	for len(s.candidates) > 0 {
		head := s.candidates[0]
		if s.exhausted(head.ID) {
			s.candidates = s.candidates[1:]
			continue
		}
		return head.ID, true
	}
	return "", false
}

// RemoveCandidate removes a source, e.g. because no target matched any of
// its candidate containers this round.
func (s *SourceStrategy) RemoveCandidate(id NodeId) {
	for i, u := range s.candidates {
		if u.ID == id {
			s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
			return
		}
	}
}

// IncreaseLeaving records that bytes are scheduled to leave id.
func (s *SourceStrategy) IncreaseLeaving(id NodeId, bytes int64) {
	s.bytesLeaving[id] += bytes
}

// BytesLeaving returns the cumulative bytes scheduled to leave id so far
// this iteration.
func (s *SourceStrategy) BytesLeaving(id NodeId) int64 {
	return s.bytesLeaving[id]
}

func (s *SourceStrategy) exhausted(id NodeId) bool {
	if s.bytesLeaving[id] > s.maxLeaving {
		return true
	}

	usage, ok := s.byID[id]
	if !ok {
		return true
	}

	if usage.Capacity <= 0 {
		return true
	}

	projectedRemaining := usage.Remaining + s.bytesLeaving[id]
	projectedUtil := float64(usage.Capacity-projectedRemaining) / float64(usage.Capacity)
	return projectedUtil < s.upperLimit
}
