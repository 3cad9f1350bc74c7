package balancer

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshotter is C1: it produces a ranked, filtered view of cluster node
// usage for one iteration.
type Snapshotter struct {
	nodes  NodeManager
	config Config
	log    *logrus.Entry
}

// NewSnapshotter builds C1 over the given node manager.
func NewSnapshotter(nodes NodeManager, cfg Config, log *logrus.Entry) *Snapshotter {
	return &Snapshotter{nodes: nodes, config: cfg, log: log.WithField("component", "snapshot")}
}

// Snapshot pulls from the node manager, ranked most-used first, with
// excludeNodes/includeNodes filtering applied (§4.1). If triggerRefresh is
// set, it first asks every node to recompute usage, then waits
// 3*nodeReportInterval before snapshotting; the wait is cancellable via ctx.
// Returns an empty slice (not an error) if the node manager is unavailable
// or ctx is cancelled during the wait — the caller treats empty as "cannot
// balance now".
func (s *Snapshotter) Snapshot(ctx context.Context, triggerRefresh bool) []NodeUsage {
	if s.nodes == nil {
		return nil
	}

	if triggerRefresh {
		s.nodes.RefreshAllHealthyNodeUsage()

		wait := 3 * s.config.NodeReportInterval
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			s.log.Debug("disk-usage refresh wait cancelled")
			return nil
		case <-timer.C:
		}
	}

	all := s.nodes.MostUsedFirst()
	return s.filter(all)
}

func (s *Snapshotter) filter(in []NodeUsage) []NodeUsage {
	exclude := toSet(s.config.ExcludeNodes)
	include := toSet(s.config.IncludeNodes)

	out := make([]NodeUsage, 0, len(in))
	for _, u := range in {
		hostname, ip, _ := s.nodes.HostnameAndIP(u.ID)

		if matchesAny(exclude, hostname, ip) {
			continue
		}
		if len(include) > 0 && !matchesAny(include, hostname, ip) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func matchesAny(set map[string]struct{}, hostname, ip string) bool {
	if set == nil {
		return false
	}
	if _, ok := set[hostname]; ok {
		return true
	}
	if _, ok := set[ip]; ok {
		return true
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		if _, ok := set[parsed.String()]; ok {
			return true
		}
	}
	return false
}
