// Package consensus wraps a Raft-backed replicated state machine and
// exposes the pull half of the balancer's SCM context: isLeader,
// isLeaderReady, isInSafeMode.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/nodefleet/containerbalancer/internal/config"
)

// Engine represents the consensus engine using Raft.
type Engine struct {
	config  *config.ConsensusConfig
	localID string

	raft      *raft.Raft
	fsm       *FSM
	store     *raftboltdb.BoltStore
	snapshots raft.SnapshotStore
	transport *raft.NetworkTransport

	leadershipMu sync.RWMutex
	isLeader     bool
	leaderCh     chan bool

	// safeMode is set by the surrounding cluster manager (e.g. during
	// startup recovery or a pending configuration change) and is not
	// something Raft itself models; the balancer must not run while it is
	// true even if this instance holds leadership.
	safeModeMu sync.RWMutex
	safeMode   bool

	state   map[string]interface{}
	stateMu sync.RWMutex

	applyCh chan *ApplyEvent

	started bool
	mu      sync.RWMutex
}

// ApplyEvent represents a state change event.
type ApplyEvent struct {
	Type      string                 `json:"type"`
	Key       string                 `json:"key"`
	Value     interface{}            `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// FSM implements the Raft finite state machine.
type FSM struct {
	state   map[string]interface{}
	stateMu sync.RWMutex
	applyCh chan *ApplyEvent
}

// NewEngine creates a new consensus engine bound to a plain TCP address
// (the teacher binds raft transport to a libp2p host address; the balancer
// has no p2p layer, so localID/bindAddr are supplied directly).
func NewEngine(cfg *config.ConsensusConfig, localID string) (*Engine, error) {
	engine := &Engine{
		config:   cfg,
		localID:  localID,
		state:    make(map[string]interface{}),
		leaderCh: make(chan bool, 1),
		applyCh:  make(chan *ApplyEvent, 1000),
	}

	engine.fsm = &FSM{
		state:   make(map[string]interface{}),
		applyCh: engine.applyCh,
	}

	if err := engine.initRaft(); err != nil {
		return nil, fmt.Errorf("failed to initialize raft: %w", err)
	}

	return engine, nil
}

func (e *Engine) initRaft() error {
	if err := os.MkdirAll(e.config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(e.localID)
	raftConfig.HeartbeatTimeout = e.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = e.config.ElectionTimeout
	raftConfig.CommitTimeout = e.config.CommitTimeout
	raftConfig.SnapshotInterval = e.config.SnapshotInterval

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(e.config.DataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}
	e.store = logStore

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(e.config.DataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(e.config.DataDir, 3, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	e.snapshots = snapshots

	addr, err := net.ResolveTCPAddr("tcp", e.config.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(e.config.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	e.transport = transport

	ra, err := raft.NewRaft(raftConfig, e.fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft instance: %w", err)
	}
	e.raft = ra

	go e.monitorLeadership()

	return nil
}

func (e *Engine) monitorLeadership() {
	for isLeader := range e.raft.LeaderCh() {
		e.leadershipMu.Lock()
		e.isLeader = isLeader
		e.leadershipMu.Unlock()

		select {
		case e.leaderCh <- isLeader:
		default:
		}
	}
}

// Start starts the consensus engine.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("consensus engine already started")
	}

	if e.config.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(e.localID),
					Address: e.transport.LocalAddr(),
				},
			},
		}
		e.raft.BootstrapCluster(configuration)
	}

	go e.processEvents()

	e.started = true
	return nil
}

func (e *Engine) processEvents() {
	for event := range e.applyCh {
		e.stateMu.Lock()
		e.state[event.Key] = event.Value
		e.stateMu.Unlock()
	}
}

// Apply applies a state change through raft consensus.
func (e *Engine) Apply(key string, value interface{}, metadata map[string]interface{}) error {
	if !e.IsLeader() {
		return fmt.Errorf("not leader, cannot apply changes")
	}

	event := &ApplyEvent{
		Type:      "set",
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	future := e.raft.Apply(data, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply change: %w", err)
	}

	return nil
}

// Get gets a value from the replicated state.
func (e *Engine) Get(key string) (interface{}, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	value, exists := e.state[key]
	return value, exists
}

// IsLeader returns true if this node currently holds raft leadership.
func (e *Engine) IsLeader() bool {
	e.leadershipMu.RLock()
	defer e.leadershipMu.RUnlock()
	return e.isLeader
}

// IsLeaderReady approximates readiness as "is leader and raft reports a
// non-empty leader address" — the raft library has no separate concept of
// readiness, so the balancer treats holding leadership as sufficient once
// raft has a leader address at all.
func (e *Engine) IsLeaderReady() bool {
	return e.IsLeader() && e.raft.Leader() != ""
}

// SetSafeMode is called by the surrounding cluster manager; it is not
// derived from raft state.
func (e *Engine) SetSafeMode(on bool) {
	e.safeModeMu.Lock()
	e.safeMode = on
	e.safeModeMu.Unlock()
}

// IsInSafeMode reports whether cluster writes are currently forbidden.
func (e *Engine) IsInSafeMode() bool {
	e.safeModeMu.RLock()
	defer e.safeModeMu.RUnlock()
	return e.safeMode
}

// Leader returns the current leader address.
func (e *Engine) Leader() string {
	return string(e.raft.Leader())
}

// LeadershipChanges returns a channel that receives leadership transitions;
// consumed by StatusWatcher to drive the push interface.
func (e *Engine) LeadershipChanges() <-chan bool {
	return e.leaderCh
}

// Stats returns raft statistics.
func (e *Engine) Stats() map[string]string {
	return e.raft.Stats()
}

// Shutdown gracefully shuts down the consensus engine.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	close(e.applyCh)

	if e.raft != nil {
		future := e.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	if e.store != nil {
		e.store.Close()
	}

	if e.transport != nil {
		e.transport.Close()
	}

	e.started = false
	return nil
}

// Apply applies a log entry to the FSM.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var event ApplyEvent
	if err := json.Unmarshal(entry.Data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if err := f.validateEvent(&event); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	switch event.Type {
	case "set":
		f.state[event.Key] = event.Value
	case "delete":
		delete(f.state, event.Key)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	select {
	case f.applyCh <- &event:
	case <-time.After(time.Second):
	}

	return nil
}

func (f *FSM) validateEvent(event *ApplyEvent) error {
	if event.Key == "" {
		return fmt.Errorf("event key cannot be empty")
	}
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	return nil
}

// Snapshot creates a snapshot of the FSM state.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	state := make(map[string]interface{}, len(f.state))
	for k, v := range f.state {
		state[k] = v
	}

	return &fsmSnapshot{state: state}, nil
}

// Restore restores the FSM from a snapshot.
func (f *FSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state map[string]interface{}
	if err := json.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	f.state = state
	return nil
}

type fsmSnapshot struct {
	state map[string]interface{}
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
