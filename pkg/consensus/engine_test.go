package consensus

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Bootstrapping a real raft.Raft needs a listening TCP transport and an
// on-disk bolt store, which is integration-test territory. The FSM and the
// plain-field accessors (safe mode, leadership cache) have no such
// dependency and are exercised directly here.

func newTestFSM() *FSM {
	return &FSM{
		state:   make(map[string]interface{}),
		applyCh: make(chan *ApplyEvent, 1),
	}
}

func TestFSM_Apply_SetAndDelete(t *testing.T) {
	f := newTestFSM()

	r := f.Apply(&raft.Log{Data: []byte(`{"type":"set","key":"k1","value":"v1"}`)})
	require.Nil(t, r)
	v, ok := f.state["k1"]
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	r = f.Apply(&raft.Log{Data: []byte(`{"type":"delete","key":"k1"}`)})
	require.Nil(t, r)
	_, ok = f.state["k1"]
	assert.False(t, ok)
}

func TestFSM_Apply_RejectsEmptyKey(t *testing.T) {
	f := newTestFSM()
	r := f.Apply(&raft.Log{Data: []byte(`{"type":"set","key":""}`)})
	err, ok := r.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "invalid event")
}

func TestFSM_Apply_RejectsUnknownType(t *testing.T) {
	f := newTestFSM()
	r := f.Apply(&raft.Log{Data: []byte(`{"type":"bogus","key":"k1"}`)})
	err, ok := r.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestFSM_SnapshotAndRestore_RoundTrips(t *testing.T) {
	f := newTestFSM()
	f.state["k1"] = "v1"
	f.state["k2"] = float64(2)

	snap, err := f.Snapshot()
	require.NoError(t, err)

	var buf strings.Builder
	sink := &fakeSnapshotSink{Builder: &buf}
	require.NoError(t, snap.Persist(sink))

	restored := newTestFSM()
	require.NoError(t, restored.Restore(fakeReadCloser{strings.NewReader(buf.String())}))
	assert.Equal(t, "v1", restored.state["k1"])
	assert.Equal(t, float64(2), restored.state["k2"])
}

func TestEngine_SafeModeAndLeadership(t *testing.T) {
	e := &Engine{leaderCh: make(chan bool, 1)}

	assert.False(t, e.IsInSafeMode())
	e.SetSafeMode(true)
	assert.True(t, e.IsInSafeMode())

	assert.False(t, e.IsLeader())
	e.leadershipMu.Lock()
	e.isLeader = true
	e.leadershipMu.Unlock()
	assert.True(t, e.IsLeader())
}

func TestEngine_LeadershipChanges_DeliversFromChannel(t *testing.T) {
	e := &Engine{leaderCh: make(chan bool, 1)}
	e.leaderCh <- true

	select {
	case v := <-e.LeadershipChanges():
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leadership change")
	}
}

type fakeSnapshotSink struct {
	*strings.Builder
}

func (f *fakeSnapshotSink) ID() string     { return "test" }
func (f *fakeSnapshotSink) Cancel() error  { return nil }
func (f *fakeSnapshotSink) Close() error   { return nil }

type fakeReadCloser struct {
	*strings.Reader
}

func (fakeReadCloser) Close() error { return nil }
