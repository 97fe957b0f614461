package tracker

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/internal/simtest"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/orchestrator"
	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestSnapshotFollowsConfirmedWrites(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)

	first := env.SimpleCourse(owner, 0, 4)
	second := env.SimpleCourse(owner, 0, 1)

	hub := events.NewHub()
	reader := env.Reader(env.Facade(learner))

	orch := orchestrator.New(reader, orchestrator.WithHub(hub))
	defer orch.Close()

	tr := New(aggregate.New(reader), hub)
	defer tr.Close()

	s, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Empty(t, s.Enrolled)

	require.True(t, orch.Enroll(ctx, second.ID).Success)
	require.True(t, orch.Enroll(ctx, first.ID).Success)
	require.True(t, orch.CompleteLesson(ctx, first.ID, first.AllLessons()[0]).Success)

	s, err = tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{first.ID, second.ID}, s.Enrolled)
	assert.True(t, s.IsEnrolled(second.ID))
	assert.False(t, s.IsCompleted(first.ID))
	assert.EqualValues(t, 20, s.Progress[first.ID])
	assert.EqualValues(t, 0, s.Progress[second.ID])

	cached, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Same(t, s, cached)

	completed, total, err := tr.LessonCounts(ctx, learner.Address(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 4, total)
}

func TestSnapshotRefreshAndIdentityChange(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)
	c := env.SimpleCourse(owner, 0, 1)

	hub := events.NewHub()
	tr := New(aggregate.New(env.Reader(env.Facade(nil))), hub)
	defer tr.Close()

	s, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Empty(t, s.Enrolled)

	// Writes made elsewhere are not seen until the snapshot is refreshed.
	env.Do(learner, sys.MethodEnroll, c.ID)

	s, err = tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Empty(t, s.Enrolled)

	tr.Refresh(learner.Address())

	s, err = tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{c.ID}, s.Enrolled)

	env.Do(learner, sys.MethodUpdateProgress, c.ID, uint64(40))
	hub.Publish(nil, &events.IdentityChanged{Previous: learner.Address()})

	s, err = tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.EqualValues(t, 40, s.Progress[c.ID])
}

func TestRecomputeFailure(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)
	c := env.SimpleCourse(owner, 0, 1)
	env.Do(learner, sys.MethodEnroll, c.ID)

	tr := New(aggregate.New(env.Reader(env.Facade(nil))), nil)

	env.Sim.FailQuery(sys.MethodProgress, c.ID)

	_, err := tr.Recompute(ctx, learner.Address())
	assert.Error(t, err)

	env.Sim.ClearFailures()
	env.Sim.FailQuery(sys.MethodModule, 0)

	_, _, err = tr.LessonCounts(ctx, learner.Address(), c.ID)
	assert.True(t, errs.Is(err, errs.KindPartialAggregationFailure))
}

// hookedRPC runs after the first time method is queried, once the Sim
// has answered. after may query again.
type hookedRPC struct {
	*ledger.Sim

	method string
	after  func()
	fired  bool
}

func (h *hookedRPC) Query(ctx context.Context, call ledger.Call) (*fastjson.Value, error) {
	v, err := h.Sim.Query(ctx, call)
	if call.Method == h.method && !h.fired {
		h.fired = true
		h.after()
	}

	return v, err
}

func TestChangeDuringFirstRecomputeIsNotLost(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)
	c := env.SimpleCourse(owner, 0, 1)

	var tr *Tracker

	// The enrollment confirms after the tracker read the enrolled list.
	rpc := &hookedRPC{Sim: env.Sim, method: sys.MethodEnrolledCourses, after: func() {
		env.Do(learner, sys.MethodEnroll, c.ID)
		tr.Refresh(learner.Address())
	}}

	reader := ledger.NewReader(ledger.NewFacade(rpc, simtest.ChainID), env.Sim.Market(), env.Sim.Token())
	tr = New(aggregate.New(reader), nil)

	s, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Empty(t, s.Enrolled)

	s, err = tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{c.ID}, s.Enrolled)

	cached, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Same(t, s, cached)
}

func TestOlderRecomputeDoesNotReplaceNewer(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)
	c := env.SimpleCourse(owner, 0, 1)

	var (
		tr    *Tracker
		newer *Snapshot
	)

	// While the first recompute is reading, a change arrives and a second
	// recompute finishes with it.
	rpc := &hookedRPC{Sim: env.Sim, method: sys.MethodEnrolledCourses, after: func() {
		env.Do(learner, sys.MethodEnroll, c.ID)
		tr.Refresh(learner.Address())

		var err error
		newer, err = tr.Recompute(ctx, learner.Address())
		require.NoError(t, err)
	}}

	reader := ledger.NewReader(ledger.NewFacade(rpc, simtest.ChainID), env.Sim.Market(), env.Sim.Token())
	tr = New(aggregate.New(reader), nil)

	older, err := tr.Recompute(ctx, learner.Address())
	require.NoError(t, err)
	assert.Empty(t, older.Enrolled)

	require.NotNil(t, newer)
	assert.Equal(t, []uint64{c.ID}, newer.Enrolled)

	s, err := tr.Snapshot(ctx, learner.Address())
	require.NoError(t, err)
	assert.Same(t, newer, s)
}
