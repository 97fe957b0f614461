package ledger

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeSubmitWithoutIdentity(t *testing.T) {
	t.Parallel()

	sim := NewSim()
	f := NewFacade(sim, 1337)

	_, err := f.Submit(context.Background(), sim.Market(), sys.MethodEnroll, uint64(1))
	assert.True(t, errs.Is(err, errs.KindNoIdentity))
	assert.Empty(t, sim.Submits())
}

func TestFacadeSubmitOnWrongNetwork(t *testing.T) {
	t.Parallel()

	sim := NewSim(WithSimChainID(99))
	f := NewFacade(sim, 1337, WithIdentity(testIdentity(account(1))))

	_, err := f.Submit(context.Background(), sim.Market(), sys.MethodEnroll, uint64(1))
	assert.True(t, errs.Is(err, errs.KindNetworkMismatch))
	assert.Empty(t, sim.Submits())

	sim.SetChainID(1337)

	_, err = f.Submit(context.Background(), sim.Market(), sys.MethodEnroll, uint64(1))
	assert.NoError(t, err)
	assert.Equal(t, []string{sys.MethodEnroll}, sim.Submits())
}

func TestFacadeReadsFromFallbackWithoutIdentity(t *testing.T) {
	t.Parallel()

	primary, fallback := NewSim(), NewSim()
	f := NewFacade(primary, 1337, WithFallback(fallback))

	_, err := f.Query(context.Background(), primary.Market(), sys.MethodCourseCount)
	require.NoError(t, err)

	assert.Len(t, fallback.Calls(), 1)
	assert.Empty(t, primary.Calls())

	prev := f.SetIdentity(testIdentity(account(1)))
	assert.Nil(t, prev)
	assert.Equal(t, account(1), f.Account())

	_, err = f.Query(context.Background(), primary.Market(), sys.MethodCourseCount)
	require.NoError(t, err)

	assert.Len(t, fallback.Calls(), 1)
	assert.Len(t, primary.Calls(), 1)
}

func TestFacadeAwaitRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sim := NewSim()
	f := NewFacade(sim, 1337, WithIdentity(testIdentity(account(1))))

	h, err := f.Submit(ctx, sim.Market(), sys.MethodEnroll, uint64(42))
	require.NoError(t, err)

	r, err := f.Await(ctx, h)
	require.NotNil(t, r)
	assert.Equal(t, StatusRejected, r.Status)
	assert.True(t, errs.Is(err, errs.KindTransactionRejected))
	assert.Contains(t, err.Error(), "course 42 does not exist")
}

func TestFacadeQueryNotFound(t *testing.T) {
	t.Parallel()

	sim := NewSim()
	r := NewReader(NewFacade(sim, 1337), sim.Market(), sim.Token())

	c, err := r.Course(context.Background(), 7)
	assert.Nil(t, c)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestReaderDecodesTypedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sim := NewSim()
	instructor, learner := testIdentity(account(1)), testIdentity(account(2))
	courseID, lessons := seedCourse(t, sim, instructor, 25, 3)

	sim.Mint(learner.Address(), 40)

	r := NewReader(NewFacade(sim, 1337), sim.Market(), sim.Token())

	c, err := r.Course(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, "Go in Practice", c.Title)
	assert.EqualValues(t, 25, c.Price)
	assert.Equal(t, instructor.Address(), c.Owner)
	assert.Equal(t, []string{"go"}, c.Tags)

	modules, err := r.CourseModuleIDs(ctx, courseID)
	require.NoError(t, err)
	require.Len(t, modules, 1)

	ids, err := r.ModuleLessonIDs(ctx, modules[0])
	require.NoError(t, err)
	assert.Equal(t, lessons, ids)

	l, err := r.Lesson(ctx, lessons[2])
	require.NoError(t, err)
	assert.EqualValues(t, 3, l.Order)
	assert.Equal(t, sys.ContentText, l.ContentType)

	count, err := r.CourseCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	balance, err := r.Balance(ctx, learner.Address())
	require.NoError(t, err)
	assert.EqualValues(t, 40, balance)

	allowance, err := r.Allowance(ctx, learner.Address(), sim.Market())
	require.NoError(t, err)
	assert.EqualValues(t, 0, allowance)

	owned, err := r.InstructorCourseIDs(ctx, instructor.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{courseID}, owned)
}
