package academy

import (
	"context"
	"testing"
	"time"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/internal/simtest"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/quiz"
	"github.com/perlin-network/academy/store"
	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, env *simtest.Env, opts ...Option) *Client {
	c := New(env.Sim, env.Sim.Market(), env.Sim.Token(), append([]Option{WithChainID(simtest.ChainID)}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func countQueries(sim *ledger.Sim, method string) int {
	n := 0
	for _, call := range sim.Calls() {
		if call.Method == method {
			n++
		}
	}

	return n
}

func TestCourseIsCachedUntilAWriteTouchesIt(t *testing.T) {
	env := simtest.New(t)
	ctx := context.Background()

	owner := env.Identity(0)
	course := env.SimpleCourse(owner, 0, 2)

	c := newClient(t, env)
	c.ConnectIdentity(env.Identity(0))

	view, err := c.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, view.Enrollments)
	assert.Equal(t, 2, view.LessonCount())

	reads := countQueries(env.Sim, sys.MethodCourse)

	again, err := c.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.Same(t, view, again)
	assert.Equal(t, reads, countQueries(env.Sim, sys.MethodCourse))

	out := c.Enroll(ctx, course.ID)
	require.True(t, out.Success, "%v", out.Err)

	view, err = c.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.Enrollments)
}

func TestPartialCourseIsNotCached(t *testing.T) {
	env := simtest.New(t)
	ctx := context.Background()

	course := env.SimpleCourse(env.Identity(0), 0, 3)
	c := newClient(t, env)

	env.Sim.FailQuery(sys.MethodLesson, course.LessonIDs[0][1])

	view, err := c.Course(ctx, course.ID)
	require.Error(t, err)
	assert.Equal(t, errs.KindPartialAggregationFailure, errs.KindOf(err))
	require.NotNil(t, view)
	assert.Equal(t, 2, view.LessonCount())

	env.Sim.ClearFailures()

	view, err = c.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.LessonCount())
}

func TestIdentitySwitchDropsCachedViews(t *testing.T) {
	env := simtest.New(t)
	ctx := context.Background()

	env.SimpleCourse(env.Identity(0), 0, 1)
	c := newClient(t, env)

	_, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Cache().Len())

	alice := env.Identity(0)
	c.ConnectIdentity(alice)
	assert.Equal(t, 0, c.Cache().Len())
	assert.Equal(t, alice.Address(), c.Cache().Active())

	// Reconnecting the same account keeps the cache.
	_, err = c.Catalog(ctx)
	require.NoError(t, err)
	c.ConnectIdentity(alice)
	assert.Equal(t, 1, c.Cache().Len())

	c.Disconnect()
	assert.Equal(t, 0, c.Cache().Len())
	assert.True(t, c.Account().IsZero())

	_, err = c.Profile(ctx, ledger.ZeroAccountID)
	assert.Equal(t, errs.KindNoIdentity, errs.KindOf(err))

	_, err = c.Progress(ctx)
	assert.Equal(t, errs.KindNoIdentity, errs.KindOf(err))
}

func TestProfileFollowsBalance(t *testing.T) {
	env := simtest.New(t)
	ctx := context.Background()

	course := env.SimpleCourse(env.Identity(0), 10, 1)
	c := newClient(t, env)

	learner := env.Identity(50)
	c.ConnectIdentity(learner)

	profile, err := c.Profile(ctx, ledger.ZeroAccountID)
	require.NoError(t, err)
	assert.EqualValues(t, 50, profile.Balance)

	out := c.Enroll(ctx, course.ID)
	require.True(t, out.Success, "%v", out.Err)

	profile, err = c.Profile(ctx, learner.Address())
	require.NoError(t, err)
	assert.EqualValues(t, 40, profile.Balance)

	snapshot, err := c.Progress(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.IsEnrolled(course.ID))
}

func TestQuizControllerThroughClient(t *testing.T) {
	env := simtest.New(t, ledger.WithQuestionsPerQuiz(4))
	ctx := context.Background()

	course := env.SimpleCourse(env.Identity(0), 0, 1)
	c := newClient(t, env)
	c.ConnectIdentity(env.Identity(0))

	require.True(t, c.Enroll(ctx, course.ID).Success)

	ctrl, err := c.Quiz(ctx, course.ID, quiz.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, quiz.StateLessonsInProgress, ctrl.State())

	task, out := ctrl.CompleteLesson(ctx, course.LessonIDs[0][0])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)

	view, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Questions, 4)
	assert.Equal(t, quiz.StateQuizAvailable, ctrl.State())
}

func TestCertificateSharing(t *testing.T) {
	env := simtest.New(t)
	ctx := context.Background()

	course := env.SimpleCourse(env.Identity(0), 0, 1)

	kv := store.NewInmem()
	defer kv.Close()

	c := newClient(t, env, WithStore(kv))

	learner := env.Identity(0)
	c.ConnectIdentity(learner)

	require.True(t, c.Enroll(ctx, course.ID).Success)
	require.True(t, c.CompleteLesson(ctx, course.ID, course.LessonIDs[0][0]).Success)
	require.True(t, c.GenerateQuiz(ctx, course.ID).Success)

	quizID, err := c.Reader().CurrentQuizID(ctx, learner.Address(), course.ID)
	require.NoError(t, err)
	require.True(t, c.SubmitQuiz(ctx, course.ID, quizID, env.Sim.AnswerKey(quizID)).Success)

	out := c.ClaimCertificate(ctx, course.ID)
	require.True(t, out.Success, "%v", out.Err)

	require.NoError(t, c.ShareCertificate(ctx, out.ID, true))

	shared, err := c.SharedCertificates(learner.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{out.ID}, shared)

	// Someone else's certificate cannot be shared.
	c.ConnectIdentity(env.Identity(0))
	err = c.ShareCertificate(ctx, out.ID, true)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = c.ViewCourse(ctx, course.ID)
	require.NoError(t, err)

	last, err := c.LastViewedCourse()
	require.NoError(t, err)
	assert.Equal(t, course.ID, last)
}
