package quiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/internal/simtest"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/orchestrator"
	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	env     *simtest.Env
	learner ledger.Identity
	reader  *ledger.Reader
	orch    *orchestrator.Orchestrator
	course  simtest.Course
	c       *Controller
}

func newFixture(t *testing.T, lessons int, opts []ledger.SimOption, copts ...Option) *fixture {
	env := simtest.New(t, opts...)
	owner := env.Identity(0)

	f := &fixture{env: env, learner: env.Identity(0)}
	f.course = env.SimpleCourse(owner, 0, lessons)
	f.reader = env.Reader(env.Facade(f.learner))
	f.orch = orchestrator.New(f.reader)
	t.Cleanup(f.orch.Close)

	require.True(t, f.orch.Enroll(context.Background(), f.course.ID).Success)

	copts = append([]Option{WithPollInterval(5 * time.Millisecond), WithPollTimeout(5 * time.Second)}, copts...)
	f.c = New(aggregate.New(f.reader), f.orch, f.course.ID, copts...)
	t.Cleanup(f.c.Cancel)

	require.NoError(t, f.c.Refresh(context.Background()))

	return f
}

// answer answers the first n questions correctly and the rest wrongly.
func (f *fixture) answer(t *testing.T, correct int) {
	status := f.c.Status()
	key := f.env.Sim.AnswerKey(status.Quiz.ID)
	require.Len(t, key, len(status.Quiz.Questions))

	for i, q := range status.Quiz.Questions {
		option := key[i]
		if i >= correct {
			option = (option + 1) % uint64(len(q.Options))
		}

		require.NoError(t, f.c.Answer(q.ID, option))
	}
}

func TestCompletingLastLessonMakesQuizAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, []ledger.SimOption{ledger.WithQuizDelay(50 * time.Millisecond)})

	assert.Equal(t, StateNoQuiz, f.c.State())

	lessons := f.course.AllLessons()

	for i, id := range lessons[:2] {
		task, out := f.c.CompleteLesson(ctx, id)
		require.True(t, out.Success, "%v", out.Err)
		assert.Nil(t, task)
		assert.Equal(t, StateLessonsInProgress, f.c.State())
		assert.Equal(t, i+1, f.c.Status().CompletedLessons)
	}

	task, out := f.c.CompleteLesson(ctx, lessons[2])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)
	assert.Equal(t, StateQuizPending, f.c.State())

	view, err := task.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.NotZero(t, view.ID)
	assert.Len(t, view.Questions, 3)

	status := f.c.Status()
	assert.Equal(t, StateQuizAvailable, status.State)
	assert.Equal(t, 3, status.TotalLessons)
	assert.Equal(t, view.ID, status.Quiz.ID)
}

func TestFailedQuizCanBeRetaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, []ledger.SimOption{ledger.WithQuestionsPerQuiz(20)})

	task, out := f.c.CompleteLesson(ctx, f.course.AllLessons()[0])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)

	first, err := task.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, first.Questions, 20)

	f.answer(t, 11)

	result, out := f.c.Submit(ctx)
	require.True(t, out.Success, "%v", out.Err)
	assert.EqualValues(t, 55, result.Score)
	assert.False(t, result.Passed)
	assert.Equal(t, StateSubmitted, f.c.State())

	completed, err := f.reader.CompletedCourseIDs(ctx, f.learner.Address())
	require.NoError(t, err)
	assert.NotContains(t, completed, f.course.ID)

	enrollment, err := f.reader.Enrollment(ctx, f.learner.Address(), f.course.ID)
	require.NoError(t, err)
	assert.False(t, enrollment.Completed)

	task, err = f.c.Retake(ctx)
	require.NoError(t, err)

	second, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, StateQuizAvailable, f.c.State())
	assert.Empty(t, f.c.Status().Answers)

	current, err := f.reader.CurrentQuizID(ctx, f.learner.Address(), f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current)

	f.answer(t, 20)

	result, out = f.c.Submit(ctx)
	require.True(t, out.Success, "%v", out.Err)
	assert.True(t, result.Passed)

	_, err = f.c.Retake(ctx)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestSubmitWithUnansweredQuestionsMakesNoCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, nil)

	var task *PollTask
	for _, id := range f.course.AllLessons() {
		var out orchestrator.Outcome
		task, out = f.c.CompleteLesson(ctx, id)
		require.True(t, out.Success, "%v", out.Err)
	}

	require.NotNil(t, task)

	view, err := task.Wait(ctx)
	require.NoError(t, err)

	q := view.Questions[0]
	assert.True(t, errs.Is(f.c.Answer(q.ID, uint64(len(q.Options))), errs.KindValidation))
	assert.True(t, errs.Is(f.c.Answer(q.ID+1000, 0), errs.KindValidation))
	require.NoError(t, f.c.Answer(q.ID, 0))

	assert.False(t, f.c.Status().Answered())

	calls := len(f.env.Sim.Calls())

	result, out := f.c.Submit(ctx)
	assert.Nil(t, result)
	assert.Equal(t, errs.KindValidation, out.Kind)
	assert.Len(t, f.env.Sim.Calls(), calls)
	assert.Equal(t, StateQuizAvailable, f.c.State())
}

func TestCancelledPollStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, []ledger.SimOption{ledger.WithQuizDelay(time.Hour)})

	task, out := f.c.CompleteLesson(ctx, f.course.AllLessons()[0])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)

	f.c.Cancel()

	_, err := task.Wait(ctx)
	assert.True(t, errs.Is(err, errs.KindCancelled))
	assert.Equal(t, StateQuizPending, f.c.State())
	assert.Nil(t, f.c.Task())

	// The request is still pending on the ledger.
	require.NoError(t, f.c.Refresh(ctx))
	assert.Equal(t, StateQuizPending, f.c.State())

	generated := count(f.env.Sim.Submits(), sys.MethodGenerateQuiz)
	require.Equal(t, 1, generated)

	task, err = f.c.Generate(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, generated, count(f.env.Sim.Submits(), sys.MethodGenerateQuiz))
	assert.Equal(t, StateQuizPending, f.c.State())
}

func TestPollTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, []ledger.SimOption{ledger.WithQuizDelay(time.Hour)}, WithPollTimeout(30*time.Millisecond))

	task, out := f.c.CompleteLesson(ctx, f.course.AllLessons()[0])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)

	_, err := task.Wait(ctx)
	assert.True(t, errs.Is(err, errs.KindQuizGenerationTimeout))
	assert.Equal(t, StateQuizPending, f.c.State())

	assert.Eventually(t, func() bool { return f.c.Task() == nil }, time.Second, time.Millisecond)
}

func TestGenerateRequiresAllLessons(t *testing.T) {
	f := newFixture(t, 2, nil)

	_, err := f.c.Generate(context.Background())
	assert.True(t, errs.Is(err, errs.KindValidation))
	assert.Equal(t, StateNoQuiz, f.c.State())
}

func count(methods []string, method string) int {
	n := 0

	for _, m := range methods {
		if m == method {
			n++
		}
	}

	return n
}

func TestRefreshFinishesTheWaitWithoutLosingAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, []ledger.SimOption{ledger.WithQuizDelay(20 * time.Millisecond)}, WithPollInterval(300*time.Millisecond))

	task, out := f.c.CompleteLesson(ctx, f.course.AllLessons()[0])
	require.True(t, out.Success, "%v", out.Err)
	require.NotNil(t, task)

	assert.Eventually(t, func() bool {
		id, err := f.reader.CurrentQuizID(ctx, f.learner.Address(), f.course.ID)
		return err == nil && id != 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.c.Refresh(ctx))
	assert.Equal(t, StateQuizAvailable, f.c.State())
	assert.Nil(t, f.c.Task())

	f.answer(t, len(f.c.Status().Quiz.Questions))

	view, err := task.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, view)

	status := f.c.Status()
	assert.Equal(t, view.ID, status.Quiz.ID)
	assert.True(t, status.Answered())

	// The same quiz reported again keeps the recorded answers.
	again := &PollTask{Started: time.Now()}

	f.c.mu.Lock()
	f.c.task = again
	f.c.mu.Unlock()

	assert.True(t, f.c.found(again, view))
	assert.True(t, f.c.Status().Answered())

	result, out := f.c.Submit(ctx)
	require.True(t, out.Success, "%v", out.Err)
	assert.True(t, result.Passed)
	assert.Equal(t, StateSubmitted, f.c.State())
}

func TestConcurrentGenerateSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, []ledger.SimOption{ledger.WithQuizDelay(time.Hour)})

	require.True(t, f.orch.CompleteLesson(ctx, f.course.ID, f.course.AllLessons()[0]).Success)
	require.NoError(t, f.c.Refresh(ctx))
	require.Equal(t, StateAllLessonsComplete, f.c.State())

	var wg sync.WaitGroup
	results := make([]error, 2)

	for i := range results {
		i := i

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = f.c.Generate(ctx)
		}()
	}

	wg.Wait()

	var failures []error

	for _, err := range results {
		if err != nil {
			failures = append(failures, err)
		}
	}

	require.Len(t, failures, 1)
	assert.True(t, errs.Is(failures[0], errs.KindValidation))
	assert.Equal(t, 1, count(f.env.Sim.Submits(), sys.MethodGenerateQuiz))
	assert.Equal(t, StateQuizPending, f.c.State())
}
