package aggregate

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/internal/simtest"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseSortsByOrderIndex(t *testing.T) {
	env := simtest.New(t)
	owner := env.Identity(0)

	c := env.Course(owner, simtest.CourseFixture{Modules: []simtest.ModuleFixture{
		{Order: 3, LessonOrders: []uint64{2, 1}},
		{Order: 1, LessonOrders: []uint64{1}},
		{Order: 2, LessonOrders: []uint64{3, 1, 2}},
	}})

	a := New(env.Reader(env.Facade(nil)), WithFanOutLimit(2))

	view, report, err := a.Course(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, report.Partial())
	assert.NoError(t, report.Warning())

	require.Len(t, view.Modules, 3)
	assert.Equal(t, []uint64{c.ModuleIDs[1], c.ModuleIDs[2], c.ModuleIDs[0]},
		[]uint64{view.Modules[0].ID, view.Modules[1].ID, view.Modules[2].ID})

	var orders []uint64
	for _, l := range view.Modules[1].Lessons {
		orders = append(orders, l.Order)
	}
	assert.Equal(t, []uint64{1, 2, 3}, orders)

	assert.Equal(t, 6, view.LessonCount())
	assert.Len(t, view.LessonIDs(), 6)
}

func TestCourseExcludesFailedChildren(t *testing.T) {
	env := simtest.New(t)
	owner := env.Identity(0)

	c := env.Course(owner, simtest.CourseFixture{Modules: []simtest.ModuleFixture{
		{Order: 1, LessonOrders: []uint64{1, 2}},
		{Order: 2, LessonOrders: []uint64{1}},
		{Order: 3, LessonOrders: []uint64{1}},
	}})

	env.Sim.FailQuery(sys.MethodModule, c.ModuleIDs[1])
	env.Sim.FailQuery(sys.MethodLesson, c.LessonIDs[0][1])

	a := New(env.Reader(env.Facade(nil)))

	view, report, err := a.Course(context.Background(), c.ID)
	require.NoError(t, err)

	require.Len(t, view.Modules, 2)
	assert.Equal(t, c.ModuleIDs[0], view.Modules[0].ID)
	assert.Equal(t, c.ModuleIDs[2], view.Modules[1].ID)
	assert.Len(t, view.Modules[0].Lessons, 1)

	assert.Equal(t, 2, report.Excluded)
	assert.Equal(t, 6, report.Requested)
	assert.True(t, errs.Is(report.Warning(), errs.KindPartialAggregationFailure))
}

func TestCourseFailsWhenChildListFails(t *testing.T) {
	env := simtest.New(t)
	c := env.SimpleCourse(env.Identity(0), 0, 2)

	env.Sim.FailQuery(sys.MethodCourseModules, c.ID)

	a := New(env.Reader(env.Facade(nil)))

	_, _, err := a.Course(context.Background(), c.ID)
	assert.Error(t, err)
}

func TestQuizKeepsQuestionOrder(t *testing.T) {
	env := simtest.New(t, ledger.WithQuestionsPerQuiz(5))
	owner, learner := env.Identity(0), env.Identity(0)

	c := env.SimpleCourse(owner, 0, 1)

	env.Do(learner, sys.MethodEnroll, c.ID)
	env.Do(learner, sys.MethodCompleteLesson, c.ID, c.LessonIDs[0][0])
	env.Do(learner, sys.MethodGenerateQuiz, c.ID)

	reader := env.Reader(env.Facade(learner))

	quizID, err := reader.CurrentQuizID(context.Background(), learner.Address(), c.ID)
	require.NoError(t, err)
	require.NotZero(t, quizID)

	ids, err := reader.QuizQuestionIDs(context.Background(), quizID)
	require.NoError(t, err)

	env.Sim.FailQuery(sys.MethodQuestion, ids[2])

	view, report, err := New(reader, WithFanOutLimit(5)).Quiz(context.Background(), quizID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Excluded)

	var got []uint64
	for _, q := range view.Questions {
		got = append(got, q.ID)
	}

	assert.Equal(t, []uint64{ids[0], ids[1], ids[3], ids[4]}, got)
}

func TestCatalogAndInstructor(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(0)

	first := env.SimpleCourse(owner, 0, 1)
	second := env.SimpleCourse(owner, 0, 1)

	env.Do(learner, sys.MethodEnroll, first.ID)
	env.Do(learner, sys.MethodSubmitReview, owner.Address(), first.ID, uint64(4), "good")
	env.Do(learner, sys.MethodEnroll, second.ID)
	env.Do(learner, sys.MethodSubmitReview, owner.Address(), second.ID, uint64(5), "great")

	env.Sim.FailQuery(sys.MethodCourse, second.ID)

	a := New(env.Reader(env.Facade(nil)))

	courses, report, err := a.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, first.ID, courses[0].ID)
	assert.Equal(t, 1, report.Excluded)

	env.Sim.ClearFailures()

	view, report, err := a.Instructor(ctx, owner.Address())
	require.NoError(t, err)
	assert.False(t, report.Partial())
	assert.Len(t, view.Courses, 2)
	assert.Len(t, view.Reviews, 2)
	assert.InDelta(t, 4.5, view.AverageRating, 0.001)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()

	env := simtest.New(t)
	owner, learner := env.Identity(0), env.Identity(30)

	c := env.SimpleCourse(owner, 0, 1)

	first := env.Sim.AddAchievement(ledger.Achievement{Title: "First steps", Trigger: ledger.TriggerLessonsCompleted, Threshold: 1})
	second := env.Sim.AddAchievement(ledger.Achievement{Title: "Graduate", Trigger: ledger.TriggerCoursesCompleted, Threshold: 1})

	env.Do(learner, sys.MethodEnroll, c.ID)
	env.Do(learner, sys.MethodCompleteLesson, c.ID, c.LessonIDs[0][0])
	env.Do(learner, sys.MethodClaimAchievement, first)

	view, report, err := New(env.Reader(env.Facade(nil))).Profile(ctx, learner.Address())
	require.NoError(t, err)
	assert.False(t, report.Partial())
	assert.EqualValues(t, 30, view.Balance)
	assert.Empty(t, view.Certificates)

	require.Len(t, view.Achievements, 2)
	assert.Equal(t, first, view.Achievements[0].ID)
	assert.True(t, view.Achievements[0].Earned)
	assert.Equal(t, second, view.Achievements[1].ID)
	assert.False(t, view.Achievements[1].Earned)
}
