package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/perlin-network/academy/sys"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimRejectsOutOfOrderNonce(t *testing.T) {
	t.Parallel()

	sim := NewSim()
	sender := account(1)

	_, err := sim.SubmitSigned(context.Background(), SignedTx{
		Sender:  sender,
		Call:    NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(10)),
		Nonce:   2,
		ChainID: 1337,
	})

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.Reason, "nonce out of order")

	_, err = sim.SubmitSigned(context.Background(), SignedTx{
		Sender:  sender,
		Call:    NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(10)),
		Nonce:   1,
		ChainID: 7,
	})
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.Reason, "chain")
}

func TestSimRejectsSpendBeforeAllowanceIsConfirmed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sim := NewSim(WithConfirmDelay(50 * time.Millisecond))
	instructor, learner := testIdentity(account(1)), testIdentity(account(2))

	courseID, _ := seedCourse(t, sim, instructor, 10, 1)
	sim.Mint(learner.Address(), 100)

	approve, err := sim.Submit(ctx, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(10)), learner)
	require.NoError(t, err)

	enroll, err := sim.Submit(ctx, NewCall(sim.Market(), sys.MethodEnroll, courseID), learner)
	require.NoError(t, err)

	r, err := sim.AwaitConfirmation(ctx, enroll)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r.Status)
	assert.Contains(t, r.Reason, "insufficient allowance")

	r, err = sim.AwaitConfirmation(ctx, approve)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodEnroll, courseID))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	var enrolled Enrolled
	require.NoError(t, r.Expect(&enrolled))
	assert.EqualValues(t, 10, enrolled.Price)
}

func TestSimProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	sim := NewSim()
	instructor, learner := testIdentity(account(1)), testIdentity(account(2))

	courseID, _ := seedCourse(t, sim, instructor, 0, 2)

	r := submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodEnroll, courseID))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodUpdateProgress, courseID, uint64(40)))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodUpdateProgress, courseID, uint64(30)))
	assert.Equal(t, StatusRejected, r.Status)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodUpdateProgress, courseID, uint64(101)))
	assert.Equal(t, StatusRejected, r.Status)

	v, err := sim.Query(context.Background(), NewCall(sim.Market(), sys.MethodProgress, learner.Address(), courseID))
	require.NoError(t, err)

	progress, err := v.Uint64()
	require.NoError(t, err)
	assert.EqualValues(t, 40, progress)
}

func TestSimQuizSupersedesAndCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	sim := NewSim()
	instructor, learner := testIdentity(account(1)), testIdentity(account(2))

	courseID, lessons := seedCourse(t, sim, instructor, 0, 2)
	submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodEnroll, courseID))

	r := submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodGenerateQuiz, courseID))
	assert.Equal(t, StatusRejected, r.Status, "quiz generation requires every lesson")

	for _, id := range lessons {
		r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodCompleteLesson, courseID, id))
		require.Equal(t, StatusConfirmed, r.Status, r.Reason)
	}

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodGenerateQuiz, courseID))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	v, err := sim.Query(ctx, NewCall(sim.Market(), sys.MethodCurrentQuiz, learner.Address(), courseID))
	require.NoError(t, err)

	first, err := v.Uint64()
	require.NoError(t, err)
	require.NotZero(t, first)

	// Fail the first quiz on purpose.
	key := sim.AnswerKey(first)
	wrong := make([]uint64, len(key))
	for i := range key {
		wrong[i] = (key[i] + 1) % 4
	}

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodSubmitQuiz, first, wrong))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	var submitted QuizSubmitted
	require.NoError(t, r.Expect(&submitted))
	assert.False(t, submitted.Passed)
	assert.EqualValues(t, 0, submitted.Score)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodGenerateQuiz, courseID))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	v, err = sim.Query(ctx, NewCall(sim.Market(), sys.MethodCurrentQuiz, learner.Address(), courseID))
	require.NoError(t, err)

	second, err := v.Uint64()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	r = submitAndAwait(t, sim, learner, NewCall(sim.Market(), sys.MethodSubmitQuiz, second, sim.AnswerKey(second)))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)
	require.NoError(t, r.Expect(&submitted))
	assert.True(t, submitted.Passed)
	assert.EqualValues(t, 100, submitted.Score)

	v, err = sim.Query(ctx, NewCall(sim.Market(), sys.MethodCompletedCourses, learner.Address()))
	require.NoError(t, err)

	completed, err := ValueUint64s(v)
	require.NoError(t, err)
	assert.Equal(t, []uint64{courseID}, completed)
}

func TestSimInjectedFailure(t *testing.T) {
	t.Parallel()

	sim := NewSim()
	courseID, _ := seedCourse(t, sim, testIdentity(account(1)), 0, 1)

	sim.FailQuery(sys.MethodCourse, courseID)

	_, err := sim.Query(context.Background(), NewCall(sim.Market(), sys.MethodCourse, courseID))
	assert.Error(t, err)

	sim.ClearFailures()

	_, err = sim.Query(context.Background(), NewCall(sim.Market(), sys.MethodCourse, courseID))
	assert.NoError(t, err)

	_, err = sim.Query(context.Background(), NewCall(sim.Market(), sys.MethodCourse, uint64(99)))
	assert.True(t, errors.Is(err, ErrNotFound))
}
