package ledger

import (
	"context"
	"testing"

	"github.com/perlin-network/academy/sys"
	"github.com/stretchr/testify/require"
)

type testIdentity AccountID

func (id testIdentity) Address() AccountID { return AccountID(id) }

func (id testIdentity) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], msg)

	return sig
}

func account(b byte) AccountID {
	var id AccountID
	id[0], id[31] = b, b

	return id
}

func submitAndAwait(t *testing.T, rpc RPC, id Identity, call Call) *Receipt {
	t.Helper()

	ctx := context.Background()

	h, err := rpc.Submit(ctx, call, id)
	require.NoError(t, err)

	r, err := rpc.AwaitConfirmation(ctx, h)
	require.NoError(t, err)

	return r
}

// seedCourse creates a course with one module of n lessons and returns the
// course and lesson IDs.
func seedCourse(t *testing.T, sim *Sim, owner Identity, price uint64, n int) (uint64, []uint64) {
	t.Helper()

	r := submitAndAwait(t, sim, owner, NewCall(sim.Market(), sys.MethodCreateCourse,
		"Go in Practice", "Idiomatic Go", price, uint64(3600), uint64(50), uint64(5), []uint64{}, []string{"go"}))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	var created CourseCreated
	require.NoError(t, r.Expect(&created))

	r = submitAndAwait(t, sim, owner, NewCall(sim.Market(), sys.MethodAddModule,
		created.CourseID, "Basics", "", uint64(1)))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	var module ModuleAdded
	require.NoError(t, r.Expect(&module))

	lessons := make([]uint64, 0, n)

	for i := 0; i < n; i++ {
		r = submitAndAwait(t, sim, owner, NewCall(sim.Market(), sys.MethodAddLesson,
			module.ModuleID, "Lesson", "", sys.ContentText, "ipfs://lesson", uint64(60), uint64(i+1)))
		require.Equal(t, StatusConfirmed, r.Status, r.Reason)

		var lesson LessonAdded
		require.NoError(t, r.Expect(&lesson))

		lessons = append(lessons, lesson.LessonID)
	}

	return created.CourseID, lessons
}
