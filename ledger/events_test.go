package ledger

import (
	"testing"

	"github.com/perlin-network/academy/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestReceiptExpect(t *testing.T) {
	t.Parallel()

	var arena fastjson.Arena

	r := &Receipt{
		TxID:   "abc",
		Status: StatusConfirmed,
		Events: []*fastjson.Value{
			MarshalEventArena(&arena, &Approval{Owner: account(1), Spender: account(2), Amount: 5}),
			MarshalEventArena(&arena, &Enrolled{CourseID: 3, Account: account(1), Price: 5}),
		},
	}

	var enrolled Enrolled
	require.NoError(t, r.Expect(&enrolled))
	assert.EqualValues(t, 3, enrolled.CourseID)
	assert.Equal(t, account(1), enrolled.Account)

	var created CourseCreated
	err := r.Expect(&created)
	assert.True(t, errs.Is(err, errs.KindMissingExpectedEvent))

	events, err := r.Decode()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.IsType(t, &Approval{}, events[0])
}

func TestQuizSubmittedRequiresOutcome(t *testing.T) {
	t.Parallel()

	var parser fastjson.Parser

	v, err := parser.Parse(`{"event":"QuizSubmitted","quiz_id":1,"course_id":2}`)
	require.NoError(t, err)

	r := &Receipt{TxID: "abc", Status: StatusConfirmed, Events: []*fastjson.Value{v}}

	var submitted QuizSubmitted
	assert.True(t, errs.Is(r.Expect(&submitted), errs.KindMissingExpectedEvent))
}

func TestDecodeUnknownEvent(t *testing.T) {
	t.Parallel()

	var parser fastjson.Parser

	v, err := parser.Parse(`{"event":"Nope"}`)
	require.NoError(t, err)

	_, err = DecodeEvent(v)
	assert.Error(t, err)
}

func TestReceiptRoundTrip(t *testing.T) {
	t.Parallel()

	var arena fastjson.Arena

	in := &Receipt{
		TxID:   "ff00",
		Sender: account(9),
		Method: "enroll",
		Status: StatusRejected,
		Reason: "insufficient allowance",
		Height: 12,
	}

	var parser fastjson.Parser

	v, err := parser.ParseBytes(in.MarshalArena(&arena).MarshalTo(nil))
	require.NoError(t, err)

	var out Receipt
	require.NoError(t, out.UnmarshalValue(v))

	assert.Equal(t, in.TxID, out.TxID)
	assert.Equal(t, in.Sender, out.Sender)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Reason, out.Reason)
	assert.EqualValues(t, 12, out.Height)
}

func TestReceiptExpectAllSkipsOtherEvents(t *testing.T) {
	t.Parallel()

	var (
		arena  fastjson.Arena
		parser fastjson.Parser
	)

	other, err := parser.Parse(`{"event":"Transfer","amount":5}`)
	require.NoError(t, err)

	r := &Receipt{
		TxID:   "abc",
		Status: StatusConfirmed,
		Events: []*fastjson.Value{
			MarshalEventArena(&arena, &Enrolled{CourseID: 3, Account: account(1)}),
			other,
			MarshalEventArena(&arena, &Enrolled{CourseID: 4, Account: account(1)}),
		},
	}

	events, err := r.ExpectAll(func() Event { return new(Enrolled) })
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.EqualValues(t, 3, events[0].(*Enrolled).CourseID)
	assert.EqualValues(t, 4, events[1].(*Enrolled).CourseID)

	none, err := r.ExpectAll(func() Event { return new(CourseCreated) })
	require.NoError(t, err)
	assert.Empty(t, none)
}
