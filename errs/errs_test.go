package errs

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := New(KindNoIdentity, "enroll", "no signer connected")
	assert.Equal(t, KindNoIdentity, KindOf(err))
	assert.Equal(t, KindNoIdentity, KindOf(errors.Wrap(err, "outer")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindCancelled, KindOf(errors.Wrap(context.Canceled, "poll")))
}

func TestWrapKeepsExistingKind(t *testing.T) {
	t.Parallel()

	inner := New(KindTransactionRejected, "approve", "nonce too low")
	assert.Equal(t, KindTransactionRejected, KindOf(Wrap(KindRemote, "enroll", inner)))
	assert.Nil(t, Wrap(KindRemote, "enroll", nil))
	assert.Equal(t, KindCancelled, KindOf(Wrap(KindRemote, "poll", context.Canceled)))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(Errorf(KindInsufficientBalance, "batchEnroll", "need %d, have %d", 25, 20), "cli")

	assert.True(t, errors.Is(err, E(KindInsufficientBalance)))
	assert.False(t, errors.Is(err, E(KindInsufficientAllowance)))
	assert.True(t, Is(err, KindInsufficientBalance))
	assert.Contains(t, err.Error(), "InsufficientBalance")
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ValidationError", KindValidation.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
}
