// Package errs holds the error taxonomy shared by every component that talks
// to the ledger. Every failure surfaced to a caller carries exactly one Kind.
package errs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type Kind uint8

const (
	KindUnknown Kind = iota

	// KindNetworkMismatch means the connected chain identity differs from
	// the configured one.
	KindNetworkMismatch

	// KindNoIdentity means a write was attempted without a connected signer.
	KindNoIdentity

	KindInsufficientAllowance
	KindInsufficientBalance

	// KindTransactionRejected is a terminal ledger rejection.
	KindTransactionRejected

	// KindMissingExpectedEvent means a confirmed transaction lacked the
	// event needed to extract a generated identifier.
	KindMissingExpectedEvent

	KindQuizGenerationTimeout

	// KindPartialAggregationFailure is a warning: some children of a
	// composite were excluded.
	KindPartialAggregationFailure

	// KindValidation is a client-side input rejection. No network call was
	// made.
	KindValidation

	KindRemote
	KindNotFound
	KindCancelled
)

var kindNames = [...]string{
	KindUnknown:                   "Unknown",
	KindNetworkMismatch:           "NetworkMismatch",
	KindNoIdentity:                "NoIdentity",
	KindInsufficientAllowance:     "InsufficientAllowance",
	KindInsufficientBalance:       "InsufficientBalance",
	KindTransactionRejected:       "TransactionRejected",
	KindMissingExpectedEvent:      "MissingExpectedEvent",
	KindQuizGenerationTimeout:     "QuizGenerationTimeout",
	KindPartialAggregationFailure: "PartialAggregationFailure",
	KindValidation:                "ValidationError",
	KindRemote:                    "Remote",
	KindNotFound:                  "NotFound",
	KindCancelled:                 "Cancelled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a failure of a single kind raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on the kind alone, e.g. errors.Is(err, errs.E(errs.KindNoIdentity)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// E returns a bare error of the given kind, useful as an errors.Is target.
func E(kind Kind) *Error {
	return &Error{Kind: kind}
}

func New(kind Kind, op string, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func Errorf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap attaches a kind to err. Errors that already carry a kind keep it, and
// context cancellation is always reported as KindCancelled.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
