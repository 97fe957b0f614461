package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// RPC is raw access to a ledger node.
type RPC interface {
	// ChainID reports the numeric identity of the network the node serves.
	ChainID(ctx context.Context) (uint64, error)

	// Query runs a read-only contract method.
	Query(ctx context.Context, call Call) (*fastjson.Value, error)

	// Submit signs call with id and sends it as a transaction.
	Submit(ctx context.Context, call Call, id Identity) (TxHandle, error)

	// AwaitConfirmation blocks until the transaction is confirmed or
	// rejected.
	AwaitConfirmation(ctx context.Context, h TxHandle) (*Receipt, error)
}

// Identity is a connected account able to sign on its own behalf.
type Identity interface {
	Address() AccountID
	Sign(msg []byte) Signature
}

// Backend is a ledger a devnet Server can expose over HTTP.
type Backend interface {
	RPC

	// Nonce returns the last nonce accepted from account.
	Nonce(ctx context.Context, account AccountID) (uint64, error)

	// SubmitSigned accepts a transaction signed by a remote identity.
	SubmitSigned(ctx context.Context, tx SignedTx) (TxHandle, error)

	// Lookup returns the current receipt of a transaction without waiting.
	Lookup(ctx context.Context, id string) (*Receipt, error)

	// Height is the number of transactions applied so far.
	Height() uint64

	// OnReceipt registers fn to be called whenever a transaction reaches a
	// terminal status. The returned func unregisters it.
	OnReceipt(fn func(*Receipt)) func()
}

var (
	ErrNotFound    = errors.New("not found")
	ErrUnknownCall = errors.New("unknown contract method")
)

// RejectedError is returned by a node that refuses a transaction outright.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "transaction rejected: " + e.Reason
}

func rejectf(format string, args ...interface{}) error {
	return &RejectedError{Reason: errors.Errorf(format, args...).Error()}
}
