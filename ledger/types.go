package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

const (
	SizeAccountID = 32
	SizeSignature = 64
)

type (
	AccountID [SizeAccountID]byte
	Signature [SizeSignature]byte
)

var ZeroAccountID AccountID

func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

func (a AccountID) IsZero() bool {
	return a == ZeroAccountID
}

// Short is the first 8 hex characters of the account, for logs and prompts.
func (a AccountID) Short() string {
	return hex.EncodeToString(a[:4])
}

func ParseAccountID(s string) (AccountID, error) {
	var id AccountID

	buf, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "account ID must be presented as valid hex")
	}

	if len(buf) != SizeAccountID {
		return id, errors.Errorf("account ID must be %d bytes long, got %d", SizeAccountID, len(buf))
	}

	copy(id[:], buf)

	return id, nil
}

// Call addresses a single contract method.
type Call struct {
	Contract AccountID
	Method   string
	Args     []interface{}
}

func NewCall(contract AccountID, method string, args ...interface{}) Call {
	return Call{Contract: contract, Method: method, Args: args}
}

type Status uint8

const (
	StatusPending Status = iota
	StatusConfirmed
	StatusRejected
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusConfirmed: "confirmed",
	StatusRejected:  "rejected",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}

	return "unknown"
}

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}

	return StatusPending, errors.Errorf("unknown transaction status %q", s)
}

// TxHandle identifies a submitted transaction until it reaches a terminal
// status.
type TxHandle struct {
	ID        string
	Sender    AccountID
	Nonce     uint64
	Submitted time.Time
}

// SignedTx is a call as sent over the wire by a signer.
type SignedTx struct {
	Sender    AccountID
	Call      Call
	Nonce     uint64
	ChainID   uint64
	Signature Signature
}

// SigningPayload is the message an identity signs for a transaction:
// chain ID, nonce, contract, method and the JSON-encoded arguments.
func SigningPayload(call Call, nonce, chainID uint64) ([]byte, error) {
	args, err := EncodeArgs(call.Args)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+8+SizeAccountID+len(call.Method)+len(args))

	var num [8]byte

	binary.BigEndian.PutUint64(num[:], chainID)
	buf = append(buf, num[:]...)

	binary.BigEndian.PutUint64(num[:], nonce)
	buf = append(buf, num[:]...)

	buf = append(buf, call.Contract[:]...)
	buf = append(buf, call.Method...)
	buf = append(buf, args...)

	return buf, nil
}
