package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// Facade is the single entry point to the ledger for every component. It
// routes reads to a fallback endpoint while no identity is connected and
// refuses writes that cannot possibly succeed. It does not cache.
type Facade struct {
	primary  RPC
	fallback RPC

	chainID uint64
	metrics *metrics.Metrics

	mu       sync.RWMutex
	identity Identity
}

type FacadeOption func(*Facade)

// WithFallback sets the read-only endpoint used while no identity is
// connected.
func WithFallback(rpc RPC) FacadeOption {
	return func(f *Facade) {
		f.fallback = rpc
	}
}

// WithIdentity connects an identity up front.
func WithIdentity(id Identity) FacadeOption {
	return func(f *Facade) {
		f.identity = id
	}
}

// WithMetrics records query and transaction outcomes in m.
func WithMetrics(m *metrics.Metrics) FacadeOption {
	return func(f *Facade) {
		f.metrics = m
	}
}

func NewFacade(primary RPC, expectedChainID uint64, opts ...FacadeOption) *Facade {
	f := &Facade{primary: primary, chainID: expectedChainID}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// SetIdentity connects id, or disconnects the current identity when id is
// nil. It returns the previously connected identity.
func (f *Facade) SetIdentity(id Identity) Identity {
	f.mu.Lock()
	prev := f.identity
	f.identity = id
	f.mu.Unlock()

	return prev
}

// Identity returns the connected identity and whether there is one.
func (f *Facade) Identity() (Identity, bool) {
	f.mu.RLock()
	id := f.identity
	f.mu.RUnlock()

	return id, id != nil
}

// Account returns the connected account, or the zero account.
func (f *Facade) Account() AccountID {
	if id, ok := f.Identity(); ok {
		return id.Address()
	}

	return ZeroAccountID
}

func (f *Facade) ExpectedChainID() uint64 {
	return f.chainID
}

func (f *Facade) reader() RPC {
	if _, ok := f.Identity(); !ok && f.fallback != nil {
		return f.fallback
	}

	return f.primary
}

// Query runs a read-only contract method.
func (f *Facade) Query(ctx context.Context, contract AccountID, method string, args ...interface{}) (*fastjson.Value, error) {
	start := time.Now()

	v, err := f.reader().Query(ctx, NewCall(contract, method, args...))
	f.metrics.MarkQuery(time.Since(start), err)

	if err != nil {
		return nil, classify("query "+method, err)
	}

	return v, nil
}

// CheckNetwork verifies the primary endpoint serves the expected chain.
func (f *Facade) CheckNetwork(ctx context.Context) error {
	got, err := f.primary.ChainID(ctx)
	if err != nil {
		return classify("chain id", err)
	}

	if got != f.chainID {
		return errs.Errorf(errs.KindNetworkMismatch, "chain id",
			"connected to chain %d, expected %d", got, f.chainID)
	}

	return nil
}

// Submit sends a transaction signed by the connected identity. Without an
// identity, or on the wrong network, nothing is sent.
func (f *Facade) Submit(ctx context.Context, contract AccountID, method string, args ...interface{}) (TxHandle, error) {
	id, ok := f.Identity()
	if !ok {
		return TxHandle{}, errs.New(errs.KindNoIdentity, "submit "+method, "no identity connected")
	}

	if err := f.CheckNetwork(ctx); err != nil {
		return TxHandle{}, err
	}

	h, err := f.primary.Submit(ctx, NewCall(contract, method, args...), id)
	if err != nil {
		return TxHandle{}, classify("submit "+method, err)
	}

	f.metrics.MarkSubmitted()

	logger := log.Ledger("submit")
	logger.Debug().
		Str("tx_id", h.ID).
		Str("method", method).
		Uint64("nonce", h.Nonce).
		Msg("Submitted transaction.")

	return h, nil
}

// Await blocks until h is confirmed or rejected. A rejected transaction
// yields its receipt together with a TransactionRejected error.
func (f *Facade) Await(ctx context.Context, h TxHandle) (*Receipt, error) {
	r, err := f.primary.AwaitConfirmation(ctx, h)
	if err != nil {
		return nil, classify("await "+h.ID, err)
	}

	if r.Status == StatusConfirmed {
		f.metrics.MarkConfirmed(time.Since(h.Submitted))
	}

	if r.Status == StatusRejected {
		f.metrics.MarkRejected()

		return r, errs.Errorf(errs.KindTransactionRejected, "await "+h.ID, "%s", r.Reason)
	}

	return r, nil
}

func classify(op string, err error) error {
	var rejected *RejectedError

	switch {
	case errors.As(err, &rejected):
		return errs.Wrap(errs.KindTransactionRejected, op, err)
	case errors.Is(err, ErrNotFound):
		return errs.Wrap(errs.KindNotFound, op, err)
	}

	return errs.Wrap(errs.KindRemote, op, err)
}
