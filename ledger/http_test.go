package ledger

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/sys"
	"github.com/phayes/freeport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDevnet(t *testing.T, sim *Sim) HTTPConfig {
	t.Helper()

	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	srv := NewServer(sim)

	go func() {
		_ = srv.Serve(ln)
	}()

	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return HTTPConfig{
		Host:                "127.0.0.1",
		Port:                uint16(port),
		Timeout:             time.Second,
		ConfirmPollInterval: 10 * time.Millisecond,
		ConfirmTimeout:      5 * time.Second,
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	ctx := context.Background()

	sim := NewSim()
	cfg := startDevnet(t, sim)

	client, err := NewHTTP(cfg)
	require.NoError(t, err)

	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1337, chainID)

	owner := testIdentity(account(1))

	r := submitAndAwait(t, client, owner, NewCall(sim.Market(), sys.MethodCreateCourse,
		"Remote", "over http", uint64(0), uint64(60), uint64(1), uint64(1), []uint64{}, []string{}))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	var created CourseCreated
	require.NoError(t, r.Expect(&created))

	f := NewFacade(client, 1337, WithIdentity(owner))
	reader := NewReader(f, sim.Market(), sim.Token())

	c, err := reader.Course(ctx, created.CourseID)
	require.NoError(t, err)
	assert.Equal(t, "Remote", c.Title)

	// A second write reuses the cached nonce.
	r = submitAndAwait(t, client, owner, NewCall(sim.Market(), sys.MethodSetCoursePaused, created.CourseID, true))
	require.Equal(t, StatusConfirmed, r.Status, r.Reason)

	nonce, err := client.Nonce(ctx, owner.Address())
	require.NoError(t, err)
	assert.EqualValues(t, 2, nonce)

	_, err = reader.Course(ctx, 99)
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = client.Lookup(ctx, "deadbeef")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHTTPRejectedSubmission(t *testing.T) {
	ctx := context.Background()

	sim := NewSim()
	cfg := startDevnet(t, sim)

	client, err := NewHTTP(cfg)
	require.NoError(t, err)

	sender := testIdentity(account(3))

	// Move the ledger's nonce ahead of the client's cached counter.
	_, err = client.Submit(ctx, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(1)), sender)
	require.NoError(t, err)

	_, err = sim.Submit(ctx, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(2)), sender)
	require.NoError(t, err)

	_, err = client.Submit(ctx, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(3)), sender)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Contains(t, rejected.Reason, "nonce out of order")

	// The counter resynchronizes after a rejection.
	_, err = client.Submit(ctx, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(4)), sender)
	assert.NoError(t, err)
}

func TestWatcherStreamsReceipts(t *testing.T) {
	sim := NewSim()
	cfg := startDevnet(t, sim)

	w := NewWatcher(cfg)
	defer w.Close()

	sender := testIdentity(account(4))
	received := make(chan *Receipt, 4)

	_, err := w.Transactions(sender.Address(), func(r *Receipt) {
		received <- r
	})
	require.NoError(t, err)

	// Give the server a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	submitAndAwait(t, sim, testIdentity(account(5)), NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(1)))
	r := submitAndAwait(t, sim, sender, NewCall(sim.Token(), sys.MethodApprove, sim.Market(), uint64(1)))

	select {
	case got := <-received:
		assert.Equal(t, r.TxID, got.TxID)
		assert.Equal(t, StatusConfirmed, got.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for receipt")
	}
}

func TestRequestErrorMapping(t *testing.T) {
	notFound := (&RequestError{StatusCode: 404, ErrorString: "course 9"}).mapped()
	assert.Equal(t, ErrNotFound, errors.Cause(notFound))

	conflict := (&RequestError{StatusCode: 409, ErrorString: "bad nonce"}).mapped()
	assert.Equal(t, &RejectedError{Reason: "bad nonce"}, conflict)

	e := &RequestError{StatusCode: 500, ErrorString: "boom"}

	unmapped := e.mapped()
	assert.Same(t, e, unmapped)

	// Unwrapping a chain that ends in a RequestError terminates on it.
	assert.Same(t, e, errors.Cause(errors.Wrap(unmapped, "query")))
}
