package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/wallet"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) error {
	t.Helper()

	app := newApp(ioutil.NopCloser(strings.NewReader("")), ioutil.Discard)

	return app.Run(append([]string{"academyctl", "--nocolor"}, args...))
}

func startDevnet(t *testing.T, sim *ledger.Sim) {
	t.Helper()

	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	srv := ledger.NewServer(sim)

	go func() {
		_ = srv.Serve(ln)
	}()

	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	conf.Update(
		conf.WithAPIHost("127.0.0.1"),
		conf.WithAPIPort(uint16(port)),
		conf.WithMarketContract(sim.Market().String()),
		conf.WithTokenContract(sim.Token().String()),
		conf.WithQueryRate(0),
		conf.WithConfirmPollInterval(10*time.Millisecond),
		conf.WithConfirmTimeout(5*time.Second),
	)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3", ""})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	_, err = parseIDs([]string{"1,x"})
	assert.Error(t, err)
}

func TestSeedCatalog(t *testing.T) {
	sim := ledger.NewSim()

	owner, err := seedCatalog(context.Background(), sim)
	require.NoError(t, err)

	reader := ledger.NewReader(ledger.NewFacade(sim, 1337), sim.Market(), sim.Token())

	count, err := reader.CourseCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, len(sampleCatalog), count)

	ids, err := reader.InstructorCourseIDs(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, ids, len(sampleCatalog))
}

func TestKeygenAndEnrollOverHTTP(t *testing.T) {
	defer conf.Reset()

	dir, err := ioutil.TempDir("", "academyctl")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	sim := ledger.NewSim()
	_, err = seedCatalog(context.Background(), sim)
	require.NoError(t, err)

	startDevnet(t, sim)

	path := filepath.Join(dir, "key.json")
	require.NoError(t, run(t, "--password", "hunter2", "keygen", path))

	encrypted, err := wallet.IsProbablyEncrypted(path)
	require.NoError(t, err)
	assert.True(t, encrypted)

	keys, err := wallet.Load(path, "hunter2")
	require.NoError(t, err)

	sim.Mint(keys.Address(), 100)

	require.NoError(t, run(t, "catalog"))
	require.NoError(t, run(t, "--keystore", path, "--password", "hunter2", "status"))

	// The second sample course costs 25 tokens.
	require.NoError(t, run(t, "--keystore", path, "--password", "hunter2", "enroll", "2"))

	reader := ledger.NewReader(ledger.NewFacade(sim, 1337), sim.Market(), sim.Token())

	balance, err := reader.Balance(context.Background(), keys.Address())
	require.NoError(t, err)
	assert.EqualValues(t, 75, balance)

	enrolled, err := reader.EnrolledCourseIDs(context.Background(), keys.Address())
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, enrolled)

	// Writes need an identity.
	assert.Error(t, run(t, "enroll", "1"))
}
