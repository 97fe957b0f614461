package conf

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	defer Reset()

	assert.EqualValues(t, "localhost", GetAPIHost())
	assert.EqualValues(t, 9000, GetAPIPort())
	assert.False(t, GetHTTPS())
	assert.EqualValues(t, "", GetFallbackHost())
	assert.EqualValues(t, 1337, GetChainID())

	assert.EqualValues(t, 5*time.Second, GetRequestTimeout())
	assert.EqualValues(t, 50, GetQueryRate())
	assert.EqualValues(t, 8, GetFanOutLimit())

	assert.EqualValues(t, 3*time.Second, GetQuizPollInterval())
	assert.EqualValues(t, 90*time.Second, GetQuizPollTimeout())
	assert.EqualValues(t, 500*time.Millisecond, GetConfirmPollInterval())
	assert.EqualValues(t, 2*time.Minute, GetConfirmTimeout())

	assert.EqualValues(t, 1024, GetCacheSize())
	assert.EqualValues(t, 60, GetPassingScore())
}

func TestUpdate(t *testing.T) {
	defer Reset()

	Update(
		WithAPIHost("node.example"),
		WithAPIPort(443),
		WithHTTPS(true),
		WithFallbackHost("public.example"),
		WithFallbackPort(8080),
		WithChainID(42),
		WithMarketContract("aa"),
		WithTokenContract("bb"),
		WithRequestTimeout(time.Second),
		WithQueryRate(0),
		WithFanOutLimit(2),
		WithQuizPollInterval(10*time.Millisecond),
		WithQuizPollTimeout(time.Second),
		WithConfirmPollInterval(time.Millisecond),
		WithConfirmTimeout(time.Second),
		WithCacheSize(16),
		WithPassingScore(75),
	)

	assert.EqualValues(t, "node.example", GetAPIHost())
	assert.EqualValues(t, 443, GetAPIPort())
	assert.True(t, GetHTTPS())
	assert.EqualValues(t, "public.example", GetFallbackHost())
	assert.EqualValues(t, 8080, GetFallbackPort())
	assert.EqualValues(t, 42, GetChainID())
	assert.EqualValues(t, "aa", GetMarketContract())
	assert.EqualValues(t, "bb", GetTokenContract())
	assert.EqualValues(t, time.Second, GetRequestTimeout())
	assert.EqualValues(t, 0, GetQueryRate())
	assert.EqualValues(t, 2, GetFanOutLimit())
	assert.EqualValues(t, 10*time.Millisecond, GetQuizPollInterval())
	assert.EqualValues(t, time.Second, GetQuizPollTimeout())
	assert.EqualValues(t, time.Millisecond, GetConfirmPollInterval())
	assert.EqualValues(t, time.Second, GetConfirmTimeout())
	assert.EqualValues(t, 16, GetCacheSize())
	assert.EqualValues(t, 75, GetPassingScore())

	Reset()
	assert.EqualValues(t, "localhost", GetAPIHost())
}

func TestLoadFile(t *testing.T) {
	defer Reset()

	dir, err := ioutil.TempDir("", "academy-conf")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "academy.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
api:
  host: ledger.internal
  port: 9100
chain_id: 7
contracts:
  market: "0102"
quiz:
  poll_interval: 250ms
  passing_score: 70
cache_size: 32
`), 0644))

	opts, err := LoadFile(path)
	require.NoError(t, err)

	Update(opts...)

	assert.EqualValues(t, "ledger.internal", GetAPIHost())
	assert.EqualValues(t, 9100, GetAPIPort())
	assert.EqualValues(t, 7, GetChainID())
	assert.EqualValues(t, "0102", GetMarketContract())
	assert.EqualValues(t, 250*time.Millisecond, GetQuizPollInterval())
	assert.EqualValues(t, 70, GetPassingScore())
	assert.EqualValues(t, 32, GetCacheSize())

	// Untouched keys keep their defaults.
	assert.EqualValues(t, 8, GetFanOutLimit())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(os.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
