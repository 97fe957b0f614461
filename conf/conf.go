package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/perlin-network/academy/sys"
)

type config struct {
	// Primary ledger node API.
	apiHost  string
	apiPort  uint16
	useHTTPS bool

	// Read-only endpoint used before an identity is connected. Empty means
	// the primary node is used for reads too.
	fallbackHost string
	fallbackPort uint16

	// Chain identifier every write must be sent to.
	chainID uint64

	// Hex-encoded contract addresses.
	marketContract string
	tokenContract  string

	// Timeout for a single outgoing request.
	requestTimeout time.Duration

	// Client-side rate limit for queries, in requests per second. 0 disables it.
	queryRate float64

	// Max number of in-flight child fetches per composite.
	fanOutLimit int

	// Quiz availability polling.
	quizPollInterval time.Duration
	quizPollTimeout  time.Duration

	// Transaction confirmation polling.
	confirmPollInterval time.Duration
	confirmTimeout      time.Duration

	// Max number of view models held by the cache.
	cacheSize int

	passingScore uint64
}

var (
	l sync.RWMutex

	defaultConf = defaultConfig()
	c           = defaultConf
)

func defaultConfig() config {
	return config{
		apiHost: "localhost",
		apiPort: 9000,

		chainID: 1337,

		requestTimeout: 5 * time.Second,
		queryRate:      50,
		fanOutLimit:    8,

		quizPollInterval: 3 * time.Second,
		quizPollTimeout:  90 * time.Second,

		confirmPollInterval: 500 * time.Millisecond,
		confirmTimeout:      2 * time.Minute,

		cacheSize: 1024,

		passingScore: sys.PassingScore,
	}
}

type Option func(*config)

func WithAPIHost(host string) Option {
	return func(c *config) {
		c.apiHost = host
	}
}

func WithAPIPort(port uint16) Option {
	return func(c *config) {
		c.apiPort = port
	}
}

func WithHTTPS(enabled bool) Option {
	return func(c *config) {
		c.useHTTPS = enabled
	}
}

func WithFallbackHost(host string) Option {
	return func(c *config) {
		c.fallbackHost = host
	}
}

func WithFallbackPort(port uint16) Option {
	return func(c *config) {
		c.fallbackPort = port
	}
}

func WithChainID(id uint64) Option {
	return func(c *config) {
		c.chainID = id
	}
}

func WithMarketContract(addr string) Option {
	return func(c *config) {
		c.marketContract = addr
	}
}

func WithTokenContract(addr string) Option {
	return func(c *config) {
		c.tokenContract = addr
	}
}

func WithRequestTimeout(t time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = t
	}
}

func WithQueryRate(perSec float64) Option {
	return func(c *config) {
		c.queryRate = perSec
	}
}

func WithFanOutLimit(n int) Option {
	return func(c *config) {
		c.fanOutLimit = n
	}
}

func WithQuizPollInterval(t time.Duration) Option {
	return func(c *config) {
		c.quizPollInterval = t
	}
}

func WithQuizPollTimeout(t time.Duration) Option {
	return func(c *config) {
		c.quizPollTimeout = t
	}
}

func WithConfirmPollInterval(t time.Duration) Option {
	return func(c *config) {
		c.confirmPollInterval = t
	}
}

func WithConfirmTimeout(t time.Duration) Option {
	return func(c *config) {
		c.confirmTimeout = t
	}
}

func WithCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

func WithPassingScore(score uint64) Option {
	return func(c *config) {
		c.passingScore = score
	}
}

func GetAPIHost() string {
	l.RLock()
	t := c.apiHost
	l.RUnlock()

	return t
}

func GetAPIPort() uint16 {
	l.RLock()
	t := c.apiPort
	l.RUnlock()

	return t
}

func GetHTTPS() bool {
	l.RLock()
	t := c.useHTTPS
	l.RUnlock()

	return t
}

func GetFallbackHost() string {
	l.RLock()
	t := c.fallbackHost
	l.RUnlock()

	return t
}

func GetFallbackPort() uint16 {
	l.RLock()
	t := c.fallbackPort
	l.RUnlock()

	return t
}

func GetChainID() uint64 {
	l.RLock()
	t := c.chainID
	l.RUnlock()

	return t
}

func GetMarketContract() string {
	l.RLock()
	t := c.marketContract
	l.RUnlock()

	return t
}

func GetTokenContract() string {
	l.RLock()
	t := c.tokenContract
	l.RUnlock()

	return t
}

func GetRequestTimeout() time.Duration {
	l.RLock()
	t := c.requestTimeout
	l.RUnlock()

	return t
}

func GetQueryRate() float64 {
	l.RLock()
	t := c.queryRate
	l.RUnlock()

	return t
}

func GetFanOutLimit() int {
	l.RLock()
	t := c.fanOutLimit
	l.RUnlock()

	return t
}

func GetQuizPollInterval() time.Duration {
	l.RLock()
	t := c.quizPollInterval
	l.RUnlock()

	return t
}

func GetQuizPollTimeout() time.Duration {
	l.RLock()
	t := c.quizPollTimeout
	l.RUnlock()

	return t
}

func GetConfirmPollInterval() time.Duration {
	l.RLock()
	t := c.confirmPollInterval
	l.RUnlock()

	return t
}

func GetConfirmTimeout() time.Duration {
	l.RLock()
	t := c.confirmTimeout
	l.RUnlock()

	return t
}

func GetCacheSize() int {
	l.RLock()
	t := c.cacheSize
	l.RUnlock()

	return t
}

func GetPassingScore() uint64 {
	l.RLock()
	t := c.passingScore
	l.RUnlock()

	return t
}

func Update(options ...Option) {
	l.Lock()

	for _, option := range options {
		option(&c)
	}

	l.Unlock()
}

func Stringify() string {
	l.RLock()
	s := fmt.Sprintf("%+v", c)
	l.RUnlock()

	return s
}

func Reset() {
	l.Lock()
	c = defaultConf
	l.Unlock()
}
