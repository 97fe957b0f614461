package conf

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ACADEMY_API_HOST.
const EnvPrefix = "ACADEMY"

// LoadFile reads a YAML, TOML or JSON configuration file and returns the
// options it sets. Keys missing from the file keep their current values.
// An empty path only applies environment overrides.
func LoadFile(path string) ([]Option, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", path)
		}
	}

	return optionsFrom(v), nil
}

func optionsFrom(v *viper.Viper) []Option {
	var opts []Option

	str := func(key string, fn func(string) Option) {
		if v.IsSet(key) {
			opts = append(opts, fn(v.GetString(key)))
		}
	}

	port := func(key string, fn func(uint16) Option) {
		if v.IsSet(key) {
			opts = append(opts, fn(v.GetUint16(key)))
		}
	}

	str("api.host", WithAPIHost)
	port("api.port", WithAPIPort)
	str("fallback.host", WithFallbackHost)
	port("fallback.port", WithFallbackPort)
	str("contracts.market", WithMarketContract)
	str("contracts.token", WithTokenContract)

	if v.IsSet("api.https") {
		opts = append(opts, WithHTTPS(v.GetBool("api.https")))
	}

	if v.IsSet("chain_id") {
		opts = append(opts, WithChainID(v.GetUint64("chain_id")))
	}

	if v.IsSet("request_timeout") {
		opts = append(opts, WithRequestTimeout(v.GetDuration("request_timeout")))
	}

	if v.IsSet("query_rate") {
		opts = append(opts, WithQueryRate(v.GetFloat64("query_rate")))
	}

	if v.IsSet("fan_out_limit") {
		opts = append(opts, WithFanOutLimit(v.GetInt("fan_out_limit")))
	}

	if v.IsSet("quiz.poll_interval") {
		opts = append(opts, WithQuizPollInterval(v.GetDuration("quiz.poll_interval")))
	}

	if v.IsSet("quiz.poll_timeout") {
		opts = append(opts, WithQuizPollTimeout(v.GetDuration("quiz.poll_timeout")))
	}

	if v.IsSet("quiz.passing_score") {
		opts = append(opts, WithPassingScore(v.GetUint64("quiz.passing_score")))
	}

	if v.IsSet("confirm.poll_interval") {
		opts = append(opts, WithConfirmPollInterval(v.GetDuration("confirm.poll_interval")))
	}

	if v.IsSet("confirm.timeout") {
		opts = append(opts, WithConfirmTimeout(v.GetDuration("confirm.timeout")))
	}

	if v.IsSet("cache_size") {
		opts = append(opts, WithCacheSize(v.GetInt("cache_size")))
	}

	return opts
}
