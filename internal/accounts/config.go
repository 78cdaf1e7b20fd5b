package accounts

import "time"

// DefaultBaseURL is the accounts API used when none is configured.
const DefaultBaseURL = "https://accounts.smallbiznis.test/api/v1"

type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
	// MaxRetries applies to idempotent reads only.
	MaxRetries   uint64        `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}
