package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/pkg/cache"
	"github.com/smallbiznis/webauth/pkg/password"
	"github.com/smallbiznis/webauth/pkg/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. WEBAUTH_SERVER_PORT.
const EnvPrefix = "WEBAUTH"

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Accounts  accounts.Config  `mapstructure:"accounts"`
	Password  PasswordConfig   `mapstructure:"password"`
	Cache     cache.Config     `mapstructure:"cache"`
	RateLimit RateLimitConfig  `mapstructure:"ratelimit"`
	Security  SecurityConfig   `mapstructure:"security"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Log       LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	// AuthorizeURL receives the browser after a successful sign in.
	AuthorizeURL string `mapstructure:"authorize_url"`
}

type PasswordConfig struct {
	Rules        []password.Rule `mapstructure:"rules"`
	MatchTimeout time.Duration   `mapstructure:"match_timeout"`
	// RefreshInterval re-fetches the accounts API rules in the background.
	// Zero disables the refresher.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerSecond and Burst limit form posts per client IP.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// APIRequestsPerSecond and APIBurst limit the JSON API, which the
	// checklist calls on every keystroke.
	APIRequestsPerSecond float64 `mapstructure:"api_requests_per_second"`
	APIBurst             int     `mapstructure:"api_burst"`
}

// placeholderSecret is the value example configs use for secrets.
const placeholderSecret = "change-me"

type SecurityConfig struct {
	CSRFSecret     string        `mapstructure:"csrf_secret"`
	CSRFTTL        time.Duration `mapstructure:"csrf_ttl"`
	CookieSecure   bool          `mapstructure:"cookie_secure"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// deployEnv holds the unprefixed variables shared by the smallbiznis web
// deployments. Set values win over the config file.
type deployEnv struct {
	AppURL           string `envconfig:"APP_URL"`
	ServiceName      string `envconfig:"SERVICE_NAME"`
	ServiceVersion   string `envconfig:"SERVICE_VERSION"`
	ServiceNamespace string `envconfig:"SERVICE_NAMESPACE"`
	NodeEnv          string `envconfig:"NODE_ENV"`
	AppEnv           string `envconfig:"APP_ENV"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.authorize_url", "/oauth/authorize")

	v.SetDefault("accounts.base_url", accounts.DefaultBaseURL)
	v.SetDefault("accounts.timeout", 5*time.Second)
	v.SetDefault("accounts.user_agent", "webauth")
	v.SetDefault("accounts.max_retries", 2)
	v.SetDefault("accounts.retry_backoff", 100*time.Millisecond)
	v.SetDefault("accounts.breaker.max_requests", 1)
	v.SetDefault("accounts.breaker.interval", time.Minute)
	v.SetDefault("accounts.breaker.timeout", 30*time.Second)
	v.SetDefault("accounts.breaker.failure_threshold", 5)

	v.SetDefault("password.match_timeout", password.DefaultMatchTimeout)
	v.SetDefault("password.refresh_interval", 4*time.Minute)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)
	v.SetDefault("cache.redis.key_prefix", "webauth:")
	v.SetDefault("cache.redis.max_retries", 3)
	v.SetDefault("cache.redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("cache.redis.pool_size", 10)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 1.0)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.api_requests_per_second", 20.0)
	v.SetDefault("ratelimit.api_burst", 60)

	v.SetDefault("security.csrf_ttl", time.Hour)
	v.SetDefault("security.cookie_secure", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "webauth")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.namespace", "smallbiznis")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/webauth")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyDeployEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDeployEnv() error {
	var env deployEnv
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	if env.AppURL != "" {
		c.Accounts.BaseURL = env.AppURL
	}
	if env.ServiceName != "" {
		c.Telemetry.ServiceName = env.ServiceName
	}
	if env.ServiceVersion != "" {
		c.Telemetry.ServiceVersion = env.ServiceVersion
	}
	if env.ServiceNamespace != "" {
		c.Telemetry.Namespace = env.ServiceNamespace
	}
	switch {
	case env.AppEnv != "":
		c.Telemetry.Environment = env.AppEnv
	case env.NodeEnv != "":
		c.Telemetry.Environment = env.NodeEnv
	}
	if env.OTLPEndpoint != "" {
		c.Telemetry.Endpoint = env.OTLPEndpoint
		c.Telemetry.Enabled = true
	}
	return nil
}

// Validate checks the configuration and compiles the configured password
// rules so a bad pattern stops the service at boot.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Accounts.BaseURL == "" {
		errs = append(errs, errors.New("accounts.base_url is required"))
	}
	if c.Accounts.Timeout <= 0 {
		errs = append(errs, errors.New("accounts.timeout must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("ratelimit.requests_per_second and ratelimit.burst must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.APIRequestsPerSecond <= 0 || c.RateLimit.APIBurst <= 0) {
		errs = append(errs, errors.New("ratelimit.api_requests_per_second and ratelimit.api_burst must be positive"))
	}
	if c.Security.CSRFSecret == placeholderSecret {
		errs = append(errs, errors.New("security.csrf_secret must not be the example placeholder"))
	}
	if c.Security.CSRFTTL <= 0 {
		errs = append(errs, errors.New("security.csrf_ttl must be positive"))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, telemetry.ErrMissingEndpoint)
	}
	if _, err := password.Compile(c.Password.Rules, password.WithMatchTimeout(c.Password.MatchTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("password.rules: %w", err))
	}

	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
