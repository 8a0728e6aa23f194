package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	ResultTopic     string        `mapstructure:"result_topic"`
	Partitions      int           `mapstructure:"partitions"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// DialerConfig tunes batch dial sessions.
type DialerConfig struct {
	InterCallDelay time.Duration `mapstructure:"inter_call_delay"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockKeyPrefix  string        `mapstructure:"lock_key_prefix"`
}

// GatewayConfig describes the call placement backend.
type GatewayConfig struct {
	Provider        string        `mapstructure:"provider"`
	BaseURL         string        `mapstructure:"base_url"`
	ProxyPath       string        `mapstructure:"proxy_path"`
	BearerToken     string        `mapstructure:"bearer_token"`
	CallerID        string        `mapstructure:"caller_id"`
	TransactionID   string        `mapstructure:"transaction_id"`
	Region          string        `mapstructure:"region"`
	Priority        string        `mapstructure:"priority"`
	ResponseFormat  int           `mapstructure:"response_format"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MockSuccessRate float64       `mapstructure:"mock_success_rate"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "outbound-batch-dialer")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("kafka.result_topic", "dialer.results")
	v.SetDefault("kafka.partitions", 12)
	v.SetDefault("kafka.consumer_group_id", "dialer-result-worker")
	v.SetDefault("dialer.inter_call_delay", 2*time.Second)
	v.SetDefault("dialer.max_sessions", 256)
	v.SetDefault("dialer.lock_ttl", 6*time.Hour)
	v.SetDefault("dialer.lock_key_prefix", "dialer:group")
	v.SetDefault("gateway.provider", "clicktobot")
	v.SetDefault("gateway.proxy_path", "/proxy/clicktobot")
	v.SetDefault("gateway.transaction_id", "CTI_BOT_DIAL")
	v.SetDefault("gateway.region", "india")
	v.SetDefault("gateway.priority", "high")
	v.SetDefault("gateway.response_format", 3)
	v.SetDefault("gateway.request_timeout", 15*time.Second)
	v.SetDefault("gateway.mock_success_rate", 0.8)
}

// Validate checks cross-field constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	if c.Dialer.InterCallDelay < 0 {
		return fmt.Errorf("config: dialer.inter_call_delay must not be negative")
	}
	switch c.Gateway.Provider {
	case "clicktobot":
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("config: gateway.base_url is required for the clicktobot provider")
		}
		if c.Gateway.CallerID == "" {
			return fmt.Errorf("config: gateway.caller_id is required for the clicktobot provider")
		}
	case "mock":
	default:
		return fmt.Errorf("config: unknown gateway.provider %q", c.Gateway.Provider)
	}
	return nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
