package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Client    ClientConfig    `mapstructure:"client"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

// FeedConfig shapes the simulated chain and its tick loop.
type FeedConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	BaseStrike      float64 `mapstructure:"base_strike"`
	StrikeStep      float64 `mapstructure:"strike_step"`
	StrikeCount     int     `mapstructure:"strike_count"`
	UnderlyingPrice float64 `mapstructure:"underlying_price"`
	Seed            int64   `mapstructure:"seed"` // 0 = seed from clock

	TickInterval      time.Duration `mapstructure:"tick_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	MaxPerTick            int     `mapstructure:"max_per_tick"`
	SelectFraction        float64 `mapstructure:"select_fraction"`
	MaxDelta              float64 `mapstructure:"max_delta"`
	UnderlyingProbability float64 `mapstructure:"underlying_probability"`
	UnderlyingMaxDelta    float64 `mapstructure:"underlying_max_delta"`
	MinPrice              float64 `mapstructure:"min_price"`
}

type GatewayConfig struct {
	SendBuffer     int     `mapstructure:"send_buffer"`
	MaxMessageSize int64   `mapstructure:"max_message_size"`
	InboundRate    float64 `mapstructure:"inbound_rate"` // frames per second
	InboundBurst   int     `mapstructure:"inbound_burst"`
}

// ClientConfig is read by the feed client shim.
type ClientConfig struct {
	WSURL                string        `mapstructure:"ws_url"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BaseReconnectDelay   time.Duration `mapstructure:"base_reconnect_delay"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	Partitions int      `mapstructure:"partitions"`
}

type PublisherConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	// Load .env into the process environment so FEED_TICK_INTERVAL etc. are visible to viper
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}
	return Load(viper.New())
}

// Load resolves configuration from v, which may already carry overrides.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// "feed.tick_interval" -> "FEED_TICK_INTERVAL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not reach nested keys during Unmarshal
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":5000")
	v.SetDefault("app.env", "local")

	v.SetDefault("feed.symbol", "NIFTY")
	v.SetDefault("feed.base_strike", 22500.0)
	v.SetDefault("feed.strike_step", 100.0)
	v.SetDefault("feed.strike_count", 75)
	v.SetDefault("feed.underlying_price", 22750.0)
	v.SetDefault("feed.seed", 0)
	v.SetDefault("feed.tick_interval", 2*time.Second)
	v.SetDefault("feed.heartbeat_interval", 30*time.Second)
	v.SetDefault("feed.max_per_tick", 10)
	v.SetDefault("feed.select_fraction", 0.3)
	v.SetDefault("feed.max_delta", 0.05)
	v.SetDefault("feed.underlying_probability", 0.2)
	v.SetDefault("feed.underlying_max_delta", 0.01)
	v.SetDefault("feed.min_price", 0.05)

	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.max_message_size", 512*1024)
	v.SetDefault("gateway.inbound_rate", 50.0)
	v.SetDefault("gateway.inbound_burst", 100)

	v.SetDefault("client.ws_url", "ws://localhost:5000/ws")
	v.SetDefault("client.max_reconnect_attempts", 5)
	v.SetDefault("client.base_reconnect_delay", 500*time.Millisecond)
	v.SetDefault("client.connect_timeout", 3*time.Second)
	v.SetDefault("client.ping_interval", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "option_chain_ticks")
	v.SetDefault("kafka.partitions", 4)

	v.SetDefault("publisher.buffer", 1024)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
}

// Validate rejects values the feed cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.StrikeCount <= 0 {
		errs = append(errs, errors.New("feed.strike_count must be positive"))
	}
	if c.Feed.StrikeStep <= 0 {
		errs = append(errs, errors.New("feed.strike_step must be positive"))
	}
	if c.Feed.TickInterval <= 0 {
		errs = append(errs, errors.New("feed.tick_interval must be positive"))
	}
	if c.Feed.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("feed.heartbeat_interval must be positive"))
	}
	if c.Feed.SelectFraction < 0 || c.Feed.SelectFraction > 1 {
		errs = append(errs, errors.New("feed.select_fraction must be within [0,1]"))
	}
	if c.Feed.MaxDelta < 0 || c.Feed.MaxDelta >= 1 || c.Feed.UnderlyingMaxDelta < 0 || c.Feed.UnderlyingMaxDelta >= 1 {
		errs = append(errs, errors.New("feed deltas must be within [0,1)"))
	}
	if c.Feed.MinPrice <= 0 {
		errs = append(errs, errors.New("feed.min_price must be positive"))
	}
	if c.Gateway.SendBuffer <= 0 {
		errs = append(errs, errors.New("gateway.send_buffer must be positive"))
	}
	if c.Client.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("client.max_reconnect_attempts cannot be negative"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers cannot be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// splitList accepts both ["a","b"] and the single env value "a,b".
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
