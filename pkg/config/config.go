package config

import (
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
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Client    ClientConfig    `mapstructure:"client"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json or console
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers  int           `mapstructure:"num_workers"`
	QueueSize   int           `mapstructure:"queue_size"` // per worker; full queues drop
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type GeneratorConfig struct {
	Tickers  []string      `mapstructure:"tickers"`
	Interval time.Duration `mapstructure:"interval"`
}

type GatewayConfig struct {
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

type ClientConfig struct {
	URL              string        `mapstructure:"url"`
	ValuationTimeout time.Duration `mapstructure:"valuation_timeout"`
	ReconnectMin     time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
	Holdings         string        `mapstructure:"holdings"` // "AAPL:10,TSLA:2.5"
	ValueEvery       time.Duration `mapstructure:"value_every"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// .env is optional; real env vars win either way
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper only maps flat env vars onto nested keys it has been told about
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "processor.num_workers", "processor.queue_size", "processor.snapshot_ttl")
	bindEnv(v, "generator.tickers", "generator.interval")
	bindEnv(v, "gateway.broadcast_interval", "gateway.write_wait", "gateway.pong_wait",
		"gateway.ping_period", "gateway.send_buffer", "gateway.max_message_size")
	bindEnv(v, "client.url", "client.valuation_timeout", "client.reconnect_min",
		"client.reconnect_max", "client.holdings", "client.value_every")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "stock-processor-group")

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.queue_size", 100)
	v.SetDefault("processor.snapshot_ttl", time.Hour)

	v.SetDefault("generator.tickers", []string{"AAPL", "GOOG", "TSLA", "AMZN", "MSFT"})
	v.SetDefault("generator.interval", 100*time.Millisecond)

	v.SetDefault("gateway.broadcast_interval", 5*time.Second)
	v.SetDefault("gateway.write_wait", 5*time.Second)
	v.SetDefault("gateway.pong_wait", 60*time.Second)
	v.SetDefault("gateway.ping_period", 50*time.Second)
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.max_message_size", 512*1024)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.valuation_timeout", 5*time.Second)
	v.SetDefault("client.reconnect_min", 500*time.Millisecond)
	v.SetDefault("client.reconnect_max", 30*time.Second)
	v.SetDefault("client.holdings", "")
	v.SetDefault("client.value_every", 10*time.Second)
}

// Validate rejects configurations no binary can run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Processor.NumWorkers < 1 {
		return fmt.Errorf("processor.num_workers must be at least 1, got %d", c.Processor.NumWorkers)
	}
	if c.Gateway.PingPeriod >= c.Gateway.PongWait {
		return fmt.Errorf("gateway.ping_period (%s) must be shorter than gateway.pong_wait (%s)",
			c.Gateway.PingPeriod, c.Gateway.PongWait)
	}
	if c.Client.ValuationTimeout <= 0 {
		return fmt.Errorf("client.valuation_timeout must be positive")
	}
	if c.Client.ReconnectMin <= 0 || c.Client.ReconnectMax < c.Client.ReconnectMin {
		return fmt.Errorf("client reconnect window %s..%s is invalid", c.Client.ReconnectMin, c.Client.ReconnectMax)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
