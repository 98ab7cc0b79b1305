package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"Aegis/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Process roles.
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// MinJWTSecretLen is the shortest accepted HS256 signing secret.
const MinJWTSecretLen = 16

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	App         struct {
		Name string `yaml:"name" default:"aegis"`
		Mode string `yaml:"mode" default:"all"`
	} `yaml:"app"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		// Collector aggregates error logs and ships them to Kafka.
		Collector struct {
			Enabled       bool          `yaml:"enabled"`
			FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
			MaxEntries    int           `yaml:"max_entries" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"20"`
	} `yaml:"redis"`
	Queue struct {
		KeyPrefix     string        `yaml:"key_prefix" default:"aegis:orderflow"`
		Workers       int           `yaml:"workers" default:"4"`
		MaxAttempts   int           `yaml:"max_attempts" default:"3"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"2s"`
		MaxRetryDelay time.Duration `yaml:"max_retry_delay" default:"30s"`
		LeaseTimeout  time.Duration `yaml:"lease_timeout" default:"60s"`
		PollInterval  time.Duration `yaml:"poll_interval" default:"500ms"`
		ReapInterval  time.Duration `yaml:"reap_interval" default:"1s"`
	} `yaml:"queue"`
	Engine struct {
		URL        string        `yaml:"url" default:"http://localhost:8000"`
		Path       string        `yaml:"path" default:"/v1/signals"`
		Timeout    time.Duration `yaml:"timeout" default:"20s"`
		MaxRetries int           `yaml:"max_retries" default:"1"`
	} `yaml:"engine"`
	Store struct {
		Backend         string        `yaml:"backend" default:"postgres"`
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		AutoMigrate     bool          `yaml:"auto_migrate" default:"true"`
		// AccountCache is "memory", "redis" or "none".
		AccountCache    string        `yaml:"account_cache" default:"memory"`
		AccountCacheTTL time.Duration `yaml:"account_cache_ttl" default:"1m"`
		// Accounts are upserted at startup. Account CRUD lives elsewhere;
		// this exists for local runs and the memory backend.
		Accounts []SeedAccount `yaml:"accounts"`
	} `yaml:"store"`
	Audit struct {
		Backend string `yaml:"backend" default:"store"`
	} `yaml:"audit"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"aegis"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SignalsTopic  string   `yaml:"signals_topic" default:"aegis.signals"`
		FailuresTopic string   `yaml:"failures_topic" default:"aegis.jobs.failed"`
		LogsTopic     string   `yaml:"logs_topic" default:"aegis.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"gzip"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"aegis-realtime"`
			InstanceID string        `yaml:"instance_id"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Realtime struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"30s"`
		WriteTimeout      time.Duration `yaml:"write_timeout" default:"10s"`
		SendBuffer        int           `yaml:"send_buffer" default:"32"`
		MaxMessageBytes   int64         `yaml:"max_message_bytes" default:"65536"`
	} `yaml:"realtime"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled" default:"true"`
		RPS     float64 `yaml:"rps" default:"50"`
		Burst   int     `yaml:"burst" default:"100"`
	} `yaml:"ratelimit"`
	Profiling struct {
		Enabled       bool   `yaml:"enabled"`
		ServerAddress string `yaml:"server_address" default:"http://localhost:4040"`
	} `yaml:"profiling"`
}

// SeedAccount is a trading account upserted at startup.
type SeedAccount struct {
	ID            string `yaml:"id"`
	UserID        string `yaml:"user_id"`
	Broker        string `yaml:"broker"`
	AccountNumber string `yaml:"account_number"`
	Environment   string `yaml:"environment"`
}

// Default returns a config populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs after the overrides, so secrets may come from env alone.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(b)
}

func decode(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_MODE"); v != "" {
		c.App.Mode = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	c.Queue.Workers = util.ParseIntDefault(os.Getenv("QUEUE_WORKERS"), c.Queue.Workers)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DECISION_ENGINE_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		c.Kafka.Consumer.InstanceID = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.App.Mode {
	case ModeAll, ModeAPI, ModeWorker:
	default:
		return fmt.Errorf("app.mode must be 'all', 'api' or 'worker', got '%s'", c.App.Mode)
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres backend")
		}
	case "memory":
		if c.App.Mode != ModeAll {
			return fmt.Errorf("store.backend 'memory' requires app.mode 'all', got '%s': api and worker processes cannot share it", c.App.Mode)
		}
	default:
		return fmt.Errorf("store.backend must be 'postgres' or 'memory', got '%s'", c.Store.Backend)
	}
	switch c.Store.AccountCache {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("store.account_cache must be 'memory', 'redis' or 'none', got '%s'", c.Store.AccountCache)
	}
	switch c.Audit.Backend {
	case "store", "clickhouse":
	default:
		return fmt.Errorf("audit.backend must be 'store' or 'clickhouse', got '%s'", c.Audit.Backend)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be >= 1")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be >= 1")
	}
	if c.Queue.LeaseTimeout <= c.Engine.Timeout {
		return fmt.Errorf("queue.lease_timeout (%s) must exceed engine.timeout (%s)", c.Queue.LeaseTimeout, c.Engine.Timeout)
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_interval must be positive")
	}
	for i, a := range c.Store.Accounts {
		if a.ID == "" || a.UserID == "" {
			return fmt.Errorf("store.accounts[%d]: id and user_id are required", i)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Audit.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for clickhouse audit backend")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLen)
	}
	return nil
}

// ServesAPI reports whether the HTTP gateway runs in this process.
func (c *Config) ServesAPI() bool { return c.App.Mode == ModeAll || c.App.Mode == ModeAPI }

// RealtimeGroupID is the Kafka consumer group of this process's signal
// consumer. Every API instance joins its own group so each hub receives
// every signal; the instance id defaults to hostname and pid.
func (c *Config) RealtimeGroupID() string {
	id := c.Kafka.Consumer.InstanceID
	if id == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = c.App.Name
		}
		id = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return c.Kafka.Consumer.GroupID + "-" + id
}

// RunsWorkers reports whether queue workers run in this process.
func (c *Config) RunsWorkers() bool { return c.App.Mode == ModeAll || c.App.Mode == ModeWorker }
