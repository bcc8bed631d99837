package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level        string `yaml:"level" default:"info"`
		Format       string `yaml:"format" default:"console"`
		Output       string `yaml:"output" default:"stdout"`
		MaxSizeMB    int    `yaml:"max_size_mb" default:"10"`
		MaxBackups   int    `yaml:"max_backups" default:"3"`
		MaxAgeDays   int    `yaml:"max_age_days" default:"28"`
		CollectTopic string `yaml:"collect_topic"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"3000"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		StaticDir       string        `yaml:"static_dir" default:"public"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Grid struct {
		Retention      time.Duration `yaml:"retention" default:"360h"`
		PersistTimeout time.Duration `yaml:"persist_timeout" default:"5s"`
		PersistBuffer  int           `yaml:"persist_buffer" default:"1024"`
		LoadTimeout    time.Duration `yaml:"load_timeout" default:"30s"`
	} `yaml:"grid"`
	Store struct {
		Type  string `yaml:"type" default:"redis"`
		Redis struct {
			Host         string        `yaml:"host" default:"localhost"`
			Port         int           `yaml:"port" default:"6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			Prefix       string        `yaml:"prefix" default:"signalgrid"`
			PoolSize     int           `yaml:"pool_size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
			ScanCount    int64         `yaml:"scan_count" default:"500"`
		} `yaml:"redis"`
		ClickHouse struct {
			Host             string        `yaml:"host" default:"localhost"`
			Port             int           `yaml:"port" default:"9000"`
			Database         string        `yaml:"database" default:"signalgrid"`
			Table            string        `yaml:"table" default:"trading_signals"`
			User             string        `yaml:"user" default:"default"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			AsyncInsert      bool          `yaml:"async_insert"`
			WaitForAsync     bool          `yaml:"wait_for_async_insert"`
			DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
			WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		} `yaml:"clickhouse"`
	} `yaml:"store"`
	Fanout struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"30s"`
		SendBuffer        int           `yaml:"send_buffer" default:"64"`
		WriteTimeout      time.Duration `yaml:"write_timeout" default:"10s"`
		ReadLimit         int64         `yaml:"read_limit" default:"4096"`
	} `yaml:"fanout"`
	Session struct {
		Timezone      string        `yaml:"timezone" default:"Asia/Kolkata"`
		Open          string        `yaml:"open" default:"09:00"`
		Close         string        `yaml:"close" default:"15:30"`
		RestDays      []string      `yaml:"rest_days" default:"[\"saturday\",\"sunday\"]"`
		CheckInterval time.Duration `yaml:"check_interval" default:"60s"`
	} `yaml:"session"`
	News struct {
		Enabled      bool          `yaml:"enabled" default:"true"`
		APIKey       string        `yaml:"api_key"`
		BaseURL      string        `yaml:"base_url" default:"https://api.marketaux.com/v1/news/all"`
		Countries    string        `yaml:"countries" default:"in"`
		Language     string        `yaml:"language" default:"en"`
		Limit        int           `yaml:"limit" default:"100"`
		PollInterval time.Duration `yaml:"poll_interval" default:"5m"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"15s"`
	} `yaml:"news"`
	Ingest struct {
		RateLimit struct {
			Enabled      bool    `yaml:"enabled" default:"true"`
			Capacity     float64 `yaml:"capacity" default:"50"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"20"`
		} `yaml:"rate_limit"`
	} `yaml:"ingest"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic" default:"trading-signals"`
		UpdatesTopic string   `yaml:"updates_topic" default:"grid-updates"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signalgrid"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"0"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Importer struct {
		BatchSize    int           `yaml:"batch_size" default:"25"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"importer"`
}

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file falls back to defaults so the service can run from env alone.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if c, err = Default(); err != nil {
			return nil, err
		}
	}

	applyEnv(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Store.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Store.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("MARKETAUX_API_KEY"); v != "" {
		c.News.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Store.Type != "redis" && c.Store.Type != "clickhouse" {
		return fmt.Errorf("store.type must be 'redis' or 'clickhouse', got '%s'", c.Store.Type)
	}
	if c.Grid.Retention <= 0 {
		return fmt.Errorf("grid.retention must be positive")
	}
	if c.Fanout.HeartbeatInterval <= 0 {
		return fmt.Errorf("fanout.heartbeat_interval must be positive")
	}
	if c.Session.CheckInterval <= 0 || c.News.PollInterval <= 0 {
		return fmt.Errorf("session.check_interval and news.poll_interval must be positive")
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Importer.BatchSize <= 0 || c.Importer.BatchSize > 25 {
		return fmt.Errorf("importer.batch_size must be in 1..25, got %d", c.Importer.BatchSize)
	}
	return nil
}
