package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverClickHouse = "clickhouse"
	DriverPostgres   = "postgres"
	DriverMemory     = "memory"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output"`
	} `yaml:"log"`

	HTTPClient struct {
		Timeout     time.Duration `yaml:"timeout" default:"30s"`
		MaxAttempts int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
		BaseDelay   time.Duration `yaml:"base_delay" default:"1s"`
		MaxDelay    time.Duration `yaml:"max_delay" default:"16s"`
		RateLimit   float64       `yaml:"rate_limit" default:"5"`
		Burst       int           `yaml:"burst" default:"5"`
	} `yaml:"http_client"`

	HUD struct {
		Token   string `yaml:"token"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"hud"`
	Census struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"census"`
	FRED struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"fred"`

	Markets struct {
		DefaultGeo           string   `yaml:"default_geo"`
		DefaultGeoName       string   `yaml:"default_geo_name"`
		DefaultMarketKey     string   `yaml:"default_market_key"`
		StartYear            int      `yaml:"start_year"`
		Year                 int      `yaml:"year"`
		EndYear              int      `yaml:"end_year"`
		FREDSeriesID         string   `yaml:"fred_series_id"`
		FREDMetric           string   `yaml:"fred_metric"`
		FREDUnit             string   `yaml:"fred_unit"`
		FREDObservationStart string   `yaml:"fred_observation_start"`
		FREDObservationEnd   string   `yaml:"fred_observation_end"`
		Load                 []string `yaml:"load"`
	} `yaml:"markets"`

	Pipeline struct {
		MarketTimeout   time.Duration `yaml:"market_timeout" default:"5m"`
		ContinueOnError bool          `yaml:"continue_on_error"`
		LockTTL         time.Duration `yaml:"lock_ttl" default:"1h"`
	} `yaml:"pipeline"`

	Storage struct {
		Driver string `yaml:"driver" default:"clickhouse" validate:"oneof=clickhouse postgres memory"`
		// Path overrides the storage location: the ClickHouse database or the Postgres DSN.
		Path string `yaml:"path"`
	} `yaml:"storage"`

	ClickHouse struct {
		DSN              string        `yaml:"dsn"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market_signals"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns" default:"10"`
		MinConns int    `yaml:"min_conns" default:"1"`
	} `yaml:"postgres"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"market_signals"`
		QueryTTL time.Duration `yaml:"query_ttl" default:"5m"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"market_signals"`
		LogTopic     string        `yaml:"log_topic" default:"market_signals_logs"`
		Compression  string        `yaml:"compression" default:"snappy"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`

	S3 struct {
		Bucket         string `yaml:"bucket"`
		Endpoint       string `yaml:"endpoint"`
		Region         string `yaml:"region" default:"us-east-1"`
		Prefix         string `yaml:"prefix" default:"exports"`
		AccessKey      string `yaml:"access_key"`
		SecretKey      string `yaml:"secret_key"`
		UseSSL         bool   `yaml:"use_ssl" default:"true"`
		ForcePathStyle bool   `yaml:"force_path_style"`
	} `yaml:"s3"`

	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job" default:"market_signals"`
	} `yaml:"metrics"`

	Server struct {
		Port            int           `yaml:"port" default:"8000" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		RateLimit       float64       `yaml:"rate_limit"`
		RateBurst       int           `yaml:"rate_burst" default:"20"`
	} `yaml:"server"`
}

var configValidator = validator.New()

// Load applies struct defaults, then the YAML file at path (skipped when
// path is empty or missing), then a .env file, then environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	_ = godotenv.Load()

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(dst *int, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}
	setFloat := func(dst *float64, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
			return
		}
		*dst = f
	}
	setBool := func(dst *bool, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
			return
		}
		*dst = b
	}

	setStr(&c.Environment, "APP_ENV")
	setStr(&c.Log.Level, "LOG_LEVEL")
	setStr(&c.Log.Format, "LOG_FORMAT")

	setStr(&c.HUD.Token, "HUD_TOKEN")
	setStr(&c.Census.APIKey, "CENSUS_API_KEY")
	setStr(&c.FRED.APIKey, "FRED_API_KEY")

	setStr(&c.Markets.DefaultGeo, "DEFAULT_GEO")
	setStr(&c.Markets.DefaultGeoName, "DEFAULT_GEO_NAME")
	setStr(&c.Markets.DefaultMarketKey, "DEFAULT_MARKET_KEY")
	setInt(&c.Markets.StartYear, "DEFAULT_START_YEAR")
	setInt(&c.Markets.Year, "DEFAULT_YEAR")
	setInt(&c.Markets.EndYear, "DEFAULT_END_YEAR")
	setStr(&c.Markets.FREDSeriesID, "FRED_SERIES_ID")
	setStr(&c.Markets.FREDMetric, "FRED_SERIES_METRIC")
	setStr(&c.Markets.FREDUnit, "FRED_SERIES_UNIT")
	setStr(&c.Markets.FREDObservationStart, "FRED_OBSERVATION_START")
	setStr(&c.Markets.FREDObservationEnd, "FRED_OBSERVATION_END")
	setList(&c.Markets.Load, "LOAD_MARKETS")

	setBool(&c.Pipeline.ContinueOnError, "PIPELINE_CONTINUE_ON_ERROR")

	setStr(&c.Storage.Driver, "STORAGE_DRIVER")
	setStr(&c.Storage.Path, "MARKET_SIGNALS_DB_PATH")

	setStr(&c.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setStr(&c.ClickHouse.Host, "CLICKHOUSE_HOST")
	setInt(&c.ClickHouse.Port, "CLICKHOUSE_PORT")
	setStr(&c.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	setStr(&c.ClickHouse.User, "CLICKHOUSE_USER")
	setStr(&c.ClickHouse.Password, "CLICKHOUSE_PASSWORD")
	setStr(&c.Postgres.DSN, "POSTGRES_DSN")

	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setList(&c.Kafka.Brokers, "KAFKA_BROKERS")
	setStr(&c.Kafka.Topic, "KAFKA_TOPIC")
	setStr(&c.Kafka.LogTopic, "KAFKA_LOG_TOPIC")

	setStr(&c.S3.Bucket, "S3_BUCKET")
	setStr(&c.S3.Endpoint, "S3_ENDPOINT")
	setStr(&c.S3.Region, "S3_REGION")
	setStr(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&c.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&c.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	setStr(&c.Metrics.PushgatewayURL, "METRICS_PUSHGATEWAY_URL")

	setInt(&c.Server.Port, "PORT")
	setList(&c.Server.CORSOrigins, "API_CORS_ORIGINS")
	setFloat(&c.Server.RateLimit, "API_RATE_LIMIT")

	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if err := configValidator.Struct(c); err != nil {
		return err
	}
	if c.Storage.Driver == DriverPostgres && c.PostgresDSN() == "" {
		return fmt.Errorf("postgres storage requires POSTGRES_DSN or MARKET_SIGNALS_DB_PATH")
	}
	return nil
}

// ClickHouseDatabase is the database name after the storage path override.
func (c *Config) ClickHouseDatabase() string {
	if c.Storage.Driver == DriverClickHouse && c.Storage.Path != "" {
		return c.Storage.Path
	}
	return c.ClickHouse.Database
}

// PostgresDSN is the connection string after the storage path override.
func (c *Config) PostgresDSN() string {
	if c.Storage.Driver == DriverPostgres && c.Storage.Path != "" {
		return c.Storage.Path
	}
	return c.Postgres.DSN
}

func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }
func (c *Config) S3Enabled() bool    { return c.S3.Bucket != "" }
