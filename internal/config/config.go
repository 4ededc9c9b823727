package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingSetting is returned by Validate when a required setting is absent.
var ErrMissingSetting = errors.New("missing configuration values")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the marketml pipeline. It is
// built once at process start and passed to every component.
type Config struct {
	Storage      Storage      `yaml:"storage"`
	AlphaVantage AlphaVantage `yaml:"alpha_vantage"`
	Alpaca       Alpaca       `yaml:"alpaca"`
	Sink         Sink         `yaml:"sink"`
	Logging      Logging      `yaml:"logging"`
	Ingest       Ingest       `yaml:"ingest"`
}

// Storage holds paths for dataset persistence and the optional remote mirror.
type Storage struct {
	DataDir        string `yaml:"data_dir"`
	IndicatorsPath string `yaml:"indicators_path"`
	Remote         Remote `yaml:"remote"`
}

// Remote configures the blob store used to mirror cached datasets. An empty
// Type disables mirroring.
type Remote struct {
	Type      string `yaml:"type"` // "", "s3", "gcs", "redis", "fs"
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	RedisAddr string `yaml:"redis_addr"`
	Dir       string `yaml:"dir"`
}

// AlphaVantage holds credentials and limits for the Alpha Vantage quote API.
type AlphaVantage struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Sink configures where records (prices, logs, model metadata, predictions)
// are upserted.
type Sink struct {
	Type       string `yaml:"type"` // "supabase", "postgres", "sqlite", "none"
	URL        string `yaml:"url"`
	Key        string `yaml:"key"`
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Ingest controls the historical ingestion job.
type Ingest struct {
	Symbols         []string `yaml:"symbols"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults and then applies environment variable
// overrides. An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "ml_data"
	}
	if cfg.Storage.IndicatorsPath == "" {
		cfg.Storage.IndicatorsPath = filepath.Join("config", "indicators.yaml")
	}
	if cfg.Storage.Remote.Prefix == "" {
		cfg.Storage.Remote.Prefix = "ml_data"
	}
	if cfg.AlphaVantage.BaseURL == "" {
		cfg.AlphaVantage.BaseURL = "https://www.alphavantage.co/query"
	}
	if cfg.AlphaVantage.RateLimitPerMin == 0 {
		cfg.AlphaVantage.RateLimitPerMin = 5
	}
	if cfg.Ingest.RateLimitPerMin == 0 {
		cfg.Ingest.RateLimitPerMin = cfg.AlphaVantage.RateLimitPerMin
	}
	if len(cfg.Ingest.Symbols) == 0 {
		cfg.Ingest.Symbols = []string{"AAPL", "MSFT", "GOOG"}
	}
	if cfg.Sink.Type == "" {
		if cfg.Sink.URL != "" {
			cfg.Sink.Type = "supabase"
		} else {
			cfg.Sink.Type = "none"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ML_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("INDICATORS_CONFIG_PATH"); v != "" {
		cfg.Storage.IndicatorsPath = v
	}

	// A bucket alone turns on the S3 mirror.
	if v := os.Getenv("ML_S3_BUCKET"); v != "" {
		cfg.Storage.Remote.Bucket = v
		if cfg.Storage.Remote.Type == "" {
			cfg.Storage.Remote.Type = "s3"
		}
	}
	if v := os.Getenv("ML_S3_PREFIX"); v != "" {
		cfg.Storage.Remote.Prefix = v
	}
	if v := os.Getenv("ML_S3_REGION"); v != "" {
		cfg.Storage.Remote.Region = v
	}
	if v := os.Getenv("ML_S3_ENDPOINT"); v != "" {
		cfg.Storage.Remote.Endpoint = v
	}
	if v := os.Getenv("ML_REMOTE_TYPE"); v != "" {
		cfg.Storage.Remote.Type = v
	}
	if v := os.Getenv("ML_REDIS_ADDR"); v != "" {
		cfg.Storage.Remote.RedisAddr = v
	}

	if v := os.Getenv("ALPHA_VANTAGE_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	// Canonical name wins over the legacy one.
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}

	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Sink.URL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		cfg.Sink.Key = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE"); v != "" {
		cfg.Sink.Key = v
	}
	if v := os.Getenv("SINK_TYPE"); v != "" {
		cfg.Sink.Type = v
	}
	if v := os.Getenv("SINK_DSN"); v != "" {
		cfg.Sink.DSN = v
	}

	if v := os.Getenv("DEFAULT_SYMBOLS"); v != "" {
		cfg.Ingest.Symbols = ParseSymbols(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ParseSymbols splits a comma-separated symbol list, trimming blanks and
// upper-casing each entry.
func ParseSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Requirements selects which settings Validate insists on.
type Requirements uint8

const (
	NeedQuotes Requirements = 1 << iota
	NeedSink
	NeedIndicators
)

// Validate reports every missing setting required by req in a single error
// wrapping ErrMissingSetting.
func (c *Config) Validate(req Requirements) error {
	var missing []string

	if req&NeedQuotes != 0 && c.AlphaVantage.APIKey == "" {
		missing = append(missing, "ALPHA_VANTAGE_API_KEY")
	}
	if req&NeedSink != 0 {
		switch c.Sink.Type {
		case "supabase":
			if c.Sink.URL == "" {
				missing = append(missing, "SUPABASE_URL")
			}
			if c.Sink.Key == "" {
				missing = append(missing, "SUPABASE_SERVICE_ROLE (or SUPABASE_KEY)")
			}
		case "postgres":
			if c.Sink.DSN == "" {
				missing = append(missing, "SINK_DSN")
			}
		case "sqlite":
			if c.Sink.SQLitePath == "" {
				missing = append(missing, "sink.sqlite_path")
			}
		case "none":
			missing = append(missing, "sink.type")
		default:
			missing = append(missing, fmt.Sprintf("sink.type (unsupported %q)", c.Sink.Type))
		}
	}
	if req&NeedIndicators != 0 {
		if _, err := os.Stat(c.Storage.IndicatorsPath); err != nil {
			missing = append(missing, fmt.Sprintf("indicators config not found at %s", c.Storage.IndicatorsPath))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

// ModelDir returns the directory holding trained model artifacts.
func (c *Config) ModelDir() string {
	return filepath.Join(c.Storage.DataDir, "models")
}
