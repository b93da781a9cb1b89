package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"satnorm/internal/archive"
	"satnorm/internal/normalize"
)

type Config struct {
	Server    ServerConfig
	S3        S3Config
	App       AppConfig
	Normalize NormalizeConfig
	LogLevel  string
}

type ServerConfig struct {
	Host string
	Port string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

type AppConfig struct {
	// Store selects where normalized images are written: "local" or "s3".
	Store         string
	ResultsDir    string
	MaxUploadSize int64
}

type NormalizeConfig struct {
	Tolerance      float64
	MinValue       float64
	MaxValue       float64
	ZeroMeanPolicy string
	Workers        int
	HistogramBins  int
	Refine         bool
	ResizeWidth    int
	ResizeHeight   int
	MaxEntryBytes  int64
}

// Options converts the configuration into pipeline options.
func (c NormalizeConfig) Options() normalize.Options {
	return normalize.Options{
		Tolerance:     c.Tolerance,
		MinValue:      c.MinValue,
		MaxValue:      c.MaxValue,
		ZeroMean:      normalize.ZeroMeanPolicy(c.ZeroMeanPolicy),
		Workers:       c.Workers,
		HistogramBins: c.HistogramBins,
		Refine:        c.Refine,
		Archive: archive.Options{
			MaxEntryBytes: c.MaxEntryBytes,
			ResizeWidth:   c.ResizeWidth,
			ResizeHeight:  c.ResizeHeight,
		},
	}
}

// New returns a viper instance with every key defaulted and bound to the
// environment. Callers may bind command line flags on top before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("S3_ENDPOINT", "localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "satnorm")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("APP_STORE", StoreLocal)
	v.SetDefault("APP_RESULTS_DIR", "./results")
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 16*1024*1024) // 16MB
	v.SetDefault("LOG_LEVEL", "info")

	defaults := normalize.DefaultOptions()
	v.SetDefault("NORMALIZE_TOLERANCE", defaults.Tolerance)
	v.SetDefault("NORMALIZE_MIN_VALUE", defaults.MinValue)
	v.SetDefault("NORMALIZE_MAX_VALUE", defaults.MaxValue)
	v.SetDefault("NORMALIZE_ZERO_MEAN_POLICY", string(defaults.ZeroMean))
	v.SetDefault("NORMALIZE_WORKERS", 0)
	v.SetDefault("NORMALIZE_HISTOGRAM_BINS", defaults.HistogramBins)
	v.SetDefault("NORMALIZE_REFINE", false)
	v.SetDefault("NORMALIZE_RESIZE_WIDTH", 0)
	v.SetDefault("NORMALIZE_RESIZE_HEIGHT", 0)
	v.SetDefault("NORMALIZE_MAX_ENTRY_BYTES", archive.DefaultMaxEntryBytes)

	v.AutomaticEnv()
	return v
}

// Load reads configuration from the environment with defaults applied.
func Load() (*Config, error) {
	return LoadFrom(New())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		App: AppConfig{
			Store:         strings.ToLower(v.GetString("APP_STORE")),
			ResultsDir:    v.GetString("APP_RESULTS_DIR"),
			MaxUploadSize: v.GetInt64("APP_MAX_UPLOAD_SIZE"),
		},
		Normalize: NormalizeConfig{
			Tolerance:      v.GetFloat64("NORMALIZE_TOLERANCE"),
			MinValue:       v.GetFloat64("NORMALIZE_MIN_VALUE"),
			MaxValue:       v.GetFloat64("NORMALIZE_MAX_VALUE"),
			ZeroMeanPolicy: strings.ToLower(v.GetString("NORMALIZE_ZERO_MEAN_POLICY")),
			Workers:        v.GetInt("NORMALIZE_WORKERS"),
			HistogramBins:  v.GetInt("NORMALIZE_HISTOGRAM_BINS"),
			Refine:         v.GetBool("NORMALIZE_REFINE"),
			ResizeWidth:    v.GetInt("NORMALIZE_RESIZE_WIDTH"),
			ResizeHeight:   v.GetInt("NORMALIZE_RESIZE_HEIGHT"),
			MaxEntryBytes:  v.GetInt64("NORMALIZE_MAX_ENTRY_BYTES"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.App.Store == StoreLocal {
		if err := createDirs(cfg); err != nil {
			return nil, fmt.Errorf("failed to create directories: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.App.Store {
	case StoreLocal, StoreS3:
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.App.Store, StoreLocal, StoreS3)
	}
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.App.MaxUploadSize)
	}
	if (c.Normalize.ResizeWidth > 0) != (c.Normalize.ResizeHeight > 0) {
		return fmt.Errorf("resize width and height must be set together")
	}
	return c.Normalize.Options().Validate()
}

func createDirs(cfg *Config) error {
	dirs := []string{
		cfg.App.ResultsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
