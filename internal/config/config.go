// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Loader LoaderConfig `yaml:"loader" mapstructure:"loader"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// EngineConfig configures the relationship and hierarchy batch jobs.
type EngineConfig struct {
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	WriteBatchSize int     `yaml:"write_batch_size" mapstructure:"write_batch_size"`
	OverlapSumLow  float64 `yaml:"overlap_sum_low" mapstructure:"overlap_sum_low"`
	OverlapSumHigh float64 `yaml:"overlap_sum_high" mapstructure:"overlap_sum_high"`
}

// LoaderConfig configures the TIGER shapefile loader.
type LoaderConfig struct {
	Year        int     `yaml:"year" mapstructure:"year"`
	TempDir     string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int     `yaml:"batch_size" mapstructure:"batch_size"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.geo-hierarchy")

	// Environment
	v.SetEnvPrefix("GEOHIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. AutomaticEnv only surfaces keys viper already knows about,
	// so every key needs a registered default even when it is empty.
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 16)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.batch_size", 64)
	v.SetDefault("engine.write_batch_size", 5000)
	v.SetDefault("engine.overlap_sum_low", 95.0)
	v.SetDefault("engine.overlap_sum_high", 105.0)
	v.SetDefault("loader.year", 2024)
	v.SetDefault("loader.temp_dir", "/tmp/geo-hierarchy")
	v.SetDefault("loader.concurrency", 3)
	v.SetDefault("loader.batch_size", 50000)
	v.SetDefault("loader.rate_per_sec", 2.0)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; env and defaults cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !eris.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
