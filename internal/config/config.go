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
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	FollowUpBoss  FollowUpBossConfig  `yaml:"followupboss" mapstructure:"followupboss"`
	EmbedProvider EmbedProviderConfig `yaml:"embed_provider" mapstructure:"embed_provider"`
	Blob          BlobConfig          `yaml:"blob" mapstructure:"blob"`
	Worker        WorkerConfig        `yaml:"worker" mapstructure:"worker"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FollowUpBossConfig holds CRM API credentials. APIKey is used for every
// CrmConnection; a connection's credential_ref is not read. BaseURL is
// used when a connection has no base_url of its own.
type FollowUpBossConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EmbedProviderConfig holds the text embedding provider's credentials
// and the model used to embed canonical and CRM leads, per spec.md §6.
type EmbedProviderConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// BlobConfig configures the content-addressed store for raw uploads.
type BlobConfig struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
}

// WorkerConfig tunes the claim-loop workers: the stager's parse step,
// transformer, matcher, and embedding queue worker. The CRM puller reads
// none of it.
type WorkerConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("followupboss.base_url", "https://api.followupboss.com/v1")
	v.SetDefault("embed_provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("embed_provider.model", "text-embedding-3-small")
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.poll_interval_secs", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration carries what a given run mode
// needs before any worker starts, so a misconfigured deployment fails
// at startup instead of mid-batch.
func (c *Config) Validate(mode string) error {
	var missing []string

	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "stage":
		if c.Blob.Bucket == "" {
			missing = append(missing, "blob.bucket is required")
		}
	case "crmsync":
		if c.FollowUpBoss.APIKey == "" {
			missing = append(missing, "followupboss.api_key is required")
		}
	case "embed":
		if c.EmbedProvider.APIKey == "" {
			missing = append(missing, "embed_provider.api_key is required")
		}
	case "transform", "match":
		// no mode-specific requirements beyond the database.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Worker.BatchSize < 1 || c.Worker.BatchSize > 1000 {
		missing = append(missing, "worker.batch_size must be between 1 and 1000")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(missing, "; "))
	}
	return nil
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
