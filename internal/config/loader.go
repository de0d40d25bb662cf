package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/drillops/internal/db"
	"github.com/rpattn/drillops/internal/ingestion"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Database  db.Config
	HTTP      HTTPConfig
	Ingestion ingestion.Options
	Log       LogConfig
	Metrics   MetricsConfig
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   90 * time.Second,
		},
		Ingestion: ingestion.DefaultOptions(),
		Log:       LogConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads config.yaml from configPath (when present) and applies DRILLOPS_*
// environment overrides, e.g. DRILLOPS_DATABASE_HOST or DRILLOPS_INGESTION_MAX_FILE_BYTES.
func Load(configPath string, log logrus.FieldLogger) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("DRILLOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug("no config.yaml found, using defaults and env vars")
	} else {
		log.WithField("file", v.ConfigFileUsed()).Debug("loaded config file")
	}

	cfg.Database = db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
		MaxConns: v.GetInt32("database.max_conns"),
	}
	cfg.HTTP = HTTPConfig{
		Addr:           v.GetString("http.addr"),
		AllowedOrigins: v.GetStringSlice("http.allowed_origins"),
		ReadTimeout:    v.GetDuration("http.read_timeout"),
		WriteTimeout:   v.GetDuration("http.write_timeout"),
	}
	cfg.Ingestion = ingestion.Options{
		MaxFileBytes:    v.GetInt64("ingestion.max_file_bytes"),
		StageChunkSize:  v.GetInt("ingestion.stage_chunk_size"),
		ErrorSampleSize: v.GetInt("ingestion.error_sample_size"),
		CommitTimeout:   v.GetDuration("ingestion.commit_timeout"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Path:    v.GetString("metrics.path"),
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port out of range: %d", c.Database.Port)
	}
	if c.Ingestion.MaxFileBytes <= 0 {
		return fmt.Errorf("ingestion max_file_bytes must be positive, got %d", c.Ingestion.MaxFileBytes)
	}
	if c.Ingestion.StageChunkSize <= 0 {
		return fmt.Errorf("ingestion stage_chunk_size must be positive, got %d", c.Ingestion.StageChunkSize)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)

	v.SetDefault("ingestion.max_file_bytes", cfg.Ingestion.MaxFileBytes)
	v.SetDefault("ingestion.stage_chunk_size", cfg.Ingestion.StageChunkSize)
	v.SetDefault("ingestion.error_sample_size", cfg.Ingestion.ErrorSampleSize)
	v.SetDefault("ingestion.commit_timeout", cfg.Ingestion.CommitTimeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
