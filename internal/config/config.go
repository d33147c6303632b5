package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr      = ":8080"
	defaultDataDir         = "data"
	defaultModelsDB        = "crucible.db"
	defaultOutputDir       = "output"
	defaultWorkers         = 2
	defaultChunkSize       = 1000
	defaultMaxRetainedJobs = 1000
	defaultJobTTL          = 24 * time.Hour
	defaultSweepSchedule   = "@every 5m"

	envConfigFile      = "CRUCIBLE_CONFIG"
	envListenAddr      = "CRUCIBLE_LISTEN_ADDR"
	envDataDir         = "CRUCIBLE_DATA_DIR"
	envModelsDB        = "CRUCIBLE_MODELS_DB"
	envOutputDir       = "CRUCIBLE_OUTPUT_DIR"
	envWorkers         = "CRUCIBLE_WORKERS"
	envChunkSize       = "CRUCIBLE_CHUNK_SIZE"
	envMaxRetainedJobs = "CRUCIBLE_MAX_RETAINED_JOBS"
	envJobTTL          = "CRUCIBLE_JOB_TTL"
	envSweepSchedule   = "CRUCIBLE_SWEEP_SCHEDULE"
	envLogLevel        = "CRUCIBLE_LOG_LEVEL"
	envNATSURL         = "CRUCIBLE_NATS_URL"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DataDir    string
	ModelsDB   string
	OutputDir  string

	Workers         int
	ChunkSize       int
	MaxRetainedJobs int
	JobTTL          time.Duration
	SweepSchedule   string

	LogLevel slog.Level

	// NATSURL enables completion notifications when set.
	NATSURL string
}

// fileConfig mirrors Config in the optional YAML file. Zero values leave
// the defaults in place.
type fileConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	DataDir         string        `yaml:"data_dir"`
	ModelsDB        string        `yaml:"models_db"`
	OutputDir       string        `yaml:"output_dir"`
	Workers         int           `yaml:"workers"`
	ChunkSize       int           `yaml:"chunk_size"`
	MaxRetainedJobs int           `yaml:"max_retained_jobs"`
	JobTTL          time.Duration `yaml:"job_ttl"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
	LogLevel        string        `yaml:"log_level"`
	NATSURL         string        `yaml:"nats_url"`
}

// Load builds the configuration. Precedence, lowest first: defaults, the YAML
// file named by CRUCIBLE_CONFIG, environment variables. A .env file in the
// working directory is loaded into the environment first without overriding
// variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DataDir:         defaultDataDir,
		ModelsDB:        defaultModelsDB,
		OutputDir:       defaultOutputDir,
		Workers:         defaultWorkers,
		ChunkSize:       defaultChunkSize,
		MaxRetainedJobs: defaultMaxRetainedJobs,
		JobTTL:          defaultJobTTL,
		SweepSchedule:   defaultSweepSchedule,
		LogLevel:        slog.LevelInfo,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ListenAddr, f.ListenAddr)
	setString(&c.DataDir, f.DataDir)
	setString(&c.ModelsDB, f.ModelsDB)
	setString(&c.OutputDir, f.OutputDir)
	setString(&c.SweepSchedule, f.SweepSchedule)
	setString(&c.NATSURL, f.NATSURL)
	if f.Workers != 0 {
		c.Workers = f.Workers
	}
	if f.ChunkSize != 0 {
		c.ChunkSize = f.ChunkSize
	}
	if f.MaxRetainedJobs != 0 {
		c.MaxRetainedJobs = f.MaxRetainedJobs
	}
	if f.JobTTL != 0 {
		c.JobTTL = f.JobTTL
	}
	if f.LogLevel != "" {
		c.LogLevel = parseLogLevel(f.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, os.Getenv(envListenAddr))
	setString(&c.DataDir, os.Getenv(envDataDir))
	setString(&c.ModelsDB, os.Getenv(envModelsDB))
	setString(&c.OutputDir, os.Getenv(envOutputDir))
	setString(&c.SweepSchedule, os.Getenv(envSweepSchedule))
	setString(&c.NATSURL, os.Getenv(envNATSURL))

	for key, dst := range map[string]*int{
		envWorkers:         &c.Workers,
		envChunkSize:       &c.ChunkSize,
		envMaxRetainedJobs: &c.MaxRetainedJobs,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv(envJobTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envJobTTL, err)
		}
		c.JobTTL = d
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxRetainedJobs < 0 {
		return fmt.Errorf("max retained jobs must not be negative, got %d", c.MaxRetainedJobs)
	}
	if c.JobTTL <= 0 {
		return fmt.Errorf("job ttl must be positive, got %s", c.JobTTL)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
