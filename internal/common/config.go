package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/regbench/constants"
)

// Config holds all application configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	S3        S3Config        `yaml:"s3"`
	LLM       LLMConfig       `yaml:"llm"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OutputDir string          `yaml:"output_dir"`
}

// Store backends.
const (
	StoreLocal    = "local"
	StoreS3       = "s3"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// StoreConfig selects where documents and artifacts live.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	LocalDir   string `yaml:"local_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// S3Config holds object storage configuration
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	FrameworkModel string        `yaml:"framework_model"`
	MappingModel   string        `yaml:"mapping_model"`
	AnalysisModel  string        `yaml:"analysis_model"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// BenchmarkConfig tunes the mapping stages.
type BenchmarkConfig struct {
	Workers            int           `yaml:"workers"`
	TaskTimeout        time.Duration `yaml:"task_timeout"`
	MaxIterations      int           `yaml:"max_iterations"`        // <= 0 derives from unit count
	MaxAttemptsPerUnit int           `yaml:"max_attempts_per_unit"` // <= 0 means unlimited
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// LoadOptions controls where LoadConfigWith looks for settings.
type LoadOptions struct {
	EnvFile  string // .env file; missing default file is ignored
	YAMLFile string // optional YAML overlay
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    StoreLocal,
			LocalDir:   "./data",
			SQLitePath: "./data/regbench.db",
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		S3: S3Config{Region: "us-east-1"},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.0,
			Timeout:     120 * time.Second,
			MaxAttempts: 3,
		},
		Benchmark: BenchmarkConfig{
			Workers:            4,
			TaskTimeout:        3 * time.Minute,
			MaxAttemptsPerUnit: 3,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		OutputDir: "./out",
	}
}

// LoadConfig loads configuration from defaults and environment variables
func LoadConfig() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadConfigWith layers defaults, the .env file, the YAML overlay and finally the
// process environment. Variables already set in the environment win over .env.
func LoadConfigWith(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if opts.EnvFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, NewAppError(CodeConfig, "load env file "+envFile, err)
		}
	}

	cfg := DefaultConfig()
	if opts.YAMLFile != "" {
		b, err := os.ReadFile(opts.YAMLFile)
		if err != nil {
			return nil, NewAppError(CodeConfig, "read config file", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError(CodeConfig, "parse config file "+opts.YAMLFile, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.LocalDir = getEnv("STORE_DIR", c.Store.LocalDir)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)

	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = getEnv("S3_PREFIX", c.S3.Prefix)
	c.S3.Region = getEnv("AWS_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.S3.AccessKeyID)
	c.S3.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", c.S3.SecretAccessKey)
	c.S3.UsePathStyle = getEnvAsBool("S3_USE_PATH_STYLE", c.S3.UsePathStyle)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	switch c.LLM.Provider {
	case ProviderGemini:
		c.LLM.APIKey = getEnv("GEMINI_API_KEY", c.LLM.APIKey)
		c.LLM.Model = getEnv("GEMINI_MODEL", c.LLM.Model)
	default:
		c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
		c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
		c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	}
	c.LLM.FrameworkModel = getEnv("LLM_FRAMEWORK_MODEL", c.LLM.FrameworkModel)
	c.LLM.MappingModel = getEnv("LLM_MAPPING_MODEL", c.LLM.MappingModel)
	c.LLM.AnalysisModel = getEnv("LLM_ANALYSIS_MODEL", c.LLM.AnalysisModel)
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxAttempts = getEnvAsInt("LLM_MAX_ATTEMPTS", c.LLM.MaxAttempts)

	c.Benchmark.Workers = getEnvAsInt("BENCH_WORKERS", c.Benchmark.Workers)
	c.Benchmark.TaskTimeout = getEnvAsDuration("BENCH_TASK_TIMEOUT", c.Benchmark.TaskTimeout)
	c.Benchmark.MaxIterations = getEnvAsInt("BENCH_MAX_ITERATIONS", c.Benchmark.MaxIterations)
	c.Benchmark.MaxAttemptsPerUnit = getEnvAsInt("BENCH_MAX_ATTEMPTS_PER_UNIT", c.Benchmark.MaxAttemptsPerUnit)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Metrics.TextfilePath = getEnv("METRICS_TEXTFILE", c.Metrics.TextfilePath)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ModelFor returns the per-stage model override, falling back to the default model.
func (c LLMConfig) ModelFor(stage constants.Stage) string {
	var m string
	switch stage {
	case constants.StageFramework:
		m = c.FrameworkModel
	case constants.StageRelevance, constants.StageUnmapped:
		m = c.MappingModel
	case constants.StageNonCore, constants.StageComparative:
		m = c.AnalysisModel
	}
	if m == "" {
		return c.Model
	}
	return m
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown LLM_PROVIDER %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "API key for provider "+c.LLM.Provider+" is required", ErrInvalidInput)
	}
	return c.ValidateStore()
}

// ValidateStore checks only the storage settings, for commands that never call the oracle.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case StoreLocal:
		if c.Store.LocalDir == "" {
			return NewAppError(CodeConfig, "STORE_DIR is required for the local store", ErrInvalidInput)
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return NewAppError(CodeConfig, "SQLITE_PATH is required for the sqlite store", ErrInvalidInput)
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return NewAppError(CodeConfig, "DB_URL is required for the postgres store", ErrInvalidInput)
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return NewAppError(CodeConfig, "S3_BUCKET is required for the s3 store", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown STORE_BACKEND %q", c.Store.Backend), ErrInvalidInput)
	}
	if c.Benchmark.Workers <= 0 {
		return NewAppError(CodeConfig, "BENCH_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
