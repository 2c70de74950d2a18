// Package config handles application configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides. The loaded value is constructed once
// in main and passed to components explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written either as
// strings ("30s", "5m") or as bare numbers, which are read as seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n float64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value")
}

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig       `yaml:"app"`
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Models   ModelsConfig    `yaml:"models"`
	Retry    RetryConfig     `yaml:"retry"`
	Rate     RateLimitConfig `yaml:"rate_limiting"`
	HTTPRate HTTPRateConfig  `yaml:"http_rate_limiting"`
	Security SecurityConfig  `yaml:"security"`
	Process  ProcessConfig   `yaml:"openai_processing"`
	Database DatabaseConfig  `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	UI       UIConfig        `yaml:"ui"`

	Categories []Category `yaml:"categories"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Env string `yaml:"env"`
}

// IsDevelopment returns true if the app is running in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development" || a.Env == "dev"
}

// IsProduction returns true if the app is running in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Console     bool   `yaml:"console"`
	FileLogging bool   `yaml:"file_logging"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
}

// ModelsConfig holds language model configuration.
type ModelsConfig struct {
	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OllamaConfig holds detection model configuration.
type OllamaConfig struct {
	Host    string   `yaml:"host"`
	Name    string   `yaml:"name"`
	Timeout Duration `yaml:"timeout"`
}

// OpenAIConfig holds processing model configuration.
type OpenAIConfig struct {
	Name        string   `yaml:"name"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
}

// RetryConfig holds retry policy configuration for model calls.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	MinWait     Duration `yaml:"min_wait"`
	MaxWait     Duration `yaml:"max_wait"`
	Multiplier  float64  `yaml:"multiplier"`
}

// RateLimitConfig holds outbound (model call) rate limiting configuration.
type RateLimitConfig struct {
	Enabled              bool `yaml:"enabled"`
	MaxRequestsPerMinute int  `yaml:"max_requests_per_minute"`
	MaxTokensPerMinute   int  `yaml:"max_tokens_per_minute"`
}

// HTTPRateConfig holds inbound (per client) rate limiting configuration.
type HTTPRateConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Requests     int      `yaml:"requests"`
	Window       Duration `yaml:"window"`
	TrustProxy   bool     `yaml:"trust_proxy"`
	APIKeyHeader string   `yaml:"api_key_header"`
}

// SecurityConfig holds security-related flags.
type SecurityConfig struct {
	SanitizeErrorMessages bool `yaml:"sanitize_error_messages"`
	LogSensitiveData      bool `yaml:"log_sensitive_data"`
}

// ProcessConfig holds configuration for the secondary (OpenAI) pipeline.
type ProcessConfig struct {
	InstructionPrefix string `yaml:"instruction_prefix"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	DBName          string   `yaml:"dbname"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	PoolSize int      `yaml:"pool_size"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// UIConfig holds the embedded page configuration.
type UIConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Category describes one detectable category of sensitive information.
type Category struct {
	Name        string `yaml:"name"`
	Placeholder string `yaml:"placeholder"`
	Description string `yaml:"description"`
}

// DefaultInstructionPrefix is prepended to redacted text before the
// secondary model call.
const DefaultInstructionPrefix = "The following text has been redacted for sensitive information. " +
	"Please process the text as it is provided as a PROMPT:\n"

// defaultCategories is the built-in category set. A categories section in the
// YAML file replaces it entirely.
func defaultCategories() []Category {
	return []Category{
		{Name: "Email Addresses", Placeholder: "[EMAIL-1]", Description: "Email addresses"},
		{Name: "Phone Numbers", Placeholder: "[PHONE-NUM-1]", Description: "Phone numbers"},
		{Name: "Social Security Numbers", Placeholder: "[SSN-1]", Description: "Social security numbers"},
		{Name: "Credit Card Numbers", Placeholder: "[CREDIT-CARD-NUM-1]", Description: "Credit card numbers"},
		{Name: "Dates of Birth", Placeholder: "[DOB-1]", Description: "Dates of birth"},
		{Name: "Addresses", Placeholder: "[ADDRESS-1]", Description: "Physical addresses"},
		{Name: "Passwords", Placeholder: "[PASSWORD-1]", Description: "Passwords and secrets"},
		{Name: "Confidential Business Information", Placeholder: "[CBI-1]", Description: "Confidential business information"},
		{Name: "Medical Information", Placeholder: "[MEDICAL-1]", Description: "Medical information"},
		{Name: "Other", Placeholder: "[OTHER]", Description: "Other sensitive information"},
	}
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		App: AppConfig{Env: "development"},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(5 * time.Second),
			WriteTimeout:    Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:       "info",
			Console:     true,
			FileLogging: false,
			File:        "guardrail.log",
			MaxSizeMB:   10,
			MaxBackups:  5,
		},
		Models: ModelsConfig{
			Ollama: OllamaConfig{
				Host:    "http://localhost:11434",
				Name:    "llama3.2:latest",
				Timeout: Duration(120 * time.Second),
			},
			OpenAI: OpenAIConfig{
				Name:        "gpt-3.5-turbo",
				Temperature: 0.7,
				MaxTokens:   2000,
				Timeout:     Duration(60 * time.Second),
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			MinWait:     Duration(2 * time.Second),
			MaxWait:     Duration(10 * time.Second),
			Multiplier:  2,
		},
		Rate: RateLimitConfig{
			Enabled:              true,
			MaxRequestsPerMinute: 60,
			MaxTokensPerMinute:   90000,
		},
		HTTPRate: HTTPRateConfig{
			Enabled:  true,
			Requests: 120,
			Window:   Duration(time.Minute),
		},
		Security: SecurityConfig{
			SanitizeErrorMessages: true,
			LogSensitiveData:      false,
		},
		Process: ProcessConfig{
			InstructionPrefix: DefaultInstructionPrefix,
		},
		Database: DatabaseConfig{
			Port:            5432,
			User:            "guardrail",
			DBName:          "guardrail",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Redis: RedisConfig{
			Port:     6379,
			PoolSize: 10,
			CacheTTL: Duration(time.Hour),
		},
		UI: UIConfig{
			Title:       "Sensitive Information Redaction Tool",
			Description: "Identify and redact sensitive information from text before AI processing",
		},
		Categories: defaultCategories(),
	}
}

// Load reads configuration from the given YAML file (if it exists) layered
// over defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file; defaults and env still apply.
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = defaultCategories()
	}
	if cfg.Process.InstructionPrefix == "" {
		cfg.Process.InstructionPrefix = DefaultInstructionPrefix
	}

	return cfg, nil
}

// applyEnv overrides configuration values from environment variables.
func (c *Config) applyEnv() error {
	c.App.Env = getEnvOrDefault("APP_ENV", c.App.Env)

	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)

	port, err := getEnvAsInt("SERVER_PORT", c.Server.Port)
	if err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	c.Server.Port = port

	readTimeout, err := getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout.Std())
	if err != nil {
		return fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}
	c.Server.ReadTimeout = Duration(readTimeout)

	writeTimeout, err := getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout.Std())
	if err != nil {
		return fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}
	c.Server.WriteTimeout = Duration(writeTimeout)

	shutdownTimeout, err := getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout.Std())
	if err != nil {
		return fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}
	c.Server.ShutdownTimeout = Duration(shutdownTimeout)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvOrDefault("LOG_FILE", c.Logging.File)

	c.Models.Ollama.Host = getEnvOrDefault("OLLAMA_HOST", c.Models.Ollama.Host)
	c.Models.Ollama.Name = getEnvOrDefault("OLLAMA_MODEL", c.Models.Ollama.Name)
	c.Models.OpenAI.Name = getEnvOrDefault("OPENAI_MODEL", c.Models.OpenAI.Name)

	maxAttempts, err := getEnvAsInt("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	if err != nil {
		return fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}
	c.Retry.MaxAttempts = maxAttempts

	maxRequests, err := getEnvAsInt("RATE_MAX_REQUESTS_PER_MINUTE", c.Rate.MaxRequestsPerMinute)
	if err != nil {
		return fmt.Errorf("invalid RATE_MAX_REQUESTS_PER_MINUTE: %w", err)
	}
	c.Rate.MaxRequestsPerMinute = maxRequests

	maxTokens, err := getEnvAsInt("RATE_MAX_TOKENS_PER_MINUTE", c.Rate.MaxTokensPerMinute)
	if err != nil {
		return fmt.Errorf("invalid RATE_MAX_TOKENS_PER_MINUTE: %w", err)
	}
	c.Rate.MaxTokensPerMinute = maxTokens

	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	dbPort, err := getEnvAsInt("DB_PORT", c.Database.Port)
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	c.Database.Port = dbPort
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnvOrDefault("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Host = getEnvOrDefault("REDIS_HOST", c.Redis.Host)
	redisPort, err := getEnvAsInt("REDIS_PORT", c.Redis.Port)
	if err != nil {
		return fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	c.Redis.Port = redisPort
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	redisDB, err := getEnvAsInt("REDIS_DB", c.Redis.DB)
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	c.Redis.DB = redisDB

	return nil
}

// DatabaseEnabled returns true if history persistence is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != ""
}

// RedisEnabled returns true if the detection cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// CategoryNames returns the configured category names in order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		names = append(names, cat.Name)
	}
	return names
}

// CategoryMap returns the mapping from category name to redaction placeholder.
func (c *Config) CategoryMap() map[string]string {
	m := make(map[string]string, len(c.Categories))
	for _, cat := range c.Categories {
		m[cat.Name] = cat.Placeholder
	}
	return m
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns the environment variable as an integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// getEnvAsDuration returns the environment variable as a duration.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, err
	}
	return value, nil
}
