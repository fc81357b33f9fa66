// Package config provides configuration management for adc-engine.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	StatusAPI StatusAPIConfig `toml:"status_api"`
	MCP       MCPConfig       `toml:"mcp"`
	LLM       LLMConfig       `toml:"llm"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Tools     ToolsConfig     `toml:"tools"`
	ULL       ULLConfig       `toml:"ull"`
	Logging   LoggingConfig   `toml:"logging"`
	Security  SecurityConfig  `toml:"security"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64  `toml:"max_request_size_bytes"`
}

// StatusAPIConfig contains settings for the read-only run-status HTTP surface.
type StatusAPIConfig struct {
	Enabled        bool     `toml:"enabled"`
	APIKey         string   `toml:"api_key"`
	RateLimit      int      `toml:"rate_limit_per_minute"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout int      `toml:"request_timeout_seconds"`
}

// MCPConfig contains MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
	Stdio   bool `toml:"stdio"`
}

// LLMConfig contains LLM integration settings.
type LLMConfig struct {
	Provider          string  `toml:"provider"`
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	MaxTokens         int     `toml:"max_tokens"`
	Temperature       float64 `toml:"temperature"`
	TimeoutSecs       int     `toml:"timeout_seconds"`
	CacheSystemPrompt bool    `toml:"cache_system_prompt"`
	// ModelOverrides maps an agent identity (contract_writer, auditor,
	// code_generator, system_evaluator, refiner, pr_orchestrator) to a
	// model name, letting cheaper tiers run the high-volume roles.
	ModelOverrides map[string]string `toml:"model_overrides"`
}

// SchedulerConfig contains the inner/outer loop's iteration budgets,
// graduated acceptance thresholds, and the safeguards that bound retry
// traffic against the configured LLM provider.
type SchedulerConfig struct {
	MaxOuterIterations int `toml:"max_outer_iterations"`
	MaxInnerIterations int `toml:"max_inner_iterations"`
	// ThresholdEarly/Mid/Late are the graduated compliance targets
	// applied for iterations <=3, <=6, and >6 respectively.
	ThresholdEarly float64 `toml:"threshold_early"`
	ThresholdMid   float64 `toml:"threshold_mid"`
	ThresholdLate  float64 `toml:"threshold_late"`
	// OuterSuccessFloor is the minimum compliance score the final
	// outer iteration must clear for PR handoff to proceed.
	OuterSuccessFloor float64 `toml:"outer_success_floor"`

	CircuitBreakerFailureThreshold int `toml:"circuit_breaker_failure_threshold"`
	CircuitBreakerResetSeconds     int `toml:"circuit_breaker_reset_seconds"`
	RateLimitPerMinute             int `toml:"rate_limit_per_minute"`
}

// ToolsConfig contains settings for the agent-facing tool executor.
type ToolsConfig struct {
	BashTimeoutSeconds int   `toml:"bash_timeout_seconds"`
	MaxOutputBytes     int64 `toml:"max_output_bytes"`
}

// ULLConfig contains settings for universal-library-loader bridge loading.
type ULLConfig struct {
	Strict          bool   `toml:"strict"`
	DefaultLanguage string `toml:"default_language"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	TLSEnabled  bool   `toml:"tls_enabled"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// DefaultConfig returns the default configuration with all values set.
// Environment variables ADC_HOST and ADC_PORT can override defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	host := "127.0.0.1"
	if envHost := os.Getenv("ADC_HOST"); envHost != "" {
		host = envHost
	}

	port := 8420
	if envPort := os.Getenv("ADC_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &Config{
		Service: ServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			PIDFile:         filepath.Join(dataDir, "adc-engine.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  10 * 1024 * 1024,
		},
		StatusAPI: StatusAPIConfig{
			Enabled:        true,
			APIKey:         "",
			RateLimit:      100,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 60,
		},
		MCP: MCPConfig{
			Enabled: true,
			Stdio:   true,
		},
		LLM: LLMConfig{
			Provider:          "anthropic",
			APIKey:            os.Getenv("ANTHROPIC_API_KEY"),
			Model:             "claude-sonnet-4-5",
			MaxTokens:         8192,
			Temperature:       0.2,
			TimeoutSecs:       120,
			CacheSystemPrompt: true,
			ModelOverrides:    map[string]string{},
		},
		Scheduler: SchedulerConfig{
			MaxOuterIterations:             5,
			MaxInnerIterations:             8,
			ThresholdEarly:                 0.60,
			ThresholdMid:                   0.70,
			ThresholdLate:                  0.85,
			OuterSuccessFloor:              0.80,
			CircuitBreakerFailureThreshold: 5,
			CircuitBreakerResetSeconds:     60,
			RateLimitPerMinute:             30,
		},
		Tools: ToolsConfig{
			BashTimeoutSeconds: 120,
			MaxOutputBytes:     1024 * 1024,
		},
		ULL: ULLConfig{
			Strict:          false,
			DefaultLanguage: "go",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Security: SecurityConfig{
			TLSEnabled:  false,
			TLSCertFile: "",
			TLSKeyFile:  "",
			CORSEnabled: true,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "adc-engine")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "adc-engine")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "adc-engine")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "adc-engine")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".adc-engine")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// LoadFromString loads configuration from a TOML string, merging with defaults.
func LoadFromString(tomlStr string) (*Config, error) {
	cfg := DefaultConfig()

	expanded := os.ExpandEnv(tomlStr)

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config string: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths expands tilde in path fields.
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	c.Service.DataDir = expandTilde(c.Service.DataDir)
	c.Service.PIDFile = expandTilde(c.Service.PIDFile)
	c.Security.TLSCertFile = expandTilde(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expandTilde(c.Security.TLSKeyFile)
}

// Save saves the configuration to a file in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// WriteExampleConfig writes an example config file with comments.
func WriteExampleConfig(path string) error {
	example := `# adc-engine configuration file
# All values shown are defaults - uncomment and modify as needed

[service]
# Host to bind the status API to
host = "127.0.0.1"
# Port to listen on
port = 8420
# Directory for run data, logs, and the PID file
# data_dir = "~/.adc-engine"
# PID file location
# pid_file = "~/.adc-engine/adc-engine.pid"
# Graceful shutdown timeout in seconds
shutdown_timeout_seconds = 30
# Maximum request body size in bytes (10MB default)
max_request_size_bytes = 10485760

[status_api]
# Enable the read-only run-status HTTP surface
enabled = true
# API key for authentication (empty = no auth for localhost)
api_key = ""
# Rate limit requests per minute (0 = unlimited)
rate_limit_per_minute = 100
# Allowed CORS origins
allowed_origins = ["http://localhost:*", "http://127.0.0.1:*"]
# Request timeout in seconds
request_timeout_seconds = 60

[mcp]
# Enable the MCP tool-catalog server
enabled = true
# Serve over stdio (the only transport currently supported)
stdio = true

[llm]
# LLM provider (anthropic, gemini)
provider = "anthropic"
# API key (can use environment variable: ${ANTHROPIC_API_KEY})
api_key = "${ANTHROPIC_API_KEY}"
# Model to use
model = "claude-sonnet-4-5"
# Maximum tokens for responses
max_tokens = 8192
# Temperature for generation (0.0-1.0)
temperature = 0.2
# Timeout in seconds
timeout_seconds = 120
# Cache the system prompt to cut repeated-invocation cost
cache_system_prompt = true
# Per-identity model overrides, e.g. { auditor = "claude-haiku-4-5" }
# [llm.model_overrides]

[scheduler]
# Maximum outer refinement iterations before giving up
max_outer_iterations = 5
# Maximum inner audit/generate iterations per outer iteration
max_inner_iterations = 8
# Graduated compliance targets for iterations <=3, <=6, and beyond
threshold_early = 0.60
threshold_mid = 0.70
threshold_late = 0.85
# Minimum compliance score the final outer iteration must clear
outer_success_floor = 0.80
# Consecutive invocation failures before the circuit breaker opens
circuit_breaker_failure_threshold = 5
# Seconds the circuit breaker stays open before allowing a trial call
circuit_breaker_reset_seconds = 60
# Agent invocations allowed per minute
rate_limit_per_minute = 30

[tools]
# Timeout in seconds for a bash tool invocation
bash_timeout_seconds = 120
# Maximum bytes of combined stdout/stderr captured per tool call
max_output_bytes = 1048576

[ull]
# Refuse limited-verification (CLI fallback) bridges instead of degrading
strict = false
# Language assumed when indicator-file detection fails
default_language = "go"

[logging]
# Log level: debug, info, warn, error
level = "info"
# Log format: json, text
format = "text"
# Output destinations: "file", "stdout", or both
output = ["file"]
# Time format for log timestamps (Go time format)
time_format = "15:04:05.000"
# Maximum log file size in MB before rotation
max_size_mb = 100
# Number of backup log files to keep
max_backups = 5
# Maximum age of log files in days
max_age_days = 30
# Compress rotated log files
compress = true

[security]
# Enable TLS/HTTPS
tls_enabled = false
# Path to TLS certificate file
# tls_cert_file = "/path/to/cert.pem"
# Path to TLS key file
# tls_key_file = "/path/to/key.pem"
# Enable CORS
cors_enabled = true
`

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return os.WriteFile(path, []byte(example), 0644)
}

// Address returns the full address string for the status API HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// RunsDir returns the path to the per-run data directory.
func (c *Config) RunsDir() string {
	return filepath.Join(c.Service.DataDir, "data", "runs")
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "adc-engine.log")
}

// PIDPath returns the path to the PID file.
func (c *Config) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "adc-engine.pid")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		c.RunsDir(),
		filepath.Dir(c.LogPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// RunHash generates a unique hash for a run's workspace path.
// Returns the first 16 characters of the SHA256 hash.
func RunHash(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	absPath = filepath.Clean(absPath)

	h := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(h[:])[:16]
}

// RunDataDir returns the data directory for a specific run's workspace.
func (c *Config) RunDataDir(workspacePath string) string {
	hash := RunHash(workspacePath)
	return filepath.Join(c.RunsDir(), hash)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}

	if c.Service.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout_seconds must be at least 1")
	}

	if c.StatusAPI.RateLimit < 0 {
		return fmt.Errorf("rate_limit_per_minute cannot be negative")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0.0 and 1.0")
	}

	if c.Scheduler.MaxOuterIterations < 1 {
		return fmt.Errorf("max_outer_iterations must be at least 1")
	}

	if c.Scheduler.MaxInnerIterations < 1 {
		return fmt.Errorf("max_inner_iterations must be at least 1")
	}

	if c.Scheduler.ThresholdEarly > c.Scheduler.ThresholdMid || c.Scheduler.ThresholdMid > c.Scheduler.ThresholdLate {
		return fmt.Errorf("scheduler thresholds must be non-decreasing: early <= mid <= late")
	}

	if c.Security.TLSEnabled {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS enabled but cert/key files not specified")
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.StatusAPI.AllowedOrigins = make([]string, len(c.StatusAPI.AllowedOrigins))
	copy(clone.StatusAPI.AllowedOrigins, c.StatusAPI.AllowedOrigins)

	clone.LLM.ModelOverrides = make(map[string]string, len(c.LLM.ModelOverrides))
	for k, v := range c.LLM.ModelOverrides {
		clone.LLM.ModelOverrides[k] = v
	}

	clone.Logging.Output = make(StringSlice, len(c.Logging.Output))
	copy(clone.Logging.Output, c.Logging.Output)

	return &clone
}
