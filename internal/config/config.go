// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.formulary/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Model selection, temperature, max tokens, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Loop: Improvement loop iteration bounds and query timeout
//   - PMC: PubMed Central E-utilities access for gap-filling research retrieval
//
// Security: Sensitive data (passwords, API keys) are never logged; the config
// directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidLoopBounds indicates the improvement loop iteration bounds are invalid.
	ErrInvalidLoopBounds = errors.New("invalid loop bounds")

	// ErrInvalidPMCConfig indicates the PubMed Central client configuration is invalid.
	ErrInvalidPMCConfig = errors.New("invalid PMC configuration")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality (Matryoshka Representation
	// Learning). Our pgvector schema uses 768 dimensions; see evidence.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultMaxIterations bounds the per-case improvement loop.
	DefaultMaxIterations = 3

	// DefaultRerunMaxIterations bounds the single re-run after gap filling.
	DefaultRerunMaxIterations = 2

	// DefaultQueryTimeoutSeconds bounds a single evaluation query/grade round trip.
	DefaultQueryTimeoutSeconds = 15
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// LoopConfig bounds the self-improvement loop.
type LoopConfig struct {
	// MaxIterations is the per-case adjustment budget for the first run.
	MaxIterations int `mapstructure:"max_iterations" json:"max_iterations"`

	// RerunMaxIterations is the reduced budget for the single re-run
	// triggered after gap filling ingests new evidence.
	RerunMaxIterations int `mapstructure:"rerun_max_iterations" json:"rerun_max_iterations"`

	// QueryTimeoutSeconds bounds one evaluation query round trip
	// (retrieval plus grading).
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds" json:"query_timeout_seconds"`
}

// PMCConfig configures the PubMed Central E-utilities client.
type PMCConfig struct {
	// BaseURL is the E-utilities endpoint root. Overridable for tests.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// Email identifies this tool to NCBI per their usage policy.
	Email string `mapstructure:"email" json:"email"`

	// APIKey raises the NCBI rate limit from 3 to 10 requests/second.
	// Bound to the NCBI_API_KEY environment variable.
	APIKey string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON

	// MaxPapersPerGap caps how many papers a single gap query may download.
	MaxPapersPerGap int `mapstructure:"max_papers_per_gap" json:"max_papers_per_gap"`

	// ArtifactDir is where downloaded article XML is written before ingestion.
	ArtifactDir string `mapstructure:"artifact_dir" json:"artifact_dir"`

	// ReportPath is the research-needs report appended to when retrieved
	// evidence fails the quality check.
	ReportPath string `mapstructure:"report_path" json:"report_path"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default)
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Evidence retrieval configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	TopK          int    `mapstructure:"top_k" json:"top_k"`

	// Improvement loop configuration
	Loop LoopConfig `mapstructure:"loop" json:"loop"`

	// PubMed Central configuration
	PMC PMCConfig `mapstructure:"pmc" json:"pmc"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.formulary/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".formulary")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("max_tokens", 2048)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "formulary")
	viper.SetDefault("postgres_password", "formulary_dev_password")
	viper.SetDefault("postgres_db_name", "formulary")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Evidence retrieval defaults
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("top_k", 3)

	// Improvement loop defaults
	viper.SetDefault("loop.max_iterations", DefaultMaxIterations)
	viper.SetDefault("loop.rerun_max_iterations", DefaultRerunMaxIterations)
	viper.SetDefault("loop.query_timeout_seconds", DefaultQueryTimeoutSeconds)

	// PubMed Central defaults
	viper.SetDefault("pmc.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	viper.SetDefault("pmc.email", "")
	viper.SetDefault("pmc.max_papers_per_gap", 3)
	viper.SetDefault("pmc.artifact_dir", "research_artifacts")
	viper.SetDefault("pmc.report_path", "research_needs.md")
}

// bindEnvVariables binds environment variable overrides explicitly.
// Secrets:
//  1. GEMINI_API_KEY - Read directly by Genkit (not via Viper), validated in cfg.Validate()
//  2. NCBI_API_KEY - PubMed Central E-utilities key (optional, raises rate limit)
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// NCBI E-utilities key (optional)
	mustBind("pmc.api_key", "NCBI_API_KEY")
	mustBind("pmc.email", "NCBI_EMAIL")

	// AI provider and model overrides
	mustBind("provider", "FORMULARY_PROVIDER")
	mustBind("model_name", "FORMULARY_MODEL_NAME")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper
	// Validation checks its presence in cfg.Validate()
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - PMC.APIKey
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.PMC.APIKey = maskSecret(a.PMC.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.5-flash".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
