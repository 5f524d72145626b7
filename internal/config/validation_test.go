package config

import (
	"errors"
	"testing"
)

// validBaseConfig returns a Config with all required fields set.
func validBaseConfig() *Config {
	return &Config{
		Provider:         ProviderGemini,
		ModelName:        "gemini-2.5-flash",
		Temperature:      0.2,
		MaxTokens:        2048,
		EmbedderModel:    DefaultGeminiEmbedderModel,
		TopK:             3,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresPassword: "test_password",
		PostgresDBName:   "formulary",
		PostgresSSLMode:  "disable",
		Loop: LoopConfig{
			MaxIterations:       3,
			RerunMaxIterations:  2,
			QueryTimeoutSeconds: 15,
		},
		PMC: PMCConfig{
			BaseURL:         "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			MaxPapersPerGap: 3,
			ArtifactDir:     "research_artifacts",
			ReportPath:      "research_needs.md",
		},
	}
}

func TestValidateSuccess(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	if err := validBaseConfig().Validate(); err != nil {
		t.Errorf("Validate() failed on valid config: %v", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("expected ErrConfigNil, got %v", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if err := validBaseConfig().Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model name", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"top-k zero", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"top-k too large", func(c *Config) { c.TopK = 11 }, ErrInvalidTopK},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgresPassword},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"deprecated ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
		{"zero max iterations", func(c *Config) { c.Loop.MaxIterations = 0 }, ErrInvalidLoopBounds},
		{"zero rerun iterations", func(c *Config) { c.Loop.RerunMaxIterations = 0 }, ErrInvalidLoopBounds},
		{"zero query timeout", func(c *Config) { c.Loop.QueryTimeoutSeconds = 0 }, ErrInvalidLoopBounds},
		{"empty pmc base url", func(c *Config) { c.PMC.BaseURL = "" }, ErrInvalidPMCConfig},
		{"zero papers per gap", func(c *Config) { c.PMC.MaxPapersPerGap = 0 }, ErrInvalidPMCConfig},
		{"empty artifact dir", func(c *Config) { c.PMC.ArtifactDir = "" }, ErrInvalidPMCConfig},
		{"empty report path", func(c *Config) { c.PMC.ReportPath = "" }, ErrInvalidPMCConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
