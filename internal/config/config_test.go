package config

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// setTestEnv points HOME at an empty temp dir and sets the API key so
// Load() exercises pure defaults. Returns a cleanup via t.Cleanup.
func setTestEnv(t *testing.T) {
	t.Helper()
	viper.Reset()

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	// Clear overrides that would shadow defaults.
	for _, key := range []string{"DATABASE_URL", "FORMULARY_PROVIDER", "FORMULARY_MODEL_NAME", "NCBI_API_KEY", "NCBI_EMAIL"} {
		if os.Getenv(key) != "" {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	setTestEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Provider != ProviderGemini {
		t.Errorf("expected default Provider %q, got %q", ProviderGemini, cfg.Provider)
	}
	if cfg.ModelName != "gemini-2.5-flash" {
		t.Errorf("expected default ModelName 'gemini-2.5-flash', got %q", cfg.ModelName)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("expected default Temperature 0.2, got %f", cfg.Temperature)
	}
	if cfg.EmbedderModel != DefaultGeminiEmbedderModel {
		t.Errorf("expected default EmbedderModel %q, got %q", DefaultGeminiEmbedderModel, cfg.EmbedderModel)
	}
	if cfg.TopK != 3 {
		t.Errorf("expected default TopK 3, got %d", cfg.TopK)
	}
	if cfg.PostgresHost != "localhost" || cfg.PostgresPort != 5432 {
		t.Errorf("unexpected postgres defaults: %s:%d", cfg.PostgresHost, cfg.PostgresPort)
	}
	if cfg.Loop.MaxIterations != DefaultMaxIterations {
		t.Errorf("expected default Loop.MaxIterations %d, got %d", DefaultMaxIterations, cfg.Loop.MaxIterations)
	}
	if cfg.Loop.RerunMaxIterations != DefaultRerunMaxIterations {
		t.Errorf("expected default Loop.RerunMaxIterations %d, got %d", DefaultRerunMaxIterations, cfg.Loop.RerunMaxIterations)
	}
	if cfg.Loop.QueryTimeoutSeconds != DefaultQueryTimeoutSeconds {
		t.Errorf("expected default Loop.QueryTimeoutSeconds %d, got %d", DefaultQueryTimeoutSeconds, cfg.Loop.QueryTimeoutSeconds)
	}
	if cfg.PMC.BaseURL != "https://eutils.ncbi.nlm.nih.gov/entrez/eutils" {
		t.Errorf("unexpected default PMC.BaseURL %q", cfg.PMC.BaseURL)
	}
	if cfg.PMC.MaxPapersPerGap != 3 {
		t.Errorf("expected default PMC.MaxPapersPerGap 3, got %d", cfg.PMC.MaxPapersPerGap)
	}
}

func TestEnvironmentVariableOverride(t *testing.T) {
	setTestEnv(t)
	t.Setenv("FORMULARY_MODEL_NAME", "gemini-2.5-pro")
	t.Setenv("NCBI_API_KEY", "ncbi-test-key-12345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ModelName != "gemini-2.5-pro" {
		t.Errorf("expected env override ModelName 'gemini-2.5-pro', got %q", cfg.ModelName)
	}
	if cfg.PMC.APIKey != "ncbi-test-key-12345" {
		t.Errorf("expected PMC.APIKey from NCBI_API_KEY, got %q", cfg.PMC.APIKey)
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{"bare gemini model", ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"already qualified", ProviderGemini, "googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_MarshalJSON_MasksSensitiveFields(t *testing.T) {
	cfg := Config{
		PostgresPassword: "super_secret_password_123",
		PMC:              PMCConfig{APIKey: "ncbi_secret_api_key_456"},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "super_secret_password_123") {
		t.Error("PostgresPassword leaked in JSON output")
	}
	if strings.Contains(out, "ncbi_secret_api_key_456") {
		t.Error("PMC.APIKey leaked in JSON output")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("expected masked placeholder in JSON output")
	}
}

func TestConfig_String_MasksSensitiveFields(t *testing.T) {
	cfg := Config{PostgresPassword: "another_secret_value_789"}
	if s := cfg.String(); strings.Contains(s, "another_secret_value_789") {
		t.Errorf("String() leaked password: %s", s)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short fully masked", "pass", maskedValue},
		{"exactly eight", "12345678", maskedValue},
		{"long shows edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func FuzzMaskSecret(f *testing.F) {
	f.Add("")
	f.Add("short")
	f.Add("a_much_longer_secret_value")
	f.Add("████████")

	f.Fuzz(func(t *testing.T, secret string) {
		masked := maskSecret(secret)
		// Secrets longer than 4 bytes must never appear verbatim.
		if len(secret) > 4 && masked == secret {
			t.Errorf("maskSecret(%q) returned input unchanged", secret)
		}
		if secret == "" && masked != "" {
			t.Errorf("maskSecret(\"\") = %q, want empty", masked)
		}
	})
}
