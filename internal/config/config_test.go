package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so tests see defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT",
		"IDLE_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE",
		"LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED", "API_BASE_PATH",
		"DB_BACKEND", "DB_PATH", "PROJECT_NAME", "PAGE_CONTENT_MAX",
		"JWT_SECRET", "JWT_TTL", "BCRYPT_COST",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_PROJECT", "OPENAI_MODEL",
		"AI_TIMEOUT", "RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS",
		"ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("Port = %q; want 5000", cfg.Port)
	}
	if cfg.DBBackend != BackendSQLite {
		t.Errorf("DBBackend = %q; want sqlite", cfg.DBBackend)
	}
	if cfg.APIBasePath != "/api" {
		t.Errorf("APIBasePath = %q; want /api", cfg.APIBasePath)
	}
	if cfg.PageContentMax != 4000 {
		t.Errorf("PageContentMax = %d; want 4000", cfg.PageContentMax)
	}
	if cfg.AI.Model != "gpt-4o-mini" {
		t.Errorf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Errorf("AI.Timeout = %v", cfg.AI.Timeout)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	// dev fallback secret is applied when unset
	if cfg.Auth.JWTSecret == "" {
		t.Error("Auth.JWTSecret empty; want dev fallback")
	}
}

func TestLoad_MemoryBackendIgnoresDBPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_BACKEND", "memory")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBBackend != BackendMemory {
		t.Fatalf("DBBackend = %q; want memory", cfg.DBBackend)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_BACKEND", "mongodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown DB_BACKEND")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"LOG_LEVEL":               "loud",
		"PAGE_CONTENT_MAX":        "0",
		"BCRYPT_COST":             "2",
		"RATE_BURST":              "0",
		"OTEL_TRACES_SAMPLER_ARG": "1.5",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", k, v)
			}
		})
	}
}

func TestLoad_NormalizesGinModeAndWarnLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIN_MODE", "production")
	t.Setenv("LOG_LEVEL", "warning")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q; want release", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitCSV[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}
