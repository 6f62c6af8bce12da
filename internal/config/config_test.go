package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(names ...string) {
	for _, n := range names {
		os.Unsetenv(n)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv("PORT", "LOG_LEVEL", "ENV", "JWT_SECRET", "PUSH_BATCH_SIZE", "PUSH_RETRY_DELAY_MS", "PUSH_TIMEOUT_SECONDS", "PUSH_MAX_ATTEMPTS", "DISPATCH_TIMEOUT_SECONDS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected env 'development', got %s", cfg.Env)
	}
	if cfg.PushBatchSize != 100 {
		t.Errorf("expected batch size 100, got %d", cfg.PushBatchSize)
	}
	if cfg.PushMaxAttempts != 3 {
		t.Errorf("expected 3 push attempts, got %d", cfg.PushMaxAttempts)
	}
	if cfg.PushTimeout != 30*time.Second {
		t.Errorf("expected 30s push timeout, got %s", cfg.PushTimeout)
	}
	// 4 batches of 3 × 30s plus 1s and 2s backoff
	if cfg.DispatchTimeout != 4*93*time.Second {
		t.Errorf("expected 372s dispatch timeout, got %s", cfg.DispatchTimeout)
	}
	if cfg.ExpoPushURL != "https://exp.host/--/api/v2/push/send" {
		t.Errorf("unexpected expo url %s", cfg.ExpoPushURL)
	}
	if cfg.JWTSecret == "" {
		t.Error("expected a development jwt secret")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("PORT", "9000")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("PUSH_RETRY_DELAY_MS", "250")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	os.Setenv("OTEL_ENABLED", "true")
	defer clearEnv("PORT", "LOG_LEVEL", "PUSH_RETRY_DELAY_MS", "CORS_ALLOWED_ORIGINS", "OTEL_ENABLED")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.LogLevel)
	}
	if cfg.PushRetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms retry delay, got %s", cfg.PushRetryDelay)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.OTELEnabled {
		t.Error("expected tracing enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "eighty"},
		{"batch too large", "PUSH_BATCH_SIZE", "101"},
		{"batch zero", "PUSH_BATCH_SIZE", "0"},
		{"bad sample ratio", "OTEL_SAMPLE_RATIO", "2"},
		{"bad bool", "OTEL_ENABLED", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv(tt.key, tt.value)
			defer os.Unsetenv(tt.key)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ProductionRequiresJWTSecret(t *testing.T) {
	os.Setenv("ENV", "production")
	os.Unsetenv("JWT_SECRET")
	defer os.Unsetenv("ENV")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing in production")
	}
}

func TestLoad_DispatchTimeout(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want time.Duration
	}{
		{"explicit wins", map[string]string{"DISPATCH_TIMEOUT_SECONDS": "45"}, 45 * time.Second},
		{"follows push timeout", map[string]string{"PUSH_TIMEOUT_SECONDS": "10"}, 4 * 33 * time.Second},
		{"single attempt has no backoff", map[string]string{"PUSH_MAX_ATTEMPTS": "1"}, 4 * 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv("DISPATCH_TIMEOUT_SECONDS", "PUSH_TIMEOUT_SECONDS", "PUSH_MAX_ATTEMPTS", "PUSH_RETRY_DELAY_MS")
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.env {
					os.Unsetenv(k)
				}
			}()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if cfg.DispatchTimeout != tt.want {
				t.Errorf("expected %s, got %s", tt.want, cfg.DispatchTimeout)
			}

			// one worst-case batch must fit inside the dispatch deadline
			perBatch := time.Duration(cfg.PushMaxAttempts) * cfg.PushTimeout
			if _, explicit := tt.env["DISPATCH_TIMEOUT_SECONDS"]; !explicit && cfg.DispatchTimeout < perBatch {
				t.Errorf("dispatch timeout %s shorter than one batch %s", cfg.DispatchTimeout, perBatch)
			}
		})
	}
}
