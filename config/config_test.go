package config

import (
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("TASKSTORE_URL", "")
	t.Setenv("TASKBOARD_EMAIL", " a@example.com ")
	t.Setenv("TASKBOARD_TOKEN", "")
	t.Setenv("HTTP_TIMEOUT", "")
	t.Setenv("DEBUG", "")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreURL != defaultStoreURL || cfg.HTTPTimeout != defaultHTTPTimeout || cfg.Debug {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.Email != "a@example.com" {
		t.Fatalf("expected trimmed email, got %q", cfg.Email)
	}
}

func TestLoadClientInvalidTimeout(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")
	if _, err := LoadClient(); err == nil {
		t.Fatalf("expected error for invalid HTTP_TIMEOUT")
	}
}

func TestLoadStore(t *testing.T) {
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379/2")
	t.Setenv("STORE_PORT", "9090")
	t.Setenv("DEDUPER_TTL", "1h")
	t.Setenv("CACHE_TTL", "0s")
	t.Setenv("DEBUG", "true")
	t.Setenv("LOCAL_AUTH_MODE", "HS256")
	t.Setenv("LOCAL_AUTH_SHARED_SECRET", "s3cret")

	cfg, err := LoadStore()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DeduperTTL != time.Hour || cfg.CacheTTL != 0 || !cfg.Debug {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis options: %#v", cfg.Redis)
	}
	if !cfg.AuthEnabled() || cfg.LocalAuthSecret != "s3cret" {
		t.Fatalf("expected local auth to be enabled")
	}
}

func TestLoadStoreErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing redis", env: map[string]string{"REDIS_CONNECTION_STRING": ""}},
		{name: "bad port", env: map[string]string{"STORE_PORT": "eighty"}},
		{name: "zero port", env: map[string]string{"STORE_PORT": "0"}},
		{name: "negative ttl", env: map[string]string{"DEDUPER_TTL": "-1m"}},
		{name: "bad debug", env: map[string]string{"DEBUG": "maybe"}},
		{name: "unknown auth mode", env: map[string]string{"LOCAL_AUTH_MODE": "rs512"}},
		{name: "hs256 without secret", env: map[string]string{"LOCAL_AUTH_MODE": "hs256"}},
		{name: "domain without audience", env: map[string]string{"AUTH_ISSUER_DOMAIN": "tenant.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_CONNECTION_STRING", "localhost:6379")
			for _, k := range []string{"STORE_PORT", "DEDUPER_TTL", "CACHE_TTL", "DEBUG", "LOCAL_AUTH_MODE", "LOCAL_AUTH_SHARED_SECRET", "AUTH_ISSUER_DOMAIN", "AUTH_AUDIENCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadStore(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStoreProviderURLs(t *testing.T) {
	cfg := Store{AuthDomain: "tenant.example.com", AuthAudience: "tasks"}
	if !cfg.AuthEnabled() {
		t.Fatalf("expected auth to be enabled")
	}
	if got := cfg.JWKSURL(); got != "https://tenant.example.com/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url: %s", got)
	}
	if got := cfg.Issuer(); got != "https://tenant.example.com/" {
		t.Fatalf("unexpected issuer: %s", got)
	}
}

func TestRedisOptionsConnectionString(t *testing.T) {
	opts := RedisOptions("cache.example.net:6380,password=pw,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options: %#v", opts)
	}

	plain := RedisOptions("localhost:6379")
	if plain.Addr != "localhost:6379" || plain.TLSConfig != nil {
		t.Fatalf("unexpected options: %#v", plain)
	}
}
