package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

// TestLoadConfigOptional_EmptyPath tests loading when file path is empty
func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_Defaults(t *testing.T) {
	cfg, err := LoadConfigOptional("   ")
	if err != nil {
		t.Fatalf("LoadConfigOptional with whitespace path should not error: %v", err)
	}
	if cfg.Port != 8080 || cfg.Env != "dev" || cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("unexpected base defaults: %+v", cfg)
	}
	if cfg.IssuerDomain != DefaultIssuerDomain {
		t.Errorf("Expected IssuerDomain=%q, got %q", DefaultIssuerDomain, cfg.IssuerDomain)
	}
	if len(cfg.Algorithms) != 1 || cfg.Algorithms[0] != "RS256" {
		t.Errorf("Expected Algorithms=[RS256], got %v", cfg.Algorithms)
	}
	if cfg.AllowedClockSkewSeconds != 0 {
		t.Errorf("Expected zero clock skew, got %d", cfg.AllowedClockSkewSeconds)
	}
	if cfg.JwksCacheTTLSeconds != 600 || cfg.JwksHTTPTimeoutSeconds != 5 || cfg.JwksMinRefreshSeconds != 30 {
		t.Errorf("unexpected jwks defaults: ttl=%d timeout=%d minRefresh=%d",
			cfg.JwksCacheTTLSeconds, cfg.JwksHTTPTimeoutSeconds, cfg.JwksMinRefreshSeconds)
	}
	if cfg.JwksCache != JwksCacheMemory || cfg.AuthProvider != "jwks" {
		t.Errorf("unexpected cache/provider defaults: %q %q", cfg.JwksCache, cfg.AuthProvider)
	}
	if cfg.RateLimit.Enabled() {
		t.Error("rate limiting should be off by default")
	}
	if cfg.UsesRedis() {
		t.Error("defaults should not need redis")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// TestLoadConfigOptional_FileNotExist tests loading when file does not exist
func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

// TestLoadConfigOptional_InvalidYAML tests loading when file exists but has invalid YAML
func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
port: 8080
issuerDomain: "tenant.auth0.com"
  invalid indentation here
  more bad yaml
`)
	if _, err := LoadConfigOptional(path); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
port: 7071
env: prod
issuerDomain: tenant.eu.auth0.com
issuer: https://tenant.eu.auth0.com/
audience: https://api.example.com
algorithms: [RS256, ES256]
allowedClockSkewSeconds: 30
jwksCache: Redis
redisAddr: redis:6379
authProvider: static
authConfig:
  token: dev-token
  scopes: [manage:secrets]
functions:
  escalated-endpoint:
    methods: [get]
    requiredScopes: [manage:secrets, admin]
  test-endpoint:
    requiredScopes: []
rateLimit:
  requestsPerMinute: 120
  burstSize: 20
tracing:
  enabled: true
  sampleRatio: 0.5
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 7071 || cfg.Env != "prod" {
		t.Errorf("unexpected port/env: %d %q", cfg.Port, cfg.Env)
	}
	if cfg.Issuer != "https://tenant.eu.auth0.com/" || cfg.Audience != "https://api.example.com" {
		t.Errorf("unexpected issuer/audience: %q %q", cfg.Issuer, cfg.Audience)
	}
	if strings.Join(cfg.Algorithms, ",") != "RS256,ES256" {
		t.Errorf("unexpected algorithms: %v", cfg.Algorithms)
	}
	if cfg.JwksCache != JwksCacheRedis || !cfg.UsesRedis() {
		t.Errorf("expected redis cache, got %q", cfg.JwksCache)
	}

	var authCfg map[string]any
	if err := json.Unmarshal(cfg.AuthConfig, &authCfg); err != nil {
		t.Fatalf("authConfig should be JSON: %v", err)
	}
	if authCfg["token"] != "dev-token" {
		t.Errorf("unexpected authConfig: %s", cfg.AuthConfig)
	}

	esc := cfg.Functions["escalated-endpoint"]
	if got := esc.MethodsOr([]string{"GET", "POST"}); len(got) != 1 || got[0] != "GET" {
		t.Errorf("unexpected methods: %v", got)
	}
	if got := esc.ScopesOr([]string{"manage:secrets"}); len(got) != 2 {
		t.Errorf("unexpected scopes: %v", got)
	}
	test := cfg.Functions["test-endpoint"]
	if got := test.ScopesOr([]string{"x"}); len(got) != 0 {
		t.Errorf("explicit empty scopes should clear the default, got %v", got)
	}
	if got := test.MethodsOr([]string{"GET", "POST"}); len(got) != 2 {
		t.Errorf("methods should default, got %v", got)
	}
	missing := cfg.Functions["other"]
	if got := missing.ScopesOr([]string{"x"}); len(got) != 1 {
		t.Errorf("unset function should keep default scopes, got %v", got)
	}

	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.BurstSize != 20 {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 0.5 || cfg.Tracing.ServiceName != "fngate" {
		t.Errorf("unexpected tracing: %+v", cfg.Tracing)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// TestLoadConfigOptional_EnvOverrides tests that environment variables override file values
func TestLoadConfigOptional_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: 8080
issuerDomain: file.auth0.com
redisAddr: "localhost:6379"
redisPassword: "file-password"
jwksHttpTimeoutSeconds: 2
`)
	t.Setenv("PORT", "9090")
	t.Setenv("AUTH_ISSUER_DOMAIN", "env.auth0.com")
	t.Setenv("AUTH_JWKS_URL", "http://keys.local/jwks.json")
	t.Setenv("AUTH_ALGORITHMS", "RS256, PS256")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("REDIS_PASSWORD", "env-password")
	t.Setenv("JWKS_HTTP_TIMEOUT_SECONDS", "9")
	t.Setenv("RATE_LIMIT_RPM", "60")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("FNGATE_ENV", "staging")
	t.Setenv("CLIENT_RATE_LIMIT_RPM", "600")
	t.Setenv("CLIENT_RATE_LIMIT_BURST", "50")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg, err := LoadConfigOptional(path)
	if err != nil {
		t.Fatalf("LoadConfigOptional should not error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Expected Port=9090 from env, got %d", cfg.Port)
	}
	if cfg.IssuerDomain != "env.auth0.com" || cfg.JwksURL != "http://keys.local/jwks.json" {
		t.Errorf("unexpected issuer overrides: %q %q", cfg.IssuerDomain, cfg.JwksURL)
	}
	if strings.Join(cfg.Algorithms, ",") != "RS256,PS256" {
		t.Errorf("unexpected algorithms: %v", cfg.Algorithms)
	}
	if cfg.RedisAddr != "env-redis:6380" || cfg.RedisPassword != "env-password" {
		t.Errorf("unexpected redis overrides: %q %q", cfg.RedisAddr, cfg.RedisPassword)
	}
	if cfg.JwksHTTPTimeoutSeconds != 9 {
		t.Errorf("Expected JwksHTTPTimeoutSeconds=9, got %d", cfg.JwksHTTPTimeoutSeconds)
	}
	if !cfg.RateLimit.Enabled() || !cfg.UsesRedis() {
		t.Errorf("expected rate limit enabled from env: %+v", cfg.RateLimit)
	}
	if cfg.Env != "staging" {
		t.Errorf("Expected Env=staging, got %q", cfg.Env)
	}
	if cfg.ClientRateLimit.RequestsPerMinute != 600 || cfg.ClientRateLimit.BurstSize != 50 {
		t.Errorf("unexpected client rate limit: %+v", cfg.ClientRateLimit)
	}
	if strings.Join(cfg.TrustedProxies, ",") != "10.0.0.0/8,192.168.1.1" {
		t.Errorf("unexpected trusted proxies: %v", cfg.TrustedProxies)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"no issuer", func(c *Config) { c.IssuerDomain = ""; c.JwksURL = "" }, "issuerDomain or jwksUrl is required"},
		{"static needs no issuer", func(c *Config) { c.IssuerDomain = ""; c.AuthProvider = "static" }, ""},
		{"bad jwks url", func(c *Config) { c.JwksURL = "ftp://keys" }, "jwksUrl must be a valid http(s) URL"},
		{"symmetric alg", func(c *Config) { c.Algorithms = []string{"HS256"} }, `algorithm "HS256"`},
		{"none alg", func(c *Config) { c.Algorithms = []string{"none"} }, `algorithm "none"`},
		{"bad cache", func(c *Config) { c.JwksCache = "memcached" }, "jwksCache must be memory or redis"},
		{"bad method", func(c *Config) {
			c.Functions = map[string]FunctionConfig{"f": {Methods: []string{"FETCH"}}}
		}, `functions.f: unknown method "FETCH"`},
		{"empty methods", func(c *Config) {
			c.Functions = map[string]FunctionConfig{"f": {Methods: []string{}}}
		}, "functions.f.methods must not be empty"},
		{"bad scope", func(c *Config) {
			c.Functions = map[string]FunctionConfig{"f": {RequiredScopes: []string{"a b"}}}
		}, `functions.f: invalid scope "a b"`},
		{"negative client limit", func(c *Config) { c.ClientRateLimit.BurstSize = -1 }, "rateLimit values must not be negative"},
		{"bad sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sampleRatio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if !strings.HasPrefix(err.Error(), "config validation failed: ") {
				t.Fatalf("unexpected error format: %v", err)
			}
		})
	}
}

func TestFunctionConfigScopesBuiltInGo(t *testing.T) {
	set := FunctionConfig{RequiredScopes: []string{"read:data"}}
	if got := set.ScopesOr(nil); len(got) != 1 || got[0] != "read:data" {
		t.Errorf("scopes set in code must override the default, got %v", got)
	}
	cleared := FunctionConfig{RequiredScopes: []string{}}
	if got := cleared.ScopesOr([]string{"manage:secrets"}); len(got) != 0 {
		t.Errorf("empty scopes must clear the default, got %v", got)
	}
	var unset FunctionConfig
	if got := unset.ScopesOr([]string{"manage:secrets"}); len(got) != 1 {
		t.Errorf("unset scopes must keep the default, got %v", got)
	}
}
