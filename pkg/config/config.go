package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/osvaldoandrade/fngate/internal/ratelimit"
	"github.com/osvaldoandrade/fngate/pkg/auth/jwks"

	"gopkg.in/yaml.v3"
)

const (
	DefaultIssuerDomain = "bd-450.au.auth0.com"

	JwksCacheMemory = "memory"
	JwksCacheRedis  = "redis"
)

// FunctionConfig overrides the mounting of one protected function.
type FunctionConfig struct {
	Methods        []string `yaml:"methods"`
	// nil keeps the built-in default, an empty list clears it
	RequiredScopes []string `yaml:"requiredScopes"`
}

// ScopesOr returns the configured required scopes, or def when none were set.
func (f FunctionConfig) ScopesOr(def []string) []string {
	if f.RequiredScopes != nil {
		return f.RequiredScopes
	}
	return def
}

// MethodsOr returns the configured methods upper-cased, or def when none were set.
func (f FunctionConfig) MethodsOr(def []string) []string {
	if len(f.Methods) == 0 {
		return def
	}
	out := make([]string, 0, len(f.Methods))
	for _, m := range f.Methods {
		out = append(out, strings.ToUpper(strings.TrimSpace(m)))
	}
	return out
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port      int    `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	// TrustedProxies may set the client address through X-Forwarded-For.
	// Empty means the socket peer is the client.
	TrustedProxies []string `yaml:"trustedProxies"`

	IssuerDomain            string   `yaml:"issuerDomain"`
	JwksURL                 string   `yaml:"jwksUrl"`
	Issuer                  string   `yaml:"issuer"`
	Audience                string   `yaml:"audience"`
	Algorithms              []string `yaml:"algorithms"`
	AllowedClockSkewSeconds int      `yaml:"allowedClockSkewSeconds"`
	JwksCacheTTLSeconds     int      `yaml:"jwksCacheTtlSeconds"`
	JwksHTTPTimeoutSeconds  int      `yaml:"jwksHttpTimeoutSeconds"`
	JwksMinRefreshSeconds   int      `yaml:"jwksMinRefreshSeconds"`
	JwksCache               string   `yaml:"jwksCache"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// AuthProvider selects a registered verifier; AuthConfig is handed to it
	// verbatim. The jwks provider is built from the fields above instead.
	AuthProvider string          `yaml:"authProvider"`
	AuthConfig   json.RawMessage `yaml:"-"`

	Functions map[string]FunctionConfig `yaml:"functions"`

	// RateLimit applies per presented credential, ClientRateLimit per client
	// address regardless of credential.
	RateLimit       ratelimit.Bucket `yaml:"rateLimit"`
	ClientRateLimit ratelimit.Bucket `yaml:"clientRateLimit"`
	Tracing         TracingConfig    `yaml:"tracing"`
}

// fileConfig captures authConfig as an arbitrary YAML tree.
type fileConfig struct {
	Config     `yaml:",inline"`
	AuthConfig map[string]interface{} `yaml:"authConfig"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	c, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

// LoadConfigOptional loads filePath when it exists; an empty path or a
// missing file yields defaults plus environment overrides.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	c := &Config{}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

func parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	c := fc.Config
	if fc.AuthConfig != nil {
		raw, err := json.Marshal(fc.AuthConfig)
		if err != nil {
			return nil, fmt.Errorf("authConfig: %w", err)
		}
		c.AuthConfig = raw
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("PORT", &c.Port)
	setString("FNGATE_ENV", &c.Env)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.TrustedProxies = splitList(v)
	}
	setString("AUTH_ISSUER_DOMAIN", &c.IssuerDomain)
	setString("AUTH_JWKS_URL", &c.JwksURL)
	setString("AUTH_ISSUER", &c.Issuer)
	setString("AUTH_AUDIENCE", &c.Audience)
	if v := os.Getenv("AUTH_ALGORITHMS"); v != "" {
		c.Algorithms = splitList(v)
	}
	setInt("ALLOWED_CLOCK_SKEW_SECONDS", &c.AllowedClockSkewSeconds)
	setInt("JWKS_CACHE_TTL_SECONDS", &c.JwksCacheTTLSeconds)
	setInt("JWKS_HTTP_TIMEOUT_SECONDS", &c.JwksHTTPTimeoutSeconds)
	setInt("JWKS_MIN_REFRESH_SECONDS", &c.JwksMinRefreshSeconds)
	setString("JWKS_CACHE", &c.JwksCache)
	setString("REDIS_ADDR", &c.RedisAddr)
	setString("REDIS_PASSWORD", &c.RedisPassword)
	setString("AUTH_PROVIDER", &c.AuthProvider)
	setInt("RATE_LIMIT_RPM", &c.RateLimit.RequestsPerMinute)
	setInt("RATE_LIMIT_BURST", &c.RateLimit.BurstSize)
	setInt("CLIENT_RATE_LIMIT_RPM", &c.ClientRateLimit.RequestsPerMinute)
	setInt("CLIENT_RATE_LIMIT_BURST", &c.ClientRateLimit.BurstSize)

	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_ENABLED")); v != "" {
		c.Tracing.Enabled = parseBool(v)
	}
	setString("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		c.Tracing.OTLPInsecure = parseBool(v)
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Tracing.SampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.IssuerDomain == "" && c.JwksURL == "" {
		c.IssuerDomain = DefaultIssuerDomain
	}
	if len(c.Algorithms) == 0 {
		c.Algorithms = []string{"RS256"}
	}
	if c.AllowedClockSkewSeconds < 0 {
		c.AllowedClockSkewSeconds = 0
	}
	if c.JwksCacheTTLSeconds <= 0 {
		c.JwksCacheTTLSeconds = 600
	}
	if c.JwksHTTPTimeoutSeconds <= 0 {
		c.JwksHTTPTimeoutSeconds = 5
	}
	if c.JwksMinRefreshSeconds <= 0 {
		c.JwksMinRefreshSeconds = 30
	}
	if c.JwksCache == "" {
		c.JwksCache = JwksCacheMemory
	}
	c.JwksCache = strings.ToLower(strings.TrimSpace(c.JwksCache))
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.AuthProvider == "" {
		c.AuthProvider = "jwks"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "fngate"
	}
}

// UsesRedis reports whether any enabled component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.JwksCache == JwksCacheRedis || c.RateLimitEnabled()
}

// RateLimitEnabled reports whether either rate limit is configured.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit.Enabled() || c.ClientRateLimit.Enabled()
}

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true,
}

func (c *Config) Validate() error {
	var errs []string

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}

	if strings.EqualFold(c.AuthProvider, "jwks") {
		if strings.TrimSpace(c.IssuerDomain) == "" && strings.TrimSpace(c.JwksURL) == "" {
			errs = append(errs, "issuerDomain or jwksUrl is required")
		}
		if c.JwksURL != "" {
			u, err := url.Parse(c.JwksURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, "jwksUrl must be a valid http(s) URL")
			}
		}
	}
	for _, alg := range c.Algorithms {
		if !jwks.IsSupportedAlgorithm(alg) {
			errs = append(errs, fmt.Sprintf("algorithm %q is not an asymmetric JWS algorithm", alg))
		}
	}
	if c.JwksCache != JwksCacheMemory && c.JwksCache != JwksCacheRedis {
		errs = append(errs, "jwksCache must be memory or redis")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.BurstSize < 0 ||
		c.ClientRateLimit.RequestsPerMinute < 0 || c.ClientRateLimit.BurstSize < 0 {
		errs = append(errs, "rateLimit values must not be negative")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, "tracing.sampleRatio must be between 0 and 1")
	}

	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fn := c.Functions[name]
		if fn.Methods != nil && len(fn.MethodsOr(nil)) == 0 {
			errs = append(errs, fmt.Sprintf("functions.%s.methods must not be empty", name))
		}
		for _, m := range fn.MethodsOr(nil) {
			if !validMethods[m] {
				errs = append(errs, fmt.Sprintf("functions.%s: unknown method %q", name, m))
			}
		}
		for _, s := range fn.RequiredScopes {
			if strings.TrimSpace(s) == "" || strings.Contains(s, " ") {
				errs = append(errs, fmt.Sprintf("functions.%s: invalid scope %q", name, s))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
