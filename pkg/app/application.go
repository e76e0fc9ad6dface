package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/osvaldoandrade/fngate/internal/middleware"
	"github.com/osvaldoandrade/fngate/internal/providers"
	"github.com/osvaldoandrade/fngate/internal/ratelimit"
	"github.com/osvaldoandrade/fngate/internal/tracing"
	"github.com/osvaldoandrade/fngate/pkg/auth"
	"github.com/osvaldoandrade/fngate/pkg/auth/jwks"
	"github.com/osvaldoandrade/fngate/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Logger          *slog.Logger
	Verifier        auth.Verifier
	RateLimiter     ratelimit.Limiter
	Redis           *redis.Client
	TracingShutdown func(context.Context) error

	logOutput io.Writer
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithVerifier replaces the verifier built from configuration.
func WithVerifier(verifier auth.Verifier) ApplicationOption {
	return func(app *Application) error {
		app.Verifier = verifier
		return nil
	}
}

// WithRedisClient supplies the Redis client used by the shared key cache
// and the rate limiter.
func WithRedisClient(rdb *redis.Client) ApplicationOption {
	return func(app *Application) error {
		app.Redis = rdb
		return nil
	}
}

// WithLogOutput redirects the service logger, stdout by default.
func WithLogOutput(w io.Writer) ApplicationOption {
	return func(app *Application) error {
		app.logOutput = w
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg, logOutput: os.Stdout}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	app.Logger = newLogger(cfg, app.logOutput)
	slog.SetDefault(app.Logger)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	app.TracingShutdown = shutdown

	if app.Redis == nil && cfg.UsesRedis() {
		app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
		if err := providers.Ping(context.Background(), app.Redis); err != nil {
			app.Logger.Warn("redis unavailable at startup", "err", err)
		}
	}
	if app.Redis != nil && cfg.RateLimitEnabled() {
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(app.Redis)
	}

	if app.Verifier == nil {
		verifier, err := newVerifier(cfg, app.Redis, app.Logger)
		if err != nil {
			return nil, fmt.Errorf("init verifier: %w", err)
		}
		app.Verifier = verifier
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(app.Logger),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
		middleware.MetricsMiddleware(),
		middleware.AccessLogMiddleware(),
	)
	app.Engine = engine

	app.Logger.Info("application initialized",
		"auth_provider", cfg.AuthProvider,
		"jwks_cache", cfg.JwksCache,
		"rate_limit", cfg.RateLimitEnabled(),
	)
	return app, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "fngate", "env", cfg.Env)
}

// newVerifier builds the jwks verifier from the typed configuration, or any
// other registered provider from authConfig.
func newVerifier(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (auth.Verifier, error) {
	if !strings.EqualFold(cfg.AuthProvider, "jwks") {
		return auth.NewVerifier(auth.ProviderConfig{Type: cfg.AuthProvider, Config: cfg.AuthConfig})
	}

	resolverOpts := []jwks.ResolverOption{jwks.WithLogger(logger)}
	if cfg.JwksCache == config.JwksCacheRedis && rdb != nil {
		resolverOpts = append(resolverOpts, jwks.WithKeyStore(jwks.NewRedisStore(rdb)))
	}

	v, err := jwks.NewVerifier(auth.Config{
		IssuerDomain:       cfg.IssuerDomain,
		JwksURL:            cfg.JwksURL,
		Issuer:             cfg.Issuer,
		Audience:           cfg.Audience,
		Algorithms:         cfg.Algorithms,
		ClockSkew:          time.Duration(cfg.AllowedClockSkewSeconds) * time.Second,
		HTTPTimeout:        time.Duration(cfg.JwksHTTPTimeoutSeconds) * time.Second,
		CacheTTL:           time.Duration(cfg.JwksCacheTTLSeconds) * time.Second,
		MinRefreshInterval: time.Duration(cfg.JwksMinRefreshSeconds) * time.Second,
	}, jwks.WithResolverOptions(resolverOpts...))
	if err != nil {
		return nil, err
	}
	return v, nil
}
