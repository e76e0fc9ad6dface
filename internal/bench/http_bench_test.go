package bench

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/osvaldoandrade/fngate/pkg/app"
	"github.com/osvaldoandrade/fngate/pkg/config"
)

const benchKid = "bench-kid"

type benchEnv struct {
	app   *app.Application
	admin string
	user  string
}

func newBenchApp(b *testing.B, mutate func(*config.Config)) *benchEnv {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		b.Fatalf("rsa key gen: %v", err)
	}
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"kid": benchKid,
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   "AQAB",
			}},
		})
	}))
	b.Cleanup(jwksSrv.Close)

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	b.Cleanup(mr.Close)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		b.Fatalf("config: %v", err)
	}
	cfg.LogLevel = "error"
	cfg.JwksURL = jwksSrv.URL
	cfg.RedisAddr = mr.Addr()
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.NewApplication(cfg, app.WithLogOutput(io.Discard))
	if err != nil {
		b.Fatalf("app init: %v", err)
	}
	app.SetupMappings(a)
	b.Cleanup(func() { _ = a.TracingShutdown(context.Background()) })

	sign := func(scope string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub":   "bench",
			"scope": scope,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = benchKid
		s, err := tok.SignedString(key)
		if err != nil {
			b.Fatalf("sign: %v", err)
		}
		return s
	}
	return &benchEnv{app: a, admin: sign("manage:secrets"), user: sign("read:data")}
}

func doRequest(b *testing.B, h http.Handler, method, path, bearerToken string) int {
	b.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func benchStatus(b *testing.B, env *benchEnv, path, token string, want int) {
	// warm the key cache outside the timer
	if status := doRequest(b, env.app.Engine, http.MethodGet, path, token); status != want {
		b.Fatalf("warmup status %d, want %d", status, want)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if status := doRequest(b, env.app.Engine, http.MethodGet, path, token); status != want {
			b.Fatalf("status %d, want %d", status, want)
		}
	}
}

func BenchmarkHTTP_AuthorizedEscalated(b *testing.B) {
	env := newBenchApp(b, nil)
	benchStatus(b, env, "/api/escalated-endpoint", env.admin, http.StatusOK)
}

func BenchmarkHTTP_Forbidden(b *testing.B) {
	env := newBenchApp(b, nil)
	benchStatus(b, env, "/api/escalated-endpoint", env.user, http.StatusForbidden)
}

func BenchmarkHTTP_MissingCredential(b *testing.B) {
	env := newBenchApp(b, nil)
	benchStatus(b, env, "/api/test-endpoint", "", http.StatusUnauthorized)
}

func BenchmarkHTTP_RateLimitedPath(b *testing.B) {
	env := newBenchApp(b, func(c *config.Config) {
		c.RateLimit.RequestsPerMinute = 1 << 30
		c.RateLimit.BurstSize = 1 << 30
	})
	benchStatus(b, env, "/api/test-endpoint", env.user, http.StatusOK)
}
