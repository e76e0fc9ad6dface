package app

import (
	"net/http"

	"github.com/osvaldoandrade/fngate/internal/controllers"
	"github.com/osvaldoandrade/fngate/internal/middleware"
	"github.com/osvaldoandrade/fngate/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Function is one protected serverless function.
type Function struct {
	Name           string
	Methods        []string
	RequiredScopes []string
	Handler        middleware.TokenHandler
}

var defaultMethods = []string{http.MethodGet, http.MethodPost}

// Functions returns the built-in functions with per-function overrides from
// configuration applied.
func Functions(app *Application) []Function {
	builtin := []Function{
		{
			Name:    "test-endpoint",
			Handler: controllers.NewScopeEchoController(false).Handle,
		},
		{
			Name:           "escalated-endpoint",
			RequiredScopes: []string{"manage:secrets"},
			Handler:        controllers.NewScopeEchoController(true).Handle,
		},
	}
	for i := range builtin {
		fc := app.Config.Functions[builtin[i].Name]
		builtin[i].Methods = fc.MethodsOr(defaultMethods)
		builtin[i].RequiredScopes = fc.ScopesOr(builtin[i].RequiredScopes)
	}
	return builtin
}

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController().Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := app.Engine.Group("/api")
	for _, fn := range Functions(app) {
		handlers := []gin.HandlerFunc{
			middleware.RateLimitFunction(app.RateLimiter, fn.Name, app.Config.RateLimit, app.Config.ClientRateLimit),
			middleware.Authorized(app.Verifier, auth.RequireScopes(fn.RequiredScopes...), fn.Handler),
		}
		for _, method := range fn.Methods {
			api.Handle(method, "/"+fn.Name, handlers...)
		}
	}
}
