package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/fngate/internal/middleware"
	"github.com/osvaldoandrade/fngate/pkg/auth"

	"github.com/gin-gonic/gin"
)

type scopeEchoResponse struct {
	Escalated bool        `json:"escalated"`
	Scopes    interface{} `json:"scopes"`
}

// scopeEchoController answers with the caller's raw scope claim.
type scopeEchoController struct{ escalated bool }

func NewScopeEchoController(escalated bool) *scopeEchoController {
	return &scopeEchoController{escalated: escalated}
}

func (h *scopeEchoController) Handle(c *gin.Context, token *auth.DecodedToken) {
	middleware.LoggerFrom(c).Info(`Http function processed request for url "` + requestURL(c.Request) + `"`)
	c.JSON(http.StatusOK, scopeEchoResponse{
		Escalated: h.escalated,
		Scopes:    token.ScopeClaim(),
	})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
