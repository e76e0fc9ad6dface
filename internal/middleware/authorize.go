package middleware

import (
	"github.com/osvaldoandrade/fngate/pkg/auth"

	"github.com/gin-gonic/gin"
)

const tokenKey = "decodedToken"

// TokenHandler is business logic that runs only after authentication and
// authorization succeeded.
type TokenHandler func(c *gin.Context, token *auth.DecodedToken)

// Authorized wraps handler with bearer token verification and the scope
// check of policy. The handler's response is left untouched; on failure the
// handler is never invoked.
func Authorized(verifier auth.Verifier, policy auth.Policy, handler TokenHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authorize(c, verifier, policy)
		if err != nil {
			auth.Respond(c, err)
			return
		}
		c.Set(tokenKey, token)
		handler(c, token)
	}
}

// RequireScopes is the chain form of Authorized: it aborts on failure and
// calls the next handler with the decoded token stored in the context.
func RequireScopes(verifier auth.Verifier, policy auth.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authorize(c, verifier, policy)
		if err != nil {
			auth.Respond(c, err)
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

// TokenFromContext returns the token stored by Authorized or RequireScopes.
func TokenFromContext(c *gin.Context) (*auth.DecodedToken, bool) {
	v, ok := c.Get(tokenKey)
	if !ok {
		return nil, false
	}
	token, ok := v.(*auth.DecodedToken)
	return token, ok && token != nil
}

func authorize(c *gin.Context, verifier auth.Verifier, policy auth.Policy) (*auth.DecodedToken, error) {
	values := c.Request.Header.Values("Authorization")
	if len(values) == 0 {
		return nil, auth.ErrMissingCredential
	}
	tokenString, err := auth.ParseBearer(values[0])
	if err != nil {
		return nil, err
	}
	if verifier == nil {
		return nil, auth.Invalid(nil)
	}

	token, err := verifier.Verify(c.Request.Context(), tokenString)
	if err != nil || token == nil {
		return nil, auth.Invalid(err)
	}

	if err := policy.Authorize(token); err != nil {
		return nil, err
	}
	return token, nil
}
