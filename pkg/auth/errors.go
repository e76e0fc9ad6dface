package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrMissingCredential   = errors.New("missing Authorization header")
	ErrMalformedCredential = errors.New("invalid Authorization format")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInsufficientScope   = errors.New("insufficient scope")
)

// Response bodies. These strings are part of the HTTP contract.
const (
	BodyUnauthorised = "Unauthorised"
	BodyInvalidToken = "Invalid token"
	BodyForbidden    = "Forbidden"
)

// VerificationError is the single failure a Verifier reports. The cause is
// kept for logs and tests; callers only ever see "invalid token".
type VerificationError struct {
	Cause error
}

// Invalid wraps cause as a VerificationError.
func Invalid(cause error) error {
	if cause == nil {
		cause = ErrInvalidToken
	}
	var ve *VerificationError
	if errors.As(cause, &ve) {
		return ve
	}
	return &VerificationError{Cause: cause}
}

func (e *VerificationError) Error() string {
	if e.Cause == nil || e.Cause == ErrInvalidToken {
		return ErrInvalidToken.Error()
	}
	return ErrInvalidToken.Error() + ": " + e.Cause.Error()
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// ParseBearer extracts the token from an Authorization header value. The
// value is split on the first space; the scheme must be exactly "Bearer" and
// the remainder non-empty.
func ParseBearer(authHeader string) (string, error) {
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || token == "" {
		return "", ErrMalformedCredential
	}
	return token, nil
}

// Status maps an authentication error to its HTTP status and body.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInsufficientScope):
		return http.StatusForbidden, BodyForbidden
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, BodyInvalidToken
	default:
		return http.StatusUnauthorized, BodyUnauthorised
	}
}

// Respond aborts the gin chain with the plain-text response for err.
func Respond(c *gin.Context, err error) {
	status, body := Status(err)
	c.String(status, body)
	c.Abort()
}
