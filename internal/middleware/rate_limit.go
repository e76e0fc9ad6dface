package middleware

import (
	"net/http"
	"strconv"

	"github.com/osvaldoandrade/fngate/internal/metrics"
	"github.com/osvaldoandrade/fngate/internal/ratelimit"
	"github.com/osvaldoandrade/fngate/pkg/auth"

	"github.com/gin-gonic/gin"
)

// RateLimitFunction limits calls to one function. perClient is keyed by the
// client address and applies to every request, so unverified or forged
// credentials share their sender's allowance. perCredential is keyed by the
// presented bearer credential; requests without a well-formed bearer skip it
// and are rejected by the authorizing middleware.
func RateLimitFunction(lim ratelimit.Limiter, function string, perCredential, perClient ratelimit.Bucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lim == nil {
			c.Next()
			return
		}

		if perClient.Enabled() && !allowRequest(c, lim, "client", function+":client", c.ClientIP(), function, perClient) {
			return
		}

		if perCredential.Enabled() {
			if token, err := auth.ParseBearer(c.GetHeader("Authorization")); err == nil &&
				!allowRequest(c, lim, "function", function, token, function, perCredential) {
				return
			}
		}
		c.Next()
	}
}

// allowRequest consumes one token from subject's bucket and writes the 429
// when it is empty.
func allowRequest(c *gin.Context, lim ratelimit.Limiter, kind, scope, subject, function string, bucket ratelimit.Bucket) bool {
	dec, err := lim.Allow(c.Request.Context(), scope, subject, bucket)
	if err != nil {
		// Fail open on Redis errors.
		LoggerFrom(c).Warn("rate limit check failed", "function", function, "limit", kind, "err", err)
		return true
	}
	if dec.Allowed {
		return true
	}

	retryAfterSeconds := int(dec.RetryAfter.Seconds())
	if retryAfterSeconds <= 0 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	metrics.RateLimitHitsTotal.WithLabelValues(kind, function).Inc()
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":             "rate limit exceeded",
		"function":          function,
		"retryAfterSeconds": retryAfterSeconds,
	})
	return false
}
