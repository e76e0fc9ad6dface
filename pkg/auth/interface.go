package auth

import (
	"context"
	"crypto"
	"time"
)

// DecodedToken is the result of a successful verification: the JOSE header,
// the claims payload and the raw signature segment. Scopes is parsed from the
// payload's scope claim once, at verification time; verifiers may leave it nil.
type DecodedToken struct {
	Header    map[string]interface{}
	Payload   map[string]interface{}
	Signature string
	Scopes    ScopeSet
}

// KeyID returns the kid header, or "" when absent.
func (t *DecodedToken) KeyID() string {
	if t == nil {
		return ""
	}
	kid, _ := t.Header["kid"].(string)
	return kid
}

// Algorithm returns the alg header.
func (t *DecodedToken) Algorithm() string {
	if t == nil {
		return ""
	}
	alg, _ := t.Header["alg"].(string)
	return alg
}

// Subject returns the sub claim.
func (t *DecodedToken) Subject() string {
	return t.StringClaim("sub")
}

// StringClaim returns a string-valued claim from the payload.
func (t *DecodedToken) StringClaim(key string) string {
	if t == nil {
		return ""
	}
	if v, ok := t.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ScopeClaim returns the scope claim exactly as it appeared in the payload,
// nil when absent.
func (t *DecodedToken) ScopeClaim() interface{} {
	if t == nil {
		return nil
	}
	return t.Payload["scope"]
}

// GrantedScopes returns Scopes, or parses the payload's scope claim when the
// verifier left Scopes unset.
func (t *DecodedToken) GrantedScopes() ScopeSet {
	if t == nil {
		return ScopeSet{}
	}
	if t.Scopes != nil {
		return t.Scopes
	}
	return ScopesFromClaim(t.Payload["scope"])
}

// ExpiresAt returns the exp claim as a time, zero when absent.
func (t *DecodedToken) ExpiresAt() time.Time {
	if t == nil {
		return time.Time{}
	}
	if exp, ok := t.Payload["exp"].(float64); ok {
		return time.Unix(int64(exp), 0)
	}
	return time.Time{}
}

// Verifier verifies bearer tokens. Implementations must return a
// *VerificationError (errors.Is(err, ErrInvalidToken)) for every failure.
type Verifier interface {
	Verify(ctx context.Context, token string) (*DecodedToken, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*DecodedToken, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*DecodedToken, error) {
	return f(ctx, token)
}

//go:generate mockgen -destination=mocks/mock_auth.go -package=mocks . KeyResolver,Verifier

// KeyResolver resolves the public key a token's kid refers to.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// KeyResolverFunc adapts a function to the KeyResolver interface.
type KeyResolverFunc func(ctx context.Context, kid string) (crypto.PublicKey, error)

func (f KeyResolverFunc) ResolveKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	return f(ctx, kid)
}

// Config contains verifier configuration
type Config struct {
	IssuerDomain       string
	JwksURL            string
	Issuer             string
	Audience           string
	Algorithms         []string
	ClockSkew          time.Duration
	HTTPTimeout        time.Duration
	CacheTTL           time.Duration
	MinRefreshInterval time.Duration
}
