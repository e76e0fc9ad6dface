package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/osvaldoandrade/fngate/pkg/auth"
)

// DefaultAlgorithms is the signing algorithm allow list used when none is
// configured.
var DefaultAlgorithms = []string{"RS256"}

var asymmetricAlgorithms = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"PS256": true, "PS384": true, "PS512": true,
	"ES256": true, "ES384": true, "ES512": true,
}

// IsSupportedAlgorithm reports whether alg may appear in an allow list.
// Symmetric and unsigned algorithms never may.
func IsSupportedAlgorithm(alg string) bool {
	return asymmetricAlgorithms[alg]
}

// Verifier verifies JWTs against keys resolved through an auth.KeyResolver.
type Verifier struct {
	resolver auth.KeyResolver
	parser   *jwt.Parser
}

// VerifierOption configures a Verifier
type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	resolver        auth.KeyResolver
	resolverOptions []ResolverOption
	now             func() time.Time
}

// WithKeyResolver injects the key resolver instead of building one from the
// configured key set URL.
func WithKeyResolver(resolver auth.KeyResolver) VerifierOption {
	return func(o *verifierOptions) { o.resolver = resolver }
}

// WithResolverOptions passes options to the resolver built by NewVerifier.
func WithResolverOptions(opts ...ResolverOption) VerifierOption {
	return func(o *verifierOptions) { o.resolverOptions = append(o.resolverOptions, opts...) }
}

// WithTimeFunc sets the clock used for exp/nbf checks.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) { o.now = now }
}

// NewVerifier creates a verifier. Unless WithKeyResolver is given, keys are
// resolved from cfg.JwksURL, or from the well-known location of
// cfg.IssuerDomain.
func NewVerifier(cfg auth.Config, opts ...VerifierOption) (*Verifier, error) {
	var o verifierOptions
	for _, opt := range opts {
		opt(&o)
	}

	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}
	for _, alg := range algs {
		if !IsSupportedAlgorithm(alg) {
			return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
		}
	}

	resolver := o.resolver
	if resolver == nil {
		jwksURL := cfg.JwksURL
		if jwksURL == "" {
			jwksURL = URLForDomain(cfg.IssuerDomain)
		}
		if jwksURL == "" {
			return nil, errors.New("issuerDomain or jwksURL is required")
		}
		r, err := NewResolver(jwksURL, cfg.CacheTTL, cfg.HTTPTimeout, cfg.MinRefreshInterval, o.resolverOptions...)
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	if o.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(o.now))
	}

	return &Verifier{
		resolver: resolver,
		parser:   jwt.NewParser(parserOpts...),
	}, nil
}

// Resolver returns the key resolver in use.
func (v *Verifier) Resolver() auth.KeyResolver {
	return v.resolver
}

// Verify checks the token's signature against the key named by its kid
// header, then exp and nbf when present. Every failure is reported as an
// auth.VerificationError.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*auth.DecodedToken, error) {
	token, err := v.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return v.resolver.ResolveKey(ctx, kid)
	})
	if err != nil {
		return nil, auth.Invalid(err)
	}
	if !token.Valid {
		return nil, auth.Invalid(nil)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, auth.Invalid(errors.New("invalid claims"))
	}

	return &auth.DecodedToken{
		Header:    token.Header,
		Payload:   map[string]interface{}(claims),
		Signature: tokenString[strings.LastIndexByte(tokenString, '.')+1:],
		Scopes:    auth.ScopesFromClaim(claims["scope"]),
	}, nil
}

type providerConfig struct {
	IssuerDomain       string   `json:"issuerDomain"`
	JwksURL            string   `json:"jwksUrl"`
	Issuer             string   `json:"issuer"`
	Audience           string   `json:"audience"`
	Algorithms         []string `json:"algorithms"`
	ClockSkewSeconds   int      `json:"clockSkewSeconds"`
	HTTPTimeoutSeconds int      `json:"httpTimeoutSeconds"`
	CacheTTLSeconds    int      `json:"cacheTtlSeconds"`
	MinRefreshSeconds  int      `json:"minRefreshSeconds"`
}

// NewVerifierFromJSON builds a verifier from a registry provider config.
func NewVerifierFromJSON(raw json.RawMessage) (auth.Verifier, error) {
	var pc providerConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &pc); err != nil {
			return nil, fmt.Errorf("jwks auth: invalid config: %w", err)
		}
	}
	minRefresh := DefaultMinRefreshInterval
	if pc.MinRefreshSeconds != 0 {
		minRefresh = time.Duration(pc.MinRefreshSeconds) * time.Second
	}
	v, err := NewVerifier(auth.Config{
		IssuerDomain:       pc.IssuerDomain,
		JwksURL:            pc.JwksURL,
		Issuer:             pc.Issuer,
		Audience:           pc.Audience,
		Algorithms:         pc.Algorithms,
		ClockSkew:          time.Duration(pc.ClockSkewSeconds) * time.Second,
		HTTPTimeout:        time.Duration(pc.HTTPTimeoutSeconds) * time.Second,
		CacheTTL:           time.Duration(pc.CacheTTLSeconds) * time.Second,
		MinRefreshInterval: minRefresh,
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func init() {
	auth.RegisterProvider("jwks", NewVerifierFromJSON)
}
