package jwks

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// URLForDomain returns the well-known key set location of an issuer domain.
// A bare domain gets the https scheme.
func URLForDomain(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	if domain == "" {
		return ""
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return domain + "/.well-known/jwks.json"
}

type jsonWebKey struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Use string   `json:"use"`
	Alg string   `json:"alg"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	Crv string   `json:"crv"`
	X   string   `json:"x"`
	Y   string   `json:"y"`
	X5c []string `json:"x5c"`
}

type keySet struct {
	Keys []json.RawMessage `json:"keys"`
}

// Key is a parsed signing key from a key set.
type Key struct {
	ID        string
	Type      string
	Algorithm string
	PublicKey crypto.PublicKey
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// ParseKeySet decodes a JWKS document into its usable signing keys, keyed by
// kid. Keys that are not for signatures or cannot be parsed are skipped.
func ParseKeySet(body []byte) (map[string]Key, error) {
	var set keySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	if set.Keys == nil {
		return nil, errors.New("failed to parse JWKS: missing keys")
	}

	keys := make(map[string]Key, len(set.Keys))
	for _, raw := range set.Keys {
		var jwk jsonWebKey
		if err := json.Unmarshal(raw, &jwk); err != nil {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		pub, err := jwk.publicKey()
		if err != nil {
			continue
		}
		keys[jwk.Kid] = Key{ID: jwk.Kid, Type: jwk.Kty, Algorithm: jwk.Alg, PublicKey: pub}
	}
	return keys, nil
}

func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		if k.N != "" && k.E != "" {
			return parseRSAPublicKey(k.N, k.E)
		}
	case "EC":
		if k.X != "" && k.Y != "" {
			return parseECPublicKey(k.Crv, k.X, k.Y)
		}
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
	if len(k.X5c) > 0 {
		return parseCertificateKey(k.X5c[0])
	}
	return nil, fmt.Errorf("key %q has no key material", k.Kid)
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := segmentParser.DecodeSegment(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := segmentParser.DecodeSegment(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("invalid RSA key parameters")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func parseECPublicKey(crv, xStr, yStr string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", crv)
	}

	xBytes, err := segmentParser.DecodeSegment(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	yBytes, err := segmentParser.DecodeSegment(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	x := new(big.Int).SetBytes(xBytes)
	y := new(big.Int).SetBytes(yBytes)
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("point is not on curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// x5c entries are standard (not URL) base64 DER certificates.
func parseCertificateKey(encoded string) (crypto.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x5c: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse x5c: %w", err)
	}
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return pub, nil
	}
	return nil, fmt.Errorf("unsupported certificate key %T", cert.PublicKey)
}
