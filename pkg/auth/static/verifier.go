package static

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/osvaldoandrade/fngate/pkg/auth"
)

type verifierConfig struct {
	// Token is the exact bearer token value expected by this verifier.
	Token string `json:"token"`

	// Subject is returned as the sub claim.
	Subject string `json:"subject,omitempty"`

	// Scopes is returned as the space-delimited scope claim.
	Scopes []string `json:"scopes,omitempty"`

	// Claims are merged into the payload (sub and scope win).
	Claims map[string]any `json:"claims,omitempty"`
}

type verifier struct {
	cfg verifierConfig
}

// NewVerifierFromJSON builds a dev-only verifier that accepts a single
// configured token.
func NewVerifierFromJSON(raw json.RawMessage) (auth.Verifier, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg verifierConfig
	// Allow config to be either:
	// - JSON object: {"token":"...","subject":"..."}
	// - JSON string: "token-value"
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Token); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	}

	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return nil, errors.New("static auth: token is required")
	}
	cfg.Subject = strings.TrimSpace(cfg.Subject)
	if cfg.Subject == "" {
		cfg.Subject = "static"
	}

	return &verifier{cfg: cfg}, nil
}

func (v *verifier) Verify(_ context.Context, token string) (*auth.DecodedToken, error) {
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.cfg.Token)) != 1 {
		return nil, auth.Invalid(errors.New("static token mismatch"))
	}

	payload := make(map[string]any, len(v.cfg.Claims)+2)
	for k, val := range v.cfg.Claims {
		payload[k] = val
	}
	payload["sub"] = v.cfg.Subject
	if len(v.cfg.Scopes) > 0 {
		payload["scope"] = strings.Join(v.cfg.Scopes, " ")
	}

	return &auth.DecodedToken{
		Header:  map[string]any{"alg": "static", "typ": "JWT"},
		Payload: payload,
		Scopes:  auth.NewScopeSet(v.cfg.Scopes...),
	}, nil
}

func init() {
	auth.RegisterProvider("static", NewVerifierFromJSON)
}

func fmtError(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.New(msg + ": " + err.Error())
}
