package static

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/osvaldoandrade/fngate/pkg/auth"
)

func TestStaticVerifier(t *testing.T) {
	raw := json.RawMessage(`{"token":"t-1","subject":"s-1","scopes":["manage:secrets","read:data"],"claims":{"email":"e@local","sub":"ignored"}}`)
	v, err := NewVerifierFromJSON(raw)
	if err != nil {
		t.Fatalf("NewVerifierFromJSON: %v", err)
	}

	token, err := v.Verify(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if token.Subject() != "s-1" {
		t.Fatalf("expected subject s-1, got %q", token.Subject())
	}
	if token.StringClaim("email") != "e@local" {
		t.Fatalf("expected email e@local, got %q", token.StringClaim("email"))
	}
	if !token.Scopes.Has("manage:secrets") {
		t.Fatalf("expected scope present")
	}
	if token.ScopeClaim() != "manage:secrets read:data" {
		t.Fatalf("expected scope claim, got %v", token.ScopeClaim())
	}

	if _, err := v.Verify(context.Background(), "wrong"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong token, got %v", err)
	}
}

func TestStaticVerifier_StringConfig(t *testing.T) {
	v, err := NewVerifierFromJSON(json.RawMessage(`"t-2"`))
	if err != nil {
		t.Fatalf("NewVerifierFromJSON: %v", err)
	}
	token, err := v.Verify(context.Background(), "t-2")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if token.ScopeClaim() != nil {
		t.Fatalf("expected no scope claim, got %v", token.ScopeClaim())
	}
}

func TestStaticVerifier_InvalidConfig(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"token":"  "}`, `{"token":`} {
		if _, err := NewVerifierFromJSON(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected error for config %q", raw)
		}
	}
}

func TestStaticProviderRegistered(t *testing.T) {
	v, err := auth.NewVerifier(auth.ProviderConfig{Type: "static", Config: json.RawMessage(`"dev-token"`)})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if _, err := v.Verify(context.Background(), "dev-token"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
