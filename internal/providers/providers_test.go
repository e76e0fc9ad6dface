package providers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisProvider(t *testing.T) {
	client := NewRedisProvider("localhost:6379", "password")
	if client == nil {
		t.Fatal("Expected redis client to be non-nil")
	}
	defer client.Close()

	if client.Options().Password != "password" {
		t.Fatalf("expected password to be set")
	}
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisProvider(mr.Addr(), "")
	defer client.Close()

	if err := Ping(context.Background(), client); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if err := Ping(context.Background(), client); err == nil {
		t.Fatal("expected ping to fail once redis is gone")
	}

	if err := Ping(context.Background(), nil); err != nil {
		t.Fatalf("nil client should be a no-op, got %v", err)
	}
}
