package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestRistrettoProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if _, err := p.Set(ctx, "id:1", []byte("v1"), 1, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p.Wait()

	b, ok, err := p.Get(ctx, "id:1")
	if err != nil || !ok || string(b) != "v1" {
		t.Fatalf("Get: b=%q ok=%v err=%v", b, ok, err)
	}

	if err := p.Del(ctx, "id:1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "id:1"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestRistrettoProviderInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}
