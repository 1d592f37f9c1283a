package lru

import (
	"context"
	"testing"
	"time"
)

func TestLRUProviderRoundTripAndEviction(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{Size: 2, TTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	for _, k := range []string{"a", "b", "c"} {
		if ok, err := p.Set(ctx, k, []byte(k), 1, 0); err != nil || !ok {
			t.Fatalf("Set %s: ok=%v err=%v", k, ok, err)
		}
	}
	if _, ok, _ := p.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	if b, ok, _ := p.Get(ctx, "c"); !ok || string(b) != "c" {
		t.Fatalf("expected c, got %q ok=%v", b, ok)
	}
	if err := p.Del(ctx, "c"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "never-set"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "c"); ok {
		t.Fatalf("c should be gone")
	}
}

func TestLRUProviderRejectsZeroSize(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
