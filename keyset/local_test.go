package keyset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestLocalAddDrain(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	for _, k := range []string{"list:a", "id:1", "list:a"} {
		if err := s.Add(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", s.Len())
	}

	got, err := s.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "id:1" || got[1] != "list:a" {
		t.Fatalf("unexpected drain: %v", got)
	}
	if again, _ := s.Drain(ctx); len(again) != 0 {
		t.Fatalf("second drain should be empty, got %v", again)
	}
}

func TestLocalConcurrentAddNeverLost(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	const n = 500
	var wg sync.WaitGroup
	seen := make(map[string]int)
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = s.Add(ctx, fmt.Sprintf("k%d", i))
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			keys, _ := s.Drain(ctx)
			mu.Lock()
			for _, k := range keys {
				seen[k]++
			}
			mu.Unlock()
		}
	}()
	wg.Wait()

	rest, _ := s.Drain(ctx)
	for _, k := range rest {
		seen[k]++
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct keys across drains, got %d", n, len(seen))
	}
	for k, c := range seen {
		if c != 1 {
			t.Fatalf("key %s drained %d times", k, c)
		}
	}
}
