package promhook

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg)

	h.CacheHit("tc:list")
	h.CacheHit("tc:list")
	h.CacheMiss("tc:record")
	h.SelfHeal("k", "corrupt")
	h.GenBumpError("k", errors.New("x"))
	h.DuplicateRace("a", "en")

	if got := testutil.ToFloat64(h.hits.WithLabelValues("tc:list")); got != 2 {
		t.Fatalf("hits=%v", got)
	}
	if got := testutil.ToFloat64(h.misses.WithLabelValues("tc:record")); got != 1 {
		t.Fatalf("misses=%v", got)
	}
	if got := testutil.ToFloat64(h.selfHeals.WithLabelValues("corrupt")); got != 1 {
		t.Fatalf("self heals=%v", got)
	}
	if got := testutil.ToFloat64(h.genErrors.WithLabelValues("bump")); got != 1 {
		t.Fatalf("gen errors=%v", got)
	}
	if got := testutil.ToFloat64(h.dupRaces); got != 1 {
		t.Fatalf("races=%v", got)
	}

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected registered series")
	}
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
