package util

import (
	"strings"
	"testing"
)

func TestFingerprintIgnoresEmptyAndOrder(t *testing.T) {
	a := Fingerprint("list", map[string]string{"locale": "en", "tag": "", "key": "home"})
	b := Fingerprint("list", map[string]string{"key": "home", "locale": "en"})
	if a != b {
		t.Fatalf("expected equal fingerprints, got %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "list:") || len(a) != len("list:")+32 {
		t.Fatalf("unexpected shape %q", a)
	}
}

func TestFingerprintDistinguishesFields(t *testing.T) {
	cases := []map[string]string{
		{},
		{"locale": "en"},
		{"tag": "en"},
		{"key": "a;b"},
		{"key": "a", "value": "b"},
		{"key": "a=1:b"},
	}
	seen := make(map[string]int)
	for i, f := range cases {
		fp := Fingerprint("list", f)
		if j, dup := seen[fp]; dup {
			t.Fatalf("cases %d and %d collide: %q", j, i, fp)
		}
		seen[fp] = i
	}
}
