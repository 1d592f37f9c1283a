package util

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// Fingerprint returns prefix + ":" + the first 32 hex chars of a SHA-256 over
// the non-empty fields, sorted by name. Values are length-prefixed so that
// separators inside a value cannot collide with another field set.
func Fingerprint(prefix string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name, v := range fields {
		if v == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		v := fields[name]
		h.Write([]byte(name))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.Itoa(len(v))))
		h.Write([]byte{':'})
		h.Write([]byte(v))
		h.Write([]byte{';'})
	}
	sum := h.Sum(nil)
	return prefix + ":" + hex.EncodeToString(sum[:16])
}
