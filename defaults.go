package transcache

import "time"

const (
	DefaultListTTL     = 300 * time.Second
	DefaultRecordTTL   = 300 * time.Second
	DefaultExportTTL   = 600 * time.Second
	DefaultMaxListRows = 1000
	DefaultExportChunk = 1000
	DefaultNamespace   = "transcache"

	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
