package transcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read was served from the cache namespace ns.
	CacheHit(ns string)
	// A read missed and the producer ran.
	CacheMiss(ns string)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors (snapshot or bump).
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during Forget (likely backend outage).
	InvalidateOutage(key string, bumpErr, delErr error)

	// A key could not be registered with (or drained from) its tracker.
	// A key that failed to register is served but not cached.
	TrackError(ns string, err error)

	// The invalidation sweep after a committed write did not fully succeed.
	SweepFailed(err error)

	// The existence check passed but the unique constraint rejected the
	// insert: a concurrent writer took (key, locale) first.
	DuplicateRace(key, locale string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string)                       {}
func (NopHooks) CacheMiss(string)                      {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) GenSnapshotError(string, error)        {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) TrackError(string, error)              {}
func (NopHooks) SweepFailed(error)                     {}
func (NopHooks) DuplicateRace(string, string)          {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) CacheHit(ns string) {
	for _, h := range m {
		h.CacheHit(ns)
	}
}

func (m MultiHooks) CacheMiss(ns string) {
	for _, h := range m {
		h.CacheMiss(ns)
	}
}

func (m MultiHooks) SelfHeal(storageKey, reason string) {
	for _, h := range m {
		h.SelfHeal(storageKey, reason)
	}
}

func (m MultiHooks) ProviderSetRejected(storageKey string) {
	for _, h := range m {
		h.ProviderSetRejected(storageKey)
	}
}

func (m MultiHooks) GenSnapshotError(storageKey string, err error) {
	for _, h := range m {
		h.GenSnapshotError(storageKey, err)
	}
}

func (m MultiHooks) GenBumpError(storageKey string, err error) {
	for _, h := range m {
		h.GenBumpError(storageKey, err)
	}
}

func (m MultiHooks) InvalidateOutage(key string, bumpErr, delErr error) {
	for _, h := range m {
		h.InvalidateOutage(key, bumpErr, delErr)
	}
}

func (m MultiHooks) TrackError(ns string, err error) {
	for _, h := range m {
		h.TrackError(ns, err)
	}
}

func (m MultiHooks) SweepFailed(err error) {
	for _, h := range m {
		h.SweepFailed(err)
	}
}

func (m MultiHooks) DuplicateRace(key, locale string) {
	for _, h := range m {
		h.DuplicateRace(key, locale)
	}
}
