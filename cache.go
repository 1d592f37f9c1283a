package transcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/transcache/codec"
	gen "github.com/unkn0wn-root/transcache/genstore"
	"github.com/unkn0wn-root/transcache/internal/wire"
	"github.com/unkn0wn-root/transcache/keyset"
	pr "github.com/unkn0wn-root/transcache/provider"
)

type SetCostFunc func(storageKey string, raw []byte) int64

// Producer computes the value for a cache miss.
type Producer[V any] func(ctx context.Context) (V, error)

// CacheOptions configure one Cache. Namespace, Provider and Codec are
// required; others have sensible defaults.
type CacheOptions[V any] struct {
	// Required
	Namespace string // storage keys are "<Namespace>:<key>"
	Provider  pr.Provider
	Codec     c.Codec[V]

	GenStore       gen.GenStore  // nil => genstore.Local owned by the cache
	Tracker        keyset.KeySet // nil => keys are not registered; ForgetTracked is a no-op
	Logger         Logger        // if nil, NopLogger is used
	Hooks          Hooks         // if nil, NopHooks is used
	DefaultTTL     time.Duration // used when GetOrCompute gets ttl 0; 0 => 5m
	ComputeSetCost SetCostFunc   // default 1
	Disabled       bool          // every call runs the producer
}

// Cache is a read-through cache for values of type V with generation CAS on
// populate. Safe for concurrent use.
type Cache[V any] struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[V]
	gen            gen.GenStore
	ownGen         bool
	tracker        keyset.KeySet
	log            Logger
	hooks          Hooks
	enabled        bool
	defaultTTL     time.Duration
	computeSetCost SetCostFunc
}

func NewCache[V any](opts CacheOptions[V]) (*Cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("transcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("transcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("transcache: namespace is required")
	}

	cc := &Cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		tracker:  opts.Tracker,
		enabled:  !opts.Disabled,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, DefaultRecordTTL)

	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		cc.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		cc.gen = gen.NewLocal(defaultSweep, defaultGenRetention)
		cc.ownGen = true
	}
	return cc, nil
}

func (cc *Cache[V]) Enabled() bool     { return cc.enabled }
func (cc *Cache[V]) Namespace() string { return cc.ns }

// Close releases a generation store the cache created itself. The provider,
// tracker and any injected GenStore belong to the caller.
func (cc *Cache[V]) Close(ctx context.Context) error {
	if cc.ownGen {
		return cc.gen.Close(ctx)
	}
	return nil
}

// GetOrCompute returns the cached value for key or runs produce and caches
// its result for ttl (0 => DefaultTTL). The result is only stored when the
// key's generation did not move while produce ran. Concurrent misses may
// each run produce.
func (cc *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (V, error) {
	var zero V
	if !cc.enabled {
		return produce(ctx)
	}

	v, ok, err := cc.get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		cc.hooks.CacheHit(cc.ns)
		return v, nil
	}
	cc.hooks.CacheMiss(cc.ns)

	// register before the snapshot: a write that commits after this point
	// either drains the key and bumps it, or happens before our store read
	cacheable := true
	if cc.tracker != nil {
		if err := cc.tracker.Add(ctx, key); err != nil {
			cc.hooks.TrackError(cc.ns, err)
			cc.log.Warn("key registration failed; result will not be cached", Fields{"ns": cc.ns, "key": key, "err": err})
			cacheable = false
		}
	}

	sk := cc.storageKey(key)
	obs, err := cc.gen.Snapshot(ctx, sk)
	if err != nil {
		cc.hooks.GenSnapshotError(sk, err)
		cc.log.Warn("gen snapshot error; result will not be cached", Fields{"key": sk, "err": err})
		cacheable = false
	}

	v, err = produce(ctx)
	if err != nil {
		return zero, err
	}
	if cacheable {
		if ttl <= 0 {
			ttl = cc.defaultTTL
		}
		if err := cc.setWithGen(ctx, sk, v, obs, ttl); err != nil {
			return zero, err
		}
	}
	return v, nil
}

// Forget bumps the key's generation and deletes its entry. It fails only when
// both steps failed: either one alone keeps the stale entry from being served.
func (cc *Cache[V]) Forget(ctx context.Context, key string) error {
	if !cc.enabled {
		return nil
	}
	sk := cc.storageKey(key)
	newGen, bumpErr := cc.gen.Bump(ctx, sk)
	if bumpErr != nil {
		cc.hooks.GenBumpError(sk, bumpErr)
	}
	delErr := cc.provider.Del(ctx, sk)

	if bumpErr != nil && delErr != nil {
		cc.hooks.InvalidateOutage(key, bumpErr, delErr)
		cc.log.Error("forget failed: bump and delete both failed", Fields{"key": sk, "bumpErr": bumpErr, "delErr": delErr})
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	if bumpErr != nil {
		cc.log.Warn("forget: bump failed; entry deleted", Fields{"key": sk, "err": bumpErr})
	} else if delErr != nil {
		cc.log.Warn("forget: delete failed; generation bumped", Fields{"key": sk, "newGen": newGen, "err": delErr})
	} else {
		cc.log.Debug("forgot key (bumped gen + deleted entry)", Fields{"key": sk, "newGen": newGen})
	}
	return nil
}

// ForgetTracked drains the tracker and forgets every drained key. Errors are
// joined; a key whose Forget failed is not re-registered.
func (cc *Cache[V]) ForgetTracked(ctx context.Context) error {
	if !cc.enabled || cc.tracker == nil {
		return nil
	}
	keys, err := cc.tracker.Drain(ctx)
	if err != nil {
		cc.hooks.TrackError(cc.ns, err)
		return fmt.Errorf("transcache: drain %s: %w", cc.ns, err)
	}
	var errs []error
	for _, k := range keys {
		if err := cc.Forget(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	if len(keys) > 0 {
		cc.log.Debug("forgot tracked keys", Fields{"ns": cc.ns, "count": len(keys), "failed": len(errs)})
	}
	return errors.Join(errs...)
}

func (cc *Cache[V]) get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	sk := cc.storageKey(key)
	raw, ok, err := cc.provider.Get(ctx, sk)
	if err != nil {
		return zero, false, fmt.Errorf("transcache: cache get %s: %w", sk, err)
	}
	if !ok {
		return zero, false, nil
	}
	g, payload, err := wire.DecodeSingle(raw)
	if err != nil {
		cc.selfHeal(ctx, sk, "corrupt")
		return zero, false, nil
	}
	// validate generation
	if g != cc.snapshotGen(ctx, sk) {
		cc.selfHeal(ctx, sk, "gen_mismatch")
		return zero, false, nil
	}
	v, err := cc.codec.Decode(payload)
	if err != nil {
		cc.selfHeal(ctx, sk, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (cc *Cache[V]) setWithGen(ctx context.Context, sk string, value V, observedGen uint64, ttl time.Duration) error {
	if cc.snapshotGen(ctx, sk) != observedGen {
		// generation moved; skip stale write
		cc.log.Debug("set skipped (gen mismatch)", Fields{"key": sk, "obs": observedGen})
		return nil
	}
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("transcache: encode %s: %w", sk, err)
	}
	wireb := wire.EncodeSingle(observedGen, payload)
	ok, err := cc.provider.Set(ctx, sk, wireb, cc.computeSetCost(sk, wireb), ttl)
	if err != nil {
		return fmt.Errorf("transcache: cache set %s: %w", sk, err)
	}
	if !ok {
		cc.hooks.ProviderSetRejected(sk)
		cc.log.Debug("set rejected by provider (pressure)", Fields{"key": sk})
	}
	return nil
}

func (cc *Cache[V]) selfHeal(ctx context.Context, sk, reason string) {
	_ = cc.provider.Del(ctx, sk)
	cc.hooks.SelfHeal(sk, reason)
}

func (cc *Cache[V]) snapshotGen(ctx context.Context, sk string) uint64 {
	g, err := cc.gen.Snapshot(ctx, sk)
	if err != nil {
		// Conservative: treat as 0. Frames stored after any bump carry a
		// generation > 0 and self-heal on read.
		cc.hooks.GenSnapshotError(sk, err)
		cc.log.Warn("gen snapshot error", Fields{"key": sk, "err": err})
		return 0
	}
	return g
}

func (cc *Cache[V]) storageKey(key string) string {
	// isolate by namespace
	return cc.ns + ":" + key
}
