package transcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/unkn0wn-root/transcache/codec"
	gen "github.com/unkn0wn-root/transcache/genstore"
	"github.com/unkn0wn-root/transcache/internal/util"
	"github.com/unkn0wn-root/transcache/keyset"
	pr "github.com/unkn0wn-root/transcache/provider"
)

const exportKey = "all"

type service struct {
	store Store
	log   Logger
	hooks Hooks

	lists   *Cache[ListResult]
	records *Cache[*Translation]
	export  *Cache[Export]

	gen    gen.GenStore
	ownGen bool

	listTTL     time.Duration
	recordTTL   time.Duration
	exportTTL   time.Duration
	maxListRows int
	exportChunk int
}

var _ Service = (*service)(nil)

func newService(opts Options) (*service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("transcache: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("transcache: provider is required")
	}
	if sp, ok := opts.Provider.(pr.Shared); ok && sp.Shared() && !opts.Disabled {
		if opts.GenStore == nil || opts.ListKeys == nil || opts.RecordKeys == nil {
			return nil, ErrLocalState
		}
	}

	s := &service{store: opts.Store}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.listTTL = coalesce[time.Duration](opts.ListTTL, DefaultListTTL)
	s.recordTTL = coalesce[time.Duration](opts.RecordTTL, DefaultRecordTTL)
	s.exportTTL = coalesce[time.Duration](opts.ExportTTL, DefaultExportTTL)
	s.maxListRows = coalesce(opts.MaxListRows, DefaultMaxListRows)
	s.exportChunk = coalesce(opts.ExportChunk, DefaultExportChunk)
	ns := coalesce(opts.Namespace, DefaultNamespace)

	if opts.GenStore != nil {
		s.gen = opts.GenStore
	} else {
		s.gen = gen.NewLocal(defaultSweep, defaultGenRetention)
		s.ownGen = true
	}
	listKeys := opts.ListKeys
	if listKeys == nil {
		listKeys = keyset.NewLocal()
	}
	recordKeys := opts.RecordKeys
	if recordKeys == nil {
		recordKeys = keyset.NewLocal()
	}

	var err error
	s.lists, err = newTypedCache[ListResult](opts, ns+":list", listKeys, s)
	if err != nil {
		return nil, err
	}
	s.records, err = newTypedCache[*Translation](opts, ns+":record", recordKeys, s)
	if err != nil {
		return nil, err
	}
	// the export lives under one fixed key and needs no registry
	s.export, err = newTypedCache[Export](opts, ns+":export", nil, s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newTypedCache[V any](opts Options, ns string, tracker keyset.KeySet, s *service) (*Cache[V], error) {
	cd, err := codec.ByName[V](opts.Codec, opts.MaxDecode)
	if err != nil {
		return nil, err
	}
	return NewCache(CacheOptions[V]{
		Namespace:      ns,
		Provider:       opts.Provider,
		Codec:          cd,
		GenStore:       s.gen,
		Tracker:        tracker,
		Logger:         s.log,
		Hooks:          s.hooks,
		ComputeSetCost: opts.ComputeSetCost,
		Disabled:       opts.Disabled,
	})
}

func (s *service) Close(ctx context.Context) error {
	if s.ownGen {
		return s.gen.Close(ctx)
	}
	return nil
}

func (s *service) List(ctx context.Context, f Filters) (ListResult, error) {
	key := util.Fingerprint("filters", f.fields())
	res, err := s.lists.GetOrCompute(ctx, key, s.listTTL, func(ctx context.Context) (ListResult, error) {
		rows, err := s.store.List(ctx, f, s.maxListRows)
		if err != nil {
			return ListResult{}, err
		}
		return ListResult{Count: len(rows), Data: rows}, nil
	})
	if err != nil {
		return ListResult{}, err
	}
	if res.Data == nil {
		res.Data = []Translation{}
	}
	return res, nil
}

func (s *service) Get(ctx context.Context, id int64) (*Translation, error) {
	key := strconv.FormatInt(id, 10)
	return s.records.GetOrCompute(ctx, key, s.recordTTL, func(ctx context.Context) (*Translation, error) {
		return s.store.FindByID(ctx, id)
	})
}

func (s *service) Create(ctx context.Context, in NewTranslation) (*Translation, error) {
	var out *Translation
	err := s.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.Exists(ctx, in.Key, in.Locale)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateKey
		}
		t, err := tx.Insert(ctx, in)
		if err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				s.hooks.DuplicateRace(in.Key, in.Locale)
			}
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.sweep(ctx, "create", out.ID)
	return out, nil
}

func (s *service) Update(ctx context.Context, id int64, p Patch) (*Translation, error) {
	var out *Translation
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrNotFound
		}
		oldKey, oldLocale := cur.Key, cur.Locale
		p.apply(cur)
		if cur.Key != oldKey || cur.Locale != oldLocale {
			exists, err := tx.Exists(ctx, cur.Key, cur.Locale)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateKey
			}
		}
		t, err := tx.Update(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				s.hooks.DuplicateRace(cur.Key, cur.Locale)
			}
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.sweep(ctx, "update", id)
	return out, nil
}

func (s *service) Export(ctx context.Context) (Export, error) {
	return s.export.GetOrCompute(ctx, exportKey, s.exportTTL, s.buildExport)
}

func (s *service) buildExport(ctx context.Context) (Export, error) {
	out := make(Export)
	var after int64
	for {
		rows, err := s.store.Chunk(ctx, after, s.exportChunk)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			m, ok := out[r.Locale]
			if !ok {
				m = make(map[string]string)
				out[r.Locale] = m
			}
			m[r.Key] = r.Value
			after = r.ID
		}
		if len(rows) < s.exportChunk {
			return out, nil
		}
	}
}

func (s *service) Invalidate(ctx context.Context) error {
	return errors.Join(
		s.export.Forget(ctx, exportKey),
		s.lists.ForgetTracked(ctx),
		s.records.ForgetTracked(ctx),
	)
}

// sweep runs Invalidate after a committed write. The write already
// succeeded, so failures are reported and never returned.
func (s *service) sweep(ctx context.Context, op string, id int64) {
	if err := s.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.hooks.SweepFailed(err)
		s.log.Error("invalidation sweep failed", Fields{"op": op, "id": id, "err": err})
	}
}
