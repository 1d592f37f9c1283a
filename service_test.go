package transcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/transcache/keyset"
)

// fakeStore is an in-memory Store with a (key, locale) unique constraint.
// InTx holds the lock for the whole transaction and restores a snapshot on
// error.
type fakeStore struct {
	mu     sync.Mutex
	rows   []Translation // ordered by id
	nextID int64
	clock  time.Time
	calls  map[string]int

	afterList  func() // runs after List read its rows, outside the lock
	existsLies bool   // Exists always reports false
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID: 1,
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:  make(map[string]int),
	}
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *fakeStore) List(ctx context.Context, f Filters, limit int) ([]Translation, error) {
	out := s.list(f, limit)
	if s.afterList != nil {
		s.afterList()
	}
	return out, nil
}

func (s *fakeStore) list(f Filters, limit int) []Translation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["list"]++
	var out []Translation
	for _, r := range s.rows {
		if len(out) == limit {
			break
		}
		if f.Locale != "" && r.Locale != f.Locale {
			continue
		}
		if f.Tag != "" && (r.Tag == nil || *r.Tag != f.Tag) {
			continue
		}
		if f.Key != "" && !strings.Contains(r.Key, f.Key) {
			continue
		}
		if f.Value != "" && !strings.Contains(r.Value, f.Value) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *fakeStore) FindByID(_ context.Context, id int64) (*Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["find"]++
	return s.find(id), nil
}

func (s *fakeStore) find(id int64) *Translation {
	for _, r := range s.rows {
		if r.ID == id {
			cp := r
			return &cp
		}
	}
	return nil
}

func (s *fakeStore) Chunk(_ context.Context, afterID int64, size int) ([]Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["chunk"]++
	var out []Translation
	for _, r := range s.rows {
		if r.ID > afterID && len(out) < size {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append([]Translation(nil), s.rows...)
	next := s.nextID
	if err := fn(fakeTx{s}); err != nil {
		s.rows, s.nextID = rows, next
		return err
	}
	return nil
}

func (s *fakeStore) InsertBatch(_ context.Context, rows []NewTranslation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if _, err := s.insert(r); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

func (s *fakeStore) Stats(context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: int64(len(s.rows)), PerLocale: map[string]int64{}, PerTag: map[string]int64{}}
	keys := map[string]struct{}{}
	for _, r := range s.rows {
		keys[r.Key] = struct{}{}
		st.PerLocale[r.Locale]++
		if r.Tag != nil {
			st.PerTag[*r.Tag]++
		}
	}
	st.UniqueKeys = int64(len(keys))
	return st, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) taken(key, locale string, except int64) bool {
	for _, r := range s.rows {
		if r.Key == key && r.Locale == locale && r.ID != except {
			return true
		}
	}
	return false
}

func (s *fakeStore) insert(in NewTranslation) (*Translation, error) {
	if s.taken(in.Key, in.Locale, 0) {
		return nil, ErrDuplicateKey
	}
	now := s.tick()
	t := Translation{ID: s.nextID, Key: in.Key, Locale: in.Locale, Value: in.Value, Tag: in.Tag, CreatedAt: now, UpdatedAt: now}
	s.nextID++
	s.rows = append(s.rows, t)
	return &t, nil
}

type fakeTx struct{ s *fakeStore }

func (tx fakeTx) Exists(_ context.Context, key, locale string) (bool, error) {
	if tx.s.existsLies {
		return false, nil
	}
	return tx.s.taken(key, locale, 0), nil
}

func (tx fakeTx) Insert(_ context.Context, in NewTranslation) (*Translation, error) {
	return tx.s.insert(in)
}

func (tx fakeTx) FindByIDForUpdate(_ context.Context, id int64) (*Translation, error) {
	return tx.s.find(id), nil
}

func (tx fakeTx) Update(_ context.Context, t *Translation) (*Translation, error) {
	if tx.s.taken(t.Key, t.Locale, t.ID) {
		return nil, ErrDuplicateKey
	}
	for i := range tx.s.rows {
		if tx.s.rows[i].ID == t.ID {
			r := &tx.s.rows[i]
			r.Key, r.Locale, r.Value, r.Tag = t.Key, t.Locale, t.Value, t.Tag
			r.UpdatedAt = tx.s.tick()
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func strp(s string) *string { return &s }

func newTestService(t *testing.T, st *fakeStore, optsOpt func(*Options)) Service {
	t.Helper()
	opts := Options{Store: st, Provider: newMemProvider()}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	svc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func mustCreate(t *testing.T, svc Service, key, locale, value string, tag *string) *Translation {
	t.Helper()
	tr, err := svc.Create(context.Background(), NewTranslation{Key: key, Locale: locale, Value: value, Tag: tag})
	if err != nil {
		t.Fatalf("Create(%s,%s): %v", key, locale, err)
	}
	return tr
}

func TestListFiltersAndCaches(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	mustCreate(t, svc, "home.title", "en", "Welcome", strp("web"))
	mustCreate(t, svc, "home.title", "fr", "Bienvenue", strp("web"))
	mustCreate(t, svc, "cart.empty", "en", "Your cart is empty", strp("mobile"))

	res, err := svc.List(ctx, Filters{Locale: "en", Key: "home"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Count != 1 || len(res.Data) != 1 || res.Data[0].Value != "Welcome" {
		t.Fatalf("unexpected result: %+v", res)
	}

	before := st.count("list")
	if _, err := svc.List(ctx, Filters{Key: "home", Locale: "en"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if st.count("list") != before {
		t.Fatalf("second identical query should be a cache hit")
	}

	res, _ = svc.List(ctx, Filters{Tag: "web", Value: "Bien"})
	if res.Count != 1 || res.Data[0].Locale != "fr" {
		t.Fatalf("unexpected tag/value result: %+v", res)
	}

	res, _ = svc.List(ctx, Filters{Locale: "de"})
	if res.Count != 0 || res.Data == nil {
		t.Fatalf("empty result should carry an empty, non-nil slice: %+v", res)
	}
}

func TestListCapsRows(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	rows := make([]NewTranslation, 1500)
	for i := range rows {
		rows[i] = NewTranslation{Key: fmt.Sprintf("key_%d", i), Locale: "en", Value: "v"}
	}
	if _, err := st.InsertBatch(ctx, rows); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	svc := newTestService(t, st, nil)

	res, err := svc.List(ctx, Filters{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Count != 1000 || len(res.Data) != 1000 {
		t.Fatalf("expected 1000 rows, got count=%d len=%d", res.Count, len(res.Data))
	}
}

func TestCoherenceAfterWrite(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	res, _ := svc.List(ctx, Filters{Locale: "en"})
	if res.Count != 0 {
		t.Fatalf("expected empty list, got %d", res.Count)
	}
	exp, _ := svc.Export(ctx)
	if len(exp) != 0 {
		t.Fatalf("expected empty export, got %v", exp)
	}

	tr := mustCreate(t, svc, "a", "en", "A", nil)

	res, _ = svc.List(ctx, Filters{Locale: "en"})
	if res.Count != 1 {
		t.Fatalf("list not refreshed after create: %+v", res)
	}
	exp, _ = svc.Export(ctx)
	if exp["en"]["a"] != "A" {
		t.Fatalf("export not refreshed after create: %v", exp)
	}
	got, _ := svc.Get(ctx, tr.ID)
	if got == nil || got.Value != "A" {
		t.Fatalf("Get: %+v", got)
	}

	if _, err := svc.Update(ctx, tr.ID, Patch{Value: strp("B")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	res, _ = svc.List(ctx, Filters{Locale: "en"})
	got, _ = svc.Get(ctx, tr.ID)
	exp, _ = svc.Export(ctx)
	if res.Data[0].Value != "B" || got.Value != "B" || exp["en"]["a"] != "B" {
		t.Fatalf("stale read after update: list=%v get=%v export=%v", res.Data[0].Value, got.Value, exp["en"]["a"])
	}
}

func TestGetAbsentIsCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	for i := 0; i < 2; i++ {
		got, err := svc.Get(ctx, 1)
		if err != nil || got != nil {
			t.Fatalf("expected (nil, nil), got %+v %v", got, err)
		}
	}
	if st.count("find") != 1 {
		t.Fatalf("absence should be cached, store hit %d times", st.count("find"))
	}

	mustCreate(t, svc, "a", "en", "A", nil) // gets id 1
	got, err := svc.Get(ctx, 1)
	if err != nil || got == nil || got.Key != "a" {
		t.Fatalf("cached absence survived a create: %+v %v", got, err)
	}
}

func TestCreateDuplicateKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	orig := mustCreate(t, svc, "a", "en", "v1", nil)
	_, _ = svc.Get(ctx, orig.ID)
	finds := st.count("find")

	_, err := svc.Create(ctx, NewTranslation{Key: "a", Locale: "en", Value: "v2"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	got, _ := svc.Get(ctx, orig.ID)
	if got.Value != "v1" {
		t.Fatalf("duplicate overwrote the original: %+v", got)
	}
	if st.count("find") != finds {
		t.Fatalf("a rejected create must not invalidate the cache")
	}
	if s, _ := st.Stats(ctx); s.Total != 1 {
		t.Fatalf("expected one row, got %d", s.Total)
	}

	// Same key in another locale is fine.
	mustCreate(t, svc, "a", "fr", "v1", nil)
}

func TestCreateConstraintViolationMapped(t *testing.T) {
	st := newFakeStore()
	h := &countingHooks{}
	svc := newTestService(t, st, func(o *Options) { o.Hooks = h })

	mustCreate(t, svc, "a", "en", "v1", nil)
	st.existsLies = true

	_, err := svc.Create(context.Background(), NewTranslation{Key: "a", Locale: "en", Value: "v2"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if h.races != 1 {
		t.Fatalf("expected DuplicateRace hook, got %d", h.races)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	a := mustCreate(t, svc, "a", "en", "A", strp("web"))
	mustCreate(t, svc, "b", "en", "B", nil)

	t.Run("not_found", func(t *testing.T) {
		if _, err := svc.Update(ctx, 999, Patch{Value: strp("x")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("partial", func(t *testing.T) {
		got, err := svc.Update(ctx, a.ID, Patch{Value: strp("A2")})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.Value != "A2" || got.Key != "a" || got.Tag == nil || *got.Tag != "web" {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.UpdatedAt.After(a.UpdatedAt) || !got.CreatedAt.Equal(a.CreatedAt) {
			t.Fatalf("timestamps: created %v->%v updated %v->%v", a.CreatedAt, got.CreatedAt, a.UpdatedAt, got.UpdatedAt)
		}
	})

	t.Run("clear_tag", func(t *testing.T) {
		got, err := svc.Update(ctx, a.ID, Patch{ClearTag: true})
		if err != nil || got.Tag != nil {
			t.Fatalf("tag not cleared: %+v %v", got, err)
		}
	})

	t.Run("onto_existing_pair", func(t *testing.T) {
		if _, err := svc.Update(ctx, a.ID, Patch{Key: strp("b")}); !errors.Is(err, ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey, got %v", err)
		}
		got, _ := svc.Get(ctx, a.ID)
		if got.Key != "a" {
			t.Fatalf("rejected update leaked: %+v", got)
		}
	})

	t.Run("same_pair_is_not_a_duplicate", func(t *testing.T) {
		if _, err := svc.Update(ctx, a.ID, Patch{Key: strp("a"), Locale: strp("en")}); err != nil {
			t.Fatalf("Update onto own pair: %v", err)
		}
	})
}

func TestExportChunksAndCaches(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, func(o *Options) { o.ExportChunk = 2 })

	mustCreate(t, svc, "a", "en", "A", nil)
	mustCreate(t, svc, "b", "en", "B", nil)
	mustCreate(t, svc, "a", "fr", "A-fr", nil)
	mustCreate(t, svc, "b", "fr", "B-fr", nil)
	mustCreate(t, svc, "a", "de", "A-de", nil)

	exp, err := svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(exp) != 3 || exp["en"]["b"] != "B" || exp["fr"]["a"] != "A-fr" || exp["de"]["a"] != "A-de" {
		t.Fatalf("unexpected export: %v", exp)
	}
	if st.count("chunk") != 3 {
		t.Fatalf("expected 3 chunk reads, got %d", st.count("chunk"))
	}
	if _, err := svc.Export(ctx); err != nil || st.count("chunk") != 3 {
		t.Fatalf("second export should hit the cache")
	}
}

// A write that commits after a list was read from the store, but before the
// result is cached, must keep the pre-write result out of the cache.
func TestConcurrentWriteDuringListDoesNotCacheStale(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	var once sync.Once
	st.afterList = func() {
		once.Do(func() { mustCreate(t, svc, "x", "en", "X", nil) })
	}
	res, err := svc.List(ctx, Filters{Locale: "en"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Count != 0 {
		t.Fatalf("first read should return what it read before the write, got %+v", res)
	}

	res, _ = svc.List(ctx, Filters{Locale: "en"})
	if res.Count != 1 {
		t.Fatalf("pre-write result was cached: %+v", res)
	}
}

func TestSweepFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	h := &countingHooks{}
	mp := &delErrProvider{memProvider: newMemProvider(), err: errors.New("del failed")}
	svc := newTestService(t, st, func(o *Options) {
		o.Provider = mp
		o.GenStore = &failingGenStore{bumpErr: errors.New("bump failed")}
		o.Hooks = h
	})

	_, _ = svc.Export(ctx)
	if _, err := svc.Create(ctx, NewTranslation{Key: "a", Locale: "en", Value: "A"}); err != nil {
		t.Fatalf("write should succeed despite sweep failure: %v", err)
	}
	if h.sweeps != 1 {
		t.Fatalf("expected SweepFailed hook, got %d", h.sweeps)
	}
	if err := svc.Invalidate(ctx); err == nil {
		t.Fatalf("explicit Invalidate should report the outage")
	}
}

func TestSharedRegistriesAcrossServices(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	mp := newMemProvider()
	lists, records := keyset.NewLocal(), keyset.NewLocal()
	g := &sharedGen{gens: map[string]uint64{}}
	opt := func(o *Options) {
		o.Provider = mp
		o.GenStore = g
		o.ListKeys = lists
		o.RecordKeys = records
	}
	reader := newTestService(t, st, opt)
	writer := newTestService(t, st, opt)

	res, _ := reader.List(ctx, Filters{})
	if res.Count != 0 {
		t.Fatalf("expected empty list")
	}
	mustCreate(t, writer, "a", "en", "A", nil)
	res, _ = reader.List(ctx, Filters{})
	if res.Count != 1 {
		t.Fatalf("write through one instance must invalidate the other: %+v", res)
	}
}

// remoteProvider is a memProvider that declares its entries visible to
// other processes, as the Redis provider does.
type remoteProvider struct{ *memProvider }

func (remoteProvider) Shared() bool { return true }

func TestSharedProviderRequiresSharedState(t *testing.T) {
	st := newFakeStore()
	rp := remoteProvider{newMemProvider()}

	for name, opt := range map[string]func(*Options){
		"all local":       func(*Options) {},
		"gen only":        func(o *Options) { o.GenStore = &sharedGen{gens: map[string]uint64{}} },
		"registries only": func(o *Options) { o.ListKeys, o.RecordKeys = keyset.NewLocal(), keyset.NewLocal() },
	} {
		opts := Options{Store: st, Provider: rp}
		opt(&opts)
		if _, err := New(opts); !errors.Is(err, ErrLocalState) {
			t.Fatalf("%s: expected ErrLocalState, got %v", name, err)
		}
	}

	if _, err := New(Options{Store: st, Provider: rp, Disabled: true}); err != nil {
		t.Fatalf("disabled cache never touches the provider: %v", err)
	}
}

func TestSharedProviderWriteReachesOtherInstance(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	rp := remoteProvider{newMemProvider()}
	g := &sharedGen{gens: map[string]uint64{}}
	lists, records := keyset.NewLocal(), keyset.NewLocal()
	opt := func(o *Options) {
		o.Provider = rp
		o.GenStore = g
		o.ListKeys = lists
		o.RecordKeys = records
	}
	reader := newTestService(t, st, opt)
	writer := newTestService(t, st, opt)

	if res, _ := reader.List(ctx, Filters{}); res.Count != 0 {
		t.Fatalf("expected empty list")
	}
	mustCreate(t, writer, "a", "en", "A", nil)
	for name, svc := range map[string]Service{"writer": writer, "reader": reader} {
		res, err := svc.List(ctx, Filters{})
		if err != nil || res.Count != 1 {
			t.Fatalf("%s served a stale list after a write: %+v %v", name, res, err)
		}
	}
}

type sharedGen struct {
	mu   sync.Mutex
	gens map[string]uint64
}

func (g *sharedGen) Snapshot(_ context.Context, k string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[k], nil
}

func (g *sharedGen) Bump(_ context.Context, k string) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[k]++
	return g.gens[k], nil
}

func (g *sharedGen) Close(context.Context) error { return nil }

func TestParallelReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	svc := newTestService(t, st, nil)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _ = svc.Create(ctx, NewTranslation{Key: fmt.Sprintf("k%d_%d", w, i), Locale: "en", Value: "v"})
				_, _ = svc.List(ctx, Filters{Locale: "en"})
			}
		}(w)
	}
	wg.Wait()

	res, err := svc.List(ctx, Filters{Locale: "en"})
	if err != nil || res.Count != 100 {
		t.Fatalf("expected 100 rows after all writes, got %d (%v)", res.Count, err)
	}
	exp, _ := svc.Export(ctx)
	keys := make([]string, 0, len(exp["en"]))
	for k := range exp["en"] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) != 100 {
		t.Fatalf("expected 100 exported keys, got %d", len(keys))
	}
}
