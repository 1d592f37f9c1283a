package transcache

import (
	"context"
	"time"

	gen "github.com/unkn0wn-root/transcache/genstore"
	"github.com/unkn0wn-root/transcache/keyset"
	pr "github.com/unkn0wn-root/transcache/provider"
)

// Service is the translation API: cached reads over a Store and writes that
// invalidate every cached result they might affect.
type Service interface {
	// List returns at most MaxListRows rows matching f.
	List(ctx context.Context, f Filters) (ListResult, error)
	// Get returns (nil, nil) when no translation has id.
	Get(ctx context.Context, id int64) (*Translation, error)
	// Create fails with ErrDuplicateKey when (key, locale) is taken.
	Create(ctx context.Context, in NewTranslation) (*Translation, error)
	// Update fails with ErrNotFound for an unknown id and with
	// ErrDuplicateKey when the patch moves onto a taken (key, locale).
	Update(ctx context.Context, id int64, p Patch) (*Translation, error)
	// Export returns every translation as locale -> key -> value.
	Export(ctx context.Context) (Export, error)
	// Invalidate forgets the export and every tracked list and point-lookup
	// result. Create and Update call it after commit.
	Invalidate(ctx context.Context) error
	Close(context.Context) error
}

// Options configure the Service. Store and Provider are required; others have
// sensible defaults. A provider implementing provider.Shared (Redis) also
// requires GenStore, ListKeys and RecordKeys; New returns ErrLocalState
// otherwise. The Store, Provider, GenStore and key sets belong to the
// caller and are not closed by Service.Close.
type Options struct {
	// Required
	Store    Store
	Provider pr.Provider

	Namespace  string        // storage key prefix; "" => "transcache"
	Codec      string        // codec.ByName; "" => json
	MaxDecode  int           // > 0 caps the size of a decoded payload
	GenStore   gen.GenStore  // nil => one in-process genstore.Local
	ListKeys   keyset.KeySet // registry of list fingerprints; nil => keyset.Local
	RecordKeys keyset.KeySet // registry of point-lookup keys; nil => keyset.Local

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	ListTTL     time.Duration // 0 => 300s
	RecordTTL   time.Duration // 0 => 300s
	ExportTTL   time.Duration // 0 => 600s
	MaxListRows int           // 0 => 1000
	ExportChunk int           // 0 => 1000

	ComputeSetCost SetCostFunc // default 1
	Disabled       bool        // bypass the cache entirely
}

func New(opts Options) (Service, error) {
	return newService(opts)
}
