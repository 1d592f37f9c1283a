package transcache

import "context"

// Store is the record store. Implementations live under store/.
type Store interface {
	// List returns at most limit rows matching f, ordered by id.
	List(ctx context.Context, f Filters, limit int) ([]Translation, error)
	// FindByID returns (nil, nil) when no row has id.
	FindByID(ctx context.Context, id int64) (*Translation, error)
	// Chunk returns up to size rows with id > afterID, ordered by id.
	Chunk(ctx context.Context, afterID int64, size int) ([]Translation, error)
	// InTx runs fn in one transaction. fn's error rolls back and is returned
	// unchanged.
	InTx(ctx context.Context, fn func(Tx) error) error
	// InsertBatch inserts rows with a single multi-row statement and returns
	// the number of rows written. It bypasses the cache entirely.
	InsertBatch(ctx context.Context, rows []NewTranslation) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Tx is the transactional view used by the write path. Insert and Update
// map a (key, locale) unique violation to ErrDuplicateKey.
type Tx interface {
	Exists(ctx context.Context, key, locale string) (bool, error)
	Insert(ctx context.Context, in NewTranslation) (*Translation, error)
	// FindByIDForUpdate locks the row where the backend supports it and
	// returns (nil, nil) when absent.
	FindByIDForUpdate(ctx context.Context, id int64) (*Translation, error)
	// Update persists key, locale, value and tag of t and refreshes
	// updated_at.
	Update(ctx context.Context, t *Translation) (*Translation, error)
}
