// Package sqlite is the embedded record store: database/sql with go-sqlite3
// and squirrel. Single-node only; writes are serialized on one connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-sqlite3"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/internal/sqlq"
)

var _ transcache.Store = (*Store)(nil)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	DB *sql.DB
	SQ sq.StatementBuilderType
}

// Open initializes the database at dbPath (see Init) and wraps it.
func Open(dbPath string) (*Store, error) {
	db, err := Init(dbPath)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, SQ: sq.StatementBuilder}
}

// Migrate applies pending migrations and returns how many ran.
func (s *Store) Migrate() (int, error) { return applyPending(s.DB) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) List(ctx context.Context, f transcache.Filters, limit int) ([]transcache.Translation, error) {
	out, err := queryRows(ctx, s.DB, sqlq.List(s.SQ, f, limit))
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*transcache.Translation, error) {
	t, err := queryOne(ctx, s.DB, sqlq.ByID(s.SQ, id))
	if err != nil {
		return nil, fmt.Errorf("get translation by id: %w", err)
	}
	return t, nil
}

func (s *Store) Chunk(ctx context.Context, afterID int64, size int) ([]transcache.Translation, error) {
	out, err := queryRows(ctx, s.DB, sqlq.Chunk(s.SQ, afterID, size))
	if err != nil {
		return nil, fmt.Errorf("chunk translations after %d: %w", afterID, err)
	}
	return out, nil
}

// InTx runs fn within a transaction.
func (s *Store) InTx(ctx context.Context, fn func(transcache.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txStore{q: tx, sq: s.SQ}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// maxParams is SQLITE_MAX_VARIABLE_NUMBER of the bundled SQLite (>= 3.32).
const maxParams = 32766

// InsertBatch inserts rows in one transaction, split into as few statements
// as maxParams allows.
func (s *Store) InsertBatch(ctx context.Context, rows []transcache.NewTranslation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var n int64
	for _, part := range sqlq.Split(rows, maxParams) {
		sqlStr, args, err := sqlq.InsertBatch(s.SQ, part, now).ToSql()
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return 0, mapErr("insert batch", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (transcache.Stats, error) {
	st := transcache.Stats{PerLocale: map[string]int64{}, PerTag: map[string]int64{}}
	if err := s.DB.QueryRowContext(ctx, sqlq.CountsSQL).Scan(&st.Total, &st.UniqueKeys); err != nil {
		return st, fmt.Errorf("stats counts: %w", err)
	}
	if err := groupCounts(ctx, s.DB, sqlq.PerLocaleSQL, st.PerLocale); err != nil {
		return st, fmt.Errorf("stats per locale: %w", err)
	}
	if err := groupCounts(ctx, s.DB, sqlq.PerTagSQL, st.PerTag); err != nil {
		return st, fmt.Errorf("stats per tag: %w", err)
	}

	var pages, pageSize int64
	if err := s.DB.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pages); err != nil {
		return st, fmt.Errorf("stats page count: %w", err)
	}
	if err := s.DB.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return st, fmt.Errorf("stats page size: %w", err)
	}
	st.DatabaseSize = humanize.IBytes(uint64(pages * pageSize))

	// dbstat is only present when SQLite was built with it
	var table sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `SELECT SUM(pgsize) FROM dbstat WHERE name = 'translations'`).Scan(&table)
	if err == nil && table.Valid {
		st.TableSize = humanize.IBytes(uint64(table.Int64))
	}
	return st, nil
}

type txStore struct {
	q  querier
	sq sq.StatementBuilderType
}

var _ transcache.Tx = (*txStore)(nil)

func (t *txStore) Exists(ctx context.Context, key, locale string) (bool, error) {
	sqlStr, args, err := sqlq.Exists(t.sq, key, locale).ToSql()
	if err != nil {
		return false, err
	}
	var ok bool
	if err := t.q.QueryRowContext(ctx, sqlStr, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("check translation exists: %w", err)
	}
	return ok, nil
}

func (t *txStore) Insert(ctx context.Context, in transcache.NewTranslation) (*transcache.Translation, error) {
	sqlStr, args, err := sqlq.Insert(t.sq, in, time.Now().UTC()).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := t.q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, mapErr("insert translation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert translation: %w", err)
	}
	return t.reload(ctx, id)
}

// FindByIDForUpdate reads the row; the transaction already holds the only
// connection, so no row lock is needed.
func (t *txStore) FindByIDForUpdate(ctx context.Context, id int64) (*transcache.Translation, error) {
	tr, err := queryOne(ctx, t.q, sqlq.ByID(t.sq, id))
	if err != nil {
		return nil, fmt.Errorf("load translation %d: %w", id, err)
	}
	return tr, nil
}

func (t *txStore) Update(ctx context.Context, tr *transcache.Translation) (*transcache.Translation, error) {
	now := time.Now().UTC()
	if !now.After(tr.UpdatedAt) {
		// keep updated_at strictly increasing under a coarse clock
		now = tr.UpdatedAt.Add(time.Microsecond)
	}
	sqlStr, args, err := sqlq.Update(t.sq, tr, now).ToSql()
	if err != nil {
		return nil, err
	}
	res, err := t.q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, mapErr("update translation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, transcache.ErrNotFound
	}
	return t.reload(ctx, tr.ID)
}

func (t *txStore) reload(ctx context.Context, id int64) (*transcache.Translation, error) {
	tr, err := queryOne(ctx, t.q, sqlq.ByID(t.sq, id))
	if err != nil {
		return nil, fmt.Errorf("reload translation %d: %w", id, err)
	}
	if tr == nil {
		return nil, transcache.ErrNotFound
	}
	return tr, nil
}

func queryRows(ctx context.Context, q querier, b sq.SelectBuilder) ([]transcache.Translation, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []transcache.Translation{}
	for rows.Next() {
		t, err := sqlq.Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// queryOne returns (nil, nil) when no row matches.
func queryOne(ctx context.Context, q querier, b sq.SelectBuilder) (*transcache.Translation, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	t, err := sqlq.Scan(q.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func groupCounts(ctx context.Context, q querier, query string, into map[string]int64) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		into[k] = n
	}
	return rows.Err()
}

// mapErr turns a (key, locale) unique violation into ErrDuplicateKey.
func mapErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return transcache.ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}
