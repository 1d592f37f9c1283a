// Package postgres is the PostgreSQL record store, built on pgx and squirrel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/internal/sqlq"
)

const uniqueViolation = "23505"

var _ transcache.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	sq   sq.StatementBuilderType
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool and checks it with a ping.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Open connects to dsn. The schema must already be migrated.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, sq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) List(ctx context.Context, f transcache.Filters, limit int) ([]transcache.Translation, error) {
	out, err := queryRows(ctx, s.pool, sqlq.List(s.sq, f, limit))
	if err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*transcache.Translation, error) {
	t, err := queryOne(ctx, s.pool, sqlq.ByID(s.sq, id))
	if err != nil {
		return nil, fmt.Errorf("get translation by id: %w", err)
	}
	return t, nil
}

func (s *Store) Chunk(ctx context.Context, afterID int64, size int) ([]transcache.Translation, error) {
	out, err := queryRows(ctx, s.pool, sqlq.Chunk(s.sq, afterID, size))
	if err != nil {
		return nil, fmt.Errorf("chunk translations after %d: %w", afterID, err)
	}
	return out, nil
}

func (s *Store) InTx(ctx context.Context, fn func(transcache.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txStore{q: tx, sq: s.sq})
	})
}

// maxParams is the PostgreSQL wire protocol's bind-parameter limit.
const maxParams = 65535

// InsertBatch inserts rows in one transaction, split into as few statements
// as maxParams allows.
func (s *Store) InsertBatch(ctx context.Context, rows []transcache.NewTranslation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, part := range sqlq.Split(rows, maxParams) {
			sqlStr, args, err := sqlq.InsertBatch(s.sq, part, now).ToSql()
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, sqlStr, args...)
			if err != nil {
				return mapErr("insert batch", err)
			}
			n += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (transcache.Stats, error) {
	st := transcache.Stats{PerLocale: map[string]int64{}, PerTag: map[string]int64{}}
	if err := s.pool.QueryRow(ctx, sqlq.CountsSQL).Scan(&st.Total, &st.UniqueKeys); err != nil {
		return st, fmt.Errorf("stats counts: %w", err)
	}
	if err := groupCounts(ctx, s.pool, sqlq.PerLocaleSQL, st.PerLocale); err != nil {
		return st, fmt.Errorf("stats per locale: %w", err)
	}
	if err := groupCounts(ctx, s.pool, sqlq.PerTagSQL, st.PerTag); err != nil {
		return st, fmt.Errorf("stats per tag: %w", err)
	}

	var table, database int64
	err := s.pool.QueryRow(ctx,
		`SELECT pg_total_relation_size('translations'), pg_database_size(current_database())`,
	).Scan(&table, &database)
	if err != nil {
		return st, fmt.Errorf("stats sizes: %w", err)
	}
	st.TableSize = humanize.IBytes(uint64(table))
	st.DatabaseSize = humanize.IBytes(uint64(database))
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
	if err := t.q.QueryRow(ctx, sqlStr, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("check translation exists: %w", err)
	}
	return ok, nil
}

func (t *txStore) Insert(ctx context.Context, in transcache.NewTranslation) (*transcache.Translation, error) {
	sqlStr, args, err := sqlq.Insert(t.sq, in, time.Now().UTC()).Suffix(sqlq.Returning).ToSql()
	if err != nil {
		return nil, err
	}
	row, err := sqlq.Scan(t.q.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return nil, mapErr("insert translation", err)
	}
	return &row, nil
}

func (t *txStore) FindByIDForUpdate(ctx context.Context, id int64) (*transcache.Translation, error) {
	tr, err := queryOne(ctx, t.q, sqlq.ByID(t.sq, id).Suffix("FOR UPDATE"))
	if err != nil {
		return nil, fmt.Errorf("lock translation %d: %w", id, err)
	}
	return tr, nil
}

func (t *txStore) Update(ctx context.Context, tr *transcache.Translation) (*transcache.Translation, error) {
	sqlStr, args, err := sqlq.Update(t.sq, tr, time.Now().UTC()).Suffix(sqlq.Returning).ToSql()
	if err != nil {
		return nil, err
	}
	row, err := sqlq.Scan(t.q.QueryRow(ctx, sqlStr, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transcache.ErrNotFound
	}
	if err != nil {
		return nil, mapErr("update translation", err)
	}
	return &row, nil
}

func queryRows(ctx context.Context, q querier, b sq.SelectBuilder) ([]transcache.Translation, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sqlStr, args...)
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
	t, err := sqlq.Scan(q.QueryRow(ctx, sqlStr, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func groupCounts(ctx context.Context, q querier, query string, into map[string]int64) error {
	rows, err := q.Query(ctx, query)
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return transcache.ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}
