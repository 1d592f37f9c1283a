// Package sqlq builds the translation queries shared by the SQL stores. The
// stores differ only in placeholder format and driver.
package sqlq

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unkn0wn-root/transcache"
)

const Table = "translations"

// Columns in scan order.
var Columns = []string{"id", "key", "locale", "value", "tag", "created_at", "updated_at"}

// Returning is appended to Insert and Update by backends that read the
// written row back in the same statement.
var Returning = "RETURNING " + strings.Join(Columns, ", ")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains returns a LIKE pattern matching s anywhere, with s's own
// wildcards escaped.
func Contains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func like(col, s string) sq.Sqlizer {
	return sq.Expr(col+` LIKE ? ESCAPE '\'`, Contains(s))
}

func List(b sq.StatementBuilderType, f transcache.Filters, limit int) sq.SelectBuilder {
	q := b.Select(Columns...).From(Table)
	if f.Locale != "" {
		q = q.Where(sq.Eq{"locale": f.Locale})
	}
	if f.Tag != "" {
		q = q.Where(sq.Eq{"tag": f.Tag})
	}
	if f.Key != "" {
		q = q.Where(like("key", f.Key))
	}
	if f.Value != "" {
		q = q.Where(like("value", f.Value))
	}
	return q.OrderBy("id").Limit(uint64(limit))
}

func ByID(b sq.StatementBuilderType, id int64) sq.SelectBuilder {
	return b.Select(Columns...).From(Table).Where(sq.Eq{"id": id})
}

// Chunk pages by id so rows inserted mid-scan never shift a page.
func Chunk(b sq.StatementBuilderType, afterID int64, size int) sq.SelectBuilder {
	return b.Select(Columns...).From(Table).
		Where(sq.Gt{"id": afterID}).
		OrderBy("id").
		Limit(uint64(size))
}

func Exists(b sq.StatementBuilderType, key, locale string) sq.SelectBuilder {
	return b.Select("1").From(Table).
		Where(sq.Eq{"key": key, "locale": locale}).
		Prefix("SELECT EXISTS (").
		Suffix(")")
}

func Insert(b sq.StatementBuilderType, in transcache.NewTranslation, now time.Time) sq.InsertBuilder {
	return b.Insert(Table).
		Columns("key", "locale", "value", "tag", "created_at", "updated_at").
		Values(in.Key, in.Locale, in.Value, in.Tag, now, now)
}

var batchColumns = []string{"key", "locale", "value", "tag", "created_at", "updated_at"}

// InsertBatch builds one multi-row INSERT. Callers keep len(rows) within
// the backend's bind-parameter limit; see Split.
func InsertBatch(b sq.StatementBuilderType, rows []transcache.NewTranslation, now time.Time) sq.InsertBuilder {
	q := b.Insert(Table).Columns(batchColumns...)
	for _, r := range rows {
		q = q.Values(r.Key, r.Locale, r.Value, r.Tag, now, now)
	}
	return q
}

// Split cuts rows into runs small enough that one InsertBatch per run binds
// at most maxParams parameters.
func Split(rows []transcache.NewTranslation, maxParams int) [][]transcache.NewTranslation {
	per := max(maxParams/len(batchColumns), 1)
	out := make([][]transcache.NewTranslation, 0, (len(rows)+per-1)/per)
	for len(rows) > per {
		out = append(out, rows[:per:per])
		rows = rows[per:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}

func Update(b sq.StatementBuilderType, t *transcache.Translation, now time.Time) sq.UpdateBuilder {
	return b.Update(Table).
		Set("key", t.Key).
		Set("locale", t.Locale).
		Set("value", t.Value).
		Set("tag", t.Tag).
		Set("updated_at", now).
		Where(sq.Eq{"id": t.ID})
}

const (
	CountsSQL    = `SELECT COUNT(*), COUNT(DISTINCT key) FROM ` + Table
	PerLocaleSQL = `SELECT locale, COUNT(*) FROM ` + Table + ` GROUP BY locale ORDER BY locale`
	PerTagSQL    = `SELECT tag, COUNT(*) FROM ` + Table + ` WHERE tag IS NOT NULL GROUP BY tag ORDER BY tag`
)

// Scanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

func Scan(s Scanner) (transcache.Translation, error) {
	var t transcache.Translation
	err := s.Scan(&t.ID, &t.Key, &t.Locale, &t.Value, &t.Tag, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
