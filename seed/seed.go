// Package seed bulk-loads synthetic translations for load testing. Rows go
// straight to the store in multi-row batches and never touch the cache, so
// callers should invalidate it afterwards.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/unkn0wn-root/transcache"
)

const DefaultBatchSize = 1000

var (
	ErrNoLocales = errors.New("seed: at least one locale is required")
	ErrNoTags    = errors.New("seed: at least one tag is required")
)

// Store is the part of transcache.Store the generator writes through.
type Store interface {
	InsertBatch(ctx context.Context, rows []transcache.NewTranslation) (int64, error)
	Stats(ctx context.Context) (transcache.Stats, error)
}

type Options struct {
	Count     int
	Locales   []string
	Tags      []string
	BatchSize int // 0 => DefaultBatchSize
	// OnBatch is called after each batch with the rows written so far.
	OnBatch func(done, total int)
}

type Report struct {
	Requested int
	Inserted  int64
	Batches   int
	Elapsed   time.Duration
	Stats     transcache.Stats
}

// ElapsedSeconds is Elapsed rounded to two decimals.
func (r Report) ElapsedSeconds() float64 {
	return math.Round(r.Elapsed.Seconds()*100) / 100
}

// Row returns the synthetic translation for global index i.
func Row(i int, locales, tags []string) transcache.NewTranslation {
	tag := tags[i%len(tags)]
	n := strconv.Itoa(i)
	return transcache.NewTranslation{
		Key:    "key_" + n,
		Locale: locales[i%len(locales)],
		Value:  "Translation " + n,
		Tag:    &tag,
	}
}

// Generate inserts opts.Count rows and reports timing plus post-run store
// statistics. Keys are unique among themselves but not checked against
// existing rows; a collision fails the batch with ErrDuplicateKey. Earlier
// batches stay committed.
func Generate(ctx context.Context, st Store, opts Options) (Report, error) {
	rep := Report{Requested: opts.Count}
	start := time.Now()

	if opts.Count > 0 {
		if len(opts.Locales) == 0 {
			return rep, ErrNoLocales
		}
		if len(opts.Tags) == 0 {
			return rep, ErrNoTags
		}
		size := opts.BatchSize
		if size <= 0 {
			size = DefaultBatchSize
		}

		batch := make([]transcache.NewTranslation, 0, min(size, opts.Count))
		for from := 0; from < opts.Count; from += size {
			if err := ctx.Err(); err != nil {
				rep.Elapsed = time.Since(start)
				return rep, err
			}
			to := min(from+size, opts.Count)
			batch = batch[:0]
			for i := from; i < to; i++ {
				batch = append(batch, Row(i, opts.Locales, opts.Tags))
			}
			n, err := st.InsertBatch(ctx, batch)
			if err != nil {
				rep.Elapsed = time.Since(start)
				return rep, fmt.Errorf("seed: batch %d..%d: %w", from, to-1, err)
			}
			rep.Inserted += n
			rep.Batches++
			if opts.OnBatch != nil {
				opts.OnBatch(to, opts.Count)
			}
		}
	}
	rep.Elapsed = time.Since(start)

	stats, err := st.Stats(ctx)
	if err != nil {
		return rep, fmt.Errorf("seed: stats: %w", err)
	}
	rep.Stats = stats
	return rep, nil
}
