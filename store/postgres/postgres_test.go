package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/transcache"
)

// openTestStore needs a disposable database; the translations table is
// truncated before each test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TRANSCACHE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRANSCACHE_TEST_DATABASE_URL not set")
	}
	_, err := Migrate(dsn)
	require.NoError(t, err)

	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.pool.Exec(ctx, "TRUNCATE translations RESTART IDENTITY")
	require.NoError(t, err)
	return s
}

func strp(s string) *string { return &s }

func TestInsertFindAndDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var created *transcache.Translation
	err := s.InTx(ctx, func(tx transcache.Tx) error {
		var err error
		created, err = tx.Insert(ctx, transcache.NewTranslation{Key: "home.title", Locale: "en", Value: "Welcome", Tag: strp("web")})
		return err
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, "web", *created.Tag)
	assert.False(t, created.UpdatedAt.Before(created.CreatedAt))

	got, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Welcome", got.Value)

	missing, err := s.FindByID(ctx, created.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.InTx(ctx, func(tx transcache.Tx) error {
		_, err := tx.Insert(ctx, transcache.NewTranslation{Key: "home.title", Locale: "en", Value: "Other"})
		return err
	})
	assert.ErrorIs(t, err, transcache.ErrDuplicateKey)
}

func TestUpdateLocksAndRefreshes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.InsertBatch(ctx, []transcache.NewTranslation{
		{Key: "a", Locale: "en", Value: "A"},
		{Key: "b", Locale: "en", Value: "B"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	err = s.InTx(ctx, func(tx transcache.Tx) error {
		cur, err := tx.FindByIDForUpdate(ctx, 1)
		if err != nil || cur == nil {
			return fmt.Errorf("lock: %v", err)
		}
		before := cur.UpdatedAt
		cur.Value = "A2"
		out, err := tx.Update(ctx, cur)
		if err != nil {
			return err
		}
		assert.Equal(t, "A2", out.Value)
		assert.True(t, out.UpdatedAt.After(before))
		return nil
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx transcache.Tx) error {
		cur, _ := tx.FindByIDForUpdate(ctx, 1)
		cur.Key = "b"
		_, err := tx.Update(ctx, cur)
		return err
	})
	assert.ErrorIs(t, err, transcache.ErrDuplicateKey)
}

func TestListChunkAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertBatch(ctx, []transcache.NewTranslation{
		{Key: "promo_50%", Locale: "en", Value: "Half off", Tag: strp("web")},
		{Key: "promo_500", Locale: "en", Value: "Big", Tag: strp("mobile")},
		{Key: "promo_50%", Locale: "fr", Value: "Moitié", Tag: strp("web")},
	})
	require.NoError(t, err)

	rows, err := s.List(ctx, transcache.Filters{Key: "50%"}, 1000)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "the % in the filter must match literally")

	rows, err = s.List(ctx, transcache.Filters{Locale: "en", Tag: "mobile"}, 1000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "promo_500", rows[0].Key)

	rows, err = s.List(ctx, transcache.Filters{}, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	page, err := s.Chunk(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 2, page[0].ID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Total)
	assert.EqualValues(t, 2, st.UniqueKeys)
	assert.EqualValues(t, 2, st.PerLocale["en"])
	assert.EqualValues(t, 2, st.PerTag["web"])
	assert.NotEmpty(t, st.TableSize)
	assert.NotEmpty(t, st.DatabaseSize)
}

func TestInsertBatchAboveParameterLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := make([]transcache.NewTranslation, 12000)
	for i := range rows {
		rows[i] = transcache.NewTranslation{Key: fmt.Sprintf("key_%d", i), Locale: "en", Value: "v"}
	}
	n, err := s.InsertBatch(ctx, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 12000, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 12000, st.Total)
}
