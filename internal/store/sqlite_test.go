package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcib/codescope/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(createdAt time.Time) *models.AnalysisRecord {
	ref := 0
	return &models.AnalysisRecord{
		ID:           uuid.New().String(),
		CreatedAt:    createdAt,
		SourceDigest: "digest-" + uuid.New().String()[:8],
		SourceRef:    "main.py",
		Diagnostics: []models.Diagnostic{
			{Line: 3, Kind: models.KindSyntax, Message: "unmatched bracket"},
			{Line: 7, Kind: models.KindStyle, Message: "line exceeds 120 characters"},
		},
		Suggestions: []models.Suggestion{
			{DiagnosticRef: &ref, Explanation: "close the bracket", ProposedFix: "}"},
		},
		Metrics: map[string]float64{"lines_of_code": 42, "diagnostic_count": 2},
		Origin:  models.OriginLocal,
	}
}

func TestSQLiteStore_PutGetRoundtrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord(time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at mismatch: %v vs %v", rec.CreatedAt, got.CreatedAt)
	assert.Equal(t, rec.SourceDigest, got.SourceDigest)
	assert.Equal(t, rec.SourceRef, got.SourceRef)
	assert.Equal(t, rec.Diagnostics, got.Diagnostics)
	assert.Equal(t, rec.Suggestions, got.Suggestions)
	assert.Equal(t, rec.Metrics, got.Metrics)
	assert.Equal(t, models.OriginLocal, got.Origin)
}

func TestSQLiteStore_PutReplacesChildren(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord(time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))

	rec.Diagnostics = rec.Diagnostics[:1]
	rec.Suggestions = nil
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, got.Diagnostics, 1)
	assert.Empty(t, got.Suggestions)
}

func TestSQLiteStore_GetNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLiteStore_ListOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	oldest := testRecord(base.Add(-2 * time.Minute))
	middle := testRecord(base.Add(-1 * time.Minute))
	newest := testRecord(base)
	for _, rec := range []*models.AnalysisRecord{middle, newest, oldest} {
		require.NoError(t, s.Put(ctx, rec))
	}

	summaries, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, newest.ID, summaries[0].ID)
	assert.Equal(t, middle.ID, summaries[1].ID)
	assert.Equal(t, oldest.ID, summaries[2].ID)
}

func TestSQLiteStore_ListTiebreakOnID(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	at := time.Now().UTC()
	a := testRecord(at)
	a.ID = "aaaa"
	b := testRecord(at)
	b.ID = "bbbb"
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))

	summaries, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "bbbb", summaries[0].ID)
	assert.Equal(t, "aaaa", summaries[1].ID)
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	local := testRecord(base.Add(-time.Hour))
	local.Origin = models.OriginLocal
	remote := testRecord(base)
	remote.Origin = models.OriginRemote
	require.NoError(t, s.Put(ctx, local))
	require.NoError(t, s.Put(ctx, remote))

	byOrigin, err := s.List(ctx, ListFilter{Origin: models.OriginLocal})
	require.NoError(t, err)
	require.Len(t, byOrigin, 1)
	assert.Equal(t, local.ID, byOrigin[0].ID)

	byDigest, err := s.List(ctx, ListFilter{SourceDigest: remote.SourceDigest})
	require.NoError(t, err)
	require.Len(t, byDigest, 1)
	assert.Equal(t, remote.ID, byDigest[0].ID)

	since, err := s.List(ctx, ListFilter{Since: base.Add(-time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, remote.ID, since[0].ID)
}

func TestSQLiteStore_ListPagination(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, testRecord(base.Add(time.Duration(i)*time.Second))))
	}

	page, err := s.List(ctx, ListFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	// A negative offset is treated as zero, not passed to the engine.
	all, err := s.List(ctx, ListFilter{Offset: -3})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSQLiteStore_ListEmptyIsNonNil(t *testing.T) {
	s := newTestSQLiteStore(t)

	out, err := s.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSQLiteStore_UpdateOrigin(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord(time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))

	require.NoError(t, s.UpdateOrigin(ctx, rec.ID, models.OriginReconciled))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OriginReconciled, got.Origin)

	assert.ErrorIs(t, s.UpdateOrigin(ctx, "missing", models.OriginRemote), models.ErrNotFound)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testRecord(time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Delete(ctx, rec.ID))

	_, err := s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, rec.ID), models.ErrNotFound)
}

func TestSQLiteStore_CredentialSingleton(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.GetCredential(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	first := &models.Credential{
		Ciphertext: []byte{0x01, 0x02},
		Params: models.KeyDerivationParams{
			Algorithm: "argon2id",
			Salt:      []byte{0xAA},
			Time:      1,
			MemoryKiB: 64 * 1024,
			Threads:   4,
		},
		Version:   models.CredentialVersion,
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.PutCredential(ctx, first))

	second := &models.Credential{
		Ciphertext: []byte{0x03},
		Params:     first.Params,
		Version:    models.CredentialVersion,
		UpdatedAt:  first.UpdatedAt.Add(time.Minute),
	}
	require.NoError(t, s.PutCredential(ctx, second))

	got, err := s.GetCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Ciphertext, got.Ciphertext)
	assert.True(t, second.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSQLiteStore_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)

	rec := testRecord(time.Now().UTC())
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}
