package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sebcib/codescope/pkg/models"
)

// PostgresStore is the remote backend. Records are stored as one JSONB
// document per id with a few extracted columns for ordering and filtering.
// Write failures are always surfaced; this backend never buffers silently.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks connectivity. The gateway uses this as its health probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Put(ctx context.Context, rec *models.AnalysisRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analysis_documents (id, created_at, source_digest, origin, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			source_digest = EXCLUDED.source_digest,
			origin = EXCLUDED.origin,
			doc = EXCLUDED.doc`,
		rec.ID, rec.CreatedAt.UTC(), rec.SourceDigest, string(rec.Origin), doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM analysis_documents WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	var rec models.AnalysisRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if rec.Diagnostics == nil {
		rec.Diagnostics = []models.Diagnostic{}
	}
	if rec.Suggestions == nil {
		rec.Suggestions = []models.Suggestion{}
	}
	return &rec, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.RecordSummary, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.SourceDigest != "" {
		conditions = append(conditions, fmt.Sprintf("source_digest = $%d", argIdx))
		args = append(args, filter.SourceDigest)
		argIdx++
	}
	if filter.Origin != "" {
		conditions = append(conditions, fmt.Sprintf("origin = $%d", argIdx))
		args = append(args, string(filter.Origin))
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since.UTC())
		argIdx++
	}

	query := fmt.Sprintf(`
		SELECT id, created_at, source_digest, doc->>'source_ref', origin,
			COALESCE(jsonb_array_length(doc->'diagnostics'), 0),
			COALESCE(jsonb_array_length(doc->'suggestions'), 0)
		FROM analysis_documents
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, strings.Join(conditions, " AND "), argIdx, argIdx+1)
	args = append(args, filter.normalizedLimit(), filter.normalizedOffset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := []models.RecordSummary{}
	for rows.Next() {
		var sum models.RecordSummary
		var origin string
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.SourceDigest, &sum.SourceRef,
			&origin, &sum.DiagnosticCount, &sum.SuggestionCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		sum.Origin = models.Origin(origin)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analysis_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateOrigin(ctx context.Context, id string, origin models.Origin) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_documents
		SET origin = $2, doc = jsonb_set(doc, '{origin}', to_jsonb($2::text))
		WHERE id = $1`, id, string(origin))
	if err != nil {
		return fmt.Errorf("updating origin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PutCredential(ctx context.Context, cred *models.Credential) error {
	doc, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO credential_documents (id, doc, updated_at)
		VALUES ('default', $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at`,
		doc, cred.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredential(ctx context.Context) (*models.Credential, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM credential_documents WHERE id = 'default'`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	var cred models.Credential
	if err := json.Unmarshal(doc, &cred); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}
	return &cred, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
