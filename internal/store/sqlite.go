package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sebcib/codescope/pkg/models"
)

// SQLiteStore is the embedded local backend. It is the fallback of last
// resort, so every Put commits with synchronous=FULL before returning.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the local mirror at path. Parent
// directories are created if needed and the schema is applied on open.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "local_store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for concurrent reads, FULL sync so a committed write survives
	// power loss. This backend must not lose acknowledged records.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("local store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			source_digest TEXT NOT NULL,
			source_ref TEXT NOT NULL,
			metrics TEXT NOT NULL DEFAULT '{}',
			origin TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_created
			ON analyses(created_at DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_analyses_digest
			ON analyses(source_digest);

		CREATE TABLE IF NOT EXISTS diagnostics (
			record_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			line INTEGER NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (record_id, seq),
			FOREIGN KEY (record_id) REFERENCES analyses(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS suggestions (
			record_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			diagnostic_ref INTEGER,
			explanation TEXT NOT NULL,
			proposed_fix TEXT NOT NULL,
			PRIMARY KEY (record_id, seq),
			FOREIGN KEY (record_id) REFERENCES analyses(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS credential (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			ciphertext BLOB NOT NULL,
			params TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is reachable and writable enough to
// serve as the fallback backend.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Put upserts the record and its child rows in one transaction, so the
// record is never visible half-written.
func (s *SQLiteStore) Put(ctx context.Context, rec *models.AnalysisRecord) error {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, created_at, source_digest, source_ref, metrics, origin)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			source_digest = excluded.source_digest,
			source_ref = excluded.source_ref,
			metrics = excluded.metrics,
			origin = excluded.origin`,
		rec.ID, rec.CreatedAt.UTC().UnixNano(), rec.SourceDigest, rec.SourceRef,
		string(metrics), string(rec.Origin))
	if err != nil {
		return fmt.Errorf("upserting analysis: %w", err)
	}

	// Child rows are replaced wholesale; records are immutable so this only
	// matters for reconciliation overwrites.
	if _, err := tx.ExecContext(ctx, `DELETE FROM diagnostics WHERE record_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing diagnostics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM suggestions WHERE record_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clearing suggestions: %w", err)
	}

	for i, d := range rec.Diagnostics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (record_id, seq, line, kind, message)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, d.Line, d.Kind, d.Message); err != nil {
			return fmt.Errorf("inserting diagnostic: %w", err)
		}
	}
	for i, sg := range rec.Suggestions {
		var ref any
		if sg.DiagnosticRef != nil {
			ref = *sg.DiagnosticRef
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO suggestions (record_id, seq, diagnostic_ref, explanation, proposed_fix)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, i, ref, sg.Explanation, sg.ProposedFix); err != nil {
			return fmt.Errorf("inserting suggestion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing analysis: %w", err)
	}
	return nil
}

// Get returns the full record or models.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	var createdAt int64
	var metrics, origin string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source_digest, source_ref, metrics, origin
		FROM analyses WHERE id = ?`, id,
	).Scan(&rec.ID, &createdAt, &rec.SourceDigest, &rec.SourceRef, &metrics, &origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis: %w", err)
	}

	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.Origin = models.Origin(origin)
	rec.Metrics = map[string]float64{}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics: %w", err)
	}

	if rec.Diagnostics, err = s.loadDiagnostics(ctx, id); err != nil {
		return nil, err
	}
	if rec.Suggestions, err = s.loadSuggestions(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) loadDiagnostics(ctx context.Context, id string) ([]models.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line, kind, message FROM diagnostics
		WHERE record_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []models.Diagnostic{}
	for rows.Next() {
		var d models.Diagnostic
		if err := rows.Scan(&d.Line, &d.Kind, &d.Message); err != nil {
			return nil, fmt.Errorf("scanning diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

func (s *SQLiteStore) loadSuggestions(ctx context.Context, id string) ([]models.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT diagnostic_ref, explanation, proposed_fix FROM suggestions
		WHERE record_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying suggestions: %w", err)
	}
	defer rows.Close()

	suggs := []models.Suggestion{}
	for rows.Next() {
		var sg models.Suggestion
		var ref sql.NullInt64
		if err := rows.Scan(&ref, &sg.Explanation, &sg.ProposedFix); err != nil {
			return nil, fmt.Errorf("scanning suggestion: %w", err)
		}
		if ref.Valid {
			v := int(ref.Int64)
			sg.DiagnosticRef = &v
		}
		suggs = append(suggs, sg)
	}
	return suggs, rows.Err()
}

// List returns summaries ordered by (created_at desc, id desc).
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]models.RecordSummary, error) {
	conditions := []string{"1=1"}
	args := []any{}

	if filter.SourceDigest != "" {
		conditions = append(conditions, "a.source_digest = ?")
		args = append(args, filter.SourceDigest)
	}
	if filter.Origin != "" {
		conditions = append(conditions, "a.origin = ?")
		args = append(args, string(filter.Origin))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "a.created_at >= ?")
		args = append(args, filter.Since.UTC().UnixNano())
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.created_at, a.source_digest, a.source_ref, a.origin,
			(SELECT COUNT(*) FROM diagnostics d WHERE d.record_id = a.id),
			(SELECT COUNT(*) FROM suggestions g WHERE g.record_id = a.id)
		FROM analyses a
		WHERE %s
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?`, strings.Join(conditions, " AND "))
	args = append(args, filter.normalizedLimit(), filter.normalizedOffset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	out := []models.RecordSummary{}
	for rows.Next() {
		var sum models.RecordSummary
		var createdAt int64
		var origin string
		if err := rows.Scan(&sum.ID, &createdAt, &sum.SourceDigest, &sum.SourceRef,
			&origin, &sum.DiagnosticCount, &sum.SuggestionCount); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		sum.Origin = models.Origin(origin)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a record and its child rows via the cascading foreign keys.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateOrigin retags a record; the only mutation allowed after creation.
func (s *SQLiteStore) UpdateOrigin(ctx context.Context, id string, origin models.Origin) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET origin = ? WHERE id = ?`, string(origin), id)
	if err != nil {
		return fmt.Errorf("updating origin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PutCredential upserts the singleton encrypted credential row.
func (s *SQLiteStore) PutCredential(ctx context.Context, cred *models.Credential) error {
	params, err := json.Marshal(cred.Params)
	if err != nil {
		return fmt.Errorf("encoding derivation params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credential (id, ciphertext, params, version, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			params = excluded.params,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		cred.Ciphertext, string(params), cred.Version, cred.UpdatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// GetCredential returns the stored credential or models.ErrNotFound when
// none has ever been stored.
func (s *SQLiteStore) GetCredential(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	var params string
	var updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT ciphertext, params, version, updated_at FROM credential WHERE id = 1`,
	).Scan(&cred.Ciphertext, &params, &cred.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &cred.Params); err != nil {
		return nil, fmt.Errorf("decoding derivation params: %w", err)
	}
	cred.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &cred, nil
}

var _ Store = (*SQLiteStore)(nil)
