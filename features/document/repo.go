package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Upsert(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (id, filename, size_bytes, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			size_bytes = EXCLUDED.size_bytes,
			status = EXCLUDED.status,
			failed_stage = '',
			failure_reason = '',
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query, doc.ID, doc.Filename, doc.SizeBytes, doc.Status)
	return err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, stage, reason string) error {
	query := `UPDATE documents SET status = $1, failed_stage = $2, failure_reason = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, stage, reason, id)
	return err
}

// Complete flips the document to its new version in one statement, so readers
// of current versions never see a half-updated row.
func (r *PostgresRepo) Complete(ctx context.Context, doc *Document) error {
	query := `UPDATE documents SET
			status = $1,
			version = $2,
			page_count = $3,
			chunk_count = $4,
			extract_ms = $5,
			chunk_ms = $6,
			embed_ms = $7,
			index_ms = $8,
			failed_stage = '',
			failure_reason = '',
			updated_at = NOW()
		WHERE id = $9`
	_, err := r.db.ExecContext(ctx, query,
		StatusCompleted, doc.Version, doc.PageCount, doc.ChunkCount,
		doc.ExtractMs, doc.ChunkMs, doc.EmbedMs, doc.IndexMs, doc.ID)
	return err
}

const documentColumns = `id, filename, size_bytes, page_count, chunk_count, status, version,
	failed_stage, failure_reason, extract_ms, chunk_ms, embed_ms, index_ms, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.PageCount, &doc.ChunkCount,
		&doc.Status, &doc.Version, &doc.FailedStage, &doc.FailureReason,
		&doc.ExtractMs, &doc.ChunkMs, &doc.EmbedMs, &doc.IndexMs,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.SizeBytes, &doc.PageCount, &doc.ChunkCount,
			&doc.Status, &doc.Version, &doc.FailedStage, &doc.FailureReason,
			&doc.ExtractMs, &doc.ChunkMs, &doc.EmbedMs, &doc.IndexMs,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// CurrentVersions returns the live version per document. Documents that never
// completed an ingest have version 0 and are excluded.
func (r *PostgresRepo) CurrentVersions(ctx context.Context) (map[string]int, error) {
	query := `SELECT id, version FROM documents WHERE version >= 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[string]int)
	for rows.Next() {
		var id string
		var version int
		if err := rows.Scan(&id, &version); err != nil {
			return nil, err
		}
		versions[id] = version
	}
	return versions, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
