package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/names"
	"github.com/kozaktomas/rollcall/internal/store"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// EnrollmentRepository provides PostgreSQL-backed encoding storage.
type EnrollmentRepository struct {
	pool *Pool
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository.
func NewEnrollmentRepository(pool *Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func scanEncodings(rows *sql.Rows) ([]store.Encoding, error) {
	var encodings []store.Encoding
	for rows.Next() {
		var enc store.Encoding
		var vec pgvector.Vector

		if err := rows.Scan(
			&enc.ID,
			&enc.Label,
			&enc.StudentID,
			&vec,
			&enc.Model,
			&enc.Dim,
			&enc.SourcePath,
			&enc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}

		enc.Embedding = vec.Slice()
		encodings = append(encodings, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return encodings, nil
}

// List returns all enrolled encodings.
func (r *EnrollmentRepository) List(ctx context.Context) ([]store.Encoding, error) {
	query := `
		SELECT id, label, student_id, embedding, model, dim, source_path, created_at
		FROM enrollments
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	return scanEncodings(rows)
}

// GetByLabel retrieves all encodings for a label.
func (r *EnrollmentRepository) GetByLabel(ctx context.Context, label string) ([]store.Encoding, error) {
	query := `
		SELECT id, label, student_id, embedding, model, dim, source_path, created_at
		FROM enrollments
		WHERE label = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, label)
	if err != nil {
		return nil, fmt.Errorf("query enrollments by label: %w", err)
	}
	defer rows.Close()

	return scanEncodings(rows)
}

// Has checks if any encoding exists for the given label.
func (r *EnrollmentRepository) Has(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM enrollments WHERE label = $1)", label).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return exists, nil
}

// Count returns the total number of encodings stored.
func (r *EnrollmentRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM enrollments").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// Save stores encodings, replacing existing ones from the same
// (label, source path) pair.
func (r *EnrollmentRepository) Save(ctx context.Context, encodings []store.Encoding) error {
	query := `
		INSERT INTO enrollments (label, student_id, embedding, model, dim, source_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (label, source_path) DO UPDATE SET
			student_id = EXCLUDED.student_id,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			created_at = NOW()
	`

	for _, enc := range encodings {
		// The vector(512) column rejects other dimensions anyway, but
		// failing here names the offending label instead of surfacing a
		// driver error.
		if len(enc.Embedding) != store.EncodingDim {
			return fmt.Errorf("enrollment for %s has %d-dimensional embedding, expected %d",
				enc.Label, len(enc.Embedding), store.EncodingDim)
		}
		_, err := r.pool.Exec(ctx, query,
			enc.Label,
			enc.StudentID,
			pgvector.NewVector(enc.Embedding),
			enc.Model,
			enc.Dim,
			enc.SourcePath,
		)
		if err != nil {
			return fmt.Errorf("save enrollment for %s: %w", enc.Label, err)
		}
	}
	return nil
}

// DeleteByLabel removes all encodings whose label matches after
// normalization. Matching happens in Go because normalization rules live
// in the names package, not in SQL.
func (r *EnrollmentRepository) DeleteByLabel(ctx context.Context, label string) (int, error) {
	rows, err := r.pool.Query(ctx, "SELECT DISTINCT label FROM enrollments")
	if err != nil {
		return 0, fmt.Errorf("query enrollment labels: %w", err)
	}
	defer rows.Close()

	want := names.Normalize(label)
	var matched []string
	for rows.Next() {
		var stored string
		if err := rows.Scan(&stored); err != nil {
			return 0, fmt.Errorf("scan enrollment label: %w", err)
		}
		if names.Normalize(stored) == want {
			matched = append(matched, stored)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate enrollment labels: %w", err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	result, err := r.pool.Exec(ctx, "DELETE FROM enrollments WHERE label = ANY($1)", pq.Array(matched))
	if err != nil {
		return 0, fmt.Errorf("delete enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// FindNearest returns the closest enrolled encodings to a query vector
// ordered by cosine distance.
func (r *EnrollmentRepository) FindNearest(ctx context.Context, embedding []float32, limit int) ([]store.Encoding, []float64, error) {
	query := `
		SELECT id, label, student_id, embedding, model, dim, source_path, created_at,
		       embedding <=> $1 AS distance
		FROM enrollments
		ORDER BY distance
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest enrollments: %w", err)
	}
	defer rows.Close()

	var encodings []store.Encoding
	var distances []float64
	for rows.Next() {
		var enc store.Encoding
		var vec pgvector.Vector
		var distance float64

		if err := rows.Scan(
			&enc.ID,
			&enc.Label,
			&enc.StudentID,
			&vec,
			&enc.Model,
			&enc.Dim,
			&enc.SourcePath,
			&enc.CreatedAt,
			&distance,
		); err != nil {
			return nil, nil, fmt.Errorf("scan nearest encoding: %w", err)
		}

		enc.Embedding = vec.Slice()
		encodings = append(encodings, enc)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest encodings: %w", err)
	}

	return encodings, distances, nil
}
