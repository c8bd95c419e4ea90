package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"orderpipeline/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProjectionRecord is a raw row of the projection table.
type ProjectionRecord struct {
	Key       string
	Value     []byte
	Version   int64
	UpdatedAt time.Time
}

// DB is the part of a pgx pool the repository runs on.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ProjectionRepository struct {
	db DB
}

func NewProjectionRepository(db DB) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

// EnsureSchema creates the table and the sequence its versions are drawn
// from. Versions are never reused, even across deletes.
func (r *ProjectionRepository) EnsureSchema(ctx context.Context) error {
	const seq = `CREATE SEQUENCE IF NOT EXISTS projection_version_seq`
	if _, err := r.db.Exec(ctx, seq); err != nil {
		return fmt.Errorf("create projection_version_seq: %w", err)
	}

	const table = `
		CREATE TABLE IF NOT EXISTS projection_entries (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			version    BIGINT NOT NULL DEFAULT nextval('projection_version_seq'),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := r.db.Exec(ctx, table); err != nil {
		return fmt.Errorf("create projection_entries: %w", err)
	}
	return nil
}

func (r *ProjectionRepository) Save(ctx context.Context, key string, value []byte, version string) (string, error) {
	if version == "" {
		const sql = `
			INSERT INTO projection_entries (key, value, version, updated_at)
			VALUES ($1, $2, nextval('projection_version_seq'), NOW())
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value,
				version = EXCLUDED.version,
				updated_at = NOW()
			RETURNING version
		`
		var newVersion int64
		if err := r.db.QueryRow(ctx, sql, key, value).Scan(&newVersion); err != nil {
			return "", fmt.Errorf("upsert projection entry: %w", err)
		}
		return strconv.FormatInt(newVersion, 10), nil
	}

	expected, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		// A token this store never issued cannot match.
		return "", order.ErrVersionConflict
	}

	const sql = `
		UPDATE projection_entries
		SET value = $2, version = nextval('projection_version_seq'), updated_at = NOW()
		WHERE key = $1 AND version = $3
		RETURNING version
	`
	var newVersion int64
	err = r.db.QueryRow(ctx, sql, key, value, expected).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", order.ErrVersionConflict
	}
	if err != nil {
		return "", fmt.Errorf("update projection entry: %w", err)
	}
	return strconv.FormatInt(newVersion, 10), nil
}

func (r *ProjectionRepository) Get(ctx context.Context, key string) ([]byte, string, bool, error) {
	const sql = `
		SELECT value, version
		FROM projection_entries
		WHERE key = $1
	`

	var (
		value   []byte
		version int64
	)
	err := r.db.QueryRow(ctx, sql, key).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("get projection entry: %w", err)
	}
	return value, strconv.FormatInt(version, 10), true, nil
}

func (r *ProjectionRepository) Delete(ctx context.Context, key string) error {
	const sql = `DELETE FROM projection_entries WHERE key = $1`

	if _, err := r.db.Exec(ctx, sql, key); err != nil {
		return fmt.Errorf("delete projection entry: %w", err)
	}
	return nil
}

// ListRecent returns the most recently written entries.
func (r *ProjectionRepository) ListRecent(ctx context.Context, limit int) ([]ProjectionRecord, error) {
	const sql = `
		SELECT key, value, version, updated_at
		FROM projection_entries
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query projection entries: %w", err)
	}
	defer rows.Close()

	var records []ProjectionRecord
	for rows.Next() {
		var rec ProjectionRecord
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan projection entry: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
