package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/types"
)

// ErrJobNotFound is returned when no row matches a job ID.
var ErrJobNotFound = errors.New("job not found")

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db  *sql.DB
	now func() time.Time
}

// NewMetadataDB opens (or creates) the job database at dbPath.
// ":memory:" is accepted.
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single connection: sqlite serializes writers anyway, and an in-memory
	// database exists per connection
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		content_id TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		preview TEXT NOT NULL DEFAULT '',
		preview_count INTEGER NOT NULL DEFAULT 0,
		segment_count INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		gdrive_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON transcripts(created_at);
	CREATE INDEX IF NOT EXISTS idx_request_name ON transcripts(request_name);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MetadataDB{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateJob inserts rec in the QUEUED state.
func (mdb *MetadataDB) CreateJob(ctx context.Context, rec *types.JobRecord) error {
	now := mdb.now()
	rec.Status = types.StatusQueued
	rec.CreatedAt, rec.UpdatedAt = now, now

	query := `
	INSERT INTO transcripts (job_id, request_name, source_type, filename, content_id, tier, model, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := mdb.db.ExecContext(ctx, query, rec.JobID, rec.RequestName, rec.SourceType, rec.Filename,
		rec.ContentID, rec.Tier, rec.Model, rec.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", rec.JobID, err)
	}
	return nil
}

// MarkProcessing moves a job to PROCESSING.
func (mdb *MetadataDB) MarkProcessing(ctx context.Context, jobID string) error {
	return mdb.update(ctx, jobID,
		`UPDATE transcripts SET status = ?, updated_at = ? WHERE job_id = ?`,
		types.StatusProcessing, mdb.now(), jobID)
}

// SetContentID records the content identity once it is known.
func (mdb *MetadataDB) SetContentID(ctx context.Context, jobID, contentID string) error {
	return mdb.update(ctx, jobID,
		`UPDATE transcripts SET content_id = ?, updated_at = ? WHERE job_id = ?`,
		contentID, mdb.now(), jobID)
}

// CompleteJob stores the outcome of a successful job.
func (mdb *MetadataDB) CompleteJob(ctx context.Context, rec *types.JobRecord) error {
	rec.Status = types.StatusCompleted
	rec.UpdatedAt = mdb.now()
	return mdb.update(ctx, rec.JobID, `
	UPDATE transcripts SET status = ?, content_id = ?, preview = ?, preview_count = ?, segment_count = ?,
		cached = ?, local_path = ?, gdrive_url = ?, updated_at = ?
	WHERE job_id = ?`,
		rec.Status, rec.ContentID, rec.Preview, rec.PreviewCount, rec.SegmentCount,
		rec.Cached, rec.LocalPath, rec.GDriveURL, rec.UpdatedAt, rec.JobID)
}

// FailJob marks a job FAILED with a user-facing reason.
func (mdb *MetadataDB) FailJob(ctx context.Context, jobID, reason string) error {
	return mdb.update(ctx, jobID,
		`UPDATE transcripts SET status = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		types.StatusFailed, reason, mdb.now(), jobID)
}

// SetGDriveURL records the Drive link of an exported transcript.
func (mdb *MetadataDB) SetGDriveURL(ctx context.Context, jobID, url string) error {
	return mdb.update(ctx, jobID,
		`UPDATE transcripts SET gdrive_url = ?, updated_at = ? WHERE job_id = ?`,
		url, mdb.now(), jobID)
}

const selectColumns = `
	SELECT job_id, request_name, source_type, filename, content_id, tier, model, status, error,
		preview, preview_count, segment_count, cached, local_path, gdrive_url, created_at, updated_at
	FROM transcripts`

// GetJob retrieves a job by ID.
func (mdb *MetadataDB) GetJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	row := mdb.db.QueryRowContext(ctx, selectColumns+` WHERE job_id = ?`, jobID)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return rec, nil
}

// ListJobs returns the most recent jobs first.
func (mdb *MetadataDB) ListJobs(ctx context.Context, limit int) ([]types.JobRecord, error) {
	rows, err := mdb.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]types.JobRecord, 0, limit)
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *rec)
	}
	return jobs, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*types.JobRecord, error) {
	var rec types.JobRecord
	err := s.Scan(&rec.JobID, &rec.RequestName, &rec.SourceType, &rec.Filename, &rec.ContentID,
		&rec.Tier, &rec.Model, &rec.Status, &rec.Error, &rec.Preview, &rec.PreviewCount,
		&rec.SegmentCount, &rec.Cached, &rec.LocalPath, &rec.GDriveURL, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (mdb *MetadataDB) update(ctx context.Context, jobID, query string, args ...any) error {
	res, err := mdb.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}
