package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imgscrape/internal/model"
)

// FileName is the database file name inside the data directory.
const FileName = "imgscrape.db"

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores crawl runs and the images they saved.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a new file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root_url TEXT NOT NULL,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		resumed INTEGER DEFAULT 0,
		pages_found INTEGER DEFAULT 0,
		pages_crawled INTEGER DEFAULT 0,
		images_found INTEGER DEFAULT 0,
		images_downloaded INTEGER DEFAULT 0,
		images_skipped INTEGER DEFAULT 0,
		images_failed INTEGER DEFAULT 0,
		bytes_downloaded INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(root_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		page_url TEXT,
		hash TEXT NOT NULL,
		path TEXT NOT NULL,
		bytes INTEGER DEFAULT 0,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		format TEXT,
		converted INTEGER DEFAULT 0,
		camera_make TEXT,
		camera_model TEXT,
		taken_at TEXT,
		downloaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_run ON images(run_id);
	CREATE INDEX IF NOT EXISTS idx_images_hash ON images(hash);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun inserts or updates a run.
func (hdb *HistoryDB) SaveRun(ctx context.Context, run *model.RunSummary) error {
	query := `
	INSERT INTO runs (id, root_url, mode, state, started_at, finished_at, resumed,
		pages_found, pages_crawled, images_found, images_downloaded, images_skipped,
		images_failed, bytes_downloaded, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		finished_at = excluded.finished_at,
		resumed = excluded.resumed,
		pages_found = excluded.pages_found,
		pages_crawled = excluded.pages_crawled,
		images_found = excluded.images_found,
		images_downloaded = excluded.images_downloaded,
		images_skipped = excluded.images_skipped,
		images_failed = excluded.images_failed,
		bytes_downloaded = excluded.bytes_downloaded,
		error = excluded.error
	`

	_, err := hdb.db.ExecContext(ctx, query,
		run.ID,
		run.RootURL,
		run.Mode,
		run.State,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		run.Resumed,
		run.PagesFound,
		run.PagesCrawled,
		run.ImagesFound,
		run.ImagesDownloaded,
		run.ImagesSkipped,
		run.ImagesFailed,
		run.BytesDownloaded,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RecordImage inserts one saved image.
func (hdb *HistoryDB) RecordImage(ctx context.Context, rec model.ImageRecord) error {
	query := `
	INSERT INTO images (run_id, url, page_url, hash, path, bytes, width, height, format,
		converted, camera_make, camera_model, taken_at, downloaded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := hdb.db.ExecContext(ctx, query,
		rec.RunID,
		rec.URL,
		rec.PageURL,
		rec.Hash,
		rec.Path,
		rec.Bytes,
		rec.Width,
		rec.Height,
		rec.Format,
		rec.Converted,
		rec.CameraMake,
		rec.CameraModel,
		rec.TakenAt,
		formatTimestamp(rec.DownloadedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record image: %w", err)
	}
	return nil
}

const runColumns = `id, root_url, mode, state, started_at, finished_at, resumed,
	pages_found, pages_crawled, images_found, images_downloaded, images_skipped,
	images_failed, bytes_downloaded, error`

// GetRun retrieves a run by ID.
func (hdb *HistoryDB) GetRun(ctx context.Context, id string) (*model.RunSummary, error) {
	row := hdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty rootURL lists every run;
// limit <= 0 means no limit.
func (hdb *HistoryDB) ListRuns(ctx context.Context, rootURL string, limit int) ([]*model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := make([]any, 0, 2)

	if rootURL != "" {
		query += " AND root_url = ?"
		args = append(args, rootURL)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListImages returns the images saved by a run in download order.
func (hdb *HistoryDB) ListImages(ctx context.Context, runID string) ([]model.ImageRecord, error) {
	query := `
	SELECT run_id, url, page_url, hash, path, bytes, width, height, format, converted,
		camera_make, camera_model, taken_at, downloaded_at
	FROM images
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := hdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	var records []model.ImageRecord
	for rows.Next() {
		var rec model.ImageRecord
		var pageURL, format, cameraMake, cameraModel, takenAt sql.NullString
		var downloadedAt string

		err := rows.Scan(
			&rec.RunID,
			&rec.URL,
			&pageURL,
			&rec.Hash,
			&rec.Path,
			&rec.Bytes,
			&rec.Width,
			&rec.Height,
			&format,
			&rec.Converted,
			&cameraMake,
			&cameraModel,
			&takenAt,
			&downloadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		rec.PageURL = pageURL.String
		rec.Format = format.String
		rec.CameraMake = cameraMake.String
		rec.CameraModel = cameraModel.String
		rec.TakenAt = takenAt.String
		rec.DownloadedAt = parseTimestamp(downloadedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasHash reports whether any run saved content with hash.
func (hdb *HistoryDB) HasHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := hdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE hash = ?`, hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check hash: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.RunSummary, error) {
	var run model.RunSummary
	var startedAt string
	var finishedAt, runErr sql.NullString

	err := row.Scan(
		&run.ID,
		&run.RootURL,
		&run.Mode,
		&run.State,
		&startedAt,
		&finishedAt,
		&run.Resumed,
		&run.PagesFound,
		&run.PagesCrawled,
		&run.ImagesFound,
		&run.ImagesDownloaded,
		&run.ImagesSkipped,
		&run.ImagesFailed,
		&run.BytesDownloaded,
		&runErr,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt.String)
	run.Error = runErr.String
	if !run.FinishedAt.IsZero() {
		run.Duration = run.FinishedAt.Sub(run.StartedAt)
	}
	return &run, nil
}

// formatTimestamp stores times in UTC RFC3339 so that text ordering matches
// time ordering. The zero time is stored as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that may be read back.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
