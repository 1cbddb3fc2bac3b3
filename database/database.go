// Package database persists fingerprint records and matcher reports to SQLite
// so they can be queried outside the tool.
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"imagedupes/imageprocessor"
	"imagedupes/logging"
	"imagedupes/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		file_name TEXT,
		format TEXT,
		width INTEGER,
		height INTEGER,
		aspect_ratio REAL,
		size INTEGER,
		file_hash TEXT,
		image_hash TEXT,
		perceptual_hash TEXT,
		perceptual_flat INTEGER,
		rotation_hash TEXT,
		rotation_0 TEXT,
		rotation_90 TEXT,
		rotation_180 TEXT,
		rotation_270 TEXT,
		quadrant TEXT,
		run_id TEXT,
		updated_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_file_hash ON images(file_hash);
	CREATE INDEX IF NOT EXISTS idx_image_hash ON images(image_hash);
	CREATE INDEX IF NOT EXISTS idx_rotation_hash ON images(rotation_hash);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		created_at TEXT NOT NULL,
		considered INTEGER,
		skipped INTEGER
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		group_index INTEGER,
		path TEXT NOT NULL,
		matched_path TEXT NOT NULL,
		distance INTEGER,
		reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_matches_run ON matches(run_id);

	CREATE TABLE IF NOT EXISTS violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		other_path TEXT NOT NULL,
		field TEXT NOT NULL,
		message TEXT
	);`

// maxOpenRetries bounds how often a locked or busy database is retried on open
const maxOpenRetries = 3

// InitDatabase opens dbPath, creating the schema if needed. Opening is retried
// with exponential backoff since another process may briefly hold the file lock.
func InitDatabase(dbPath string) (*sql.DB, error) {
	var db *sql.DB
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		db, err = initDatabase(dbPath)
		if err != nil {
			logging.LogWarning("Error initializing database (attempt %d/%d): %v", attempt, maxOpenRetries+1, err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxOpenRetries)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrapf(err, "initialize database %s", dbPath)
	}
	return db, nil
}

func initDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	// Databases created before undecodable files were recorded lack this column
	if err := ensureColumn(db, "images", "decode_error", "TEXT"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureColumn(db *sql.DB, table, column, kind string) error {
	var present bool
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name=?", table), column).Scan(&present)
	if err != nil {
		return errors.Wrapf(err, "check for %s.%s column", table, column)
	}
	if present {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, column, kind)); err != nil {
		return errors.Wrapf(err, "add %s.%s column", table, column)
	}
	logging.DebugLog("Added '%s' column to existing %s table", column, table)
	return nil
}

// NewRunID returns an identifier for one scan or match run
func NewRunID() string {
	return uuid.NewString()
}

// StoreRecords writes records in one transaction, replacing any earlier row for the same path
func StoreRecords(db *sql.DB, runID string, records []types.FingerprintRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO images (
			path, file_name, format, width, height, aspect_ratio, size,
			file_hash, image_hash, perceptual_hash, perceptual_flat,
			rotation_hash, rotation_0, rotation_90, rotation_180, rotation_270,
			quadrant, decode_error, run_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare image insert")
	}
	defer stmt.Close()

	now := time.Now().Format(time.RFC3339)
	for _, r := range records {
		_, err := stmt.Exec(
			r.Key,
			r.FileName,
			string(imageprocessor.GetFileFormat(r.Key)),
			r.Width,
			r.Height,
			r.AspectRatio,
			r.FileSize,
			formatHash(r.FileContentHash),
			formatHash(r.FullImageHash),
			formatHash(r.PerceptualHash),
			r.PerceptualFlat,
			formatHash(r.RotationInvariantHash),
			formatHash(r.RotationHashes[0]),
			formatHash(r.RotationHashes[1]),
			formatHash(r.RotationHashes[2]),
			formatHash(r.RotationHashes[3]),
			formatWords(r.QuadrantFingerprint),
			nullable(r.DecodeError),
			runID,
			now,
		)
		if err != nil {
			return errors.Wrapf(err, "cannot insert data for %s", r.Key)
		}
	}

	return errors.Wrap(tx.Commit(), "commit records")
}

// StoreReport records one matcher run: its groups' edges, nearest matches and violations
func StoreReport(db *sql.DB, runID, mode string, report types.Report) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (id, mode, created_at, considered, skipped) VALUES (?, ?, ?, ?, ?)`,
		runID, mode, time.Now().Format(time.RFC3339), report.Considered, report.Skipped)
	if err != nil {
		return errors.Wrapf(err, "insert run %s", runID)
	}

	insertMatch, err := tx.Prepare(`
		INSERT INTO matches (run_id, group_index, path, matched_path, distance, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare match insert")
	}
	defer insertMatch.Close()

	for i, g := range report.Groups {
		for _, e := range g.Edges {
			if _, err := insertMatch.Exec(runID, i, e.Key, e.MatchedKey, e.Distance, string(e.Reason)); err != nil {
				return errors.Wrapf(err, "insert edge %s -> %s", e.Key, e.MatchedKey)
			}
		}
	}
	for _, m := range report.Matches {
		if _, err := insertMatch.Exec(runID, nil, m.Key, m.MatchedKey, m.Distance, string(m.Reason)); err != nil {
			return errors.Wrapf(err, "insert match %s -> %s", m.Key, m.MatchedKey)
		}
	}

	for _, v := range report.Violations {
		_, err := tx.Exec(`INSERT INTO violations (run_id, path, other_path, field, message) VALUES (?, ?, ?, ?, ?)`,
			runID, v.Key, v.OtherKey, v.Field, v.Message)
		if err != nil {
			return errors.Wrapf(err, "insert violation %s / %s", v.Key, v.OtherKey)
		}
	}

	return errors.Wrap(tx.Commit(), "commit report")
}

// ScanStats contains statistics about stored records
type ScanStats struct {
	TotalImages  int
	ErrorCount   int
	UniqueHashes int
	Runs         int
}

// GetScanStats retrieves statistics about stored records
func GetScanStats(db *sql.DB) (*ScanStats, error) {
	var stats ScanStats

	queries := []struct {
		query string
		dest  *int
		what  string
	}{
		{"SELECT COUNT(*) FROM images", &stats.TotalImages, "total images"},
		{"SELECT COUNT(*) FROM images WHERE decode_error IS NOT NULL", &stats.ErrorCount, "undecoded images"},
		{"SELECT COUNT(DISTINCT file_hash) FROM images", &stats.UniqueHashes, "unique hashes"},
		{"SELECT COUNT(*) FROM runs", &stats.Runs, "runs"},
	}
	for _, q := range queries {
		if err := db.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, errors.Wrapf(err, "failed to get %s", q.what)
		}
	}

	return &stats, nil
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func formatWords(words []uint64) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strconv.FormatUint(w, 16)
	}
	return strings.Join(parts, ",")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
