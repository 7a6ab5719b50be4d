// Package store provides the SQLite-backed metadata store: uploaded-file
// records, issued tokens, and pending auth codes. A single shared handle is
// serialized by a mutex; callers must not hold it across unrelated I/O.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store manages metadata persistence via SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// UploadRecord is the persisted metadata row for one uniquely-hashed file.
type UploadRecord struct {
	Hash      string    `json:"hash"`
	Filename  string    `json:"filename"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ThumbRecord is one thumbnail-batch item's metadata (filename and size
// replace any prior values for the same hash).
type ThumbRecord struct {
	Hash string
	Name string
	Size string
}

// TokenRecord is an issued session token.
type TokenRecord struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// New opens (creating if needed) the SQLite database at dbPath and
// migrates the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	// SQLite supports only 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate metadata database: %w", err)
	}

	log.Infof("SQLite metadata store initialized at %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		hash       TEXT PRIMARY KEY,
		filename   TEXT,
		size       TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tokens (
		token      TEXT PRIMARY KEY,
		username   TEXT,
		ip         TEXT,
		created_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS auth_codes (
		code       TEXT PRIMARY KEY,
		created_at TIMESTAMP,
		ip         TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// UploadExists reports whether an upload record with the given hash exists.
func (s *Store) UploadExists(ctx context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM uploads WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check upload existence: %w", err)
	}
	return exists, nil
}

// InsertUpload records a newly ingested file. The hash is the primary key;
// callers are expected to have checked UploadExists first, a conflicting
// insert is an error.
func (s *Store) InsertUpload(ctx context.Context, hash, filename, size string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (hash, filename, size, created_at)
		VALUES (?, ?, ?, ?)
	`, hash, filename, size, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}

	log.Debugf("Upload recorded: %s (%s)", filename, hash)
	return nil
}

// UpsertThumbs applies a thumbnail batch inside one transaction. Filename
// and size replace prior values for the same hash; this path intentionally
// differs from InsertUpload's first-writer-wins policy because thumbnails
// are re-synced with refreshed display metadata.
func (s *Store) UpsertThumbs(ctx context.Context, items []ThumbRecord) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin thumb transaction: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO uploads (hash, filename, size, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(hash) DO UPDATE SET
				filename = excluded.filename,
				size = excluded.size
		`, item.Hash, item.Name, item.Size, time.Now().UTC())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert thumb %s: %w", item.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thumb transaction: %w", err)
	}
	return nil
}

// ListUploads returns all upload records.
func (s *Store) ListUploads(ctx context.Context) ([]UploadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, COALESCE(filename, ''), COALESCE(size, ''), created_at FROM uploads`)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var results []UploadRecord
	for rows.Next() {
		var rec UploadRecord
		if err := rows.Scan(&rec.Hash, &rec.Filename, &rec.Size, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// UpsertAuthCode records a generated pairing code bound to the issuing
// server's address. A regenerated identical code replaces the prior row.
func (s *Store) UpsertAuthCode(ctx context.Context, code, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_codes (code, created_at, ip)
		VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			created_at = excluded.created_at,
			ip = excluded.ip
	`, code, time.Now().UTC(), ip)
	if err != nil {
		return fmt.Errorf("failed to record auth code: %w", err)
	}
	return nil
}

// LookupAuthCodeIP returns the address bound to a code, or ErrNotFound.
// The code is read, not consumed.
func (s *Store) LookupAuthCodeIP(ctx context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ip string
	err := s.db.QueryRowContext(ctx,
		`SELECT ip FROM auth_codes WHERE code = ?`, code).Scan(&ip)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up auth code: %w", err)
	}
	return ip, nil
}

// InsertToken persists a freshly minted session token.
func (s *Store) InsertToken(ctx context.Context, token, username, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (token, username, ip, created_at)
		VALUES (?, ?, ?, ?)
	`, token, username, ip, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

// GetToken returns an issued token's record, or ErrNotFound.
func (s *Store) GetToken(ctx context.Context, token string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &TokenRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT token, COALESCE(username, ''), COALESCE(ip, ''), created_at
		FROM tokens WHERE token = ?
	`, token).Scan(&rec.Token, &rec.Username, &rec.IP, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return rec, nil
}

// Close closes the metadata store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
