package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"okr-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the client database: a key/value local-storage table
// and the cache's query snapshots.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteDatabase opens the database at path, which can be a file path or
// ":memory:". The schema is not applied; see Migrate.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and serialises
	// writers on file databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema version matches this binary.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Path returns the path the database was opened with.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Close closes the underlying connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Local storage

// GetItem returns the value stored under key. found is false when the key
// does not exist.
func (s *SQLiteDatabase) GetItem(key string) (value string, found bool, err error) {
	err = s.db.QueryRow("SELECT value FROM local_storage WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading item %q: %w", key, err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *SQLiteDatabase) SetItem(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing item %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (s *SQLiteDatabase) RemoveItem(key string) error {
	if _, err := s.db.Exec("DELETE FROM local_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing item %q: %w", key, err)
	}
	return nil
}

// Query snapshots

// SaveSnapshot records the last successful payload of a cache key.
func (s *SQLiteDatabase) SaveSnapshot(key string, payload []byte, fetchedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO query_snapshots (query_key, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(query_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload, fetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", key, err)
	}
	return nil
}

// LoadSnapshot returns the stored payload of a cache key.
func (s *SQLiteDatabase) LoadSnapshot(key string) ([]byte, time.Time, bool, error) {
	var (
		payload []byte
		millis  int64
	)
	err := s.db.QueryRow("SELECT payload, fetched_at FROM query_snapshots WHERE query_key = ?", key).
		Scan(&payload, &millis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("loading snapshot %q: %w", key, err)
	}
	return payload, time.UnixMilli(millis), true, nil
}

// ClearSnapshots deletes every stored snapshot. Called on logout so the next
// user does not see the previous user's data.
func (s *SQLiteDatabase) ClearSnapshots() error {
	if _, err := s.db.Exec("DELETE FROM query_snapshots"); err != nil {
		return fmt.Errorf("clearing snapshots: %w", err)
	}
	return nil
}
