// Package store persists structured records in SQLite, keyed by name.
// Records are stored in their canonical CBOR wire form. Merge routes an
// incoming record through the engine's reconciliation, so a store accepts
// schema drift exactly as far as the registered type system allows.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/kindred/dispatch"
	"github.com/chazu/kindred/wire"
)

var log = commonlog.GetLogger("kindred.store")

// ErrRecordNotFound indicates the requested record doesn't exist.
var ErrRecordNotFound = errors.New("store: record not found")

// Store handles SQLite storage for structured records.
type Store struct {
	db     *sql.DB
	path   string
	engine *dispatch.Engine
	mu     sync.Mutex
}

// Open creates a record store backed by the SQLite database at path. The
// engine drives Merge reconciliation; it should be frozen before the store
// sees concurrent use.
func Open(path string, engine *dispatch.Engine) (*Store, error) {
	if engine == nil {
		return nil, fmt.Errorf("store: engine is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Busy timeout for concurrent access.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path, engine: engine}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores a record under a name, replacing any previous version.
func (s *Store) Put(name string, rec *dispatch.StructuredRecord) error {
	data, err := wire.MarshalRecord(rec)
	if err != nil {
		return fmt.Errorf("encoding record %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO records (name, data) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data`,
		name, data,
	); err != nil {
		return fmt.Errorf("storing record %q: %w", name, err)
	}
	return nil
}

// Get loads a record by name. Returns ErrRecordNotFound if it doesn't exist.
func (s *Store) Get(name string) (*dispatch.StructuredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(name)
}

func (s *Store) getLocked(name string) (*dispatch.StructuredRecord, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM records WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %q: %w", name, err)
	}

	rec, err := wire.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("decoding record %q: %w", name, err)
	}
	return rec, nil
}

// Delete removes a record by name. Returns ErrRecordNotFound if it doesn't
// exist.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM records WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting record %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record %q: %w", name, err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Names returns the names of all stored records, sorted.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name FROM records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Merge reconciles an incoming record with the stored record of the same
// name and persists the result. A name with no stored record is a plain
// Put. The merged record is returned; a reconciliation failure leaves the
// stored record untouched.
func (s *Store) Merge(name string, rec *dispatch.StructuredRecord) (*dispatch.StructuredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getLocked(name)
	if err == ErrRecordNotFound {
		data, err := wire.MarshalRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding record %q: %w", name, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO records (name, data) VALUES (?, ?)`, name, data,
		); err != nil {
			return nil, fmt.Errorf("storing record %q: %w", name, err)
		}
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	merged, err := s.engine.Reconcile(existing, rec)
	if err != nil {
		return nil, fmt.Errorf("merging record %q: %w", name, err)
	}

	data, err := wire.MarshalRecord(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding record %q: %w", name, err)
	}
	if _, err := s.db.Exec(
		`UPDATE records SET data = ? WHERE name = ?`, data, name,
	); err != nil {
		return nil, fmt.Errorf("storing record %q: %w", name, err)
	}

	log.Infof("merged record %q: %d fields, %d rows", name, len(merged.Fields), merged.Rows())
	return merged, nil
}
