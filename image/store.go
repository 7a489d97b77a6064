package image

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrImageNotFound indicates the requested image doesn't exist in the store.
var ErrImageNotFound = errors.New("image not found")

// Store keeps serialized images in a SQLite database, keyed by name.
// It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenStore opens (creating if needed) an image store at the given path.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// Busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS images (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put serializes the image and stores it under its name, replacing any
// previous version.
func (s *Store) Put(img *Image) error {
	if img.Name == "" {
		return errors.New("image has no name")
	}
	data, err := Marshal(img)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO images (name, data) VALUES (?, ?)",
		img.Name, data,
	); err != nil {
		return fmt.Errorf("storing image %s: %w", img.Name, err)
	}
	return nil
}

// Get loads and decodes the named image.
func (s *Store) Get(name string) (*Image, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM images WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("querying image %s: %w", name, err)
	}
	return Unmarshal(data)
}

// List returns the names of all stored images in sorted order.
func (s *Store) List() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM images ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning image name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the named image. Deleting a missing image is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM images WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting image %s: %w", name, err)
	}
	return nil
}
