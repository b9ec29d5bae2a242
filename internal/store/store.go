// Package store: sqlite-backed namespace/key blob store (gateway non-volatile storage).
package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sqlite.
type DB struct {
	*sql.DB
}

// Open opens db at path (":memory:" ok), runs migrations. One connection:
// the store has a single writer and :memory: is per-connection.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		);
	`)
	return err
}

// GetBlob returns value for (ns, key) or nil, nil if absent.
func (db *DB) GetBlob(ns, key string) ([]byte, error) {
	var v []byte
	err := db.QueryRow("SELECT value FROM blobs WHERE namespace = ? AND key = ?", ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

// SetBlob replaces value for (ns, key). Write + commit in one transaction:
// a failure leaves the previously committed value.
func (db *DB) SetBlob(ns, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return db.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO blobs (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			ns, key, value, now)
		return err
	})
}

// EraseBlob removes (ns, key); absent key is not an error.
func (db *DB) EraseBlob(ns, key string) error {
	return db.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM blobs WHERE namespace = ? AND key = ?", ns, key)
		return err
	})
}

func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
