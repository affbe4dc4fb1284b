// Package store provides the persistence layer over the contact database,
// wrapping every mutation in a transaction and logging events alongside.
package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/contactsync/internal/db"
	"github.com/lherron/contactsync/internal/events"
)

// Queryer is satisfied by *sql.DB and *sql.Tx, so ordered row reads work
// against the local store and the remote delta source alike.
type Queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db *db.DB

	People *PersonStore
	Groups *GroupStore
	Photos *PhotoStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.People = &PersonStore{store: s}
	s.Groups = &GroupStore{store: s}
	s.Photos = &PhotoStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// WithTx executes fn within a transaction. If fn returns nil, the
// transaction is committed; otherwise it is rolled back.
func (s *Store) WithTx(fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}
