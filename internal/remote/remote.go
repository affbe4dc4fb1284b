// Package remote exposes a server-derived snapshot database as a key-ordered
// row source with the same query shape as the local store.
package remote

import (
	"fmt"

	"github.com/lherron/contactsync/internal/db"
	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/store"
)

// Source wraps the remote delta database for one account.
type Source struct {
	db      *db.DB
	account string
}

// Open opens the remote snapshot database at path.
func Open(path, account string) (*Source, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote snapshot: %w", err)
	}
	return &Source{db: database, account: account}, nil
}

// New wraps an already open database as a remote source.
func New(database *db.DB, account string) *Source {
	return &Source{db: database, account: account}
}

// Close closes the underlying database.
func (s *Source) Close() error {
	return s.db.Close()
}

// Account returns the account this snapshot was downloaded for.
func (s *Source) Account() string {
	return s.account
}

// DB exposes the snapshot for ordered sub-record reads.
func (s *Source) DB() store.Queryer {
	return s.db
}

// Persons returns all remote person rows, tombstones included, ordered by
// remote sync id.
func (s *Source) Persons() ([]*domain.Person, error) {
	rows, err := s.db.Query(`
		SELECT id, lookup_uuid, display_name, notes, starred,
			custom_ringtone, send_to_voicemail,
			primary_phone_id, primary_email_id, primary_organization_id,
			sync_id, sync_account, sync_version, sync_time, dirty, deleted
		FROM people
		WHERE sync_id IS NOT NULL
		ORDER BY sync_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query remote persons: %w", err)
	}
	defer rows.Close()

	var out []*domain.Person
	for rows.Next() {
		p := &domain.Person{}
		err := rows.Scan(
			&p.ID, &p.LookupUUID, &p.DisplayName, &p.Notes, &p.Starred,
			&p.CustomRingtone, &p.SendToVoicemail,
			&p.PrimaryPhoneID, &p.PrimaryEmailID, &p.PrimaryOrganizationID,
			&p.SyncID, &p.SyncAccount, &p.SyncVersion, &p.SyncTime, &p.Dirty, &p.Deleted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remote person: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote persons: %w", err)
	}
	return out, nil
}

// Groups returns all remote group rows, tombstones included, ordered by
// remote sync id.
func (s *Source) Groups() ([]*domain.Group, error) {
	rows, err := s.db.Query(`
		SELECT id, name, notes, system_id, sync_id, sync_account,
			sync_version, sync_time, dirty, deleted
		FROM groups
		WHERE sync_id IS NOT NULL
		ORDER BY sync_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query remote groups: %w", err)
	}
	defer rows.Close()

	var out []*domain.Group
	for rows.Next() {
		g := &domain.Group{}
		err := rows.Scan(&g.ID, &g.Name, &g.Notes, &g.SystemID, &g.SyncID,
			&g.SyncAccount, &g.SyncVersion, &g.SyncTime, &g.Dirty, &g.Deleted)
		if err != nil {
			return nil, fmt.Errorf("failed to scan remote group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote groups: %w", err)
	}
	return out, nil
}

// SubRecords returns one category's rows for a remote person, in the
// category's canonical key order.
func (s *Source) SubRecords(d domain.SubEntityDescriptor, remotePersonID int64) ([]domain.SubRecord, error) {
	return store.SubRecords(s.db, d, remotePersonID)
}

// Photo returns the remote photo row for a remote person, or (nil, nil).
func (s *Source) Photo(remotePersonID int64) (*domain.Photo, error) {
	return store.GetPhotoTx(s.db, remotePersonID)
}
