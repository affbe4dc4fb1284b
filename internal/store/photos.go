package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/contactsync/internal/domain"
)

// PhotoStore handles photo metadata rows. Binary content belongs to the
// attachment service; this store only tracks identity and sync state.
type PhotoStore struct {
	store *Store
}

const photoColumns = `id, person_id, local_version, sync_id, sync_account,
	sync_version, exists_on_server, download_required, dirty, sync_error`

func scanPhoto(row *sql.Row) (*domain.Photo, error) {
	p := &domain.Photo{}
	err := row.Scan(&p.ID, &p.PersonID, &p.LocalVersion, &p.SyncID, &p.SyncAccount,
		&p.SyncVersion, &p.ExistsOnServer, &p.DownloadRequired, &p.Dirty, &p.SyncError)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPhotoTx loads the photo row for a person. Returns (nil, nil) when the
// person has no photo row.
func GetPhotoTx(q Queryer, personID int64) (*domain.Photo, error) {
	p, err := scanPhoto(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM photos WHERE person_id = ?", photoColumns), personID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo for person %d: %w", personID, err)
	}
	return p, nil
}

// EnsurePhotoRowTx creates the photo row for a person if it does not exist.
func EnsurePhotoRowTx(q Queryer, personID int64) error {
	_, err := q.Exec(`
		INSERT INTO photos (person_id) VALUES (?)
		ON CONFLICT(person_id) DO NOTHING
	`, personID)
	if err != nil {
		return fmt.Errorf("failed to ensure photo row: %w", err)
	}
	return nil
}

// GetByPersonID retrieves the photo row for a person.
func (ph *PhotoStore) GetByPersonID(personID int64) (*domain.Photo, error) {
	return GetPhotoTx(ph.store.db, personID)
}
