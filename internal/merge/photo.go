package merge

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/events"
	"github.com/lherron/contactsync/internal/store"
)

// InsertPhoto always fails: photo rows come into existence only as a side
// effect of a person insert, so a direct insert signals a caller defect.
func (e *Engine) InsertPhoto(rp *domain.Photo) error {
	return &domain.UnsupportedOperationError{Resource: "photo", Operation: "insert"}
}

// UpdatePhoto copies the remote photo's sync metadata onto the local row.
// When the remote reports no photo and the local copy has no pending edit,
// the stale local content is cleared.
func (e *Engine) UpdatePhoto(localPersonID int64, rp *domain.Photo) error {
	return e.photoRow(localPersonID, rp, false)
}

// ResolvePhoto is UpdatePhoto for a locally dirty photo row: metadata is
// copied but local content is never cleared while an upload is pending.
func (e *Engine) ResolvePhoto(localPersonID int64, rp *domain.Photo) error {
	return e.photoRow(localPersonID, rp, true)
}

func (e *Engine) photoRow(localPersonID int64, rp *domain.Photo, conflict bool) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		local, err := store.GetPhotoTx(tx, localPersonID)
		if err != nil {
			return err
		}
		if local == nil {
			return fmt.Errorf("photo row not found for person %d", localPersonID)
		}

		dirty := 0
		if conflict {
			dirty = 1
		}
		_, err = tx.Exec(`
			UPDATE photos
			SET sync_id = ?, sync_account = ?, sync_version = ?,
				exists_on_server = ?, download_required = ?, dirty = ?
			WHERE person_id = ?
		`, rp.SyncID, e.remote.Account(), rp.SyncVersion,
			rp.ExistsOnServer, rp.ExistsOnServer, dirty, localPersonID)
		if err != nil {
			return fmt.Errorf("failed to update photo metadata: %w", err)
		}

		if !local.Dirty && !rp.ExistsOnServer {
			if _, err := tx.Exec(`
				UPDATE photos SET data = NULL, download_required = 0 WHERE person_id = ?
			`, localPersonID); err != nil {
				return fmt.Errorf("failed to clear stale photo content: %w", err)
			}
		}

		e.logger.Debug("merged photo metadata", zap.Int64("person_id", localPersonID))
		return ew.LogMerge(tx, "photo", localPersonID, "photo.merged",
			map[string]any{"exists_on_server": rp.ExistsOnServer})
	})
}
