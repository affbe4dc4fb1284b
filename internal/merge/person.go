package merge

import (
	"database/sql"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/events"
	"github.com/lherron/contactsync/internal/store"
)

// InsertPerson creates a local person from a remote row that has no local
// match, copying every sub-record. The fresh row has nothing to re-sync, so
// it is committed clean.
func (e *Engine) InsertPerson(rp *domain.Person) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			INSERT INTO people (lookup_uuid, display_name, notes, custom_ringtone,
				send_to_voicemail, sync_id, sync_account, sync_version, sync_time, dirty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		`, newLookupUUID(), rp.DisplayName, rp.Notes, rp.CustomRingtone,
			rp.SendToVoicemail, rp.SyncID, e.remote.Account(), rp.SyncVersion, rp.SyncTime)
		if err != nil {
			return fmt.Errorf("failed to insert person: %w", err)
		}
		localID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get inserted person id: %w", err)
		}

		if err := e.mergeSubEntities(tx, localID, rp.ID, false); err != nil {
			return err
		}
		if err := e.copyPhotoIdentity(tx, localID, rp.ID); err != nil {
			return err
		}
		if err := store.FixStarredForPerson(tx, localID); err != nil {
			return err
		}

		e.logger.Debug("merged person insert",
			zap.Int64("person_id", localID), zap.Stringp("sync_id", rp.SyncID))
		return ew.LogMerge(tx, "person", localID, "person.merged",
			map[string]any{"op": "insert", "sync_id": rp.SyncID})
	})
}

// UpdatePerson overwrites an unchanged local person with the remote copy and
// reconciles every sub-record. The row comes out clean.
func (e *Engine) UpdatePerson(local, rp *domain.Person) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if err := e.applyPersonRow(tx, local.ID, rp, false); err != nil {
			return err
		}

		e.logger.Debug("merged person update",
			zap.Int64("person_id", local.ID), zap.Stringp("sync_id", rp.SyncID))
		return ew.LogMerge(tx, "person", local.ID, "person.merged",
			map[string]any{"op": "update", "sync_id": rp.SyncID})
	})
}

// ResolvePerson merges a remote change into a locally dirty person. Local
// sub-records that vanished remotely are preserved, and the dirty flag stays
// set so the surviving local differences are offered upstream on the next
// outbound sync.
func (e *Engine) ResolvePerson(local, rp *domain.Person) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if err := e.applyPersonRow(tx, local.ID, rp, true); err != nil {
			return err
		}

		diff, err := personDiff(local, rp)
		if err != nil {
			return err
		}

		e.logger.Debug("resolved person conflict",
			zap.Int64("person_id", local.ID), zap.Stringp("sync_id", rp.SyncID))
		return ew.LogMerge(tx, "person", local.ID, "person.resolved",
			map[string]any{"op": "resolve", "sync_id": rp.SyncID, "diff": diff})
	})
}

// DeletePerson removes a local person whose remote copy is gone. Sub-records
// go with it by cascade.
func (e *Engine) DeletePerson(local *domain.Person) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.Exec("DELETE FROM people WHERE id = ?", local.ID); err != nil {
			return fmt.Errorf("failed to delete person %d: %w", local.ID, err)
		}

		e.logger.Debug("merged person delete",
			zap.Int64("person_id", local.ID), zap.Stringp("sync_id", local.SyncID))
		return ew.LogMerge(tx, "person", local.ID, "person.deleted",
			map[string]any{"op": "delete", "sync_id": local.SyncID})
	})
}

// applyPersonRow is the shared body of Update and Resolve: remote wins on
// person field content, sub-records are reconciled, pointers and starred are
// recomputed from the final state, and the dirty flag reflects the branch.
func (e *Engine) applyPersonRow(tx *sql.Tx, localID int64, rp *domain.Person, conflict bool) error {
	dirty := 0
	if conflict {
		dirty = 1
	}
	_, err := tx.Exec(`
		UPDATE people
		SET display_name = ?, notes = ?, custom_ringtone = ?, send_to_voicemail = ?,
			sync_version = ?, sync_time = ?, dirty = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
		WHERE id = ?
	`, rp.DisplayName, rp.Notes, rp.CustomRingtone, rp.SendToVoicemail,
		rp.SyncVersion, rp.SyncTime, dirty, localID)
	if err != nil {
		return fmt.Errorf("failed to apply remote person fields: %w", err)
	}

	if err := e.mergeSubEntities(tx, localID, rp.ID, conflict); err != nil {
		return err
	}
	if err := e.copyPhotoIdentity(tx, localID, rp.ID); err != nil {
		return err
	}
	return store.FixStarredForPerson(tx, localID)
}

// copyPhotoIdentity copies the remote photo's sync identity onto the local
// photo row. Binary content is fetched by the attachment service, which
// watches download_required.
func (e *Engine) copyPhotoIdentity(tx *sql.Tx, localPersonID, remotePersonID int64) error {
	rphoto, err := e.remote.Photo(remotePersonID)
	if err != nil {
		return err
	}
	if rphoto == nil {
		return nil
	}

	if err := store.EnsurePhotoRowTx(tx, localPersonID); err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE photos
		SET sync_id = ?, sync_account = ?, sync_version = ?,
			exists_on_server = ?, download_required = ?
		WHERE person_id = ?
	`, rphoto.SyncID, e.remote.Account(), rphoto.SyncVersion,
		rphoto.ExistsOnServer, rphoto.ExistsOnServer, localPersonID)
	if err != nil {
		return fmt.Errorf("failed to copy photo identity: %w", err)
	}
	return nil
}

func personDiff(local, rp *domain.Person) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(personFields(local)),
		B:        difflib.SplitLines(personFields(rp)),
		FromFile: "local",
		ToFile:   "remote",
		Context:  2,
	})
	if err != nil {
		return "", fmt.Errorf("failed to diff person fields: %w", err)
	}
	return diff, nil
}

func personFields(p *domain.Person) string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return fmt.Sprintf("display_name: %s\nnotes: %s\ncustom_ringtone: %s\nsend_to_voicemail: %t\nsync_version: %s\n",
		deref(p.DisplayName), deref(p.Notes), deref(p.CustomRingtone),
		p.SendToVoicemail, deref(p.SyncVersion))
}
