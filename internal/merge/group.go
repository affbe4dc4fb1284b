package merge

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/events"
	"github.com/lherron/contactsync/internal/store"
)

// InsertGroup merges a remote group that has no synced local match. A
// local-only group with the same system identifier or name is coalesced into
// the remote identity instead of creating a duplicate row.
func (e *Engine) InsertGroup(rg *domain.Group) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		existing, err := store.FindUnsyncedGroupTx(tx, rg.Name, rg.SystemID)
		if err != nil {
			return err
		}

		var localID int64
		if existing != nil {
			localID = existing.ID
			if err := e.applyGroupRow(tx, localID, rg, false); err != nil {
				return err
			}
		} else {
			res, err := tx.Exec(`
				INSERT INTO groups (name, notes, system_id, sync_id, sync_account, sync_version, sync_time, dirty)
				VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			`, rg.Name, rg.Notes, rg.SystemID, rg.SyncID, e.remote.Account(), rg.SyncVersion, rg.SyncTime)
			if err != nil {
				return fmt.Errorf("failed to insert group: %w", err)
			}
			localID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get inserted group id: %w", err)
			}
		}

		// The mirror fix-up joins on the group's name, so it runs after the
		// insert is in place.
		if err := store.FixStarredForGroup(tx, localID); err != nil {
			return err
		}

		e.logger.Debug("merged group insert",
			zap.Int64("group_id", localID), zap.Stringp("sync_id", rg.SyncID))
		return ew.LogMerge(tx, "group", localID, "group.merged",
			map[string]any{"op": "insert", "sync_id": rg.SyncID, "coalesced": existing != nil})
	})
}

// UpdateGroup overwrites an unchanged local group with the remote copy.
func (e *Engine) UpdateGroup(local, rg *domain.Group) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if err := e.applyGroupRow(tx, local.ID, rg, false); err != nil {
			return err
		}
		if err := store.FixStarredForGroup(tx, local.ID); err != nil {
			return err
		}

		e.logger.Debug("merged group update",
			zap.Int64("group_id", local.ID), zap.Stringp("sync_id", rg.SyncID))
		return ew.LogMerge(tx, "group", local.ID, "group.merged",
			map[string]any{"op": "update", "sync_id": rg.SyncID})
	})
}

// ResolveGroup merges a remote change into a locally dirty group, keeping
// the dirty flag set.
func (e *Engine) ResolveGroup(local, rg *domain.Group) error {
	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if err := e.applyGroupRow(tx, local.ID, rg, true); err != nil {
			return err
		}
		if err := store.FixStarredForGroup(tx, local.ID); err != nil {
			return err
		}

		e.logger.Debug("resolved group conflict",
			zap.Int64("group_id", local.ID), zap.Stringp("sync_id", rg.SyncID))
		return ew.LogMerge(tx, "group", local.ID, "group.resolved",
			map[string]any{"op": "resolve", "sync_id": rg.SyncID})
	})
}

// DeleteGroup removes a local group whose remote copy is gone. System groups
// are structurally required: deleting one would strand memberships, so the
// delete is ignored and logged. Member starred flags are recomputed from the
// membership state captured before the row goes away.
func (e *Engine) DeleteGroup(local *domain.Group) error {
	if local.SystemID != nil {
		e.logger.Warn("ignoring delete of system group",
			zap.Int64("group_id", local.ID), zap.String("system_id", *local.SystemID))
		return nil
	}

	return e.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		members, err := store.GroupMemberIDsTx(tx, local.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM groups WHERE id = ?", local.ID); err != nil {
			return fmt.Errorf("failed to delete group %d: %w", local.ID, err)
		}

		for _, personID := range members {
			if err := store.FixStarredForPerson(tx, personID); err != nil {
				return err
			}
		}

		e.logger.Debug("merged group delete",
			zap.Int64("group_id", local.ID), zap.Stringp("sync_id", local.SyncID))
		return ew.LogMerge(tx, "group", local.ID, "group.deleted",
			map[string]any{"op": "delete", "sync_id": local.SyncID})
	})
}

func (e *Engine) applyGroupRow(tx *sql.Tx, localID int64, rg *domain.Group, conflict bool) error {
	dirty := 0
	if conflict {
		dirty = 1
	}
	_, err := tx.Exec(`
		UPDATE groups
		SET name = ?, notes = ?, system_id = ?,
			sync_id = ?, sync_account = ?, sync_version = ?, sync_time = ?, dirty = ?
		WHERE id = ?
	`, rg.Name, rg.Notes, rg.SystemID,
		rg.SyncID, e.remote.Account(), rg.SyncVersion, rg.SyncTime, dirty, localID)
	if err != nil {
		return fmt.Errorf("failed to apply remote group fields: %w", err)
	}
	return nil
}
