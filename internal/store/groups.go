package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/events"
)

// GroupStore handles group persistence operations.
type GroupStore struct {
	store *Store
}

// GroupCreateParams contains parameters for creating a new group.
type GroupCreateParams struct {
	Name        string
	Notes       *string
	SystemID    *string
	SyncAccount *string
}

const groupColumns = `id, name, notes, system_id, sync_id, sync_account,
	sync_version, sync_time, dirty, deleted`

func scanGroup(row *sql.Row) (*domain.Group, error) {
	g := &domain.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.Notes, &g.SystemID, &g.SyncID,
		&g.SyncAccount, &g.SyncVersion, &g.SyncTime, &g.Dirty, &g.Deleted)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroupTx loads one group by id. Returns (nil, nil) when absent.
func GetGroupTx(q Queryer, id int64) (*domain.Group, error) {
	g, err := scanGroup(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM groups WHERE id = ?", groupColumns), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	return g, nil
}

// GetGroupBySyncTx loads one group by its remote identity. Returns
// (nil, nil) when absent.
func GetGroupBySyncTx(q Queryer, account, syncID string) (*domain.Group, error) {
	g, err := scanGroup(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM groups WHERE sync_account = ? AND sync_id = ?", groupColumns),
		account, syncID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group by sync id %s: %w", syncID, err)
	}
	return g, nil
}

// FindUnsyncedGroupTx finds a local-only group to coalesce a remote insert
// into, matching by system identifier first, then by name.
func FindUnsyncedGroupTx(q Queryer, name string, systemID *string) (*domain.Group, error) {
	if systemID != nil {
		g, err := scanGroup(q.QueryRow(
			fmt.Sprintf("SELECT %s FROM groups WHERE sync_id IS NULL AND system_id = ?", groupColumns),
			*systemID))
		if err == nil {
			return g, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to find group by system id: %w", err)
		}
	}
	g, err := scanGroup(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM groups WHERE sync_id IS NULL AND name = ?", groupColumns), name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group by name: %w", err)
	}
	return g, nil
}

// GetByID retrieves a group by id.
func (gs *GroupStore) GetByID(id int64) (*domain.Group, error) {
	return GetGroupTx(gs.store.db, id)
}

// GetBySyncID retrieves a group by its remote identity.
func (gs *GroupStore) GetBySyncID(account, syncID string) (*domain.Group, error) {
	return GetGroupBySyncTx(gs.store.db, account, syncID)
}

// Create creates a new local group marked dirty.
func (gs *GroupStore) Create(params GroupCreateParams) (*domain.Group, error) {
	var group *domain.Group

	err := gs.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			INSERT INTO groups (name, notes, system_id, sync_account, dirty)
			VALUES (?, ?, ?, ?, 1)
		`, params.Name, params.Notes, params.SystemID, params.SyncAccount)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get group id: %w", err)
		}

		group, err = GetGroupTx(tx, id)
		if err != nil {
			return err
		}

		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "group",
			ResourceID:   &id,
			EventType:    "group.created",
		})
	})

	return group, err
}

// Rename changes a group's name and restores the starred mirror for every
// person linked to it, since the mirror matches on the group name.
func (gs *GroupStore) Rename(id int64, newName string) error {
	return gs.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		group, err := GetGroupTx(tx, id)
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("group not found: %d", id)
		}

		if _, err := tx.Exec("UPDATE groups SET name = ?, dirty = 1 WHERE id = ?", newName, id); err != nil {
			return fmt.Errorf("failed to rename group: %w", err)
		}

		if err := FixStarredForGroup(tx, id); err != nil {
			return err
		}

		payload := fmt.Sprintf(`{"old_name":%q,"new_name":%q}`, group.Name, newName)
		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "group",
			ResourceID:   &id,
			EventType:    "group.renamed",
			Payload:      &payload,
		})
	})
}

// Delete removes a group. System groups are structurally required and cannot
// be deleted. Starred flags of former members are recomputed after the
// memberships cascade away.
func (gs *GroupStore) Delete(id int64) error {
	return gs.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		group, err := GetGroupTx(tx, id)
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("group not found: %d", id)
		}
		if group.SystemID != nil {
			return &domain.UnsupportedOperationError{Resource: "system group", Operation: "delete"}
		}

		members, err := GroupMemberIDsTx(tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM groups WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}

		for _, personID := range members {
			if err := FixStarredForPerson(tx, personID); err != nil {
				return err
			}
		}

		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "group",
			ResourceID:   &id,
			EventType:    "group.deleted",
		})
	})
}

// GroupMemberIDsTx returns the ids of every person linked to a group, by
// local id or by the group's remote identity.
func GroupMemberIDsTx(q Queryer, groupID int64) ([]int64, error) {
	rows, err := q.Query(`
		SELECT DISTINCT gm.person_id FROM group_memberships gm
		WHERE gm.group_id = ?1
		   OR (gm.sync_group_id IS NOT NULL
		       AND gm.sync_group_id = (SELECT sync_id FROM groups WHERE id = ?1)
		       AND gm.sync_account IS (SELECT sync_account FROM groups WHERE id = ?1))
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return ids, nil
}

// starredMembershipExpr matches memberships that link a person to the
// starred group, by local group id or by the remote (account, id) pair.
const starredMembershipExpr = `
	SELECT 1 FROM group_memberships gm
	JOIN groups g ON (gm.group_id = g.id)
	             OR (gm.group_id IS NULL
	                 AND gm.sync_group_id = g.sync_id
	                 AND gm.sync_account IS g.sync_account)
	WHERE gm.person_id = people.id AND g.name = ?`

// FixStarredForPerson restores the invariant that a person's starred flag
// equals their membership in the starred group.
func FixStarredForPerson(tx *sql.Tx, personID int64) error {
	_, err := tx.Exec(`
		UPDATE people SET starred = EXISTS (`+starredMembershipExpr+`)
		WHERE id = ?
	`, domain.StarredGroupName, personID)
	if err != nil {
		return fmt.Errorf("failed to fix starred flag for person %d: %w", personID, err)
	}
	return nil
}

// FixStarredForGroup restores the starred mirror for every person linked to
// the group. Run after renames and membership rewrites. It applies only while
// the group bears the starred name: renaming the starred group away does not
// unstar its members, they were starred and stay starred.
func FixStarredForGroup(tx *sql.Tx, groupID int64) error {
	var name string
	if err := tx.QueryRow("SELECT name FROM groups WHERE id = ?", groupID).Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("failed to read group name: %w", err)
	}
	if name != domain.StarredGroupName {
		return nil
	}

	members, err := GroupMemberIDsTx(tx, groupID)
	if err != nil {
		return err
	}
	for _, personID := range members {
		if err := FixStarredForPerson(tx, personID); err != nil {
			return err
		}
	}
	return nil
}

// ensureStarredGroup returns the starred group's id, creating the group as a
// local-only group on first use.
func ensureStarredGroup(tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM groups WHERE name = ? LIMIT 1", domain.StarredGroupName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up starred group: %w", err)
	}

	res, err := tx.Exec("INSERT INTO groups (name, dirty) VALUES (?, 1)", domain.StarredGroupName)
	if err != nil {
		return 0, fmt.Errorf("failed to create starred group: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get starred group id: %w", err)
	}
	return id, nil
}
