// Package primary maintains the invariant that each person has at most one
// primary sub-record per slot, re-selecting a primary whenever edits,
// conflicts, or deletions could otherwise leave zero or many.
package primary

import (
	"database/sql"
	"fmt"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/rank"
)

// slotQuery returns the table plus the kind filter for one slot.
func slotQuery(slot domain.SubEntityKind) (table, kindCol, kindVal string, err error) {
	d, ok := domain.DescriptorFor(slot.Category())
	if !ok || !slot.HasPrimary() {
		return "", "", "", fmt.Errorf("slot %s has no primary semantics", slot)
	}
	return d.Table, d.KindColumn, slot.MethodKind(), nil
}

// PickReplacement scans the slot's sub-records for the person, excluding
// excludeID, and returns the id with the lowest rank. Ties go to the first
// row in the slot's canonical key order, so the result is deterministic.
// The second return is false when no candidate remains.
func PickReplacement(tx *sql.Tx, slot domain.SubEntityKind, personID, excludeID int64) (int64, bool, error) {
	table, kindCol, kindVal, err := slotQuery(slot)
	if err != nil {
		return 0, false, err
	}
	d, _ := domain.DescriptorFor(slot.Category())

	query := fmt.Sprintf("SELECT id, type FROM %s WHERE person_id = ? AND id != ?", table)
	args := []any{personID, excludeID}
	if kindCol != "" {
		query += fmt.Sprintf(" AND %s = ?", kindCol)
		args = append(args, kindVal)
	}
	query += " ORDER BY " + d.KeyOrderExpr()

	rows, err := tx.Query(query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("failed to scan %s for replacement primary: %w", table, err)
	}
	defer rows.Close()

	bestID := int64(0)
	bestRank := rank.Worst + 1
	found := false
	for rows.Next() {
		var id int64
		var typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return 0, false, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		if r := rank.For(slot.Category(), typ); r < bestRank {
			bestRank = r
			bestID = id
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("error iterating candidates: %w", err)
	}
	return bestID, found, nil
}

// ClearOthers sets is_primary=0 on every sub-record of the slot for the
// person except keepID.
func ClearOthers(tx *sql.Tx, slot domain.SubEntityKind, personID, keepID int64) error {
	table, kindCol, kindVal, err := slotQuery(slot)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET is_primary = 0 WHERE person_id = ? AND id != ?", table)
	args := []any{personID, keepID}
	if kindCol != "" {
		query += fmt.Sprintf(" AND %s = ?", kindCol)
		args = append(args, kindVal)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to clear primaries in %s: %w", table, err)
	}
	return nil
}

// SetSingle makes id the sole primary for the slot and updates the person's
// primary pointer when the slot feeds one.
func SetSingle(tx *sql.Tx, slot domain.SubEntityKind, personID, id int64) error {
	table, _, _, err := slotQuery(slot)
	if err != nil {
		return err
	}
	if err := ClearOthers(tx, slot, personID, id); err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET is_primary = 1 WHERE id = ?", table)
	if _, err := tx.Exec(query, id); err != nil {
		return fmt.Errorf("failed to set primary in %s: %w", table, err)
	}
	return setPointer(tx, slot, personID, &id)
}

// ClearAll removes the primary mark from every row of the slot and nulls the
// person pointer.
func ClearAll(tx *sql.Tx, slot domain.SubEntityKind, personID int64) error {
	if err := ClearOthers(tx, slot, personID, 0); err != nil {
		return err
	}
	return setPointer(tx, slot, personID, nil)
}

func setPointer(tx *sql.Tx, slot domain.SubEntityKind, personID int64, id *int64) error {
	col := slot.PointerColumn()
	if col == "" {
		return nil
	}
	query := fmt.Sprintf("UPDATE people SET %s = ? WHERE id = ?", col)
	if _, err := tx.Exec(query, id, personID); err != nil {
		return fmt.Errorf("failed to update %s: %w", col, err)
	}
	return nil
}

// AfterDelete repairs the slot after deletedID was removed. When the deleted
// row was primary, the best-ranked survivor is promoted; the person pointer
// becomes NULL when no candidate remains.
func AfterDelete(tx *sql.Tx, slot domain.SubEntityKind, personID, deletedID int64, wasPrimary bool) error {
	if !wasPrimary {
		return nil
	}
	id, found, err := PickReplacement(tx, slot, personID, deletedID)
	if err != nil {
		return err
	}
	if !found {
		return setPointer(tx, slot, personID, nil)
	}
	return SetSingle(tx, slot, personID, id)
}

// AfterUpsert repairs the slot after id was inserted or updated. A requested
// primary is promoted; a withdrawn one triggers replacement selection; the
// first row ever written to a slot becomes primary unconditionally.
func AfterUpsert(tx *sql.Tx, slot domain.SubEntityKind, personID, id int64, explicitPrimary, wasPrimary bool) error {
	table, kindCol, kindVal, err := slotQuery(slot)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE person_id = ? AND id != ?", table)
	args := []any{personID, id}
	if kindCol != "" {
		query += fmt.Sprintf(" AND %s = ?", kindCol)
		args = append(args, kindVal)
	}
	var others int
	if err := tx.QueryRow(query, args...).Scan(&others); err != nil {
		return fmt.Errorf("failed to count slot rows: %w", err)
	}

	switch {
	case others == 0:
		return SetSingle(tx, slot, personID, id)
	case explicitPrimary:
		return SetSingle(tx, slot, personID, id)
	case wasPrimary:
		// Primary flag withdrawn: pick a replacement among the others.
		replacement, found, err := PickReplacement(tx, slot, personID, id)
		if err != nil {
			return err
		}
		if !found {
			return setPointer(tx, slot, personID, nil)
		}
		return SetSingle(tx, slot, personID, replacement)
	}
	return nil
}

// CheckSingle verifies the invariant for one (person, slot) and fails fast
// with a PrimaryConflictError when more than one row is marked primary.
func CheckSingle(tx *sql.Tx, slot domain.SubEntityKind, personID int64) error {
	table, kindCol, kindVal, err := slotQuery(slot)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE person_id = ? AND is_primary = 1", table)
	args := []any{personID}
	if kindCol != "" {
		query += fmt.Sprintf(" AND %s = ?", kindCol)
		args = append(args, kindVal)
	}
	var count int
	if err := tx.QueryRow(query, args...).Scan(&count); err != nil {
		return fmt.Errorf("failed to count primaries: %w", err)
	}
	if count > 1 {
		return &domain.PrimaryConflictError{PersonID: personID, Slot: slot, Count: count}
	}
	return nil
}

