package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/join"
)

// CheckOrder makes SubRecords verify that rows come back sorted by the
// descriptor's natural key. The ORDER BY clause and the join key must agree
// exactly; tests enable this to assert that precondition.
var CheckOrder = false

// SubRecords returns one category's rows for a person, sorted ascending by
// the category's composed natural key. Rows outside the descriptor's scope
// do not participate in merges.
func SubRecords(q Queryer, d domain.SubEntityDescriptor, personID int64) ([]domain.SubRecord, error) {
	cols := []string{"id", "person_id"}
	cols = append(cols, d.CopyColumns...)
	if d.HasPrimary {
		cols = append(cols, "is_primary")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE person_id = ?",
		strings.Join(cols, ", "), d.Table)
	if d.Scope != "" {
		query += " AND " + d.Scope
	}
	query += " ORDER BY " + d.KeyOrderExpr()
	rows, err := q.Query(query, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", d.Table, err)
	}
	defer rows.Close()

	var out []domain.SubRecord
	for rows.Next() {
		rec := domain.SubRecord{Values: make([]sql.NullString, len(d.CopyColumns))}
		dests := []any{&rec.ID, &rec.PersonID}
		for i := range rec.Values {
			dests = append(dests, &rec.Values[i])
		}
		if d.HasPrimary {
			dests = append(dests, &rec.IsPrimary)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", d.Table, err)
		}
		rec.Key = d.ComposeKey(rec.Values)
		if i := d.TypeIndex(); i >= 0 && rec.Values[i].Valid {
			rec.Type = rec.Values[i].String
		}
		if i := d.KindIndex(); i >= 0 && rec.Values[i].Valid {
			rec.Kind = rec.Values[i].String
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", d.Table, err)
	}

	if CheckOrder {
		if err := join.VerifySorted(out, func(r domain.SubRecord) string { return r.Key }); err != nil {
			return nil, fmt.Errorf("%s rows violate key ordering: %w", d.Table, err)
		}
	}
	return out, nil
}

// InsertSubRecord inserts one sub-record for a person, copying the given
// value columns, and returns the new row id.
func InsertSubRecord(q Queryer, d domain.SubEntityDescriptor, personID int64, values []sql.NullString, isPrimary bool) (int64, error) {
	cols := append([]string{"person_id"}, d.CopyColumns...)
	args := []any{personID}
	for _, v := range values {
		args = append(args, v)
	}
	if d.HasPrimary {
		cols = append(cols, "is_primary")
		args = append(args, isPrimary)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Table, strings.Join(cols, ", "), placeholders)
	res, err := q.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", d.Table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted %s id: %w", d.Table, err)
	}
	return id, nil
}

// UpdateSubRecordValues overwrites a sub-record's value columns in place,
// preserving the row id. The primary flag is left untouched; the primary
// selector owns it.
func UpdateSubRecordValues(q Queryer, d domain.SubEntityDescriptor, id int64, values []sql.NullString) error {
	var set []string
	var args []any
	for i, col := range d.CopyColumns {
		set = append(set, fmt.Sprintf("%s = ?", col))
		args = append(args, values[i])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", d.Table, strings.Join(set, ", "))
	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", d.Table, id, err)
	}
	return nil
}

// DeleteSubRecord removes one sub-record row.
func DeleteSubRecord(q Queryer, d domain.SubEntityDescriptor, id int64) error {
	if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", d.Table), id); err != nil {
		return fmt.Errorf("failed to delete %s row %d: %w", d.Table, id, err)
	}
	return nil
}
