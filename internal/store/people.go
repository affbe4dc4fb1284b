package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/events"
	"github.com/lherron/contactsync/internal/primary"
)

// PersonStore handles person and sub-record persistence operations.
type PersonStore struct {
	store *Store
}

// PersonCreateParams contains parameters for creating a new person.
type PersonCreateParams struct {
	DisplayName     *string
	Notes           *string
	CustomRingtone  *string
	SendToVoicemail bool
	SyncAccount     *string
}

const personColumns = `id, lookup_uuid, display_name, notes, starred,
	custom_ringtone, send_to_voicemail,
	primary_phone_id, primary_email_id, primary_organization_id,
	sync_id, sync_account, sync_version, sync_time, dirty, deleted`

func scanPerson(row *sql.Row) (*domain.Person, error) {
	p := &domain.Person{}
	err := row.Scan(
		&p.ID, &p.LookupUUID, &p.DisplayName, &p.Notes, &p.Starred,
		&p.CustomRingtone, &p.SendToVoicemail,
		&p.PrimaryPhoneID, &p.PrimaryEmailID, &p.PrimaryOrganizationID,
		&p.SyncID, &p.SyncAccount, &p.SyncVersion, &p.SyncTime, &p.Dirty, &p.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPersonTx loads one person by id. Returns (nil, nil) when absent.
func GetPersonTx(q Queryer, id int64) (*domain.Person, error) {
	p, err := scanPerson(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM people WHERE id = ?", personColumns), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %d: %w", id, err)
	}
	return p, nil
}

// GetPersonBySyncTx loads one person by its remote identity. Returns
// (nil, nil) when absent.
func GetPersonBySyncTx(q Queryer, account, syncID string) (*domain.Person, error) {
	p, err := scanPerson(q.QueryRow(
		fmt.Sprintf("SELECT %s FROM people WHERE sync_account = ? AND sync_id = ?", personColumns),
		account, syncID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person by sync id %s: %w", syncID, err)
	}
	return p, nil
}

// GetByID retrieves a person by id.
func (ps *PersonStore) GetByID(id int64) (*domain.Person, error) {
	return GetPersonTx(ps.store.db, id)
}

// GetBySyncID retrieves a person by its remote identity.
func (ps *PersonStore) GetBySyncID(account, syncID string) (*domain.Person, error) {
	return GetPersonBySyncTx(ps.store.db, account, syncID)
}

// Create creates a new person marked dirty and logs a person.created event.
func (ps *PersonStore) Create(params PersonCreateParams) (*domain.Person, error) {
	var person *domain.Person

	err := ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			INSERT INTO people (lookup_uuid, display_name, notes, custom_ringtone, send_to_voicemail, sync_account, dirty)
			VALUES (?, ?, ?, ?, ?, ?, 1)
		`, uuid.NewString(), params.DisplayName, params.Notes, params.CustomRingtone,
			params.SendToVoicemail, params.SyncAccount)
		if err != nil {
			return fmt.Errorf("failed to create person: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get person id: %w", err)
		}

		person, err = GetPersonTx(tx, id)
		if err != nil {
			return err
		}

		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "person",
			ResourceID:   &id,
			EventType:    "person.created",
		})
	})

	return person, err
}

// UpdateFields updates specified person columns, marks the row dirty, and
// logs a person.updated event.
func (ps *PersonStore) UpdateFields(id int64, fields map[string]any) error {
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		existing, err := GetPersonTx(tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("person not found: %d", id)
		}

		var set string
		var args []any
		for key, value := range fields {
			if set != "" {
				set += ", "
			}
			set += fmt.Sprintf("%s = ?", key)
			args = append(args, value)
		}
		set += ", dirty = 1, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')"
		args = append(args, id)

		if _, err := tx.Exec("UPDATE people SET "+set+" WHERE id = ?", args...); err != nil {
			return fmt.Errorf("failed to update person: %w", err)
		}

		changes, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		payload := string(changes)

		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "person",
			ResourceID:   &id,
			EventType:    "person.updated",
			Payload:      &payload,
		})
	})
}

// Delete removes a person. Rows that never synced are dropped outright; rows
// with a remote identity are tombstoned so the deletion is offered upstream.
func (ps *PersonStore) Delete(id int64) error {
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		person, err := GetPersonTx(tx, id)
		if err != nil {
			return err
		}
		if person == nil {
			return fmt.Errorf("person not found: %d", id)
		}

		if person.SyncID == nil {
			if _, err := tx.Exec("DELETE FROM people WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete person: %w", err)
			}
		} else {
			if _, err := tx.Exec("UPDATE people SET deleted = 1, dirty = 1 WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to tombstone person: %w", err)
			}
		}

		return ew.LogEvent(tx, &domain.Event{
			ResourceType: "person",
			ResourceID:   &id,
			EventType:    "person.deleted",
		})
	})
}

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func str(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// addSubRecord inserts one sub-record and lets the primary selector settle
// the slot, all within one transaction.
func (ps *PersonStore) addSubRecord(cat domain.Category, personID int64, methodKind string, values []sql.NullString, explicitPrimary bool) (int64, error) {
	d, ok := domain.DescriptorFor(cat)
	if !ok {
		return 0, fmt.Errorf("unknown category %s", cat)
	}

	var id int64
	err := ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		var err error
		id, err = InsertSubRecord(tx, d, personID, values, false)
		if err != nil {
			return err
		}
		if d.HasPrimary {
			slot := domain.SlotFor(cat, methodKind)
			if err := primary.AfterUpsert(tx, slot, personID, id, explicitPrimary, false); err != nil {
				return err
			}
		}
		if err := markDirty(tx, personID); err != nil {
			return err
		}
		return ew.LogEvent(tx, &domain.Event{
			ResourceType: string(cat),
			ResourceID:   &id,
			EventType:    string(cat) + ".created",
		})
	})
	return id, err
}

// updateSubRecord overwrites one sub-record's values and re-settles the slot.
func (ps *PersonStore) updateSubRecord(cat domain.Category, id, personID int64, methodKind string, values []sql.NullString, explicitPrimary bool) error {
	d, ok := domain.DescriptorFor(cat)
	if !ok {
		return fmt.Errorf("unknown category %s", cat)
	}

	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		wasPrimary := false
		if d.HasPrimary {
			err := tx.QueryRow(fmt.Sprintf("SELECT is_primary FROM %s WHERE id = ?", d.Table), id).Scan(&wasPrimary)
			if err == sql.ErrNoRows {
				return fmt.Errorf("%s row not found: %d", d.Table, id)
			}
			if err != nil {
				return fmt.Errorf("failed to read %s row: %w", d.Table, err)
			}
		}
		if err := UpdateSubRecordValues(tx, d, id, values); err != nil {
			return err
		}
		if d.HasPrimary {
			slot := domain.SlotFor(cat, methodKind)
			if err := primary.AfterUpsert(tx, slot, personID, id, explicitPrimary, wasPrimary); err != nil {
				return err
			}
		}
		if err := markDirty(tx, personID); err != nil {
			return err
		}
		return ew.LogEvent(tx, &domain.Event{
			ResourceType: string(cat),
			ResourceID:   &id,
			EventType:    string(cat) + ".updated",
		})
	})
}

// deleteSubRecord removes one sub-record and repairs the slot's primary.
func (ps *PersonStore) deleteSubRecord(cat domain.Category, id int64) error {
	d, ok := domain.DescriptorFor(cat)
	if !ok {
		return fmt.Errorf("unknown category %s", cat)
	}

	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		var personID int64
		wasPrimary := false
		methodKind := ""

		cols := "person_id"
		if d.HasPrimary {
			cols += ", is_primary"
		}
		if d.KindColumn != "" {
			cols += ", " + d.KindColumn
		}
		row := tx.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", cols, d.Table), id)
		dests := []any{&personID}
		if d.HasPrimary {
			dests = append(dests, &wasPrimary)
		}
		if d.KindColumn != "" {
			dests = append(dests, &methodKind)
		}
		if err := row.Scan(dests...); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("%s row not found: %d", d.Table, id)
			}
			return fmt.Errorf("failed to read %s row: %w", d.Table, err)
		}

		if err := DeleteSubRecord(tx, d, id); err != nil {
			return err
		}
		if d.HasPrimary {
			slot := domain.SlotFor(cat, methodKind)
			if err := primary.AfterDelete(tx, slot, personID, id, wasPrimary); err != nil {
				return err
			}
		}
		if err := markDirty(tx, personID); err != nil {
			return err
		}
		return ew.LogEvent(tx, &domain.Event{
			ResourceType: string(cat),
			ResourceID:   &id,
			EventType:    string(cat) + ".deleted",
		})
	})
}

func markDirty(tx *sql.Tx, personID int64) error {
	if _, err := tx.Exec("UPDATE people SET dirty = 1 WHERE id = ?", personID); err != nil {
		return fmt.Errorf("failed to mark person dirty: %w", err)
	}
	return nil
}

// requireKey rejects an empty natural key value. A row without its key can
// never be matched against a remote copy.
func requireKey(table, column, value string) error {
	if value == "" {
		return &domain.MissingKeyError{Table: table, Column: column}
	}
	return nil
}

// AddPhone inserts a phone for a person. The first phone in the slot becomes
// primary regardless of the explicit flag.
func (ps *PersonStore) AddPhone(p *domain.Phone) error {
	if err := requireKey("phones", "number", p.Number); err != nil {
		return err
	}
	id, err := ps.addSubRecord(domain.CategoryPhone, p.PersonID, "",
		[]sql.NullString{str(p.Number), str(p.Type), nullStr(p.Label)}, p.IsPrimary)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// UpdatePhone overwrites a phone's fields and re-settles the primary slot.
func (ps *PersonStore) UpdatePhone(p *domain.Phone) error {
	if err := requireKey("phones", "number", p.Number); err != nil {
		return err
	}
	return ps.updateSubRecord(domain.CategoryPhone, p.ID, p.PersonID, "",
		[]sql.NullString{str(p.Number), str(p.Type), nullStr(p.Label)}, p.IsPrimary)
}

// DeletePhone removes a phone and promotes a replacement primary if needed.
func (ps *PersonStore) DeletePhone(id int64) error {
	return ps.deleteSubRecord(domain.CategoryPhone, id)
}

// AddContactMethod inserts an email/IM/postal record for a person.
func (ps *PersonStore) AddContactMethod(m *domain.ContactMethod) error {
	if err := domain.ValidateMethodKind(string(m.Kind)); err != nil {
		return err
	}
	if err := requireKey("contact_methods", "value", m.Value); err != nil {
		return err
	}
	id, err := ps.addSubRecord(domain.CategoryContactMethod, m.PersonID, string(m.Kind),
		[]sql.NullString{str(m.Value), str(string(m.Kind)), str(m.Type), nullStr(m.Label), nullStr(m.AuxData)}, m.IsPrimary)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// UpdateContactMethod overwrites a contact method's fields.
func (ps *PersonStore) UpdateContactMethod(m *domain.ContactMethod) error {
	if err := domain.ValidateMethodKind(string(m.Kind)); err != nil {
		return err
	}
	if err := requireKey("contact_methods", "value", m.Value); err != nil {
		return err
	}
	return ps.updateSubRecord(domain.CategoryContactMethod, m.ID, m.PersonID, string(m.Kind),
		[]sql.NullString{str(m.Value), str(string(m.Kind)), str(m.Type), nullStr(m.Label), nullStr(m.AuxData)}, m.IsPrimary)
}

// DeleteContactMethod removes a contact method.
func (ps *PersonStore) DeleteContactMethod(id int64) error {
	return ps.deleteSubRecord(domain.CategoryContactMethod, id)
}

// AddOrganization inserts an organization for a person.
func (ps *PersonStore) AddOrganization(o *domain.Organization) error {
	if err := requireKey("organizations", "company", o.Company); err != nil {
		return err
	}
	id, err := ps.addSubRecord(domain.CategoryOrganization, o.PersonID, "",
		[]sql.NullString{str(o.Company), nullStr(o.Title), str(o.Type), nullStr(o.Label)}, o.IsPrimary)
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

// UpdateOrganization overwrites an organization's fields.
func (ps *PersonStore) UpdateOrganization(o *domain.Organization) error {
	return ps.updateSubRecord(domain.CategoryOrganization, o.ID, o.PersonID, "",
		[]sql.NullString{str(o.Company), nullStr(o.Title), str(o.Type), nullStr(o.Label)}, o.IsPrimary)
}

// DeleteOrganization removes an organization.
func (ps *PersonStore) DeleteOrganization(id int64) error {
	return ps.deleteSubRecord(domain.CategoryOrganization, id)
}

// SetExtension writes a (name, value) extension, replacing any existing
// value for the same name.
func (ps *PersonStore) SetExtension(personID int64, name string, value *string) error {
	if err := requireKey("extensions", "name", name); err != nil {
		return err
	}
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		_, err := tx.Exec(`
			INSERT INTO extensions (person_id, name, value) VALUES (?, ?, ?)
			ON CONFLICT(person_id, name) DO UPDATE SET value = excluded.value
		`, personID, name, value)
		if err != nil {
			return fmt.Errorf("failed to set extension: %w", err)
		}
		return markDirty(tx, personID)
	})
}

// AddToGroup links a person to a local group and restores the starred
// mirror for the person.
func (ps *PersonStore) AddToGroup(personID, groupID int64) error {
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		var exists int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM group_memberships WHERE person_id = ? AND group_id = ?
		`, personID, groupID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if exists == 0 {
			if _, err := tx.Exec(`
				INSERT INTO group_memberships (person_id, group_id) VALUES (?, ?)
			`, personID, groupID); err != nil {
				return fmt.Errorf("failed to add membership: %w", err)
			}
		}
		if err := FixStarredForPerson(tx, personID); err != nil {
			return err
		}
		return markDirty(tx, personID)
	})
}

// RemoveFromGroup unlinks a person from a local group and restores the
// starred mirror for the person.
func (ps *PersonStore) RemoveFromGroup(personID, groupID int64) error {
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		if _, err := tx.Exec(`
			DELETE FROM group_memberships WHERE person_id = ? AND group_id = ?
		`, personID, groupID); err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		if err := FixStarredForPerson(tx, personID); err != nil {
			return err
		}
		return markDirty(tx, personID)
	})
}

// SetStarred sets the starred flag and keeps membership in the starred group
// in step with it, creating the group on first use.
func (ps *PersonStore) SetStarred(personID int64, starred bool) error {
	return ps.store.WithTx(func(tx *sql.Tx, ew *events.Writer) error {
		groupID, err := ensureStarredGroup(tx)
		if err != nil {
			return err
		}

		if starred {
			var exists int
			err := tx.QueryRow(`
				SELECT COUNT(*) FROM group_memberships WHERE person_id = ? AND group_id = ?
			`, personID, groupID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check starred membership: %w", err)
			}
			if exists == 0 {
				if _, err := tx.Exec(`
					INSERT INTO group_memberships (person_id, group_id) VALUES (?, ?)
				`, personID, groupID); err != nil {
					return fmt.Errorf("failed to add starred membership: %w", err)
				}
			}
		} else {
			if _, err := tx.Exec(`
				DELETE FROM group_memberships WHERE person_id = ? AND group_id = ?
			`, personID, groupID); err != nil {
				return fmt.Errorf("failed to remove starred membership: %w", err)
			}
		}

		if err := FixStarredForPerson(tx, personID); err != nil {
			return err
		}
		return markDirty(tx, personID)
	})
}
