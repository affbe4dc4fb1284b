package merge

import (
	"database/sql"

	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/join"
	"github.com/lherron/contactsync/internal/primary"
	"github.com/lherron/contactsync/internal/store"
)

// claims records which rows asked to be primary while one category's stream
// was processed, keyed by invariant slot. Consolidation runs after the full
// stream so claims from different rows can be weighed against each other.
type claims struct {
	remoteID    map[domain.SubEntityKind]int64
	remoteCount map[domain.SubEntityKind]int
	localID     map[domain.SubEntityKind]int64
	localCount  map[domain.SubEntityKind]int
	slots       map[domain.SubEntityKind]bool
}

func newClaims() *claims {
	return &claims{
		remoteID:    make(map[domain.SubEntityKind]int64),
		remoteCount: make(map[domain.SubEntityKind]int),
		localID:     make(map[domain.SubEntityKind]int64),
		localCount:  make(map[domain.SubEntityKind]int),
		slots:       make(map[domain.SubEntityKind]bool),
	}
}

func (c *claims) touch(slot domain.SubEntityKind) {
	c.slots[slot] = true
}

func (c *claims) claimRemote(slot domain.SubEntityKind, id int64) {
	c.remoteID[slot] = id
	c.remoteCount[slot]++
	c.slots[slot] = true
}

func (c *claims) claimLocal(slot domain.SubEntityKind, id int64) {
	c.localID[slot] = id
	c.localCount[slot]++
	c.slots[slot] = true
}

// mergeSubEntities reconciles every sub-record category of one person
// against the remote copy. With conflict set, local-only rows are preserved
// instead of deleted so local edits survive remote deletions.
func (e *Engine) mergeSubEntities(tx *sql.Tx, localPersonID, remotePersonID int64, conflict bool) error {
	for _, d := range domain.Descriptors {
		localRows, err := store.SubRecords(tx, d, localPersonID)
		if err != nil {
			return err
		}
		remoteRows, err := e.remote.SubRecords(d, remotePersonID)
		if err != nil {
			return err
		}

		cl := newClaims()
		key := func(r domain.SubRecord) string { return r.Key }

		for _, pair := range join.Join(localRows, remoteRows, key) {
			switch pair.Kind {
			case join.LocalOnly:
				slot := domain.SlotFor(d.Category, pair.Local.Kind)
				if conflict {
					// The row no longer exists remotely but the person is in
					// conflict: keep the local edit and re-offer it upstream.
					if pair.Local.IsPrimary {
						cl.claimLocal(slot, pair.Local.ID)
					} else {
						cl.touch(slot)
					}
					continue
				}
				if err := store.DeleteSubRecord(tx, d, pair.Local.ID); err != nil {
					return err
				}
				cl.touch(slot)

			case join.RemoteOnly:
				id, err := store.InsertSubRecord(tx, d, localPersonID, pair.Remote.Values, false)
				if err != nil {
					return err
				}
				slot := domain.SlotFor(d.Category, pair.Remote.Kind)
				if pair.Remote.IsPrimary {
					cl.claimRemote(slot, id)
				} else {
					cl.touch(slot)
				}

			case join.Matched:
				// Remote wins on field content: whole-row replacement under
				// the surviving local id.
				if err := store.UpdateSubRecordValues(tx, d, pair.Local.ID, pair.Remote.Values); err != nil {
					return err
				}
				slot := domain.SlotFor(d.Category, pair.Remote.Kind)
				switch {
				case pair.Remote.IsPrimary:
					cl.claimRemote(slot, pair.Local.ID)
				case pair.Local.IsPrimary:
					cl.claimLocal(slot, pair.Local.ID)
				default:
					cl.touch(slot)
				}
			}
		}

		if d.HasPrimary {
			if err := e.consolidate(tx, localPersonID, cl); err != nil {
				return err
			}
		}
	}
	return nil
}

// consolidate settles each touched slot: a remote explicit primary dominates,
// then a surviving local primary, then rank-based replacement selection.
func (e *Engine) consolidate(tx *sql.Tx, personID int64, cl *claims) error {
	for slot := range cl.slots {
		if cl.remoteCount[slot] > 1 {
			return &domain.PrimaryConflictError{PersonID: personID, Slot: slot, Count: cl.remoteCount[slot]}
		}
		if cl.localCount[slot] > 1 {
			return &domain.PrimaryConflictError{PersonID: personID, Slot: slot, Count: cl.localCount[slot]}
		}

		if id, ok := cl.remoteID[slot]; ok {
			if err := primary.SetSingle(tx, slot, personID, id); err != nil {
				return err
			}
			continue
		}
		if id, ok := cl.localID[slot]; ok {
			if err := primary.SetSingle(tx, slot, personID, id); err != nil {
				return err
			}
			continue
		}

		id, found, err := primary.PickReplacement(tx, slot, personID, 0)
		if err != nil {
			return err
		}
		if !found {
			if err := primary.ClearAll(tx, slot, personID); err != nil {
				return err
			}
			continue
		}
		if err := primary.SetSingle(tx, slot, personID, id); err != nil {
			return err
		}
	}
	return nil
}
