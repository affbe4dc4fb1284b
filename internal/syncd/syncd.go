// Package syncd is the outer sync loop: it walks the remote snapshot in key
// order, classifies each row against the local store, and dispatches the
// matching merge operation. Row failures are isolated; the rest of the batch
// continues.
package syncd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/merge"
	"github.com/lherron/contactsync/internal/notify"
	"github.com/lherron/contactsync/internal/remote"
	"github.com/lherron/contactsync/internal/store"
)

// Result summarizes one sync pass.
type Result struct {
	PersonsInserted int
	PersonsUpdated  int
	PersonsResolved int
	PersonsDeleted  int
	GroupsMerged    int
	GroupsDeleted   int
	RowErrors       int
}

// Driver runs merge passes for one account.
type Driver struct {
	store    *store.Store
	source   *remote.Source
	engine   *merge.Engine
	notifier *notify.Notifier
	logger   *zap.Logger
}

// New creates a sync driver. The notifier may be nil when no observers are
// configured.
func New(s *store.Store, source *remote.Source, notifier *notify.Notifier, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		store:    s,
		source:   source,
		engine:   merge.NewEngine(s, source, logger),
		notifier: notifier,
		logger:   logger,
	}
}

// Run merges the whole remote snapshot: groups first so memberships can
// land, then persons, then photo metadata. Observers are notified once at
// the end of a batch that changed anything.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	if err := d.syncGroups(ctx, result); err != nil {
		return result, err
	}
	if err := d.syncPersons(ctx, result); err != nil {
		return result, err
	}

	d.logger.Info("sync pass complete",
		zap.String("account", d.source.Account()),
		zap.Int("persons_inserted", result.PersonsInserted),
		zap.Int("persons_updated", result.PersonsUpdated),
		zap.Int("persons_resolved", result.PersonsResolved),
		zap.Int("persons_deleted", result.PersonsDeleted),
		zap.Int("groups_merged", result.GroupsMerged),
		zap.Int("row_errors", result.RowErrors))

	if d.notifier != nil {
		d.notifier.NotifyBatch(notify.BatchPayload{
			Account:         d.source.Account(),
			PersonsInserted: result.PersonsInserted,
			PersonsUpdated:  result.PersonsUpdated,
			PersonsResolved: result.PersonsResolved,
			PersonsDeleted:  result.PersonsDeleted,
			GroupsMerged:    result.GroupsMerged,
			GroupsDeleted:   result.GroupsDeleted,
			RowErrors:       result.RowErrors,
			CompletedAt:     time.Now().UTC().Format(time.RFC3339),
		})
	}
	return result, nil
}

func (d *Driver) syncGroups(ctx context.Context, result *Result) error {
	groups, err := d.source.Groups()
	if err != nil {
		return err
	}

	for _, rg := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := d.store.Groups.GetBySyncID(d.source.Account(), *rg.SyncID)
		if err != nil {
			d.rowError(result, "group", *rg.SyncID, err)
			continue
		}

		switch {
		case rg.Deleted && local == nil:
			// Tombstone for a row that never landed locally.
		case rg.Deleted:
			err = d.engine.DeleteGroup(local)
			if err == nil {
				result.GroupsDeleted++
			}
		case local == nil:
			err = d.engine.InsertGroup(rg)
			if err == nil {
				result.GroupsMerged++
			}
		case local.Dirty:
			err = d.engine.ResolveGroup(local, rg)
			if err == nil {
				result.GroupsMerged++
			}
		default:
			err = d.engine.UpdateGroup(local, rg)
			if err == nil {
				result.GroupsMerged++
			}
		}
		if err != nil {
			d.rowError(result, "group", *rg.SyncID, err)
		}
	}
	return nil
}

func (d *Driver) syncPersons(ctx context.Context, result *Result) error {
	persons, err := d.source.Persons()
	if err != nil {
		return err
	}

	for _, rp := range persons {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := store.GetPersonBySyncTx(d.store.DB(), d.source.Account(), *rp.SyncID)
		if err != nil {
			d.rowError(result, "person", *rp.SyncID, err)
			continue
		}

		switch {
		case rp.Deleted && local == nil:
			// Tombstone for a row that never landed locally.
		case rp.Deleted:
			err = d.engine.DeletePerson(local)
			if err == nil {
				result.PersonsDeleted++
			}
		case local == nil:
			err = d.engine.InsertPerson(rp)
			if err == nil {
				result.PersonsInserted++
			}
		case local.Dirty:
			err = d.engine.ResolvePerson(local, rp)
			if err == nil {
				result.PersonsResolved++
			}
		default:
			err = d.engine.UpdatePerson(local, rp)
			if err == nil {
				result.PersonsUpdated++
			}
		}
		if err != nil {
			d.rowError(result, "person", *rp.SyncID, err)
			continue
		}

		if local != nil && !rp.Deleted {
			if err := d.syncPhoto(local.ID, rp.ID, local.Dirty); err != nil {
				d.rowError(result, "photo", *rp.SyncID, err)
			}
		}
	}
	return nil
}

func (d *Driver) syncPhoto(localPersonID, remotePersonID int64, conflict bool) error {
	rphoto, err := d.source.Photo(remotePersonID)
	if err != nil {
		return err
	}
	if rphoto == nil {
		return nil
	}

	local, err := d.store.Photos.GetByPersonID(localPersonID)
	if err != nil {
		return err
	}
	if local == nil {
		// Photo rows are created by the person merge path only.
		return nil
	}

	if conflict || local.Dirty {
		return d.engine.ResolvePhoto(localPersonID, rphoto)
	}
	return d.engine.UpdatePhoto(localPersonID, rphoto)
}

func (d *Driver) rowError(result *Result, resource, syncID string, err error) {
	result.RowErrors++
	d.logger.Error("merge row failed",
		zap.String("resource", resource),
		zap.String("sync_id", syncID),
		zap.Error(err))
}
