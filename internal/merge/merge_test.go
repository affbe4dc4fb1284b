package merge

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/db"
	"github.com/lherron/contactsync/internal/domain"
	"github.com/lherron/contactsync/internal/remote"
	"github.com/lherron/contactsync/internal/store"
)

const testAccount = "user@example.com"

func TestMain(m *testing.M) {
	store.CheckOrder = true
	os.Exit(m.Run())
}

type harness struct {
	store  *store.Store
	remote *db.DB
	engine *Engine
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	openDB := func(name string) *db.DB {
		database, err := db.Open(filepath.Join(t.TempDir(), name))
		require.NoError(t, err)
		require.NoError(t, database.Migrate())
		t.Cleanup(func() { database.Close() })
		return database
	}

	localDB := openDB("local.db")
	remoteDB := openDB("remote.db")

	s := store.New(localDB)
	return &harness{
		store:  s,
		remote: remoteDB,
		engine: NewEngine(s, remote.New(remoteDB, testAccount), zap.NewNop()),
	}
}

var remoteSeq int

// remotePerson inserts a person row into the remote snapshot and returns it
// as the merge engine would receive it.
func (h *harness) remotePerson(t *testing.T, syncID, displayName string) *domain.Person {
	t.Helper()
	remoteSeq++
	res, err := h.remote.Exec(`
		INSERT INTO people (lookup_uuid, display_name, sync_id, sync_account, sync_version)
		VALUES (?, ?, ?, ?, 'v1')
	`, fmt.Sprintf("remote-%s-%d", syncID, remoteSeq), displayName, syncID, testAccount)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	version := "v1"
	return &domain.Person{
		ID:          id,
		DisplayName: &displayName,
		SyncID:      &syncID,
		SyncAccount: strp(testAccount),
		SyncVersion: &version,
	}
}

func (h *harness) remotePhone(t *testing.T, personID int64, number, typ string, primary bool) {
	t.Helper()
	_, err := h.remote.Exec(`
		INSERT INTO phones (person_id, number, type, is_primary) VALUES (?, ?, ?, ?)
	`, personID, number, typ, primary)
	require.NoError(t, err)
}

func (h *harness) remoteEmail(t *testing.T, personID int64, value, typ string, primary bool) {
	t.Helper()
	_, err := h.remote.Exec(`
		INSERT INTO contact_methods (person_id, kind, value, type, is_primary)
		VALUES (?, 'email', ?, ?, ?)
	`, personID, value, typ, primary)
	require.NoError(t, err)
}

func (h *harness) remoteIm(t *testing.T, personID int64, value, typ string, primary bool) {
	t.Helper()
	_, err := h.remote.Exec(`
		INSERT INTO contact_methods (person_id, kind, value, type, is_primary)
		VALUES (?, 'im', ?, ?, ?)
	`, personID, value, typ, primary)
	require.NoError(t, err)
}

func strp(s string) *string { return &s }

func (h *harness) localBySyncID(t *testing.T, syncID string) *domain.Person {
	t.Helper()
	p, err := h.store.People.GetBySyncID(testAccount, syncID)
	require.NoError(t, err)
	require.NotNil(t, p, "expected local person for sync id %s", syncID)
	return p
}

func (h *harness) localPhones(t *testing.T, personID int64) []domain.SubRecord {
	t.Helper()
	d, _ := domain.DescriptorFor(domain.CategoryPhone)
	recs, err := store.SubRecords(h.store.DB(), d, personID)
	require.NoError(t, err)
	return recs
}

func TestInsertPerson_CopiesRowAndSubRecords(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Grace Hopper")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	h.remoteEmail(t, rp.ID, "grace@example.com", "home", false)

	require.NoError(t, h.engine.InsertPerson(rp))

	local := h.localBySyncID(t, "p1")
	assert.Equal(t, "Grace Hopper", *local.DisplayName)
	assert.False(t, local.Dirty, "freshly merged person has nothing to re-sync")
	assert.NotEmpty(t, local.LookupUUID)

	phones := h.localPhones(t, local.ID)
	require.Len(t, phones, 1)
	assert.True(t, phones[0].IsPrimary, "sole phone becomes primary")
	require.NotNil(t, local.PrimaryPhoneID)
	assert.Equal(t, phones[0].ID, *local.PrimaryPhoneID)
	require.NotNil(t, local.PrimaryEmailID)
}

func TestInsertPerson_RankPicksMobile(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Ranked")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	h.remotePhone(t, rp.ID, "555-0200", "mobile", false)
	h.remotePhone(t, rp.ID, "555-0300", "fax_work", false)

	require.NoError(t, h.engine.InsertPerson(rp))

	local := h.localBySyncID(t, "p1")
	var primaryType string
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT type FROM phones WHERE id = ?", *local.PrimaryPhoneID).Scan(&primaryType))
	assert.Equal(t, "mobile", primaryType)
}

func TestInsertPerson_RemoteExplicitPrimaryBeatsRank(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Explicit")
	h.remotePhone(t, rp.ID, "555-0100", "home", true)
	h.remotePhone(t, rp.ID, "555-0200", "mobile", false)

	require.NoError(t, h.engine.InsertPerson(rp))

	local := h.localBySyncID(t, "p1")
	var primaryType string
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT type FROM phones WHERE id = ?", *local.PrimaryPhoneID).Scan(&primaryType))
	assert.Equal(t, "home", primaryType, "an explicit remote primary overrides rank order")
}

func TestUpdatePerson_RemoteWinsAndLocalOnlyDropped(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Before")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	// A local-only phone on a clean person does not survive an update pass.
	require.NoError(t, h.store.People.AddPhone(&domain.Phone{
		PersonID: local.ID, Number: "555-0900", Type: "work",
	}))
	_, err := h.store.DB().Exec("UPDATE people SET dirty = 0 WHERE id = ?", local.ID)
	require.NoError(t, err)

	rp.DisplayName = strp("After")
	require.NoError(t, h.engine.UpdatePerson(local, rp))

	updated := h.localBySyncID(t, "p1")
	assert.Equal(t, "After", *updated.DisplayName)
	assert.False(t, updated.Dirty)

	phones := h.localPhones(t, updated.ID)
	require.Len(t, phones, 1)
	assert.Equal(t, "v:555-0100", phones[0].Key)
}

func TestUpdatePerson_MatchedRowKeepsLocalID(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Stable")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	before := h.localPhones(t, local.ID)
	require.Len(t, before, 1)

	// Remote changed the type but not the number, so the rows match by key.
	_, err := h.remote.Exec("UPDATE phones SET type = 'work' WHERE person_id = ?", rp.ID)
	require.NoError(t, err)

	require.NoError(t, h.engine.UpdatePerson(local, rp))

	after := h.localPhones(t, local.ID)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID, "matched rows keep their local id")
	assert.Equal(t, "work", after[0].Type)
}

func TestResolvePerson_PreservesLocalEdits(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Conflicted")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	// Local edit: a new phone the server has never seen.
	require.NoError(t, h.store.People.AddPhone(&domain.Phone{
		PersonID: local.ID, Number: "555-0900", Type: "work",
	}))
	local = h.localBySyncID(t, "p1")
	require.True(t, local.Dirty)

	rp.DisplayName = strp("Server Name")
	require.NoError(t, h.engine.ResolvePerson(local, rp))

	resolved := h.localBySyncID(t, "p1")
	assert.Equal(t, "Server Name", *resolved.DisplayName, "remote wins on field content")
	assert.True(t, resolved.Dirty, "surviving local edits still need an outbound sync")

	phones := h.localPhones(t, resolved.ID)
	assert.Len(t, phones, 2, "the local-only phone survives the conflict merge")
}

func TestResolvePerson_RemotePrimaryDominatesLocal(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Primary Fight")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	h.remotePhone(t, rp.ID, "555-0200", "work", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	// Local made work primary; remote now says home is primary.
	var workID int64
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT id FROM phones WHERE person_id = ? AND number = '555-0200'", local.ID).Scan(&workID))
	require.NoError(t, h.store.People.UpdatePhone(&domain.Phone{
		ID: workID, PersonID: local.ID, Number: "555-0200", Type: "work", IsPrimary: true,
	}))
	_, err := h.remote.Exec("UPDATE phones SET is_primary = 1 WHERE person_id = ? AND number = '555-0100'", rp.ID)
	require.NoError(t, err)

	local = h.localBySyncID(t, "p1")
	require.NoError(t, h.engine.ResolvePerson(local, rp))

	resolved := h.localBySyncID(t, "p1")
	var primaryNumber string
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT number FROM phones WHERE id = ?", *resolved.PrimaryPhoneID).Scan(&primaryNumber))
	assert.Equal(t, "555-0100", primaryNumber)

	var primaries int
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT COUNT(*) FROM phones WHERE person_id = ? AND is_primary = 1", resolved.ID).Scan(&primaries))
	assert.Equal(t, 1, primaries, "at most one primary per slot")
}

func TestInsertPerson_TwoRemotePrimariesFailFast(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Broken Feed")
	h.remotePhone(t, rp.ID, "555-0100", "home", true)
	h.remotePhone(t, rp.ID, "555-0200", "work", true)

	err := h.engine.InsertPerson(rp)
	var conflict *domain.PrimaryConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.SubEntityPhone, conflict.Slot)

	// The transaction rolled back: nothing was committed.
	p, err := h.store.People.GetBySyncID(testAccount, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDeletePerson_CascadesSubRecords(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Doomed")
	h.remotePhone(t, rp.ID, "555-0100", "home", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	require.NoError(t, h.engine.DeletePerson(local))

	p, err := h.store.People.GetBySyncID(testAccount, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)

	var phones int
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT COUNT(*) FROM phones WHERE person_id = ?", local.ID).Scan(&phones))
	assert.Zero(t, phones)
}

func TestUpdatePerson_Idempotent(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Same Twice")
	h.remotePhone(t, rp.ID, "555-0100", "mobile", false)
	h.remoteEmail(t, rp.ID, "x@example.com", "home", true)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	require.NoError(t, h.engine.UpdatePerson(local, rp))
	first := h.localPhones(t, local.ID)

	require.NoError(t, h.engine.UpdatePerson(h.localBySyncID(t, "p1"), rp))
	second := h.localPhones(t, local.ID)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].IsPrimary, second[i].IsPrimary)
	}
}

func TestInsertGroup_CoalescesUnsyncedLocal(t *testing.T) {
	h := setupHarness(t)

	existing, err := h.store.Groups.Create(store.GroupCreateParams{Name: "Family"})
	require.NoError(t, err)

	syncID := "g1"
	require.NoError(t, h.engine.InsertGroup(&domain.Group{
		Name:   "Family",
		SyncID: &syncID,
	}))

	merged, err := h.store.Groups.GetBySyncID(testAccount, "g1")
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, existing.ID, merged.ID, "remote identity lands on the local row")

	var count int
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT COUNT(*) FROM groups WHERE name = 'Family'").Scan(&count))
	assert.Equal(t, 1, count, "no duplicate group row")
}

func TestDeleteGroup_SystemGroupIgnored(t *testing.T) {
	h := setupHarness(t)

	systemID := "sys-coworkers"
	group, err := h.store.Groups.Create(store.GroupCreateParams{Name: "Coworkers", SystemID: &systemID})
	require.NoError(t, err)

	require.NoError(t, h.engine.DeleteGroup(group), "system group deletes are logged and ignored")

	survivor, err := h.store.Groups.GetByID(group.ID)
	require.NoError(t, err)
	assert.NotNil(t, survivor)
}

func TestDeleteGroup_UnstarsFormerMembers(t *testing.T) {
	h := setupHarness(t)

	group, err := h.store.Groups.Create(store.GroupCreateParams{Name: domain.StarredGroupName})
	require.NoError(t, err)
	name := "Former Star"
	person, err := h.store.People.Create(store.PersonCreateParams{DisplayName: &name})
	require.NoError(t, err)
	require.NoError(t, h.store.People.AddToGroup(person.ID, group.ID))

	require.NoError(t, h.engine.DeleteGroup(group))

	after, err := h.store.People.GetByID(person.ID)
	require.NoError(t, err)
	assert.False(t, after.Starred)
}

func TestInsertPhoto_Unsupported(t *testing.T) {
	h := setupHarness(t)

	err := h.engine.InsertPhoto(&domain.Photo{})
	var unsupported *domain.UnsupportedOperationError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "photo", unsupported.Resource)
}

func TestUpdatePhoto_ClearsStaleContent(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Faded Photo")
	_, err := h.remote.Exec(`
		INSERT INTO photos (person_id, sync_id, sync_account, exists_on_server) VALUES (?, 'ph1', ?, 1)
	`, rp.ID, testAccount)
	require.NoError(t, err)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	_, err = h.store.DB().Exec(
		"UPDATE photos SET data = X'FFD8', dirty = 0 WHERE person_id = ?", local.ID)
	require.NoError(t, err)

	// Remote now reports the photo gone; local has no pending edit.
	require.NoError(t, h.engine.UpdatePhoto(local.ID, &domain.Photo{ExistsOnServer: false}))

	var hasData, downloadRequired bool
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT data IS NOT NULL, download_required FROM photos WHERE person_id = ?", local.ID).
		Scan(&hasData, &downloadRequired))
	assert.False(t, hasData, "stale content cleared")
	assert.False(t, downloadRequired)
}

func TestResolvePhoto_KeepsDirtyLocalContent(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Pending Upload")
	_, err := h.remote.Exec(`
		INSERT INTO photos (person_id, sync_id, sync_account, exists_on_server) VALUES (?, 'ph1', ?, 1)
	`, rp.ID, testAccount)
	require.NoError(t, err)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	_, err = h.store.DB().Exec(
		"UPDATE photos SET data = X'FFD8', dirty = 1 WHERE person_id = ?", local.ID)
	require.NoError(t, err)

	require.NoError(t, h.engine.ResolvePhoto(local.ID, &domain.Photo{ExistsOnServer: false}))

	var hasData bool
	require.NoError(t, h.store.DB().QueryRow(
		"SELECT data IS NOT NULL FROM photos WHERE person_id = ?", local.ID).Scan(&hasData))
	assert.True(t, hasData, "a pending upload is never thrown away")
}

func TestInsertPerson_StarredMirrorFromMembership(t *testing.T) {
	h := setupHarness(t)

	// A synced starred group already exists locally.
	_, err := h.store.DB().Exec(`
		INSERT INTO groups (name, sync_id, sync_account) VALUES (?, 'g-star', ?)
	`, domain.StarredGroupName, testAccount)
	require.NoError(t, err)

	rp := h.remotePerson(t, "p1", "Remote Star")
	_, err = h.remote.Exec(`
		INSERT INTO group_memberships (person_id, sync_account, sync_group_id) VALUES (?, ?, 'g-star')
	`, rp.ID, testAccount)
	require.NoError(t, err)

	require.NoError(t, h.engine.InsertPerson(rp))

	local := h.localBySyncID(t, "p1")
	assert.True(t, local.Starred, "membership in the starred group mirrors onto the flag")
}

func TestInsertPerson_MembershipNeverLinksByRawGroupID(t *testing.T) {
	h := setupHarness(t)

	// A local group whose row id collides with the group id the remote row
	// carries. Copying the raw id would link the person to this group and
	// star them by accident.
	_, err := h.store.DB().Exec(`
		INSERT INTO groups (id, name) VALUES (77, ?)
	`, domain.StarredGroupName)
	require.NoError(t, err)

	rp := h.remotePerson(t, "p1", "Remote Member")
	_, err = h.remote.Exec(`
		INSERT INTO group_memberships (person_id, group_id, sync_account, sync_group_id)
		VALUES (?, 77, ?, 'g-other')
	`, rp.ID, testAccount)
	require.NoError(t, err)

	require.NoError(t, h.engine.InsertPerson(rp))

	local := h.localBySyncID(t, "p1")
	var groupID sql.NullInt64
	var syncGroupID string
	require.NoError(t, h.store.DB().QueryRow(`
		SELECT group_id, sync_group_id FROM group_memberships WHERE person_id = ?
	`, local.ID).Scan(&groupID, &syncGroupID))
	assert.False(t, groupID.Valid, "raw group ids belong to the database that issued them")
	assert.Equal(t, "g-other", syncGroupID)
	assert.False(t, local.Starred)
}

func TestUpdatePerson_MixedKindBatchKeepsKindScopedPrimaries(t *testing.T) {
	h := setupHarness(t)

	rp := h.remotePerson(t, "p1", "Mixed")
	h.remoteIm(t, rp.ID, "mixed_im", "home", false)
	require.NoError(t, h.engine.InsertPerson(rp))
	local := h.localBySyncID(t, "p1")

	// The IM row holds its kind's primary slot locally.
	_, err := h.store.DB().Exec(`
		UPDATE contact_methods SET is_primary = 1 WHERE person_id = ? AND kind = 'im'
	`, local.ID)
	require.NoError(t, err)
	_, err = h.store.DB().Exec("UPDATE people SET dirty = 0 WHERE id = ?", local.ID)
	require.NoError(t, err)

	// Remote adds a primary email into the same contact_methods batch.
	h.remoteEmail(t, rp.ID, "mixed@example.com", "home", true)

	require.NoError(t, h.engine.UpdatePerson(local, rp))

	var emailPrimary, imPrimary int
	require.NoError(t, h.store.DB().QueryRow(`
		SELECT COUNT(*) FROM contact_methods
		WHERE person_id = ? AND kind = 'email' AND is_primary = 1
	`, local.ID).Scan(&emailPrimary))
	require.NoError(t, h.store.DB().QueryRow(`
		SELECT COUNT(*) FROM contact_methods
		WHERE person_id = ? AND kind = 'im' AND is_primary = 1 AND value = 'mixed_im'
	`, local.ID).Scan(&imPrimary))
	assert.Equal(t, 1, emailPrimary, "the remote email primary lands in its own slot")
	assert.Equal(t, 1, imPrimary, "the other kind's primary slot stays untouched")
}

func TestUpdateGroup_RenameAwayFromStarredKeepsFlags(t *testing.T) {
	h := setupHarness(t)

	syncID := "g-star"
	require.NoError(t, h.engine.InsertGroup(&domain.Group{
		Name:   domain.StarredGroupName,
		SyncID: &syncID,
	}))
	group, err := h.store.Groups.GetBySyncID(testAccount, syncID)
	require.NoError(t, err)
	require.NotNil(t, group)

	name := "Member"
	person, err := h.store.People.Create(store.PersonCreateParams{DisplayName: &name})
	require.NoError(t, err)
	require.NoError(t, h.store.People.AddToGroup(person.ID, group.ID))

	// The server renamed the starred group.
	require.NoError(t, h.engine.UpdateGroup(group, &domain.Group{
		Name:   "Favorites",
		SyncID: &syncID,
	}))

	after, err := h.store.People.GetByID(person.ID)
	require.NoError(t, err)
	assert.True(t, after.Starred, "members were starred and stay starred after the rename")
}

func TestUpdateGroup_RenameToStarredStarsMembers(t *testing.T) {
	h := setupHarness(t)

	syncID := "g1"
	require.NoError(t, h.engine.InsertGroup(&domain.Group{
		Name:   "Favorites",
		SyncID: &syncID,
	}))
	group, err := h.store.Groups.GetBySyncID(testAccount, syncID)
	require.NoError(t, err)
	require.NotNil(t, group)

	name := "Promoted"
	person, err := h.store.People.Create(store.PersonCreateParams{DisplayName: &name})
	require.NoError(t, err)
	require.NoError(t, h.store.People.AddToGroup(person.ID, group.ID))
	require.False(t, mustGetPerson(t, h, person.ID).Starred)

	require.NoError(t, h.engine.UpdateGroup(group, &domain.Group{
		Name:   domain.StarredGroupName,
		SyncID: &syncID,
	}))

	assert.True(t, mustGetPerson(t, h, person.ID).Starred)
}

func mustGetPerson(t *testing.T, h *harness, id int64) *domain.Person {
	t.Helper()
	p, err := h.store.People.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}
