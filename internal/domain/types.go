package domain

// MethodKind sub-classifies a contact method
type MethodKind string

const (
	MethodKindEmail  MethodKind = "email"
	MethodKindIm     MethodKind = "im"
	MethodKindPostal MethodKind = "postal"
)

// StarredGroupName is the distinguished group whose membership mirrors the
// starred flag on people.
const StarredGroupName = "Starred"

// Person is the aggregate root for one contact
type Person struct {
	ID                    int64   `json:"id" db:"id"`
	LookupUUID            string  `json:"lookup_uuid" db:"lookup_uuid"`
	DisplayName           *string `json:"display_name,omitempty" db:"display_name"`
	Notes                 *string `json:"notes,omitempty" db:"notes"`
	Starred               bool    `json:"starred" db:"starred"`
	CustomRingtone        *string `json:"custom_ringtone,omitempty" db:"custom_ringtone"`
	SendToVoicemail       bool    `json:"send_to_voicemail" db:"send_to_voicemail"`
	PrimaryPhoneID        *int64  `json:"primary_phone_id,omitempty" db:"primary_phone_id"`
	PrimaryEmailID        *int64  `json:"primary_email_id,omitempty" db:"primary_email_id"`
	PrimaryOrganizationID *int64  `json:"primary_organization_id,omitempty" db:"primary_organization_id"`
	SyncID                *string `json:"sync_id,omitempty" db:"sync_id"`
	SyncAccount           *string `json:"sync_account,omitempty" db:"sync_account"`
	SyncVersion           *string `json:"sync_version,omitempty" db:"sync_version"`
	SyncTime              *string `json:"sync_time,omitempty" db:"sync_time"`
	Dirty                 bool    `json:"dirty" db:"dirty"`
	Deleted               bool    `json:"deleted" db:"deleted"`
}

// Phone is a phone number sub-record
type Phone struct {
	ID        int64   `json:"id" db:"id"`
	PersonID  int64   `json:"person_id" db:"person_id"`
	Number    string  `json:"number" db:"number"`
	Type      string  `json:"type" db:"type"`
	Label     *string `json:"label,omitempty" db:"label"`
	IsPrimary bool    `json:"is_primary" db:"is_primary"`
}

// ContactMethod is an email, IM or postal address sub-record
type ContactMethod struct {
	ID        int64      `json:"id" db:"id"`
	PersonID  int64      `json:"person_id" db:"person_id"`
	Kind      MethodKind `json:"kind" db:"kind"`
	Value     string     `json:"value" db:"value"`
	Type      string     `json:"type" db:"type"`
	Label     *string    `json:"label,omitempty" db:"label"`
	AuxData   *string    `json:"aux_data,omitempty" db:"aux_data"`
	IsPrimary bool       `json:"is_primary" db:"is_primary"`
}

// Organization is an organization sub-record
type Organization struct {
	ID        int64   `json:"id" db:"id"`
	PersonID  int64   `json:"person_id" db:"person_id"`
	Company   string  `json:"company" db:"company"`
	Title     *string `json:"title,omitempty" db:"title"`
	Type      string  `json:"type" db:"type"`
	Label     *string `json:"label,omitempty" db:"label"`
	IsPrimary bool    `json:"is_primary" db:"is_primary"`
}

// GroupMembership links a person to a group, either by local id or by the
// remote (account, group id) pair. Exactly one of the two forms is set.
type GroupMembership struct {
	ID          int64   `json:"id" db:"id"`
	PersonID    int64   `json:"person_id" db:"person_id"`
	GroupID     *int64  `json:"group_id,omitempty" db:"group_id"`
	SyncAccount *string `json:"sync_account,omitempty" db:"sync_account"`
	SyncGroupID *string `json:"sync_group_id,omitempty" db:"sync_group_id"`
}

// Extension is a free-form (name, value) sub-record
type Extension struct {
	ID       int64   `json:"id" db:"id"`
	PersonID int64   `json:"person_id" db:"person_id"`
	Name     string  `json:"name" db:"name"`
	Value    *string `json:"value,omitempty" db:"value"`
}

// Group is a named collection of people
type Group struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Notes       *string `json:"notes,omitempty" db:"notes"`
	SystemID    *string `json:"system_id,omitempty" db:"system_id"`
	SyncID      *string `json:"sync_id,omitempty" db:"sync_id"`
	SyncAccount *string `json:"sync_account,omitempty" db:"sync_account"`
	SyncVersion *string `json:"sync_version,omitempty" db:"sync_version"`
	SyncTime    *string `json:"sync_time,omitempty" db:"sync_time"`
	Dirty       bool    `json:"dirty" db:"dirty"`
	Deleted     bool    `json:"deleted" db:"deleted"`
}

// Photo holds the identity and sync metadata for a person's photo. Binary
// content is fetched by the attachment service, never by the merge engine.
type Photo struct {
	ID               int64   `json:"id" db:"id"`
	PersonID         int64   `json:"person_id" db:"person_id"`
	LocalVersion     int64   `json:"local_version" db:"local_version"`
	SyncID           *string `json:"sync_id,omitempty" db:"sync_id"`
	SyncAccount      *string `json:"sync_account,omitempty" db:"sync_account"`
	SyncVersion      *string `json:"sync_version,omitempty" db:"sync_version"`
	ExistsOnServer   bool    `json:"exists_on_server" db:"exists_on_server"`
	DownloadRequired bool    `json:"download_required" db:"download_required"`
	Dirty            bool    `json:"dirty" db:"dirty"`
	SyncError        *string `json:"sync_error,omitempty" db:"sync_error"`
}

// Event represents an event in the event log
type Event struct {
	ID           int64   `json:"id" db:"id"`
	Timestamp    string  `json:"timestamp" db:"timestamp"`
	ResourceType string  `json:"resource_type" db:"resource_type"`
	ResourceID   *int64  `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string  `json:"event_type" db:"event_type"`
	Payload      *string `json:"payload,omitempty" db:"payload"`
}
