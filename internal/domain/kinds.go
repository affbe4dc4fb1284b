package domain

import (
	"database/sql"
	"fmt"
	"strings"
)

// Category identifies one sub-record table.
type Category string

const (
	CategoryPhone           Category = "phone"
	CategoryContactMethod   Category = "contact_method"
	CategoryOrganization    Category = "organization"
	CategoryGroupMembership Category = "group_membership"
	CategoryExtension       Category = "extension"
)

// SubEntityKind is the closed set of sub-record kinds, and the granularity at
// which the primary-uniqueness invariant applies. The three contact-method
// kinds share a table but each carries its own primary slot.
type SubEntityKind int

const (
	SubEntityPhone SubEntityKind = iota
	SubEntityEmail
	SubEntityIm
	SubEntityPostal
	SubEntityOrganization
	SubEntityGroupMembership
	SubEntityExtension
)

// Category returns the table-level category this kind belongs to.
func (k SubEntityKind) Category() Category {
	switch k {
	case SubEntityPhone:
		return CategoryPhone
	case SubEntityEmail, SubEntityIm, SubEntityPostal:
		return CategoryContactMethod
	case SubEntityOrganization:
		return CategoryOrganization
	case SubEntityGroupMembership:
		return CategoryGroupMembership
	default:
		return CategoryExtension
	}
}

// MethodKind returns the contact-method kind column value, or "" for kinds
// outside the contact_methods table.
func (k SubEntityKind) MethodKind() string {
	switch k {
	case SubEntityEmail:
		return string(MethodKindEmail)
	case SubEntityIm:
		return string(MethodKindIm)
	case SubEntityPostal:
		return string(MethodKindPostal)
	default:
		return ""
	}
}

// HasPrimary reports whether this kind carries a primary slot.
func (k SubEntityKind) HasPrimary() bool {
	switch k {
	case SubEntityPhone, SubEntityEmail, SubEntityIm, SubEntityPostal, SubEntityOrganization:
		return true
	default:
		return false
	}
}

// PointerColumn returns the people-table column fed by this kind's primary,
// or "" when the kind has no person-level pointer.
func (k SubEntityKind) PointerColumn() string {
	switch k {
	case SubEntityPhone:
		return "primary_phone_id"
	case SubEntityEmail:
		return "primary_email_id"
	case SubEntityOrganization:
		return "primary_organization_id"
	default:
		return ""
	}
}

func (k SubEntityKind) String() string {
	switch k {
	case SubEntityPhone:
		return "phone"
	case SubEntityEmail:
		return "email"
	case SubEntityIm:
		return "im"
	case SubEntityPostal:
		return "postal"
	case SubEntityOrganization:
		return "organization"
	case SubEntityGroupMembership:
		return "group_membership"
	default:
		return "extension"
	}
}

// SlotFor maps a category plus contact-method kind value onto the invariant
// slot it belongs to.
func SlotFor(cat Category, methodKind string) SubEntityKind {
	switch cat {
	case CategoryPhone:
		return SubEntityPhone
	case CategoryContactMethod:
		switch MethodKind(methodKind) {
		case MethodKindIm:
			return SubEntityIm
		case MethodKindPostal:
			return SubEntityPostal
		default:
			return SubEntityEmail
		}
	case CategoryOrganization:
		return SubEntityOrganization
	case CategoryGroupMembership:
		return SubEntityGroupMembership
	default:
		return SubEntityExtension
	}
}

// SubEntityDescriptor parameterizes one sub-entity merger: which table it
// reconciles, the natural key columns (rows are read ordered by the composed
// key), and the value columns copied whole-row from remote on a match. Scope
// is an optional SQL predicate restricting which rows take part in the merge.
type SubEntityDescriptor struct {
	Category    Category
	Table       string
	KeyColumns  []string
	CopyColumns []string
	TypeColumn  string
	KindColumn  string
	HasPrimary  bool
	Scope       string
}

// Descriptors lists the five sub-entity mergers in processing order.
var Descriptors = []SubEntityDescriptor{
	{
		Category:    CategoryPhone,
		Table:       "phones",
		KeyColumns:  []string{"number"},
		CopyColumns: []string{"number", "type", "label"},
		TypeColumn:  "type",
		HasPrimary:  true,
	},
	{
		Category:    CategoryContactMethod,
		Table:       "contact_methods",
		KeyColumns:  []string{"value", "kind"},
		CopyColumns: []string{"value", "kind", "type", "label", "aux_data"},
		TypeColumn:  "type",
		KindColumn:  "kind",
		HasPrimary:  true,
	},
	{
		Category:    CategoryOrganization,
		Table:       "organizations",
		KeyColumns:  []string{"company"},
		CopyColumns: []string{"company", "title", "type", "label"},
		TypeColumn:  "type",
		HasPrimary:  true,
	},
	{
		// A membership links to its group by local id or by remote
		// (account, id) pair, mutually exclusive. Only the remote-addressed
		// form takes part in the merge: raw group ids are row ids of
		// whichever database holds them and must never cross over, and the
		// remote has no authority over memberships in local-only groups.
		Category:    CategoryGroupMembership,
		Table:       "group_memberships",
		KeyColumns:  []string{"sync_account", "sync_group_id"},
		CopyColumns: []string{"sync_account", "sync_group_id"},
		Scope:       "sync_group_id IS NOT NULL",
	},
	{
		Category:    CategoryExtension,
		Table:       "extensions",
		KeyColumns:  []string{"name"},
		CopyColumns: []string{"name", "value"},
	},
}

// DescriptorFor returns the descriptor for a category.
func DescriptorFor(cat Category) (SubEntityDescriptor, bool) {
	for _, d := range Descriptors {
		if d.Category == cat {
			return d, true
		}
	}
	return SubEntityDescriptor{}, false
}

func (d SubEntityDescriptor) columnIndex(col string) int {
	if col == "" {
		return -1
	}
	for i, c := range d.CopyColumns {
		if c == col {
			return i
		}
	}
	return -1
}

// TypeIndex returns the position of the type column in CopyColumns, or -1.
func (d SubEntityDescriptor) TypeIndex() int { return d.columnIndex(d.TypeColumn) }

// KindIndex returns the position of the kind column in CopyColumns, or -1.
func (d SubEntityDescriptor) KindIndex() int { return d.columnIndex(d.KindColumn) }

// KeyIndexes returns the positions of the key columns within CopyColumns.
// Every key column is also a copy column.
func (d SubEntityDescriptor) KeyIndexes() []int {
	idx := make([]int, len(d.KeyColumns))
	for i, col := range d.KeyColumns {
		idx[i] = d.columnIndex(col)
	}
	return idx
}

// SubRecord is the category-independent view of one sub-record row used by
// the merge engine. Values holds the descriptor's CopyColumns in order.
type SubRecord struct {
	ID        int64
	PersonID  int64
	Key       string
	Kind      string
	Type      string
	Values    []sql.NullString
	IsPrimary bool
}

// ComposeKey builds the natural key for a row from its key column values.
// NULL and empty string must not collide, so values carry a validity prefix.
// Composed keys compare bytewise; readers must order rows by KeyOrderExpr
// rather than by the raw columns, or values holding bytes at or below the
// separator would put the two orders in disagreement.
func (d SubEntityDescriptor) ComposeKey(values []sql.NullString) string {
	parts := make([]string, 0, len(d.KeyColumns))
	for _, i := range d.KeyIndexes() {
		v := values[i]
		if v.Valid {
			parts = append(parts, "v:"+v.String)
		} else {
			parts = append(parts, "n:")
		}
	}
	return strings.Join(parts, "\x1f")
}

// KeyOrderExpr renders the composed natural key as a SQL ORDER BY expression
// mirroring ComposeKey byte for byte, so rows come back in exactly the order
// the composed keys imply no matter what types or bytes the columns hold.
func (d SubEntityDescriptor) KeyOrderExpr() string {
	parts := make([]string, len(d.KeyColumns))
	for i, col := range d.KeyColumns {
		parts[i] = fmt.Sprintf("CASE WHEN %s IS NULL THEN 'n:' ELSE 'v:' || %s END", col, col)
	}
	return strings.Join(parts, " || char(31) || ")
}
