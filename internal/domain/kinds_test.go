package domain

import (
	"database/sql"
	"testing"
)

func TestSlotFor(t *testing.T) {
	tests := []struct {
		cat        Category
		methodKind string
		want       SubEntityKind
	}{
		{CategoryPhone, "", SubEntityPhone},
		{CategoryContactMethod, "email", SubEntityEmail},
		{CategoryContactMethod, "im", SubEntityIm},
		{CategoryContactMethod, "postal", SubEntityPostal},
		{CategoryOrganization, "", SubEntityOrganization},
		{CategoryGroupMembership, "", SubEntityGroupMembership},
		{CategoryExtension, "", SubEntityExtension},
	}
	for _, tt := range tests {
		if got := SlotFor(tt.cat, tt.methodKind); got != tt.want {
			t.Errorf("SlotFor(%s, %q) = %s, want %s", tt.cat, tt.methodKind, got, tt.want)
		}
	}
}

func TestSubEntityKind_HasPrimary(t *testing.T) {
	withPrimary := []SubEntityKind{SubEntityPhone, SubEntityEmail, SubEntityIm, SubEntityPostal, SubEntityOrganization}
	for _, k := range withPrimary {
		if !k.HasPrimary() {
			t.Errorf("%s should carry a primary slot", k)
		}
	}
	if SubEntityGroupMembership.HasPrimary() || SubEntityExtension.HasPrimary() {
		t.Error("memberships and extensions have no primary slot")
	}
}

func TestSubEntityKind_PointerColumn(t *testing.T) {
	if got := SubEntityPhone.PointerColumn(); got != "primary_phone_id" {
		t.Errorf("phone pointer column = %q", got)
	}
	if got := SubEntityEmail.PointerColumn(); got != "primary_email_id" {
		t.Errorf("email pointer column = %q", got)
	}
	if got := SubEntityOrganization.PointerColumn(); got != "primary_organization_id" {
		t.Errorf("organization pointer column = %q", got)
	}
	// IM and postal carry a primary slot but no person-level pointer.
	if SubEntityIm.PointerColumn() != "" || SubEntityPostal.PointerColumn() != "" {
		t.Error("im/postal must not feed a person pointer column")
	}
}

func TestComposeKey_NullVersusEmpty(t *testing.T) {
	d, ok := DescriptorFor(CategoryExtension)
	if !ok {
		t.Fatal("extension descriptor missing")
	}

	empty := d.ComposeKey([]sql.NullString{{String: "", Valid: true}, {}})
	null := d.ComposeKey([]sql.NullString{{}, {}})
	if empty == null {
		t.Error("empty string and NULL key values must not collide")
	}
}

func TestComposeKey_MultiColumn(t *testing.T) {
	d, ok := DescriptorFor(CategoryContactMethod)
	if !ok {
		t.Fatal("contact method descriptor missing")
	}

	values := func(value, kind string) []sql.NullString {
		return []sql.NullString{
			{String: value, Valid: true},
			{String: kind, Valid: true},
			{String: "home", Valid: true},
			{},
			{},
		}
	}

	email := d.ComposeKey(values("a@example.com", "email"))
	im := d.ComposeKey(values("a@example.com", "im"))
	if email == im {
		t.Error("same value under different kinds must produce distinct keys")
	}
	if email != d.ComposeKey(values("a@example.com", "email")) {
		t.Error("key composition is not deterministic")
	}
}

func TestDescriptors_KeyColumnsAreCopyColumns(t *testing.T) {
	for _, d := range Descriptors {
		for i, idx := range d.KeyIndexes() {
			if idx < 0 {
				t.Errorf("%s: key column %q missing from copy columns", d.Table, d.KeyColumns[i])
			}
		}
	}
}
