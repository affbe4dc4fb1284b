package domain

import "fmt"

// ValidateMethodKind validates a contact method kind
func ValidateMethodKind(kind string) error {
	switch MethodKind(kind) {
	case MethodKindEmail, MethodKindIm, MethodKindPostal:
		return nil
	default:
		return fmt.Errorf("invalid contact method kind: must be one of: email, im, postal")
	}
}

// ValidateCategory validates a sub-record category
func ValidateCategory(cat string) error {
	switch Category(cat) {
	case CategoryPhone, CategoryContactMethod, CategoryOrganization,
		CategoryGroupMembership, CategoryExtension:
		return nil
	default:
		return fmt.Errorf("invalid category: must be one of: phone, contact_method, organization, group_membership, extension")
	}
}

// ValidateMembership checks the local-or-remote exclusivity of a membership
func ValidateMembership(m *GroupMembership) error {
	hasLocal := m.GroupID != nil
	hasRemote := m.SyncGroupID != nil || m.SyncAccount != nil
	if hasLocal && hasRemote {
		return fmt.Errorf("membership may reference a local group or a remote group, not both")
	}
	if !hasLocal && m.SyncGroupID == nil {
		return fmt.Errorf("membership must reference a local group id or a remote group id")
	}
	return nil
}
