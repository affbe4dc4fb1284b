package domain

import "fmt"

// PrimaryConflictError reports more than one sub-record independently marked
// primary within one (person, slot). This indicates corrupted sync data and
// is never silently repaired.
type PrimaryConflictError struct {
	PersonID int64
	Slot     SubEntityKind
	Count    int
}

func (e *PrimaryConflictError) Error() string {
	return fmt.Sprintf("person %d has %d primary %s records, expected at most 1",
		e.PersonID, e.Count, e.Slot)
}

// UnsupportedOperationError reports an operation invoked outside its
// lifecycle, such as a direct photo insert. It signals a caller defect.
type UnsupportedOperationError struct {
	Resource  string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Resource, e.Operation)
}

// MissingKeyError reports a row whose natural key columns are absent.
type MissingKeyError struct {
	Table  string
	Column string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("row in %s is missing required key column %s", e.Table, e.Column)
}
