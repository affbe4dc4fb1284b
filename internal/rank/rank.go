// Package rank defines the fixed per-type ordering used to deterministically
// auto-select a primary sub-record when none is explicitly marked.
package rank

import "github.com/lherron/contactsync/internal/domain"

// Worst is assigned to unknown or unspecified types so they are never
// auto-chosen ahead of a known type.
const Worst = 1 << 10

var phoneRanks = map[string]int{
	"mobile":   0,
	"work":     1,
	"home":     2,
	"pager":    3,
	"custom":   4,
	"other":    5,
	"fax_work": 6,
	"fax_home": 7,
}

var methodRanks = map[string]int{
	"home":   0,
	"work":   1,
	"custom": 2,
	"other":  3,
}

var organizationRanks = map[string]int{
	"work":   0,
	"custom": 1,
	"other":  2,
}

// For returns the rank of a (category, type) pair. Lower ranks are preferred.
func For(cat domain.Category, typ string) int {
	var table map[string]int
	switch cat {
	case domain.CategoryPhone:
		table = phoneRanks
	case domain.CategoryContactMethod:
		table = methodRanks
	case domain.CategoryOrganization:
		table = organizationRanks
	default:
		return Worst
	}
	if r, ok := table[typ]; ok {
		return r
	}
	return Worst
}
