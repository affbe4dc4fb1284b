// Package join implements a merge-join over two key-sorted row sequences,
// classifying each natural key as local-only, remote-only, or matched.
package join

import "fmt"

// MatchKind classifies one joined pair
type MatchKind int

const (
	LocalOnly MatchKind = iota
	RemoteOnly
	Matched
)

func (k MatchKind) String() string {
	switch k {
	case LocalOnly:
		return "local_only"
	case RemoteOnly:
		return "remote_only"
	default:
		return "matched"
	}
}

// Pair is one classified join result. Local is set for LocalOnly and Matched,
// Remote for RemoteOnly and Matched.
type Pair[R any] struct {
	Kind   MatchKind
	Local  R
	Remote R
}

// Join merge-joins two sequences already sorted ascending by key. Sortedness
// is a precondition: unsorted input silently produces wrong classifications.
// Callers that need the check use VerifySorted on each input first.
func Join[R any](local, remote []R, key func(R) string) []Pair[R] {
	pairs := make([]Pair[R], 0, len(local)+len(remote))
	i, j := 0, 0
	for i < len(local) && j < len(remote) {
		lk, rk := key(local[i]), key(remote[j])
		switch {
		case lk < rk:
			pairs = append(pairs, Pair[R]{Kind: LocalOnly, Local: local[i]})
			i++
		case lk > rk:
			pairs = append(pairs, Pair[R]{Kind: RemoteOnly, Remote: remote[j]})
			j++
		default:
			pairs = append(pairs, Pair[R]{Kind: Matched, Local: local[i], Remote: remote[j]})
			i++
			j++
		}
	}
	for ; i < len(local); i++ {
		pairs = append(pairs, Pair[R]{Kind: LocalOnly, Local: local[i]})
	}
	for ; j < len(remote); j++ {
		pairs = append(pairs, Pair[R]{Kind: RemoteOnly, Remote: remote[j]})
	}
	return pairs
}

// VerifySorted returns an error if rows are not sorted ascending by key.
func VerifySorted[R any](rows []R, key func(R) string) error {
	for i := 1; i < len(rows); i++ {
		if key(rows[i-1]) > key(rows[i]) {
			return fmt.Errorf("rows out of order at index %d: %q > %q", i, key(rows[i-1]), key(rows[i]))
		}
	}
	return nil
}
