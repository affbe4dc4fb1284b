package join

import (
	"testing"
)

type row struct {
	key string
	val int
}

func keys(pairs []Pair[row]) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		switch p.Kind {
		case LocalOnly:
			out[i] = "L:" + p.Local.key
		case RemoteOnly:
			out[i] = "R:" + p.Remote.key
		default:
			out[i] = "M:" + p.Local.key
		}
	}
	return out
}

func TestJoin_Classification(t *testing.T) {
	local := []row{{key: "a"}, {key: "c"}, {key: "d"}}
	remote := []row{{key: "b"}, {key: "c"}, {key: "e"}}

	pairs := Join(local, remote, func(r row) string { return r.key })

	want := []string{"L:a", "R:b", "M:c", "L:d", "R:e"}
	got := keys(pairs)
	if len(got) != len(want) {
		t.Fatalf("got %d pairs, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestJoin_MatchedCarriesBothRows(t *testing.T) {
	local := []row{{key: "x", val: 1}}
	remote := []row{{key: "x", val: 2}}

	pairs := Join(local, remote, func(r row) string { return r.key })

	if len(pairs) != 1 || pairs[0].Kind != Matched {
		t.Fatalf("expected one matched pair, got %v", pairs)
	}
	if pairs[0].Local.val != 1 || pairs[0].Remote.val != 2 {
		t.Errorf("matched pair lost a side: local=%d remote=%d", pairs[0].Local.val, pairs[0].Remote.val)
	}
}

func TestJoin_EmptySides(t *testing.T) {
	key := func(r row) string { return r.key }

	if got := Join(nil, nil, key); len(got) != 0 {
		t.Errorf("empty join produced %d pairs", len(got))
	}

	pairs := Join([]row{{key: "a"}, {key: "b"}}, nil, key)
	for _, p := range pairs {
		if p.Kind != LocalOnly {
			t.Errorf("expected LocalOnly, got %v", p.Kind)
		}
	}

	pairs = Join(nil, []row{{key: "a"}}, key)
	if len(pairs) != 1 || pairs[0].Kind != RemoteOnly {
		t.Errorf("expected one RemoteOnly pair, got %v", pairs)
	}
}

func TestJoin_DrainsLongerSide(t *testing.T) {
	local := []row{{key: "a"}}
	remote := []row{{key: "a"}, {key: "b"}, {key: "c"}}

	pairs := Join(local, remote, func(r row) string { return r.key })

	want := []string{"M:a", "R:b", "R:c"}
	got := keys(pairs)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestVerifySorted(t *testing.T) {
	key := func(r row) string { return r.key }

	if err := VerifySorted([]row{{key: "a"}, {key: "a"}, {key: "b"}}, key); err != nil {
		t.Errorf("sorted input rejected: %v", err)
	}
	if err := VerifySorted([]row{{key: "b"}, {key: "a"}}, key); err == nil {
		t.Error("unsorted input accepted")
	}
	if err := VerifySorted(nil, key); err != nil {
		t.Errorf("empty input rejected: %v", err)
	}
}
