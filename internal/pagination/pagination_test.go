package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestKeyRoundTrip(t *testing.T) {
	k := Key{Time: time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC), ID: "abc"}
	got, err := Decode(k.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Time.Equal(k.Time) || got.ID != k.ID {
		t.Fatalf("got %+v; want %+v", got, k)
	}
}

func TestDecode_EmptyAndInvalid(t *testing.T) {
	if k, err := Decode("  "); err != nil || k != nil {
		t.Fatalf("empty cursor: got (%v, %v)", k, err)
	}
	for _, bad := range []string{"%%%", "bm90LWpzb24", "e30"} {
		if _, err := Decode(bad); !errors.Is(err, ErrBadCursor) {
			t.Fatalf("Decode(%q) err = %v; want ErrBadCursor", bad, err)
		}
	}
}

func TestLimit(t *testing.T) {
	cases := []struct{ in, want int }{{0, 20}, {-3, 20}, {5, 5}, {500, 100}}
	for _, c := range cases {
		if got := (PageRequest{NumItems: c.in}).Limit(DefaultNumItems, MaxNumItems); got != c.want {
			t.Fatalf("Limit(%d) = %d; want %d", c.in, got, c.want)
		}
	}
}

func TestBuild(t *testing.T) {
	base := time.Unix(1000, 0).UTC()
	key := func(i int) Key { return Key{Time: base.Add(-time.Duration(i) * time.Second), ID: "x"} }

	p := Build([]int{1, 2, 3}, 2, key)
	if p.IsDone || len(p.Page) != 2 || p.ContinueCursor == "" {
		t.Fatalf("unexpected page: %+v", p)
	}
	k, _ := Decode(p.ContinueCursor)
	if !k.Time.Equal(key(2).Time) {
		t.Fatalf("cursor should point at last kept row")
	}

	p = Build([]int{1, 2}, 2, key)
	if !p.IsDone || p.ContinueCursor != "" {
		t.Fatalf("expected done page: %+v", p)
	}

	p = Build[int](nil, 2, key)
	if p.Page == nil || !p.IsDone {
		t.Fatalf("nil rows should become an empty, done page")
	}
}

func TestMerge_InterleavesByKey(t *testing.T) {
	base := time.Unix(1000, 0).UTC()
	at := func(sec int, id string) Key { return Key{Time: base.Add(time.Duration(sec) * time.Second), ID: id} }

	a := []Key{at(9, "a9"), at(5, "a5"), at(1, "a1")}
	b := []Key{at(8, "b8"), at(7, "b7"), at(2, "b2")}

	got, more := Merge([][]Key{a, b}, Newer, 4)
	ids := make([]string, 0, len(got))
	for _, k := range got {
		ids = append(ids, k.ID)
	}
	if diff := cmp.Diff([]string{"a9", "b8", "b7", "a5"}, ids); diff != "" {
		t.Fatalf("merge order mismatch (-want +got):\n%s", diff)
	}
	if !more {
		t.Fatalf("expected more=true with leftovers")
	}

	got, more = Merge([][]Key{a, b}, Newer, 10)
	if len(got) != 6 || more {
		t.Fatalf("expected all 6 items and more=false, got %d more=%v", len(got), more)
	}
}

func TestMerge_TieBreaksOnID(t *testing.T) {
	ts := time.Unix(1000, 0).UTC()
	got, _ := Merge([][]Key{{{Time: ts, ID: "a"}}, {{Time: ts, ID: "b"}}}, Newer, 2)
	if got[0].ID != "b" {
		t.Fatalf("equal timestamps should order by descending id, got %q first", got[0].ID)
	}
}

func TestMap(t *testing.T) {
	p := Page[int]{Page: []int{1, 2}, IsDone: false, ContinueCursor: "c"}
	q := Map(p, func(i int) string { return string(rune('a' + i)) })
	if diff := cmp.Diff(Page[string]{Page: []string{"b", "c"}, ContinueCursor: "c"}, q); diff != "" {
		t.Fatalf("Map mismatch (-want +got):\n%s", diff)
	}
}
