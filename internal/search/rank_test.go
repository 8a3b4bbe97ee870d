package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(rs []Result) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestRank_OrdersBySimilarity(t *testing.T) {
	docs := []Doc{
		{ID: "u1", Text: "I love hiking and photography"},
		{ID: "u2", Text: "Photography, hiking, mountains"},
		{ID: "u3", Text: "Cooking and jazz"},
	}
	got := Rank("hiking mountains", docs, WithStopwords(DefaultStopwords))
	if diff := cmp.Diff([]string{"u2", "u1"}, ids(got)); diff != "" {
		t.Fatalf("rank mismatch (-want +got):\n%s", diff)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores not descending: %+v", got)
	}
}

func TestRank_ZeroScoresKeptLastWhenRequested(t *testing.T) {
	docs := []Doc{{ID: "a", Text: "jazz"}, {ID: "b", Text: "chess"}, {ID: "c", Text: "chess club"}}
	got := Rank("chess", docs, WithZeroScores())
	if diff := cmp.Diff([]string{"b", "c", "a"}, ids(got)); diff != "" {
		t.Fatalf("rank mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_BlankQuery(t *testing.T) {
	if got := Rank("   ", []Doc{{ID: "a", Text: "x"}}); got != nil {
		t.Fatalf("blank query should return nil, got %+v", got)
	}
	if got := Rank("the and", []Doc{{ID: "a", Text: "the"}}, WithStopwords(DefaultStopwords)); got != nil {
		t.Fatalf("stop-word-only query should return nil, got %+v", got)
	}
}

func TestRank_UnicodeTokens(t *testing.T) {
	got := Rank("café", []Doc{{ID: "a", Text: "Le CAFÉ du coin"}, {ID: "b", Text: "cafe"}})
	if diff := cmp.Diff([]string{"a"}, ids(got)); diff != "" {
		t.Fatalf("rank mismatch (-want +got):\n%s", diff)
	}
}
