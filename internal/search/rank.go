// Package search ranks short free-text documents (profile bios and hobby
// lists) against a query. It is deterministic and dependency-free:
//
//   - Unicode-aware tokenization with optional stop-word removal
//   - Jaccard similarity between the query and document token sets:
//     score = |Q ∩ D| / |Q ∪ D|
//   - Stable ordering for ties (input order is preserved)
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Doc is one rankable document.
type Doc struct {
	ID   string
	Text string
}

// Result is a document id with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Option configures Rank.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	keepZero  bool
}

// WithStopwords drops the given words from both query and documents.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithZeroScores keeps documents that share no token with the query,
// ranked after every match.
func WithZeroScores() Option {
	return func(c *config) { c.keepZero = true }
}

// DefaultStopwords is a small English stop list suited to profile text.
var DefaultStopwords = []string{
	"a", "an", "and", "the", "i", "im", "me", "my", "to", "of", "in", "on",
	"for", "with", "is", "am", "are", "like", "love", "really",
}

// Rank scores docs against query and returns them best-first. A blank
// query (or one made only of stop words) returns nil.
func Rank(query string, docs []Doc, opts ...Option) []Result {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	q := tokenize(query, cfg.stopwords)
	if len(q) == 0 {
		return nil
	}

	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		dt := tokenize(d.Text, cfg.stopwords)
		over := overlap(q, dt)
		var score float64
		if over > 0 {
			score = float64(over) / float64(len(q)+len(dt)-over)
		}
		if score == 0 && !cfg.keepZero {
			continue
		}
		out = append(out, Result{ID: d.ID, Score: score})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
