// Package pagination provides cursor-based paging primitives shared by the
// repository, service and HTTP layers.
//
// Every list in the API is ordered newest-first by a (time, id) key. A page
// is fetched with a keyset condition strictly "after" the key encoded in the
// cursor, so rows inserted while a client is paging never shift page
// boundaries. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Default and maximum page sizes used when a request does not specify one.
const (
	DefaultNumItems = 20
	MaxNumItems     = 100
)

// ErrBadCursor is returned when a client-supplied cursor cannot be decoded.
var ErrBadCursor = errors.New("invalid cursor")

// PageRequest is the client's paging input.
type PageRequest struct {
	Cursor   string `json:"cursor"`
	NumItems int    `json:"num_items"`
}

// Page is one page of results.
type Page[T any] struct {
	Page           []T    `json:"page"`
	IsDone         bool   `json:"is_done"`
	ContinueCursor string `json:"continue_cursor"`
}

// Empty returns a finished page with no items. Queries made without an
// authenticated caller degrade to this.
func Empty[T any]() Page[T] {
	return Page[T]{Page: []T{}, IsDone: true}
}

// Limit returns the effective page size for r, bounded by def and max.
func (r PageRequest) Limit(def, max int) int {
	n := r.NumItems
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// Key is the ordering position of a row: its timestamp and id.
type Key struct {
	Time time.Time
	ID   string
}

type wireKey struct {
	T  int64  `json:"t"`
	ID string `json:"id"`
}

// Encode returns the opaque cursor for k.
func (k Key) Encode() string {
	b, _ := json.Marshal(wireKey{T: k.Time.UTC().UnixNano(), ID: k.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses an opaque cursor. An empty cursor yields (nil, nil),
// meaning "start from the newest row".
func Decode(cursor string) (*Key, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrBadCursor
	}
	var w wireKey
	if err := json.Unmarshal(raw, &w); err != nil || w.ID == "" {
		return nil, ErrBadCursor
	}
	return &Key{Time: time.Unix(0, w.T).UTC(), ID: w.ID}, nil
}

// Build trims rows fetched with limit+1 to a page of at most limit items,
// deriving IsDone and the continue cursor from the last kept row.
func Build[T any](rows []T, limit int, key func(T) Key) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	done := len(rows) <= limit
	if !done {
		rows = rows[:limit]
	}
	p := Page[T]{Page: rows, IsDone: done}
	if !done && len(rows) > 0 {
		p.ContinueCursor = key(rows[len(rows)-1]).Encode()
	}
	return p
}

// Map converts a page of one element type into another, keeping its paging
// state.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Page))
	for _, v := range p.Page {
		out = append(out, fn(v))
	}
	return Page[U]{Page: out, IsDone: p.IsDone, ContinueCursor: p.ContinueCursor}
}
