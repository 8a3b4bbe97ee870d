// Package storage resolves and deletes media blobs (profile pictures, post
// images, group banners, message attachments) referenced by key from the
// database.
package storage

import (
	"context"
	"strings"
	"sync"
)

// Blobs is the narrow blob-store contract consumed by the services.
//
// URL returns a time-limited URL suitable for private media; PublicURL a
// stable, cacheable URL. Both return "" for an empty key. Delete removes the
// object and must tolerate keys that no longer exist.
type Blobs interface {
	URL(ctx context.Context, key string) (string, error)
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
}

// Static serves blobs from a fixed base URL and records deletions. It backs
// local development (when no bucket is configured) and tests.
type Static struct {
	BaseURL string

	mu      sync.Mutex
	deleted []string
}

// NewStatic returns a Static rooted at baseURL.
func NewStatic(baseURL string) *Static {
	return &Static{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Static) join(key string) string {
	if key == "" {
		return ""
	}
	if s.BaseURL == "" {
		return key
	}
	return s.BaseURL + "/" + strings.TrimLeft(key, "/")
}

// URL implements Blobs.
func (s *Static) URL(_ context.Context, key string) (string, error) { return s.join(key), nil }

// PublicURL implements Blobs.
func (s *Static) PublicURL(key string) string { return s.join(key) }

// Delete implements Blobs.
func (s *Static) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, key)
	s.mu.Unlock()
	return nil
}

// Deleted returns the keys passed to Delete, in call order.
func (s *Static) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.deleted))
	copy(out, s.deleted)
	return out
}
