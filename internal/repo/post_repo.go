// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for posts and
// collections.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// Post counter columns accepted by AdjustPostCounter.
const (
	ColReactionsCount = "reactions_count"
	ColCommentsCount  = "comments_count"
)

// CreatePost inserts p with zeroed counters.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.ReactionsCount, p.CommentsCount = 0, 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = Now()
	}
	return db.WithContext(ctx).Create(p).Error
}

// GetPost fetches a post by id, or ErrNotFound.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePostAttachments replaces the attachment list of a post.
func UpdatePostAttachments(ctx context.Context, db *gorm.DB, p *domain.Post, atts []domain.Attachment) error {
	p.Attachments = atts
	return db.WithContext(ctx).Model(p).Select("attachments").Updates(p).Error
}

// SetPinned updates the pinned flag of a post.
func SetPinned(ctx context.Context, db *gorm.DB, id string, pinned bool) error {
	return db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ?", id).
		Update("is_pinned", pinned).Error
}

// DeletePost removes a post row.
func DeletePost(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustPostCounter adds delta to one of the post counter columns, floored
// at zero.
func AdjustPostCounter(ctx context.Context, db *gorm.DB, postID, column string, delta int) error {
	return adjust(db.WithContext(ctx), &domain.Post{}, postID, column, delta)
}

// ListPinnedPosts returns every pinned post of userID, newest first.
func ListPinnedPosts(ctx context.Context, db *gorm.DB, userID string) ([]domain.Post, error) {
	var out []domain.Post
	q := db.WithContext(ctx).Where("user_id = ? AND is_pinned = ?", userID, true)
	err := after(q, "created_at", nil).Find(&out).Error
	return out, err
}

// ListUserPosts returns the unpinned posts of userID, keyset-paged.
func ListUserPosts(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Key, limit int) ([]domain.Post, error) {
	var out []domain.Post
	q := db.WithContext(ctx).Where("user_id = ? AND is_pinned = ?", userID, false)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// ListFeedPosts returns posts by any of userIDs, keyset-paged.
func ListFeedPosts(ctx context.Context, db *gorm.DB, userIDs []string, cursor *pagination.Key, limit int) ([]domain.Post, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var out []domain.Post
	q := db.WithContext(ctx).Where("user_id IN ?", userIDs)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// ListPostsWithAttachments returns userID's posts that carry at least one
// attachment, keyset-paged. Callers filter by attachment type.
func ListPostsWithAttachments(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Key, limit int) ([]domain.Post, error) {
	var out []domain.Post
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("attachments IS NOT NULL AND attachments <> ? AND attachments <> ?", "", "null").
		Where("attachments <> ?", "[]")
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// CreateCollection inserts c.
func CreateCollection(ctx context.Context, db *gorm.DB, c *domain.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.PostsCount = 0
	if c.CreatedAt.IsZero() {
		c.CreatedAt = Now()
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetCollection fetches a collection by id, or ErrNotFound.
func GetCollection(ctx context.Context, db *gorm.DB, id string) (*domain.Collection, error) {
	var c domain.Collection
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections returns userID's collections newest first.
func ListCollections(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Key, limit int) ([]domain.Collection, error) {
	var out []domain.Collection
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// AdjustCollectionPosts adds delta to a collection's postsCount, floored at 0.
func AdjustCollectionPosts(ctx context.Context, db *gorm.DB, collectionID string, delta int) error {
	return adjust(db.WithContext(ctx), &domain.Collection{}, collectionID, "posts_count", delta)
}
