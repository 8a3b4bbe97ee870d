// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for comments and
// reactions.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// CreateComment inserts c with a zero reply counter.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.RepliesCount = 0
	if c.CreatedAt.IsZero() {
		c.CreatedAt = Now()
	}
	return db.WithContext(ctx).Create(c).Error
}

// GetComment fetches a comment by id, or ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListTopLevelComments returns comments on postID that are not replies.
func ListTopLevelComments(ctx context.Context, db *gorm.DB, postID string, cursor *pagination.Key, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := db.WithContext(ctx).Where("post_id = ? AND reply_parent_id IS NULL", postID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// ListReplies returns direct replies to parentID.
func ListReplies(ctx context.Context, db *gorm.DB, parentID string, cursor *pagination.Key, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	q := db.WithContext(ctx).Where("reply_parent_id = ?", parentID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// ChildCommentIDs returns the ids of direct replies to any of parentIDs.
func ChildCommentIDs(ctx context.Context, db *gorm.DB, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("reply_parent_id IN ?", parentIDs).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteComments removes comments by id and returns how many were deleted.
func DeleteComments(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Comment{})
	return res.RowsAffected, res.Error
}

// DeletePostComments removes every comment of postID.
func DeletePostComments(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	res := db.WithContext(ctx).Where("post_id = ?", postID).Delete(&domain.Comment{})
	return res.RowsAffected, res.Error
}

// AdjustRepliesCount adds delta to a comment's repliesCount, floored at 0.
func AdjustRepliesCount(ctx context.Context, db *gorm.DB, commentID string, delta int) error {
	return adjust(db.WithContext(ctx), &domain.Comment{}, commentID, "replies_count", delta)
}

// GetReaction returns userID's reaction on postID, or ErrNotFound.
func GetReaction(ctx context.Context, db *gorm.DB, userID, postID string) (*domain.Reaction, error) {
	var r domain.Reaction
	err := db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateReaction inserts a reaction; a second reaction by the same user on
// the same post returns ErrDuplicate.
func CreateReaction(ctx context.Context, db *gorm.DB, userID, postID, emoji string) (*domain.Reaction, error) {
	r := &domain.Reaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		PostID:    postID,
		Emoji:     emoji,
		CreatedAt: Now(),
	}
	if err := createUnique(db.WithContext(ctx), r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateReactionEmoji replaces the emoji of a reaction in place.
func UpdateReactionEmoji(ctx context.Context, db *gorm.DB, id, emoji string) error {
	return db.WithContext(ctx).
		Model(&domain.Reaction{}).
		Where("id = ?", id).
		Update("emoji", emoji).Error
}

// DeleteReaction removes a reaction by id.
func DeleteReaction(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Reaction{}).Error
}

// DeletePostReactions removes every reaction on postID.
func DeletePostReactions(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	res := db.WithContext(ctx).Where("post_id = ?", postID).Delete(&domain.Reaction{})
	return res.RowsAffected, res.Error
}

// ListPostReactions returns reactions on postID newest first.
func ListPostReactions(ctx context.Context, db *gorm.DB, postID string, cursor *pagination.Key, limit int) ([]domain.Reaction, error) {
	var out []domain.Reaction
	q := db.WithContext(ctx).Where("post_id = ?", postID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// GetUserReactions returns userID's emoji for each of postIDs that it
// reacted to, keyed by post id.
func GetUserReactions(ctx context.Context, db *gorm.DB, userID string, postIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return out, nil
	}
	var rows []domain.Reaction
	err := db.WithContext(ctx).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.PostID] = r.Emoji
	}
	return out, nil
}
