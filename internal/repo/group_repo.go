// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for groups and
// their membership rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// CreateGroup inserts g.
func CreateGroup(ctx context.Context, db *gorm.DB, g *domain.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := Now()
	g.CreatedAt, g.UpdatedAt = now, now
	return db.WithContext(ctx).Create(g).Error
}

// GetGroup fetches a group by id, or ErrNotFound.
func GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	if err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroups loads groups by id, keyed by id.
func GetGroups(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Group, error) {
	out := make(map[string]domain.Group, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Group
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, g := range rows {
		out[g.ID] = g
	}
	return out, nil
}

// DeleteGroup removes the group row and all its memberships.
func DeleteGroup(ctx context.Context, db *gorm.DB, id string) error {
	db = db.WithContext(ctx)
	if err := db.Where("group_id = ?", id).Delete(&domain.GroupMember{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&domain.Group{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMembers inserts a membership row per user id.
func AddMembers(ctx context.Context, db *gorm.DB, groupID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := Now()
	rows := make([]domain.GroupMember, 0, len(userIDs))
	for _, u := range userIDs {
		rows = append(rows, domain.GroupMember{ID: uuid.NewString(), GroupID: groupID, UserID: u, CreatedAt: now})
	}
	return createUnique(db.WithContext(ctx), &rows)
}

// GetMembership returns userID's membership in groupID, or ErrNotFound.
func GetMembership(ctx context.Context, db *gorm.DB, groupID, userID string) (*domain.GroupMember, error) {
	var m domain.GroupMember
	err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMembership removes userID from groupID.
func DeleteMembership(ctx context.Context, db *gorm.DB, groupID, userID string) error {
	res := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&domain.GroupMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustMembersCount adds delta to the group's membersCount, floored at 0.
func AdjustMembersCount(ctx context.Context, db *gorm.DB, groupID string, delta int) error {
	return adjust(db.WithContext(ctx), &domain.Group{}, groupID, "members_count", delta)
}

// SetLastReadAt advances userID's read marker in groupID.
func SetLastReadAt(ctx context.Context, db *gorm.DB, groupID, userID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("last_read_at", at).Error
}

// ListMembershipsPage returns userID's memberships newest first.
func ListMembershipsPage(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Key, limit int) ([]domain.GroupMember, error) {
	var out []domain.GroupMember
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// ListGroupMembersPage returns the members of groupID, most recently joined
// first.
func ListGroupMembersPage(ctx context.Context, db *gorm.DB, groupID string, cursor *pagination.Key, limit int) ([]domain.GroupMember, error) {
	var out []domain.GroupMember
	q := db.WithContext(ctx).Where("group_id = ?", groupID)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// GroupMemberIDs returns the user ids of every member of groupID.
func GroupMemberIDs(ctx context.Context, db *gorm.DB, groupID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
