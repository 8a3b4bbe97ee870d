// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users, their
// privacy settings (UserInformation), profiles and blocks.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// CreateUser inserts u, assigning an id and timestamps when unset.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = Now()
	}
	return createUnique(db.WithContext(ctx), u)
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsers loads the users with the given ids, keyed by id. Missing ids are
// simply absent from the map.
func GetUsers(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

// CreateUserInformation inserts the privacy settings row for a user.
func CreateUserInformation(ctx context.Context, db *gorm.DB, info *domain.UserInformation) error {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.LastActive.IsZero() {
		info.LastActive = Now()
	}
	return createUnique(db.WithContext(ctx), info)
}

// GetUserInformation fetches the privacy settings for userID, or ErrNotFound.
func GetUserInformation(ctx context.Context, db *gorm.DB, userID string) (*domain.UserInformation, error) {
	var info domain.UserInformation
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&info).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

// TouchLastActive records activity for userID.
func TouchLastActive(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UserInformation{}).
		Where("user_id = ?", userID).
		Update("last_active", at).Error
}

// DiscoveryFilter selects discovery candidates from UserInformation.
type DiscoveryFilter struct {
	AgeGroup string
	// GenderPreference, when non-nil, restricts candidates to rows with that
	// preference value.
	GenderPreference *bool
}

// ListDiscoveryCandidates returns privacy rows matching f ordered by most
// recent activity, keyset-paged on (last_active, id).
func ListDiscoveryCandidates(ctx context.Context, db *gorm.DB, f DiscoveryFilter, cursor *pagination.Key, limit int) ([]domain.UserInformation, error) {
	q := db.WithContext(ctx).Where("age_group = ?", f.AgeGroup)
	if f.GenderPreference != nil {
		q = q.Where("gender_preference = ?", *f.GenderPreference)
	}
	var out []domain.UserInformation
	err := after(q, "last_active", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// CreateProfile inserts a profile row.
func CreateProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return createUnique(db.WithContext(ctx), p)
}

// GetProfile fetches the profile of userID, or ErrNotFound.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfiles loads profiles for userIDs keyed by user id.
func GetProfiles(ctx context.Context, db *gorm.DB, userIDs []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []domain.Profile
	if err := db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.UserID] = p
	}
	return out, nil
}

// IsBlocked reports whether either user has blocked the other.
func IsBlocked(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// BlockedPeers returns every user that userID blocked or was blocked by.
func BlockedPeers(ctx context.Context, db *gorm.DB, userID string) (map[string]struct{}, error) {
	var rows []domain.Block
	err := db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, b := range rows {
		if b.BlockerID == userID {
			out[b.BlockedID] = struct{}{}
		} else {
			out[b.BlockerID] = struct{}{}
		}
	}
	return out, nil
}

// CreateBlock records that blocker blocks blocked. A repeated block returns
// ErrDuplicate.
func CreateBlock(ctx context.Context, db *gorm.DB, blocker, blocked string) (*domain.Block, error) {
	b := &domain.Block{
		ID:        uuid.NewString(),
		BlockerID: blocker,
		BlockedID: blocked,
		CreatedAt: Now(),
	}
	if err := createUnique(db.WithContext(ctx), b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeleteBlock removes a block placed by blocker. It returns ErrNotFound when
// there was none.
func DeleteBlock(ctx context.Context, db *gorm.DB, blocker, blocked string) error {
	res := db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).
		Delete(&domain.Block{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err means "no such row".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
