package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// CanonicalPair orders two user ids so that a < b.
func CanonicalPair(x, y string) (a, b string) {
	if x < y {
		return x, y
	}
	return y, x
}

// GetFriendship fetches a friendship by id, or ErrNotFound.
func GetFriendship(ctx context.Context, db *gorm.DB, id string) (*domain.Friendship, error) {
	var f domain.Friendship
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFriendshipByPair fetches the single row for the unordered pair {x, y},
// or ErrNotFound.
func GetFriendshipByPair(ctx context.Context, db *gorm.DB, x, y string) (*domain.Friendship, error) {
	a, b := CanonicalPair(x, y)
	var f domain.Friendship
	err := db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", a, b).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFriendship inserts a pending request from sender to receiver. The
// unique pair index turns a concurrent duplicate into ErrDuplicate.
func CreateFriendship(ctx context.Context, db *gorm.DB, sender, receiver string) (*domain.Friendship, error) {
	a, b := CanonicalPair(sender, receiver)
	now := Now()
	f := &domain.Friendship{
		ID:        uuid.NewString(),
		UserAID:   a,
		UserBID:   b,
		Status:    domain.FriendshipPending,
		SenderID:  sender,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := createUnique(db.WithContext(ctx), f); err != nil {
		return nil, err
	}
	return f, nil
}

// AcceptFriendship moves a pending row to accepted. It returns ErrNotFound if
// the row is gone or no longer pending.
func AcceptFriendship(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("id = ? AND status = ?", id, domain.FriendshipPending).
		Updates(map[string]any{"status": domain.FriendshipAccepted, "updated_at": Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFriendship removes a friendship row by id.
func DeleteFriendship(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Friendship{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AreFriends reports whether x and y have an accepted friendship.
func AreFriends(ctx context.Context, db *gorm.DB, x, y string) (bool, error) {
	if x == "" || y == "" || x == y {
		return false, nil
	}
	a, b := CanonicalPair(x, y)
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("user_a_id = ? AND user_b_id = ? AND status = ?", a, b, domain.FriendshipAccepted).
		Count(&n).Error
	return n > 0, err
}

// FriendIDs returns the ids of every accepted friend of userID.
func FriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var rows []domain.Friendship
	err := db.WithContext(ctx).
		Select("user_a_id", "user_b_id").
		Where("(user_a_id = ? OR user_b_id = ?) AND status = ?", userID, userID, domain.FriendshipAccepted).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Other(userID))
	}
	return out, nil
}

// FriendshipScan selects one side of a user's friendship rows.
type FriendshipScan struct {
	UserID string
	Status string
	// ReceivedOnly drops rows the user sent; used for incoming requests.
	ReceivedOnly bool
}

// ListFriendshipsAsA scans rows where the user is the canonical "A" side.
func ListFriendshipsAsA(ctx context.Context, db *gorm.DB, s FriendshipScan, cursor *pagination.Key, limit int) ([]domain.Friendship, error) {
	return scanSide(ctx, db, "user_a_id", s, cursor, limit)
}

// ListFriendshipsAsB scans rows where the user is the canonical "B" side.
func ListFriendshipsAsB(ctx context.Context, db *gorm.DB, s FriendshipScan, cursor *pagination.Key, limit int) ([]domain.Friendship, error) {
	return scanSide(ctx, db, "user_b_id", s, cursor, limit)
}

func scanSide(ctx context.Context, db *gorm.DB, col string, s FriendshipScan, cursor *pagination.Key, limit int) ([]domain.Friendship, error) {
	q := db.WithContext(ctx).Where(col+" = ? AND status = ?", s.UserID, s.Status)
	if s.ReceivedOnly {
		q = q.Where("sender_id <> ?", s.UserID)
	}
	var out []domain.Friendship
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// CreateLetter inserts a letter between two users.
func CreateLetter(ctx context.Context, db *gorm.DB, l *domain.Letter) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = Now()
	}
	return db.WithContext(ctx).Create(l).Error
}

// DeleteLettersBetween removes letters exchanged by x and y in either
// direction and returns how many were deleted.
func DeleteLettersBetween(ctx context.Context, db *gorm.DB, x, y string) (int64, error) {
	res := db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", x, y, y, x).
		Delete(&domain.Letter{})
	return res.RowsAffected, res.Error
}
