package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a unique constraint rejected an insert.
var ErrDuplicate = errors.New("duplicate")

// IsDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value";
	// MySQL: "Duplicate entry".
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key") ||
		strings.Contains(low, "duplicate entry")
}

// createUnique inserts v and maps unique violations to ErrDuplicate.
func createUnique(db *gorm.DB, v any) error {
	if err := db.Create(v).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// after restricts q to rows strictly older than k in (timeCol desc, id desc)
// order and applies that ordering. A nil key starts at the newest row.
func after(q *gorm.DB, timeCol string, k *pagination.Key) *gorm.DB {
	if k != nil {
		q = q.Where("(("+timeCol+" < ?) OR ("+timeCol+" = ? AND id < ?))", k.Time, k.Time, k.ID)
	}
	return q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: timeCol}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}})
}

// adjust adds delta to an integer column of the row identified by id,
// flooring the result at zero, in a single statement.
func adjust(db *gorm.DB, model any, id, column string, delta int) error {
	col := clause.Column{Name: column}
	return db.Model(model).
		Where("id = ?", id).
		Update(column, gorm.Expr("CASE WHEN ? + ? < 0 THEN 0 ELSE ? + ? END", col, delta, col, delta)).
		Error
}
