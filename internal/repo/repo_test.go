package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/worldfriends-backend/internal/domain"
)

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return Now() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stepClock replaces Now with a clock that advances one second per call.
func stepClock(t *testing.T) {
	t.Helper()
	prev := Now
	cur := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	Now = func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
	t.Cleanup(func() { Now = prev })
}

func seedUser(t *testing.T, db *gorm.DB, id, gender, country string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:        id,
		UserName:  "user_" + id,
		Name:      "User " + id,
		Gender:    gender,
		BirthDate: "2000-01-01",
		Country:   country,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}
