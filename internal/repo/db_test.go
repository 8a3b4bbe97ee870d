package repo

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/worldfriends-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "wf.db")

	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v", bad, db, err)
	}
}

func TestOpen_Drivers(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("oracle: %v", err)
	}

	// An empty driver name means SQLite.
	db, err := Open(" ", filepath.Join(t.TempDir(), "wf.db"))
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if db.Dialector.Name() != "sqlite" {
		t.Fatalf("dialector %q", db.Dialector.Name())
	}
}

func TestOpenSQLite_TuningAndSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "wf.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		var got string
		if err := db.Raw("PRAGMA " + pragma).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if strings.ToLower(got) != want {
			t.Errorf("PRAGMA %s = %q, want %q", pragma, got, want)
		}
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Running it again against an existing schema is a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, model := range []any{
		&domain.User{}, &domain.UserInformation{}, &domain.Profile{}, &domain.Block{},
		&domain.Friendship{}, &domain.Conversation{}, &domain.Group{}, &domain.GroupMember{},
		&domain.Message{}, &domain.Post{}, &domain.Collection{}, &domain.Comment{},
		&domain.Reaction{}, &domain.Letter{}, &domain.Notification{}, &domain.Idempotency{},
	} {
		if !m.HasTable(model) {
			t.Errorf("no table for %T", model)
		}
	}

	// A direct message written through the repository reads back on its thread.
	ctx := context.Background()
	key, err := CreateConversationPair(ctx, db, "u1", "u2")
	if err != nil {
		t.Fatalf("conversation pair: %v", err)
	}
	msg := &domain.Message{SenderID: "u1", Type: domain.MessageText, Content: "γεια"}
	msg.SetThread(domain.DirectThread(key))
	if err := CreateMessage(ctx, db, msg); err != nil {
		t.Fatalf("message: %v", err)
	}
	var got domain.Message
	if err := db.First(&got, "id = ?", msg.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Thread().ID() != "u1-u2" || got.Content != "γεια" || !got.CreatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("read back %+v", got)
	}
}

func TestNow_UTCMicrosecond(t *testing.T) {
	n := Now()
	if n.Location() != time.UTC || n.Nanosecond()%1000 != 0 {
		t.Fatalf("Now() = %v", n)
	}
}
