package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/storage"
)

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return repo.Now() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stepClock makes repo.Now advance one second per call so that rows
// created in sequence have distinct, ordered timestamps.
func stepClock(t *testing.T) {
	t.Helper()
	prev := repo.Now
	cur := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	repo.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
	t.Cleanup(func() { repo.Now = prev })
}

// recorder is a realtime.Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type testEnv struct {
	db     *gorm.DB
	blobs  *storage.Static
	events *recorder
	deps   Deps
	gate   *PrivacyGate
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	stepClock(t)
	e := &testEnv{
		db:     newTestDB(t),
		blobs:  storage.NewStatic("https://cdn.test"),
		events: &recorder{},
	}
	e.deps = Deps{DB: e.db, Blobs: e.blobs, Events: e.events, Notifier: &Notifier{}}
	e.gate = &PrivacyGate{Deps: e.deps}
	return e
}

type userOpt struct {
	gender     string
	birthDate  string
	genderPref bool
	noInfo     bool
}

// user seeds a user with its privacy row and profile. Defaults: male adult
// from Greece without gender preference.
func (e *testEnv) user(t *testing.T, id string, opts ...userOpt) *domain.User {
	t.Helper()
	o := userOpt{gender: domain.GenderMale, birthDate: "1995-03-10"}
	if len(opts) > 0 {
		o = opts[0]
		if o.gender == "" {
			o.gender = domain.GenderMale
		}
		if o.birthDate == "" {
			o.birthDate = "1995-03-10"
		}
	}
	ctx := context.Background()
	u := &domain.User{
		ID:        id,
		UserName:  "user_" + id,
		Name:      "User " + id,
		Gender:    o.gender,
		BirthDate: o.birthDate,
		Country:   "GR",
	}
	if err := repo.CreateUser(ctx, e.db, u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	if !o.noInfo {
		info := &domain.UserInformation{
			UserID:           id,
			GenderPreference: o.genderPref,
			AgeGroup:         AgeGroupFor(o.birthDate, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		}
		if err := repo.CreateUserInformation(ctx, e.db, info); err != nil {
			t.Fatalf("seed info %s: %v", id, err)
		}
	}
	if err := repo.CreateProfile(ctx, e.db, &domain.Profile{UserID: id, SpokenLanguages: []string{"el"}}); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
	return u
}

// befriend makes a and b accepted friends.
func (e *testEnv) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	f, err := repo.CreateFriendship(ctx, e.db, a, b)
	if err != nil {
		t.Fatalf("create friendship: %v", err)
	}
	if err := repo.AcceptFriendship(ctx, e.db, f.ID); err != nil {
		t.Fatalf("accept friendship: %v", err)
	}
}

// notifications returns the notification types recipient has, newest first.
func (e *testEnv) notifications(t *testing.T, recipient string) []string {
	t.Helper()
	rows, err := repo.ListNotifications(context.Background(), e.db, recipient, nil, 100)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	out := make([]string, 0, len(rows))
	for _, n := range rows {
		out = append(out, n.Type)
	}
	return out
}
