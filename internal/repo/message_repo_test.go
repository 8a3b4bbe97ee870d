package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

func seedMessage(t *testing.T, db *gorm.DB, th domain.Thread, sender string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{SenderID: sender, Type: domain.MessageText, Content: "x", CreatedAt: at}
	m.SetThread(th)
	if err := CreateMessage(context.Background(), db, m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func TestCreateMessage_RequiresThread(t *testing.T) {
	db := newTestDB(t)
	err := CreateMessage(context.Background(), db, &domain.Message{SenderID: "u", Type: domain.MessageText})
	if !errors.Is(err, domain.ErrThreadTarget) {
		t.Fatalf("expected ErrThreadTarget, got %v", err)
	}
}

func TestListThreadMessages_StableUnderInsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	th := domain.DirectThread("a-b")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var all []*domain.Message
	for i := 0; i < 5; i++ {
		all = append(all, seedMessage(t, db, th, "a", base.Add(time.Duration(i)*time.Minute)))
	}
	// Other threads are never mixed in.
	seedMessage(t, db, domain.GroupThread("g"), "a", base.Add(time.Hour))

	page1, err := ListThreadMessages(ctx, db, th, nil, 2)
	if err != nil || len(page1) != 2 || page1[0].ID != all[4].ID || page1[1].ID != all[3].ID {
		t.Fatalf("page 1: %v %+v", err, page1)
	}

	// A newer message arrives between page fetches.
	seedMessage(t, db, th, "b", base.Add(2*time.Hour))

	last := page1[1]
	page2, err := ListThreadMessages(ctx, db, th, &pagination.Key{Time: last.CreatedAt, ID: last.ID}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 3 || page2[0].ID != all[2].ID || page2[2].ID != all[0].ID {
		t.Fatalf("page 2 shifted: %+v", page2)
	}
}

func TestLatestMessage_AndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	th := domain.DirectThread("a-b")

	if m, err := LatestMessage(ctx, db, th); m != nil || err != nil {
		t.Fatalf("empty thread: %v %v", m, err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := seedMessage(t, db, th, "a", base)
	m2 := seedMessage(t, db, th, "b", base.Add(time.Second))

	got, _ := LatestMessage(ctx, db, th)
	if got.ID != m2.ID {
		t.Fatalf("latest: %s", got.ID)
	}
	if err := DeleteMessage(ctx, db, m2.ID); err != nil {
		t.Fatal(err)
	}
	if err := DeleteMessage(ctx, db, m2.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ = LatestMessage(ctx, db, th)
	if got.ID != m1.ID {
		t.Fatalf("latest after delete: %s", got.ID)
	}

	n, err := DeleteThreadMessages(ctx, db, th)
	if err != nil || n != 1 {
		t.Fatalf("delete thread: n=%d err=%v", n, err)
	}
}

func TestCountMessagesSince_GroupUnread(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	th := domain.GroupThread("g1")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seedMessage(t, db, th, "a", base)
	seedMessage(t, db, th, "b", base.Add(time.Minute))
	seedMessage(t, db, th, "me", base.Add(2*time.Minute))
	seedMessage(t, db, th, "a", base.Add(3*time.Minute))

	all, _ := CountMessagesSince(ctx, db, th, nil, "me")
	if all != 3 {
		t.Fatalf("never-read member: want 3, got %d", all)
	}
	since := base.Add(time.Minute)
	n, _ := CountMessagesSince(ctx, db, th, &since, "me")
	if n != 1 {
		t.Fatalf("since %v: want 1, got %d", since, n)
	}
}

func TestUpdateCorrection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := seedMessage(t, db, domain.DirectThread("a-b"), "a", Now())
	if err := UpdateCorrection(ctx, db, m.ID, "I went"); err != nil {
		t.Fatal(err)
	}
	got, _ := GetMessage(ctx, db, m.ID)
	if got.Correction != "I went" {
		t.Fatalf("correction: %q", got.Correction)
	}
	byID, _ := GetMessages(ctx, db, []string{m.ID, "missing"})
	if len(byID) != 1 {
		t.Fatalf("GetMessages: %+v", byID)
	}
}
