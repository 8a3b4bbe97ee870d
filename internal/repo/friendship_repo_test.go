package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

func TestCanonicalPair(t *testing.T) {
	a, b := CanonicalPair("zed", "amy")
	if a != "amy" || b != "zed" {
		t.Fatalf("got (%s, %s)", a, b)
	}
	a, b = CanonicalPair("amy", "zed")
	if a != "amy" || b != "zed" {
		t.Fatalf("got (%s, %s)", a, b)
	}
}

func TestCreateFriendship_OneRowPerPair(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	f, err := CreateFriendship(ctx, db, "u2", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.UserAID != "u1" || f.UserBID != "u2" || f.SenderID != "u2" || f.Status != domain.FriendshipPending {
		t.Fatalf("unexpected row: %+v", f)
	}

	if _, err := CreateFriendship(ctx, db, "u1", "u2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reverse request, got %v", err)
	}

	got, err := GetFriendshipByPair(ctx, db, "u2", "u1")
	if err != nil || got.ID != f.ID {
		t.Fatalf("lookup by pair: %v %+v", err, got)
	}
}

func TestAcceptFriendship_OnlyPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	f, _ := CreateFriendship(ctx, db, "u1", "u2")
	if ok, _ := AreFriends(ctx, db, "u1", "u2"); ok {
		t.Fatalf("pending should not count as friends")
	}
	if err := AcceptFriendship(ctx, db, f.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := AcceptFriendship(ctx, db, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second accept should be ErrNotFound, got %v", err)
	}
	if ok, _ := AreFriends(ctx, db, "u2", "u1"); !ok {
		t.Fatalf("expected friends after accept")
	}
	if ok, _ := AreFriends(ctx, db, "u1", "u1"); ok {
		t.Fatalf("a user is never their own friend")
	}

	ids, err := FriendIDs(ctx, db, "u2")
	if err != nil {
		t.Fatalf("FriendIDs: %v", err)
	}
	if diff := cmp.Diff([]string{"u1"}, ids); diff != "" {
		t.Fatalf("friend ids (-want +got):\n%s", diff)
	}

	if err := DeleteFriendship(ctx, db, f.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteFriendship(ctx, db, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// The user "m" sits on side B for "a*" peers and on side A for "z*" peers,
// so only merging both scans yields every friendship in time order.
func TestFriendshipScans_MergeAcrossSides(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	stepClock(t)

	var want []string
	for _, peer := range []string{"a1", "z1", "a2", "z2", "a3"} {
		f, err := CreateFriendship(ctx, db, peer, "m")
		if err != nil {
			t.Fatalf("create %s: %v", peer, err)
		}
		if err := AcceptFriendship(ctx, db, f.ID); err != nil {
			t.Fatalf("accept %s: %v", peer, err)
		}
		want = append([]string{peer}, want...)
	}

	key := func(f domain.Friendship) pagination.Key { return pagination.Key{Time: f.CreatedAt, ID: f.ID} }
	newer := func(a, b domain.Friendship) bool { return pagination.Newer(key(a), key(b)) }
	scan := FriendshipScan{UserID: "m", Status: domain.FriendshipAccepted}

	var got []string
	var cursor *pagination.Key
	for i := 0; i < 10; i++ {
		const n = 2
		as, err := ListFriendshipsAsA(ctx, db, scan, cursor, n+1)
		if err != nil {
			t.Fatalf("scan A: %v", err)
		}
		bs, err := ListFriendshipsAsB(ctx, db, scan, cursor, n+1)
		if err != nil {
			t.Fatalf("scan B: %v", err)
		}
		page, more := pagination.Merge([][]domain.Friendship{as, bs}, newer, n)
		for _, f := range page {
			got = append(got, f.Other("m"))
		}
		if !more {
			break
		}
		k := key(page[len(page)-1])
		cursor = &k
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged order (-want +got):\n%s", diff)
	}
}

func TestFriendshipScan_ReceivedOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateFriendship(ctx, db, "m", "z1"); err != nil { // sent by m
		t.Fatal(err)
	}
	if _, err := CreateFriendship(ctx, db, "z2", "m"); err != nil { // received by m
		t.Fatal(err)
	}
	scan := FriendshipScan{UserID: "m", Status: domain.FriendshipPending, ReceivedOnly: true}
	rows, err := ListFriendshipsAsA(ctx, db, scan, nil, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 || rows[0].SenderID != "z2" {
		t.Fatalf("expected only the received request, got %+v", rows)
	}
}

func TestDeleteLettersBetween_BothDirections(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, l := range []domain.Letter{
		{SenderID: "a", RecipientID: "b", Content: "hello"},
		{SenderID: "b", RecipientID: "a", Content: "hi"},
		{SenderID: "a", RecipientID: "c", Content: "other"},
	} {
		l := l
		if err := CreateLetter(ctx, db, &l); err != nil {
			t.Fatalf("create letter: %v", err)
		}
	}
	n, err := DeleteLettersBetween(ctx, db, "b", "a")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d err=%v", n, err)
	}
	var left int64
	db.Model(&domain.Letter{}).Count(&left)
	if left != 1 {
		t.Fatalf("expected 1 letter left, got %d", left)
	}
}
