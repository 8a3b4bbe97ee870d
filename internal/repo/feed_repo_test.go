package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/worldfriends-backend/internal/domain"
)

func TestAdjustPostCounter_FlooredAtZero(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := &domain.Post{UserID: "u1", Content: "hello"}
	if err := CreatePost(ctx, db, p); err != nil {
		t.Fatal(err)
	}

	if err := AdjustPostCounter(ctx, db, p.ID, ColCommentsCount, 3); err != nil {
		t.Fatal(err)
	}
	if err := AdjustPostCounter(ctx, db, p.ID, ColCommentsCount, -5); err != nil {
		t.Fatal(err)
	}
	if err := AdjustPostCounter(ctx, db, p.ID, ColReactionsCount, 1); err != nil {
		t.Fatal(err)
	}
	got, _ := GetPost(ctx, db, p.ID)
	if got.CommentsCount != 0 || got.ReactionsCount != 1 {
		t.Fatalf("counters: comments=%d reactions=%d", got.CommentsCount, got.ReactionsCount)
	}
}

func TestListUserPosts_PinnedSeparate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	stepClock(t)

	var ids []string
	for i := 0; i < 4; i++ {
		p := &domain.Post{UserID: "u1", Content: "p"}
		if err := CreatePost(ctx, db, p); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}
	_ = SetPinned(ctx, db, ids[0], true)
	_ = SetPinned(ctx, db, ids[2], true)

	pinned, _ := ListPinnedPosts(ctx, db, "u1")
	unpinned, _ := ListUserPosts(ctx, db, "u1", nil, 10)

	idsOf := func(ps []domain.Post) []string {
		out := []string{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}
	if diff := cmp.Diff([]string{ids[2], ids[0]}, idsOf(pinned)); diff != "" {
		t.Fatalf("pinned (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{ids[3], ids[1]}, idsOf(unpinned)); diff != "" {
		t.Fatalf("unpinned (-want +got):\n%s", diff)
	}
}

func TestListFeedPosts_OnlyListedAuthors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, u := range []string{"me", "friend", "stranger"} {
		if err := CreatePost(ctx, db, &domain.Post{UserID: u, Content: u}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := ListFeedPosts(ctx, db, []string{"me", "friend"}, nil, 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("feed: %v %+v", err, rows)
	}
	for _, p := range rows {
		if p.UserID == "stranger" {
			t.Fatalf("stranger post leaked into feed")
		}
	}
	if rows, _ := ListFeedPosts(ctx, db, nil, nil, 10); len(rows) != 0 {
		t.Fatalf("empty author list must return nothing")
	}
}

func TestUpdatePostAttachments_AndPhotos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	plain := &domain.Post{UserID: "u1", Content: "text only"}
	withImg := &domain.Post{UserID: "u1", Content: "pic"}
	_ = CreatePost(ctx, db, plain)
	_ = CreatePost(ctx, db, withImg)

	atts := []domain.Attachment{{Type: domain.AttachmentImage, URL: "posts/x/1.jpg"}, {Type: domain.AttachmentGIF, URL: "https://gif/1"}}
	if err := UpdatePostAttachments(ctx, db, withImg, atts); err != nil {
		t.Fatal(err)
	}
	got, _ := GetPost(ctx, db, withImg.ID)
	if diff := cmp.Diff(atts, got.Attachments); diff != "" {
		t.Fatalf("attachments (-want +got):\n%s", diff)
	}

	rows, err := ListPostsWithAttachments(ctx, db, "u1", nil, 10)
	if err != nil || len(rows) != 1 || rows[0].ID != withImg.ID {
		t.Fatalf("photos: %v %+v", err, rows)
	}
}

func TestCollections_PostsCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := &domain.Collection{UserID: "u1", Title: "Trips"}
	if err := CreateCollection(ctx, db, c); err != nil {
		t.Fatal(err)
	}
	_ = AdjustCollectionPosts(ctx, db, c.ID, 1)
	_ = AdjustCollectionPosts(ctx, db, c.ID, -1)
	_ = AdjustCollectionPosts(ctx, db, c.ID, -1)
	got, _ := GetCollection(ctx, db, c.ID)
	if got.PostsCount != 0 {
		t.Fatalf("posts count: %d", got.PostsCount)
	}
	list, _ := ListCollections(ctx, db, "u1", nil, 10)
	if len(list) != 1 {
		t.Fatalf("collections: %+v", list)
	}
}

func TestChildCommentIDs_AndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	root := &domain.Comment{PostID: "p1", UserID: "u1", Content: "root"}
	_ = CreateComment(ctx, db, root)
	r1 := &domain.Comment{PostID: "p1", UserID: "u2", Content: "r1", ReplyParentID: &root.ID}
	r2 := &domain.Comment{PostID: "p1", UserID: "u2", Content: "r2", ReplyParentID: &root.ID}
	_ = CreateComment(ctx, db, r1)
	_ = CreateComment(ctx, db, r2)
	rr := &domain.Comment{PostID: "p1", UserID: "u3", Content: "rr", ReplyParentID: &r1.ID}
	_ = CreateComment(ctx, db, rr)

	kids, err := ChildCommentIDs(ctx, db, []string{root.ID})
	if err != nil || len(kids) != 2 {
		t.Fatalf("children: %v %v", err, kids)
	}
	grand, _ := ChildCommentIDs(ctx, db, kids)
	if len(grand) != 1 || grand[0] != rr.ID {
		t.Fatalf("grandchildren: %v", grand)
	}

	top, _ := ListTopLevelComments(ctx, db, "p1", nil, 10)
	if len(top) != 1 || top[0].ID != root.ID {
		t.Fatalf("top level: %+v", top)
	}
	replies, _ := ListReplies(ctx, db, root.ID, nil, 10)
	if len(replies) != 2 {
		t.Fatalf("replies: %+v", replies)
	}

	n, err := DeleteComments(ctx, db, append([]string{root.ID}, append(kids, grand...)...))
	if err != nil || n != 4 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	if _, err := GetComment(ctx, db, rr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReactions_UniquePerUserPost(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r, err := CreateReaction(ctx, db, "u1", "p1", "👍")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := CreateReaction(ctx, db, "u1", "p1", "❤️"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := UpdateReactionEmoji(ctx, db, r.ID, "❤️"); err != nil {
		t.Fatal(err)
	}
	_, _ = CreateReaction(ctx, db, "u2", "p1", "😂")

	mine, _ := GetUserReactions(ctx, db, "u1", []string{"p1", "p2"})
	if diff := cmp.Diff(map[string]string{"p1": "❤️"}, mine); diff != "" {
		t.Fatalf("user reactions (-want +got):\n%s", diff)
	}
	all, _ := ListPostReactions(ctx, db, "p1", nil, 10)
	if len(all) != 2 {
		t.Fatalf("post reactions: %+v", all)
	}
	n, _ := DeletePostReactions(ctx, db, "p1")
	if n != 2 {
		t.Fatalf("deleted %d", n)
	}
	if _, err := GetReaction(ctx, db, "u1", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotifications_ReadFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	stepClock(t)

	for _, typ := range []string{domain.NotifyFriendRequestSent, domain.NotifyPostReaction} {
		if _, err := CreateNotification(ctx, db, "me", "x", typ); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = CreateNotification(ctx, db, "other", "x", domain.NotifyPostReaction)

	list, _ := ListNotifications(ctx, db, "me", nil, 10)
	if len(list) != 2 || list[0].Type != domain.NotifyPostReaction {
		t.Fatalf("list: %+v", list)
	}
	n, _ := CountUnreadNotifications(ctx, db, "me")
	if n != 2 {
		t.Fatalf("unread %d", n)
	}
	changed, _ := MarkNotificationsRead(ctx, db, "me")
	if changed != 2 {
		t.Fatalf("changed %d", changed)
	}
	count, unread, latest, err := NotificationsStats(ctx, db, "me")
	if err != nil || count != 2 || unread != 0 || latest == nil || !latest.Equal(list[0].CreatedAt) {
		t.Fatalf("stats: %d %d %v %v", count, unread, latest, err)
	}
	if n, _ := CountUnreadNotifications(ctx, db, "other"); n != 1 {
		t.Fatalf("other user's notifications must be untouched")
	}
}

func TestIdempotency_ScopeAndExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "POST /posts", "k1", "p1", 201, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "POST /posts", "k1", "p2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key in another scope is independent.
	if _, err := CreateIdempotency(ctx, db, "u1", "POST /groups", "k1", "g1", 201, time.Hour); err != nil {
		t.Fatalf("other scope: %v", err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "POST /posts", "k1", Now())
	if err != nil || got.ResourceID != "p1" || got.Status != 201 {
		t.Fatalf("lookup: %v %+v", err, got)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "POST /posts", "k1", rec.ExpiresAt.Add(time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must not be returned, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", " ", "k1", Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope: %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, rec.ExpiresAt.Add(time.Second))
	if err != nil || n != 2 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
}
