package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

func newFriendships(e *testEnv) *FriendshipService {
	return &FriendshipService{Deps: e.deps, Privacy: e.gate}
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		birth string
		want  int
	}{
		{"2006-05-01", 18},
		{"2006-05-02", 17},
		{"1990-12-31", 33},
		{"garbage", 0},
	}
	for _, c := range cases {
		if got := Age(c.birth, now); got != c.want {
			t.Fatalf("Age(%q)=%d want %d", c.birth, got, c.want)
		}
	}
	if AgeGroupFor("2010-01-01", now) != domain.AgeGroupMinor {
		t.Fatalf("expected minor age group")
	}
}

func TestPrivacyGate_Compatible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "adult1")
	e.user(t, "adult2")
	e.user(t, "minor", userOpt{birthDate: "2010-01-01"})
	e.user(t, "picky", userOpt{gender: domain.GenderFemale, genderPref: true})
	e.user(t, "woman", userOpt{gender: domain.GenderFemale})
	e.user(t, "noinfo", userOpt{noInfo: true})

	cases := []struct {
		a, b string
		want bool
	}{
		{"adult1", "adult2", true},
		{"adult1", "minor", false},
		{"adult1", "picky", false},
		{"picky", "woman", true},
		{"woman", "adult1", true},
		{"adult1", "noinfo", false},
		{"adult1", "ghost", false},
	}
	for _, c := range cases {
		got, err := e.gate.Compatible(ctx, e.db, c.a, c.b)
		if err != nil {
			t.Fatalf("%s/%s: %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("Compatible(%s,%s)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestPrivacyGate_BlockUnblock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "a")
	e.user(t, "b")

	if err := e.gate.BlockUser(ctx, "a", "a"); !errors.Is(err, ErrSelfTarget) {
		t.Fatalf("self block: %v", err)
	}
	if err := e.gate.BlockUser(ctx, "a", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown target: %v", err)
	}
	if err := e.gate.BlockUser(ctx, "a", "b"); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := e.gate.BlockUser(ctx, "a", "b"); !errors.Is(err, ErrAlreadyBlocked) {
		t.Fatalf("duplicate block: %v", err)
	}
	blocked, _ := e.gate.Blocked(ctx, e.db, "b", "a")
	if !blocked {
		t.Fatalf("block must apply in both directions")
	}
	if diff := cmp.Diff([]string{domain.NotifyUserBlocked}, e.notifications(t, "b")); diff != "" {
		t.Fatalf("notifications (-want +got):\n%s", diff)
	}

	if err := e.gate.UnblockUser(ctx, "b", "a"); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("only the blocker can unblock: %v", err)
	}
	if err := e.gate.UnblockUser(ctx, "a", "b"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if blocked, _ := e.gate.Blocked(ctx, e.db, "a", "b"); blocked {
		t.Fatalf("still blocked after unblock")
	}
}

func TestSendRequest_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	e.user(t, "a")
	e.user(t, "b")
	e.user(t, "minor", userOpt{birthDate: "2010-01-01"})
	e.user(t, "c")

	if _, err := svc.SendRequest(ctx, "", "b"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("no caller: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "a", "a"); !errors.Is(err, ErrSelfTarget) {
		t.Fatalf("self: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "a", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ghost: %v", err)
	}
	if _, err := svc.SendRequest(ctx, "a", "minor"); !errors.Is(err, ErrPrivacyRestricted) {
		t.Fatalf("privacy: %v", err)
	}

	f, err := svc.SendRequest(ctx, "a", "b")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.Status != domain.FriendshipPending || f.SenderID != "a" {
		t.Fatalf("unexpected friendship %+v", f)
	}
	if _, err := svc.SendRequest(ctx, "b", "a"); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("reverse duplicate: %v", err)
	}
	if got := e.notifications(t, "b"); len(got) != 1 || got[0] != domain.NotifyFriendRequestSent {
		t.Fatalf("receiver notifications: %v", got)
	}
	if e.events.count(realtime.EventFriendship) != 1 {
		t.Fatalf("expected one friendship event")
	}

	if err := e.gate.BlockUser(ctx, "c", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendRequest(ctx, "a", "c"); !errors.Is(err, ErrUserBlocked) {
		t.Fatalf("blocked: %v", err)
	}
}

func TestAcceptReject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	e.user(t, "a")
	e.user(t, "b")
	e.user(t, "x")

	f, err := svc.SendRequest(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AcceptRequest(ctx, "a", f.ID); !errors.Is(err, ErrOwnRequest) {
		t.Fatalf("sender accept: %v", err)
	}
	if err := svc.AcceptRequest(ctx, "x", f.ID); !errors.Is(err, ErrNotParty) {
		t.Fatalf("outsider accept: %v", err)
	}
	if err := svc.AcceptRequest(ctx, "b", "missing"); !errors.Is(err, ErrFriendshipNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if err := svc.AcceptRequest(ctx, "b", f.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.AcceptRequest(ctx, "b", f.ID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("double accept: %v", err)
	}
	if ok, _ := repo.AreFriends(ctx, e.db, "a", "b"); !ok {
		t.Fatalf("not friends after accept")
	}
	if _, err := svc.SendRequest(ctx, "a", "b"); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("already friends: %v", err)
	}
	if got := e.notifications(t, "a"); len(got) != 1 || got[0] != domain.NotifyFriendRequestAccepted {
		t.Fatalf("sender notifications: %v", got)
	}

	g, err := svc.SendRequest(ctx, "x", "a")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RejectRequest(ctx, "a", g.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := repo.GetFriendship(ctx, e.db, g.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected request must be deleted, got %v", err)
	}
	if got := e.notifications(t, "x"); len(got) != 1 || got[0] != domain.NotifyFriendRequestRejected {
		t.Fatalf("rejected sender notifications: %v", got)
	}
}

func TestAcceptRequest_RechecksPrivacyAndBlocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	e.user(t, "a")
	e.user(t, "b", userOpt{gender: domain.GenderFemale})
	e.user(t, "c")
	e.user(t, "d")

	pending := func(id string) {
		t.Helper()
		f, err := repo.GetFriendship(ctx, e.db, id)
		if err != nil {
			t.Fatalf("request %s gone: %v", id, err)
		}
		if f.Status != domain.FriendshipPending {
			t.Fatalf("request %s status %v", id, f.Status)
		}
	}

	// b turns on the gender preference after a's request arrived.
	ab, err := svc.SendRequest(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.db.Model(&domain.UserInformation{}).Where("user_id = ?", "b").
		Update("gender_preference", true).Error; err != nil {
		t.Fatal(err)
	}
	if err := svc.AcceptRequest(ctx, "b", ab.ID); !errors.Is(err, ErrPrivacyRestricted) {
		t.Fatalf("accept after preference change: %v", err)
	}
	pending(ab.ID)

	// d blocks c while c's request is waiting.
	cd, err := svc.SendRequest(ctx, "c", "d")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.gate.BlockUser(ctx, "d", "c"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AcceptRequest(ctx, "d", cd.ID); !errors.Is(err, ErrUserBlocked) {
		t.Fatalf("accept after block: %v", err)
	}
	pending(cd.ID)

	for _, pair := range [][2]string{{"a", "b"}, {"c", "d"}} {
		if ok, _ := repo.AreFriends(ctx, e.db, pair[0], pair[1]); ok {
			t.Fatalf("%s and %s became friends", pair[0], pair[1])
		}
	}
	if got := e.notifications(t, "a"); len(got) != 0 {
		t.Fatalf("refused accept notified the sender: %v", got)
	}
}

func TestRemoveFriend_Cascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	conv := &ConversationService{Deps: e.deps}
	msgs := &MessageService{Deps: e.deps}
	e.user(t, "a")
	e.user(t, "b")
	e.befriend(t, "a", "b")

	key, err := conv.CreateConversation(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.SendMessage(ctx, "a", SendMessageInput{Thread: domain.DirectThread(key), Type: domain.MessageText, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateLetter(ctx, e.db, &domain.Letter{SenderID: "b", RecipientID: "a", Content: "dear a"}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveFriend(ctx, "a", "b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := repo.AreFriends(ctx, e.db, "a", "b"); ok {
		t.Fatalf("still friends")
	}
	rows, _ := repo.ListConversationRows(ctx, e.db, key)
	if len(rows) != 0 {
		t.Fatalf("conversation rows left: %d", len(rows))
	}
	left, _ := repo.ListThreadMessages(ctx, e.db, domain.DirectThread(key), nil, 10)
	if len(left) != 0 {
		t.Fatalf("messages left: %d", len(left))
	}
	var letters int64
	e.db.Model(&domain.Letter{}).Count(&letters)
	if letters != 0 {
		t.Fatalf("letters left: %d", letters)
	}
	if got := e.notifications(t, "b"); len(got) != 1 || got[0] != domain.NotifyFriendRemoved {
		t.Fatalf("notifications: %v", got)
	}
	if err := svc.RemoveFriend(ctx, "a", "b"); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("second remove: %v", err)
	}

	// Neither side can keep talking on the old thread or open a new one.
	for _, sender := range []string{"a", "b"} {
		_, err := msgs.SendMessage(ctx, sender, SendMessageInput{Thread: domain.DirectThread(key), Type: domain.MessageText, Content: "still there?"})
		if !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("%s sends after removal: %v", sender, err)
		}
	}
	if _, err := conv.CreateConversation(ctx, "a", "b"); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("reopen conversation: %v", err)
	}
	left, _ = repo.ListThreadMessages(ctx, e.db, domain.DirectThread(key), nil, 10)
	if len(left) != 0 {
		t.Fatalf("message stored after removal: %d", len(left))
	}
}

func TestListFriends_MergesBothSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	// "m" sorts between the others so it is user A in some rows and user B
	// in others.
	for _, id := range []string{"a", "m", "z", "b", "y"} {
		e.user(t, id)
	}
	e.befriend(t, "m", "z")
	e.befriend(t, "a", "m")
	e.befriend(t, "m", "y")
	e.befriend(t, "b", "m")

	var got []string
	req := pagination.PageRequest{NumItems: 3}
	for {
		page, err := svc.ListFriends(ctx, "m", "en", req)
		if err != nil {
			t.Fatal(err)
		}
		for _, f := range page.Page {
			got = append(got, f.User.ID)
		}
		if page.IsDone {
			break
		}
		req.Cursor = page.ContinueCursor
	}
	if diff := cmp.Diff([]string{"b", "y", "a", "z"}, got); diff != "" {
		t.Fatalf("friends newest first (-want +got):\n%s", diff)
	}

	empty, err := svc.ListFriends(ctx, "", "en", pagination.PageRequest{})
	if err != nil || !empty.IsDone || len(empty.Page) != 0 {
		t.Fatalf("no caller must give an empty page: %+v %v", empty, err)
	}
}

func TestListRequests_ReceivedOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := newFriendships(e)
	for _, id := range []string{"a", "b", "c"} {
		e.user(t, id)
	}
	if _, err := svc.SendRequest(ctx, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SendRequest(ctx, "b", "c"); err != nil {
		t.Fatal(err)
	}

	all, err := svc.ListRequests(ctx, "b", "en", false, pagination.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Page) != 2 {
		t.Fatalf("want both directions, got %d", len(all.Page))
	}
	received, err := svc.ListRequests(ctx, "b", "en", true, pagination.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(received.Page) != 1 || received.Page[0].User.ID != "a" {
		t.Fatalf("received only: %+v", received.Page)
	}
}
