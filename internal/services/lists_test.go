package services

import (
	"context"
	"testing"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// emptyPage reduces a page to what an anonymous listing may expose.
func emptyPage[T any](p pagination.Page[T], err error) (int, bool, string, error) {
	return len(p.Page), p.IsDone, p.ContinueCursor, err
}

func TestListQueries_NoCallerGetsEmptyPage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	msgs := &MessageService{Deps: e.deps}
	inter := &InteractionService{Deps: e.deps}
	posts := &PostService{Deps: e.deps}
	groups := &GroupService{Deps: e.deps}
	req := pagination.PageRequest{NumItems: 5}

	// Real content exists so an empty page cannot come from an empty table.
	e.user(t, "a")
	e.user(t, "b")
	e.befriend(t, "a", "b")
	p, err := posts.CreatePost(ctx, "a", CreatePostInput{Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	key, err := (&ConversationService{Deps: e.deps}).CreateConversation(ctx, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.SendMessage(ctx, "a", SendMessageInput{Thread: domain.DirectThread(key), Type: domain.MessageText, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	cases := map[string]func(caller string) (int, bool, string, error){
		"messages": func(c string) (int, bool, string, error) {
			return emptyPage(msgs.Messages(ctx, c, domain.DirectThread(key), req))
		},
		"comments": func(c string) (int, bool, string, error) {
			return emptyPage(inter.Comments(ctx, c, p.ID, "en", req))
		},
		"replies": func(c string) (int, bool, string, error) {
			return emptyPage(inter.Replies(ctx, c, "missing-comment", "en", req))
		},
		"reactions": func(c string) (int, bool, string, error) {
			return emptyPage(inter.Reactions(ctx, c, p.ID, "en", req))
		},
		"user posts": func(c string) (int, bool, string, error) {
			return emptyPage(posts.UserPosts(ctx, c, "a", "en", req))
		},
		"user photos": func(c string) (int, bool, string, error) {
			return emptyPage(posts.UserPhotos(ctx, c, "a", req))
		},
		"group members": func(c string) (int, bool, string, error) {
			return emptyPage(groups.GroupMembers(ctx, c, "missing-group", "en", req))
		},
	}
	for name, list := range cases {
		for _, caller := range []string{"", "   "} {
			n, done, cursor, err := list(caller)
			if err != nil || n != 0 || !done || cursor != "" {
				t.Errorf("%s(%q) = %d items, done=%v, cursor=%q, err=%v", name, caller, n, done, cursor, err)
			}
		}
	}

	// The same listing for a signed-in participant is not empty.
	if n, _, _, err := cases["messages"]("b"); err != nil || n != 1 {
		t.Fatalf("participant sees %d messages: %v", n, err)
	}
}
