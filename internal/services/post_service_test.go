package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

func TestNewPolicy(t *testing.T) {
	p := NewPolicy([]string{" admin ", "", "editor"})
	if !p.Trusted("admin") || !p.Trusted("editor") || p.Trusted("") || p.Trusted("other") {
		t.Fatalf("policy %+v", p.TrustedAuthors)
	}
}

func TestCreatePost_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps}
	e.user(t, "a")
	e.user(t, "b")

	img := domain.Attachment{Type: domain.AttachmentImage, URL: "img/1.png"}
	cases := []struct {
		name string
		in   CreatePostInput
		want error
	}{
		{"blank", CreatePostInput{Content: "  "}, ErrEmptyContent},
		{"too long", CreatePostInput{Content: strings.Repeat("é", MaxPostRunes+1)}, ErrPostTooLong},
		{"too many attachments", CreatePostInput{Content: "x", Attachments: []domain.Attachment{img, img, img, img}}, ErrTooManyAttachments},
		{"bad attachment", CreatePostInput{Content: "x", Attachments: []domain.Attachment{{Type: "video", URL: "v"}}}, ErrBadAttachment},
		{"unknown collection", CreatePostInput{Content: "x", CollectionID: "nope"}, ErrCollectionNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.CreatePost(ctx, "a", c.in); !errors.Is(err, c.want) {
				t.Fatalf("got %v want %v", err, c.want)
			}
		})
	}

	if _, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: strings.Repeat("é", MaxPostRunes)}); err != nil {
		t.Fatalf("max length post: %v", err)
	}

	col, err := svc.CreateCollection(ctx, "b", "  Trips   2024 ")
	if err != nil {
		t.Fatal(err)
	}
	if col.Title != "Trips 2024" {
		t.Fatalf("title %q", col.Title)
	}
	if _, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: "x", CollectionID: col.ID}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign collection: %v", err)
	}
	if _, err := svc.CreateCollection(ctx, "b", "   "); !errors.Is(err, ErrCollectionTitleEmpty) {
		t.Fatalf("blank collection title: %v", err)
	}
}

func TestCollectionCounter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps}
	e.user(t, "a")

	col, _ := svc.CreateCollection(ctx, "a", "Food")
	p1, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: "pasta", CollectionID: col.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: "pizza", CollectionID: col.ID}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeletePost(ctx, "a", p1.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetCollection(ctx, e.db, col.ID)
	if got.PostsCount != 1 {
		t.Fatalf("postsCount=%d", got.PostsCount)
	}

	list, err := svc.ListCollections(ctx, "a", "", pagination.PageRequest{})
	if err != nil || len(list.Page) != 1 {
		t.Fatalf("collections %+v %v", list, err)
	}
}

func TestVisibility(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps, Policy: NewPolicy([]string{"official"})}
	for _, id := range []string{"a", "friend", "stranger", "official"} {
		e.user(t, id)
	}
	e.befriend(t, "a", "friend")
	p, _ := svc.CreatePost(ctx, "a", CreatePostInput{Content: "mine"})
	op, _ := svc.CreatePost(ctx, "official", CreatePostInput{Content: "news"})

	if _, err := svc.PostDetails(ctx, "friend", p.ID, "en"); err != nil {
		t.Fatalf("friend view: %v", err)
	}
	if _, err := svc.PostDetails(ctx, "stranger", p.ID, "en"); !errors.Is(err, ErrPostsNotVisible) {
		t.Fatalf("stranger view: %v", err)
	}
	if _, err := svc.UserPosts(ctx, "stranger", "a", "en", pagination.PageRequest{}); !errors.Is(err, ErrPostsNotVisible) {
		t.Fatalf("stranger list: %v", err)
	}
	if _, err := svc.PostDetails(ctx, "stranger", op.ID, "en"); err != nil {
		t.Fatalf("trusted author: %v", err)
	}
	if _, err := svc.PostDetails(ctx, "a", "missing", "en"); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

func TestUserPosts_PinnedFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps}
	e.user(t, "a")

	var ids []string
	for i := 0; i < 5; i++ {
		p, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: "post"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}
	pinned, err := svc.TogglePin(ctx, "a", ids[1])
	if err != nil || !pinned {
		t.Fatalf("pin: %v %v", pinned, err)
	}
	if _, err := svc.TogglePin(ctx, "b", ids[1]); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign pin: %v", err)
	}

	var got []string
	req := pagination.PageRequest{NumItems: 2}
	for {
		page, err := svc.UserPosts(ctx, "a", "a", "en", req)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range page.Page {
			got = append(got, p.ID)
		}
		if page.IsDone {
			break
		}
		req.Cursor = page.ContinueCursor
	}
	want := []string{ids[1], ids[4], ids[3], ids[2], ids[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("posts (-want +got):\n%s", diff)
	}

	if pinned, _ := svc.TogglePin(ctx, "a", ids[1]); pinned {
		t.Fatalf("second toggle must unpin")
	}
}

func TestFeedAndPhotos(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps}
	for _, id := range []string{"a", "b", "c"} {
		e.user(t, id)
	}
	e.befriend(t, "a", "b")
	_, _ = svc.CreatePost(ctx, "c", CreatePostInput{Content: "hidden"})
	pb, _ := svc.CreatePost(ctx, "b", CreatePostInput{
		Content:     "pics",
		Attachments: []domain.Attachment{{Type: domain.AttachmentImage, URL: "img/b1.png"}, {Type: domain.AttachmentGIF, URL: "https://gif.test/g"}},
	})
	pa, _ := svc.CreatePost(ctx, "a", CreatePostInput{Content: "mine"})

	feed, err := svc.FeedPosts(ctx, "a", "en", pagination.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(feed.Page) != 2 || feed.Page[0].ID != pa.ID || feed.Page[1].ID != pb.ID || !feed.Page[0].IsOwner {
		t.Fatalf("feed %+v", feed.Page)
	}
	atts := feed.Page[1].Attachments
	if atts[0].URL != "https://cdn.test/img/b1.png" || atts[1].URL != "https://gif.test/g" {
		t.Fatalf("attachment urls %+v", atts)
	}

	photos, err := svc.UserPhotos(ctx, "a", "b", pagination.PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://cdn.test/img/b1.png"}, photos.Page); diff != "" {
		t.Fatalf("photos (-want +got):\n%s", diff)
	}

	if err := svc.UpdatePostAttachments(ctx, "b", pb.ID, nil); err != nil {
		t.Fatal(err)
	}
	photos, _ = svc.UserPhotos(ctx, "a", "b", pagination.PageRequest{})
	if len(photos.Page) != 0 {
		t.Fatalf("photos after clearing attachments: %v", photos.Page)
	}
}

func TestDeletePost_Cascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	posts := &PostService{Deps: e.deps}
	inter := &InteractionService{Deps: e.deps}
	e.user(t, "a")
	e.user(t, "b")
	e.befriend(t, "a", "b")

	p, _ := posts.CreatePost(ctx, "a", CreatePostInput{
		Content:     "bye",
		Attachments: []domain.Attachment{{Type: domain.AttachmentImage, URL: "img/x.png"}},
	})
	if _, err := inter.React(ctx, "b", p.ID, "👍"); err != nil {
		t.Fatal(err)
	}
	if _, err := inter.Comment(ctx, "b", CommentInput{PostID: p.ID, Content: "nice"}); err != nil {
		t.Fatal(err)
	}

	if err := posts.DeletePost(ctx, "b", p.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := posts.DeletePost(ctx, "a", p.ID); err != nil {
		t.Fatal(err)
	}
	var comments, reactions int64
	e.db.Model(&domain.Comment{}).Where("post_id = ?", p.ID).Count(&comments)
	e.db.Model(&domain.Reaction{}).Where("post_id = ?", p.ID).Count(&reactions)
	if comments != 0 || reactions != 0 {
		t.Fatalf("left comments=%d reactions=%d", comments, reactions)
	}
	if diff := cmp.Diff([]string{"img/x.png"}, e.blobs.Deleted()); diff != "" {
		t.Fatalf("deleted blobs (-want +got):\n%s", diff)
	}
}

func TestPostDetails_AuthorGone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := &PostService{Deps: e.deps}
	e.user(t, "a")
	e.user(t, "b")
	e.befriend(t, "a", "b")

	p, err := svc.CreatePost(ctx, "a", CreatePostInput{Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if v, err := svc.PostDetails(ctx, "b", p.ID, "en"); err != nil || v.Author.ID != "a" {
		t.Fatalf("before: %+v %v", v, err)
	}

	if err := e.db.Delete(&domain.User{}, "id = ?", "a").Error; err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PostDetails(ctx, "b", p.ID, "en"); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("after author removal: %v", err)
	}
}
