// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package comments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peablog/internal/apiclient"
	"peablog/internal/collection"
	"peablog/internal/fakeapi"
	"peablog/internal/fingerprint"
	"peablog/internal/models"
	"peablog/internal/session"
	"peablog/internal/storage"
)

type fixture struct {
	api     *fakeapi.Server
	session *session.Manager
	fp      *fingerprint.Provider
	svc     *Service
}

// newFixture wires an anonymous comment service to a fake content service
// holding one article.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	api := fakeapi.New()
	api.AddUser("admin", "secret", models.RoleAdmin)
	api.AddArticle(models.Article{Title: "thread"})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client := apiclient.New(apiclient.Options{BaseURL: srv.URL + fakeapi.Prefix})
	store := storage.NewMemoryStore()
	sess := session.New(client, store, nil)
	t.Cleanup(sess.Attach(client))
	fp := fingerprint.New(store)

	return &fixture{
		api:     api,
		session: sess,
		fp:      fp,
		svc:     New(client, fp, sess, Options{}),
	}
}

func (f *fixture) seedTopLevel(n int) {
	for i := 0; i < n; i++ {
		f.api.AddComment(models.Comment{Content: "c", ArticleID: 1}, "")
	}
}

func TestFetchPagination(t *testing.T) {
	f := newFixture(t)
	f.seedTopLevel(20)
	ctx := context.Background()

	if _, err := f.svc.Fetch(ctx, 1, 0, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	st := f.svc.State()
	if len(st.Items) != DefaultPageSize || st.Total != 20 || st.PageSize != DefaultPageSize {
		t.Fatalf("page 1: n=%d total=%d size=%d", len(st.Items), st.Total, st.PageSize)
	}
	if st.Items[0].ID != 20 {
		t.Errorf("newest first: got %d", st.Items[0].ID)
	}

	f.svc.Fetch(ctx, 1, 2, 0)
	if st := f.svc.State(); len(st.Items) != 20 || f.svc.HasMore() {
		t.Errorf("page 2: n=%d", len(st.Items))
	}
}

func TestFetchAnotherArticleDropsCache(t *testing.T) {
	f := newFixture(t)
	f.seedTopLevel(3)
	f.api.AddArticle(models.Article{Title: "quiet"})
	ctx := context.Background()

	f.svc.Fetch(ctx, 1, 1, 0)
	f.svc.Fetch(ctx, 1, 2, 2) // page 2 with size 2: appended
	if _, err := f.svc.Fetch(ctx, 2, 2, 0); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if st := f.svc.State(); len(st.Items) != 0 || f.svc.ArticleID() != 2 {
		t.Errorf("cache not dropped: n=%d article=%d", len(st.Items), f.svc.ArticleID())
	}
}

func TestCreateAnonymousCarriesFingerprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Fetch(ctx, 1, 1, 0)

	c, err := f.svc.Create(ctx, models.CreateCommentRequest{Content: "hello"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ArticleID != 1 {
		t.Errorf("article id: %d", c.ArticleID)
	}
	if st := f.svc.State(); st.Items[0].ID != c.ID {
		t.Errorf("items[0]=%d, created %d", st.Items[0].ID, c.ID)
	}
	if _, ok, _ := f.fp.Stored(ctx); !ok {
		t.Error("fingerprint should be generated for anonymous comments")
	}

	// The fingerprint lets the anonymous author delete the comment.
	if err := f.svc.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := len(f.svc.State().Items); n != 0 {
		t.Errorf("items after delete: %d", n)
	}
}

func TestDeleteWithoutOwnershipFails(t *testing.T) {
	f := newFixture(t)
	f.api.AddComment(models.Comment{Content: "someone else", ArticleID: 1}, "other-device")
	ctx := context.Background()
	f.svc.Fetch(ctx, 1, 1, 0)

	err := f.svc.Delete(ctx, 1)
	if apiclient.StatusCode(err) != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
	if len(f.svc.State().Items) != 1 {
		t.Error("comment removed locally despite failure")
	}
}

func TestRepliesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.session.Login(ctx, models.LoginRequest{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	parent := f.api.AddComment(models.Comment{Content: "parent", ArticleID: 1}, "")
	for i := 0; i < 3; i++ {
		pid := parent.ID
		f.api.AddComment(models.Comment{Content: "old reply", ArticleID: 1, ParentID: &pid}, "")
	}
	f.svc.Fetch(ctx, 1, 1, 0)

	if got := f.svc.State().Items[0].ReplyCount; got != 3 {
		t.Fatalf("reply count from list: %d", got)
	}

	if _, err := f.svc.FetchReplies(ctx, parent.ID, 1, 2); err != nil {
		t.Fatalf("FetchReplies: %v", err)
	}
	if got := f.svc.State().Items[0]; len(got.Replies) != 2 || got.ReplyCount != 3 {
		t.Fatalf("after page 1: replies=%d count=%d", len(got.Replies), got.ReplyCount)
	}
	f.svc.FetchReplies(ctx, parent.ID, 2, 2)
	if got := f.svc.State().Items[0]; len(got.Replies) != 3 {
		t.Fatalf("after page 2: replies=%d", len(got.Replies))
	}

	pid := parent.ID
	reply, err := f.svc.Create(ctx, models.CreateCommentRequest{Content: "new reply", ArticleID: 1, ParentID: &pid})
	if err != nil {
		t.Fatalf("Create reply: %v", err)
	}
	got := f.svc.State().Items[0]
	if got.Replies[0].ID != reply.ID || got.ReplyCount != 4 || got.LatestReply.ID != reply.ID {
		t.Errorf("after reply: first=%d count=%d", got.Replies[0].ID, got.ReplyCount)
	}
	if len(f.svc.State().Items) != 1 {
		t.Error("a reply must not be added to the top level")
	}

	if err := f.svc.Delete(ctx, reply.ID); err != nil {
		t.Fatalf("Delete reply: %v", err)
	}
	got = f.svc.State().Items[0]
	if len(got.Replies) != 3 || got.ReplyCount != 3 {
		t.Errorf("after reply delete: replies=%d count=%d", len(got.Replies), got.ReplyCount)
	}
	if got.LatestReply == nil || got.LatestReply.ID == reply.ID {
		t.Errorf("latest reply not recomputed: %+v", got.LatestReply)
	}
}

func TestFailedReplyFetchLeavesParent(t *testing.T) {
	f := newFixture(t)
	parent := f.api.AddComment(models.Comment{Content: "parent", ArticleID: 1}, "")
	ctx := context.Background()
	f.svc.Fetch(ctx, 1, 1, 0)

	f.api.FailNext(http.MethodGet, "/api/comments/1/replies", http.StatusBadGateway)
	_, err := f.svc.FetchReplies(ctx, parent.ID, 1, 0)

	var re *apiclient.RemoteError
	if !errors.As(err, &re) || re.Status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if got := f.svc.State().Items[0]; got.Replies != nil {
		t.Errorf("replies touched: %+v", got.Replies)
	}
}

func TestStaleFetchForPreviousArticleIsDropped(t *testing.T) {
	f := newFixture(t)
	f.seedTopLevel(3)
	f.api.AddArticle(models.Article{Title: "second"})
	f.api.AddComment(models.Comment{Content: "on second", ArticleID: 2}, "")
	ctx := context.Background()

	f.api.DelayNext(http.MethodGet, fakeapi.Prefix+"/articles/1/comments", 200*time.Millisecond)
	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Fetch(ctx, 1, 1, 0)
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)

	if _, err := f.svc.Fetch(ctx, 2, 1, 0); err != nil {
		t.Fatalf("Fetch article 2: %v", err)
	}
	if err := <-errc; !errors.Is(err, collection.ErrSuperseded) {
		t.Errorf("late fetch for article 1: got %v, want ErrSuperseded", err)
	}

	st := f.svc.State()
	if f.svc.ArticleID() != 2 || len(st.Items) != 1 || st.Items[0].ArticleID != 2 {
		t.Fatalf("article=%d items=%+v", f.svc.ArticleID(), st.Items)
	}
	if st.Items[0].Content != "on second" {
		t.Errorf("content = %q", st.Items[0].Content)
	}
}

func TestStateDoesNotExposeCachedReplies(t *testing.T) {
	f := newFixture(t)
	parent := f.api.AddComment(models.Comment{Content: "parent", ArticleID: 1}, "")
	pid := parent.ID
	f.api.AddComment(models.Comment{Content: "reply", ArticleID: 1, ParentID: &pid}, "")
	ctx := context.Background()
	f.svc.Fetch(ctx, 1, 1, 0)
	if _, err := f.svc.FetchReplies(ctx, parent.ID, 1, 0); err != nil {
		t.Fatalf("FetchReplies: %v", err)
	}

	st := f.svc.State()
	st.Items[0].Replies[0].Content = "edited locally"
	if st.Items[0].LatestReply != nil {
		st.Items[0].LatestReply.Content = "edited locally"
	}

	got := f.svc.State().Items[0]
	if got.Replies[0].Content != "reply" {
		t.Errorf("cached reply changed: %q", got.Replies[0].Content)
	}
	if got.LatestReply != nil && got.LatestReply.Content != "reply" {
		t.Errorf("cached latest reply changed: %q", got.LatestReply.Content)
	}
}
