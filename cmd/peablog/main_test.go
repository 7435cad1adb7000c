// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"peablog/internal/fakeapi"
	"peablog/internal/models"
)

// testEnv points the client at a fresh fake service and a private state dir.
func testEnv(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()

	api := fakeapi.New()
	api.AddUser("admin", "secret", models.RoleAdmin)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	for _, key := range []string{
		"PEABLOG_CONFIG", "PEABLOG_ENV", "PEABLOG_STORAGE", "PEABLOG_STORAGE_KEY",
		"PEABLOG_PROFILE", "PEABLOG_TIMEZONE", "PEABLOG_RATE_LIMIT", "PEABLOG_METRICS_ADDR",
		"PEABLOG_TIMEOUT", "PEABLOG_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("PEABLOG_API_URL", srv.URL+fakeapi.Prefix)
	t.Setenv("PEABLOG_STATE_DIR", dir)
	t.Setenv("PEABLOG_LOG_LEVEL", "error")
	return api, dir
}

// exec runs one command line and returns its standard output.
func exec(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, err := exec(t, "", args...)
	if err != nil {
		t.Fatalf("peablog %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestSessionCommands(t *testing.T) {
	testEnv(t)

	if out := mustExec(t, "whoami"); strings.TrimSpace(out) != "anonymous" {
		t.Errorf("whoami before login = %q", out)
	}

	out, err := exec(t, "secret\n", "login", "admin")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "logged in as admin (admin)") {
		t.Errorf("login output = %q", out)
	}

	// A new invocation restores the saved token.
	if out := mustExec(t, "whoami"); !strings.Contains(out, `"username": "admin"`) {
		t.Errorf("whoami after login = %q", out)
	}
	mustExec(t, "refresh")
	if out := mustExec(t, "whoami"); !strings.Contains(out, `"username": "admin"`) {
		t.Errorf("whoami after refresh = %q", out)
	}

	mustExec(t, "logout")
	if out := mustExec(t, "whoami"); strings.TrimSpace(out) != "anonymous" {
		t.Errorf("whoami after logout = %q", out)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	testEnv(t)
	if _, err := exec(t, "", "login", "admin", "-p", "nope"); err == nil {
		t.Fatal("expected login to fail")
	}
	if out := mustExec(t, "whoami"); strings.TrimSpace(out) != "anonymous" {
		t.Errorf("whoami = %q", out)
	}
}

func TestArticleCommands(t *testing.T) {
	api, dir := testEnv(t)
	mustExec(t, "login", "admin", "-p", "secret")

	src := filepath.Join(dir, "post.md")
	body := "# Hello CLI\n\nA short opening paragraph.\n\nMore text."
	if err := os.WriteFile(src, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out := mustExec(t, "articles", "create", "--file", src, "--status", "published", "--tags", "go,cli")
	if !strings.Contains(out, `created article 1 "Hello CLI"`) {
		t.Fatalf("create output = %q", out)
	}
	stored, _ := api.Article(1)
	if stored.Summary != "A short opening paragraph. More text." {
		t.Errorf("summary = %q", stored.Summary)
	}

	if out := mustExec(t, "articles", "list"); !strings.Contains(out, "Hello CLI") || !strings.Contains(out, "page 1, 1 of 1") {
		t.Errorf("list output = %q", out)
	}
	if out := mustExec(t, "articles", "search", "opening"); !strings.Contains(out, "Hello CLI") {
		t.Errorf("search output = %q", out)
	}
	if out := mustExec(t, "articles", "show", "1", "--html"); !strings.Contains(out, `<h1 id="hello-cli">Hello CLI</h1>`) {
		t.Errorf("show --html output = %q", out)
	}
	if out := mustExec(t, "articles", "show", "--title", "Hello CLI"); !strings.Contains(out, `"id": 1`) {
		t.Errorf("show --title output = %q", out)
	}

	mustExec(t, "articles", "like", "1")
	if got, _ := api.Article(1); got.LikeCount != 1 {
		t.Errorf("likes = %d", got.LikeCount)
	}

	mustExec(t, "articles", "update", "1", "--title", "Renamed")
	mustExec(t, "articles", "unpublish", "1")
	got, _ := api.Article(1)
	if got.Title != "Renamed" || got.Status != models.ArticleStatusDraft || got.Content != body {
		t.Errorf("after update: %+v", got)
	}
	if out := mustExec(t, "articles", "published"); strings.Contains(out, "Renamed") {
		t.Errorf("draft listed as published: %q", out)
	}

	export := filepath.Join(dir, "export.json")
	mustExec(t, "articles", "export", "-o", export)
	mustExec(t, "articles", "delete", "1")
	if _, ok := api.Article(1); ok {
		t.Fatal("article not deleted")
	}
	mustExec(t, "articles", "import", export)
	if _, ok := api.Article(2); !ok {
		t.Error("import did not recreate the article")
	}

	if _, err := exec(t, "", "articles", "delete", "abc"); err == nil || !strings.Contains(err.Error(), "invalid id") {
		t.Errorf("expected invalid id error, got %v", err)
	}
}

func TestImageUpload(t *testing.T) {
	_, dir := testEnv(t)
	mustExec(t, "login", "admin", "-p", "secret")

	img := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(img, []byte("\x89PNG fake"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := mustExec(t, "images", "upload", img)
	if !strings.HasPrefix(out, "/uploads/") || !strings.Contains(out, "cover.png") {
		t.Errorf("upload output = %q", out)
	}
}

func TestCommentCommandsAnonymous(t *testing.T) {
	api, _ := testEnv(t)
	api.AddArticle(models.Article{Title: "thread"})

	out := mustExec(t, "comments", "post", "1", "first", "comment")
	if !strings.Contains(out, "posted comment 1") {
		t.Fatalf("post output = %q", out)
	}
	if out := mustExec(t, "comments", "post", "1", "a reply", "--parent", "1"); !strings.Contains(out, "posted reply 2 to comment 1") {
		t.Errorf("reply output = %q", out)
	}

	out = mustExec(t, "comments", "list", "1")
	if !strings.Contains(out, "first comment") || !strings.Contains(out, "guest") {
		t.Errorf("list output = %q", out)
	}
	if out := mustExec(t, "comments", "replies", "1"); !strings.Contains(out, "a reply") {
		t.Errorf("replies output = %q", out)
	}

	// The saved fingerprint identifies the anonymous author across runs.
	mustExec(t, "comments", "delete", "1")
	if got, _ := api.Article(1); got.CommentCount != 0 {
		t.Errorf("comment count after delete = %d", got.CommentCount)
	}
}

func TestSealedStorageHidesToken(t *testing.T) {
	_, dir := testEnv(t)
	t.Setenv("PEABLOG_STORAGE_KEY", "correct horse battery staple")

	mustExec(t, "login", "admin", "-p", "secret")
	raw, err := os.ReadFile(filepath.Join(dir, "default.json"))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if _, err := uuid.Parse(values["token"]); err == nil {
		t.Errorf("state file holds a plaintext token: %s", raw)
	}
	if out := mustExec(t, "whoami"); !strings.Contains(out, "admin") {
		t.Errorf("whoami = %q", out)
	}
}

func TestMockServerStopsOnCancel(t *testing.T) {
	testEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		var out, errOut bytes.Buffer
		done <- run(ctx, []string{"mock-server", "--addr", "127.0.0.1:0"}, strings.NewReader(""), &out, &errOut)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("mock-server: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("mock-server did not stop")
	}
}

func TestAdminCommandsAreGuarded(t *testing.T) {
	api, dir := testEnv(t)
	api.AddUser("reader", "secret", models.RoleUser)
	img := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(img, []byte("\x89PNG fake"), 0o600); err != nil {
		t.Fatal(err)
	}

	adminCommands := [][]string{
		{"articles", "create", "--title", "t"},
		{"articles", "update", "1", "--title", "t"},
		{"articles", "publish", "1"},
		{"articles", "unpublish", "1"},
		{"articles", "delete", "1"},
		{"articles", "export"},
		{"articles", "import", img},
		{"images", "upload", img},
	}

	for _, args := range adminCommands {
		_, err := exec(t, "", args...)
		if err == nil || !strings.Contains(err.Error(), "not logged in") {
			t.Errorf("anonymous %v: got %v", args, err)
		}
	}

	mustExec(t, "login", "reader", "-p", "secret")
	for _, args := range adminCommands {
		_, err := exec(t, "", args...)
		if err == nil || !strings.Contains(err.Error(), "requires an admin account") {
			t.Errorf("reader %v: got %v", args, err)
		}
	}
	for _, call := range api.Calls() {
		if !strings.Contains(call, "/auth/") {
			t.Errorf("guarded command reached the service: %s", call)
		}
	}

	// Commands without a route stay open to every session.
	if _, err := exec(t, "", "articles", "list"); err != nil {
		t.Errorf("reader list: %v", err)
	}
}

func TestLoginWhileLoggedInIsRefused(t *testing.T) {
	testEnv(t)
	mustExec(t, "login", "admin", "-p", "secret")

	_, err := exec(t, "", "login", "admin", "-p", "secret")
	if err == nil || !strings.Contains(err.Error(), "already logged in as admin") {
		t.Errorf("second login: got %v", err)
	}
	if _, err := exec(t, "", "refresh"); err != nil {
		t.Errorf("refresh while logged in: %v", err)
	}

	mustExec(t, "logout")
	if _, err := exec(t, "", "refresh"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("refresh after logout: got %v", err)
	}
}

func TestShowMissingArticle(t *testing.T) {
	testEnv(t)
	_, err := exec(t, "", "articles", "show", "42")
	if err == nil || !strings.Contains(err.Error(), `"42" not found`) {
		t.Errorf("got %v", err)
	}
}
