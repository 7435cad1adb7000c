// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package fakeapi is an in-memory implementation of the pea-blog content
// service wire contract. It backs the client's integration tests and the
// `peablog mock-server` command used for local development.
//
// It implements the routes the client depends on, the {"data": ...}
// envelope and bearer-token auth, and it can inject failures and delays
// per request path.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"peablog/internal/middleware"
	"peablog/internal/models"
)

// Prefix is the path under which all routes are mounted.
const Prefix = "/api"

type account struct {
	user     models.User
	password string
}

type storedComment struct {
	comment     models.Comment
	fingerprint string
}

// Server holds the fake service state. All methods are safe for concurrent use.
type Server struct {
	mu sync.Mutex

	accounts map[string]*account // by username
	tokens   map[string]int64    // token -> user id
	articles map[int64]*models.Article
	comments map[int64]*storedComment

	nextUserID    int64
	nextArticleID int64
	nextCommentID int64

	failures map[string][]int // "METHOD /path" -> queued statuses
	delays   map[string][]time.Duration
	calls    []string

	now func() time.Time
}

// New creates an empty service.
func New() *Server {
	return &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]int64),
		articles: make(map[int64]*models.Article),
		comments: make(map[int64]*storedComment),
		failures: make(map[string][]int),
		delays:   make(map[string][]time.Duration),
		now:      time.Now,
	}
}

// Handler returns the chi router with every route mounted under Prefix.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(nil), s.record)

	r.Route(Prefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)
			r.Get("/me", s.me)
			r.Post("/refresh", s.refresh)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.listArticles)
			r.Post("/", s.requireAdmin(s.createArticle))
			r.Get("/published", s.listPublished)
			r.Get("/search", s.searchArticles)
			r.Get("/export", s.requireAdmin(s.exportArticles))
			r.Post("/import", s.requireAdmin(s.importArticles))
			r.Get("/title/{title}", s.articleByTitle)
			r.Get("/{id}", s.articleByID)
			r.Put("/{id}", s.requireAdmin(s.updateArticle))
			r.Delete("/{id}", s.requireAdmin(s.deleteArticle))
			r.Post("/{id}/like", s.likeArticle)
			r.Delete("/{id}/like", s.unlikeArticle)
			r.Post("/{id}/unpublish", s.requireAdmin(s.unpublishArticle))
			r.Get("/{id}/comments", s.listComments)
		})

		r.Get("/comments/{id}/replies", s.listReplies)
		r.Post("/comments", s.createComment)
		r.Delete("/comments/{id}", s.deleteComment)

		r.Post("/images/upload", s.requireAdmin(s.uploadImage))
	})
	return r
}

// AddUser creates an account and returns its public identity.
func (s *Server) AddUser(username, password string, role models.Role) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	now := s.now()
	u := models.User{
		ID:        s.nextUserID,
		Username:  username,
		Email:     username + "@example.com",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[username] = &account{user: u, password: password}
	return u
}

// IssueToken returns a valid token for an existing user, bypassing login.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[username]
	if !ok {
		return ""
	}
	token := uuid.NewString()
	s.tokens[token] = acc.user.ID
	return token
}

// ExpireTokens invalidates every issued token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// AddArticle stores a copy of a and returns it with an assigned id.
func (s *Server) AddArticle(a models.Article) models.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextArticleID++
	a.ID = s.nextArticleID
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now.Add(time.Duration(a.ID) * time.Second)
	}
	a.UpdatedAt = a.CreatedAt
	if a.Status == "" {
		a.Status = models.ArticleStatusPublished
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	stored := a
	s.articles[a.ID] = &stored
	return a
}

// Article returns the stored article with the given id.
func (s *Server) Article(id int64) (models.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return models.Article{}, false
	}
	return *a, true
}

// AddComment stores a comment. fingerprint may be empty.
func (s *Server) AddComment(c models.Comment, fingerprint string) models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertComment(c, fingerprint)
}

// FailNext queues a status for the next request with the given method and
// path, e.g. FailNext("GET", "/api/articles", 500).
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], status)
}

// DelayNext queues a delay for the next request with the given method and path.
func (s *Server) DelayNext(method, path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.delays[key] = append(s.delays[key], d)
}

// Calls returns "METHOD /path" for every request served so far.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// record logs the call and applies queued delays and failures for the
// request's method and path.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls = append(s.calls, key)
		s.mu.Unlock()

		if d, ok := s.pop(s.delays, key); ok {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if status, ok := s.popStatus(key); ok {
			slog.Debug("fakeapi injected failure", "route", key, "status", status)
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) pop(m map[string][]time.Duration, key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := m[key]
	if len(q) == 0 {
		return 0, false
	}
	m[key] = q[1:]
	return q[0], true
}

func (s *Server) popStatus(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.failures[key]
	if len(q) == 0 {
		return 0, false
	}
	s.failures[key] = q[1:]
	return q[0], true
}

// currentUser resolves the bearer token. Unknown tokens yield ok=false.
func (s *Server) currentUser(r *http.Request) (models.User, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return models.User{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return models.User{}, false
	}
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return models.User{}, false
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	}
}

// writeData wraps v in the response envelope.
func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": v, "message": "success"})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}
