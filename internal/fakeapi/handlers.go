// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"peablog/internal/models"
	"peablog/internal/slug"
)

const (
	defaultArticlePageSize = 10
	defaultCommentPageSize = 15
	maxUploadSize          = 10 << 20
)

// --- Auth ---

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	if !ok || acc.password != req.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = acc.user.ID
	user := acc.user
	s.mu.Unlock()

	writeData(w, http.StatusOK, models.LoginResponse{Token: token, User: user})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeData(w, http.StatusOK, u)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	old := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	token := uuid.NewString()

	s.mu.Lock()
	delete(s.tokens, old)
	s.tokens[token] = u.ID
	s.mu.Unlock()

	writeData(w, http.StatusOK, models.TokenResponse{Token: token})
}

// --- Articles ---

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	s.writeArticlePage(w, r, u.IsAdmin())
}

func (s *Server) listPublished(w http.ResponseWriter, r *http.Request) {
	s.writeArticlePage(w, r, false)
}

func (s *Server) searchArticles(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	drafts := ok && u.IsAdmin() && r.URL.Query().Get("include_drafts") == "true"
	s.writeArticlePage(w, r, drafts)
}

// writeArticlePage filters, sorts and paginates articles per the query.
func (s *Server) writeArticlePage(w http.ResponseWriter, r *http.Request, includeDrafts bool) {
	q := r.URL.Query()
	page, size := pagination(q.Get("page"), q.Get("page_size"), defaultArticlePageSize)
	keyword := strings.ToLower(q.Get("keyword"))
	var tags []string
	if t := q.Get("tags"); t != "" {
		tags = strings.Split(t, ",")
	}

	s.mu.Lock()
	var matched []models.Article
	for _, a := range s.articles {
		if !includeDrafts && a.Status != models.ArticleStatusPublished {
			continue
		}
		if keyword != "" && !containsFold(a, keyword) {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(a.Tags, tags) {
			continue
		}
		matched = append(matched, *a)
	}
	s.mu.Unlock()

	sortArticles(matched, q.Get("sort_by"), q.Get("sort_order"))

	writeData(w, http.StatusOK, models.ArticleList{
		Articles: paginate(matched, page, size),
		Total:    len(matched),
		Page:     page,
		PageSize: size,
	})
}

func (s *Server) articleByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, authed := s.currentUser(r)

	s.mu.Lock()
	a, found := s.articles[id]
	if found && (a.Status == models.ArticleStatusPublished || (authed && u.IsAdmin())) {
		a.ViewCount++
		out := *a
		s.mu.Unlock()
		writeData(w, http.StatusOK, out)
		return
	}
	s.mu.Unlock()
	writeError(w, http.StatusNotFound, "article not found")
}

func (s *Server) articleByTitle(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	if r.URL.RawPath != "" {
		// chi matched on the escaped path.
		if t, err := url.PathUnescape(title); err == nil {
			title = t
		}
	}
	u, authed := s.currentUser(r)

	s.mu.Lock()
	for _, a := range s.articles {
		if a.Title != title {
			continue
		}
		if a.Status != models.ArticleStatusPublished && !(authed && u.IsAdmin()) {
			continue
		}
		a.ViewCount++
		out := *a
		s.mu.Unlock()
		writeData(w, http.StatusOK, out)
		return
	}
	s.mu.Unlock()
	writeError(w, http.StatusNotFound, "article not found")
}

func (s *Server) createArticle(w http.ResponseWriter, r *http.Request) {
	var req models.CreateArticleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, _ := s.currentUser(r)

	a, msg := s.buildArticle(req, u)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	writeData(w, http.StatusCreated, s.AddArticle(a))
}

// buildArticle validates req the way the real service binds it. A non-empty
// message means the request is rejected.
func (s *Server) buildArticle(req models.CreateArticleRequest, author models.User) (models.Article, string) {
	if strings.TrimSpace(req.Title) == "" {
		return models.Article{}, "title is required"
	}
	if !validStatus(req.Status) {
		return models.Article{}, "status must be draft, published or scheduled"
	}
	publishedAt, ok := parseTime(req.PublishedAt)
	if !ok {
		return models.Article{}, "published_at must be an RFC 3339 timestamp"
	}
	if req.Status == models.ArticleStatusPublished && publishedAt == nil {
		now := s.now()
		publishedAt = &now
	}

	a := models.Article{
		Title:       req.Title,
		Content:     req.Content,
		Summary:     req.Summary,
		Tags:        req.Tags,
		Status:      req.Status,
		CoverImage:  req.CoverImage,
		PublishedAt: publishedAt,
	}
	if author.ID != 0 {
		a.Author = &author
	}
	return a, ""
}

func (s *Server) updateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.UpdateArticleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status != nil && !validStatus(*req.Status) {
		writeError(w, http.StatusBadRequest, "status must be draft, published or scheduled")
		return
	}
	publishedAt, valid := parseTime(req.PublishedAt)
	if !valid {
		writeError(w, http.StatusBadRequest, "published_at must be an RFC 3339 timestamp")
		return
	}

	s.mu.Lock()
	a, found := s.articles[id]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Content != nil {
		a.Content = *req.Content
	}
	if req.Summary != nil {
		a.Summary = *req.Summary
	}
	if req.Tags != nil {
		a.Tags = req.Tags
	}
	if req.CoverImage != nil {
		a.CoverImage = req.CoverImage
	}
	if publishedAt != nil {
		a.PublishedAt = publishedAt
	}
	if req.Status != nil {
		a.Status = *req.Status
		if a.Status == models.ArticleStatusPublished && a.PublishedAt == nil {
			now := s.now()
			a.PublishedAt = &now
		}
	}
	a.UpdatedAt = s.now()
	out := *a
	s.mu.Unlock()

	writeData(w, http.StatusOK, out)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	if _, found := s.articles[id]; !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	delete(s.articles, id)
	for cid, c := range s.comments {
		if c.comment.ArticleID == id {
			delete(s.comments, cid)
		}
	}
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

func (s *Server) likeArticle(w http.ResponseWriter, r *http.Request) {
	s.adjustLikes(w, r, +1)
}

func (s *Server) unlikeArticle(w http.ResponseWriter, r *http.Request) {
	s.adjustLikes(w, r, -1)
}

func (s *Server) adjustLikes(w http.ResponseWriter, r *http.Request, delta int) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	a, found := s.articles[id]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	a.LikeCount = max(0, a.LikeCount+delta)
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

func (s *Server) unpublishArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	a, found := s.articles[id]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	a.Status = models.ArticleStatusDraft
	a.UpdatedAt = s.now()
	s.mu.Unlock()
	writeData(w, http.StatusOK, nil)
}

// exportArticles streams every article as a JSON array. Like the real
// service, the export is a file download and carries no envelope.
func (s *Server) exportArticles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	all := make([]models.Article, 0, len(s.articles))
	for _, a := range s.articles {
		all = append(all, *a)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="articles.json"`)
	json.NewEncoder(w).Encode(all)
}

func (s *Server) importArticles(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	var reqs []models.CreateArticleRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, "import file must be a JSON array of articles")
		return
	}
	u, _ := s.currentUser(r)

	imported := 0
	for _, req := range reqs {
		a, msg := s.buildArticle(req, u)
		if msg != "" {
			continue
		}
		s.AddArticle(a)
		imported++
	}
	writeData(w, http.StatusOK, map[string]int{"imported": imported})
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	_, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	writeData(w, http.StatusOK, models.UploadResult{URL: "/uploads/" + uuid.NewString() + "/" + slug.Filename(hdr.Filename)})
}

// --- Comments ---

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	articleID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, size := pagination(q.Get("page"), q.Get("page_size"), defaultCommentPageSize)

	s.mu.Lock()
	if _, found := s.articles[articleID]; !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	var top []models.Comment
	for _, c := range s.comments {
		if c.comment.ArticleID == articleID && c.comment.ParentID == nil {
			top = append(top, s.withReplyStats(c.comment))
		}
	}
	s.mu.Unlock()

	// Newest first at the top level.
	sort.Slice(top, func(i, j int) bool { return top[i].ID > top[j].ID })

	writeData(w, http.StatusOK, models.CommentList{
		Comments: paginate(top, page, size),
		Total:    len(top),
		Page:     page,
		PageSize: size,
	})
}

func (s *Server) listReplies(w http.ResponseWriter, r *http.Request) {
	parentID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, size := pagination(q.Get("page"), q.Get("page_size"), defaultCommentPageSize)

	s.mu.Lock()
	if _, found := s.comments[parentID]; !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	replies := s.children(parentID)
	s.mu.Unlock()

	writeData(w, http.StatusOK, models.CommentList{
		Comments: paginate(replies, page, size),
		Total:    len(replies),
		Page:     page,
		PageSize: size,
	})
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	u, authed := s.currentUser(r)
	fingerprint := ""
	if req.Fingerprint != nil {
		fingerprint = *req.Fingerprint
	}
	if !authed && fingerprint == "" {
		writeError(w, http.StatusBadRequest, "anonymous comments need a fingerprint")
		return
	}

	s.mu.Lock()
	article, found := s.articles[req.ArticleID]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "article not found")
		return
	}
	if req.ParentID != nil {
		parent, ok := s.comments[*req.ParentID]
		if !ok || parent.comment.ArticleID != req.ArticleID {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "parent comment not found")
			return
		}
	}
	c := models.Comment{
		Content:   req.Content,
		ArticleID: req.ArticleID,
		ParentID:  req.ParentID,
	}
	if authed {
		c.Author = &u
	}
	created := s.insertComment(c, fingerprint)
	article.CommentCount++
	s.mu.Unlock()

	writeData(w, http.StatusCreated, created)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.DeleteCommentRequest
	if r.ContentLength != 0 {
		// The fingerprint body is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	u, authed := s.currentUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, found := s.comments[id]
	if !found {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}
	allowed := (authed && u.IsAdmin()) ||
		(authed && c.comment.Author != nil && c.comment.Author.ID == u.ID) ||
		(req.Fingerprint != "" && req.Fingerprint == c.fingerprint)
	if !allowed {
		writeError(w, http.StatusForbidden, "not allowed to delete this comment")
		return
	}

	removed := s.removeComment(id)
	if a, ok := s.articles[c.comment.ArticleID]; ok {
		a.CommentCount = max(0, a.CommentCount-removed)
	}
	writeData(w, http.StatusOK, nil)
}

// insertComment must be called with s.mu held.
func (s *Server) insertComment(c models.Comment, fingerprint string) models.Comment {
	s.nextCommentID++
	c.ID = s.nextCommentID
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Replies = nil
	s.comments[c.ID] = &storedComment{comment: c, fingerprint: fingerprint}
	return c
}

// removeComment deletes a comment and its replies. Must be called with s.mu held.
func (s *Server) removeComment(id int64) int {
	removed := 1
	for _, child := range s.children(id) {
		removed += s.removeComment(child.ID)
	}
	delete(s.comments, id)
	return removed
}

// children returns direct replies oldest first. Must be called with s.mu held.
func (s *Server) children(parentID int64) []models.Comment {
	var out []models.Comment
	for _, c := range s.comments {
		if c.comment.ParentID != nil && *c.comment.ParentID == parentID {
			out = append(out, s.withReplyStats(c.comment))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// withReplyStats fills ReplyCount and LatestReply. Must be called with s.mu held.
func (s *Server) withReplyStats(c models.Comment) models.Comment {
	var latest *models.Comment
	count := 0
	for _, other := range s.comments {
		if other.comment.ParentID == nil || *other.comment.ParentID != c.ID {
			continue
		}
		count++
		if latest == nil || other.comment.ID > latest.ID {
			reply := other.comment
			latest = &reply
		}
	}
	c.ReplyCount = count
	c.LatestReply = latest
	return c
}

// --- helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func pagination(rawPage, rawSize string, defaultSize int) (int, int) {
	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(rawSize)
	if err != nil || size < 1 {
		size = defaultSize
	}
	return page, size
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	return items[start:end]
}

func sortArticles(items []models.Article, by, order string) {
	less := func(i, j int) bool {
		switch by {
		case "view_count":
			if items[i].ViewCount != items[j].ViewCount {
				return items[i].ViewCount < items[j].ViewCount
			}
		case "like_count":
			if items[i].LikeCount != items[j].LikeCount {
				return items[i].LikeCount < items[j].LikeCount
			}
		default:
			if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
				return items[i].CreatedAt.Before(items[j].CreatedAt)
			}
		}
		return items[i].ID < items[j].ID
	}
	if order == "asc" {
		sort.SliceStable(items, less)
		return
	}
	sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
}

func containsFold(a *models.Article, keyword string) bool {
	return strings.Contains(strings.ToLower(a.Title), keyword) ||
		strings.Contains(strings.ToLower(a.Summary), keyword) ||
		strings.Contains(strings.ToLower(a.Content), keyword)
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}

func validStatus(s models.ArticleStatus) bool {
	switch s {
	case models.ArticleStatusDraft, models.ArticleStatusPublished, models.ArticleStatusScheduled:
		return true
	}
	return false
}

// parseTime parses an optional RFC 3339 timestamp. ok is false when a value
// is present but malformed.
func parseTime(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, false
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return nil, false
	}
	return data, true
}
