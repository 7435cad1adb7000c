// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package comments keeps the threaded comments of one article in sync with
// the content service. Top-level comments live in the collection store;
// replies are cached lazily inside their parent.
package comments

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"peablog/internal/collection"
	"peablog/internal/models"
)

// DefaultPageSize is the initial page size for comments and replies.
const DefaultPageSize = 15

// Gateway is the part of the API client the comment service needs.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, body, out any) error
}

// Fingerprints supplies the device fingerprint for anonymous submissions.
type Fingerprints interface {
	Get(ctx context.Context) (string, error)
	Stored(ctx context.Context) (string, bool, error)
}

// Credentials tells the service whether a user is signed in.
type Credentials interface {
	Token() string
}

// Options configures a Service.
type Options struct {
	PageSize  int
	Logger    *slog.Logger
	Supersede bool
}

// Service is the comment instantiation of the collection store.
type Service struct {
	gw     Gateway
	fp     Fingerprints
	creds  Credentials
	logger *slog.Logger
	store  *collection.Store[models.Comment]

	mu        sync.Mutex
	articleID int64
}

// New creates a comment service. creds may be nil, in which case every
// submission is treated as anonymous.
func New(gw Gateway, fp Fingerprints, creds Credentials, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	return &Service{
		gw:     gw,
		fp:     fp,
		creds:  creds,
		logger: logger,
		store: collection.New(collection.Options[models.Comment]{
			Name:      "comments",
			ID:        models.CommentID,
			PageSize:  size,
			Logger:    logger,
			Supersede: opts.Supersede,
			Clone:     models.CloneComment,
		}),
	}
}

// ArticleID returns the article the cached comments belong to.
func (s *Service) ArticleID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articleID
}

// State returns a snapshot of the cached top-level comments.
func (s *Service) State() collection.State[models.Comment] { return s.store.State() }

// HasMore reports whether more top-level comments are available.
func (s *Service) HasMore() bool { return s.store.HasMore() }

// Reset empties the cache.
func (s *Service) Reset() { s.store.Reset() }

// Fetch loads a page of an article's top-level comments. Switching to
// another article drops the cache first; a fetch for the previous article
// still in flight then settles with collection.ErrSuperseded and is not
// applied.
func (s *Service) Fetch(ctx context.Context, articleID int64, page, pageSize int) (collection.Page[models.Comment], error) {
	s.mu.Lock()
	if s.articleID != articleID {
		s.store.Reset()
		s.articleID = articleID
	}
	s.mu.Unlock()

	path := "/articles/" + strconv.FormatInt(articleID, 10) + "/comments"
	req := collection.PageRequest{Page: page, PageSize: pageSize}
	return s.store.Fetch(ctx, req, func(ctx context.Context, req collection.PageRequest) (collection.Page[models.Comment], error) {
		list, err := s.list(ctx, path, req.Page, req.PageSize)
		if err != nil {
			return collection.Page[models.Comment]{}, fmt.Errorf("list comments of article %d: %w", articleID, err)
		}
		return collection.Page[models.Comment]{
			Items:    list.Comments,
			Total:    list.Total,
			Page:     list.Page,
			PageSize: list.PageSize,
		}, nil
	})
}

// FetchReplies loads a page of replies into the cached parent. Page 0 or 1
// replaces the parent's replies, later pages append. The parent's reply
// count takes the server total.
func (s *Service) FetchReplies(ctx context.Context, commentID int64, page, pageSize int) (models.CommentList, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	path := "/comments/" + strconv.FormatInt(commentID, 10) + "/replies"
	list, err := s.list(ctx, path, max(page, 1), pageSize)
	if err != nil {
		s.logger.Warn("comment replies fetch failed", "comment_id", commentID, "error", err)
		return list, fmt.Errorf("list replies of comment %d: %w", commentID, err)
	}

	s.store.Patch(commentID, func(c *models.Comment) {
		if page <= 1 {
			c.Replies = append([]models.Comment(nil), list.Comments...)
		} else {
			c.Replies = append(c.Replies, list.Comments...)
		}
		c.ReplyCount = list.Total
	})
	return list, nil
}

func (s *Service) list(ctx context.Context, path string, page, pageSize int) (models.CommentList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	var list models.CommentList
	err := s.gw.Get(ctx, path, q, &list)
	return list, err
}

// Create posts a comment. Anonymous submissions carry the device
// fingerprint. A top-level comment is prepended to the list; a reply is
// prepended to its cached parent's replies.
func (s *Service) Create(ctx context.Context, req models.CreateCommentRequest) (models.Comment, error) {
	if req.ArticleID == 0 {
		req.ArticleID = s.ArticleID()
	}
	if s.anonymous() && req.Fingerprint == nil {
		fp, err := s.fp.Get(ctx)
		if err != nil {
			return models.Comment{}, fmt.Errorf("create comment: %w", err)
		}
		req.Fingerprint = &fp
	}

	post := func(ctx context.Context) (models.Comment, error) {
		var c models.Comment
		if err := s.gw.Post(ctx, "/comments", req, &c); err != nil {
			return c, fmt.Errorf("create comment: %w", err)
		}
		return c, nil
	}

	if req.ParentID == nil {
		return s.store.Create(ctx, post)
	}

	reply, err := post(ctx)
	if err != nil {
		s.logger.Warn("comment reply failed", "parent_id", *req.ParentID, "error", err)
		return reply, err
	}
	s.store.Patch(*req.ParentID, func(parent *models.Comment) {
		parent.Replies = append([]models.Comment{reply}, parent.Replies...)
		parent.ReplyCount++
		latest := reply
		parent.LatestReply = &latest
	})
	return reply, nil
}

// Delete removes a comment. Anonymous callers prove ownership with the
// stored device fingerprint. The comment is dropped from the list, or from
// its parent's cached replies.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var body any
	if s.anonymous() {
		fp, ok, err := s.fp.Stored(ctx)
		if err != nil {
			return fmt.Errorf("delete comment %d: %w", id, err)
		}
		if ok {
			body = models.DeleteCommentRequest{Fingerprint: fp}
		}
	}

	del := func(ctx context.Context) error {
		if err := s.gw.Delete(ctx, "/comments/"+strconv.FormatInt(id, 10), body, nil); err != nil {
			return fmt.Errorf("delete comment %d: %w", id, err)
		}
		return nil
	}

	parentID, isReply := s.parentOf(id)
	if !isReply {
		return s.store.Delete(ctx, id, del)
	}

	if err := del(ctx); err != nil {
		s.logger.Warn("comment reply delete failed", "comment_id", id, "error", err)
		return err
	}
	s.store.Patch(parentID, func(parent *models.Comment) {
		kept := parent.Replies[:0:0]
		for _, r := range parent.Replies {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		parent.Replies = kept
		parent.ReplyCount = max(0, parent.ReplyCount-1)
		if parent.LatestReply != nil && parent.LatestReply.ID == id {
			parent.LatestReply = newest(kept)
		}
	})
	return nil
}

// parentOf finds the cached parent of a reply. Top-level comments and
// unknown ids report false.
func (s *Service) parentOf(id int64) (int64, bool) {
	for _, c := range s.store.Items() {
		if c.ID == id {
			return 0, false
		}
		for _, r := range c.Replies {
			if r.ID == id {
				return c.ID, true
			}
		}
		if c.LatestReply != nil && c.LatestReply.ID == id {
			return c.ID, true
		}
	}
	return 0, false
}

// newest returns a copy of the most recent reply, or nil.
func newest(replies []models.Comment) *models.Comment {
	var out *models.Comment
	for i := range replies {
		if out == nil || replies[i].CreatedAt.After(out.CreatedAt) {
			r := replies[i]
			out = &r
		}
	}
	return out
}

func (s *Service) anonymous() bool {
	return s.creds == nil || s.creds.Token() == ""
}
