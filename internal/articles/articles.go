// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package articles keeps the client's article list and the article being
// viewed in sync with the content service.
package articles

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"peablog/internal/collection"
	"peablog/internal/models"
)

// DefaultPageSize is the initial page size of the article list.
const DefaultPageSize = 10

// Gateway is the part of the API client the article service needs.
type Gateway interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, body, out any) error
	GetBinary(ctx context.Context, path string, query url.Values) ([]byte, error)
	PostMultipart(ctx context.Context, path, field, filename string, r io.Reader, out any) error
}

// Options configures a Service.
type Options struct {
	// Location is the zone wall-clock schedule times are read in.
	// Defaults to time.Local.
	Location  *time.Location
	PageSize  int
	Logger    *slog.Logger
	Supersede bool
}

// Service is the article instantiation of the collection store.
type Service struct {
	gw     Gateway
	store  *collection.Store[models.Article]
	loc    *time.Location
	logger *slog.Logger
}

// New creates an article service calling through gw.
func New(gw Gateway, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	size := opts.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	return &Service{
		gw:     gw,
		loc:    loc,
		logger: logger,
		store: collection.New(collection.Options[models.Article]{
			Name:      "articles",
			ID:        models.ArticleID,
			PageSize:  size,
			Logger:    logger,
			Supersede: opts.Supersede,
			Clone:     models.CloneArticle,
		}),
	}
}

// State returns a snapshot of the cached article list.
func (s *Service) State() collection.State[models.Article] { return s.store.State() }

// Current returns the article being viewed.
func (s *Service) Current() (models.Article, bool) { return s.store.Current() }

// ClearCurrent forgets the article being viewed.
func (s *Service) ClearCurrent() { s.store.ClearCurrent() }

// HasMore reports whether more pages are available.
func (s *Service) HasMore() bool { return s.store.HasMore() }

// Reset empties the list and the detail cache.
func (s *Service) Reset() { s.store.Reset() }

// Fetch loads a page of all articles (GET /articles). Zero page or page
// size fall back to the list's current values; page 1 replaces the list.
func (s *Service) Fetch(ctx context.Context, params models.SearchParams) (collection.Page[models.Article], error) {
	return s.store.Fetch(ctx, pageRequest(params), s.lister("/articles", params))
}

// FetchPublished loads a page of published articles.
func (s *Service) FetchPublished(ctx context.Context, params models.SearchParams) (collection.Page[models.Article], error) {
	return s.store.Fetch(ctx, pageRequest(params), s.lister("/articles/published", params))
}

// Search replaces the list with the matching articles.
func (s *Service) Search(ctx context.Context, params models.SearchParams) (collection.Page[models.Article], error) {
	return s.store.Search(ctx, pageRequest(params), s.lister("/articles/search", params))
}

func (s *Service) lister(path string, params models.SearchParams) collection.FetchFunc[models.Article] {
	return func(ctx context.Context, req collection.PageRequest) (collection.Page[models.Article], error) {
		params.Page = req.Page
		params.PageSize = req.PageSize
		var list models.ArticleList
		if err := s.gw.Get(ctx, path, params.Values(), &list); err != nil {
			return collection.Page[models.Article]{}, fmt.Errorf("list articles: %w", err)
		}
		return collection.Page[models.Article]{
			Items:    list.Articles,
			Total:    list.Total,
			Page:     list.Page,
			PageSize: list.PageSize,
		}, nil
	}
}

func pageRequest(p models.SearchParams) collection.PageRequest {
	return collection.PageRequest{Page: p.Page, PageSize: p.PageSize}
}

// FetchByID loads one article into the detail cache.
func (s *Service) FetchByID(ctx context.Context, id int64) (models.Article, error) {
	return s.store.Load(ctx, s.getter(articlePath(id)))
}

// FetchByTitle loads one article by its exact title into the detail cache.
func (s *Service) FetchByTitle(ctx context.Context, title string) (models.Article, error) {
	return s.store.Load(ctx, s.getter("/articles/title/"+url.PathEscape(title)))
}

func (s *Service) getter(path string) collection.MutateFunc[models.Article] {
	return func(ctx context.Context) (models.Article, error) {
		var a models.Article
		if err := s.gw.Get(ctx, path, nil, &a); err != nil {
			return a, fmt.Errorf("get article: %w", err)
		}
		return a, nil
	}
}

// Create submits a new article and prepends the stored result.
func (s *Service) Create(ctx context.Context, req models.CreateArticleRequest) (models.Article, error) {
	req.PublishedAt = schedule(req.Status, req.PublishedAt, s.loc)
	return s.store.Create(ctx, func(ctx context.Context) (models.Article, error) {
		var a models.Article
		if err := s.gw.Post(ctx, "/articles", req, &a); err != nil {
			return a, fmt.Errorf("create article: %w", err)
		}
		return a, nil
	})
}

// Update changes an article and syncs the list entry and detail cache.
func (s *Service) Update(ctx context.Context, req models.UpdateArticleRequest) (models.Article, error) {
	if req.Status != nil {
		req.PublishedAt = schedule(*req.Status, req.PublishedAt, s.loc)
	}
	return s.store.Update(ctx, func(ctx context.Context) (models.Article, error) {
		var a models.Article
		if err := s.gw.Put(ctx, articlePath(req.ID), req, &a); err != nil {
			return a, fmt.Errorf("update article %d: %w", req.ID, err)
		}
		return a, nil
	})
}

// Publish sets an article's status to published.
func (s *Service) Publish(ctx context.Context, id int64) (models.Article, error) {
	status := models.ArticleStatusPublished
	return s.Update(ctx, models.UpdateArticleRequest{ID: id, Status: &status})
}

// Unpublish returns an article to draft.
func (s *Service) Unpublish(ctx context.Context, id int64) error {
	return s.store.Apply(ctx, id,
		func(ctx context.Context) error {
			if err := s.gw.Post(ctx, articlePath(id)+"/unpublish", nil, nil); err != nil {
				return fmt.Errorf("unpublish article %d: %w", id, err)
			}
			return nil
		},
		func(a *models.Article) { a.Status = models.ArticleStatusDraft },
	)
}

// Delete removes an article.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id, func(ctx context.Context) error {
		if err := s.gw.Delete(ctx, articlePath(id), nil, nil); err != nil {
			return fmt.Errorf("delete article %d: %w", id, err)
		}
		return nil
	})
}

// Like adds a like and bumps the cached counters.
func (s *Service) Like(ctx context.Context, id int64) error {
	return s.store.Apply(ctx, id,
		func(ctx context.Context) error {
			if err := s.gw.Post(ctx, articlePath(id)+"/like", nil, nil); err != nil {
				return fmt.Errorf("like article %d: %w", id, err)
			}
			return nil
		},
		func(a *models.Article) { a.LikeCount++ },
	)
}

// Unlike removes a like and lowers the cached counters.
func (s *Service) Unlike(ctx context.Context, id int64) error {
	return s.store.Apply(ctx, id,
		func(ctx context.Context) error {
			if err := s.gw.Delete(ctx, articlePath(id)+"/like", nil, nil); err != nil {
				return fmt.Errorf("unlike article %d: %w", id, err)
			}
			return nil
		},
		func(a *models.Article) { a.LikeCount-- },
	)
}

// Export downloads every article as the service's JSON export file.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	data, err := s.gw.GetBinary(ctx, "/articles/export", nil)
	if err != nil {
		s.logger.Warn("article export failed", "error", err)
		return nil, fmt.Errorf("export articles: %w", err)
	}
	return data, nil
}

// Import uploads an export file. The cached list is not refreshed.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) error {
	if err := s.gw.PostMultipart(ctx, "/articles/import", "file", filename, r, nil); err != nil {
		s.logger.Warn("article import failed", "file", filename, "error", err)
		return fmt.Errorf("import articles: %w", err)
	}
	return nil
}

// UploadImage stores an image on the service and returns its URL.
func (s *Service) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var res models.UploadResult
	if err := s.gw.PostMultipart(ctx, "/images/upload", "file", filename, r, &res); err != nil {
		s.logger.Warn("image upload failed", "file", filename, "error", err)
		return "", fmt.Errorf("upload image: %w", err)
	}
	return res.URL, nil
}

func articlePath(id int64) string {
	return "/articles/" + strconv.FormatInt(id, 10)
}
