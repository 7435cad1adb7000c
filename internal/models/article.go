// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ArticleStatus represents the publishing state of an article.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
	ArticleStatusScheduled ArticleStatus = "scheduled"
)

// Article is a blog post as served by the content service.
type Article struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	Summary      string        `json:"summary"`
	Tags         []string      `json:"tags"`
	Author       *User         `json:"author,omitempty"`
	Status       ArticleStatus `json:"status"`
	ViewCount    int           `json:"view_count"`
	LikeCount    int           `json:"like_count"`
	CommentCount int           `json:"comment_count"`
	CoverImage   *string       `json:"cover_image,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	PublishedAt  *time.Time    `json:"published_at,omitempty"`
}

// IsPublished returns true if the article is in published status.
func (a *Article) IsPublished() bool {
	return a.Status == ArticleStatusPublished
}

// ArticleID returns the article's id. Used as the collection key.
func ArticleID(a Article) int64 { return a.ID }

// CloneArticle deep-copies a. Used by the article store's snapshots.
func CloneArticle(a Article) Article {
	if a.Tags != nil {
		a.Tags = append([]string(nil), a.Tags...)
	}
	a.Author = a.Author.Clone()
	a.CoverImage = cloneString(a.CoverImage)
	if a.PublishedAt != nil {
		t := *a.PublishedAt
		a.PublishedAt = &t
	}
	return a
}

// CreateArticleRequest is the body posted to /articles.
// PublishedAt is a string so that unparseable schedule input reaches the
// service exactly as the user typed it.
type CreateArticleRequest struct {
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Summary     string        `json:"summary"`
	Tags        []string      `json:"tags"`
	Status      ArticleStatus `json:"status"`
	CoverImage  *string       `json:"cover_image,omitempty"`
	PublishedAt *string       `json:"published_at,omitempty"`
}

// UpdateArticleRequest is the body put to /articles/{id}. Nil fields are
// left unchanged by the service.
type UpdateArticleRequest struct {
	ID          int64          `json:"id"`
	Title       *string        `json:"title,omitempty"`
	Content     *string        `json:"content,omitempty"`
	Summary     *string        `json:"summary,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Status      *ArticleStatus `json:"status,omitempty"`
	CoverImage  *string        `json:"cover_image,omitempty"`
	PublishedAt *string        `json:"published_at,omitempty"`
}

// ArticleList is one page of articles.
type ArticleList struct {
	Articles []Article `json:"articles"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// SearchParams are the list/search query parameters understood by the
// article endpoints. Zero values are omitted from the query string.
type SearchParams struct {
	Keyword       string
	Tags          []string
	Page          int
	PageSize      int
	SortBy        string // created_at, view_count, like_count
	SortOrder     string // asc, desc
	IncludeDrafts bool
}

// Values encodes the parameters using the service's query parameter names.
func (p SearchParams) Values() url.Values {
	v := url.Values{}
	if p.Keyword != "" {
		v.Set("keyword", p.Keyword)
	}
	if len(p.Tags) > 0 {
		v.Set("tags", strings.Join(p.Tags, ","))
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.SortBy != "" {
		v.Set("sort_by", p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set("sort_order", p.SortOrder)
	}
	if p.IncludeDrafts {
		v.Set("include_drafts", "true")
	}
	return v
}

// UploadResult is the payload of /images/upload.
type UploadResult struct {
	URL string `json:"url"`
}
