// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Comment is a node in an article's comment tree. Replies holds whatever
// pages of replies the client has fetched so far and is not guaranteed to be
// complete; ReplyCount is the server's count.
type Comment struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	Author      *User     `json:"author,omitempty"`
	ArticleID   int64     `json:"article_id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Replies     []Comment `json:"replies,omitempty"`
	ReplyCount  int       `json:"reply_count"`
	LatestReply *Comment  `json:"latest_reply,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsReply returns true if the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// CommentID returns the comment's id. Used as the collection key.
func CommentID(c Comment) int64 { return c.ID }

// CloneComment deep-copies c including its cached replies.
func CloneComment(c Comment) Comment {
	c.Author = c.Author.Clone()
	if c.ParentID != nil {
		id := *c.ParentID
		c.ParentID = &id
	}
	if c.Replies != nil {
		replies := make([]Comment, len(c.Replies))
		for i, r := range c.Replies {
			replies[i] = CloneComment(r)
		}
		c.Replies = replies
	}
	if c.LatestReply != nil {
		latest := CloneComment(*c.LatestReply)
		c.LatestReply = &latest
	}
	return c
}

// CreateCommentRequest is the body posted to /comments. Fingerprint
// attributes anonymous comments to a device so they can be deleted later.
type CreateCommentRequest struct {
	Content     string  `json:"content"`
	ArticleID   int64   `json:"article_id"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	Fingerprint *string `json:"fingerprint,omitempty"`
}

// DeleteCommentRequest is the optional body of DELETE /comments/{id}.
type DeleteCommentRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// CommentList is one page of comments or replies.
type CommentList struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
