// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"peablog/internal/models"
)

func newCommentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "comments",
		Aliases: []string{"comment"},
		Short:   "Read and write article comments",
	}
	cmd.AddCommand(
		newCommentsListCmd(a),
		newCommentsRepliesCmd(a),
		newCommentsPostCmd(a),
		newCommentsDeleteCmd(a),
	)
	return cmd
}

func newCommentsListCmd(a *app) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list <article-id>",
		Short: "List top-level comments of an article, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.comments.Fetch(cmd.Context(), articleID, page, pageSize)
			if err != nil {
				return fmt.Errorf("list comments: %w", err)
			}
			if err := printComments(cmd.OutOrStdout(), p.Items); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d\n", p.Page, len(p.Items), p.Total)
			return err
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "comments per page")
	return cmd
}

func newCommentsRepliesCmd(a *app) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "replies <comment-id>",
		Short: "List replies to a comment, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			list, err := a.comments.FetchReplies(cmd.Context(), id, page, pageSize)
			if err != nil {
				return fmt.Errorf("list replies: %w", err)
			}
			if err := printComments(cmd.OutOrStdout(), list.Comments); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d replies\n", len(list.Comments), list.Total)
			return err
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "replies per page")
	return cmd
}

func newCommentsPostCmd(a *app) *cobra.Command {
	var parent int64
	cmd := &cobra.Command{
		Use:   "post <article-id> <text>...",
		Short: "Comment on an article, or reply with --parent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := models.CreateCommentRequest{
				Content:   strings.Join(args[1:], " "),
				ArticleID: articleID,
			}
			if parent > 0 {
				req.ParentID = &parent
			}
			c, err := a.comments.Create(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("post comment: %w", err)
			}
			if c.IsReply() {
				fmt.Fprintf(cmd.OutOrStdout(), "posted reply %d to comment %d\n", c.ID, *c.ParentID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted comment %d\n", c.ID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&parent, "parent", 0, "id of the comment being replied to")
	return cmd
}

func newCommentsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete a comment you wrote, or any comment as admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.comments.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete comment %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted comment %d\n", id)
			return nil
		},
	}
}

func printComments(w io.Writer, list []models.Comment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUTHOR\tREPLIES\tCONTENT")
	for _, c := range list {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.ID, c.Author.DisplayName(), c.ReplyCount, oneLine(c.Content, 60))
	}
	return tw.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
