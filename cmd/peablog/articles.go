// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"peablog/internal/apiclient"
	"peablog/internal/collection"
	"peablog/internal/markdown"
	"peablog/internal/models"
)

func newArticlesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "articles",
		Aliases: []string{"article"},
		Short:   "List, read and manage articles",
	}
	cmd.AddCommand(
		newArticlesListCmd(a, "list", "List articles visible to the session", a.articlesFetch),
		newArticlesListCmd(a, "published", "List published articles", a.articlesPublished),
		newArticlesSearchCmd(a),
		newArticlesShowCmd(a),
		newArticlesCreateCmd(a),
		newArticlesUpdateCmd(a),
		newArticleActionCmd(a, "publish", "Publish an article", adminOnly, func(cmd *cobra.Command, id int64) error {
			_, err := a.articles.Publish(cmd.Context(), id)
			return err
		}),
		newArticleActionCmd(a, "unpublish", "Move an article back to draft", adminOnly, func(cmd *cobra.Command, id int64) error {
			return a.articles.Unpublish(cmd.Context(), id)
		}),
		newArticleActionCmd(a, "delete", "Delete an article and its comments", adminOnly, func(cmd *cobra.Command, id int64) error {
			return a.articles.Delete(cmd.Context(), id)
		}),
		newArticleActionCmd(a, "like", "Like an article", nil, func(cmd *cobra.Command, id int64) error {
			return a.articles.Like(cmd.Context(), id)
		}),
		newArticleActionCmd(a, "unlike", "Withdraw a like", nil, func(cmd *cobra.Command, id int64) error {
			return a.articles.Unlike(cmd.Context(), id)
		}),
		newArticlesExportCmd(a),
		newArticlesImportCmd(a),
	)
	return cmd
}

type listFunc func(cmd *cobra.Command, params models.SearchParams) (collection.Page[models.Article], error)

func (a *app) articlesFetch(cmd *cobra.Command, p models.SearchParams) (collection.Page[models.Article], error) {
	return a.articles.Fetch(cmd.Context(), p)
}

func (a *app) articlesPublished(cmd *cobra.Command, p models.SearchParams) (collection.Page[models.Article], error) {
	return a.articles.FetchPublished(cmd.Context(), p)
}

// listFlags binds the paging and sorting flags shared by list commands.
func listFlags(cmd *cobra.Command, p *models.SearchParams) {
	cmd.Flags().IntVar(&p.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 0, "items per page (service default when 0)")
	cmd.Flags().StringVar(&p.SortBy, "sort-by", "", "created_at, view_count or like_count")
	cmd.Flags().StringVar(&p.SortOrder, "sort-order", "", "asc or desc")
	cmd.Flags().StringSliceVar(&p.Tags, "tags", nil, "only articles with any of these tags")
}

func newArticlesListCmd(a *app, use, short string, list listFunc) *cobra.Command {
	var params models.SearchParams
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := list(cmd, params)
			if err != nil {
				return fmt.Errorf("%s articles: %w", use, err)
			}
			return printArticles(cmd.OutOrStdout(), page)
		},
	}
	listFlags(cmd, &params)
	return cmd
}

func newArticlesSearchCmd(a *app) *cobra.Command {
	var params models.SearchParams
	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search articles by keyword and tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				params.Keyword = args[0]
			}
			page, err := a.articles.Search(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("search articles: %w", err)
			}
			return printArticles(cmd.OutOrStdout(), page)
		},
	}
	listFlags(cmd, &params)
	cmd.Flags().BoolVar(&params.IncludeDrafts, "drafts", false, "include drafts (admin only)")
	return cmd
}

func printArticles(w io.Writer, page collection.Page[models.Article]) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPUBLISHED\tLIKES\tVIEWS\tTITLE")
	for _, art := range page.Items {
		published := "-"
		if art.IsPublished() && art.PublishedAt != nil {
			published = art.PublishedAt.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", art.ID, art.Status, published, art.LikeCount, art.ViewCount, art.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d, %d of %d\n", page.Page, len(page.Items), page.Total)
	return err
}

func newArticlesShowCmd(a *app) *cobra.Command {
	var byTitle, asHTML bool
	cmd := &cobra.Command{
		Use:   "show <id|title>",
		Short: "Show one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				art models.Article
				err error
			)
			if byTitle {
				art, err = a.articles.FetchByTitle(cmd.Context(), args[0])
			} else {
				var id int64
				if id, err = parseID(args[0]); err != nil {
					return err
				}
				art, err = a.articles.FetchByID(cmd.Context(), id)
			}
			if apiclient.StatusCode(err) == http.StatusNotFound {
				return fmt.Errorf("show article: %q not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("show article: %w", err)
			}

			if !asHTML {
				return printJSON(cmd.OutOrStdout(), art)
			}
			html, err := markdown.ToHTML(art.Content)
			if err != nil {
				return fmt.Errorf("render article: %w", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), html)
			return err
		},
	}
	cmd.Flags().BoolVar(&byTitle, "title", false, "look the article up by title")
	cmd.Flags().BoolVar(&asHTML, "html", false, "print the content rendered as HTML")
	return cmd
}

// articleFlags are the editable fields shared by create and update.
type articleFlags struct {
	title, summary, file, status, publishAt, cover string
	tags                                           []string
}

func (f *articleFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "title (defaults to the first heading of --file)")
	cmd.Flags().StringVar(&f.summary, "summary", "", "summary (defaults to the opening paragraphs of --file)")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Markdown file with the article content")
	cmd.Flags().StringVar(&f.status, "status", "", "draft, published or scheduled")
	cmd.Flags().StringVar(&f.publishAt, "publish-at", "", "schedule time, e.g. 2026-05-01T09:00 in the configured timezone")
	cmd.Flags().StringVar(&f.cover, "cover", "", "cover image URL")
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "comma separated tags")
}

func (f *articleFlags) content() (string, error) {
	if f.file == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.file, err)
	}
	return string(data), nil
}

func newArticlesCreateCmd(a *app) *cobra.Command {
	var f articleFlags
	cmd := &cobra.Command{
		Use:         "create",
		Annotations: adminOnly,
		Short:       "Create an article",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := f.content()
			if err != nil {
				return err
			}
			req := models.CreateArticleRequest{
				Title:   f.title,
				Content: content,
				Summary: f.summary,
				Tags:    f.tags,
				Status:  models.ArticleStatus(f.status),
			}
			if req.Title == "" {
				req.Title = markdown.Title(content)
			}
			if req.Summary == "" {
				req.Summary = markdown.Summary(content, 0)
			}
			if req.Status == "" {
				req.Status = models.ArticleStatusDraft
			}
			if f.cover != "" {
				req.CoverImage = &f.cover
			}
			if f.publishAt != "" {
				req.PublishedAt = &f.publishAt
			}

			art, err := a.articles.Create(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("create article: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created article %d %q (%s)\n", art.ID, art.Title, art.Status)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func newArticlesUpdateCmd(a *app) *cobra.Command {
	var f articleFlags
	cmd := &cobra.Command{
		Use:         "update <id>",
		Annotations: adminOnly,
		Short:       "Change the given fields of an article",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := models.UpdateArticleRequest{ID: id}
			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Title = &f.title
			}
			if flags.Changed("summary") {
				req.Summary = &f.summary
			}
			if flags.Changed("file") {
				content, err := f.content()
				if err != nil {
					return err
				}
				req.Content = &content
			}
			if flags.Changed("status") {
				status := models.ArticleStatus(f.status)
				req.Status = &status
			}
			if flags.Changed("publish-at") {
				req.PublishedAt = &f.publishAt
			}
			if flags.Changed("cover") {
				req.CoverImage = &f.cover
			}
			if flags.Changed("tags") {
				req.Tags = f.tags
			}

			art, err := a.articles.Update(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("update article: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated article %d (%s)\n", art.ID, art.Status)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

// newArticleActionCmd builds a command that runs fn on one article id.
func newArticleActionCmd(a *app, use, short string, annotations map[string]string, fn func(*cobra.Command, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:         use + " <id>",
		Annotations: annotations,
		Short:       short,
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := fn(cmd, id); err != nil {
				return fmt.Errorf("%s article %d: %w", use, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: article %d\n", use, id)
			return nil
		},
	}
}

func newArticlesExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:         "export",
		Annotations: adminOnly,
		Short:       "Download every article as JSON",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.articles.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("export articles: %w", err)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newArticlesImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "import <file.json>",
		Annotations: adminOnly,
		Short:       "Upload a JSON export and create its articles",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := a.articles.Import(cmd.Context(), filepath.Base(args[0]), f); err != nil {
				return fmt.Errorf("import articles: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "import finished")
			return nil
		},
	}
}

func newImagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage uploaded images",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "upload <file>",
		Annotations: adminOnly,
		Short:       "Upload an image and print its URL",
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			imageURL, err := a.articles.UploadImage(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return fmt.Errorf("upload image: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), imageURL)
			return nil
		},
	})
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
