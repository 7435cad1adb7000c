// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"peablog/internal/fakeapi"
	"peablog/internal/markdown"
	"peablog/internal/middleware"
	"peablog/internal/models"
)

// sampleArticles seed the mock service so a fresh install has something to list.
var sampleArticles = []string{
	"# Welcome to pea-blog\n\nThis is the first post on a freshly started mock service.\n\nIt exists so the list commands have something to show.",
	"# Writing in Markdown\n\nArticles are stored as **Markdown** and rendered on demand.\n\n```go\nfmt.Println(\"hello\")\n```",
	"# Comments and replies\n\nReaders can comment without an account. Replies are loaded a page at a time.",
}

func newMockServerCmd(a *app) *cobra.Command {
	var (
		addr, adminUser, adminPassword string
		seed                           bool
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory content service for local development",
		Long: `Run an in-memory content service implementing the pea-blog HTTP API
under /api. State is lost when the process exits.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{standalone: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			api := fakeapi.New()
			admin := api.AddUser(adminUser, adminPassword, models.RoleAdmin)
			if seed {
				for _, src := range sampleArticles {
					api.AddArticle(models.Article{
						Title:   markdown.Title(src),
						Summary: markdown.Summary(src, 0),
						Content: src,
						Status:  models.ArticleStatusPublished,
						Author:  &admin,
					})
				}
			}

			srv := &http.Server{
				Addr:         addr,
				Handler:      middleware.Logger(a.logger)(api.Handler()),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.logger.Info("mock server starting", "addr", addr, "prefix", fakeapi.Prefix, "admin", adminUser)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("mock server: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutdown signal received")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("mock server shutdown: %w", err)
			}
			a.logger.Info("mock server stopped gracefully")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&adminUser, "admin-user", "admin", "username of the seeded admin account")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "admin", "password of the seeded admin account")
	cmd.Flags().BoolVar(&seed, "seed", true, "create sample articles")
	return cmd
}
