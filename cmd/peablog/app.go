// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"peablog/internal/apiclient"
	"peablog/internal/articles"
	"peablog/internal/comments"
	"peablog/internal/config"
	"peablog/internal/fingerprint"
	"peablog/internal/metrics"
	"peablog/internal/session"
	"peablog/internal/storage"
)

// Command annotations. standalone marks commands that do not talk to the
// content service; the others describe the session a command needs and are
// checked with session.Guard before it runs.
const (
	standalone    = "standalone"
	requiresAuth  = "requires_auth"
	requiresAdmin = "requires_admin"
	loginRoute    = "login"
)

// adminOnly annotates commands that change content. The check is advisory:
// the service enforces roles on its own.
var adminOnly = map[string]string{requiresAuth: "true", requiresAdmin: "true"}

// app holds everything a command needs. It is built once per invocation by
// the root command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	client   *apiclient.Client
	session  *session.Manager
	articles *articles.Service
	comments *comments.Service

	valkey     *redis.Client
	metricsSrv *http.Server
	detach     func()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "peablog",
		Short:         "Command line client for a pea-blog content service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(a.logger)

			if cmd.Annotations[standalone] != "" {
				return nil
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			return a.guard(cmd)
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRefreshCmd(a),
		newArticlesCmd(a),
		newImagesCmd(a),
		newCommentsCmd(a),
		newMockServerCmd(a),
	)
	return root
}

func routeOf(cmd *cobra.Command) session.Route {
	return session.Route{
		RequiresAuth:  cmd.Annotations[requiresAuth] != "",
		RequiresAdmin: cmd.Annotations[requiresAdmin] != "",
		IsLogin:       cmd.Annotations[loginRoute] != "",
	}
}

// guard refuses to run cmd when the restored session does not fit its route.
func (a *app) guard(cmd *cobra.Command) error {
	st := a.session.State()
	switch session.Guard(st, routeOf(cmd)) {
	case session.Allow:
		return nil
	case session.RedirectLogin:
		return fmt.Errorf("%s: not logged in, run \"peablog login\" first", cmd.CommandPath())
	case session.RedirectHome:
		if routeOf(cmd).IsLogin {
			return fmt.Errorf("%s: already logged in as %s, run \"peablog logout\" first", cmd.CommandPath(), st.User.Username)
		}
		return fmt.Errorf("%s: requires an admin account", cmd.CommandPath())
	default:
		return fmt.Errorf("%s: session not initialized", cmd.CommandPath())
	}
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// open builds the storage backend, the gateway and the stores, then restores
// the saved session.
func (a *app) open(ctx context.Context) error {
	store, err := a.openStorage()
	if err != nil {
		return err
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	var recorder apiclient.Recorder
	if a.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewCollector(reg)
		if err := a.serveMetrics(reg); err != nil {
			return err
		}
	}

	a.client = apiclient.New(apiclient.Options{
		BaseURL: a.cfg.APIURL,
		Timeout: a.cfg.Timeout,
		Limiter: a.cfg.Limiter(),
		Metrics: recorder,
		Logger:  a.logger,
	})

	a.session = session.New(a.client, store, a.logger)
	a.detach = a.session.Attach(a.client)
	a.session.OnReset(func(r session.Reason) {
		a.logger.Info("session cleared", "reason", r)
	})

	fp := fingerprint.New(store)
	a.articles = articles.New(a.client, articles.Options{Location: loc, Logger: a.logger})
	a.comments = comments.New(a.client, fp, a.session, comments.Options{Logger: a.logger})

	a.session.Bootstrap(ctx)
	return nil
}

func (a *app) openStorage() (storage.Store, error) {
	switch a.cfg.Storage {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageValkey:
		client, err := storage.ConnectValkey(a.cfg.ValkeyHost, a.cfg.ValkeyPort, a.cfg.ValkeyPassword, a.cfg.ValkeyDB)
		if err != nil {
			return nil, err
		}
		a.valkey = client
		return storage.NewValkeyStore(client, a.cfg.Profile), nil
	default:
		file := storage.NewFileStore(a.cfg.StatePath())
		a.logger.Debug("session state file", "path", file.Path())
		var store storage.Store = file
		if a.cfg.StorageKey != "" {
			sealed, err := storage.NewSealedStore(store, a.cfg.StorageKey)
			if err != nil {
				return nil, err
			}
			store = sealed
		}
		return store, nil
	}
}

func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	a.metricsSrv = &http.Server{
		Handler:     metrics.SetupMetricsRoute(reg),
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Debug("metrics server listening", "addr", ln.Addr().String())
	return nil
}

func (a *app) close() error {
	if a.detach != nil {
		a.detach()
	}
	var errs []error
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
	}
	if a.valkey != nil {
		errs = append(errs, a.valkey.Close())
	}
	return errors.Join(errs...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
