// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recover returns a middleware that turns a handler panic into the content
// service's JSON error body with status 500, so a bug in the mock service
// reaches the client as a RemoteError instead of a dropped connection. The
// caller's request id is logged with the stack and echoed in the body.
// http.ErrAbortHandler is re-raised. A nil logger uses slog.Default.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l := logger
				if l == nil {
					l = slog.Default()
				}
				id := r.Header.Get(RequestIDHeader)
				l.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", id,
					"stack", string(debug.Stack()),
				)

				body := map[string]string{"error": "internal server error"}
				if id != "" {
					body["request_id"] = id
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(body)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
