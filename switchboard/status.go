// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// statusTimeout bounds how long a status request waits for the loop.
const statusTimeout = 5 * time.Second

// StatusHandler serves GET requests with the server's Status as JSON.
func StatusHandler(server *Server, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		status, err := server.Status(ctx)
		if err != nil {
			logger.Warn("status request failed", "error", err)
			http.Error(w, "switchboard unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Debug("writing status response failed", "error", err)
		}
	})
}
