/*
Package handler provides the HTTP ops surface of the chat server.

This file defines the main Router, applying middleware like logging and CORS before
delegating requests to the health, users, stats and WebSocket handlers.

Per-IP limits run ahead of middleware.RealIP and key on the socket peer address, so a
client cannot escape them by sending its own X-Forwarded-For or X-Real-IP header.
Everything after RealIP, request logs included, sees the forwarded address.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/resp"
)

// Router sets up the HTTP routing table for the ops surface.
// Origins are unrestricted in development and limited to Config.AllowedOrigins otherwise.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)
	r.Use(middleware.RequestID)

	// common is applied inside each group, after any per-IP limit.
	common := func(g chi.Router) {
		g.Use(middleware.RealIP)
		g.Use(logx.RequestLogger())
		g.Use(middleware.Recoverer)
	}

	r.Group(func(g chi.Router) {
		common(g)
		g.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			data := map[string]string{
				"status":  "ok",
				"service": "linechat",
			}
			resp.RespondSuccess(w, r, data)
		})
	})

	r.Route("/api", func(api chi.Router) {
		if deps.APILimiter != nil {
			api.Use(deps.APILimiter.Middleware)
		}
		common(api)
		api.Get("/users", HandleListUsers(deps))
		api.Get("/stats", HandleStats(deps))
	})

	r.Group(func(g chi.Router) {
		g.Use(AdmitConnections(deps))
		common(g)
		g.Get("/ws", HandleWebSocket(wsUpgrader, deps))
	})

	return r
}
