package handler

import (
	"net/http"

	"linechat/internal/pkg/resp"
)

// HandleListUsers returns the registered usernames in sorted order.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users := deps.Server.Registry().ListUsers()

		resp.RespondSuccess(w, r, map[string]any{
			"count": len(users),
			"users": users,
		})
	}
}

// HandleStats returns the server counters.
func HandleStats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Server.Stats())
	}
}
