/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains HandleWebSocket, which upgrades the HTTP connection and runs a chat
session over it with the same protocol as TCP clients, and AdmitConnections, the per-IP
admission check in front of it.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"linechat/internal/app/chat"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/logx"
	"linechat/internal/pkg/resp"
)

// AdmitConnections applies the chat server's per-IP admission limit. It must run
// before middleware.RealIP so that it keys on the socket peer, not on a
// client-supplied forwarding header.
func AdmitConnections(deps *AppDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !deps.Server.Admit(r.RemoteAddr) {
				resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleWebSocket creates an HTTP HandlerFunc serving chat sessions over WebSocket.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response.
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		remoteIP := logx.AnonymizeIP(r.RemoteAddr)
		logx.Info("WebSocket connection established", "remote_ip", remoteIP)

		deps.Server.ServeConn(NewWSConn(conn, r.RemoteAddr, chat.ConnOptions{
			MaxFrameBytes: deps.Config.MaxFrameBytes,
			IdleTimeout:   deps.Config.IdleTimeout,
			WriteTimeout:  deps.Config.WriteTimeout,
		}))

		logx.Info("WebSocket connection closed", "remote_ip", remoteIP)
	}
}
