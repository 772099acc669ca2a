/*
Package main is the entry point of the chat server.

It loads configuration, initializes the global logging system, starts the TCP chat
listener and the optional HTTP ops surface, and handles operating system interrupt
signals (SIGINT, SIGTERM) to shut every session down gracefully.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"linechat/internal/app/chat"
	"linechat/internal/configs"
	"linechat/internal/handler"
	"linechat/internal/pkg/limiter"
	"linechat/internal/pkg/logx"
)

// shutdownTimeout bounds each shutdown step.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := serverCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func serverCmd() *cobra.Command {
	var addrFlag string
	var httpAddrFlag string

	cmd := &cobra.Command{
		Use:           "chatserver",
		Short:         "Run the line-delimited JSON chat server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ChatAddr = addrFlag
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddrFlag
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", configs.DefaultChatAddr, "chat listener address (overrides CHAT_ADDR)")
	cmd.Flags().StringVar(&httpAddrFlag, "http-addr", configs.DefaultHTTPAddr, "ops HTTP address, empty to disable (overrides HTTP_ADDR)")

	return cmd
}

func run(cfg *configs.AppConfig) error {
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("chat_addr", cfg.ChatAddr).
		Str("http_addr", cfg.HTTPAddr).
		Int("broadcast_buffer", cfg.BroadcastBuffer).
		Int("max_frame_bytes", cfg.MaxFrameBytes).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := chat.NewRegistry(cfg.BroadcastBuffer)
	defer registry.Close()

	// Chat connections and /api requests share the CONN_RATE budget but keep separate buckets.
	var admission, apiLimiter *limiter.IPRateLimiter
	if cfg.ConnRate > 0 {
		admission = limiter.NewIPRateLimiter(rate.Limit(cfg.ConnRate), cfg.ConnBurst)
		defer admission.Stop()

		apiLimiter = limiter.NewIPRateLimiter(rate.Limit(cfg.ConnRate), cfg.ConnBurst)
		defer apiLimiter.Stop()
	}

	server := chat.NewServer(registry, chat.Options{
		Session: chat.SessionConfig{
			SendQueueSize: cfg.SendQueueSize,
			MessageRate:   cfg.MessageRate,
			MessageBurst:  cfg.MessageBurst,
		},
		Conn: chat.ConnOptions{
			MaxFrameBytes: cfg.MaxFrameBytes,
			IdleTimeout:   cfg.IdleTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		},
		Admission: admission,
	})

	ln, err := net.Listen("tcp", cfg.ChatAddr)
	if err != nil {
		logx.Error(err, "Failed to bind chat listener", "addr", cfg.ChatAddr)
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ln)
	}()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:        cfg.HTTPAddr,
			Handler:     handler.Router(&handler.AppDeps{
				Server:     server,
				Config:     cfg,
				APILimiter: apiLimiter,
			}),
			ReadTimeout: 5 * time.Second,
			IdleTimeout: 120 * time.Second,
		}

		go func() {
			logx.Info("Ops HTTP server starting", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error(err, "Ops HTTP server failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case err := <-serveErr:
		if err != nil {
			logx.Error(err, "Chat listener stopped unexpectedly")
		}
	}

	if httpServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Ops HTTP server forced to shutdown")
		}
	}

	if !server.Shutdown(shutdownTimeout) {
		logx.Warn("Some sessions did not finish before the shutdown timeout")
	}

	logx.Info("Server gracefully stopped.", "total_sessions", server.Stats().TotalSessions)
	return nil
}
