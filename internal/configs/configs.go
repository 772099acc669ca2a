/*
Package configs loads the chat server settings from environment variables.

Every setting has a default, so the server starts with no environment at all and
listens for chat clients on 127.0.0.1:8080.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default values used when the corresponding variable is unset.
const (
	DefaultChatAddr        = "127.0.0.1:8080"
	DefaultHTTPAddr        = "127.0.0.1:8081"
	DefaultBroadcastBuffer = 1000
	DefaultSendQueueSize   = 256
	DefaultMaxFrameBytes   = 8192
	DefaultWriteTimeout    = 10 * time.Second
	DefaultMessageRate     = 10
	DefaultMessageBurst    = 20
	DefaultConnRate        = 5
	DefaultConnBurst       = 20

	// minFrameBytes keeps room for the largest server-generated envelope header.
	minFrameBytes = 256
)

// AppConfig contains all configuration parameters of the chat server.
type AppConfig struct {
	// General Server Settings
	Environment string
	ChatAddr    string

	// HTTPAddr is the ops surface address; empty disables it.
	HTTPAddr string

	// Session Settings
	BroadcastBuffer int
	SendQueueSize   int
	MaxFrameBytes   int
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration

	// Flood Control Settings (a zero rate disables the limiter)
	MessageRate  float64
	MessageBurst int
	ConnRate     float64
	ConnBurst    int

	// Security Settings
	AllowedOrigins []string
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and validates the configuration from environment variables.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Server Settings ---
	cfg.Environment = getString("ENVIRONMENT", "development")
	cfg.ChatAddr = getString("CHAT_ADDR", DefaultChatAddr)

	// An explicitly empty HTTP_ADDR turns the ops surface off.
	cfg.HTTPAddr = DefaultHTTPAddr
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}

	// --- Session Settings ---
	if cfg.BroadcastBuffer, err = getInt("BROADCAST_BUFFER", DefaultBroadcastBuffer); err != nil {
		return nil, err
	}
	if cfg.BroadcastBuffer < 1 {
		return nil, fmt.Errorf("BROADCAST_BUFFER must be positive, got %d", cfg.BroadcastBuffer)
	}

	if cfg.SendQueueSize, err = getInt("SEND_QUEUE_SIZE", DefaultSendQueueSize); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize < 1 {
		return nil, fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", cfg.SendQueueSize)
	}

	if cfg.MaxFrameBytes, err = getInt("MAX_FRAME_BYTES", DefaultMaxFrameBytes); err != nil {
		return nil, err
	}
	if cfg.MaxFrameBytes < minFrameBytes {
		return nil, fmt.Errorf("MAX_FRAME_BYTES must be at least %d, got %d", minFrameBytes, cfg.MaxFrameBytes)
	}

	if cfg.IdleTimeout, err = getDuration("IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", DefaultWriteTimeout); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout < 0 || cfg.WriteTimeout < 0 {
		return nil, fmt.Errorf("timeouts must not be negative")
	}

	// --- Flood Control Settings ---
	if cfg.MessageRate, err = getFloat("MESSAGE_RATE", DefaultMessageRate); err != nil {
		return nil, err
	}
	if cfg.MessageBurst, err = getInt("MESSAGE_BURST", DefaultMessageBurst); err != nil {
		return nil, err
	}
	if cfg.ConnRate, err = getFloat("CONN_RATE", DefaultConnRate); err != nil {
		return nil, err
	}
	if cfg.ConnBurst, err = getInt("CONN_BURST", DefaultConnBurst); err != nil {
		return nil, err
	}
	if cfg.MessageRate < 0 || cfg.ConnRate < 0 || cfg.MessageBurst < 0 || cfg.ConnBurst < 0 {
		return nil, fmt.Errorf("rate limits must not be negative")
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return d, nil
}
