package handler

import (
	"linechat/internal/app/chat"
	"linechat/internal/configs"
	"linechat/internal/pkg/limiter"
)

type AppDeps struct {
	Server *chat.Server
	Config *configs.AppConfig

	// APILimiter throttles /api requests per client IP; nil disables it.
	APILimiter *limiter.IPRateLimiter
}
