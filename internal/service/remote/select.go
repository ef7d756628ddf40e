package remote

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/config"
	"github.com/zhouzirui/lumi/backend/internal/logging"
)

// FromConfig picks the backend once at startup: the REST API when a base URL
// is set, otherwise an Ark chat model, otherwise Disabled. A chat model that
// fails to initialise degrades to Disabled rather than aborting startup.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) Client {
	logger = logging.OrNop(logger)

	if cfg.Remote.Enabled() {
		logger.Info("remote backend: rest", zap.String("base_url", cfg.Remote.BaseURL))
		return NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, WithLogger(logger))
	}

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err == nil {
			var client *LLMClient
			client, err = NewLLMClient(ctx, chatModel, cfg.Remote.Timeout, logger)
			if err == nil {
				logger.Info("remote backend: ark chat model", zap.String("model", cfg.AI.Model))
				return client
			}
		}
		logger.Warn("chat model unavailable, continuing with local heuristics", zap.Error(err))
		return Disabled{}
	}

	logger.Info("no remote backend configured, using local heuristics")
	return Disabled{}
}
