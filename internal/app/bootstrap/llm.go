package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/physioflow/internal/config"
	"github.com/wolfman30/physioflow/internal/soap"
	"github.com/wolfman30/physioflow/pkg/logging"
)

// BuildLLMClient wires the configured summarization provider, wrapped with a
// fallback provider when one is set. The returned cleanup releases provider
// connections and is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (soap.LLMClient, func(), error) {
	if cfg == nil {
		return nil, func() {}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	primary, closePrimary, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closePrimary)
	logger.Info("llm provider configured", "provider", cfg.LLMProvider)

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		return primary, cleanup, nil
	}
	fallback, closeFallback, err := buildProvider(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		logger.Warn("llm fallback provider unavailable", "provider", fallbackName, "error", err)
		return primary, cleanup, nil
	}
	closers = append(closers, closeFallback)
	logger.Info("llm fallback provider configured", "provider", fallbackName)
	return soap.NewFallbackLLMClient(primary, fallback, logger), cleanup, nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (soap.LLMClient, func(), error) {
	noop := func() {}
	switch name {
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, noop, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for bedrock")
		}
		return soap.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), noop, nil
	case "gemini":
		client, err := soap.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	case "openai":
		client, err := soap.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return client, noop, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", name)
	}
}
